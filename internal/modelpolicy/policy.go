// Package modelpolicy maps templates and request options to provider models.
package modelpolicy

import "strings"

// Resolutions accepted for image jobs.
const (
	Resolution1K = "1K"
	Resolution2K = "2K"
	Resolution4K = "4K"
)

// VideoPolicy names the video models of a template.
type VideoPolicy struct {
	TextToVideoModel  string `mapstructure:"text_to_video_model"`
	ImageToVideoModel string `mapstructure:"image_to_video_model"`
}

// Policy is the static model preference of one template.
type Policy struct {
	ImageModel       string       `mapstructure:"image_model"`
	Video            *VideoPolicy `mapstructure:"video"`
	ForcedResolution string       `mapstructure:"forced_resolution"`
}

// Defaults are the system-wide models used when a template does not name one.
type Defaults struct {
	ImageModel        string `mapstructure:"image_model"`
	TextToVideoModel  string `mapstructure:"text_to_video_model"`
	ImageToVideoModel string `mapstructure:"image_to_video_model"`
	Resolution        string `mapstructure:"resolution"`
}

// Catalog holds the defaults and per-template policies.
type Catalog struct {
	Defaults  Defaults          `mapstructure:"defaults"`
	Templates map[string]Policy `mapstructure:"templates"`
}

// DefaultCatalog returns the built-in catalog.
func DefaultCatalog() *Catalog {
	return &Catalog{
		Defaults: Defaults{
			ImageModel:        "nano-banana-pro",
			TextToVideoModel:  "kling-2.6/text-to-video",
			ImageToVideoModel: "kling-2.6/image-to-video",
			Resolution:        Resolution1K,
		},
		Templates: map[string]Policy{
			"virtual-tryon": {
				ImageModel:       "nano-banana-pro",
				ForcedResolution: Resolution2K,
			},
			"product-shot": {
				ImageModel: "bytedance/seedream-v4-edit",
			},
			"social-ad": {
				ImageModel: "google/nano-banana-edit",
			},
			"lookbook-video": {
				Video: &VideoPolicy{
					TextToVideoModel:  "wan/2-5-text-to-video",
					ImageToVideoModel: "wan/2-5-image-to-video",
				},
			},
			"runway-walk": {
				Video: &VideoPolicy{
					ImageToVideoModel: "bytedance/v1-pro-image-to-video",
				},
			},
		},
	}
}

// NormalizeResolution upper-cases and validates r. It returns "" for unknown values.
func NormalizeResolution(r string) string {
	switch strings.ToUpper(strings.TrimSpace(r)) {
	case Resolution1K:
		return Resolution1K
	case Resolution2K:
		return Resolution2K
	case Resolution4K:
		return Resolution4K
	default:
		return ""
	}
}
