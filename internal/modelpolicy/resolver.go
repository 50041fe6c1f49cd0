package modelpolicy

import "strings"

// ImageChoice is the outcome of ResolveImageModel.
type ImageChoice struct {
	ModelID          string
	Resolution       string
	DefaultModelID   string
	ForcedResolution bool
}

// VideoChoice is the outcome of ResolveVideoModel.
type VideoChoice struct {
	ModelID        string
	DefaultModelID string
}

// Resolver answers model questions from a Catalog. It has no side effects.
type Resolver struct {
	catalog *Catalog
}

// NewResolver returns a resolver over catalog, or over the built-in catalog when nil.
func NewResolver(catalog *Catalog) *Resolver {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	templates := make(map[string]Policy, len(catalog.Templates))
	for id, p := range catalog.Templates {
		templates[templateKey(id)] = p
	}
	return &Resolver{catalog: &Catalog{Defaults: catalog.Defaults, Templates: templates}}
}

func (r *Resolver) policy(templateID string) (Policy, bool) {
	p, ok := r.catalog.Templates[templateKey(templateID)]
	return p, ok
}

func templateKey(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// ResolveImageModel picks the model and resolution for an image job. A
// template's forced resolution always wins; otherwise an unknown requested
// resolution falls back to the default without error.
func (r *Resolver) ResolveImageModel(templateID, requestedResolution string) ImageChoice {
	d := r.catalog.Defaults
	choice := ImageChoice{
		ModelID:        d.ImageModel,
		Resolution:     d.Resolution,
		DefaultModelID: d.ImageModel,
	}
	if res := NormalizeResolution(requestedResolution); res != "" {
		choice.Resolution = res
	}

	p, ok := r.policy(templateID)
	if !ok {
		return choice
	}
	if p.ImageModel != "" {
		choice.ModelID = p.ImageModel
	}
	if forced := NormalizeResolution(p.ForcedResolution); forced != "" {
		choice.Resolution = forced
		choice.ForcedResolution = true
	}
	return choice
}

// ResolveVideoModel picks the model for a video job. Image-to-video and
// text-to-video have separate defaults.
func (r *Resolver) ResolveVideoModel(templateID string, hasImageInput bool) VideoChoice {
	d := r.catalog.Defaults
	def := d.TextToVideoModel
	if hasImageInput {
		def = d.ImageToVideoModel
	}
	choice := VideoChoice{ModelID: def, DefaultModelID: def}

	p, ok := r.policy(templateID)
	if !ok || p.Video == nil {
		return choice
	}
	preferred := p.Video.TextToVideoModel
	if hasImageInput {
		preferred = p.Video.ImageToVideoModel
	}
	if preferred != "" {
		choice.ModelID = preferred
	}
	return choice
}
