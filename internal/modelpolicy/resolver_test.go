package modelpolicy

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolveImageModel(t *testing.T) {
	r := NewResolver(nil)
	tests := []struct {
		name      string
		template  string
		requested string
		wantModel string
		wantRes   string
		wantForce bool
	}{
		{name: "no template uses defaults", requested: "2k", wantModel: "nano-banana-pro", wantRes: "2K"},
		{name: "unknown resolution falls back", requested: "8K", wantModel: "nano-banana-pro", wantRes: "1K"},
		{name: "empty resolution falls back", wantModel: "nano-banana-pro", wantRes: "1K"},
		{name: "template model", template: "product-shot", requested: "4K", wantModel: "bytedance/seedream-v4-edit", wantRes: "4K"},
		{name: "forced resolution wins", template: "virtual-tryon", requested: "4K", wantModel: "nano-banana-pro", wantRes: "2K", wantForce: true},
		{name: "forced resolution wins over garbage", template: "virtual-tryon", requested: "banana", wantModel: "nano-banana-pro", wantRes: "2K", wantForce: true},
		{name: "unknown template", template: "nope", requested: "1K", wantModel: "nano-banana-pro", wantRes: "1K"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := r.ResolveImageModel(tc.template, tc.requested)
			if got.ModelID != tc.wantModel {
				t.Fatalf("ModelID = %q, want %q", got.ModelID, tc.wantModel)
			}
			if got.Resolution != tc.wantRes {
				t.Fatalf("Resolution = %q, want %q", got.Resolution, tc.wantRes)
			}
			if got.ForcedResolution != tc.wantForce {
				t.Fatalf("ForcedResolution = %v, want %v", got.ForcedResolution, tc.wantForce)
			}
			if got.DefaultModelID != "nano-banana-pro" {
				t.Fatalf("DefaultModelID = %q", got.DefaultModelID)
			}
		})
	}
}

func TestResolveVideoModelDefaultsDifferByInput(t *testing.T) {
	r := NewResolver(nil)
	t2v := r.ResolveVideoModel("", false)
	i2v := r.ResolveVideoModel("", true)
	if t2v.ModelID == i2v.ModelID {
		t.Fatalf("text and image video defaults must differ, both %q", t2v.ModelID)
	}
	if t2v.ModelID != t2v.DefaultModelID || i2v.ModelID != i2v.DefaultModelID {
		t.Fatalf("template without video policy must resolve to the default: %+v %+v", t2v, i2v)
	}
}

func TestResolveVideoModelTemplate(t *testing.T) {
	r := NewResolver(nil)

	got := r.ResolveVideoModel("lookbook-video", true)
	if got.ModelID != "wan/2-5-image-to-video" || got.DefaultModelID != "kling-2.6/image-to-video" {
		t.Fatalf("unexpected choice: %+v", got)
	}

	// only an image-to-video model is configured, text requests use the default
	got = r.ResolveVideoModel("runway-walk", false)
	if got.ModelID != "kling-2.6/text-to-video" || got.DefaultModelID != got.ModelID {
		t.Fatalf("unexpected choice: %+v", got)
	}

	got = r.ResolveVideoModel("virtual-tryon", false)
	if got.ModelID != got.DefaultModelID {
		t.Fatalf("image-only template must fall back to default video model: %+v", got)
	}
}

func TestLoadCatalogOverlaysFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	content := `
defaults:
  image_model: google/nano-banana
  resolution: 2k
templates:
  summer-sale:
    image_model: bytedance/seedream-v4-edit
    forced_resolution: 4K
  teaser:
    video:
      text_to_video_model: veo3_fast
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write policy file: %v", err)
	}

	catalog, err := LoadCatalog(path)
	if err != nil {
		t.Fatalf("LoadCatalog returned error: %v", err)
	}
	r := NewResolver(catalog)

	img := r.ResolveImageModel("", "")
	if img.ModelID != "google/nano-banana" || img.Resolution != "2K" {
		t.Fatalf("defaults not applied: %+v", img)
	}
	img = r.ResolveImageModel("summer-sale", "1K")
	if img.ModelID != "bytedance/seedream-v4-edit" || img.Resolution != "4K" || !img.ForcedResolution {
		t.Fatalf("template not applied: %+v", img)
	}
	vid := r.ResolveVideoModel("teaser", false)
	if vid.ModelID != "veo3_fast" || vid.DefaultModelID != "kling-2.6/text-to-video" {
		t.Fatalf("video template not applied: %+v", vid)
	}
	if _, ok := catalog.Templates["virtual-tryon"]; !ok {
		t.Fatalf("built-in templates must survive an overlay")
	}
}

func TestLoadCatalogRejectsBadResolution(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	content := "templates:\n  broken:\n    forced_resolution: 3K\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write policy file: %v", err)
	}
	if _, err := LoadCatalog(path); err == nil {
		t.Fatalf("expected error for invalid forced_resolution")
	}
}

func TestLoadCatalogEmptyPath(t *testing.T) {
	catalog, err := LoadCatalog("")
	if err != nil {
		t.Fatalf("LoadCatalog returned error: %v", err)
	}
	if catalog.Defaults.ImageModel == "" {
		t.Fatalf("expected built-in defaults")
	}
}

func TestLoadCatalogMixedCaseTemplateIDs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	content := "templates:\n  SummerAd:\n    image_model: custom-model\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write policy file: %v", err)
	}
	catalog, err := LoadCatalog(path)
	if err != nil {
		t.Fatalf("LoadCatalog returned error: %v", err)
	}
	r := NewResolver(catalog)
	for _, id := range []string{"SummerAd", "summerad", " SUMMERAD "} {
		if got := r.ResolveImageModel(id, "").ModelID; got != "custom-model" {
			t.Fatalf("ResolveImageModel(%q).ModelID = %q, want custom-model", id, got)
		}
	}
}

func TestResolverMatchesBuiltInTemplatesCaseInsensitively(t *testing.T) {
	r := NewResolver(&Catalog{
		Defaults:  DefaultCatalog().Defaults,
		Templates: map[string]Policy{"Hero-Shot": {ImageModel: "hero-model"}},
	})
	if got := r.ResolveImageModel("hero-shot", "").ModelID; got != "hero-model" {
		t.Fatalf("ModelID = %q, want hero-model", got)
	}
	if got := NewResolver(nil).ResolveImageModel("Product-Shot", "").ModelID; got != "bytedance/seedream-v4-edit" {
		t.Fatalf("ModelID = %q", got)
	}
}
