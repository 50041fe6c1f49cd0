package modelpolicy

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// LoadCatalog reads a YAML policy file and layers it over the built-in
// catalog. Template entries in the file replace built-in entries of the same id.
func LoadCatalog(path string) (*Catalog, error) {
	catalog := DefaultCatalog()
	if strings.TrimSpace(path) == "" {
		return catalog, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("modelpolicy: read %s: %w", path, err)
	}

	var file Catalog
	if err := v.Unmarshal(&file); err != nil {
		return nil, fmt.Errorf("modelpolicy: decode %s: %w", path, err)
	}

	if file.Defaults.ImageModel != "" {
		catalog.Defaults.ImageModel = file.Defaults.ImageModel
	}
	if file.Defaults.TextToVideoModel != "" {
		catalog.Defaults.TextToVideoModel = file.Defaults.TextToVideoModel
	}
	if file.Defaults.ImageToVideoModel != "" {
		catalog.Defaults.ImageToVideoModel = file.Defaults.ImageToVideoModel
	}
	if file.Defaults.Resolution != "" {
		res := NormalizeResolution(file.Defaults.Resolution)
		if res == "" {
			return nil, fmt.Errorf("modelpolicy: invalid default resolution %q", file.Defaults.Resolution)
		}
		catalog.Defaults.Resolution = res
	}

	// viper lower-cases map keys, template ids are matched case-insensitively
	for id, p := range file.Templates {
		if p.ForcedResolution != "" && NormalizeResolution(p.ForcedResolution) == "" {
			return nil, fmt.Errorf("modelpolicy: template %s: invalid forced_resolution %q", id, p.ForcedResolution)
		}
		catalog.Templates[templateKey(id)] = p
	}
	return catalog, nil
}
