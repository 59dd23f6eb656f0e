package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"orderpreview/pkg/catalog"
	"orderpreview/pkg/correct"
	"orderpreview/pkg/layout"
	"orderpreview/pkg/ocr"
)

// Registry is the immutable configuration loaded once at start and passed to
// every request: the active layout map, the product and frame catalog and the
// curated layout templates.
type Registry struct {
	Layout    ocr.LayoutMap
	Catalog   *catalog.Catalog
	Templates []layout.Template
	Corrector *correct.Corrector
}

type registryFile struct {
	Layout    *ocr.LayoutMap    `yaml:"layout"`
	Templates []layout.Template `yaml:"templates"`
}

// LoadRegistry reads and validates the registry file.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry: %w", err)
	}
	return ParseRegistry(data)
}

// ParseRegistry decodes the layout map and templates and hands the rest of the
// document to the catalog. A missing layout section selects the built-in map;
// missing templates select the defaults.
func ParseRegistry(data []byte) (*Registry, error) {
	var f registryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode registry: %w", err)
	}
	lm := ocr.DefaultLayoutMap()
	if f.Layout != nil {
		lm = *f.Layout
	}
	if err := lm.Validate(); err != nil {
		return nil, err
	}
	cat, err := catalog.Parse(data)
	if err != nil {
		return nil, err
	}
	templates := f.Templates
	if len(templates) == 0 {
		templates = layout.DefaultTemplates()
	}
	for _, t := range templates {
		if len(t.Slots) == 0 {
			return nil, &ocr.ConfigurationError{Source: "layout templates", Problems: []string{fmt.Sprintf("template %q has no slots", t.Name)}}
		}
		if len(t.Sizes) > 0 && len(t.Sizes) != len(t.Slots) {
			return nil, &ocr.ConfigurationError{Source: "layout templates", Problems: []string{fmt.Sprintf("template %q lists %d sizes for %d slots", t.Name, len(t.Sizes), len(t.Slots))}}
		}
	}
	return &Registry{
		Layout:    lm,
		Catalog:   cat,
		Templates: templates,
		Corrector: correct.New(cat.Codes(), correct.Options{}),
	}, nil
}
