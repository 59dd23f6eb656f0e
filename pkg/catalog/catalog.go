package catalog

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Quantity behaviours.
const (
	QuantityUnit  = "unit"  // one printed unit per ordered quantity
	QuantitySheet = "sheet" // one sheet holding CountImages prints
)

// StyleNone means the product is shown without a frame.
const StyleNone = "none"

// Box is an opening in relative frame coordinates, all values in [0,1].
type Box struct {
	X1 float64 `yaml:"x1" json:"x1"`
	Y1 float64 `yaml:"y1" json:"y1"`
	X2 float64 `yaml:"x2" json:"x2"`
	Y2 float64 `yaml:"y2" json:"y2"`
}

// Point is an absolute pixel offset.
type Point struct {
	X int `yaml:"x" json:"x"`
	Y int `yaml:"y" json:"y"`
}

// AbsoluteLayout places openings at fixed pixel offsets on a base canvas, used
// by composite artwork whose openings are not proportional. Scale multiplies
// every measurement for larger physical variants.
type AbsoluteLayout struct {
	BaseWidth     int     `yaml:"base_width" json:"base_width"`
	BaseHeight    int     `yaml:"base_height" json:"base_height"`
	Offsets       []Point `yaml:"offsets" json:"offsets"`
	OpeningWidth  int     `yaml:"opening_width" json:"opening_width"`
	OpeningHeight int     `yaml:"opening_height" json:"opening_height"`
	Scale         float64 `yaml:"scale" json:"scale"`
}

// ProductSpec is one orderable product.
type ProductSpec struct {
	Slug               string   `yaml:"slug" json:"slug"`
	Name               string   `yaml:"name" json:"name"`
	Code               string   `yaml:"code" json:"code"`
	WidthIn            float64  `yaml:"width_in" json:"width_in"`
	HeightIn           float64  `yaml:"height_in" json:"height_in"`
	CountImages        int      `yaml:"count_images" json:"count_images"`
	FrameStyleDefault  string   `yaml:"frame_style_default" json:"frame_style_default"`
	FrameStylesAllowed []string `yaml:"frame_styles_allowed" json:"frame_styles_allowed"`
	QuantityBehavior   string   `yaml:"quantity_behavior" json:"quantity_behavior"`
	ParsingPatterns    []string `yaml:"parsing_patterns" json:"parsing_patterns"`
	SplitInto          string   `yaml:"split_into" json:"split_into,omitempty"` // single-print product a framed sheet breaks into
}

// FrameSize is the frames-table key for the product, short side first ("5x7").
func (p ProductSpec) FrameSize() string {
	w, h := p.WidthIn, p.HeightIn
	if w > h {
		w, h = h, w
	}
	return fmt.Sprintf("%gx%g", w, h)
}

// FrameSpec is the artwork for one product and frame style.
type FrameSpec struct {
	ProductSlug string          `yaml:"product_slug" json:"product_slug"`
	Style       string          `yaml:"style" json:"style"`
	AssetPath   string          `yaml:"asset_path" json:"asset_path"`
	Openings    []Box           `yaml:"openings" json:"openings,omitempty"`
	Absolute    *AbsoluteLayout `yaml:"absolute" json:"absolute,omitempty"`
}

// OpeningCount returns how many images the frame holds.
func (f FrameSpec) OpeningCount() int {
	if f.Absolute != nil {
		return len(f.Absolute.Offsets)
	}
	return len(f.Openings)
}

// File is the on-disk shape of the catalog section.
type File struct {
	Vocabulary []string      `yaml:"vocabulary"`
	Products   []ProductSpec `yaml:"products"`
	Frames     []FrameSpec   `yaml:"frames"`
}

// Catalog is the validated, read-only product and frame registry.
type Catalog struct {
	products []ProductSpec
	matchers [][]matcher
	frames   map[string]FrameSpec
	codes    []string
}

// Load reads a catalog from a YAML file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates catalog YAML.
func Parse(data []byte) (*Catalog, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	return New(f)
}

// New validates the registry and compiles its parsing patterns.
func New(f File) (*Catalog, error) {
	c := &Catalog{frames: map[string]FrameSpec{}}
	var problems []string
	bySlug := map[string]ProductSpec{}
	for i, p := range f.Products {
		p = withDefaults(p)
		if p.Slug == "" {
			problems = append(problems, fmt.Sprintf("product %d has no slug", i))
		}
		if _, dup := bySlug[p.Slug]; dup {
			problems = append(problems, fmt.Sprintf("duplicate product slug %q", p.Slug))
		} else {
			bySlug[p.Slug] = p
		}
		if p.WidthIn <= 0 || p.HeightIn <= 0 {
			problems = append(problems, fmt.Sprintf("product %q has non-positive size", p.Slug))
		}
		if p.CountImages < 1 {
			problems = append(problems, fmt.Sprintf("product %q must hold at least one image", p.Slug))
		}
		if p.QuantityBehavior != QuantityUnit && p.QuantityBehavior != QuantitySheet {
			problems = append(problems, fmt.Sprintf("product %q has unknown quantity behavior %q", p.Slug, p.QuantityBehavior))
		}
		if !contains(p.FrameStylesAllowed, p.FrameStyleDefault) {
			problems = append(problems, fmt.Sprintf("product %q default style %q is not allowed", p.Slug, p.FrameStyleDefault))
		}
		if len(p.ParsingPatterns) == 0 {
			problems = append(problems, fmt.Sprintf("product %q has no parsing patterns", p.Slug))
		}
		ms, errs := compilePatterns(p.ParsingPatterns)
		for _, err := range errs {
			problems = append(problems, fmt.Sprintf("product %q: %v", p.Slug, err))
		}
		c.products = append(c.products, p)
		c.matchers = append(c.matchers, ms)
	}

	for i, fr := range f.Frames {
		p, ok := bySlug[fr.ProductSlug]
		if !ok {
			problems = append(problems, fmt.Sprintf("frame %d references unknown product %q", i, fr.ProductSlug))
			continue
		}
		if fr.Style == "" || fr.Style == StyleNone {
			problems = append(problems, fmt.Sprintf("frame %d for %q needs a real style", i, fr.ProductSlug))
		}
		if !contains(p.FrameStylesAllowed, fr.Style) {
			problems = append(problems, fmt.Sprintf("frame %s/%s style not allowed by product", fr.ProductSlug, fr.Style))
		}
		if fr.AssetPath == "" {
			problems = append(problems, fmt.Sprintf("frame %s/%s has no asset", fr.ProductSlug, fr.Style))
		}
		if n := fr.OpeningCount(); n != p.CountImages {
			problems = append(problems, fmt.Sprintf("frame %s/%s has %d openings, product holds %d images", fr.ProductSlug, fr.Style, n, p.CountImages))
		}
		for j, b := range fr.Openings {
			if b.X1 < 0 || b.Y1 < 0 || b.X2 > 1 || b.Y2 > 1 || b.X2 <= b.X1 || b.Y2 <= b.Y1 {
				problems = append(problems, fmt.Sprintf("frame %s/%s opening %d is outside [0,1] or inverted", fr.ProductSlug, fr.Style, j))
			}
		}
		if a := fr.Absolute; a != nil {
			if a.Scale <= 0 {
				a.Scale = 1
			}
			if a.BaseWidth <= 0 || a.BaseHeight <= 0 || a.OpeningWidth <= 0 || a.OpeningHeight <= 0 {
				problems = append(problems, fmt.Sprintf("frame %s/%s absolute layout has empty dimensions", fr.ProductSlug, fr.Style))
			}
			if len(fr.Openings) > 0 {
				problems = append(problems, fmt.Sprintf("frame %s/%s mixes relative and absolute openings", fr.ProductSlug, fr.Style))
			}
		}
		key := frameKey(fr.ProductSlug, fr.Style)
		if _, dup := c.frames[key]; dup {
			problems = append(problems, fmt.Sprintf("duplicate frame %s/%s", fr.ProductSlug, fr.Style))
		}
		c.frames[key] = fr
	}

	for _, p := range c.products {
		if p.SplitInto == "" {
			continue
		}
		single, ok := bySlug[p.SplitInto]
		switch {
		case !ok:
			problems = append(problems, fmt.Sprintf("product %q splits into unknown product %q", p.Slug, p.SplitInto))
		case single.CountImages != 1 || single.QuantityBehavior != QuantityUnit:
			problems = append(problems, fmt.Sprintf("product %q must split into a single-print product, %q is not", p.Slug, p.SplitInto))
		}
	}

	seen := map[string]bool{}
	for _, code := range append(append([]string{}, f.Vocabulary...), productCodes(c.products)...) {
		code = strings.TrimSpace(code)
		if code == "" || seen[code] {
			continue
		}
		seen[code] = true
		c.codes = append(c.codes, code)
	}

	if len(problems) > 0 {
		return nil, &ConfigurationError{Problems: problems}
	}
	return c, nil
}

// Products returns the products in declaration order.
func (c *Catalog) Products() []ProductSpec {
	out := make([]ProductSpec, len(c.products))
	copy(out, c.products)
	return out
}

// Product looks a product up by slug.
func (c *Catalog) Product(slug string) (ProductSpec, bool) {
	for _, p := range c.products {
		if p.Slug == slug {
			return p, true
		}
	}
	return ProductSpec{}, false
}

// Frame returns the artwork for a product in a style.
func (c *Catalog) Frame(slug, style string) (FrameSpec, bool) {
	f, ok := c.frames[frameKey(slug, style)]
	return f, ok
}

// Codes is the product-code vocabulary used for fuzzy correction.
func (c *Catalog) Codes() []string {
	out := make([]string, len(c.codes))
	copy(out, c.codes)
	return out
}

// Match returns the first product, in declaration order, with a pattern
// matching the code or description.
func (c *Catalog) Match(code, description string) (ProductSpec, bool) {
	code = strings.TrimSpace(code)
	for i, p := range c.products {
		for _, m := range c.matchers[i] {
			if m.match(code, description) {
				return p, true
			}
		}
	}
	return ProductSpec{}, false
}

func withDefaults(p ProductSpec) ProductSpec {
	if p.FrameStyleDefault == "" {
		p.FrameStyleDefault = StyleNone
	}
	if len(p.FrameStylesAllowed) == 0 {
		p.FrameStylesAllowed = []string{p.FrameStyleDefault}
	}
	if p.QuantityBehavior == "" {
		p.QuantityBehavior = QuantityUnit
	}
	if p.CountImages == 0 {
		p.CountImages = 1
	}
	if p.Name == "" {
		p.Name = p.Slug
	}
	return p
}

func productCodes(ps []ProductSpec) []string {
	var out []string
	for _, p := range ps {
		out = append(out, p.Code)
	}
	return out
}

func frameKey(slug, style string) string { return slug + "\x00" + strings.ToLower(style) }

func contains(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

// matcher is one compiled parsing pattern.
type matcher interface {
	match(code, description string) bool
}

// regexMatcher tests both the code and the description.
type regexMatcher struct{ re *regexp.Regexp }

func (m regexMatcher) match(code, description string) bool {
	return (code != "" && m.re.MatchString(code)) || (description != "" && m.re.MatchString(description))
}

// textMatcher equals the code or appears in the description, ignoring case.
type textMatcher struct{ text string }

func (m textMatcher) match(code, description string) bool {
	if strings.EqualFold(code, m.text) {
		return true
	}
	return description != "" && strings.Contains(strings.ToLower(description), m.text)
}

// patternKinds selects a compiler by pattern prefix; unprefixed patterns are plain text.
var patternKinds = map[string]func(string) (matcher, error){
	"re:": func(s string) (matcher, error) {
		re, err := regexp.Compile(s)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", s, err)
		}
		return regexMatcher{re: re}, nil
	},
}

func compilePatterns(patterns []string) ([]matcher, []error) {
	var ms []matcher
	var errs []error
	for _, p := range patterns {
		compiled := false
		for prefix, compile := range patternKinds {
			if !strings.HasPrefix(p, prefix) {
				continue
			}
			m, err := compile(strings.TrimPrefix(p, prefix))
			if err != nil {
				errs = append(errs, err)
			} else {
				ms = append(ms, m)
			}
			compiled = true
			break
		}
		if !compiled {
			text := strings.ToLower(strings.TrimSpace(p))
			if text == "" {
				errs = append(errs, fmt.Errorf("empty pattern"))
				continue
			}
			ms = append(ms, textMatcher{text: text})
		}
	}
	return ms, errs
}
