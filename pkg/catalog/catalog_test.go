package catalog

import (
	"errors"
	"strings"
	"testing"
)

const sample = `
vocabulary: ["001", "810"]
products:
  - slug: basic
    code: "810"
    width_in: 8
    height_in: 10
    frame_styles_allowed: [none, black]
    parsing_patterns: ["810", "8x10"]
  - slug: broad
    code: "811"
    width_in: 8
    height_in: 10
    parsing_patterns: ["re:(?i)^8\\d\\d$", "re:(?i)basic"]
frames:
  - product_slug: basic
    style: black
    asset_path: frames/basic_black.png
    openings:
      - {x1: 0.1, y1: 0.1, x2: 0.9, y2: 0.9}
`

func TestParseAndMatch(t *testing.T) {
	c, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	p, ok := c.Match("810", "")
	if !ok || p.Slug != "basic" {
		t.Fatalf("expected basic got %q", p.Slug)
	}
	p, ok = c.Match("812", "")
	if !ok || p.Slug != "broad" {
		t.Fatalf("expected regex match broad got %q", p.Slug)
	}
	p, ok = c.Match("", "8X10 Basic")
	if !ok || p.Slug != "basic" {
		t.Fatalf("expected first declared product to win the tie, got %q", p.Slug)
	}
	if _, ok := c.Match("999", "poster"); ok {
		t.Fatalf("expected no match")
	}
	if p.FrameStyleDefault != StyleNone || p.QuantityBehavior != QuantityUnit || p.CountImages != 1 {
		t.Fatalf("expected defaults applied, got %+v", p)
	}
}

func TestCodesKeepOrderWithoutDuplicates(t *testing.T) {
	c, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	got := strings.Join(c.Codes(), ",")
	if got != "001,810,811" {
		t.Fatalf("expected 001,810,811 got %s", got)
	}
}

func TestFrameLookup(t *testing.T) {
	c, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, ok := c.Frame("basic", "Black"); !ok {
		t.Fatalf("expected case-insensitive style lookup")
	}
	if _, ok := c.Frame("basic", "cherry"); ok {
		t.Fatalf("expected no cherry frame")
	}
}

func TestValidationErrors(t *testing.T) {
	f := File{
		Products: []ProductSpec{
			{Slug: "a", Code: "1", WidthIn: 5, HeightIn: 7, CountImages: 2, FrameStyleDefault: "gold", FrameStylesAllowed: []string{"black"}, ParsingPatterns: []string{"re:("}},
			{Slug: "a", Code: "2", WidthIn: 5, HeightIn: 7, ParsingPatterns: []string{"x"}},
		},
		Frames: []FrameSpec{
			{ProductSlug: "a", Style: "black", AssetPath: "f.png", Openings: []Box{{0, 0, 1.2, 1}}},
			{ProductSlug: "ghost", Style: "black", AssetPath: "g.png"},
		},
	}
	_, err := New(f)
	var cfg *ConfigurationError
	if !errors.As(err, &cfg) {
		t.Fatalf("expected ConfigurationError got %v", err)
	}
	msg := cfg.Error()
	for _, want := range []string{"default style", "bad pattern", "duplicate product slug", "has 1 openings", "outside [0,1]", "unknown product"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("expected %q in %s", want, msg)
		}
	}
}

func TestShippedCatalogIsValid(t *testing.T) {
	c, err := Load("../../config/catalog.yaml")
	if err != nil {
		t.Fatalf("load shipped catalog: %v", err)
	}
	p, ok := c.Match("1020.5", "10x20 TRIO PORTRAIT black digital mat, cherry frame")
	if !ok || p.CountImages != 3 {
		t.Fatalf("expected trio product got %+v", p)
	}
	fr, ok := c.Frame(p.Slug, "cherry")
	if !ok || fr.Absolute == nil || fr.Absolute.Scale != 2 {
		t.Fatalf("expected 2x absolute trio frame got %+v", fr)
	}
	if len(c.Codes()) != 36 {
		t.Fatalf("expected 36 codes got %d", len(c.Codes()))
	}
}

func TestSplitInto(t *testing.T) {
	f := File{Products: []ProductSpec{
		{Slug: "pair", Code: "570", WidthIn: 10, HeightIn: 7, CountImages: 2, QuantityBehavior: QuantitySheet, SplitInto: "single", ParsingPatterns: []string{"570"}},
		{Slug: "single", Code: "571", WidthIn: 5, HeightIn: 7, ParsingPatterns: []string{"571"}},
	}}
	c, err := New(f)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	single, _ := c.Product("single")
	if single.FrameSize() != "5x7" {
		t.Fatalf("expected 5x7 got %s", single.FrameSize())
	}
	f.Products[0].SplitInto = "ghost"
	f.Products = append(f.Products, ProductSpec{Slug: "other", Code: "572", WidthIn: 5, HeightIn: 7, CountImages: 2, QuantityBehavior: QuantitySheet, SplitInto: "pair", ParsingPatterns: []string{"572"}})
	_, err = New(f)
	var cfg *ConfigurationError
	if !errors.As(err, &cfg) {
		t.Fatalf("expected ConfigurationError got %v", err)
	}
	for _, want := range []string{"splits into unknown product \"ghost\"", "must split into a single-print product"} {
		if !strings.Contains(cfg.Error(), want) {
			t.Fatalf("expected %q in %s", want, cfg.Error())
		}
	}
}
