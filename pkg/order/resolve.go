package order

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"orderpreview/pkg/catalog"
)

// OrderRow is a row bound to its product and frame.
type OrderRow struct {
	Row        RowRecord           `json:"row"`
	Product    catalog.ProductSpec `json:"product"`
	FrameStyle string              `json:"frame_style"`
	Frame      *catalog.FrameSpec  `json:"frame,omitempty"`
	Quantity   int                 `json:"qty"`
	Banner     string              `json:"banner,omitempty"`
	Warnings   []string            `json:"warnings,omitempty"`
}

// Issue is a row excluded from layout.
type Issue struct {
	Row  int    `json:"row"`
	Kind string `json:"kind"`
	Err  error  `json:"-"`
}

const (
	IssueUnknownProduct = "unknown_product"
	IssueFrameMissing   = "frame_missing"
)

// Resolve binds a row to the first matching product and picks its frame style.
func Resolve(row RowRecord, cat *catalog.Catalog) (OrderRow, error) {
	p, ok := cat.Match(row.Code, row.Description)
	if !ok {
		return OrderRow{}, &UnknownProductError{Row: row.Index, Code: row.Code, Description: row.Description}
	}
	out := OrderRow{
		Row:        row,
		Product:    p,
		FrameStyle: frameStyle(p, row.Description),
		Quantity:   row.Quantity,
		Warnings:   append([]string(nil), row.Warnings...),
	}
	if out.Quantity < 1 {
		out.Quantity = 1
	}
	if out.FrameStyle != catalog.StyleNone {
		fr, ok := cat.Frame(p.Slug, out.FrameStyle)
		if !ok {
			return OrderRow{}, &FrameMissingError{Row: row.Index, Slug: p.Slug, Style: out.FrameStyle}
		}
		out.Frame = &fr
	}
	n := len(row.ImageCodes)
	switch {
	case n == 0:
		out.Warnings = append(out.Warnings, "no image codes")
	case p.QuantityBehavior == catalog.QuantityUnit && n != p.CountImages:
		out.Warnings = append(out.Warnings, fmt.Sprintf("%s expects %d images, found %d", p.Slug, p.CountImages, n))
	case p.QuantityBehavior == catalog.QuantitySheet && n > p.CountImages:
		out.Warnings = append(out.Warnings, fmt.Sprintf("%s holds %d images, %d given", p.Slug, p.CountImages, n))
	}
	return out, nil
}

// ResolveAll resolves every non-empty row. A failing row is reported as an
// issue and left out; the others continue.
func ResolveAll(rows []RowRecord, cat *catalog.Catalog) ([]OrderRow, []Issue) {
	var resolved []OrderRow
	var issues []Issue
	for _, r := range rows {
		if r.Empty() {
			continue
		}
		or, err := Resolve(r, cat)
		if err != nil {
			kind := IssueUnknownProduct
			var fm *FrameMissingError
			if errors.As(err, &fm) {
				kind = IssueFrameMissing
			}
			issues = append(issues, Issue{Row: r.Index, Kind: kind, Err: err})
			continue
		}
		resolved = append(resolved, or)
	}
	return resolved, issues
}

// frameStyle prefers an allowed style named right before "frame", then any
// allowed style mentioned as a word, then the product default.
func frameStyle(p catalog.ProductSpec, description string) string {
	desc := " " + strings.Join(words(description), " ") + " "
	var candidates []string
	for _, s := range p.FrameStylesAllowed {
		if w := strings.Join(words(s), " "); w != "" && w != catalog.StyleNone {
			candidates = append(candidates, w)
		}
	}
	for _, s := range candidates {
		if strings.Contains(desc, " "+s+" frame ") {
			return s
		}
	}
	for _, s := range candidates {
		if strings.Contains(desc, " "+s+" ") {
			return s
		}
	}
	return strings.ToLower(p.FrameStyleDefault)
}

// words lowercases s and splits it on anything that is not a letter or digit.
func words(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
