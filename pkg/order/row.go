package order

import (
	"strconv"
	"strings"

	"orderpreview/pkg/correct"
	"orderpreview/pkg/ocr"
)

// RowRecord is one corrected order line.
type RowRecord struct {
	Index       int      `json:"index"`
	Quantity    int      `json:"qty"`
	HasQuantity bool     `json:"has_qty,omitempty"`
	Code        string   `json:"code"`
	Description string   `json:"description"`
	ImageCodes  []string `json:"image_codes"`
	YPosition   float64  `json:"y_position"`
	Confidence  float64  `json:"confidence"`
	Warnings    []string `json:"warnings,omitempty"`
	Artist      bool     `json:"artist_series,omitempty"` // marked for the artist finish
}

// FromRaw corrects every field of a reconstructed row and records each
// correction in audit (which may be nil).
func FromRaw(raw ocr.RawRow, c *correct.Corrector, audit *correct.Audit) RowRecord {
	rec := RowRecord{
		Index:      raw.Index,
		YPosition:  raw.YPosition,
		Confidence: raw.Confidence,
		Warnings:   append([]string(nil), raw.Warnings...),
	}
	fix := func(kind correct.FieldKind) string {
		cell, _ := raw.Field(kind)
		res := c.Correct(kind, cell.Text, cell.Confidence)
		if audit != nil {
			audit.Record(raw.Index, kind, cell.Text, res)
		}
		if res.Warning != "" {
			rec.Warnings = append(rec.Warnings, res.Warning)
		}
		return res.Text
	}
	if cell, ok := raw.Field(correct.FieldQty); ok && strings.TrimSpace(cell.Text) != "" {
		rec.HasQuantity = true
	}
	rec.Quantity, _ = strconv.Atoi(fix(correct.FieldQty))
	rec.Code = fix(correct.FieldCode)
	rec.Description = fix(correct.FieldDescription)
	rec.ImageCodes = correct.SplitImageCodes(fix(correct.FieldImageCodes))
	return rec
}

// Empty reports whether the row carries no order data at all. A quantity read
// on its own still counts as data so the row is reported instead of lost.
func (r RowRecord) Empty() bool {
	return !r.HasQuantity && r.Code == "" && r.Description == "" && len(r.ImageCodes) == 0
}
