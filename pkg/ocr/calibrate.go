package ocr

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
)

// SentinelReading is one sentinel sampled from a screenshot.
type SentinelReading struct {
	Sentinel Sentinel    `json:"sentinel"`
	Got      color.NRGBA `json:"got"`
	Delta    float64     `json:"delta"`
	InBounds bool        `json:"in_bounds"`
}

// OK reports whether the reading is within tolerance.
func (r SentinelReading) OK(tolerance float64) bool {
	return r.InBounds && r.Delta <= tolerance
}

// SampleSentinels reads every sentinel without stopping at the first drift.
func (m LayoutMap) SampleSentinels(img image.Image) []SentinelReading {
	b := img.Bounds()
	out := make([]SentinelReading, len(m.Sentinels))
	for i, s := range m.Sentinels {
		out[i] = SentinelReading{Sentinel: s, Delta: math.Inf(1)}
		pt := image.Pt(b.Min.X+s.X, b.Min.Y+s.Y)
		if !pt.In(b) {
			continue
		}
		got := samplePatch(img, pt)
		out[i].Got = got
		out[i].Delta = colorDelta(got, s.Expected())
		out[i].InBounds = true
	}
	return out
}

// Recalibrate returns a copy of m whose sentinel reference colours are taken
// from img, tagged with version. Box positions are kept.
func (m LayoutMap) Recalibrate(img image.Image, version string) (LayoutMap, error) {
	out := m
	out.Version = version
	out.Sentinels = make([]Sentinel, len(m.Sentinels))
	for i, r := range m.SampleSentinels(img) {
		if !r.InBounds {
			return LayoutMap{}, fmt.Errorf("sentinel %d at (%d,%d) lies outside the screenshot", i, r.Sentinel.X, r.Sentinel.Y)
		}
		s := r.Sentinel
		s.R, s.G, s.B = r.Got.R, r.Got.G, r.Got.B
		out.Sentinels[i] = s
	}
	if err := out.Validate(); err != nil {
		return LayoutMap{}, err
	}
	return out, nil
}

// DumpCrops writes the raw and the OCR-prepared crop of every column and
// region into dir and returns the written paths.
func (m LayoutMap) DumpCrops(img image.Image, dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	upscale := m.Upscale
	if upscale < 1 {
		upscale = 1
	}
	boxes := map[string]image.Rectangle{}
	var names []string
	for _, c := range m.Columns {
		boxes[c.Name] = c.Rect()
		names = append(names, c.Name)
	}
	for _, r := range m.ROIs {
		boxes[r.Name] = r.Rect()
		names = append(names, r.Name)
	}
	var written []string
	for _, name := range names {
		r := paddedRect(boxes[name].Add(img.Bounds().Min), m.PadX, m.PadY, img.Bounds())
		if r.Empty() {
			return written, fmt.Errorf("region %s lies outside the screenshot", name)
		}
		base := strings.ToLower(name)
		raw := filepath.Join(dir, "calib_"+base+"_raw.png")
		if err := imaging.Save(imaging.Crop(img, r), raw); err != nil {
			return written, err
		}
		prepared := filepath.Join(dir, "calib_"+base+"_processed.png")
		if err := imaging.Save(prepareCrop(img, r, upscale), prepared); err != nil {
			return written, err
		}
		written = append(written, raw, prepared)
	}
	return written, nil
}
