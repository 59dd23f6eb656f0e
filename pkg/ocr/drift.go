package ocr

import (
	"image"
	"image/color"
	"math"

	"gonum.org/v1/gonum/stat"
)

// CheckDrift samples every sentinel and fails on the first one whose colour
// deviates from the reference by more than the tolerance. A sentinel that
// falls outside the screenshot counts as drift.
func (m LayoutMap) CheckDrift(img image.Image) error {
	b := img.Bounds()
	for i, s := range m.Sentinels {
		want := s.Expected()
		pt := image.Pt(b.Min.X+s.X, b.Min.Y+s.Y)
		if !pt.In(b) {
			return &LayoutDriftError{Version: m.Version, Sentinel: s, Index: i, Want: want, Delta: math.Inf(1)}
		}
		got := samplePatch(img, pt)
		delta := colorDelta(got, want)
		if delta > m.SentinelTolerance {
			return &LayoutDriftError{Version: m.Version, Sentinel: s, Index: i, Got: got, Want: want, Delta: delta}
		}
	}
	return nil
}

// colorDelta is the mean absolute channel difference.
func colorDelta(a, b color.NRGBA) float64 {
	return (math.Abs(float64(a.R)-float64(b.R)) +
		math.Abs(float64(a.G)-float64(b.G)) +
		math.Abs(float64(a.B)-float64(b.B))) / 3
}

// samplePatch averages the 3x3 neighbourhood of pt, clipped to the image.
func samplePatch(img image.Image, pt image.Point) color.NRGBA {
	b := img.Bounds()
	var rs, gs, bs []float64
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			p := image.Pt(pt.X+dx, pt.Y+dy)
			if !p.In(b) {
				continue
			}
			c := color.NRGBAModel.Convert(img.At(p.X, p.Y)).(color.NRGBA)
			rs = append(rs, float64(c.R))
			gs = append(gs, float64(c.G))
			bs = append(bs, float64(c.B))
		}
	}
	return color.NRGBA{
		R: uint8(math.Round(stat.Mean(rs, nil))),
		G: uint8(math.Round(stat.Mean(gs, nil))),
		B: uint8(math.Round(stat.Mean(bs, nil))),
		A: 255,
	}
}
