package ocr

import (
	"image/color"
	"os"
	"testing"

	"github.com/disintegration/imaging"
)

func TestSampleSentinelsReadsAll(t *testing.T) {
	img := imaging.New(500, 500, color.NRGBA{240, 240, 240, 255})
	readings := DefaultLayoutMap().SampleSentinels(img)
	if len(readings) != 5 {
		t.Fatalf("expected 5 readings got %d", len(readings))
	}
	for i, r := range readings {
		in := r.Sentinel.X < 500
		if r.InBounds != in {
			t.Fatalf("reading %d expected in bounds %v got %v", i, in, r.InBounds)
		}
		if in && !r.OK(30) {
			t.Fatalf("reading %d expected within tolerance got delta %.1f", i, r.Delta)
		}
		if !in && r.OK(30) {
			t.Fatalf("reading %d out of bounds must not pass", i)
		}
	}
}

func TestRecalibrateTakesColours(t *testing.T) {
	img := imaging.New(1680, 1050, color.NRGBA{190, 200, 210, 255})
	m := DefaultLayoutMap()
	if err := m.CheckDrift(img); err == nil {
		t.Fatalf("expected drift before recalibration")
	}
	next, err := m.Recalibrate(img, "FileOrder_v2")
	if err != nil {
		t.Fatalf("recalibrate: %v", err)
	}
	if next.Version != "FileOrder_v2" || next.Sentinels[0].B != 210 {
		t.Fatalf("unexpected recalibrated map %+v", next.Sentinels[0])
	}
	if err := next.CheckDrift(img); err != nil {
		t.Fatalf("expected no drift after recalibration got %v", err)
	}
	if m.Sentinels[0].B != 240 {
		t.Fatalf("original map must not change")
	}
	if _, err := m.Recalibrate(imaging.New(100, 100, color.NRGBA{A: 255}), "x"); err == nil {
		t.Fatalf("expected error for sentinels outside the screenshot")
	}
}

func TestDumpCrops(t *testing.T) {
	dir := t.TempDir()
	m := DefaultLayoutMap()
	paths, err := m.DumpCrops(formScreenshot(), dir)
	if err != nil {
		t.Fatalf("dump: %v", err)
	}
	want := 2 * (len(m.Columns) + len(m.ROIs))
	if len(paths) != want {
		t.Fatalf("expected %d crops got %d", want, len(paths))
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			t.Fatalf("missing crop %s", p)
		}
	}
	raw, err := imaging.Open(paths[0])
	if err != nil {
		t.Fatal(err)
	}
	// QTY box 40x445 plus padding 4/2 on each side
	if raw.Bounds().Dx() != 48 || raw.Bounds().Dy() != 449 {
		t.Fatalf("unexpected raw crop size %v", raw.Bounds())
	}
}
