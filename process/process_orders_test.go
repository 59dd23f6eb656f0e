package main

import (
	"context"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/disintegration/imaging"

	"orderpreview/pkg/config"
	"orderpreview/pkg/correct"
	"orderpreview/pkg/ocr"
	"orderpreview/pkg/pipeline"
)

type noopRecognizer struct{}

func (noopRecognizer) Recognize(ctx context.Context, img image.Image, field correct.FieldKind) ([]ocr.Fragment, error) {
	return nil, nil
}

func newTestProcessor(t *testing.T, dir string, dryRun bool) *processor {
	t.Helper()
	reg, err := config.LoadRegistry("../config/catalog.yaml")
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	base := t.TempDir()
	settings := config.Settings{
		WorkDir:       filepath.Join(base, "work"),
		OutputDir:     filepath.Join(base, "out"),
		AssetsDir:     filepath.Join(base, "assets"),
		CanvasWidth:   640,
		CanvasHeight:  480,
		PxPerInch:     10,
		ColumnTimeout: time.Second,
		LocateTimeout: time.Second,
		LatencyTarget: time.Minute,
	}
	return &processor{
		svc:    pipeline.New(settings, reg, noopRecognizer{}),
		dir:    dir,
		root:   t.TempDir(),
		dryRun: dryRun,
		state:  newPreloadState(),
	}
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestIsSupportedExt(t *testing.T) {
	cases := map[string]bool{
		"order.png":  true,
		"ORDER.JPG":  true,
		"order.tiff": true,
		"order.tsv":  true,
		"order.gif":  false,
		"notes.txt":  false,
		"noext":      false,
	}
	for name, want := range cases {
		if got := isSupportedExt(name); got != want {
			t.Fatalf("isSupportedExt(%q) expected %v got %v", name, want, got)
		}
	}
}

func TestListImageFilesSortedAndFiltered(t *testing.T) {
	dir := t.TempDir()
	for _, n := range []string{"b.png", "a.tsv", "c.gif", "readme.md"} {
		writeFile(t, filepath.Join(dir, n), []byte("x"))
	}
	if err := os.Mkdir(filepath.Join(dir, "processed.png"), 0o755); err != nil {
		t.Fatal(err)
	}
	got := listImageFiles(dir)
	if len(got) != 2 || got[0] != "a.tsv" || got[1] != "b.png" {
		t.Fatalf("expected [a.tsv b.png] got %v", got)
	}
	if listImageFiles(filepath.Join(dir, "missing")) != nil {
		t.Fatalf("expected nil for missing dir")
	}
}

func TestEffectiveWorkers(t *testing.T) {
	if effectiveWorkers(3) != 3 {
		t.Fatalf("expected explicit worker count to be kept")
	}
	if effectiveWorkers(0) < 1 {
		t.Fatalf("expected at least one worker")
	}
}

func TestWorkerPoolRendersAndArchives(t *testing.T) {
	dir := t.TempDir()
	p := newTestProcessor(t, dir, false)
	writeFile(t, filepath.Join(dir, "one.tsv"), []byte("Qty R1\t1\nProd R1\t810\nImg # R1\t1001\n"))
	writeFile(t, filepath.Join(dir, "two.tsv"), []byte("Qty R1\t2\nProd R1\t1013\n"))
	writeFile(t, filepath.Join(dir, "broken.tsv"), []byte("not a dump\n"))

	runWorkerPool(context.Background(), p, listImageFiles(dir), 2)

	for _, n := range []string{"one.tsv", "two.tsv"} {
		if _, err := os.Stat(filepath.Join(dir, "processed", n)); err != nil {
			t.Fatalf("expected %s archived: %v", n, err)
		}
		if !p.state.isDone(n) {
			t.Fatalf("expected %s marked done", n)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "broken.tsv")); err != nil {
		t.Fatalf("expected failed input left in place: %v", err)
	}
	previews, _ := filepath.Glob(filepath.Join(p.svc.Settings.OutputDir, "*.jpg"))
	if len(previews) != 2 {
		t.Fatalf("expected 2 previews got %d", len(previews))
	}
}

func TestDryRunLeavesInputs(t *testing.T) {
	dir := t.TempDir()
	p := newTestProcessor(t, dir, true)
	writeFile(t, filepath.Join(dir, "one.tsv"), []byte("Qty R1\t1\nProd R1\t810\n"))
	p.processSingleFile(context.Background(), "one.tsv")
	if _, err := os.Stat(filepath.Join(dir, "one.tsv")); err != nil {
		t.Fatalf("expected dry-run to keep input: %v", err)
	}
	// a second pass is skipped
	p.processSingleFile(context.Background(), "one.tsv")
	previews, _ := filepath.Glob(filepath.Join(p.svc.Settings.OutputDir, "*.jpg"))
	if len(previews) != 1 {
		t.Fatalf("expected 1 preview got %d", len(previews))
	}
}

func TestMoveToProcessedDownscalesLargeImages(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "big.png")
	img := image.NewNRGBA(image.Rect(0, 0, 900, 900))
	for y := 0; y < 900; y++ {
		for x := 0; x < 900; x++ {
			img.Set(x, y, color.NRGBA{uint8(x * 7), uint8(y * 13), uint8(x ^ y), 255})
		}
	}
	if err := imaging.Save(img, src); err != nil {
		t.Fatal(err)
	}
	fi, _ := os.Stat(src)
	if err := moveToProcessed(src, dir, "big.png"); err != nil {
		t.Fatalf("move: %v", err)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Fatalf("expected source removed")
	}
	out, err := imaging.Open(filepath.Join(dir, "processed", "big.png"))
	if err != nil {
		t.Fatalf("archived image unreadable: %v", err)
	}
	if fi.Size() > 1_000_000 && out.Bounds().Dx() >= 900 {
		t.Fatalf("expected large image downscaled got %dx%d", out.Bounds().Dx(), out.Bounds().Dy())
	}
}
