package ocr

import (
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/disintegration/imaging"

	"orderpreview/pkg/correct"
)

func formScreenshot() *image.NRGBA {
	return imaging.New(1680, 1050, color.NRGBA{240, 240, 240, 255})
}

// fakeRecognizer returns canned lines per field, positioned in source pixels
// and converted into the upscaled crop space the extractor hands over.
type fakeRecognizer struct {
	mu      sync.Mutex
	lines   map[correct.FieldKind][]Fragment
	fail    map[correct.FieldKind]error
	calls   int
	cropTop float64
	upscale float64
}

func (f *fakeRecognizer) Recognize(ctx context.Context, img image.Image, field correct.FieldKind) ([]Fragment, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if err := f.fail[field]; err != nil {
		return nil, err
	}
	var out []Fragment
	for _, fr := range f.lines[field] {
		fr.YCenter = (fr.YCenter - f.cropTop) * f.upscale
		out = append(out, fr)
	}
	return out, nil
}

func TestDefaultLayoutMapValid(t *testing.T) {
	if err := DefaultLayoutMap().Validate(); err != nil {
		t.Fatalf("expected default layout to validate, got %v", err)
	}
}

func TestValidateCollectsProblems(t *testing.T) {
	m := DefaultLayoutMap()
	m.Version = ""
	m.Columns = append(m.Columns, ColumnBox{Name: "QTY", X1: 10, Y1: 10, X2: 5, Y2: 20, Field: correct.FieldQty})
	m.Upscale = 0
	err := m.Validate()
	var cfg *ConfigurationError
	if !errors.As(err, &cfg) {
		t.Fatalf("expected ConfigurationError got %v", err)
	}
	if len(cfg.Problems) != 4 {
		t.Fatalf("expected 4 problems got %d: %v", len(cfg.Problems), cfg.Problems)
	}
}

func TestCheckDriftMatchingScreenshot(t *testing.T) {
	if err := DefaultLayoutMap().CheckDrift(formScreenshot()); err != nil {
		t.Fatalf("expected no drift got %v", err)
	}
}

func TestCheckDriftWithinTolerance(t *testing.T) {
	img := imaging.New(1680, 1050, color.NRGBA{215, 220, 255, 255})
	if err := DefaultLayoutMap().CheckDrift(img); err != nil {
		t.Fatalf("expected mean deviation 20 to pass, got %v", err)
	}
}

func TestCheckDriftReportsSentinel(t *testing.T) {
	img := formScreenshot()
	for y := 445; y <= 455; y++ {
		for x := 595; x <= 605; x++ {
			img.Set(x, y, color.NRGBA{20, 20, 20, 255})
		}
	}
	err := DefaultLayoutMap().CheckDrift(img)
	var drift *LayoutDriftError
	if !errors.As(err, &drift) {
		t.Fatalf("expected LayoutDriftError got %v", err)
	}
	if drift.Index != 4 || drift.Sentinel.X != 600 || drift.Sentinel.Y != 450 {
		t.Fatalf("expected sentinel 4 at (600,450) got %d at (%d,%d)", drift.Index, drift.Sentinel.X, drift.Sentinel.Y)
	}
	if drift.Got.R != 20 {
		t.Fatalf("expected sampled red 20 got %d", drift.Got.R)
	}
}

func TestCheckDriftSmallScreenshot(t *testing.T) {
	img := imaging.New(400, 300, color.NRGBA{240, 240, 240, 255})
	var drift *LayoutDriftError
	if err := DefaultLayoutMap().CheckDrift(img); !errors.As(err, &drift) {
		t.Fatalf("expected drift for sentinel outside the image, got %v", err)
	}
}

func col(name string, kind correct.FieldKind) ColumnBox {
	return ColumnBox{Name: name, Field: kind}
}

func TestReconstructRowsAlignsColumns(t *testing.T) {
	cols := []ColumnFragments{
		{Column: col("QTY", correct.FieldQty), Fragments: []Fragment{{Text: "1", YCenter: 100}, {Text: "3", YCenter: 140}}},
		{Column: col("CODE", correct.FieldCode), Fragments: []Fragment{{Text: "810", YCenter: 104}, {Text: "350", YCenter: 138}}},
		{Column: col("IMG", correct.FieldImageCodes), Fragments: []Fragment{{Text: "0033", YCenter: 101}}},
	}
	rows := ReconstructRows(cols, 20)
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows got %d", len(rows))
	}
	code, _ := rows[0].Field(correct.FieldCode)
	if code.Text != "810" {
		t.Fatalf("expected row 1 code 810 got %q", code.Text)
	}
	code, _ = rows[1].Field(correct.FieldCode)
	if code.Text != "350" {
		t.Fatalf("expected row 2 code 350 got %q", code.Text)
	}
	if _, ok := rows[1].Field(correct.FieldImageCodes); ok {
		t.Fatalf("expected row 2 image codes blank")
	}
	if len(rows[1].Warnings) != 1 || rows[1].Warnings[0] != "missing image_codes" {
		t.Fatalf("expected missing image_codes warning got %v", rows[1].Warnings)
	}
}

func TestReconstructRowsUnmatchedFragmentSeedsRow(t *testing.T) {
	cols := []ColumnFragments{
		{Column: col("QTY", correct.FieldQty), Fragments: []Fragment{{Text: "2", YCenter: 100}}},
		{Column: col("CODE", correct.FieldCode), Fragments: []Fragment{{Text: "570", YCenter: 160}}},
	}
	rows := ReconstructRows(cols, 20)
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows got %d", len(rows))
	}
	if _, ok := rows[1].Field(correct.FieldQty); ok {
		t.Fatalf("expected second row quantity blank")
	}
	if rows[1].Warnings[0] != "missing qty" {
		t.Fatalf("unexpected warnings %v", rows[1].Warnings)
	}
}

func TestReconstructRowsToleranceInvariant(t *testing.T) {
	cols := []ColumnFragments{
		{Column: col("QTY", correct.FieldQty), Fragments: []Fragment{{Text: "1", YCenter: 100}, {Text: "1", YCenter: 115}}},
		{Column: col("CODE", correct.FieldCode), Fragments: []Fragment{{Text: "200", YCenter: 112}, {Text: "810", YCenter: 131}}},
		{Column: col("DESC", correct.FieldDescription), Fragments: []Fragment{{Text: "a", YCenter: 119}, {Text: "b", YCenter: 122}}},
	}
	const tol = 20
	rows := ReconstructRows(cols, tol)
	total := 0
	for _, r := range rows {
		var ys []float64
		for _, c := range r.Cells {
			if c.Present {
				ys = append(ys, c.YCenter)
				total++
			}
		}
		for _, a := range ys {
			for _, b := range ys {
				if a-b > tol {
					t.Fatalf("row %d spans %.0f..%.0f beyond tolerance", r.Index, b, a)
				}
			}
		}
	}
	if total != 6 {
		t.Fatalf("expected every fragment kept, got %d", total)
	}
}

func TestReconstructRowsDeterministic(t *testing.T) {
	cols := []ColumnFragments{
		{Column: col("QTY", correct.FieldQty), Fragments: []Fragment{{Text: "1", YCenter: 100}, {Text: "2", YCenter: 100}}},
		{Column: col("CODE", correct.FieldCode), Fragments: []Fragment{{Text: "810", YCenter: 105}}},
	}
	first := ReconstructRows(cols, 20)
	for i := 0; i < 10; i++ {
		again := ReconstructRows(cols, 20)
		if len(again) != len(first) {
			t.Fatalf("row count changed between runs")
		}
		for j := range again {
			q1, _ := first[j].Field(correct.FieldQty)
			q2, _ := again[j].Field(correct.FieldQty)
			if q1.Text != q2.Text {
				t.Fatalf("assignment changed between runs")
			}
		}
	}
	c, _ := first[0].Field(correct.FieldCode)
	q, _ := first[0].Field(correct.FieldQty)
	if q.Text != "1" || c.Text != "810" {
		t.Fatalf("expected code to join the earlier row, got qty %q code %q", q.Text, c.Text)
	}
}

func newFake() *fakeRecognizer {
	return &fakeRecognizer{cropTop: 428, upscale: 3, lines: map[correct.FieldKind][]Fragment{
		correct.FieldQty:         {{Text: "1", YCenter: 450, Confidence: 91}, {Text: "3", YCenter: 485, Confidence: 88}},
		correct.FieldCode:        {{Text: "810", YCenter: 452, Confidence: 90}, {Text: "1020.5", YCenter: 484, Confidence: 85}},
		correct.FieldDescription: {{Text: "8x10  BASIC", YCenter: 451, Confidence: 80}, {Text: "10x20 TRIO PORTRAIT", YCenter: 486, Confidence: 80}},
		correct.FieldImageCodes:  {{Text: "0033", YCenter: 450, Confidence: 93}, {Text: "0033, 0044, 0039", YCenter: 485, Confidence: 90}},
	}}
}

func TestExtractRows(t *testing.T) {
	dir := t.TempDir()
	fake := newFake()
	ex := &Extractor{Layout: DefaultLayoutMap(), Recognizer: fake, DebugDir: dir, LatencyTarget: time.Minute}
	rows, stats, err := ex.ExtractRows(context.Background(), formScreenshot())
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows got %d", len(rows))
	}
	img, _ := rows[1].Field(correct.FieldImageCodes)
	if img.Text != "0033, 0044, 0039" {
		t.Fatalf("unexpected image codes %q", img.Text)
	}
	desc, _ := rows[0].Field(correct.FieldDescription)
	if desc.Text != "8x10 BASIC" {
		t.Fatalf("expected normalized description got %q", desc.Text)
	}
	if rows[0].YPosition < 449 || rows[0].YPosition > 453 {
		t.Fatalf("expected row y near 450 got %.1f", rows[0].YPosition)
	}
	if len(stats.Columns) != 4 || stats.Exceeded {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if fake.calls != 4 {
		t.Fatalf("expected 4 recognizer calls got %d", fake.calls)
	}
	if _, err := os.Stat(filepath.Join(dir, "debug_qty_processed.png")); err != nil {
		t.Fatalf("expected debug crop: %v", err)
	}
}

func TestExtractRowsColumnFailureIsWarning(t *testing.T) {
	fake := newFake()
	fake.fail = map[correct.FieldKind]error{correct.FieldImageCodes: context.DeadlineExceeded}
	ex := &Extractor{Layout: DefaultLayoutMap(), Recognizer: fake, LatencyTarget: time.Minute}
	rows, stats, err := ex.ExtractRows(context.Background(), formScreenshot())
	if err != nil {
		t.Fatalf("expected no error got %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected rows to survive a failed column, got %d", len(rows))
	}
	if len(stats.Warnings) != 1 || !strings.Contains(stats.Warnings[0], "IMG") {
		t.Fatalf("expected one column warning got %v", stats.Warnings)
	}
	if rows[0].Warnings[0] != "missing image_codes" {
		t.Fatalf("unexpected row warnings %v", rows[0].Warnings)
	}
}

func TestExtractRowsLatencyOnlyWarns(t *testing.T) {
	ex := &Extractor{Layout: DefaultLayoutMap(), Recognizer: newFake(), LatencyTarget: time.Nanosecond}
	_, stats, err := ex.ExtractRows(context.Background(), formScreenshot())
	if err != nil {
		t.Fatalf("expected latency overrun to be non-fatal, got %v", err)
	}
	if !stats.Exceeded || len(stats.Warnings) == 0 {
		t.Fatalf("expected exceeded flag and warning got %+v", stats)
	}
}

func TestExtractRowsDriftAborts(t *testing.T) {
	fake := newFake()
	ex := &Extractor{Layout: DefaultLayoutMap(), Recognizer: fake}
	img := imaging.New(1680, 1050, color.NRGBA{40, 40, 40, 255})
	_, _, err := ex.ExtractRows(context.Background(), img)
	var drift *LayoutDriftError
	if !errors.As(err, &drift) {
		t.Fatalf("expected drift error got %v", err)
	}
	if fake.calls != 0 {
		t.Fatalf("expected no recognition after drift, got %d calls", fake.calls)
	}
}

func TestWhitelistsAdmitConfusableLetters(t *testing.T) {
	c := correct.New([]string{"810"}, correct.Options{})
	for _, field := range []correct.FieldKind{correct.FieldQty, correct.FieldCode, correct.FieldImageCodes} {
		wl := whitelists[field]
		for _, r := range "OlISB" {
			if !strings.ContainsRune(wl, r) {
				t.Fatalf("%s whitelist %q lacks %q", field, wl, r)
			}
		}
	}
	if strings.ContainsRune(whitelists[correct.FieldImageCodes], '|') {
		t.Fatalf("image code whitelist must not admit the separator")
	}
	// a letter the whitelist now lets through reaches the corrector's table
	if res := c.Correct(correct.FieldQty, "l2", 80); res.Text != "12" {
		t.Fatalf("expected l2 read as 12 got %q", res.Text)
	}
}

func TestParseFrameLines(t *testing.T) {
	got := ParseFrameLines([]string{"2 14 8 x 10 Black", "1 15 8x10 black", "3 2 16x20 cherry", "noise"})
	if got["8x10"]["black"] != 3 {
		t.Fatalf("expected 3 black 8x10 got %v", got)
	}
	if got["16x20"]["cherry"] != 3 {
		t.Fatalf("expected 3 cherry 16x20 got %v", got)
	}
}

func TestParseRetouchLines(t *testing.T) {
	items, artist := ParseRetouchLines([]string{"2 Artist Brush Strokes 8x10", "0 Artist brush strokes", "Basic retouch"})
	if !artist {
		t.Fatalf("expected artist series flag")
	}
	if len(items) != 1 || items[0].Quantity != 2 {
		t.Fatalf("unexpected retouch items %v", items)
	}
}

func TestCloseGapsJoinsStrokesWithoutThickening(t *testing.T) {
	img := imaging.New(12, 12, color.NRGBA{255, 255, 255, 255})
	black := color.NRGBA{0, 0, 0, 255}
	for y := 1; y <= 6; y++ {
		img.Set(2, y, black)
		img.Set(4, y, black)
	}
	img.Set(9, 9, black)
	out := closeGaps(img, 1)
	isBlack := func(x, y int) bool {
		r, g, b, _ := out.At(x, y).RGBA()
		return r+g+b == 0
	}
	for y := 2; y <= 5; y++ {
		if !isBlack(3, y) {
			t.Fatalf("expected gap at (3,%d) closed", y)
		}
	}
	if isBlack(1, 3) || isBlack(5, 3) {
		t.Fatalf("expected strokes not thickened")
	}
	if !isBlack(9, 9) || isBlack(10, 9) || isBlack(9, 10) {
		t.Fatalf("expected isolated dot preserved at one pixel")
	}
	if isBlack(7, 2) {
		t.Fatalf("expected background to stay white")
	}
}
