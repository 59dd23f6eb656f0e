package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"orderpreview/models"
)

func TestMonthBounds(t *testing.T) {
	start, end, err := MonthBounds("2025-12")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !start.Equal(time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)) || !end.Equal(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected bounds %s %s", start, end)
	}
	if _, _, err := MonthBounds("12/2025"); err == nil {
		t.Fatalf("expected error for bad month")
	}
}

func TestSummarize(t *testing.T) {
	runs := []models.PreviewRun{
		{Status: "ok", ElapsedMS: 100},
		{Status: "ok", ElapsedMS: 300, StatsExceeded: true},
		{Status: "failed", ErrorKind: "layout_drift", ElapsedMS: 20},
	}
	warnings := []models.RunWarning{{Kind: "missing_image"}, {Kind: "missing_image"}, {Kind: "unknown_product"}}
	s := Summarize("2025-08", runs, warnings)
	if s.Total != 3 || s.OK != 2 || s.Failed != 1 || s.Exceeded != 1 {
		t.Fatalf("unexpected summary %+v", s)
	}
	if s.AvgElapsedMS != 140 {
		t.Fatalf("expected avg 140 got %.1f", s.AvgElapsedMS)
	}
	if s.ByErrorKind["layout_drift"] != 1 || s.ByWarning["missing_image"] != 2 {
		t.Fatalf("unexpected counts %+v %+v", s.ByErrorKind, s.ByWarning)
	}

	var buf bytes.Buffer
	s.Print(&buf)
	out := buf.String()
	if !strings.Contains(out, "runs=3 ok=2 failed=1") {
		t.Fatalf("unexpected report %q", out)
	}
	if strings.Index(out, "missing_image") > strings.Index(out, "unknown_product") {
		t.Fatalf("expected most frequent warning first: %q", out)
	}
}
