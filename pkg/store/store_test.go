package store

import (
	"errors"
	"strings"
	"testing"
	"time"

	"orderpreview/pkg/correct"
	"orderpreview/pkg/ocr"
	"orderpreview/pkg/order"
	"orderpreview/pkg/pipeline"
)

func TestRunModelFlattensDiagnostics(t *testing.T) {
	resp := &pipeline.Response{
		ID:            "run-1",
		Source:        "screenshot",
		Input:         "order.png",
		LayoutVersion: "v1",
		Rows:          []order.RowRecord{{Index: 1}, {Index: 2}},
		Warnings: []pipeline.RowWarning{
			{Row: 2, Kind: pipeline.WarnMissingImage, Message: "image 0039: not found"},
		},
		Corrections: []correct.Entry{
			{Row: 1, Field: correct.FieldCode, Original: "8lO", Corrected: "810", Applied: true},
		},
		Timings: []pipeline.StageTiming{{Stage: "extract", Elapsed: 40 * time.Millisecond}},
		Stats: ocr.Stats{Columns: map[string]time.Duration{
			"qty":  5 * time.Millisecond,
			"code": 7 * time.Millisecond,
		}},
	}
	run := RunModel(pipeline.Diagnostics{Response: resp, Started: time.Now()})
	if run.Status != "ok" || run.RowCount != 2 || run.WarningCount != 1 {
		t.Fatalf("unexpected run %+v", run)
	}
	if len(run.Corrections) != 1 || run.Corrections[0].Field != "code" || !run.Corrections[0].Applied {
		t.Fatalf("unexpected corrections %+v", run.Corrections)
	}
	if len(run.Timings) != 3 {
		t.Fatalf("expected 3 timings got %d", len(run.Timings))
	}
	if run.Timings[1].Stage != "ocr column code" || run.Timings[2].Stage != "ocr column qty" {
		t.Fatalf("column timings not sorted: %+v", run.Timings)
	}
}

func TestRunModelFailure(t *testing.T) {
	resp := &pipeline.Response{ID: "run-2", Source: "tsv"}
	long := strings.Repeat("é", 2000)
	run := RunModel(pipeline.Diagnostics{Response: resp, Started: time.Now(), Err: errors.New(long), Kind: pipeline.KindInternal})
	if run.Status != "failed" || run.ErrorKind != pipeline.KindInternal {
		t.Fatalf("unexpected failure run %+v", run)
	}
	if n := len([]rune(run.Error)); n != 1024 {
		t.Fatalf("expected error truncated to 1024 runes got %d", n)
	}
}

func TestOpenWithoutDSN(t *testing.T) {
	if _, err := Open("", true); !errors.Is(err, ErrNoDSN) {
		t.Fatalf("expected ErrNoDSN got %v", err)
	}
}
