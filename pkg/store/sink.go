package store

import (
	"context"
	"sort"
	"time"

	"orderpreview/models"
	"orderpreview/pkg/pipeline"

	"gorm.io/gorm"
)

// Sink appends run diagnostics to postgres.
type Sink struct {
	DB *gorm.DB
}

func (s Sink) Record(ctx context.Context, d pipeline.Diagnostics) error {
	run := RunModel(d)
	return s.DB.WithContext(context.WithoutCancel(ctx)).Create(&run).Error
}

// RunModel flattens diagnostics into the run row and its children.
func RunModel(d pipeline.Diagnostics) models.PreviewRun {
	resp := d.Response
	run := models.PreviewRun{
		ID:            resp.ID,
		Source:        resp.Source,
		Input:         resp.Input,
		LayoutVersion: resp.LayoutVersion,
		Status:        "ok",
		RowCount:      len(resp.Rows),
		PlacedCount:   len(resp.Placed),
		WarningCount:  len(resp.Warnings),
		PreviewPath:   resp.PreviewPath,
		WorkDir:       resp.WorkDir,
		ElapsedMS:     time.Since(d.Started).Milliseconds(),
		StatsExceeded: resp.Stats.Exceeded,
	}
	if d.Err != nil {
		run.Status = "failed"
		run.ErrorKind = d.Kind
		run.Error = truncate(d.Err.Error(), 1024)
	}
	for _, w := range resp.Warnings {
		run.Warnings = append(run.Warnings, models.RunWarning{Row: w.Row, Kind: w.Kind, Message: truncate(w.Message, 1024)})
	}
	for _, c := range resp.Corrections {
		run.Corrections = append(run.Corrections, models.CorrectionEntry{
			Row:       c.Row,
			Field:     string(c.Field),
			Original:  truncate(c.Original, 255),
			Corrected: truncate(c.Corrected, 255),
			Applied:   c.Applied,
			Warning:   truncate(c.Warning, 512),
		})
	}
	for _, t := range resp.Timings {
		run.Timings = append(run.Timings, models.StageTiming{Stage: t.Stage, ElapsedMS: t.Elapsed.Milliseconds()})
	}
	cols := make([]string, 0, len(resp.Stats.Columns))
	for col := range resp.Stats.Columns {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	for _, col := range cols {
		run.Timings = append(run.Timings, models.StageTiming{Stage: "ocr column " + col, ElapsedMS: resp.Stats.Columns[col].Milliseconds()})
	}
	return run
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
