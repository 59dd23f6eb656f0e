package ocr

import (
	"context"
	"fmt"
	"image"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"golang.org/x/sync/errgroup"

	"orderpreview/pkg/correct"
)

const (
	DefaultColumnTimeout = 5 * time.Second
	DefaultLatencyTarget = time.Second
)

// Stats reports how long extraction took per column.
type Stats struct {
	Columns       map[string]time.Duration `json:"columns"`
	Total         time.Duration            `json:"total"`
	LatencyTarget time.Duration            `json:"latency_target"`
	Exceeded      bool                     `json:"exceeded"`
	Warnings      []string                 `json:"warnings,omitempty"`
}

// Extractor runs column isolated OCR against one layout map.
type Extractor struct {
	Layout        LayoutMap
	Recognizer    Recognizer
	ColumnTimeout time.Duration
	LatencyTarget time.Duration
	// DebugDir receives the processed crops when set.
	DebugDir string
	Verbose  bool
}

type regionResult struct {
	frags   []Fragment
	elapsed time.Duration
	warning string
}

// ExtractRows validates the screenshot against the layout sentinels, recognizes
// every column concurrently and rebuilds the table rows. Only drift aborts;
// a failed column turns into a warning and blank cells.
func (e *Extractor) ExtractRows(ctx context.Context, img image.Image) ([]RawRow, Stats, error) {
	start := time.Now()
	stats := Stats{Columns: map[string]time.Duration{}, LatencyTarget: e.latencyTarget()}
	if e.Recognizer == nil {
		return nil, stats, ErrRecognizerUnavailable
	}
	if err := e.Layout.CheckDrift(img); err != nil {
		return nil, stats, err
	}

	results := make([]regionResult, len(e.Layout.Columns))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(len(e.Layout.Columns))
	for i, col := range e.Layout.Columns {
		i, col := i, col
		g.Go(func() error {
			results[i] = e.recognizeRegion(gctx, img, col.Name, col.Rect(), col.Field)
			return nil
		})
	}
	_ = g.Wait()

	columns := make([]ColumnFragments, len(e.Layout.Columns))
	for i, col := range e.Layout.Columns {
		columns[i] = ColumnFragments{Column: col, Fragments: results[i].frags}
		stats.Columns[col.Name] = results[i].elapsed
		if results[i].warning != "" {
			stats.Warnings = append(stats.Warnings, results[i].warning)
		}
		if e.Verbose {
			log.Printf("OCR COLUMN %s lines=%d elapsed=%s", col.Name, len(results[i].frags), results[i].elapsed)
		}
	}
	rows := ReconstructRows(columns, e.Layout.RowTolerance)

	stats.Total = time.Since(start)
	if stats.Total > stats.LatencyTarget {
		stats.Exceeded = true
		w := fmt.Sprintf("extraction took %s, target %s", stats.Total.Round(time.Millisecond), stats.LatencyTarget)
		stats.Warnings = append(stats.Warnings, w)
		log.Printf("WARN %s", w)
	}
	return rows, stats, nil
}

// ExtractExtras reads the frames table and retouch box when the layout defines them.
// Failures are reported as warnings.
func (e *Extractor) ExtractExtras(ctx context.Context, img image.Image) (Extras, []string) {
	var (
		mu       sync.Mutex
		lines    = map[string][]string{}
		warnings []string
	)
	var wg sync.WaitGroup
	for _, name := range []string{ROIFrames, ROIRetouch} {
		roi, ok := e.Layout.ROI(name)
		if !ok || e.Recognizer == nil {
			continue
		}
		wg.Add(1)
		go func(roi ROI) {
			defer wg.Done()
			res := e.recognizeRegion(ctx, img, roi.Name, roi.Rect(), correct.FieldDescription)
			mu.Lock()
			defer mu.Unlock()
			for _, f := range res.frags {
				lines[roi.Name] = append(lines[roi.Name], f.Text)
			}
			if res.warning != "" {
				warnings = append(warnings, res.warning)
			}
		}(roi)
	}
	wg.Wait()
	var ex Extras
	ex.Frames = ParseFrameLines(lines[ROIFrames])
	ex.Retouch, ex.ArtistSeries = ParseRetouchLines(lines[ROIRetouch])
	if e.Verbose {
		log.Printf("OCR EXTRAS frames=%v retouch=%d artist=%v", ex.Frames, len(ex.Retouch), ex.ArtistSeries)
	}
	return ex, warnings
}

func (e *Extractor) recognizeRegion(ctx context.Context, img image.Image, name string, box image.Rectangle, field correct.FieldKind) regionResult {
	start := time.Now()
	r := paddedRect(box.Add(img.Bounds().Min), e.Layout.PadX, e.Layout.PadY, img.Bounds())
	if r.Empty() {
		return regionResult{warning: fmt.Sprintf("column %s lies outside the screenshot", name)}
	}
	upscale := e.Layout.Upscale
	if upscale < 1 {
		upscale = 1
	}
	prepared := prepareCrop(img, r, upscale)
	if e.DebugDir != "" {
		p := filepath.Join(e.DebugDir, "debug_"+strings.ToLower(name)+"_processed.png")
		if err := imaging.Save(prepared, p); err != nil {
			log.Printf("WARN debug crop %s: %v", p, err)
		}
	}

	cctx, cancel := context.WithTimeout(ctx, e.columnTimeout())
	defer cancel()
	frags, err := e.Recognizer.Recognize(cctx, prepared, field)
	elapsed := time.Since(start)
	if err != nil {
		log.Printf("WARN OCR column %s failed after %s: %v", name, elapsed.Round(time.Millisecond), err)
		return regionResult{elapsed: elapsed, warning: fmt.Sprintf("column %s: %v", name, err)}
	}
	out := make([]Fragment, 0, len(frags))
	for _, f := range frags {
		f.Text = normalizeOCRText(f.Text)
		if f.Text == "" {
			continue
		}
		f.YCenter = f.YCenter/float64(upscale) + float64(r.Min.Y)
		out = append(out, f)
	}
	if e.Verbose {
		for _, f := range out {
			log.Printf("OCR RAW %s y=%.1f conf=%.0f snippet=%q", name, f.YCenter, f.Confidence, snippet(f.Text, 60))
		}
	}
	return regionResult{frags: out, elapsed: elapsed}
}

func (e *Extractor) columnTimeout() time.Duration {
	if e.ColumnTimeout > 0 {
		return e.ColumnTimeout
	}
	return DefaultColumnTimeout
}

func (e *Extractor) latencyTarget() time.Duration {
	if e.LatencyTarget > 0 {
		return e.LatencyTarget
	}
	return DefaultLatencyTarget
}
