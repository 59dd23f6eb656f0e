package report

import (
	"fmt"
	"io"
	"sort"
	"time"

	"orderpreview/models"

	"gorm.io/gorm"
)

// Summary aggregates the runs of one month.
type Summary struct {
	Month        string
	Total        int
	OK           int
	Failed       int
	Exceeded     int
	AvgElapsedMS float64
	ByErrorKind  map[string]int
	ByWarning    map[string]int
}

// MonthBounds returns the UTC [start, end) range of a YYYY-MM month.
func MonthBounds(month string) (time.Time, time.Time, error) {
	t, err := time.Parse("2006-01", month)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid month format, expected YYYY-MM: %w", err)
	}
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0), nil
}

// Summarize folds runs and their warnings into a Summary.
func Summarize(month string, runs []models.PreviewRun, warnings []models.RunWarning) Summary {
	s := Summary{Month: month, ByErrorKind: map[string]int{}, ByWarning: map[string]int{}}
	var elapsed int64
	for _, r := range runs {
		s.Total++
		elapsed += r.ElapsedMS
		if r.Status == "ok" {
			s.OK++
		} else {
			s.Failed++
			s.ByErrorKind[r.ErrorKind]++
		}
		if r.StatsExceeded {
			s.Exceeded++
		}
	}
	if s.Total > 0 {
		s.AvgElapsedMS = float64(elapsed) / float64(s.Total)
	}
	for _, w := range warnings {
		s.ByWarning[w.Kind]++
	}
	return s
}

// Print writes s in the report's plain text form.
func (s Summary) Print(w io.Writer) {
	fmt.Fprintf(w, "Report for month=%s (UTC):\n", s.Month)
	fmt.Fprintf(w, "  runs=%d ok=%d failed=%d over_latency=%d avg_elapsed_ms=%.1f\n",
		s.Total, s.OK, s.Failed, s.Exceeded, s.AvgElapsedMS)
	printCounts(w, "errors", s.ByErrorKind)
	printCounts(w, "warnings", s.ByWarning)
}

func printCounts(w io.Writer, title string, m map[string]int) {
	if len(m) == 0 {
		return
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// most frequent first
	sort.Slice(keys, func(i, j int) bool {
		if m[keys[i]] != m[keys[j]] {
			return m[keys[i]] > m[keys[j]]
		}
		return keys[i] < keys[j]
	})
	fmt.Fprintf(w, "  %s:\n", title)
	for _, k := range keys {
		fmt.Fprintf(w, "    %-18s %d\n", k, m[k])
	}
}

// RunReport prints a month-bounded report of preview runs and optionally lists
// them.
func RunReport(gdb *gorm.DB, month string, list bool, w io.Writer) error {
	start, end, err := MonthBounds(month)
	if err != nil {
		return err
	}
	var runs []models.PreviewRun
	if err := gdb.Where("created_at >= ? AND created_at < ?", start, end).Order("created_at").Find(&runs).Error; err != nil {
		return fmt.Errorf("fetch runs: %w", err)
	}
	var warnings []models.RunWarning
	if err := gdb.Where("created_at >= ? AND created_at < ?", start, end).Find(&warnings).Error; err != nil {
		return fmt.Errorf("fetch warnings: %w", err)
	}
	Summarize(month, runs, warnings).Print(w)

	if list {
		for _, r := range runs {
			fmt.Fprintf(w, "%s|%s|%s|%s|%d|%d|%s\n", r.ID, r.Source, r.Status, r.ErrorKind, r.PlacedCount, r.WarningCount, r.CreatedAt.Format(time.RFC3339))
		}
	}
	return nil
}
