package sanitize

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"orderpreview/models"

	"gorm.io/gorm"
)

// Options controls a prune pass.
type Options struct {
	Before  time.Time
	Status  string // "" prunes every status
	DryRun  bool
	Yes     bool
	WorkDir string // work dirs under it are removed with their runs
}

// Candidate is a run selected for pruning.
type Candidate struct {
	ID      string
	WorkDir string
}

// Select lists runs created before opts.Before.
func Select(gdb *gorm.DB, opts Options) ([]Candidate, error) {
	q := gdb.Model(&models.PreviewRun{}).Where("created_at < ?", opts.Before)
	if opts.Status != "" {
		q = q.Where("status = ?", opts.Status)
	}
	var out []Candidate
	if err := q.Select("id", "work_dir").Order("created_at").Scan(&out).Error; err != nil {
		return nil, fmt.Errorf("select runs: %w", err)
	}
	return out, nil
}

// Run deletes old runs (children cascade) and their work dirs. Without
// opts.Yes, or with opts.DryRun, it only reports what would be removed.
func Run(gdb *gorm.DB, opts Options) (int, error) {
	cands, err := Select(gdb, opts)
	if err != nil {
		return 0, err
	}
	if len(cands) == 0 {
		log.Println("no runs older than cutoff; nothing to do")
		return 0, nil
	}
	fmt.Printf("Runs considered for pruning: %d (before %s)\n", len(cands), opts.Before.Format(time.RFC3339))
	for _, c := range cands {
		fmt.Printf(" - %s %s\n", c.ID, c.WorkDir)
	}
	if opts.DryRun {
		fmt.Println("dry-run enabled; no changes will be made. Use --dry-run=false --yes to execute.")
		return 0, nil
	}
	if !opts.Yes {
		fmt.Println("Destructive operation. Pass --yes to confirm execution. Aborting.")
		return 0, nil
	}

	ids := make([]string, len(cands))
	for i, c := range cands {
		ids[i] = c.ID
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	res := gdb.WithContext(ctx).Where("id IN ?", ids).Delete(&models.PreviewRun{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete runs: %w", res.Error)
	}
	for _, c := range cands {
		if !insideDir(opts.WorkDir, c.WorkDir) {
			continue
		}
		if err := os.RemoveAll(c.WorkDir); err != nil {
			log.Printf("WARN remove work dir %s: %v", c.WorkDir, err)
		}
	}
	log.Printf("Prune completed: runs=%d", res.RowsAffected)
	return int(res.RowsAffected), nil
}

// insideDir reports whether p lies strictly below root. Work dirs recorded
// outside the configured root are never removed.
func insideDir(root, p string) bool {
	if root == "" || p == "" {
		return false
	}
	rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(p))
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
