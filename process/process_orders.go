package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/disintegration/imaging"
	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"orderpreview/models"
	"orderpreview/pkg/config"
	"orderpreview/pkg/ocr"
	"orderpreview/pkg/order"
	"orderpreview/pkg/pipeline"
	"orderpreview/pkg/store"
)

// global flags (parsed in main)
var verbose bool

// preloadState remembers inputs that already produced a preview so a rerun
// over the same inbox does not render them twice.
type preloadState struct {
	done map[string]bool
	mu   sync.RWMutex
}

func newPreloadState() *preloadState {
	return &preloadState{done: make(map[string]bool, 1024)}
}

func (ps *preloadState) isDone(name string) bool {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return ps.done[name]
}

func (ps *preloadState) markDone(name string) {
	ps.mu.Lock()
	ps.done[name] = true
	ps.mu.Unlock()
}

// processor carries everything a worker needs for one inbox.
type processor struct {
	svc    *pipeline.Service
	dir    string
	root   string
	dryRun bool
	state  *preloadState
}

// Main: scans a directory of order screenshots (and TSV field dumps), renders a
// preview for each one, optional watch mode.
func main() {
	dirFlag := flag.String("dir", "inbox", "directory to scan for order screenshots")
	rootFlag := flag.String("root", "", "image lookup root (default LOOKUP_ROOT)")
	outFlag := flag.String("out", "", "preview output directory (default OUTPUT_DIR)")
	dryRun := flag.Bool("dry-run", false, "Skip all DB queries and writes and leave inputs in place")
	watch := flag.Bool("watch", false, "Watch directory for new files")
	workers := flag.Int("workers", 0, "Worker pool size (default NumCPU)")
	flag.BoolVar(&verbose, "verbose", false, "Verbose per-file logging")
	flag.Parse()

	config.LoadDotEnv()
	settings, err := config.Load()
	if err != nil {
		log.Fatalf("configuration: %v", err)
	}
	if *outFlag != "" {
		settings.OutputDir = *outFlag
	}
	reg, err := config.LoadRegistry(settings.CatalogPath)
	if err != nil {
		log.Fatalf("registry %s: %v", settings.CatalogPath, err)
	}

	svc := pipeline.New(settings, reg, ocr.TesseractRecognizer{})
	svc.Verbose = verbose
	p := &processor{svc: svc, dir: *dirFlag, root: *rootFlag, dryRun: *dryRun, state: newPreloadState()}

	if *dryRun {
		log.Printf("Dry-run: scanning %s (no DB interaction)", *dirFlag)
	} else {
		db, err := store.Open(settings.DSN, settings.AutoMigrate)
		switch {
		case err == nil:
			svc.Sink = store.Sink{DB: db}
			preloadAll(db, p.state)
			log.Printf("Preloaded: done=%d", len(p.state.done))
		case errors.Is(err, store.ErrNoDSN):
			log.Printf("DB_DSN is not set; diagnostics will not be persisted")
		default:
			log.Fatalf("failed to connect to database: %v", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	files := listImageFiles(*dirFlag)
	log.Printf("Scanning %d files (workers=%d)", len(files), effectiveWorkers(*workers))
	runWorkerPool(ctx, p, files, effectiveWorkers(*workers))

	if *watch {
		if err := watchDirectory(ctx, p, effectiveWorkers(*workers)); err != nil {
			log.Fatalf("watch failed: %v", err)
		}
	}
}

func effectiveWorkers(w int) int {
	if w <= 0 {
		return runtime.NumCPU()
	}
	return w
}

func logV(format string, args ...any) {
	if verbose {
		log.Printf(format, args...)
	}
}

// preloadAll fetches the inputs of successful runs to minimize repeated work.
func preloadAll(db *gorm.DB, ps *preloadState) {
	var inputs []string
	err := db.Model(&models.PreviewRun{}).
		Where("status = ? AND input <> ''", "ok").
		Pluck("input", &inputs).Error
	if err != nil {
		log.Printf("WARN preload runs: %v", err)
		return
	}
	for _, in := range inputs {
		ps.done[filepath.Base(in)] = true
	}
}

func listImageFiles(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if !isSupportedExt(e.Name()) {
			continue
		}
		out = append(out, e.Name())
	}
	sort.Strings(out)
	return out
}

func watchDirectory(ctx context.Context, p *processor, workers int) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(p.dir); err != nil {
		return err
	}
	log.Printf("Watching %s (debounced) ...", p.dir)

	fileCh := make(chan string, 256)
	go func() {
		defer close(fileCh)
		// pending files settle before they are queued
		pending := map[string]time.Time{}
		ticker := time.NewTicker(250 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Create|fsnotify.Write) != 0 {
					name := filepath.Base(ev.Name)
					if !isSupportedExt(name) {
						continue
					}
					pending[name] = time.Now()
				}
			case <-ticker.C:
				now := time.Now()
				for name, t := range pending {
					if now.Sub(t) > 300*time.Millisecond { // stable
						fileCh <- name
						delete(pending, name)
					}
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Printf("watch error: %v", err)
			}
		}
	}()

	runWorkerPool(ctx, p, nil, workers, fileCh)
	log.Printf("Watch stopped")
	return nil
}

func isSupportedExt(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".png", ".jpg", ".jpeg", ".bmp", ".tif", ".tiff", ".tsv":
		return true
	}
	return false
}

// runWorkerPool processes initial and then everything arriving on extraCh. It
// returns once all inputs are drained.
func runWorkerPool(ctx context.Context, p *processor, initial []string, workers int, extraCh ...<-chan string) {
	fileCh := make(chan string, 1024)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for name := range fileCh {
				if ctx.Err() != nil {
					continue
				}
				p.processSingleFile(ctx, name)
			}
		}()
	}
	// feed initial, then relay extra channels until they close
	go func() {
		defer close(fileCh)
		for _, f := range initial {
			fileCh <- f
		}
		var relay sync.WaitGroup
		for _, ch := range extraCh {
			relay.Add(1)
			go func(c <-chan string) {
				defer relay.Done()
				for n := range c {
					fileCh <- n
				}
			}(ch)
		}
		relay.Wait()
	}()
	wg.Wait()
}

// processSingleFile renders one inbox file and archives it on success.
func (p *processor) processSingleFile(ctx context.Context, name string) {
	if p.state.isDone(name) {
		logV("SKIP already rendered %s", name)
		return
	}
	path := filepath.Join(p.dir, name)
	req := pipeline.Request{ID: uuid.NewString(), Screenshot: path, LookupRoot: p.root}

	var resp *pipeline.Response
	var err error
	if strings.EqualFold(filepath.Ext(name), ".tsv") {
		resp, err = p.runDump(ctx, req)
	} else {
		resp, err = p.svc.Run(ctx, req)
	}
	if err != nil {
		log.Printf("FAIL %s kind=%s: %v", name, pipeline.Kind(err), err)
		return
	}
	p.state.markDone(name)
	log.Printf("PREVIEW %s placed=%d missing=%d warnings=%d -> %s",
		name, len(resp.Placed), len(resp.MissingImages()), len(resp.Warnings), resp.PreviewPath)
	if p.dryRun {
		return
	}
	if err := moveToProcessed(path, p.dir, name); err != nil {
		log.Printf("WARN failed to move processed file %s: %v", name, err)
	} else {
		logV("moved processed %s to %s", name, filepath.Join(p.dir, "processed"))
	}
}

func (p *processor) runDump(ctx context.Context, req pipeline.Request) (*pipeline.Response, error) {
	f, err := os.Open(req.Screenshot)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	dump, err := order.ParseTSV(f)
	if err != nil {
		return nil, err
	}
	req.DumpName, req.Screenshot = req.Screenshot, ""
	return p.svc.RunRows(ctx, req, dump)
}

// moveToProcessed moves a file from dir to dir/processed/<name>. Large
// screenshots are downscaled on the way so the archive stays small.
// It attempts an atomic rename and falls back to copy+remove when necessary.
func moveToProcessed(srcFullPath, dir, name string) error {
	const maxBytes = 1_000_000 // 1 MB budget
	processedDir := filepath.Join(dir, "processed")
	if err := os.MkdirAll(processedDir, 0o755); err != nil {
		return err
	}
	dst := filepath.Join(processedDir, name)

	fi, err := os.Stat(srcFullPath)
	if err != nil {
		return err
	}
	if fi.Size() <= maxBytes || strings.EqualFold(filepath.Ext(name), ".tsv") {
		if err := os.Rename(srcFullPath, dst); err == nil {
			return nil
		}
		return copyRemove(srcFullPath, dst)
	}
	img, err := imaging.Open(srcFullPath)
	if err != nil { // fallback to raw move if cannot decode
		if err := os.Rename(srcFullPath, dst); err == nil {
			return nil
		}
		return copyRemove(srcFullPath, dst)
	}
	// size roughly scales with area
	scale := math.Sqrt(float64(maxBytes) / float64(fi.Size()))
	if scale < 0.1 {
		scale = 0.1
	}
	w := img.Bounds().Dx()
	h := img.Bounds().Dy()
	newW := int(math.Max(1, math.Round(float64(w)*scale)))
	newH := int(math.Max(1, math.Round(float64(h)*scale)))
	img = imaging.Resize(img, newW, newH, imaging.Lanczos)
	if err := imaging.Save(img, dst); err != nil {
		if err := os.Rename(srcFullPath, dst); err == nil {
			return nil
		}
		return copyRemove(srcFullPath, dst)
	}
	return os.Remove(srcFullPath)
}

func copyRemove(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
