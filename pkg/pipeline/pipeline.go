package pipeline

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	"orderpreview/pkg/compose"
	"orderpreview/pkg/config"
	"orderpreview/pkg/correct"
	"orderpreview/pkg/layout"
	"orderpreview/pkg/locate"
	"orderpreview/pkg/ocr"
	"orderpreview/pkg/order"
	"orderpreview/pkg/render"
)

const (
	QAFileName          = "ocr_extraction_qa.csv"
	CorrectionsFileName = "corrections.csv"
)

// Warning kinds attached to rows. Row 0 carries order level warnings.
const (
	WarnOCR            = "ocr"
	WarnExtraction     = "extraction"
	WarnResolve        = "resolve"
	WarnUnknownProduct = order.IssueUnknownProduct
	WarnFrameMissing   = order.IssueFrameMissing
	WarnMissingImage   = "missing_image"
	WarnCompose        = "compose"
	WarnRender         = "render"
	WarnFrames         = "frames"
)

// Request is one extraction and render job.
type Request struct {
	ID         string
	Screenshot string
	LookupRoot string
	Background string
	DumpName   string // labels a field dump input in diagnostics
}

// RowWarning is a recoverable problem attached to an order row.
type RowWarning struct {
	Row     int    `json:"row"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// StageTiming is the elapsed time of one pipeline stage.
type StageTiming struct {
	Stage   string        `json:"stage"`
	Elapsed time.Duration `json:"elapsed"`
}

// Response is everything a request produced, including what was salvaged
// before a global failure.
type Response struct {
	ID            string            `json:"id"`
	Source        string            `json:"source"`
	Input         string            `json:"input"`
	LayoutVersion string            `json:"layout_version"`
	Rows          []order.RowRecord `json:"rows"`
	Resolved      []order.OrderRow  `json:"resolved"`
	Units         []compose.Unit    `json:"units,omitempty"`
	Placed        []layout.Placed   `json:"placed,omitempty"`
	Warnings      []RowWarning      `json:"warnings"`
	Corrections   []correct.Entry   `json:"corrections"`
	Extras        ocr.Extras        `json:"extras"`
	Stats         ocr.Stats         `json:"stats"`
	Timings       []StageTiming     `json:"timings"`
	WorkDir       string            `json:"work_dir"`
	PreviewPath   string            `json:"preview_path,omitempty"`
}

// MissingImages returns the missing-image warnings.
func (r *Response) MissingImages() []RowWarning {
	var out []RowWarning
	for _, w := range r.Warnings {
		if w.Kind == WarnMissingImage {
			out = append(out, w)
		}
	}
	return out
}

func (r *Response) warn(row int, kind, msg string) {
	r.Warnings = append(r.Warnings, RowWarning{Row: row, Kind: kind, Message: msg})
}

func (r *Response) track(stage string) func() {
	start := time.Now()
	return func() {
		r.Timings = append(r.Timings, StageTiming{Stage: stage, Elapsed: time.Since(start)})
	}
}

// Diagnostics is what the sink receives after every request.
type Diagnostics struct {
	Response *Response
	Started  time.Time
	Err      error
	Kind     string
}

// Sink stores diagnostics. The pipeline only appends to it.
type Sink interface {
	Record(ctx context.Context, d Diagnostics) error
}

// Service runs requests against one loaded registry. It holds no per-request
// state and may serve requests concurrently.
type Service struct {
	Registry   *config.Registry
	Settings   config.Settings
	Recognizer ocr.Recognizer
	Sink       Sink
	Verbose    bool
}

// New builds a service.
func New(settings config.Settings, reg *config.Registry, rec ocr.Recognizer) *Service {
	return &Service{Registry: reg, Settings: settings, Recognizer: rec}
}

// Extract runs the OCR half only: rows, corrections, stats and extras.
func (s *Service) Extract(ctx context.Context, req Request) (resp *Response, err error) {
	resp = s.newResponse(req, "screenshot", req.Screenshot)
	started := time.Now()
	defer func() { s.finish(ctx, resp, started, err) }()
	_, err = s.extract(ctx, resp, req)
	return resp, err
}

// Run extracts the order from a screenshot and renders its preview.
func (s *Service) Run(ctx context.Context, req Request) (resp *Response, err error) {
	resp = s.newResponse(req, "screenshot", req.Screenshot)
	started := time.Now()
	defer func() { s.finish(ctx, resp, started, err) }()
	rows, err := s.extract(ctx, resp, req)
	if err != nil {
		return resp, err
	}
	err = s.preview(ctx, resp, rows, req, nil)
	return resp, err
}

// RunRows renders a preview from an already structured field dump. Dump rows
// are taken as typed and skip OCR correction.
func (s *Service) RunRows(ctx context.Context, req Request, dump order.Dump) (resp *Response, err error) {
	resp = s.newResponse(req, "tsv", req.DumpName)
	started := time.Now()
	defer func() { s.finish(ctx, resp, started, err) }()
	if err = os.MkdirAll(resp.WorkDir, 0o755); err != nil {
		return resp, fmt.Errorf("work dir: %w", err)
	}
	resp.Rows = dump.Rows
	resp.Extras = dumpExtras(dump)
	for _, r := range dump.Rows {
		for _, w := range r.Warnings {
			resp.warn(r.Index, WarnExtraction, w)
		}
	}
	s.writeArtifacts(resp, nil)
	err = s.preview(ctx, resp, dump.Rows, req, dump.RetouchImages)
	return resp, err
}

func (s *Service) newResponse(req Request, source, input string) *Response {
	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	return &Response{
		ID:            id,
		Source:        source,
		Input:         input,
		LayoutVersion: s.Registry.Layout.Version,
		WorkDir:       filepath.Join(s.Settings.WorkDir, id),
	}
}

func (s *Service) extract(ctx context.Context, resp *Response, req Request) ([]order.RowRecord, error) {
	img, err := imaging.Open(req.Screenshot)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrScreenshot, err)
	}
	if err := os.MkdirAll(resp.WorkDir, 0o755); err != nil {
		return nil, fmt.Errorf("work dir: %w", err)
	}
	ex := &ocr.Extractor{
		Layout:        s.Registry.Layout,
		Recognizer:    s.Recognizer,
		ColumnTimeout: s.Settings.ColumnTimeout,
		LatencyTarget: s.Settings.LatencyTarget,
		DebugDir:      resp.WorkDir,
		Verbose:       s.Verbose,
	}

	done := resp.track("extract")
	raws, stats, err := ex.ExtractRows(ctx, img)
	done()
	resp.Stats = stats
	if err != nil {
		return nil, err
	}
	for _, w := range stats.Warnings {
		resp.warn(0, WarnOCR, w)
	}

	done = resp.track("extras")
	extras, warns := ex.ExtractExtras(ctx, img)
	done()
	resp.Extras = extras
	for _, w := range warns {
		resp.warn(0, WarnOCR, w)
	}

	done = resp.track("correct")
	audit := &correct.Audit{}
	rows := make([]order.RowRecord, 0, len(raws))
	for _, raw := range raws {
		rec := order.FromRaw(raw, s.Registry.Corrector, audit)
		if rec.Empty() {
			continue
		}
		for _, w := range rec.Warnings {
			resp.warn(rec.Index, WarnExtraction, w)
		}
		rows = append(rows, rec)
	}
	done()
	resp.Rows = rows
	resp.Corrections = audit.Entries()
	s.writeArtifacts(resp, audit)
	return rows, nil
}

// writeArtifacts leaves the QA sheet and the correction log in the work dir.
// Failures are logged only.
func (s *Service) writeArtifacts(resp *Response, audit *correct.Audit) {
	qa := filepath.Join(resp.WorkDir, QAFileName)
	if err := writeQA(qa, resp.Rows, resp.Extras); err != nil {
		log.Printf("WARN QA log %s: %v", qa, err)
	}
	if audit == nil {
		return
	}
	p := filepath.Join(resp.WorkDir, CorrectionsFileName)
	f, err := os.Create(p)
	if err != nil {
		log.Printf("WARN correction log %s: %v", p, err)
		return
	}
	defer f.Close()
	if err := audit.WriteCSV(f); err != nil {
		log.Printf("WARN correction log %s: %v", p, err)
	}
}

func (s *Service) preview(ctx context.Context, resp *Response, rows []order.RowRecord, req Request, retouch []string) error {
	done := resp.track("resolve")
	resolved, issues := order.ResolveAll(rows, s.Registry.Catalog)
	for _, is := range issues {
		resp.warn(is.Row, is.Kind, is.Err.Error())
	}
	resolved, unused := order.ApplyFrames(resolved, resp.Extras.Frames, s.Registry.Catalog)
	for _, size := range sortedKeys(unused) {
		for _, colour := range sortedKeys(unused[size]) {
			resp.warn(0, WarnFrames, fmt.Sprintf("%d %s %s frame(s) match no order row", unused[size][colour], colour, size))
		}
	}
	marked := make(map[string]bool, len(retouch))
	for _, c := range retouch {
		marked[c] = true
	}
	for i := range resolved {
		resolved[i].Banner = order.Banner(resolved[i], marked)
	}
	for _, r := range resolved {
		for _, w := range r.Warnings {
			resp.warn(r.Row.Index, WarnResolve, w)
		}
	}
	resp.Resolved = resolved
	done()
	if len(resolved) == 0 {
		return ErrNoRows
	}

	done = resp.track("locate")
	paths := s.locateImages(ctx, resp, resolved, req.LookupRoot)
	done()

	done = resp.track("compose")
	comp := &compose.Compositor{AssetsDir: s.Settings.AssetsDir, PxPerInch: s.Settings.PxPerInch}
	units := make([]compose.Unit, 0, len(resolved))
	for i, r := range resolved {
		u, err := comp.Compose(ctx, r, paths[i])
		if err != nil {
			done()
			return err
		}
		for _, w := range u.Warnings {
			resp.warn(r.Row.Index, WarnCompose, w)
		}
		units = append(units, u)
	}
	resp.Units = units
	done()

	done = resp.track("layout")
	engine := layout.NewEngine(s.Settings.CanvasWidth, s.Settings.CanvasHeight, s.Settings.PxPerInch)
	engine.Templates = s.Registry.Templates
	items := make([]layout.Item, len(units))
	for i, u := range units {
		items[i] = layout.Item{Index: u.Row, Unit: i, Slug: u.Slug, WidthIn: u.WidthIn, HeightIn: u.HeightIn, Quantity: u.Quantity}
	}
	placed, err := engine.Arrange(items)
	done()
	if err != nil {
		return err
	}
	resp.Placed = placed

	done = resp.track("render")
	defer done()
	bgPath := req.Background
	if bgPath == "" {
		bgPath = s.Settings.Background
	}
	bg, err := render.LoadBackground(bgPath)
	if err != nil {
		resp.warn(0, WarnRender, fmt.Sprintf("%v, flat background used", err))
	}
	tiles := make([]render.Tile, 0, len(placed))
	for _, p := range placed {
		if p.Item.Unit < 0 || p.Item.Unit >= len(units) {
			continue
		}
		u := units[p.Item.Unit]
		t := render.Tile{Image: u.Image, Bounds: p.Bounds, Quantity: u.Quantity, Banner: resolved[p.Item.Unit].Banner}
		if s.Settings.SizeLabels {
			t.Label = p.Item.Size()
		}
		tiles = append(tiles, t)
	}
	r := render.Renderer{
		Width:         s.Settings.CanvasWidth,
		Height:        s.Settings.CanvasHeight,
		QuantityBadge: s.Settings.QuantityBadge,
		Watermark:     s.Settings.Watermark,
		LogoCorner:    s.Settings.LogoCorner,
	}
	if s.Settings.LogoPath != "" {
		if r.Logo, err = imaging.Open(s.Settings.LogoPath); err != nil {
			r.Logo = nil
			resp.warn(0, WarnRender, fmt.Sprintf("open logo: %v, branding skipped", err))
		}
	}
	canvas := r.Render(bg, tiles)
	if err := os.MkdirAll(s.Settings.OutputDir, 0o755); err != nil {
		return fmt.Errorf("output dir: %w", err)
	}
	out := filepath.Join(s.Settings.OutputDir, resp.ID+".jpg")
	if err := render.Save(canvas, out); err != nil {
		return fmt.Errorf("save preview: %w", err)
	}
	resp.PreviewPath = out
	return nil
}

// locateImages resolves every image code of the order in one walk and returns
// paths aligned with each row's codes, "" where nothing was found.
func (s *Service) locateImages(ctx context.Context, resp *Response, rows []order.OrderRow, root string) [][]string {
	if root == "" {
		root = s.Settings.LookupRoot
	}
	var codes []string
	for _, r := range rows {
		codes = append(codes, r.Row.ImageCodes...)
	}
	found := map[string]string{}
	errs := map[string]error{}
	if root == "" {
		for _, c := range codes {
			errs[c] = fmt.Errorf("no lookup root configured")
		}
	} else if len(codes) > 0 {
		loc := locate.Locator{Root: root, Timeout: s.Settings.LocateTimeout}
		found, errs = loc.LocateAll(ctx, codes)
	}
	out := make([][]string, len(rows))
	for i, r := range rows {
		out[i] = make([]string, len(r.Row.ImageCodes))
		for j, c := range r.Row.ImageCodes {
			if p, ok := found[c]; ok {
				out[i][j] = p
				continue
			}
			reason := errs[c]
			if reason == nil {
				reason = locate.ErrNotFound
			}
			resp.warn(r.Row.Index, WarnMissingImage, fmt.Sprintf("image %s: %v", c, reason))
		}
	}
	return out
}

func (s *Service) finish(ctx context.Context, resp *Response, started time.Time, err error) {
	kind := Kind(err)
	if err != nil {
		log.Printf("PIPELINE FAIL id=%s source=%s kind=%s err=%v", resp.ID, resp.Source, kind, err)
	} else {
		log.Printf("PIPELINE OK id=%s source=%s rows=%d placed=%d warnings=%d elapsed=%s",
			resp.ID, resp.Source, len(resp.Rows), len(resp.Placed), len(resp.Warnings), time.Since(started).Round(time.Millisecond))
	}
	if s.Verbose {
		for _, w := range resp.Warnings {
			log.Printf("PIPELINE WARN id=%s row=%d kind=%s %s", resp.ID, w.Row, w.Kind, w.Message)
		}
	}
	if s.Sink == nil {
		return
	}
	if serr := s.Sink.Record(ctx, Diagnostics{Response: resp, Started: started, Err: err, Kind: kind}); serr != nil {
		log.Printf("WARN diagnostics sink id=%s: %v", resp.ID, serr)
	}
}

// dumpExtras rebuilds the side tables from a field dump.
func dumpExtras(d order.Dump) ocr.Extras {
	var lines []string
	for _, f := range d.Frames {
		lines = append(lines, fmt.Sprintf("%d %s %s", f.Quantity, f.Number, f.Description))
	}
	return ocr.Extras{
		Frames:       ocr.ParseFrameLines(lines),
		ArtistSeries: len(d.ArtistSeries) > 0,
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
