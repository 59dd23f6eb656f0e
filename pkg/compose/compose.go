package compose

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"math"
	"path/filepath"
	"sync"

	"github.com/disintegration/imaging"
	"golang.org/x/sync/errgroup"

	"orderpreview/pkg/catalog"
	"orderpreview/pkg/order"
)

const DefaultPxPerInch = 40

var (
	// DefaultPlaceholder fills openings whose image is missing.
	DefaultPlaceholder = color.NRGBA{R: 200, G: 200, B: 200, A: 255}
	boardColor         = color.NRGBA{R: 60, G: 60, B: 60, A: 255}
	sheetColor         = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
)

// Unit is one rendered product, framed or not, ready for layout.
type Unit struct {
	Image      *image.NRGBA `json:"-"`
	Row        int          `json:"row"`
	Slug       string       `json:"slug"`
	WidthIn    float64      `json:"width_in"`
	HeightIn   float64      `json:"height_in"`
	Quantity   int          `json:"qty"`
	Images     []string     `json:"images"`
	FrameAsset string       `json:"frame_asset,omitempty"`
	Warnings   []string     `json:"warnings,omitempty"`
}

// Compositor renders order rows into units. One instance serves one request;
// decoded assets and photos are cached for its lifetime.
type Compositor struct {
	AssetsDir   string
	PxPerInch   float64
	Placeholder color.NRGBA

	mu    sync.Mutex
	cache map[string]image.Image
}

// slot is one opening on the unit canvas and the photo destined for it.
type slot struct {
	rect image.Rectangle
	path string
	code string
}

// Compose renders row. paths is aligned with row.Row.ImageCodes, with "" for
// codes the locator could not resolve. Missing photos become placeholders and
// warnings; composition of the other openings continues.
func (c *Compositor) Compose(ctx context.Context, row order.OrderRow, paths []string) (Unit, error) {
	p := row.Product
	u := Unit{
		Row:      row.Row.Index,
		Slug:     p.Slug,
		WidthIn:  p.WidthIn,
		HeightIn: p.HeightIn,
		Quantity: row.Quantity,
	}
	var (
		canvas *image.NRGBA
		rects  []image.Rectangle
	)
	if row.Frame != nil {
		u.FrameAsset = row.Frame.AssetPath
		var warn string
		canvas, rects, warn = c.frameCanvas(*row.Frame, p)
		if warn != "" {
			u.Warnings = append(u.Warnings, warn)
		}
	} else {
		canvas, rects = c.sheetCanvas(p)
	}

	slots, warns := assign(rects, row.Row.ImageCodes, paths, p.QuantityBehavior == catalog.QuantitySheet)
	u.Warnings = append(u.Warnings, warns...)

	tiles := make([]*image.NRGBA, len(slots))
	tileWarn := make([]string, len(slots))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(len(slots) + 1)
	for i, s := range slots {
		i, s := i, s
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			tiles[i], tileWarn[i] = c.tile(s)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Unit{}, fmt.Errorf("compose %s: %w", p.Slug, err)
	}
	for i, s := range slots {
		canvas = imaging.Paste(canvas, tiles[i], s.rect.Min)
		if tileWarn[i] != "" {
			u.Warnings = append(u.Warnings, tileWarn[i])
		}
		if s.path != "" && tileWarn[i] == "" {
			u.Images = append(u.Images, s.path)
		}
	}
	u.Image = canvas
	return u, nil
}

// frameCanvas loads the frame artwork and returns the opening rectangles in its pixels.
func (c *Compositor) frameCanvas(fr catalog.FrameSpec, p catalog.ProductSpec) (*image.NRGBA, []image.Rectangle, string) {
	var warn string
	asset, err := c.load(c.assetPath(fr.AssetPath))
	if a := fr.Absolute; a != nil {
		scale := a.Scale
		if scale <= 0 {
			scale = 1
		}
		w := int(math.Round(float64(a.BaseWidth) * scale))
		h := int(math.Round(float64(a.BaseHeight) * scale))
		var canvas *image.NRGBA
		if err != nil {
			warn = fmt.Sprintf("frame asset %s unavailable, plain board used", fr.AssetPath)
			canvas = imaging.New(w, h, boardColor)
		} else {
			canvas = imaging.Resize(asset, w, h, imaging.Lanczos)
		}
		ow := int(math.Round(float64(a.OpeningWidth) * scale))
		oh := int(math.Round(float64(a.OpeningHeight) * scale))
		rects := make([]image.Rectangle, len(a.Offsets))
		for i, off := range a.Offsets {
			x := int(math.Round(float64(off.X) * scale))
			y := int(math.Round(float64(off.Y) * scale))
			rects[i] = image.Rect(x, y, x+ow, y+oh)
		}
		return canvas, rects, warn
	}

	var canvas *image.NRGBA
	if err != nil {
		warn = fmt.Sprintf("frame asset %s unavailable, plain board used", fr.AssetPath)
		w, h := c.pixels(p.WidthIn), c.pixels(p.HeightIn)
		canvas = imaging.New(w, h, boardColor)
	} else {
		canvas = imaging.Clone(asset)
	}
	w, h := canvas.Bounds().Dx(), canvas.Bounds().Dy()
	rects := make([]image.Rectangle, len(fr.Openings))
	for i, b := range fr.Openings {
		rects[i] = image.Rect(
			int(math.Round(b.X1*float64(w))), int(math.Round(b.Y1*float64(h))),
			int(math.Round(b.X2*float64(w))), int(math.Round(b.Y2*float64(h))),
		)
	}
	return canvas, rects, warn
}

// sheetCanvas lays CountImages cells over the print area of an unframed product.
func (c *Compositor) sheetCanvas(p catalog.ProductSpec) (*image.NRGBA, []image.Rectangle) {
	w, h := c.pixels(p.WidthIn), c.pixels(p.HeightIn)
	canvas := imaging.New(w, h, sheetColor)
	n := p.CountImages
	if n < 1 {
		n = 1
	}
	if n == 1 {
		return canvas, []image.Rectangle{canvas.Bounds()}
	}
	cols, rows := gridFor(n, float64(w)/float64(h))
	gap := int(math.Max(1, math.Round(c.pxPerInch()/20)))
	cw := (w - gap*(cols+1)) / cols
	ch := (h - gap*(rows+1)) / rows
	rects := make([]image.Rectangle, 0, n)
	for i := 0; i < n; i++ {
		col, r := i%cols, i/cols
		x := gap + col*(cw+gap)
		y := gap + r*(ch+gap)
		rects = append(rects, image.Rect(x, y, x+cw, y+ch))
	}
	return canvas, rects
}

// gridFor picks the column count whose cells come closest to the sheet aspect.
func gridFor(n int, aspect float64) (int, int) {
	bestCols, bestRows := n, 1
	bestScore := math.Inf(1)
	for cols := 1; cols <= n; cols++ {
		rows := (n + cols - 1) / cols
		cell := aspect * float64(rows) / float64(cols)
		score := math.Abs(math.Log(cell)) + float64(cols*rows-n)*0.25
		if score < bestScore {
			bestCols, bestRows, bestScore = cols, rows, score
		}
	}
	return bestCols, bestRows
}

// assign pairs openings with photos in capture order. Sheets repeat the
// available photos cyclically; other products leave surplus openings empty.
func assign(rects []image.Rectangle, codes, paths []string, cyclic bool) ([]slot, []string) {
	type photo struct{ code, path string }
	var available []photo
	var warns []string
	for i, code := range codes {
		path := ""
		if i < len(paths) {
			path = paths[i]
		}
		if path == "" {
			warns = append(warns, fmt.Sprintf("image %s missing, placeholder used", code))
		}
		available = append(available, photo{code, path})
	}
	slots := make([]slot, len(rects))
	for i, r := range rects {
		slots[i].rect = r
		switch {
		case i < len(available):
			slots[i].code, slots[i].path = available[i].code, available[i].path
		case cyclic && len(available) > 0:
			ph := available[i%len(available)]
			slots[i].code, slots[i].path = ph.code, ph.path
		default:
			warns = append(warns, fmt.Sprintf("opening %d has no image", i+1))
		}
	}
	return slots, warns
}

// tile produces the opening fill: the photo center-cropped to the opening
// aspect and resized to fill it, or the placeholder.
func (c *Compositor) tile(s slot) (*image.NRGBA, string) {
	w, h := s.rect.Dx(), s.rect.Dy()
	if s.path == "" {
		return imaging.New(w, h, c.placeholder()), ""
	}
	src, err := c.load(s.path)
	if err != nil {
		return imaging.New(w, h, c.placeholder()), fmt.Sprintf("image %s unreadable, placeholder used", s.code)
	}
	return imaging.Fill(src, w, h, imaging.Center, imaging.Lanczos), ""
}

func (c *Compositor) load(path string) (image.Image, error) {
	c.mu.Lock()
	if img, ok := c.cache[path]; ok {
		c.mu.Unlock()
		return img, nil
	}
	c.mu.Unlock()
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	if c.cache == nil {
		c.cache = map[string]image.Image{}
	}
	c.cache[path] = img
	c.mu.Unlock()
	return img, nil
}

func (c *Compositor) assetPath(p string) string {
	if filepath.IsAbs(p) || c.AssetsDir == "" {
		return p
	}
	return filepath.Join(c.AssetsDir, p)
}

func (c *Compositor) pxPerInch() float64 {
	if c.PxPerInch > 0 {
		return c.PxPerInch
	}
	return DefaultPxPerInch
}

func (c *Compositor) pixels(in float64) int {
	return int(math.Max(1, math.Round(in*c.pxPerInch())))
}

func (c *Compositor) placeholder() color.NRGBA {
	if c.Placeholder.A == 0 {
		return DefaultPlaceholder
	}
	return c.Placeholder
}
