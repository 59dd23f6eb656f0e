package layout

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"
)

// Item is one unit to place, measured in inches.
type Item struct {
	Index    int     `json:"index"`
	Unit     int     `json:"unit"`
	Slug     string  `json:"slug"`
	WidthIn  float64 `json:"width_in"`
	HeightIn float64 `json:"height_in"`
	Quantity int     `json:"qty"`
}

// Size is the item footprint label, e.g. "8x10".
func (it Item) Size() string {
	return fmt.Sprintf("%gx%g", it.WidthIn, it.HeightIn)
}

func (it Item) area() float64 { return it.WidthIn * it.HeightIn }

// Rect is a pixel rectangle on the canvas.
type Rect struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Overlaps reports whether two rectangles share any area.
func (r Rect) Overlaps(o Rect) bool {
	return r.X < o.X+o.W && o.X < r.X+r.W && r.Y < o.Y+o.H && o.Y < r.Y+r.H
}

// Within reports whether r lies inside a w x h canvas.
func (r Rect) Within(w, h int) bool {
	return r.X >= 0 && r.Y >= 0 && r.X+r.W <= w && r.Y+r.H <= h
}

// Placed is a committed placement.
type Placed struct {
	Item    Item    `json:"item"`
	Bounds  Rect    `json:"bounds"`
	Scale   float64 `json:"scale"`
	Method  string  `json:"method"`
	Retries int     `json:"retries"` // grid attempts rejected at this scale
}

// OverflowError means the units do not fit even at the minimum scale.
type OverflowError struct {
	Count  int
	Sizes  []string
	Scale  float64
	Canvas Rect
}

func (e *OverflowError) Error() string {
	return fmt.Sprintf("%d units (%s) do not fit a %dx%d canvas at minimum scale %.2f",
		e.Count, strings.Join(e.Sizes, ", "), e.Canvas.W, e.Canvas.H, e.Scale)
}

// Point is a relative canvas position in [0,1].
type Point struct {
	X float64 `yaml:"x" json:"x"`
	Y float64 `yaml:"y" json:"y"`
}

// Template is a curated arrangement for a known unit mix. Slots are the
// relative centres of the units after the largest-first sort. An empty Sizes
// list accepts any mix of Count units.
type Template struct {
	Name  string   `yaml:"name" json:"name"`
	Sizes []string `yaml:"sizes" json:"sizes"`
	Slots []Point  `yaml:"slots" json:"slots"`
}

// DefaultTemplates are the arrangements used for small orders.
func DefaultTemplates() []Template {
	return []Template{
		{Name: "single", Slots: []Point{{0.5, 0.55}}},
		{Name: "pair", Slots: []Point{{0.3, 0.55}, {0.7, 0.55}}},
		{Name: "row of three", Slots: []Point{{0.2, 0.55}, {0.5, 0.55}, {0.8, 0.55}}},
	}
}

func (t Template) matches(items []Item) bool {
	if len(t.Slots) != len(items) {
		return false
	}
	if len(t.Sizes) == 0 {
		return true
	}
	if len(t.Sizes) != len(items) {
		return false
	}
	want := append([]string(nil), t.Sizes...)
	got := make([]string, len(items))
	for i, it := range items {
		got[i] = it.Size()
	}
	sort.Strings(want)
	sort.Strings(got)
	for i := range want {
		if want[i] != got[i] {
			return false
		}
	}
	return true
}

// Engine arranges units on a fixed canvas without overlap.
type Engine struct {
	CanvasWidth  int
	CanvasHeight int
	PxPerInch    float64
	Margin       int
	MarginStep   int
	MaxRetries   int
	MinScale     float64
	ScaleStep    float64
	Templates    []Template
}

// NewEngine returns an engine with the default tuning.
func NewEngine(width, height int, pxPerInch float64) *Engine {
	return &Engine{
		CanvasWidth:  width,
		CanvasHeight: height,
		PxPerInch:    pxPerInch,
		Margin:       16,
		MarginStep:   8,
		MaxRetries:   3,
		MinScale:     0.25,
		ScaleStep:    0.05,
		Templates:    DefaultTemplates(),
	}
}

// Arrange places every item or none. Items are sorted largest first (stable,
// so equal footprints keep row order), then a matching template, a grid with
// bounded corrective passes and finally shelf stacking are tried at each scale
// from 1 down to MinScale.
func (e *Engine) Arrange(items []Item) ([]Placed, error) {
	if len(items) == 0 {
		return nil, nil
	}
	sorted := append([]Item(nil), items...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].area() > sorted[j].area() })

	step := e.ScaleStep
	if step <= 0 {
		step = 0.05
	}
	minScale := e.MinScale
	if minScale <= 0 || minScale > 1 {
		minScale = step
	}
	for i := 0; ; i++ {
		scale := 1 - float64(i)*step
		if scale < minScale-1e-9 {
			break
		}
		if placed, ok := e.place(sorted, scale); ok {
			return placed, nil
		}
	}
	sizes := make([]string, len(sorted))
	for i, it := range sorted {
		sizes[i] = it.Size()
	}
	return nil, &OverflowError{Count: len(sorted), Sizes: sizes, Scale: minScale, Canvas: Rect{W: e.CanvasWidth, H: e.CanvasHeight}}
}

func (e *Engine) place(items []Item, scale float64) ([]Placed, bool) {
	dims := make([][2]int, len(items))
	for i, it := range items {
		dims[i] = [2]int{e.pixels(it.WidthIn, scale), e.pixels(it.HeightIn, scale)}
	}

	for _, t := range e.Templates {
		if !t.matches(items) {
			continue
		}
		rects := make([]Rect, len(items))
		for i, s := range t.Slots {
			cx := int(math.Round(s.X * float64(e.CanvasWidth)))
			cy := int(math.Round(s.Y * float64(e.CanvasHeight)))
			rects[i] = Rect{X: cx - dims[i][0]/2, Y: cy - dims[i][1]/2, W: dims[i][0], H: dims[i][1]}
		}
		if e.valid(rects, e.Margin) {
			return commit(items, rects, scale, "template "+t.Name, 0), true
		}
		break
	}

	// The grid starts from cells of the mean footprint, where larger units
	// spill over their neighbours or the canvas edge. Each rejected attempt
	// widens the margin and moves the cells toward the largest footprint; the
	// last attempt uses the largest footprint, which cannot collide.
	retries := max(0, e.MaxRetries)
	margin := e.Margin
	attempt := 0
	for ; attempt <= retries; attempt++ {
		pitch := 1.0
		if retries > 0 {
			pitch = float64(attempt) / float64(retries)
		}
		rects := e.grid(dims, margin, pitch)
		if rects == nil {
			break
		}
		if e.valid(rects, margin) {
			return commit(items, rects, scale, "grid", attempt), true
		}
		margin += e.MarginStep
	}

	rects := e.shelf(dims, e.Margin)
	if e.valid(rects, 0) {
		return commit(items, rects, scale, "shelf", attempt), true
	}
	return nil, false
}

// grid fills cells row-major, each unit centred on its cell. Cells lie between
// the mean footprint (pitch 0) and the largest one (pitch 1).
func (e *Engine) grid(dims [][2]int, margin int, pitch float64) []Rect {
	ws := make([]float64, len(dims))
	hs := make([]float64, len(dims))
	maxW, maxH := 0, 0
	for i, d := range dims {
		ws[i], hs[i] = float64(d[0]), float64(d[1])
		maxW = max(maxW, d[0])
		maxH = max(maxH, d[1])
	}
	if maxW == 0 || maxH == 0 {
		return nil
	}
	between := func(mean float64, largest int) int {
		return int(math.Round(mean + pitch*(float64(largest)-mean)))
	}
	cellW := between(stat.Mean(ws, nil), maxW)
	cellH := between(stat.Mean(hs, nil), maxH)
	cols := (e.CanvasWidth - margin) / (cellW + margin)
	if cols < 1 {
		cols = 1
	}
	if cols > len(dims) {
		cols = len(dims)
	}
	rows := (len(dims) + cols - 1) / cols
	usedW := cols*cellW + (cols+1)*margin
	usedH := rows*cellH + (rows+1)*margin
	offX := max(0, (e.CanvasWidth-usedW)/2)
	offY := max(0, (e.CanvasHeight-usedH)/2)
	rects := make([]Rect, len(dims))
	for i, d := range dims {
		c, r := i%cols, i/cols
		x := offX + margin + c*(cellW+margin) + (cellW-d[0])/2
		y := offY + margin + r*(cellH+margin) + (cellH-d[1])/2
		rects[i] = Rect{X: x, Y: y, W: d[0], H: d[1]}
	}
	return rects
}

// shelf stacks units left to right, wrapping onto a new shelf below when the
// row is full. Shelves never intersect, so the result is overlap free.
func (e *Engine) shelf(dims [][2]int, margin int) []Rect {
	rects := make([]Rect, len(dims))
	x, y, shelfH := margin, margin, 0
	for i, d := range dims {
		if x > margin && x+d[0]+margin > e.CanvasWidth {
			x = margin
			y += shelfH + margin
			shelfH = 0
		}
		rects[i] = Rect{X: x, Y: y, W: d[0], H: d[1]}
		x += d[0] + margin
		shelfH = max(shelfH, d[1])
	}
	return rects
}

func (e *Engine) valid(rects []Rect, gap int) bool {
	return !collides(rects, gap) && fits(rects, e.CanvasWidth, e.CanvasHeight)
}

func (e *Engine) pixels(in, scale float64) int {
	return int(math.Max(1, math.Round(in*e.PxPerInch*scale)))
}

// collides checks every pair for overlap, treating gap as required clearance.
func collides(rects []Rect, gap int) bool {
	half := gap / 2
	for i := 0; i < len(rects); i++ {
		a := grow(rects[i], half)
		for j := i + 1; j < len(rects); j++ {
			if a.Overlaps(grow(rects[j], half)) || rects[i].Overlaps(rects[j]) {
				return true
			}
		}
	}
	return false
}

func grow(r Rect, d int) Rect {
	return Rect{X: r.X - d, Y: r.Y - d, W: r.W + 2*d, H: r.H + 2*d}
}

func fits(rects []Rect, w, h int) bool {
	for _, r := range rects {
		if !r.Within(w, h) {
			return false
		}
	}
	return true
}

func commit(items []Item, rects []Rect, scale float64, method string, retries int) []Placed {
	out := make([]Placed, len(items))
	for i := range items {
		out[i] = Placed{Item: items[i], Bounds: rects[i], Scale: scale, Method: method, Retries: retries}
	}
	return out
}
