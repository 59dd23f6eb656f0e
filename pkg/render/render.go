package render

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"orderpreview/pkg/layout"
)

var (
	DefaultBackground = color.NRGBA{R: 245, G: 243, B: 238, A: 255}
	badgeFill         = color.NRGBA{R: 178, G: 34, B: 34, A: 235}
	badgeText         = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	bannerFill        = color.NRGBA{R: 0, G: 0, B: 0, A: 150}
	bannerText        = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	labelFill         = color.NRGBA{R: 255, G: 255, B: 255, A: 200}
	labelText         = color.NRGBA{R: 60, G: 60, B: 60, A: 255}
	watermarkText     = color.NRGBA{R: 255, G: 255, B: 255, A: 80}
)

// Logo corners.
const (
	BottomRight = "bottom_right"
	BottomLeft  = "bottom_left"
	TopRight    = "top_right"
	TopLeft     = "top_left"
)

const logoMargin = 20

// Tile is a rendered unit and where the layout placed it.
type Tile struct {
	Image    image.Image
	Bounds   layout.Rect
	Quantity int
	Banner   string // drawn across the top of the unit
	Label    string // unit size, drawn at the bottom edge
}

// Renderer assembles the final preview canvas.
type Renderer struct {
	Width         int
	Height        int
	Background    color.NRGBA
	QuantityBadge bool
	Watermark     string      // faint text centred over the whole preview
	Logo          image.Image // fitted into an eighth of the short canvas side
	LogoCorner    string      // bottom right when empty
}

// Render draws the background (center-cropped to the canvas, or a flat colour
// when bg is nil), every tile resized into its bounds with its banner, size
// label and, when enabled, a badge with the quantity on tiles ordered more
// than once. Branding goes on last.
func (r Renderer) Render(bg image.Image, tiles []Tile) *image.NRGBA {
	var canvas *image.NRGBA
	if bg != nil {
		canvas = imaging.Fill(bg, r.Width, r.Height, imaging.Center, imaging.Lanczos)
	} else {
		fill := r.Background
		if fill.A == 0 {
			fill = DefaultBackground
		}
		canvas = imaging.New(r.Width, r.Height, fill)
	}
	for _, t := range tiles {
		if t.Image == nil || t.Bounds.W <= 0 || t.Bounds.H <= 0 {
			continue
		}
		unit := imaging.Resize(t.Image, t.Bounds.W, t.Bounds.H, imaging.Lanczos)
		canvas = imaging.Overlay(canvas, unit, image.Pt(t.Bounds.X, t.Bounds.Y), 1.0)
		if t.Banner != "" {
			drawBanner(canvas, t.Bounds, t.Banner)
		}
		if t.Label != "" {
			drawLabel(canvas, t.Bounds, t.Label)
		}
		if r.QuantityBadge && t.Quantity > 1 {
			drawBadge(canvas, t.Bounds, t.Quantity)
		}
	}
	if r.Watermark != "" {
		drawWatermark(canvas, r.Watermark)
	}
	if r.Logo != nil {
		canvas = r.drawLogo(canvas)
	}
	return canvas
}

// drawBadge paints a filled circle with the quantity in the top right corner,
// kept inside the tile.
func drawBadge(dst *image.NRGBA, b layout.Rect, qty int) {
	radius := min(max(10, min(b.W, b.H)/10), (min(b.W, b.H)-1)/2)
	if radius < 1 {
		return
	}
	cx := b.X + b.W - 1 - radius
	cy := b.Y + radius
	circle(dst, cx, cy, radius, badgeFill)

	text := textImage(strconv.Itoa(qty), badgeText)
	th := basicfont.Face7x13.Metrics().Height.Ceil()
	if scale := max(1, radius/th); scale > 1 {
		text = imaging.Resize(text, text.Bounds().Dx()*scale, text.Bounds().Dy()*scale, imaging.NearestNeighbor)
	}
	pt := image.Pt(cx-text.Bounds().Dx()/2, cy-text.Bounds().Dy()/2)
	drawClipped(dst, text, pt, image.Rect(b.X, b.Y, b.X+b.W, b.Y+b.H))
}

// drawBanner darkens a strip across the top of the tile and centres the text
// in it. The strip grows with the tile but never beyond a quarter of it.
func drawBanner(dst *image.NRGBA, b layout.Rect, label string) {
	text := fitText(textImage(label, bannerText), b.W-8, max(1, b.H/24))
	h := min(text.Bounds().Dy()+8, b.H/4)
	if h <= 0 {
		return
	}
	strip := image.Rect(b.X, b.Y, b.X+b.W, b.Y+h)
	draw.Draw(dst, strip, image.NewUniform(bannerFill), image.Point{}, draw.Over)
	pt := image.Pt(b.X+(b.W-text.Bounds().Dx())/2, b.Y+(h-text.Bounds().Dy())/2)
	drawClipped(dst, text, pt, strip)
}

// drawLabel puts the text on a light chip centred on the bottom edge inside
// the tile.
func drawLabel(dst *image.NRGBA, b layout.Rect, label string) {
	text := fitText(textImage(label, labelText), b.W-8, 1)
	chip := image.Rect(0, 0, text.Bounds().Dx()+8, text.Bounds().Dy()+4)
	if chip.Dx() > b.W || chip.Dy() > b.H/3 {
		return
	}
	chip = chip.Add(image.Pt(b.X+(b.W-chip.Dx())/2, b.Y+b.H-chip.Dy()))
	draw.Draw(dst, chip, image.NewUniform(labelFill), image.Point{}, draw.Over)
	draw.Draw(dst, text.Bounds().Add(chip.Min.Add(image.Pt(4, 2))), text, image.Point{}, draw.Over)
}

// drawWatermark centres faint text sized to a twentieth of the canvas width
// per glyph row.
func drawWatermark(dst *image.NRGBA, label string) {
	w, h := dst.Bounds().Dx(), dst.Bounds().Dy()
	th := basicfont.Face7x13.Metrics().Height.Ceil()
	text := fitText(textImage(label, watermarkText), w, max(1, w/20/th))
	pt := image.Pt((w-text.Bounds().Dx())/2, (h-text.Bounds().Dy())/2)
	draw.Draw(dst, text.Bounds().Add(pt), text, image.Point{}, draw.Over)
}

func (r Renderer) drawLogo(dst *image.NRGBA) *image.NRGBA {
	w, h := dst.Bounds().Dx(), dst.Bounds().Dy()
	side := min(w, h) / 8
	if side < 1 {
		return dst
	}
	logo := imaging.Fit(r.Logo, side, side, imaging.Lanczos)
	lw, lh := logo.Bounds().Dx(), logo.Bounds().Dy()
	var pt image.Point
	switch r.LogoCorner {
	case BottomLeft:
		pt = image.Pt(logoMargin, h-lh-logoMargin)
	case TopRight:
		pt = image.Pt(w-lw-logoMargin, logoMargin)
	case TopLeft:
		pt = image.Pt(logoMargin, logoMargin)
	default:
		pt = image.Pt(w-lw-logoMargin, h-lh-logoMargin)
	}
	return imaging.Overlay(dst, logo, pt, 1.0)
}

// drawClipped draws src with its origin at pt, keeping only what falls in clip.
func drawClipped(dst *image.NRGBA, src image.Image, pt image.Point, clip image.Rectangle) {
	r := src.Bounds().Add(pt).Intersect(clip)
	if r.Empty() {
		return
	}
	draw.Draw(dst, r, src, r.Min.Sub(pt), draw.Over)
}

// textImage renders one line in the fixed 7x13 face on a transparent image.
func textImage(label string, c color.NRGBA) *image.NRGBA {
	face := basicfont.Face7x13
	d := &font.Drawer{Face: face}
	tw := d.MeasureString(label).Ceil()
	img := image.NewNRGBA(image.Rect(0, 0, tw+2, face.Metrics().Height.Ceil()))
	d.Dst = img
	d.Src = image.NewUniform(c)
	d.Dot = fixed.P(1, face.Metrics().Ascent.Ceil())
	d.DrawString(label)
	return img
}

// fitText enlarges text by an integer factor up to scale, stepping down
// until it is no wider than maxW.
func fitText(text *image.NRGBA, maxW, scale int) *image.NRGBA {
	for ; scale > 1; scale-- {
		if text.Bounds().Dx()*scale <= maxW {
			return imaging.Resize(text, text.Bounds().Dx()*scale, text.Bounds().Dy()*scale, imaging.NearestNeighbor)
		}
	}
	return text
}

func circle(dst *image.NRGBA, cx, cy, radius int, c color.NRGBA) {
	src := image.NewUniform(c)
	r2 := radius * radius
	for y := -radius; y <= radius; y++ {
		for x := -radius; x <= radius; x++ {
			if x*x+y*y > r2 {
				continue
			}
			p := image.Pt(cx+x, cy+y)
			if !p.In(dst.Bounds()) {
				continue
			}
			draw.Draw(dst, image.Rect(p.X, p.Y, p.X+1, p.Y+1), src, image.Point{}, draw.Over)
		}
	}
}

// Save writes the preview as JPEG or PNG depending on the extension.
func Save(img image.Image, path string) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return imaging.Save(img, path, imaging.JPEGQuality(90))
	case ".png":
		return imaging.Save(img, path)
	default:
		return fmt.Errorf("unsupported preview format %q", filepath.Ext(path))
	}
}

// LoadBackground opens a background image; an empty path means a flat colour.
func LoadBackground(path string) (image.Image, error) {
	if path == "" {
		return nil, nil
	}
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("open background: %w", err)
	}
	return img, nil
}
