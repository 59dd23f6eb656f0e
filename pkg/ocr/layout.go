package ocr

import (
	"fmt"
	"image"
	"image/color"

	"orderpreview/pkg/correct"
)

// DefaultLayoutVersion is the order form build the default boxes were measured on (1680x1050 capture).
const DefaultLayoutVersion = "FileOrder_v1.10.25"

// ColumnBox is one column of the order table in screenshot pixels.
type ColumnBox struct {
	Name  string            `yaml:"name" json:"name"`
	X1    int               `yaml:"x1" json:"x1"`
	Y1    int               `yaml:"y1" json:"y1"`
	X2    int               `yaml:"x2" json:"x2"`
	Y2    int               `yaml:"y2" json:"y2"`
	Field correct.FieldKind `yaml:"field" json:"field"`
}

// Rect returns the box as an image rectangle.
func (c ColumnBox) Rect() image.Rectangle { return image.Rect(c.X1, c.Y1, c.X2, c.Y2) }

// Sentinel is a pixel that must keep its reference colour while the form layout is unchanged.
type Sentinel struct {
	X int   `yaml:"x" json:"x"`
	Y int   `yaml:"y" json:"y"`
	R uint8 `yaml:"r" json:"r"`
	G uint8 `yaml:"g" json:"g"`
	B uint8 `yaml:"b" json:"b"`
}

// Expected returns the reference colour.
func (s Sentinel) Expected() color.NRGBA { return color.NRGBA{R: s.R, G: s.G, B: s.B, A: 255} }

// ROI is an auxiliary region read as free text (frames table, retouch box).
type ROI struct {
	Name string `yaml:"name" json:"name"`
	X1   int    `yaml:"x1" json:"x1"`
	Y1   int    `yaml:"y1" json:"y1"`
	X2   int    `yaml:"x2" json:"x2"`
	Y2   int    `yaml:"y2" json:"y2"`
}

// Rect returns the region as an image rectangle.
func (r ROI) Rect() image.Rectangle { return image.Rect(r.X1, r.Y1, r.X2, r.Y2) }

// Region names understood by the extractor.
const (
	ROIFrames  = "FRAMES"
	ROIRetouch = "RETOUCH"
)

// LayoutMap describes where the order table sits on a screenshot of one form version.
// It is loaded once and shared read-only between requests.
type LayoutMap struct {
	Version           string      `yaml:"version" json:"version"`
	Columns           []ColumnBox `yaml:"columns" json:"columns"`
	Sentinels         []Sentinel  `yaml:"sentinels" json:"sentinels"`
	SentinelTolerance float64     `yaml:"sentinel_tolerance" json:"sentinel_tolerance"`
	PadX              int         `yaml:"pad_x" json:"pad_x"`
	PadY              int         `yaml:"pad_y" json:"pad_y"`
	RowTolerance      float64     `yaml:"row_tolerance" json:"row_tolerance"`
	Upscale           int         `yaml:"upscale" json:"upscale"`
	ROIs              []ROI       `yaml:"rois" json:"rois"`
}

// DefaultLayoutMap returns the calibrated layout of the reference capture.
func DefaultLayoutMap() LayoutMap {
	bg := func(x, y int) Sentinel { return Sentinel{X: x, Y: y, R: 240, G: 240, B: 240} }
	return LayoutMap{
		Version: DefaultLayoutVersion,
		Columns: []ColumnBox{
			{Name: "QTY", X1: 30, Y1: 430, X2: 70, Y2: 875, Field: correct.FieldQty},
			{Name: "CODE", X1: 70, Y1: 430, X2: 150, Y2: 875, Field: correct.FieldCode},
			{Name: "DESC", X1: 150, Y1: 430, X2: 550, Y2: 875, Field: correct.FieldDescription},
			{Name: "IMG", X1: 550, Y1: 430, X2: 700, Y2: 875, Field: correct.FieldImageCodes},
		},
		Sentinels:         []Sentinel{bg(50, 420), bg(300, 420), bg(600, 420), bg(50, 450), bg(600, 450)},
		SentinelTolerance: 30,
		PadX:              4,
		PadY:              2,
		RowTolerance:      20,
		Upscale:           3,
		ROIs: []ROI{
			{Name: ROIFrames, X1: 1120, Y1: 500, X2: 1580, Y2: 760},
			{Name: ROIRetouch, X1: 970, Y1: 300, X2: 1270, Y2: 450},
		},
	}
}

// Validate reports every inconsistency at once.
func (m LayoutMap) Validate() error {
	var problems []string
	if m.Version == "" {
		problems = append(problems, "layout version is empty")
	}
	if len(m.Columns) == 0 {
		problems = append(problems, "no columns defined")
	}
	seen := map[string]bool{}
	hasQty := false
	for i, c := range m.Columns {
		if c.Name == "" {
			problems = append(problems, fmt.Sprintf("column %d has no name", i))
		}
		if seen[c.Name] {
			problems = append(problems, fmt.Sprintf("duplicate column %q", c.Name))
		}
		seen[c.Name] = true
		if c.X2 <= c.X1 || c.Y2 <= c.Y1 || c.X1 < 0 || c.Y1 < 0 {
			problems = append(problems, fmt.Sprintf("column %q has an empty or inverted box", c.Name))
		}
		switch c.Field {
		case correct.FieldQty:
			hasQty = true
		case correct.FieldCode, correct.FieldDescription, correct.FieldImageCodes:
		default:
			problems = append(problems, fmt.Sprintf("column %q has unknown field kind %q", c.Name, c.Field))
		}
	}
	if len(m.Columns) > 0 && !hasQty {
		problems = append(problems, "no qty column")
	}
	for i, r := range m.ROIs {
		if r.X2 <= r.X1 || r.Y2 <= r.Y1 {
			problems = append(problems, fmt.Sprintf("region %d (%s) has an empty or inverted box", i, r.Name))
		}
	}
	if m.SentinelTolerance <= 0 {
		problems = append(problems, "sentinel tolerance must be positive")
	}
	if m.RowTolerance <= 0 {
		problems = append(problems, "row tolerance must be positive")
	}
	if m.Upscale < 1 {
		problems = append(problems, "upscale must be at least 1")
	}
	if len(problems) > 0 {
		return &ConfigurationError{Source: "layout map " + m.Version, Problems: problems}
	}
	return nil
}

// ROI returns the named region, if configured.
func (m LayoutMap) ROI(name string) (ROI, bool) {
	for _, r := range m.ROIs {
		if r.Name == name {
			return r, true
		}
	}
	return ROI{}, false
}

// columnIndex maps column names to declaration order.
func (m LayoutMap) columnIndex() map[string]int {
	idx := make(map[string]int, len(m.Columns))
	for i, c := range m.Columns {
		idx[c.Name] = i
	}
	return idx
}
