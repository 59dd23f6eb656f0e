package ocr

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"orderpreview/pkg/correct"
)

// ColumnFragments holds the fragments of one column in source image coordinates.
type ColumnFragments struct {
	Column    ColumnBox
	Fragments []Fragment
}

// Cell is the value of one column within a reconstructed row.
type Cell struct {
	Column     string            `json:"column"`
	Field      correct.FieldKind `json:"field"`
	Text       string            `json:"text"`
	Confidence float64           `json:"confidence"`
	YCenter    float64           `json:"y_center"`
	Present    bool              `json:"present"`
}

// RawRow is a reconstructed table row before correction. Cells follow column declaration order.
type RawRow struct {
	Index      int      `json:"index"`
	YPosition  float64  `json:"y_position"`
	Confidence float64  `json:"confidence"`
	Cells      []Cell   `json:"cells"`
	Warnings   []string `json:"warnings,omitempty"`
}

// Field returns the first present cell of the given kind.
func (r RawRow) Field(kind correct.FieldKind) (Cell, bool) {
	for _, c := range r.Cells {
		if c.Field == kind && c.Present {
			return c, true
		}
	}
	return Cell{Field: kind}, false
}

type placedFragment struct {
	col int
	f   Fragment
}

type rowBuilder struct {
	seedY float64
	slots []*Fragment
}

// ReconstructRows groups fragments of all columns into rows. Fragments are
// visited top to bottom (ties by column order then text); each joins the
// nearest open row whose seed lies at most tolerance above it and whose slot
// for that column is still free, earlier rows winning ties. Anything else
// seeds a new row, so no fragment is ever dropped.
func ReconstructRows(columns []ColumnFragments, tolerance float64) []RawRow {
	var all []placedFragment
	for ci, col := range columns {
		for _, f := range col.Fragments {
			if f.Text == "" {
				continue
			}
			all = append(all, placedFragment{col: ci, f: f})
		}
	}
	sort.SliceStable(all, func(i, j int) bool {
		a, b := all[i], all[j]
		if a.f.YCenter != b.f.YCenter {
			return a.f.YCenter < b.f.YCenter
		}
		if a.col != b.col {
			return a.col < b.col
		}
		return a.f.Text < b.f.Text
	})

	var rows []*rowBuilder
	for _, pf := range all {
		best := -1
		bestDist := 0.0
		for ri, r := range rows {
			if r.slots[pf.col] != nil {
				continue
			}
			d := pf.f.YCenter - r.seedY
			if d < 0 || d > tolerance {
				continue
			}
			if best == -1 || d < bestDist {
				best, bestDist = ri, d
			}
		}
		f := pf.f
		if best == -1 {
			r := &rowBuilder{seedY: f.YCenter, slots: make([]*Fragment, len(columns))}
			r.slots[pf.col] = &f
			rows = append(rows, r)
			continue
		}
		rows[best].slots[pf.col] = &f
	}

	out := make([]RawRow, 0, len(rows))
	for i, r := range rows {
		row := RawRow{Index: i + 1}
		var ys, confs []float64
		for ci, col := range columns {
			cell := Cell{Column: col.Column.Name, Field: col.Column.Field}
			if f := r.slots[ci]; f != nil {
				cell.Text = f.Text
				cell.Confidence = f.Confidence
				cell.YCenter = f.YCenter
				cell.Present = true
				ys = append(ys, f.YCenter)
				confs = append(confs, f.Confidence)
			} else {
				row.Warnings = append(row.Warnings, "missing "+string(col.Column.Field))
			}
			row.Cells = append(row.Cells, cell)
		}
		row.YPosition = stat.Mean(ys, nil)
		row.Confidence = stat.Mean(confs, nil)
		out = append(out, row)
	}
	return out
}
