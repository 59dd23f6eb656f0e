package order

import (
	"sort"
	"strings"

	"orderpreview/pkg/catalog"
)

// preferredColour is offered first when a size has frames in several colours.
const preferredColour = "black"

// ApplyFrames hands the counted frames of the order's frames table (size to
// colour to quantity) to rows of the same print size, in row order, and
// returns the new rows with whatever frames were left over.
//
// Single prints take as many frames as their quantity allows and are split
// into a framed and an unframed row when the table runs short. A sheet whose
// product names a SplitInto single gives up one print per available frame,
// each becoming a framed single; the prints left over stay a sheet, or a lone
// single when only one remains. Other sheets and multi-opening composites are
// left alone. Rows that already carry a frame consume a matching frame from
// the table without changing. Split rows keep their row index.
func ApplyFrames(rows []OrderRow, table map[string]map[string]int, cat *catalog.Catalog) ([]OrderRow, map[string]map[string]int) {
	left := map[string]map[string]int{}
	for size, colours := range table {
		key := strings.ToLower(strings.ReplaceAll(size, " ", ""))
		for colour, n := range colours {
			if n <= 0 {
				continue
			}
			if left[key] == nil {
				left[key] = map[string]int{}
			}
			left[key][strings.ToLower(colour)] += n
		}
	}
	if len(left) == 0 {
		return rows, left
	}

	out := make([]OrderRow, 0, len(rows))
	for _, r := range rows {
		switch {
		case r.Product.SplitInto != "":
			out = append(out, splitFramed(r, left, cat)...)
		case r.Product.QuantityBehavior != catalog.QuantityUnit || r.Product.CountImages != 1:
			out = append(out, r)
		case r.Frame != nil:
			take(left, r.Product.FrameSize(), r.FrameStyle, r.Quantity)
			out = append(out, r)
		default:
			out = append(out, frameUnit(r, left, cat)...)
		}
	}
	for size, colours := range left {
		for colour, n := range colours {
			if n == 0 {
				delete(colours, colour)
			}
		}
		if len(colours) == 0 {
			delete(left, size)
		}
	}
	return out, left
}

func frameUnit(r OrderRow, left map[string]map[string]int, cat *catalog.Catalog) []OrderRow {
	size := r.Product.FrameSize()
	remaining := r.Quantity
	var out []OrderRow
	for _, colour := range colours(left[size]) {
		if remaining == 0 {
			break
		}
		fr, ok := frameFor(r.Product, colour, cat)
		if !ok {
			continue
		}
		n := take(left, size, colour, remaining)
		framed := r
		framed.Quantity = n
		framed.FrameStyle = colour
		framed.Frame = &fr
		framed.Warnings = append([]string(nil), r.Warnings...)
		out = append(out, framed)
		remaining -= n
	}
	if remaining > 0 {
		r.Quantity = remaining
		out = append(out, r)
	}
	return out
}

func splitFramed(r OrderRow, left map[string]map[string]int, cat *catalog.Catalog) []OrderRow {
	single, ok := cat.Product(r.Product.SplitInto)
	if !ok {
		return []OrderRow{r}
	}
	size := single.FrameSize()
	var out []OrderRow
	var rest []string
	for _, code := range r.Row.ImageCodes {
		picked := false
		for _, colour := range colours(left[size]) {
			if left[size][colour] < r.Quantity {
				continue
			}
			fr, ok := frameFor(single, colour, cat)
			if !ok {
				continue
			}
			left[size][colour] -= r.Quantity
			out = append(out, singleRow(r, single, []string{code}, colour, &fr))
			picked = true
			break
		}
		if !picked {
			rest = append(rest, code)
		}
	}
	if len(out) == 0 {
		return []OrderRow{r}
	}
	switch len(rest) {
	case 0:
	case 1:
		out = append(out, singleRow(r, single, rest, catalog.StyleNone, nil))
	default:
		kept := r
		kept.Row.ImageCodes = rest
		kept.Warnings = append([]string(nil), r.Warnings...)
		out = append(out, kept)
	}
	return out
}

func singleRow(r OrderRow, p catalog.ProductSpec, codes []string, style string, fr *catalog.FrameSpec) OrderRow {
	row := r.Row
	row.ImageCodes = codes
	return OrderRow{
		Row:        row,
		Product:    p,
		FrameStyle: style,
		Frame:      fr,
		Quantity:   r.Quantity,
		Warnings:   append([]string(nil), r.Warnings...),
	}
}

func frameFor(p catalog.ProductSpec, colour string, cat *catalog.Catalog) (catalog.FrameSpec, bool) {
	for _, s := range p.FrameStylesAllowed {
		if strings.EqualFold(s, colour) {
			return cat.Frame(p.Slug, colour)
		}
	}
	return catalog.FrameSpec{}, false
}

func take(left map[string]map[string]int, size, colour string, n int) int {
	avail := left[size][colour]
	if avail <= 0 {
		return 0
	}
	n = min(n, avail)
	left[size][colour] -= n
	return n
}

// colours lists the colours still available, the preferred one first and the
// rest alphabetically.
func colours(counts map[string]int) []string {
	var out []string
	for c, n := range counts {
		if n > 0 {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if (out[i] == preferredColour) != (out[j] == preferredColour) {
			return out[i] == preferredColour
		}
		return out[i] < out[j]
	})
	return out
}
