package ocr

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	frameLineRE   = regexp.MustCompile(`(?i)(\d+)\s+(\d+)\s+(\d+\s*x\s*\d+)\s+(black|cherry)`)
	retouchLineRE = regexp.MustCompile(`(?i)(\d+)\s+(artist brush strokes.*)`)
)

// RetouchItem is one ordered retouch service.
type RetouchItem struct {
	Name     string `json:"name"`
	Quantity int    `json:"qty"`
}

// Extras carries the side tables read next to the order grid.
type Extras struct {
	// Frames maps size ("8x10") to colour to ordered quantity.
	Frames       map[string]map[string]int `json:"frames,omitempty"`
	Retouch      []RetouchItem             `json:"retouch,omitempty"`
	ArtistSeries bool                      `json:"artist_series"`
}

// ParseFrameLines aggregates "qty number WxH colour" lines by size and colour.
func ParseFrameLines(lines []string) map[string]map[string]int {
	counts := map[string]map[string]int{}
	for _, ln := range lines {
		m := frameLineRE.FindStringSubmatch(ln)
		if m == nil {
			continue
		}
		qty, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		size := strings.ToLower(strings.ReplaceAll(m[3], " ", ""))
		colour := strings.ToLower(m[4])
		if counts[size] == nil {
			counts[size] = map[string]int{}
		}
		counts[size][colour] += qty
	}
	return counts
}

// ParseRetouchLines collects artist brush stroke items. The artist series flag
// is set when the phrase appears at all, even without a quantity.
func ParseRetouchLines(lines []string) ([]RetouchItem, bool) {
	var items []RetouchItem
	artist := false
	for _, ln := range lines {
		if strings.Contains(strings.ToLower(ln), "artist brush strokes") {
			artist = true
		}
		m := retouchLineRE.FindStringSubmatch(ln)
		if m == nil {
			continue
		}
		qty, err := strconv.Atoi(m[1])
		if err != nil || qty <= 0 {
			continue
		}
		items = append(items, RetouchItem{Name: strings.TrimSpace(m[2]), Quantity: qty})
	}
	return items, artist
}
