package order

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
)

const (
	maxDumpRows    = 18
	maxDumpFrames  = 6
	maxDumpRetouch = 8
)

// FrameRequest is a stand-alone frame line of the order.
type FrameRequest struct {
	Number      string `json:"number"`
	Quantity    int    `json:"qty"`
	Description string `json:"description"`
}

// Dump is an order read from a Label/Value field dump instead of a screenshot.
type Dump struct {
	Rows          []RowRecord    `json:"rows"`
	Frames        []FrameRequest `json:"frames,omitempty"`
	RetouchImages []string       `json:"retouch_images,omitempty"`
	ArtistSeries  map[int]string `json:"artist_series,omitempty"`
}

var dumpSplitRE = regexp.MustCompile(`[\s,]+`)

// ParseTSV reads a tab separated Label/Value dump ("Qty R1", "Prod R1",
// "Desc R1", "Img # R1", "Frame# F1", "RETOUCH Img #1", ...). Rows without any
// data are skipped; row indexes keep their dump numbering.
func ParseTSV(r io.Reader) (Dump, error) {
	values := map[string]string{}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(text) == "" {
			continue
		}
		label, value, ok := strings.Cut(text, "\t")
		if !ok {
			return Dump{}, fmt.Errorf("line %d: expected Label<TAB>Value", line)
		}
		label = strings.TrimSpace(label)
		if line == 1 && strings.EqualFold(label, "Label") {
			continue
		}
		values[strings.ToUpper(label)] = strings.TrimSpace(value)
	}
	if err := sc.Err(); err != nil {
		return Dump{}, fmt.Errorf("read dump: %w", err)
	}
	get := func(label string) string { return values[strings.ToUpper(label)] }

	var d Dump
	for i := 1; i <= maxDumpRows; i++ {
		qtyText := get(fmt.Sprintf("Qty R%d", i))
		rec := RowRecord{
			Index:       i,
			HasQuantity: qtyText != "",
			Code:        get(fmt.Sprintf("Prod R%d", i)),
			Description: get(fmt.Sprintf("Desc R%d", i)),
			Confidence:  100,
		}
		for _, tok := range dumpSplitRE.Split(get(fmt.Sprintf("Img # R%d", i)), -1) {
			if tok != "" {
				rec.ImageCodes = append(rec.ImageCodes, tok)
			}
		}
		artist := get(fmt.Sprintf("Artist Series R%d", i))
		if rec.Empty() && artist == "" {
			continue
		}
		if artist != "" {
			if d.ArtistSeries == nil {
				d.ArtistSeries = map[int]string{}
			}
			d.ArtistSeries[i] = artist
			rec.Artist = true
		}
		q, err := strconv.Atoi(qtyText)
		if err != nil || q < 1 {
			q = 1
			rec.Warnings = append(rec.Warnings, fmt.Sprintf("quantity %q defaulted to 1", qtyText))
		}
		rec.Quantity = q
		d.Rows = append(d.Rows, rec)
	}
	for i := 1; i <= maxDumpFrames; i++ {
		fr := FrameRequest{
			Number:      get(fmt.Sprintf("Frame# F%d", i)),
			Description: get(fmt.Sprintf("Frame Desc F%d", i)),
		}
		fr.Quantity, _ = strconv.Atoi(get(fmt.Sprintf("Frame Qty F%d", i)))
		if fr.Number != "" || fr.Description != "" || fr.Quantity != 0 {
			d.Frames = append(d.Frames, fr)
		}
	}
	for i := 1; i <= maxDumpRetouch; i++ {
		if v := get(fmt.Sprintf("RETOUCH Img #%d", i)); v != "" {
			d.RetouchImages = append(d.RetouchImages, v)
		}
	}
	return d, nil
}
