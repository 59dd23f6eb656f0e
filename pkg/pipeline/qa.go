package pipeline

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"

	"orderpreview/pkg/ocr"
	"orderpreview/pkg/order"
)

var qaHeader = []string{"Row", "Qty", "Code", "Description", "Image_Codes", "FramesCherry", "FramesBlack", "Retouch", "Confidence", "Warnings"}

// writeQA writes the review sheet: one line per row with the order level
// frame and retouch totals repeated on each line.
func writeQA(path string, rows []order.RowRecord, ex ocr.Extras) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	cherry, black := 0, 0
	for _, colours := range ex.Frames {
		cherry += colours["cherry"]
		black += colours["black"]
	}
	retouch := make([]string, 0, len(ex.Retouch))
	for _, r := range ex.Retouch {
		retouch = append(retouch, fmt.Sprintf("%dx %s", r.Quantity, r.Name))
	}

	w := csv.NewWriter(f)
	if err := w.Write(qaHeader); err != nil {
		return err
	}
	for _, r := range rows {
		qty := ""
		if r.Quantity > 0 {
			qty = strconv.Itoa(r.Quantity)
		}
		rec := []string{
			strconv.Itoa(r.Index),
			qty,
			r.Code,
			r.Description,
			strings.Join(r.ImageCodes, ", "),
			strconv.Itoa(cherry),
			strconv.Itoa(black),
			strings.Join(retouch, "; "),
			fmt.Sprintf("%.1f%%", r.Confidence),
			strings.Join(r.Warnings, "; "),
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}
