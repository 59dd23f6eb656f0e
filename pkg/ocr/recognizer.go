package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"orderpreview/pkg/correct"
)

// Fragment is one recognized text line. YCenter is in the pixel space of the
// image handed to the recognizer.
type Fragment struct {
	Text       string  `json:"text"`
	YCenter    float64 `json:"y_center"`
	Confidence float64 `json:"confidence"`
}

// Recognizer turns a preprocessed crop into text lines.
type Recognizer interface {
	Recognize(ctx context.Context, img image.Image, field correct.FieldKind) ([]Fragment, error)
}

// whitelists restrict tesseract to the characters a column can hold, plus the
// letters the corrector maps back to digits. Image codes leave out "|" since
// it separates codes.
var whitelists = map[correct.FieldKind]string{
	correct.FieldQty:        "0123456789" + correct.ConfusableDigits(),
	correct.FieldCode:       "0123456789." + correct.ConfusableDigits(),
	correct.FieldImageCodes: "0123456789, " + strings.ReplaceAll(correct.ConfusableDigits(), "|", ""),
}

// TesseractRecognizer runs gosseract with a single-block page segmentation.
// A fresh client is created per call so columns can be recognized in parallel.
type TesseractRecognizer struct {
	Language string
}

// Recognize returns one fragment per detected text line. The cgo call cannot be
// interrupted; on context expiry its result is abandoned.
func (t TesseractRecognizer) Recognize(ctx context.Context, img image.Image, field correct.FieldKind) ([]Fragment, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode crop: %w", err)
	}
	type result struct {
		frags []Fragment
		err   error
	}
	done := make(chan result, 1)
	go func() {
		frags, err := t.run(buf.Bytes(), field)
		done <- result{frags, err}
	}()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-done:
		return r.frags, r.err
	}
}

func (t TesseractRecognizer) run(data []byte, field correct.FieldKind) ([]Fragment, error) {
	client := gosseract.NewClient()
	defer client.Close()
	lang := t.Language
	if lang == "" {
		lang = "eng"
	}
	if err := client.SetLanguage(lang); err != nil {
		return nil, err
	}
	if err := client.SetPageSegMode(gosseract.PSM_SINGLE_BLOCK); err != nil {
		return nil, err
	}
	if wl, ok := whitelists[field]; ok {
		if err := client.SetWhitelist(wl); err != nil {
			return nil, err
		}
	}
	if err := client.SetImageFromBytes(data); err != nil {
		return nil, err
	}
	boxes, err := client.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return nil, err
	}
	var out []Fragment
	for _, box := range boxes {
		text := normalizeOCRText(strings.TrimSpace(box.Word))
		if text == "" {
			continue
		}
		out = append(out, Fragment{
			Text:       text,
			YCenter:    float64(box.Box.Min.Y+box.Box.Max.Y) / 2,
			Confidence: box.Confidence,
		})
	}
	return out, nil
}
