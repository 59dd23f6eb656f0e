package pipeline

import (
	"errors"

	"orderpreview/pkg/catalog"
	"orderpreview/pkg/layout"
	"orderpreview/pkg/ocr"
)

var (
	ErrScreenshot = errors.New("screenshot unreadable")
	ErrNoRows     = errors.New("no order row could be resolved")
)

// Error kinds reported to callers and the diagnostics sink.
const (
	KindLayoutDrift    = "layout_drift"
	KindLayoutOverflow = "layout_overflow"
	KindConfiguration  = "configuration"
	KindBadInput       = "bad_input"
	KindEmptyOrder     = "empty_order"
	KindInternal       = "internal"
)

// Kind classifies a request failure so callers can react to it distinctly.
func Kind(err error) string {
	var (
		drift    *ocr.LayoutDriftError
		overflow *layout.OverflowError
		lcfg     *ocr.ConfigurationError
		ccfg     *catalog.ConfigurationError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &drift):
		return KindLayoutDrift
	case errors.As(err, &overflow):
		return KindLayoutOverflow
	case errors.As(err, &lcfg), errors.As(err, &ccfg), errors.Is(err, ocr.ErrRecognizerUnavailable):
		return KindConfiguration
	case errors.Is(err, ErrScreenshot):
		return KindBadInput
	case errors.Is(err, ErrNoRows):
		return KindEmptyOrder
	default:
		return KindInternal
	}
}
