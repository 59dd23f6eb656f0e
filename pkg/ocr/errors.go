package ocr

import (
	"errors"
	"fmt"
	"image/color"
	"strings"
)

// ErrRecognizerUnavailable is returned when no OCR engine is configured.
var ErrRecognizerUnavailable = errors.New("ocr recognizer unavailable")

// LayoutDriftError means the screenshot does not match the active layout version.
// Every column box is untrustworthy; recalibrate instead of retrying.
type LayoutDriftError struct {
	Version  string
	Sentinel Sentinel
	Index    int
	Got      color.NRGBA
	Want     color.NRGBA
	Delta    float64
}

func (e *LayoutDriftError) Error() string {
	return fmt.Sprintf("layout drift on %s: sentinel %d at (%d,%d) got rgb(%d,%d,%d) want rgb(%d,%d,%d) delta %.1f",
		e.Version, e.Index, e.Sentinel.X, e.Sentinel.Y,
		e.Got.R, e.Got.G, e.Got.B, e.Want.R, e.Want.G, e.Want.B, e.Delta)
}

// ConfigurationError is a load-time inconsistency in the layout map.
type ConfigurationError struct {
	Source   string
	Problems []string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Source, strings.Join(e.Problems, "; "))
}
