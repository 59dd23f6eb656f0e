package locate

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"path/filepath"
	"strings"
	"time"
	"unicode"
)

var (
	ErrNotFound = errors.New("no image file for code")
	ErrTimeout  = errors.New("image lookup timed out")
)

// Anchor controls where the code must sit in a file name.
type Anchor string

const (
	// AnchorSuffix requires the stem to end with the code, not preceded by a digit.
	AnchorSuffix Anchor = "suffix"
	// AnchorContains accepts the code anywhere in the stem as long as it is not part of a longer number.
	AnchorContains Anchor = "contains"
)

// DefaultExtensions are the image types searched when none are configured.
var DefaultExtensions = []string{".jpg", ".jpeg", ".png", ".tif", ".tiff", ".bmp"}

const DefaultTimeout = 10 * time.Second

// Locator maps image codes to files under Root. Traversal is lexical and
// depth-first, so the first match for a code is stable across runs.
type Locator struct {
	Root       string
	Extensions []string
	Anchor     Anchor
	Timeout    time.Duration
}

// Locate returns the first file for code.
func (l Locator) Locate(ctx context.Context, code string) (string, error) {
	found, errs := l.LocateAll(ctx, []string{code})
	if err := errs[code]; err != nil {
		return "", err
	}
	return found[code], nil
}

// LocateAll resolves many codes in a single walk. Codes without a file get
// ErrNotFound, or ErrTimeout when the walk was cut short.
func (l Locator) LocateAll(ctx context.Context, codes []string) (map[string]string, map[string]error) {
	found := map[string]string{}
	errs := map[string]error{}
	pending := map[string]bool{}
	for _, c := range codes {
		c = strings.TrimSpace(c)
		if c != "" {
			pending[c] = true
		}
	}
	if len(pending) == 0 {
		return found, errs
	}

	timeout := l.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	exts := map[string]bool{}
	for _, e := range l.extensions() {
		exts[strings.ToLower(e)] = true
	}
	walkErr := filepath.WalkDir(l.Root, func(path string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			if path == l.Root {
				return err
			}
			log.Printf("WARN locate skip %s: %v", path, err)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		name := d.Name()
		if d.IsDir() {
			if path != l.Root && strings.HasPrefix(name, ".") {
				return fs.SkipDir
			}
			return nil
		}
		ext := filepath.Ext(name)
		if !exts[strings.ToLower(ext)] || strings.HasPrefix(name, ".") {
			return nil
		}
		stem := strings.TrimSuffix(name, ext)
		for code := range pending {
			if l.matches(stem, code) {
				found[code] = path
				delete(pending, code)
			}
		}
		if len(pending) == 0 {
			return fs.SkipAll
		}
		return nil
	})

	var failure error
	switch {
	case walkErr == nil:
	case errors.Is(walkErr, context.DeadlineExceeded) || errors.Is(walkErr, context.Canceled):
		failure = ErrTimeout
	default:
		failure = fmt.Errorf("walk %s: %w", l.Root, walkErr)
	}
	for code := range pending {
		if failure != nil {
			errs[code] = failure
		} else {
			errs[code] = ErrNotFound
		}
	}
	return found, errs
}

func (l Locator) extensions() []string {
	if len(l.Extensions) > 0 {
		return l.Extensions
	}
	return DefaultExtensions
}

func (l Locator) matches(stem, code string) bool {
	if l.Anchor == AnchorContains {
		for i := 0; ; {
			j := strings.Index(stem[i:], code)
			if j < 0 {
				return false
			}
			start := i + j
			end := start + len(code)
			if !digitBefore(stem, start) && !digitAt(stem, end) {
				return true
			}
			i = start + 1
		}
	}
	return strings.HasSuffix(stem, code) && !digitBefore(stem, len(stem)-len(code))
}

func digitBefore(s string, i int) bool {
	if i <= 0 {
		return false
	}
	r := rune(s[i-1])
	return r < 0x80 && unicode.IsDigit(r)
}

func digitAt(s string, i int) bool {
	if i >= len(s) {
		return false
	}
	r := rune(s[i])
	return r < 0x80 && unicode.IsDigit(r)
}
