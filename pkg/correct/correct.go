package correct

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/agnivade/levenshtein"
)

// FieldKind tags a column / field so the matching correction strategy can be looked up.
type FieldKind string

const (
	FieldQty         FieldKind = "qty"
	FieldCode        FieldKind = "code"
	FieldDescription FieldKind = "description"
	FieldImageCodes  FieldKind = "image_codes"
)

// Result is the outcome of a single correction attempt.
type Result struct {
	Text    string
	Applied bool
	Warning string
}

// Strategy corrects one raw value of a given field kind.
type Strategy func(raw string, confidence float64) Result

const (
	defaultMaxQty          = 999
	defaultQtyWarnAbove    = 30
	defaultMaxCodeDistance = 1
	defaultMinConfidence   = 50
)

// digitConfusion maps characters OCR commonly returns in place of digits.
var digitConfusion = map[rune]rune{
	'O': '0', 'o': '0', 'Q': '0', 'D': '0',
	'l': '1', 'L': '1', 'I': '1', 'i': '1', '|': '1', '!': '1',
	'Z': '2', 'z': '2',
	'S': '5', 's': '5',
	'G': '6',
	'T': '7',
	'B': '8',
	'g': '9', 'q': '9',
}

var (
	digitRunRE   = regexp.MustCompile(`\d+`)
	imageCodeRE  = regexp.MustCompile(`^\d{4}$`)
	imageSplitRE = regexp.MustCompile(`[\s,;/|]+`)
	whitespaceRE = regexp.MustCompile(`\s+`)
)

// Options tunes the corrector. Zero values fall back to defaults.
type Options struct {
	MaxQty          int
	QtyWarnAbove    int
	MaxCodeDistance int
	MinConfidence   float64
}

// Corrector normalizes recognized text per field kind. It is immutable after
// construction and safe for concurrent use.
type Corrector struct {
	vocab      []string
	vocabSet   map[string]struct{}
	opts       Options
	strategies map[FieldKind]Strategy
}

// New builds a corrector for the given product-code vocabulary. Vocabulary order
// is kept: it breaks ties between equally distant nearest matches.
func New(vocabulary []string, opts Options) *Corrector {
	if opts.MaxQty <= 0 {
		opts.MaxQty = defaultMaxQty
	}
	if opts.QtyWarnAbove <= 0 {
		opts.QtyWarnAbove = defaultQtyWarnAbove
	}
	if opts.MaxCodeDistance <= 0 {
		opts.MaxCodeDistance = defaultMaxCodeDistance
	}
	if opts.MinConfidence <= 0 {
		opts.MinConfidence = defaultMinConfidence
	}
	c := &Corrector{opts: opts, vocabSet: map[string]struct{}{}}
	for _, v := range vocabulary {
		n := normalizeCode(v)
		if n == "" {
			continue
		}
		if _, dup := c.vocabSet[n]; dup {
			continue
		}
		c.vocabSet[n] = struct{}{}
		c.vocab = append(c.vocab, n)
	}
	c.strategies = map[FieldKind]Strategy{
		FieldQty:         c.quantity,
		FieldCode:        c.code,
		FieldDescription: description,
		FieldImageCodes:  imageCodes,
	}
	return c
}

// Correct applies the strategy registered for kind. Unknown kinds pass through untouched.
func (c *Corrector) Correct(kind FieldKind, raw string, confidence float64) Result {
	s, ok := c.strategies[kind]
	if !ok {
		return Result{Text: raw}
	}
	res := s(raw, confidence)
	if res.Warning != "" && confidence > 0 && confidence < c.opts.MinConfidence {
		res.Warning = fmt.Sprintf("%s (low OCR confidence %.0f)", res.Warning, confidence)
	}
	return res
}

// Vocabulary returns the normalized code vocabulary in declaration order.
func (c *Corrector) Vocabulary() []string {
	out := make([]string, len(c.vocab))
	copy(out, c.vocab)
	return out
}

func (c *Corrector) quantity(raw string, _ float64) Result {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Result{Text: "1", Applied: true, Warning: "quantity missing, defaulted to 1"}
	}
	mapped := strings.Join(strings.Fields(mapConfusables(trimmed)), "")
	run := digitRunRE.FindString(mapped)
	if run == "" {
		return Result{Text: "1", Applied: true, Warning: fmt.Sprintf("quantity %q unreadable, defaulted to 1", raw)}
	}
	n, err := strconv.Atoi(run)
	if err != nil || n < 1 || n > c.opts.MaxQty {
		return Result{Text: "1", Applied: true, Warning: fmt.Sprintf("quantity %q out of range, defaulted to 1", raw)}
	}
	out := strconv.Itoa(n)
	res := Result{Text: out}
	if out != trimmed {
		res.Applied = true
		res.Warning = fmt.Sprintf("quantity %q corrected to %s", raw, out)
	}
	if n > c.opts.QtyWarnAbove {
		w := fmt.Sprintf("quantity %d exceeds usual limit of %d", n, c.opts.QtyWarnAbove)
		if res.Warning != "" {
			w = res.Warning + "; " + w
		}
		res.Warning = w
	}
	return res
}

func (c *Corrector) code(raw string, _ float64) Result {
	norm := normalizeCode(raw)
	if norm == "" {
		return Result{Text: "", Warning: "product code missing"}
	}
	if _, ok := c.vocabSet[norm]; ok {
		return Result{Text: norm, Applied: norm != raw}
	}
	mapped := mapConfusables(norm)
	if _, ok := c.vocabSet[mapped]; ok && mapped != norm {
		return Result{Text: mapped, Applied: true, Warning: fmt.Sprintf("product code %q corrected to %s", raw, mapped)}
	}
	best, bestDist := "", c.opts.MaxCodeDistance+1
	for _, v := range c.vocab {
		if d := levenshtein.ComputeDistance(mapped, v); d < bestDist {
			best, bestDist = v, d
		}
	}
	if best != "" {
		return Result{Text: best, Applied: true, Warning: fmt.Sprintf("product code %q matched to %s (distance %d)", raw, best, bestDist)}
	}
	return Result{Text: norm, Applied: norm != raw, Warning: fmt.Sprintf("product code %q not in vocabulary", raw)}
}

func description(raw string, _ float64) Result {
	out := strings.TrimSpace(whitespaceRE.ReplaceAllString(raw, " "))
	return Result{Text: out, Applied: out != raw}
}

func imageCodes(raw string, _ float64) Result {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Result{Text: "", Warning: "image codes missing"}
	}
	var kept, warnings []string
	substituted := false
	for _, tok := range imageSplitRE.Split(trimmed, -1) {
		if tok == "" {
			continue
		}
		mapped := mapConfusables(tok)
		if !imageCodeRE.MatchString(mapped) {
			warnings = append(warnings, fmt.Sprintf("image code %q dropped", tok))
			continue
		}
		if mapped != tok {
			substituted = true
			warnings = append(warnings, fmt.Sprintf("image code %q corrected to %s", tok, mapped))
		}
		kept = append(kept, mapped)
	}
	out := strings.Join(kept, ", ")
	res := Result{Text: out, Applied: out != trimmed || substituted}
	if len(warnings) > 0 {
		res.Warning = strings.Join(warnings, "; ")
	}
	return res
}

// SplitImageCodes splits an already-corrected image code field.
func SplitImageCodes(s string) []string {
	var out []string
	for _, tok := range imageSplitRE.Split(strings.TrimSpace(s), -1) {
		if tok != "" {
			out = append(out, tok)
		}
	}
	return out
}

func normalizeCode(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.Join(strings.Fields(s), "")
	return strings.ReplaceAll(s, ",", ".")
}

// ConfusableDigits returns, sorted, every character the corrector reads back
// as a digit.
func ConfusableDigits() string {
	rs := make([]rune, 0, len(digitConfusion))
	for r := range digitConfusion {
		rs = append(rs, r)
	}
	sort.Slice(rs, func(i, j int) bool { return rs[i] < rs[j] })
	return string(rs)
}

func mapConfusables(s string) string {
	return strings.Map(func(r rune) rune {
		if d, ok := digitConfusion[r]; ok {
			return d
		}
		return r
	}, s)
}
