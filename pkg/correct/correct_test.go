package correct

import (
	"bytes"
	"strings"
	"testing"
)

var testVocab = []string{"001", "200", "350", "510.3", "570", "810", "1013", "1020.5", "1620", "2024"}

func TestQuantityConfusionCorrected(t *testing.T) {
	c := New(testVocab, Options{})
	res := c.Correct(FieldQty, "1O", 35)
	if res.Text != "10" {
		t.Fatalf("expected 10 got %q", res.Text)
	}
	if !res.Applied || res.Warning == "" {
		t.Fatalf("expected applied correction with warning, got %+v", res)
	}
	if !strings.Contains(res.Warning, "low OCR confidence") {
		t.Fatalf("expected low confidence note in warning, got %q", res.Warning)
	}
}

func TestQuantityDefaultsToOne(t *testing.T) {
	c := New(testVocab, Options{})
	for _, raw := range []string{"", "x", "0", "-"} {
		res := c.Correct(FieldQty, raw, 90)
		if res.Text != "1" || res.Warning == "" {
			t.Fatalf("raw %q: expected default 1 with warning, got %+v", raw, res)
		}
	}
}

func TestQuantityLargeKeptWithWarning(t *testing.T) {
	c := New(testVocab, Options{})
	res := c.Correct(FieldQty, "45", 90)
	if res.Text != "45" || res.Applied {
		t.Fatalf("expected 45 untouched, got %+v", res)
	}
	if res.Warning == "" {
		t.Fatalf("expected warning for quantity above usual limit")
	}
}

func TestCodeCorrection(t *testing.T) {
	c := New(testVocab, Options{})
	cases := []struct {
		raw, want string
		applied   bool
	}{
		{"810", "810", false},
		{" 8 10 ", "810", true},
		{"8lO", "810", true},
		{"510,3", "510.3", true},
		{"1O20.5", "1020.5", true},
		{"1621", "1620", true},
		{"9999", "9999", false},
	}
	for _, tc := range cases {
		res := c.Correct(FieldCode, tc.raw, 90)
		if res.Text != tc.want {
			t.Fatalf("raw %q: expected %q got %q", tc.raw, tc.want, res.Text)
		}
		if res.Applied != tc.applied {
			t.Fatalf("raw %q: expected applied=%v got %+v", tc.raw, tc.applied, res)
		}
	}
	if res := c.Correct(FieldCode, "9999", 90); res.Warning == "" {
		t.Fatalf("expected warning for unknown code")
	}
}

func TestCodeNearestTieUsesVocabularyOrder(t *testing.T) {
	c := New([]string{"571", "572"}, Options{})
	res := c.Correct(FieldCode, "570", 90)
	if res.Text != "571" {
		t.Fatalf("expected first declared candidate 571 got %q", res.Text)
	}
}

func TestImageCodesDropBadTokens(t *testing.T) {
	c := New(testVocab, Options{})
	res := c.Correct(FieldImageCodes, "0033, OO44;12 9198/abcd", 90)
	if res.Text != "0033, 0044, 9198" {
		t.Fatalf("unexpected image codes %q", res.Text)
	}
	if !strings.Contains(res.Warning, `"12" dropped`) || !strings.Contains(res.Warning, `"abcd" dropped`) {
		t.Fatalf("expected per-token drop warnings, got %q", res.Warning)
	}
	got := SplitImageCodes(res.Text)
	if len(got) != 3 || got[1] != "0044" {
		t.Fatalf("unexpected split %v", got)
	}
}

func TestCorrectIsIdempotent(t *testing.T) {
	c := New(testVocab, Options{})
	inputs := map[FieldKind][]string{
		FieldQty:         {"", "1", "l2", "S", "abc", "1000", "45", " 3 "},
		FieldCode:        {"", "810", "8lO", "51O.3", "zzz", "1621", "a b c", "200"},
		FieldImageCodes:  {"", "0033", "OO33,0044", "12 34", "1555 9198 5615", "x"},
		FieldDescription: {"", "  8x10   BASIC ", "pair 5x7"},
	}
	for kind, raws := range inputs {
		for _, raw := range raws {
			once := c.Correct(kind, raw, 30)
			twice := c.Correct(kind, once.Text, 30)
			if once.Text != twice.Text {
				t.Fatalf("%s %q: not idempotent: %q then %q", kind, raw, once.Text, twice.Text)
			}
		}
	}
}

func TestAuditCSV(t *testing.T) {
	c := New(testVocab, Options{})
	var a Audit
	a.Record(1, FieldQty, "1O", c.Correct(FieldQty, "1O", 90))
	a.Record(1, FieldCode, "810", c.Correct(FieldCode, "810", 90))
	if n := len(a.Entries()); n != 1 {
		t.Fatalf("expected 1 entry (untouched values skipped) got %d", n)
	}
	var buf bytes.Buffer
	if err := a.WriteCSV(&buf); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[1], "1,qty,1O,10,true") {
		t.Fatalf("unexpected csv %q", buf.String())
	}
}

func TestConfusableDigits(t *testing.T) {
	got := ConfusableDigits()
	if len([]rune(got)) != len(digitConfusion) {
		t.Fatalf("expected %d characters got %q", len(digitConfusion), got)
	}
	if got != ConfusableDigits() {
		t.Fatalf("expected a stable order")
	}
	for _, r := range got {
		if _, ok := digitConfusion[r]; !ok {
			t.Fatalf("unexpected character %q", r)
		}
	}
}
