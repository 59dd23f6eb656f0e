package order

import (
	"strings"
	"testing"

	"orderpreview/pkg/catalog"
)

func framesCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	opening := []catalog.Box{{X1: 0.1, Y1: 0.1, X2: 0.9, Y2: 0.9}}
	c, err := catalog.New(catalog.File{
		Products: []catalog.ProductSpec{
			{Slug: "pair_570", Code: "570", WidthIn: 10, HeightIn: 7, CountImages: 2, QuantityBehavior: catalog.QuantitySheet, SplitInto: "single_571", ParsingPatterns: []string{"570"}},
			{Slug: "single_571", Code: "571", WidthIn: 5, HeightIn: 7, FrameStylesAllowed: []string{"none", "black", "cherry"}, ParsingPatterns: []string{"571"}},
			{Slug: "basic_810", Code: "810", WidthIn: 8, HeightIn: 10, FrameStylesAllowed: []string{"none", "black", "cherry"}, ParsingPatterns: []string{"810"}},
			{Slug: "wallets", Code: "200", WidthIn: 8, HeightIn: 10, CountImages: 8, QuantityBehavior: catalog.QuantitySheet, ParsingPatterns: []string{"200"}},
		},
		Frames: []catalog.FrameSpec{
			{ProductSlug: "single_571", Style: "black", AssetPath: "5x7_black.png", Openings: opening},
			{ProductSlug: "single_571", Style: "cherry", AssetPath: "5x7_cherry.png", Openings: opening},
			{ProductSlug: "basic_810", Style: "black", AssetPath: "8x10_black.png", Openings: opening},
		},
	})
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	return c
}

func resolveAll(t *testing.T, cat *catalog.Catalog, rows ...RowRecord) []OrderRow {
	t.Helper()
	resolved, issues := ResolveAll(rows, cat)
	if len(issues) != 0 {
		t.Fatalf("unexpected issues %+v", issues)
	}
	return resolved
}

func TestApplyFramesSplitsShortQuantity(t *testing.T) {
	cat := framesCatalog(t)
	rows := resolveAll(t, cat, RowRecord{Index: 1, Quantity: 3, Code: "810", ImageCodes: []string{"0033"}})
	out, left := ApplyFrames(rows, map[string]map[string]int{"8x10": {"Black": 2}}, cat)
	if len(out) != 2 {
		t.Fatalf("expected framed and unframed rows got %+v", out)
	}
	if out[0].Frame == nil || out[0].FrameStyle != "black" || out[0].Quantity != 2 {
		t.Fatalf("expected 2 in black frames got %+v", out[0])
	}
	if out[1].Frame != nil || out[1].Quantity != 1 || out[1].Row.Index != 1 {
		t.Fatalf("expected 1 unframed on row 1 got %+v", out[1])
	}
	if len(left) != 0 {
		t.Fatalf("expected every frame used got %v", left)
	}
}

func TestApplyFramesSplitsPairIntoSingles(t *testing.T) {
	cat := framesCatalog(t)
	rows := resolveAll(t, cat, RowRecord{Index: 2, Quantity: 1, Code: "570", ImageCodes: []string{"0044", "0039"}})
	out, _ := ApplyFrames(rows, map[string]map[string]int{"5 x 7": {"cherry": 1, "black": 1}}, cat)
	if len(out) != 2 {
		t.Fatalf("expected two framed singles got %+v", out)
	}
	for i, want := range []struct{ code, style string }{{"0044", "black"}, {"0039", "cherry"}} {
		r := out[i]
		if r.Product.Slug != "single_571" || r.FrameStyle != want.style || r.Frame == nil {
			t.Fatalf("single %d: expected %s framed single got %+v", i, want.style, r)
		}
		if strings.Join(r.Row.ImageCodes, ",") != want.code || r.Row.Index != 2 {
			t.Fatalf("single %d: expected image %s on row 2 got %+v", i, want.code, r.Row)
		}
	}
	if rows[0].Product.Slug != "pair_570" || len(rows[0].Row.ImageCodes) != 2 {
		t.Fatalf("input rows must not change, got %+v", rows[0])
	}
}

func TestApplyFramesPairWithOneFrame(t *testing.T) {
	cat := framesCatalog(t)
	rows := resolveAll(t, cat, RowRecord{Index: 1, Quantity: 1, Code: "570", ImageCodes: []string{"0044", "0039"}})
	out, _ := ApplyFrames(rows, map[string]map[string]int{"5x7": {"black": 1}}, cat)
	if len(out) != 2 || out[0].Frame == nil || out[1].Frame != nil {
		t.Fatalf("expected one framed and one plain single got %+v", out)
	}
	if out[1].Product.Slug != "single_571" || out[1].Row.ImageCodes[0] != "0039" {
		t.Fatalf("expected plain single for 0039 got %+v", out[1])
	}
}

func TestApplyFramesLeavesSheetsAndReportsLeftovers(t *testing.T) {
	cat := framesCatalog(t)
	rows := resolveAll(t, cat,
		RowRecord{Index: 1, Quantity: 1, Code: "810", Description: "black frame", ImageCodes: []string{"0033"}},
		RowRecord{Index: 2, Quantity: 1, Code: "810", ImageCodes: []string{"0044"}},
		RowRecord{Index: 3, Quantity: 2, Code: "200", ImageCodes: []string{"0039"}},
	)
	out, left := ApplyFrames(rows, map[string]map[string]int{"8x10": {"black": 1, "cherry": 1}}, cat)
	if len(out) != 3 {
		t.Fatalf("expected rows unchanged in number got %d", len(out))
	}
	if out[1].Frame != nil {
		t.Fatalf("black frame was already used by row 1, got %+v", out[1])
	}
	if out[2].Frame != nil || out[2].Quantity != 2 {
		t.Fatalf("expected wallet sheet untouched got %+v", out[2])
	}
	if len(left) != 1 || left["8x10"]["cherry"] != 1 {
		t.Fatalf("expected unused cherry frame reported got %v", left)
	}
}

func TestApplyFramesEmptyTable(t *testing.T) {
	cat := framesCatalog(t)
	rows := resolveAll(t, cat, RowRecord{Index: 1, Quantity: 1, Code: "810", ImageCodes: []string{"0033"}})
	out, left := ApplyFrames(rows, nil, cat)
	if len(out) != 1 || out[0].Frame != nil || len(left) != 0 {
		t.Fatalf("expected no change got %+v %v", out, left)
	}
}

func TestBanner(t *testing.T) {
	retouch := map[string]bool{"0039": true}
	cases := []struct {
		row  RowRecord
		want string
	}{
		{RowRecord{Description: "8x10 BASIC", ImageCodes: []string{"0033"}}, ""},
		{RowRecord{Description: "8x10 Artist Series", ImageCodes: []string{"0033"}}, BannerArtistSeries},
		{RowRecord{Artist: true, ImageCodes: []string{"0033"}}, BannerArtistSeries},
		{RowRecord{Description: "8x10", ImageCodes: []string{"0044", "0039"}}, BannerRetouch},
		{RowRecord{Description: "brush strokes", ImageCodes: []string{"0039"}}, BannerArtistSeries + " + " + BannerRetouch},
		{RowRecord{Description: "artisan paper"}, ""},
	}
	for _, c := range cases {
		if got := Banner(OrderRow{Row: c.row}, retouch); got != c.want {
			t.Fatalf("Banner(%+v): expected %q got %q", c.row, c.want, got)
		}
	}
}
