package core

import (
	"testing"

	"pkt.systems/conspool/schema"
)

func TestLineIndexTracksAppends(t *testing.T) {
	d := newTextStore()
	if d.LineCount() != 1 {
		t.Fatalf("expected empty document to have one line, got %d", d.LineCount())
	}
	d.Append("one\ntwo\nthr")
	if d.LineCount() != 3 {
		t.Fatalf("expected 3 lines, got %d", d.LineCount())
	}
	if d.lineText(0) != "one" || d.lineText(1) != "two" || d.lineText(2) != "thr" {
		t.Fatalf("unexpected lines: %q %q %q", d.lineText(0), d.lineText(1), d.lineText(2))
	}
	d.Append("ee\n")
	if d.lineText(2) != "three" {
		t.Fatalf("expected extended last line %q, got %q", "three", d.lineText(2))
	}
	if d.LineCount() != 4 {
		t.Fatalf("expected trailing newline to open an empty line, got %d lines", d.LineCount())
	}
}

func TestLineOfOffset(t *testing.T) {
	d := newTextStore()
	d.Append("ab\ncd\n")
	cases := []struct {
		off  int
		line int
	}{
		{0, 0}, {2, 0}, {3, 1}, {5, 1}, {6, 2},
	}
	for _, tc := range cases {
		if got := d.lineOfOffset(tc.off); got != tc.line {
			t.Fatalf("offset %d: expected line %d, got %d", tc.off, tc.line, got)
		}
	}
}

func TestInsertAtShiftsLinesAndAnnotations(t *testing.T) {
	d := newTextStore()
	d.Append("head\ntail")
	d.AddKindRange(5, 9, schema.KindError, nil)
	d.InsertAt(5, "mid\n")
	if d.Text() != "head\nmid\ntail" {
		t.Fatalf("unexpected text %q", d.Text())
	}
	if d.LineCount() != 3 || d.lineText(1) != "mid" {
		t.Fatalf("unexpected lines after insert: count=%d", d.LineCount())
	}
	ranges := d.Ranges()
	if len(ranges) != 1 || ranges[0].Start != 9 || ranges[0].End != 13 {
		t.Fatalf("expected shifted range [9,13), got %+v", ranges)
	}
}

func TestDeleteRangeClampsAnnotations(t *testing.T) {
	d := newTextStore()
	d.Append("aaabbbccc")
	d.AddKindRange(0, 3, schema.KindNormal, nil)
	d.AddKindRange(3, 6, schema.KindError, nil)
	d.AddKindRange(6, 9, schema.KindSystem, nil)
	d.DeleteRange(2, 7)
	if d.Text() != "aacc" {
		t.Fatalf("unexpected text %q", d.Text())
	}
	ranges := d.Ranges()
	if len(ranges) != 2 {
		t.Fatalf("expected middle range dropped, got %+v", ranges)
	}
	if ranges[0].Start != 0 || ranges[0].End != 2 {
		t.Fatalf("expected first range clamped to [0,2), got %+v", ranges[0])
	}
	if ranges[1].Start != 2 || ranges[1].End != 4 {
		t.Fatalf("expected last range shifted to [2,4), got %+v", ranges[1])
	}
}

func TestKindRangesMergeWhenAdjacent(t *testing.T) {
	d := newTextStore()
	d.Append("abcdef")
	d.AddKindRange(0, 3, schema.KindNormal, nil)
	d.AddKindRange(3, 6, schema.KindNormal, nil)
	ranges := d.Ranges()
	if len(ranges) != 1 || ranges[0].End != 6 {
		t.Fatalf("expected one merged range, got %+v", ranges)
	}
	kind, ok := d.KindAt(4)
	if !ok || kind != schema.KindNormal {
		t.Fatalf("expected normal kind at offset 4, got %v ok=%v", kind, ok)
	}
}

func TestTrimFrontKeepsNewestContent(t *testing.T) {
	d := newTextStore()
	d.Append("old\nnew\n")
	d.AddKindRange(0, 8, schema.KindNormal, nil)
	d.TrimFront(4)
	if d.Text() != "new\n" {
		t.Fatalf("unexpected text %q", d.Text())
	}
	if d.LineCount() != 2 {
		t.Fatalf("expected 2 lines, got %d", d.LineCount())
	}
	ranges := d.Ranges()
	if len(ranges) != 1 || ranges[0].Start != 0 || ranges[0].End != 4 {
		t.Fatalf("expected range clamped to [0,4), got %+v", ranges)
	}
}

func TestFoldRegionBookkeeping(t *testing.T) {
	d := newTextStore()
	d.Append("a\nb\nc\n")
	d.AddFold(schema.FoldRegion{Start: 0, End: 3, Placeholder: "2 lines", Classifier: "x"})
	if i := d.FoldEndingAt(3); i != 0 {
		t.Fatalf("expected fold ending at 3 found, got %d", i)
	}
	if i := d.foldTouchingLine(2); i != 0 {
		t.Fatalf("expected fold touching line 2, got %d", i)
	}
	if i := d.foldTouchingLine(3); i != -1 {
		t.Fatalf("expected no fold touching line 3, got %d", i)
	}
	d.SetFoldsExpanded(true)
	if !d.Folds()[0].Expanded {
		t.Fatalf("expected fold expanded")
	}
	d.RemoveFold(0)
	if len(d.Folds()) != 0 {
		t.Fatalf("expected no folds after removal")
	}
}

func TestAddLinkDeduplicates(t *testing.T) {
	d := newTextStore()
	d.Append("see https://example.com now")
	ref := schema.LinkRef{URL: "https://example.com"}
	if !d.AddLink(4, 23, ref) {
		t.Fatalf("expected first link recorded")
	}
	if d.AddLink(4, 23, ref) {
		t.Fatalf("expected duplicate link dropped")
	}
	if links := d.Links(); len(links) != 1 {
		t.Fatalf("expected one link, got %+v", links)
	}
}
