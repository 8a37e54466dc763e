package core

import (
	"bytes"
	"sort"
	"strings"
	"sync/atomic"

	"pkt.systems/conspool/schema"
)

// textStore is the rendered console document plus its annotations: kind
// ranges (disjoint, sorted), hyperlinks (sorted by start) and fold regions
// (non-overlapping, sorted). It is owned by the render context and needs
// no lock; size is mirrored atomically for ContentSize callers on other
// goroutines.
type textStore struct {
	text       []byte
	lineStarts []int
	size       atomic.Int64
	ranges     []schema.TokenRange
	links      []schema.TokenRange
	folds      []schema.FoldRegion
}

func newTextStore() *textStore {
	return &textStore{lineStarts: []int{0}}
}

func (s *textStore) Len() int { return len(s.text) }

func (s *textStore) Text() string { return string(s.text) }

// SizeHint reports the document length; safe from any goroutine.
func (s *textStore) SizeHint() int { return int(s.size.Load()) }

// LineCount reports the number of lines; a trailing newline opens an
// empty last line, and an empty document has one empty line.
func (s *textStore) LineCount() int { return len(s.lineStarts) }

func (s *textStore) lineStart(i int) int {
	if i < 0 {
		return 0
	}
	if i >= len(s.lineStarts) {
		return len(s.text)
	}
	return s.lineStarts[i]
}

// lineEnd reports the offset of the line's newline, or the document end.
func (s *textStore) lineEnd(i int) int {
	if i+1 < len(s.lineStarts) {
		return s.lineStarts[i+1] - 1
	}
	return len(s.text)
}

func (s *textStore) lineText(i int) string {
	return string(s.text[s.lineStart(i):s.lineEnd(i)])
}

// lineOfOffset reports the line containing the given offset.
func (s *textStore) lineOfOffset(off int) int {
	if off <= 0 {
		return 0
	}
	if off >= len(s.text) {
		return len(s.lineStarts) - 1
	}
	return sort.Search(len(s.lineStarts), func(i int) bool { return s.lineStarts[i] > off }) - 1
}

// lastLineStart reports the start offset of the last line.
func (s *textStore) lastLineStart() int {
	return s.lineStarts[len(s.lineStarts)-1]
}

// lastNewlineBefore reports the offset of the last newline strictly
// before off, or -1.
func (s *textStore) lastNewlineBefore(off int) int {
	if off > len(s.text) {
		off = len(s.text)
	}
	if off <= 0 {
		return -1
	}
	return bytes.LastIndexByte(s.text[:off], '\n')
}

// Append adds text at the document end.
func (s *textStore) Append(text string) {
	off := len(s.text)
	s.text = append(s.text, text...)
	for p := 0; ; {
		i := strings.IndexByte(text[p:], '\n')
		if i < 0 {
			break
		}
		p += i + 1
		s.lineStarts = append(s.lineStarts, off+p)
	}
	s.size.Store(int64(len(s.text)))
}

// InsertAt splices text into the document and shifts annotations at or
// after the insertion point. Annotations spanning the point are extended.
func (s *textStore) InsertAt(off int, text string) {
	if off >= len(s.text) {
		s.Append(text)
		return
	}
	n := len(text)
	s.text = append(s.text[:off], append([]byte(text), s.text[off:]...)...)

	li := sort.SearchInts(s.lineStarts, off+1)
	for i := li; i < len(s.lineStarts); i++ {
		s.lineStarts[i] += n
	}
	var added []int
	for p := 0; ; {
		i := strings.IndexByte(text[p:], '\n')
		if i < 0 {
			break
		}
		p += i + 1
		added = append(added, off+p)
	}
	if len(added) > 0 {
		s.lineStarts = append(s.lineStarts[:li], append(added, s.lineStarts[li:]...)...)
	}

	s.ranges = shiftSpans(s.ranges, off, n)
	s.links = shiftSpans(s.links, off, n)
	s.folds = shiftFolds(s.folds, off, n)
	s.size.Store(int64(len(s.text)))
}

// DeleteRange removes [start, end) and drops or clamps annotations.
func (s *textStore) DeleteRange(start, end int) {
	if start < 0 {
		start = 0
	}
	if end > len(s.text) {
		end = len(s.text)
	}
	if start >= end {
		return
	}
	n := end - start
	s.text = append(s.text[:start], s.text[end:]...)

	keep := s.lineStarts[:1]
	for _, ls := range s.lineStarts[1:] {
		switch {
		case ls <= start:
			keep = append(keep, ls)
		case ls > end:
			keep = append(keep, ls-n)
		}
	}
	s.lineStarts = keep

	s.ranges = cutSpans(s.ranges, start, end)
	s.links = cutSpans(s.links, start, end)
	s.folds = cutFolds(s.folds, start, end)
	s.size.Store(int64(len(s.text)))
}

// TrimFront drops the oldest n characters, enforcing cyclic capacity.
func (s *textStore) TrimFront(n int) {
	s.DeleteRange(0, n)
}

// Clear empties the document and every annotation.
func (s *textStore) Clear() {
	s.text = s.text[:0]
	s.lineStarts = s.lineStarts[:1]
	s.ranges = nil
	s.links = nil
	s.folds = nil
	s.size.Store(0)
}

// ClearRegions drops hyperlinks and fold regions but keeps kind ranges.
func (s *textStore) ClearRegions() {
	s.links = nil
	s.folds = nil
}

// ClearFolds drops fold regions only.
func (s *textStore) ClearFolds() {
	s.folds = nil
}

// AddKindRange annotates [start, end) with a content kind, merging with an
// adjacent range of the same kind when neither carries a link.
func (s *textStore) AddKindRange(start, end int, kind schema.ContentKind, link *schema.LinkRef) {
	if start >= end {
		return
	}
	i := sort.Search(len(s.ranges), func(i int) bool { return s.ranges[i].Start >= start })
	if i > 0 && link == nil {
		prev := &s.ranges[i-1]
		if prev.End == start && prev.Kind == kind && prev.Link == nil {
			prev.End = end
			return
		}
	}
	r := schema.TokenRange{Start: start, End: end, Kind: kind, Link: link}
	s.ranges = append(s.ranges[:i], append([]schema.TokenRange{r}, s.ranges[i:]...)...)
}

// ExtendKindRange grows the range ending at the given offset, if any.
func (s *textStore) ExtendKindRange(end, by int) {
	for i := len(s.ranges) - 1; i >= 0; i-- {
		if s.ranges[i].End == end {
			s.ranges[i].End += by
			return
		}
		if s.ranges[i].End < end {
			return
		}
	}
}

// KindAt reports the content kind covering the given offset.
func (s *textStore) KindAt(off int) (schema.ContentKind, bool) {
	i := sort.Search(len(s.ranges), func(i int) bool { return s.ranges[i].End > off })
	if i < len(s.ranges) && s.ranges[i].Start <= off {
		return s.ranges[i].Kind, true
	}
	return "", false
}

// AddLink records a hyperlink over [start, end) and reports whether it
// was new. Exact duplicates are dropped so a heavy patch does not double
// a light result.
func (s *textStore) AddLink(start, end int, ref schema.LinkRef) bool {
	i := sort.Search(len(s.links), func(i int) bool { return s.links[i].Start >= start })
	for j := i; j < len(s.links) && s.links[j].Start == start; j++ {
		if s.links[j].End == end {
			return false
		}
	}
	r := schema.TokenRange{Start: start, End: end, Link: &ref}
	s.links = append(s.links[:i], append([]schema.TokenRange{r}, s.links[i:]...)...)
	return true
}

// AddFold inserts a fold region keeping the set sorted.
func (s *textStore) AddFold(region schema.FoldRegion) {
	i := sort.Search(len(s.folds), func(i int) bool { return s.folds[i].Start >= region.Start })
	s.folds = append(s.folds[:i], append([]schema.FoldRegion{region}, s.folds[i:]...)...)
}

// FoldEndingAt returns the index of the fold region ending at the given
// offset, or -1.
func (s *textStore) FoldEndingAt(end int) int {
	for i := len(s.folds) - 1; i >= 0; i-- {
		if s.folds[i].End == end {
			return i
		}
		if s.folds[i].End < end {
			break
		}
	}
	return -1
}

// foldTouchingLine returns the index of the fold region whose last line
// is the given line or the one before it, or -1. Regions are disjoint,
// so only the last one can qualify.
func (s *textStore) foldTouchingLine(line int) int {
	n := len(s.folds)
	if n == 0 {
		return -1
	}
	if s.lineOfOffset(s.folds[n-1].End) >= line-1 {
		return n - 1
	}
	return -1
}

// RemoveFold drops the fold region at the given index.
func (s *textStore) RemoveFold(i int) {
	if i < 0 || i >= len(s.folds) {
		return
	}
	s.folds = append(s.folds[:i], s.folds[i+1:]...)
}

// SetFoldsExpanded toggles every fold region.
func (s *textStore) SetFoldsExpanded(expanded bool) {
	for i := range s.folds {
		s.folds[i].Expanded = expanded
	}
}

// Ranges returns a copy of the kind annotations.
func (s *textStore) Ranges() []schema.TokenRange {
	return append([]schema.TokenRange(nil), s.ranges...)
}

// Links returns a copy of the hyperlinks.
func (s *textStore) Links() []schema.TokenRange {
	return append([]schema.TokenRange(nil), s.links...)
}

// Folds returns a copy of the fold regions.
func (s *textStore) Folds() []schema.FoldRegion {
	return append([]schema.FoldRegion(nil), s.folds...)
}

func shiftSpans(spans []schema.TokenRange, off, delta int) []schema.TokenRange {
	for i := range spans {
		if spans[i].Start >= off {
			spans[i].Start += delta
		}
		if spans[i].End > off {
			spans[i].End += delta
		}
	}
	return spans
}

func cutSpans(spans []schema.TokenRange, start, end int) []schema.TokenRange {
	n := end - start
	out := spans[:0]
	for _, sp := range spans {
		if sp.Start >= start && sp.End <= end {
			continue
		}
		if sp.Start >= end {
			sp.Start -= n
		} else if sp.Start > start {
			sp.Start = start
		}
		if sp.End >= end {
			sp.End -= n
		} else if sp.End > start {
			sp.End = start
		}
		if sp.Start >= sp.End {
			continue
		}
		out = append(out, sp)
	}
	return out
}

func shiftFolds(folds []schema.FoldRegion, off, delta int) []schema.FoldRegion {
	for i := range folds {
		if folds[i].Start >= off {
			folds[i].Start += delta
		}
		if folds[i].End > off {
			folds[i].End += delta
		}
	}
	return folds
}

func cutFolds(folds []schema.FoldRegion, start, end int) []schema.FoldRegion {
	n := end - start
	out := folds[:0]
	for _, f := range folds {
		if f.Start >= start && f.End <= end {
			continue
		}
		if f.Start >= end {
			f.Start -= n
		} else if f.Start > start {
			f.Start = start
		}
		if f.End >= end {
			f.End -= n
		} else if f.End > start {
			f.End = start
		}
		if f.Start >= f.End {
			continue
		}
		out = append(out, f)
	}
	return out
}
