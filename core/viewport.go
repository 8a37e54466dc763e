package core

// viewport models the follower behavior of an attached view. While the
// caret sits on the last line or the view reports its scrollbar at the
// bottom, every flush pins the view back to the end of the document. A
// one-shot cancel suppresses exactly the next automatic scroll and then
// re-arms. All methods run on the render goroutine.
type viewport struct {
	caret      int
	atBottom   bool
	cancelOnce bool
}

func newViewport() *viewport {
	return &viewport{atBottom: true}
}

// shouldStick samples the follower decision for the mutation about to
// happen and consumes a pending one-shot cancel.
func (v *viewport) shouldStick(doc *textStore) bool {
	if v.cancelOnce {
		v.cancelOnce = false
		return false
	}
	return v.atBottom || v.caretOnLastLine(doc)
}

func (v *viewport) caretOnLastLine(doc *textStore) bool {
	return doc.lineOfOffset(v.caret) == doc.LineCount()-1
}

// scrollToEnd pins the caret to the end of the document and reports the
// new offset for the scrolled notification.
func (v *viewport) scrollToEnd(doc *textStore) int {
	v.caret = doc.Len()
	v.atBottom = true
	return v.caret
}

// scrollTo moves the caret to the given offset, clamped to the
// document. Moving anywhere short of the end releases the bottom latch.
func (v *viewport) scrollTo(doc *textStore, offset int) int {
	if offset < 0 {
		offset = 0
	}
	if offset > doc.Len() {
		offset = doc.Len()
	}
	v.caret = offset
	v.atBottom = offset >= doc.Len()
	return v.caret
}

// cancelStick arms the one-shot suppression of the next automatic
// scroll to end.
func (v *viewport) cancelStick() {
	v.cancelOnce = true
}

// setBottom records the scrollbar position reported by an attached
// view.
func (v *viewport) setBottom(atBottom bool) {
	v.atBottom = atBottom
}

// clamp keeps the caret inside the document after a deletion.
func (v *viewport) clamp(doc *textStore) {
	if v.caret > doc.Len() {
		v.caret = doc.Len()
	}
}
