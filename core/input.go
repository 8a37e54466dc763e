package core

import (
	"strings"

	"pkt.systems/conspool/schema"
)

// inputSpan tracks the open pending input range at the document tail.
// start is -1 while no span is open. Owned by the render goroutine.
type inputSpan struct {
	start int
	end   int
}

func (s *inputSpan) open() bool { return s.start >= 0 }

func (s *inputSpan) reset() {
	s.start = -1
	s.end = -1
}

func (s *inputSpan) shift(delta int) {
	if s.open() {
		s.start += delta
		s.end += delta
	}
}

// Type echoes interactive input into the console. Inserted text joins
// the open pending input span when the caret sits inside it, otherwise
// it travels the normal buffer path as user input with an immediate
// flush. A typed line terminator submits the span to the process.
func (c *console) Type(text string) {
	if text == "" || c.disposed.Load() {
		return
	}
	c.sched.Submit(func() { c.typeText(text) })
}

// Backspace deletes up to n characters before the caret, bounded to the
// open pending input span.
func (c *console) Backspace(n int) {
	if n <= 0 || c.disposed.Load() {
		return
	}
	c.sched.Submit(func() { c.backspace(n) })
}

// DeleteUserText deletes [offset, offset+n) when the range lies fully
// inside the open pending input span, and is a no-op otherwise.
func (c *console) DeleteUserText(offset, n int) {
	if n <= 0 || c.disposed.Load() {
		return
	}
	c.sched.Submit(func() { c.deleteUserRange(offset, offset+n) })
}

func (c *console) typeText(text string) {
	if c.disposed.Load() {
		return
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	c.flush()
	if c.input.open() && c.vp.caret >= c.input.start && c.vp.caret <= c.input.end {
		c.insertTyped(text)
		return
	}
	c.vp.scrollToEnd(c.doc)
	c.buf.Append(text, schema.KindUserInput, nil)
	c.flush()
}

// insertTyped splices typed text into the open span at the caret.
func (c *console) insertTyped(text string) {
	at := c.vp.caret
	oldEnd := c.input.end
	c.doc.InsertAt(at, text)
	if at == oldEnd {
		// a range ending exactly at the insertion point is not shifted
		// by InsertAt, so grow the annotation by hand
		if c.input.start == oldEnd {
			c.doc.AddKindRange(oldEnd, oldEnd+len(text), schema.KindUserInput, nil)
		} else {
			c.doc.ExtendKindRange(oldEnd, len(text))
		}
	}
	c.input.end += len(text)
	c.vp.caret = at + len(text)
	c.emitState(schema.StateInputEdited, at)
	c.maybeSubmitInput()
}

func (c *console) backspace(n int) {
	if !c.input.open() {
		return
	}
	at := c.vp.caret
	if at < c.input.start || at > c.input.end {
		return
	}
	from := at - n
	if from < c.input.start {
		from = c.input.start
	}
	c.deleteUserRange(from, at)
}

func (c *console) deleteUserRange(from, to int) {
	if c.disposed.Load() || !c.input.open() {
		return
	}
	if from < c.input.start || to > c.input.end || from >= to {
		return
	}
	n := to - from
	c.doc.DeleteRange(from, to)
	c.input.end -= n
	if c.vp.caret > to {
		c.vp.caret -= n
	} else if c.vp.caret > from {
		c.vp.caret = from
	}
	c.emitState(schema.StateInputEdited, from)
}

// openOrExtendSpan accounts freshly flushed user input text appended at
// [start, start+n).
func (c *console) openOrExtendSpan(start, n int) {
	if n <= 0 {
		return
	}
	if !c.input.open() {
		c.input.start = start
		c.input.end = start + n
		return
	}
	c.input.end += n
}

// maybeSubmitInput forwards the span content through the last typed line
// terminator to the process and closes that part of the span. Text after
// the terminator stays open as a fresh span.
func (c *console) maybeSubmitInput() {
	if !c.input.open() || c.input.end <= c.input.start {
		return
	}
	text := string(c.doc.text[c.input.start:c.input.end])
	i := strings.LastIndexByte(text, '\n')
	if i < 0 {
		return
	}
	submit := text[:i+1]
	submitStart := c.input.start
	restStart := c.input.start + i + 1
	if restStart < c.input.end {
		c.input.start = restStart
	} else {
		c.input.reset()
	}
	if c.sink != nil {
		c.sink.OnState(schema.StateEvent{
			Console: c.cfg.ID,
			Type:    schema.StateInputSubmitted,
			Offset:  submitStart,
			Text:    submit,
		})
	}
	c.sendToProcess(submit)
}

// sendToProcess hands a completed input line to the process collaborator
// on its own goroutine. Failures are logged and dropped; delivery of
// typed input is best-effort.
func (c *console) sendToProcess(text string) {
	c.procMu.Lock()
	in := c.proc
	c.procMu.Unlock()
	if in == nil {
		c.log.Debug("console input dropped, no process attached", "bytes", len(text))
		return
	}
	go func() {
		if err := in.SendInput(text); err != nil {
			c.log.Warn("console input send failed", "err", err)
		}
	}()
}

// SetProcess attaches or replaces the process collaborator receiving
// submitted input lines.
func (c *console) SetProcess(in ProcessInput) {
	c.procMu.Lock()
	c.proc = in
	c.procMu.Unlock()
}
