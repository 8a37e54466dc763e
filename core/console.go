package core

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"pkt.systems/conspool/classify"
	"pkt.systems/conspool/schema"
	"pkt.systems/pslog"
)

// console implements the Console engine. The token buffer is shared with
// producers; everything else is owned by the render goroutine driven by
// the scheduler.
type console struct {
	cfg      schema.ConsoleConfig
	buf      *tokenBuffer
	doc      *textStore
	sched    *scheduler
	vp       *viewport
	input    inputSpan
	registry *classify.Registry
	sink     EventSink
	log      pslog.Logger

	flushTask *renderTask
	clearTask *renderTask

	expiry      expiryProvider
	heavySem    chan struct{}
	heavyCtx    context.Context
	heavyCancel context.CancelFunc
	working     atomic.Int64

	disposed     atomic.Bool
	paused       atomic.Bool
	pendingClear atomic.Bool
	disposeOnce  sync.Once

	procMu sync.Mutex
	proc   ProcessInput

	whenFlushed []func()
}

// NewConsole builds a console engine from its configuration and
// collaborators and starts its render goroutine.
func NewConsole(cfg schema.ConsoleConfig, deps ConsoleDeps) (Console, error) {
	normalized, err := schema.NormalizeConsoleConfig(cfg)
	if err != nil {
		return nil, err
	}
	cfg = normalized
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	logger = logger.With("console", cfg.ID)
	heavyCtx, heavyCancel := context.WithCancel(context.Background())
	c := &console{
		cfg:         cfg,
		buf:         newTokenBuffer(cfg.CyclicCapacity),
		doc:         newTextStore(),
		sched:       newScheduler(logger),
		vp:          newViewport(),
		registry:    deps.Registry,
		sink:        deps.Sink,
		log:         logger,
		heavySem:    make(chan struct{}, heavyWorkerLimit),
		heavyCtx:    heavyCtx,
		heavyCancel: heavyCancel,
		proc:        deps.Input,
	}
	c.input.reset()
	c.flushTask = newRenderTask(c.sched, c.flush, false)
	c.clearTask = newRenderTask(c.sched, c.doClear, false)
	logger.Debug("console created", "capacity", cfg.CyclicCapacity, "flush_delay", cfg.FlushDelay)
	return c, nil
}

func (c *console) ID() schema.ConsoleID { return c.cfg.ID }

func (c *console) Info() schema.ConsoleInfo {
	return schema.ConsoleInfo{ID: c.cfg.ID, Title: c.cfg.Title, WorkDir: c.cfg.WorkDir}
}

// Print buffers output under the token buffer lock and schedules a
// debounced flush. Cyclic pressure and user input flush without delay.
func (c *console) Print(text string, kind schema.ContentKind) {
	c.print(text, kind, nil)
}

// PrintHyperlink buffers link-carrying output.
func (c *console) PrintHyperlink(text string, ref schema.LinkRef) {
	c.print(text, schema.KindNormal, &ref)
}

func (c *console) print(text string, kind schema.ContentKind, link *schema.LinkRef) {
	if text == "" || c.disposed.Load() {
		return
	}
	pressure := c.buf.Append(text, kind, link)
	if pressure || kind == schema.KindUserInput {
		c.requestFlush(0)
		return
	}
	c.requestFlush(c.cfg.FlushDelay)
}

func (c *console) requestFlush(delay time.Duration) {
	if delay <= 0 {
		c.flushTask.Cancel()
	}
	c.flushTask.Queue(delay)
}

// RequestFlush queues an immediate flush of deferred output.
func (c *console) RequestFlush() {
	if c.disposed.Load() {
		return
	}
	c.requestFlush(0)
}

// flush drains the buffer and commits the batch to the document. Runs on
// the render goroutine only.
func (c *console) flush() {
	if c.disposed.Load() || c.paused.Load() || c.pendingClear.Load() {
		return
	}
	tokens, evicted := c.buf.Drain()
	if len(tokens) == 0 {
		c.drainWhenFlushed()
		return
	}
	if evicted > 0 {
		c.log.Trace("console cyclic eviction", "chars", evicted)
	}
	refined, prefix, rewrite := resolveControls(tokens)

	stick := c.vp.shouldStick(c.doc)

	c.applyRewrite(rewrite)
	if prefix > 0 {
		outEnd := c.outputEnd()
		lineStart := c.doc.lastNewlineBefore(outEnd) + 1
		from := outEnd - prefix
		if from < lineStart {
			from = lineStart
		}
		if from < outEnd {
			c.deleteOutput(from, outEnd)
		}
	}

	// output inserts before an open input span; user input tokens append
	// at the end and extend the span
	var outTokens, inTokens []token
	for _, t := range refined {
		if t.kind == schema.KindUserInput {
			inTokens = append(inTokens, t)
		} else {
			outTokens = append(outTokens, t)
		}
	}

	insertAt := c.outputEnd()
	if len(outTokens) > 0 {
		text := rawText(outTokens)
		c.doc.InsertAt(insertAt, text)
		c.input.shift(len(text))
		off := insertAt
		for _, t := range outTokens {
			end := off + len(t.text)
			c.doc.AddKindRange(off, end, t.kind, t.link)
			if t.link != nil {
				c.doc.AddLink(off, end, *t.link)
			}
			off = end
		}
	}
	var inLen int
	if len(inTokens) > 0 {
		text := rawText(inTokens)
		inLen = len(text)
		start := c.doc.Len()
		c.doc.Append(text)
		if c.input.open() && c.input.start < c.input.end {
			c.doc.ExtendKindRange(start, inLen)
		} else {
			c.doc.AddKindRange(start, start+inLen, schema.KindUserInput, nil)
		}
		c.openOrExtendSpan(start, inLen)
	}

	if trimmed := c.enforceCapacity(); trimmed > 0 {
		insertAt -= trimmed
		if insertAt < 0 {
			insertAt = 0
		}
	}
	startLine := c.doc.lineOfOffset(insertAt)

	for _, t := range refined {
		c.emitText(t.text, t.kind)
	}
	if kinds := uniqueKinds(refined); len(kinds) > 0 {
		c.emitContent(kinds)
	}

	if inLen > 0 {
		c.maybeSubmitInput()
	}

	c.highlightRange(startLine, c.doc.LineCount()-1)

	if stick {
		off := c.vp.scrollToEnd(c.doc)
		c.emitState(schema.StateScrolled, off)
	} else {
		c.vp.clamp(c.doc)
	}

	c.drainWhenFlushed()
}

// applyRewrite performs the carriage-return deletion owed against the
// rendered output tail.
func (c *console) applyRewrite(rewrite ctrlKind) {
	if rewrite == ctrlNone {
		return
	}
	outEnd := c.outputEnd()
	end := outEnd
	if rewrite == ctrlRewriteLine && end > 0 && c.doc.text[end-1] == '\n' {
		end--
	}
	from := c.doc.lastNewlineBefore(end) + 1
	if from < outEnd {
		c.deleteOutput(from, outEnd)
	}
}

// outputEnd reports where process output ends: the start of the open
// input span, or the document end.
func (c *console) outputEnd() int {
	if c.input.open() {
		return c.input.start
	}
	return c.doc.Len()
}

// deleteOutput removes an output range and keeps span and caret
// positions consistent. The range never crosses into the input span.
func (c *console) deleteOutput(from, to int) {
	n := to - from
	c.doc.DeleteRange(from, to)
	c.input.shift(-n)
	if c.vp.caret > to {
		c.vp.caret -= n
	} else if c.vp.caret > from {
		c.vp.caret = from
	}
}

// enforceCapacity trims the oldest rendered characters once the document
// exceeds the cyclic capacity, returning the trimmed count.
func (c *console) enforceCapacity() int {
	if c.cfg.CyclicCapacity <= 0 {
		return 0
	}
	over := c.doc.Len() - c.cfg.CyclicCapacity
	if over <= 0 {
		return 0
	}
	c.doc.TrimFront(over)
	if c.input.open() {
		c.input.start -= over
		c.input.end -= over
		if c.input.start < 0 {
			c.input.start = 0
		}
		if c.input.end <= 0 {
			c.input.reset()
		}
	}
	if c.vp.caret > over {
		c.vp.caret -= over
	} else {
		c.vp.caret = 0
	}
	return over
}

// Clear empties the buffer immediately and queues a document wipe on the
// render goroutine, cancelling any pending flush.
func (c *console) Clear() {
	if c.disposed.Load() {
		return
	}
	c.buf.Clear()
	c.expiry.ExpireAll()
	c.flushTask.Cancel()
	c.pendingClear.Store(true)
	c.clearTask.Queue(0)
}

func (c *console) doClear() {
	if c.disposed.Load() {
		return
	}
	c.pendingClear.Store(false)
	c.doc.Clear()
	c.input.reset()
	c.vp.scrollTo(c.doc, 0)
	c.emitState(schema.StateCleared, 0)
	c.log.Debug("console cleared")
	if !c.buf.Empty() {
		// output arrived behind the clear request
		c.flush()
		return
	}
	c.drainWhenFlushed()
}

func (c *console) ScrollTo(offset int) {
	if c.disposed.Load() {
		return
	}
	c.sched.Submit(func() {
		if c.disposed.Load() {
			return
		}
		off := c.vp.scrollTo(c.doc, offset)
		c.emitState(schema.StateScrolled, off)
	})
}

func (c *console) ScrollToEnd() {
	if c.disposed.Load() {
		return
	}
	c.sched.Submit(func() {
		if c.disposed.Load() {
			return
		}
		off := c.vp.scrollToEnd(c.doc)
		c.emitState(schema.StateScrolled, off)
	})
}

func (c *console) CancelStickToEnd() {
	if c.disposed.Load() {
		return
	}
	c.sched.Submit(func() { c.vp.cancelStick() })
}

func (c *console) SetViewportBottom(atBottom bool) {
	if c.disposed.Load() {
		return
	}
	c.sched.Submit(func() { c.vp.setBottom(atBottom) })
}

// SetOutputPaused stops or resumes flushing. Resuming queues an
// immediate flush.
func (c *console) SetOutputPaused(paused bool) {
	if c.disposed.Load() {
		return
	}
	if c.paused.Swap(paused) == paused {
		return
	}
	kind := schema.StatePaused
	if !paused {
		kind = schema.StateResumed
	}
	c.sched.Submit(func() { c.emitState(kind, 0) })
	if !paused {
		c.requestFlush(0)
	}
	c.log.Debug("console output pause", "paused", paused)
}

func (c *console) IsOutputPaused() bool {
	return c.paused.Load()
}

func (c *console) ContentSize() int {
	if c.pendingClear.Load() {
		return c.buf.Len()
	}
	return c.doc.SizeHint() + c.buf.Len()
}

func (c *console) HasDeferredOutput() bool {
	return !c.buf.Empty()
}

// PerformWhenNoDeferredOutput runs fn on the render goroutine once all
// deferred output has rendered.
func (c *console) PerformWhenNoDeferredOutput(fn func()) {
	if fn == nil || c.disposed.Load() {
		return
	}
	c.sched.Submit(func() {
		if c.disposed.Load() {
			return
		}
		if c.buf.Empty() && !c.pendingClear.Load() {
			fn()
			return
		}
		c.whenFlushed = append(c.whenFlushed, fn)
	})
}

func (c *console) drainWhenFlushed() {
	if len(c.whenFlushed) == 0 || !c.buf.Empty() {
		return
	}
	fns := c.whenFlushed
	c.whenFlushed = nil
	for _, fn := range fns {
		fn()
	}
}

// AwaitFlushed blocks until the buffer is empty and no flush or clear is
// pending, then confirms with one render barrier.
func (c *console) AwaitFlushed(ctx context.Context) error {
	for {
		if c.disposed.Load() {
			return schema.ErrConsoleDisposed
		}
		if c.buf.Empty() && !c.flushTask.Pending() && !c.clearTask.Pending() && !c.pendingClear.Load() {
			select {
			case <-c.sched.Barrier():
				if c.buf.Empty() && !c.flushTask.Pending() && !c.pendingClear.Load() {
					return nil
				}
			case <-c.sched.Done():
				return schema.ErrConsoleDisposed
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Millisecond):
		}
	}
}

func (c *console) Text() string {
	var text string
	c.renderRead(func() { text = c.doc.Text() })
	return text
}

func (c *console) LineCount() int {
	var n int
	c.renderRead(func() { n = c.doc.LineCount() })
	return n
}

// renderRead runs fn on the render goroutine and waits for it. Once the
// render goroutine has exited nothing mutates the document, so fn reads
// directly.
func (c *console) renderRead(fn func()) {
	done := make(chan struct{})
	if c.sched.Submit(func() { fn(); close(done) }) {
		select {
		case <-done:
			return
		case <-c.sched.Done():
		}
	}
	select {
	case <-done:
		return
	default:
	}
	fn()
}

// Snapshot captures console state for transports.
func (c *console) Snapshot(ctx context.Context) (schema.ConsoleSnapshot, error) {
	var snap schema.ConsoleSnapshot
	done := make(chan struct{})
	if !c.sched.Submit(func() {
		snap = c.buildSnapshot()
		close(done)
	}) {
		return schema.ConsoleSnapshot{}, schema.ErrConsoleDisposed
	}
	select {
	case <-done:
		return snap, nil
	case <-c.sched.Done():
		return schema.ConsoleSnapshot{}, schema.ErrConsoleDisposed
	case <-ctx.Done():
		return schema.ConsoleSnapshot{}, ctx.Err()
	}
}

func (c *console) buildSnapshot() schema.ConsoleSnapshot {
	return schema.ConsoleSnapshot{
		ID:           c.cfg.ID,
		Title:        c.cfg.Title,
		Text:         c.doc.Text(),
		Size:         c.doc.Len(),
		DeferredSize: c.buf.Len(),
		Paused:       c.paused.Load(),
		Working:      c.working.Load() > 0,
		Ranges:       c.doc.Ranges(),
		Links:        c.doc.Links(),
		Folds:        c.doc.Folds(),
		InputStart:   c.input.start,
	}
}

// Rehighlight drops all hyperlink and fold annotations and reruns both
// classification passes over the whole document.
func (c *console) Rehighlight() {
	if c.disposed.Load() {
		return
	}
	c.expiry.ExpireAll()
	c.sched.Submit(func() {
		if c.disposed.Load() {
			return
		}
		c.doc.ClearRegions()
		c.highlightRange(0, c.doc.LineCount()-1)
		c.emitState(schema.StateRegionsChanged, 0)
	})
}

// FoldImmediately flushes deferred output and folds the whole document.
func (c *console) FoldImmediately() {
	if c.disposed.Load() {
		return
	}
	c.sched.Submit(func() {
		if c.disposed.Load() {
			return
		}
		c.flush()
		c.doc.ClearFolds()
		if c.mergeFolds(0, c.doc.LineCount()-1) {
			c.emitState(schema.StateRegionsChanged, 0)
		}
	})
}

func (c *console) SetFoldsExpanded(expanded bool) {
	if c.disposed.Load() {
		return
	}
	c.sched.Submit(func() {
		if c.disposed.Load() {
			return
		}
		c.doc.SetFoldsExpanded(expanded)
		c.emitState(schema.StateRegionsChanged, 0)
	})
}

// Dispose cancels pending work, stops the render goroutine and discards
// buffered output. The disposed notification is delivered from the
// caller's goroutine once the render goroutine has stopped.
func (c *console) Dispose() {
	c.disposeOnce.Do(func() {
		c.disposed.Store(true)
		c.expiry.ExpireAll()
		c.heavyCancel()
		c.flushTask.Cancel()
		c.clearTask.Cancel()
		c.sched.Close()
		c.buf.Clear()
		c.emitState(schema.StateDisposed, 0)
		c.log.Debug("console disposed")
	})
}

func (c *console) emitText(text string, kind schema.ContentKind) {
	if c.sink == nil {
		return
	}
	c.sink.OnText(schema.TextEvent{Console: c.cfg.ID, Text: text, Kind: kind})
}

func (c *console) emitContent(kinds []schema.ContentKind) {
	if c.sink == nil {
		return
	}
	c.sink.OnContent(schema.ContentEvent{Console: c.cfg.ID, Kinds: kinds})
}

func (c *console) emitState(kind schema.StateKind, offset int) {
	if c.sink == nil {
		return
	}
	c.sink.OnState(schema.StateEvent{Console: c.cfg.ID, Type: kind, Offset: offset})
}

func uniqueKinds(tokens []token) []schema.ContentKind {
	var kinds []schema.ContentKind
	for _, t := range tokens {
		dup := false
		for _, k := range kinds {
			if k == t.kind {
				dup = true
				break
			}
		}
		if !dup {
			kinds = append(kinds, t.kind)
		}
	}
	return kinds
}
