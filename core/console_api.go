package core

import (
	"context"

	"pkt.systems/conspool/schema"
)

// Console is the engine surface offered to rendering hosts. Producers
// may call Print from any goroutine; every other mutation is forwarded
// to the console's render goroutine. Operations on a disposed console
// no-op rather than erroring.
type Console interface {
	ID() schema.ConsoleID
	Info() schema.ConsoleInfo

	// Print buffers process output for deferred rendering.
	Print(text string, kind schema.ContentKind)
	// PrintHyperlink buffers output rendered as a clickable link.
	PrintHyperlink(text string, ref schema.LinkRef)

	// Type echoes interactive input; Backspace and DeleteUserText edit
	// the pending input span only.
	Type(text string)
	Backspace(n int)
	DeleteUserText(offset, n int)

	// Clear drops buffered and rendered content.
	Clear()

	ScrollTo(offset int)
	ScrollToEnd()
	// CancelStickToEnd suppresses exactly one automatic scroll to end.
	CancelStickToEnd()
	// SetViewportBottom records whether an attached view is scrolled to
	// the bottom; stick-to-end follows it.
	SetViewportBottom(atBottom bool)

	SetOutputPaused(paused bool)
	IsOutputPaused() bool

	// ContentSize reports rendered plus deferred length; while a clear
	// is pending only the deferred length counts.
	ContentSize() int
	HasDeferredOutput() bool
	// RequestFlush queues an immediate flush of deferred output.
	RequestFlush()
	// AwaitFlushed blocks until no deferred output or scheduled flush
	// remains.
	AwaitFlushed(ctx context.Context) error
	// PerformWhenNoDeferredOutput runs fn on the render goroutine once
	// all deferred output has rendered, immediately if already idle.
	PerformWhenNoDeferredOutput(fn func())

	Text() string
	LineCount() int
	Snapshot(ctx context.Context) (schema.ConsoleSnapshot, error)

	// Rehighlight drops all hyperlink and fold annotations and reruns
	// classification over the whole document.
	Rehighlight()
	// FoldImmediately flushes deferred output and folds the whole
	// document synchronously with the render context.
	FoldImmediately()
	SetFoldsExpanded(expanded bool)

	SetProcess(in ProcessInput)

	// Dispose cancels pending work, stops the render goroutine and
	// discards buffered output. Safe to call more than once.
	Dispose()
}
