// Package classify turns raw console lines into fold regions and
// hyperlinks. Classifiers are registered in an explicit Registry handed to
// the console engine; the engine asks light classifiers synchronously on its
// render context and runs heavy classifiers on worker goroutines against an
// immutable line snapshot.
package classify

import (
	"context"
	"sync"

	"pkt.systems/conspool/schema"
	"pkt.systems/pslog"
)

// LineClassifier claims console lines for folding. Consecutive lines
// claimed by the same classifier merge into one fold region.
type LineClassifier interface {
	ID() schema.ClassifierID
	Enabled(info schema.ConsoleInfo) bool
	// ClaimLine reports whether this classifier folds the given line.
	// Index is the document line number.
	ClaimLine(index int, line string) bool
	// Placeholder computes the collapsed text for a region from its
	// member lines.
	Placeholder(lines []string) string
	// AttachToPrevious anchors the region one line before its first
	// claimed line.
	AttachToPrevious() bool
}

// LinkClassifier finds hyperlinks inside single lines.
type LinkClassifier interface {
	ID() schema.ClassifierID
	Enabled(info schema.ConsoleInfo) bool
	ScanLine(line string) []schema.LinkSpan
}

// Snapshot is an immutable view of the lines a heavy pass may inspect.
type Snapshot struct {
	Info      schema.ConsoleInfo
	StartLine int
	Lines     []string
}

// Patch is one incremental highlight produced by a heavy classifier. Text
// carries the line content the patch was computed against so the engine can
// discard patches whose target changed underneath them.
type Patch struct {
	Line  int
	Text  string
	Spans []schema.LinkSpan
}

// HeavyClassifier runs expensive classification off the render context.
// Implementations must honor ctx cancellation and close the returned
// channel when done.
type HeavyClassifier interface {
	ID() schema.ClassifierID
	Enabled(info schema.ConsoleInfo) bool
	ClassifyRange(ctx context.Context, snap Snapshot) <-chan Patch
}

// Registry holds the ordered classifier sets consulted by the engine.
// Replacing the sets is an explicit call; the engine re-reads them on every
// pass, so a refresh takes effect on the next flush or rehighlight.
type Registry struct {
	mu    sync.RWMutex
	lines []LineClassifier
	links []LinkClassifier
	heavy []HeavyClassifier
	log   pslog.Logger
}

// NewRegistry constructs an empty registry.
func NewRegistry(logger pslog.Logger) *Registry {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Registry{log: logger}
}

// SetClassifiers replaces all registered classifiers.
func (r *Registry) SetClassifiers(lines []LineClassifier, links []LinkClassifier, heavy []HeavyClassifier) {
	r.mu.Lock()
	r.lines = append([]LineClassifier(nil), lines...)
	r.links = append([]LinkClassifier(nil), links...)
	r.heavy = append([]HeavyClassifier(nil), heavy...)
	r.mu.Unlock()
	r.log.Debug("classifier registry updated", "lines", len(lines), "links", len(links), "heavy", len(heavy))
}

// LineClassifiers returns the registered fold classifiers in order.
func (r *Registry) LineClassifiers() []LineClassifier {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]LineClassifier(nil), r.lines...)
}

// LinkClassifiers returns the registered link classifiers in order.
func (r *Registry) LinkClassifiers() []LinkClassifier {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]LinkClassifier(nil), r.links...)
}

// HeavyClassifiers returns the registered heavy classifiers in order.
func (r *Registry) HeavyClassifiers() []HeavyClassifier {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]HeavyClassifier(nil), r.heavy...)
}

// Lookup resolves a fold classifier by identity. Fold regions store only
// the identity, never the instance, so a stale region after a refresh
// resolves to nil and is left untouched.
func (r *Registry) Lookup(id schema.ClassifierID) LineClassifier {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.lines {
		if c.ID() == id {
			return c
		}
	}
	return nil
}
