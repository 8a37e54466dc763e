package core

import (
	"pkt.systems/conspool/classify"
	"pkt.systems/conspool/schema"
)

// heavyWorkerLimit bounds concurrently running heavy classification
// passes across all launches of one console.
const heavyWorkerLimit = 4

// highlightRange runs the light pass over [startLine, endLine] on the
// render goroutine and launches enabled heavy classifiers for the same
// range.
func (c *console) highlightRange(startLine, endLine int) {
	if c.registry == nil {
		return
	}
	if last := c.doc.LineCount() - 1; endLine > last {
		endLine = last
	}
	if startLine < 0 {
		startLine = 0
	}
	if startLine > endLine {
		return
	}
	changed := c.scanLinks(startLine, endLine)
	if c.mergeFolds(startLine, endLine) {
		changed = true
	}
	if changed {
		c.emitState(schema.StateRegionsChanged, 0)
	}
	c.launchHeavy(startLine, endLine)
}

// scanLinks asks every enabled link classifier about each line in the
// range and records the spans it reports.
func (c *console) scanLinks(startLine, endLine int) bool {
	classifiers := c.registry.LinkClassifiers()
	if len(classifiers) == 0 {
		return false
	}
	info := c.Info()
	changed := false
	for li := startLine; li <= endLine; li++ {
		text := c.doc.lineText(li)
		if text == "" {
			continue
		}
		base := c.doc.lineStart(li)
		for _, cl := range classifiers {
			if !cl.Enabled(info) {
				continue
			}
			for _, sp := range cl.ScanLine(text) {
				if c.doc.AddLink(base+sp.Start, base+sp.End, sp.Ref) {
					changed = true
				}
			}
		}
	}
	return changed
}

// mergeFolds folds the lines of [startLine, endLine]. Consecutive lines
// claimed by the same classifier merge into one region; a claimer change
// closes the region. A materialized region touching the start boundary
// is removed first and re-merged together with the new lines, so a run
// growing across flushes stays one region and keeps its expanded state.
func (c *console) mergeFolds(startLine, endLine int) bool {
	classifiers := c.registry.LineClassifiers()
	if len(classifiers) == 0 {
		return false
	}
	info := c.Info()

	walkStart := startLine
	changed := false
	var seed *bool
	if i := c.doc.foldTouchingLine(startLine); i >= 0 {
		region := c.doc.folds[i]
		walkStart = c.doc.lineOfOffset(region.Start)
		expanded := region.Expanded
		seed = &expanded
		c.doc.RemoveFold(i)
		changed = true
	}

	var (
		cur       classify.LineClassifier
		curID     schema.ClassifierID
		firstLine int
		lines     []string
	)
	emit := func(lastLine int) {
		if cur == nil {
			return
		}
		start := c.doc.lineStart(firstLine)
		if cur.AttachToPrevious() && firstLine > 0 {
			start = c.doc.lineEnd(firstLine - 1)
		}
		end := c.doc.lineEnd(lastLine)
		if start < end {
			expanded := false
			if seed != nil {
				expanded = *seed
				seed = nil
			}
			c.doc.AddFold(schema.FoldRegion{
				Start:       start,
				End:         end,
				Placeholder: cur.Placeholder(lines),
				Expanded:    expanded,
				Classifier:  curID,
			})
			changed = true
		}
		cur = nil
		lines = nil
	}

	for li := walkStart; li <= endLine; li++ {
		text := c.doc.lineText(li)
		var claim classify.LineClassifier
		for _, cl := range classifiers {
			if cl.Enabled(info) && cl.ClaimLine(li, text) {
				claim = cl
				break
			}
		}
		switch {
		case claim == nil:
			emit(li - 1)
		case cur == nil:
			cur, curID, firstLine = claim, claim.ID(), li
			lines = append(lines, text)
		case claim.ID() == curID:
			lines = append(lines, text)
		default:
			emit(li - 1)
			cur, curID, firstLine = claim, claim.ID(), li
			lines = append(lines, text)
		}
	}
	emit(endLine)
	return changed
}

// launchHeavy snapshots the affected lines and starts one goroutine per
// enabled heavy classifier, each carrying the current expiry ticket.
func (c *console) launchHeavy(startLine, endLine int) {
	heavies := c.registry.HeavyClassifiers()
	if len(heavies) == 0 {
		return
	}
	info := c.Info()
	var enabled []classify.HeavyClassifier
	for _, h := range heavies {
		if h.Enabled(info) {
			enabled = append(enabled, h)
		}
	}
	if len(enabled) == 0 {
		return
	}
	lines := make([]string, 0, endLine-startLine+1)
	for li := startLine; li <= endLine; li++ {
		lines = append(lines, c.doc.lineText(li))
	}
	snap := classify.Snapshot{Info: info, StartLine: startLine, Lines: lines}
	ticket := c.expiry.Ticket()
	for _, h := range enabled {
		c.workingStarted()
		go c.runHeavy(h, snap, ticket)
	}
}

// runHeavy drives one heavy classifier on a worker goroutine and feeds
// its patches back through the render context. A panicking classifier is
// logged and treated as having produced nothing.
func (c *console) runHeavy(h classify.HeavyClassifier, snap classify.Snapshot, ticket expirable) {
	defer c.workingFinished()
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("console classifier panic", "classifier", h.ID(), "panic", r)
		}
	}()
	select {
	case c.heavySem <- struct{}{}:
	case <-c.heavyCtx.Done():
		return
	}
	defer func() { <-c.heavySem }()

	for patch := range h.ClassifyRange(c.heavyCtx, snap) {
		if ticket.Expired() {
			continue
		}
		p := patch
		c.sched.Submit(func() { c.applyPatch(p, ticket) })
	}
}

// applyPatch commits one heavy result on the render goroutine. The patch
// is dropped when its ticket expired or the target line changed since the
// snapshot was taken.
func (c *console) applyPatch(p classify.Patch, ticket expirable) {
	if c.disposed.Load() || ticket.Expired() {
		return
	}
	if p.Line < 0 || p.Line >= c.doc.LineCount() {
		return
	}
	if c.doc.lineText(p.Line) != p.Text {
		return
	}
	base := c.doc.lineStart(p.Line)
	changed := false
	for _, sp := range p.Spans {
		if c.doc.AddLink(base+sp.Start, base+sp.End, sp.Ref) {
			changed = true
		}
	}
	if changed {
		c.emitState(schema.StateRegionsChanged, 0)
	}
}

func (c *console) workingStarted() {
	if c.working.Add(1) == 1 {
		c.emitState(schema.StateWorkingStart, 0)
	}
}

func (c *console) workingFinished() {
	if c.working.Add(-1) == 0 {
		c.sched.Submit(func() { c.emitState(schema.StateWorkingDone, 0) })
	}
}
