package core

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"pkt.systems/pslog"
)

// scheduler owns the single render goroutine. Everything that mutates the
// document runs here: drains, control resolution, light highlighting, and
// observer delivery. Producers and heavy workers only ever hand closures
// to Submit.
type scheduler struct {
	log    pslog.Logger
	tasks  chan func()
	stopCh chan struct{}
	done   chan struct{}
	stop   sync.Once
	mu     sync.Mutex
	timers map[*time.Timer]struct{}
}

func newScheduler(logger pslog.Logger) *scheduler {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	s := &scheduler{
		log:    logger,
		tasks:  make(chan func(), 256),
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
		timers: make(map[*time.Timer]struct{}),
	}
	go s.run()
	return s
}

func (s *scheduler) run() {
	defer close(s.done)
	for {
		select {
		case <-s.stopCh:
			return
		case fn := <-s.tasks:
			fn()
		}
	}
}

// Submit enqueues fn for the render goroutine, blocking briefly when the
// queue is full. It reports false once the scheduler has closed. Never
// call it from the render goroutine itself; render-context code calls
// its target directly instead.
func (s *scheduler) Submit(fn func()) bool {
	select {
	case <-s.stopCh:
		return false
	default:
	}
	select {
	case s.tasks <- fn:
		return true
	case <-s.stopCh:
		return false
	}
}

// After schedules fn on the render goroutine after the delay. A zero
// delay submits directly. The returned timer, if any, stops the pending
// submission.
func (s *scheduler) After(delay time.Duration, fn func()) *time.Timer {
	if delay <= 0 {
		s.Submit(fn)
		return nil
	}
	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		s.forget(t)
		s.Submit(fn)
	})
	s.mu.Lock()
	if s.timers == nil {
		s.mu.Unlock()
		t.Stop()
		return t
	}
	s.timers[t] = struct{}{}
	s.mu.Unlock()
	return t
}

func (s *scheduler) forget(t *time.Timer) {
	s.mu.Lock()
	if s.timers != nil {
		delete(s.timers, t)
	}
	s.mu.Unlock()
}

// Close cancels pending timers, stops the render goroutine and waits for
// the task in flight, if any, to finish.
func (s *scheduler) Close() {
	s.stop.Do(func() {
		s.mu.Lock()
		for t := range s.timers {
			t.Stop()
		}
		s.timers = nil
		s.mu.Unlock()
		close(s.stopCh)
		s.log.Trace("render scheduler closed")
	})
	<-s.done
}

// Done reports render goroutine exit; tasks queued but unrun at that
// point never run.
func (s *scheduler) Done() <-chan struct{} {
	return s.done
}

// Barrier submits a marker task and returns a channel closed when every
// task queued before it has run.
func (s *scheduler) Barrier() <-chan struct{} {
	ch := make(chan struct{})
	if !s.Submit(func() { close(ch) }) {
		close(ch)
	}
	return ch
}

// renderTask is a unit of work queued to the render goroutine with the
// alarm semantics the engine relies on: a coalesced task collapses
// repeated requests while one is pending, an ad-hoc task enqueues every
// request individually.
type renderTask struct {
	sched     *scheduler
	fn        func()
	adHoc     bool
	requested atomic.Bool
	mu        sync.Mutex
	timer     *time.Timer
}

func newRenderTask(sched *scheduler, fn func(), adHoc bool) *renderTask {
	return &renderTask{sched: sched, fn: fn, adHoc: adHoc}
}

// Queue requests a run after the delay. Coalesced tasks ignore the
// request when one is already pending.
func (t *renderTask) Queue(delay time.Duration) {
	if t.adHoc || t.requested.CompareAndSwap(false, true) {
		timer := t.sched.After(delay, t.invoke)
		if !t.adHoc {
			t.mu.Lock()
			t.timer = timer
			t.mu.Unlock()
		}
	}
}

func (t *renderTask) invoke() {
	t.requested.Store(false)
	t.fn()
}

// Cancel stops a pending coalesced request. A request already handed to
// the render goroutine still runs; the task body is responsible for
// checking state before side effects.
func (t *renderTask) Cancel() {
	t.mu.Lock()
	timer := t.timer
	t.timer = nil
	t.mu.Unlock()
	if timer != nil {
		timer.Stop()
	}
	t.requested.Store(false)
}

// Pending reports whether a coalesced request is waiting to run.
func (t *renderTask) Pending() bool {
	return t.requested.Load()
}
