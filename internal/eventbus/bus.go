// Package eventbus fans console engine events out to transport
// subscribers. Publishing never blocks the render context; slow
// subscribers lose events instead.
package eventbus

import (
	"context"
	"sync"

	"pkt.systems/conspool/schema"
	"pkt.systems/pslog"
)

// EventType identifies the event payload.
type EventType string

const (
	// EventText carries one rendered output token.
	EventText EventType = "text"
	// EventContent carries a batch content summary.
	EventContent EventType = "content"
	// EventState carries a console state transition.
	EventState EventType = "state"
)

// Event is one UI-facing console event.
type Event struct {
	Type    EventType
	Text    schema.TextEvent
	Content schema.ContentEvent
	State   schema.StateEvent
}

// Console returns the id of the console the event belongs to.
func (e Event) Console() schema.ConsoleID {
	switch e.Type {
	case EventText:
		return e.Text.Console
	case EventContent:
		return e.Content.Console
	case EventState:
		return e.State.Console
	}
	return ""
}

// Bus fans events out to per-console subscribers. It satisfies the engine
// event sink, so it can be handed straight to a console as its sink.
type Bus struct {
	mu    sync.Mutex
	subs  map[schema.ConsoleID]map[chan Event]struct{}
	log   pslog.Logger
	depth int
}

// New constructs a Bus.
func New(logger pslog.Logger) *Bus {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Bus{
		subs:  make(map[schema.ConsoleID]map[chan Event]struct{}),
		log:   logger,
		depth: 256,
	}
}

// Subscribe registers a subscriber for one console and returns a channel
// plus cancel. The empty console id subscribes to every console.
func (b *Bus) Subscribe(consoleID schema.ConsoleID) (<-chan Event, func()) {
	if b == nil {
		return nil, func() {}
	}
	ch := make(chan Event, b.depth)
	b.mu.Lock()
	consoleSubs := b.subs[consoleID]
	if consoleSubs == nil {
		consoleSubs = make(map[chan Event]struct{})
		b.subs[consoleID] = consoleSubs
	}
	consoleSubs[ch] = struct{}{}
	count := len(consoleSubs)
	b.mu.Unlock()
	if b.log != nil {
		b.log.With("console", consoleID).Debug("eventbus subscribe", "subs", count)
	}
	return ch, func() {
		b.mu.Lock()
		if subs := b.subs[consoleID]; subs != nil {
			delete(subs, ch)
			if len(subs) == 0 {
				delete(b.subs, consoleID)
			}
		}
		close(ch)
		b.mu.Unlock()
		if b.log != nil {
			b.log.With("console", consoleID).Debug("eventbus unsubscribe")
		}
	}
}

// OnText publishes one rendered output token.
func (b *Bus) OnText(event schema.TextEvent) {
	b.publish(event.Console, Event{Type: EventText, Text: event})
}

// OnContent publishes a batch content summary.
func (b *Bus) OnContent(event schema.ContentEvent) {
	b.publish(event.Console, Event{Type: EventContent, Content: event})
}

// OnState publishes a console state transition.
func (b *Bus) OnState(event schema.StateEvent) {
	b.publish(event.Console, Event{Type: EventState, State: event})
}

func (b *Bus) publish(consoleID schema.ConsoleID, event Event) {
	if b == nil {
		return
	}
	dropped := 0
	b.mu.Lock()
	for sub := range b.subs[consoleID] {
		select {
		case sub <- event:
		default:
			dropped++
		}
	}
	if consoleID != "" {
		for sub := range b.subs[""] {
			select {
			case sub <- event:
			default:
				dropped++
			}
		}
	}
	b.mu.Unlock()
	if dropped > 0 && b.log != nil {
		b.log.With("console", consoleID).Trace("eventbus dropped", "count", dropped)
	}
}
