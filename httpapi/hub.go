package httpapi

import (
	"context"
	"sync"
	"time"

	"pkt.systems/conspool/internal/logx"
	"pkt.systems/conspool/schema"
)

// StreamEvent is sent to stream clients.
type StreamEvent struct {
	Seq       uint64                  `json:"seq"`
	Type      string                  `json:"type"`
	Console   schema.ConsoleID        `json:"console,omitempty"`
	Text      string                  `json:"text,omitempty"`
	Kind      schema.ContentKind      `json:"kind,omitempty"`
	Kinds     []schema.ContentKind    `json:"kinds,omitempty"`
	State     schema.StateKind        `json:"state,omitempty"`
	Offset    int                     `json:"offset,omitempty"`
	Input     string                  `json:"input,omitempty"`
	Snapshot  *schema.ConsoleSnapshot `json:"snapshot,omitempty"`
	Timestamp time.Time               `json:"timestamp"`
}

// Hub broadcasts console events per console and keeps a bounded replay
// history so reconnecting clients can resume from their last seq.
type Hub struct {
	mu          sync.Mutex
	consoles    map[schema.ConsoleID]*consoleHub
	historySize int
}

// NewHub constructs a hub with the given history size.
func NewHub(historySize int) *Hub {
	if historySize <= 0 {
		historySize = 1000
	}
	return &Hub{
		consoles:    make(map[schema.ConsoleID]*consoleHub),
		historySize: historySize,
	}
}

// OnText implements the engine event sink.
func (h *Hub) OnText(event schema.TextEvent) {
	h.publish(event.Console, StreamEvent{
		Type:      "text",
		Console:   event.Console,
		Text:      event.Text,
		Kind:      event.Kind,
		Timestamp: time.Now(),
	})
}

// OnContent implements the engine event sink.
func (h *Hub) OnContent(event schema.ContentEvent) {
	h.publish(event.Console, StreamEvent{
		Type:      "content",
		Console:   event.Console,
		Kinds:     event.Kinds,
		Timestamp: time.Now(),
	})
}

// OnState implements the engine event sink.
func (h *Hub) OnState(event schema.StateEvent) {
	h.publish(event.Console, StreamEvent{
		Type:      "state",
		Console:   event.Console,
		State:     event.Type,
		Offset:    event.Offset,
		Input:     event.Text,
		Timestamp: time.Now(),
	})
}

// Subscribe registers a subscriber for a console.
func (h *Hub) Subscribe(consoleID schema.ConsoleID) (<-chan StreamEvent, func(), uint64, []StreamEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch := h.getOrCreateLocked(consoleID)
	sub := make(chan StreamEvent, 256)
	ch.subs[sub] = struct{}{}
	history := append([]StreamEvent(nil), ch.history...)
	seq := ch.seq
	log := logx.WithConsole(context.Background(), consoleID)
	log.Info("hub subscribe", "subs", len(ch.subs), "history", len(history))
	unsub := func() {
		h.mu.Lock()
		delete(ch.subs, sub)
		close(sub)
		remaining := len(ch.subs)
		h.mu.Unlock()
		log.Info("hub unsubscribe", "subs", remaining)
	}
	return sub, unsub, seq, history
}

// Replay returns events after the provided seq.
func (h *Hub) Replay(consoleID schema.ConsoleID, after uint64) []StreamEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch := h.consoles[consoleID]
	if ch == nil {
		return nil
	}
	events := make([]StreamEvent, 0, len(ch.history))
	for _, event := range ch.history {
		if event.Seq > after {
			events = append(events, event)
		}
	}
	logx.WithConsole(context.Background(), consoleID).Debug("hub replay", "after", after, "count", len(events))
	return events
}

func (h *Hub) publish(consoleID schema.ConsoleID, event StreamEvent) {
	h.mu.Lock()
	ch := h.getOrCreateLocked(consoleID)
	ch.seq++
	event.Seq = ch.seq
	ch.history = append(ch.history, event)
	if len(ch.history) > h.historySize {
		ch.history = ch.history[len(ch.history)-h.historySize:]
	}
	dropped := 0
	for sub := range ch.subs {
		select {
		case sub <- event:
		default:
			dropped++
		}
	}
	h.mu.Unlock()

	if dropped > 0 {
		logx.WithConsole(context.Background(), consoleID).Warn("hub event dropped", "type", event.Type, "dropped", dropped)
	}
}

func (h *Hub) getOrCreateLocked(consoleID schema.ConsoleID) *consoleHub {
	ch := h.consoles[consoleID]
	if ch == nil {
		ch = &consoleHub{
			subs: make(map[chan StreamEvent]struct{}),
		}
		h.consoles[consoleID] = ch
	}
	return ch
}

type consoleHub struct {
	seq     uint64
	history []StreamEvent
	subs    map[chan StreamEvent]struct{}
}
