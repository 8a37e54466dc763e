package httpapi

import (
	"testing"

	"pkt.systems/conspool/schema"
)

func TestHubPublishAndSubscribe(t *testing.T) {
	hub := NewHub(10)
	ch, unsub, seq, history := hub.Subscribe("job")
	defer unsub()
	if seq != 0 || len(history) != 0 {
		t.Fatalf("expected empty hub, got seq=%d history=%d", seq, len(history))
	}

	hub.OnText(schema.TextEvent{Console: "job", Text: "hello\n", Kind: schema.KindNormal})

	event := <-ch
	if event.Type != "text" || event.Text != "hello\n" || event.Seq != 1 {
		t.Fatalf("unexpected event: %+v", event)
	}
	if event.Console != "job" {
		t.Fatalf("unexpected console: %q", event.Console)
	}
}

func TestHubKeepsConsolesSeparate(t *testing.T) {
	hub := NewHub(10)
	ch, unsub, _, _ := hub.Subscribe("a")
	defer unsub()

	hub.OnText(schema.TextEvent{Console: "b", Text: "other\n"})
	hub.OnText(schema.TextEvent{Console: "a", Text: "mine\n"})

	event := <-ch
	if event.Text != "mine\n" {
		t.Fatalf("expected only own console events, got %+v", event)
	}
	select {
	case extra := <-ch:
		t.Fatalf("unexpected extra event: %+v", extra)
	default:
	}
}

func TestHubReplayAfterSeq(t *testing.T) {
	hub := NewHub(10)
	hub.OnText(schema.TextEvent{Console: "job", Text: "one\n"})
	hub.OnState(schema.StateEvent{Console: "job", Type: schema.StateCleared})
	hub.OnText(schema.TextEvent{Console: "job", Text: "two\n"})

	replay := hub.Replay("job", 1)
	if len(replay) != 2 {
		t.Fatalf("expected 2 replayed events, got %d", len(replay))
	}
	if replay[0].Type != "state" || replay[0].State != schema.StateCleared {
		t.Fatalf("unexpected first replay event: %+v", replay[0])
	}
	if replay[1].Text != "two\n" {
		t.Fatalf("unexpected second replay event: %+v", replay[1])
	}
	if got := hub.Replay("job", 3); len(got) != 0 {
		t.Fatalf("expected no events after latest seq, got %d", len(got))
	}
	if got := hub.Replay("missing", 0); got != nil {
		t.Fatalf("expected nil replay for unknown console, got %v", got)
	}
}

func TestHubHistoryBounded(t *testing.T) {
	hub := NewHub(3)
	for i := 0; i < 5; i++ {
		hub.OnText(schema.TextEvent{Console: "job", Text: "line\n"})
	}
	_, unsub, seq, history := hub.Subscribe("job")
	defer unsub()
	if seq != 5 {
		t.Fatalf("expected seq 5, got %d", seq)
	}
	if len(history) != 3 {
		t.Fatalf("expected history trimmed to 3, got %d", len(history))
	}
	if history[0].Seq != 3 {
		t.Fatalf("expected oldest kept seq 3, got %d", history[0].Seq)
	}
}

func TestHubPublishDoesNotBlockWhenFull(t *testing.T) {
	hub := NewHub(10)
	ch, unsub, _, _ := hub.Subscribe("job")
	defer unsub()

	for i := 0; i < cap(ch)+5; i++ {
		hub.OnText(schema.TextEvent{Console: "job", Text: "x"})
	}

	drained := 0
	for {
		select {
		case <-ch:
			drained++
		default:
			if drained != cap(ch) {
				t.Fatalf("expected %d buffered events, got %d", cap(ch), drained)
			}
			return
		}
	}
}

func TestHubUnsubscribeClosesChannel(t *testing.T) {
	hub := NewHub(10)
	ch, unsub, _, _ := hub.Subscribe("job")
	unsub()
	if _, ok := <-ch; ok {
		t.Fatalf("expected closed channel after unsubscribe")
	}
	hub.OnText(schema.TextEvent{Console: "job", Text: "late\n"})
}
