package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"pkt.systems/conspool/core"
	"pkt.systems/conspool/schema"
)

func newTestServer(t *testing.T) (*httptest.Server, *Server, core.Console, *Hub) {
	t.Helper()
	hub := NewHub(100)
	console, err := core.NewConsole(schema.ConsoleConfig{
		ID:         "test",
		FlushDelay: 5 * time.Millisecond,
	}, core.ConsoleDeps{Sink: hub})
	if err != nil {
		t.Fatalf("new console: %v", err)
	}
	t.Cleanup(console.Dispose)
	server := NewServer(Config{StreamHistory: 100}, console, hub)
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return ts, server, console, hub
}

func awaitFlushed(t *testing.T, console core.Console) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	console.RequestFlush()
	if err := console.AwaitFlushed(ctx); err != nil {
		t.Fatalf("await flushed: %v", err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealthz(t *testing.T) {
	ts, _, _, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("get healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	var payload struct {
		Status  string `json:"status"`
		Version string `json:"version"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode healthz: %v", err)
	}
	if payload.Status != "ok" {
		t.Fatalf("unexpected health payload: %+v", payload)
	}
}

func TestSnapshotEndpoint(t *testing.T) {
	ts, _, console, _ := newTestServer(t)
	console.Print("hello\n", schema.KindNormal)
	awaitFlushed(t, console)

	resp, err := http.Get(ts.URL + "/api/snapshot")
	if err != nil {
		t.Fatalf("get snapshot: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	var snapshot schema.ConsoleSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snapshot); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snapshot.ID != "test" || snapshot.Text != "hello\n" {
		t.Fatalf("unexpected snapshot: %+v", snapshot)
	}
	if snapshot.InputStart != -1 {
		t.Fatalf("expected no open input span, got %d", snapshot.InputStart)
	}
}

func TestInputEndpoint(t *testing.T) {
	ts, _, console, _ := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/input", `{"input":"hi\n"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	waitFor(t, "typed input rendered", func() bool {
		return console.Text() == "hi\n"
	})

	if resp := postJSON(t, ts.URL+"/api/input", `{"input":""}`); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty input, got %d", resp.StatusCode)
	}
	if resp := postJSON(t, ts.URL+"/api/input", `{"bogus":true}`); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", resp.StatusCode)
	}
}

func TestControlEndpoint(t *testing.T) {
	ts, _, console, _ := newTestServer(t)

	if resp := postJSON(t, ts.URL+"/api/control", `{"action":"pause"}`); resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	waitFor(t, "output paused", console.IsOutputPaused)

	if resp := postJSON(t, ts.URL+"/api/control", `{"action":"resume"}`); resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	waitFor(t, "output resumed", func() bool { return !console.IsOutputPaused() })

	resp := postJSON(t, ts.URL+"/api/control", `{"action":"bogus"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown action, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "unknown action") {
		t.Fatalf("unexpected error body: %s", body)
	}
}

func dialStream(t *testing.T, ts *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/stream" + query
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func readStreamEvent(t *testing.T, conn *websocket.Conn) StreamEvent {
	t.Helper()
	var event StreamEvent
	if err := conn.ReadJSON(&event); err != nil {
		t.Fatalf("read stream event: %v", err)
	}
	return event
}

func TestStreamSendsSnapshotThenLiveEvents(t *testing.T) {
	ts, _, console, _ := newTestServer(t)
	console.Print("before\n", schema.KindNormal)
	awaitFlushed(t, console)

	conn := dialStream(t, ts, "")

	first := readStreamEvent(t, conn)
	if first.Type != "snapshot" || first.Snapshot == nil {
		t.Fatalf("expected snapshot first, got %+v", first)
	}
	if first.Snapshot.Text != "before\n" {
		t.Fatalf("unexpected snapshot text: %q", first.Snapshot.Text)
	}

	console.Print("live\n", schema.KindNormal)
	console.RequestFlush()

	for {
		event := readStreamEvent(t, conn)
		if event.Type == "text" && event.Text == "live\n" {
			return
		}
	}
}

func TestStreamClientInputFrame(t *testing.T) {
	ts, _, console, _ := newTestServer(t)
	conn := dialStream(t, ts, "")

	if event := readStreamEvent(t, conn); event.Type != "snapshot" {
		t.Fatalf("expected snapshot first, got %+v", event)
	}
	if err := conn.WriteJSON(map[string]any{"type": "input", "data": "typed\n"}); err != nil {
		t.Fatalf("write input frame: %v", err)
	}
	waitFor(t, "typed input rendered", func() bool {
		return console.Text() == "typed\n"
	})
}

type recordingResizer struct {
	mu   sync.Mutex
	rows int
	cols int
}

func (r *recordingResizer) Resize(rows, cols int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows, r.cols = rows, cols
	return nil
}

func (r *recordingResizer) size() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rows, r.cols
}

func TestStreamResizeFrameForwarded(t *testing.T) {
	ts, server, _, _ := newTestServer(t)
	resizer := &recordingResizer{}
	server.SetResizer(resizer)

	conn := dialStream(t, ts, "")
	if event := readStreamEvent(t, conn); event.Type != "snapshot" {
		t.Fatalf("expected snapshot first, got %+v", event)
	}
	if err := conn.WriteJSON(map[string]any{"type": "resize", "cols": 132, "rows": 50}); err != nil {
		t.Fatalf("write resize frame: %v", err)
	}
	waitFor(t, "resize forwarded", func() bool {
		rows, cols := resizer.size()
		return rows == 50 && cols == 132
	})
}

func TestStreamReplayAfter(t *testing.T) {
	ts, _, _, hub := newTestServer(t)
	hub.OnText(schema.TextEvent{Console: "test", Text: "one\n"})
	hub.OnText(schema.TextEvent{Console: "test", Text: "two\n"})
	hub.OnText(schema.TextEvent{Console: "test", Text: "three\n"})

	conn := dialStream(t, ts, "?after=1")

	if event := readStreamEvent(t, conn); event.Type != "snapshot" {
		t.Fatalf("expected snapshot first, got %+v", event)
	}
	second := readStreamEvent(t, conn)
	if second.Seq != 2 || second.Text != "two\n" {
		t.Fatalf("unexpected first replayed event: %+v", second)
	}
	third := readStreamEvent(t, conn)
	if third.Seq != 3 || third.Text != "three\n" {
		t.Fatalf("unexpected second replayed event: %+v", third)
	}
}
