package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"pkt.systems/pslog"

	"pkt.systems/conspool/core"
	"pkt.systems/conspool/internal/logx"
	"pkt.systems/conspool/internal/version"
)

// Resizer forwards terminal size changes to the attached process.
type Resizer interface {
	Resize(rows, cols int) error
}

// Server serves the HTTP API for one console.
type Server struct {
	cfg     Config
	console core.Console
	hub     *Hub
	resizer Resizer
}

// NewServer constructs an HTTP server.
func NewServer(cfg Config, console core.Console, hub *Hub) *Server {
	return &Server{
		cfg:     cfg,
		console: console,
		hub:     hub,
	}
}

// SetResizer sets the optional resize target for stream clients.
func (s *Server) SetResizer(r Resizer) {
	if s == nil {
		return
	}
	s.resizer = r
}

// Handler returns an http.Handler for the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/api/snapshot", s.handleSnapshot)
	mux.HandleFunc("/api/input", s.handleInput)
	mux.HandleFunc("/api/control", s.handleControl)
	mux.HandleFunc("/api/stream", s.handleStream)
	return withRequestLogging(mux)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "version": version.Current()})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	log := logx.WithConsole(r.Context(), s.console.ID())
	snapshot, err := s.console.Snapshot(r.Context())
	if err != nil {
		log.Warn("http snapshot failed", "err", err)
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
	log.Debug("http snapshot ok", "length", len(snapshot.Text))
}

func (s *Server) handleInput(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	log := logx.WithConsole(r.Context(), s.console.ID()).With("remote", clientIP(r))
	var payload struct {
		Input string `json:"input"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		log.Warn("http input decode failed", "err", err)
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if payload.Input == "" {
		writeError(w, http.StatusBadRequest, errors.New("input is required"))
		return
	}
	s.console.Type(payload.Input)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	log.Info("http input ok", "input_len", len(payload.Input))
}

func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	log := logx.WithConsole(r.Context(), s.console.ID()).With("remote", clientIP(r))
	var payload struct {
		Action string `json:"action"`
		Offset int    `json:"offset"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		log.Warn("http control decode failed", "err", err)
		writeError(w, http.StatusBadRequest, err)
		return
	}
	switch payload.Action {
	case "clear":
		s.console.Clear()
	case "pause":
		s.console.SetOutputPaused(true)
	case "resume":
		s.console.SetOutputPaused(false)
	case "flush":
		s.console.RequestFlush()
	case "scroll_end":
		s.console.ScrollToEnd()
	case "scroll":
		s.console.ScrollTo(payload.Offset)
	case "expand_folds":
		s.console.SetFoldsExpanded(true)
	case "collapse_folds":
		s.console.SetFoldsExpanded(false)
	case "rehighlight":
		s.console.Rehighlight()
	default:
		writeError(w, http.StatusBadRequest, errors.New("unknown action: "+payload.Action))
		log.Warn("http control rejected", "action", payload.Action)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	log.Info("http control ok", "action", payload.Action)
}

var streamUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The server typically binds to localhost or sits behind a trusted proxy.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleStream bridges console events over a websocket.
//
// Client protocol:
//   - Control messages are JSON: {"type":"input","data":<string>} and
//     {"type":"resize","cols":<int>,"rows":<int>}.
//   - The server sends StreamEvent JSON messages, a snapshot event first.
//   - Reconnect with ?after=<seq> to replay missed events.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	log := logx.WithConsole(r.Context(), s.console.ID()).With("remote", clientIP(r))
	conn, err := streamUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("http stream upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	after := parseUint(r.URL.Query().Get("after"))

	// Subscribe before taking the snapshot: a client may see an event
	// whose effect the snapshot already includes, never a gap.
	ch, unsubscribe, seq, history := s.hub.Subscribe(s.console.ID())
	defer unsubscribe()

	snapshot, err := s.console.Snapshot(r.Context())
	if err != nil {
		log.Warn("http stream snapshot failed", "err", err)
		_ = conn.WriteJSON(StreamEvent{Type: "error", Text: err.Error(), Timestamp: time.Now()})
		return
	}
	if err := conn.WriteJSON(StreamEvent{
		Type:      "snapshot",
		Console:   s.console.ID(),
		Snapshot:  &snapshot,
		Timestamp: time.Now(),
	}); err != nil {
		return
	}

	replayCount := 0
	if after > 0 {
		for _, event := range history {
			if event.Seq <= after {
				continue
			}
			if err := conn.WriteJSON(event); err != nil {
				return
			}
			replayCount++
		}
	}

	readerDone := make(chan struct{})
	go s.readStreamInput(conn, readerDone, log)

	notify := r.Context().Done()
	log.Info("http stream opened", "after", after, "seq", seq, "replay", replayCount)
	for {
		select {
		case <-notify:
			log.Info("http stream closed")
			return
		case <-readerDone:
			log.Info("http stream closed by client")
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				log.Debug("http stream write failed", "err", err)
				return
			}
		}
	}
}

// readStreamInput consumes client frames until the connection drops. It
// never writes to the connection; the stream loop owns all writes.
func (s *Server) readStreamInput(conn *websocket.Conn, done chan<- struct{}, log pslog.Logger) {
	defer close(done)
	type clientMsg struct {
		Type string `json:"type"`
		Data string `json:"data"`
		Cols int    `json:"cols"`
		Rows int    `json:"rows"`
	}
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		switch mt {
		case websocket.TextMessage, websocket.BinaryMessage:
			var msg clientMsg
			if json.Unmarshal(data, &msg) != nil {
				continue
			}
			switch msg.Type {
			case "input":
				if msg.Data != "" {
					s.console.Type(msg.Data)
				}
			case "resize":
				if s.resizer != nil && msg.Cols > 0 && msg.Rows > 0 {
					if err := s.resizer.Resize(msg.Rows, msg.Cols); err != nil {
						log.Warn("http stream resize failed", "err", err)
					}
				}
			}
		case websocket.CloseMessage:
			return
		default:
		}
	}
}

func decodeJSON(body io.Reader, target any) error {
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(target)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	data, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func parseUint(value string) uint64 {
	if value == "" {
		return 0
	}
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0
	}
	return parsed
}
