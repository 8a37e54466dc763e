package persist

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"pkt.systems/conspool/schema"
	"pkt.systems/pslog"
)

// ConsoleState captures what survives a restart: the rendered transcript
// tail and the interactive input history.
type ConsoleState struct {
	ID         schema.ConsoleID `json:"id"`
	Title      string           `json:"title,omitempty"`
	Transcript string           `json:"transcript,omitempty"`
	History    []string         `json:"history,omitempty"`
	SavedAt    time.Time        `json:"saved_at"`
}

// Store persists console state to disk, one file per console.
type Store struct {
	dir string
	log pslog.Logger
}

// NewStore constructs a persistent store at the given directory.
func NewStore(dir string) (*Store, error) {
	return NewStoreWithLogger(dir, nil)
}

// NewStoreWithLogger constructs a persistent store with logging.
func NewStoreWithLogger(dir string, logger pslog.Logger) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("state directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	if logger != nil {
		logger = logger.With("state_dir", dir)
	}
	return &Store{dir: dir, log: logger}, nil
}

// Load reads console state from disk.
func (s *Store) Load(consoleID schema.ConsoleID) (ConsoleState, bool, error) {
	path := s.pathFor(consoleID)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if s.log != nil {
				s.log.Debug("state load miss", "console", consoleID)
			}
			return ConsoleState{}, false, nil
		}
		if s.log != nil {
			s.log.Warn("state load failed", "console", consoleID, "err", err)
		}
		return ConsoleState{}, false, err
	}
	var state ConsoleState
	if err := json.Unmarshal(data, &state); err != nil {
		if s.log != nil {
			s.log.Warn("state load failed", "console", consoleID, "err", err)
		}
		return ConsoleState{}, false, err
	}
	if s.log != nil {
		s.log.Debug("state load ok", "console", consoleID, "transcript", len(state.Transcript))
	}
	return state, true, nil
}

// Save writes console state to disk through a temp file rename so a crash
// mid-write never truncates the previous state.
func (s *Store) Save(consoleID schema.ConsoleID, state ConsoleState) error {
	path := s.pathFor(consoleID)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		if s.log != nil {
			s.log.Warn("state save failed", "console", consoleID, "err", err)
		}
		return err
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		if s.log != nil {
			s.log.Warn("state save failed", "console", consoleID, "err", err)
		}
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "state-*.json")
	if err != nil {
		if s.log != nil {
			s.log.Warn("state save failed", "console", consoleID, "err", err)
		}
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		if s.log != nil {
			s.log.Warn("state save failed", "console", consoleID, "err", err)
		}
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		if s.log != nil {
			s.log.Warn("state save failed", "console", consoleID, "err", err)
		}
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		if s.log != nil {
			s.log.Warn("state save failed", "console", consoleID, "err", err)
		}
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		_ = os.Remove(tmp.Name())
		if s.log != nil {
			s.log.Warn("state save failed", "console", consoleID, "err", err)
		}
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		if s.log != nil {
			s.log.Warn("state save failed", "console", consoleID, "err", err)
		}
		return err
	}
	if s.log != nil {
		s.log.Trace("state save ok", "console", consoleID, "transcript", len(state.Transcript))
	}
	return nil
}

func (s *Store) pathFor(consoleID schema.ConsoleID) string {
	name := sanitize(string(consoleID))
	if name == "" {
		name = "unknown"
	}
	return filepath.Join(s.dir, name+".json")
}

func sanitize(value string) string {
	var b strings.Builder
	for _, r := range value {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			continue
		}
		if r == '-' || r == '_' || r == '.' {
			b.WriteRune(r)
			continue
		}
		b.WriteRune('_')
	}
	return b.String()
}

// TranscriptTail bounds a transcript to its newest max bytes, cut at a
// line boundary so the saved tail never starts mid-line.
func TranscriptTail(text string, max int) string {
	if max <= 0 || len(text) <= max {
		return text
	}
	tail := text[len(text)-max:]
	if i := strings.IndexByte(tail, '\n'); i >= 0 && i+1 < len(tail) {
		return tail[i+1:]
	}
	return tail
}

// AppendHistory appends one submitted line to the input history, skipping
// consecutive duplicates and bounding the slice to its newest limit entries.
func AppendHistory(history []string, entry string, limit int) []string {
	entry = strings.TrimSuffix(entry, "\n")
	if entry == "" {
		return history
	}
	if n := len(history); n > 0 && history[n-1] == entry {
		return history
	}
	history = append(history, entry)
	if limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}
	return history
}
