// Package sessionprefs persists per-user viewer preferences, one small
// YAML file per user under the state directory.
package sessionprefs

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode"

	"gopkg.in/yaml.v3"

	"pkt.systems/pslog"
)

// Prefs captures a user's viewer preferences.
type Prefs struct {
	Theme string `yaml:"theme,omitempty"`
}

// Store reads and writes preference files. A nil logger disables logging.
type Store struct {
	dir string
	log pslog.Logger
	mu  sync.Mutex
}

// NewStore constructs a store rooted at dir. The directory is created on
// the first save.
func NewStore(dir string, logger pslog.Logger) *Store {
	if logger != nil {
		logger = logger.With("prefs_dir", dir)
	}
	return &Store{dir: dir, log: logger}
}

// Load reads a user's preferences. A missing file is not an error and
// reports ok false.
func (s *Store) Load(user string) (Prefs, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := os.ReadFile(s.pathFor(user))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Prefs{}, false, nil
		}
		if s.log != nil {
			s.log.Warn("prefs load failed", "user", user, "err", err)
		}
		return Prefs{}, false, err
	}
	var prefs Prefs
	if err := yaml.Unmarshal(data, &prefs); err != nil {
		if s.log != nil {
			s.log.Warn("prefs load failed", "user", user, "err", err)
		}
		return Prefs{}, false, err
	}
	return prefs, true, nil
}

// Save writes a user's preferences.
func (s *Store) Save(user string, prefs Prefs) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		if s.log != nil {
			s.log.Warn("prefs save failed", "user", user, "err", err)
		}
		return err
	}
	data, err := yaml.Marshal(prefs)
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.pathFor(user), data, 0o600); err != nil {
		if s.log != nil {
			s.log.Warn("prefs save failed", "user", user, "err", err)
		}
		return err
	}
	if s.log != nil {
		s.log.Debug("prefs saved", "user", user)
	}
	return nil
}

func (s *Store) pathFor(user string) string {
	name := sanitize(user)
	if name == "" {
		name = "unknown"
	}
	return filepath.Join(s.dir, name+".yaml")
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
