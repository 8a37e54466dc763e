package classify

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"pkt.systems/pslog"
)

// Watcher reloads a fold rules file when it changes on disk and hands the
// compiled classifiers to the apply callback. Editors replace files with
// rename+create, so the parent directory is watched rather than the file.
type Watcher struct {
	path    string
	apply   func([]LineClassifier)
	log     pslog.Logger
	watcher *fsnotify.Watcher
}

// NewWatcher constructs a rules file watcher. The apply callback runs on
// the watcher goroutine and receives the freshly compiled classifiers.
func NewWatcher(path string, logger pslog.Logger, apply func([]LineClassifier)) (*Watcher, error) {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		_ = fw.Close()
		return nil, err
	}
	return &Watcher{path: path, apply: apply, log: logger.With("rules_file", path), watcher: fw}, nil
}

// Run watches until the context is cancelled. Reloads are debounced so a
// save that triggers several filesystem events compiles once.
func (w *Watcher) Run(ctx context.Context) error {
	defer func() { _ = w.watcher.Close() }()
	var pending *time.Timer
	var fire <-chan time.Time
	w.log.Info("rules watch started")
	for {
		select {
		case <-ctx.Done():
			w.log.Info("rules watch stopped")
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if pending == nil {
				pending = time.NewTimer(200 * time.Millisecond)
			} else {
				pending.Reset(200 * time.Millisecond)
			}
			fire = pending.C
		case <-fire:
			fire = nil
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("rules watch error", "err", err)
		}
	}
}

func (w *Watcher) reload() {
	rs, err := LoadRulesFile(w.path)
	if err != nil {
		w.log.Warn("rules reload failed", "err", err)
		return
	}
	classifiers := rs.LineClassifiers()
	w.log.Info("rules reload ok", "rules", len(classifiers))
	w.apply(classifiers)
}
