// Package conspool composes the console engine with its transports: one
// console fed by an attached process, served to SSH and HTTP viewers,
// with live fold-rule reloads and transcript persistence.
package conspool

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"pkt.systems/conspool/classify"
	"pkt.systems/conspool/core"
	"pkt.systems/conspool/httpapi"
	"pkt.systems/conspool/internal/eventbus"
	"pkt.systems/conspool/internal/persist"
	"pkt.systems/conspool/internal/sessionprefs"
	"pkt.systems/conspool/schema"
	"pkt.systems/conspool/sshserver"
	"pkt.systems/pslog"
)

const (
	// DefaultTranscriptTailBytes bounds the persisted transcript tail.
	DefaultTranscriptTailBytes = 256 * 1024
	// DefaultHistoryLimit bounds the persisted input history.
	DefaultHistoryLimit = 500
)

// Server composes the SSH and HTTP viewer services around one console.
type Server interface {
	Start(ctx context.Context) error
	Wait() error
	Stop(ctx context.Context) error

	// Console exposes the composed console so a process can be attached.
	Console() core.Console
	// History returns the recorded input history, oldest first.
	History() []string
	// SetResizer routes viewer terminal resizes to the attached process.
	// Call it before Start.
	SetResizer(r Resizer)
}

// Resizer propagates terminal size changes to the attached process pty.
type Resizer interface {
	Resize(rows, cols int) error
}

// ServerConfig configures the compositor.
type ServerConfig struct {
	Console schema.ConsoleConfig
	HTTP    httpapi.Config
	SSH     sshserver.Config

	// HubHistory bounds the HTTP stream replay buffer.
	HubHistory int
	// RulesFile points at the YAML fold-rules file. Optional.
	RulesFile string
	// StateDir enables transcript and history persistence when set.
	StateDir string
	// HistoryLimit bounds the recorded input history.
	HistoryLimit int
	// TranscriptTailBytes bounds the persisted transcript tail.
	TranscriptTailBytes int
}

// ServerDeps captures dependencies required to build the server. All
// fields are optional.
type ServerDeps struct {
	// Registry overrides the built-in classifier set.
	Registry *classify.Registry
	// Input receives submitted console input lines.
	Input core.ProcessInput
	// Sink receives engine events in addition to the composed transports.
	Sink   core.EventSink
	Logger pslog.Logger
}

// ServerOption toggles compositor components.
type ServerOption func(*serverOptions)

type serverOptions struct {
	enableHTTP bool
	enableSSH  bool
	watchRules bool
}

// WithHTTP enables the HTTP API server.
func WithHTTP() ServerOption {
	return func(o *serverOptions) { o.enableHTTP = true }
}

// WithSSH enables the SSH viewer server.
func WithSSH() ServerOption {
	return func(o *serverOptions) { o.enableSSH = true }
}

// WithRulesWatch reloads the fold-rules file on change and rehighlights.
func WithRulesWatch() ServerOption {
	return func(o *serverOptions) { o.watchRules = true }
}

// New constructs a composable conspool server.
func New(cfg ServerConfig, deps ServerDeps, opts ...ServerOption) (Server, error) {
	options := serverOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	if !options.enableHTTP && !options.enableSSH {
		return nil, errors.New("no services enabled")
	}

	normalized, err := schema.NormalizeConsoleConfig(cfg.Console)
	if err != nil {
		return nil, err
	}
	cfg.Console = normalized
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultHistoryLimit
	}
	if cfg.TranscriptTailBytes <= 0 {
		cfg.TranscriptTailBytes = DefaultTranscriptTailBytes
	}

	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}

	bus := eventbus.New(logger)
	var hub *httpapi.Hub
	if options.enableHTTP {
		hub = httpapi.NewHub(cfg.HubHistory)
	}

	sinks := make([]core.EventSink, 0, 3)
	if deps.Sink != nil {
		sinks = append(sinks, deps.Sink)
	}
	if hub != nil {
		sinks = append(sinks, hub)
	}
	sinks = append(sinks, bus)
	var sink core.EventSink
	if len(sinks) == 1 {
		sink = sinks[0]
	} else {
		sink = eventFanout{sinks: sinks}
	}

	var store *persist.Store
	var seeded persist.ConsoleState
	var prefs *sessionprefs.Store
	if cfg.StateDir != "" {
		store, err = persist.NewStoreWithLogger(cfg.StateDir, logger)
		if err != nil {
			return nil, err
		}
		prefs = sessionprefs.NewStore(filepath.Join(cfg.StateDir, "prefs"), logger)
		state, found, err := store.Load(cfg.Console.ID)
		if err != nil {
			logger.Warn("state restore failed", "console", cfg.Console.ID, "err", err)
		} else if found {
			seeded = state
		}
	}

	registry := deps.Registry
	if registry == nil {
		registry = classify.NewRegistry(logger)
		registry.SetClassifiers(
			builtinLineClassifiers(cfg, logger),
			builtinLinkClassifiers(),
			builtinHeavyClassifiers(),
		)
	}

	console, err := core.NewConsole(cfg.Console, core.ConsoleDeps{
		Registry: registry,
		Input:    deps.Input,
		Sink:     sink,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}

	if seeded.Transcript != "" {
		text := seeded.Transcript
		if !strings.HasSuffix(text, "\n") {
			text += "\n"
		}
		console.Print(text, schema.KindSystem)
	}

	var watcher *classify.Watcher
	if options.watchRules && cfg.RulesFile != "" && deps.Registry == nil {
		watcher, err = classify.NewWatcher(cfg.RulesFile, logger, func(lines []classify.LineClassifier) {
			all := []classify.LineClassifier{classify.CommandLine{Limit: cfg.Console.CommandLineFoldLimit}}
			all = append(all, lines...)
			registry.SetClassifiers(all, builtinLinkClassifiers(), builtinHeavyClassifiers())
			console.Rehighlight()
		})
		if err != nil {
			console.Dispose()
			return nil, err
		}
	}

	var httpSrv *httpapi.Server
	if options.enableHTTP {
		httpSrv = httpapi.NewServer(cfg.HTTP, console, hub)
	}

	var sshSrv *sshserver.Server
	if options.enableSSH {
		sshSrv = &sshserver.Server{
			Addr:               cfg.SSH.Addr,
			HostKeyPath:        cfg.SSH.HostKeyPath,
			AuthorizedKeysPath: cfg.SSH.AuthorizedKeysPath,
			Theme:              cfg.SSH.Theme,
			Console:            console,
			Bus:                bus,
			History:            append([]string(nil), seeded.History...),
			Prefs:              prefs,
			Logger:             logger,
		}
	}

	return &compositeServer{
		cfg:     cfg,
		options: options,
		console: console,
		bus:     bus,
		hub:     hub,
		httpSrv: httpSrv,
		sshSrv:  sshSrv,
		store:   store,
		watcher: watcher,
		history: append([]string(nil), seeded.History...),
	}, nil
}

func builtinLineClassifiers(cfg ServerConfig, logger pslog.Logger) []classify.LineClassifier {
	lines := []classify.LineClassifier{
		classify.CommandLine{Limit: cfg.Console.CommandLineFoldLimit},
	}
	if cfg.RulesFile == "" {
		return lines
	}
	rules, err := classify.LoadRulesFile(cfg.RulesFile)
	if err != nil {
		logger.Warn("fold rules load failed", "file", cfg.RulesFile, "err", err)
		return lines
	}
	ruleLines := rules.LineClassifiers()
	logger.Info("fold rules loaded", "file", cfg.RulesFile, "rules", len(ruleLines))
	return append(lines, ruleLines...)
}

func builtinLinkClassifiers() []classify.LinkClassifier {
	return []classify.LinkClassifier{classify.URLLinks{}, classify.PathLinks{}}
}

func builtinHeavyClassifiers() []classify.HeavyClassifier {
	return []classify.HeavyClassifier{classify.PathCheck{}}
}

type compositeServer struct {
	cfg     ServerConfig
	options serverOptions
	console core.Console
	bus     *eventbus.Bus
	hub     *httpapi.Hub
	httpSrv *httpapi.Server
	sshSrv  *sshserver.Server
	store   *persist.Store
	watcher *classify.Watcher
	logger  pslog.Logger

	histMu  sync.Mutex
	history []string

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	errCh   chan error
	started bool
}

func (s *compositeServer) Console() core.Console { return s.console }

func (s *compositeServer) History() []string {
	s.histMu.Lock()
	defer s.histMu.Unlock()
	return append([]string(nil), s.history...)
}

func (s *compositeServer) SetResizer(r Resizer) {
	if s.httpSrv != nil {
		s.httpSrv.SetResizer(r)
	}
	if s.sshSrv != nil {
		s.sshSrv.Resizer = r
	}
}

func (s *compositeServer) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		pslog.Ctx(ctx).Warn("server start rejected", "reason", "already started")
		return errors.New("server already started")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.errCh = make(chan error, 3)
	s.started = true
	s.logger = pslog.Ctx(s.ctx)
	s.mu.Unlock()

	log := s.logger
	log.Info(
		"server start",
		"console", s.console.ID(),
		"http", s.options.enableHTTP,
		"ssh", s.options.enableSSH,
		"http_addr", s.cfg.HTTP.Addr,
		"ssh_addr", s.cfg.SSH.Addr,
		"rules_watch", s.watcher != nil,
	)
	if s.options.enableHTTP && s.httpSrv != nil {
		go func() {
			if err := httpapi.ListenAndServe(s.ctx, s.cfg.HTTP.Addr, s.httpSrv.Handler()); err != nil {
				log.Error("http server failed", "err", err)
				s.errCh <- err
			}
		}()
	}
	if s.options.enableSSH && s.sshSrv != nil {
		go func() {
			if err := s.sshSrv.ListenAndServe(s.ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("ssh server failed", "err", err)
				s.errCh <- err
			}
		}()
	}
	if s.watcher != nil {
		go func() {
			if err := s.watcher.Run(s.ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Warn("rules watcher failed", "err", err)
			}
		}()
	}
	go s.recordHistory(s.ctx)
	return nil
}

// recordHistory tracks submitted input lines for persistence and for
// seeding future viewer sessions.
func (s *compositeServer) recordHistory(ctx context.Context) {
	events, cancel := s.bus.Subscribe(s.console.ID())
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Type != eventbus.EventState || ev.State.Type != schema.StateInputSubmitted {
				continue
			}
			s.histMu.Lock()
			s.history = persist.AppendHistory(s.history, ev.State.Text, s.cfg.HistoryLimit)
			s.histMu.Unlock()
		}
	}
}

func (s *compositeServer) Wait() error {
	s.mu.Lock()
	ctx := s.ctx
	errCh := s.errCh
	started := s.started
	s.mu.Unlock()
	if !started {
		return errors.New("server not started")
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		if err != nil {
			pslog.Ctx(ctx).Error("server stopped", "err", err)
			_ = s.Stop(context.Background())
			return err
		}
		return nil
	}
}

func (s *compositeServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel := s.cancel
	serverCtx := s.ctx
	started := s.started
	log := s.logger
	s.mu.Unlock()
	if !started {
		return nil
	}
	if log == nil {
		log = pslog.Ctx(context.Background())
	}
	log.Info("server stop requested")
	s.persistState(log)
	if cancel != nil {
		cancel()
	}
	s.console.Dispose()
	if ctx == nil {
		log.Info("server stop completed")
		return nil
	}
	select {
	case <-ctx.Done():
		log.Warn("server stop timed out", "err", ctx.Err())
		return ctx.Err()
	case <-serverCtx.Done():
		log.Info("server stopped")
		return nil
	}
}

// persistState flushes deferred output, then saves the transcript tail
// and input history. Runs before the console is disposed.
func (s *compositeServer) persistState(log pslog.Logger) {
	if s.store == nil {
		return
	}
	flushCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.console.RequestFlush()
	if err := s.console.AwaitFlushed(flushCtx); err != nil {
		log.Debug("state flush wait gave up", "err", err)
	}
	state := persist.ConsoleState{
		ID:         s.console.ID(),
		Title:      s.console.Info().Title,
		Transcript: persist.TranscriptTail(s.console.Text(), s.cfg.TranscriptTailBytes),
		History:    s.History(),
		SavedAt:    time.Now(),
	}
	if err := s.store.Save(s.console.ID(), state); err != nil {
		log.Warn("server state save failed", "err", err)
		return
	}
	log.Info("server state saved", "transcript", len(state.Transcript), "history", len(state.History))
}
