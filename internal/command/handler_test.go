package command

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"pkt.systems/pslog"

	"pkt.systems/conspool/core"
	"pkt.systems/conspool/internal/sessionprefs"
	"pkt.systems/conspool/schema"
)

// consoleStub records the console calls slash commands make.
type consoleStub struct {
	id       schema.ConsoleID
	cleared  int
	paused   bool
	deferred bool
	size     int
	folds    []bool
}

func (c *consoleStub) ID() schema.ConsoleID     { return c.id }
func (c *consoleStub) Info() schema.ConsoleInfo { return schema.ConsoleInfo{ID: c.id} }

func (c *consoleStub) Print(string, schema.ContentKind)      {}
func (c *consoleStub) PrintHyperlink(string, schema.LinkRef) {}

func (c *consoleStub) Type(string)             {}
func (c *consoleStub) Backspace(int)           {}
func (c *consoleStub) DeleteUserText(int, int) {}
func (c *consoleStub) Clear()                  { c.cleared++ }

func (c *consoleStub) ScrollTo(int)           {}
func (c *consoleStub) ScrollToEnd()           {}
func (c *consoleStub) CancelStickToEnd()      {}
func (c *consoleStub) SetViewportBottom(bool) {}

func (c *consoleStub) SetOutputPaused(paused bool) { c.paused = paused }
func (c *consoleStub) IsOutputPaused() bool        { return c.paused }

func (c *consoleStub) ContentSize() int                      { return c.size }
func (c *consoleStub) HasDeferredOutput() bool               { return c.deferred }
func (c *consoleStub) RequestFlush()                         {}
func (c *consoleStub) AwaitFlushed(context.Context) error    { return nil }
func (c *consoleStub) PerformWhenNoDeferredOutput(fn func()) { fn() }

func (c *consoleStub) Text() string   { return "" }
func (c *consoleStub) LineCount() int { return 0 }

func (c *consoleStub) Rehighlight()     {}
func (c *consoleStub) FoldImmediately() {}

func (c *consoleStub) SetFoldsExpanded(expanded bool) {
	c.folds = append(c.folds, expanded)
}

func (c *consoleStub) SetProcess(core.ProcessInput) {}
func (c *consoleStub) Dispose()                     {}

func (c *consoleStub) Snapshot(context.Context) (schema.ConsoleSnapshot, error) {
	return schema.ConsoleSnapshot{}, nil
}

// fakeSession implements Session over a consoleStub.
type fakeSession struct {
	console *consoleStub
	user    string
	theme   string
	themes  []string
	folds   bool
	notices []string
}

func (s *fakeSession) Console() core.Console { return s.console }
func (s *fakeSession) User() string          { return s.user }
func (s *fakeSession) ThemeName() string     { return s.theme }
func (s *fakeSession) ThemeNames() []string  { return s.themes }

func (s *fakeSession) ApplyTheme(name string) bool {
	for _, known := range s.themes {
		if known == name {
			s.theme = name
			return true
		}
	}
	return false
}

func (s *fakeSession) FoldsExpanded() bool      { return s.folds }
func (s *fakeSession) ApplyFolds(expanded bool) { s.folds = expanded }
func (s *fakeSession) Notify(text string)       { s.notices = append(s.notices, text) }

type fakePrefs struct {
	users []string
	saves []sessionprefs.Prefs
	err   error
}

func (p *fakePrefs) Save(user string, prefs sessionprefs.Prefs) error {
	p.users = append(p.users, user)
	p.saves = append(p.saves, prefs)
	return p.err
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		console: &consoleStub{id: "build"},
		user:    "alice",
		theme:   "outrun",
		themes:  []string{"gruvbox", "outrun"},
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		ok      bool
		cmdName string
		args    []string
	}{
		{name: "plain", input: "make build", ok: false},
		{name: "bare-slash", input: "/", ok: true, cmdName: ""},
		{name: "upper", input: "  /HELP", ok: true, cmdName: "help"},
		{name: "args", input: "/theme gruvbox", ok: true, cmdName: "theme", args: []string{"gruvbox"}},
	}
	for _, tc := range tests {
		cmd, ok := Parse(tc.input)
		if ok != tc.ok {
			t.Fatalf("%s: Parse ok = %v, want %v", tc.name, ok, tc.ok)
		}
		if !ok {
			continue
		}
		if cmd.Name != tc.cmdName {
			t.Fatalf("%s: Name = %q, want %q", tc.name, cmd.Name, tc.cmdName)
		}
		if len(cmd.Args) != len(tc.args) {
			t.Fatalf("%s: Args = %v, want %v", tc.name, cmd.Args, tc.args)
		}
		for i := range cmd.Args {
			if cmd.Args[i] != tc.args[i] {
				t.Fatalf("%s: Args = %v, want %v", tc.name, cmd.Args, tc.args)
			}
		}
	}
}

func TestHandlePassesThroughPlainInput(t *testing.T) {
	sess := newFakeSession()
	handler := NewHandler(HandlerConfig{})
	handled, err := handler.Handle(context.Background(), sess, "make build")
	if handled || err != nil {
		t.Fatalf("Handle = (%v, %v), want pass-through", handled, err)
	}
	if len(sess.notices) != 0 {
		t.Fatalf("notices = %q", sess.notices)
	}
}

func TestHandleClear(t *testing.T) {
	sess := newFakeSession()
	handler := NewHandler(HandlerConfig{})
	handled, err := handler.Handle(context.Background(), sess, "/clear")
	if !handled || err != nil {
		t.Fatalf("Handle = (%v, %v)", handled, err)
	}
	if sess.console.cleared != 1 {
		t.Fatalf("cleared = %d, want 1", sess.console.cleared)
	}
}

func TestHandlePauseResume(t *testing.T) {
	sess := newFakeSession()
	handler := NewHandler(HandlerConfig{})
	if _, err := handler.Handle(context.Background(), sess, "/pause"); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if !sess.console.paused {
		t.Fatal("console not paused")
	}
	if _, err := handler.Handle(context.Background(), sess, "/resume"); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if sess.console.paused {
		t.Fatal("console still paused")
	}
}

func TestHandleFoldsToggles(t *testing.T) {
	sess := newFakeSession()
	handler := NewHandler(HandlerConfig{})
	if _, err := handler.Handle(context.Background(), sess, "/folds"); err != nil {
		t.Fatalf("folds: %v", err)
	}
	if !sess.folds {
		t.Fatal("first toggle did not expand")
	}
	if _, err := handler.Handle(context.Background(), sess, "/folds"); err != nil {
		t.Fatalf("folds: %v", err)
	}
	if sess.folds {
		t.Fatal("second toggle did not collapse")
	}
}

func TestHandleThemeLists(t *testing.T) {
	sess := newFakeSession()
	handler := NewHandler(HandlerConfig{})
	if _, err := handler.Handle(context.Background(), sess, "/theme"); err != nil {
		t.Fatalf("theme: %v", err)
	}
	if len(sess.notices) != 1 || !strings.Contains(sess.notices[0], "outrun") {
		t.Fatalf("notices = %q", sess.notices)
	}
	if !strings.Contains(sess.notices[0], "gruvbox") {
		t.Fatalf("available themes missing: %q", sess.notices[0])
	}
}

func TestHandleThemeSwitchesAndSaves(t *testing.T) {
	sess := newFakeSession()
	prefs := &fakePrefs{}
	handler := NewHandler(HandlerConfig{Prefs: prefs})
	if _, err := handler.Handle(context.Background(), sess, "/theme GRUVBOX"); err != nil {
		t.Fatalf("theme: %v", err)
	}
	if sess.theme != "gruvbox" {
		t.Fatalf("theme = %q, want gruvbox", sess.theme)
	}
	if len(prefs.saves) != 1 || prefs.saves[0].Theme != "gruvbox" {
		t.Fatalf("saves = %+v", prefs.saves)
	}
	if len(prefs.users) != 1 || prefs.users[0] != "alice" {
		t.Fatalf("users = %q", prefs.users)
	}
}

func TestHandleThemeUnknown(t *testing.T) {
	sess := newFakeSession()
	prefs := &fakePrefs{}
	handler := NewHandler(HandlerConfig{Prefs: prefs})
	_, err := handler.Handle(context.Background(), sess, "/theme neon")
	if err == nil || !strings.Contains(err.Error(), "unknown theme") {
		t.Fatalf("err = %v", err)
	}
	if len(prefs.saves) != 0 {
		t.Fatalf("saved prefs for rejected theme: %+v", prefs.saves)
	}
}

func TestHandleStatusReportsPaused(t *testing.T) {
	sess := newFakeSession()
	sess.console.paused = true
	sess.console.size = 42
	handler := NewHandler(HandlerConfig{})
	if _, err := handler.Handle(context.Background(), sess, "/status"); err != nil {
		t.Fatalf("status: %v", err)
	}
	if len(sess.notices) != 1 || !strings.Contains(sess.notices[0], "paused") {
		t.Fatalf("notices = %q", sess.notices)
	}
	if !strings.Contains(sess.notices[0], "42") {
		t.Fatalf("size missing: %q", sess.notices[0])
	}
}

func TestHandleUnknownCommand(t *testing.T) {
	sess := newFakeSession()
	handler := NewHandler(HandlerConfig{})
	handled, err := handler.Handle(context.Background(), sess, "/frobnicate")
	if !handled {
		t.Fatal("expected handled command")
	}
	if err == nil || !strings.Contains(err.Error(), "unknown command: /frobnicate") {
		t.Fatalf("err = %v", err)
	}
}

func TestHandleHelpAndVersion(t *testing.T) {
	sess := newFakeSession()
	handler := NewHandler(HandlerConfig{})
	if _, err := handler.Handle(context.Background(), sess, "/help"); err != nil {
		t.Fatalf("help: %v", err)
	}
	if _, err := handler.Handle(context.Background(), sess, "/version"); err != nil {
		t.Fatalf("version: %v", err)
	}
	if len(sess.notices) != 2 {
		t.Fatalf("notices = %q", sess.notices)
	}
	if !strings.Contains(sess.notices[0], "/theme") {
		t.Fatalf("help line = %q", sess.notices[0])
	}
}

func TestHandleLogsSlashRequest(t *testing.T) {
	var capture bytes.Buffer
	logger := pslog.NewWithOptions(&capture, pslog.Options{
		Mode:     pslog.ModeStructured,
		NoColor:  true,
		MinLevel: pslog.DebugLevel,
	})
	ctx := pslog.ContextWithLogger(context.Background(), logger)
	sess := newFakeSession()
	handler := NewHandler(HandlerConfig{})
	if handled, err := handler.Handle(ctx, sess, "/clear"); !handled || err != nil {
		t.Fatalf("Handle = (%v, %v)", handled, err)
	}
	out := capture.String()
	if !strings.Contains(out, "command slash request") {
		t.Fatalf("missing request log: %s", out)
	}
	if !strings.Contains(out, "clear") {
		t.Fatalf("missing command field: %s", out)
	}
}
