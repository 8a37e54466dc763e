// Package command parses and executes slash commands typed into a
// console viewer's input line. Anything the handler does not consume is
// forwarded to the attached process as regular input.
package command

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"pkt.systems/conspool/core"
	"pkt.systems/conspool/internal/logx"
	"pkt.systems/conspool/internal/sessionprefs"
	"pkt.systems/conspool/internal/version"
)

// Session is the viewer surface a slash command acts on. Handle runs on
// the session's own loop goroutine.
type Session interface {
	Console() core.Console
	User() string
	ThemeName() string
	ThemeNames() []string
	ApplyTheme(name string) bool
	FoldsExpanded() bool
	ApplyFolds(expanded bool)
	Notify(text string)
}

// PrefsStore persists viewer preferences between sessions.
type PrefsStore interface {
	Save(user string, prefs sessionprefs.Prefs) error
}

// HandlerConfig configures slash command behavior.
type HandlerConfig struct {
	Prefs PrefsStore
}

// Handler routes slash commands to console and session operations.
type Handler struct {
	cfg HandlerConfig
}

// NewHandler constructs a command handler.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{cfg: cfg}
}

// Handle executes input when it is a slash command. The returned bool
// reports whether the input was consumed; the error is meant for the
// user, not the log.
func (h *Handler) Handle(ctx context.Context, sess Session, input string) (bool, error) {
	cmd, ok := Parse(input)
	if !ok {
		return false, nil
	}
	log := logx.Ctx(ctx).With("command", cmd.Name, "args", len(cmd.Args))
	log.Info("command slash request")
	switch cmd.Name {
	case "":
		log.Warn("command slash rejected", "reason", "empty")
		return true, errors.New("invalid command")
	case "help":
		sess.Notify(helpLine())
		return true, nil
	case "clear":
		sess.Console().Clear()
		sess.Notify("cleared")
		return true, nil
	case "pause":
		sess.Console().SetOutputPaused(true)
		sess.Notify("output paused")
		return true, nil
	case "resume":
		sess.Console().SetOutputPaused(false)
		sess.Notify("output resumed")
		return true, nil
	case "folds":
		return true, h.handleFolds(sess)
	case "theme":
		return true, h.handleTheme(ctx, sess, cmd)
	case "status":
		return true, h.handleStatus(ctx, sess)
	case "version":
		sess.Notify(fmt.Sprintf("%s %s", version.Module(), version.Current()))
		return true, nil
	default:
		log.Warn("command slash rejected", "reason", "unknown")
		return true, fmt.Errorf("unknown command: /%s", cmd.Name)
	}
}

func (h *Handler) handleFolds(sess Session) error {
	expanded := !sess.FoldsExpanded()
	sess.ApplyFolds(expanded)
	if expanded {
		sess.Notify("folds expanded")
	} else {
		sess.Notify("folds collapsed")
	}
	return nil
}

func (h *Handler) handleTheme(ctx context.Context, sess Session, cmd Command) error {
	log := logx.Ctx(ctx)
	available := strings.Join(sess.ThemeNames(), ", ")
	if len(cmd.Args) == 0 {
		sess.Notify("theme: " + sess.ThemeName() + " (available: " + available + ")")
		log.Info("command theme listed", "current", sess.ThemeName())
		return nil
	}
	name := strings.ToLower(cmd.Args[0])
	if !sess.ApplyTheme(name) {
		log.Warn("command theme rejected", "theme", cmd.Args[0])
		return fmt.Errorf("unknown theme %q (available: %s)", cmd.Args[0], available)
	}
	sess.Notify("theme set to " + name)
	log.Info("command theme updated", "theme", name)
	h.savePrefs(ctx, sess)
	return nil
}

func (h *Handler) handleStatus(ctx context.Context, sess Session) error {
	console := sess.Console()
	parts := []string{strconv.Itoa(console.ContentSize()) + " bytes"}
	if console.IsOutputPaused() {
		parts = append(parts, "paused")
	}
	if console.HasDeferredOutput() {
		parts = append(parts, "output deferred")
	}
	sess.Notify(strings.Join(parts, ", "))
	logx.Ctx(ctx).Info("command status completed")
	return nil
}

func (h *Handler) savePrefs(ctx context.Context, sess Session) {
	if h.cfg.Prefs == nil {
		return
	}
	prefs := sessionprefs.Prefs{Theme: sess.ThemeName()}
	if err := h.cfg.Prefs.Save(sess.User(), prefs); err != nil {
		logx.Ctx(ctx).Warn("prefs save failed", "user", sess.User(), "err", err)
	}
}

func helpLine() string {
	return "commands: /clear /pause /resume /folds /theme <name> /status /version /quit"
}
