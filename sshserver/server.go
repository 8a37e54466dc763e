// Package sshserver serves a console to SSH clients as a full-screen
// terminal UI with an input bar, scrollback, fold placeholders and kind
// styling.
package sshserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	gliderssh "github.com/gliderlabs/ssh"
	"pkt.systems/pslog"

	"pkt.systems/conspool/core"
	"pkt.systems/conspool/internal/command"
	"pkt.systems/conspool/internal/eventbus"
	"pkt.systems/conspool/internal/logx"
	"pkt.systems/conspool/internal/sessionprefs"
)

// Resizer receives terminal size changes, typically the pty behind the
// console's attached process.
type Resizer interface {
	Resize(rows, cols int) error
}

// Server accepts SSH sessions and attaches each one to the console as
// an interactive viewer. The zero value is not usable; Console is
// required.
type Server struct {
	Addr               string
	HostKeyPath        string
	AuthorizedKeysPath string
	Theme              string

	// Listener overrides Addr when set.
	Listener net.Listener

	Console core.Console
	Bus     *eventbus.Bus
	Resizer Resizer
	// History seeds every session's input recall.
	History []string
	// Prefs persists per-user viewer preferences when set.
	Prefs *sessionprefs.Store

	Logger pslog.Logger
}

// ListenAndServe runs the SSH server until ctx is cancelled or the
// listener fails. Without an authorized keys path every key and
// interactive auth attempt is accepted, which only suits loopback use.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s.Console == nil {
		return errors.New("sshserver: console is required")
	}
	log := s.logger()

	signer, err := EnsureHostKey(s.HostKeyPath)
	if err != nil {
		return fmt.Errorf("host key: %w", err)
	}

	server := &gliderssh.Server{
		Addr: s.Addr,
		Handler: func(sess gliderssh.Session) {
			s.handleSession(ctx, sess)
		},
	}
	server.AddHostKey(signer)

	if s.AuthorizedKeysPath != "" {
		authorized, err := loadAuthorizedKeys(s.AuthorizedKeysPath)
		if err != nil {
			return fmt.Errorf("authorized keys: %w", err)
		}
		server.PublicKeyHandler = func(sctx gliderssh.Context, key gliderssh.PublicKey) bool {
			ok := authorized.contains(key)
			if !ok {
				log.Warn("ssh key rejected", "user", sctx.User(), "remote", sctx.RemoteAddr().String())
			}
			return ok
		}
	}

	errCh := make(chan error, 1)
	go func() {
		if s.Listener != nil {
			errCh <- server.Serve(s.Listener)
			return
		}
		errCh <- server.ListenAndServe()
	}()
	log.Info("ssh server listening", "addr", s.listenAddr(), "auth", s.AuthorizedKeysPath != "")

	select {
	case <-ctx.Done():
		_ = server.Close()
		<-errCh
		return ctx.Err()
	case err := <-errCh:
		if err != nil && !errors.Is(err, gliderssh.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) listenAddr() string {
	if s.Listener != nil {
		return s.Listener.Addr().String()
	}
	return s.Addr
}

func (s *Server) handleSession(ctx context.Context, sess gliderssh.Session) {
	log := logx.WithConsole(ctx, s.Console.ID()).With("remote", sess.RemoteAddr().String(), "user", sess.User())
	ctx = pslog.ContextWithLogger(ctx, log)
	pty, winCh, ok := sess.Pty()
	if !ok {
		_, _ = io.WriteString(sess, "pty required\r\n")
		_ = sess.Exit(1)
		return
	}

	var events <-chan eventbus.Event
	cancel := func() {}
	if s.Bus != nil {
		events, cancel = s.Bus.Subscribe(s.Console.ID())
	}
	defer cancel()

	theme := themeForName(s.Theme)
	if s.Prefs != nil {
		if prefs, ok, err := s.Prefs.Load(sess.User()); err == nil && ok {
			if saved, found := lookupTheme(prefs.Theme); found {
				theme = saved
			}
		}
	}

	term := newTerminalSession(sess, s.Console, s.Resizer, events, theme, s.History, log)
	term.user = sess.User()
	term.commands = command.NewHandler(s.commandConfig())
	term.SetSize(pty.Window.Width, pty.Window.Height)
	log.Info("ssh session opened", "term", pty.Term, "width", pty.Window.Width, "height", pty.Window.Height)

	if err := term.Run(ctx, winCh); err != nil && !errors.Is(err, context.Canceled) {
		log.Warn("ssh session ended", "err", err)
		_ = sess.Exit(1)
		return
	}
	log.Info("ssh session closed")
	_ = sess.Exit(0)
}

// commandConfig leaves the prefs store unset when absent so the handler
// sees a nil interface rather than a typed nil.
func (s *Server) commandConfig() command.HandlerConfig {
	cfg := command.HandlerConfig{}
	if s.Prefs != nil {
		cfg.Prefs = s.Prefs
	}
	return cfg
}

func (s *Server) logger() pslog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return pslog.Ctx(context.Background())
}
