package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"pkt.systems/conspool/classify"
	"pkt.systems/conspool/core"
	"pkt.systems/conspool/internal/appconfig"
	"pkt.systems/conspool/internal/procfeed"
	"pkt.systems/conspool/schema"
	"pkt.systems/pslog"
)

// exitCodeError carries a child exit code to the process exit status.
type exitCodeError struct {
	code int
}

func (e *exitCodeError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

func newRunCmd() *cobra.Command {
	var cfgPath string
	var workDir string
	cmd := &cobra.Command{
		Use:   "run [flags] -- command [args...]",
		Short: "Run a command in a local console on this terminal",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			if workDir == "" {
				workDir = cfg.Process.WorkDir
			}
			return runLocal(cmd.Context(), pslog.Ctx(cmd.Context()), cfg, workDir, args)
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVar(&workDir, "workdir", "", "working directory for the command")
	return cmd
}

func runLocal(ctx context.Context, logger pslog.Logger, cfg appconfig.Config, workDir string, command []string) error {
	consoleCfg := schema.ConsoleConfig{
		ID:                   "run",
		Title:                filepath.Base(command[0]),
		WorkDir:              workDir,
		CyclicCapacity:       cfg.Engine.CyclicCapacity,
		FlushDelay:           time.Duration(cfg.Engine.FlushDelayMS) * time.Millisecond,
		CommandLineFoldLimit: cfg.Engine.CommandLineFoldLimit,
	}
	stdinFD := int(os.Stdin.Fd())
	interactive := term.IsTerminal(stdinFD)

	console, err := core.NewConsole(consoleCfg, core.ConsoleDeps{
		Registry: runRegistry(cfg, consoleCfg, logger),
		Sink:     &stdoutSink{out: os.Stdout, crlf: interactive},
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	defer console.Dispose()

	rows, cols := cfg.Process.Rows, cfg.Process.Cols
	if w, h, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
		cols, rows = w, h
	}
	feed, err := procfeed.Start(console, procfeed.Options{
		Command: command,
		WorkDir: workDir,
		Env:     cfg.Process.Env,
		Term:    cfg.Process.Term,
		Rows:    rows,
		Cols:    cols,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	if interactive {
		oldState, err := term.MakeRaw(stdinFD)
		if err != nil {
			feed.Kill()
			return fmt.Errorf("raw terminal: %w", err)
		}
		defer func() { _ = term.Restore(stdinFD, oldState) }()
	}

	go forwardStdin(feed)

	winch := make(chan os.Signal, 1)
	signal.Notify(winch, syscall.SIGWINCH)
	go func() {
		for range winch {
			if w, h, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
				_ = feed.Resize(h, w)
			}
		}
	}()
	defer func() {
		signal.Stop(winch)
		close(winch)
	}()

	select {
	case <-ctx.Done():
		feed.Stop()
		<-feed.Done()
	case <-feed.Done():
	}
	flushCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = console.AwaitFlushed(flushCtx)

	if err := feed.ExitError(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() > 0 {
			return &exitCodeError{code: exitErr.ExitCode()}
		}
		return err
	}
	return nil
}

// forwardStdin copies terminal bytes to the process until stdin closes
// or the process exits.
func forwardStdin(feed *procfeed.Feed) {
	buf := make([]byte, 1024)
	for {
		n, err := os.Stdin.Read(buf)
		if n > 0 {
			if sendErr := feed.SendInput(string(buf[:n])); sendErr != nil {
				return
			}
		}
		if err != nil {
			return
		}
	}
}

// runRegistry mirrors the serve classifier set for a local console.
func runRegistry(cfg appconfig.Config, consoleCfg schema.ConsoleConfig, logger pslog.Logger) *classify.Registry {
	lines := []classify.LineClassifier{classify.CommandLine{Limit: consoleCfg.CommandLineFoldLimit}}
	if cfg.RulesFile != "" {
		rules, err := classify.LoadRulesFile(cfg.RulesFile)
		if err != nil {
			logger.Warn("fold rules load failed", "file", cfg.RulesFile, "err", err)
		} else {
			lines = append(lines, rules.LineClassifiers()...)
		}
	}
	registry := classify.NewRegistry(logger)
	registry.SetClassifiers(lines,
		[]classify.LinkClassifier{classify.URLLinks{}, classify.PathLinks{}},
		[]classify.HeavyClassifier{classify.PathCheck{}},
	)
	return registry
}

// stdoutSink writes committed console text straight to the local
// terminal, coloring system and error lines and translating newlines
// while the terminal is raw.
type stdoutSink struct {
	out  io.Writer
	crlf bool
}

func (s *stdoutSink) OnText(ev schema.TextEvent) {
	text := ev.Text
	if s.crlf {
		text = strings.ReplaceAll(text, "\n", "\r\n")
	}
	switch ev.Kind {
	case schema.KindSystem:
		_, _ = fmt.Fprint(s.out, "\x1b[36m"+text+"\x1b[0m")
	case schema.KindError:
		_, _ = fmt.Fprint(s.out, "\x1b[31m"+text+"\x1b[0m")
	default:
		_, _ = fmt.Fprint(s.out, text)
	}
}

func (s *stdoutSink) OnContent(schema.ContentEvent) {}
func (s *stdoutSink) OnState(schema.StateEvent)     {}
