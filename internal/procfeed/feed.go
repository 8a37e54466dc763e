// Package procfeed runs one process under a pseudo terminal and pumps
// its output into a console. Submitted console input is written back to
// the terminal, so carriage returns, backspaces and echo behave the way
// the process expects.
package procfeed

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"

	"github.com/creack/pty"

	"pkt.systems/conspool/core"
	"pkt.systems/conspool/schema"
	"pkt.systems/pslog"
)

// Options configures a process feed.
type Options struct {
	Command []string
	WorkDir string
	Env     map[string]string
	Term    string
	Rows    int
	Cols    int
	Logger  pslog.Logger
}

// Feed is one running process attached to a console.
type Feed struct {
	console core.Console
	cmd     *exec.Cmd
	ptmx    *os.File
	log     pslog.Logger

	done     chan struct{}
	exitErr  error
	stopOnce sync.Once
}

// Start launches the command under a PTY and attaches it to the console
// as its input target. The feed detaches itself when the process exits.
func Start(console core.Console, opts Options) (*Feed, error) {
	if len(opts.Command) == 0 || opts.Command[0] == "" {
		return nil, schema.ErrEmptyCommand
	}
	logger := opts.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	logger = logger.With("console", console.ID())

	cmd := exec.Command(opts.Command[0], opts.Command[1:]...)
	cmd.Dir = opts.WorkDir
	env := os.Environ()
	if opts.Term != "" {
		env = append(env, "TERM="+opts.Term)
	}
	for k, v := range opts.Env {
		env = append(env, k+"="+v)
	}
	cmd.Env = env

	var ptmx *os.File
	var err error
	if opts.Rows > 0 && opts.Cols > 0 {
		ptmx, err = pty.StartWithSize(cmd, &pty.Winsize{Rows: uint16(opts.Rows), Cols: uint16(opts.Cols)})
	} else {
		ptmx, err = pty.Start(cmd)
	}
	if err != nil {
		return nil, fmt.Errorf("start %s: %w", opts.Command[0], err)
	}

	f := &Feed{
		console: console,
		cmd:     cmd,
		ptmx:    ptmx,
		log:     logger,
		done:    make(chan struct{}),
	}
	console.SetProcess(f)
	logger.Info("process started", "command", opts.Command[0], "pid", cmd.Process.Pid)
	go f.pump()
	return f, nil
}

// pump copies PTY output into the console until the terminal closes,
// then reaps the process and reports its exit as a system line.
func (f *Feed) pump() {
	buf := make([]byte, 4096)
	for {
		n, err := f.ptmx.Read(buf)
		if n > 0 {
			f.console.Print(string(buf[:n]), schema.KindNormal)
		}
		if err != nil {
			break
		}
	}
	err := f.cmd.Wait()
	f.exitErr = err
	f.console.SetProcess(nil)
	_ = f.ptmx.Close()
	if err != nil {
		f.log.Warn("process exited", "err", err)
		f.console.Print(fmt.Sprintf("\nprocess exited: %v\n", err), schema.KindSystem)
	} else {
		f.log.Info("process exited")
		f.console.Print("\nprocess exited\n", schema.KindSystem)
	}
	f.console.RequestFlush()
	close(f.done)
}

// SendInput writes one submitted input span to the process terminal.
func (f *Feed) SendInput(text string) error {
	select {
	case <-f.done:
		return schema.ErrNoProcess
	default:
	}
	if _, err := f.ptmx.Write([]byte(text)); err != nil {
		return fmt.Errorf("write input: %w", err)
	}
	return nil
}

// Resize adjusts the process terminal size.
func (f *Feed) Resize(rows, cols int) error {
	if rows <= 0 || cols <= 0 {
		return fmt.Errorf("invalid terminal size %dx%d", cols, rows)
	}
	return pty.Setsize(f.ptmx, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)})
}

// Stop asks the process to terminate. The PTY close follows, which
// delivers a hangup to anything still reading the terminal.
func (f *Feed) Stop() {
	f.stopOnce.Do(func() {
		select {
		case <-f.done:
			return
		default:
		}
		if f.cmd.Process != nil {
			_ = f.cmd.Process.Signal(os.Interrupt)
		}
		_ = f.ptmx.Close()
	})
}

// Kill force-terminates the process.
func (f *Feed) Kill() {
	if f.cmd.Process != nil {
		_ = f.cmd.Process.Kill()
	}
}

// Wait blocks until the process has exited and its terminal drained.
func (f *Feed) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return f.exitErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once the process has exited and its terminal drained.
func (f *Feed) Done() <-chan struct{} { return f.done }

// ExitError returns the process exit error once Done is closed.
func (f *Feed) ExitError() error {
	select {
	case <-f.done:
		return f.exitErr
	default:
		return nil
	}
}
