package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/conspool/classify"
	"pkt.systems/conspool/core"
	"pkt.systems/conspool/internal/appconfig"
	"pkt.systems/conspool/internal/procfeed"
	"pkt.systems/conspool/schema"
	"pkt.systems/conspool/sshserver"
	"pkt.systems/pslog"
)

func newDoctorCmd() *cobra.Command {
	var cfgPath string
	var commandTimeout time.Duration
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run conspool diagnostics",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := pslog.Ctx(cmd.Context())

			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			configPath := cfgPath
			if strings.TrimSpace(configPath) == "" {
				path, err := appconfig.DefaultConfigPath()
				if err != nil {
					return err
				}
				configPath = path
			}
			logger.Info("doctor start", "config", configPath)

			if err := checkStateDir(logger, cfg.StateDir); err != nil {
				return err
			}
			if err := checkRulesFile(logger, cfg.RulesFile); err != nil {
				return err
			}
			if err := checkSSH(logger, cfg.SSH); err != nil {
				return err
			}
			if err := checkListenAddr(logger, "http", cfg.HTTP.Addr); err != nil {
				return err
			}
			if err := checkListenAddr(logger, "ssh", cfg.SSH.Addr); err != nil {
				return err
			}
			if err := checkCommand(logger, cfg.Process.Command); err != nil {
				return err
			}
			if err := runDoctorTerminal(cmd.Context(), logger, commandTimeout); err != nil {
				return err
			}
			logger.Info("doctor complete")
			return nil
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().DurationVar(&commandTimeout, "command-timeout", 15*time.Second, "timeout for the terminal check")
	return cmd
}

func checkStateDir(logger pslog.Logger, dir string) error {
	if dir == "" {
		logger.Info("doctor state dir not configured")
		return nil
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("doctor state dir: %w", err)
	}
	probe, err := os.CreateTemp(dir, "doctor-*")
	if err != nil {
		return fmt.Errorf("doctor state dir not writable: %w", err)
	}
	name := probe.Name()
	_ = probe.Close()
	_ = os.Remove(name)
	logger.Info("doctor state dir ok", "dir", dir)
	return nil
}

func checkRulesFile(logger pslog.Logger, path string) error {
	if path == "" {
		logger.Info("doctor fold rules not configured")
		return nil
	}
	rules, err := classify.LoadRulesFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Info("doctor fold rules absent", "file", path)
			return nil
		}
		return fmt.Errorf("doctor fold rules (%s): %w", path, err)
	}
	logger.Info("doctor fold rules ok", "file", path, "rules", len(rules.LineClassifiers()))
	return nil
}

func checkSSH(logger pslog.Logger, cfg appconfig.SSHConfig) error {
	if cfg.Addr == "" {
		logger.Info("doctor ssh disabled")
		return nil
	}
	signer, err := sshserver.EnsureHostKey(cfg.HostKeyPath)
	if err != nil {
		return fmt.Errorf("doctor host key: %w", err)
	}
	logger.Info("doctor host key ok", "path", cfg.HostKeyPath, "type", signer.PublicKey().Type())

	if cfg.AuthorizedKeys == "" {
		logger.Warn("doctor authorized keys not configured, ssh logins will be rejected")
		return nil
	}
	data, err := os.ReadFile(cfg.AuthorizedKeys)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Warn("doctor authorized keys missing, ssh logins will be rejected", "file", cfg.AuthorizedKeys)
			return nil
		}
		return fmt.Errorf("doctor authorized keys: %w", err)
	}
	count := 0
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		count++
	}
	logger.Info("doctor authorized keys ok", "file", cfg.AuthorizedKeys, "keys", count)
	return nil
}

func checkListenAddr(logger pslog.Logger, name, addr string) error {
	if addr == "" {
		logger.Info("doctor " + name + " disabled")
		return nil
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("doctor %s addr (%s): %w", name, addr, err)
	}
	_ = ln.Close()
	logger.Info("doctor "+name+" addr ok", "addr", addr)
	return nil
}

func checkCommand(logger pslog.Logger, command []string) error {
	if len(command) == 0 {
		logger.Info("doctor process not configured")
		return nil
	}
	path, err := exec.LookPath(command[0])
	if err != nil {
		return fmt.Errorf("doctor command (%s): %w", command[0], err)
	}
	logger.Info("doctor command ok", "path", path)
	return nil
}

// runDoctorTerminal starts a short-lived shell under a PTY and verifies
// its output lands in a console.
func runDoctorTerminal(ctx context.Context, logger pslog.Logger, timeout time.Duration) error {
	runCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	console, err := core.NewConsole(schema.ConsoleConfig{
		ID:         "doctor",
		FlushDelay: time.Millisecond,
	}, core.ConsoleDeps{Logger: logger})
	if err != nil {
		return fmt.Errorf("doctor terminal: %w", err)
	}
	defer console.Dispose()

	feed, err := procfeed.Start(console, procfeed.Options{
		Command: []string{"sh", "-c", "printf pong"},
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("doctor terminal start: %w", err)
	}
	if err := feed.Wait(runCtx); err != nil {
		feed.Kill()
		return fmt.Errorf("doctor terminal: %w", err)
	}
	if err := console.AwaitFlushed(runCtx); err != nil {
		return fmt.Errorf("doctor terminal flush: %w", err)
	}
	if !strings.Contains(console.Text(), "pong") {
		return errors.New("doctor terminal output missing")
	}
	logger.Info("doctor terminal ok")
	return nil
}
