package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"pkt.systems/conspool"
	"pkt.systems/conspool/httpapi"
	"pkt.systems/conspool/internal/appconfig"
	"pkt.systems/conspool/internal/procfeed"
	"pkt.systems/conspool/schema"
	"pkt.systems/conspool/sshserver"
	"pkt.systems/pslog"
)

const serveLogo = `
                                       _
  ___ ___  _ __  ___ _ __   ___   ___ | |
 / __/ _ \| '_ \/ __| '_ \ / _ \ / _ \| |
| (_| (_) | | | \__ \ |_) | (_) | (_) | |
 \___\___/|_| |_|___/ .__/ \___/ \___/|_|
                    |_|
`

func newServeCmd() *cobra.Command {
	var cfgPath string
	var noBanner bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve one console over SSH and HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			logMode := strings.ToLower(strings.TrimSpace(os.Getenv("LOG_MODE")))
			showBanner := !noBanner && logMode != "json" && logMode != "structured"
			if showBanner {
				_, _ = fmt.Fprint(cmd.OutOrStdout(), serveLogo)
			}
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			logger, closeLog := serveLogger(cfg.Logging)
			if closeLog != nil {
				defer func() { _ = closeLog() }()
			}

			serverCfg := toServerConfig(cfg)
			opts := make([]conspool.ServerOption, 0, 3)
			if cfg.HTTP.Addr != "" {
				opts = append(opts, conspool.WithHTTP())
			}
			if cfg.SSH.Addr != "" {
				opts = append(opts, conspool.WithSSH())
			}
			if cfg.RulesFile != "" {
				opts = append(opts, conspool.WithRulesWatch())
			}
			server, err := conspool.New(serverCfg, conspool.ServerDeps{Logger: logger}, opts...)
			if err != nil {
				return err
			}

			if len(cfg.Process.Command) > 0 {
				feed, err := procfeed.Start(server.Console(), procfeedOptions(cfg, logger))
				if err != nil {
					return err
				}
				defer feed.Stop()
				server.SetResizer(feed)
			} else {
				logger.Info("no process configured; serving console only")
			}

			ctx, stop := signal.NotifyContext(pslog.ContextWithLogger(cmd.Context(), logger), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := server.Stop(stopCtx); err != nil {
					logger.Warn("server stop failed", "err", err)
				}
			}()
			if err := server.Start(ctx); err != nil {
				return err
			}
			return server.Wait()
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().BoolVar(&noBanner, "no-banner", false, "disable startup banner")
	return cmd
}

// serveLogger applies the logging config. With a log file configured the
// logger writes to stderr and a rotating file; the returned close func
// releases the file.
func serveLogger(cfg appconfig.LoggingConfig) (pslog.Logger, func() error) {
	opts := pslog.Options{Mode: pslog.ModeConsole}
	switch strings.ToLower(strings.TrimSpace(cfg.Level)) {
	case "trace":
		opts.MinLevel = pslog.TraceLevel
	case "debug":
		opts.MinLevel = pslog.DebugLevel
	case "warn", "warning":
		opts.MinLevel = pslog.WarnLevel
	case "error":
		opts.MinLevel = pslog.ErrorLevel
	default:
		opts.MinLevel = pslog.InfoLevel
	}
	if strings.TrimSpace(cfg.File) == "" {
		return pslog.NewWithOptions(os.Stderr, opts), nil
	}
	rotor := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	}
	opts.NoColor = true
	return pslog.NewWithOptions(io.MultiWriter(os.Stderr, rotor), opts), rotor.Close
}

func toServerConfig(cfg appconfig.Config) conspool.ServerConfig {
	return conspool.ServerConfig{
		Console: toConsoleConfig(cfg),
		HTTP: httpapi.Config{
			Addr:          cfg.HTTP.Addr,
			StreamHistory: cfg.HTTP.StreamHistory,
		},
		SSH: sshserver.Config{
			Addr:               cfg.SSH.Addr,
			HostKeyPath:        cfg.SSH.HostKeyPath,
			AuthorizedKeysPath: cfg.SSH.AuthorizedKeys,
			Theme:              cfg.SSH.Theme,
		},
		HubHistory:          cfg.HTTP.StreamHistory,
		RulesFile:           cfg.RulesFile,
		StateDir:            cfg.StateDir,
		HistoryLimit:        cfg.Engine.HistoryLimit,
		TranscriptTailBytes: cfg.Engine.TranscriptTailBytes,
	}
}

func toConsoleConfig(cfg appconfig.Config) schema.ConsoleConfig {
	out := schema.ConsoleConfig{
		WorkDir:              cfg.Process.WorkDir,
		CyclicCapacity:       cfg.Engine.CyclicCapacity,
		FlushDelay:           time.Duration(cfg.Engine.FlushDelayMS) * time.Millisecond,
		CommandLineFoldLimit: cfg.Engine.CommandLineFoldLimit,
	}
	if len(cfg.Process.Command) > 0 {
		out.Title = filepath.Base(cfg.Process.Command[0])
	}
	return out
}

func procfeedOptions(cfg appconfig.Config, logger pslog.Logger) procfeed.Options {
	return procfeed.Options{
		Command: cfg.Process.Command,
		WorkDir: cfg.Process.WorkDir,
		Env:     cfg.Process.Env,
		Term:    cfg.Process.Term,
		Rows:    cfg.Process.Rows,
		Cols:    cfg.Process.Cols,
		Logger:  logger,
	}
}
