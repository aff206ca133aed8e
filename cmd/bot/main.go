package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/LJTian/CryptoNewsBot/internal/api"
	"github.com/LJTian/CryptoNewsBot/internal/config"
	"github.com/LJTian/CryptoNewsBot/internal/scheduler"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

// Version 构建时通过 -ldflags 注入
var Version = "dev"

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	if err := newApp().Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("bot exited")
	}
}

func newApp() *cli.App {
	serve := serveCmd()
	return &cli.App{
		Name:    "bot",
		Usage:   "Crypto news to Telegram channel publisher",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "log-level", Usage: "Override LOG_LEVEL (debug|info|warn|error)"},
		},
		// 不带子命令时等同于 serve
		Action: serve.Action,
		Commands: []*cli.Command{
			serve,
			runCmd(),
		},
	}
}

func serveCmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run on schedule and serve the status API",
		Action: func(c *cli.Context) error {
			cfg := config.Load()
			closeLog := setupLogger(cfg, c.String("log-level"))
			defer closeLog.Close()

			deps := build(cfg)
			defer deps.Close()

			s, err := scheduler.New(cfg.CronSpec, deps.Orchestrator, deps.Runs)
			if err != nil {
				return fmt.Errorf("init scheduler: %w", err)
			}
			s.Start()
			log.Info().Str("cron", cfg.CronSpec).Dur("first_run_in", s.StartupDelay).Msg("scheduler started")

			engine := api.NewEngine(api.NewServer(s, deps.Runs, deps.Registry), cfg.BasicAuthUser, cfg.BasicAuthPass)
			srv := &http.Server{
				Addr:              ":" + cfg.AppPort,
				Handler:           engine,
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				log.Info().Str("addr", srv.Addr).Msg("starting api server")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			var serveErr error
			select {
			case <-ctx.Done():
				log.Info().Msg("shutting down")
			case serveErr = <-errCh:
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Warn().Err(err).Msg("api server shutdown")
			}
			s.Stop()
			return serveErr
		},
	}
}

func runCmd() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Run one publish pass and exit",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "json", Usage: "Print the run report as JSON"},
		},
		Action: func(c *cli.Context) error {
			cfg := config.Load()
			closeLog := setupLogger(cfg, c.String("log-level"))
			defer closeLog.Close()

			deps := build(cfg)
			defer deps.Close()

			s, err := scheduler.New(cfg.CronSpec, deps.Orchestrator, deps.Runs)
			if err != nil {
				return fmt.Errorf("init scheduler: %w", err)
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			rep, err := s.RunOnce(ctx, scheduler.TriggerCLI)
			if err != nil {
				return err
			}
			if c.Bool("json") {
				enc := json.NewEncoder(c.App.Writer)
				enc.SetIndent("", "  ")
				return enc.Encode(rep)
			}
			for _, p := range rep.Phases {
				log.Info().Str("phase", p.Name).Bool("enabled", p.Enabled).
					Int("attempted", p.Attempted).Int("posted", p.Posted).
					Int("skipped", p.Skipped).Int("failed", p.Failed).Msg("phase summary")
			}
			return nil
		},
	}
}

// setupLogger 控制台 + LOG_DIR/bot.log 双写；日志目录不可用时只写控制台
func setupLogger(cfg *config.Config, override string) io.Closer {
	levelName := cfg.LogLevel
	if override != "" {
		levelName = override
	}
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(levelName)))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	console := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}

	var file *os.File
	if cfg.LogDir != "" {
		if err := os.MkdirAll(cfg.LogDir, 0o755); err == nil {
			file, err = os.OpenFile(filepath.Join(cfg.LogDir, "bot.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				file = nil
			}
		}
	}

	if file == nil {
		log.Logger = zerolog.New(console).With().Timestamp().Logger()
		log.Warn().Str("dir", cfg.LogDir).Msg("log file unavailable, logging to console only")
		return nopCloser{}
	}
	log.Logger = zerolog.New(zerolog.MultiLevelWriter(console, file)).With().Timestamp().Logger()
	return file
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
