package main

import (
	"context"
	"flag"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/benchscope/benchscope/config"
	"github.com/benchscope/benchscope/internal/bootstrap"
	"github.com/benchscope/benchscope/pkg/logger"
)

const runTimeout = 2 * time.Hour

func main() {
	// Console logger for startup, before the JSON logger is configured.
	zlog := zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger()

	// Load .env file if exists (for local development)
	if err := godotenv.Load(); err != nil {
		zlog.Debug().Msg("No .env file found, using environment variables")
	}

	once := flag.Bool("once", false, "run a single pipeline pass and exit")
	at := flag.String("at", "08:00", "daily run time (HH:MM, local)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to load config")
	}
	zlog.Info().Str("env", cfg.Environment).Msg("starting benchscope")

	logger.Init(logger.Config{
		Level:   logger.ParseLevel(cfg.LogLevel),
		Output:  logOutput(zlog, cfg.LogDir),
		Service: "benchscope",
	})

	deps, cleanup, err := bootstrap.NewDependencies(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize dependencies: %v", err)
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *once {
		if err := runOnce(ctx, deps); err != nil {
			logger.Error("Run failed: %v", err)
			cleanup()
			os.Exit(1)
		}
		return
	}

	runDaily(ctx, deps, *at)
}

func runOnce(ctx context.Context, deps *bootstrap.Dependencies) error {
	runCtx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	stats, err := deps.Pipeline.Run(runCtx)
	if err != nil {
		return err
	}
	logger.Info("Run complete: %d collected, %d saved, %d notified",
		stats.Collected, stats.Saved, stats.Notified)
	for name, health := range deps.Pools.AllHealth() {
		logger.Debug("pool %s: %s (%.0f%% in use)", name, health.Status, health.Utilization*100)
	}
	return nil
}

// runDaily sleeps until the next scheduled time, runs, and repeats until the
// process receives SIGINT or SIGTERM.
func runDaily(ctx context.Context, deps *bootstrap.Dependencies, at string) {
	schedule, err := time.Parse("15:04", at)
	if err != nil {
		logger.Fatal("Invalid -at value %q: %v", at, err)
	}

	for {
		next := nextRun(time.Now(), schedule.Hour(), schedule.Minute())
		logger.Info("Next run scheduled for %s", next.Format(time.RFC3339))

		select {
		case <-ctx.Done():
			logger.Info("Shutting down")
			return
		case <-time.After(time.Until(next)):
		}

		if err := runOnce(ctx, deps); err != nil {
			logger.Error("Scheduled run failed: %v", err)
		}
	}
}

// logOutput tees JSON logs into LOG_DIR/<YYYYMMDD>.log when a log directory
// is configured. One file per day keeps runs easy to find and rotate.
func logOutput(zlog zerolog.Logger, dir string) io.Writer {
	if dir == "" {
		return os.Stdout
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		zlog.Warn().Err(err).Msg("cannot create log directory, logging to stdout only")
		return os.Stdout
	}
	name := time.Now().Format("20060102") + ".log"
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		zlog.Warn().Err(err).Msg("cannot open log file, logging to stdout only")
		return os.Stdout
	}
	return io.MultiWriter(os.Stdout, f)
}

// nextRun returns the next occurrence of hour:minute after now.
func nextRun(now time.Time, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
