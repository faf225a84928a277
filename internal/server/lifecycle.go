// Package server carries the HTTP surface and process lifecycle helpers:
// logger setup, panic-isolated background loops, graceful shutdown.
package server

import (
	"context"
	"log/slog"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/logsieve/logsieve/internal/observability"
)

// Restart backoff bounds for supervised loops.
const (
	restartBackoffMin = time.Second
	restartBackoffCap = 5 * time.Minute
)

// RunWithRecovery supervises a background loop: fn is re-run after a panic
// or an early return, with doubling backoff between restarts and a restart
// counter on the loop metric. It returns when ctx is cancelled. A panicking
// loop must never take the detector down with it.
func RunWithRecovery(ctx context.Context, logger *slog.Logger, metrics *observability.Metrics, name string, fn func(ctx context.Context)) {
	backoff := restartBackoffMin
	attempt := 0
	for ctx.Err() == nil {
		runIsolated(ctx, logger, name, attempt, fn)
		if ctx.Err() != nil {
			break
		}

		attempt++
		metrics.ObserveLoopRestart(name)
		logger.Warn("background loop restarting",
			"name", name,
			"attempt", attempt,
			"backoff", backoff,
		)

		select {
		case <-ctx.Done():
		case <-time.After(backoff):
		}
		if backoff < restartBackoffCap {
			backoff *= 2
			if backoff > restartBackoffCap {
				backoff = restartBackoffCap
			}
		}
	}
	logger.Info("background loop stopped", "name", name)
}

func runIsolated(ctx context.Context, logger *slog.Logger, name string, attempt int, fn func(ctx context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("background loop panicked",
				"name", name,
				"panic", r,
				"stack", string(debug.Stack()),
				"attempt", attempt,
			)
		}
	}()
	fn(ctx)
}

// SetupLogger creates a structured slog.Logger with JSON output to stdout.
// Unrecognized levels fall back to info.
func SetupLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: lvl,
	})
	return slog.New(handler)
}
