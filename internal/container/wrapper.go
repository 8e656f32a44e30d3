// Package container wraps the migration runner for execution at container
// startup: it polls for database readiness, retries the run on transient
// failures, and writes the marker file consumed by the external health
// check.
package container

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/deckvault/schemarun/internal/migration"
)

// MigrationRunner is the slice of the runner the wrapper drives.
type MigrationRunner interface {
	Migrate(ctx context.Context, targetVersion string) migration.RunResult
}

// PingFunc probes the database with a fresh connection and trivial query.
type PingFunc func(context.Context) error

// Config tunes retries, readiness polling, and marker locations.
type Config struct {
	RetryCount    int
	RetryDelay    time.Duration
	WaitAttempts  int
	WaitDelay     time.Duration
	SuccessMarker string
	FailureMarker string
}

// Wrapper orchestrates one container invocation of the runner.
type Wrapper struct {
	runner MigrationRunner
	ping   PingFunc
	cfg    Config
	logger *slog.Logger
}

func New(runner MigrationRunner, ping PingFunc, cfg Config, logger *slog.Logger) *Wrapper {
	if cfg.RetryCount <= 0 {
		cfg.RetryCount = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 5 * time.Second
	}
	if cfg.WaitAttempts <= 0 {
		cfg.WaitAttempts = 30
	}
	if cfg.WaitDelay <= 0 {
		cfg.WaitDelay = 2 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Wrapper{runner: runner, ping: ping, cfg: cfg, logger: logger}
}

// Migrate is the container entrypoint: wait for the database, run with
// retries, then write exactly one marker. The returned result's Err is nil
// only when the run succeeded.
func (w *Wrapper) Migrate(ctx context.Context, targetVersion string) migration.RunResult {
	if err := w.WaitForReady(ctx, w.cfg.WaitAttempts, w.cfg.WaitDelay); err != nil {
		w.writeMarker(false)
		return migration.RunResult{Success: false, Err: err}
	}
	result := w.RunWithRetries(ctx, targetVersion)
	w.writeMarker(result.Success)
	if result.Success {
		w.logger.Info("migration process completed",
			"applied", len(result.Applied),
			"skipped", len(result.Skipped),
			"execution_time", result.TotalExecutionTime)
	}
	return result
}

// WaitForReady polls the database until a probe succeeds, sleeping delay
// between attempts. It returns on the first success; exhausting attempts
// yields a connectivity error.
func (w *Wrapper) WaitForReady(ctx context.Context, attempts int, delay time.Duration) error {
	w.logger.Info("waiting for database to be ready", "attempts", attempts, "delay", delay)
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = w.ping(ctx)
		if lastErr == nil {
			w.logger.Info("database is ready", "attempt", attempt)
			return nil
		}
		if attempt < attempts {
			w.logger.Debug("database not ready",
				"attempt", attempt, "of", attempts, "error", lastErr)
			if err := sleepContext(ctx, delay); err != nil {
				return &migration.ConnectivityError{Op: "readiness wait", Err: err}
			}
		}
	}
	return &migration.ConnectivityError{Op: "readiness wait", Err: lastErr}
}

// RunWithRetries invokes the runner, retrying only connectivity-class
// failures with a fixed delay. Statement and content failures surface
// immediately: re-running broken SQL cannot succeed.
func (w *Wrapper) RunWithRetries(ctx context.Context, targetVersion string) migration.RunResult {
	var result migration.RunResult
	for attempt := 1; attempt <= w.cfg.RetryCount; attempt++ {
		w.logger.Info("migration attempt", "attempt", attempt, "of", w.cfg.RetryCount)
		result = w.runner.Migrate(ctx, targetVersion)
		if result.Success {
			return result
		}
		if !migration.IsRetryable(result.Err) {
			w.logger.Error("migration failed with a permanent error, not retrying",
				"error", result.Err)
			return result
		}
		if attempt < w.cfg.RetryCount {
			w.logger.Warn("migration attempt failed, retrying",
				"delay", w.cfg.RetryDelay, "error", result.Err)
			if err := sleepContext(ctx, w.cfg.RetryDelay); err != nil {
				return result
			}
		}
	}
	w.logger.Error("all migration attempts failed", "error", result.Err)
	return result
}

// writeMarker records the terminal outcome at a fixed path for the external
// health check. Exactly one of the two markers is written per invocation.
func (w *Wrapper) writeMarker(success bool) {
	path := w.cfg.FailureMarker
	if success {
		path = w.cfg.SuccessMarker
	}
	if path == "" {
		return
	}
	if err := writeTimestampFile(path); err != nil {
		w.logger.Error("failed to write marker file", "path", path, "error", err)
	}
}

func writeTimestampFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create marker directory: %w", err)
	}
	body := time.Now().UTC().Format(time.RFC3339) + "\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		return fmt.Errorf("write marker: %w", err)
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
