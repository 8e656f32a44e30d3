package container

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/deckvault/schemarun/internal/migration"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeRunner replays scripted results, repeating the last one.
type fakeRunner struct {
	results []migration.RunResult
	calls   int
}

func (f *fakeRunner) Migrate(ctx context.Context, target string) migration.RunResult {
	i := f.calls
	if i >= len(f.results) {
		i = len(f.results) - 1
	}
	f.calls++
	return f.results[i]
}

func flakyPing(failures int) (PingFunc, *int) {
	attempts := new(int)
	return func(ctx context.Context) error {
		*attempts++
		if *attempts <= failures {
			return errors.New("connection refused")
		}
		return nil
	}, attempts
}

func fastConfig(dir string) Config {
	return Config{
		RetryCount:    3,
		RetryDelay:    time.Millisecond,
		WaitAttempts:  5,
		WaitDelay:     time.Millisecond,
		SuccessMarker: filepath.Join(dir, "logs", "migration_success"),
		FailureMarker: filepath.Join(dir, "logs", "migration_failure"),
	}
}

func TestWaitForReadyReturnsOnFirstSuccess(t *testing.T) {
	ping, attempts := flakyPing(2)
	w := New(&fakeRunner{}, ping, fastConfig(t.TempDir()), discardLogger())

	if err := w.WaitForReady(context.Background(), 5, time.Millisecond); err != nil {
		t.Fatalf("wait for ready: %v", err)
	}
	if *attempts != 3 {
		t.Fatalf("expected success on attempt 3, probed %d times", *attempts)
	}
}

func TestWaitForReadyExhaustsAttempts(t *testing.T) {
	ping, attempts := flakyPing(100)
	w := New(&fakeRunner{}, ping, fastConfig(t.TempDir()), discardLogger())

	err := w.WaitForReady(context.Background(), 4, time.Millisecond)
	if err == nil {
		t.Fatal("expected exhaustion error")
	}
	if *attempts != 4 {
		t.Fatalf("expected exactly 4 probes, got %d", *attempts)
	}
	if !migration.IsRetryable(err) {
		t.Fatalf("readiness exhaustion must be connectivity-class, got %v", err)
	}
}

func TestRunWithRetriesRetriesOnlyConnectivity(t *testing.T) {
	connectivityFailure := migration.RunResult{
		Success: false,
		Err:     &migration.ConnectivityError{Op: "run", Err: errors.New("dial tcp: refused")},
	}
	success := migration.RunResult{Success: true, Applied: []string{"20240101_120000"}}

	runner := &fakeRunner{results: []migration.RunResult{connectivityFailure, connectivityFailure, success}}
	w := New(runner, func(context.Context) error { return nil }, fastConfig(t.TempDir()), discardLogger())

	result := w.RunWithRetries(context.Background(), "")
	if !result.Success {
		t.Fatalf("expected eventual success, got %v", result.Err)
	}
	if runner.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", runner.calls)
	}
}

func TestRunWithRetriesSurfacesPermanentFailureImmediately(t *testing.T) {
	statementFailure := migration.RunResult{
		Success: false,
		Err:     &migration.StatementError{Version: "20240102_120000", Statement: 2, Err: errors.New("syntax error")},
	}
	runner := &fakeRunner{results: []migration.RunResult{statementFailure}}
	w := New(runner, func(context.Context) error { return nil }, fastConfig(t.TempDir()), discardLogger())

	result := w.RunWithRetries(context.Background(), "")
	if result.Success {
		t.Fatal("expected failure")
	}
	if runner.calls != 1 {
		t.Fatalf("permanent failure must not consume retry attempts, got %d calls", runner.calls)
	}
}

func TestMigrateWritesExactlyOneMarker(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		dir := t.TempDir()
		cfg := fastConfig(dir)
		runner := &fakeRunner{results: []migration.RunResult{{Success: true}}}
		w := New(runner, func(context.Context) error { return nil }, cfg, discardLogger())

		result := w.Migrate(context.Background(), "")
		if !result.Success {
			t.Fatalf("migrate: %v", result.Err)
		}
		assertMarker(t, cfg.SuccessMarker, true)
		assertMarker(t, cfg.FailureMarker, false)
	})

	t.Run("failure", func(t *testing.T) {
		dir := t.TempDir()
		cfg := fastConfig(dir)
		runner := &fakeRunner{results: []migration.RunResult{{
			Success: false,
			Err:     &migration.StatementError{Version: "20240102_120000", Statement: 1, Err: errors.New("boom")},
		}}}
		w := New(runner, func(context.Context) error { return nil }, cfg, discardLogger())

		result := w.Migrate(context.Background(), "")
		if result.Success {
			t.Fatal("expected failure")
		}
		assertMarker(t, cfg.FailureMarker, true)
		assertMarker(t, cfg.SuccessMarker, false)
	})

	t.Run("database never ready", func(t *testing.T) {
		dir := t.TempDir()
		cfg := fastConfig(dir)
		ping, _ := flakyPing(100)
		w := New(&fakeRunner{}, ping, cfg, discardLogger())

		result := w.Migrate(context.Background(), "")
		if result.Success {
			t.Fatal("expected failure")
		}
		assertMarker(t, cfg.FailureMarker, true)
		assertMarker(t, cfg.SuccessMarker, false)
	})
}

// assertMarker checks presence and, when expected, that the body is a single
// RFC 3339 timestamp line.
func assertMarker(t *testing.T, path string, want bool) {
	t.Helper()
	content, err := os.ReadFile(path)
	if !want {
		if err == nil {
			t.Fatalf("expected no marker at %s", path)
		}
		return
	}
	if err != nil {
		t.Fatalf("expected marker at %s: %v", path, err)
	}
	body := string(content)
	if len(body) == 0 || body[len(body)-1] != '\n' {
		t.Fatalf("marker body must be a single timestamp line, got %q", body)
	}
	if _, err := time.Parse(time.RFC3339, body[:len(body)-1]); err != nil {
		t.Fatalf("marker body is not an RFC 3339 timestamp: %q", body)
	}
}

func TestWaitForReadyHonorsContextCancellation(t *testing.T) {
	ping, _ := flakyPing(100)
	w := New(&fakeRunner{}, ping, fastConfig(t.TempDir()), discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := w.WaitForReady(ctx, 10, time.Minute)
	if err == nil {
		t.Fatal("expected cancellation to abort the wait")
	}
}
