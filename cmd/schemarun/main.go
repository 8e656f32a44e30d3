// Command schemarun applies versioned SQL migrations to the target database
// at container startup. Subcommands: migrate, status, rollback, wait.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/deckvault/schemarun/internal/config"
	"github.com/deckvault/schemarun/internal/container"
	"github.com/deckvault/schemarun/internal/database"
	"github.com/deckvault/schemarun/internal/migration"
)

// Status probes use a shorter, looser readiness window than migrate.
const (
	statusWaitAttempts = 10
	statusWaitDelay    = time.Second
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return 1
	}
	command := args[0]
	if command == "help" || command == "-h" || command == "--help" {
		printUsage()
		return 0
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	fs := flag.NewFlagSet("schemarun "+command, flag.ContinueOnError)
	target := fs.String("target", "", "target version (stop after it for migrate, roll back to it for rollback)")
	fs.StringVar(&cfg.MigrationsDir, "dir", cfg.MigrationsDir, "migrations directory")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log verbosity (debug, info, warn, error)")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "overall timeout")
	fs.IntVar(&cfg.RetryCount, "retries", cfg.RetryCount, "migration retry attempts")
	fs.DurationVar(&cfg.RetryDelay, "retry-delay", cfg.RetryDelay, "delay between retries")
	fs.IntVar(&cfg.WaitAttempts, "wait-attempts", cfg.WaitAttempts, "database readiness probe attempts")
	fs.DurationVar(&cfg.WaitDelay, "wait-delay", cfg.WaitDelay, "delay between readiness probes")
	if err := fs.Parse(args[1:]); err != nil {
		return 1
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	db, err := database.Open(cfg.Database())
	if err != nil {
		logger.Error("failed to open database", "error", err)
		return 1
	}
	defer db.Close()

	source := migration.NewDirSource(cfg.MigrationsDir, logger)
	ledger := migration.NewLedger(db, migration.DialectPostgres)
	runner, err := migration.NewRunner(migration.Config{
		DB:     db,
		Source: source,
		Ledger: ledger,
		Logger: logger,
	})
	if err != nil {
		logger.Error("failed to build runner", "error", err)
		return 1
	}
	wrapper := container.New(runner, database.PingFunc(db), container.Config{
		RetryCount:    cfg.RetryCount,
		RetryDelay:    cfg.RetryDelay,
		WaitAttempts:  cfg.WaitAttempts,
		WaitDelay:     cfg.WaitDelay,
		SuccessMarker: cfg.SuccessMarker,
		FailureMarker: cfg.FailureMarker,
	}, logger)

	switch command {
	case "migrate":
		result := wrapper.Migrate(ctx, *target)
		printRunResult("Applied", result.Applied, result)
		if !result.Success {
			return 1
		}
		return 0

	case "rollback":
		if *target == "" {
			fmt.Fprintln(os.Stderr, "rollback requires -target VERSION")
			return 1
		}
		if err := wrapper.WaitForReady(ctx, statusWaitAttempts, statusWaitDelay); err != nil {
			logger.Error("database is not ready", "error", err)
			return 1
		}
		result := runner.Rollback(ctx, *target)
		printRunResult("Rolled back", result.RolledBack, result)
		if !result.Success {
			return 1
		}
		return 0

	case "status":
		if err := wrapper.WaitForReady(ctx, statusWaitAttempts, statusWaitDelay); err != nil {
			logger.Error("database is not ready", "error", err)
			return 1
		}
		report, err := runner.Status(ctx)
		if err != nil {
			logger.Error("failed to get migration status", "error", err)
			return 1
		}
		printStatus(report)
		return 0

	case "wait":
		if err := wrapper.WaitForReady(ctx, cfg.WaitAttempts, cfg.WaitDelay); err != nil {
			logger.Error("database failed to become ready", "error", err)
			return 1
		}
		fmt.Println("database is ready")
		return 0

	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", command)
		printUsage()
		return 1
	}
}

func printRunResult(verb string, versions []string, result migration.RunResult) {
	if result.Success {
		fmt.Printf("%s %d migrations\n", verb, len(versions))
	} else {
		fmt.Printf("%s %d migrations before failing: %v\n", verb, len(versions), result.Err)
	}
	for _, version := range versions {
		fmt.Printf("  - %s\n", version)
	}
	for _, version := range result.Skipped {
		fmt.Printf("  - %s (skipped, beyond target)\n", version)
	}
}

func printStatus(report migration.StatusReport) {
	fmt.Println("Migration status:")
	fmt.Printf("  applied:         %d\n", len(report.Applied))
	fmt.Printf("  pending:         %d\n", len(report.Pending))
	fmt.Printf("  total available: %d\n", report.TotalAvailable)
	if len(report.Applied) > 0 {
		fmt.Println("Applied migrations:")
		for _, entry := range report.Applied {
			fmt.Printf("  - %s: %s\n", entry.Version, entry.Name)
		}
	}
	if len(report.Pending) > 0 {
		fmt.Println("Pending migrations:")
		for _, m := range report.Pending {
			fmt.Printf("  - %s: %s\n", m.Version, m.Name)
		}
	}
	if len(report.Drift) > 0 {
		fmt.Println("Drift detected:")
		for _, d := range report.Drift {
			fmt.Printf("  - %s (%s): %s\n", d.Version, d.Kind, d.Detail)
		}
	}
}

func printUsage() {
	fmt.Print(`schemarun - database schema migration runner

Usage:
  schemarun <command> [flags]

Commands:
  migrate    wait for the database, apply pending migrations with retries,
             and write the success or failure marker file
  status     report applied, pending, and drifted migrations
  rollback   revert applied versions above -target (best effort)
  wait       block until the database is ready, then exit

Flags:
  -target         target version for migrate/rollback
  -dir            migrations directory (default ./migrations)
  -log-level      debug, info, warn, or error
  -timeout        overall timeout (default 5m)
  -retries        migration retry attempts (default 3)
  -retry-delay    delay between retries (default 5s)
  -wait-attempts  readiness probe attempts (default 30)
  -wait-delay     delay between readiness probes (default 2s)

Connection parameters come from the environment: DB_HOST, DB_PORT, DB_USER,
DB_PASSWORD, DB_NAME, DB_SSLMODE.
`)
}
