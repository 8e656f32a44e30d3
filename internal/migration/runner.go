package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"
)

// Config carries the Runner's explicit dependencies. There is no package
// level state: tests inject fake sources and ledgers here.
type Config struct {
	DB     *sql.DB
	Source Source
	Ledger Ledger
	Logger *slog.Logger
}

// Runner applies pending migrations in ascending version order, one
// transaction per migration. A single runner instance is assumed; concurrent
// invocations against the same database are not safe.
type Runner struct {
	db     *sql.DB
	source Source
	ledger Ledger
	logger *slog.Logger
}

func NewRunner(cfg Config) (*Runner, error) {
	if cfg.DB == nil {
		return nil, errors.New("runner: database handle is required")
	}
	if cfg.Source == nil {
		return nil, errors.New("runner: migration source is required")
	}
	if cfg.Ledger == nil {
		return nil, errors.New("runner: ledger is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{db: cfg.DB, source: cfg.Source, ledger: cfg.Ledger, logger: logger}, nil
}

// Migrate applies all pending migrations, stopping early at targetVersion
// when one is given (pending versions beyond it are skipped, not applied).
// Each migration commits independently together with its ledger row. The
// first failure rolls back only the failing migration and halts the run;
// earlier commits persist.
func (r *Runner) Migrate(ctx context.Context, targetVersion string) RunResult {
	result := RunResult{Success: true}
	if err := r.ledger.EnsureTable(ctx); err != nil {
		return r.fail(result, err)
	}
	applied, err := r.ledger.ReadApplied(ctx)
	if err != nil {
		return r.fail(result, err)
	}
	discovered, err := r.source.Discover()
	if err != nil {
		return r.fail(result, err)
	}
	for _, d := range r.detectDrift(applied, discovered) {
		r.logger.Warn("migration drift detected",
			"version", d.Version, "kind", string(d.Kind), "detail", d.Detail)
	}

	var pending []Migration
	for _, m := range discovered {
		if _, ok := applied[m.Version]; !ok {
			pending = append(pending, m)
		}
	}
	if len(pending) == 0 {
		r.logger.Info("no pending migrations")
		return result
	}
	r.logger.Info("applying pending migrations", "count", len(pending))

	for _, m := range pending {
		if targetVersion != "" && m.Version > targetVersion {
			result.Skipped = append(result.Skipped, m.Version)
			continue
		}
		elapsed, err := r.applyOne(ctx, m)
		if err != nil {
			r.logger.Error("migration failed, transaction rolled back",
				"version", m.Version, "error", err)
			return r.fail(result, err)
		}
		result.Applied = append(result.Applied, m.Version)
		result.TotalExecutionTime += elapsed
		r.logger.Info("applied migration",
			"version", m.Version, "name", m.Name, "elapsed", elapsed)
	}
	return result
}

// applyOne executes one migration inside its own transaction and records the
// ledger entry before committing, so schema effects and bookkeeping are
// atomic.
func (r *Runner) applyOne(ctx context.Context, m Migration) (time.Duration, error) {
	content, err := r.source.ReadMigration(m)
	if err != nil {
		return 0, err
	}
	statements := splitStatements(string(content))

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin migration %s: %w", m.Version, err)
	}
	start := time.Now()
	for i, statement := range statements {
		if _, err := tx.ExecContext(ctx, statement); err != nil {
			_ = tx.Rollback()
			return 0, &StatementError{Version: m.Version, Statement: i + 1, Err: err}
		}
	}
	elapsed := time.Since(start)

	sum, err := r.source.Checksum(m)
	if err != nil {
		// Checksum is bookkeeping, not a correctness gate.
		r.logger.Warn("checksum computation failed, storing empty checksum",
			"version", m.Version, "error", err)
		sum = ""
	}
	entry := Entry{
		Version:         m.Version,
		Name:            m.Name,
		Checksum:        sum,
		ExecutionTimeMs: elapsed.Milliseconds(),
	}
	if err := r.ledger.Record(ctx, tx, entry); err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit migration %s: %w", m.Version, err)
	}
	return elapsed, nil
}

// Rollback reverts applied versions above targetVersion, most recent first.
// Versions without a rollback script are left applied with a warning and the
// sequence continues; an execution failure halts it. Each step commits
// independently, so a partial rollback leaves a mix of reverted and applied
// versions.
func (r *Runner) Rollback(ctx context.Context, targetVersion string) RunResult {
	result := RunResult{Success: true}
	if err := r.ledger.EnsureTable(ctx); err != nil {
		return r.fail(result, err)
	}
	entries, err := r.ledger.EntriesAbove(ctx, targetVersion)
	if err != nil {
		return r.fail(result, err)
	}
	if len(entries) == 0 {
		r.logger.Info("no migrations to roll back", "target", targetVersion)
		return result
	}
	for _, entry := range entries {
		content, err := r.source.ReadRollback(entry.Version, entry.Name)
		if errors.Is(err, ErrNoRollbackScript) {
			r.logger.Warn("no rollback script, leaving version applied",
				"version", entry.Version)
			continue
		}
		if err != nil {
			return r.fail(result, err)
		}
		if err := r.rollbackOne(ctx, entry, string(content)); err != nil {
			r.logger.Error("rollback failed, transaction rolled back",
				"version", entry.Version, "error", err)
			return r.fail(result, err)
		}
		result.RolledBack = append(result.RolledBack, entry.Version)
		r.logger.Info("rolled back migration", "version", entry.Version)
	}
	return result
}

func (r *Runner) rollbackOne(ctx context.Context, entry Entry, content string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin rollback %s: %w", entry.Version, err)
	}
	for i, statement := range splitStatements(content) {
		if _, err := tx.ExecContext(ctx, statement); err != nil {
			_ = tx.Rollback()
			return &StatementError{Version: entry.Version, Statement: i + 1, Err: err}
		}
	}
	if err := r.ledger.Delete(ctx, tx, entry.Version); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit rollback %s: %w", entry.Version, err)
	}
	return nil
}

// Status is a pure read of applied vs. pending migrations. Ledger entries
// without a backing file and files edited after application are surfaced in
// Drift instead of being folded into the counts.
func (r *Runner) Status(ctx context.Context) (StatusReport, error) {
	if err := r.ledger.EnsureTable(ctx); err != nil {
		return StatusReport{}, err
	}
	applied, err := r.ledger.ReadApplied(ctx)
	if err != nil {
		return StatusReport{}, err
	}
	discovered, err := r.source.Discover()
	if err != nil {
		return StatusReport{}, err
	}
	report := StatusReport{TotalAvailable: len(discovered)}
	for _, m := range discovered {
		if entry, ok := applied[m.Version]; ok {
			report.Applied = append(report.Applied, entry)
		} else {
			report.Pending = append(report.Pending, m)
		}
	}
	report.Drift = r.detectDrift(applied, discovered)
	return report, nil
}

func (r *Runner) detectDrift(applied map[string]Entry, discovered []Migration) []Drift {
	available := make(map[string]Migration, len(discovered))
	for _, m := range discovered {
		available[m.Version] = m
	}
	versions := make([]string, 0, len(applied))
	for version := range applied {
		versions = append(versions, version)
	}
	sort.Strings(versions)

	var drift []Drift
	for _, version := range versions {
		entry := applied[version]
		m, ok := available[version]
		if !ok {
			drift = append(drift, Drift{
				Version: version,
				Kind:    DriftMissingFile,
				Detail:  "ledger entry has no migration file",
			})
			continue
		}
		if entry.Checksum == "" {
			// Empty stored checksum means hashing failed at apply time;
			// there is nothing to compare against.
			continue
		}
		sum, err := r.source.Checksum(m)
		if err != nil {
			r.logger.Warn("cannot recompute checksum for drift check",
				"version", version, "error", err)
			continue
		}
		if sum != entry.Checksum {
			drift = append(drift, Drift{
				Version: version,
				Kind:    DriftChecksumMismatch,
				Detail:  m.Path + " was modified after it was applied",
			})
		}
	}
	return drift
}

func (r *Runner) fail(result RunResult, err error) RunResult {
	result.Success = false
	result.Err = err
	return result
}
