// Package migration implements the schema migration engine: discovery of
// versioned SQL scripts, the applied-versions ledger, transactional forward
// application, best-effort rollback, and status reporting.
package migration

import (
	"time"
)

// Migration is a discovered unit of forward schema change. It is recomputed
// on every run and never persisted itself; only its application is recorded
// as a ledger Entry.
type Migration struct {
	// Version is the sortable YYYYMMDD_HHMMSS identifier parsed from the
	// filename prefix. Versions order migrations lexically.
	Version string
	// Name is the human-readable description derived from the rest of the
	// filename, for display only.
	Name string
	// Path locates the forward script relative to the source root.
	Path string
}

// Entry is a persisted ledger row recording that a version has been applied.
type Entry struct {
	Version         string
	Name            string
	AppliedAt       time.Time
	Checksum        string
	ExecutionTimeMs int64
}

// RunResult describes a single Migrate or Rollback invocation.
type RunResult struct {
	Applied            []string
	RolledBack         []string
	Skipped            []string
	TotalExecutionTime time.Duration
	Success            bool
	Err                error
}

// DriftKind names a way the ledger and the migration files disagree.
type DriftKind string

const (
	// DriftMissingFile marks a ledger entry with no backing migration file.
	DriftMissingFile DriftKind = "missing-file"
	// DriftChecksumMismatch marks a migration file edited after it was
	// applied: its digest no longer matches the one stored at apply time.
	DriftChecksumMismatch DriftKind = "checksum-mismatch"
)

// Drift is a surfaced disagreement between the ledger and the files on disk.
type Drift struct {
	Version string
	Kind    DriftKind
	Detail  string
}

// StatusReport is a read-only projection of applied vs. pending migrations.
// Applied holds only ledger entries with a backing file; entries without one
// are carried in Drift so the counts stay consistent with TotalAvailable.
type StatusReport struct {
	Applied        []Entry
	Pending        []Migration
	TotalAvailable int
	Drift          []Drift
}
