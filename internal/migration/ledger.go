package migration

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/sqlscan"
)

const ledgerTable = "schema_migrations"

// Dialect selects the placeholder format for ledger statements. Production
// runs against Postgres; the sqlite dialect exists for the test suite, which
// drives the same code over an in-memory database.
type Dialect int

const (
	DialectPostgres Dialect = iota
	DialectSQLite
)

func (d Dialect) placeholder() squirrel.PlaceholderFormat {
	if d == DialectPostgres {
		return squirrel.Dollar
	}
	return squirrel.Question
}

// Ledger tracks which migration versions have been applied. Record and
// Delete run inside the caller's transaction so that schema effects and
// ledger rows commit or roll back together.
type Ledger interface {
	EnsureTable(ctx context.Context) error
	ReadApplied(ctx context.Context) (map[string]Entry, error)
	// EntriesAbove returns applied entries with version strictly greater
	// than the target, most recent first.
	EntriesAbove(ctx context.Context, version string) ([]Entry, error)
	Record(ctx context.Context, tx *sql.Tx, entry Entry) error
	Delete(ctx context.Context, tx *sql.Tx, version string) error
}

// SQLLedger stores entries in the schema_migrations table of the target
// database. It owns the table's creation.
type SQLLedger struct {
	db      *sql.DB
	builder squirrel.StatementBuilderType
}

func NewLedger(db *sql.DB, dialect Dialect) *SQLLedger {
	return &SQLLedger{
		db:      db,
		builder: squirrel.StatementBuilder.PlaceholderFormat(dialect.placeholder()),
	}
}

// EnsureTable creates the ledger table if it is absent. Safe on every run.
func (l *SQLLedger) EnsureTable(ctx context.Context) error {
	query := `CREATE TABLE IF NOT EXISTS ` + ledgerTable + ` (
	version VARCHAR(255) PRIMARY KEY,
	name VARCHAR(500) NOT NULL,
	applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	checksum VARCHAR(64),
	execution_time_ms INT DEFAULT 0
)`
	if _, err := l.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create %s table: %w", ledgerTable, err)
	}
	return nil
}

func (l *SQLLedger) ReadApplied(ctx context.Context) (map[string]Entry, error) {
	rows, err := l.selectEntries(ctx, nil, "version ASC")
	if err != nil {
		return nil, fmt.Errorf("read applied migrations: %w", err)
	}
	applied := make(map[string]Entry, len(rows))
	for _, row := range rows {
		applied[row.Version] = row.entry()
	}
	return applied, nil
}

func (l *SQLLedger) EntriesAbove(ctx context.Context, version string) ([]Entry, error) {
	rows, err := l.selectEntries(ctx, squirrel.Gt{"version": version}, "version DESC")
	if err != nil {
		return nil, fmt.Errorf("read migrations above %s: %w", version, err)
	}
	entries := make([]Entry, len(rows))
	for i, row := range rows {
		entries[i] = row.entry()
	}
	return entries, nil
}

// Record inserts the entry inside tx. The applied_at column defaults to the
// database's insertion time.
func (l *SQLLedger) Record(ctx context.Context, tx *sql.Tx, entry Entry) error {
	query, args, err := l.builder.Insert(ledgerTable).
		Columns("version", "name", "checksum", "execution_time_ms").
		Values(entry.Version, entry.Name, entry.Checksum, entry.ExecutionTimeMs).
		ToSql()
	if err != nil {
		return fmt.Errorf("build ledger insert: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("record migration %s: %w", entry.Version, err)
	}
	return nil
}

func (l *SQLLedger) Delete(ctx context.Context, tx *sql.Tx, version string) error {
	query, args, err := l.builder.Delete(ledgerTable).
		Where(squirrel.Eq{"version": version}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build ledger delete: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete migration %s: %w", version, err)
	}
	return nil
}

// entryRow scans applied_at as text because the Postgres and sqlite drivers
// disagree on timestamp representations; both convert cleanly to string.
type entryRow struct {
	Version         string         `db:"version"`
	Name            string         `db:"name"`
	AppliedAt       string         `db:"applied_at"`
	Checksum        sql.NullString `db:"checksum"`
	ExecutionTimeMs sql.NullInt64  `db:"execution_time_ms"`
}

func (r entryRow) entry() Entry {
	return Entry{
		Version:         r.Version,
		Name:            r.Name,
		AppliedAt:       parseAppliedAt(r.AppliedAt),
		Checksum:        r.Checksum.String,
		ExecutionTimeMs: r.ExecutionTimeMs.Int64,
	}
}

func (l *SQLLedger) selectEntries(ctx context.Context, where any, order string) ([]entryRow, error) {
	q := l.builder.Select("version", "name", "applied_at", "checksum", "execution_time_ms").
		From(ledgerTable).
		OrderBy(order)
	if where != nil {
		q = q.Where(where)
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build ledger select: %w", err)
	}
	var rows []entryRow
	if err := sqlscan.Select(ctx, l.db, &rows, query, args...); err != nil {
		return nil, err
	}
	return rows, nil
}

var appliedAtLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05",
}

func parseAppliedAt(value string) time.Time {
	for _, layout := range appliedAtLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	return time.Time{}
}
