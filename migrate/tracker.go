package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// trackerSchema creates the schema_migrations relation used to record
// applied versions. Works on both SQLite and PostgreSQL.
const trackerSchema = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version VARCHAR(255) PRIMARY KEY,
    applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// execer is satisfied by both *sql.DB and *sql.Tx, so tracker mutations can
// join the runner's per-migration transaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Tracker is the durable record of applied schema versions. A version
// present in the tracker means the migration's up procedure completed and
// its down procedure has not subsequently completed.
type Tracker struct {
	db *sql.DB
}

// NewTracker returns a Tracker over the given database handle.
func NewTracker(db *sql.DB) *Tracker {
	return &Tracker{db: db}
}

// EnsureSchema idempotently creates the tracking relation. No error when it
// already exists.
func (t *Tracker) EnsureSchema(ctx context.Context) error {
	if _, err := t.db.ExecContext(ctx, trackerSchema); err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}
	return nil
}

// AppliedVersions returns the set of versions currently marked applied.
// Callers needing an order sort the result themselves.
func (t *Tracker) AppliedVersions(ctx context.Context) (map[string]struct{}, error) {
	rows, err := t.db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("query applied versions: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]struct{})
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		applied[version] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate versions: %w", err)
	}
	return applied, nil
}

// MarkApplied inserts the version using ex, normally the transaction that
// also ran the migration's up procedure. An already-present version is an
// invariant violation and surfaces as ErrDuplicateVersion.
func (t *Tracker) MarkApplied(ctx context.Context, ex execer, version string) error {
	_, err := ex.ExecContext(ctx,
		`INSERT INTO schema_migrations (version) VALUES (?)`, version)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrDuplicateVersion, version)
		}
		return fmt.Errorf("mark %s applied: %w", version, err)
	}
	return nil
}

// MarkRolledBack deletes the version. Deleting an absent version is a no-op,
// not an error.
func (t *Tracker) MarkRolledBack(ctx context.Context, ex execer, version string) error {
	_, err := ex.ExecContext(ctx,
		`DELETE FROM schema_migrations WHERE version = ?`, version)
	if err != nil {
		return fmt.Errorf("mark %s rolled back: %w", version, err)
	}
	return nil
}

// isUniqueViolation recognizes primary-key conflicts across the drivers we
// support (modernc sqlite, lib/pq-style postgres).
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint") ||
		strings.Contains(msg, "constraint failed") ||
		strings.Contains(msg, "duplicate key")
}
