// Package migrate implements a small, driver-agnostic schema migration
// toolkit: versioned migration definitions, a durable tracker backed by a
// schema_migrations relation, and a runner that applies or rolls back
// definitions in timestamp order with per-migration atomicity.
package migrate

import (
	"context"
	"database/sql"
	"time"
)

// VersionTimeLayout is the timestamp component of a migration version.
const VersionTimeLayout = "20060102150405"

// Definition is a single reversible schema change. Implementations must be
// immutable once loaded.
type Definition interface {
	// Name is the human-readable migration name (no timestamp).
	Name() string

	// Timestamp orders the migration: ascending for apply, descending for
	// rollback.
	Timestamp() time.Time

	// Up applies the migration inside the given transaction.
	Up(ctx context.Context, tx *sql.Tx) error

	// Down reverts the migration inside the given transaction. A definition
	// without rollback support returns ErrMissingRollback.
	Down(ctx context.Context, tx *sql.Tx) error
}

// Version returns the effective identity of a definition:
// format(timestamp) + "_" + name.
func Version(d Definition) string {
	return d.Timestamp().Format(VersionTimeLayout) + "_" + d.Name()
}

// FuncDefinition adapts plain Go functions into a Definition. Useful for
// migrations that cannot be expressed as a single SQL batch.
type FuncDefinition struct {
	MigrationName string
	At            time.Time
	UpFunc        func(ctx context.Context, tx *sql.Tx) error
	DownFunc      func(ctx context.Context, tx *sql.Tx) error
}

func (d *FuncDefinition) Name() string         { return d.MigrationName }
func (d *FuncDefinition) Timestamp() time.Time { return d.At }

func (d *FuncDefinition) Up(ctx context.Context, tx *sql.Tx) error {
	return d.UpFunc(ctx, tx)
}

func (d *FuncDefinition) Down(ctx context.Context, tx *sql.Tx) error {
	if d.DownFunc == nil {
		return ErrMissingRollback
	}
	return d.DownFunc(ctx, tx)
}
