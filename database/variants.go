package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CreateVariantSet inserts a new variant set row. CreatedAt/UpdatedAt are
// stamped here.
func (d *DB) CreateVariantSet(ctx context.Context, set *VariantSet) error {
	now := time.Now().UTC()
	set.CreatedAt = now
	set.UpdatedAt = now

	query := `INSERT INTO variant_sets
		(id, original_key, original_content_type, kind, kind_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := d.db.ExecContext(ctx, query,
		set.ID, set.OriginalKey, set.OriginalContentType, set.Kind, set.KindID,
		set.CreatedAt, set.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert variant set %s: %w", set.ID, err)
	}
	return nil
}

// GetVariantSet returns the set with the given id, or nil if absent.
func (d *DB) GetVariantSet(ctx context.Context, id string) (*VariantSet, error) {
	query := `SELECT id, original_key, original_content_type, kind, kind_id, created_at, updated_at
		FROM variant_sets WHERE id = ?`

	var set VariantSet
	err := d.db.QueryRowContext(ctx, query, id).Scan(
		&set.ID, &set.OriginalKey, &set.OriginalContentType,
		&set.Kind, &set.KindID, &set.CreatedAt, &set.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query variant set %s: %w", id, err)
	}
	return &set, nil
}

// InsertVariantResult appends a result to its set. The row is keyed by
// (variant_set_id, name), so re-running the producing activity after a
// transient failure converges on a single row: a conflicting insert is
// ignored and inserted reports false.
func (d *DB) InsertVariantResult(ctx context.Context, res *VariantResult) (inserted bool, err error) {
	res.CreatedAt = time.Now().UTC()

	query := `INSERT INTO variant_results
		(id, variant_set_id, name, storage_key, width, height, format, quality, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (variant_set_id, name) DO NOTHING`
	result, err := d.db.ExecContext(ctx, query,
		res.ID, res.VariantSetID, res.Name, res.StorageKey,
		res.Width, res.Height, res.Format, res.Quality, res.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("failed to insert variant result %s/%s: %w",
			res.VariantSetID, res.Name, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// GetVariantResultByName returns the result produced for (setID, name), or
// nil if the variant has not been produced yet.
func (d *DB) GetVariantResultByName(ctx context.Context, setID, name string) (*VariantResult, error) {
	query := `SELECT id, variant_set_id, name, storage_key, width, height, format, quality, created_at
		FROM variant_results WHERE variant_set_id = ? AND name = ?`

	var res VariantResult
	err := d.db.QueryRowContext(ctx, query, setID, name).Scan(
		&res.ID, &res.VariantSetID, &res.Name, &res.StorageKey,
		&res.Width, &res.Height, &res.Format, &res.Quality, &res.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query variant result %s/%s: %w", setID, name, err)
	}
	return &res, nil
}

// ListVariantResults returns every result of a set in insertion order.
func (d *DB) ListVariantResults(ctx context.Context, setID string) ([]VariantResult, error) {
	query := `SELECT id, variant_set_id, name, storage_key, width, height, format, quality, created_at
		FROM variant_results WHERE variant_set_id = ? ORDER BY created_at, id`

	rows, err := d.db.QueryContext(ctx, query, setID)
	if err != nil {
		return nil, fmt.Errorf("failed to list variant results for %s: %w", setID, err)
	}
	defer rows.Close()

	var results []VariantResult
	for rows.Next() {
		var res VariantResult
		if err := rows.Scan(&res.ID, &res.VariantSetID, &res.Name, &res.StorageKey,
			&res.Width, &res.Height, &res.Format, &res.Quality, &res.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan variant result: %w", err)
		}
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate variant results: %w", err)
	}
	return results, nil
}

// ListVariantSets returns the most recent sets, newest first.
func (d *DB) ListVariantSets(ctx context.Context, limit int) ([]VariantSet, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, original_key, original_content_type, kind, kind_id, created_at, updated_at
		FROM variant_sets ORDER BY created_at DESC LIMIT ?`

	rows, err := d.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list variant sets: %w", err)
	}
	defer rows.Close()

	var sets []VariantSet
	for rows.Next() {
		var set VariantSet
		if err := rows.Scan(&set.ID, &set.OriginalKey, &set.OriginalContentType,
			&set.Kind, &set.KindID, &set.CreatedAt, &set.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan variant set: %w", err)
		}
		sets = append(sets, set)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate variant sets: %w", err)
	}
	return sets, nil
}
