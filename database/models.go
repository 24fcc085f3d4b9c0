package database

import "time"

// VariantSet groups every variant derived from one original image.
// Results are owned exclusively by their set and appended as the
// orchestration workflow completes each one.
type VariantSet struct {
	ID                  string
	OriginalKey         string
	OriginalContentType string
	Kind                string
	KindID              string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// VariantResult is one produced variant. Rows are immutable once written;
// (VariantSetID, Name) is unique within a set.
type VariantResult struct {
	ID           string
	VariantSetID string
	Name         string
	StorageKey   string
	Width        int
	Height       int
	Format       string
	Quality      float64
	CreatedAt    time.Time
}
