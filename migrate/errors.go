package migrate

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateVersion means the tracker was asked to mark a version that
	// is already recorded as applied. The runner's diff logic makes this
	// unreachable in normal operation, so it is treated as an invariant
	// violation rather than a recoverable condition.
	ErrDuplicateVersion = errors.New("migration version already applied")

	// ErrMissingUpSection means a SQL migration file has no (or an empty)
	// "-- migrate:up" section. Detected at load time.
	ErrMissingUpSection = errors.New("no -- migrate:up section found")

	// ErrMissingRollback means a rollback reached a migration whose down
	// section is empty. Only raised when the rollback actually targets it.
	ErrMissingRollback = errors.New("migration has no down section")

	// ErrInvalidFilename means a migration filename does not match the
	// required {14-digit-timestamp}_{name}.{ext} pattern.
	ErrInvalidFilename = errors.New("invalid migration filename")
)

// ApplyError wraps a failure while executing a migration's up or down
// procedure. The run it belongs to is aborted immediately; migrations that
// completed earlier in the same run stay committed.
type ApplyError struct {
	Version   string
	Direction string // "up" or "down"
	Err       error
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("migration %s: %s failed: %v", e.Version, e.Direction, e.Err)
}

func (e *ApplyError) Unwrap() error { return e.Err }
