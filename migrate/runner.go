package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
)

// Runner computes the pending/applied diff over a fixed set of definitions
// and applies or rolls back migrations in timestamp order. Each migration's
// side effects and its tracker mutation commit in one transaction: both land
// or neither does.
type Runner struct {
	db      *sql.DB
	tracker *Tracker
	defs    []Definition
	log     logrus.FieldLogger
}

// NewRunner builds a Runner. Definitions may arrive in any order; the runner
// sorts them. Duplicate versions in the definition set are rejected here,
// before anything touches the database.
func NewRunner(db *sql.DB, defs []Definition, logger logrus.FieldLogger) (*Runner, error) {
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}

	seen := make(map[string]struct{}, len(defs))
	for _, d := range defs {
		v := Version(d)
		if _, dup := seen[v]; dup {
			return nil, fmt.Errorf("duplicate migration version %s", v)
		}
		seen[v] = struct{}{}
	}

	sorted := make([]Definition, len(defs))
	copy(sorted, defs)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Timestamp().Before(sorted[j].Timestamp())
	})

	return &Runner{
		db:      db,
		tracker: NewTracker(db),
		defs:    sorted,
		log:     logger,
	}, nil
}

// Migrate applies every pending definition ascending by timestamp and
// returns the versions applied in this run. A failure aborts immediately:
// the failing migration's transaction rolls back, later migrations are not
// attempted, earlier ones stay applied.
func (r *Runner) Migrate(ctx context.Context) ([]string, error) {
	if err := r.tracker.EnsureSchema(ctx); err != nil {
		return nil, err
	}

	applied, err := r.tracker.AppliedVersions(ctx)
	if err != nil {
		return nil, err
	}

	var done []string
	for _, def := range r.defs {
		version := Version(def)
		if _, ok := applied[version]; ok {
			continue
		}

		r.log.WithField("version", version).Info("applying migration")
		if err := r.runOne(ctx, def, version, true); err != nil {
			return done, err
		}
		done = append(done, version)
	}

	if len(done) == 0 {
		r.log.Info("no pending migrations")
	} else {
		r.log.WithField("count", len(done)).Info("applied migrations")
	}
	return done, nil
}

// Rollback undoes up to count applied definitions, newest first, and returns
// the versions rolled back. The first failure aborts the remainder.
func (r *Runner) Rollback(ctx context.Context, count int) ([]string, error) {
	if count <= 0 {
		return nil, fmt.Errorf("rollback count must be positive, got %d", count)
	}
	if err := r.tracker.EnsureSchema(ctx); err != nil {
		return nil, err
	}

	applied, err := r.tracker.AppliedVersions(ctx)
	if err != nil {
		return nil, err
	}

	// Applied definitions, descending by timestamp.
	var candidates []Definition
	for i := len(r.defs) - 1; i >= 0; i-- {
		if _, ok := applied[Version(r.defs[i])]; ok {
			candidates = append(candidates, r.defs[i])
		}
	}
	if len(candidates) > count {
		candidates = candidates[:count]
	}

	var done []string
	for _, def := range candidates {
		version := Version(def)
		r.log.WithField("version", version).Info("rolling back migration")
		if err := r.runOne(ctx, def, version, false); err != nil {
			return done, err
		}
		done = append(done, version)
	}

	if len(done) == 0 {
		r.log.Info("no migrations to roll back")
	} else {
		r.log.WithField("count", len(done)).Info("rolled back migrations")
	}
	return done, nil
}

// runOne executes one migration and its tracker mutation in a single
// transaction.
func (r *Runner) runOne(ctx context.Context, def Definition, version string, up bool) error {
	direction := "up"
	if !up {
		direction = "down"
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction for %s: %w", version, err)
	}
	defer tx.Rollback()

	if up {
		err = def.Up(ctx, tx)
	} else {
		err = def.Down(ctx, tx)
	}
	if err != nil {
		r.log.WithField("version", version).WithError(err).Error("migration failed")
		return &ApplyError{Version: version, Direction: direction, Err: err}
	}

	if up {
		err = r.tracker.MarkApplied(ctx, tx, version)
	} else {
		err = r.tracker.MarkRolledBack(ctx, tx, version)
	}
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", version, err)
	}
	return nil
}

// StatusEntry describes one known definition and whether it is applied.
type StatusEntry struct {
	Version   string
	Name      string
	Timestamp time.Time
	Applied   bool
}

// StatusReport lists every known definition ascending by timestamp plus
// summary counts.
type StatusReport struct {
	Entries []StatusEntry
	Total   int
	Applied int
	Pending int
}

// Status reports the applied/pending state of every known definition.
func (r *Runner) Status(ctx context.Context) (*StatusReport, error) {
	if err := r.tracker.EnsureSchema(ctx); err != nil {
		return nil, err
	}

	applied, err := r.tracker.AppliedVersions(ctx)
	if err != nil {
		return nil, err
	}

	report := &StatusReport{Total: len(r.defs)}
	for _, def := range r.defs {
		version := Version(def)
		_, isApplied := applied[version]
		report.Entries = append(report.Entries, StatusEntry{
			Version:   version,
			Name:      def.Name(),
			Timestamp: def.Timestamp(),
			Applied:   isApplied,
		})
		if isApplied {
			report.Applied++
		} else {
			report.Pending++
		}
	}
	report.Pending = report.Total - report.Applied
	return report, nil
}
