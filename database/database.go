// Package database provides the SQLite persistence layer for variant sets
// and their produced variant results.
//
// The database uses WAL (Write-Ahead Logging) mode for concurrent access.
// Its schema is owned by the embedded SQL migrations under migrations/ and
// applied through the migrate runner on startup, so the schema version is
// tracked in the same schema_migrations relation the CLI operates on.
//
// # Concurrency
//
//   - WAL mode allows concurrent reads while writes are in progress
//   - Connection pool (10 max open, 5 max idle by default)
//   - 5-second busy timeout for lock contention
//   - Foreign key constraints ensure a result row never outlives its set
package database

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/superfly/variants/migrate"
)

// DB wraps the SQL database with helper methods for variant tracking.
type DB struct {
	db   *sql.DB
	path string
	log  logrus.FieldLogger
}

// Config holds database configuration.
type Config struct {
	// Path to the SQLite database file
	Path string

	// MaxOpenConns is the maximum number of open connections
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections
	MaxIdleConns int

	// ConnMaxLifetime is the maximum lifetime of a connection
	ConnMaxLifetime time.Duration

	// Logger receives migration and diagnostic logging; nil discards.
	Logger logrus.FieldLogger
}

// DefaultConfig returns a default database configuration.
func DefaultConfig() Config {
	return Config{
		Path:            "/var/lib/variants/variants.db",
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 1 * time.Hour,
	}
}

// New opens the database, configures SQLite for concurrent access and
// applies any pending embedded schema migrations.
func New(cfg Config) (*DB, error) {
	logger := cfg.Logger
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",   // Write-Ahead Logging for better concurrency
		"PRAGMA foreign_keys = ON",    // Enable foreign key constraints
		"PRAGMA synchronous = NORMAL", // Balance durability and performance
		"PRAGMA cache_size = -10000",  // 10MB cache
		"PRAGMA busy_timeout = 5000",  // 5 second timeout for locks
		"PRAGMA temp_store = MEMORY",  // Use memory for temp tables
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	if err := applyMigrations(db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return &DB{db: db, path: cfg.Path, log: logger}, nil
}

// applyMigrations runs the embedded schema migrations to the latest version.
func applyMigrations(db *sql.DB, logger logrus.FieldLogger) error {
	defs, err := Definitions()
	if err != nil {
		return err
	}
	runner, err := migrate.NewRunner(db, defs, logger)
	if err != nil {
		return err
	}
	_, err = runner.Migrate(context.Background())
	return err
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// Ping verifies the database connection is alive.
func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// Path returns the database file path.
func (d *DB) Path() string {
	return d.path
}

// Handle exposes the underlying *sql.DB for the CLI's migration commands.
func (d *DB) Handle() *sql.DB {
	return d.db
}
