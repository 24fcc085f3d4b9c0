package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strings"
	"time"
)

// Marker lines splitting a SQL migration file into statement batches.
// Content after each marker, up to the next marker or EOF, belongs to that
// section.
const (
	upMarker   = "-- migrate:up"
	downMarker = "-- migrate:down"
)

// filenamePattern enforces {14-digit-timestamp}_{name}.{ext}.
var filenamePattern = regexp.MustCompile(`^(\d{14})_([A-Za-z0-9][A-Za-z0-9_-]*)\.([A-Za-z0-9]+)$`)

// SQLDefinition is a Definition parsed from a marker-sectioned SQL file.
type SQLDefinition struct {
	name      string
	timestamp time.Time
	upSQL     string
	downSQL   string
}

// ParseSQLFile builds a SQLDefinition from a filename and file content.
// A malformed filename or a missing/empty up section is a load-time error.
func ParseSQLFile(filename string, content []byte) (*SQLDefinition, error) {
	m := filenamePattern.FindStringSubmatch(path.Base(filename))
	if m == nil {
		return nil, fmt.Errorf("%w: %s (expected {timestamp}_{name}.{ext})", ErrInvalidFilename, filename)
	}

	ts, err := time.ParseInLocation(VersionTimeLayout, m[1], time.UTC)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: bad timestamp: %v", ErrInvalidFilename, filename, err)
	}

	upSQL, downSQL := splitSections(string(content))
	if upSQL == "" {
		return nil, fmt.Errorf("%w in %s", ErrMissingUpSection, filename)
	}

	return &SQLDefinition{
		name:      m[2],
		timestamp: ts,
		upSQL:     upSQL,
		downSQL:   downSQL,
	}, nil
}

// splitSections separates file content into up and down statement batches.
// Lines before the first marker are ignored (header comments).
func splitSections(content string) (up, down string) {
	var upLines, downLines []string
	section := ""

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		lower := strings.ToLower(trimmed)
		switch {
		case strings.HasPrefix(lower, upMarker):
			section = "up"
			continue
		case strings.HasPrefix(lower, downMarker):
			section = "down"
			continue
		}

		switch section {
		case "up":
			upLines = append(upLines, line)
		case "down":
			downLines = append(downLines, line)
		}
	}

	return strings.TrimSpace(strings.Join(upLines, "\n")),
		strings.TrimSpace(strings.Join(downLines, "\n"))
}

func (d *SQLDefinition) Name() string         { return d.name }
func (d *SQLDefinition) Timestamp() time.Time { return d.timestamp }

// UpSQL exposes the up statement batch (used by status/debug output).
func (d *SQLDefinition) UpSQL() string { return d.upSQL }

// DownSQL exposes the down statement batch; empty means no rollback support.
func (d *SQLDefinition) DownSQL() string { return d.downSQL }

func (d *SQLDefinition) Up(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, d.upSQL)
	return err
}

func (d *SQLDefinition) Down(ctx context.Context, tx *sql.Tx) error {
	if d.downSQL == "" {
		return fmt.Errorf("%w: %s", ErrMissingRollback, Version(d))
	}
	_, err := tx.ExecContext(ctx, d.downSQL)
	return err
}

// LoadFS loads every migration file under dir in fsys and returns the
// definitions sorted ascending by timestamp. Any malformed file aborts the
// load; a half-loaded migration set must never reach the runner.
func LoadFS(fsys fs.FS, dir string) ([]Definition, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir %s: %w", dir, err)
	}

	defs := make([]Definition, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		content, err := fs.ReadFile(fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		def, err := ParseSQLFile(entry.Name(), content)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}

	sort.Slice(defs, func(i, j int) bool {
		return defs[i].Timestamp().Before(defs[j].Timestamp())
	})
	return defs, nil
}
