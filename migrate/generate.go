package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"
)

var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

const skeleton = `-- migrate:up


-- migrate:down

`

// Generate writes a skeleton SQL migration file named
// {timestamp}_{name}.sql under dir and returns its path. The timestamp is
// taken from now in UTC so generated versions sort with existing ones.
func Generate(dir, name string, now time.Time) (string, error) {
	if !namePattern.MatchString(name) {
		return "", fmt.Errorf("invalid migration name %q", name)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create migrations dir: %w", err)
	}

	filename := fmt.Sprintf("%s_%s.sql", now.UTC().Format(VersionTimeLayout), name)
	path := filepath.Join(dir, filename)

	// Refuse to clobber an existing migration.
	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("migration file already exists: %s", path)
	}

	if err := os.WriteFile(path, []byte(skeleton), 0o644); err != nil {
		return "", fmt.Errorf("write migration file: %w", err)
	}
	return path, nil
}
