package database

import (
	"embed"

	"github.com/superfly/variants/migrate"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Definitions returns the embedded schema migrations, sorted ascending by
// timestamp. The CLI's db commands and New both run off this set.
func Definitions() ([]migrate.Definition, error) {
	return migrate.LoadFS(migrationFS, "migrations")
}
