// Package migrations embeds the SQL schema of the traffic archive so the
// binary can migrate a fresh database without the files on disk.
package migrations

import (
	"embed"

	"github.com/nerrad567/casa-core/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
