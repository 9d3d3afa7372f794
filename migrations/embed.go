// Package migrations embeds the panel's SQL migration files into the binary.
package migrations

import (
	"embed"

	"github.com/nerrad567/gray-logic-panel/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
