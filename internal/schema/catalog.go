// Package schema holds the application's migration catalog. The SQL bodies
// are compiled into the binary, so the catalog is fixed at build time.
package schema

import (
	"embed"

	"github.com/example/message-agent/internal/persistence/sqlite/migration"
)

// MigrationFS embeds the SQL files under migrations/. The files follow the
// {version}_{description}[.down].sql naming read by migration.CatalogFromFS.
//
//go:embed migrations/*.sql
var MigrationFS embed.FS

// MigrationDir is the directory inside MigrationFS holding the scripts.
const MigrationDir = "migrations"

var (
	//go:embed migrations/001_core_tables.sql
	coreTablesSQL string

	//go:embed migrations/002_fts_tables.sql
	ftsTablesSQL string

	//go:embed migrations/003_project_classification_prompt.sql
	classificationPromptSQL string

	//go:embed migrations/003_project_classification_prompt.down.sql
	classificationPromptDownSQL string
)

// catalog is the ordered script table. A new schema change gets the next
// version here and a matching file under migrations/.
var catalog = migration.MustCatalog(
	migration.Script{Version: 1, Description: "create_core_tables", SQL: coreTablesSQL},
	migration.Script{Version: 2, Description: "create_fts_tables", SQL: ftsTablesSQL},
	migration.Script{Version: 3, Description: "add_project_classification_prompt", SQL: classificationPromptSQL},
	migration.Script{
		Version:     3,
		Description: "add_project_classification_prompt",
		SQL:         classificationPromptDownSQL,
		Direction:   migration.Backward,
	},
)

// Catalog returns the application catalog.
func Catalog() *migration.Catalog {
	return catalog
}

// LatestVersion is the version a fully migrated store reports.
func LatestVersion() int64 {
	return catalog.Max()
}
