// Package migration applies versioned schema changes to a SQLite store.
//
// Scripts are compiled into the binary and collected in a Catalog, which is
// fixed for the lifetime of the process. The store records every applied
// version in its own schema_migrations table (the ledger), so ledger and
// schema always change in the same transaction. It supports:
//
//   - Sequential, version-ordered execution of forward scripts
//   - One transaction per script, committed together with its ledger row
//   - Detection of stores migrated by a newer build (downgrade)
//   - Checksum drift detection for already applied scripts
//   - Explicit, host-triggered revert through backward scripts
//
// Script files embedded with go:embed follow the naming convention
// {version}_{description}.sql, with backward scripts named
// {version}_{description}.down.sql (e.g. "003_add_prompt.down.sql").
//
// Example usage:
//
//	runner := NewRunner(db, DefaultMigrationConfig(), WithLogger(logger))
//	result, err := runner.Run(ctx, catalog)
//	if err != nil {
//		log.Fatalf("Migration failed: %v", err)
//	}
package migration
