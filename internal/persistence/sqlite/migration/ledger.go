package migration

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/example/message-agent/internal/persistence"
)

// LedgerTable is the reserved table recording applied versions. Its shape is
// part of the on-disk contract and no application script may alter it.
const LedgerTable = "schema_migrations"

const createLedgerSQL = `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version INTEGER PRIMARY KEY,
	applied_at TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	checksum TEXT NOT NULL DEFAULT '',
	execution_time_ms INTEGER NOT NULL DEFAULT 0,
	run_id TEXT NOT NULL DEFAULT ''
);
`

// ledgerScript bootstraps the ledger through the same path as every other
// script. Version 0 sorts below any application script.
var ledgerScript = Script{
	Version:     0,
	Description: "create_schema_migrations",
	SQL:         createLedgerSQL,
	Direction:   Forward,
	Checksum:    calculateChecksum(createLedgerSQL),
}

// Ledger reads and writes the schema_migrations table. Every method takes the
// Querier to run on so that recording happens inside the script's transaction.
type Ledger struct{}

// Exists reports whether the ledger table has been created.
func (Ledger) Exists(ctx context.Context, q Querier) (bool, error) {
	var count int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, LedgerTable).Scan(&count)
	if err != nil {
		return false, NewDatabaseError(0, "check ledger table", err)
	}
	return count > 0, nil
}

// CurrentMaxApplied returns the highest recorded version. ok is false when
// the ledger does not exist yet or holds no rows.
func (l Ledger) CurrentMaxApplied(ctx context.Context, q Querier) (version int64, ok bool, err error) {
	exists, err := l.Exists(ctx, q)
	if err != nil || !exists {
		return 0, false, err
	}

	var maxVersion sql.NullInt64
	if err := q.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_migrations`).Scan(&maxVersion); err != nil {
		return 0, false, NewDatabaseError(0, "read current version", err)
	}
	if !maxVersion.Valid {
		return 0, false, nil
	}
	return maxVersion.Int64, true, nil
}

// IsApplied checks if a specific version has been recorded.
func (Ledger) IsApplied(ctx context.Context, q Querier, version int64) (bool, error) {
	var exists int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM schema_migrations WHERE version = ? LIMIT 1`, version).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, NewDatabaseError(version, "check version applied", err)
	}
	return true, nil
}

// Record inserts one ledger row. It fails with a *ConflictError when the
// version is already present.
func (l Ledger) Record(ctx context.Context, q Querier, entry AppliedMigration) error {
	applied, err := l.IsApplied(ctx, q, entry.Version)
	if err != nil {
		return err
	}
	if applied {
		return &ConflictError{Version: entry.Version}
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO schema_migrations (version, applied_at, description, checksum, execution_time_ms, run_id)
		VALUES (?, ?, ?, ?, ?, ?)`,
		entry.Version,
		entry.AppliedAt.UTC().Format(time.RFC3339),
		entry.Description,
		entry.Checksum,
		entry.ExecutionTime.Milliseconds(),
		entry.RunID,
	)
	if err != nil {
		if isConstraintViolation(err) {
			return &ConflictError{Version: entry.Version, Err: err}
		}
		return NewDatabaseError(entry.Version, "record migration", err)
	}
	return nil
}

// Remove deletes the ledger row for version. Only an explicit revert calls it.
func (Ledger) Remove(ctx context.Context, q Querier, version int64) error {
	res, err := q.ExecContext(ctx, `DELETE FROM schema_migrations WHERE version = ?`, version)
	if err != nil {
		return NewDatabaseError(version, "remove migration", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return NewDatabaseError(version, "remove migration", persistence.ErrNotFound)
	}
	return nil
}

// Applied returns all ledger rows in ascending version order.
func (Ledger) Applied(ctx context.Context, q Querier) ([]AppliedMigration, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT version, applied_at, description, checksum, execution_time_ms, run_id
		FROM schema_migrations
		ORDER BY version ASC`)
	if err != nil {
		return nil, NewDatabaseError(0, "list applied migrations", err)
	}
	defer rows.Close()

	var applied []AppliedMigration
	for rows.Next() {
		var (
			entry           AppliedMigration
			appliedAt       string
			executionTimeMs int64
		)
		if err := rows.Scan(&entry.Version, &appliedAt, &entry.Description, &entry.Checksum, &executionTimeMs, &entry.RunID); err != nil {
			return nil, NewDatabaseError(0, "scan applied migration", err)
		}
		// Rows inserted by hand may carry another timestamp layout; keep the zero time then.
		if parsed, err := time.Parse(time.RFC3339, appliedAt); err == nil {
			entry.AppliedAt = parsed
		}
		entry.ExecutionTime = time.Duration(executionTimeMs) * time.Millisecond
		applied = append(applied, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, NewDatabaseError(0, "iterate applied migrations", err)
	}
	return applied, nil
}

func isConstraintViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
		return true
	}
	return false
}
