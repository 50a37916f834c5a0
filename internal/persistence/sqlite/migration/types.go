package migration

import (
	"context"
	"database/sql"
	"time"
)

// Direction tells whether a script moves the schema ahead or undoes a forward script.
type Direction int

const (
	// Forward scripts are applied automatically by the runner.
	Forward Direction = iota
	// Backward scripts undo the forward script with the same version and are
	// only executed through an explicit Revert.
	Backward
)

// String implements fmt.Stringer.
func (d Direction) String() string {
	switch d {
	case Forward:
		return "forward"
	case Backward:
		return "backward"
	default:
		return "unknown"
	}
}

// Script is one versioned, atomic schema change.
type Script struct {
	Version     int64     // Positive, strictly increasing across the catalog
	Description string    // Human-readable label, diagnostics only
	SQL         string    // Statements executed as one transaction
	Direction   Direction // Forward or Backward
	Checksum    string    // BLAKE2b-256 of SQL, filled in by NewCatalog
}

// AppliedMigration is one row of the version ledger.
type AppliedMigration struct {
	Version       int64         // Migration version
	Description   string        // Description recorded at apply time
	AppliedAt     time.Time     // When the migration was applied
	ExecutionTime time.Duration // How long the script took to execute
	Checksum      string        // Checksum of the script body when applied
	RunID         string        // Run that applied the migration
}

// Status describes how the ledger compares to a catalog.
type Status struct {
	CurrentVersion int64              // Highest recorded version, 0 when nothing is recorded
	LedgerExists   bool               // Whether schema_migrations has been created
	Applied        []AppliedMigration // Ledger rows in ascending order
	Pending        []Script           // Forward scripts above CurrentVersion
	Skipped        []Script           // Forward scripts at or below CurrentVersion that were never recorded
	Unknown        []int64            // Recorded versions with no forward script in the catalog
}

// State is the terminal state of a run.
type State int

const (
	// StateDone means the pending set was exhausted.
	StateDone State = iota
	// StateAborted means a script failed and later scripts were not attempted.
	StateAborted
)

// String implements fmt.Stringer.
func (s State) String() string {
	if s == StateAborted {
		return "aborted"
	}
	return "done"
}

// Result summarises a run.
type Result struct {
	RunID   string  // UUID identifying the run in logs and ledger rows
	From    int64   // Ledger version before the run
	To      int64   // Ledger version after the last committed script
	Applied []int64 // Versions applied by this run, in order
	State   State   // Terminal state
	Failed  int64   // Version that aborted the run, when State is StateAborted
}

// Querier is satisfied by both *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
