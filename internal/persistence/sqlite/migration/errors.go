package migration

import (
	"errors"
	"fmt"

	"github.com/example/message-agent/internal/persistence"
)

// Migration-specific error types for different failure scenarios
var (
	// ErrStoreUnavailable indicates that the backing store could not be opened or reached
	ErrStoreUnavailable = persistence.ErrStoreUnavailable

	// ErrScriptExecution indicates that a script body failed to execute
	ErrScriptExecution = errors.New("migration execution failed")

	// ErrConflict indicates that the ledger already holds the version being recorded
	ErrConflict = errors.New("migration version already recorded")

	// ErrDowngradeDetected indicates that the store was migrated by a newer build
	ErrDowngradeDetected = errors.New("store schema is newer than the catalog")

	// ErrChecksumMismatch indicates that an applied script's body changed after it was recorded
	ErrChecksumMismatch = errors.New("migration checksum mismatch")

	// ErrInvalidScript indicates that a script is malformed
	ErrInvalidScript = errors.New("invalid migration script")

	// ErrDuplicateVersion indicates that multiple scripts share a version and direction
	ErrDuplicateVersion = errors.New("duplicate migration version")

	// ErrNoBackwardScript indicates that a revert was requested for a version without a backward script
	ErrNoBackwardScript = errors.New("no backward script for version")

	// ErrNotTopVersion indicates that a revert targeted a version other than the current one
	ErrNotTopVersion = errors.New("only the current version can be reverted")
)

// ScriptExecutionError reports a failed script body. The transaction has been
// rolled back, so the store is still at the previously committed version.
type ScriptExecutionError struct {
	Version   int64  // Script version
	Direction Direction
	Statement int   // 1-based index of the failing statement, 0 when not statement specific
	Cause     error // Underlying error
}

// Error implements the error interface
func (e *ScriptExecutionError) Error() string {
	if e.Statement > 0 {
		return fmt.Sprintf("migration %d (%s): statement %d: %v", e.Version, e.Direction, e.Statement, e.Cause)
	}
	return fmt.Sprintf("migration %d (%s): %v", e.Version, e.Direction, e.Cause)
}

// Unwrap returns the underlying error for error unwrapping
func (e *ScriptExecutionError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches a target error
func (e *ScriptExecutionError) Is(target error) bool {
	return target == ErrScriptExecution
}

// ConflictError reports an attempt to record a version the ledger already holds.
type ConflictError struct {
	Version int64
	Err     error // Driver error, when the conflict was detected by a constraint
}

// Error implements the error interface
func (e *ConflictError) Error() string {
	return fmt.Sprintf("migration %d: already recorded in schema_migrations", e.Version)
}

// Unwrap returns the underlying error
func (e *ConflictError) Unwrap() error {
	return e.Err
}

// Is checks if the error matches a target error
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// DowngradeError reports a ledger that is ahead of the catalog.
type DowngradeError struct {
	StoreVersion      int64
	CatalogMaxVersion int64
}

// Error implements the error interface
func (e *DowngradeError) Error() string {
	return fmt.Sprintf("store is at version %d but the newest known migration is %d", e.StoreVersion, e.CatalogMaxVersion)
}

// Is checks if the error matches a target error
func (e *DowngradeError) Is(target error) bool {
	return target == ErrDowngradeDetected
}

// ChecksumError reports applied scripts whose bodies no longer match the ledger.
type ChecksumError struct {
	Versions []int64
}

// Error implements the error interface
func (e *ChecksumError) Error() string {
	return fmt.Sprintf("%v: versions %v", ErrChecksumMismatch, e.Versions)
}

// Is checks if the error matches a target error
func (e *ChecksumError) Is(target error) bool {
	return target == ErrChecksumMismatch
}

// DatabaseError wraps ledger and transaction failures that are not tied to a script body
type DatabaseError struct {
	Version   int64  // Migration version (if applicable)
	Operation string // Database operation (begin, commit, query, etc.)
	Err       error  // Underlying error
}

// Error implements the error interface
func (e *DatabaseError) Error() string {
	if e.Version != 0 {
		return fmt.Sprintf("database error in migration %d during %s: %v", e.Version, e.Operation, e.Err)
	}
	return fmt.Sprintf("database error during %s: %v", e.Operation, e.Err)
}

// Unwrap returns the underlying error
func (e *DatabaseError) Unwrap() error {
	return e.Err
}

// NewDatabaseError creates a new DatabaseError
func NewDatabaseError(version int64, operation string, err error) *DatabaseError {
	return &DatabaseError{
		Version:   version,
		Operation: operation,
		Err:       err,
	}
}
