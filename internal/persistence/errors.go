package persistence

import "errors"

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("persistence: not found")

	// ErrStoreUnavailable is returned when the backing database file cannot be
	// opened, created or reached. Retrying is left to the caller.
	ErrStoreUnavailable = errors.New("persistence: store unavailable")
)
