package testfixtures

import (
	"path/filepath"
	"testing"

	"github.com/example/message-agent/internal/persistence/sqlite"
)

// SQLiteHarness wraps a store backed by a temporary database file.
type SQLiteHarness struct {
	Store *sqlite.Store
	Path  string

	cleanup func()
}

// Close releases resources associated with the harness.
func (h *SQLiteHarness) Close() {
	if h != nil && h.cleanup != nil {
		h.cleanup()
		h.cleanup = nil
	}
}

// Reopen closes the store and opens the same file again, simulating the next
// application start.
func (h *SQLiteHarness) Reopen(tb testing.TB) {
	tb.Helper()
	h.Close()
	h.open(tb)
}

// OpenAnother opens an independent store on the same file, as a second
// process would. It is closed automatically at the end of the test.
func (h *SQLiteHarness) OpenAnother(tb testing.TB) *sqlite.Store {
	tb.Helper()
	store, err := sqlite.Open(sqlite.TestConfig(h.Path))
	if err != nil {
		tb.Fatalf("failed to open second store: %v", err)
	}
	tb.Cleanup(func() { _ = store.Close() })
	return store
}

// NewSQLiteHarness opens an empty store in a temporary directory. Callers may
// optionally invoke Close, but the helper also registers a cleanup callback
// with the provided testing.TB.
func NewSQLiteHarness(tb testing.TB) *SQLiteHarness {
	tb.Helper()

	harness := &SQLiteHarness{Path: filepath.Join(tb.TempDir(), "agent.db")}
	harness.open(tb)
	tb.Cleanup(harness.Close)
	return harness
}

func (h *SQLiteHarness) open(tb testing.TB) {
	tb.Helper()
	store, err := sqlite.Open(sqlite.TestConfig(h.Path))
	if err != nil {
		tb.Fatalf("failed to open storage: %v", err)
	}
	h.Store = store
	h.cleanup = func() {
		_ = store.Close()
	}
}
