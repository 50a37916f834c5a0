package migration

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/example/message-agent/internal/logging"
)

func countItems(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM items`).Scan(&n); err != nil {
		t.Fatalf("count failed: %v", err)
	}
	return n
}

func TestRunner_InTransaction(t *testing.T) {
	db := openLedgerDB(t)
	if _, err := db.Exec(`CREATE TABLE items (id INTEGER PRIMARY KEY)`); err != nil {
		t.Fatalf("create table failed: %v", err)
	}
	runner := NewRunner(db, DefaultMigrationConfig(), WithLogger(logging.Discard()))
	logger := logging.Discard()
	ctx := context.Background()

	t.Run("error rolls back", func(t *testing.T) {
		errBoom := errors.New("boom")
		err := runner.inTransaction(ctx, logger, 1, func(tx *sql.Tx) error {
			if _, err := tx.Exec(`INSERT INTO items (id) VALUES (1)`); err != nil {
				return err
			}
			return errBoom
		})
		if !errors.Is(err, errBoom) {
			t.Fatalf("expected errBoom, got %v", err)
		}
		if n := countItems(t, db); n != 0 {
			t.Fatalf("rows after rollback = %d, want 0", n)
		}
	})

	t.Run("success commits", func(t *testing.T) {
		err := runner.inTransaction(ctx, logger, 2, func(tx *sql.Tx) error {
			_, err := tx.Exec(`INSERT INTO items (id) VALUES (2)`)
			return err
		})
		if err != nil {
			t.Fatalf("inTransaction returned error: %v", err)
		}
		if n := countItems(t, db); n != 1 {
			t.Fatalf("rows after commit = %d, want 1", n)
		}
	})

	t.Run("panic rolls back", func(t *testing.T) {
		func() {
			defer func() {
				if recover() == nil {
					t.Fatal("expected panic to propagate")
				}
			}()
			_ = runner.inTransaction(ctx, logger, 3, func(tx *sql.Tx) error {
				if _, err := tx.Exec(`INSERT INTO items (id) VALUES (3)`); err != nil {
					return err
				}
				panic("boom")
			})
		}()
		if n := countItems(t, db); n != 1 {
			t.Fatalf("rows after panic = %d, want 1", n)
		}
	})

	t.Run("begin failure", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		err := runner.inTransaction(cancelled, logger, 4, func(tx *sql.Tx) error {
			t.Fatal("fn must not run without a transaction")
			return nil
		})
		var dbErr *DatabaseError
		if !errors.As(err, &dbErr) || dbErr.Operation != "begin transaction" || dbErr.Version != 4 {
			t.Fatalf("expected begin transaction DatabaseError, got %v", err)
		}
	})
}
