package migration

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
)

// transactionFunc runs inside a migration transaction. Returning an error
// rolls the transaction back.
type transactionFunc func(tx *sql.Tx) error

// inTransaction executes fn within one database transaction and commits it
// when fn succeeds. A failed rollback other than sql.ErrTxDone is logged; the
// error of fn is returned unchanged.
func (r *Runner) inTransaction(ctx context.Context, logger *slog.Logger, version int64, fn transactionFunc) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return NewDatabaseError(version, "begin transaction", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			logger.Error("failed to roll back migration transaction", "version", version, "error", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return NewDatabaseError(version, "commit transaction", err)
	}
	return nil
}
