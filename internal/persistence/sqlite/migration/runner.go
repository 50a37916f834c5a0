package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/example/message-agent/internal/logging"
	"github.com/example/message-agent/internal/metrics"
)

// Runner reconciles a Catalog with the Ledger of one store.
type Runner struct {
	db      *sql.DB
	config  MigrationConfig
	ledger  Ledger
	logger  *slog.Logger
	now     func() time.Time
	metrics *metrics.Recorder
}

// Option customises a Runner.
type Option func(*Runner)

// WithLogger sets the fallback logger. A logger attached to the context with
// logging.ContextWithLogger takes precedence.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithClock sets the source of applied_at timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		if now != nil {
			r.now = now
		}
	}
}

// WithMetrics records runs and scripts on m.
func WithMetrics(m *metrics.Recorder) Option {
	return func(r *Runner) {
		r.metrics = m
	}
}

// NewRunner creates a Runner operating on db.
func NewRunner(db *sql.DB, config MigrationConfig, opts ...Option) *Runner {
	r := &Runner{
		db:     db,
		config: config,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ApplyAll brings db to the newest version in catalog and returns the final
// ledger version. It is the single entry point used at startup.
func ApplyAll(ctx context.Context, catalog *Catalog, db *sql.DB) (int64, error) {
	result, err := NewRunner(db, DefaultMigrationConfig()).Run(ctx, catalog)
	return result.To, err
}

// Run applies every pending forward script in version order, each in its own
// transaction together with its ledger row. The first failure aborts the run;
// the returned Result is never nil and To holds the last committed version.
func (r *Runner) Run(ctx context.Context, catalog *Catalog) (*Result, error) {
	result := &Result{RunID: uuid.NewString()}
	logger := logging.FromContextOr(ctx, r.logger).With("run_id", result.RunID)
	startTime := time.Now()

	if !r.config.Enabled {
		current, _, err := r.ledger.CurrentMaxApplied(ctx, r.db)
		if err != nil {
			return r.abort(logger, result, 0, "read current version", err)
		}
		result.From, result.To = current, current
		logger.Info("migrations disabled, schema left untouched", "version", current)
		return result, nil
	}

	logger.Info("migration run starting", "catalog_max", catalog.Max(), "scripts", catalog.Len())

	if _, err := r.applyScript(ctx, logger, ledgerScript, result.RunID); err != nil {
		return r.abort(logger, result, ledgerScript.Version, "initialize schema_migrations", err)
	}

	current, _, err := r.ledger.CurrentMaxApplied(ctx, r.db)
	if err != nil {
		return r.abort(logger, result, 0, "read current version", err)
	}
	result.From, result.To = current, current
	logger.Info("current schema version", "version", current)

	if current > catalog.Max() {
		err := &DowngradeError{StoreVersion: current, CatalogMaxVersion: catalog.Max()}
		logger.Error("store was migrated by a newer build", "store_version", current, "catalog_max", catalog.Max())
		result.State = StateAborted
		r.metrics.CountRun("downgrade")
		r.metrics.SetSchemaVersion(current)
		return result, err
	}

	if err := r.checkChecksums(ctx, logger, catalog); err != nil {
		return r.abort(logger, result, 0, "verify checksums", err)
	}

	pending := catalog.Pending(current)
	if len(pending) == 0 {
		logger.Info("schema is up to date", "version", current)
		r.metrics.CountRun(StateDone.String())
		r.metrics.SetSchemaVersion(current)
		return result, nil
	}

	logger.Info("pending migrations found", "count", len(pending), "from", current, "to", pending[len(pending)-1].Version)

	for i, script := range pending {
		logger.Info("executing migration",
			"version", script.Version, "description", script.Description,
			"step", i+1, "of", len(pending), "checksum", script.Checksum)

		applied, err := r.applyScript(ctx, logger, script, result.RunID)
		if err != nil {
			return r.abort(logger, result, script.Version, "apply migration", err)
		}
		if applied {
			result.Applied = append(result.Applied, script.Version)
			result.To = script.Version
		} else {
			logger.Warn("migration already recorded by another runner, skipping", "version", script.Version)
		}
	}

	final, ok, err := r.ledger.CurrentMaxApplied(ctx, r.db)
	switch {
	case err != nil:
		logger.Warn("failed to re-read schema version after run", "last_applied", result.To, "error", err)
	case ok:
		result.To = final
	}

	logger.Info("all migrations completed",
		"applied", len(result.Applied), "version", result.To, "duration", time.Since(startTime))
	r.metrics.CountRun(StateDone.String())
	r.metrics.SetSchemaVersion(result.To)
	return result, nil
}

func (r *Runner) abort(logger *slog.Logger, result *Result, version int64, operation string, err error) (*Result, error) {
	result.State = StateAborted
	result.Failed = version
	logger.Error("migration run aborted",
		"operation", operation, "version", version, "last_committed", result.To, "error", err)
	r.metrics.CountRun(StateAborted.String())
	r.metrics.SetSchemaVersion(result.To)
	return result, fmt.Errorf("%s: %w", operation, err)
}

// applyScript executes one forward script and records it in the same
// transaction. The current version is re-read inside the transaction, so a
// script another runner committed in the meantime is skipped, not re-applied.
func (r *Runner) applyScript(ctx context.Context, logger *slog.Logger, script Script, runID string) (bool, error) {
	var (
		recorded bool
		elapsed  time.Duration
	)

	err := r.inTransaction(ctx, logger, script.Version, func(tx *sql.Tx) error {
		current, ok, err := r.ledger.CurrentMaxApplied(ctx, tx)
		if err != nil {
			return err
		}
		if ok && script.Version <= current {
			return nil
		}

		started := time.Now()
		if err := executeScript(ctx, tx, script); err != nil {
			r.metrics.ObserveScript(script.Version, Forward.String(), "failed", time.Since(started))
			return err
		}
		elapsed = time.Since(started)

		entry := AppliedMigration{
			Version:       script.Version,
			Description:   script.Description,
			AppliedAt:     r.now().UTC(),
			ExecutionTime: elapsed,
			Checksum:      script.Checksum,
			RunID:         runID,
		}
		if err := r.ledger.Record(ctx, tx, entry); err != nil {
			outcome := "failed"
			if errors.Is(err, ErrConflict) {
				outcome = "conflict"
			}
			r.metrics.ObserveScript(script.Version, Forward.String(), outcome, elapsed)
			return err
		}
		recorded = true
		return nil
	})
	if err != nil {
		if recorded {
			// commit failed after the script and its ledger row succeeded
			r.metrics.ObserveScript(script.Version, Forward.String(), "failed", elapsed)
		}
		return false, err
	}

	if !recorded {
		r.metrics.ObserveScript(script.Version, Forward.String(), "skipped", 0)
		return false, nil
	}

	r.metrics.ObserveScript(script.Version, Forward.String(), "applied", elapsed)
	logger.Info("migration committed", "version", script.Version, "description", script.Description, "duration", elapsed)
	return true, nil
}

// checkChecksums compares recorded checksums with the catalog. Drift is fatal
// when VerifyChecksum is set and a warning otherwise.
func (r *Runner) checkChecksums(ctx context.Context, logger *slog.Logger, catalog *Catalog) error {
	mismatched, err := r.mismatchedChecksums(ctx, logger, catalog)
	if err != nil || len(mismatched) == 0 {
		return err
	}
	if r.config.VerifyChecksum {
		return &ChecksumError{Versions: mismatched}
	}
	logger.Warn("applied migrations changed since they were recorded", "versions", mismatched)
	return nil
}

func (r *Runner) mismatchedChecksums(ctx context.Context, logger *slog.Logger, catalog *Catalog) ([]int64, error) {
	applied, err := r.ledger.Applied(ctx, r.db)
	if err != nil {
		return nil, err
	}

	var mismatched []int64
	for _, entry := range applied {
		if entry.Version == ledgerScript.Version {
			continue
		}
		script, ok := catalog.Lookup(entry.Version)
		if !ok {
			logger.Warn("recorded migration is not part of the catalog", "version", entry.Version, "description", entry.Description)
			continue
		}
		if entry.Checksum != "" && entry.Checksum != script.Checksum {
			mismatched = append(mismatched, entry.Version)
		}
	}
	return mismatched, nil
}

// Verify reports a *ChecksumError when any applied script no longer matches
// the catalog, regardless of the VerifyChecksum setting.
func (r *Runner) Verify(ctx context.Context, catalog *Catalog) error {
	logger := logging.FromContextOr(ctx, r.logger)

	exists, err := r.ledger.Exists(ctx, r.db)
	if err != nil || !exists {
		return err
	}

	mismatched, err := r.mismatchedChecksums(ctx, logger, catalog)
	if err != nil {
		return err
	}
	if len(mismatched) > 0 {
		return &ChecksumError{Versions: mismatched}
	}
	return nil
}

// Status compares the ledger with catalog without modifying the store.
func (r *Runner) Status(ctx context.Context, catalog *Catalog) (*Status, error) {
	status := &Status{}

	exists, err := r.ledger.Exists(ctx, r.db)
	if err != nil {
		return nil, err
	}
	if !exists {
		status.Pending = catalog.Forward()
		return status, nil
	}
	status.LedgerExists = true

	applied, err := r.ledger.Applied(ctx, r.db)
	if err != nil {
		return nil, err
	}

	recorded := make(map[int64]bool, len(applied))
	for _, entry := range applied {
		if entry.Version == ledgerScript.Version {
			continue
		}
		status.Applied = append(status.Applied, entry)
		recorded[entry.Version] = true
		if entry.Version > status.CurrentVersion {
			status.CurrentVersion = entry.Version
		}
		if _, ok := catalog.Lookup(entry.Version); !ok {
			status.Unknown = append(status.Unknown, entry.Version)
		}
	}

	for _, script := range catalog.Forward() {
		if script.Version > status.CurrentVersion {
			status.Pending = append(status.Pending, script)
		} else if !recorded[script.Version] {
			status.Skipped = append(status.Skipped, script)
		}
	}

	return status, nil
}

// Revert executes the backward script for version and removes its ledger row
// in one transaction. Only the current top version can be reverted. Run never
// calls Revert; it exists for explicit, host-triggered downgrades.
func (r *Runner) Revert(ctx context.Context, catalog *Catalog, version int64) (int64, error) {
	logger := logging.FromContextOr(ctx, r.logger).With("version", version, "direction", Backward.String())

	script, ok := catalog.Backward(version)
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrNoBackwardScript, version)
	}

	var current, newVersion int64
	started := time.Now()
	err := r.inTransaction(ctx, logger, version, func(tx *sql.Tx) error {
		top, ok, err := r.ledger.CurrentMaxApplied(ctx, tx)
		if err != nil {
			return err
		}
		current = top
		if !ok || top != version {
			return fmt.Errorf("%w: requested %d, store is at %d", ErrNotTopVersion, version, top)
		}

		logger.Info("reverting migration", "description", script.Description)
		started = time.Now()
		if err := executeScript(ctx, tx, script); err != nil {
			r.metrics.ObserveScript(version, Backward.String(), "failed", time.Since(started))
			logger.Error("revert failed", "error", err)
			return err
		}
		if err := r.ledger.Remove(ctx, tx, version); err != nil {
			return err
		}

		newVersion, _, err = r.ledger.CurrentMaxApplied(ctx, tx)
		return err
	})
	if err != nil {
		return current, err
	}

	r.metrics.ObserveScript(version, Backward.String(), "applied", time.Since(started))
	r.metrics.SetSchemaVersion(newVersion)
	logger.Info("migration reverted", "new_version", newVersion)
	return newVersion, nil
}
