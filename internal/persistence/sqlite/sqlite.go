package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/example/message-agent/internal/persistence"
	"github.com/example/message-agent/internal/persistence/sqlite/migration"
)

// Store is the handle to one SQLite database file. It is created explicitly by
// the host and passed to whoever needs it; there is no package-level instance.
type Store struct {
	db     *sql.DB
	config Config
}

// Open opens the database described by config, creating the file and its
// parent directories when absent. Every failure wraps persistence.ErrStoreUnavailable.
func Open(config Config) (*Store, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("%w: invalid SQLite configuration: %w", persistence.ErrStoreUnavailable, err)
	}

	if err := createDatabaseFile(config); err != nil {
		return nil, fmt.Errorf("%w: %w", persistence.ErrStoreUnavailable, err)
	}

	db, err := sql.Open("sqlite", config.DSN())
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open SQLite database: %w", persistence.ErrStoreUnavailable, err)
	}

	if config.inMemory() {
		// every new connection would see its own empty database
		db.SetMaxOpenConns(1)
	} else if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(config.MaxIdleConns)
	}
	if config.ConnMaxLifetime > 0 && !config.inMemory() {
		db.SetConnMaxLifetime(config.ConnMaxLifetime)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: failed to ping SQLite database: %w", persistence.ErrStoreUnavailable, err)
	}

	return &Store{db: db, config: config}, nil
}

// DB returns the underlying database handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Path returns the database file path the store was opened with.
func (s *Store) Path() string {
	return s.config.Path
}

// Close releases the connection pool. The database file is left in place.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping tests the database connection.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %w", persistence.ErrStoreUnavailable, err)
	}
	return nil
}

// Runner returns a migration runner bound to this store.
func (s *Store) Runner(config migration.MigrationConfig, opts ...migration.Option) *migration.Runner {
	return migration.NewRunner(s.db, config, opts...)
}

// Migrate brings the store to the newest version in catalog.
func (s *Store) Migrate(ctx context.Context, catalog *migration.Catalog, config migration.MigrationConfig, opts ...migration.Option) (*migration.Result, error) {
	return s.Runner(config, opts...).Run(ctx, catalog)
}

// createDatabaseFile creates the database file if it doesn't exist. An existing
// file is never truncated.
func createDatabaseFile(config Config) error {
	if config.inMemory() {
		return nil
	}

	dbDir := filepath.Dir(config.Path)
	if err := os.MkdirAll(dbDir, 0o755); err != nil {
		return fmt.Errorf("failed to create database directory %s: %w", dbDir, err)
	}

	file, err := os.OpenFile(config.Path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open database file %s: %w", config.Path, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close database file %s: %w", config.Path, err)
	}
	return nil
}
