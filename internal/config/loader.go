package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/example/message-agent/internal/persistence/sqlite"
	"github.com/example/message-agent/internal/persistence/sqlite/migration"
)

// PathEnv names the variable consulted when no -config flag is given.
const PathEnv = "AGENTDB_CONFIG"

// DowngradePolicy decides what the host does when the store is newer than the catalog.
type DowngradePolicy string

const (
	// DowngradeRefuse stops the host with an error.
	DowngradeRefuse DowngradePolicy = "refuse"
	// DowngradeIgnore logs a warning and keeps running on the newer schema.
	DowngradeIgnore DowngradePolicy = "ignore"
)

// Config captures the settings of the agentdb host.
type Config struct {
	Database  DatabaseConfig
	Migration MigrationConfig
	Log       LogConfig
	Metrics   MetricsConfig
}

// DatabaseConfig describes the SQLite store.
type DatabaseConfig struct {
	Path        string
	BusyTimeout time.Duration
	JournalMode string
	Synchronous string
}

// MigrationConfig controls the migration runner.
type MigrationConfig struct {
	Enabled         bool
	VerifyChecksum  bool
	DowngradePolicy DowngradePolicy
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string
	Format string
}

// MetricsConfig configures the Prometheus textfile export. An empty File disables it.
type MetricsConfig struct {
	File string
}

// fileConfig mirrors the TOML layout. Durations are written as strings ("30s").
type fileConfig struct {
	Database struct {
		Path        string `toml:"path"`
		BusyTimeout string `toml:"busy_timeout"`
		JournalMode string `toml:"journal_mode"`
		Synchronous string `toml:"synchronous"`
	} `toml:"database"`
	Migration struct {
		Enabled         bool   `toml:"enabled"`
		VerifyChecksum  bool   `toml:"verify_checksum"`
		DowngradePolicy string `toml:"downgrade_policy"`
	} `toml:"migration"`
	Log struct {
		Level  string `toml:"level"`
		Format string `toml:"format"`
	} `toml:"log"`
	Metrics struct {
		File string `toml:"file"`
	} `toml:"metrics"`
}

// ResolvePath returns the config file path: the flag value when set,
// otherwise AGENTDB_CONFIG. An empty result means no file.
func ResolvePath(flagValue string) string {
	if path := strings.TrimSpace(flagValue); path != "" {
		return path
	}
	return strings.TrimSpace(os.Getenv(PathEnv))
}

// Load reads the optional TOML file at path and fills every field with the
// precedence TOML > environment > default.
//
// Unknown keys in the file are logged as a warning. Invalid values are
// collected and reported together with localized messages.
func Load(path string) (Config, error) {
	var (
		file fileConfig
		md   toml.MetaData
	)

	if strings.TrimSpace(path) != "" {
		var err error
		md, err = toml.DecodeFile(path, &file)
		if err != nil {
			return Config{}, fmt.Errorf("設定ファイルを読み込めません: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			slog.Warn("unknown keys in config file", "path", path, "keys", strings.Join(keys, ", "))
		}
	}

	r := &resolver{md: md}
	cfg := Config{
		Database: DatabaseConfig{
			Path:        r.str(file.Database.Path, "AGENTDB_DATABASE_PATH", "ai-message-agent.db", "database", "path"),
			BusyTimeout: r.duration(file.Database.BusyTimeout, "AGENTDB_BUSY_TIMEOUT", 30*time.Second, "database", "busy_timeout"),
			JournalMode: strings.ToUpper(r.str(file.Database.JournalMode, "AGENTDB_JOURNAL_MODE", "WAL", "database", "journal_mode")),
			Synchronous: strings.ToUpper(r.str(file.Database.Synchronous, "AGENTDB_SYNCHRONOUS", "NORMAL", "database", "synchronous")),
		},
		Migration: MigrationConfig{
			Enabled:         r.boolean(file.Migration.Enabled, "AGENTDB_MIGRATIONS_ENABLED", true, "migration", "enabled"),
			VerifyChecksum:  r.boolean(file.Migration.VerifyChecksum, "AGENTDB_VERIFY_CHECKSUM", false, "migration", "verify_checksum"),
			DowngradePolicy: DowngradePolicy(strings.ToLower(r.str(file.Migration.DowngradePolicy, "AGENTDB_DOWNGRADE_POLICY", string(DowngradeRefuse), "migration", "downgrade_policy"))),
		},
		Log: LogConfig{
			Level:  strings.ToLower(r.str(file.Log.Level, "AGENTDB_LOG_LEVEL", "info", "log", "level")),
			Format: strings.ToLower(r.str(file.Log.Format, "AGENTDB_LOG_FORMAT", "json", "log", "format")),
		},
		Metrics: MetricsConfig{
			File: r.str(file.Metrics.File, "AGENTDB_METRICS_FILE", "", "metrics", "file"),
		},
	}

	r.check(cfg.Migration.DowngradePolicy == DowngradeRefuse || cfg.Migration.DowngradePolicy == DowngradeIgnore,
		"AGENTDB_DOWNGRADE_POLICY", "migration", "downgrade_policy")
	var level slog.Level
	r.check(level.UnmarshalText([]byte(cfg.Log.Level)) == nil, "AGENTDB_LOG_LEVEL", "log", "level")
	r.check(cfg.Log.Format == "json" || cfg.Log.Format == "text", "AGENTDB_LOG_FORMAT", "log", "format")
	r.check(cfg.Database.Path != "", "AGENTDB_DATABASE_PATH", "database", "path")
	r.check(sqlite.Config{Path: "-", JournalMode: cfg.Database.JournalMode}.Validate() == nil,
		"AGENTDB_JOURNAL_MODE", "database", "journal_mode")
	r.check(sqlite.Config{Path: "-", Synchronous: cfg.Database.Synchronous}.Validate() == nil,
		"AGENTDB_SYNCHRONOUS", "database", "synchronous")

	if len(r.invalidFile) > 0 {
		return Config{}, fmt.Errorf("設定ファイルの値が不正です: %s", strings.Join(r.invalidFile, ", "))
	}
	if len(r.invalidEnv) > 0 {
		return Config{}, fmt.Errorf("環境変数の値が不正です: %s", strings.Join(r.invalidEnv, ", "))
	}

	return cfg, nil
}

// SQLite converts the database section into a store configuration.
func (c Config) SQLite() sqlite.Config {
	cfg := sqlite.DefaultConfig(c.Database.Path)
	cfg.BusyTimeout = c.Database.BusyTimeout
	cfg.JournalMode = c.Database.JournalMode
	cfg.Synchronous = c.Database.Synchronous
	return cfg
}

// Runner converts the migration section into runner settings.
func (c Config) Runner() migration.MigrationConfig {
	return migration.MigrationConfig{
		Enabled:        c.Migration.Enabled,
		VerifyChecksum: c.Migration.VerifyChecksum,
	}
}

// resolver applies TOML > env > default and records which inputs were invalid.
type resolver struct {
	md          toml.MetaData
	invalidFile []string
	invalidEnv  []string
}

func (r *resolver) str(fileValue, envKey, def string, tomlPath ...string) string {
	if r.md.IsDefined(tomlPath...) {
		return strings.TrimSpace(fileValue)
	}
	if v := strings.TrimSpace(os.Getenv(envKey)); v != "" {
		return v
	}
	return def
}

func (r *resolver) duration(fileValue, envKey string, def time.Duration, tomlPath ...string) time.Duration {
	if r.md.IsDefined(tomlPath...) {
		d, err := time.ParseDuration(strings.TrimSpace(fileValue))
		if err != nil || d < 0 {
			r.invalidFile = append(r.invalidFile, strings.Join(tomlPath, "."))
			return def
		}
		return d
	}
	if v := strings.TrimSpace(os.Getenv(envKey)); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			r.invalidEnv = append(r.invalidEnv, envKey)
			return def
		}
		return d
	}
	return def
}

func (r *resolver) boolean(fileValue bool, envKey string, def bool, tomlPath ...string) bool {
	if r.md.IsDefined(tomlPath...) {
		return fileValue
	}
	if v := strings.TrimSpace(os.Getenv(envKey)); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			r.invalidEnv = append(r.invalidEnv, envKey)
			return def
		}
		return b
	}
	return def
}

// check records an invalid value against the file key when the file defined
// it, otherwise against the environment variable.
func (r *resolver) check(ok bool, envKey string, tomlPath ...string) {
	if ok {
		return
	}
	if r.md.IsDefined(tomlPath...) {
		r.invalidFile = append(r.invalidFile, strings.Join(tomlPath, "."))
		return
	}
	r.invalidEnv = append(r.invalidEnv, envKey)
}
