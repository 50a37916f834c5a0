package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

var envKeys = []string{
	"AGENTDB_DATABASE_PATH",
	"AGENTDB_BUSY_TIMEOUT",
	"AGENTDB_JOURNAL_MODE",
	"AGENTDB_SYNCHRONOUS",
	"AGENTDB_MIGRATIONS_ENABLED",
	"AGENTDB_VERIFY_CHECKSUM",
	"AGENTDB_DOWNGRADE_POLICY",
	"AGENTDB_LOG_LEVEL",
	"AGENTDB_LOG_FORMAT",
	"AGENTDB_METRICS_FILE",
	PathEnv,
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range envKeys {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agentdb.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoader_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Database.Path != "ai-message-agent.db" {
		t.Fatalf("unexpected default path %q", cfg.Database.Path)
	}
	if cfg.Database.BusyTimeout != 30*time.Second || cfg.Database.JournalMode != "WAL" || cfg.Database.Synchronous != "NORMAL" {
		t.Fatalf("unexpected database defaults %+v", cfg.Database)
	}
	if !cfg.Migration.Enabled || cfg.Migration.VerifyChecksum || cfg.Migration.DowngradePolicy != DowngradeRefuse {
		t.Fatalf("unexpected migration defaults %+v", cfg.Migration)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "json" {
		t.Fatalf("unexpected log defaults %+v", cfg.Log)
	}
	if cfg.Metrics.File != "" {
		t.Fatalf("metrics export should be disabled by default, got %q", cfg.Metrics.File)
	}
}

func TestLoader_Environment(t *testing.T) {
	clearEnv(t)
	t.Setenv("AGENTDB_DATABASE_PATH", "/var/lib/agent/agent.db")
	t.Setenv("AGENTDB_BUSY_TIMEOUT", "5s")
	t.Setenv("AGENTDB_JOURNAL_MODE", "delete")
	t.Setenv("AGENTDB_MIGRATIONS_ENABLED", "false")
	t.Setenv("AGENTDB_VERIFY_CHECKSUM", "1")
	t.Setenv("AGENTDB_DOWNGRADE_POLICY", "IGNORE")
	t.Setenv("AGENTDB_LOG_FORMAT", "text")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Database.Path != "/var/lib/agent/agent.db" || cfg.Database.BusyTimeout != 5*time.Second {
		t.Fatalf("unexpected database config %+v", cfg.Database)
	}
	if cfg.Database.JournalMode != "DELETE" {
		t.Fatalf("journal mode should be normalized, got %q", cfg.Database.JournalMode)
	}
	if cfg.Migration.Enabled || !cfg.Migration.VerifyChecksum || cfg.Migration.DowngradePolicy != DowngradeIgnore {
		t.Fatalf("unexpected migration config %+v", cfg.Migration)
	}
	if cfg.Log.Format != "text" {
		t.Fatalf("unexpected log format %q", cfg.Log.Format)
	}
}

func TestLoader_FileTakesPrecedence(t *testing.T) {
	clearEnv(t)
	t.Setenv("AGENTDB_DATABASE_PATH", "/from/env.db")
	t.Setenv("AGENTDB_MIGRATIONS_ENABLED", "true")
	t.Setenv("AGENTDB_LOG_LEVEL", "debug")

	path := writeConfig(t, `
[database]
path = "/from/file.db"
busy_timeout = "2s"

[migration]
enabled = false

[metrics]
file = "/tmp/agentdb.prom"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Database.Path != "/from/file.db" || cfg.Database.BusyTimeout != 2*time.Second {
		t.Fatalf("file values should win, got %+v", cfg.Database)
	}
	if cfg.Migration.Enabled {
		t.Fatal("enabled = false in the file should override the environment")
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("keys missing from the file should come from the environment, got %q", cfg.Log.Level)
	}
	if cfg.Metrics.File != "/tmp/agentdb.prom" {
		t.Fatalf("unexpected metrics file %q", cfg.Metrics.File)
	}

	sqliteCfg := cfg.SQLite()
	if sqliteCfg.Path != "/from/file.db" || sqliteCfg.BusyTimeout != 2*time.Second || !sqliteCfg.EnableForeignKeys {
		t.Fatalf("unexpected store config %+v", sqliteCfg)
	}
	if cfg.Runner().Enabled {
		t.Fatal("runner config should carry enabled = false")
	}
}

func TestLoader_InvalidValues(t *testing.T) {
	t.Run("aggregates invalid environment values", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("AGENTDB_BUSY_TIMEOUT", "soon")
		t.Setenv("AGENTDB_VERIFY_CHECKSUM", "maybe")
		t.Setenv("AGENTDB_DOWNGRADE_POLICY", "auto")

		_, err := Load("")
		if err == nil {
			t.Fatal("expected error for invalid values")
		}
		expected := "環境変数の値が不正です: AGENTDB_BUSY_TIMEOUT, AGENTDB_VERIFY_CHECKSUM, AGENTDB_DOWNGRADE_POLICY"
		if err.Error() != expected {
			t.Fatalf("unexpected error message: %q", err.Error())
		}
	})

	t.Run("reports invalid file values by key", func(t *testing.T) {
		clearEnv(t)
		path := writeConfig(t, `
[database]
journal_mode = "sideways"

[log]
format = "xml"
`)

		_, err := Load(path)
		if err == nil {
			t.Fatal("expected error for invalid values")
		}
		expected := "設定ファイルの値が不正です: log.format, database.journal_mode"
		if err.Error() != expected {
			t.Fatalf("unexpected error message: %q", err.Error())
		}
	})

	t.Run("missing file", func(t *testing.T) {
		clearEnv(t)
		if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
			t.Fatal("expected error for missing config file")
		}
	})

	t.Run("unknown keys are tolerated", func(t *testing.T) {
		clearEnv(t)
		path := writeConfig(t, "[database]\npaht = \"typo.db\"\n")
		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}
		if cfg.Database.Path != "ai-message-agent.db" {
			t.Fatalf("misspelled key should not be applied, got %q", cfg.Database.Path)
		}
	})
}

func TestResolvePath(t *testing.T) {
	t.Setenv(PathEnv, "/etc/agentdb.toml")

	if got := ResolvePath("./local.toml"); got != "./local.toml" {
		t.Fatalf("flag should win, got %q", got)
	}
	if got := ResolvePath(""); got != "/etc/agentdb.toml" {
		t.Fatalf("expected env path, got %q", got)
	}
}
