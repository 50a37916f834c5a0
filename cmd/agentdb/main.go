package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/example/message-agent/internal/config"
	"github.com/example/message-agent/internal/logging"
	"github.com/example/message-agent/internal/metrics"
	"github.com/example/message-agent/internal/persistence/sqlite"
	"github.com/example/message-agent/internal/persistence/sqlite/migration"
	"github.com/example/message-agent/internal/schema"
)

const usage = `usage: agentdb [-config path] [migrate|status|verify|revert <version>]`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes one command and returns the process exit code: 0 on success,
// 1 when the command failed and 2 on usage errors.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	flags := flag.NewFlagSet("agentdb", flag.ContinueOnError)
	flags.SetOutput(stderr)
	configPath := flags.String("config", "", "path to the TOML configuration file (default $"+config.PathEnv+")")
	if err := flags.Parse(args); err != nil {
		return 2
	}

	command, rest := "migrate", flags.Args()
	if len(rest) > 0 {
		command, rest = rest[0], rest[1:]
	}

	var revertVersion int64
	switch command {
	case "migrate", "status", "verify":
		if len(rest) != 0 {
			fmt.Fprintln(stderr, usage)
			return 2
		}
	case "revert":
		if len(rest) != 1 {
			fmt.Fprintln(stderr, usage)
			return 2
		}
		version, err := strconv.ParseInt(rest[0], 10, 64)
		if err != nil || version <= 0 {
			fmt.Fprintf(stderr, "agentdb: invalid version %q\n", rest[0])
			return 2
		}
		revertVersion = version
	default:
		fmt.Fprintf(stderr, "agentdb: unknown command %q\n%s\n", command, usage)
		return 2
	}

	cfg, err := config.Load(config.ResolvePath(*configPath))
	if err != nil {
		fmt.Fprintf(stderr, "agentdb: failed to load configuration: %v\n", err)
		return 1
	}

	logger, err := logging.New(stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(stderr, "agentdb: %v\n", err)
		return 1
	}
	ctx = logging.ContextWithLogger(ctx, logger)

	var (
		registry *prometheus.Registry
		recorder *metrics.Recorder
	)
	if cfg.Metrics.File != "" {
		registry = prometheus.NewRegistry()
		recorder = metrics.NewRecorder(registry)
	}

	store, err := sqlite.Open(cfg.SQLite())
	if err != nil {
		logger.Error("failed to open storage", "path", cfg.Database.Path, "error", err)
		return 1
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			logger.Error("failed to close storage", "error", cerr)
		}
	}()

	runner := store.Runner(cfg.Runner(), migration.WithLogger(logger), migration.WithMetrics(recorder))
	catalog := schema.Catalog()

	var code int
	switch command {
	case "migrate":
		code = migrate(ctx, runner, catalog, cfg.Migration.DowngradePolicy, stdout, logger)
	case "status":
		code = status(ctx, runner, catalog, stdout, logger)
	case "verify":
		code = verify(ctx, runner, catalog, stdout, logger)
	case "revert":
		code = revert(ctx, runner, catalog, revertVersion, stdout, logger)
	}

	if registry != nil {
		if err := prometheus.WriteToTextfile(cfg.Metrics.File, registry); err != nil {
			logger.Error("failed to write metrics", "file", cfg.Metrics.File, "error", err)
			if code == 0 {
				code = 1
			}
		}
	}
	return code
}

func migrate(ctx context.Context, runner *migration.Runner, catalog *migration.Catalog, policy config.DowngradePolicy, stdout io.Writer, logger *slog.Logger) int {
	result, err := runner.Run(ctx, catalog)
	if err != nil {
		if errors.Is(err, migration.ErrDowngradeDetected) && policy == config.DowngradeIgnore {
			logger.Warn("store schema is newer than this build, continuing", "version", result.To, "catalog_max", catalog.Max())
			fmt.Fprintf(stdout, "schema version: %d (newer than catalog %d)\n", result.To, catalog.Max())
			return 0
		}
		logger.Error("failed to apply migrations", "error", err)
		return 1
	}

	fmt.Fprintf(stdout, "schema version: %d (applied %d)\n", result.To, len(result.Applied))
	return 0
}

func status(ctx context.Context, runner *migration.Runner, catalog *migration.Catalog, stdout io.Writer, logger *slog.Logger) int {
	st, err := runner.Status(ctx, catalog)
	if err != nil {
		logger.Error("failed to read migration status", "error", err)
		return 1
	}

	fmt.Fprintf(stdout, "current version: %d\n", st.CurrentVersion)
	fmt.Fprintf(stdout, "catalog version: %d\n", catalog.Max())
	for _, entry := range st.Applied {
		fmt.Fprintf(stdout, "applied  %4d  %s  %s\n", entry.Version, entry.Description, entry.AppliedAt.Format("2006-01-02 15:04:05"))
	}
	for _, script := range st.Pending {
		fmt.Fprintf(stdout, "pending  %4d  %s\n", script.Version, script.Description)
	}
	for _, script := range st.Skipped {
		fmt.Fprintf(stdout, "skipped  %4d  %s\n", script.Version, script.Description)
	}
	for _, version := range st.Unknown {
		fmt.Fprintf(stdout, "unknown  %4d\n", version)
	}
	return 0
}

func verify(ctx context.Context, runner *migration.Runner, catalog *migration.Catalog, stdout io.Writer, logger *slog.Logger) int {
	if err := runner.Verify(ctx, catalog); err != nil {
		var checksumErr *migration.ChecksumError
		if errors.As(err, &checksumErr) {
			fmt.Fprintf(stdout, "checksum mismatch: %v\n", checksumErr.Versions)
			return 1
		}
		logger.Error("failed to verify migrations", "error", err)
		return 1
	}

	fmt.Fprintln(stdout, "checksums ok")
	return 0
}

func revert(ctx context.Context, runner *migration.Runner, catalog *migration.Catalog, version int64, stdout io.Writer, logger *slog.Logger) int {
	newVersion, err := runner.Revert(ctx, catalog, version)
	if err != nil {
		logger.Error("failed to revert migration", "version", version, "error", err)
		return 1
	}

	fmt.Fprintf(stdout, "schema version: %d (reverted %d)\n", newVersion, version)
	return 0
}
