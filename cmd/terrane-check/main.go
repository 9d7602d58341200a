// Command terrane-check validates a registration manifest without
// compiling the registering modules. It re-runs every registration
// through the ledger, reports one line per problem, and exits non-zero
// when any registration would fail at runtime. With a DSN it also
// verifies that every registered type has a table carrying its
// declared columns.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/geoforge/terrane/check"
	"github.com/geoforge/terrane/dialect"

	// Database drivers for --dsn verification.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const appName = "terrane-check"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		dialectName string
		dsn         string
		watch       bool
		logLevel    string
	)

	cmd := &cobra.Command{
		Use:   appName + " <manifest.yaml>",
		Short: "Validate entity registrations before deployment",
		Long: `terrane-check re-validates every registration declared in a YAML
manifest: field descriptors, view references, parent links, and preset
definitions. Problems are printed one per line on stderr and the
command exits 1, so a broken registration fails CI instead of failing
the first request in production.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(logLevel)
			if watch {
				return runWatch(cmd.Context(), logger, args[0], dialectName, dsn)
			}
			return runOnce(cmd.Context(), logger, args[0], dialectName, dsn)
		},
	}

	cmd.Flags().StringVar(&dialectName, "dialect", dialect.SQLite, "database dialect (mysql, postgres, sqlite)")
	cmd.Flags().StringVar(&dsn, "dsn", "", "data source name; when set, verify table columns against the live database")
	cmd.Flags().BoolVar(&watch, "watch", false, "re-validate whenever the manifest changes")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	return cmd
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func runOnce(ctx context.Context, logger *slog.Logger, path, dialectName, dsn string) error {
	report, err := validate(ctx, logger, path, dialectName, dsn)
	if err != nil {
		return err
	}
	if !report.OK() {
		if _, err := report.WriteTo(os.Stderr); err != nil {
			return err
		}
		return fmt.Errorf("%d problem(s) in %s", len(report.Problems), path)
	}
	logger.Info("manifest valid", "path", path)
	return nil
}

func runWatch(ctx context.Context, logger *slog.Logger, path, dialectName, dsn string) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory, not the file: editors replace files on save,
	// which drops a file-level watch.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}

	report := func() {
		r, err := validate(ctx, logger, path, dialectName, dsn)
		if err != nil {
			logger.Error("validation failed", "path", path, "error", err)
			return
		}
		if r.OK() {
			logger.Info("manifest valid", "path", path)
			return
		}
		if _, err := r.WriteTo(os.Stderr); err != nil {
			logger.Error("write report", "error", err)
		}
	}
	report()

	// Debounce: editors emit bursts of write events per save.
	var timer *time.Timer
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(path) {
				continue
			}
			if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(200*time.Millisecond, report)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher error", "error", err)
		}
	}
}

func validate(ctx context.Context, logger *slog.Logger, path, dialectName, dsn string) (check.Report, error) {
	m, err := check.LoadManifest(path)
	if err != nil {
		return check.Report{}, err
	}
	ledger, report := m.Build()
	report.Problems = append(report.Problems, check.Run(ledger).Problems...)
	logger.Debug("manifest checked", "path", path, "types", len(m.Types), "problems", len(report.Problems))

	if dsn == "" {
		return report, nil
	}

	db, err := sql.Open(dialectName, dsn)
	if err != nil {
		return check.Report{}, fmt.Errorf("open %s database: %w", dialectName, err)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		return check.Report{}, fmt.Errorf("ping %s database: %w", dialectName, err)
	}
	report.Problems = append(report.Problems, check.VerifyColumns(ctx, db, ledger).Problems...)
	return report, nil
}
