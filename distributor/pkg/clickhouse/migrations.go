package clickhouse

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/pressly/goose/v3"

	"github.com/rakurai-io/rakurai/distributor"
)

const migrationsDir = "db/clickhouse/migrations"

func CreateDatabase(ctx context.Context, log *slog.Logger, conn Connection, database string) error {
	log.Info("clickhouse: creating database", "database", database)
	return conn.Exec(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database))
}

type slogGooseLogger struct {
	log *slog.Logger
}

func (l *slogGooseLogger) Fatalf(format string, v ...any) {
	l.log.Error(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l *slogGooseLogger) Printf(format string, v ...any) {
	l.log.Info(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

// migrate opens a database/sql handle for cfg, points goose at the embedded
// migrations and runs op.
func migrate(ctx context.Context, log *slog.Logger, cfg Config, name string, op func(ctx context.Context, db *sql.DB) error) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	db := clickhouse.OpenDB(cfg.options())
	defer db.Close()

	goose.SetLogger(&slogGooseLogger{log: log})
	goose.SetBaseFS(distributor.ClickHouseMigrationsFS)
	if err := goose.SetDialect("clickhouse"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	log.Info("clickhouse: running migrations", "operation", name, "database", cfg.Database)
	if err := op(ctx, db); err != nil {
		return fmt.Errorf("failed to run migrations (%s): %w", name, err)
	}
	return nil
}

// Up applies all pending migrations.
func Up(ctx context.Context, log *slog.Logger, cfg Config) error {
	return migrate(ctx, log, cfg, "up", func(ctx context.Context, db *sql.DB) error {
		return goose.UpContext(ctx, db, migrationsDir)
	})
}

// Down rolls back the most recent migration.
func Down(ctx context.Context, log *slog.Logger, cfg Config) error {
	return migrate(ctx, log, cfg, "down", func(ctx context.Context, db *sql.DB) error {
		return goose.DownContext(ctx, db, migrationsDir)
	})
}

// Reset rolls back every migration.
func Reset(ctx context.Context, log *slog.Logger, cfg Config) error {
	return migrate(ctx, log, cfg, "reset", func(ctx context.Context, db *sql.DB) error {
		return goose.ResetContext(ctx, db, migrationsDir)
	})
}

// Version returns the current schema version.
func Version(ctx context.Context, log *slog.Logger, cfg Config) (int64, error) {
	var version int64
	err := migrate(ctx, log, cfg, "version", func(ctx context.Context, db *sql.DB) error {
		v, err := goose.GetDBVersionContext(ctx, db)
		version = v
		return err
	})
	return version, err
}

// Status logs the state of every migration.
func Status(ctx context.Context, log *slog.Logger, cfg Config) error {
	return migrate(ctx, log, cfg, "status", func(ctx context.Context, db *sql.DB) error {
		return goose.StatusContext(ctx, db, migrationsDir)
	})
}
