package postgres

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/tern/v2/migrate"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

const (
	applicationName = "rupomoti"
	versionTable    = "public.schema_version"

	// migrationLockID is the advisory lock key shared by every process that
	// migrates: "rupomo" in ASCII hex.
	migrationLockID             = 0x7275706f6d6f
	migrationLockReleaseTimeout = 5 * time.Second
)

// Connect opens a pool and verifies it with a ping. Sessions run in UTC and
// identify themselves as rupomoti unless the URL names another application.
// A non-nil tracer is installed on every connection.
func Connect(ctx context.Context, databaseURL string, tracer pgx.QueryTracer) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	conn := poolCfg.ConnConfig
	if _, ok := conn.RuntimeParams["application_name"]; !ok {
		conn.RuntimeParams["application_name"] = applicationName
	}
	conn.RuntimeParams["timezone"] = "UTC"
	if tracer != nil {
		conn.Tracer = tracer
	}
	if conn.TLSConfig == nil {
		slog.Warn("Database connection is not encrypted", "host", conn.Host)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	slog.Info("Database connected",
		"host", conn.Host, "database", conn.Database,
		"min_conns", poolCfg.MinConns, "max_conns", poolCfg.MaxConns)
	return pool, nil
}

// RunMigrationsWithLock applies the embedded migrations while holding an
// advisory lock, so servers and storectl can start side by side.
func RunMigrationsWithLock(ctx context.Context, pool *pgxpool.Pool) error {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection for migration: %w", err)
	}
	defer conn.Release()

	unlock, err := migrationLock(ctx, conn.Conn())
	if err != nil {
		return err
	}
	defer unlock()

	return runMigrations(ctx, conn.Conn())
}

// SchemaVersion reports the last applied migration, zero on a fresh database.
func SchemaVersion(ctx context.Context, pool *pgxpool.Pool) (int32, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Release()

	migrator, err := newMigrator(ctx, conn.Conn())
	if err != nil {
		return 0, err
	}
	v, err := migrator.GetCurrentVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return v, nil
}

func newMigrator(ctx context.Context, conn *pgx.Conn) (*migrate.Migrator, error) {
	migrationFS, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations: %w", err)
	}

	migrator, err := migrate.NewMigrator(ctx, conn, versionTable)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}
	if err := migrator.LoadMigrations(migrationFS); err != nil {
		return nil, fmt.Errorf("failed to load migrations: %w", err)
	}
	return migrator, nil
}

func runMigrations(ctx context.Context, conn *pgx.Conn) error {
	migrator, err := newMigrator(ctx, conn)
	if err != nil {
		return err
	}

	from, err := migrator.GetCurrentVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	target := int32(len(migrator.Migrations))
	if from == target {
		slog.Info("Database schema up to date", "version", from)
		return nil
	}

	migrator.OnStart = func(sequence int32, name, direction, _ string) {
		slog.Info("Applying migration", "sequence", sequence, "name", name, "direction", direction)
	}
	if err := migrator.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	slog.Info("Database schema migrated", "from", from, "to", target)
	return nil
}

func migrationLock(ctx context.Context, conn *pgx.Conn) (unlock func(), err error) {
	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", migrationLockID); err != nil {
		return nil, fmt.Errorf("failed to acquire migration lock: %w", err)
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), migrationLockReleaseTimeout)
		defer cancel()

		if _, err := conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", migrationLockID); err != nil {
			slog.Error("Failed to release migration lock", "error", err)
		}
	}, nil
}
