package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"

	_ "github.com/lib/pq"

	"3tcapital/otrs_connector/internal/infrastructure/config"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// driverName is the database/sql driver registered by lib/pq.
const driverName = "postgres"

// Open connects to PostgreSQL and verifies the connection with a ping.
func Open(ctx context.Context, cfg config.DatabaseSettings) (*sql.DB, error) {
	db, err := sql.Open(driverName, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// RunMigrations executes the embedded SQL files in lexical order.
// Every migration must be idempotent; there is no version table.
func RunMigrations(ctx context.Context, db *sql.DB, log *slog.Logger) error {
	migrations, err := fs.Glob(migrationsFS, "migrations/*.sql")
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}
	sort.Strings(migrations)

	for _, migration := range migrations {
		log.Info("Running migration", "file", migration)

		sqlBytes, err := migrationsFS.ReadFile(migration)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", migration, err)
		}

		if _, err := db.ExecContext(ctx, string(sqlBytes)); err != nil {
			return fmt.Errorf("execute migration %s: %w", migration, err)
		}

		log.Info("Migration completed", "file", migration)
	}

	return nil
}
