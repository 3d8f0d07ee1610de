package store

import (
	"database/sql"
	"embed"
	"fmt"
	"log/slog"

	"github.com/pressly/goose/v3"
)

// Embed migration SQL files for schema versioning, delegating the
// actual up/down bookkeeping to goose.
//
//go:embed migrations/*.sql
var migrationsFS embed.FS

const migrationsDir = "migrations"

// runMigrations applies every pending embedded migration in order inside
// goose's own transaction-per-file handling. Migrations are append-only;
// rollback is not exposed through this package.
func runMigrations(db *sql.DB, logger *slog.Logger) error {
	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("store: set migration dialect: %w", err)
	}

	goose.SetLogger(goose.NopLogger())

	before, err := goose.GetDBVersion(db)
	if err != nil {
		return fmt.Errorf("store: read schema version: %w", err)
	}

	logger.Debug("current schema version", "version", before)

	if err := goose.Up(db, migrationsDir); err != nil {
		return fmt.Errorf("store: apply migrations: %w", err)
	}

	after, err := goose.GetDBVersion(db)
	if err != nil {
		return fmt.Errorf("store: read schema version after migration: %w", err)
	}

	if after != before {
		logger.Info("applied schema migrations", "from", before, "to", after)
	} else {
		logger.Debug("schema up to date", "version", after)
	}

	return nil
}
