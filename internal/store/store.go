// Package store persists finished OCR results in SQLite or Postgres.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"

	"github.com/spherical/doc-ocr/internal/config"
	"github.com/spherical/doc-ocr/internal/domain"
)

// Driver names registered with database/sql.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
)

// Open connects to the database selected by cfg. It returns a nil DB when
// storage is disabled.
func Open(ctx context.Context, cfg config.StorageConfig) (*sql.DB, string, error) {
	var driver, dsn string
	switch cfg.Driver {
	case "", "none":
		return nil, "", nil
	case "sqlite":
		driver, dsn = DriverSQLite, cfg.SQLite.Path
	case "postgres":
		driver, dsn = DriverPostgres, cfg.Postgres.DSN
	default:
		return nil, "", domain.ConfigError(fmt.Sprintf("unknown storage driver %q", cfg.Driver), nil)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, "", domain.StorageError("open database", err)
	}

	if driver == DriverPostgres {
		if cfg.Postgres.MaxOpenConns > 0 {
			db.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
		}
		if cfg.Postgres.ConnMaxLifetime > 0 {
			db.SetConnMaxLifetime(cfg.Postgres.ConnMaxLifetime)
		}
	} else {
		db.SetMaxOpenConns(1)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, "", domain.StorageError("ping database", err)
	}

	return db, driver, nil
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS ocr_results (
	id           TEXT PRIMARY KEY,
	content_hash TEXT NOT NULL,
	filename     TEXT NOT NULL,
	engine       TEXT NOT NULL,
	format       TEXT NOT NULL,
	settings     TEXT NOT NULL,
	page_count   INTEGER NOT NULL,
	result_json  TEXT NOT NULL,
	created_at   TIMESTAMP NOT NULL,
	UNIQUE (content_hash, engine, format, settings)
)`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS ocr_results (
	id           UUID PRIMARY KEY,
	content_hash TEXT NOT NULL,
	filename     TEXT NOT NULL,
	engine       TEXT NOT NULL,
	format       TEXT NOT NULL,
	settings     TEXT NOT NULL,
	page_count   INTEGER NOT NULL,
	result_json  JSONB NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL,
	UNIQUE (content_hash, engine, format, settings)
)`

// Migrate creates the results table if it does not exist.
func Migrate(ctx context.Context, db DB, driver string) error {
	schema := sqliteSchema
	if driver == DriverPostgres {
		schema = postgresSchema
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return domain.StorageError("migrate schema", err)
	}
	return nil
}
