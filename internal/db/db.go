package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

type DB struct {
	*sql.DB
	driver string
}

// Open connects to a Postgres DSN or an SQLite file path
func Open(ctx context.Context, driver, dsn string) (*DB, error) {
	switch driver {
	case DriverPostgres:
	case DriverSQLite:
		if dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
			if err := os.MkdirAll(filepath.Dir(dsn), 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		if !strings.Contains(dsn, "?") {
			dsn += "?_journal_mode=WAL&_busy_timeout=5000"
		}
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	sqlDB, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if driver == DriverSQLite {
		// One writer keeps SQLite from returning SQLITE_BUSY under load
		sqlDB.SetMaxOpenConns(1)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{DB: sqlDB, driver: driver}, nil
}

func (db *DB) Driver() string {
	return db.driver
}

var placeholder = regexp.MustCompile(`\$\d+`)

// Rebind rewrites $N placeholders for drivers that only understand "?".
// Placeholders must appear in ascending order, each once.
func (db *DB) Rebind(query string) string {
	if db.driver != DriverSQLite {
		return query
	}
	return placeholder.ReplaceAllString(query, "?")
}

func (db *DB) Migrate(ctx context.Context) error {
	timestamp := "TIMESTAMPTZ"
	if db.driver == DriverSQLite {
		timestamp = "TIMESTAMP"
	}

	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS download_history (
		id TEXT PRIMARY KEY,
		url TEXT NOT NULL,
		directory TEXT NOT NULL DEFAULT '',
		state TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		uploader TEXT NOT NULL DEFAULT '',
		path TEXT NOT NULL DEFAULT '',
		error_code TEXT NOT NULL DEFAULT '',
		error_message TEXT NOT NULL DEFAULT '',
		attempts INTEGER NOT NULL DEFAULT 0,
		created_at %[1]s NOT NULL,
		finished_at %[1]s
	);

	CREATE INDEX IF NOT EXISTS idx_download_history_state ON download_history(state);
	CREATE INDEX IF NOT EXISTS idx_download_history_created_at ON download_history(created_at);
	`, timestamp)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}
