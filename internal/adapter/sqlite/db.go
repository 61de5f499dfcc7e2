// Package sqlite stores queue states and audit results in a local SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// FileName is the database file created inside the state directory.
const FileName = "a11y-audit.db"

// DB is a single-writer SQLite handle shared by the state and result stores.
type DB struct {
	db   *sql.DB
	path string
}

// Open creates dir if needed and opens (or creates) the database inside it.
func Open(ctx context.Context, dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	path := filepath.Join(dir, FileName)

	db, err := sql.Open("sqlite", path+"?mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA foreign_keys=ON", "PRAGMA busy_timeout=5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	d := &DB{db: db, path: path}
	if err := d.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return d, nil
}

func (d *DB) Path() string { return d.path }

func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) createTables(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS queue_states (
		id TEXT PRIMARY KEY,
		homepage TEXT NOT NULL DEFAULT '',
		level TEXT NOT NULL,
		total INTEGER NOT NULL DEFAULT 0,
		processed INTEGER NOT NULL DEFAULT 0,
		sampling TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS queue_urls (
		state_id TEXT NOT NULL REFERENCES queue_states(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		url TEXT NOT NULL,
		status TEXT NOT NULL,
		PRIMARY KEY (state_id, url)
	);

	CREATE INDEX IF NOT EXISTS idx_queue_states_updated ON queue_states(updated_at);

	CREATE TABLE IF NOT EXISTS audit_results (
		url TEXT PRIMARY KEY,
		final_url TEXT NOT NULL DEFAULT '',
		homepage INTEGER NOT NULL DEFAULT 0,
		level TEXT NOT NULL,
		status TEXT NOT NULL,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		node_count INTEGER NOT NULL DEFAULT 0,
		score REAL NOT NULL DEFAULT 0,
		grade TEXT NOT NULL DEFAULT '',
		certificate TEXT NOT NULL DEFAULT '',
		attempts INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT '',
		violations TEXT NOT NULL DEFAULT '[]',
		summary TEXT NOT NULL DEFAULT '{}',
		redirect_chain TEXT NOT NULL DEFAULT '[]',
		page TEXT NOT NULL DEFAULT '',
		started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP NOT NULL
	);
	`
	_, err := d.db.ExecContext(ctx, schema)
	return err
}
