package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS queue_states (
	id TEXT PRIMARY KEY,
	homepage TEXT NOT NULL DEFAULT '',
	level TEXT NOT NULL,
	total INTEGER NOT NULL DEFAULT 0,
	processed INTEGER NOT NULL DEFAULT 0,
	sampling JSONB,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

ALTER TABLE queue_states ADD COLUMN IF NOT EXISTS sampling JSONB;

CREATE TABLE IF NOT EXISTS queue_urls (
	state_id TEXT NOT NULL REFERENCES queue_states(id) ON DELETE CASCADE,
	position INTEGER NOT NULL,
	url TEXT NOT NULL,
	status TEXT NOT NULL,
	PRIMARY KEY (state_id, url)
);

CREATE INDEX IF NOT EXISTS idx_queue_states_updated ON queue_states(updated_at DESC);

CREATE TABLE IF NOT EXISTS audit_results (
	url TEXT PRIMARY KEY,
	final_url TEXT NOT NULL DEFAULT '',
	homepage BOOLEAN NOT NULL DEFAULT FALSE,
	level TEXT NOT NULL,
	status TEXT NOT NULL,
	duration_ms BIGINT NOT NULL DEFAULT 0,
	node_count INTEGER NOT NULL DEFAULT 0,
	score DOUBLE PRECISION NOT NULL DEFAULT 0,
	grade TEXT NOT NULL DEFAULT '',
	certificate TEXT NOT NULL DEFAULT '',
	attempts INTEGER NOT NULL DEFAULT 0,
	error TEXT NOT NULL DEFAULT '',
	violations JSONB NOT NULL DEFAULT '[]',
	summary JSONB NOT NULL DEFAULT '{}',
	redirect_chain INTEGER[] NOT NULL DEFAULT '{}',
	page JSONB,
	started_at TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL
);

ALTER TABLE audit_results ADD COLUMN IF NOT EXISTS page JSONB;
`

// Connect opens a pool and makes sure the schema exists.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to reach database: %w", err)
	}
	if err := EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func EnsureSchema(ctx context.Context, db *pgxpool.Pool) error {
	if _, err := db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}
