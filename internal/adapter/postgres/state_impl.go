package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/user/a11y-audit-service/internal/entity"
	"github.com/user/a11y-audit-service/internal/repository"
)

// StateRepoImpl implements repository.StateRepository on PostgreSQL.
type StateRepoImpl struct {
	db *pgxpool.Pool
}

func NewStateRepo(db *pgxpool.Pool) *StateRepoImpl {
	return &StateRepoImpl{db: db}
}

// Save upserts the header and all URL rows in a single transaction.
func (r *StateRepoImpl) Save(ctx context.Context, state *entity.QueueState) error {
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		batch.Queue(`
			INSERT INTO queue_states (id, homepage, level, total, processed, sampling, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (id) DO UPDATE SET
				homepage = EXCLUDED.homepage,
				level = EXCLUDED.level,
				total = EXCLUDED.total,
				processed = EXCLUDED.processed,
				sampling = EXCLUDED.sampling,
				updated_at = EXCLUDED.updated_at;
		`, state.ID, state.Homepage, state.Level.String(), state.Total, state.Processed, state.Sampling, state.CreatedAt, state.UpdatedAt)
		for i, u := range state.Order {
			batch.Queue(`
				INSERT INTO queue_urls (state_id, position, url, status)
				VALUES ($1, $2, $3, $4)
				ON CONFLICT (state_id, url) DO UPDATE SET
					position = EXCLUDED.position,
					status = EXCLUDED.status;
			`, state.ID, i, u, string(state.URLs[u]))
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return fmt.Errorf("%w: save state %s: %v", repository.ErrPersistenceIO, state.ID, err)
	}
	return nil
}

func (r *StateRepoImpl) Load(ctx context.Context, id string) (*entity.QueueState, error) {
	var (
		state entity.QueueState
		level string
	)
	err := r.db.QueryRow(ctx, `
		SELECT id, homepage, level, total, processed, sampling, created_at, updated_at
		FROM queue_states WHERE id = $1;
	`, id).Scan(&state.ID, &state.Homepage, &level, &state.Total, &state.Processed, &state.Sampling, &state.CreatedAt, &state.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", repository.ErrStateNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load state %s: %v", repository.ErrPersistenceIO, id, err)
	}
	if state.Level, err = entity.ParseLevel(level); err != nil {
		return nil, fmt.Errorf("%w: state %s: %v", repository.ErrPersistenceIO, id, err)
	}

	rows, err := r.db.Query(ctx, `
		SELECT url, status FROM queue_urls WHERE state_id = $1 ORDER BY position;
	`, id)
	if err != nil {
		return nil, fmt.Errorf("%w: load urls of %s: %v", repository.ErrPersistenceIO, id, err)
	}
	defer rows.Close()

	state.URLs = make(map[string]entity.URLStatus)
	for rows.Next() {
		var u, status string
		if err := rows.Scan(&u, &status); err != nil {
			return nil, fmt.Errorf("%w: scan url: %v", repository.ErrPersistenceIO, err)
		}
		state.Order = append(state.Order, u)
		state.URLs[u] = entity.URLStatus(status)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: load urls of %s: %v", repository.ErrPersistenceIO, id, err)
	}
	return &state, nil
}

func (r *StateRepoImpl) List(ctx context.Context) ([]entity.StateSummary, error) {
	rows, err := r.db.Query(ctx, `
		SELECT s.id, s.total, s.processed, s.updated_at,
			COUNT(u.url) FILTER (WHERE u.status = 'passed'),
			COUNT(u.url) FILTER (WHERE u.status = 'failed'),
			COUNT(u.url) FILTER (WHERE u.status = 'crashed'),
			COUNT(u.url) FILTER (WHERE u.status = 'skipped_redirect'),
			COUNT(u.url) FILTER (WHERE u.status IN ('pending', 'in_progress'))
		FROM queue_states s
		LEFT JOIN queue_urls u ON u.state_id = s.id
		GROUP BY s.id
		ORDER BY s.updated_at DESC, s.id;
	`)
	if err != nil {
		return nil, fmt.Errorf("%w: list states: %v", repository.ErrPersistenceIO, err)
	}
	defer rows.Close()

	var out []entity.StateSummary
	for rows.Next() {
		var s entity.StateSummary
		if err := rows.Scan(&s.ID, &s.Total, &s.Processed, &s.UpdatedAt,
			&s.Passed, &s.Failed, &s.Crashed, &s.Skipped, &s.Pending); err != nil {
			return nil, fmt.Errorf("%w: scan state summary: %v", repository.ErrPersistenceIO, err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list states: %v", repository.ErrPersistenceIO, err)
	}
	return out, nil
}
