package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/user/a11y-audit-service/internal/entity"
	"github.com/user/a11y-audit-service/internal/repository"
)

// StateRepoImpl implements repository.StateRepository on SQLite.
type StateRepoImpl struct {
	db *DB
}

func NewStateRepo(db *DB) *StateRepoImpl {
	return &StateRepoImpl{db: db}
}

// Save upserts the state header and every URL row in one transaction.
func (r *StateRepoImpl) Save(ctx context.Context, state *entity.QueueState) (err error) {
	tx, err := r.db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", repository.ErrPersistenceIO, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	sampling, err := encodeSampling(state.Sampling)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO queue_states (id, homepage, level, total, processed, sampling, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			homepage = excluded.homepage,
			level = excluded.level,
			total = excluded.total,
			processed = excluded.processed,
			sampling = excluded.sampling,
			updated_at = excluded.updated_at
	`, state.ID, state.Homepage, state.Level.String(), state.Total, state.Processed, sampling, state.CreatedAt.UTC(), state.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("%w: save state %s: %v", repository.ErrPersistenceIO, state.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO queue_urls (state_id, position, url, status)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (state_id, url) DO UPDATE SET
			position = excluded.position,
			status = excluded.status
	`)
	if err != nil {
		return fmt.Errorf("%w: prepare url upsert: %v", repository.ErrPersistenceIO, err)
	}
	defer stmt.Close()

	for i, u := range state.Order {
		if _, err = stmt.ExecContext(ctx, state.ID, i, u, string(state.URLs[u])); err != nil {
			return fmt.Errorf("%w: save url %s: %v", repository.ErrPersistenceIO, u, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit state %s: %v", repository.ErrPersistenceIO, state.ID, err)
	}
	return nil
}

func (r *StateRepoImpl) Load(ctx context.Context, id string) (*entity.QueueState, error) {
	var (
		state    entity.QueueState
		level    string
		sampling string
	)
	err := r.db.db.QueryRowContext(ctx, `
		SELECT id, homepage, level, total, processed, sampling, created_at, updated_at
		FROM queue_states WHERE id = ?
	`, id).Scan(&state.ID, &state.Homepage, &level, &state.Total, &state.Processed, &sampling, &state.CreatedAt, &state.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", repository.ErrStateNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load state %s: %v", repository.ErrPersistenceIO, id, err)
	}
	if state.Level, err = entity.ParseLevel(level); err != nil {
		return nil, fmt.Errorf("%w: state %s: %v", repository.ErrPersistenceIO, id, err)
	}
	if sampling != "" {
		state.Sampling = &entity.Sampling{}
		if err := json.Unmarshal([]byte(sampling), state.Sampling); err != nil {
			return nil, fmt.Errorf("%w: state %s sampling: %v", repository.ErrPersistenceIO, id, err)
		}
	}

	rows, err := r.db.db.QueryContext(ctx, `
		SELECT url, status FROM queue_urls WHERE state_id = ? ORDER BY position
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
	rows, err := r.db.db.QueryContext(ctx, `
		SELECT s.id, s.total, s.processed, s.updated_at,
			COALESCE(SUM(CASE WHEN u.status = 'passed' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN u.status = 'failed' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN u.status = 'crashed' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN u.status = 'skipped_redirect' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN u.status IN ('pending', 'in_progress') THEN 1 ELSE 0 END), 0)
		FROM queue_states s
		LEFT JOIN queue_urls u ON u.state_id = s.id
		GROUP BY s.id
		ORDER BY s.updated_at DESC, s.id
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

// encodeSampling stores an absent selection as the empty string.
func encodeSampling(s *entity.Sampling) (string, error) {
	if s == nil {
		return "", nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("marshal sampling: %w", err)
	}
	return string(b), nil
}
