package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/user/a11y-audit-service/internal/entity"
	"github.com/user/a11y-audit-service/internal/repository"
)

// ResultRepoImpl implements repository.ResultRepository on SQLite.
type ResultRepoImpl struct {
	db *DB
}

func NewResultRepo(db *DB) *ResultRepoImpl {
	return &ResultRepoImpl{db: db}
}

// Save stores or replaces the result for a URL.
func (r *ResultRepoImpl) Save(ctx context.Context, res *entity.AuditResult) error {
	violations, err := json.Marshal(res.Violations)
	if err != nil {
		return fmt.Errorf("marshal violations: %w", err)
	}
	summary, err := json.Marshal(res.Summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	chain, err := json.Marshal(res.RedirectChain)
	if err != nil {
		return fmt.Errorf("marshal redirect chain: %w", err)
	}
	page := ""
	if res.Page != nil {
		b, err := json.Marshal(res.Page)
		if err != nil {
			return fmt.Errorf("marshal page facts: %w", err)
		}
		page = string(b)
	}

	_, err = r.db.db.ExecContext(ctx, `
		INSERT INTO audit_results (url, final_url, homepage, level, status, duration_ms, node_count,
			score, grade, certificate, attempts, error, violations, summary, redirect_chain, page, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (url) DO UPDATE SET
			final_url = excluded.final_url,
			homepage = excluded.homepage,
			level = excluded.level,
			status = excluded.status,
			duration_ms = excluded.duration_ms,
			node_count = excluded.node_count,
			score = excluded.score,
			grade = excluded.grade,
			certificate = excluded.certificate,
			attempts = excluded.attempts,
			error = excluded.error,
			violations = excluded.violations,
			summary = excluded.summary,
			redirect_chain = excluded.redirect_chain,
			page = excluded.page,
			started_at = excluded.started_at,
			finished_at = excluded.finished_at
	`,
		res.URL, res.FinalURL, res.Homepage, res.Level.String(), string(res.Status),
		res.Duration.Milliseconds(), res.NodeCount, res.Score, string(res.Grade), string(res.Certificate),
		res.Attempts, res.Error, string(violations), string(summary), string(chain), page,
		res.StartedAt.UTC(), res.FinishedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("%w: save result %s: %v", repository.ErrPersistenceIO, res.URL, err)
	}
	return nil
}

func (r *ResultRepoImpl) FindByURL(ctx context.Context, url string) (*entity.AuditResult, error) {
	var (
		res                        entity.AuditResult
		level, status              string
		grade, certificate         string
		durationMS                 int64
		violations, summary, chain string
		page                       string
	)
	err := r.db.db.QueryRowContext(ctx, `
		SELECT url, final_url, homepage, level, status, duration_ms, node_count, score, grade, certificate,
			attempts, error, violations, summary, redirect_chain, page, started_at, finished_at
		FROM audit_results WHERE url = ?
	`, url).Scan(
		&res.URL, &res.FinalURL, &res.Homepage, &level, &status, &durationMS, &res.NodeCount,
		&res.Score, &grade, &certificate, &res.Attempts, &res.Error,
		&violations, &summary, &chain, &page, &res.StartedAt, &res.FinishedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", repository.ErrResultNotFound, url)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: find result %s: %v", repository.ErrPersistenceIO, url, err)
	}

	if res.Level, err = entity.ParseLevel(level); err != nil {
		return nil, fmt.Errorf("%w: result %s: %v", repository.ErrPersistenceIO, url, err)
	}
	res.Status = entity.AuditStatus(status)
	res.Grade = entity.Grade(grade)
	res.Certificate = entity.Certificate(certificate)
	res.Duration = time.Duration(durationMS) * time.Millisecond
	if err := json.Unmarshal([]byte(violations), &res.Violations); err != nil {
		return nil, fmt.Errorf("decode violations: %w", err)
	}
	if err := json.Unmarshal([]byte(summary), &res.Summary); err != nil {
		return nil, fmt.Errorf("decode summary: %w", err)
	}
	if err := json.Unmarshal([]byte(chain), &res.RedirectChain); err != nil {
		return nil, fmt.Errorf("decode redirect chain: %w", err)
	}
	if page != "" {
		res.Page = &entity.PageFacts{}
		if err := json.Unmarshal([]byte(page), res.Page); err != nil {
			return nil, fmt.Errorf("decode page facts: %w", err)
		}
	}
	return &res, nil
}
