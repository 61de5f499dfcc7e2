package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/user/a11y-audit-service/internal/entity"
	"github.com/user/a11y-audit-service/internal/repository"
)

// ResultRepoImpl implements repository.ResultRepository on PostgreSQL.
type ResultRepoImpl struct {
	db *pgxpool.Pool
}

func NewResultRepo(db *pgxpool.Pool) *ResultRepoImpl {
	return &ResultRepoImpl{db: db}
}

// Save stores or updates the result for a URL.
func (r *ResultRepoImpl) Save(ctx context.Context, res *entity.AuditResult) error {
	violationsJSON, err := json.Marshal(res.Violations)
	if err != nil {
		return err
	}
	summaryJSON, err := json.Marshal(res.Summary)
	if err != nil {
		return err
	}
	chain := res.RedirectChain
	if chain == nil {
		chain = []int{}
	}

	query := `
		INSERT INTO audit_results (url, final_url, homepage, level, status, duration_ms, node_count, score, grade,
			certificate, attempts, error, violations, summary, redirect_chain, page, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (url) DO UPDATE SET
			final_url = EXCLUDED.final_url,
			homepage = EXCLUDED.homepage,
			level = EXCLUDED.level,
			status = EXCLUDED.status,
			duration_ms = EXCLUDED.duration_ms,
			node_count = EXCLUDED.node_count,
			score = EXCLUDED.score,
			grade = EXCLUDED.grade,
			certificate = EXCLUDED.certificate,
			attempts = EXCLUDED.attempts,
			error = EXCLUDED.error,
			violations = EXCLUDED.violations,
			summary = EXCLUDED.summary,
			redirect_chain = EXCLUDED.redirect_chain,
			page = EXCLUDED.page,
			started_at = EXCLUDED.started_at,
			finished_at = EXCLUDED.finished_at;
	`
	_, err = r.db.Exec(ctx, query,
		res.URL,
		res.FinalURL,
		res.Homepage,
		res.Level.String(),
		string(res.Status),
		res.Duration.Milliseconds(),
		res.NodeCount,
		res.Score,
		string(res.Grade),
		string(res.Certificate),
		res.Attempts,
		res.Error,
		violationsJSON,
		summaryJSON,
		chain,
		res.Page,
		res.StartedAt,
		res.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("%w: save result %s: %v", repository.ErrPersistenceIO, res.URL, err)
	}
	return nil
}

// FindByURL retrieves the stored result for a URL.
func (r *ResultRepoImpl) FindByURL(ctx context.Context, url string) (*entity.AuditResult, error) {
	query := `
		SELECT url, final_url, homepage, level, status, duration_ms, node_count, score, grade, certificate,
			attempts, error, violations, summary, redirect_chain, page, started_at, finished_at
		FROM audit_results
		WHERE url = $1;
	`
	var (
		res                         entity.AuditResult
		level, status               string
		grade, certificate          string
		durationMS                  int64
		violationsJSON, summaryJSON []byte
	)
	err := r.db.QueryRow(ctx, query, url).Scan(
		&res.URL,
		&res.FinalURL,
		&res.Homepage,
		&level,
		&status,
		&durationMS,
		&res.NodeCount,
		&res.Score,
		&grade,
		&certificate,
		&res.Attempts,
		&res.Error,
		&violationsJSON,
		&summaryJSON,
		&res.RedirectChain,
		&res.Page,
		&res.StartedAt,
		&res.FinishedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
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
	if err := json.Unmarshal(violationsJSON, &res.Violations); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(summaryJSON, &res.Summary); err != nil {
		return nil, err
	}
	return &res, nil
}
