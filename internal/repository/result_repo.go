package repository

import (
	"context"

	"github.com/user/a11y-audit-service/internal/entity"
)

// ResultRepository stores per-page audit results.
type ResultRepository interface {
	// Save stores the result for a URL. If the URL already exists, it is replaced.
	Save(ctx context.Context, result *entity.AuditResult) error
	// FindByURL returns ErrResultNotFound when the URL was never audited.
	FindByURL(ctx context.Context, url string) (*entity.AuditResult, error)
}
