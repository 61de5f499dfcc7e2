package repository

import (
	"context"

	"github.com/user/a11y-audit-service/internal/entity"
)

// StateRepository persists resumable batch progress keyed by state ID.
type StateRepository interface {
	// Save upserts the whole state atomically.
	Save(ctx context.Context, state *entity.QueueState) error
	// Load returns ErrStateNotFound for unknown IDs.
	Load(ctx context.Context, id string) (*entity.QueueState, error)
	// List enumerates summaries of every stored state, newest first.
	List(ctx context.Context) ([]entity.StateSummary, error)
}
