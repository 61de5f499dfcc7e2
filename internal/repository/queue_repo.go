package repository

import (
	"context"

	"github.com/user/a11y-audit-service/internal/entity"
)

// JobQueueRepository is a FIFO queue of submitted audit jobs.
type JobQueueRepository interface {
	// Push adds a job to the end of the queue.
	Push(ctx context.Context, job *entity.AuditJob) error
	// Pop removes the job at the front of the queue, or returns ErrQueueEmpty.
	Pop(ctx context.Context) (*entity.AuditJob, error)
	// Size returns the current number of queued jobs.
	Size(ctx context.Context) (int64, error)
}
