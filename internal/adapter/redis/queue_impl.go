package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/user/a11y-audit-service/internal/entity"
	"github.com/user/a11y-audit-service/internal/repository"
)

const jobQueueKey = "a11y:jobs"

// JobQueueRepoImpl is a FIFO of audit jobs on a Redis list.
type JobQueueRepoImpl struct {
	client *redis.Client
}

func NewJobQueueRepo(client *redis.Client) *JobQueueRepoImpl {
	return &JobQueueRepoImpl{client: client}
}

// Push adds a job to the left side of the list.
func (r *JobQueueRepoImpl) Push(ctx context.Context, job *entity.AuditJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := r.client.LPush(ctx, jobQueueKey, payload).Err(); err != nil {
		return fmt.Errorf("%w: push job %s: %v", repository.ErrPersistenceIO, job.ID, err)
	}
	return nil
}

// Pop removes a job from the right side of the list, so jobs come out in push order.
func (r *JobQueueRepoImpl) Pop(ctx context.Context) (*entity.AuditJob, error) {
	payload, err := r.client.RPop(ctx, jobQueueKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, repository.ErrQueueEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("%w: pop job: %v", repository.ErrPersistenceIO, err)
	}
	var job entity.AuditJob
	if err := json.Unmarshal(payload, &job); err != nil {
		return nil, fmt.Errorf("decode job: %w", err)
	}
	return &job, nil
}

// Size returns the current number of queued jobs.
func (r *JobQueueRepoImpl) Size(ctx context.Context) (int64, error) {
	n, err := r.client.LLen(ctx, jobQueueKey).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: queue size: %v", repository.ErrPersistenceIO, err)
	}
	return n, nil
}
