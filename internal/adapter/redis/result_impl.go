package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/user/a11y-audit-service/internal/entity"
	"github.com/user/a11y-audit-service/internal/repository"
	"github.com/user/a11y-audit-service/pkg/utils"
)

const resultKeyPrefix = "a11y:result:"

// ResultRepoImpl stores each AuditResult as a JSON string keyed by the hash
// of its URL.
type ResultRepoImpl struct {
	client *redis.Client
}

func NewResultRepo(client *redis.Client) *ResultRepoImpl {
	return &ResultRepoImpl{client: client}
}

func resultKey(url string) string { return resultKeyPrefix + utils.HashURL(url) }

func (r *ResultRepoImpl) Save(ctx context.Context, res *entity.AuditResult) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	if err := r.client.Set(ctx, resultKey(res.URL), data, 0).Err(); err != nil {
		return fmt.Errorf("%w: save result %s: %v", repository.ErrPersistenceIO, res.URL, err)
	}
	return nil
}

func (r *ResultRepoImpl) FindByURL(ctx context.Context, url string) (*entity.AuditResult, error) {
	data, err := r.client.Get(ctx, resultKey(url)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", repository.ErrResultNotFound, url)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: find result %s: %v", repository.ErrPersistenceIO, url, err)
	}
	var res entity.AuditResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("%w: result %s: %v", repository.ErrPersistenceIO, url, err)
	}
	return &res, nil
}
