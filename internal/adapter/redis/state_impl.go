package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/user/a11y-audit-service/internal/entity"
	"github.com/user/a11y-audit-service/internal/repository"
)

const (
	stateKeyPrefix = "a11y:state:"
	// stateIndexKey is a sorted set of state ids scored by last update.
	stateIndexKey = "a11y:states"
)

// StateRepoImpl keeps each QueueState in two hashes: one for the header and
// one mapping URL to status.
type StateRepoImpl struct {
	client *redis.Client
}

func NewStateRepo(client *redis.Client) *StateRepoImpl {
	return &StateRepoImpl{client: client}
}

func metaKey(id string) string { return stateKeyPrefix + id + ":meta" }
func urlsKey(id string) string { return stateKeyPrefix + id + ":urls" }

// Save replaces the stored state inside MULTI/EXEC.
func (r *StateRepoImpl) Save(ctx context.Context, state *entity.QueueState) error {
	order, err := json.Marshal(state.Order)
	if err != nil {
		return fmt.Errorf("marshal order: %w", err)
	}
	sampling := ""
	if state.Sampling != nil {
		b, err := json.Marshal(state.Sampling)
		if err != nil {
			return fmt.Errorf("marshal sampling: %w", err)
		}
		sampling = string(b)
	}
	urls := make(map[string]any, len(state.URLs))
	for u, st := range state.URLs {
		urls[u] = string(st)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, metaKey(state.ID), map[string]any{
			"id":         state.ID,
			"homepage":   state.Homepage,
			"level":      state.Level.String(),
			"total":      state.Total,
			"processed":  state.Processed,
			"order":      string(order),
			"sampling":   sampling,
			"created_at": state.CreatedAt.UTC().Format(time.RFC3339Nano),
			"updated_at": state.UpdatedAt.UTC().Format(time.RFC3339Nano),
		})
		pipe.Del(ctx, urlsKey(state.ID))
		if len(urls) > 0 {
			pipe.HSet(ctx, urlsKey(state.ID), urls)
		}
		pipe.ZAdd(ctx, stateIndexKey, redis.Z{Score: float64(state.UpdatedAt.UnixMilli()), Member: state.ID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: save state %s: %v", repository.ErrPersistenceIO, state.ID, err)
	}
	return nil
}

func (r *StateRepoImpl) Load(ctx context.Context, id string) (*entity.QueueState, error) {
	var metaCmd, urlsCmd *redis.MapStringStringCmd
	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		metaCmd = pipe.HGetAll(ctx, metaKey(id))
		urlsCmd = pipe.HGetAll(ctx, urlsKey(id))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: load state %s: %v", repository.ErrPersistenceIO, id, err)
	}
	meta := metaCmd.Val()
	if len(meta) == 0 {
		return nil, fmt.Errorf("%w: %s", repository.ErrStateNotFound, id)
	}

	state, err := decodeMeta(meta)
	if err != nil {
		return nil, fmt.Errorf("%w: state %s: %v", repository.ErrPersistenceIO, id, err)
	}
	state.URLs = make(map[string]entity.URLStatus, len(urlsCmd.Val()))
	for u, st := range urlsCmd.Val() {
		state.URLs[u] = entity.URLStatus(st)
	}
	return state, nil
}

func decodeMeta(meta map[string]string) (*entity.QueueState, error) {
	state := &entity.QueueState{ID: meta["id"], Homepage: meta["homepage"]}
	var err error
	if state.Level, err = entity.ParseLevel(meta["level"]); err != nil {
		return nil, err
	}
	if state.Total, err = strconv.Atoi(meta["total"]); err != nil {
		return nil, fmt.Errorf("total: %w", err)
	}
	if state.Processed, err = strconv.Atoi(meta["processed"]); err != nil {
		return nil, fmt.Errorf("processed: %w", err)
	}
	if err := json.Unmarshal([]byte(meta["order"]), &state.Order); err != nil {
		return nil, fmt.Errorf("order: %w", err)
	}
	if raw := meta["sampling"]; raw != "" {
		state.Sampling = &entity.Sampling{}
		if err := json.Unmarshal([]byte(raw), state.Sampling); err != nil {
			return nil, fmt.Errorf("sampling: %w", err)
		}
	}
	if state.CreatedAt, err = time.Parse(time.RFC3339Nano, meta["created_at"]); err != nil {
		return nil, fmt.Errorf("created_at: %w", err)
	}
	if state.UpdatedAt, err = time.Parse(time.RFC3339Nano, meta["updated_at"]); err != nil {
		return nil, fmt.Errorf("updated_at: %w", err)
	}
	return state, nil
}

// List returns summaries, most recently updated first.
func (r *StateRepoImpl) List(ctx context.Context) ([]entity.StateSummary, error) {
	ids, err := r.client.ZRevRange(ctx, stateIndexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: list states: %v", repository.ErrPersistenceIO, err)
	}
	out := make([]entity.StateSummary, 0, len(ids))
	for _, id := range ids {
		state, err := r.Load(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, state.Summary())
	}
	return out, nil
}
