package usecase

import (
	"context"
	"fmt"

	"github.com/user/a11y-audit-service/internal/entity"
	"github.com/user/a11y-audit-service/internal/repository"
)

// StateBrowser reads persisted queue states without resuming them.
type StateBrowser struct {
	states repository.StateRepository
}

func NewStateBrowser(states repository.StateRepository) *StateBrowser {
	return &StateBrowser{states: states}
}

func (sb *StateBrowser) List(ctx context.Context) ([]entity.StateSummary, error) {
	summaries, err := sb.states.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list states: %w", err)
	}
	return summaries, nil
}

// Show returns repository.ErrStateNotFound (wrapped) for unknown ids.
func (sb *StateBrowser) Show(ctx context.Context, id string) (*entity.QueueState, error) {
	state, err := sb.states.Load(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load state %s: %w", id, err)
	}
	return state, nil
}
