package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/user/a11y-audit-service/internal/entity"
	"github.com/user/a11y-audit-service/internal/repository"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestStateRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewStateRepo(openTestDB(t))

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	urls := []string{"https://example.com/", "https://example.com/a", "https://example.com/b"}
	state := entity.NewQueueState("state-1", urls[0], entity.LevelAA, urls, now)
	require.NoError(t, repo.Save(ctx, state))

	state.Set(urls[0], entity.URLPassed, now.Add(time.Minute))
	state.Set(urls[1], entity.URLCrashed, now.Add(2*time.Minute))
	require.NoError(t, repo.Save(ctx, state))

	got, err := repo.Load(ctx, "state-1")
	require.NoError(t, err)
	assert.Equal(t, state.ID, got.ID)
	assert.Equal(t, state.Homepage, got.Homepage)
	assert.Equal(t, entity.LevelAA, got.Level)
	assert.Equal(t, 3, got.Total)
	assert.Equal(t, 2, got.Processed)
	assert.Equal(t, urls, got.Order)
	assert.Equal(t, state.URLs, got.URLs)
	assert.True(t, now.Equal(got.CreatedAt), "created_at %v", got.CreatedAt)
	assert.True(t, now.Add(2*time.Minute).Equal(got.UpdatedAt), "updated_at %v", got.UpdatedAt)
	assert.Equal(t, []string{urls[2]}, got.Pending())
	assert.Nil(t, got.Sampling)
}

func TestStateSamplingRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewStateRepo(openTestDB(t))

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	state := entity.NewQueueState("sampled", "https://example.com/", entity.LevelA, []string{"https://example.com/"}, now)
	state.Sampling = &entity.Sampling{Target: 3, Selected: 1, Candidates: []string{"https://example.com/b", "https://example.com/c"}}
	require.NoError(t, repo.Save(ctx, state))

	got, err := repo.Load(ctx, "sampled")
	require.NoError(t, err)
	assert.Equal(t, state.Sampling, got.Sampling)

	state.Sampling.Selected = 3
	state.Sampling.Candidates = nil
	require.NoError(t, repo.Save(ctx, state))
	got, err = repo.Load(ctx, "sampled")
	require.NoError(t, err)
	assert.Equal(t, 3, got.Sampling.Selected)
	assert.False(t, got.Sampling.Open())
}

func TestStateLoadUnknown(t *testing.T) {
	_, err := NewStateRepo(openTestDB(t)).Load(context.Background(), "missing")
	assert.ErrorIs(t, err, repository.ErrStateNotFound)
}

func TestStateList(t *testing.T) {
	ctx := context.Background()
	repo := NewStateRepo(openTestDB(t))

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	older := entity.NewQueueState("older", "", entity.LevelA, []string{"https://a.test/"}, base)
	older.Set("https://a.test/", entity.URLFailed, base)
	newer := entity.NewQueueState("newer", "", entity.LevelAA, []string{"https://b.test/", "https://b.test/x"}, base.Add(time.Hour))
	newer.Set("https://b.test/x", entity.URLSkippedRedirect, base.Add(time.Hour))
	require.NoError(t, repo.Save(ctx, older))
	require.NoError(t, repo.Save(ctx, newer))

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "newer", list[0].ID)
	assert.Equal(t, 2, list[0].Total)
	assert.Equal(t, 1, list[0].Skipped)
	assert.Equal(t, 1, list[0].Pending)
	assert.Equal(t, "older", list[1].ID)
	assert.Equal(t, 1, list[1].Failed)
	assert.Equal(t, 1, list[1].Processed)
}

func TestResultRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewResultRepo(openTestDB(t))

	_, err := repo.FindByURL(ctx, "https://example.com/")
	assert.ErrorIs(t, err, repository.ErrResultNotFound)

	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	res := &entity.AuditResult{
		URL:        "https://example.com/",
		FinalURL:   "https://example.com/",
		Homepage:   true,
		Level:      entity.LevelAA,
		Status:     entity.AuditFailed,
		Duration:   1500 * time.Millisecond,
		NodeCount:  42,
		Violations: []entity.Violation{{Kind: entity.KindNoHeadings, Rule: "2.4.6", Level: entity.LevelAA, Severity: entity.SeverityMinor, NodeID: entity.NoNode}},
		Summary: entity.ViolationSummary{
			Total:       1,
			BySeverity:  map[entity.Severity]int{entity.SeverityMinor: 1},
			ByPrinciple: map[string]int{"operable": 1},
		},
		Score:         99,
		Grade:         entity.GradeA,
		Certificate:   entity.CertificatePlatinum,
		Attempts:      1,
		RedirectChain: []int{200},
		Page:          &entity.PageFacts{Title: "Example", Language: "en", Links: 3},
		StartedAt:     started,
		FinishedAt:    started.Add(1500 * time.Millisecond),
	}
	require.NoError(t, repo.Save(ctx, res))

	res.Score = 97.5
	require.NoError(t, repo.Save(ctx, res))

	got, err := repo.FindByURL(ctx, res.URL)
	require.NoError(t, err)
	assert.Equal(t, 97.5, got.Score)
	assert.Equal(t, res.Violations, got.Violations)
	assert.Equal(t, res.Summary, got.Summary)
	assert.Equal(t, res.Duration, got.Duration)
	assert.Equal(t, res.RedirectChain, got.RedirectChain)
	assert.True(t, got.Homepage)
	assert.Equal(t, res.Page, got.Page)
	assert.True(t, res.FinishedAt.Equal(got.FinishedAt))

	crashed := &entity.AuditResult{URL: "https://example.com/down", Level: entity.LevelA, Status: entity.AuditCrashed, StartedAt: started, FinishedAt: started}
	require.NoError(t, repo.Save(ctx, crashed))
	got, err = repo.FindByURL(ctx, crashed.URL)
	require.NoError(t, err)
	assert.Nil(t, got.Page)
}
