package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/user/a11y-audit-service/internal/entity"
	"github.com/user/a11y-audit-service/internal/repository"
)

func TestRunRecordsCrashAfterRetries(t *testing.T) {
	urls := []string{
		"https://shop.test/",
		"https://shop.test/a",
		"https://shop.test/slow",
		"https://shop.test/b",
		"https://shop.test/c",
	}
	site := newFakeSite(map[string]page{
		"https://shop.test/slow": {navErr: fmt.Errorf("%w: https://shop.test/slow", repository.ErrNavigationTimeout)},
	})
	pool := &fakePool{site: site}
	o := newTestOrchestrator(t, pool, WithConcurrency(2), WithMaxRetries(2))

	report, err := o.Run(context.Background(), RunRequest{URLs: urls})
	require.NoError(t, err)

	assert.Equal(t, entity.BatchSummary{Total: 5, Passed: 4, Crashed: 1}, report.Summary)
	assert.Equal(t, 1, report.Summary.ExitCode())
	require.Len(t, report.Results, 5)

	slow := resultsByURL(report.Results)["https://shop.test/slow"]
	require.NotNil(t, slow)
	assert.Equal(t, entity.AuditCrashed, slow.Status)
	assert.Equal(t, 3, slow.Attempts)
	assert.Empty(t, slow.Violations)
	assert.Contains(t, slow.Error, "navigation timed out")
	assert.Equal(t, 3, site.navigated("https://shop.test/slow"))

	for _, u := range urls {
		if u != "https://shop.test/slow" {
			assert.Equal(t, 1, site.navigated(u), u)
		}
	}
	assert.LessOrEqual(t, int(pool.peak.Load()), 2)
	assert.Equal(t, int32(0), pool.inUse.Load())
}

func TestRunScoresNonCompliantPageAsFailed(t *testing.T) {
	site := newFakeSite(map[string]page{
		"https://shop.test/bare": {nodes: bareTextPage()},
	})
	o := newTestOrchestrator(t, &fakePool{site: site})

	report, err := o.Run(context.Background(), RunRequest{URLs: []string{"https://shop.test/bare"}, Level: entity.LevelAA})
	require.NoError(t, err)
	require.Len(t, report.Results, 1)

	r := report.Results[0]
	assert.Equal(t, entity.AuditFailed, r.Status)
	assert.InDelta(t, 66.5, r.Score, 1e-9)
	assert.Equal(t, entity.GradeD, r.Grade)
	assert.Equal(t, entity.CertificateBronze, r.Certificate)
	assert.Equal(t, 2, r.Summary.Total)
	assert.Equal(t, 3, r.NodeCount)

	// Failing rules is not a process failure.
	assert.Equal(t, 0, report.Summary.ExitCode())
}

func TestExtractionFailureCrashesWithoutRetry(t *testing.T) {
	site := newFakeSite(map[string]page{
		"https://shop.test/broken": {extractErr: fmt.Errorf("%w: target closed", repository.ErrExtractionFailed)},
	})
	o := newTestOrchestrator(t, &fakePool{site: site}, WithMaxRetries(3))

	report, err := o.Run(context.Background(), RunRequest{URLs: []string{"https://shop.test/broken"}})
	require.NoError(t, err)
	require.Len(t, report.Results, 1)

	r := report.Results[0]
	assert.Equal(t, entity.AuditCrashed, r.Status)
	assert.Equal(t, 1, r.Attempts)
	assert.NotNil(t, r.Violations)
	assert.Empty(t, r.Violations)
	assert.Equal(t, entity.GradeF, r.Grade)
	assert.Equal(t, 1, site.navigated("https://shop.test/broken"))
}

func TestPoolExhaustionIsRetried(t *testing.T) {
	site := newFakeSite(nil)
	pool := &fakePool{site: site, acquireErrs: []error{repository.ErrPoolExhausted}}
	o := newTestOrchestrator(t, pool, WithMaxRetries(1))

	report, err := o.Run(context.Background(), RunRequest{URLs: []string{"https://shop.test/"}})
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	assert.Equal(t, entity.AuditPassed, report.Results[0].Status)
	assert.Equal(t, 2, report.Results[0].Attempts)
}

func TestBrowserLaunchFailureCrashes(t *testing.T) {
	pool := &fakePool{site: newFakeSite(nil), acquireErrs: []error{fmt.Errorf("%w: no chrome", repository.ErrBrowserLaunch)}}
	o := newTestOrchestrator(t, pool)

	report, err := o.Run(context.Background(), RunRequest{URLs: []string{"https://shop.test/"}})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Summary.Crashed)
}

func TestRunMarksHomepageAndAuditsItFirst(t *testing.T) {
	site := newFakeSite(nil)
	o := newTestOrchestrator(t, &fakePool{site: site}, WithConcurrency(1))

	report, err := o.Run(context.Background(), RunRequest{
		URLs:     []string{"https://shop.test/a", "https://shop.test/"},
		Homepage: "https://shop.test/",
	})
	require.NoError(t, err)
	require.Len(t, report.Results, 2)
	assert.Equal(t, "https://shop.test/", report.Results[0].URL)
	assert.True(t, report.Results[0].Homepage)
	assert.False(t, report.Results[1].Homepage)
	assert.Equal(t, 1, site.navigated("https://shop.test/"))
}

func TestRunRejectsEmptyBatch(t *testing.T) {
	o := newTestOrchestrator(t, &fakePool{site: newFakeSite(nil)})
	_, err := o.Run(context.Background(), RunRequest{})
	assert.ErrorIs(t, err, ErrEmptyBatch)
}

func TestSampleSkipsRealRedirectsOnly(t *testing.T) {
	site := newFakeSite(map[string]page{
		"https://shop.test/":      {finalURL: "https://shop.test/en/", chain: []int{302, 200}},
		"https://shop.test/old":   {finalURL: "https://shop.test/new", chain: []int{301, 200}},
		"https://shop.test/same":  {finalURL: "https://shop.test/same", chain: []int{307, 200}},
		"https://shop.test/about": {},
		"https://shop.test/extra": {},
	})
	states := newMemStates()
	o := newTestOrchestrator(t, &fakePool{site: site}, WithConcurrency(2), WithStateRepository(states))

	report, err := o.Sample(context.Background(), SampleRequest{
		Candidates: []string{"https://shop.test/old", "https://shop.test/same", "https://shop.test/about", "https://shop.test/extra"},
		Homepage:   "https://shop.test/",
		Target:     3,
		StateID:    "sample-1",
	})
	require.NoError(t, err)

	byURL := resultsByURL(report.Results)
	require.Contains(t, byURL, "https://shop.test/")
	home := byURL["https://shop.test/"]
	assert.Equal(t, entity.AuditPassed, home.Status)
	assert.True(t, home.Homepage)
	assert.Equal(t, "https://shop.test/en/", home.FinalURL)

	assert.Equal(t, entity.AuditSkippedRedirect, byURL["https://shop.test/old"].Status)
	assert.Equal(t, "https://shop.test/new", byURL["https://shop.test/old"].FinalURL)
	assert.Equal(t, entity.AuditPassed, byURL["https://shop.test/same"].Status)
	assert.Equal(t, entity.AuditPassed, byURL["https://shop.test/about"].Status)
	assert.NotContains(t, byURL, "https://shop.test/extra")

	assert.Equal(t, 0, site.navigated("https://shop.test/extra"))
	assert.Equal(t, 0, site.extracted("https://shop.test/old"))
	// Probe plus full audit.
	assert.Equal(t, 2, site.navigated("https://shop.test/same"))

	assert.Equal(t, entity.BatchSummary{Total: 4, Passed: 3, Skipped: 1}, report.Summary)

	saved, err := states.Load(context.Background(), "sample-1")
	require.NoError(t, err)
	assert.Equal(t, entity.URLSkippedRedirect, saved.URLs["https://shop.test/old"])
	assert.Equal(t, []string{"https://shop.test/", "https://shop.test/old", "https://shop.test/same", "https://shop.test/about"}, saved.Order)
}

func TestSampleRecordsProbeCrash(t *testing.T) {
	site := newFakeSite(map[string]page{
		"https://shop.test/down": {navErr: fmt.Errorf("%w: connection refused", repository.ErrNavigationFailed)},
	})
	o := newTestOrchestrator(t, &fakePool{site: site}, WithMaxRetries(1))

	report, err := o.Sample(context.Background(), SampleRequest{
		Candidates: []string{"https://shop.test/down", "https://shop.test/up"},
		Target:     1,
	})
	require.NoError(t, err)
	byURL := resultsByURL(report.Results)
	assert.Equal(t, entity.AuditCrashed, byURL["https://shop.test/down"].Status)
	assert.Equal(t, 2, byURL["https://shop.test/down"].Attempts)
	assert.Equal(t, entity.AuditPassed, byURL["https://shop.test/up"].Status)
	assert.Equal(t, 1, report.Summary.ExitCode())
}

func TestResumeIsIdempotent(t *testing.T) {
	site := newFakeSite(nil)
	states := newMemStates()
	o := newTestOrchestrator(t, &fakePool{site: site}, WithStateRepository(states))
	urls := []string{"https://shop.test/", "https://shop.test/a", "https://shop.test/b"}

	first, err := o.Run(context.Background(), RunRequest{URLs: urls, StateID: "batch-1"})
	require.NoError(t, err)

	second, err := o.Resume(context.Background(), "batch-1", 0)
	require.NoError(t, err)
	assert.Empty(t, second.Results)
	assert.Equal(t, first.Summary, second.Summary)
	for _, u := range urls {
		assert.Equal(t, 1, site.navigated(u))
	}
}

func TestResumeRunsOnlyUnfinishedURLs(t *testing.T) {
	site := newFakeSite(nil)
	states := newMemStates()
	now := time.Now()
	st := entity.NewQueueState("batch-2", "", entity.LevelAA, []string{
		"https://shop.test/done", "https://shop.test/interrupted", "https://shop.test/todo",
	}, now)
	st.Set("https://shop.test/done", entity.URLFailed, now)
	st.Set("https://shop.test/interrupted", entity.URLInProgress, now)
	require.NoError(t, states.Save(context.Background(), st))

	o := newTestOrchestrator(t, &fakePool{site: site}, WithStateRepository(states))
	report, err := o.Resume(context.Background(), "batch-2", 0)
	require.NoError(t, err)

	assert.Len(t, report.Results, 2)
	assert.Equal(t, 0, site.navigated("https://shop.test/done"))
	assert.Equal(t, 1, site.navigated("https://shop.test/interrupted"))
	assert.Equal(t, entity.BatchSummary{Total: 3, Passed: 2, Failed: 1}, report.Summary)

	saved, err := states.Load(context.Background(), "batch-2")
	require.NoError(t, err)
	assert.Equal(t, 3, saved.Processed)
	assert.Empty(t, saved.Pending())
}

func TestResumeUnknownState(t *testing.T) {
	o := newTestOrchestrator(t, &fakePool{site: newFakeSite(nil)}, WithStateRepository(newMemStates()))
	_, err := o.Resume(context.Background(), "missing", 0)
	assert.ErrorIs(t, err, repository.ErrStateNotFound)

	o = newTestOrchestrator(t, &fakePool{site: newFakeSite(nil)})
	_, err = o.Resume(context.Background(), "missing", 0)
	assert.ErrorIs(t, err, ErrPersistenceDisabled)
}

func TestCancellationLeavesResumableState(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	blocking := func(ctx context.Context) error {
		cancel()
		<-ctx.Done()
		return ctx.Err()
	}
	site := newFakeSite(map[string]page{
		"https://shop.test/hang": {onNavigate: blocking},
	})
	states := newMemStates()
	pool := &fakePool{site: site}
	o := newTestOrchestrator(t, pool, WithConcurrency(1), WithStateRepository(states))
	urls := []string{"https://shop.test/", "https://shop.test/hang", "https://shop.test/later"}

	report, err := o.Run(ctx, RunRequest{URLs: urls, StateID: "batch-3"})
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)
	assert.Len(t, report.Results, 1)
	assert.Equal(t, int32(0), pool.inUse.Load())

	saved, err := states.Load(context.Background(), "batch-3")
	require.NoError(t, err)
	assert.Equal(t, entity.URLPassed, saved.URLs["https://shop.test/"])
	assert.Equal(t, entity.URLPending, saved.URLs["https://shop.test/hang"])
	assert.Equal(t, entity.URLPending, saved.URLs["https://shop.test/later"])

	site.mu.Lock()
	site.pages["https://shop.test/hang"] = page{}
	site.mu.Unlock()

	resumed, err := o.Resume(context.Background(), "batch-3", 0)
	require.NoError(t, err)
	assert.Equal(t, entity.BatchSummary{Total: 3, Passed: 3}, resumed.Summary)
	assert.Equal(t, 1, site.navigated("https://shop.test/"))
	assert.Equal(t, 1, site.navigated("https://shop.test/later"))
}

func TestPersistenceErrorIsReturnedWithoutAbortingAudits(t *testing.T) {
	states := newMemStates()
	states.fail = fmt.Errorf("%w: disk full", repository.ErrPersistenceIO)
	o := newTestOrchestrator(t, &fakePool{site: newFakeSite(nil)}, WithStateRepository(states))

	report, err := o.Run(context.Background(), RunRequest{URLs: []string{"https://shop.test/", "https://shop.test/a"}})
	assert.ErrorIs(t, err, repository.ErrPersistenceIO)
	require.NotNil(t, report)
	assert.Equal(t, 2, report.Summary.Passed)
}

func TestResultsAreSavedAndProgressReported(t *testing.T) {
	results := &memResults{}
	events := make(chan ProgressEvent, 64)
	o := newTestOrchestrator(t, &fakePool{site: newFakeSite(nil)}, WithConcurrency(1), WithResultRepository(results), WithProgress(events))

	_, err := o.Run(context.Background(), RunRequest{URLs: []string{"https://shop.test/", "https://shop.test/a"}, StateID: "batch-4"})
	require.NoError(t, err)
	close(events)

	r, err := results.FindByURL(context.Background(), "https://shop.test/a")
	require.NoError(t, err)
	assert.Equal(t, entity.AuditPassed, r.Status)

	final := map[string]ProgressEvent{}
	var last ProgressEvent
	for ev := range events {
		assert.Equal(t, "batch-4", ev.StateID)
		assert.Equal(t, 2, ev.Total)
		final[ev.URL] = ev
		last = ev
	}
	assert.Equal(t, entity.URLPassed, final["https://shop.test/"].Status)
	assert.Equal(t, entity.URLPassed, final["https://shop.test/a"].Status)
	assert.Equal(t, 100.0, final["https://shop.test/a"].Score)
	assert.Equal(t, 2, last.Processed)
}

func TestRateLimitSpacesNavigations(t *testing.T) {
	o := newTestOrchestrator(t, &fakePool{site: newFakeSite(nil)}, WithConcurrency(3), WithRateLimit(20))

	start := time.Now()
	_, err := o.Run(context.Background(), RunRequest{URLs: []string{"https://shop.test/1", "https://shop.test/2", "https://shop.test/3"}})
	require.NoError(t, err)
	// Burst of one, then 50ms per token.
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}

func TestAuditorClassifiesNavigationErrors(t *testing.T) {
	a := newAuditor()
	site := newFakeSite(map[string]page{
		"https://shop.test/timeout": {navErr: repository.ErrNavigationTimeout},
		"https://shop.test/bad":     {navErr: errors.New("net::ERR_INVALID_URL")},
	})
	s := &fakeSession{site: site}

	out := a.Audit(context.Background(), s, "https://shop.test/timeout", entity.LevelAA, time.Second)
	assert.Equal(t, OutcomeRetry, out.Kind)
	assert.Nil(t, out.Result)

	out = a.Audit(context.Background(), s, "https://shop.test/bad", entity.LevelAA, time.Second)
	assert.Equal(t, OutcomeFatal, out.Kind)
	require.NotNil(t, out.Result)
	assert.Equal(t, entity.AuditCrashed, out.Result.Status)

	out = a.Audit(context.Background(), s, "https://shop.test/ok", entity.LevelAAA, time.Second)
	assert.Equal(t, OutcomeOk, out.Kind)
	assert.Equal(t, entity.AuditPassed, out.Result.Status)
	assert.Equal(t, 100.0, out.Result.Score)
	assert.Equal(t, entity.CertificatePlatinum, out.Result.Certificate)
	require.NotNil(t, out.Result.Page)
	assert.Equal(t, "Pricing - Example", out.Result.Page.Title)
	assert.Equal(t, 2, out.Result.Page.Headings)
}

func blockUntilDone(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestPageTimeoutCoversExtraction(t *testing.T) {
	site := newFakeSite(map[string]page{
		"https://shop.test/stuck": {onExtract: blockUntilDone},
	})
	o := newTestOrchestrator(t, &fakePool{site: site}, WithPageTimeout(100*time.Millisecond), WithMaxRetries(1))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	start := time.Now()
	report, err := o.Run(ctx, RunRequest{URLs: []string{"https://shop.test/stuck", "https://shop.test/fine"}})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)

	byURL := resultsByURL(report.Results)
	stuck := byURL["https://shop.test/stuck"]
	require.NotNil(t, stuck)
	assert.Equal(t, entity.AuditCrashed, stuck.Status)
	assert.Equal(t, 2, stuck.Attempts)
	assert.Contains(t, stuck.Error, "not audited within")
	assert.Equal(t, 2, site.extracted("https://shop.test/stuck"))
	assert.Equal(t, entity.AuditPassed, byURL["https://shop.test/fine"].Status)
	assert.Equal(t, 1, report.Summary.Crashed)
}

func TestAuditorSeparatesPageDeadlineFromCancellation(t *testing.T) {
	a := newAuditor()
	site := newFakeSite(map[string]page{
		"https://shop.test/stuck": {onExtract: blockUntilDone},
	})
	s := &fakeSession{site: site}

	out := a.Audit(context.Background(), s, "https://shop.test/stuck", entity.LevelAA, 50*time.Millisecond)
	assert.Equal(t, OutcomeRetry, out.Kind)
	assert.ErrorIs(t, out.Err, repository.ErrNavigationTimeout)

	ctx, cancel := context.WithCancel(context.Background())
	site.mu.Lock()
	site.pages["https://shop.test/stuck"] = page{onExtract: func(ctx context.Context) error {
		cancel()
		return blockUntilDone(ctx)
	}}
	site.mu.Unlock()
	out = a.Audit(ctx, s, "https://shop.test/stuck", entity.LevelAA, time.Minute)
	assert.Equal(t, OutcomeRetry, out.Kind)
	assert.ErrorIs(t, out.Err, context.Canceled)
	assert.NotErrorIs(t, out.Err, repository.ErrNavigationTimeout)
}

func TestResumeFinishesInterruptedSample(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	site := newFakeSite(map[string]page{
		"https://shop.test/b": {onNavigate: func(ctx context.Context) error {
			cancel()
			return blockUntilDone(ctx)
		}},
	})
	states := newMemStates()
	o := newTestOrchestrator(t, &fakePool{site: site}, WithConcurrency(1), WithStateRepository(states))

	_, err := o.Sample(ctx, SampleRequest{
		Candidates: []string{"https://shop.test/a", "https://shop.test/b", "https://shop.test/c", "https://shop.test/d"},
		Target:     3,
		StateID:    "sample-2",
	})
	assert.ErrorIs(t, err, context.Canceled)

	saved, err := states.Load(context.Background(), "sample-2")
	require.NoError(t, err)
	require.NotNil(t, saved.Sampling)
	assert.Equal(t, 3, saved.Sampling.Target)
	assert.Equal(t, 1, saved.Sampling.Selected)
	assert.Equal(t, []string{"https://shop.test/b", "https://shop.test/c", "https://shop.test/d"}, saved.Sampling.Candidates)
	assert.Equal(t, []string{"https://shop.test/a"}, saved.Order)

	site.mu.Lock()
	site.pages["https://shop.test/b"] = page{}
	site.mu.Unlock()

	resumed, err := o.Resume(context.Background(), "sample-2", 0)
	require.NoError(t, err)
	assert.Equal(t, entity.BatchSummary{Total: 3, Passed: 3}, resumed.Summary)
	assert.Equal(t, 0, site.navigated("https://shop.test/d"))

	saved, err = states.Load(context.Background(), "sample-2")
	require.NoError(t, err)
	assert.Equal(t, 3, saved.Sampling.Selected)
	assert.False(t, saved.Sampling.Open())
	assert.Equal(t, []string{"https://shop.test/a", "https://shop.test/b", "https://shop.test/c"}, saved.Order)
}
