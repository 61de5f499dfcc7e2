package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/user/a11y-audit-service/internal/entity"
	"github.com/user/a11y-audit-service/internal/repository"
	"github.com/user/a11y-audit-service/internal/scoring"
	"github.com/user/a11y-audit-service/pkg/metrics"
	"github.com/user/a11y-audit-service/pkg/utils"
)

var (
	ErrEmptyBatch          = errors.New("no URLs to audit")
	ErrPersistenceDisabled = errors.New("no state repository configured")
)

const (
	defaultConcurrency  = 2
	defaultMaxRetries   = 2
	defaultRetryBackoff = 2 * time.Second
	defaultPageTimeout  = 30 * time.Second
)

// ProgressEvent is sent after every URL transition.
type ProgressEvent struct {
	StateID   string           `json:"state_id"`
	URL       string           `json:"url"`
	Status    entity.URLStatus `json:"status"`
	Attempt   int              `json:"attempt"`
	Processed int              `json:"processed"`
	Total     int              `json:"total"`
	Score     float64          `json:"score,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// RunRequest describes a batch. The homepage, when set, is audited first.
type RunRequest struct {
	URLs     []string
	Homepage string
	Level    entity.Level
	StateID  string
}

// SampleRequest asks for Target working pages out of Candidates.
type SampleRequest struct {
	Candidates []string
	Homepage   string
	Target     int
	Level      entity.Level
	StateID    string
}

// RunReport is the outcome of Run, Resume or Sample.
type RunReport struct {
	StateID string                `json:"state_id"`
	Results []*entity.AuditResult `json:"results"`
	Summary entity.BatchSummary   `json:"summary"`
	// PersistErr is the first state store failure seen during the run.
	PersistErr error         `json:"-"`
	Duration   time.Duration `json:"duration"`
}

// Orchestrator drives batches of URLs through the pool at bounded concurrency.
type Orchestrator struct {
	pool    repository.SessionPool
	auditor PageAuditor
	states  repository.StateRepository
	results repository.ResultRepository

	concurrency int
	maxRetries  int
	backoff     time.Duration
	pageTimeout time.Duration
	progress    chan<- ProgressEvent
	limiter     *rate.Limiter
	logger      *slog.Logger
	now         func() time.Time
}

type OrchestratorOption func(*Orchestrator)

func WithConcurrency(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

func WithMaxRetries(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		if n >= 0 {
			o.maxRetries = n
		}
	}
}

func WithRetryBackoff(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) { o.backoff = d }
}

func WithPageTimeout(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if d > 0 {
			o.pageTimeout = d
		}
	}
}

// WithStateRepository enables persistence of queue state.
func WithStateRepository(repo repository.StateRepository) OrchestratorOption {
	return func(o *Orchestrator) { o.states = repo }
}

func WithResultRepository(repo repository.ResultRepository) OrchestratorOption {
	return func(o *Orchestrator) { o.results = repo }
}

// WithProgress sets a channel that receives one event per URL transition.
// The orchestrator never closes it.
func WithProgress(ch chan<- ProgressEvent) OrchestratorOption {
	return func(o *Orchestrator) { o.progress = ch }
}

// WithRateLimit caps navigations per second across all workers.
func WithRateLimit(perSecond float64) OrchestratorOption {
	return func(o *Orchestrator) {
		if perSecond > 0 {
			o.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

func WithLogger(logger *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) { o.logger = logger }
}

func NewOrchestrator(pool repository.SessionPool, auditor PageAuditor, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		pool:        pool,
		auditor:     auditor,
		concurrency: defaultConcurrency,
		maxRetries:  defaultMaxRetries,
		backoff:     defaultRetryBackoff,
		pageTimeout: defaultPageTimeout,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

// Run audits every URL once, retrying transient failures.
func (o *Orchestrator) Run(ctx context.Context, req RunRequest) (*RunReport, error) {
	urls := withHomepage(req.Homepage, req.URLs)
	if len(urls) == 0 {
		return nil, ErrEmptyBatch
	}
	level := req.Level
	if level == 0 {
		level = entity.LevelAA
	}
	id := req.StateID
	if id == "" {
		id = uuid.NewString()
	}

	state := entity.NewQueueState(id, req.Homepage, level, urls, o.now())
	b := o.newBatch(state)
	o.logger.Info("Starting audit batch", "state_id", id, "urls", state.Total, "level", level, "concurrency", o.concurrency)
	return o.execute(ctx, b, state.Pending())
}

// Resume continues a persisted batch. Terminal URLs are not audited again.
// A zero level keeps the level the batch was started with.
func (o *Orchestrator) Resume(ctx context.Context, stateID string, level entity.Level) (*RunReport, error) {
	if o.states == nil {
		return nil, ErrPersistenceDisabled
	}
	state, err := o.states.Load(ctx, stateID)
	if err != nil {
		return nil, fmt.Errorf("failed to load state %s: %w", stateID, err)
	}
	if level != 0 {
		state.Level = level
	}
	if state.Level == 0 {
		state.Level = entity.LevelAA
	}

	now := o.now()
	for _, u := range state.Order {
		if state.URLs[u] == entity.URLInProgress {
			state.Set(u, entity.URLPending, now)
		}
	}

	b := o.newBatch(state)
	if state.Sampling.Open() {
		o.logger.Info("Continuing sample selection", "state_id", stateID,
			"selected", state.Sampling.Selected, "target", state.Sampling.Target, "candidates", len(state.Sampling.Candidates))
		o.selectSample(ctx, b)
	}

	pending := state.Pending()
	o.logger.Info("Resuming audit batch", "state_id", stateID, "pending", len(pending), "processed", state.Processed, "total", state.Total)
	return o.execute(ctx, b, pending)
}

// Sample probes candidates in order until Target working pages are found,
// then audits them. The homepage is always audited and counts toward Target.
// Candidates that redirect elsewhere are recorded as skipped. Unprobed
// candidates are kept in the state so Resume can finish the selection.
func (o *Orchestrator) Sample(ctx context.Context, req SampleRequest) (*RunReport, error) {
	if req.Target <= 0 {
		return o.Run(ctx, RunRequest{URLs: req.Candidates, Homepage: req.Homepage, Level: req.Level, StateID: req.StateID})
	}
	level := req.Level
	if level == 0 {
		level = entity.LevelAA
	}
	id := req.StateID
	if id == "" {
		id = uuid.NewString()
	}

	var candidates []string
	for _, c := range withHomepage("", req.Candidates) {
		if req.Homepage != "" && utils.SameURL(c, req.Homepage) {
			continue
		}
		candidates = append(candidates, c)
	}
	if req.Homepage == "" && len(candidates) == 0 {
		return nil, ErrEmptyBatch
	}

	var selected []string
	if req.Homepage != "" {
		selected = append(selected, req.Homepage)
	}
	state := entity.NewQueueState(id, req.Homepage, level, selected, o.now())
	state.Sampling = &entity.Sampling{Target: req.Target, Selected: len(selected), Candidates: candidates}
	b := o.newBatch(state)
	o.logger.Info("Sampling candidates", "state_id", id, "candidates", len(candidates), "target", req.Target)

	o.selectSample(ctx, b)
	if got := b.sampled(); got < req.Target && ctx.Err() == nil {
		o.logger.Warn("Candidates exhausted before reaching target", "state_id", id, "selected", got, "target", req.Target)
	}
	return o.execute(ctx, b, state.Pending())
}

// selectSample probes the remaining candidates of b in waves until the
// sampling target is met, the candidates run out or ctx is done. Probes cut
// short by cancellation go back to the front of the candidate list.
func (o *Orchestrator) selectSample(ctx context.Context, b *batch) {
	level := b.level()
	for ctx.Err() == nil {
		wave := b.wave(o.concurrency)
		if len(wave) == 0 {
			return
		}

		probes := make([]probeResult, len(wave))
		var g errgroup.Group
		for i, u := range wave {
			g.Go(func() error {
				probes[i] = o.probe(ctx, u)
				return nil
			})
		}
		_ = g.Wait()

		var unprobed []string
		for i, p := range probes {
			u := wave[i]
			switch {
			case p.interrupted:
				unprobed = append(unprobed, u)
				continue
			case p.err != nil:
				b.record(o.crashedResult(u, level, p.err, p.attempts), o.now())
			case p.nav.IsRedirect():
				b.record(o.skippedResult(u, level, p.nav, p.attempts), o.now())
			default:
				b.selectPage(u)
				continue
			}
			o.emit(ctx, b.event(u))
		}
		b.settle(len(wave), unprobed)
		o.persist(ctx, b)
	}
}

func withHomepage(homepage string, urls []string) []string {
	out := make([]string, 0, len(urls)+1)
	seen := make(map[string]bool, len(urls)+1)
	for _, u := range append([]string{homepage}, urls...) {
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}

// execute runs pending URLs of b through the worker pool.
func (o *Orchestrator) execute(ctx context.Context, b *batch, pending []string) (*RunReport, error) {
	start := o.now()
	b.queue = append(b.queue, pending...)
	o.persist(ctx, b)

	var g errgroup.Group
	for range min(o.concurrency, max(len(pending), 1)) {
		g.Go(func() error {
			o.worker(ctx, b)
			return nil
		})
	}
	_ = g.Wait()

	report := b.report()
	report.Duration = o.now().Sub(start)
	o.logger.Info("Audit batch finished",
		"state_id", report.StateID,
		"passed", report.Summary.Passed,
		"failed", report.Summary.Failed,
		"crashed", report.Summary.Crashed,
		"skipped_redirect", report.Summary.Skipped,
		"pending", report.Summary.Pending,
		"duration", report.Duration,
	)

	if report.PersistErr != nil && o.states != nil {
		return report, report.PersistErr
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}

func (o *Orchestrator) worker(ctx context.Context, b *batch) {
	for ctx.Err() == nil {
		u, attempt, ok := b.next(o.now())
		if !ok {
			return
		}
		o.persist(ctx, b)
		o.emit(ctx, b.event(u))
		o.process(ctx, b, u, attempt)
	}
}

func (o *Orchestrator) process(ctx context.Context, b *batch, u string, attempt int) {
	level := b.level()
	out := o.attempt(ctx, u, level)

	if out.Kind != OutcomeOk && ctx.Err() != nil {
		// Cancelled mid-audit: leave it pending so a resume picks it up.
		b.interrupt(u, o.now())
		o.persist(ctx, b)
		o.logger.Info("Audit interrupted", "url", u, "attempt", attempt)
		return
	}

	switch out.Kind {
	case OutcomeRetry:
		errType := repository.ErrorType(out.Err)
		if attempt <= o.maxRetries {
			metrics.AuditsTotal.WithLabelValues("retry", errType).Inc()
			o.logger.Warn("Audit attempt failed, retrying", "url", u, "attempt", attempt, "error", out.Err)
			b.interrupt(u, o.now())
			o.persist(ctx, b)
			o.emit(ctx, b.event(u))
			if !sleepCtx(ctx, o.backoff) {
				return
			}
			b.requeue(u)
			return
		}
		o.logger.Error("Audit retries exhausted", "url", u, "attempts", attempt, "error", out.Err)
		o.finish(ctx, b, o.crashedResult(u, level, out.Err, attempt), out.Err)
	case OutcomeFatal:
		o.logger.Error("Audit crashed", "url", u, "error", out.Err)
		out.Result.Attempts = attempt
		o.finish(ctx, b, out.Result, out.Err)
	default:
		out.Result.Attempts = attempt
		o.finish(ctx, b, out.Result, nil)
	}
}

// attempt acquires a session, audits u on it and releases it.
func (o *Orchestrator) attempt(ctx context.Context, u string, level entity.Level) Outcome {
	if err := o.wait(ctx); err != nil {
		return Outcome{Kind: OutcomeRetry, Err: err}
	}
	session, err := o.pool.Acquire(ctx)
	if err != nil {
		if ctx.Err() != nil || repository.IsRetryable(err) {
			return Outcome{Kind: OutcomeRetry, Err: err}
		}
		return Outcome{Kind: OutcomeFatal, Result: o.crashedResult(u, level, err, 0), Err: err}
	}
	defer o.pool.Release(session)
	return o.auditor.Audit(ctx, session, u, level, o.pageTimeout)
}

func (o *Orchestrator) finish(ctx context.Context, b *batch, result *entity.AuditResult, cause error) {
	result.Homepage = b.isHomepage(result.URL)
	b.record(result, o.now())

	metrics.AuditsTotal.WithLabelValues(string(result.Status), repository.ErrorType(cause)).Inc()
	metrics.AuditDuration.WithLabelValues(string(result.Status)).Observe(result.Duration.Seconds())
	if result.Status == entity.AuditPassed || result.Status == entity.AuditFailed {
		metrics.PageScores.Observe(result.Score)
	}

	if o.results != nil {
		if err := o.results.Save(context.WithoutCancel(ctx), result); err != nil {
			o.logger.Error("Failed to save audit result", "url", result.URL, "error", err)
		}
	}
	o.persist(ctx, b)
	o.emit(ctx, b.event(result.URL))
	o.logger.Info("Page audit finished", "url", result.URL, "status", result.Status, "score", result.Score, "attempts", result.Attempts)
}

type probeResult struct {
	nav         *entity.NavigationOutcome
	err         error
	attempts    int
	interrupted bool
}

// probe navigates to u without extracting anything.
func (o *Orchestrator) probe(ctx context.Context, u string) probeResult {
	var res probeResult
	for res.attempts = 1; ; res.attempts++ {
		res.nav, res.err = o.probeOnce(ctx, u)
		switch {
		case ctx.Err() != nil:
			res.interrupted = true
			return res
		case res.err == nil:
			return res
		case !repository.IsRetryable(res.err) || res.attempts > o.maxRetries:
			return res
		}
		o.logger.Warn("Probe failed, retrying", "url", u, "attempt", res.attempts, "error", res.err)
		if !sleepCtx(ctx, o.backoff) {
			res.interrupted = true
			return res
		}
	}
}

func (o *Orchestrator) probeOnce(ctx context.Context, u string) (*entity.NavigationOutcome, error) {
	if err := o.wait(ctx); err != nil {
		return nil, err
	}
	session, err := o.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer o.pool.Release(session)
	return session.Navigate(ctx, u, o.pageTimeout)
}

func (o *Orchestrator) wait(ctx context.Context) error {
	if o.limiter == nil {
		return nil
	}
	return o.limiter.Wait(ctx)
}

func (o *Orchestrator) crashedResult(u string, level entity.Level, err error, attempts int) *entity.AuditResult {
	now := o.now()
	return &entity.AuditResult{
		URL:         u,
		Level:       level,
		Status:      entity.AuditCrashed,
		Violations:  []entity.Violation{},
		Summary:     scoring.Summarize(nil),
		Grade:       scoring.GradeFor(0),
		Certificate: scoring.CertificateFor(0),
		Attempts:    attempts,
		Error:       err.Error(),
		StartedAt:   now,
		FinishedAt:  now,
	}
}

func (o *Orchestrator) skippedResult(u string, level entity.Level, nav *entity.NavigationOutcome, attempts int) *entity.AuditResult {
	now := o.now()
	return &entity.AuditResult{
		URL:           u,
		FinalURL:      nav.FinalURL,
		Level:         level,
		Status:        entity.AuditSkippedRedirect,
		Violations:    []entity.Violation{},
		Summary:       scoring.Summarize(nil),
		Attempts:      attempts,
		RedirectChain: nav.StatusChain,
		Duration:      nav.Duration,
		StartedAt:     now.Add(-nav.Duration),
		FinishedAt:    now,
	}
}

// persist saves a snapshot of the batch state. Snapshots are taken under the
// save lock, so a later save never writes an older snapshot.
func (o *Orchestrator) persist(ctx context.Context, b *batch) {
	if o.states == nil {
		return
	}
	b.saveMu.Lock()
	defer b.saveMu.Unlock()

	snap := b.snapshot()
	if err := o.states.Save(context.WithoutCancel(ctx), snap); err != nil {
		o.logger.Error("Failed to persist queue state", "state_id", snap.ID, "error", err)
		b.setPersistErr(err)
	}
}

// emit delivers ev unless ctx ends first.
func (o *Orchestrator) emit(ctx context.Context, ev ProgressEvent) {
	if o.progress == nil {
		return
	}
	select {
	case o.progress <- ev:
	case <-ctx.Done():
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
