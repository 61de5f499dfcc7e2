package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/user/a11y-audit-service/internal/entity"
	"github.com/user/a11y-audit-service/internal/repository"
	"github.com/user/a11y-audit-service/internal/scoring"
	"github.com/user/a11y-audit-service/internal/wcag"
)

// OutcomeKind classifies a single audit attempt.
type OutcomeKind int

const (
	// OutcomeOk means the page was audited and Result holds a passed or failed record.
	OutcomeOk OutcomeKind = iota
	// OutcomeRetry means the attempt hit a transient failure and may be repeated.
	OutcomeRetry
	// OutcomeFatal means the page cannot be audited. Result holds a crashed record.
	OutcomeFatal
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeOk:
		return "ok"
	case OutcomeRetry:
		return "retry"
	case OutcomeFatal:
		return "fatal"
	}
	return fmt.Sprintf("OutcomeKind(%d)", int(k))
}

// Outcome is the result of one audit attempt.
type Outcome struct {
	Kind       OutcomeKind
	Result     *entity.AuditResult
	Navigation *entity.NavigationOutcome
	Err        error
}

// PageAuditor runs one audit attempt on an acquired session.
type PageAuditor interface {
	Audit(ctx context.Context, session repository.PageSession, url string, level entity.Level, timeout time.Duration) Outcome
}

// Auditor chains navigation, extraction, rule evaluation and scoring.
type Auditor struct {
	engine *wcag.Engine
	scorer *scoring.Scorer
	logger *slog.Logger
	now    func() time.Time
}

type AuditorOption func(*Auditor)

func WithAuditorLogger(logger *slog.Logger) AuditorOption {
	return func(a *Auditor) { a.logger = logger }
}

// WithClock replaces time.Now, for tests that assert timestamps.
func WithClock(now func() time.Time) AuditorOption {
	return func(a *Auditor) { a.now = now }
}

// NewPageAuditor creates an Auditor.
func NewPageAuditor(engine *wcag.Engine, scorer *scoring.Scorer, opts ...AuditorOption) *Auditor {
	a := &Auditor{engine: engine, scorer: scorer, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	return a
}

// Audit never returns a nil Result for OutcomeOk or OutcomeFatal. timeout
// bounds the whole attempt: navigation, extraction and rule evaluation.
// Running out of it is a retryable ErrNavigationTimeout.
func (a *Auditor) Audit(ctx context.Context, session repository.PageSession, url string, level entity.Level, timeout time.Duration) Outcome {
	started := a.now()
	result := &entity.AuditResult{
		URL:       url,
		Level:     level,
		StartedAt: started,
	}

	var (
		pageCtx context.Context
		cancel  context.CancelFunc
	)
	if timeout > 0 {
		pageCtx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		pageCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()
	// interrupted reports why an attempt stopped early, or nil if it did not.
	interrupted := func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if pageCtx.Err() != nil {
			return fmt.Errorf("%w: %s not audited within %s", repository.ErrNavigationTimeout, url, timeout)
		}
		return nil
	}

	nav, err := session.Navigate(pageCtx, url, timeout)
	if nav != nil {
		result.FinalURL = nav.FinalURL
		result.RedirectChain = nav.StatusChain
	}
	if err != nil {
		if cause := interrupted(); cause != nil {
			return Outcome{Kind: OutcomeRetry, Navigation: nav, Err: cause}
		}
		if repository.IsRetryable(err) {
			return Outcome{Kind: OutcomeRetry, Navigation: nav, Err: err}
		}
		return a.crashed(result, nav, err)
	}

	tree, err := session.ExtractTree(pageCtx)
	if err != nil {
		if cause := interrupted(); cause != nil {
			return Outcome{Kind: OutcomeRetry, Navigation: nav, Err: cause}
		}
		return a.crashed(result, nav, err)
	}

	violations := a.engine.Evaluate(pageCtx, tree, session, level)
	if cause := interrupted(); cause != nil {
		// Style lookups were cut short, so the violation list is incomplete.
		return Outcome{Kind: OutcomeRetry, Navigation: nav, Err: cause}
	}
	score := a.scorer.Score(violations)

	result.NodeCount = tree.Len()
	result.Page = wcag.Facts(tree)
	result.Violations = violations
	result.Summary = scoring.Summarize(violations)
	result.Score = score.Value
	result.Grade = score.Grade
	result.Certificate = score.Certificate
	result.Status = entity.AuditPassed
	if len(violations) > 0 {
		result.Status = entity.AuditFailed
	}
	result.FinishedAt = a.now()
	result.Duration = result.FinishedAt.Sub(started)

	a.logger.Debug("Page audited", "url", url, "status", result.Status, "score", result.Score, "violations", len(violations))
	return Outcome{Kind: OutcomeOk, Result: result, Navigation: nav}
}

func (a *Auditor) crashed(result *entity.AuditResult, nav *entity.NavigationOutcome, err error) Outcome {
	result.Status = entity.AuditCrashed
	result.Violations = []entity.Violation{}
	result.Summary = scoring.Summarize(nil)
	// A crashed page was never evaluated, so it scores at the bottom of the scale.
	result.Score = 0
	result.Grade = scoring.GradeFor(0)
	result.Certificate = scoring.CertificateFor(0)
	result.Error = err.Error()
	result.FinishedAt = a.now()
	result.Duration = result.FinishedAt.Sub(result.StartedAt)
	return Outcome{Kind: OutcomeFatal, Result: result, Navigation: nav, Err: err}
}
