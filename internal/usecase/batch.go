package usecase

import (
	"sync"
	"time"

	"github.com/user/a11y-audit-service/internal/entity"
	"github.com/user/a11y-audit-service/pkg/metrics"
	"github.com/user/a11y-audit-service/pkg/utils"
)

// batch is the in-memory side of one run: the queue of URLs still to hand
// out, the QueueState being mutated, and the results gathered so far.
type batch struct {
	mu         sync.Mutex
	state      *entity.QueueState
	queue      []string
	attempts   map[string]int
	results    []*entity.AuditResult
	byURL      map[string]*entity.AuditResult
	persistErr error

	// saveMu serializes store writes so snapshots land in order.
	saveMu sync.Mutex
}

func (o *Orchestrator) newBatch(state *entity.QueueState) *batch {
	return &batch{
		state:    state,
		attempts: make(map[string]int),
		byURL:    make(map[string]*entity.AuditResult),
	}
}

// next pops the head of the queue and marks it in progress.
func (b *batch) next(now time.Time) (string, int, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.queue) == 0 {
		return "", 0, false
	}
	u := b.queue[0]
	b.queue = b.queue[1:]
	b.attempts[u]++
	b.state.Set(u, entity.URLInProgress, now)
	b.updateGauge()
	return u, b.attempts[u], true
}

// requeue puts u at the tail of the queue for another attempt.
func (b *batch) requeue(u string) {
	b.mu.Lock()
	b.queue = append(b.queue, u)
	b.mu.Unlock()
}

// interrupt moves u back to pending without recording a result.
func (b *batch) interrupt(u string, now time.Time) {
	b.mu.Lock()
	b.state.Set(u, entity.URLPending, now)
	b.mu.Unlock()
}

// add registers a newly selected URL as pending.
// wave returns the next candidates to probe, at most n and never more than
// the sampling target still needs.
func (b *batch) wave(n int) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	sp := b.state.Sampling
	if !sp.Open() {
		return nil
	}
	return append([]string(nil), sp.Candidates[:min(n, sp.Target-sp.Selected, len(sp.Candidates))]...)
}

// selectPage queues a probed candidate and counts it toward the target.
func (b *batch) selectPage(u string) {
	b.mu.Lock()
	b.state.Add(u)
	b.state.Sampling.Selected++
	b.updateGauge()
	b.mu.Unlock()
}

// settle removes the first probed candidates, putting unprobed ones back
// in front.
func (b *batch) settle(probed int, unprobed []string) {
	b.mu.Lock()
	sp := b.state.Sampling
	sp.Candidates = append(unprobed, sp.Candidates[probed:]...)
	b.mu.Unlock()
}

func (b *batch) sampled() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state.Sampling == nil {
		return 0
	}
	return b.state.Sampling.Selected
}

func (b *batch) record(r *entity.AuditResult, now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state.Set(r.URL, r.URLStatus(), now)
	b.results = append(b.results, r)
	b.byURL[r.URL] = r
	b.updateGauge()
}

func (b *batch) level() entity.Level {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state.Level
}

func (b *batch) isHomepage(u string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state.Homepage != "" && utils.SameURL(u, b.state.Homepage)
}

func (b *batch) event(u string) ProgressEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	ev := ProgressEvent{
		StateID:   b.state.ID,
		URL:       u,
		Status:    b.state.URLs[u],
		Attempt:   b.attempts[u],
		Processed: b.state.Processed,
		Total:     b.state.Total,
	}
	if r, ok := b.byURL[u]; ok && ev.Status.IsTerminal() {
		ev.Score = r.Score
		ev.Error = r.Error
	}
	return ev
}

func (b *batch) snapshot() *entity.QueueState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state.Clone()
}

func (b *batch) setPersistErr(err error) {
	b.mu.Lock()
	if b.persistErr == nil {
		b.persistErr = err
	}
	b.mu.Unlock()
}

func (b *batch) report() *RunReport {
	b.mu.Lock()
	defer b.mu.Unlock()
	return &RunReport{
		StateID:    b.state.ID,
		Results:    append(make([]*entity.AuditResult, 0, len(b.results)), b.results...),
		Summary:    b.state.Summary().Batch(),
		PersistErr: b.persistErr,
	}
}

func (b *batch) updateGauge() {
	metrics.URLsPending.Set(float64(b.state.Total - b.state.Processed))
}
