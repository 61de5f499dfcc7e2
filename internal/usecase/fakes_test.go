package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/user/a11y-audit-service/internal/entity"
	"github.com/user/a11y-audit-service/internal/repository"
	"github.com/user/a11y-audit-service/internal/scoring"
	"github.com/user/a11y-audit-service/internal/wcag"
)

// page describes how the fake browser behaves for one URL.
type page struct {
	finalURL   string
	chain      []int
	navErr     error
	extractErr error
	nodes      []entity.AXNode
	// onNavigate runs before the navigation returns.
	onNavigate func(ctx context.Context) error
	// onExtract runs before the tree is returned.
	onExtract func(ctx context.Context) error
}

type fakeSite struct {
	mu          sync.Mutex
	pages       map[string]page
	navigations map[string]int
	extractions map[string]int
}

func newFakeSite(pages map[string]page) *fakeSite {
	return &fakeSite{
		pages:       pages,
		navigations: make(map[string]int),
		extractions: make(map[string]int),
	}
}

func (s *fakeSite) navigated(url string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.navigations[url]
}

func (s *fakeSite) extracted(url string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.extractions[url]
}

type fakeSession struct {
	id      string
	site    *fakeSite
	current string
}

func (s *fakeSession) ID() string         { return s.id }
func (s *fakeSession) InstanceID() string { return "instance-1" }

func (s *fakeSession) Navigate(ctx context.Context, url string, _ time.Duration) (*entity.NavigationOutcome, error) {
	s.site.mu.Lock()
	s.site.navigations[url]++
	p := s.site.pages[url]
	s.site.mu.Unlock()

	out := &entity.NavigationOutcome{RequestedURL: url, State: entity.NavigationLoaded}
	if p.onNavigate != nil {
		if err := p.onNavigate(ctx); err != nil {
			out.State = entity.NavigationError
			return out, err
		}
	}
	if p.navErr != nil {
		out.State = entity.NavigationError
		if errors.Is(p.navErr, repository.ErrNavigationTimeout) {
			out.State = entity.NavigationTimeout
		}
		return out, p.navErr
	}
	out.FinalURL = url
	if p.finalURL != "" {
		out.FinalURL = p.finalURL
	}
	out.StatusChain = []int{200}
	if p.chain != nil {
		out.StatusChain = p.chain
	}
	s.current = url
	return out, nil
}

func (s *fakeSession) ExtractTree(ctx context.Context) (*entity.AXTree, error) {
	s.site.mu.Lock()
	s.site.extractions[s.current]++
	p := s.site.pages[s.current]
	s.site.mu.Unlock()

	if p.onExtract != nil {
		if err := p.onExtract(ctx); err != nil {
			return nil, err
		}
	}
	if p.extractErr != nil {
		return nil, p.extractErr
	}
	nodes := p.nodes
	if nodes == nil {
		nodes = cleanPage()
	}
	return entity.NewAXTree(nodes)
}

func (s *fakeSession) ComputedStyle(context.Context, *entity.AXTree, entity.NodeID) (entity.Style, error) {
	return entity.Style{Visible: true}, nil
}

type fakePool struct {
	site *fakeSite

	// acquireErrs are returned, in order, by the first Acquire calls.
	mu          sync.Mutex
	acquireErrs []error

	seq      atomic.Int32
	inUse    atomic.Int32
	peak     atomic.Int32
	released atomic.Int32
}

func (p *fakePool) Acquire(ctx context.Context) (repository.PageSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	if len(p.acquireErrs) > 0 {
		err := p.acquireErrs[0]
		p.acquireErrs = p.acquireErrs[1:]
		p.mu.Unlock()
		return nil, err
	}
	p.mu.Unlock()

	n := p.inUse.Add(1)
	for {
		old := p.peak.Load()
		if n <= old || p.peak.CompareAndSwap(old, n) {
			break
		}
	}
	return &fakeSession{id: fmt.Sprintf("session-%d", p.seq.Add(1)), site: p.site}, nil
}

func (p *fakePool) Release(repository.PageSession) {
	p.inUse.Add(-1)
	p.released.Add(1)
}

func (p *fakePool) Stats() entity.PoolStats {
	return entity.PoolStats{InUse: int(p.inUse.Load())}
}

func (p *fakePool) Shutdown() error { return nil }

// memStates is an in-memory StateRepository.
type memStates struct {
	mu     sync.Mutex
	states map[string]*entity.QueueState
	saves  int
	fail   error
}

func newMemStates() *memStates {
	return &memStates{states: make(map[string]*entity.QueueState)}
}

func (m *memStates) Save(_ context.Context, s *entity.QueueState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.saves++
	m.states[s.ID] = s.Clone()
	return nil
}

func (m *memStates) Load(_ context.Context, id string) (*entity.QueueState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.states[id]
	if !ok {
		return nil, repository.ErrStateNotFound
	}
	return s.Clone(), nil
}

func (m *memStates) List(context.Context) ([]entity.StateSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []entity.StateSummary
	for _, s := range m.states {
		out = append(out, s.Summary())
	}
	return out, nil
}

type memResults struct {
	mu      sync.Mutex
	results map[string]*entity.AuditResult
}

func (m *memResults) Save(_ context.Context, r *entity.AuditResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.results == nil {
		m.results = make(map[string]*entity.AuditResult)
	}
	m.results[r.URL] = r
	return nil
}

func (m *memResults) FindByURL(_ context.Context, url string) (*entity.AuditResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.results[url]
	if !ok {
		return nil, repository.ErrResultNotFound
	}
	return r, nil
}

// cleanPage passes every rule at AAA.
func cleanPage() []entity.AXNode {
	return []entity.AXNode{
		{Parent: entity.NoParent, Role: "RootWebArea", Name: "Pricing - Example", Properties: map[string]string{"lang": "en"}},
		{Parent: 0, Role: "navigation"},
		{Parent: 0, Role: "main"},
		{Parent: 2, Role: "heading", Name: "Pricing", Properties: map[string]string{"level": "1"}},
		{Parent: 2, Role: "heading", Name: "Plans", Properties: map[string]string{"level": "2"}},
		{Parent: 2, Role: "link", Name: "Compare plans"},
		{Parent: 2, Role: "button", Name: "Buy"},
	}
}

// bareTextPage has no headings and no language.
func bareTextPage() []entity.AXNode {
	return []entity.AXNode{
		{Parent: entity.NoParent, Role: "RootWebArea", Name: "Pricing - Example"},
		{Parent: 0, Role: "main"},
		{Parent: 1, Role: "StaticText", Name: "Plans start at ten dollars."},
	}
}

func newAuditor() *Auditor {
	return NewPageAuditor(wcag.NewEngine(), scoring.NewScorer(scoring.DefaultPolicy()))
}

func newTestOrchestrator(t *testing.T, pool repository.SessionPool, opts ...OrchestratorOption) *Orchestrator {
	t.Helper()
	base := []OrchestratorOption{WithRetryBackoff(0), WithPageTimeout(time.Second)}
	o := NewOrchestrator(pool, newAuditor(), append(base, opts...)...)
	require.NotNil(t, o)
	return o
}

func resultsByURL(rs []*entity.AuditResult) map[string]*entity.AuditResult {
	out := make(map[string]*entity.AuditResult, len(rs))
	for _, r := range rs {
		out[r.URL] = r
	}
	return out
}
