package chromedp_browser

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/user/a11y-audit-service/internal/entity"
)

// Session is a tab checked out of a Pool. It implements repository.PageSession
// and, through ComputedStyle, wcag.StyleSource.
type Session struct {
	id        string
	inst      *instance
	tab       Tab
	pool      *Pool
	createdAt time.Time
	released  atomic.Bool

	mu      sync.Mutex
	state   entity.NavigationState
	url     string
	lastNav time.Duration
}

func newSession(id string, inst *instance, tab Tab, pool *Pool) *Session {
	return &Session{
		id:        id,
		inst:      inst,
		tab:       tab,
		pool:      pool,
		createdAt: time.Now(),
		state:     entity.NavigationIdle,
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) InstanceID() string { return s.inst.id }

func (s *Session) CreatedAt() time.Time { return s.createdAt }

// State is the outcome of the last navigation, or NavigationInProgress while
// one is running.
func (s *Session) State() entity.NavigationState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastNavigationDuration is how long the last finished navigation took.
func (s *Session) LastNavigationDuration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastNav
}

func (s *Session) info() entity.SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return entity.SessionInfo{
		ID:             s.id,
		InstanceID:     s.inst.id,
		State:          s.state,
		URL:            s.url,
		LastNavigation: s.lastNav,
		CreatedAt:      s.createdAt,
	}
}

func (s *Session) setState(state entity.NavigationState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Session) Navigate(ctx context.Context, url string, timeout time.Duration) (*entity.NavigationOutcome, error) {
	s.mu.Lock()
	s.state = entity.NavigationInProgress
	s.url = url
	s.mu.Unlock()

	start := time.Now()
	out, err := s.tab.Navigate(ctx, url, timeout)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastNav = time.Since(start)
	switch {
	case out != nil && out.State != "":
		s.state = out.State
		if out.Duration > 0 {
			s.lastNav = out.Duration
		}
	case err != nil:
		s.state = entity.NavigationError
	default:
		s.state = entity.NavigationLoaded
	}
	return out, err
}

func (s *Session) ExtractTree(ctx context.Context) (*entity.AXTree, error) {
	tree, err := s.tab.ExtractTree(ctx)
	if err != nil {
		s.setState(entity.NavigationError)
	}
	return tree, err
}

func (s *Session) ComputedStyle(ctx context.Context, tree *entity.AXTree, id entity.NodeID) (entity.Style, error) {
	return s.tab.ComputedStyle(ctx, tree, id)
}
