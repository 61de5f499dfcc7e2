package chromedp_browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/user/a11y-audit-service/internal/entity"
	"github.com/user/a11y-audit-service/internal/repository"
	"github.com/user/a11y-audit-service/pkg/metrics"
	"golang.org/x/sync/semaphore"
)

type PoolConfig struct {
	MaxInstances    int
	MinInstances    int
	TabsPerInstance int
	AcquireTimeout  time.Duration
}

type PoolOption func(*Pool)

func WithPoolLogger(logger *slog.Logger) PoolOption {
	return func(p *Pool) {
		p.logger = logger
	}
}

// instance is a pooled browser. browser is nil until ready is closed.
type instance struct {
	id         string
	browser    Browser
	ready      chan struct{}
	launchErr  error
	tabs       int
	healthy    bool
	launchedAt time.Time
}

// Pool bounds the number of open tabs to MaxInstances*TabsPerInstance and
// spreads them over at most MaxInstances healthy browsers.
type Pool struct {
	launcher Launcher
	cfg      PoolConfig
	logger   *slog.Logger

	// sem hands out tab slots in arrival order.
	sem *semaphore.Weighted

	closeCtx  context.Context
	closeFunc context.CancelFunc
	mu        sync.Mutex
	instances []*instance
	sessions  map[string]*Session
	closed    bool
}

func NewPool(launcher Launcher, cfg PoolConfig, opts ...PoolOption) (*Pool, error) {
	if cfg.MaxInstances < 1 {
		return nil, fmt.Errorf("invalid pool config: max instances %d", cfg.MaxInstances)
	}
	if cfg.TabsPerInstance < 1 {
		return nil, fmt.Errorf("invalid pool config: tabs per instance %d", cfg.TabsPerInstance)
	}
	if cfg.MinInstances < 0 || cfg.MinInstances > cfg.MaxInstances {
		return nil, fmt.Errorf("invalid pool config: min instances %d not in [0, %d]", cfg.MinInstances, cfg.MaxInstances)
	}
	if cfg.AcquireTimeout <= 0 {
		cfg.AcquireTimeout = 30 * time.Second
	}

	closeCtx, closeFunc := context.WithCancel(context.Background())
	p := &Pool{
		launcher:  launcher,
		cfg:       cfg,
		sem:       semaphore.NewWeighted(int64(cfg.MaxInstances * cfg.TabsPerInstance)),
		closeCtx:  closeCtx,
		closeFunc: closeFunc,
		sessions:  make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p, nil
}

func (p *Pool) Capacity() int { return p.cfg.MaxInstances * p.cfg.TabsPerInstance }

// Acquire waits for a free tab slot, then opens a tab on the oldest healthy
// browser with room, launching a browser when none has room.
func (p *Pool) Acquire(ctx context.Context) (repository.PageSession, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil, repository.ErrPoolClosed
	}

	waitCtx, cancel := context.WithTimeout(ctx, p.cfg.AcquireTimeout)
	defer cancel()
	stop := context.AfterFunc(p.closeCtx, cancel)
	defer stop()

	if err := p.sem.Acquire(waitCtx, 1); err != nil {
		switch {
		case ctx.Err() != nil:
			return nil, ctx.Err()
		case p.closeCtx.Err() != nil:
			return nil, repository.ErrPoolClosed
		}
		return nil, fmt.Errorf("%w: no session free after %s", repository.ErrPoolExhausted, p.cfg.AcquireTimeout)
	}

	s, err := p.checkout(ctx)
	if err != nil {
		p.sem.Release(1)
		return nil, err
	}
	metrics.SessionsInUse.Inc()
	return s, nil
}

func (p *Pool) checkout(ctx context.Context) (*Session, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, repository.ErrPoolClosed
	}
	inst := p.pickLocked()
	spawn := inst == nil
	if spawn {
		// The pending instance is visible to other acquirers before the
		// launch starts, so they reserve tabs on it instead of launching too.
		inst = p.addPendingLocked()
	}
	inst.tabs++
	p.mu.Unlock()

	if spawn {
		// Waiters share this launch, so it is not tied to the spawner's ctx.
		launchCtx, cancel := context.WithTimeout(p.closeCtx, p.cfg.AcquireTimeout)
		_ = p.launch(launchCtx, inst)
		cancel()
	}
	select {
	case <-inst.ready:
	case <-ctx.Done():
		p.dropTab(inst)
		return nil, ctx.Err()
	}
	if inst.launchErr != nil {
		p.dropTab(inst)
		return nil, inst.launchErr
	}

	tab, err := inst.browser.NewTab(ctx)
	if err != nil {
		if !inst.browser.Alive() {
			p.markUnhealthy(inst)
		}
		p.dropTab(inst)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", repository.ErrBrowserLaunch, err)
	}

	s := newSession(uuid.NewString(), inst, tab, p)
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		_ = tab.Close()
		return nil, repository.ErrPoolClosed
	}
	p.sessions[s.id] = s
	p.mu.Unlock()

	p.logger.Debug("Session acquired", "session", s.id, "instance", inst.id)
	return s, nil
}

// pickLocked returns the oldest healthy instance with a free tab.
func (p *Pool) pickLocked() *instance {
	for _, inst := range p.instances {
		if inst.healthy && inst.tabs < p.cfg.TabsPerInstance {
			return inst
		}
	}
	return nil
}

func (p *Pool) addPendingLocked() *instance {
	inst := &instance{
		id:      uuid.NewString(),
		ready:   make(chan struct{}),
		healthy: true,
	}
	p.instances = append(p.instances, inst)
	metrics.BrowserInstances.Set(float64(len(p.instances)))
	return inst
}

// launch starts the browser for a pending instance and signals waiters.
func (p *Pool) launch(ctx context.Context, inst *instance) error {
	b, err := p.launcher.Launch(ctx)

	p.mu.Lock()
	switch {
	case err != nil:
		if !errors.Is(err, repository.ErrBrowserLaunch) {
			err = fmt.Errorf("%w: %v", repository.ErrBrowserLaunch, err)
		}
		inst.launchErr = err
		inst.healthy = false
		p.removeLocked(inst)
	case p.closed:
		inst.launchErr = repository.ErrPoolClosed
		p.removeLocked(inst)
	default:
		inst.browser = b
		inst.launchedAt = time.Now()
	}
	p.mu.Unlock()
	close(inst.ready)

	if err != nil {
		metrics.BrowserLaunches.WithLabelValues("error").Inc()
		p.logger.Error("Browser launch failed", "instance", inst.id, "error", err)
		return err
	}
	metrics.BrowserLaunches.WithLabelValues("ok").Inc()
	if inst.launchErr != nil {
		_ = b.Close()
		return inst.launchErr
	}
	p.logger.Info("Browser instance ready", "instance", inst.id, "pid", b.PID())
	return nil
}

// dropTab gives back a tab reservation that never became a session.
func (p *Pool) dropTab(inst *instance) {
	p.mu.Lock()
	inst.tabs--
	retire := p.retireIfIdleLocked(inst)
	p.mu.Unlock()
	if retire {
		p.closeInstance(inst)
	}
}

func (p *Pool) markUnhealthy(inst *instance) {
	p.mu.Lock()
	inst.healthy = false
	p.mu.Unlock()
	p.logger.Warn("Browser instance marked unhealthy", "instance", inst.id)
}

// retireIfIdleLocked removes an unhealthy instance once its last tab is back.
func (p *Pool) retireIfIdleLocked(inst *instance) bool {
	if inst.healthy || inst.tabs > 0 || inst.browser == nil {
		return false
	}
	return p.removeLocked(inst)
}

func (p *Pool) removeLocked(inst *instance) bool {
	for i, cur := range p.instances {
		if cur == inst {
			p.instances = append(p.instances[:i], p.instances[i+1:]...)
			metrics.BrowserInstances.Set(float64(len(p.instances)))
			return true
		}
	}
	return false
}

func (p *Pool) closeInstance(inst *instance) {
	if inst.browser == nil {
		return
	}
	if err := inst.browser.Close(); err != nil {
		p.logger.Warn("Failed to close browser instance", "instance", inst.id, "error", err)
		return
	}
	p.logger.Info("Browser instance closed", "instance", inst.id)
}

// Release closes the session's tab and frees its slot. Releasing a session
// twice, or one from another pool, does nothing.
func (p *Pool) Release(ps repository.PageSession) {
	s, ok := ps.(*Session)
	if !ok || s == nil || s.pool != p {
		p.logger.Warn("Release of a session not owned by this pool")
		return
	}
	if !s.released.CompareAndSwap(false, true) {
		return
	}
	if err := s.tab.Close(); err != nil {
		p.logger.Debug("Failed to close tab", "session", s.id, "error", err)
	}

	inst := s.inst
	p.mu.Lock()
	delete(p.sessions, s.id)
	inst.tabs--
	if inst.healthy && !inst.browser.Alive() {
		inst.healthy = false
		p.logger.Warn("Browser instance crashed", "instance", inst.id)
	}
	retire := p.retireIfIdleLocked(inst)
	closed := p.closed
	p.mu.Unlock()

	if retire {
		p.closeInstance(inst)
	}
	if !closed {
		p.sem.Release(1)
	}
	metrics.SessionsInUse.Dec()
	p.logger.Debug("Session released", "session", s.id, "instance", inst.id,
		"state", s.State(), "last_navigation", s.LastNavigationDuration())
}

// HealthCheck recycles crashed instances and tops the pool up to MinInstances.
func (p *Pool) HealthCheck(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return repository.ErrPoolClosed
	}
	var retire []*instance
	healthy := 0
	for _, inst := range append([]*instance(nil), p.instances...) {
		if inst.browser != nil && inst.healthy && !inst.browser.Alive() {
			inst.healthy = false
			p.logger.Warn("Browser instance crashed", "instance", inst.id)
		}
		if p.retireIfIdleLocked(inst) {
			retire = append(retire, inst)
			continue
		}
		if inst.healthy {
			healthy++
		}
	}
	var spawn []*instance
	for i := healthy; i < p.cfg.MinInstances; i++ {
		spawn = append(spawn, p.addPendingLocked())
	}
	p.mu.Unlock()

	for _, inst := range retire {
		p.closeInstance(inst)
	}
	var errs []error
	for _, inst := range spawn {
		if err := p.launch(ctx, inst); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// StartHealthChecks runs HealthCheck every interval until ctx is done.
func (p *Pool) StartHealthChecks(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := p.HealthCheck(ctx); err != nil {
					if errors.Is(err, repository.ErrPoolClosed) {
						return
					}
					p.logger.Error("Pool health check failed", "error", err)
				}
			}
		}
	}()
}

// Shutdown closes every open session and browser. It is safe to call more than once.
func (p *Pool) Shutdown() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.closeFunc()
	sessions := make([]*Session, 0, len(p.sessions))
	for _, s := range p.sessions {
		sessions = append(sessions, s)
	}
	instances := p.instances
	p.instances = nil
	p.sessions = make(map[string]*Session)
	p.mu.Unlock()

	var errs []error
	for _, s := range sessions {
		if !s.released.CompareAndSwap(false, true) {
			continue
		}
		metrics.SessionsInUse.Dec()
		if err := s.tab.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close session %s: %w", s.id, err))
		}
	}
	for _, inst := range instances {
		// Pending instances close themselves when their launch returns.
		if inst.browser == nil {
			continue
		}
		if err := inst.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close instance %s: %w", inst.id, err))
		}
	}
	metrics.BrowserInstances.Set(0)
	p.logger.Info("Browser pool shut down", "sessions", len(sessions), "instances", len(instances))
	return errors.Join(errs...)
}

func (p *Pool) Stats() entity.PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	stats := entity.PoolStats{
		MaxInstances:    p.cfg.MaxInstances,
		TabsPerInstance: p.cfg.TabsPerInstance,
		Capacity:        p.Capacity(),
		InUse:           len(p.sessions),
		Instances:       make([]entity.BrowserInstanceInfo, 0, len(p.instances)),
	}
	for _, inst := range p.instances {
		info := entity.BrowserInstanceInfo{
			ID:         inst.id,
			Tabs:       inst.tabs,
			Healthy:    inst.healthy,
			LaunchedAt: inst.launchedAt,
		}
		if inst.browser != nil {
			info.Ready = true
			info.PID = inst.browser.PID()
			info.Args = inst.browser.Args()
		}
		stats.Instances = append(stats.Instances, info)
	}
	stats.Sessions = make([]entity.SessionInfo, 0, len(p.sessions))
	for _, s := range p.sessions {
		stats.Sessions = append(stats.Sessions, s.info())
	}
	slices.SortFunc(stats.Sessions, func(a, b entity.SessionInfo) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return stats
}
