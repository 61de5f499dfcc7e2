package repository

import (
	"context"
	"time"

	"github.com/user/a11y-audit-service/internal/entity"
)

// PageSession is one browser tab checked out of a SessionPool.
// A session is never shared between callers.
type PageSession interface {
	ID() string
	// InstanceID names the browser instance the session is bound to.
	InstanceID() string
	// Navigate loads url and reports the final URL and status chain.
	Navigate(ctx context.Context, url string, timeout time.Duration) (*entity.NavigationOutcome, error)
	// ExtractTree reads the accessibility tree of the loaded document.
	ExtractTree(ctx context.Context) (*entity.AXTree, error)
	// ComputedStyle fetches the style snapshot of one node on demand.
	ComputedStyle(ctx context.Context, tree *entity.AXTree, id entity.NodeID) (entity.Style, error)
}

// SessionPool hands out page sessions with bounded capacity.
type SessionPool interface {
	// Acquire blocks until a session is free, the acquire timeout elapses
	// (ErrPoolExhausted) or ctx is done.
	Acquire(ctx context.Context) (PageSession, error)
	// Release returns a session. The session must not be used afterwards.
	Release(session PageSession)
	Stats() entity.PoolStats
	Shutdown() error
}
