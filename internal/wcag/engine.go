// Package wcag evaluates accessibility trees against a closed catalog of WCAG
// success criteria.
package wcag

import (
	"context"
	"log/slog"

	"github.com/user/a11y-audit-service/internal/entity"
)

// StyleSource resolves computed styles lazily, one node at a time.
type StyleSource interface {
	ComputedStyle(ctx context.Context, tree *entity.AXTree, id entity.NodeID) (entity.Style, error)
}

// Engine runs the rule catalog. It holds no per-page state and is safe for
// concurrent use.
type Engine struct {
	rules  []Rule
	logger *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithEngineLogger sets the logger used for non-fatal style lookup failures.
func WithEngineLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithRules replaces the catalog, mainly for tests that isolate one rule.
func WithRules(rules ...Rule) EngineOption {
	return func(e *Engine) {
		e.rules = rules
	}
}

func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{rules: Catalog()}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// Evaluate runs every rule applicable at level and merges their findings in
// catalog order. styles may be nil, in which case style-dependent rules find nothing.
func (e *Engine) Evaluate(ctx context.Context, tree *entity.AXTree, styles StyleSource, level entity.Level) []entity.Violation {
	ec := &evalContext{
		ctx:    ctx,
		tree:   tree,
		styles: styles,
		level:  level,
		logger: e.logger,
	}
	var out []entity.Violation
	for _, r := range e.rules {
		if !level.Includes(r.Level) {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		for _, v := range r.Check(ec) {
			out = append(out, r.violation(v))
		}
	}
	return out
}

type evalContext struct {
	ctx    context.Context
	tree   *entity.AXTree
	styles StyleSource
	level  entity.Level
	logger *slog.Logger

	// Per-evaluation caches. The tree itself is never written to.
	styleCache map[entity.NodeID]styleLookup
	hiddenMemo map[entity.NodeID]bool
	samples    *[]contrastSample
}

type styleLookup struct {
	style entity.Style
	ok    bool
}

// style returns the node's computed style. A snapshot carried by the node
// wins; otherwise the StyleSource is asked once per node and evaluation.
func (c *evalContext) style(id entity.NodeID) (entity.Style, bool) {
	n := c.tree.Node(id)
	if n == nil {
		return entity.Style{}, false
	}
	if n.Style != nil {
		return *n.Style, true
	}
	if c.styles == nil {
		return entity.Style{}, false
	}
	if l, ok := c.styleCache[id]; ok {
		return l.style, l.ok
	}
	if c.styleCache == nil {
		c.styleCache = make(map[entity.NodeID]styleLookup)
	}
	s, err := c.styles.ComputedStyle(c.ctx, c.tree, id)
	if err != nil {
		c.logger.Debug("Computed style unavailable", "node", id, "role", n.Role, "error", err)
		c.styleCache[id] = styleLookup{}
		return entity.Style{}, false
	}
	c.styleCache[id] = styleLookup{style: s, ok: true}
	return s, true
}

// hidden reports whether the node or an ancestor is hidden from users, by
// the accessibility tree or by its computed style. Every rule sees the same
// answer whatever the level or rule order.
func (c *evalContext) hidden(id entity.NodeID) bool {
	if h, ok := c.hiddenMemo[id]; ok {
		return h
	}
	n := c.tree.Node(id)
	if n == nil {
		return false
	}
	h := n.Hidden
	if !h {
		if st, ok := c.style(id); ok && !st.Visible {
			h = true
		}
	}
	if !h && n.Parent != entity.NoParent {
		h = c.hidden(n.Parent)
	}
	if c.hiddenMemo == nil {
		c.hiddenMemo = make(map[entity.NodeID]bool)
	}
	c.hiddenMemo[id] = h
	return h
}

// visibleWithRole returns exposed nodes with one of roles that are not hidden,
// in arena order.
func (c *evalContext) visibleWithRole(roles ...string) []*entity.AXNode {
	var out []*entity.AXNode
	for _, n := range c.tree.WithRole(roles...) {
		if !c.hidden(n.ID) {
			out = append(out, n)
		}
	}
	return out
}
