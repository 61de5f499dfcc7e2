package entity

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// NodeID indexes a node inside an AXTree arena.
type NodeID int

const (
	// NoParent marks the root of a tree.
	NoParent NodeID = -1
	// NoNode is used by page-level violations that are not tied to a node.
	NoNode NodeID = -1
)

var ErrInvalidTree = errors.New("invalid accessibility tree")

// Style is the subset of computed CSS a rule can ask for.
type Style struct {
	Color           string `json:"color"`
	BackgroundColor string `json:"background_color"`
	FontSize        string `json:"font_size"`
	FontWeight      string `json:"font_weight"`
	Visible         bool   `json:"visible"`
}

// AXNode is one accessibility node. Parents are referenced by index, never by pointer.
type AXNode struct {
	ID          NodeID            `json:"id"`
	AXID        string            `json:"ax_id"`
	BackendID   int64             `json:"backend_id,omitempty"`
	Parent      NodeID            `json:"parent"`
	Role        string            `json:"role"`
	Name        string            `json:"name,omitempty"`
	Description string            `json:"description,omitempty"`
	Value       string            `json:"value,omitempty"`
	Ignored     bool              `json:"ignored,omitempty"`
	Hidden      bool              `json:"hidden,omitempty"`
	Properties  map[string]string `json:"properties,omitempty"`
	Style       *Style            `json:"style,omitempty"`
}

// Prop returns a property value and whether it was set.
func (n *AXNode) Prop(key string) (string, bool) {
	v, ok := n.Properties[key]
	return v, ok
}

// PropBool reports whether the property is set to "true".
func (n *AXNode) PropBool(key string) bool {
	v, ok := n.Properties[key]
	return ok && strings.EqualFold(v, "true")
}

// PropInt parses an integer property. Missing or malformed values return ok=false.
func (n *AXNode) PropInt(key string) (int, bool) {
	v, ok := n.Properties[key]
	if !ok {
		return 0, false
	}
	i, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, false
	}
	return i, true
}

// AXTree is a flat arena of nodes with parent indices.
type AXTree struct {
	Nodes    []AXNode `json:"nodes"`
	root     NodeID
	children [][]NodeID
}

// NewAXTree validates the arena and builds the child index. The nodes are
// copied, and node IDs are rewritten to match their slice position.
func NewAXTree(nodes []AXNode) (*AXTree, error) {
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%w: no nodes", ErrInvalidTree)
	}
	nodes = append([]AXNode(nil), nodes...)
	t := &AXTree{Nodes: nodes, root: NoParent, children: make([][]NodeID, len(nodes))}
	for i := range t.Nodes {
		n := &t.Nodes[i]
		n.ID = NodeID(i)
		if n.Parent == NoParent {
			if t.root != NoParent {
				return nil, fmt.Errorf("%w: multiple roots (%d and %d)", ErrInvalidTree, t.root, i)
			}
			t.root = NodeID(i)
			continue
		}
		if n.Parent < 0 || int(n.Parent) >= len(nodes) {
			return nil, fmt.Errorf("%w: node %d has unknown parent %d", ErrInvalidTree, i, n.Parent)
		}
		t.children[n.Parent] = append(t.children[n.Parent], NodeID(i))
	}
	if t.root == NoParent {
		return nil, fmt.Errorf("%w: no root", ErrInvalidTree)
	}

	// Every node must reach the root; anything else sits on a cycle.
	state := make([]uint8, len(nodes)) // 0 unknown, 1 visiting, 2 reaches root
	state[t.root] = 2
	for i := range t.Nodes {
		var path []NodeID
		cur := NodeID(i)
		for state[cur] == 0 {
			state[cur] = 1
			path = append(path, cur)
			cur = t.Nodes[cur].Parent
		}
		if state[cur] == 1 {
			return nil, fmt.Errorf("%w: node %d is its own ancestor", ErrInvalidTree, cur)
		}
		for _, p := range path {
			state[p] = 2
		}
	}
	return t, nil
}

func (t *AXTree) Len() int { return len(t.Nodes) }

func (t *AXTree) Root() *AXNode { return &t.Nodes[t.root] }

// Node returns the node at id, or nil when out of range.
func (t *AXTree) Node(id NodeID) *AXNode {
	if id < 0 || int(id) >= len(t.Nodes) {
		return nil
	}
	return &t.Nodes[id]
}

func (t *AXTree) Children(id NodeID) []NodeID {
	if id < 0 || int(id) >= len(t.children) {
		return nil
	}
	return t.children[id]
}

// Ancestors returns the parent chain of id, nearest first.
func (t *AXTree) Ancestors(id NodeID) []NodeID {
	var out []NodeID
	for n := t.Node(id); n != nil && n.Parent != NoParent; n = t.Node(n.Parent) {
		out = append(out, n.Parent)
	}
	return out
}

// Descendants walks the subtree below id in depth-first order.
func (t *AXTree) Descendants(id NodeID) []NodeID {
	var out []NodeID
	stack := append([]NodeID(nil), t.Children(id)...)
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		out = append(out, cur)
		stack = append(stack, t.Children(cur)...)
	}
	return out
}

// IsHidden reports whether the node or any ancestor is hidden by the
// accessibility tree or by a style snapshot carried on the node.
func (t *AXTree) IsHidden(id NodeID) bool {
	for n := t.Node(id); n != nil; n = t.Node(n.Parent) {
		if n.Hidden || (n.Style != nil && !n.Style.Visible) {
			return true
		}
	}
	return false
}

// WithRole returns exposed nodes whose role matches one of roles, in arena
// order. Hidden nodes are included.
func (t *AXTree) WithRole(roles ...string) []*AXNode {
	var out []*AXNode
	for i := range t.Nodes {
		n := &t.Nodes[i]
		if n.Ignored {
			continue
		}
		for _, r := range roles {
			if n.Role == r {
				out = append(out, n)
				break
			}
		}
	}
	return out
}

// VisibleWithRole is WithRole without nodes for which IsHidden holds.
func (t *AXTree) VisibleWithRole(roles ...string) []*AXNode {
	var out []*AXNode
	for _, n := range t.WithRole(roles...) {
		if !t.IsHidden(n.ID) {
			out = append(out, n)
		}
	}
	return out
}
