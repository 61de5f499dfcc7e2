package chromedp_browser

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/chromedp/cdproto/accessibility"
	"github.com/user/a11y-audit-service/internal/entity"
)

// hiddenReasons are ignored-reasons that mean the node is not rendered or is
// hidden from assistive technology, as opposed to merely being pruned layout.
var hiddenReasons = map[string]bool{
	"notRendered":       true,
	"notVisible":        true,
	"ariaHiddenElement": true,
	"ariaHiddenSubtree": true,
}

// BuildTree flattens a protocol AX node list into an arena in depth-first
// order. Nodes whose parent is unknown are attached to the root. Document
// metadata becomes the root's lang and title properties; tabindex values are
// keyed by backend DOM node id.
func BuildTree(nodes []*accessibility.Node, meta DocumentMeta, tabindex map[int64]string) (*entity.AXTree, error) {
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%w: empty AX tree", entity.ErrInvalidTree)
	}
	byID := make(map[accessibility.NodeID]*accessibility.Node, len(nodes))
	for _, n := range nodes {
		if n != nil {
			byID[n.NodeID] = n
		}
	}

	var root *accessibility.Node
	for _, n := range nodes {
		if n == nil {
			continue
		}
		if _, ok := byID[n.ParentID]; n.ParentID == "" || !ok {
			root = n
			break
		}
	}
	if root == nil {
		// Every node claims a parent, so the list is cyclic. Start from the first.
		for _, n := range nodes {
			if n != nil {
				root = n
				break
			}
		}
	}

	out := make([]entity.AXNode, 0, len(byID))
	index := make(map[accessibility.NodeID]entity.NodeID, len(byID))

	type frame struct {
		node   *accessibility.Node
		parent entity.NodeID
	}
	walk := func(start *accessibility.Node, parent entity.NodeID) {
		stack := []frame{{start, parent}}
		for len(stack) > 0 {
			f := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if _, seen := index[f.node.NodeID]; seen {
				continue
			}
			id := entity.NodeID(len(out))
			index[f.node.NodeID] = id
			out = append(out, convertNode(f.node, f.parent, tabindex))
			// Push in reverse so children come out in document order.
			for i := len(f.node.ChildIDs) - 1; i >= 0; i-- {
				child, ok := byID[f.node.ChildIDs[i]]
				if !ok {
					continue
				}
				if _, seen := index[child.NodeID]; seen {
					continue
				}
				stack = append(stack, frame{child, id})
			}
		}
	}
	walk(root, entity.NoParent)
	for _, n := range nodes {
		if n == nil {
			continue
		}
		if _, seen := index[n.NodeID]; seen {
			continue
		}
		parent := entity.NodeID(0)
		if p, ok := index[n.ParentID]; ok {
			parent = p
		}
		walk(n, parent)
	}

	r := &out[0]
	if r.Properties == nil {
		r.Properties = make(map[string]string)
	}
	if meta.Lang != "" {
		r.Properties["lang"] = meta.Lang
	}
	if meta.Title != "" {
		r.Properties["title"] = meta.Title
	}
	return entity.NewAXTree(out)
}

func convertNode(n *accessibility.Node, parent entity.NodeID, tabindex map[int64]string) entity.AXNode {
	node := entity.AXNode{
		AXID:        string(n.NodeID),
		BackendID:   int64(n.BackendDOMNodeID),
		Parent:      parent,
		Role:        axString(n.Role),
		Name:        axString(n.Name),
		Description: axString(n.Description),
		Value:       axString(n.Value),
		Ignored:     n.Ignored,
	}
	if len(n.Properties) > 0 {
		node.Properties = make(map[string]string, len(n.Properties))
		for _, p := range n.Properties {
			if p == nil {
				continue
			}
			node.Properties[string(p.Name)] = axString(p.Value)
		}
	}
	if node.PropBool(string(accessibility.PropertyNameHidden)) {
		node.Hidden = true
	}
	for _, r := range n.IgnoredReasons {
		if r != nil && hiddenReasons[string(r.Name)] {
			node.Hidden = true
		}
	}
	if v, ok := tabindex[node.BackendID]; ok && node.BackendID != 0 {
		if node.Properties == nil {
			node.Properties = make(map[string]string, 1)
		}
		node.Properties["tabindex"] = v
	}
	return node
}

// axString decodes an AX value payload into its display string.
func axString(v *accessibility.Value) string {
	if v == nil || len(v.Value) == 0 {
		return ""
	}
	var decoded any
	if err := json.Unmarshal(v.Value, &decoded); err != nil {
		return string(v.Value)
	}
	switch x := decoded.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case nil:
		return ""
	}
	return string(v.Value)
}
