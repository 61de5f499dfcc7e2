package wcag

import (
	"fmt"
	"strings"

	"github.com/user/a11y-audit-service/internal/entity"
)

var nonInteractiveRoles = map[string]bool{
	"generic": true, "group": true, "region": true, "article": true, "section": true,
	"paragraph": true, "none": true, "presentation": true,
}

func checkKeyboard(c *evalContext) []finding {
	var out []finding
	root := c.tree.Root()
	for i := range c.tree.Nodes {
		n := &c.tree.Nodes[i]
		if n.Ignored || n.ID == root.ID || c.hidden(n.ID) {
			continue
		}
		tabindex, hasTabindex := n.PropInt("tabindex")
		if hasTabindex && tabindex > 0 {
			out = append(out, finding{
				kind:    entity.KindPositiveTabindex,
				node:    n,
				message: fmt.Sprintf("Positive tabindex (%d) disrupts the natural tab order", tabindex),
				fix:     `Use tabindex="0" for focusable elements or tabindex="-1" for programmatic focus`,
			})
		}
		// Only an explicit tabindex counts here; browsers make scroll containers focusable on their own.
		if hasTabindex && tabindex >= 0 && nonInteractiveRoles[strings.ToLower(n.Role)] {
			out = append(out, finding{
				kind:     entity.KindFocusableNonInteractive,
				severity: entity.SeverityMinor,
				node:     n,
				message:  "Focusable element has no interactive role",
				fix:      "Add an appropriate ARIA role or use a native interactive element",
			})
		}
	}
	return out
}

// checkKeyboardTrap flags modal dialogs that offer nothing to focus, leaving
// keyboard users with no way to dismiss them.
func checkKeyboardTrap(c *evalContext) []finding {
	var out []finding
	for _, n := range c.visibleWithRole("dialog", "alertdialog") {
		if !n.PropBool("modal") {
			continue
		}
		if c.hasFocusableDescendant(n.ID) {
			continue
		}
		out = append(out, finding{
			kind:    entity.KindKeyboardTrap,
			node:    n,
			message: "Modal dialog contains no focusable element to dismiss it",
			fix:     "Provide a keyboard-reachable close control and support Escape",
		})
	}
	return out
}

func (c *evalContext) hasFocusableDescendant(id entity.NodeID) bool {
	for _, d := range c.tree.Descendants(id) {
		n := c.tree.Node(d)
		if !n.Ignored && n.PropBool("focusable") && !c.hidden(d) {
			return true
		}
	}
	return false
}
