package wcag

import (
	"fmt"
	"strings"

	"github.com/user/a11y-audit-service/internal/entity"
)

var formFieldRoles = []string{
	"textbox", "searchbox", "combobox", "listbox", "checkbox",
	"radio", "slider", "spinbutton", "switch",
}

// interactiveRoles are widgets that must expose a name to assistive technology.
var interactiveRoles = append([]string{
	"button", "menuitem", "menuitemcheckbox", "menuitemradio", "tab", "option", "treeitem",
}, formFieldRoles...)

func checkFormLabels(c *evalContext) []finding {
	var out []finding
	for _, n := range c.visibleWithRole(formFieldRoles...) {
		if strings.TrimSpace(n.Name) != "" {
			continue
		}
		out = append(out, finding{
			kind:    entity.KindUnlabeledFormField,
			node:    n,
			message: fmt.Sprintf("Form field (%s) has no label", n.Role),
			fix:     "Associate a <label> with the field or add aria-label",
		})
	}
	return out
}

func checkNameRoleValue(c *evalContext) []finding {
	var out []finding
	for _, n := range c.visibleWithRole(interactiveRoles...) {
		if strings.TrimSpace(n.Name) != "" {
			continue
		}
		out = append(out, finding{
			kind:    entity.KindUnlabeledControl,
			node:    n,
			message: fmt.Sprintf("Interactive %s has no accessible name", n.Role),
			fix:     "Provide visible text, aria-label or aria-labelledby",
		})
	}
	return out
}
