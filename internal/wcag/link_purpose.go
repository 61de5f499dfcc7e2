package wcag

import (
	"fmt"
	"strings"

	"github.com/user/a11y-audit-service/internal/entity"
)

var genericLinkText = map[string]bool{
	"click here": true, "click": true, "here": true, "read more": true, "more": true,
	"learn more": true, "info": true, "information": true, "details": true, "link": true,
	"this link": true, "go": true, "continue": true, "view": true, "see more": true,
	"see all": true, "read": true, "next": true, "previous": true, "...": true, ">": true, ">>": true,
}

func checkLinkPurpose(c *evalContext) []finding {
	var out []finding
	for _, n := range c.visibleWithRole("link") {
		text := strings.TrimSpace(n.Name)
		switch {
		case text == "":
			out = append(out, finding{
				kind:     entity.KindEmptyLink,
				severity: entity.SeverityCritical,
				node:     n,
				message:  "Link has no accessible text",
				fix:      "Add link text, or aria-label for icon links",
			})
		case genericLinkText[strings.ToLower(text)]:
			out = append(out, finding{
				kind:    entity.KindGenericLinkText,
				node:    n,
				message: fmt.Sprintf("Link text %q does not describe its destination", text),
				fix:     "Use link text that makes sense out of context",
			})
		case looksLikeURL(text):
			out = append(out, finding{
				kind:     entity.KindURLLinkText,
				severity: entity.SeverityMinor,
				node:     n,
				message:  "Link text is a raw URL",
				fix:      "Replace the URL with descriptive text",
			})
		}
	}
	return out
}

func looksLikeURL(text string) bool {
	lower := strings.ToLower(text)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") || strings.HasPrefix(lower, "www.") {
		return true
	}
	if strings.ContainsAny(lower, " \t") {
		return false
	}
	for _, tld := range []string{".com", ".org", ".net"} {
		if strings.Contains(lower, tld) {
			return true
		}
	}
	return false
}
