package wcag

import (
	"strings"

	"github.com/user/a11y-audit-service/internal/entity"
)

var imageRoles = []string{"image", "img"}

// checkTextAlternatives flags images that expose no accessible name.
func checkTextAlternatives(c *evalContext) []finding {
	var out []finding
	for _, n := range c.visibleWithRole(imageRoles...) {
		if strings.TrimSpace(n.Name) != "" {
			continue
		}
		out = append(out, finding{
			kind:    entity.KindMissingAltText,
			node:    n,
			message: "Image has no text alternative",
			fix:     `Add an alt attribute describing the image, or alt="" if it is decorative`,
		})
	}
	return out
}
