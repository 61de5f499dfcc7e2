package wcag

import "github.com/user/a11y-audit-service/internal/entity"

func checkBypassBlocks(c *evalContext) []finding {
	if len(c.visibleWithRole("main", "navigation")) > 0 {
		return nil
	}
	return []finding{{
		kind:    entity.KindNoLandmarks,
		message: "Page has no main or navigation landmark",
		fix:     "Wrap the primary content in <main> and menus in <nav>, or add a skip link",
	}}
}
