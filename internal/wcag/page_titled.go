package wcag

import (
	"fmt"
	"strings"

	"github.com/user/a11y-audit-service/internal/entity"
)

var genericTitles = map[string]bool{
	"untitled":          true,
	"untitled document": true,
	"document":          true,
	"home":              true,
	"page":              true,
	"new page":          true,
	"index":             true,
	"title":             true,
}

func checkPageTitled(c *evalContext) []finding {
	root := c.tree.Root()
	title := strings.TrimSpace(root.Name)
	if title == "" {
		title, _ = root.Prop("title")
		title = strings.TrimSpace(title)
	}
	switch {
	case title == "":
		return []finding{{
			kind:    entity.KindMissingPageTitle,
			node:    root,
			message: "Page has no title",
			fix:     "Add a <title> element that describes the page",
		}}
	case genericTitles[strings.ToLower(title)]:
		return []finding{{
			kind:    entity.KindMissingPageTitle,
			node:    root,
			message: fmt.Sprintf("Page title %q does not describe the page", title),
			fix:     "Use a title that names the page topic and the site",
		}}
	}
	return nil
}
