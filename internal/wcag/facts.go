package wcag

import (
	"strings"

	"github.com/user/a11y-audit-service/internal/entity"
)

var landmarkRoles = []string{
	"banner", "complementary", "contentinfo", "form", "main", "navigation", "region", "search",
}

// Facts summarizes the document behind tree. Nodes hidden by the tree itself
// are not counted; style visibility is not consulted.
func Facts(tree *entity.AXTree) *entity.PageFacts {
	root := tree.Root()
	f := &entity.PageFacts{Title: strings.TrimSpace(root.Name)}
	if f.Title == "" {
		title, _ := root.Prop("title")
		f.Title = strings.TrimSpace(title)
	}
	lang, _ := root.Prop("lang")
	f.Language = strings.TrimSpace(lang)

	for _, n := range tree.VisibleWithRole("heading") {
		f.Headings++
		if lvl, ok := n.PropInt("level"); ok && lvl == 1 {
			f.TopHeadings++
		}
	}
	f.Links = len(tree.VisibleWithRole("link"))
	f.Images = len(tree.VisibleWithRole(imageRoles...))
	f.Landmarks = len(tree.VisibleWithRole(landmarkRoles...))
	f.FormControls = len(tree.VisibleWithRole(formFieldRoles...))
	return f
}
