package wcag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/user/a11y-audit-service/internal/entity"
)

func TestFacts(t *testing.T) {
	nodes := append(cleanPage(),
		entity.AXNode{Parent: 2, Role: "image", Name: "Logo"},
		entity.AXNode{Parent: 2, Role: "textbox", Name: "Email"},
		entity.AXNode{Parent: 2, Role: "link", Name: "Hidden", Hidden: true},
		entity.AXNode{Parent: 0, Role: "contentinfo"},
	)
	got := Facts(buildTree(t, nodes...))
	assert.Equal(t, &entity.PageFacts{
		Title:        "Pricing - Example",
		Language:     "en",
		Headings:     2,
		TopHeadings:  1,
		Links:        1,
		Images:       1,
		Landmarks:    3,
		FormControls: 1,
	}, got)
}

func TestFactsFallsBackToTitleProperty(t *testing.T) {
	tree := buildTree(t, entity.AXNode{Parent: entity.NoParent, Role: "RootWebArea", Properties: map[string]string{"title": " Docs "}})
	got := Facts(tree)
	assert.Equal(t, "Docs", got.Title)
	assert.Empty(t, got.Language)
	assert.Zero(t, got.Headings)
}
