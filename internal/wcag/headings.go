package wcag

import (
	"fmt"
	"strings"

	"github.com/user/a11y-audit-service/internal/entity"
)

type heading struct {
	node  *entity.AXNode
	level int
}

// headings returns visible headings in document order. A heading without a
// level property is treated as level 2, which is what browsers expose for role="heading".
func (c *evalContext) headings() []heading {
	var out []heading
	for _, n := range c.visibleWithRole("heading") {
		lvl, ok := n.PropInt("level")
		if !ok || lvl < 1 {
			lvl = 2
		}
		out = append(out, heading{node: n, level: lvl})
	}
	return out
}

// checkInfoRelationships covers structure that must be exposed programmatically:
// heading order, empty headings and data tables without header cells.
func checkInfoRelationships(c *evalContext) []finding {
	var out []finding
	prev := 0
	for _, h := range c.headings() {
		if strings.TrimSpace(h.node.Name) == "" {
			out = append(out, finding{
				kind:    entity.KindEmptyHeading,
				node:    h.node,
				message: fmt.Sprintf("Heading level %d has no text", h.level),
				fix:     "Give the heading text content or remove it",
			})
		}
		if prev > 0 && h.level > prev+1 {
			out = append(out, finding{
				kind:    entity.KindSkippedHeadingLevel,
				node:    h.node,
				message: fmt.Sprintf("Heading level skipped from h%d to h%d", prev, h.level),
				fix:     fmt.Sprintf("Use h%d here or add the missing intermediate levels", prev+1),
				heading: &entity.HeadingDetail{From: prev, To: h.level},
			})
		}
		prev = h.level
	}

	for _, t := range c.visibleWithRole("table", "grid") {
		if !c.hasDescendantRole(t.ID, "columnheader", "rowheader") {
			out = append(out, finding{
				kind:    entity.KindTableWithoutHeaders,
				node:    t,
				message: "Table has no header cells",
				fix:     "Mark header cells with <th> and a scope attribute",
			})
		}
	}
	return out
}

// checkHeadingStructure looks at the page outline as a whole.
func checkHeadingStructure(c *evalContext) []finding {
	hs := c.headings()
	if len(hs) == 0 {
		return []finding{{
			kind:    entity.KindNoHeadings,
			message: "Page has no headings",
			fix:     "Structure the content with headings, starting with a single h1",
		}}
	}

	var out []finding
	var h1s []heading
	for _, h := range hs {
		if h.level == 1 {
			h1s = append(h1s, h)
		}
	}
	switch {
	case len(h1s) == 0:
		out = append(out, finding{
			kind:    entity.KindMissingH1,
			node:    hs[0].node,
			message: "Page has headings but no h1",
			fix:     "Add one h1 that describes the page",
		})
	case len(h1s) > 1:
		for _, h := range h1s[1:] {
			out = append(out, finding{
				kind:    entity.KindMultipleH1,
				node:    h.node,
				message: fmt.Sprintf("Page has %d h1 headings", len(h1s)),
				fix:     "Keep a single h1 and demote the others",
			})
		}
	}
	return out
}

// sectionHeadingTextThreshold is the amount of visible text at which a page
// is expected to be split into sections.
const sectionHeadingTextThreshold = 20

func checkSectionHeadings(c *evalContext) []finding {
	texts := 0
	for _, n := range c.visibleWithRole(textRoles...) {
		if strings.TrimSpace(n.Name) != "" {
			texts++
		}
	}
	hs := c.headings()
	if texts < sectionHeadingTextThreshold || len(hs) >= 2 {
		return nil
	}
	return []finding{{
		kind:    entity.KindFewSectionHeadings,
		message: fmt.Sprintf("Page has %d text blocks but only %d section headings", texts, len(hs)),
		fix:     "Organize long content into sections with descriptive headings",
	}}
}

func (c *evalContext) hasDescendantRole(id entity.NodeID, roles ...string) bool {
	for _, d := range c.tree.Descendants(id) {
		n := c.tree.Node(d)
		for _, r := range roles {
			if n.Role == r {
				return true
			}
		}
	}
	return false
}
