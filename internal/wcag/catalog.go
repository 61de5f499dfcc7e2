package wcag

import (
	"github.com/user/a11y-audit-service/internal/entity"
)

// Rule is one WCAG success criterion with its fixed metadata.
type Rule struct {
	Code     string
	Name     string
	Level    entity.Level
	Severity entity.Severity
	HelpURL  string
	Check    func(*evalContext) []finding
}

// finding is what a check reports; the rule fills in its own metadata.
type finding struct {
	kind     entity.ViolationKind
	severity entity.Severity // empty means the rule default
	node     *entity.AXNode  // nil for page-level findings
	message  string
	fix      string
	contrast *entity.ContrastDetail
	heading  *entity.HeadingDetail
}

func (r Rule) violation(f finding) entity.Violation {
	v := entity.Violation{
		Kind:     f.kind,
		Rule:     r.Code,
		RuleName: r.Name,
		Level:    r.Level,
		Severity: r.Severity,
		Message:  f.message,
		NodeID:   entity.NoNode,
		Fix:      f.fix,
		HelpURL:  r.HelpURL,
		Contrast: f.contrast,
		Heading:  f.heading,
	}
	if f.severity != "" {
		v.Severity = f.severity
	}
	if f.node != nil {
		v.NodeID = f.node.ID
		v.Role = f.node.Role
		v.Name = f.node.Name
	}
	return v
}

const understandingBase = "https://www.w3.org/WAI/WCAG21/Understanding/"

// Catalog returns the full rule set in evaluation order.
func Catalog() []Rule {
	return []Rule{
		{
			Code: "1.1.1", Name: "Non-text Content", Level: entity.LevelA,
			Severity: entity.SeveritySerious, HelpURL: understandingBase + "non-text-content.html",
			Check: checkTextAlternatives,
		},
		{
			Code: "1.3.1", Name: "Info and Relationships", Level: entity.LevelA,
			Severity: entity.SeverityModerate, HelpURL: understandingBase + "info-and-relationships.html",
			Check: checkInfoRelationships,
		},
		{
			Code: "1.4.3", Name: "Contrast (Minimum)", Level: entity.LevelAA,
			Severity: entity.SeveritySerious, HelpURL: understandingBase + "contrast-minimum.html",
			Check: checkContrastMinimum,
		},
		{
			Code: "1.4.6", Name: "Contrast (Enhanced)", Level: entity.LevelAAA,
			Severity: entity.SeveritySerious, HelpURL: understandingBase + "contrast-enhanced.html",
			Check: checkContrastEnhanced,
		},
		{
			Code: "2.1.1", Name: "Keyboard", Level: entity.LevelA,
			Severity: entity.SeverityModerate, HelpURL: understandingBase + "keyboard.html",
			Check: checkKeyboard,
		},
		{
			Code: "2.1.2", Name: "No Keyboard Trap", Level: entity.LevelA,
			Severity: entity.SeverityCritical, HelpURL: understandingBase + "no-keyboard-trap.html",
			Check: checkKeyboardTrap,
		},
		{
			Code: "2.4.1", Name: "Bypass Blocks", Level: entity.LevelA,
			Severity: entity.SeverityModerate, HelpURL: understandingBase + "bypass-blocks.html",
			Check: checkBypassBlocks,
		},
		{
			Code: "2.4.2", Name: "Page Titled", Level: entity.LevelA,
			Severity: entity.SeveritySerious, HelpURL: understandingBase + "page-titled.html",
			Check: checkPageTitled,
		},
		{
			Code: "2.4.4", Name: "Link Purpose (In Context)", Level: entity.LevelA,
			Severity: entity.SeverityModerate, HelpURL: understandingBase + "link-purpose-in-context.html",
			Check: checkLinkPurpose,
		},
		{
			Code: "2.4.6", Name: "Headings and Labels", Level: entity.LevelAA,
			Severity: entity.SeverityMinor, HelpURL: understandingBase + "headings-and-labels.html",
			Check: checkHeadingStructure,
		},
		{
			Code: "2.4.10", Name: "Section Headings", Level: entity.LevelAAA,
			Severity: entity.SeverityMinor, HelpURL: understandingBase + "section-headings.html",
			Check: checkSectionHeadings,
		},
		{
			Code: "3.1.1", Name: "Language of Page", Level: entity.LevelA,
			Severity: entity.SeveritySerious, HelpURL: understandingBase + "language-of-page.html",
			Check: checkLanguage,
		},
		{
			Code: "3.3.2", Name: "Labels or Instructions", Level: entity.LevelA,
			Severity: entity.SeveritySerious, HelpURL: understandingBase + "labels-or-instructions.html",
			Check: checkFormLabels,
		},
		{
			Code: "4.1.2", Name: "Name, Role, Value", Level: entity.LevelA,
			Severity: entity.SeverityCritical, HelpURL: understandingBase + "name-role-value.html",
			Check: checkNameRoleValue,
		},
	}
}

// RuleByCode looks up a catalog entry.
func RuleByCode(code string) (Rule, bool) {
	for _, r := range Catalog() {
		if r.Code == code {
			return r, true
		}
	}
	return Rule{}, false
}
