package entity

import (
	"fmt"
	"strings"
)

// Level is a WCAG conformance level. A ⊂ AA ⊂ AAA.
type Level int

const (
	LevelA Level = iota + 1
	LevelAA
	LevelAAA
)

func (l Level) String() string {
	switch l {
	case LevelA:
		return "A"
	case LevelAA:
		return "AA"
	case LevelAAA:
		return "AAA"
	}
	return fmt.Sprintf("Level(%d)", int(l))
}

// Includes reports whether a rule at level other applies when auditing at l.
func (l Level) Includes(other Level) bool { return other <= l }

// MarshalText encodes an unset level as the empty string.
func (l Level) MarshalText() ([]byte, error) {
	if l == 0 {
		return []byte{}, nil
	}
	return []byte(l.String()), nil
}

func (l *Level) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*l = 0
		return nil
	}
	p, err := ParseLevel(string(b))
	if err != nil {
		return err
	}
	*l = p
	return nil
}

func ParseLevel(s string) (Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "A":
		return LevelA, nil
	case "AA":
		return LevelAA, nil
	case "AAA":
		return LevelAAA, nil
	}
	return 0, fmt.Errorf("unknown WCAG level %q", s)
}

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeveritySerious  Severity = "serious"
	SeverityModerate Severity = "moderate"
	SeverityMinor    Severity = "minor"
)

// ViolationKind enumerates every finding the rule catalog can produce.
type ViolationKind string

const (
	KindMissingAltText          ViolationKind = "missing_alt_text"
	KindSkippedHeadingLevel     ViolationKind = "skipped_heading_level"
	KindEmptyHeading            ViolationKind = "empty_heading"
	KindTableWithoutHeaders     ViolationKind = "table_without_headers"
	KindLowContrast             ViolationKind = "low_contrast"
	KindLowContrastEnhanced     ViolationKind = "low_contrast_enhanced"
	KindPositiveTabindex        ViolationKind = "positive_tabindex"
	KindFocusableNonInteractive ViolationKind = "focusable_non_interactive"
	KindKeyboardTrap            ViolationKind = "keyboard_trap"
	KindNoLandmarks             ViolationKind = "no_landmarks"
	KindMissingPageTitle        ViolationKind = "missing_page_title"
	KindEmptyLink               ViolationKind = "empty_link"
	KindGenericLinkText         ViolationKind = "generic_link_text"
	KindURLLinkText             ViolationKind = "url_link_text"
	KindNoHeadings              ViolationKind = "no_headings"
	KindMultipleH1              ViolationKind = "multiple_h1"
	KindMissingH1               ViolationKind = "missing_h1"
	KindFewSectionHeadings      ViolationKind = "few_section_headings"
	KindMissingLanguage         ViolationKind = "missing_language"
	KindUnlabeledFormField      ViolationKind = "unlabeled_form_field"
	KindUnlabeledControl        ViolationKind = "unlabeled_control"
)

// ContrastDetail is the payload of contrast violations.
type ContrastDetail struct {
	Ratio      float64 `json:"ratio"`
	Required   float64 `json:"required"`
	LargeText  bool    `json:"large_text"`
	Foreground string  `json:"foreground"`
	Background string  `json:"background"`
}

// HeadingDetail is the payload of heading level skips.
type HeadingDetail struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// Violation is a single rule failure. Values are never mutated after creation.
type Violation struct {
	Kind     ViolationKind   `json:"kind"`
	Rule     string          `json:"rule"`
	RuleName string          `json:"rule_name"`
	Level    Level           `json:"level"`
	Severity Severity        `json:"severity"`
	Message  string          `json:"message"`
	NodeID   NodeID          `json:"node_id"`
	Role     string          `json:"role,omitempty"`
	Name     string          `json:"name,omitempty"`
	Fix      string          `json:"fix,omitempty"`
	HelpURL  string          `json:"help_url,omitempty"`
	Contrast *ContrastDetail `json:"contrast,omitempty"`
	Heading  *HeadingDetail  `json:"heading,omitempty"`
}

// ViolationSummary aggregates violations for reporting.
type ViolationSummary struct {
	Total       int              `json:"total"`
	BySeverity  map[Severity]int `json:"by_severity"`
	ByPrinciple map[string]int   `json:"by_principle"`
}
