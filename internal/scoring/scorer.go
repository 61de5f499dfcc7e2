// Package scoring turns a page's violations into a score, letter grade and
// certificate tier.
package scoring

import (
	"strings"

	"github.com/user/a11y-audit-service/internal/entity"
)

// Policy holds the deductions applied by the Scorer.
type Policy struct {
	SeverePenalty float64 `mapstructure:"severe_penalty"`
	MinorPenalty  float64 `mapstructure:"minor_penalty"`

	NoHeadingsPenalty      float64 `mapstructure:"no_headings_penalty"`
	MissingLanguagePenalty float64 `mapstructure:"missing_language_penalty"`
	UnlabeledPenalty       float64 `mapstructure:"unlabeled_penalty"`
	MissingAltPenalty      float64 `mapstructure:"missing_alt_penalty"`
	LowContrastPenalty     float64 `mapstructure:"low_contrast_penalty"`
}

// DefaultPolicy returns the standard deductions.
func DefaultPolicy() Policy {
	return Policy{
		SeverePenalty:          2.5,
		MinorPenalty:           1.0,
		NoHeadingsPenalty:      20,
		MissingLanguagePenalty: 10,
		UnlabeledPenalty:       5,
		MissingAltPenalty:      3,
		LowContrastPenalty:     5,
	}
}

type Scorer struct {
	policy Policy
}

func NewScorer(policy Policy) *Scorer {
	return &Scorer{policy: policy}
}

// Score is deterministic and does not depend on the order of violations.
func (s *Scorer) Score(violations []entity.Violation) entity.Score {
	value := 100.0
	present := make(map[entity.ViolationKind]bool, len(violations))
	for _, v := range violations {
		switch v.Severity {
		case entity.SeverityCritical, entity.SeveritySerious:
			value -= s.policy.SeverePenalty
		default:
			value -= s.policy.MinorPenalty
		}
		present[v.Kind] = true
	}

	// Condition penalties apply once no matter how many instances were found.
	if present[entity.KindNoHeadings] {
		value -= s.policy.NoHeadingsPenalty
	}
	if present[entity.KindMissingLanguage] {
		value -= s.policy.MissingLanguagePenalty
	}
	if present[entity.KindUnlabeledControl] || present[entity.KindUnlabeledFormField] {
		value -= s.policy.UnlabeledPenalty
	}
	if present[entity.KindMissingAltText] {
		value -= s.policy.MissingAltPenalty
	}
	if present[entity.KindLowContrast] || present[entity.KindLowContrastEnhanced] {
		value -= s.policy.LowContrastPenalty
	}

	value = clamp(value)
	return entity.Score{
		Value:       value,
		Grade:       GradeFor(value),
		Certificate: CertificateFor(value),
	}
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// GradeFor maps a score in [0,100] to its letter grade.
func GradeFor(score float64) entity.Grade {
	switch {
	case score >= 90:
		return entity.GradeA
	case score >= 80:
		return entity.GradeB
	case score >= 70:
		return entity.GradeC
	case score >= 60:
		return entity.GradeD
	default:
		return entity.GradeF
	}
}

// CertificateFor maps a score in [0,100] to its certificate tier.
func CertificateFor(score float64) entity.Certificate {
	switch {
	case score >= 95:
		return entity.CertificatePlatinum
	case score >= 85:
		return entity.CertificateGold
	case score >= 75:
		return entity.CertificateSilver
	case score >= 65:
		return entity.CertificateBronze
	default:
		return entity.CertificateNeedsImprovement
	}
}

var principles = map[byte]string{
	'1': "perceivable",
	'2': "operable",
	'3': "understandable",
	'4': "robust",
}

// Summarize counts violations by severity and by WCAG principle.
func Summarize(violations []entity.Violation) entity.ViolationSummary {
	sum := entity.ViolationSummary{
		Total:       len(violations),
		BySeverity:  make(map[entity.Severity]int),
		ByPrinciple: make(map[string]int),
	}
	for _, v := range violations {
		sum.BySeverity[v.Severity]++
		code := strings.TrimSpace(v.Rule)
		if code == "" {
			continue
		}
		if p, ok := principles[code[0]]; ok {
			sum.ByPrinciple[p]++
		}
	}
	return sum
}
