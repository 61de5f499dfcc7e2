package entity

import "time"

// AuditStatus is the terminal outcome of one page.
type AuditStatus string

const (
	AuditPassed          AuditStatus = "passed"
	AuditFailed          AuditStatus = "failed"
	AuditCrashed         AuditStatus = "crashed"
	AuditSkippedRedirect AuditStatus = "skipped_redirect"
)

type Grade string

const (
	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"
	GradeD Grade = "D"
	GradeF Grade = "F"
)

type Certificate string

const (
	CertificatePlatinum         Certificate = "PLATINUM"
	CertificateGold             Certificate = "GOLD"
	CertificateSilver           Certificate = "SILVER"
	CertificateBronze           Certificate = "BRONZE"
	CertificateNeedsImprovement Certificate = "NEEDS_IMPROVEMENT"
)

// Score is the scorer's output for one page.
type Score struct {
	Value       float64     `json:"score"`
	Grade       Grade       `json:"grade"`
	Certificate Certificate `json:"certificate"`
}

// AuditResult is the per-page record consumed by report generators.
type AuditResult struct {
	URL           string           `json:"url"`
	FinalURL      string           `json:"final_url"`
	Homepage      bool             `json:"homepage,omitempty"`
	Level         Level            `json:"level"`
	Status        AuditStatus      `json:"status"`
	Duration      time.Duration    `json:"duration"`
	NodeCount     int              `json:"node_count"`
	Violations    []Violation      `json:"violations"`
	Summary       ViolationSummary `json:"summary"`
	Score         float64          `json:"score"`
	Grade         Grade            `json:"grade"`
	Certificate   Certificate      `json:"certificate"`
	Attempts      int              `json:"attempts"`
	Error         string           `json:"error,omitempty"`
	RedirectChain []int            `json:"redirect_chain,omitempty"`
	Page          *PageFacts       `json:"page,omitempty"`
	StartedAt     time.Time        `json:"started_at"`
	FinishedAt    time.Time        `json:"finished_at"`
}

// PageFacts are document-level facts read from the accessibility tree of an
// audited page. Crashed and skipped pages have none.
type PageFacts struct {
	Title        string `json:"title"`
	Language     string `json:"language,omitempty"`
	Headings     int    `json:"headings"`
	TopHeadings  int    `json:"top_headings"`
	Links        int    `json:"links"`
	Images       int    `json:"images"`
	Landmarks    int    `json:"landmarks"`
	FormControls int    `json:"form_controls"`
}

// URLStatus returns the queue status matching the audit outcome.
func (r *AuditResult) URLStatus() URLStatus {
	switch r.Status {
	case AuditPassed:
		return URLPassed
	case AuditFailed:
		return URLFailed
	case AuditSkippedRedirect:
		return URLSkippedRedirect
	default:
		return URLCrashed
	}
}

// BatchSummary counts page outcomes for one run.
type BatchSummary struct {
	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Crashed int `json:"crashed"`
	Skipped int `json:"skipped_redirect"`
	Pending int `json:"pending"`
}

// ExitCode is non-zero only when a page crashed. Non-compliant pages are not a process failure.
func (s BatchSummary) ExitCode() int {
	if s.Crashed > 0 {
		return 1
	}
	return 0
}
