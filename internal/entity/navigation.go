package entity

import (
	"time"

	"github.com/user/a11y-audit-service/pkg/utils"
)

type NavigationState string

const (
	// NavigationIdle is a session that has not navigated yet.
	NavigationIdle       NavigationState = "idle"
	NavigationInProgress NavigationState = "navigating"
	NavigationLoaded     NavigationState = "loaded"
	NavigationTimeout    NavigationState = "timeout"
	NavigationError      NavigationState = "error"
)

// NavigationOutcome describes how a page load ended.
type NavigationOutcome struct {
	RequestedURL string          `json:"requested_url"`
	FinalURL     string          `json:"final_url"`
	StatusChain  []int           `json:"status_chain,omitempty"`
	State        NavigationState `json:"state"`
	Duration     time.Duration   `json:"duration"`
}

// IsRedirect reports a real redirect: the final URL differs from the requested
// one. A 3xx that lands back on the same URL does not count.
func (o *NavigationOutcome) IsRedirect() bool {
	if o.FinalURL == "" {
		return false
	}
	return !utils.SameURL(o.RequestedURL, o.FinalURL)
}

// FinalStatus is the last HTTP status observed, or 0 when none was.
func (o *NavigationOutcome) FinalStatus() int {
	if len(o.StatusChain) == 0 {
		return 0
	}
	return o.StatusChain[len(o.StatusChain)-1]
}
