package entity

import "time"

// AuditJob is a batch request waiting in the job queue.
type AuditJob struct {
	ID          string    `json:"id"`
	StateID     string    `json:"state_id"`
	URLs        []string  `json:"urls"`
	Homepage    string    `json:"homepage,omitempty"`
	Level       Level     `json:"level"`
	Target      int       `json:"target,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
}
