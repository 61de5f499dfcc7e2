package response

import (
	"time"

	"github.com/user/a11y-audit-service/internal/entity"
)

type SubmitAuditResponse struct {
	Status      string    `json:"status"`
	Message     string    `json:"message"`
	JobID       string    `json:"job_id"`
	StateID     string    `json:"state_id"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// HealthResponse reports service liveness with pool occupancy.
type HealthResponse struct {
	Status     string           `json:"status"`
	Pool       entity.PoolStats `json:"pool"`
	QueuedJobs *int64           `json:"queued_jobs,omitempty"`
}

type StateListResponse struct {
	States []entity.StateSummary `json:"states"`
}

// StateResponse is a QueueState with its counts precomputed.
type StateResponse struct {
	*entity.QueueState
	Summary entity.StateSummary `json:"summary"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
