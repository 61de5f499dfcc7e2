package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/user/a11y-audit-service/internal/delivery/http/request"
	"github.com/user/a11y-audit-service/internal/delivery/http/response"
	"github.com/user/a11y-audit-service/internal/entity"
	"github.com/user/a11y-audit-service/internal/repository"
	"github.com/user/a11y-audit-service/internal/usecase"
	"github.com/user/a11y-audit-service/pkg/utils"
)

type JobSubmitter interface {
	Submit(ctx context.Context, job entity.AuditJob) (*entity.AuditJob, error)
}

type StateReader interface {
	List(ctx context.Context) ([]entity.StateSummary, error)
	Show(ctx context.Context, id string) (*entity.QueueState, error)
}

type PoolStatter interface {
	Stats() entity.PoolStats
}

type Handler struct {
	jobs    JobSubmitter
	states  StateReader
	results repository.ResultRepository
	pool    PoolStatter
	queue   repository.JobQueueRepository
}

// NewHandler wires the API. results and queue may be nil when the configured
// backend does not provide them.
func NewHandler(jobs JobSubmitter, states StateReader, results repository.ResultRepository, pool PoolStatter, queue repository.JobQueueRepository) *Handler {
	return &Handler{
		jobs:    jobs,
		states:  states,
		results: results,
		pool:    pool,
		queue:   queue,
	}
}

func (h *Handler) HandleSubmitAudit(w http.ResponseWriter, r *http.Request) {
	var req request.SubmitAuditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	var level entity.Level
	if req.Level != "" {
		l, err := entity.ParseLevel(req.Level)
		if err != nil {
			h.writeJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
		level = l
	}

	job, err := h.jobs.Submit(r.Context(), entity.AuditJob{
		URLs:     req.URLs,
		Homepage: req.Homepage,
		Level:    level,
		Target:   req.Target,
		StateID:  req.StateID,
	})
	if err != nil {
		switch {
		case errors.Is(err, usecase.ErrInvalidJob):
			h.writeJSONError(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, usecase.ErrJobAlreadyQueued):
			h.writeJSONError(w, err.Error(), http.StatusConflict)
		default:
			slog.Error("Failed to submit audit job", "urls", len(req.URLs), "error", err)
			h.writeJSONError(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	h.writeJSON(w, http.StatusAccepted, response.SubmitAuditResponse{
		Status:      "success",
		Message:     "Audit job queued",
		JobID:       job.ID,
		StateID:     job.StateID,
		SubmittedAt: job.SubmittedAt,
	})
}

func (h *Handler) HandleListStates(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.states.List(r.Context())
	if err != nil {
		slog.Error("Failed to list states", "error", err)
		h.writeJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if summaries == nil {
		summaries = []entity.StateSummary{}
	}
	h.writeJSON(w, http.StatusOK, response.StateListResponse{States: summaries})
}

func (h *Handler) HandleGetState(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	state, err := h.states.Show(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrStateNotFound) {
			h.writeJSONError(w, "State not found", http.StatusNotFound)
			return
		}
		slog.Error("Failed to load state", "state_id", id, "error", err)
		h.writeJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, response.StateResponse{QueueState: state, Summary: state.Summary()})
}

func (h *Handler) HandleGetResult(w http.ResponseWriter, r *http.Request) {
	rawURL := r.URL.Query().Get("url")
	if rawURL == "" {
		h.writeJSONError(w, "URL query parameter is required", http.StatusBadRequest)
		return
	}
	if err := utils.ValidateAuditURL(rawURL); err != nil {
		h.writeJSONError(w, "Invalid URL format in query parameter", http.StatusBadRequest)
		return
	}
	if h.results == nil {
		h.writeJSONError(w, "Result storage is not enabled", http.StatusNotImplemented)
		return
	}

	result, err := h.results.FindByURL(r.Context(), rawURL)
	if err != nil {
		if errors.Is(err, repository.ErrResultNotFound) {
			h.writeJSONError(w, "No audit result for the given URL", http.StatusNotFound)
			return
		}
		slog.Error("Failed to get audit result", "url", rawURL, "error", err)
		h.writeJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	resp := response.HealthResponse{Status: "ok"}
	if h.pool != nil {
		resp.Pool = h.pool.Stats()
	}
	if h.queue != nil {
		n, err := h.queue.Size(r.Context())
		if err != nil {
			slog.Warn("Health check could not read job queue", "error", err)
			resp.Status = "degraded"
		} else {
			resp.QueuedJobs = &n
		}
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to write JSON response", "error", err)
	}
}

func (h *Handler) writeJSONError(w http.ResponseWriter, message string, status int) {
	h.writeJSON(w, status, response.ErrorResponse{Error: message})
}
