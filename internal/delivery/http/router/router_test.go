package router

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/user/a11y-audit-service/internal/delivery/http/handler"
	"github.com/user/a11y-audit-service/internal/delivery/http/response"
	"github.com/user/a11y-audit-service/internal/entity"
	"github.com/user/a11y-audit-service/internal/repository"
	"github.com/user/a11y-audit-service/internal/usecase"
)

type stubJobs struct {
	got entity.AuditJob
	err error
}

func (s *stubJobs) Submit(_ context.Context, job entity.AuditJob) (*entity.AuditJob, error) {
	s.got = job
	if s.err != nil {
		return nil, s.err
	}
	job.ID = "job-1"
	if job.StateID == "" {
		job.StateID = "state-1"
	}
	job.SubmittedAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &job, nil
}

type stubStates struct {
	states map[string]*entity.QueueState
}

func (s *stubStates) List(context.Context) ([]entity.StateSummary, error) {
	var out []entity.StateSummary
	for _, st := range s.states {
		out = append(out, st.Summary())
	}
	return out, nil
}

func (s *stubStates) Show(_ context.Context, id string) (*entity.QueueState, error) {
	st, ok := s.states[id]
	if !ok {
		return nil, fmt.Errorf("load %s: %w", id, repository.ErrStateNotFound)
	}
	return st, nil
}

type stubResults map[string]*entity.AuditResult

func (s stubResults) Save(_ context.Context, r *entity.AuditResult) error {
	s[r.URL] = r
	return nil
}

func (s stubResults) FindByURL(_ context.Context, url string) (*entity.AuditResult, error) {
	r, ok := s[url]
	if !ok {
		return nil, repository.ErrResultNotFound
	}
	return r, nil
}

type stubPool struct{}

func (stubPool) Stats() entity.PoolStats {
	return entity.PoolStats{MaxInstances: 2, TabsPerInstance: 3, Capacity: 6, InUse: 1}
}

func newTestServer(t *testing.T, jobs *stubJobs) http.Handler {
	t.Helper()
	now := time.Now()
	st := entity.NewQueueState("batch-1", "https://shop.test/", entity.LevelAA, []string{"https://shop.test/", "https://shop.test/a"}, now)
	st.Set("https://shop.test/", entity.URLPassed, now)
	states := &stubStates{states: map[string]*entity.QueueState{"batch-1": st}}
	results := stubResults{"https://shop.test/": {URL: "https://shop.test/", Status: entity.AuditPassed, Score: 100, Grade: entity.GradeA}}
	return New(handler.NewHandler(jobs, states, results, stubPool{}, nil))
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	rec := do(t, newTestServer(t, &stubJobs{}), http.MethodGet, "/api/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp response.HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 6, resp.Pool.Capacity)
	assert.Nil(t, resp.QueuedJobs)
}

func TestSubmitAudit(t *testing.T) {
	jobs := &stubJobs{}
	h := newTestServer(t, jobs)

	rec := do(t, h, http.MethodPost, "/api/audits", `{"urls":["https://shop.test/a"],"homepage":"https://shop.test/","level":"aaa","target":3}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp response.SubmitAuditResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "job-1", resp.JobID)
	assert.Equal(t, "state-1", resp.StateID)
	assert.Equal(t, entity.LevelAAA, jobs.got.Level)
	assert.Equal(t, 3, jobs.got.Target)
	assert.Equal(t, "https://shop.test/", jobs.got.Homepage)
}

func TestSubmitAuditErrors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		err    error
		status int
	}{
		{"malformed body", `{"urls":`, nil, http.StatusBadRequest},
		{"bad level", `{"urls":["https://shop.test/"],"level":"AAAA"}`, nil, http.StatusBadRequest},
		{"invalid job", `{"urls":["nope"]}`, fmt.Errorf("%w: nope", usecase.ErrInvalidJob), http.StatusBadRequest},
		{"duplicate state", `{"urls":["https://shop.test/"],"state_id":"batch-1"}`, usecase.ErrJobAlreadyQueued, http.StatusConflict},
		{"queue down", `{"urls":["https://shop.test/"]}`, fmt.Errorf("push: connection refused"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, newTestServer(t, &stubJobs{err: tt.err}), http.MethodPost, "/api/audits", tt.body)
			assert.Equal(t, tt.status, rec.Code)
			var resp response.ErrorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestStates(t *testing.T) {
	h := newTestServer(t, &stubJobs{})

	rec := do(t, h, http.MethodGet, "/api/states", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list response.StateListResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	require.Len(t, list.States, 1)
	assert.Equal(t, 1, list.States[0].Passed)

	rec = do(t, h, http.MethodGet, "/api/states/batch-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "batch-1", body["id"])
	assert.Equal(t, "AA", body["level"])
	assert.Equal(t, map[string]any{"https://shop.test/": "passed", "https://shop.test/a": "pending"}, body["urls"])

	rec = do(t, h, http.MethodGet, "/api/states/unknown", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestResults(t *testing.T) {
	h := newTestServer(t, &stubJobs{})

	rec := do(t, h, http.MethodGet, "/api/results?url=https://shop.test/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var r entity.AuditResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&r))
	assert.Equal(t, entity.GradeA, r.Grade)

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/api/results?url=https://shop.test/missing", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/results", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/results?url=shop", "").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestServer(t, &stubJobs{})
	do(t, h, http.MethodGet, "/api/states/batch-1", "")

	rec := do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `http_requests_total{method="GET",path="/api/states/{id}",status="200"}`)
}

func TestMethodNotAllowed(t *testing.T) {
	rec := do(t, newTestServer(t, &stubJobs{}), http.MethodDelete, "/api/audits", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
