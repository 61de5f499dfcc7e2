package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/user/a11y-audit-service/internal/entity"
	"github.com/user/a11y-audit-service/internal/repository"
	"github.com/user/a11y-audit-service/pkg/utils"
)

var (
	ErrInvalidJob       = errors.New("invalid audit job")
	ErrJobAlreadyQueued = errors.New("state id already in use")
)

// BatchRunner is the part of the Orchestrator the job manager drives.
type BatchRunner interface {
	Run(ctx context.Context, req RunRequest) (*RunReport, error)
	Sample(ctx context.Context, req SampleRequest) (*RunReport, error)
}

// JobManager accepts audit jobs onto the queue and runs them one at a time.
type JobManager struct {
	queue  repository.JobQueueRepository
	states repository.StateRepository
	runner BatchRunner
	logger *slog.Logger
	now    func() time.Time

	// active holds state ids of jobs queued or running in this process.
	mu     sync.Mutex
	active map[string]struct{}
}

type JobManagerOption func(*JobManager)

// WithJobStates lets Submit reject state ids that already exist.
func WithJobStates(states repository.StateRepository) JobManagerOption {
	return func(m *JobManager) { m.states = states }
}

func WithJobLogger(logger *slog.Logger) JobManagerOption {
	return func(m *JobManager) { m.logger = logger }
}

func NewJobManager(queue repository.JobQueueRepository, runner BatchRunner, opts ...JobManagerOption) *JobManager {
	m := &JobManager{queue: queue, runner: runner, now: time.Now, active: make(map[string]struct{})}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	return m
}

// Submit validates job, assigns its ids and queues it. The returned job is
// the one that was queued. A state id is rejected while another job using it
// is queued or running, or once a state with that id has been saved.
func (m *JobManager) Submit(ctx context.Context, job entity.AuditJob) (_ *entity.AuditJob, err error) {
	if err := validateJob(&job); err != nil {
		return nil, err
	}

	explicit := job.StateID != ""
	if !explicit {
		job.StateID = uuid.NewString()
	}
	if !m.reserve(job.StateID) {
		return nil, fmt.Errorf("%w: %s", ErrJobAlreadyQueued, job.StateID)
	}
	defer func() {
		if err != nil {
			m.done(job.StateID)
		}
	}()

	if explicit && m.states != nil {
		_, err := m.states.Load(ctx, job.StateID)
		switch {
		case err == nil:
			return nil, fmt.Errorf("%w: %s", ErrJobAlreadyQueued, job.StateID)
		case !errors.Is(err, repository.ErrStateNotFound):
			return nil, fmt.Errorf("failed to check state %s: %w", job.StateID, err)
		}
	}
	if job.Level == 0 {
		job.Level = entity.LevelAA
	}
	job.ID = uuid.NewString()
	job.SubmittedAt = m.now().UTC()

	if err := m.queue.Push(ctx, &job); err != nil {
		return nil, fmt.Errorf("failed to queue job %s: %w", job.ID, err)
	}
	m.logger.Info("Audit job queued", "job_id", job.ID, "state_id", job.StateID, "urls", len(job.URLs), "target", job.Target)
	return &job, nil
}

// reserve claims id for a new job. It reports false if the id is taken.
func (m *JobManager) reserve(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.active[id]; ok {
		return false
	}
	m.active[id] = struct{}{}
	return true
}

func (m *JobManager) done(id string) {
	m.mu.Lock()
	delete(m.active, id)
	m.mu.Unlock()
}

func validateJob(job *entity.AuditJob) error {
	if len(job.URLs) == 0 && job.Homepage == "" {
		return fmt.Errorf("%w: no URLs", ErrInvalidJob)
	}
	if job.Target < 0 {
		return fmt.Errorf("%w: negative target %d", ErrInvalidJob, job.Target)
	}
	if job.Homepage != "" {
		if err := utils.ValidateAuditURL(job.Homepage); err != nil {
			return fmt.Errorf("%w: homepage: %v", ErrInvalidJob, err)
		}
	}
	for _, u := range job.URLs {
		if err := utils.ValidateAuditURL(u); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidJob, err)
		}
	}
	return nil
}

// RunPending pops one job and runs it to completion. It reports false when
// the queue was empty.
func (m *JobManager) RunPending(ctx context.Context) (bool, error) {
	job, err := m.queue.Pop(ctx)
	if err != nil {
		if errors.Is(err, repository.ErrQueueEmpty) {
			return false, nil
		}
		return false, fmt.Errorf("failed to pop job: %w", err)
	}

	defer m.done(job.StateID)

	m.logger.Info("Processing audit job", "job_id", job.ID, "state_id", job.StateID)
	var report *RunReport
	if job.Target > 0 {
		report, err = m.runner.Sample(ctx, SampleRequest{
			Candidates: job.URLs,
			Homepage:   job.Homepage,
			Target:     job.Target,
			Level:      job.Level,
			StateID:    job.StateID,
		})
	} else {
		report, err = m.runner.Run(ctx, RunRequest{
			URLs:     job.URLs,
			Homepage: job.Homepage,
			Level:    job.Level,
			StateID:  job.StateID,
		})
	}
	if err != nil {
		return true, fmt.Errorf("job %s: %w", job.ID, err)
	}
	m.logger.Info("Audit job finished", "job_id", job.ID, "state_id", report.StateID,
		"passed", report.Summary.Passed, "failed", report.Summary.Failed, "crashed", report.Summary.Crashed)
	return true, nil
}

// Start runs queued jobs until ctx ends, polling every interval while idle.
func (m *JobManager) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		ran, err := m.RunPending(ctx)
		if err != nil && ctx.Err() == nil {
			m.logger.Error("Audit job failed", "error", err)
		}
		if ran && ctx.Err() == nil {
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
