// Package app wires configuration into the adapters and use cases shared by
// the API server and the CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/user/a11y-audit-service/internal/adapter/chromedp_browser"
	"github.com/user/a11y-audit-service/internal/adapter/postgres"
	redis_adapter "github.com/user/a11y-audit-service/internal/adapter/redis"
	"github.com/user/a11y-audit-service/internal/adapter/sqlite"
	"github.com/user/a11y-audit-service/internal/repository"
	"github.com/user/a11y-audit-service/internal/scoring"
	"github.com/user/a11y-audit-service/internal/usecase"
	"github.com/user/a11y-audit-service/internal/wcag"
	"github.com/user/a11y-audit-service/pkg/config"
)

// Stores holds the repositories of the configured backend.
type Stores struct {
	States  repository.StateRepository
	Results repository.ResultRepository
	// Jobs is set only when requested.
	Jobs repository.JobQueueRepository

	closers []func() error
}

// OpenStores connects to the configured state backend. When withJobQueue is
// set it also connects to Redis for the job queue, whatever the backend.
func OpenStores(ctx context.Context, cfg *config.Config, withJobQueue bool) (*Stores, error) {
	s := &Stores{}

	var rdb *redis.Client
	connectRedis := func() (*redis.Client, error) {
		if rdb != nil {
			return rdb, nil
		}
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if _, err := client.Ping(ctx).Result(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("unable to connect to Redis at %s: %w", cfg.Redis.Addr, err)
		}
		slog.Info("Redis connection established", "addr", cfg.Redis.Addr)
		rdb = client
		s.closers = append(s.closers, client.Close)
		return client, nil
	}

	switch cfg.Store.Backend {
	case config.BackendSQLite:
		db, err := sqlite.Open(ctx, cfg.Store.Dir)
		if err != nil {
			return nil, err
		}
		slog.Info("SQLite store opened", "path", db.Path())
		s.closers = append(s.closers, db.Close)
		s.States = sqlite.NewStateRepo(db)
		s.Results = sqlite.NewResultRepo(db)
	case config.BackendPostgres:
		pool, err := postgres.Connect(ctx, cfg.Postgres.DSN())
		if err != nil {
			return nil, err
		}
		slog.Info("PostgreSQL connection pool established", "host", cfg.Postgres.Host, "db", cfg.Postgres.DB)
		s.closers = append(s.closers, func() error { pool.Close(); return nil })
		s.States = postgres.NewStateRepo(pool)
		s.Results = postgres.NewResultRepo(pool)
	case config.BackendRedis:
		client, err := connectRedis()
		if err != nil {
			return nil, err
		}
		s.States = redis_adapter.NewStateRepo(client)
		s.Results = redis_adapter.NewResultRepo(client)
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownBackend, cfg.Store.Backend)
	}

	if withJobQueue {
		client, err := connectRedis()
		if err != nil {
			_ = s.Close()
			return nil, err
		}
		s.Jobs = redis_adapter.NewJobQueueRepo(client)
	}
	return s, nil
}

// Close releases every connection in reverse order of opening.
func (s *Stores) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	s.closers = nil
	return errors.Join(errs...)
}

// NewPool builds a Chrome-backed browser pool.
func NewPool(cfg *config.Config, logger *slog.Logger) (*chromedp_browser.Pool, error) {
	opts := []chromedp_browser.LauncherOption{chromedp_browser.WithLauncherLogger(logger)}
	if cfg.Browser.ExecPath != "" {
		opts = append(opts, chromedp_browser.WithExecPath(cfg.Browser.ExecPath))
	}
	if cfg.Browser.UserAgent != "" {
		opts = append(opts, chromedp_browser.WithUserAgent(cfg.Browser.UserAgent))
	}
	if cfg.Browser.Headful {
		opts = append(opts, chromedp_browser.WithHeadful())
	}
	if cfg.Browser.DisableImages {
		opts = append(opts, chromedp_browser.WithDisableImages())
	}
	opts = append(opts, chromedp_browser.WithWindowSize(cfg.Browser.WindowWidth, cfg.Browser.WindowHeight))
	return chromedp_browser.NewPool(chromedp_browser.NewChromeLauncher(opts...), chromedp_browser.PoolConfig{
		MaxInstances:    cfg.Browser.MaxInstances,
		MinInstances:    cfg.Browser.MinInstances,
		TabsPerInstance: cfg.Browser.TabsPerInstance,
		AcquireTimeout:  cfg.Browser.AcquireTimeout,
	}, chromedp_browser.WithPoolLogger(logger))
}

// NewOrchestrator applies the audit settings of cfg. Extra options are
// appended, so callers can add persistence or a progress channel.
func NewOrchestrator(cfg *config.Config, pool repository.SessionPool, logger *slog.Logger, extra ...usecase.OrchestratorOption) *usecase.Orchestrator {
	auditor := usecase.NewPageAuditor(
		wcag.NewEngine(wcag.WithEngineLogger(logger)),
		scoring.NewScorer(cfg.Scoring),
		usecase.WithAuditorLogger(logger),
	)
	opts := []usecase.OrchestratorOption{
		usecase.WithConcurrency(cfg.Audit.Concurrency),
		usecase.WithMaxRetries(cfg.Audit.MaxRetries),
		usecase.WithRetryBackoff(cfg.Audit.RetryBackoff),
		usecase.WithPageTimeout(cfg.Audit.PageTimeout),
		usecase.WithRateLimit(cfg.Audit.RateLimit),
		usecase.WithLogger(logger),
	}
	return usecase.NewOrchestrator(pool, auditor, append(opts, extra...)...)
}
