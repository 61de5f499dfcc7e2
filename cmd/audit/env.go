package main

import (
	"github.com/spf13/cobra"

	"github.com/user/a11y-audit-service/internal/app"
	"github.com/user/a11y-audit-service/internal/usecase"
)

// auditEnv is everything a batch command needs, torn down by close.
type auditEnv struct {
	orchestrator *usecase.Orchestrator
	progress     chan usecase.ProgressEvent
	display      *progressDisplay
	closers      []func()
}

func openAuditEnv(cmd *cobra.Command, persist bool) (*auditEnv, error) {
	ctx := cmd.Context()
	env := &auditEnv{}
	var opts []usecase.OrchestratorOption

	if persist {
		stores, err := app.OpenStores(ctx, cfg, false)
		if err != nil {
			return nil, failure(err)
		}
		env.closers = append(env.closers, func() {
			if err := stores.Close(); err != nil {
				log.Error("Failed to close stores", "error", err)
			}
		})
		opts = append(opts,
			usecase.WithStateRepository(stores.States),
			usecase.WithResultRepository(stores.Results),
		)
	}

	pool, err := app.NewPool(cfg, log)
	if err != nil {
		env.close()
		return nil, failure(err)
	}
	env.closers = append(env.closers, func() {
		if err := pool.Shutdown(); err != nil {
			log.Error("Browser pool shutdown failed", "error", err)
		}
	})
	pool.StartHealthChecks(ctx, cfg.Browser.HealthInterval)

	env.progress = make(chan usecase.ProgressEvent, 16)
	env.display = startProgress(cmd.ErrOrStderr(), env.progress)
	opts = append(opts, usecase.WithProgress(env.progress))

	env.orchestrator = app.NewOrchestrator(cfg, pool, log, opts...)
	return env, nil
}

// close must only be called once the orchestrator has returned, since it
// closes the progress channel.
func (e *auditEnv) close() {
	if e.progress != nil {
		close(e.progress)
		e.display.wait()
	}
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

// finishReport prints the report and turns it into the command's exit status.
func finishReport(cmd *cobra.Command, report *usecase.RunReport, runErr error) error {
	if report == nil {
		return failure(runErr)
	}
	if err := printJSON(cmd.OutOrStdout(), report); err != nil {
		return failure(err)
	}
	if report.PersistErr != nil {
		log.Warn("Batch state could not be saved", "state_id", report.StateID, "error", report.PersistErr)
	}

	s := report.Summary
	log.Info("Audit finished",
		"state_id", report.StateID,
		"passed", s.Passed,
		"failed", s.Failed,
		"crashed", s.Crashed,
		"skipped_redirect", s.Skipped,
		"pending", s.Pending,
		"duration", report.Duration,
	)

	if runErr != nil {
		if cmd.Context().Err() != nil {
			log.Warn("Audit interrupted, resume with the state id", "state_id", report.StateID)
		}
		return failure(runErr)
	}
	if code := s.ExitCode(); code != exitOK {
		return &exitError{code: code}
	}
	return nil
}
