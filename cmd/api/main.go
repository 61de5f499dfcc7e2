package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/user/a11y-audit-service/internal/app"
	"github.com/user/a11y-audit-service/internal/delivery/http/handler"
	"github.com/user/a11y-audit-service/internal/delivery/http/router"
	"github.com/user/a11y-audit-service/internal/usecase"
	"github.com/user/a11y-audit-service/pkg/config"
	"github.com/user/a11y-audit-service/pkg/logger"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to a YAML or .env config file")
	flag.Parse()

	// --- Configuration ---
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Could not load config", "error", err)
		return 2
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid config", "error", err)
		return 2
	}

	// --- Logger ---
	logLevel, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		slog.Error("Invalid log level", "error", err)
		return 2
	}
	log := logger.Init(os.Stdout, logLevel, cfg.Log.Format)
	log.Info("Logger initialized", "level", logLevel.String())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Stores ---
	stores, err := app.OpenStores(ctx, cfg, true)
	if err != nil {
		log.Error("Unable to open stores", "backend", cfg.Store.Backend, "error", err)
		return 1
	}
	defer func() {
		if err := stores.Close(); err != nil {
			log.Error("Failed to close stores", "error", err)
		}
	}()

	// --- Browser pool ---
	pool, err := app.NewPool(cfg, log)
	if err != nil {
		log.Error("Unable to create browser pool", "error", err)
		return 1
	}
	defer func() {
		if err := pool.Shutdown(); err != nil {
			log.Error("Browser pool shutdown failed", "error", err)
		}
	}()

	// --- Use Cases ---
	orchestrator := app.NewOrchestrator(cfg, pool, log,
		usecase.WithStateRepository(stores.States),
		usecase.WithResultRepository(stores.Results),
	)
	jobs := usecase.NewJobManager(stores.Jobs, orchestrator,
		usecase.WithJobStates(stores.States),
		usecase.WithJobLogger(log),
	)
	states := usecase.NewStateBrowser(stores.States)

	pool.StartHealthChecks(ctx, cfg.Browser.HealthInterval)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		jobs.Start(ctx, cfg.Jobs.PollInterval)
	}()

	// --- HTTP Server ---
	apiHandler := handler.NewHandler(jobs, states, stores.Results, pool, stores.Jobs)
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router.New(apiHandler),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("Starting server", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	exitCode := 0
	select {
	case <-ctx.Done():
		log.Info("Shutting down server")
	case err := <-serveErr:
		if err != nil {
			log.Error("Could not listen on port", "port", cfg.Server.Port, "error", err)
			exitCode = 1
			stop()
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}
	// The job runner leaves interrupted batches resumable.
	wg.Wait()
	log.Info("Server exiting")
	return exitCode
}
