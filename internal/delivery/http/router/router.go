package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/user/a11y-audit-service/internal/delivery/http/handler"
	"github.com/user/a11y-audit-service/internal/delivery/http/middleware"
)

func New(h *handler.Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logging)
	r.Use(middleware.Metrics)
	r.Use(chimw.Recoverer)

	// Prometheus metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(chimw.Timeout(30 * time.Second))
		r.Get("/health", h.HandleHealthCheck)
		r.Post("/audits", h.HandleSubmitAudit)
		r.Get("/states", h.HandleListStates)
		r.Get("/states/{id}", h.HandleGetState)
		r.Get("/results", h.HandleGetResult)
	})

	return r
}
