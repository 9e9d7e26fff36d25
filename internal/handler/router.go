package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/Raymond9734/campaign-dispatch-backend/internal/metrics"
)

// RouterConfig wires handlers into the HTTP surface
type RouterConfig struct {
	Jobs      *JobHandler
	Lists     *ListHandler
	Health    *HealthHandler
	JWTSecret []byte
	Metrics   *metrics.Metrics
	Gatherer  prometheus.Gatherer
	Logger    zerolog.Logger
}

// NewRouter builds the API router
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))
	if cfg.Metrics != nil {
		r.Use(MetricsMiddleware(cfg.Metrics))
	}
	r.Use(CORSMiddleware)

	if cfg.Health != nil {
		r.Get("/health", cfg.Health.Health)
	}
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.JWTSecret))

		r.Post("/preview", cfg.Jobs.Preview)

		r.Route("/campaign-jobs", func(r chi.Router) {
			r.Post("/", cfg.Jobs.CreateJob)
			r.Post("/queue", cfg.Jobs.EnqueueJob)
			r.Get("/", cfg.Jobs.ListJobs)
			r.Get("/{id}", cfg.Jobs.GetJob)
			r.Get("/{id}/recipients", cfg.Jobs.GetRecipients)
			r.Post("/{id}/retry", cfg.Jobs.RetryJob)
			r.Delete("/{id}", cfg.Jobs.DeleteJob)
		})

		if cfg.Lists != nil {
			r.Route("/contact-lists", func(r chi.Router) {
				r.Get("/", cfg.Lists.ListLists)
				r.Post("/", cfg.Lists.ImportList)
			})
		}
	})

	return r
}
