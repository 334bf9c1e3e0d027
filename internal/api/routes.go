package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ignite/crm-automation/internal/pkg/metrics"
)

// SetupRoutes configures the ops routes. CORS is only enabled when
// allowedOrigins is non-empty.
func SetupRoutes(h *Handlers, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)

	if len(allowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: allowedOrigins,
			AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
			ExposedHeaders: []string{"X-Request-Id"},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", h.HealthCheck)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	if h.jobs != nil {
		r.Post("/jobs/{job}/run", h.RunJob)
	}
	if h.campaigns != nil {
		r.Post("/campaigns/{id}/start", h.StartCampaign)
	}
	if h.scoring != nil {
		r.Post("/contacts/{id}/events/{trigger}", h.RecordEvent)
	}
	if h.assignment != nil {
		r.Post("/contacts/{id}/assign", h.AssignLead)
	}
	if h.suppressions != nil {
		r.Route("/suppressions", func(r chi.Router) {
			r.Get("/", h.ListSuppressions)
			r.Post("/", h.Suppress)
			r.Delete("/{email}", h.RemoveSuppression)
		})
	}

	return r
}
