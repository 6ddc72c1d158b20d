package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"reelgen/internal/http/handlers"
	"reelgen/internal/middleware"
)

// Options tunes router-level concerns.
type Options struct {
	RateLimitPerMin int
}

// NewRouter mounts the public API. The metrics endpoint is unauthenticated
// and exempt from rate limiting so scrapes never compete with owners.
func NewRouter(app *handlers.App, registry *prometheus.Registry, logger zerolog.Logger, opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(logger),
	)

	r.Get("/v1/healthz", app.Health)
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	if app.Files != nil {
		r.Get("/static/*", app.StaticFile)
	}

	r.Group(func(r chi.Router) {
		if opts.RateLimitPerMin > 0 {
			r.Use(middleware.RateLimit(opts.RateLimitPerMin, time.Minute))
		}
		r.Use(middleware.Identity)

		r.Route("/v1/generations", func(r chi.Router) {
			r.Post("/", app.GenerationsCreate)
			r.Get("/{job_id}", app.GenerationGet)
			r.Get("/{job_id}/status", app.GenerationStatus)
		})

		r.Route("/v1/credits", func(r chi.Router) {
			r.Get("/balance", app.CreditsBalance)
			r.Post("/grants", app.CreditsGrant)
		})

		r.Route("/v1/batches", func(r chi.Router) {
			r.Post("/", app.BatchesCreate)
			r.Get("/{batch_id}", app.BatchGet)
			r.Delete("/{batch_id}/items/{item_id}", app.BatchItemDelete)
		})
	})

	return r
}
