package http

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robertarktes/rental-reservations/internal/auth"
	"github.com/robertarktes/rental-reservations/internal/idempotency"
	"github.com/robertarktes/rental-reservations/internal/observability"
)

// SetupRouter wires the API. verifier, rl and idemp may be nil to disable
// token checks, rate limiting and idempotent replay.
func SetupRouter(h *Handlers, logger observability.Logger, verifier *auth.Verifier, rl Limiter, idemp *idempotency.Idempotency) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggerMiddleware(logger))
	r.Use(TracingMiddleware)
	r.Use(MetricsMiddleware)
	r.Use(AuthMiddleware(verifier))
	r.Use(RateLimitMiddleware(rl))

	r.Get("/v1/healthz", h.Healthz)
	r.Get("/v1/readyz", h.Readyz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Route("/v1/properties/{id}", func(r chi.Router) {
		r.Get("/availability", h.Availability)
		r.Get("/quote", h.Quote)
		r.Get("/overrides", h.ListOverrides)
		r.Post("/overrides", h.CreateOverride)
		r.Delete("/overrides/{overrideID}", h.DeleteOverride)
	})

	r.With(IdempotencyMiddleware(idemp)).Post("/v1/reservations", h.CreateReservation)
	r.Get("/v1/reservations/{id}", h.GetReservation)
	r.Post("/v1/reservations/{id}/cancel", h.CancelReservation)
	r.Get("/v1/clients/{id}/reservations", h.ClientReservations)

	return r
}
