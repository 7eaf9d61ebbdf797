package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/listingd/internal/httpserver/deps"
	"github.com/MrSnakeDoc/listingd/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/listingd/internal/metrics"
)

func init() { Register(registerHealth) }

func registerHealth(r chi.Router, d deps.Deps) {
	r.Get("/healthz", handlers.Healthz(d))

	r.Group(func(r chi.Router) {
		r.Use(OperatorOnly(d))
		r.Get("/readyz", handlers.Readyz(d))
		r.Handle("/metrics", metrics.Handler())
	})
}
