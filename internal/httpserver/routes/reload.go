package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/listingd/internal/httpserver/deps"
	"github.com/MrSnakeDoc/listingd/internal/httpserver/handlers"
)

func init() { Register(registerReload, OperatorOnly) }

func registerReload(r chi.Router, d deps.Deps) {
	r.Post("/reload", handlers.Reload(d))
}
