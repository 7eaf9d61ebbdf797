package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/listingd/internal/httpserver/deps"
	"github.com/MrSnakeDoc/listingd/internal/httpserver/handlers"
)

func init() { RegisterUnder("/accounts", registerAccounts, OperatorOnly) }

func registerAccounts(r chi.Router, d deps.Deps) {
	r.Get("/", handlers.ListAccounts(d))
	r.Route("/{steamid}", func(r chi.Router) {
		r.Get("/", handlers.GetAccount(d))
		r.Get("/desired", handlers.GetDesired(d))
		r.Post("/desired", handlers.AddDesired(d))
		r.Delete("/desired", handlers.RemoveDesired(d))
		r.Delete("/desired/all", handlers.RemoveAllDesired(d))
		r.Get("/queues", handlers.GetAccount(d))
		r.Get("/current", handlers.GetCurrent(d))
		r.Post("/agent/start", handlers.StartAgent(d))
		r.Post("/agent/stop", handlers.StopAgent(d))
	})
}
