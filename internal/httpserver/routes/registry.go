package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/listingd/internal/httpserver/deps"
	"github.com/MrSnakeDoc/listingd/internal/httpserver/mw"
)

type (
	Registrar func(r chi.Router, d deps.Deps)
	// Guard builds a middleware once the dependencies are known
	Guard = func(d deps.Deps) func(http.Handler) http.Handler
)

type entry struct {
	prefix string
	reg    Registrar
	guards []Guard
}

var registry []entry

// Register a registrar mounted at the root, with optional guards.
func Register(reg Registrar, guards ...Guard) {
	registry = append(registry, entry{reg: reg, guards: guards})
}

// RegisterUnder mounts a registrar below prefix; guards cover the whole subtree.
func RegisterUnder(prefix string, reg Registrar, guards ...Guard) {
	registry = append(registry, entry{prefix: prefix, reg: reg, guards: guards})
}

// OperatorOnly restricts a route to the configured operator networks.
func OperatorOnly(d deps.Deps) func(http.Handler) http.Handler {
	return mw.AllowOnlyCIDRS(d.AllowedCIDRS, d.TrustProxy, d.Logger)
}

// Called once from server.New()
func RegisterAll(r chi.Router, d deps.Deps) {
	for _, e := range registry {
		mws := make([]func(http.Handler) http.Handler, 0, len(e.guards))
		for _, g := range e.guards {
			mws = append(mws, g(d))
		}

		if e.prefix != "" {
			r.Route(e.prefix, func(sub chi.Router) {
				sub.Use(mws...)
				e.reg(sub, d)
			})
			continue
		}
		if len(mws) == 0 {
			e.reg(r, d)
			continue
		}
		e.reg(r.With(mws...), d)
	}
}
