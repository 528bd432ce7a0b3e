// Package api exposes the hub's read-only query surface and the websocket
// endpoint. Every handler is a side-effect-free snapshot of the session
// table, the context store, or the plugin registry.
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Floopatron/donk-project/internal/hub"
	"github.com/Floopatron/donk-project/internal/middleware"
	"github.com/Floopatron/donk-project/internal/plugin"
	"github.com/Floopatron/donk-project/internal/session"
	"github.com/Floopatron/donk-project/internal/store"
)

// Dependencies carries the shared state handlers read from.
type Dependencies struct {
	Sessions *session.Table
	Store    *store.ContextStore
	Registry *plugin.Registry
	Hub      *hub.Hub
	Logger   *slog.Logger
}

// NewRouter creates and configures the HTTP router.
func NewRouter(deps *Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.Logger(deps.Logger))

	h := &handlers{deps: deps}

	r.Get("/ws", deps.Hub.ServeWs)
	r.Get("/api/health", h.Health)
	r.Get("/api/collectors", h.ListCollectors)
	r.Get("/api/plugins", h.ListPlugins)
	r.Route("/api/context", func(r chi.Router) {
		r.Get("/{deviceID}", h.GetDeviceContext)
		r.Get("/{deviceID}/{pluginID}", h.GetPluginContext)
	})

	return r
}
