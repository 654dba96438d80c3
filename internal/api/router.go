package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/starford/perth/internal/renderservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *renderservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Repository connections.
	r.Get("/repos", h.ListRepos)
	r.Post("/repos", h.ConnectRepo)
	r.Get("/repos/{id}", h.GetRepo)
	r.Delete("/repos/{id}", h.DisconnectRepo)

	// Browsing.
	r.Get("/repos/{id}/branches", h.ListBranches)
	r.Get("/repos/{id}/files", h.ListDocs)

	// Rendering.
	r.Get("/repos/{id}/doc", h.RenderDoc)
	r.Delete("/repos/{id}/cache", h.EvictCache)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
