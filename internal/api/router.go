package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(h *Handler, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Pipeline.
	r.Post("/process", h.Process)
	r.Post("/process/batch", h.ProcessBatch)
	r.Get("/quality/*", h.Quality)
	r.Get("/connections/*", h.Connections)

	// Read-only note access.
	r.Get("/notes/*", h.GetNote)
	r.Get("/search", h.Search)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
