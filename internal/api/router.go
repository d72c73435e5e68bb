package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/halvar/mdn/internal/noteservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *noteservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)
	ah := NewAssetHandler(svc.Vault().AssetsDir())

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Get("/notes", h.ListNotes)
	r.Get("/notes/{id}", h.GetNote)

	r.Get("/search", h.Search)
	r.Get("/groups", h.Groups)
	r.Get("/tags", h.Tags)
	r.Get("/resolve", h.Resolve)

	r.Post("/assets", ah.Upload)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
