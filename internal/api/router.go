package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/unirepo/internal/catalogservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced on the routes
// that modify catalogs. sseHandler, if non-nil, is mounted at GET /events.
func NewRouter(svc *catalogservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()

	r.Get("/catalogs", h.ListCatalogs)
	r.Get("/catalogs/{name}", h.GetCatalog)
	r.Get("/catalogs/{name}/facets/{field}", h.GetFacet)
	r.Get("/search", h.Search)

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(authEnabled, token))
		r.Post("/catalogs/{name}/rebuild", h.RebuildCatalog)
		r.Post("/catalogs/{name}/files", h.UploadFile)
	})

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
