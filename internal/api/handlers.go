package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/unirepo/internal/catalogservice"
	"github.com/starford/unirepo/internal/checksum"
)

// Handler holds API route handlers.
type Handler struct {
	svc *catalogservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *catalogservice.Service) *Handler {
	return &Handler{svc: svc}
}

// ListCatalogs handles GET /api/catalogs.
//
//	@Summary		List configured catalogs with their last build counts
//	@Tags			catalogs
//	@Produce		json
//	@Success		200	{object}	CatalogListResponse
//	@Router			/catalogs [get]
func (h *Handler) ListCatalogs(w http.ResponseWriter, _ *http.Request) {
	sums, err := h.svc.Summaries()
	if err != nil {
		writeServiceError(w, "list catalogs", err)
		return
	}
	writeJSON(w, http.StatusOK, CatalogListResponse{Catalogs: sums})
}

// GetCatalog handles GET /api/catalogs/{name}. The body is the catalog file
// exactly as written to disk.
//
//	@Summary		Get a catalog file
//	@Tags			catalogs
//	@Produce		json
//	@Param			name	path	string	true	"Catalog name"
//	@Success		200
//	@Success		304
//	@Failure		404	{object}	errResponse
//	@Router			/catalogs/{name} [get]
func (h *Handler) GetCatalog(w http.ResponseWriter, r *http.Request) {
	data, sum, err := h.svc.Read(chi.URLParam(r, "name"))
	if err != nil {
		writeServiceError(w, "get catalog", err)
		return
	}
	w.Header().Set("ETag", checksum.ETag(sum))
	w.Header().Set("Cache-Control", "no-cache")
	if checksum.Matches(r.Header.Get("If-None-Match"), sum) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// GetFacet handles GET /api/catalogs/{name}/facets/{field}.
//
//	@Summary		Distinct values of a catalog field, sorted
//	@Tags			catalogs
//	@Produce		json
//	@Param			name	path		string	true	"Catalog name"
//	@Param			field	path		string	true	"Schema field key"
//	@Success		200		{object}	FacetResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Router			/catalogs/{name}/facets/{field} [get]
func (h *Handler) GetFacet(w http.ResponseWriter, r *http.Request) {
	name, field := chi.URLParam(r, "name"), chi.URLParam(r, "field")
	values, err := h.svc.Facets(name, field)
	if err != nil {
		writeServiceError(w, "get facet", err)
		return
	}
	writeJSON(w, http.StatusOK, FacetResponse{Catalog: name, Field: field, Values: values})
}

// RebuildCatalog handles POST /api/catalogs/{name}/rebuild.
//
//	@Summary		Rebuild a catalog from its source directory
//	@Tags			catalogs
//	@Produce		json
//	@Param			name	path		string	true	"Catalog name"
//	@Success		200		{object}	RebuildResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/catalogs/{name}/rebuild [post]
func (h *Handler) RebuildCatalog(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Rebuild(r.Context(), chi.URLParam(r, "name"), nil)
	if err != nil {
		writeServiceError(w, "rebuild catalog", err)
		return
	}
	writeJSON(w, http.StatusOK, newRebuildResponse(res))
}

// Search handles GET /api/search.
//
//	@Summary		Search catalog records
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			catalog	query		string	false	"Restrict to one catalog"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Failure		503		{object}	errResponse
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.Search(r.Context(), q, r.URL.Query().Get("catalog"), limit)
	if err != nil {
		writeServiceError(w, "search", err)
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Query: q, Results: results})
}
