package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

const maxUploadBytes = 50 << 20 // 50 MB

// UploadFile handles POST /api/catalogs/{name}/files (multipart/form-data,
// field "file"). The uploaded name must follow the catalog's naming layout.
//
//	@Summary		Add a PDF to a catalog source directory
//	@Tags			catalogs
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			name	path		string	true	"Catalog name"
//	@Param			file	formData	file	true	"PDF file"
//	@Success		201		{object}	UploadResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/catalogs/{name}/files [post]
func (h *Handler) UploadFile(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if _, err := h.svc.Lookup(name); err != nil {
		writeServiceError(w, "upload", err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart"))
		return
	}
	defer r.MultipartForm.RemoveAll() //nolint:errcheck

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field in multipart form"))
		return
	}
	defer file.Close()

	up, err := h.svc.Upload(r.Context(), name, header.Filename, file)
	if err != nil {
		writeServiceError(w, "upload", err)
		return
	}
	writeJSON(w, http.StatusCreated, UploadResponse{
		Catalog:  up.Catalog,
		Path:     up.Path,
		Size:     up.Size,
		Record:   up.Record,
		Accepted: up.Result.Accepted(),
	})
}
