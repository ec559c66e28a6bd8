package api

import (
	"github.com/starford/unirepo/internal/catalogservice"
	"github.com/starford/unirepo/internal/index"
	"github.com/starford/unirepo/internal/models"
)

// CatalogSummary describes one configured catalog (aliased from the domain layer).
type CatalogSummary = catalogservice.Summary

// CatalogListResponse wraps the configured catalogs.
type CatalogListResponse struct {
	Catalogs []CatalogSummary `json:"catalogs" validate:"required"`
}

// RebuildResponse reports the outcome of a rebuild.
type RebuildResponse struct {
	Catalog    string             `json:"catalog" example:"exams" validate:"required"`
	Output     string             `json:"output" example:"dados.json" validate:"required"`
	Seen       int                `json:"seen" example:"12" validate:"required"`
	Accepted   int                `json:"accepted" example:"11" validate:"required"`
	Rejections []models.Rejection `json:"rejections" validate:"required"`
}

func newRebuildResponse(res *models.Result) RebuildResponse {
	rej := res.Rejections
	if rej == nil {
		rej = []models.Rejection{}
	}
	return RebuildResponse{
		Catalog:    res.Catalog,
		Output:     res.Output,
		Seen:       res.Seen,
		Accepted:   res.Accepted(),
		Rejections: rej,
	}
}

// FacetResponse lists the distinct values of one catalog field.
type FacetResponse struct {
	Catalog string   `json:"catalog" example:"exams" validate:"required"`
	Field   string   `json:"field" example:"materia" validate:"required"`
	Values  []string `json:"values" validate:"required"`
}

// SearchResult is a single search hit (aliased from the index layer).
type SearchResult = index.SearchResult

// SearchResponse wraps search results.
type SearchResponse struct {
	Query   string         `json:"query" example:"calculo" validate:"required"`
	Results []SearchResult `json:"results" validate:"required"`
}

// UploadResponse describes a stored PDF and the rebuilt catalog.
type UploadResponse struct {
	Catalog  string        `json:"catalog" example:"exams" validate:"required"`
	Path     string        `json:"path" example:"arquivos/Calculo_Silva_P1_2023.pdf" validate:"required"`
	Size     int64         `json:"size" example:"48213" validate:"required"`
	Record   models.Record `json:"record" validate:"required"`
	Accepted int           `json:"accepted" example:"12" validate:"required"`
}
