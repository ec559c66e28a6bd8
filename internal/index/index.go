package index

import "github.com/starford/unirepo/internal/models"

// CatalogIndex defines the interface for catalog indexing operations.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with mocks.
type CatalogIndex interface {
	ReplaceCatalog(row CatalogRow, records []models.Record, pathKey string) error
	DeleteCatalog(name string) error
	Catalog(name string) (*CatalogRow, error)
	Catalogs() ([]CatalogRow, error)
	Search(query, catalog string, limit int) ([]SearchResult, error)
	Close() error
}

// Verify *DB satisfies CatalogIndex at compile time.
var _ CatalogIndex = (*DB)(nil)
