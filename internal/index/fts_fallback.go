//go:build !sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
)

func initFTS(_ *sql.DB) error {
	// FTS5 not available; search uses LIKE fallback on the entries.body column.
	return nil
}

func ftsInsert(_ *sql.Tx, _ string, _ int, _ string) error {
	// Body is already stored in the entries table; nothing extra to do.
	return nil
}

func ftsClear(_ *sql.Tx, _ string) error { return nil }

// Search performs a LIKE-based search (fallback when FTS5 is not compiled in).
// An empty catalog searches every catalog.
func (db *DB) Search(query, catalog string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.Query(`
		SELECT catalog, position, fields
		FROM entries
		WHERE (body LIKE ? ESCAPE '\' OR file_path LIKE ? ESCAPE '\')
		  AND (? = '' OR catalog = ?)
		ORDER BY catalog, position
		LIMIT ?
	`, likePattern(fold(query)), likePattern(query), catalog, catalog, limit)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	return scanResults(rows)
}
