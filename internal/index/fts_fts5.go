//go:build sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS entries_fts USING fts5(
			catalog UNINDEXED,
			position UNINDEXED,
			body,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsInsert(tx *sql.Tx, catalog string, position int, body string) error {
	_, err := tx.Exec(`INSERT INTO entries_fts (catalog, position, body) VALUES (?, ?, ?)`,
		catalog, position, body)
	if err != nil {
		return fmt.Errorf("index: insert fts: %w", err)
	}
	return nil
}

func ftsClear(tx *sql.Tx, catalog string) error {
	if _, err := tx.Exec(`DELETE FROM entries_fts WHERE catalog = ?`, catalog); err != nil {
		return fmt.Errorf("index: clear fts: %w", err)
	}
	return nil
}

// Search performs an FTS5 full-text search ordered by rank. An empty catalog
// searches every catalog.
func (db *DB) Search(query, catalog string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	match := ftsQuery(query)
	if match == "" {
		return nil, nil
	}
	rows, err := db.conn.Query(`
		SELECT e.catalog, e.position, e.fields
		FROM entries_fts f
		JOIN entries e ON e.catalog = f.catalog AND e.position = f.position
		WHERE entries_fts MATCH ?
		  AND (? = '' OR f.catalog = ?)
		ORDER BY rank
		LIMIT ?
	`, match, catalog, catalog, limit)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	return scanResults(rows)
}
