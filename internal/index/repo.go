package index

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/starford/unirepo/internal/apperr"
	"github.com/starford/unirepo/internal/models"
)

// CatalogRow represents a row in the catalogs table.
type CatalogRow struct {
	Name     string    `json:"name"`
	Output   string    `json:"output"`
	Checksum string    `json:"checksum"`
	Seen     int       `json:"seen"`
	Accepted int       `json:"accepted"`
	BuiltAt  time.Time `json:"built_at"`
}

// SearchResult represents one search hit.
type SearchResult struct {
	Catalog  string        `json:"catalog"`
	Position int           `json:"position"`
	Record   models.Record `json:"record"`
}

// ReplaceCatalog swaps every entry of a catalog for records in one
// transaction. pathKey names the record field stored as file_path.
func (db *DB) ReplaceCatalog(row CatalogRow, records []models.Record, pathKey string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if _, err := tx.Exec(`DELETE FROM entries WHERE catalog = ?`, row.Name); err != nil {
		return fmt.Errorf("index: clear entries: %w", err)
	}
	if err := ftsClear(tx, row.Name); err != nil {
		return err
	}

	if len(records) > 0 {
		stmt, err := tx.Prepare(`INSERT INTO entries (catalog, position, file_path, fields, body) VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("index: prepare entry insert: %w", err)
		}
		defer stmt.Close()
		for i, rec := range records {
			fields, err := json.Marshal(rec)
			if err != nil {
				return fmt.Errorf("index: encode record: %w", err)
			}
			filePath, _ := rec.Get(pathKey)
			body := searchBody(rec, pathKey)
			if _, err := stmt.Exec(row.Name, i, filePath, string(fields), body); err != nil {
				return fmt.Errorf("index: insert entry: %w", err)
			}
			if err := ftsInsert(tx, row.Name, i, body); err != nil {
				return err
			}
		}
	}

	if row.BuiltAt.IsZero() {
		row.BuiltAt = time.Now().UTC()
	}
	_, err = tx.Exec(`
		INSERT INTO catalogs (name, output, checksum, seen, accepted, built_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			output   = excluded.output,
			checksum = excluded.checksum,
			seen     = excluded.seen,
			accepted = excluded.accepted,
			built_at = excluded.built_at
	`, row.Name, row.Output, row.Checksum, row.Seen, row.Accepted, row.BuiltAt)
	if err != nil {
		return fmt.Errorf("index: upsert catalog: %w", err)
	}

	return tx.Commit()
}

// DeleteCatalog removes a catalog and its entries.
func (db *DB) DeleteCatalog(name string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := ftsClear(tx, name); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM entries WHERE catalog = ?`, name); err != nil {
		return fmt.Errorf("index: delete entries: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM catalogs WHERE name = ?`, name); err != nil {
		return fmt.Errorf("index: delete catalog: %w", err)
	}

	return tx.Commit()
}

// Catalog returns the stored summary of one catalog, or apperr.ErrNotFound.
func (db *DB) Catalog(name string) (*CatalogRow, error) {
	var r CatalogRow
	err := db.conn.QueryRow(`
		SELECT name, output, checksum, seen, accepted, built_at
		FROM catalogs WHERE name = ?
	`, name).Scan(&r.Name, &r.Output, &r.Checksum, &r.Seen, &r.Accepted, &r.BuiltAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("index: catalog: %w", err)
	}
	return &r, nil
}

// Catalogs returns every stored catalog summary ordered by name.
func (db *DB) Catalogs() ([]CatalogRow, error) {
	rows, err := db.conn.Query(`
		SELECT name, output, checksum, seen, accepted, built_at
		FROM catalogs ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("index: catalogs: %w", err)
	}
	defer rows.Close()

	var out []CatalogRow
	for rows.Next() {
		var r CatalogRow
		if err := rows.Scan(&r.Name, &r.Output, &r.Checksum, &r.Seen, &r.Accepted, &r.BuiltAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanResults(rows *sql.Rows) ([]SearchResult, error) {
	defer rows.Close()
	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		var raw string
		if err := rows.Scan(&r.Catalog, &r.Position, &raw); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(raw), &r.Record); err != nil {
			return nil, fmt.Errorf("index: decode entry: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// searchBody joins the folded field values searched for a record.
func searchBody(rec models.Record, pathKey string) string {
	parts := make([]string, 0, len(rec.Pairs))
	for _, p := range rec.Pairs {
		if p.Key == pathKey {
			continue
		}
		parts = append(parts, p.Value)
	}
	return fold(strings.Join(parts, " "))
}
