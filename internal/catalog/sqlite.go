package catalog

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteSource reads product records from the storefront's sqlite database.
// Expected schema (read-only):
//
//	products(id TEXT PRIMARY KEY, status TEXT, updated_at INTEGER)
//	product_media(product_id TEXT, variant_id TEXT, kind TEXT, url TEXT, position INTEGER)
//
// kind is "video" or "image"; variant_id is "" for product-level media.
type SQLiteSource struct {
	db *sql.DB
}

// OpenSQLite opens the catalog database at path.
func OpenSQLite(path string) (*SQLiteSource, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("catalog: open %s: %w", path, err)
	}
	return &SQLiteSource{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteSource) Close() error { return s.db.Close() }

// Recent returns the most recently updated active products with their media
// URL lists, bounded by limit.
func (s *SQLiteSource) Recent(ctx context.Context, limit int) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM products
		WHERE status = 'active'
		ORDER BY updated_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("catalog: query products: %w", err)
	}
	defer rows.Close()

	var recs []Record
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		recs = append(recs, Record{ID: id})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, nil
	}

	for i := range recs {
		if err := s.loadMedia(ctx, &recs[i]); err != nil {
			return nil, err
		}
	}
	return recs, nil
}

func (s *SQLiteSource) loadMedia(ctx context.Context, rec *Record) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT variant_id, kind, url FROM product_media
		WHERE product_id = ?
		ORDER BY variant_id, position`, rec.ID)
	if err != nil {
		return fmt.Errorf("catalog: query media for %s: %w", rec.ID, err)
	}
	defer rows.Close()

	variantIdx := make(map[string]int)
	for rows.Next() {
		var variantID, kind, url string
		if err := rows.Scan(&variantID, &kind, &url); err != nil {
			return err
		}
		if variantID == "" {
			switch kind {
			case "video":
				rec.VideoURLs = append(rec.VideoURLs, url)
			case "image":
				rec.ImageURLs = append(rec.ImageURLs, url)
			}
			continue
		}
		i, ok := variantIdx[variantID]
		if !ok {
			i = len(rec.Variants)
			rec.Variants = append(rec.Variants, Variant{ID: variantID})
			variantIdx[variantID] = i
		}
		switch kind {
		case "video":
			rec.Variants[i].VideoURLs = append(rec.Variants[i].VideoURLs, url)
		case "image":
			rec.Variants[i].ImageURLs = append(rec.Variants[i].ImageURLs, url)
		}
	}
	return rows.Err()
}
