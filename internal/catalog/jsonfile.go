package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// JSONFileSource reads records from a JSON file: either a bare array of
// records or {"products": [...]}. Intended for development and tests; the
// file is re-read on every call so edits show up on the next warm pass.
type JSONFileSource struct {
	Path string
}

type jsonDoc struct {
	Products []Record `json:"products"`
}

// Recent returns up to limit records in file order.
func (s *JSONFileSource) Recent(ctx context.Context, limit int) ([]Record, error) {
	data, err := os.ReadFile(filepath.Clean(s.Path))
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", s.Path, err)
	}
	var recs []Record
	if err := json.Unmarshal(data, &recs); err != nil {
		var doc jsonDoc
		if err2 := json.Unmarshal(data, &doc); err2 != nil {
			return nil, fmt.Errorf("catalog: parse %s: %w", s.Path, err)
		}
		recs = doc.Products
	}
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}
