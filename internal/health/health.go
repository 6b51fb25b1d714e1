package health

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopkit/mediacache/internal/catalog"
)

// CheckCatalog reads one record from the catalog source. Returns nil if OK,
// error with message if not.
func CheckCatalog(ctx context.Context, src catalog.Source) error {
	if src == nil {
		return fmt.Errorf("no catalog source configured")
	}
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if _, err := src.Recent(ctx, 1); err != nil {
		return fmt.Errorf("catalog unreachable: %w", err)
	}
	return nil
}

// CheckCacheDir verifies the cache directory exists and is writable by
// creating and removing a probe file.
func CheckCacheDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("no cache directory configured")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("cache dir: %w", err)
	}
	probe := filepath.Join(dir, ".writecheck")
	if err := os.WriteFile(probe, []byte("ok"), 0644); err != nil {
		return fmt.Errorf("cache dir not writable: %w", err)
	}
	return os.Remove(probe)
}
