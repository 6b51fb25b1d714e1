package health

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopkit/mediacache/internal/catalog"
)

type fakeSource struct{ err error }

func (f *fakeSource) Recent(ctx context.Context, limit int) ([]catalog.Record, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []catalog.Record{{ID: "prod-1"}}, nil
}

func TestCheckCatalog_ok(t *testing.T) {
	if err := CheckCatalog(context.Background(), &fakeSource{}); err != nil {
		t.Fatalf("CheckCatalog: %v", err)
	}
}

func TestCheckCatalog_failure(t *testing.T) {
	src := &fakeSource{err: fmt.Errorf("connection refused")}
	if err := CheckCatalog(context.Background(), src); err == nil {
		t.Fatal("expected error for failing source")
	}
}

func TestCheckCatalog_nilSource(t *testing.T) {
	if err := CheckCatalog(context.Background(), nil); err == nil {
		t.Fatal("expected error for nil source")
	}
}

func TestCheckCacheDir_ok(t *testing.T) {
	if err := CheckCacheDir(t.TempDir()); err != nil {
		t.Fatalf("CheckCacheDir: %v", err)
	}
}

func TestCheckCacheDir_creates(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "cache")
	if err := CheckCacheDir(dir); err != nil {
		t.Fatalf("CheckCacheDir: %v", err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("dir not created: %v", err)
	}
}

func TestCheckCacheDir_empty(t *testing.T) {
	if err := CheckCacheDir(""); err == nil {
		t.Fatal("expected error for empty dir")
	}
}
