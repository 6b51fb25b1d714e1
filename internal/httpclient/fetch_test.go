package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
)

func TestGetText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("#EXTM3U\nseg0.ts\n"))
	}))
	defer srv.Close()

	body, err := GetText(context.Background(), srv.Client(), srv.URL)
	if err != nil {
		t.Fatalf("GetText: %v", err)
	}
	if body != "#EXTM3U\nseg0.ts\n" {
		t.Errorf("body = %q", body)
	}
}

func TestGetText_brotli(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "br")
		bw := brotli.NewWriter(w)
		bw.Write([]byte("#EXTM3U\n"))
		bw.Close()
	}))
	defer srv.Close()

	body, err := GetText(context.Background(), srv.Client(), srv.URL)
	if err != nil {
		t.Fatalf("GetText: %v", err)
	}
	if body != "#EXTM3U\n" {
		t.Errorf("body = %q", body)
	}
}

func TestGetText_status(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := GetText(context.Background(), srv.Client(), srv.URL)
	if err == nil {
		t.Fatal("want error on 404")
	}
	if !IsStatusError(err) {
		t.Errorf("want status error, got %v", err)
	}
}

func TestDownloadFile(t *testing.T) {
	payload := []byte("media bytes")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "asset.mp4")
	n, err := DownloadFile(context.Background(), srv.Client(), srv.URL, dest)
	if err != nil {
		t.Fatalf("DownloadFile: %v", err)
	}
	if n != int64(len(payload)) {
		t.Errorf("size = %d, want %d", n, len(payload))
	}
	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(payload) {
		t.Errorf("content = %q", got)
	}
	if _, err := os.Stat(dest + ".partial"); !os.IsNotExist(err) {
		t.Error("partial file should be gone after rename")
	}
}

func TestDownloadFile_status(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "asset.mp4")
	if _, err := DownloadFile(context.Background(), srv.Client(), srv.URL, dest); err == nil {
		t.Fatal("want error on 404")
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Error("no file should exist after a failed download")
	}
}

func TestDoWithRetry_5xxThenOK(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			http.Error(w, "boom", http.StatusBadGateway)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	policy := RetryPolicy{Retry5xx: true, Backoff5xx: 10 * time.Millisecond}
	resp, err := DoWithRetry(context.Background(), srv.Client(), req, policy)
	if err != nil {
		t.Fatalf("DoWithRetry: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestParseRetryAfter(t *testing.T) {
	max := 30 * time.Second
	tests := []struct {
		name string
		s    string
		want time.Duration
	}{
		{"empty", "", 1 * time.Second},
		{"seconds 5", "5", 5 * time.Second},
		{"seconds 0", "0", 0},
		{"seconds over cap", "120", max},
		{"whitespace", "  10  ", 10 * time.Second},
		{"invalid fallback", "x", 1 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseRetryAfter(tt.s, max); got != tt.want {
				t.Errorf("parseRetryAfter(%q) = %v, want %v", tt.s, got, tt.want)
			}
		})
	}
}
