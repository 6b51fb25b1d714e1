// Package hlscache gives HLS playback an instant first frame: it caches
// exactly one segment per manifest and synthesizes a local manifest whose
// first segment reference points at that file while every later segment
// keeps streaming from the origin. Storage cost stays at one segment per
// asset no matter how long the media is.
package hlscache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"log"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopkit/mediacache/internal/httpclient"
	"github.com/shopkit/mediacache/internal/meta"
	"github.com/shopkit/mediacache/internal/metrics"
	"github.com/shopkit/mediacache/internal/playlist"
)

const (
	metricsLabel = "hls"
	manifestFile = "index.m3u8"
)

// Cache holds first segments and synthesized manifests under Dir/hls,
// one subdirectory per manifest URL.
type Cache struct {
	Dir    string
	Client *http.Client
	Store  *meta.Store
	TTL    time.Duration
}

// EnsureCached makes manifestURL playable from disk and returns the
// synthesized manifest's path. Any failure returns an error and the caller
// must fall back to the remote manifest; no partial manifest is ever left
// behind.
func (c *Cache) EnsureCached(ctx context.Context, manifestURL, ownerID string) (string, error) {
	if rec, ok := c.Store.GetValid(manifestURL); ok && c.entryIntact(rec.LocalPath) {
		metrics.CacheHits.WithLabelValues(metricsLabel).Inc()
		return rec.LocalPath, nil
	}
	metrics.CacheMisses.WithLabelValues(metricsLabel).Inc()

	content, err := httpclient.GetText(ctx, c.Client, manifestURL)
	if err != nil {
		return "", fmt.Errorf("hlscache: fetch manifest: %w", err)
	}
	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("hlscache: empty manifest %s", manifestURL)
	}

	mediaURL := manifestURL
	doc := playlist.Parse(content, manifestURL)
	if doc.Master {
		if len(doc.Entries) == 0 {
			return "", fmt.Errorf("hlscache: master playlist with no variant %s", manifestURL)
		}
		mediaURL = doc.Entries[0]
		content, err = httpclient.GetText(ctx, c.Client, mediaURL)
		if err != nil {
			return "", fmt.Errorf("hlscache: fetch variant: %w", err)
		}
		if strings.TrimSpace(content) == "" {
			return "", fmt.Errorf("hlscache: empty variant %s", mediaURL)
		}
		doc = playlist.Parse(content, mediaURL)
		if doc.Master {
			return "", fmt.Errorf("hlscache: nested master playlist %s", mediaURL)
		}
	}
	if len(doc.Entries) == 0 {
		return "", fmt.Errorf("hlscache: no segments in %s", mediaURL)
	}

	entryDir := c.entryDir(manifestURL)
	if err := os.MkdirAll(entryDir, 0755); err != nil {
		return "", err
	}
	segName := "seg0" + segmentExt(doc.Entries[0])
	segPath := filepath.Join(entryDir, segName)
	size, err := httpclient.DownloadFile(ctx, c.Client, doc.Entries[0], segPath)
	if err != nil {
		metrics.DownloadFailures.WithLabelValues(metricsLabel).Inc()
		os.RemoveAll(entryDir)
		return "", fmt.Errorf("hlscache: download first segment: %w", err)
	}

	// Synthesize from the raw media-playlist text so every directive and
	// comment survives byte-for-byte; only segment lines are touched, and
	// of those only the first is redirected to disk.
	synthesized := rewrite(content, mediaURL, segName)
	manifestPath := filepath.Join(entryDir, manifestFile)
	if err := os.WriteFile(manifestPath, []byte(synthesized), 0644); err != nil {
		os.RemoveAll(entryDir)
		return "", fmt.Errorf("hlscache: write manifest: %w", err)
	}

	now := time.Now()
	rec := meta.Record{
		RemoteURL: manifestURL,
		LocalPath: manifestPath,
		SizeBytes: size,
		CreatedAt: now,
		ExpiresAt: now.Add(c.TTL),
		OwnerID:   ownerID,
	}
	if err := c.Store.Put(rec); err != nil {
		os.RemoveAll(entryDir)
		return "", fmt.Errorf("hlscache: record %s: %w", manifestURL, err)
	}
	metrics.Downloads.WithLabelValues(metricsLabel).Inc()
	log.Printf("hlscache: cached first segment url=%q size=%d", manifestURL, size)
	return manifestPath, nil
}

// Lookup returns the synthesized manifest path for manifestURL when the
// entry is valid, without any network activity.
func (c *Cache) Lookup(manifestURL string) (string, bool) {
	rec, ok := c.Store.GetValid(manifestURL)
	if !ok || !c.entryIntact(rec.LocalPath) {
		return "", false
	}
	return rec.LocalPath, true
}

// RemoveEntry deletes the whole per-manifest directory (manifest plus
// segment). Wired into the eviction sweeper.
func (c *Cache) RemoveEntry(rec meta.Record) error {
	return os.RemoveAll(filepath.Dir(rec.LocalPath))
}

// entryIntact verifies every local reference inside a synthesized manifest
// still exists. A segment deleted out-of-band would otherwise hand the
// player a dangling path; treating it as a miss forces a re-download.
func (c *Cache) entryIntact(manifestPath string) bool {
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return false
	}
	dir := filepath.Dir(manifestPath)
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.Contains(line, "://") {
			continue
		}
		if _, err := os.Stat(filepath.Join(dir, line)); err != nil {
			return false
		}
	}
	return true
}

func (c *Cache) entryDir(manifestURL string) string {
	sum := sha1.Sum([]byte(manifestURL))
	return filepath.Join(c.Dir, "hls", hex.EncodeToString(sum[:]))
}

func segmentExt(segURL string) string {
	p := segURL
	if i := strings.Index(p, "?"); i >= 0 {
		p = p[:i]
	}
	ext := path.Ext(p)
	if ext == "" || len(ext) > 5 {
		ext = ".ts"
	}
	return ext
}

// rewrite replaces the first segment line of a media playlist with the
// local segment file name and absolutizes every other segment line so the
// local manifest resolves without a base URL. All other lines pass through
// untouched.
func rewrite(content, mediaURL, segName string) string {
	lines := strings.Split(content, "\n")

	// The rewriter must agree with the parser about which lines are
	// segments. When no line matches a predicate the parser fell back to
	// treating every plain line as one; mirror that here.
	anyMatch := false
	for _, line := range lines {
		if playlist.IsSegmentLine(line) {
			anyMatch = true
			break
		}
	}
	isSegment := playlist.IsSegmentLine
	if !anyMatch {
		isSegment = func(line string) bool {
			line = strings.TrimSpace(line)
			return line != "" && !strings.HasPrefix(line, "#")
		}
	}

	first := true
	for i, line := range lines {
		if !isSegment(line) {
			continue
		}
		trimmed := strings.TrimSpace(line)
		if first {
			lines[i] = segName
			first = false
			continue
		}
		lines[i] = playlist.ResolveEntry(trimmed, mediaURL)
	}
	return strings.Join(lines, "\n")
}
