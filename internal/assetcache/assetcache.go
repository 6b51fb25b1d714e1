// Package assetcache downloads whole media files (product videos and
// images) into the local cache so playback and rendering can start from
// disk. Caching here is an optimization only: every failure degrades to
// "use the remote URL" and is never surfaced past the facade.
package assetcache

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
	"github.com/shopkit/mediacache/internal/probe"
	"github.com/shopkit/mediacache/internal/urlnorm"
)

const metricsLabel = "asset"

// Cache materializes full assets under Dir/media, one file per remote URL.
type Cache struct {
	Dir    string
	Client *http.Client
	Store  *meta.Store
	TTL    time.Duration
}

// Lookup returns the local path for url when a valid record exists and its
// file is still on disk. A stale record is a miss, not an error.
func (c *Cache) Lookup(url string) (string, bool) {
	rec, ok := c.Store.GetValid(url)
	if !ok {
		metrics.CacheMisses.WithLabelValues(metricsLabel).Inc()
		return "", false
	}
	metrics.CacheHits.WithLabelValues(metricsLabel).Inc()
	return rec.LocalPath, true
}

// Warm downloads url into the cache and records it. For video, the
// adaptive manifest name is swapped for fixed-quality direct files,
// walking 720p → 480p → original: assets are transcoded to a subset of
// renditions, so a missing tier is expected, not fatal. Images download
// as given.
//
// onReady fires once on success with (remoteURL, localPath) so a batch
// warm lets the UI adopt each asset as it lands instead of waiting for
// the whole batch. It may be nil.
func (c *Cache) Warm(ctx context.Context, url, ownerID string, kind probe.Kind, onReady func(remote, local string)) (*meta.Record, error) {
	if rec, ok := c.Store.GetValid(url); ok {
		return &rec, nil
	}
	candidates := downloadCandidates(url, kind)
	if err := os.MkdirAll(filepath.Join(c.Dir, "media"), 0755); err != nil {
		return nil, err
	}

	var lastErr error
	for _, candidate := range candidates {
		dest := c.localPath(url, candidate)
		size, err := httpclient.DownloadFile(ctx, c.Client, candidate, dest)
		if err != nil {
			lastErr = err
			log.Printf("assetcache: download owner=%s url=%q err=%v", ownerID, candidate, err)
			continue
		}
		now := time.Now()
		rec := meta.Record{
			RemoteURL: url,
			LocalPath: dest,
			SizeBytes: size,
			CreatedAt: now,
			ExpiresAt: now.Add(c.TTL),
			OwnerID:   ownerID,
		}
		if err := c.Store.Put(rec); err != nil {
			os.Remove(dest)
			return nil, fmt.Errorf("assetcache: record %s: %w", url, err)
		}
		metrics.Downloads.WithLabelValues(metricsLabel).Inc()
		if onReady != nil {
			onReady(url, dest)
		}
		return &rec, nil
	}
	metrics.DownloadFailures.WithLabelValues(metricsLabel).Inc()
	return nil, fmt.Errorf("assetcache: all candidates failed for %s: %w", url, lastErr)
}

// downloadCandidates expands a video manifest URL into its quality-tier
// chain; anything else downloads as-is.
func downloadCandidates(url string, kind probe.Kind) []string {
	if kind != probe.KindVideo && kind != probe.KindHLS {
		return []string{url}
	}
	if !strings.HasSuffix(stripQuery(url), "/"+urlnorm.ManifestName) {
		return []string{url}
	}
	base := strings.TrimSuffix(stripQuery(url), urlnorm.ManifestName)
	return []string{
		base + urlnorm.Tier720p,
		base + urlnorm.Tier480p,
		base + urlnorm.TierOriginal,
	}
}

func (c *Cache) localPath(url, candidate string) string {
	sum := sha1.Sum([]byte(url))
	ext := path.Ext(stripQuery(candidate))
	if ext == "" || len(ext) > 5 {
		ext = ".bin"
	}
	return filepath.Join(c.Dir, "media", hex.EncodeToString(sum[:])+ext)
}

func stripQuery(u string) string {
	if i := strings.Index(u, "?"); i >= 0 {
		return u[:i]
	}
	return u
}
