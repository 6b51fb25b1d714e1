// Package prefetch is the storefront-facing surface of the media cache.
// Callers hand it raw catalog URLs and get back something playable; every
// operation degrades to the remote URL rather than failing, because a
// cache must never make media less available than no cache at all.
package prefetch

import (
	"context"
	"log"

	"github.com/shopkit/mediacache/internal/assetcache"
	"github.com/shopkit/mediacache/internal/catalog"
	"github.com/shopkit/mediacache/internal/hlscache"
	"github.com/shopkit/mediacache/internal/urlnorm"
	"github.com/shopkit/mediacache/internal/warm"
)

// Service bundles the caches behind the entry points the storefront
// calls. All fields must be set.
type Service struct {
	Norm   *urlnorm.Normalizer
	Assets *assetcache.Cache
	HLS    *hlscache.Cache
	Warmer *warm.Orchestrator
}

// ResolvePlayableURL maps a raw catalog URL to the best source available
// right now: a cached whole asset, a cached HLS manifest, or the
// normalized remote URL. It never errors and never touches the network.
func (s *Service) ResolvePlayableURL(rawURL string) string {
	u := s.Norm.Normalize(rawURL).Transformed
	if local, ok := s.Assets.Lookup(u); ok {
		return local
	}
	if local, ok := s.HLS.Lookup(u); ok {
		return local
	}
	return u
}

// EnsureCached warms a single URL in the foreground and returns the best
// source afterwards: the local path when the warm landed, the normalized
// remote URL when it did not. Failures are logged inside the warmer.
func (s *Service) EnsureCached(ctx context.Context, rawURL, ownerID string) string {
	s.Warmer.WarmURLs(ctx, ownerID, []string{rawURL})
	return s.ResolvePlayableURL(rawURL)
}

// WarmBatch warms a URL list for one owner and blocks until the batch is
// done. Duplicate URLs in the list are warmed once.
func (s *Service) WarmBatch(ctx context.Context, ownerID string, urls []string) {
	s.Warmer.WarmURLs(ctx, ownerID, urls)
}

// WarmRecords warms every media URL carried by records, variant media
// included, with the orchestrator's de-dup and batch cap applied. For
// callers that hold catalog records rather than flat URL lists.
func (s *Service) WarmRecords(ctx context.Context, records []catalog.Record) {
	s.Warmer.WarmRecords(ctx, records)
}

// ResolveFallback returns the URL to hand the player when the transformed
// URL failed: the original pre-rewrite URL when one is remembered, a
// lower-quality direct-file tier for adaptive manifests, or "" when
// nothing better than the failed URL exists.
func (s *Service) ResolveFallback(rawURL string) string {
	return s.Norm.ResolveFallback(rawURL)
}

// ClearAll drops both caches: every payload file and every metadata
// record. Used when the cache directory must be reclaimed wholesale.
func (s *Service) ClearAll() {
	if err := s.Assets.Store.Clear(nil); err != nil {
		log.Printf("prefetch: clear asset cache err=%v", err)
	}
	if err := s.HLS.Store.Clear(s.HLS.RemoveEntry); err != nil {
		log.Printf("prefetch: clear hls cache err=%v", err)
	}
}
