// Package warm drives proactive cache filling: it pulls the most recently
// updated products from the catalog, normalizes their media URLs, and
// routes each URL to the HLS or whole-asset cache so playback and display
// are instant by the time a shopper arrives.
package warm

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/shopkit/mediacache/internal/assetcache"
	"github.com/shopkit/mediacache/internal/catalog"
	"github.com/shopkit/mediacache/internal/hlscache"
	"github.com/shopkit/mediacache/internal/metrics"
	"github.com/shopkit/mediacache/internal/probe"
	"github.com/shopkit/mediacache/internal/safeurl"
	"github.com/shopkit/mediacache/internal/urlnorm"
)

// Orchestrator runs warm passes over the catalog. URLs are processed
// sequentially; the Limiter spaces out origin downloads so a warm pass
// never competes with live traffic for bandwidth.
type Orchestrator struct {
	Source catalog.Source
	Norm   *urlnorm.Normalizer
	Assets *assetcache.Cache
	HLS    *hlscache.Cache
	Client *http.Client
	// CatalogLimit bounds how many recent records a pass reads;
	// BatchSize caps the URLs actually warmed out of them. Already-warm
	// URLs count toward the cap, so a pass over a fully warm batch is a
	// cheap no-op rather than a crawl deeper into the catalog.
	CatalogLimit int
	BatchSize    int
	Limiter      *rate.Limiter
}

// Pass warms one batch of recent products. Individual URL failures are
// logged and skipped; only a catalog read failure aborts the pass.
func (o *Orchestrator) Pass(ctx context.Context) error {
	limit := o.CatalogLimit
	if limit <= 0 {
		limit = o.BatchSize
	}
	records, err := o.Source.Recent(ctx, limit)
	if err != nil {
		return fmt.Errorf("warm: read catalog: %w", err)
	}

	targets := o.capTargets(collect(records))
	log.Printf("warm: pass start products=%d urls=%d", len(records), len(targets))
	warmed := o.warmTargets(ctx, targets)
	metrics.WarmPasses.Inc()
	log.Printf("warm: pass done warmed=%d of=%d", warmed, len(targets))
	return ctx.Err()
}

// WarmRecords warms the media of an explicit record set through the same
// extraction, de-dup and batch cap as a catalog-driven pass.
func (o *Orchestrator) WarmRecords(ctx context.Context, records []catalog.Record) {
	o.warmTargets(ctx, o.capTargets(collect(records)))
}

// WarmURLs warms an explicit URL list on behalf of one owner, outside the
// catalog-driven cycle. Used by the facade's batch entry point.
func (o *Orchestrator) WarmURLs(ctx context.Context, ownerID string, urls []string) {
	seen := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		if err := o.warmOne(ctx, target{url: u, ownerID: ownerID}); err != nil {
			log.Printf("warm: skip owner=%s url=%q err=%v", ownerID, u, err)
		}
	}
}

type target struct {
	url     string
	ownerID string
}

func (o *Orchestrator) capTargets(targets []target) []target {
	if o.BatchSize > 0 && len(targets) > o.BatchSize {
		return targets[:o.BatchSize]
	}
	return targets
}

func (o *Orchestrator) warmTargets(ctx context.Context, targets []target) int {
	warmed := 0
	for _, tgt := range targets {
		if ctx.Err() != nil {
			return warmed
		}
		if err := o.warmOne(ctx, tgt); err != nil {
			log.Printf("warm: skip owner=%s url=%q err=%v", tgt.ownerID, tgt.url, err)
			continue
		}
		warmed++
	}
	return warmed
}

// collect flattens product and variant media lists into a de-duplicated,
// order-preserving URL list. Videos come first so the expensive HLS warms
// start before the cheap image downloads.
func collect(records []catalog.Record) []target {
	seen := make(map[string]struct{})
	var videos, images []target
	add := func(dst *[]target, ownerID string, urls []string) {
		for _, u := range urls {
			if u == "" {
				continue
			}
			if _, dup := seen[u]; dup {
				continue
			}
			seen[u] = struct{}{}
			*dst = append(*dst, target{url: u, ownerID: ownerID})
		}
	}
	for _, rec := range records {
		add(&videos, rec.ID, rec.VideoURLs)
		add(&images, rec.ID, rec.ImageURLs)
		for _, v := range rec.Variants {
			add(&videos, rec.ID, v.VideoURLs)
			add(&images, rec.ID, v.ImageURLs)
		}
	}
	return append(videos, images...)
}

func (o *Orchestrator) warmOne(ctx context.Context, tgt target) error {
	norm := o.Norm.Normalize(tgt.url)
	u := norm.Transformed
	if !safeurl.IsHTTPOrHTTPS(u) {
		return fmt.Errorf("unsupported scheme")
	}
	if _, ok := o.Assets.Lookup(u); ok {
		return nil
	}
	if _, ok := o.HLS.Lookup(u); ok {
		return nil
	}

	if o.Limiter != nil {
		if err := o.Limiter.Wait(ctx); err != nil {
			return err
		}
	}
	switch kind := probe.Classify(u, o.Client); kind {
	case probe.KindHLS:
		_, err := o.HLS.EnsureCached(ctx, u, tgt.ownerID)
		return err
	case probe.KindUnknown:
		return fmt.Errorf("unclassifiable media")
	default:
		_, err := o.Assets.Warm(ctx, u, tgt.ownerID, kind, nil)
		return err
	}
}
