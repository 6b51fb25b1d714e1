// Package metrics exposes prometheus counters for the cache subsystem.
// Everything here is best-effort observability; no caller branches on it.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits / CacheMisses are labeled by cache kind: "asset" or "hls".
	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mediacache",
		Name:      "cache_hits_total",
		Help:      "Lookups answered from the local cache.",
	}, []string{"cache"})

	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mediacache",
		Name:      "cache_misses_total",
		Help:      "Lookups that fell back to the remote URL.",
	}, []string{"cache"})

	Downloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mediacache",
		Name:      "downloads_total",
		Help:      "Successful downloads into the cache.",
	}, []string{"cache"})

	DownloadFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mediacache",
		Name:      "download_failures_total",
		Help:      "Downloads that failed and degraded to remote playback.",
	}, []string{"cache"})

	EvictedRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mediacache",
		Name:      "evicted_records_total",
		Help:      "Records removed by the eviction sweeper.",
	}, []string{"cache", "reason"}) // reason: "expired" or "size"

	EvictedBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mediacache",
		Name:      "evicted_bytes_total",
		Help:      "Bytes freed by the eviction sweeper.",
	}, []string{"cache"})

	WarmPasses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "mediacache",
		Name:      "warm_passes_total",
		Help:      "Completed warm-batch passes.",
	})
)
