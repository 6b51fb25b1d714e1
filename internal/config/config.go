package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds cache, warm-pass and catalog-source settings.
// Everything is read from MEDIACACHE_* environment variables; call
// LoadEnvFile(".env") before Load() to use a .env file.
type Config struct {
	// Paths
	CacheDir   string // root for cached media + synthesized manifests, e.g. /var/cache/mediacache
	MetaDBPath string // bbolt file holding both metadata stores; "" = <CacheDir>/meta.db

	// Catalog source: exactly one of these should be set.
	CatalogDBPath   string // sqlite database with products + product_media tables
	CatalogJSONPath string // JSON file of product records (dev / tests)
	CatalogLimit    int    // most recent N active products per warm pass

	// Whole-asset cache
	AssetTTL      time.Duration
	AssetMaxBytes int64

	// HLS first-segment cache
	HLSTTL      time.Duration
	HLSMaxBytes int64

	// Eviction sweep gating
	SweepInterval time.Duration

	// Warm pass
	WarmInterval  time.Duration
	WarmBatchSize int     // max URLs warmed per pass
	DownloadsPerS float64 // rate limit on downloads within a pass; 0 = default

	// StreamCDNHosts are host suffixes recognized as the adaptive-streaming
	// provider (manifest canonicalization + quality-tier fallback).
	StreamCDNHosts []string

	// FallbackMapSize bounds the transformed→original reverse map.
	FallbackMapSize int

	// HTTP surface (/healthz, /metrics, /resolve)
	ListenAddr string
}

// Load reads config from environment, applying defaults for anything unset.
func Load() *Config {
	c := &Config{
		CacheDir:        getEnv("MEDIACACHE_DIR", "/var/cache/mediacache"),
		MetaDBPath:      os.Getenv("MEDIACACHE_META_DB"),
		CatalogDBPath:   os.Getenv("MEDIACACHE_CATALOG_DB"),
		CatalogJSONPath: os.Getenv("MEDIACACHE_CATALOG_JSON"),
		CatalogLimit:    getEnvInt("MEDIACACHE_CATALOG_LIMIT", 50),
		AssetTTL:        getEnvDuration("MEDIACACHE_ASSET_TTL", 72*time.Hour),
		AssetMaxBytes:   getEnvInt64("MEDIACACHE_ASSET_MAX_BYTES", 512<<20),
		HLSTTL:          getEnvDuration("MEDIACACHE_HLS_TTL", 24*time.Hour),
		HLSMaxBytes:     getEnvInt64("MEDIACACHE_HLS_MAX_BYTES", 128<<20),
		SweepInterval:   getEnvDuration("MEDIACACHE_SWEEP_INTERVAL", 10*time.Minute),
		WarmInterval:    getEnvDuration("MEDIACACHE_WARM_INTERVAL", 15*time.Minute),
		WarmBatchSize:   getEnvInt("MEDIACACHE_WARM_BATCH", 12),
		DownloadsPerS:   getEnvFloat("MEDIACACHE_DOWNLOADS_PER_SEC", 4),
		StreamCDNHosts:  getEnvList("MEDIACACHE_STREAM_CDN_HOSTS", ".b-cdn.net"),
		FallbackMapSize: getEnvInt("MEDIACACHE_FALLBACK_MAP_SIZE", 4096),
		ListenAddr:      getEnv("MEDIACACHE_LISTEN", ":5910"),
	}
	if c.WarmBatchSize <= 0 {
		c.WarmBatchSize = 12
	}
	if c.CatalogLimit <= 0 {
		c.CatalogLimit = 50
	}
	if c.AssetTTL <= 0 {
		c.AssetTTL = 72 * time.Hour
	}
	if c.HLSTTL <= 0 {
		c.HLSTTL = 24 * time.Hour
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = 10 * time.Minute
	}
	if c.FallbackMapSize <= 0 {
		c.FallbackMapSize = 4096
	}
	if c.MetaDBPath == "" {
		c.MetaDBPath = c.CacheDir + "/meta.db"
	}
	return c
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getEnvInt64(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func getEnvFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

// getEnvList splits a comma-separated env var, trimming whitespace and
// dropping empty items.
func getEnvList(key, def string) []string {
	v := os.Getenv(key)
	if v == "" {
		v = def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
