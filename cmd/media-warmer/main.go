// Command media-warmer: storefront media cache daemon (run), or warm /
// sweep / resolve / clear as one-shot subcommands.
//
//	run     Warm on an interval, sweep on an interval, serve /healthz /metrics /resolve. For systemd.
//	warm    One warm pass over the catalog, then exit
//	sweep   One eviction sweep over both caches, then exit
//	resolve Print the playable URL for -url (local path when cached, remote otherwise)
//	clear   Drop both caches: payloads and metadata
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/shopkit/mediacache/internal/assetcache"
	"github.com/shopkit/mediacache/internal/catalog"
	"github.com/shopkit/mediacache/internal/config"
	"github.com/shopkit/mediacache/internal/health"
	"github.com/shopkit/mediacache/internal/hlscache"
	"github.com/shopkit/mediacache/internal/httpclient"
	"github.com/shopkit/mediacache/internal/meta"
	"github.com/shopkit/mediacache/internal/prefetch"
	"github.com/shopkit/mediacache/internal/urlnorm"
	"github.com/shopkit/mediacache/internal/warm"
)

// app wires the caches, stores and orchestrator from config. close frees
// the bbolt handle and the sqlite pool when one was opened.
type app struct {
	cfg      *config.Config
	service  *prefetch.Service
	warmer   *warm.Orchestrator
	assetSw  *meta.Sweeper
	hlsSw    *meta.Sweeper
	source   catalog.Source
	closeFns []func() error
}

func (a *app) close() {
	for i := len(a.closeFns) - 1; i >= 0; i-- {
		if err := a.closeFns[i](); err != nil {
			log.Printf("close: %v", err)
		}
	}
}

func newApp(cfg *config.Config) (*app, error) {
	if err := os.MkdirAll(cfg.CacheDir, 0755); err != nil {
		return nil, fmt.Errorf("cache dir: %w", err)
	}
	db, err := meta.Open(cfg.MetaDBPath)
	if err != nil {
		return nil, fmt.Errorf("open metadata db: %w", err)
	}
	a := &app{cfg: cfg}
	a.closeFns = append(a.closeFns, db.Close)

	assetStore, err := meta.NewStore(db, "assets")
	if err != nil {
		return nil, err
	}
	hlsStore, err := meta.NewStore(db, "hls")
	if err != nil {
		return nil, err
	}

	client := httpclient.Default()
	norm := urlnorm.New(cfg.StreamCDNHosts, cfg.FallbackMapSize)
	assets := &assetcache.Cache{Dir: cfg.CacheDir, Client: client, Store: assetStore, TTL: cfg.AssetTTL}
	hls := &hlscache.Cache{Dir: cfg.CacheDir, Client: client, Store: hlsStore, TTL: cfg.HLSTTL}

	switch {
	case cfg.CatalogDBPath != "":
		src, err := catalog.OpenSQLite(cfg.CatalogDBPath)
		if err != nil {
			return nil, fmt.Errorf("open catalog db: %w", err)
		}
		a.closeFns = append(a.closeFns, src.Close)
		a.source = src
	case cfg.CatalogJSONPath != "":
		a.source = &catalog.JSONFileSource{Path: cfg.CatalogJSONPath}
	}

	perSec := cfg.DownloadsPerS
	if perSec <= 0 {
		perSec = 4
	}
	a.warmer = &warm.Orchestrator{
		Source:       a.source,
		Norm:         norm,
		Assets:       assets,
		HLS:          hls,
		Client:       client,
		CatalogLimit: cfg.CatalogLimit,
		BatchSize:    cfg.WarmBatchSize,
		Limiter:      rate.NewLimiter(rate.Limit(perSec), 1),
	}
	a.service = &prefetch.Service{Norm: norm, Assets: assets, HLS: hls, Warmer: a.warmer}
	a.assetSw = &meta.Sweeper{Store: assetStore, MaxBytes: cfg.AssetMaxBytes, Interval: cfg.SweepInterval}
	a.hlsSw = &meta.Sweeper{Store: hlsStore, MaxBytes: cfg.HLSMaxBytes, Interval: cfg.SweepInterval, Remove: hls.RemoveEntry}
	return a, nil
}

// httpServer serves the operational surface: liveness, metrics, and URL
// resolution for the storefront's render path.
func (a *app) httpServer() *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := health.CheckCacheDir(a.cfg.CacheDir); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		if err := health.CheckCatalog(r.Context(), a.source); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok\n"))
	})
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/resolve", func(w http.ResponseWriter, r *http.Request) {
		raw := r.URL.Query().Get("url")
		if raw == "" {
			http.Error(w, "missing url parameter", http.StatusBadRequest)
			return
		}
		resolved := a.service.ResolvePlayableURL(raw)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"url":      resolved,
			"fallback": a.service.ResolveFallback(raw),
		})
	})
	return &http.Server{Addr: a.cfg.ListenAddr, Handler: mux}
}

func (a *app) runDaemon(ctx context.Context) error {
	srv := a.httpServer()
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
	}()

	warmTicker := time.NewTicker(a.cfg.WarmInterval)
	defer warmTicker.Stop()
	sweepTicker := time.NewTicker(a.cfg.SweepInterval)
	defer sweepTicker.Stop()

	go func() {
		if a.source != nil {
			if err := a.warmer.Pass(ctx); err != nil {
				log.Printf("Warm pass failed: %v", err)
			}
		}
		for {
			select {
			case <-ctx.Done():
				return
			case <-warmTicker.C:
				if a.source == nil {
					continue
				}
				if err := a.warmer.Pass(ctx); err != nil {
					log.Printf("Warm pass failed: %v", err)
				}
			case <-sweepTicker.C:
				a.assetSw.Sweep()
				a.hlsSw.Sweep()
			}
		}
	}()

	log.Printf("Listening on %s (warm every %v, sweep every %v)",
		a.cfg.ListenAddr, a.cfg.WarmInterval, a.cfg.SweepInterval)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func main() {
	_ = config.LoadEnvFile(".env")
	log.SetFlags(log.LstdFlags)
	log.SetPrefix("[media-warmer] ")

	resolveCmd := flag.NewFlagSet("resolve", flag.ExitOnError)
	resolveURL := resolveCmd.String("url", "", "Catalog media URL to resolve")

	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <run|warm|sweep|resolve|clear> [flags]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  run      Warm + sweep on intervals, serve /healthz /metrics /resolve (for systemd)\n")
		fmt.Fprintf(os.Stderr, "  warm     One warm pass over the catalog\n")
		fmt.Fprintf(os.Stderr, "  sweep    One eviction sweep over both caches\n")
		fmt.Fprintf(os.Stderr, "  resolve  Print playable URL for -url\n")
		fmt.Fprintf(os.Stderr, "  clear    Drop both caches\n")
		os.Exit(1)
	}

	cfg := config.Load()
	a, err := newApp(cfg)
	if err != nil {
		log.Printf("Startup failed: %v", err)
		os.Exit(1)
	}
	defer a.close()

	switch os.Args[1] {
	case "run":
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		if err := a.runDaemon(ctx); err != nil {
			log.Printf("Serve failed: %v", err)
			os.Exit(1)
		}

	case "warm":
		if a.source == nil {
			log.Print("No catalog source. Set MEDIACACHE_CATALOG_DB or MEDIACACHE_CATALOG_JSON.")
			os.Exit(1)
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		if err := a.warmer.Pass(ctx); err != nil {
			log.Printf("Warm pass failed: %v", err)
			os.Exit(1)
		}

	case "sweep":
		a.assetSw.SweepNow()
		a.hlsSw.SweepNow()

	case "resolve":
		_ = resolveCmd.Parse(os.Args[2:])
		if *resolveURL == "" {
			log.Print("Set -url=https://...")
			os.Exit(1)
		}
		fmt.Println(a.service.ResolvePlayableURL(*resolveURL))

	case "clear":
		a.service.ClearAll()
		log.Print("Caches cleared")

	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q\n", os.Args[1])
		os.Exit(1)
	}
}
