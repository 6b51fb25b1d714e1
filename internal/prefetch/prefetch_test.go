package prefetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/shopkit/mediacache/internal/assetcache"
	"github.com/shopkit/mediacache/internal/catalog"
	"github.com/shopkit/mediacache/internal/hlscache"
	"github.com/shopkit/mediacache/internal/meta"
	"github.com/shopkit/mediacache/internal/urlnorm"
	"github.com/shopkit/mediacache/internal/warm"
)

func newTestService(t *testing.T, client *http.Client) *Service {
	t.Helper()
	dir := t.TempDir()
	db, err := meta.Open(filepath.Join(dir, "meta.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	assetStore, err := meta.NewStore(db, "assets")
	if err != nil {
		t.Fatalf("asset store: %v", err)
	}
	hlsStore, err := meta.NewStore(db, "hls")
	if err != nil {
		t.Fatalf("hls store: %v", err)
	}
	norm := urlnorm.New(nil, 64)
	assets := &assetcache.Cache{Dir: dir, Client: client, Store: assetStore, TTL: time.Hour}
	hls := &hlscache.Cache{Dir: dir, Client: client, Store: hlsStore, TTL: time.Hour}
	return &Service{
		Norm:   norm,
		Assets: assets,
		HLS:    hls,
		Warmer: &warm.Orchestrator{
			Norm:    norm,
			Assets:  assets,
			HLS:     hls,
			Client:  client,
			Limiter: rate.NewLimiter(rate.Inf, 1),
		},
	}
}

func mediaServer() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, ".m3u8"):
			w.Write([]byte("#EXTM3U\n#EXTINF:4.0,\nseg0.ts\n#EXT-X-ENDLIST\n"))
		case strings.HasSuffix(r.URL.Path, ".jpg"):
			w.Header().Set("Content-Type", "image/jpeg")
			w.Write([]byte("jpeg-bytes"))
		default:
			w.Header().Set("Content-Type", "video/mp4")
			w.Write([]byte("mp4-bytes"))
		}
	}))
}

func TestResolvePlayableURLColdReturnsRemote(t *testing.T) {
	srv := mediaServer()
	defer srv.Close()

	s := newTestService(t, srv.Client())
	u := srv.URL + "/img/cover.jpg"
	if got := s.ResolvePlayableURL(u); got != u {
		t.Errorf("cold resolve = %q, want remote %q", got, u)
	}
}

func TestEnsureCachedThenResolveReturnsLocal(t *testing.T) {
	srv := mediaServer()
	defer srv.Close()

	s := newTestService(t, srv.Client())
	u := srv.URL + "/img/cover.jpg"
	got := s.EnsureCached(context.Background(), u, "prod-1")
	if got == u {
		t.Fatal("resolve still returns remote after warm")
	}
	if _, err := os.Stat(got); err != nil {
		t.Errorf("resolved path not on disk: %v", err)
	}
}

func TestResolvePlayableURLPrefersHLSManifest(t *testing.T) {
	srv := mediaServer()
	defer srv.Close()

	s := newTestService(t, srv.Client())
	u := srv.URL + "/v/playlist.m3u8"
	s.EnsureCached(context.Background(), u, "prod-1")

	got := s.ResolvePlayableURL(u)
	if !strings.HasSuffix(got, "index.m3u8") {
		t.Errorf("resolve = %q, want synthesized manifest path", got)
	}
}

func TestResolveFallbackForShareLink(t *testing.T) {
	srv := mediaServer()
	defer srv.Close()

	s := newTestService(t, srv.Client())
	orig := "https://drive.google.com/file/d/abc123/view"
	transformed := s.Norm.Normalize(orig).Transformed
	if got := s.ResolveFallback(transformed); got != orig {
		t.Errorf("fallback = %q, want original %q", got, orig)
	}
}

func TestWarmRecords(t *testing.T) {
	srv := mediaServer()
	defer srv.Close()

	s := newTestService(t, srv.Client())
	records := []catalog.Record{
		{ID: "prod-1", VideoURLs: []string{srv.URL + "/v/playlist.m3u8"}},
		{ID: "prod-2", Variants: []catalog.Variant{
			{ID: "var-1", ImageURLs: []string{srv.URL + "/img/alt.jpg"}},
		}},
	}
	s.WarmRecords(context.Background(), records)

	if got := s.ResolvePlayableURL(srv.URL + "/v/playlist.m3u8"); !strings.HasSuffix(got, "index.m3u8") {
		t.Errorf("manifest resolve = %q, want synthesized manifest path", got)
	}
	if got := s.ResolvePlayableURL(srv.URL + "/img/alt.jpg"); got == srv.URL+"/img/alt.jpg" {
		t.Error("variant image not warmed")
	}
}

func TestClearAll(t *testing.T) {
	srv := mediaServer()
	defer srv.Close()

	s := newTestService(t, srv.Client())
	img := srv.URL + "/img/cover.jpg"
	man := srv.URL + "/v/playlist.m3u8"
	s.WarmBatch(context.Background(), "prod-1", []string{img, man})

	imgLocal := s.ResolvePlayableURL(img)
	manLocal := s.ResolvePlayableURL(man)
	if imgLocal == img || manLocal == man {
		t.Fatal("warm did not land")
	}

	s.ClearAll()

	if got := s.ResolvePlayableURL(img); got != img {
		t.Errorf("image resolve after clear = %q, want remote", got)
	}
	if got := s.ResolvePlayableURL(man); got != man {
		t.Errorf("manifest resolve after clear = %q, want remote", got)
	}
	if _, err := os.Stat(imgLocal); !os.IsNotExist(err) {
		t.Errorf("image payload survived clear: %v", err)
	}
	if _, err := os.Stat(filepath.Dir(manLocal)); !os.IsNotExist(err) {
		t.Errorf("hls entry dir survived clear: %v", err)
	}
}
