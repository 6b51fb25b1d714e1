// Package urlnorm turns raw catalog media references into directly fetchable
// URLs and remembers how to undo the transformation when playback of the
// transformed URL fails.
package urlnorm

import (
	"net/url"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Stream-CDN rendition names. The provider stores one canonical manifest
// plus fixed-quality direct files next to it.
const (
	ManifestName = "playlist.m3u8"
	Tier720p     = "play_720p.mp4"
	Tier480p     = "play_480p.mp4"
	TierOriginal = "original"
)

// mediaExts are path extensions recognized as media. A CDN URL whose last
// path segment carries one of these gets that segment replaced by the
// manifest name; anything else gets the manifest name appended.
var mediaExts = []string{
	".m3u8", ".mp4", ".m4v", ".mov", ".webm", ".ts",
	".jpg", ".jpeg", ".png", ".webp", ".gif",
}

// Normalized pairs a fetchable URL with the fallback target to try when
// playback of Transformed fails.
type Normalized struct {
	Transformed string
	Original    string
}

// Normalizer rewrites share links and stream-CDN URLs, and owns the
// transformed→original reverse map. One instance lives for the lifetime of
// the cache subsystem; the map is bounded (losing an old entry only costs
// the best fallback, which the contract allows) and is re-derivable on the
// next warm pass.
type Normalizer struct {
	cdnHosts []string
	reverse  *lru.Cache[string, string]
}

// New builds a Normalizer. cdnHosts are host suffixes (or exact hosts) of
// the adaptive-streaming provider; mapSize bounds the reverse map.
func New(cdnHosts []string, mapSize int) *Normalizer {
	if mapSize <= 0 {
		mapSize = 4096
	}
	reverse, _ := lru.New[string, string](mapSize)
	return &Normalizer{cdnHosts: cdnHosts, reverse: reverse}
}

// Normalize classifies raw and produces a fetchable URL. The result is
// recorded in the reverse map, identity mappings included, so ResolveFallback
// never misses purely because a URL passed through unchanged.
func (n *Normalizer) Normalize(raw string) Normalized {
	out := rewriteShareLink(raw)
	out = n.rewriteStreamCDN(out)
	if out != raw {
		n.reverse.Add(out, raw)
	} else if !n.reverse.Contains(out) {
		// Identity entry, but never clobber a real original recorded by an
		// earlier transforming pass over the same URL.
		n.reverse.Add(out, out)
	}
	return Normalized{Transformed: out, Original: raw}
}

// ResolveFallback returns the URL to try after u failed at playback time.
// Priority: the recorded original (when different from u), then the
// provider's lower-tier direct file for a canonical manifest URL, then ""
// meaning no further fallback exists.
func (n *Normalizer) ResolveFallback(u string) string {
	if orig, ok := n.reverse.Get(u); ok && orig != u {
		return orig
	}
	if n.isStreamCDN(u) && strings.HasSuffix(pathOf(u), "/"+ManifestName) {
		return strings.TrimSuffix(u, ManifestName) + Tier480p
	}
	return ""
}

// IsStreamCDN reports whether u's host belongs to the configured
// adaptive-streaming provider.
func (n *Normalizer) IsStreamCDN(u string) bool {
	return n.isStreamCDN(u)
}

func (n *Normalizer) isStreamCDN(rawURL string) bool {
	var host string
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		host = strings.ToLower(u.Hostname())
	} else {
		// Catalog entries are occasionally malformed enough that url.Parse
		// rejects them (bad port, stray control byte); the provider check
		// still has to work so rewriteStreamCDN can fix them up literally.
		host = strings.ToLower(literalHost(rawURL))
	}
	if host == "" {
		return false
	}
	for _, h := range n.cdnHosts {
		h = strings.ToLower(h)
		if host == h || (strings.HasPrefix(h, ".") && strings.HasSuffix(host, h)) {
			return true
		}
	}
	return false
}

// rewriteShareLink converts a Google Drive share link to its
// direct-download form. The file id appears either as a /file/d/<id>/ path
// segment or as an id= query parameter; anything else passes through.
func rewriteShareLink(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || !strings.Contains(strings.ToLower(u.Hostname()), "drive.google.com") {
		return raw
	}
	id := ""
	if i := strings.Index(u.Path, "/file/d/"); i >= 0 {
		rest := u.Path[i+len("/file/d/"):]
		if j := strings.Index(rest, "/"); j >= 0 {
			id = rest[:j]
		} else {
			id = rest
		}
	}
	if id == "" {
		id = u.Query().Get("id")
	}
	if id == "" {
		return raw
	}
	return "https://drive.google.com/uc?export=download&id=" + id
}

// rewriteStreamCDN canonicalizes a provider URL to its manifest form;
// non-provider URLs and URLs already pointing at an HLS manifest pass
// through.
func (n *Normalizer) rewriteStreamCDN(raw string) string {
	if !n.isStreamCDN(raw) {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		// Literal fix-up when parsing fails but the host already matched.
		return replaceTrailingComponent(raw)
	}
	p := u.Path
	if strings.HasSuffix(strings.ToLower(p), ".m3u8") {
		return raw
	}
	if hasMediaExt(p) {
		if i := strings.LastIndex(p, "/"); i >= 0 {
			u.Path = p[:i+1] + ManifestName
		} else {
			u.Path = "/" + ManifestName
		}
	} else {
		u.Path = strings.TrimSuffix(p, "/") + "/" + ManifestName
	}
	u.RawQuery = ""
	return u.String()
}

// literalHost cuts the host out of a URL by string surgery alone, for
// inputs url.Parse rejects.
func literalHost(rawURL string) string {
	s := rawURL
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+len("://"):]
	} else {
		return ""
	}
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	if i := strings.LastIndex(s, "@"); i >= 0 {
		s = s[i+1:]
	}
	if i := strings.Index(s, ":"); i >= 0 {
		s = s[:i]
	}
	return s
}

func replaceTrailingComponent(raw string) string {
	if !hasMediaExt(raw) {
		return strings.TrimSuffix(raw, "/") + "/" + ManifestName
	}
	if i := strings.LastIndex(raw, "/"); i >= 0 {
		return raw[:i+1] + ManifestName
	}
	return raw
}

func hasMediaExt(p string) bool {
	lower := strings.ToLower(p)
	if i := strings.Index(lower, "?"); i >= 0 {
		lower = lower[:i]
	}
	for _, ext := range mediaExts {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

func pathOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Path
}
