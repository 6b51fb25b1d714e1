// Package probe classifies a media URL so the warm orchestrator can route
// it to the right cache.
package probe

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Kind is a coarse media classification.
type Kind string

const (
	KindUnknown Kind = ""
	KindHLS     Kind = "hls"
	KindVideo   Kind = "video"
	KindImage   Kind = "image"
)

var (
	videoExts = []string{".mp4", ".m4v", ".mov", ".webm"}
	imageExts = []string{".jpg", ".jpeg", ".png", ".webp", ".gif"}
)

// Classify inspects a URL and returns its media kind. Extension wins; when
// the path is uninformative a 1-byte Range GET sniffs the Content-Type.
// Unknown is not an error: callers skip caching for unknowns.
func Classify(mediaURL string, client *http.Client) Kind {
	u, err := url.Parse(mediaURL)
	if err != nil {
		return KindUnknown
	}
	path := strings.ToLower(u.Path)
	if strings.HasSuffix(path, ".m3u8") {
		return KindHLS
	}
	for _, ext := range videoExts {
		if strings.HasSuffix(path, ext) {
			return KindVideo
		}
	}
	for _, ext := range imageExts {
		if strings.HasSuffix(path, ext) {
			return KindImage
		}
	}
	return sniff(mediaURL, client)
}

func sniff(mediaURL string, client *http.Client) Kind {
	if client == nil {
		client = &http.Client{Timeout: 8 * time.Second}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return KindUnknown
	}
	req.Header.Set("Range", "bytes=0-0")
	resp, err := client.Do(req)
	if err != nil {
		return KindUnknown
	}
	defer resp.Body.Close()
	ct := strings.ToLower(resp.Header.Get("Content-Type"))
	switch {
	case strings.Contains(ct, "mpegurl"):
		return KindHLS
	case strings.HasPrefix(ct, "video/"), strings.Contains(ct, "application/mp4"):
		return KindVideo
	case strings.HasPrefix(ct, "image/"):
		return KindImage
	}
	return KindUnknown
}
