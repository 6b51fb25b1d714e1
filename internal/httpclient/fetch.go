package httpclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/andybalholm/brotli"
)

// errStatus reports a non-2xx response. Callers treat any error from this
// package as "cache miss, fall back to remote", so the status code is only
// needed for logs.
type errStatus int

func (e errStatus) Error() string {
	return fmt.Sprintf("unexpected status: %d", int(e))
}

// GetText fetches url and returns the body as a string. Manifests are small
// text files that compress well, so br is advertised and decoded here
// (net/http only auto-decodes gzip). Non-2xx responses are an error.
func GetText(ctx context.Context, client *http.Client, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept-Encoding", "gzip, br")
	release := GlobalHostSem.Acquire(url)
	resp, err := DoWithRetry(ctx, client, req, DefaultRetryPolicy)
	release()
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", errStatus(resp.StatusCode)
	}
	body, err := io.ReadAll(decodedBody(resp))
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// DownloadFile fetches url to destPath and returns the byte size written.
// The download goes to destPath + ".partial" first and is renamed into
// place, so a half-written file is never visible at destPath.
func DownloadFile(ctx context.Context, client *http.Client, url, destPath string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", userAgent)
	release := GlobalHostSem.Acquire(url)
	resp, err := DoWithRetry(ctx, client, req, DefaultRetryPolicy)
	release()
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return 0, errStatus(resp.StatusCode)
	}
	partial := destPath + ".partial"
	f, err := os.Create(partial)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(f, resp.Body)
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(partial)
		return 0, err
	}
	if err := os.Rename(partial, destPath); err != nil {
		os.Remove(partial)
		return 0, err
	}
	return n, nil
}

// IsStatusError reports whether err came from a non-2xx response.
func IsStatusError(err error) bool {
	_, ok := err.(errStatus)
	return ok
}

func decodedBody(resp *http.Response) io.Reader {
	switch strings.ToLower(resp.Header.Get("Content-Encoding")) {
	case "gzip":
		// Only reached when Accept-Encoding was set explicitly; the
		// transport decodes gzip itself otherwise.
		if r, err := newGzipReader(resp.Body); err == nil {
			return r
		}
		return resp.Body
	case "br":
		return brotli.NewReader(resp.Body)
	default:
		return resp.Body
	}
}
