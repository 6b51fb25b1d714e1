// Package playlist parses HLS manifests into ordered absolute entry URLs.
// Parsing is pure (no I/O) and never fails: malformed input yields an empty
// entry list so playback can degrade to the remote URL instead of erroring.
package playlist

import (
	"bufio"
	"net/url"
	"strings"
)

// Document is the parsed form of one manifest.
//
// For a master playlist, Entries holds exactly one variant-playlist URL
// (the first declared) and the caller must fetch and re-parse it. For a
// media playlist, Entries holds segment URLs in playback order.
type Document struct {
	Master  bool
	Entries []string
}

const masterTag = "#EXT-X-STREAM-INF"

// segmentExts are extensions that mark a line as a media segment. Matched
// anywhere in the line so trailing query strings don't hide them.
var segmentExts = []string{".ts", ".m4s", ".aac", ".mp4", ".m4a", ".m4v", ".vtt"}

// segmentPredicates classify one manifest line as a segment reference.
// Origin providers emit subtly different manifest dialects; a single strict
// rule under-matches in practice, so each quirk gets its own predicate.
// Order matters only for readability: a line matching any predicate is a
// segment. When adding a provider quirk, append a predicate instead of
// widening an existing one.
var segmentPredicates = []func(string) bool{
	hasSegmentExt,
	func(line string) bool { return strings.Contains(strings.ToLower(line), "segment") },
	leadingNumberThenExt,
	pathHasSegmentExt,
}

// Parse turns manifest text into a Document, resolving every entry against
// baseURL. A manifest carrying the stream-variant tag is a master playlist:
// the first variant reference is returned as the single entry, no bitrate
// selection beyond "first declared".
func Parse(content, baseURL string) Document {
	if strings.Contains(content, masterTag) {
		if variant := firstVariant(content, baseURL); variant != "" {
			return Document{Master: true, Entries: []string{variant}}
		}
		return Document{Master: true}
	}
	return Document{Entries: mediaSegments(content, baseURL)}
}

func firstVariant(content, baseURL string) string {
	sc := bufio.NewScanner(strings.NewReader(content))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.Contains(line, ".m3u8") {
			return resolveEntry(line, baseURL)
		}
	}
	return ""
}

func mediaSegments(content, baseURL string) []string {
	var entries []string
	sc := bufio.NewScanner(strings.NewReader(content))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if isSegmentLine(line) {
			entries = append(entries, resolveEntry(line, baseURL))
		}
	}
	if entries != nil {
		return entries
	}
	// Last resort: no line matched any predicate, but an empty list would
	// disable caching for this asset entirely. Treat every plain line as a
	// segment and let the download step sort out the losers.
	sc = bufio.NewScanner(strings.NewReader(content))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		entries = append(entries, resolveEntry(line, baseURL))
	}
	return entries
}

// IsSegmentLine reports whether a raw manifest line would be treated as a
// segment reference by Parse. Exported for the manifest rewriter, which
// must agree with the parser about which lines are segments.
func IsSegmentLine(line string) bool {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return false
	}
	return isSegmentLine(line)
}

func isSegmentLine(line string) bool {
	for _, match := range segmentPredicates {
		if match(line) {
			return true
		}
	}
	return false
}

func hasSegmentExt(line string) bool {
	lower := strings.ToLower(line)
	for _, ext := range segmentExts {
		if strings.Contains(lower, ext) {
			return true
		}
	}
	return false
}

// leadingNumberThenExt matches lines like "0001.ts" or "42.m4s" even if the
// extension is one this package doesn't know about.
func leadingNumberThenExt(line string) bool {
	i := 0
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	if i == 0 || i >= len(line) || line[i] != '.' {
		return false
	}
	rest := line[i+1:]
	if rest == "" {
		return false
	}
	for j := 0; j < len(rest); j++ {
		c := rest[j]
		if c == '?' {
			return j > 0
		}
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9') {
			return false
		}
	}
	return true
}

// pathHasSegmentExt checks the path component alone, ignoring the query.
func pathHasSegmentExt(line string) bool {
	if i := strings.Index(line, "?"); i >= 0 {
		line = line[:i]
	}
	lower := strings.ToLower(line)
	for _, ext := range segmentExts {
		if strings.HasSuffix(lower, ext) || strings.Contains(lower, ext+"/") {
			return true
		}
	}
	return false
}

// ResolveEntry resolves a (possibly relative) manifest entry against
// baseURL, preserving the entry's query string verbatim. On any parse
// failure the entry is returned unchanged; the caller's download will fail
// and be treated as a miss.
func ResolveEntry(entry, baseURL string) string {
	return resolveEntry(entry, baseURL)
}

func resolveEntry(entry, baseURL string) string {
	// Strip the query first and reattach it untouched afterwards; some
	// providers sign query strings and re-encoding them breaks the
	// signature.
	query := ""
	if i := strings.Index(entry, "?"); i >= 0 {
		query = entry[i:]
		entry = entry[:i]
	}
	resolved := resolvePath(entry, baseURL)
	return resolved + query
}

func resolvePath(p, baseURL string) string {
	if strings.Contains(p, "://") {
		return p
	}
	base, err := url.Parse(baseURL)
	if err != nil || base.Scheme == "" {
		return p
	}
	ref, err := url.Parse(p)
	if err != nil {
		return p
	}
	return base.ResolveReference(ref).String()
}
