package playlist

import (
	"strings"
	"testing"
)

const base = "https://cdn.example/a/playlist.m3u8"

func TestParse_masterFirstVariant(t *testing.T) {
	content := `#EXTM3U
#EXT-X-STREAM-INF:BANDWIDTH=800000,RESOLUTION=640x360
variant_0.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=2000000,RESOLUTION=1280x720
variant_1.m3u8
`
	doc := Parse(content, base)
	if !doc.Master {
		t.Fatal("want master")
	}
	if len(doc.Entries) != 1 {
		t.Fatalf("entries = %v", doc.Entries)
	}
	if doc.Entries[0] != "https://cdn.example/a/variant_0.m3u8" {
		t.Errorf("variant = %q", doc.Entries[0])
	}
}

func TestParse_masterAbsoluteAndRootRelative(t *testing.T) {
	tests := []struct {
		name string
		line string
		want string
	}{
		{"relative", "low/index.m3u8", "https://cdn.example/a/low/index.m3u8"},
		{"root relative", "/other/index.m3u8", "https://cdn.example/other/index.m3u8"},
		{"absolute", "https://alt.example/v.m3u8", "https://alt.example/v.m3u8"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			content := "#EXTM3U\n#EXT-X-STREAM-INF:BANDWIDTH=1\n" + tt.line + "\n"
			doc := Parse(content, base)
			if !doc.Master || len(doc.Entries) != 1 || doc.Entries[0] != tt.want {
				t.Errorf("got %+v, want [%s]", doc, tt.want)
			}
		})
	}
}

func TestParse_mediaSegments(t *testing.T) {
	content := `#EXTM3U
#EXT-X-TARGETDURATION:6
#EXTINF:6.0,
seg0.ts
#EXTINF:6.0,
seg1.ts?t=1
#EXTINF:6.0,
https://other.example/seg2.ts
#EXT-X-ENDLIST
`
	doc := Parse(content, base)
	if doc.Master {
		t.Fatal("not a master playlist")
	}
	want := []string{
		"https://cdn.example/a/seg0.ts",
		"https://cdn.example/a/seg1.ts?t=1",
		"https://other.example/seg2.ts",
	}
	if len(doc.Entries) != len(want) {
		t.Fatalf("entries = %v", doc.Entries)
	}
	for i := range want {
		if doc.Entries[i] != want[i] {
			t.Errorf("entry %d = %q, want %q", i, doc.Entries[i], want[i])
		}
	}
}

func TestParse_segmentsAreAbsolute(t *testing.T) {
	content := "#EXTM3U\n#EXTINF:4.0,\nchunk_segment_001.weird\n"
	doc := Parse(content, base)
	if len(doc.Entries) == 0 {
		t.Fatal("want at least one entry")
	}
	for _, e := range doc.Entries {
		if !strings.Contains(e, "://") {
			t.Errorf("entry not absolute: %q", e)
		}
	}
}

func TestParse_predicates(t *testing.T) {
	tests := []struct {
		name string
		line string
		want bool
	}{
		{"ts ext", "seg0.ts", true},
		{"ts with query", "seg0.ts?sig=abc", true},
		{"m4s ext", "frag12.m4s", true},
		{"segment substring", "media_segment_4.xyz", true},
		{"leading number ext", "0001.chk", true},
		{"leading number ext query", "7.chk?x=1", true},
		{"path with segment ext dir", "a.ts/extra?x=1", true},
		{"plain key file", "key.bin", false},
		{"directive", "#EXTINF:6.0,", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsSegmentLine(tt.line); got != tt.want {
				t.Errorf("IsSegmentLine(%q) = %v, want %v", tt.line, got, tt.want)
			}
		})
	}
}

func TestParse_lastResortFallback(t *testing.T) {
	// No line matches a segment predicate, but plain lines exist: the
	// fallback must produce entries rather than an empty list.
	content := "#EXTM3U\nfirst.bin.x\nsecond.bin.x\n"
	doc := Parse(content, base)
	if len(doc.Entries) != 2 {
		t.Fatalf("entries = %v", doc.Entries)
	}
	if doc.Entries[0] != "https://cdn.example/a/first.bin.x" {
		t.Errorf("entry 0 = %q", doc.Entries[0])
	}
}

func TestParse_neverErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		baseURL string
	}{
		{"empty", "", base},
		{"only comments", "#EXTM3U\n#EXT-X-ENDLIST\n", base},
		{"garbage base", "seg0.ts\n", "::not a url::"},
		{"binary noise", "\x00\x01\x02", base},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_ = Parse(tt.content, tt.baseURL) // must not panic
		})
	}
}

func TestParse_masterWithNoVariantLine(t *testing.T) {
	content := "#EXTM3U\n#EXT-X-STREAM-INF:BANDWIDTH=1\n"
	doc := Parse(content, base)
	if !doc.Master {
		t.Fatal("want master")
	}
	if len(doc.Entries) != 0 {
		t.Errorf("entries = %v", doc.Entries)
	}
}

func TestResolveEntry_queryPreservedVerbatim(t *testing.T) {
	got := ResolveEntry("seg1.ts?t=1&sig=a%2Fb", base)
	if got != "https://cdn.example/a/seg1.ts?t=1&sig=a%2Fb" {
		t.Errorf("got %q", got)
	}
}
