package cache

import (
	"net/http"
	"testing"
	"time"
)

func TestNewEntry(t *testing.T) {
	lastMod := time.Now().Add(-1 * time.Hour).UTC().Truncate(time.Second)
	resp := &http.Response{
		StatusCode: http.StatusOK,
		Header: http.Header{
			"Etag":          []string{`W/"6f1ed002ab5595859014ebf0951522d9"`},
			"Last-Modified": []string{lastMod.Format(http.TimeFormat)},
			"Content-Type":  []string{"application/xml; charset=utf-8"},
		},
	}

	entry, err := NewEntry(resp, []byte("<issues/>"))
	if err != nil {
		t.Fatalf("NewEntry() error = %v", err)
	}
	if string(entry.Body) != "<issues/>" {
		t.Errorf("Body = %q", entry.Body)
	}
	if entry.ETag != `W/"6f1ed002ab5595859014ebf0951522d9"` {
		t.Errorf("ETag = %q", entry.ETag)
	}
	if !entry.LastModified.Equal(lastMod) {
		t.Errorf("LastModified = %v, want %v", entry.LastModified, lastMod)
	}
	if entry.ContentType != "application/xml; charset=utf-8" {
		t.Errorf("ContentType = %q", entry.ContentType)
	}

	if _, err := NewEntry(nil, nil); err == nil {
		t.Error("NewEntry(nil) should fail")
	}
}

func TestParseExpires(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		wantMin time.Duration
		wantMax time.Duration
	}{
		{"missing header", "", DefaultTTL - time.Second, DefaultTTL + time.Second},
		{"malformed header", "tomorrow", DefaultTTL - time.Second, DefaultTTL + time.Second},
		{"in the past", time.Now().Add(-time.Hour).Format(http.TimeFormat), DefaultTTL - time.Second, DefaultTTL + time.Second},
		{"far future", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat), 59 * time.Minute, 61 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			if tt.header != "" {
				h.Set("Expires", tt.header)
			}
			got := time.Until(parseExpires(h))
			if got < tt.wantMin || got > tt.wantMax {
				t.Errorf("retention = %v, want between %v and %v", got, tt.wantMin, tt.wantMax)
			}
		})
	}
}

func TestAddConditionalHeaders(t *testing.T) {
	lastMod := time.Date(2011, 2, 13, 17, 59, 24, 0, time.UTC)

	tests := []struct {
		name          string
		entry         *Entry
		wantNoneMatch string
		wantModSince  string
	}{
		{"etag preferred", &Entry{ETag: `"abc"`, LastModified: lastMod}, `"abc"`, ""},
		{"last modified only", &Entry{LastModified: lastMod}, "", "Sun, 13 Feb 2011 17:59:24 GMT"},
		{"no validators", &Entry{}, "", ""},
		{"nil entry", nil, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodGet, "http://redmine.local/issues.xml", nil)
			AddConditionalHeaders(req, tt.entry)

			if got := req.Header.Get("If-None-Match"); got != tt.wantNoneMatch {
				t.Errorf("If-None-Match = %q, want %q", got, tt.wantNoneMatch)
			}
			if got := req.Header.Get("If-Modified-Since"); got != tt.wantModSince {
				t.Errorf("If-Modified-Since = %q, want %q", got, tt.wantModSince)
			}
		})
	}
}
