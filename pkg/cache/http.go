package cache

import (
	"fmt"
	"net/http"
	"time"
)

// DefaultTTL is the retention used when the server sends no usable Expires
// header, which is the norm for Redmine.
const DefaultTTL = 5 * time.Minute

// NewEntry builds an entry from a response and its already-read body.
func NewEntry(resp *http.Response, body []byte) (*Entry, error) {
	if resp == nil {
		return nil, fmt.Errorf("response cannot be nil")
	}

	entry := &Entry{
		Body:        body,
		ETag:        resp.Header.Get("ETag"),
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		CachedAt:    time.Now(),
		Expires:     parseExpires(resp.Header),
	}

	if lastMod := resp.Header.Get("Last-Modified"); lastMod != "" {
		if t, err := http.ParseTime(lastMod); err == nil {
			entry.LastModified = t
		}
	}

	return entry, nil
}

// parseExpires falls back to DefaultTTL when Expires is absent, malformed or
// already in the past. Every read is revalidated, so retention only bounds
// Redis memory.
func parseExpires(headers http.Header) time.Time {
	now := time.Now()
	raw := headers.Get("Expires")
	if raw == "" {
		return now.Add(DefaultTTL)
	}

	expires, err := http.ParseTime(raw)
	if err != nil || expires.Before(now.Add(DefaultTTL)) {
		return now.Add(DefaultTTL)
	}
	return expires
}

// AddConditionalHeaders adds If-None-Match, or If-Modified-Since when the
// entry has no ETag.
func AddConditionalHeaders(req *http.Request, entry *Entry) {
	if req == nil || !entry.Revalidatable() {
		return
	}

	if entry.ETag != "" {
		req.Header.Set("If-None-Match", entry.ETag)
	} else {
		req.Header.Set("If-Modified-Since", entry.LastModified.UTC().Format(http.TimeFormat))
	}
	ConditionalRequests.Inc()
}
