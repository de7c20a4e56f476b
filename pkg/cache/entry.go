// Package cache stores Redmine GET responses in Redis so the gateway can
// revalidate them with conditional requests.
package cache

import (
	"time"
)

// Entry is one cached response body and its validators.
type Entry struct {
	// Body is the raw XML body as received.
	Body []byte `json:"body"`

	// ETag is sent back as If-None-Match.
	ETag string `json:"etag,omitempty"`

	// LastModified is sent back as If-Modified-Since when there is no ETag.
	LastModified time.Time `json:"last_modified,omitempty"`

	// Expires bounds how long Redis keeps the entry.
	Expires time.Time `json:"expires"`

	StatusCode  int       `json:"status_code"`
	ContentType string    `json:"content_type,omitempty"`
	CachedAt    time.Time `json:"cached_at"`
}

// IsExpired reports whether the entry is past its retention window.
func (e *Entry) IsExpired() bool {
	return time.Now().After(e.Expires)
}

// TTL returns the remaining retention, 0 if already expired.
func (e *Entry) TTL() time.Duration {
	ttl := time.Until(e.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}

// Revalidatable reports whether the entry carries a validator the server
// can answer with 304 Not Modified.
func (e *Entry) Revalidatable() bool {
	return e != nil && (e.ETag != "" || !e.LastModified.IsZero())
}
