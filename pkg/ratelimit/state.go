// Package ratelimit gates requests after a Redmine server asked the client to
// back off. A 429 or 503 response carrying Retry-After opens a window; until
// it closes every request fails fast. Nothing is retried.
package ratelimit

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// RedisKeyPrefix prefixes the per-server back-off keys.
const RedisKeyPrefix = "redmine:backoff:"

// MaxWindow caps a server-supplied Retry-After so a bogus value cannot
// block a client for days.
const MaxWindow = 15 * time.Minute

// BackoffState is the back-off window recorded for one server.
type BackoffState struct {
	// Until is the end of the window.
	Until time.Time `json:"until"`

	// StatusCode is the response that opened the window.
	StatusCode int `json:"status_code"`

	// RecordedAt is when the window was opened.
	RecordedAt time.Time `json:"recorded_at"`
}

// Active reports whether the window is still open.
func (s *BackoffState) Active() bool {
	return s != nil && time.Now().Before(s.Until)
}

// Remaining returns the time left in the window, 0 once it has closed.
func (s *BackoffState) Remaining() time.Duration {
	if s == nil {
		return 0
	}
	d := time.Until(s.Until)
	if d < 0 {
		return 0
	}
	return d
}

// OpensWindow reports whether a response status can open a back-off window.
func OpensWindow(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || statusCode == http.StatusServiceUnavailable
}

// ParseRetryAfter parses a Retry-After value given either as delta seconds
// or as an HTTP date. The result is capped at MaxWindow.
func ParseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}

	var d time.Duration
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0, false
		}
		d = time.Duration(secs) * time.Second
	} else if at, err := http.ParseTime(value); err == nil {
		d = at.Sub(now)
		if d < 0 {
			d = 0
		}
	} else {
		return 0, false
	}

	if d > MaxWindow {
		d = MaxWindow
	}
	return d, true
}
