package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var (
	backoffWindowsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "redmine_backoff_windows_total",
		Help: "Total number of back-off windows opened by Retry-After responses",
	})

	backoffBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "redmine_backoff_blocks_total",
		Help: "Total number of requests refused inside a back-off window",
	})

	backoffRemainingSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "redmine_backoff_remaining_seconds",
		Help: "Seconds left in the most recently observed back-off window",
	})
)

// Tracker records back-off windows and answers whether a request may go out.
// With a Redis client the window is shared by every process talking to the
// same server; without one it is kept in memory.
type Tracker struct {
	redis  redis.Cmdable
	key    string
	logger zerolog.Logger

	mu     sync.Mutex
	memory *BackoffState
}

// NewTracker creates a tracker for one server. scope distinguishes servers
// sharing a Redis instance, typically the server host. redisClient may be nil.
func NewTracker(redisClient redis.Cmdable, scope string, logger zerolog.Logger) *Tracker {
	return &Tracker{
		redis:  redisClient,
		key:    RedisKeyPrefix + scope,
		logger: logger,
	}
}

// Key returns the Redis key holding this tracker's window.
func (t *Tracker) Key() string {
	return t.key
}

// GetState returns the current window, or nil when none is open.
func (t *Tracker) GetState(ctx context.Context) (*BackoffState, error) {
	if t.redis == nil {
		t.mu.Lock()
		defer t.mu.Unlock()
		if !t.memory.Active() {
			t.memory = nil
			return nil, nil
		}
		s := *t.memory
		return &s, nil
	}

	data, err := t.redis.Get(ctx, t.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("get back-off state: %w", err)
	}

	var state BackoffState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parse back-off state: %w", err)
	}
	if !state.Active() {
		return nil, nil
	}
	return &state, nil
}

// UpdateFromResponse opens a window when the response is a 429 or 503 with a
// usable Retry-After header. Other responses are ignored. It reports whether
// a window was opened.
func (t *Tracker) UpdateFromResponse(ctx context.Context, statusCode int, headers http.Header) (bool, error) {
	if !OpensWindow(statusCode) {
		return false, nil
	}

	now := time.Now()
	wait, ok := ParseRetryAfter(headers.Get("Retry-After"), now)
	if !ok || wait <= 0 {
		return false, nil
	}

	state := &BackoffState{
		Until:      now.Add(wait),
		StatusCode: statusCode,
		RecordedAt: now,
	}

	if t.redis == nil {
		t.mu.Lock()
		t.memory = state
		t.mu.Unlock()
	} else {
		data, err := json.Marshal(state)
		if err != nil {
			return false, fmt.Errorf("marshal back-off state: %w", err)
		}
		if err := t.redis.Set(ctx, t.key, data, wait).Err(); err != nil {
			return false, fmt.Errorf("store back-off state in redis: %w", err)
		}
	}

	backoffWindowsTotal.Inc()
	backoffRemainingSeconds.Set(wait.Seconds())

	t.logger.Warn().
		Int("status", statusCode).
		Dur("retry_after", wait).
		Time("until", state.Until).
		Msg("Server requested back-off")

	return true, nil
}

// ShouldAllowRequest reports whether a request may be sent now. When it may
// not, the remaining wait is returned.
func (t *Tracker) ShouldAllowRequest(ctx context.Context) (bool, time.Duration, error) {
	state, err := t.GetState(ctx)
	if err != nil {
		return false, 0, err
	}
	if state == nil {
		backoffRemainingSeconds.Set(0)
		return true, 0, nil
	}

	remaining := state.Remaining()
	backoffBlocksTotal.Inc()
	backoffRemainingSeconds.Set(remaining.Seconds())

	t.logger.Debug().
		Dur("remaining", remaining).
		Int("status", state.StatusCode).
		Msg("Request refused inside back-off window")

	return false, remaining, nil
}

// Reset closes the window early.
func (t *Tracker) Reset(ctx context.Context) error {
	if t.redis == nil {
		t.mu.Lock()
		t.memory = nil
		t.mu.Unlock()
		return nil
	}
	if err := t.redis.Del(ctx, t.key).Err(); err != nil {
		return fmt.Errorf("delete back-off state: %w", err)
	}
	return nil
}
