//go:build integration

package ratelimit

import (
	"context"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis starts a Redis container and returns a client.
func setupRedis(t *testing.T) (*redis.Client, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	endpoint, err := redisContainer.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("Failed to get Redis endpoint: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: endpoint,
	})

	// Test connection
	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("Failed to connect to Redis: %v", err)
	}

	cleanup := func() {
		client.Close()
		redisContainer.Terminate(ctx)
	}

	return client, cleanup
}

func TestTracker_Integration_WindowLifecycle(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	tracker := NewTracker(redisClient, "redmine.integration", logger)
	ctx := context.Background()

	state, err := tracker.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if state != nil {
		t.Fatalf("expected no window on empty Redis, got %+v", state)
	}

	headers := http.Header{}
	headers.Set("Retry-After", "1")
	opened, err := tracker.UpdateFromResponse(ctx, http.StatusTooManyRequests, headers)
	if err != nil || !opened {
		t.Fatalf("UpdateFromResponse() = %v, %v", opened, err)
	}

	state, err = tracker.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if state == nil || state.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("unexpected state %+v", state)
	}

	allowed, _, err := tracker.ShouldAllowRequest(ctx)
	if err != nil {
		t.Fatalf("ShouldAllowRequest() error = %v", err)
	}
	if allowed {
		t.Error("request should be refused inside the window")
	}

	time.Sleep(1500 * time.Millisecond)

	allowed, _, err = tracker.ShouldAllowRequest(ctx)
	if err != nil {
		t.Fatalf("ShouldAllowRequest() error = %v", err)
	}
	if !allowed {
		t.Error("request should be allowed after the window expired")
	}
}

func TestTracker_Integration_ConcurrentReaders(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	ctx := context.Background()

	writer := NewTracker(redisClient, "redmine.integration", logger)
	headers := http.Header{}
	headers.Set("Retry-After", "30")
	if _, err := writer.UpdateFromResponse(ctx, http.StatusServiceUnavailable, headers); err != nil {
		t.Fatal(err)
	}

	const readers = 10
	results := make(chan bool, readers)
	for i := 0; i < readers; i++ {
		go func() {
			reader := NewTracker(redisClient, "redmine.integration", logger)
			allowed, _, err := reader.ShouldAllowRequest(ctx)
			if err != nil {
				t.Errorf("ShouldAllowRequest() error = %v", err)
			}
			results <- allowed
		}()
	}

	for i := 0; i < readers; i++ {
		if <-results {
			t.Error("a reader was allowed inside the shared window")
		}
	}
}
