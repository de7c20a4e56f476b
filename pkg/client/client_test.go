package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Sternrassler/redmine-connector/internal/testutil"
	"github.com/Sternrassler/redmine-connector/pkg/apierr"
	"github.com/redis/go-redis/v9"
)

// setupTestRedis creates a test Redis client.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // Use a separate DB for tests
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}

	// Flush test DB
	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	return client
}

func newTestClient(t *testing.T, baseURL string, mutate func(*Config)) *Client {
	t.Helper()
	cfg := DefaultConfig(baseURL)
	if mutate != nil {
		mutate(&cfg)
	}
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name        string
		config      Config
		expectError bool
	}{
		{
			name:   "valid config",
			config: DefaultConfig("https://redmine.example.com"),
		},
		{
			name:   "base url with sub path",
			config: DefaultConfig("http://intranet.local/redmine/"),
		},
		{
			name:        "empty base url",
			config:      DefaultConfig(""),
			expectError: true,
		},
		{
			name:        "relative base url",
			config:      DefaultConfig("redmine.example.com"),
			expectError: true,
		},
		{
			name:        "unsupported scheme",
			config:      DefaultConfig("ftp://redmine.example.com"),
			expectError: true,
		},
		{
			name: "empty user agent",
			config: Config{
				BaseURL: "https://redmine.example.com",
			},
			expectError: true,
		},
		{
			name: "negative timeout",
			config: Config{
				BaseURL:   "https://redmine.example.com",
				UserAgent: "test/1.0",
				Timeout:   -time.Second,
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := New(tt.config)

			if tt.expectError {
				if err == nil {
					t.Fatal("Expected error but got nil")
				}
				if !errors.Is(err, apierr.ErrIllegalArgument) {
					t.Errorf("Expected illegal argument, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if client == nil {
				t.Fatal("Client is nil")
			}
			if client.GetCache() != nil {
				t.Error("cache must be disabled without redis")
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("https://redmine.example.com")

	if cfg.UserAgent == "" {
		t.Error("UserAgent should have a default")
	}
	if cfg.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", cfg.Timeout)
	}
	if cfg.Redis != nil {
		t.Error("Redis should be nil by default")
	}
}

func TestBaseURL_Normalized(t *testing.T) {
	c := newTestClient(t, "http://intranet.local/redmine/", nil)
	if got := c.BaseURL(); got != "http://intranet.local/redmine" {
		t.Errorf("BaseURL() = %q", got)
	}
}

func TestDo_Headers(t *testing.T) {
	var got http.Header
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		gotPath = r.URL.RequestURI()
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte("<project><id>1</id></project>"))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL+"/redmine", func(cfg *Config) {
		cfg.APIKey = "secret"
		cfg.UserAgent = "TestApp/1.0.0"
	})

	body, err := c.Post(context.Background(), "/projects.xml", []byte("<project/>"))
	if err != nil {
		t.Fatalf("Post() error = %v", err)
	}
	if string(body) != "<project><id>1</id></project>" {
		t.Errorf("body = %q", body)
	}

	checks := map[string]string{
		"User-Agent":        "TestApp/1.0.0",
		"Accept":            "application/xml",
		"Content-Type":      "application/xml",
		"X-Redmine-Api-Key": "secret",
	}
	for name, want := range checks {
		if v := got.Get(name); v != want {
			t.Errorf("%s = %q, want %q", name, v, want)
		}
	}
	if got.Get(HeaderRequestID) == "" {
		t.Error("X-Request-Id should be set")
	}
	if gotPath != "/redmine/projects.xml" {
		t.Errorf("path = %q, want /redmine/projects.xml", gotPath)
	}
}

func TestDo_NoAPIKeyOrContentTypeWhenAbsent(t *testing.T) {
	var got http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.Write([]byte("<projects/>"))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, nil)
	if _, err := c.Get(context.Background(), "projects.xml"); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Get(HeaderAPIKey) != "" {
		t.Error("API key header must not be sent when unset")
	}
	if got.Get("Content-Type") != "" {
		t.Error("Content-Type must not be sent without a body")
	}
}

func TestDo_StatusMapping(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		sentinel error
		wantBody bool
	}{
		{"unauthorized", http.StatusUnauthorized, "", apierr.ErrUnauthorized, false},
		{"forbidden", http.StatusForbidden, "", apierr.ErrUnauthorized, false},
		{"not found", http.StatusNotFound, "", apierr.ErrObjectNotFound, false},
		{"unprocessable", http.StatusUnprocessableEntity, "<errors><error>Subject cannot be blank</error></errors>", apierr.ErrUnprocessableEntity, true},
		{"server error", http.StatusInternalServerError, "<html/>", apierr.ErrStatus, false},
		{"redirect to login", http.StatusFound, "", apierr.ErrStatus, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			c := newTestClient(t, server.URL, nil)
			c.SetHTTPClient(&http.Client{
				CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
			})

			body, err := c.Post(context.Background(), "/issues.xml", []byte("<issue/>"))
			if !errors.Is(err, tt.sentinel) {
				t.Fatalf("error = %v, want %v", err, tt.sentinel)
			}
			if kind, _ := apierr.KindOf(err); kind == apierr.KindUnprocessableEntity {
				if string(apierr.ResponseBody(err)) != tt.body {
					t.Errorf("error body = %q, want %q", apierr.ResponseBody(err), tt.body)
				}
			}
			if tt.wantBody && string(body) != tt.body {
				t.Errorf("returned body = %q, want %q", body, tt.body)
			}
			if !tt.wantBody && body != nil {
				t.Errorf("returned body = %q, want nil", body)
			}
			if !strings.Contains(err.Error(), "POST /issues.xml") {
				t.Errorf("error %q should name the operation", err)
			}
		})
	}
}

func TestDo_NoRetryOnServerError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, nil)
	if _, err := c.Get(context.Background(), "/issues.xml"); !errors.Is(err, apierr.ErrStatus) {
		t.Fatalf("error = %v", err)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("server called %d times, want exactly 1", n)
	}
}

func TestDo_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	c := newTestClient(t, url, nil)
	_, err := c.Get(context.Background(), "/issues.xml")
	if !errors.Is(err, apierr.ErrIO) {
		t.Fatalf("error = %v, want io error", err)
	}
}

func TestDo_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Get(ctx, "/issues.xml")
	if !errors.Is(err, apierr.ErrIO) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error = %v, want io error wrapping deadline", err)
	}
}

func TestDo_BackoffWindow(t *testing.T) {
	mock := testutil.NewMockRedmine()
	defer mock.Close()
	mock.FailNext(1, testutil.NewThrottledResponse(60))

	c := newTestClient(t, mock.URL(), nil)
	ctx := context.Background()

	_, err := c.Get(ctx, "/projects.xml")
	if !errors.Is(err, apierr.ErrThrottled) {
		t.Fatalf("first error = %v, want throttled", err)
	}

	_, err = c.Get(ctx, "/projects.xml")
	if !errors.Is(err, apierr.ErrThrottled) {
		t.Fatalf("second error = %v, want throttled", err)
	}
	if n := mock.GetRequestCount(); n != 1 {
		t.Errorf("server saw %d requests, want 1 (second refused locally)", n)
	}
}

func TestDo_ServiceUnavailableWithoutRetryAfter(t *testing.T) {
	mock := testutil.NewMockRedmine()
	defer mock.Close()
	mock.FailNext(1, testutil.MockResponse{StatusCode: http.StatusServiceUnavailable})

	c := newTestClient(t, mock.URL(), nil)
	if _, err := c.Get(context.Background(), "/projects.xml"); !errors.Is(err, apierr.ErrStatus) {
		t.Fatalf("error = %v, want status error", err)
	}
	if _, err := c.Get(context.Background(), "/projects.xml"); err != nil {
		t.Fatalf("second call should reach the server, got %v", err)
	}
}

func TestDo_AgainstMockServer(t *testing.T) {
	mock := testutil.NewMockRedmine()
	defer mock.Close()
	mock.RequireAPIKey("secret")
	if err := mock.SeedN("projects", 3); err != nil {
		t.Fatal(err)
	}

	anon := newTestClient(t, mock.URL(), nil)
	if _, err := anon.Get(context.Background(), "/projects.xml"); !errors.Is(err, apierr.ErrUnauthorized) {
		t.Fatalf("anonymous error = %v, want unauthorized", err)
	}

	c := newTestClient(t, mock.URL(), func(cfg *Config) { cfg.APIKey = "secret" })
	body, err := c.Get(context.Background(), "/projects/2.xml")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !strings.Contains(string(body), "<identifier>project-2</identifier>") {
		t.Errorf("unexpected body %s", body)
	}

	if _, err := c.Delete(context.Background(), "/projects/2.xml"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := c.Get(context.Background(), "/projects/2.xml"); !errors.Is(err, apierr.ErrObjectNotFound) {
		t.Fatalf("error after delete = %v, want not found", err)
	}
}

func TestDo_CacheRevalidation(t *testing.T) {
	redisClient := setupTestRedis(t)
	mock := testutil.NewMockRedmine()
	defer mock.Close()
	if err := mock.SeedN("issues", 5); err != nil {
		t.Fatal(err)
	}

	c := newTestClient(t, mock.URL(), func(cfg *Config) { cfg.Redis = redisClient })
	ctx := context.Background()

	first, err := c.Get(ctx, "/issues.xml?offset=0&limit=25")
	if err != nil {
		t.Fatalf("first Get() error = %v", err)
	}

	second, err := c.Get(ctx, "/issues.xml?offset=0&limit=25")
	if err != nil {
		t.Fatalf("second Get() error = %v", err)
	}
	if string(first) != string(second) {
		t.Error("revalidated body differs from the original")
	}
	if n := mock.GetConditionalCount(); n != 1 {
		t.Errorf("conditional requests = %d, want 1", n)
	}

	// A change on the server invalidates the ETag and a fresh body is served.
	if err := mock.Seed("issues", "<issue><id>6</id><project id=\"1\"/><subject>Added</subject></issue>"); err != nil {
		t.Fatal(err)
	}
	third, err := c.Get(ctx, "/issues.xml?offset=0&limit=25")
	if err != nil {
		t.Fatalf("third Get() error = %v", err)
	}
	if string(third) == string(first) {
		t.Error("stale body served after the server changed")
	}
}

func TestDo_CacheSeparatesAPIKeys(t *testing.T) {
	redisClient := setupTestRedis(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"`+r.Header.Get(HeaderAPIKey)+`"`)
		if r.Header.Get("If-None-Match") == `"`+r.Header.Get(HeaderAPIKey)+`"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Write([]byte("<user><login>" + r.Header.Get(HeaderAPIKey) + "</login></user>"))
	}))
	defer server.Close()

	alice := newTestClient(t, server.URL, func(cfg *Config) { cfg.APIKey = "alice"; cfg.Redis = redisClient })
	bob := newTestClient(t, server.URL, func(cfg *Config) { cfg.APIKey = "bob"; cfg.Redis = redisClient })

	if _, err := alice.Get(context.Background(), "/users/current.xml"); err != nil {
		t.Fatal(err)
	}
	body, err := bob.Get(context.Background(), "/users/current.xml")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(body), "bob") {
		t.Errorf("bob received %q", body)
	}
}

func TestDo_WriteInvalidatesIncludeVariants(t *testing.T) {
	redisClient := setupTestRedis(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		w.Write([]byte("<issue><id>1</id></issue>"))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, func(cfg *Config) { cfg.Redis = redisClient })
	ctx := context.Background()

	paths := []string{"/issues/1.xml", "/issues/1.xml?include=journals", "/issues/1.xml?include=relations,children"}
	for _, path := range paths {
		if _, err := c.Get(ctx, path); err != nil {
			t.Fatalf("Get(%s) error = %v", path, err)
		}
	}
	keys, err := redisClient.Keys(ctx, "redmine:issues/1.xml*").Result()
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != len(paths) {
		t.Fatalf("cached variants = %v, want %d", keys, len(paths))
	}

	if _, err := c.Put(ctx, "/issues/1.xml", []byte("<issue/>")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	keys, err = redisClient.Keys(ctx, "redmine:issues/1.xml*").Result()
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 0 {
		t.Errorf("variants survived the write: %v", keys)
	}
}

func TestPrincipal(t *testing.T) {
	anon := newTestClient(t, "https://redmine.example.com", nil)
	if anon.Principal() != "anonymous" {
		t.Errorf("Principal() = %q, want anonymous", anon.Principal())
	}

	a := newTestClient(t, "https://redmine.example.com", func(cfg *Config) { cfg.APIKey = "a" })
	b := newTestClient(t, "https://redmine.example.com", func(cfg *Config) { cfg.APIKey = "b" })
	again := newTestClient(t, "https://redmine.example.com", func(cfg *Config) { cfg.APIKey = "a" })

	if a.Principal() == b.Principal() {
		t.Error("different keys must map to different principals")
	}
	if a.Principal() != again.Principal() {
		t.Error("principal must be stable for the same key")
	}
	if a.Principal() == "a" {
		t.Error("principal must not expose the key")
	}
}
