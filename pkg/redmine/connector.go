// Package redmine is the entry point for talking to a Redmine server: CRUD
// for projects, issues and users, and paginators over their collections.
package redmine

import (
	"context"
	"errors"
	"time"

	"github.com/Sternrassler/redmine-connector/pkg/apierr"
	"github.com/Sternrassler/redmine-connector/pkg/client"
	"github.com/Sternrassler/redmine-connector/pkg/codec"
	"github.com/Sternrassler/redmine-connector/pkg/config"
	"github.com/Sternrassler/redmine-connector/pkg/logging"
	"github.com/Sternrassler/redmine-connector/pkg/pagination"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Gateway performs one HTTP exchange with the server. *client.Client
// implements it.
type Gateway interface {
	Get(ctx context.Context, path string) ([]byte, error)
	Post(ctx context.Context, path string, body []byte) ([]byte, error)
	Put(ctx context.Context, path string, body []byte) ([]byte, error)
	Delete(ctx context.Context, path string) ([]byte, error)
}

// Connector exposes the Redmine REST API as typed operations.
type Connector struct {
	gw       Gateway
	pageSize int
	logger   zerolog.Logger
	closers  []func() error
}

// Option configures a Connector.
type Option func(*Connector)

// WithPageSize sets the page size used when ListOptions leaves it at zero.
func WithPageSize(size int) Option {
	return func(c *Connector) { c.pageSize = size }
}

// WithLogger replaces the component logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Connector) { c.logger = logger }
}

// New returns a connector over gw.
func New(gw Gateway, opts ...Option) *Connector {
	c := &Connector{
		gw:       gw,
		pageSize: pagination.DefaultPageSize,
		logger:   logging.NewLogger("connector"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewFromConfig builds the HTTP gateway, and the Redis client when an
// address is configured, from cfg. An unreachable Redis is logged and the
// connector runs without cache.
func NewFromConfig(cfg *config.Config) (*Connector, error) {
	if cfg == nil {
		return nil, apierr.New(apierr.KindIllegalArgument, "config must not be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := logging.NewLogger("connector")

	clientCfg := client.DefaultConfig(cfg.Server)
	clientCfg.APIKey = cfg.APIKey
	if cfg.UserAgent != "" {
		clientCfg.UserAgent = cfg.UserAgent
	}
	if cfg.Timeout > 0 {
		clientCfg.Timeout = cfg.Timeout
	}

	var closers []func() error
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := rdb.Ping(ctx).Err()
		cancel()
		if err != nil {
			logger.Warn().Err(err).Str("redis_addr", cfg.RedisAddr).Msg("Redis unreachable, running without cache")
			_ = rdb.Close()
		} else {
			clientCfg.Redis = rdb
			closers = append(closers, rdb.Close)
		}
	}

	gw, err := client.New(clientCfg)
	if err != nil {
		for _, closeFn := range closers {
			_ = closeFn()
		}
		return nil, err
	}

	pageSize := cfg.PageSize
	if pageSize == 0 {
		pageSize = pagination.DefaultPageSize
	}

	c := New(gw, WithPageSize(pageSize), WithLogger(logger))
	c.closers = append([]func() error{gw.Close}, closers...)

	logger.Info().
		Str("server", gw.BaseURL()).
		Bool("cache", clientCfg.Redis != nil).
		Int("page_size", pageSize).
		Msg("Connector created")

	return c, nil
}

// Close releases the gateway and Redis connections created by NewFromConfig.
func (c *Connector) Close() error {
	var errs []error
	for _, closeFn := range c.closers {
		if err := closeFn(); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

// PageSize returns the default page size for list operations.
func (c *Connector) PageSize() int { return c.pageSize }

// ValidationErrors returns the messages of a 422 response carried by err, or
// nil when err is not an unprocessable entity error.
func ValidationErrors(err error) []string {
	if kind, ok := apierr.KindOf(err); !ok || kind != apierr.KindUnprocessableEntity {
		return nil
	}
	messages, decodeErr := codec.DecodeErrors(apierr.ResponseBody(err))
	if decodeErr != nil {
		return nil
	}
	return messages
}

// get fetches one record into v.
func (c *Connector) get(ctx context.Context, path string, v any) error {
	c.logger.Trace().Str("path", path).Msg("get")
	body, err := c.gw.Get(ctx, path)
	if err != nil {
		return err
	}
	return codec.Decode(body, v)
}

// create posts body and decodes the stored record into v.
func (c *Connector) create(ctx context.Context, path string, body []byte, v any) error {
	c.logger.Trace().Str("path", path).Int("body_bytes", len(body)).Msg("create")
	resp, err := c.gw.Post(ctx, path, body)
	if err != nil {
		return err
	}
	return codec.Decode(resp, v)
}

func (c *Connector) update(ctx context.Context, path string, body []byte) error {
	c.logger.Trace().Str("path", path).Int("body_bytes", len(body)).Msg("update")
	_, err := c.gw.Put(ctx, path, body)
	return err
}

func (c *Connector) delete(ctx context.Context, path string) error {
	c.logger.Trace().Str("path", path).Msg("delete")
	_, err := c.gw.Delete(ctx, path)
	return err
}
