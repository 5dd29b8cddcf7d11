// Package redis connects the ledger to Redis, which backs the idempotency
// store when REDIS_URL is set.
package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"evidenceledger/internal/platform/config"
)

const healthTimeout = time.Second

// Client embeds the go-redis client so stores can use it directly.
type Client struct {
	*redis.Client
	log *slog.Logger
}

// New dials Redis and pings it once. A nil client with no error means Redis
// is not configured and callers should stay on the in-memory store.
func New(ctx context.Context, cfg config.RedisConfig, log *slog.Logger) (*Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	opts, err := Options(cfg)
	if err != nil {
		return nil, err
	}
	rc := &Client{Client: redis.NewClient(opts), log: log}
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Client.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", opts.Addr, err)
	}
	log.InfoContext(ctx, "redis connected", "addr", opts.Addr, "db", opts.DB, "pool_size", opts.PoolSize)
	return rc, nil
}

// Options turns the URL plus pool overrides into go-redis options. Zero
// overrides keep whatever the URL or the driver default says.
func Options(cfg config.RedisConfig) (*redis.Options, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.MinIdleConns > 0 {
		opts.MinIdleConns = cfg.MinIdleConns
	}
	for dst, src := range map[*time.Duration]time.Duration{
		&opts.DialTimeout:  cfg.DialTimeout,
		&opts.ReadTimeout:  cfg.ReadTimeout,
		&opts.WriteTimeout: cfg.WriteTimeout,
	} {
		if src > 0 {
			*dst = src
		}
	}
	return opts, nil
}

// Health is registered as the "redis" readiness check.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()
	return c.Ping(ctx).Err()
}

// Close logs pool counters before releasing connections.
func (c *Client) Close() error {
	s := c.PoolStats()
	c.log.Info("redis closing", "hits", s.Hits, "misses", s.Misses, "timeouts", s.Timeouts, "total_conns", s.TotalConns)
	return c.Client.Close()
}
