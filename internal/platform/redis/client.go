// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package redis opens the Redis client that holds every short-lived auth
record: email codes and their cooldowns, sign-in state tokens, lockout
counters, pending TOTP secrets, refresh token families and, optionally, the
token blacklist.

Stores take a [redis.UniversalClient] so tests can hand them a
miniredis-backed client.
*/
package redis

import (
	stdctx "context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultPoolSize = 10
	dialTimeout     = 3 * time.Second
	ioTimeout       = 2 * time.Second
	pingTimeout     = 2 * time.Second
)

// Option tunes [NewClient].
type Option func(*redis.Options)

// WithPoolSize caps concurrent connections. Values below 1 keep the default.
func WithPoolSize(size int) Option {
	return func(options *redis.Options) {
		if size > 0 {
			options.PoolSize = size
		}
	}
}

/*
NewClient parses redisURL, applies the auth workload's timeouts and pings
the server once.

Parameters:
  - context: bounds the initial ping
  - redisURL: redis:// or rediss:// URL, database index in the path
  - logger: receives the redis_client_connected event
*/
func NewClient(context stdctx.Context, redisURL string, logger *slog.Logger, opts ...Option) (*redis.Client, error) {
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis: invalid URL: %w", err)
	}

	options.PoolSize = defaultPoolSize
	options.DialTimeout = dialTimeout
	options.ReadTimeout = ioTimeout
	options.WriteTimeout = ioTimeout
	for _, opt := range opts {
		opt(options)
	}
	options.MinIdleConns = max(1, options.PoolSize/5)

	client := redis.NewClient(options)

	if err := Ping(context, client); err != nil {
		_ = client.Close()
		return nil, err
	}

	logger.Info("redis_client_connected",
		slog.String("addr", options.Addr),
		slog.Int("db", options.DB),
		slog.Int("pool_size", options.PoolSize),
	)

	return client, nil
}

// Ping reports whether the server answers within two seconds.
func Ping(context stdctx.Context, client redis.UniversalClient) error {
	pingCtx, cancel := stdctx.WithTimeout(context, pingTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("redis: ping failed: %w", err)
	}
	return nil
}
