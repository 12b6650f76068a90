// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package postgres opens the PostgreSQL pool behind the credential store, the
// session registry and the recovery-code repository. Repositories receive the
// [pgxpool.Pool] built here and never open connections themselves.
package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taibuivan/shopauth/internal/platform/constants"
)

const (
	defaultMaxConns   = 25
	maxConnLifetime   = 60 * time.Minute
	maxConnIdleTime   = 10 * time.Minute
	healthCheckPeriod = time.Minute
	connectTimeout    = 5 * time.Second
	pingTimeout       = 2 * time.Second
)

type poolSettings struct {
	maxConns         int32
	statementTimeout time.Duration
}

// PoolOption tunes [NewPool].
type PoolOption func(*poolSettings)

// WithMaxConns caps the pool. Values below 1 keep the default.
func WithMaxConns(max int) PoolOption {
	return func(settings *poolSettings) {
		if max > 0 {
			settings.maxConns = int32(max)
		}
	}
}

// WithStatementTimeout overrides the per-connection statement_timeout.
func WithStatementTimeout(timeout time.Duration) PoolOption {
	return func(settings *poolSettings) { settings.statementTimeout = timeout }
}

/*
NewPool opens a pool and pings it once.

Every physical connection is pinned to UTC and gets a statement_timeout no
longer than a request may live, so a stuck query cannot outlast its caller.

Parameters:
  - ctx: bounds the initial connection attempt
  - dsn: postgres:// URL or libpq keyword string
  - logger: receives the pool_connected event
*/
func NewPool(ctx context.Context, dsn string, logger *slog.Logger, options ...PoolOption) (*pgxpool.Pool, error) {
	settings := poolSettings{maxConns: defaultMaxConns, statementTimeout: constants.GlobalRequestTimeout}
	for _, option := range options {
		option(&settings)
	}

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: invalid DSN: %w", err)
	}

	poolConfig.MaxConns = settings.maxConns
	poolConfig.MinConns = max(1, settings.maxConns/5)
	poolConfig.MaxConnLifetime = maxConnLifetime
	poolConfig.MaxConnIdleTime = maxConnIdleTime
	poolConfig.HealthCheckPeriod = healthCheckPeriod
	poolConfig.ConnConfig.ConnectTimeout = connectTimeout

	statementTimeout := fmt.Sprintf("SET statement_timeout = %d", settings.statementTimeout.Milliseconds())
	poolConfig.AfterConnect = func(ctx context.Context, connection *pgx.Conn) error {
		if _, err := connection.Exec(ctx, statementTimeout); err != nil {
			return err
		}
		_, err := connection.Exec(ctx, "SET TIME ZONE 'UTC'")
		return err
	}

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to create pool: %w", err)
	}

	if err := Ping(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	logger.Info("postgres_pool_connected",
		slog.String("host", poolConfig.ConnConfig.Host),
		slog.String("database", poolConfig.ConnConfig.Database),
		slog.Int("max_conns", int(poolConfig.MaxConns)),
	)

	return pool, nil
}

// Ping reports whether the pool can reach the server within two seconds.
func Ping(ctx context.Context, pool *pgxpool.Pool) error {
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		return fmt.Errorf("postgres: ping failed: %w", err)
	}
	return nil
}
