// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Command api is the entry point for the shop authentication server.
//
// # Startup Sequence
//
//  1. Initialize structured logger.
//  2. Load configuration from environment variables.
//  3. Open the credential store (PostgreSQL with migrations, or memory).
//  4. Connect to Redis.
//  5. Load the RS256 signing keys.
//  6. Assemble the service graph and start background workers.
//  7. Start HTTP server with graceful shutdown.
//
// No business logic lives here. All wiring is explicit constructor injection.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/taibuivan/shopauth/internal/app"
	"github.com/taibuivan/shopauth/internal/notify"
	"github.com/taibuivan/shopauth/internal/platform/config"
	"github.com/taibuivan/shopauth/internal/platform/constants"
	"github.com/taibuivan/shopauth/internal/platform/migration"
	pgstore "github.com/taibuivan/shopauth/internal/platform/postgres"
	redisstore "github.com/taibuivan/shopauth/internal/platform/redis"
	"github.com/taibuivan/shopauth/internal/platform/sec"
	"github.com/taibuivan/shopauth/internal/users/account"
	"github.com/taibuivan/shopauth/internal/users/recovery"
	"github.com/taibuivan/shopauth/internal/users/session"
)

func main() {
	// ── 1. Logger ──────────────────────────────────────────────────────────
	// Initialize first so that subsequent startup errors are structured JSON.
	log := newLogger(slog.LevelInfo)
	slog.SetDefault(log)

	log.Info("service_initializing")

	// ── 2. Configuration ──────────────────────────────────────────────────
	cfg, err := config.Load()
	must(log, err, "load configuration")

	if cfg.Debug {
		log = newLogger(slog.LevelDebug)
		slog.SetDefault(log)
		log.Debug("debug_logging_enabled")
	}

	log.Info("configuration_loaded",
		slog.String("environment", cfg.Environment),
		slog.String("port", cfg.ServerPort),
		slog.String("storage_driver", cfg.StorageDriver),
		slog.String("blacklist_driver", cfg.BlacklistDriver),
	)

	// Root context for startup. Use a 30s deadline so misconfiguration is
	// caught quickly rather than hanging indefinitely.
	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	infra := app.Infrastructure{}

	// ── 3. Credential Store ───────────────────────────────────────────────
	switch cfg.StorageDriver {
	case config.DriverPostgres:
		pool, err := pgstore.NewPool(startupCtx, cfg.DatabaseURL, log, pgstore.WithMaxConns(cfg.DBMaxConns))
		must(log, err, "connect to postgres")
		defer func() {
			log.Info("closing postgres pool")
			pool.Close()
		}()

		must(log, migration.RunUp(cfg.DatabaseURL, cfg.MigrationPath, log), "run migrations")

		infra.Users = account.NewPostgresUserRepository(pool)
		infra.Sessions = session.NewPostgresRepository(pool)
		infra.RecoveryCodes = recovery.NewPostgresRepository(pool)
		infra.CheckDatabase = func(ctx context.Context) error { return pgstore.Ping(ctx, pool) }

	default:
		log.Warn("memory_storage_enabled", slog.String("reason", "state is lost on restart"))
		infra.Users = account.NewMemoryUserRepository()
		infra.Sessions = session.NewMemoryRepository()
		infra.RecoveryCodes = recovery.NewMemoryRepository()
	}

	// ── 4. Redis ──────────────────────────────────────────────────────────
	rdb, err := redisstore.NewClient(startupCtx, cfg.RedisURL, log, redisstore.WithPoolSize(cfg.RedisPoolSize))
	must(log, err, "connect to redis")
	defer func() {
		log.Info("closing redis client")
		if cerr := rdb.Close(); cerr != nil {
			log.Error("redis close error", slog.Any("error", cerr))
		}
	}()
	infra.Redis = rdb
	infra.CheckCache = func(ctx context.Context) error { return redisstore.Ping(ctx, rdb) }

	// ── 5. Signing Keys & Mail ────────────────────────────────────────────
	infra.Signer, err = sec.NewTokenService(cfg.JWTPrivKeyPath, cfg.JWTPubKeyPath, cfg.JWTIssuer, cfg.JWTAudience)
	must(log, err, "initialize jwt service")

	if cfg.SMTPHost != "" {
		infra.Sender = notify.NewSMTPSender(notify.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		})
	} else {
		log.Warn("smtp_disabled", slog.String("reason", "SMTP_HOST is empty, emails are logged"))
		infra.Sender = notify.NewLogSender()
	}

	// ── 6. Service Graph ──────────────────────────────────────────────────
	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	service := app.New(rootCtx, cfg, log, infra)
	waitBackground := service.RunBackground(rootCtx)

	// ── 7. Graceful Shutdown ──────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	serverErr := make(chan error, 1)
	go func() {
		if err := service.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Block until OS signal or server error.
	select {
	case sig := <-quit:
		log.Info("shutdown_signal_received", slog.String("signal", sig.String()))
	case err := <-serverErr:
		log.Error("server_startup_error", slog.Any("error", err))
	}

	// Give in-flight requests enough time to complete.
	shutdownTimeout := constants.ShutdownTimeout
	log.Info("shutting_down_server", slog.Duration("timeout", shutdownTimeout))

	shutdownErr := service.Server.Shutdown(shutdownTimeout)

	rootCancel()
	waitBackground()

	if shutdownErr != nil {
		log.Error("shutdown_error", slog.Any("error", shutdownErr))
		os.Exit(1)
	}

	log.Info("server_stopped_cleanly")
}

func newLogger(level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	return slog.New(handler).With(slog.String("app", "shopauth"))
}

// must logs a structured fatal error and terminates the process if err is non-nil.
//
// It is limited to startup wiring. After startup, all errors are returned
// and handled explicitly.
func must(log *slog.Logger, err error, step string) {
	if err != nil {
		log.Error("startup_failure",
			slog.String("step", step),
			slog.Any("error", err),
		)
		os.Exit(1)
	}
}
