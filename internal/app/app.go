// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package app assembles the service graph from configuration and infrastructure.

cmd/api supplies Postgres-backed repositories and a real Redis client; the
end-to-end tests supply memory repositories and miniredis. Everything between
those edges is built here, once, the same way for both.
*/
package app

import (
	"context"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/taibuivan/shopauth/internal/api"
	"github.com/taibuivan/shopauth/internal/notify"
	"github.com/taibuivan/shopauth/internal/platform/config"
	"github.com/taibuivan/shopauth/internal/platform/constants"
	"github.com/taibuivan/shopauth/internal/platform/sec"
	"github.com/taibuivan/shopauth/internal/users/account"
	"github.com/taibuivan/shopauth/internal/users/auth"
	"github.com/taibuivan/shopauth/internal/users/blacklist"
	"github.com/taibuivan/shopauth/internal/users/mfa"
	"github.com/taibuivan/shopauth/internal/users/otp"
	"github.com/taibuivan/shopauth/internal/users/password"
	"github.com/taibuivan/shopauth/internal/users/recovery"
	"github.com/taibuivan/shopauth/internal/users/session"
	"github.com/taibuivan/shopauth/internal/users/signin"
	"github.com/taibuivan/shopauth/internal/users/token"
	"github.com/taibuivan/shopauth/internal/users/totp"
)

// # Inputs

// Infrastructure is everything the graph needs from the outside world.
type Infrastructure struct {
	Redis         redis.UniversalClient
	Users         account.UserRepository
	Sessions      session.Repository
	RecoveryCodes recovery.Repository
	Signer        *sec.TokenService
	Sender        notify.Sender

	// Health probes for /ready. Nil probes are skipped.
	CheckDatabase func(context.Context) error
	CheckCache    func(context.Context) error
}

// # Graph

// App is the assembled service.
type App struct {
	Server    *api.Server
	Tokens    *token.Service
	Sessions  *session.Registry
	Blacklist blacklist.Store

	cfg    *config.Config
	logger *slog.Logger
}

// NewBlacklist picks the blacklist backend named by the configuration.
func NewBlacklist(cfg *config.Config, client redis.UniversalClient) blacklist.Store {
	if cfg.BlacklistDriver == config.DriverRedis {
		return blacklist.NewRedis(client)
	}
	return blacklist.NewMemory(cfg.BlacklistCapacity)
}

// NewGenerator returns the email-code generator. A fixed code is only honoured
// outside production; [config.Config.Validate] rejects it there as well.
func NewGenerator(cfg *config.Config) otp.Generator {
	if cfg.FixedCode != "" && !cfg.IsProduction() {
		return otp.FixedGenerator{Code: cfg.FixedCode}
	}
	return otp.CryptoGenerator{}
}

/*
New wires every domain service and the HTTP server.

Parameters:
  - context: root context; cancelling it stops the rate limiter janitor
  - cfg: validated configuration
  - logger: base structured logger
  - infra: storage and transport edges

Returns:
  - *App: ready to serve; call [App.RunBackground] for maintenance loops
*/
func New(context context.Context, cfg *config.Config, logger *slog.Logger, infra Infrastructure) *App {

	// ── 1. Tokens & Revocation ────────────────────────────────────────
	blacklistStore := NewBlacklist(cfg, infra.Redis)
	tokens := token.NewService(
		infra.Signer,
		token.NewRedisFamilyStore(infra.Redis),
		blacklistStore,
		infra.Users,
		token.WithTTL(cfg.AccessTokenTTL, cfg.RefreshTokenTTL),
	)
	registry := session.NewRegistry(infra.Sessions, tokens)

	// ── 2. Factors ────────────────────────────────────────────────────
	states := signin.NewRedisStateStore(infra.Redis, cfg.StateTokenTTL)
	codes := otp.NewService(
		otp.NewRedisStore(infra.Redis),
		NewGenerator(cfg),
		otp.WithTTL(cfg.CodeTTL),
		otp.WithCooldown(cfg.CodeCooldown),
	)
	totpManager := totp.NewManager(infra.Users, infra.Redis, states, totp.WithIssuer(cfg.TOTPIssuer))
	recoveryManager := recovery.NewManager(infra.RecoveryCodes, infra.Redis)
	mailer := notify.NewMailer(infra.Sender, constants.AppDisplayName)

	// ── 3. Sign-In ────────────────────────────────────────────────────
	machine := signin.NewMachine(signin.Dependencies{
		Users:    infra.Users,
		Lockout:  signin.NewLockout(infra.Redis, cfg.LockoutThreshold, cfg.LockoutWindow),
		States:   states,
		Tokens:   tokens,
		Sessions: registry,
		TOTP:     totpManager,
		Codes:    codes,
		Recovery: recoveryManager,
		Mailer:   mailer,
	})

	// ── 4. Use Cases ──────────────────────────────────────────────────
	policy := password.NewPolicy(cfg.PasswordMinLength)
	authService := auth.NewService(infra.Users, policy, codes, mailer, tokens, registry)
	mfaService := mfa.NewService(infra.Users, totpManager, codes, mailer, recoveryManager)

	// ── 5. HTTP ───────────────────────────────────────────────────────
	liveness, readiness := api.NewHealthHandlers(api.HealthDependencies{
		CheckDatabase: infra.CheckDatabase,
		CheckCache:    infra.CheckCache,
	}, logger)

	server := api.NewServer(context, cfg, logger, tokens, api.Handlers{
		Liveness:  liveness,
		Readiness: readiness,
		Auth:      auth.NewHandler(authService, machine, tokens, registry),
		MFA:       mfa.NewHandler(mfaService, machine),
		Sessions:  session.NewHandler(registry),
	})

	return &App{
		Server:    server,
		Tokens:    tokens,
		Sessions:  registry,
		Blacklist: blacklistStore,
		cfg:       cfg,
		logger:    logger,
	}
}

// RunBackground starts the blacklist sweeper and the session pruner. Both stop
// when context is cancelled; the returned function waits for them to exit.
func (app *App) RunBackground(context context.Context) (wait func()) {
	var group sync.WaitGroup

	sweeper := blacklist.NewSweeper(app.Blacklist, app.cfg.BlacklistSweepInterval, app.logger)
	group.Add(2)
	go func() {
		defer group.Done()
		sweeper.Run(context)
	}()
	go func() {
		defer group.Done()
		app.Sessions.RunPruner(context, app.cfg.SessionPruneInterval, app.logger)
	}()

	app.logger.Info("background_workers_started",
		slog.Duration("blacklist_sweep_interval", app.cfg.BlacklistSweepInterval),
		slog.Duration("session_prune_interval", app.cfg.SessionPruneInterval),
	)
	return group.Wait
}
