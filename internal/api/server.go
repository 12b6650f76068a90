// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package api builds the HTTP surface of the auth service: the middleware
chain, the /api/v1 route table and the [http.Server] around them.

Middleware order, outermost first:

	RequestID → StructuredLogger → PanicRecovery → Timeout → CORS → RateLimit → Authenticate

CORS sits outside the rate limiter and the authenticator so that 401 and
429 responses still carry the headers a browser needs to read them.
*/
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/taibuivan/shopauth/internal/platform/config"
	"github.com/taibuivan/shopauth/internal/platform/constants"
	"github.com/taibuivan/shopauth/internal/platform/middleware"
	"github.com/taibuivan/shopauth/internal/users/auth"
	"github.com/taibuivan/shopauth/internal/users/mfa"
	"github.com/taibuivan/shopauth/internal/users/session"
)

// Server owns the router and the listening [http.Server].
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	log        *slog.Logger
}

// Handlers are the route groups mounted under /api/v1.
type Handlers struct {
	// Liveness answers 200 while the process runs.
	Liveness http.HandlerFunc

	// Readiness answers 200 only when every configured dependency responds.
	Readiness http.HandlerFunc

	Auth     *auth.Handler
	MFA      *mfa.Handler
	Sessions *session.Handler
}

/*
NewServer assembles the router.

Parameters:
  - context: stops the rate limiter janitor when cancelled
  - cfg: port, CORS suffix and rate-limit settings
  - log: base logger for the request logger and panic recovery
  - verifier: the access-token gate used by Authenticate
  - h: route groups
*/
func NewServer(context context.Context, cfg *config.Config, log *slog.Logger, verifier middleware.TokenVerifier, h Handlers) *Server {
	router := chi.NewRouter()

	router.Use(
		middleware.RequestID(),
		middleware.StructuredLogger(log),
		middleware.PanicRecovery(log),
		chimw.Timeout(constants.GlobalRequestTimeout),
		chimw.CleanPath,
		middleware.CORS(cfg),
		middleware.RateLimitWith(context, cfg.RateLimitRPS, cfg.RateLimitBurst),
		middleware.Authenticate(verifier),
	)

	// Probes are served at the root for orchestrators and under /api/v1 for clients.
	router.Get("/health", h.Liveness)
	router.Get("/ready", h.Readiness)

	router.Route("/api/v1", func(v1 chi.Router) {
		v1.Get("/health", h.Liveness)
		v1.Get("/ready", h.Readiness)

		v1.Mount("/auth", h.Auth.Routes())
		v1.Mount("/mfa", h.MFA.Routes())
		v1.Mount("/recovery-codes", h.MFA.RecoveryRoutes())
		v1.Mount("/me/sessions", h.Sessions.Routes())
		v1.Mount("/admin/users", h.Sessions.AdminRoutes())
	})

	return &Server{
		router: router,
		log:    log,
		httpServer: &http.Server{
			Addr:              ":" + cfg.ServerPort,
			Handler:           router,
			ReadTimeout:       constants.DefaultReadTimeout,
			WriteTimeout:      constants.DefaultWriteTimeout,
			IdleTimeout:       constants.DefaultIdleTimeout,
			ReadHeaderTimeout: constants.DefaultReadHeaderTimeout,
			ErrorLog:          slog.NewLogLogger(log.Handler(), slog.LevelWarn),
		},
	}
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe blocks until the server is shut down or fails to bind.
func (s *Server) ListenAndServe() error {
	s.log.Info("server_starting", slog.String("addr", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown stops accepting connections and waits up to timeout for in-flight requests.
func (s *Server) Shutdown(timeout time.Duration) error {
	context, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.httpServer.Shutdown(context)
}
