// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package session

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/taibuivan/shopauth/internal/platform/ctxutil"
	"github.com/taibuivan/shopauth/internal/platform/middleware"
	requestutil "github.com/taibuivan/shopauth/internal/platform/request"
	"github.com/taibuivan/shopauth/internal/platform/respond"
	"github.com/taibuivan/shopauth/internal/platform/sec"
)

// Handler implements the HTTP layer for device session management.
type Handler struct {
	registry *Registry
}

// NewHandler constructs a new session [Handler].
func NewHandler(registry *Registry) *Handler {
	return &Handler{registry: registry}
}

// Routes returns a [chi.Router] for /me/sessions. Every route requires authentication.
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()
	router.Use(middleware.RequireAuth)

	router.Get("/", handler.listSessions)
	router.Delete("/", handler.revokeOtherSessions)
	router.Delete("/{id}", handler.revokeSession)

	return router
}

// AdminRoutes returns a [chi.Router] for /admin/users, restricted to staff and above.
func (handler *Handler) AdminRoutes() chi.Router {
	router := chi.NewRouter()
	router.Use(middleware.RequireRole(sec.RoleStaff))

	router.Get("/{userID}/sessions", handler.listUserSessions)
	router.Delete("/{userID}/sessions", handler.signOutUser)

	return router
}

/*
GET /api/v1/me/sessions.

Description: Enumerates all devices currently signed into the user's account.

Response:
  - 200: []View: Active sessions, the requesting one flagged isCurrent
  - 401: ErrUnauthorized: Authentication required
*/
func (handler *Handler) listSessions(writer http.ResponseWriter, request *http.Request) {
	claims, err := requestutil.RequiredClaims(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	sessions, err := handler.registry.List(request.Context(), claims.UserID, claims.SessionID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, sessions)
}

/*
DELETE /api/v1/me/sessions/{id}.

Description: Forces a sign-out on a specific device. Its tokens stop working immediately.

Response:
  - 204: No Content: Session terminated successfully
  - 401: ErrUnauthorized: Authentication required
  - 404: ErrNotFound: Unknown session or owned by someone else
*/
func (handler *Handler) revokeSession(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.registry.Revoke(request.Context(), userID, requestutil.Param(request, "id")); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

/*
DELETE /api/v1/me/sessions.

Description: Forces a sign-out on all devices except the one making the request.
With ?all=true the current device is signed out as well.

Response:
  - 204: No Content: Sessions terminated
  - 401: ErrUnauthorized: Authentication required
*/
func (handler *Handler) revokeOtherSessions(writer http.ResponseWriter, request *http.Request) {
	claims, err := requestutil.RequiredClaims(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	if request.URL.Query().Get("all") == "true" {
		err = handler.registry.RevokeAll(request.Context(), claims.UserID)
	} else {
		err = handler.registry.RevokeOthers(request.Context(), claims.UserID, claims.SessionID)
	}
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

// # Support Staff

// GET /api/v1/admin/users/{userID}/sessions lists another user's devices. 403 below staff.
func (handler *Handler) listUserSessions(writer http.ResponseWriter, request *http.Request) {
	sessions, err := handler.registry.List(request.Context(), requestutil.Param(request, "userID"), "")
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, sessions)
}

/*
DELETE /api/v1/admin/users/{userID}/sessions.

Description: Signs a user out of every device, as when support suspects the
account is compromised. Refresh and access tokens of every session stop working.

Response:
  - 204: No Content
  - 403: Insufficient permissions
*/
func (handler *Handler) signOutUser(writer http.ResponseWriter, request *http.Request) {
	userID := requestutil.Param(request, "userID")

	if err := handler.registry.RevokeAll(request.Context(), userID); err != nil {
		respond.Error(writer, request, err)
		return
	}

	ctxutil.GetLogger(request.Context()).WarnContext(request.Context(), "user_signed_out_by_staff",
		slog.String("target_user_id", userID),
	)
	respond.NoContent(writer)
}
