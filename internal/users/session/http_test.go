// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package session_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/shopauth/internal/platform/ctxutil"
	"github.com/taibuivan/shopauth/internal/platform/sec"
	"github.com/taibuivan/shopauth/internal/users/session"
)

// asUser injects claims the way middleware.Authenticate does.
func asUser(claims *sec.AuthClaims) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			if claims != nil {
				request = request.WithContext(ctxutil.WithAuthUser(request.Context(), claims))
			}
			next.ServeHTTP(writer, request)
		})
	}
}

func newRouter(handler *session.Handler, claims *sec.AuthClaims) http.Handler {
	router := chi.NewRouter()
	router.Use(asUser(claims))
	router.Mount("/me/sessions", handler.Routes())
	router.Mount("/admin/users", handler.AdminRoutes())
	return router
}

func serve(router http.Handler, method, path string) *httptest.ResponseRecorder {
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(method, path, nil))
	return recorder
}

func TestHandler_OwnSessions(t *testing.T) {
	now := time.Now()
	registry, revoker := newRegistry(&now)
	record(t, registry, "s1", "u1", "f1", now.Add(time.Hour))
	record(t, registry, "s2", "u1", "f2", now.Add(time.Hour))
	record(t, registry, "s3", "u2", "f3", now.Add(time.Hour))

	claims := &sec.AuthClaims{UserID: "u1", SessionID: "s1", Role: string(sec.RoleCustomer)}
	router := newRouter(session.NewHandler(registry), claims)

	recorder := serve(router, http.MethodGet, "/me/sessions")
	require.Equal(t, http.StatusOK, recorder.Code)

	var body struct {
		Data []session.View `json:"data"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	require.Len(t, body.Data, 2)

	// Someone else's session looks like a missing one.
	assert.Equal(t, http.StatusNotFound, serve(router, http.MethodDelete, "/me/sessions/s3").Code)

	assert.Equal(t, http.StatusNoContent, serve(router, http.MethodDelete, "/me/sessions").Code)
	assert.Equal(t, []string{"f2"}, revoker.families)
}

func TestHandler_RequiresAuthentication(t *testing.T) {
	now := time.Now()
	registry, _ := newRegistry(&now)
	router := newRouter(session.NewHandler(registry), nil)

	assert.Equal(t, http.StatusUnauthorized, serve(router, http.MethodGet, "/me/sessions").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(router, http.MethodDelete, "/admin/users/u1/sessions").Code)
}

func TestHandler_AdminSignOut(t *testing.T) {
	now := time.Now()
	registry, revoker := newRegistry(&now)
	record(t, registry, "s1", "u1", "f1", now.Add(time.Hour))
	record(t, registry, "s2", "u1", "f2", now.Add(time.Hour))

	customer := newRouter(session.NewHandler(registry), &sec.AuthClaims{UserID: "u2", Role: string(sec.RoleCustomer)})
	assert.Equal(t, http.StatusForbidden, serve(customer, http.MethodDelete, "/admin/users/u1/sessions").Code)
	assert.Empty(t, revoker.families)

	staff := newRouter(session.NewHandler(registry), &sec.AuthClaims{UserID: "u9", Role: string(sec.RoleStaff)})
	assert.Equal(t, http.StatusOK, serve(staff, http.MethodGet, "/admin/users/u1/sessions").Code)
	assert.Equal(t, http.StatusNoContent, serve(staff, http.MethodDelete, "/admin/users/u1/sessions").Code)
	assert.ElementsMatch(t, []string{"f1", "f2"}, revoker.families)

	views, err := registry.List(t.Context(), "u1", "")
	require.NoError(t, err)
	assert.Empty(t, views)
}
