// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/taibuivan/shopauth/internal/platform/middleware"
	"github.com/taibuivan/shopauth/internal/platform/sec"
	"github.com/taibuivan/shopauth/internal/users/account"
	"github.com/taibuivan/shopauth/internal/users/auth"
	"github.com/taibuivan/shopauth/internal/users/blacklist"
	"github.com/taibuivan/shopauth/internal/users/otp"
	"github.com/taibuivan/shopauth/internal/users/password"
	"github.com/taibuivan/shopauth/internal/users/recovery"
	"github.com/taibuivan/shopauth/internal/users/session"
	"github.com/taibuivan/shopauth/internal/users/signin"
	"github.com/taibuivan/shopauth/internal/users/token"
	"github.com/taibuivan/shopauth/internal/users/totp"
)

const (
	strongPassword = "Gx7#mQ2v!Lp9zR"
	otherPassword  = "Tr4$kWn8@Yb3eH"
	fixedCode      = "123456"
)

type sentCode struct {
	to     string
	issued otp.Issued
}

type outbox struct {
	mu      sync.Mutex
	codes   []sentCode
	notices []string
}

func (box *outbox) SendCode(_ context.Context, user *account.User, issued otp.Issued) error {
	box.mu.Lock()
	defer box.mu.Unlock()
	box.codes = append(box.codes, sentCode{to: user.Email, issued: issued})
	return nil
}

func (box *outbox) SendPasswordChanged(_ context.Context, user *account.User) error {
	box.mu.Lock()
	defer box.mu.Unlock()
	box.notices = append(box.notices, user.Email)
	return nil
}

func (box *outbox) last() sentCode {
	box.mu.Lock()
	defer box.mu.Unlock()
	if len(box.codes) == 0 {
		return sentCode{}
	}
	return box.codes[len(box.codes)-1]
}

func (box *outbox) codeCount() int {
	box.mu.Lock()
	defer box.mu.Unlock()
	return len(box.codes)
}

var (
	keyOnce sync.Once
	testKey *rsa.PrivateKey
)

func signingKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	keyOnce.Do(func() {
		var err error
		testKey, err = rsa.GenerateKey(rand.Reader, 2048)
		require.NoError(t, err)
	})
	return testKey
}

type fixture struct {
	service  *auth.Service
	machine  *signin.Machine
	tokens   *token.Service
	registry *session.Registry
	users    *account.MemoryUserRepository
	outbox   *outbox
	router   http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	users := account.NewMemoryUserRepository()
	key := signingKey(t)
	signer := sec.NewTokenServiceFromKey(key, &key.PublicKey, "auth.test", "shop-test")
	tokens := token.NewService(signer, token.NewRedisFamilyStore(client), blacklist.NewMemory(0), users)
	registry := session.NewRegistry(session.NewMemoryRepository(), tokens)
	codes := otp.NewService(otp.NewRedisStore(client), otp.FixedGenerator{Code: fixedCode})
	states := signin.NewRedisStateStore(client, signin.DefaultStateTTL)
	box := &outbox{}

	machine := signin.NewMachine(signin.Dependencies{
		Users:    users,
		Lockout:  signin.NewLockout(client, signin.DefaultLockoutThreshold, signin.DefaultLockoutWindow),
		States:   states,
		Tokens:   tokens,
		Sessions: registry,
		TOTP:     totp.NewManager(users, client, states),
		Codes:    codes,
		Recovery: recovery.NewManager(recovery.NewMemoryRepository(), client, recovery.WithHashCost(bcrypt.MinCost)),
		Mailer:   box,
	})

	service := auth.NewService(users, password.DefaultPolicy(), codes, box, tokens, registry)

	router := chi.NewRouter()
	router.Use(middleware.Authenticate(tokens))
	router.Mount("/auth", auth.NewHandler(service, machine, tokens, registry).Routes())

	return &fixture{
		service:  service,
		machine:  machine,
		tokens:   tokens,
		registry: registry,
		users:    users,
		outbox:   box,
		router:   router,
	}
}

func (f *fixture) register(t *testing.T, username, email string) *account.User {
	t.Helper()
	user, err := f.service.Register(context.Background(), auth.RegisterInput{
		Username: username,
		Email:    email,
		Password: strongPassword,
	})
	require.NoError(t, err)
	return user
}

func (f *fixture) issue(t *testing.T, user *account.User) token.Pair {
	t.Helper()
	stored, err := f.users.FindByID(context.Background(), user.ID)
	require.NoError(t, err)
	pair, err := f.tokens.Issue(context.Background(), token.Subject{
		UserID:       stored.ID,
		Username:     stored.Username,
		Role:         string(stored.Role),
		TokenVersion: stored.TokenVersion,
	}, "session-"+stored.ID)
	require.NoError(t, err)
	return pair
}

func (f *fixture) serve(request *http.Request) *httptest.ResponseRecorder {
	recorder := httptest.NewRecorder()
	f.router.ServeHTTP(recorder, request)
	return recorder
}
