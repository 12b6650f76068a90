// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package token_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/shopauth/internal/platform/apperr"
	"github.com/taibuivan/shopauth/internal/platform/dberr"
	"github.com/taibuivan/shopauth/internal/platform/sec"
	"github.com/taibuivan/shopauth/internal/users/blacklist"
	"github.com/taibuivan/shopauth/internal/users/token"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (clock *fakeClock) Now() time.Time {
	clock.mu.Lock()
	defer clock.mu.Unlock()
	return clock.now
}

func (clock *fakeClock) Advance(d time.Duration) {
	clock.mu.Lock()
	defer clock.mu.Unlock()
	clock.now = clock.now.Add(d)
}

type versions struct {
	mu      sync.Mutex
	current map[string]int
}

func (source *versions) TokenVersion(_ context.Context, userID string) (int, error) {
	source.mu.Lock()
	defer source.mu.Unlock()
	version, ok := source.current[userID]
	if !ok {
		return 0, dberr.ErrNotFound
	}
	return version, nil
}

func (source *versions) bump(userID string) {
	source.mu.Lock()
	defer source.mu.Unlock()
	source.current[userID]++
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
	service   *token.Service
	clock     *fakeClock
	versions  *versions
	blacklist *blacklist.Memory
	subject   token.Subject
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	key := signingKey(t)
	signer := sec.NewTokenServiceFromKey(key, &key.PublicKey, "auth.test", "shop-test", sec.WithTimeFunc(clock.Now))
	list := blacklist.NewMemory(0, blacklist.WithClock(clock.Now))
	source := &versions{current: map[string]int{"user-1": 0}}

	service := token.NewService(signer, token.NewRedisFamilyStore(client), list, source,
		token.WithClock(clock.Now),
		token.WithTTL(15*time.Minute, 24*time.Hour),
	)

	return &fixture{
		service:   service,
		clock:     clock,
		versions:  source,
		blacklist: list,
		subject:   token.Subject{UserID: "user-1", Username: "alice", Role: string(sec.RoleCustomer)},
	}
}

func TestIssue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pair, err := f.service.Issue(ctx, f.subject, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "Bearer", pair.TokenType)
	assert.Equal(t, 900, pair.ExpiresIn)
	assert.Equal(t, f.clock.Now().Add(15*time.Minute), pair.ExpiresAt)
	assert.Equal(t, 0, pair.Generation)
	assert.NotEmpty(t, pair.FamilyID)

	claims, err := f.service.VerifyAccessToken(ctx, pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, pair.FamilyID, claims.FamilyID)
	assert.Equal(t, "sess-1", claims.SessionID)
	assert.Equal(t, 0, claims.Generation)
}

func TestValidate_WrongType(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pair, err := f.service.Issue(ctx, f.subject, "sess-1")
	require.NoError(t, err)

	_, err = f.service.VerifyAccessToken(ctx, pair.RefreshToken)
	assert.Equal(t, token.KindInvalidClaims, token.KindOf(err))

	_, err = f.service.Refresh(ctx, pair.AccessToken)
	assert.Equal(t, token.KindInvalidClaims, token.KindOf(err))
}

func TestValidate_Expired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pair, err := f.service.Issue(ctx, f.subject, "sess-1")
	require.NoError(t, err)

	f.clock.Advance(16 * time.Minute)
	_, err = f.service.VerifyAccessToken(ctx, pair.AccessToken)
	assert.Equal(t, token.KindExpired, token.KindOf(err))
}

func TestValidate_Garbage(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.VerifyAccessToken(context.Background(), "definitely.not.ajwt")
	assert.Equal(t, token.KindInvalidSignature, token.KindOf(err))
}

func TestRefresh_Rotates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.service.Issue(ctx, f.subject, "sess-1")
	require.NoError(t, err)

	f.clock.Advance(time.Minute)
	second, err := f.service.Refresh(ctx, first.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, first.FamilyID, second.FamilyID)
	assert.Equal(t, 1, second.Generation)

	claims, err := f.service.VerifyAccessToken(ctx, second.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, 1, claims.Generation)

	// The access token minted with the rotated refresh token is retired too.
	_, err = f.service.VerifyAccessToken(ctx, first.AccessToken)
	assert.Equal(t, token.KindBlacklisted, token.KindOf(err))

	third, err := f.service.Refresh(ctx, second.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, 2, third.Generation)
}

func TestRefresh_ReplayRevokesFamily(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.service.Issue(ctx, f.subject, "sess-1")
	require.NoError(t, err)

	second, err := f.service.Refresh(ctx, first.RefreshToken)
	require.NoError(t, err)

	_, err = f.service.Refresh(ctx, first.RefreshToken)
	assert.Equal(t, token.KindReplay, token.KindOf(err))

	// The legitimate holder's descendants are dead as well.
	_, err = f.service.VerifyAccessToken(ctx, second.AccessToken)
	assert.Equal(t, token.KindRevoked, token.KindOf(err))

	_, err = f.service.Refresh(ctx, second.RefreshToken)
	assert.Equal(t, token.KindRevoked, token.KindOf(err))
}

/*
TestRefresh_Concurrent presents one refresh token from many goroutines.
Exactly one rotation succeeds and the family is unusable afterwards.
*/
func TestRefresh_Concurrent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pair, err := f.service.Issue(ctx, f.subject, "sess-1")
	require.NoError(t, err)

	const callers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []token.Pair
		kinds   []token.FailureKind
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			next, err := f.service.Refresh(ctx, pair.RefreshToken)

			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				winners = append(winners, next)
				return
			}
			kinds = append(kinds, token.KindOf(err))
		}()
	}
	wg.Wait()

	require.Len(t, winners, 1)
	require.Len(t, kinds, callers-1)
	for _, kind := range kinds {
		assert.Contains(t, []token.FailureKind{token.KindReplay, token.KindRevoked}, kind)
	}

	_, err = f.service.Refresh(ctx, winners[0].RefreshToken)
	assert.Error(t, err)
	_, err = f.service.VerifyAccessToken(ctx, winners[0].AccessToken)
	assert.Equal(t, token.KindRevoked, token.KindOf(err))
}

func TestValidate_VersionMismatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pair, err := f.service.Issue(ctx, f.subject, "sess-1")
	require.NoError(t, err)

	f.versions.bump("user-1")

	_, err = f.service.VerifyAccessToken(ctx, pair.AccessToken)
	assert.Equal(t, token.KindVersionMismatch, token.KindOf(err))

	reason, ok := f.blacklist.Reason(mustJTI(t, f, pair.AccessToken))
	require.True(t, ok)
	assert.Equal(t, blacklist.ReasonVersionChange, reason)

	_, err = f.service.Refresh(ctx, pair.RefreshToken)
	assert.Equal(t, token.KindVersionMismatch, token.KindOf(err))
}

func TestLogout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pair, err := f.service.Issue(ctx, f.subject, "sess-1")
	require.NoError(t, err)

	claims, err := f.service.VerifyAccessToken(ctx, pair.AccessToken)
	require.NoError(t, err)
	require.NoError(t, f.service.Logout(ctx, claims))

	_, err = f.service.VerifyAccessToken(ctx, pair.AccessToken)
	assert.Equal(t, token.KindBlacklisted, token.KindOf(err))

	_, err = f.service.Refresh(ctx, pair.RefreshToken)
	assert.Equal(t, token.KindRevoked, token.KindOf(err))
}

func TestRevokeFamily(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pair, err := f.service.Issue(ctx, f.subject, "sess-1")
	require.NoError(t, err)

	require.NoError(t, f.service.RevokeFamily(ctx, pair.FamilyID, blacklist.ReasonRevoked))

	_, err = f.service.VerifyAccessToken(ctx, pair.AccessToken)
	assert.Equal(t, token.KindRevoked, token.KindOf(err))

	// Unknown families are a no-op.
	assert.NoError(t, f.service.RevokeFamily(ctx, "missing", blacklist.ReasonRevoked))
}

func TestValidate_UnknownSubject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pair, err := f.service.Issue(ctx, token.Subject{UserID: "ghost"}, "sess-1")
	require.NoError(t, err)

	_, err = f.service.VerifyAccessToken(ctx, pair.AccessToken)
	assert.Equal(t, token.KindInvalidClaims, token.KindOf(err))
}

func TestToAppError(t *testing.T) {
	for _, kind := range []token.FailureKind{token.KindExpired, token.KindReplay, token.KindVersionMismatch} {
		mapped := apperr.As(token.ToAppError(&token.ValidationError{Kind: kind}))
		require.NotNil(t, mapped)
		assert.Equal(t, http.StatusUnauthorized, mapped.HTTPStatus)
		assert.Equal(t, "Invalid or expired token", mapped.Message)
	}

	assert.Nil(t, token.ToAppError(nil))
}

func mustJTI(t *testing.T, f *fixture, raw string) string {
	t.Helper()
	key := signingKey(t)
	claims, err := sec.NewTokenServiceFromKey(key, &key.PublicKey, "auth.test", "shop-test", sec.WithTimeFunc(f.clock.Now)).Parse(raw)
	require.NoError(t, err)
	return claims.ID
}
