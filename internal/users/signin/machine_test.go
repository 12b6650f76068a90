// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package signin_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	pquerna "github.com/pquerna/otp/totp"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/taibuivan/shopauth/internal/platform/apperr"
	"github.com/taibuivan/shopauth/internal/platform/sec"
	"github.com/taibuivan/shopauth/internal/users/account"
	"github.com/taibuivan/shopauth/internal/users/blacklist"
	"github.com/taibuivan/shopauth/internal/users/otp"
	"github.com/taibuivan/shopauth/internal/users/recovery"
	"github.com/taibuivan/shopauth/internal/users/session"
	"github.com/taibuivan/shopauth/internal/users/signin"
	"github.com/taibuivan/shopauth/internal/users/token"
	"github.com/taibuivan/shopauth/internal/users/totp"
)

const (
	password  = "correct horse battery staple"
	fixedCode = "123456"
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

type mailbox struct {
	mu    sync.Mutex
	codes []otp.Issued
}

func (box *mailbox) SendCode(_ context.Context, _ *account.User, issued otp.Issued) error {
	box.mu.Lock()
	defer box.mu.Unlock()
	box.codes = append(box.codes, issued)
	return nil
}

func (box *mailbox) count() int {
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
	machine  *signin.Machine
	states   *signin.RedisStateStore
	users    *account.MemoryUserRepository
	registry *session.Registry
	recovery *recovery.Manager
	mailbox  *mailbox
	redis    *miniredis.Miniredis
	clock    *fakeClock
	user     *account.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	users := account.NewMemoryUserRepository()

	hash, err := sec.HashPassword(password)
	require.NoError(t, err)
	user := &account.User{Username: "alice", Email: "alice@shop.local", PasswordHash: hash, Role: sec.RoleCustomer}
	require.NoError(t, users.Create(context.Background(), user))

	key := signingKey(t)
	signer := sec.NewTokenServiceFromKey(key, &key.PublicKey, "auth.test", "shop-test", sec.WithTimeFunc(clock.Now))
	tokens := token.NewService(signer, token.NewRedisFamilyStore(client), blacklist.NewMemory(0), users,
		token.WithClock(clock.Now))

	states := signin.NewRedisStateStore(client, signin.DefaultStateTTL)
	registry := session.NewRegistry(session.NewMemoryRepository(), tokens, session.WithClock(clock.Now))
	codes := otp.NewService(otp.NewRedisStore(client), otp.FixedGenerator{Code: fixedCode}, otp.WithClock(clock.Now))
	recoveryCodes := recovery.NewManager(recovery.NewMemoryRepository(), client,
		recovery.WithHashCost(bcrypt.MinCost), recovery.WithClock(clock.Now))
	box := &mailbox{}

	machine := signin.NewMachine(signin.Dependencies{
		Users:    users,
		Lockout:  signin.NewLockout(client, signin.DefaultLockoutThreshold, signin.DefaultLockoutWindow),
		States:   states,
		Tokens:   tokens,
		Sessions: registry,
		TOTP:     totp.NewManager(users, client, states, totp.WithClock(clock.Now)),
		Codes:    codes,
		Recovery: recoveryCodes,
		Mailer:   box,
	}, signin.WithClock(clock.Now))

	return &fixture{
		machine:  machine,
		states:   states,
		users:    users,
		registry: registry,
		recovery: recoveryCodes,
		mailbox:  box,
		redis:    server,
		clock:    clock,
		user:     user,
	}
}

func (f *fixture) enableTOTP(t *testing.T) string {
	t.Helper()
	key, err := pquerna.Generate(pquerna.GenerateOpts{Issuer: "Shop", AccountName: f.user.Email})
	require.NoError(t, err)
	require.NoError(t, f.users.SetTOTP(context.Background(), f.user.ID, key.Secret(), true))
	return key.Secret()
}

func (f *fixture) enableEmailMFA(t *testing.T) {
	t.Helper()
	require.NoError(t, f.users.SetEmailMFA(context.Background(), f.user.ID, true))
}

func (f *fixture) signIn(identifier, secret string) (signin.Outcome, error) {
	return f.machine.SignIn(context.Background(), signin.Credentials{
		Identifier: identifier,
		Password:   secret,
		Device:     session.Device{Name: "laptop", IPAddress: "198.51.100.7", UserAgent: "test"},
	})
}

func TestSignIn_WithoutMFA(t *testing.T) {
	f := newFixture(t)

	outcome, err := f.signIn("ALICE@shop.local", password)
	require.NoError(t, err)

	assert.Equal(t, signin.StateAuthenticated, outcome.State)
	require.NotNil(t, outcome.Tokens)
	assert.NotEmpty(t, outcome.Tokens.AccessToken)
	assert.Empty(t, outcome.StateToken)
	assert.True(t, outcome.RequiresEmailVerification)

	sessions, err := f.registry.List(context.Background(), f.user.ID, outcome.Tokens.SessionID)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.True(t, sessions[0].IsCurrent)
	assert.Equal(t, "laptop", sessions[0].DeviceName)
}

func TestSignIn_InvalidCredentialsAreUniform(t *testing.T) {
	f := newFixture(t)

	_, unknownErr := f.signIn("nobody@shop.local", password)
	_, wrongErr := f.signIn("alice", "not the password")
	_, emptyErr := f.signIn("", "")

	assert.ErrorIs(t, unknownErr, signin.ErrInvalidCredentials)
	assert.ErrorIs(t, wrongErr, signin.ErrInvalidCredentials)
	assert.ErrorIs(t, emptyErr, signin.ErrInvalidCredentials)
	assert.Equal(t, unknownErr.Error(), wrongErr.Error())
}

func TestSignIn_LocksAfterConsecutiveFailures(t *testing.T) {
	f := newFixture(t)

	for i := 0; i < signin.DefaultLockoutThreshold; i++ {
		_, err := f.signIn("alice", "wrong")
		require.ErrorIs(t, err, signin.ErrInvalidCredentials)
	}

	outcome, err := f.signIn("Alice", password)
	var locked *signin.LockedError
	require.ErrorAs(t, err, &locked)
	assert.Equal(t, signin.StateLocked, outcome.State)
	assert.Positive(t, locked.RetryAfterSeconds())
	assert.LessOrEqual(t, locked.RetryAfter, signin.DefaultLockoutWindow)

	f.redis.FastForward(signin.DefaultLockoutWindow + time.Second)
	outcome, err = f.signIn("alice", password)
	require.NoError(t, err)
	assert.Equal(t, signin.StateAuthenticated, outcome.State)
}

func TestSignIn_SuccessResetsFailures(t *testing.T) {
	f := newFixture(t)

	for round := 0; round < 2; round++ {
		for i := 0; i < signin.DefaultLockoutThreshold-1; i++ {
			_, err := f.signIn("alice", "wrong")
			require.ErrorIs(t, err, signin.ErrInvalidCredentials)
		}
		_, err := f.signIn("alice", password)
		require.NoError(t, err)
	}
}

func TestSignIn_TOTP(t *testing.T) {
	f := newFixture(t)
	secret := f.enableTOTP(t)
	ctx := context.Background()

	outcome, err := f.signIn("alice", password)
	require.NoError(t, err)
	assert.Equal(t, signin.StateAwaitingTOTP, outcome.State)
	assert.Equal(t, []signin.Method{signin.MethodTOTP}, outcome.Methods)
	assert.Nil(t, outcome.Tokens)
	require.NotEmpty(t, outcome.StateToken)

	// A wrong code keeps the flow alive.
	_, err = f.machine.CompleteTOTP(ctx, outcome.StateToken, "000000")
	assert.ErrorIs(t, err, totp.ErrInvalidCode)

	code, err := pquerna.GenerateCode(secret, f.clock.Now())
	require.NoError(t, err)
	done, err := f.machine.CompleteTOTP(ctx, outcome.StateToken, code)
	require.NoError(t, err)
	assert.Equal(t, signin.StateAuthenticated, done.State)
	require.NotNil(t, done.Tokens)

	_, err = f.machine.CompleteTOTP(ctx, outcome.StateToken, code)
	assert.ErrorIs(t, err, signin.ErrInvalidStateToken)
}

func TestSignIn_SelectionThenEmail(t *testing.T) {
	f := newFixture(t)
	f.enableTOTP(t)
	f.enableEmailMFA(t)
	ctx := context.Background()

	outcome, err := f.signIn("alice", password)
	require.NoError(t, err)
	assert.Equal(t, signin.StateAwaitingMFASelection, outcome.State)
	assert.ElementsMatch(t, []signin.Method{signin.MethodTOTP, signin.MethodEmail}, outcome.Methods)
	assert.Zero(t, f.mailbox.count())

	_, err = f.machine.CompleteTOTP(ctx, outcome.StateToken, "000000")
	assert.ErrorIs(t, err, signin.ErrWrongStep)

	_, err = f.machine.SelectMethod(ctx, outcome.StateToken, signin.MethodRecovery)
	assert.ErrorIs(t, err, signin.ErrMethodNotAvailable)

	selected, err := f.machine.SelectMethod(ctx, outcome.StateToken, signin.MethodEmail)
	require.NoError(t, err)
	assert.Equal(t, signin.StateAwaitingEmailCode, selected.State)
	assert.Equal(t, outcome.StateToken, selected.StateToken)
	assert.Equal(t, 1, f.mailbox.count())

	_, err = f.machine.ResendEmailCode(ctx, outcome.StateToken)
	var cooldown *otp.CooldownError
	assert.ErrorAs(t, err, &cooldown)

	done, err := f.machine.CompleteEmailCode(ctx, outcome.StateToken, fixedCode)
	require.NoError(t, err)
	assert.Equal(t, signin.StateAuthenticated, done.State)
}

func TestSignIn_EmailOnlySendsCodeImmediately(t *testing.T) {
	f := newFixture(t)
	f.enableEmailMFA(t)

	outcome, err := f.signIn("alice", password)
	require.NoError(t, err)
	assert.Equal(t, signin.StateAwaitingEmailCode, outcome.State)
	assert.Equal(t, 1, f.mailbox.count())
}

/*
TestSignIn_EmailBackToBack signs in twice with email codes inside the resend
cooldown. The second sign-in must mail a fresh code because the first was redeemed.
*/
func TestSignIn_EmailBackToBack(t *testing.T) {
	f := newFixture(t)
	f.enableEmailMFA(t)
	ctx := context.Background()

	for round := 1; round <= 2; round++ {
		outcome, err := f.signIn("alice", password)
		require.NoError(t, err)
		require.Equal(t, signin.StateAwaitingEmailCode, outcome.State)
		assert.Equal(t, round, f.mailbox.count())

		done, err := f.machine.CompleteEmailCode(ctx, outcome.StateToken, fixedCode)
		require.NoError(t, err)
		assert.Equal(t, signin.StateAuthenticated, done.State)

		f.clock.Advance(10 * time.Second)
	}
}

func TestSignIn_EmailReusesPendingCode(t *testing.T) {
	f := newFixture(t)
	f.enableEmailMFA(t)
	ctx := context.Background()

	_, err := f.signIn("alice", password)
	require.NoError(t, err)

	f.clock.Advance(10 * time.Second)
	second, err := f.signIn("alice", password)
	require.NoError(t, err)
	assert.Equal(t, 1, f.mailbox.count())

	done, err := f.machine.CompleteEmailCode(ctx, second.StateToken, fixedCode)
	require.NoError(t, err)
	assert.Equal(t, signin.StateAuthenticated, done.State)
}

func TestSignIn_RecoveryCode(t *testing.T) {
	f := newFixture(t)
	f.enableTOTP(t)
	ctx := context.Background()
	origin := recovery.Origin{IP: "198.51.100.7", UserAgent: "test"}

	codes, err := f.recovery.Generate(ctx, f.user.ID)
	require.NoError(t, err)

	outcome, err := f.signIn("alice", password)
	require.NoError(t, err)
	assert.Contains(t, outcome.Methods, signin.MethodRecovery)

	done, err := f.machine.CompleteRecoveryCode(ctx, outcome.StateToken, codes[0], origin)
	require.NoError(t, err)
	assert.Equal(t, signin.StateAuthenticated, done.State)

	second, err := f.signIn("alice", password)
	require.NoError(t, err)
	_, err = f.machine.CompleteRecoveryCode(ctx, second.StateToken, codes[0], origin)
	assert.ErrorIs(t, err, recovery.ErrAlreadyUsed)
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	f.enableTOTP(t)
	ctx := context.Background()

	outcome, err := f.signIn("alice", password)
	require.NoError(t, err)

	require.NoError(t, f.machine.Cancel(ctx, outcome.StateToken))
	_, err = f.machine.CompleteTOTP(ctx, outcome.StateToken, "000000")
	assert.ErrorIs(t, err, signin.ErrInvalidStateToken)
	assert.ErrorIs(t, f.machine.Cancel(ctx, outcome.StateToken), signin.ErrInvalidStateToken)
}

func TestStateStore_InvalidateTOTPStates(t *testing.T) {
	f := newFixture(t)
	f.enableTOTP(t)
	f.enableEmailMFA(t)
	ctx := context.Background()

	totpFlow, err := f.signIn("alice", password)
	require.NoError(t, err)
	_, err = f.machine.SelectMethod(ctx, totpFlow.StateToken, signin.MethodTOTP)
	require.NoError(t, err)

	selectionFlow, err := f.signIn("alice", password)
	require.NoError(t, err)

	require.NoError(t, f.states.InvalidateTOTPStates(ctx, f.user.ID))

	_, err = f.states.Load(ctx, totpFlow.StateToken)
	assert.ErrorIs(t, err, signin.ErrInvalidStateToken)
	pending, err := f.states.Load(ctx, selectionFlow.StateToken)
	require.NoError(t, err)
	assert.Equal(t, signin.StateAwaitingMFASelection, pending.Step.State())
}

func TestStateStore_Expires(t *testing.T) {
	f := newFixture(t)
	f.enableTOTP(t)

	outcome, err := f.signIn("alice", password)
	require.NoError(t, err)

	f.redis.FastForward(signin.DefaultStateTTL + time.Second)
	_, err = f.states.Load(context.Background(), outcome.StateToken)
	assert.ErrorIs(t, err, signin.ErrInvalidStateToken)
}

func TestStateStore_EmailStepRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sentAt := f.clock.Now()

	stateToken, err := f.states.Create(ctx, signin.Pending{
		UserID:  f.user.ID,
		Methods: []signin.Method{signin.MethodEmail},
		Step:    signin.EmailStep{SentAt: sentAt, CodeExpiresAt: sentAt.Add(otp.DefaultTTL)},
	})
	require.NoError(t, err)

	pending, err := f.states.Consume(ctx, stateToken)
	require.NoError(t, err)
	step, ok := pending.Step.(signin.EmailStep)
	require.True(t, ok)
	assert.True(t, step.SentAt.Equal(sentAt))
	assert.True(t, step.CodeExpiresAt.Equal(sentAt.Add(otp.DefaultTTL)))
}

func TestToAppError(t *testing.T) {
	appErr := apperr.As(signin.ToAppError(&signin.LockedError{RetryAfter: 90 * time.Second}))
	require.NotNil(t, appErr)
	assert.Equal(t, http.StatusTooManyRequests, appErr.HTTPStatus)
	assert.Equal(t, 90, appErr.RetryAfter)

	appErr = apperr.As(signin.ToAppError(signin.ErrInvalidCredentials))
	require.NotNil(t, appErr)
	assert.Equal(t, http.StatusUnauthorized, appErr.HTTPStatus)

	appErr = apperr.As(signin.ToAppError(&totp.InvalidCodeError{Remaining: 2}))
	require.NotNil(t, appErr)
	assert.Equal(t, "INVALID_TOTP_CODE", appErr.Code)

	appErr = apperr.As(signin.ToAppError(recovery.ErrAlreadyUsed))
	require.NotNil(t, appErr)
	assert.Equal(t, "RECOVERY_CODE_USED", appErr.Code)
}
