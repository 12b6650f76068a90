// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package totp

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/redis/go-redis/v9"

	"github.com/taibuivan/shopauth/internal/platform/constants"
	"github.com/taibuivan/shopauth/internal/platform/ctxutil"
	"github.com/taibuivan/shopauth/internal/platform/sec"
	"github.com/taibuivan/shopauth/internal/users/account"
)

// StateInvalidator drops pending sign-ins that are waiting for a TOTP code.
// Implemented by the sign-in state store.
type StateInvalidator interface {
	InvalidateTOTPStates(context context.Context, userID string) error
}

var validateOpts = totp.ValidateOpts{
	Period:    Period,
	Skew:      0,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// reserveAttemptLua counts an attempt before the code is compared and starts
// the window on the first hit. A successful attempt clears the counter.
// KEYS[1] = failure key, ARGV[1] = window (ms). Returns {count, ttl ms}.
var reserveAttemptLua = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return {count, redis.call('PTTL', KEYS[1])}
`)

// claimStepLua accepts a time step only if it is newer than the last accepted one.
// KEYS[1] = used-step key, ARGV[1] = step, ARGV[2] = ttl (ms). Returns 1 when claimed.
var claimStepLua = redis.NewScript(`
local last = redis.call('GET', KEYS[1])
if last and tonumber(last) >= tonumber(ARGV[1]) then
  return 0
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
return 1
`)

// Manager owns TOTP enrolment and verification.
type Manager struct {
	users       account.UserRepository
	client      redis.UniversalClient
	invalidator StateInvalidator
	issuer      string
	now         func() time.Time
}

// Option customizes a [Manager].
type Option func(*Manager)

// WithClock overrides the time source used to compute codes.
func WithClock(now func() time.Time) Option {
	return func(manager *Manager) { manager.now = now }
}

// WithIssuer sets the issuer shown in authenticator apps.
func WithIssuer(issuer string) Option {
	return func(manager *Manager) {
		if issuer != "" {
			manager.issuer = issuer
		}
	}
}

// NewManager creates a TOTP manager. invalidator may be nil.
func NewManager(users account.UserRepository, client redis.UniversalClient, invalidator StateInvalidator, options ...Option) *Manager {
	manager := &Manager{
		users:       users,
		client:      client,
		invalidator: invalidator,
		issuer:      defaultIssuer,
		now:         time.Now,
	}
	for _, option := range options {
		option(manager)
	}
	return manager
}

func pendingKey(userID string) string { return constants.RedisPrefixTOTPPending + userID }
func failureKey(userID string) string { return constants.RedisPrefixTOTPFail + userID }
func usedKey(userID string) string    { return constants.RedisPrefixTOTPUsed + userID }

// # Enrolment

/*
Setup generates a new secret and parks it until the user confirms it.

Parameters:
  - context: context.Context
  - user: *account.User

Returns:
  - Provisioning: secret and otpauth:// URI for the QR code
  - error: ErrAlreadyEnabled or storage failures
*/
func (manager *Manager) Setup(context context.Context, user *account.User) (Provisioning, error) {
	if user.TOTPEnabled {
		return Provisioning{}, ErrAlreadyEnabled
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      manager.issuer,
		AccountName: user.Email,
		Period:      Period,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return Provisioning{}, fmt.Errorf("totp_generate_failed: %w", err)
	}

	if err := manager.client.Set(context, pendingKey(user.ID), key.Secret(), PendingTTL).Err(); err != nil {
		return Provisioning{}, fmt.Errorf("totp_pending_store_failed: %w", err)
	}

	ctxutil.GetLogger(context).InfoContext(context, "totp_setup_started", slog.String("user_id", user.ID))

	return Provisioning{Secret: key.Secret(), URI: key.URL()}, nil
}

/*
VerifyAndEnable checks code against the pending secret and, on success,
stores the secret on the account and turns TOTP on.

Returns:
  - error: ErrNoPendingSetup, *InvalidCodeError, *LockedError or storage failures
*/
func (manager *Manager) VerifyAndEnable(context context.Context, user *account.User, code string) error {
	if user.TOTPEnabled {
		return ErrAlreadyEnabled
	}

	secret, err := manager.client.Get(context, pendingKey(user.ID)).Result()
	if errors.Is(err, redis.Nil) {
		return ErrNoPendingSetup
	}
	if err != nil {
		return fmt.Errorf("totp_pending_lookup_failed: %w", err)
	}

	if err := manager.check(context, user.ID, secret, code); err != nil {
		return err
	}

	if err := manager.users.SetTOTP(context, user.ID, secret, true); err != nil {
		return fmt.Errorf("totp_enable_failed: %w", err)
	}
	if err := manager.client.Del(context, pendingKey(user.ID)).Err(); err != nil {
		return fmt.Errorf("totp_pending_cleanup_failed: %w", err)
	}

	ctxutil.GetLogger(context).InfoContext(context, "totp_enabled", slog.String("user_id", user.ID))
	return nil
}

// # Verification

/*
Verify is the steady-state check used by sign-in and sensitive operations.

Returns:
  - error: ErrNotEnabled, *InvalidCodeError, ErrCodeReused, *LockedError or storage failures
*/
func (manager *Manager) Verify(context context.Context, user *account.User, code string) error {
	if !user.TOTPEnabled || user.TOTPSecret == "" {
		return ErrNotEnabled
	}
	return manager.check(context, user.ID, user.TOTPSecret, code)
}

// check runs lockout, code comparison and the replay guard for one attempt.
func (manager *Manager) check(context context.Context, userID, secret, code string) error {

	// ── 1. Attempt Budget ─────────────────────────────────────────────
	count, window, err := manager.reserve(context, userID)
	if err != nil {
		return err
	}
	if count > MaxFailures {
		return &LockedError{RetryAfter: window}
	}

	// ── 2. Code Match ─────────────────────────────────────────────────
	step, matched := manager.match(secret, code)
	if !matched {
		return manager.rejected(context, userID, count, window)
	}

	// ── 3. Replay Guard ───────────────────────────────────────────────
	claimed, err := claimStepLua.Run(context, manager.client, []string{usedKey(userID)},
		step, usedStepMargin.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("totp_claim_step_failed: %w", err)
	}
	if claimed == 0 {
		ctxutil.GetLogger(context).WarnContext(context, "totp_code_reused", slog.String("user_id", userID))
		return ErrCodeReused
	}

	if err := manager.client.Del(context, failureKey(userID)).Err(); err != nil {
		return fmt.Errorf("totp_reset_failures_failed: %w", err)
	}
	return nil
}

// match compares code against the current step and its neighbours.
// It returns the matching step counter.
func (manager *Manager) match(secret, code string) (int64, bool) {
	if len(code) != int(otp.DigitsSix) {
		return 0, false
	}
	if _, err := strconv.Atoi(code); err != nil {
		return 0, false
	}

	now := manager.now()
	current := now.Unix() / Period
	for offset := int64(-Skew); offset <= Skew; offset++ {
		step := current + offset
		expected, err := totp.GenerateCodeCustom(secret, time.Unix(step*Period, 0), validateOpts)
		if err != nil {
			return 0, false
		}
		if subtle.ConstantTimeCompare([]byte(expected), []byte(code)) == 1 {
			return step, true
		}
	}
	return 0, false
}

// reserve takes one attempt from the user's failure budget.
func (manager *Manager) reserve(context context.Context, userID string) (int, time.Duration, error) {
	reply, err := reserveAttemptLua.Run(context, manager.client, []string{failureKey(userID)},
		FailureWindow.Milliseconds()).Int64Slice()
	if err != nil {
		return 0, 0, fmt.Errorf("totp_reserve_attempt_failed: %w", err)
	}

	window := time.Duration(reply[1]) * time.Millisecond
	if window <= 0 {
		window = time.Second
	}
	return int(reply[0]), window, nil
}

func (manager *Manager) rejected(context context.Context, userID string, count int, window time.Duration) error {
	ctxutil.GetLogger(context).InfoContext(context, "totp_verify_failed",
		slog.String("user_id", userID),
		slog.Int("failures", count),
	)

	if count >= MaxFailures {
		return &LockedError{RetryAfter: window}
	}
	return &InvalidCodeError{Remaining: MaxFailures - count}
}

// # Removal

/*
Disable turns TOTP off after the user re-enters their password.

Pending sign-ins waiting on a TOTP code are invalidated so they cannot be
completed with the old secret.

Returns:
  - error: ErrNotEnabled, ErrInvalidPassword or storage failures
*/
func (manager *Manager) Disable(context context.Context, user *account.User, password string) error {
	if !user.TOTPEnabled {
		return ErrNotEnabled
	}
	if !user.HasPassword() {
		return ErrPasswordRequired
	}
	if !sec.CheckPasswordHash(password, user.PasswordHash) {
		return ErrInvalidPassword
	}

	if err := manager.users.SetTOTP(context, user.ID, "", false); err != nil {
		return fmt.Errorf("totp_disable_failed: %w", err)
	}
	if err := manager.client.Del(context, pendingKey(user.ID), failureKey(user.ID), usedKey(user.ID)).Err(); err != nil {
		return fmt.Errorf("totp_disable_cleanup_failed: %w", err)
	}
	if manager.invalidator != nil {
		if err := manager.invalidator.InvalidateTOTPStates(context, user.ID); err != nil {
			return fmt.Errorf("totp_disable_invalidate_states_failed: %w", err)
		}
	}

	ctxutil.GetLogger(context).InfoContext(context, "totp_disabled", slog.String("user_id", user.ID))
	return nil
}
