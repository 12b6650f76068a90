// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package recovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/taibuivan/shopauth/internal/platform/constants"
	"github.com/taibuivan/shopauth/internal/platform/ctxutil"
	"github.com/taibuivan/shopauth/internal/platform/sec"
	"github.com/taibuivan/shopauth/internal/users/account"
	"github.com/taibuivan/shopauth/pkg/uuid"
)

// reserveAttemptLua charges the per-user budget before any hash is compared
// and starts its window on the first hit.
var reserveAttemptLua = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return count
`)

// releaseAttemptLua refunds a reservation that did not end in a mismatch.
// A key whose window already closed is left alone.
var releaseAttemptLua = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return redis.call('DECR', KEYS[1])
end
return 0
`)

// Manager generates and redeems recovery codes.
type Manager struct {
	repository Repository
	client     redis.UniversalClient
	hashCost   int
	now        func() time.Time
}

// Option customizes a [Manager].
type Option func(*Manager)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(manager *Manager) { manager.now = now }
}

// WithHashCost overrides the bcrypt cost. Tests use bcrypt.MinCost.
func WithHashCost(cost int) Option {
	return func(manager *Manager) { manager.hashCost = cost }
}

// NewManager creates a recovery code manager.
func NewManager(repository Repository, client redis.UniversalClient, options ...Option) *Manager {
	manager := &Manager{
		repository: repository,
		client:     client,
		hashCost:   bcrypt.DefaultCost,
		now:        time.Now,
	}
	for _, option := range options {
		option(manager)
	}
	return manager
}

func budgetKey(userID string) string { return constants.RedisPrefixRecoveryFail + userID }

// # Format

// Canonicalize strips separators and whitespace and lowercases the code.
// It returns ErrInvalidFormat unless exactly 16 letters or digits remain.
func Canonicalize(raw string) (string, error) {
	var builder strings.Builder
	for _, r := range strings.ToLower(raw) {
		switch {
		case r == '-' || r == ' ' || r == '\t':
			continue
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			builder.WriteRune(r)
		default:
			return "", ErrInvalidFormat
		}
	}

	canonical := builder.String()
	if len(canonical) != CanonicalLength {
		return "", ErrInvalidFormat
	}
	return canonical, nil
}

// format inserts a hyphen between every group.
func format(canonical string) string {
	groups := make([]string, 0, GroupCount)
	for start := 0; start < len(canonical); start += GroupSize {
		groups = append(groups, canonical[start:start+GroupSize])
	}
	return strings.Join(groups, "-")
}

// # Generation

/*
Generate creates a fresh batch and replaces the previous one.

Parameters:
  - context: context.Context
  - userID: string

Returns:
  - []string: the formatted cleartext codes, shown to the user exactly once
  - error: storage failures
*/
func (manager *Manager) Generate(context context.Context, userID string) ([]string, error) {
	now := manager.now().UTC()

	plain := make([]string, 0, BatchSize)
	codes := make([]Code, 0, BatchSize)
	for i := 0; i < BatchSize; i++ {
		canonical, err := sec.RandomString(CanonicalLength, alphabet)
		if err != nil {
			return nil, fmt.Errorf("recovery_generate_failed: %w", err)
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(canonical), manager.hashCost)
		if err != nil {
			return nil, fmt.Errorf("recovery_hash_failed: %w", err)
		}

		plain = append(plain, format(canonical))
		codes = append(codes, Code{
			ID:        uuid.New(),
			UserID:    userID,
			CodeHash:  string(hash),
			CreatedAt: now.Add(time.Duration(i) * time.Microsecond),
		})
	}

	if err := manager.repository.ReplaceAll(context, userID, codes); err != nil {
		return nil, fmt.Errorf("recovery_replace_failed: %w", err)
	}
	if err := manager.client.Del(context, budgetKey(userID)).Err(); err != nil {
		return nil, fmt.Errorf("recovery_budget_reset_failed: %w", err)
	}

	ctxutil.GetLogger(context).InfoContext(context, "recovery_codes_generated",
		slog.String("user_id", userID),
		slog.Int("count", BatchSize),
	)
	return plain, nil
}

// Regenerate is [Manager.Generate] gated behind password re-entry.
func (manager *Manager) Regenerate(context context.Context, user *account.User, password string) ([]string, error) {
	if !sec.CheckPasswordHash(password, user.PasswordHash) {
		return nil, ErrInvalidPassword
	}
	return manager.Generate(context, user.ID)
}

// # Redemption

/*
Verify redeems one code of the user.

A non-matching code counts one failure against the first usable record and
one against the per-user budget.

Returns:
  - error: ErrInvalidFormat, ErrInvalidCode, ErrAlreadyUsed, ErrExpired,
    ErrTooManyAttempts or storage failures
*/
func (manager *Manager) Verify(context context.Context, userID, raw string, origin Origin) error {
	logger := ctxutil.GetLogger(context)

	// ── 1. Format ─────────────────────────────────────────────────────
	canonical, err := Canonicalize(raw)
	if err != nil {
		return err
	}

	// ── 2. Per-User Budget ────────────────────────────────────────────
	spent, err := reserveAttemptLua.Run(context, manager.client, []string{budgetKey(userID)},
		UserFailureWindow.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("recovery_budget_reserve_failed: %w", err)
	}
	if spent > UserFailureBudget {
		return ErrTooManyAttempts
	}

	// ── 3. Match ──────────────────────────────────────────────────────
	codes, err := manager.repository.List(context, userID)
	if err != nil {
		return manager.release(context, userID, fmt.Errorf("recovery_list_failed: %w", err))
	}

	now := manager.now().UTC()
	for index := range codes {
		code := &codes[index]
		if bcrypt.CompareHashAndPassword([]byte(code.CodeHash), []byte(canonical)) != nil {
			continue
		}

		switch {
		case code.Used:
			return manager.release(context, userID, ErrAlreadyUsed)
		case code.ExpiredAt(now):
			return manager.release(context, userID, ErrExpired)
		case code.Exhausted():
			return manager.release(context, userID, ErrTooManyAttempts)
		}

		claimed, err := manager.repository.MarkUsed(context, code.ID, now, origin)
		if err != nil {
			return manager.release(context, userID, fmt.Errorf("recovery_mark_used_failed: %w", err))
		}
		if !claimed {
			return manager.release(context, userID, ErrAlreadyUsed)
		}
		if err := manager.release(context, userID, nil); err != nil {
			return err
		}

		logger.InfoContext(context, "recovery_code_redeemed",
			slog.String("user_id", userID),
			slog.String("ip", origin.IP),
		)
		return nil
	}

	// ── 4. Count the Failure ──────────────────────────────────────────
	return manager.fail(context, userID, spent, codes, now)
}

// release refunds the attempt reserved for a verification that was not a
// mismatch and returns outcome unchanged.
func (manager *Manager) release(context context.Context, userID string, outcome error) error {
	if err := releaseAttemptLua.Run(context, manager.client, []string{budgetKey(userID)}).Err(); err != nil {
		return errors.Join(outcome, fmt.Errorf("recovery_budget_release_failed: %w", err))
	}
	return outcome
}

func (manager *Manager) fail(context context.Context, userID string, spent int, codes []Code, now time.Time) error {
	for index := range codes {
		if codes[index].Usable(now) {
			if err := manager.repository.IncrementFailure(context, codes[index].ID); err != nil {
				return fmt.Errorf("recovery_increment_failure_failed: %w", err)
			}
			break
		}
	}

	ctxutil.GetLogger(context).InfoContext(context, "recovery_code_rejected",
		slog.String("user_id", userID),
		slog.Int("budget_spent", spent),
	)

	if spent >= UserFailureBudget {
		return ErrTooManyAttempts
	}
	return ErrInvalidCode
}

// # Status

// Status summarizes the user's batch.
func (manager *Manager) Status(context context.Context, userID string) (Status, error) {
	codes, err := manager.repository.List(context, userID)
	if err != nil {
		return Status{}, fmt.Errorf("recovery_status_failed: %w", err)
	}

	now := manager.now().UTC()
	status := Status{Enabled: len(codes) > 0, Total: len(codes)}
	for index := range codes {
		if codes[index].Usable(now) {
			status.Remaining++
		}
	}
	status.HasValidCodes = status.Remaining > 0
	return status, nil
}
