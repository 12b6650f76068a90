// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package signin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/taibuivan/shopauth/internal/platform/constants"
	"github.com/taibuivan/shopauth/internal/platform/ctxutil"
	"github.com/taibuivan/shopauth/internal/platform/sec"
	"github.com/taibuivan/shopauth/internal/users/session"
)

// # Pending Sign-In

// Step is the state-specific part of a pending sign-in. The concrete types
// below are the only implementations.
type Step interface {
	State() State
}

// SelectionStep waits for the user to pick a factor.
type SelectionStep struct{}

// TOTPStep waits for an authenticator code.
type TOTPStep struct{}

// EmailStep waits for the code mailed at SentAt.
type EmailStep struct {
	SentAt        time.Time `json:"sentAt"`
	CodeExpiresAt time.Time `json:"codeExpiresAt"`
}

// RecoveryStep waits for a recovery code.
type RecoveryStep struct{}

func (SelectionStep) State() State { return StateAwaitingMFASelection }
func (TOTPStep) State() State      { return StateAwaitingTOTP }
func (EmailStep) State() State     { return StateAwaitingEmailCode }
func (RecoveryStep) State() State  { return StateAwaitingRecoveryCode }

// Pending is a sign-in that passed the password check and waits for a second factor.
type Pending struct {
	UserID    string
	Device    session.Device
	Methods   []Method
	CreatedAt time.Time
	Step      Step
}

// Allows reports whether method is one of the user's factors.
func (pending *Pending) Allows(method Method) bool {
	for _, candidate := range pending.Methods {
		if candidate == method {
			return true
		}
	}
	return false
}

// envelope is the stored form: the common fields plus the variant under its state tag.
type envelope struct {
	State     State           `json:"state"`
	UserID    string          `json:"uid"`
	Device    session.Device  `json:"device"`
	Methods   []Method        `json:"methods"`
	CreatedAt time.Time       `json:"createdAt"`
	Step      json.RawMessage `json:"step,omitempty"`
}

func encodePending(pending Pending) ([]byte, error) {
	if pending.Step == nil {
		return nil, errors.New("signin: pending sign-in has no step")
	}

	step, err := json.Marshal(pending.Step)
	if err != nil {
		return nil, err
	}

	return json.Marshal(envelope{
		State:     pending.Step.State(),
		UserID:    pending.UserID,
		Device:    pending.Device,
		Methods:   pending.Methods,
		CreatedAt: pending.CreatedAt,
		Step:      step,
	})
}

func decodePending(data []byte) (*Pending, error) {
	var stored envelope
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, err
	}

	var step Step
	switch stored.State {
	case StateAwaitingMFASelection:
		step = SelectionStep{}
	case StateAwaitingTOTP:
		step = TOTPStep{}
	case StateAwaitingRecoveryCode:
		step = RecoveryStep{}
	case StateAwaitingEmailCode:
		var email EmailStep
		if len(stored.Step) > 0 {
			if err := json.Unmarshal(stored.Step, &email); err != nil {
				return nil, err
			}
		}
		step = email
	default:
		return nil, fmt.Errorf("signin: unknown pending state %q", stored.State)
	}

	return &Pending{
		UserID:    stored.UserID,
		Device:    stored.Device,
		Methods:   stored.Methods,
		CreatedAt: stored.CreatedAt,
		Step:      step,
	}, nil
}

// # State Store

// StateStore keeps pending sign-ins behind opaque state tokens.
// Unknown, expired and consumed tokens all yield [ErrInvalidStateToken].
type StateStore interface {

	// Create stores pending and returns a fresh state token.
	Create(context context.Context, pending Pending) (string, error)

	// Load reads a pending sign-in without consuming it.
	Load(context context.Context, stateToken string) (*Pending, error)

	// Update replaces the payload and keeps the remaining lifetime.
	Update(context context.Context, stateToken string, pending Pending) error

	// Consume atomically reads and deletes the pending sign-in.
	Consume(context context.Context, stateToken string) (*Pending, error)

	// InvalidateTOTPStates drops the user's sign-ins that wait for an authenticator code.
	InvalidateTOTPStates(context context.Context, userID string) error
}

// RedisStateStore implements [StateStore]. Only the SHA-256 of a state token is
// used in key names, and a per-user set indexes the live tokens.
type RedisStateStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisStateStore creates a state store whose tokens live for ttl.
func NewRedisStateStore(client redis.UniversalClient, ttl time.Duration) *RedisStateStore {
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	return &RedisStateStore{client: client, ttl: ttl}
}

func stateKey(digest string) string { return constants.RedisPrefixState + digest }
func indexKey(userID string) string { return constants.RedisPrefixStateIndex + userID }

/*
Create stores a pending sign-in.

Parameters:
  - context: context.Context
  - pending: Pending

Returns:
  - string: the state token handed to the client
  - error: encoding or Redis failures
*/
func (store *RedisStateStore) Create(context context.Context, pending Pending) (string, error) {
	stateToken, err := sec.GenerateSecureToken(32)
	if err != nil {
		return "", fmt.Errorf("signin_state_token_failed: %w", err)
	}

	payload, err := encodePending(pending)
	if err != nil {
		return "", fmt.Errorf("signin_state_encode_failed: %w", err)
	}

	digest := sec.HashToken(stateToken)
	_, err = store.client.TxPipelined(context, func(pipe redis.Pipeliner) error {
		pipe.Set(context, stateKey(digest), payload, store.ttl)
		pipe.SAdd(context, indexKey(pending.UserID), digest)
		pipe.PExpire(context, indexKey(pending.UserID), store.ttl)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("signin_state_create_failed: %w", err)
	}

	return stateToken, nil
}

// Load implements [StateStore].
func (store *RedisStateStore) Load(context context.Context, stateToken string) (*Pending, error) {
	if stateToken == "" {
		return nil, ErrInvalidStateToken
	}

	payload, err := store.client.Get(context, stateKey(sec.HashToken(stateToken))).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrInvalidStateToken
	}
	if err != nil {
		return nil, fmt.Errorf("signin_state_load_failed: %w", err)
	}

	return decodeOrInvalid(payload)
}

// Update implements [StateStore].
func (store *RedisStateStore) Update(context context.Context, stateToken string, pending Pending) error {
	payload, err := encodePending(pending)
	if err != nil {
		return fmt.Errorf("signin_state_encode_failed: %w", err)
	}

	err = store.client.SetArgs(context, stateKey(sec.HashToken(stateToken)), payload, redis.SetArgs{
		Mode:    "XX",
		KeepTTL: true,
	}).Err()
	if errors.Is(err, redis.Nil) {
		return ErrInvalidStateToken
	}
	if err != nil {
		return fmt.Errorf("signin_state_update_failed: %w", err)
	}
	return nil
}

// Consume implements [StateStore]. Of two concurrent calls only one sees the payload.
func (store *RedisStateStore) Consume(context context.Context, stateToken string) (*Pending, error) {
	if stateToken == "" {
		return nil, ErrInvalidStateToken
	}

	digest := sec.HashToken(stateToken)
	payload, err := store.client.GetDel(context, stateKey(digest)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrInvalidStateToken
	}
	if err != nil {
		return nil, fmt.Errorf("signin_state_consume_failed: %w", err)
	}

	pending, err := decodeOrInvalid(payload)
	if err != nil {
		return nil, err
	}

	if err := store.client.SRem(context, indexKey(pending.UserID), digest).Err(); err != nil {
		ctxutil.GetLogger(context).WarnContext(context, "signin_state_index_cleanup_failed",
			slog.String("user_id", pending.UserID),
			slog.Any("error", err),
		)
	}
	return pending, nil
}

// InvalidateTOTPStates implements [StateStore] and totp.StateInvalidator.
func (store *RedisStateStore) InvalidateTOTPStates(context context.Context, userID string) error {
	index := indexKey(userID)

	digests, err := store.client.SMembers(context, index).Result()
	if err != nil {
		return fmt.Errorf("signin_state_index_failed: %w", err)
	}

	dropped := 0
	for _, digest := range digests {
		payload, err := store.client.Get(context, stateKey(digest)).Bytes()
		if errors.Is(err, redis.Nil) {
			store.client.SRem(context, index, digest)
			continue
		}
		if err != nil {
			return fmt.Errorf("signin_state_load_failed: %w", err)
		}

		pending, err := decodePending(payload)
		if err == nil && pending.Step.State() != StateAwaitingTOTP {
			continue
		}

		if err := store.client.Del(context, stateKey(digest)).Err(); err != nil {
			return fmt.Errorf("signin_state_invalidate_failed: %w", err)
		}
		store.client.SRem(context, index, digest)
		dropped++
	}

	if dropped > 0 {
		ctxutil.GetLogger(context).InfoContext(context, "signin_totp_states_invalidated",
			slog.String("user_id", userID),
			slog.Int("count", dropped),
		)
	}
	return nil
}

func decodeOrInvalid(payload []byte) (*Pending, error) {
	pending, err := decodePending(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidStateToken, err)
	}
	return pending, nil
}
