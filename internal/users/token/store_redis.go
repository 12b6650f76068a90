// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package token

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/taibuivan/shopauth/internal/platform/constants"
)

// # Family Store

// Record describes one refresh token and the access token minted alongside it.
type Record struct {
	JTI             string
	FamilyID        string
	ParentJTI       string
	Generation      int
	UserID          string
	SessionID       string
	AccessJTI       string
	AccessExpiresAt time.Time
	ExpiresAt       time.Time
}

// RotateStatus is the outcome of the compare-and-swap on a refresh token.
type RotateStatus int

const (
	RotateOK RotateStatus = iota
	RotateUnknown
	RotateRevoked
	RotateReplay
)

// FamilyStore persists token families. Rotate must be atomic per family.
type FamilyStore interface {

	// Create starts a new family whose first member is record. Both live for ttl.
	Create(context context.Context, record Record, ttl time.Duration) error

	/*
		Rotate supersedes presented and stores next as the family's current member.
		A presented token that is no longer current revokes the family.
		The family and next both live for ttl from now.

		Returns:
		  - RotateStatus: outcome of the swap
		  - Record: the superseded record (access jti and expiry), valid on RotateOK
		  - error: storage failures
	*/
	Rotate(context context.Context, presentedJTI, familyID string, next Record, ttl time.Duration) (RotateStatus, Record, error)

	// Revoke marks the family dead. Unknown families are ignored.
	Revoke(context context.Context, familyID, reason string) error

	// IsRevoked reports whether the family is dead or unknown.
	IsRevoked(context context.Context, familyID string) (bool, error)
}

// rotateFamilyLua is the refresh compare-and-swap.
// KEYS[1] = presented jti key, KEYS[2] = family key, KEYS[3] = next jti key
// ARGV[1] = family id, ARGV[2] = next jti, ARGV[3] = next access jti,
// ARGV[4] = next access exp (ms), ARGV[5] = next exp (ms), ARGV[6] = ttl (ms),
// ARGV[7] = session id, ARGV[8] = user id, ARGV[9] = presented jti
//
// Returns {status, previous access jti, previous access exp, new generation}.
var rotateFamilyLua = redis.NewScript(`
local revoked = redis.call('HGET', KEYS[2], 'revoked')
if not revoked then
  return {1, '', '0', 0}
end
if revoked == '1' then
  return {2, '', '0', 0}
end
local current = redis.call('HMGET', KEYS[1], 'state', 'fam', 'gen', 'access', 'access_exp')
if not current[1] or current[2] ~= ARGV[1] then
  return {1, '', '0', 0}
end
if current[1] ~= 'active' then
  redis.call('HSET', KEYS[2], 'revoked', '1', 'reason', 'replay-detected')
  return {3, '', '0', 0}
end
local gen = tonumber(current[3]) + 1
redis.call('HSET', KEYS[1], 'state', 'superseded')
redis.call('HSET', KEYS[3], 'state', 'active', 'fam', ARGV[1], 'gen', gen, 'parent', ARGV[9],
  'access', ARGV[3], 'access_exp', ARGV[4], 'exp', ARGV[5], 'sid', ARGV[7], 'uid', ARGV[8])
redis.call('PEXPIRE', KEYS[3], ARGV[6])
redis.call('HSET', KEYS[2], 'current', ARGV[2], 'gen', gen)
redis.call('PEXPIRE', KEYS[2], ARGV[6])
return {0, current[4] or '', current[5] or '0', gen}
`)

// RedisFamilyStore implements [FamilyStore].
type RedisFamilyStore struct {
	client redis.UniversalClient
}

// NewRedisFamilyStore creates a Redis-backed family store.
func NewRedisFamilyStore(client redis.UniversalClient) *RedisFamilyStore {
	return &RedisFamilyStore{client: client}
}

func jtiKey(jti string) string {
	return constants.RedisPrefixTokenJTI + jti
}

func familyKey(familyID string) string {
	return constants.RedisPrefixTokenFamily + familyID
}

// Create implements [FamilyStore].
func (store *RedisFamilyStore) Create(context context.Context, record Record, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("redis_token_family_create_failed: non-positive ttl")
	}

	_, err := store.client.TxPipelined(context, func(pipe redis.Pipeliner) error {
		pipe.HSet(context, familyKey(record.FamilyID),
			"revoked", "0",
			"current", record.JTI,
			"gen", record.Generation,
			"uid", record.UserID,
			"sid", record.SessionID,
		)
		pipe.PExpire(context, familyKey(record.FamilyID), ttl)
		pipe.HSet(context, jtiKey(record.JTI),
			"state", "active",
			"fam", record.FamilyID,
			"gen", record.Generation,
			"parent", record.ParentJTI,
			"access", record.AccessJTI,
			"access_exp", record.AccessExpiresAt.UnixMilli(),
			"exp", record.ExpiresAt.UnixMilli(),
			"sid", record.SessionID,
			"uid", record.UserID,
		)
		pipe.PExpire(context, jtiKey(record.JTI), ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis_token_family_create_failed: %w", err)
	}
	return nil
}

// Rotate implements [FamilyStore].
func (store *RedisFamilyStore) Rotate(context context.Context, presentedJTI, familyID string, next Record, ttl time.Duration) (RotateStatus, Record, error) {
	if ttl <= 0 {
		return 0, Record{}, fmt.Errorf("redis_token_family_rotate_failed: non-positive ttl")
	}

	reply, err := rotateFamilyLua.Run(context, store.client,
		[]string{jtiKey(presentedJTI), familyKey(familyID), jtiKey(next.JTI)},
		familyID,
		next.JTI,
		next.AccessJTI,
		next.AccessExpiresAt.UnixMilli(),
		next.ExpiresAt.UnixMilli(),
		ttl.Milliseconds(),
		next.SessionID,
		next.UserID,
		presentedJTI,
	).Slice()
	if err != nil {
		return 0, Record{}, fmt.Errorf("redis_token_family_rotate_failed: %w", err)
	}
	if len(reply) != 4 {
		return 0, Record{}, fmt.Errorf("redis_token_family_rotate_failed: unexpected reply length %d", len(reply))
	}

	status, _ := reply[0].(int64)
	if RotateStatus(status) != RotateOK {
		return RotateStatus(status), Record{}, nil
	}

	previous := Record{JTI: presentedJTI, FamilyID: familyID}
	previous.AccessJTI, _ = reply[1].(string)
	if raw, ok := reply[2].(string); ok {
		if millis, parseErr := strconv.ParseInt(raw, 10, 64); parseErr == nil {
			previous.AccessExpiresAt = time.UnixMilli(millis)
		}
	}
	generation, _ := reply[3].(int64)
	previous.Generation = int(generation) - 1

	return RotateOK, previous, nil
}

// revokeFamilyLua flags a family only while it still exists.
// HSET on a missing key would resurrect it without a TTL.
// KEYS[1] = family key, ARGV[1] = reason
var revokeFamilyLua = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	redis.call('HSET', KEYS[1], 'revoked', '1', 'reason', ARGV[1])
	return 1
end
return 0
`)

// Revoke implements [FamilyStore].
func (store *RedisFamilyStore) Revoke(context context.Context, familyID, reason string) error {
	if err := revokeFamilyLua.Run(context, store.client, []string{familyKey(familyID)}, reason).Err(); err != nil {
		return fmt.Errorf("redis_token_family_revoke_failed: %w", err)
	}
	return nil
}

// IsRevoked implements [FamilyStore].
func (store *RedisFamilyStore) IsRevoked(context context.Context, familyID string) (bool, error) {
	revoked, err := store.client.HGet(context, familyKey(familyID), "revoked").Result()
	if errors.Is(err, redis.Nil) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis_token_family_lookup_failed: %w", err)
	}
	return revoked == "1", nil
}
