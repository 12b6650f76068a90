// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package otp

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/taibuivan/shopauth/internal/platform/constants"
)

// # Store Contract

// Status is the outcome of one atomic verification.
type Status int

const (
	StatusConsumed Status = iota
	StatusNotFound
	StatusExpired
	StatusExhausted
	StatusMismatch
)

// Store persists pending codes. Implementations must make Consume atomic per (user, type).
type Store interface {

	/*
		Save replaces the pending code unless the cooldown is still running.

		Returns:
		  - time.Duration: remaining cooldown, zero when the code was stored
		  - error: storage failures
	*/
	Save(context context.Context, userID string, codeType Type, codeHash string, now, expiresAt time.Time, cooldown time.Duration) (time.Duration, error)

	/*
		Consume checks codeHash, counts the attempt and deletes the code on a match.

		Returns:
		  - Status: what happened
		  - int: attempts remaining after this call
		  - error: storage failures
	*/
	Consume(context context.Context, userID string, codeType Type, codeHash string, maxAttempts int, now time.Time) (Status, int, error)

	// Pending returns the expiry of a code that can still be redeemed, or the zero time.
	Pending(context context.Context, userID string, codeType Type, maxAttempts int, now time.Time) (time.Time, error)

	// Delete drops any pending code for the pair together with its cooldown.
	Delete(context context.Context, userID string, codeType Type) error
}

// # Redis Implementation

// saveCodeLua atomically enforces the cooldown and overwrites the code hash.
// KEYS[1] = code key, KEYS[2] = cooldown key
// ARGV[1] = code hash, ARGV[2] = now (ms), ARGV[3] = expires at (ms),
// ARGV[4] = cooldown (ms), ARGV[5] = code key TTL (ms)
//
// Returns the remaining cooldown in ms, or 0 when the code was saved.
var saveCodeLua = redis.NewScript(`
local last = redis.call('GET', KEYS[2])
if last then
  local remaining = tonumber(ARGV[4]) - (tonumber(ARGV[2]) - tonumber(last))
  if remaining > 0 then
    return remaining
  end
end
redis.call('DEL', KEYS[1])
redis.call('HSET', KEYS[1], 'hash', ARGV[1], 'attempts', '0', 'expires_at', ARGV[3], 'requested_at', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[5])
redis.call('SET', KEYS[2], ARGV[2], 'PX', ARGV[4])
return 0
`)

// consumeCodeLua performs lookup, attempt increment and consumption in one step.
// A match also lifts the resend cooldown.
// KEYS[1] = code key, KEYS[2] = cooldown key
// ARGV[1] = provided hash, ARGV[2] = max attempts, ARGV[3] = now (ms)
//
// Returns {status, remaining}.
var consumeCodeLua = redis.NewScript(`
local fields = redis.call('HMGET', KEYS[1], 'hash', 'attempts', 'expires_at')
if not fields[1] then
  return {1, 0}
end
local cap = tonumber(ARGV[2])
if tonumber(ARGV[3]) > tonumber(fields[3]) then
  return {2, 0}
end
if tonumber(fields[2]) >= cap then
  return {3, 0}
end
local attempts = redis.call('HINCRBY', KEYS[1], 'attempts', 1)
if fields[1] == ARGV[1] then
  redis.call('DEL', KEYS[1], KEYS[2])
  return {0, cap - attempts}
end
return {4, cap - attempts}
`)

// RedisStore implements [Store] on Redis hashes.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore creates a Redis-backed code store.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func codeKey(userID string, codeType Type) string {
	return constants.RedisPrefixCode + string(codeType) + ":" + userID
}

func cooldownKey(userID string, codeType Type) string {
	return constants.RedisPrefixCodeCooldown + string(codeType) + ":" + userID
}

// Save implements [Store].
func (store *RedisStore) Save(context context.Context, userID string, codeType Type, codeHash string, now, expiresAt time.Time, cooldown time.Duration) (time.Duration, error) {

	// Keep the hash around for one extra lifetime so late guesses report "expired" instead of "not found".
	keyTTL := 2 * expiresAt.Sub(now)
	if keyTTL < cooldown {
		keyTTL = cooldown
	}

	remaining, err := saveCodeLua.Run(context, store.client,
		[]string{codeKey(userID, codeType), cooldownKey(userID, codeType)},
		codeHash,
		now.UnixMilli(),
		expiresAt.UnixMilli(),
		cooldown.Milliseconds(),
		keyTTL.Milliseconds(),
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("redis_otp_save_failed: %w", err)
	}

	return time.Duration(remaining) * time.Millisecond, nil
}

// Consume implements [Store].
func (store *RedisStore) Consume(context context.Context, userID string, codeType Type, codeHash string, maxAttempts int, now time.Time) (Status, int, error) {
	values, err := consumeCodeLua.Run(context, store.client,
		[]string{codeKey(userID, codeType), cooldownKey(userID, codeType)},
		codeHash,
		maxAttempts,
		now.UnixMilli(),
	).Int64Slice()
	if err != nil {
		return 0, 0, fmt.Errorf("redis_otp_consume_failed: %w", err)
	}
	if len(values) != 2 {
		return 0, 0, fmt.Errorf("redis_otp_consume_failed: unexpected reply length %d", len(values))
	}

	return Status(values[0]), int(values[1]), nil
}

// Pending implements [Store].
func (store *RedisStore) Pending(context context.Context, userID string, codeType Type, maxAttempts int, now time.Time) (time.Time, error) {
	fields, err := store.client.HMGet(context, codeKey(userID, codeType), "attempts", "expires_at").Result()
	if err != nil {
		return time.Time{}, fmt.Errorf("redis_otp_pending_failed: %w", err)
	}

	attempts, _ := fields[0].(string)
	expires, _ := fields[1].(string)
	if attempts == "" || expires == "" {
		return time.Time{}, nil
	}

	used, err := strconv.Atoi(attempts)
	if err != nil {
		return time.Time{}, fmt.Errorf("redis_otp_pending_failed: %w", err)
	}
	millis, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("redis_otp_pending_failed: %w", err)
	}

	expiresAt := time.UnixMilli(millis)
	if used >= maxAttempts || !now.Before(expiresAt) {
		return time.Time{}, nil
	}
	return expiresAt, nil
}

// Delete implements [Store].
func (store *RedisStore) Delete(context context.Context, userID string, codeType Type) error {
	if err := store.client.Del(context, codeKey(userID, codeType), cooldownKey(userID, codeType)).Err(); err != nil {
		return fmt.Errorf("redis_otp_delete_failed: %w", err)
	}
	return nil
}
