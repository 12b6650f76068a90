// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package signin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/taibuivan/shopauth/internal/platform/constants"
	"github.com/taibuivan/shopauth/internal/platform/sec"
	"github.com/taibuivan/shopauth/pkg/normalize"
)

// countFailureLua increments the counter and starts the window on the first failure.
// KEYS[1] = counter, ARGV[1] = window (ms). Returns {count, ttl ms}.
var countFailureLua = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return {count, redis.call('PTTL', KEYS[1])}
`)

// Lockout counts consecutive password failures per identifier in Redis, so
// the state survives restarts and is shared by every replica.
type Lockout struct {
	client    redis.UniversalClient
	threshold int
	window    time.Duration
}

// NewLockout creates a lockout tracker. Non-positive arguments fall back to the defaults.
func NewLockout(client redis.UniversalClient, threshold int, window time.Duration) *Lockout {
	if threshold < 1 {
		threshold = DefaultLockoutThreshold
	}
	if window <= 0 {
		window = DefaultLockoutWindow
	}
	return &Lockout{client: client, threshold: threshold, window: window}
}

// lockoutKey hashes the normalized identifier so raw emails never appear in key names.
func lockoutKey(identifier string) string {
	return constants.RedisPrefixLockout + sec.HashToken(normalize.Identifier(identifier))
}

// Check returns a [*LockedError] if the identifier is currently locked.
func (lockout *Lockout) Check(context context.Context, identifier string) error {
	key := lockoutKey(identifier)

	count, err := lockout.client.Get(context, key).Int()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("lockout_check_failed: %w", err)
	}
	if count < lockout.threshold {
		return nil
	}

	ttl, err := lockout.client.PTTL(context, key).Result()
	if err != nil {
		return fmt.Errorf("lockout_ttl_failed: %w", err)
	}
	if ttl <= 0 {
		ttl = time.Second
	}
	return &LockedError{RetryAfter: ttl}
}

/*
RecordFailure counts one wrong password.

Returns:
  - int: failures inside the current window
  - bool: true when this failure reached the threshold
  - error: Redis failures
*/
func (lockout *Lockout) RecordFailure(context context.Context, identifier string) (int, bool, error) {
	values, err := countFailureLua.Run(context, lockout.client, []string{lockoutKey(identifier)},
		lockout.window.Milliseconds()).Int64Slice()
	if err != nil {
		return 0, false, fmt.Errorf("lockout_record_failed: %w", err)
	}
	count := int(values[0])
	return count, count >= lockout.threshold, nil
}

// Reset clears the counter after a successful password check.
func (lockout *Lockout) Reset(context context.Context, identifier string) error {
	if err := lockout.client.Del(context, lockoutKey(identifier)).Err(); err != nil {
		return fmt.Errorf("lockout_reset_failed: %w", err)
	}
	return nil
}
