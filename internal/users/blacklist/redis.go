// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package blacklist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/taibuivan/shopauth/internal/platform/constants"
)

// Redis stores each entry as a key whose TTL equals the token's remaining lifetime.
type Redis struct {
	client redis.UniversalClient
	now    func() time.Time
}

// NewRedis creates a Redis-backed store.
func NewRedis(client redis.UniversalClient) *Redis {
	return &Redis{client: client, now: time.Now}
}

func blacklistKey(jti string) string {
	return constants.RedisPrefixBlacklist + jti
}

// Add implements [Store].
func (store *Redis) Add(context context.Context, jti string, expiresAt time.Time, reason Reason) error {
	_, err := store.setNX(context, jti, expiresAt, reason)
	return err
}

// AddUnique implements [Store].
func (store *Redis) AddUnique(context context.Context, jti string, expiresAt time.Time, reason Reason) error {
	created, err := store.setNX(context, jti, expiresAt, reason)
	if err != nil {
		return err
	}
	if !created {
		return ErrAlreadyBlacklisted
	}
	return nil
}

// Contains implements [Store].
func (store *Redis) Contains(context context.Context, jti string) (bool, error) {
	_, err := store.client.Get(context, blacklistKey(jti)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis_blacklist_lookup_failed: %w", err)
	}
	return true, nil
}

// Cleanup implements [Store]. Redis expires keys on its own.
func (store *Redis) Cleanup(_ context.Context) (int, error) {
	return 0, nil
}

// setNX reports whether a new key was written. A past expiry writes nothing but
// counts as created so AddUnique does not report a replay for a dead token.
func (store *Redis) setNX(context context.Context, jti string, expiresAt time.Time, reason Reason) (bool, error) {
	ttl := expiresAt.Sub(store.now())
	if ttl <= 0 {
		return true, nil
	}

	created, err := store.client.SetNX(context, blacklistKey(jti), string(reason), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis_blacklist_add_failed: %w", err)
	}
	return created, nil
}
