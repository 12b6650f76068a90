// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package blacklist tracks tokens revoked before their natural expiry.

Entries are keyed by token identifier (jti) and kept only until the token
would have expired anyway. Two backends exist:

  - [Memory]: the default. Mutex-guarded map plus a min-heap ordered by expiry.
    Bounded capacity, expiry-order eviction. State is lost on restart.
  - [Redis]: SET NX PX keys. Shared across instances and survives restarts.

A [Sweeper] prunes expired entries from the memory backend in the background.
*/
package blacklist

import (
	"context"
	"errors"
	"time"
)

// Reason records why an entry was added.
type Reason string

const (
	ReasonSignOut         Reason = "sign-out"
	ReasonVersionChange   Reason = "version-change"
	ReasonPasswordChanged Reason = "password-changed"
	ReasonRevoked         Reason = "revoked"
	ReasonReplayDetected  Reason = "replay-detected"
	ReasonRotated         Reason = "rotated"
)

// DefaultCapacity bounds the memory backend.
const DefaultCapacity = 10_000

// ErrAlreadyBlacklisted is the replay-detection signal of [Store.AddUnique].
var ErrAlreadyBlacklisted = errors.New("blacklist: token already blacklisted")

// Store is the contract shared by both backends.
type Store interface {

	// Add is idempotent. Entries whose expiry is already past are ignored.
	Add(context context.Context, jti string, expiresAt time.Time, reason Reason) error

	// AddUnique behaves like Add but returns ErrAlreadyBlacklisted when jti is present.
	AddUnique(context context.Context, jti string, expiresAt time.Time, reason Reason) error

	// Contains reports membership of a live entry.
	Contains(context context.Context, jti string) (bool, error)

	// Cleanup removes expired entries and returns how many were dropped.
	Cleanup(context context.Context) (int, error)
}
