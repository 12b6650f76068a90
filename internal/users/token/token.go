// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package token issues, rotates, validates and revokes access/refresh pairs.

Every login starts a token family. Each refresh supersedes the presented
refresh token and mints generation+1 of the same family. Presenting a
superseded refresh token is treated as theft: the whole family is revoked
and the caller gets a replay failure.

Validation of a protected request checks, in order: signature, expiry,
issuer/audience/type, blacklist membership, family revocation and the
token version against the live user record.
*/
package token

import (
	"errors"
	"fmt"
	"time"
)

// # Defaults

const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 24 * time.Hour
)

// # Failure Taxonomy

// FailureKind classifies a rejected token. All kinds become 401 at the HTTP boundary.
type FailureKind string

const (
	KindExpired          FailureKind = "expired"
	KindInvalidSignature FailureKind = "invalid_signature"
	KindInvalidClaims    FailureKind = "invalid_claims"
	KindBlacklisted      FailureKind = "blacklisted"
	KindVersionMismatch  FailureKind = "version_mismatch"
	KindRevoked          FailureKind = "revoked"
	KindReplay           FailureKind = "replay_detected"
)

// ValidationError carries the reason a token was rejected.
type ValidationError struct {
	Kind  FailureKind
	Cause error
}

func (e *ValidationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("token: %s: %v", e.Kind, e.Cause)
	}
	return "token: " + string(e.Kind)
}

func (e *ValidationError) Unwrap() error { return e.Cause }

func reject(kind FailureKind, cause error) error {
	return &ValidationError{Kind: kind, Cause: cause}
}

// KindOf extracts the failure kind, or "" for non-validation errors.
func KindOf(err error) FailureKind {
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return validationErr.Kind
	}
	return ""
}

// # Values

// Subject is the identity a pair is minted for.
type Subject struct {
	UserID       string
	Username     string
	Role         string
	TokenVersion int
}

// Pair is what a successful sign-in or refresh hands back to the client.
type Pair struct {
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken"`
	TokenType        string    `json:"tokenType"`
	ExpiresIn        int       `json:"expiresIn"`
	ExpiresAt        time.Time `json:"expiresAt"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
	FamilyID         string    `json:"-"`
	SessionID        string    `json:"-"`
	Generation       int       `json:"-"`
}
