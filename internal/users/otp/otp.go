// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package otp issues and verifies six-digit email codes.

Three flows share the machinery and differ only by attempt cap:

  - [TypeVerification]: initial email ownership check (5 attempts).
  - [TypeMFA]: email second factor during sign-in (3 attempts).
  - [TypePasswordReset]: forgot-password confirmation (5 attempts).

A code lives for five minutes, is unique per (user, type), and a new one cannot
be requested for the same pair within 120 seconds. Lookup, attempt counting and
consumption run as a single Redis script so parallel guesses cannot exceed the cap.
*/
package otp

import (
	"errors"
	"fmt"
	"time"

	"github.com/taibuivan/shopauth/internal/platform/sec"
)

// # Code Types

// Type scopes a code to one flow.
type Type string

const (
	TypeVerification  Type = "verification"
	TypeMFA           Type = "mfa"
	TypePasswordReset Type = "password_reset"
)

// MaxAttempts returns the verification cap for the flow.
func (codeType Type) MaxAttempts() int {
	if codeType == TypeMFA {
		return 3
	}
	return 5
}

// Valid reports whether codeType is one of the known flows.
func (codeType Type) Valid() bool {
	switch codeType {
	case TypeVerification, TypeMFA, TypePasswordReset:
		return true
	}
	return false
}

// # Defaults

const (
	// CodeLength is the number of decimal digits in every code.
	CodeLength = 6

	DefaultTTL      = 5 * time.Minute
	DefaultCooldown = 120 * time.Second
)

// # Errors

var (
	// ErrNotFound means no code is pending for the (user, type) pair.
	ErrNotFound = errors.New("otp: no pending code")

	// ErrExpired means the pending code outlived its five minutes.
	ErrExpired = errors.New("otp: code expired")

	// ErrInvalidType is returned for an unknown flow.
	ErrInvalidType = errors.New("otp: unknown code type")
)

// AttemptKind distinguishes the two attempt-capped failures.
type AttemptKind string

const (
	KindMismatch        AttemptKind = "mismatch"
	KindTooManyAttempts AttemptKind = "too_many_attempts"
)

// AttemptError is a failed verification that consumed an attempt (or found none left).
type AttemptError struct {
	Kind      AttemptKind
	Remaining int
}

func (e *AttemptError) Error() string {
	return fmt.Sprintf("otp: %s (%d attempts remaining)", e.Kind, e.Remaining)
}

// CooldownError means a code for the pair was issued too recently.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("otp: cooldown active for %s", e.Remaining)
}

// RetryAfterSeconds rounds the remaining cooldown up to whole seconds.
func (e *CooldownError) RetryAfterSeconds() int {
	seconds := int(e.Remaining / time.Second)
	if e.Remaining%time.Second != 0 {
		seconds++
	}
	return seconds
}

// # Generators

// Generator produces the cleartext code. Production code uses [CryptoGenerator];
// tests inject [FixedGenerator] through configuration.
type Generator interface {
	Generate() (string, error)
}

// CryptoGenerator draws digits from crypto/rand.
type CryptoGenerator struct{}

// Generate implements [Generator].
func (CryptoGenerator) Generate() (string, error) {
	return sec.RandomDigits(CodeLength)
}

// FixedGenerator always returns the same code.
type FixedGenerator struct {
	Code string
}

// Generate implements [Generator].
func (generator FixedGenerator) Generate() (string, error) {
	return generator.Code, nil
}

// # Issued Code

// Issued is returned to the caller exactly once so it can be delivered.
type Issued struct {
	Code      string
	Type      Type
	ExpiresAt time.Time
}
