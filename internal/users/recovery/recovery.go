// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package recovery manages single-use backup codes for accounts with MFA.

A batch holds ten codes of the form xxxx-xxxx-xxxx-xxxx. Only bcrypt hashes of
the canonical form (lowercase, no separators) are stored, and the cleartext
leaves the server exactly once. Generating a batch replaces the previous one
entirely.

Failed guesses are counted twice: on the record that was tried (capped at
five per code) and in a per-user Redis budget, so an attacker cannot reset
the cap by spreading guesses over different codes.
*/
package recovery

import (
	"context"
	"errors"
	"time"
)

// # Parameters

const (
	BatchSize         = 10
	GroupSize         = 4
	GroupCount        = 4
	CanonicalLength   = GroupSize * GroupCount
	MaxFailedAttempts = 5
	UserFailureBudget = 10
	UserFailureWindow = 15 * time.Minute
	alphabet          = "abcdefghijklmnopqrstuvwxyz0123456789"
)

// # Errors

var (
	ErrInvalidFormat   = errors.New("recovery: code must be 16 letters or digits")
	ErrInvalidCode     = errors.New("recovery: code does not match")
	ErrAlreadyUsed     = errors.New("recovery: code already used")
	ErrExpired         = errors.New("recovery: code expired")
	ErrTooManyAttempts = errors.New("recovery: too many failed attempts")
	ErrInvalidPassword = errors.New("recovery: password confirmation failed")
	ErrMFARequired     = errors.New("recovery: enable a second factor first")
)

// # Domain Entities

// Code is one stored recovery code.
type Code struct {
	ID             string
	UserID         string
	CodeHash       string
	Used           bool
	UsedAt         *time.Time
	UsedIP         string
	UsedUserAgent  string
	FailedAttempts int
	ExpiresAt      *time.Time
	CreatedAt      time.Time
}

// Exhausted reports whether the per-code failure cap has been reached.
func (code *Code) Exhausted() bool {
	return code.FailedAttempts >= MaxFailedAttempts
}

// ExpiredAt reports whether the optional expiry has passed.
func (code *Code) ExpiredAt(now time.Time) bool {
	return code.ExpiresAt != nil && !now.Before(*code.ExpiresAt)
}

// Usable reports whether the code could still complete a sign-in.
func (code *Code) Usable(now time.Time) bool {
	return !code.Used && !code.Exhausted() && !code.ExpiredAt(now)
}

// Origin records where a code was redeemed from.
type Origin struct {
	IP        string
	UserAgent string
}

// Status drives the "regenerate your codes" prompt.
type Status struct {
	Enabled       bool `json:"enabled"`
	HasValidCodes bool `json:"hasValidCodes"`
	Remaining     int  `json:"remaining"`
	Total         int  `json:"total"`
}

// # Repository Contract

// Repository persists recovery codes.
type Repository interface {

	// ReplaceAll deletes every code of the user and inserts codes, atomically.
	ReplaceAll(context context.Context, userID string, codes []Code) error

	// List returns the user's codes in creation order.
	List(context context.Context, userID string) ([]Code, error)

	/*
		MarkUsed flips the used flag if it is still unset.

		Returns:
		  - bool: false when another request redeemed the code first
		  - error: persistence failures
	*/
	MarkUsed(context context.Context, codeID string, at time.Time, origin Origin) (bool, error)

	// IncrementFailure adds one failed attempt to the record.
	IncrementFailure(context context.Context, codeID string) error
}
