// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package totp manages authenticator-app second factors (RFC 6238).

Enrolment is two-phase: [Manager.Setup] parks a fresh secret in Redis for ten
minutes and [Manager.VerifyAndEnable] persists it once the user proves their
app produces matching codes. Steady-state checks go through [Manager.Verify],
which counts failures per user and refuses a code whose time step was
already accepted.

Codes are 6 digits, SHA1, 30 second period, one step of skew either way.
*/
package totp

import (
	"errors"
	"fmt"
	"time"
)

// # Parameters

const (
	Period         = 30
	Skew           = 1
	PendingTTL     = 10 * time.Minute
	MaxFailures    = 5
	FailureWindow  = 15 * time.Minute
	defaultIssuer  = "Shop"
	usedStepMargin = (2*Skew + 2) * Period * time.Second
)

// # Errors

var (
	ErrInvalidCode      = errors.New("totp: invalid code")
	ErrCodeReused       = errors.New("totp: code already used")
	ErrTooManyAttempts  = errors.New("totp: too many failed attempts")
	ErrNotEnabled       = errors.New("totp: not enabled")
	ErrAlreadyEnabled   = errors.New("totp: already enabled")
	ErrNoPendingSetup   = errors.New("totp: no pending setup, start again")
	ErrInvalidPassword  = errors.New("totp: password confirmation failed")
	ErrPasswordRequired = errors.New("totp: account has no password")
)

// InvalidCodeError is a rejected code with the number of tries left before lockout.
type InvalidCodeError struct {
	Remaining int
}

func (e *InvalidCodeError) Error() string {
	return fmt.Sprintf("totp: invalid code (%d attempts remaining)", e.Remaining)
}

// Is makes errors.Is(err, ErrInvalidCode) hold.
func (e *InvalidCodeError) Is(target error) bool { return target == ErrInvalidCode }

// LockedError is returned while the failure counter is at its cap.
type LockedError struct {
	RetryAfter time.Duration
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("totp: locked for %s", e.RetryAfter)
}

// Is makes errors.Is(err, ErrTooManyAttempts) hold.
func (e *LockedError) Is(target error) bool { return target == ErrTooManyAttempts }

// RetryAfterSeconds rounds up to whole seconds for the Retry-After header.
func (e *LockedError) RetryAfterSeconds() int {
	seconds := int((e.RetryAfter + time.Second - 1) / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	return seconds
}

// # Values

// Provisioning is what the client needs to enrol an authenticator app.
type Provisioning struct {
	Secret string `json:"secret"`
	URI    string `json:"uri"`
}
