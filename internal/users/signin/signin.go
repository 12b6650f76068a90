// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package signin drives the multi-step sign-in flow.

	AwaitingCredentials ─► CredentialsVerified ─┬─► Authenticated
	                                            ├─► AwaitingMFASelection ─┐
	                                            ├─► AwaitingTOTP ◄────────┤
	                                            ├─► AwaitingEmailCode ◄───┤
	                                            └─► AwaitingRecoveryCode ◄┘
	                                                        │
	                                                        ▼
	                                                  Authenticated

Password failures are counted per normalized identifier; the fifth
consecutive failure inside the window moves the identifier to Locked until the
window expires. A pending second factor is threaded through an opaque state
token that lives in Redis for a few minutes and is consumed on success or
cancel.
*/
package signin

import (
	"errors"
	"fmt"
	"time"

	"github.com/taibuivan/shopauth/internal/users/account"
	"github.com/taibuivan/shopauth/internal/users/session"
	"github.com/taibuivan/shopauth/internal/users/token"
)

// # States

// State is a node of the sign-in machine.
type State string

const (
	StateAwaitingCredentials  State = "awaiting_credentials"
	StateCredentialsVerified  State = "credentials_verified"
	StateAwaitingMFASelection State = "awaiting_mfa_selection"
	StateAwaitingTOTP         State = "awaiting_totp"
	StateAwaitingEmailCode    State = "awaiting_email_code"
	StateAwaitingRecoveryCode State = "awaiting_recovery_code"
	StateAuthenticated        State = "authenticated"
	StateLocked               State = "locked"
)

// # Methods

// Method is a second factor the user can pick.
type Method string

const (
	MethodTOTP     Method = "totp"
	MethodEmail    Method = "email"
	MethodRecovery Method = "recovery_code"
)

// waitingState maps a method to the state that waits for it.
func (method Method) waitingState() (State, bool) {
	switch method {
	case MethodTOTP:
		return StateAwaitingTOTP, true
	case MethodEmail:
		return StateAwaitingEmailCode, true
	case MethodRecovery:
		return StateAwaitingRecoveryCode, true
	}
	return "", false
}

// # Defaults

const (
	DefaultLockoutThreshold = 5
	DefaultLockoutWindow    = 15 * time.Minute
	DefaultStateTTL         = 5 * time.Minute
)

// # Errors

var (
	// ErrInvalidCredentials is returned for unknown identifiers and wrong passwords alike.
	ErrInvalidCredentials = errors.New("signin: invalid credentials")

	// ErrInvalidStateToken means the state token is unknown, expired or already consumed.
	ErrInvalidStateToken = errors.New("signin: invalid or expired state token")

	// ErrMethodNotAvailable means the chosen factor is not enabled for the user.
	ErrMethodNotAvailable = errors.New("signin: method not available")

	// ErrWrongStep means the state token is waiting for a different factor.
	ErrWrongStep = errors.New("signin: state token is waiting for another step")
)

// LockedError is returned while an identifier is locked out.
type LockedError struct {
	RetryAfter time.Duration
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("signin: account locked for %s", e.RetryAfter)
}

// RetryAfterSeconds rounds up to whole seconds, never below one.
func (e *LockedError) RetryAfterSeconds() int {
	seconds := int((e.RetryAfter + time.Second - 1) / time.Second)
	if seconds < 1 {
		return 1
	}
	return seconds
}

// # Inputs & Outputs

// Credentials is a first-factor attempt.
type Credentials struct {
	Identifier string
	Password   string
	Device     session.Device
}

// Outcome is the result of any transition.
//
// Exactly one of Tokens and StateToken is set: Tokens when the flow reached
// [StateAuthenticated], StateToken when a second factor is pending.
type Outcome struct {
	State      State
	User       *account.User
	Tokens     *token.Pair
	StateToken string
	Methods    []Method

	// RequiresEmailVerification flags accounts that signed in with an unconfirmed address.
	RequiresEmailVerification bool
}
