// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package account is the credential store: the User entity and its repositories.

Every other identity package reads users through [UserRepository]. The token
version stored here is the single counter that voids outstanding tokens when
it moves (password change, email change, password reset).

# Lookup

Usernames and emails are matched through their normalized key
([normalize.Identifier]), so "Alice" and "ａｌｉｃｅ" resolve to the same row.
*/
package account

import (
	"context"
	"errors"
	"time"

	"github.com/taibuivan/shopauth/internal/platform/sec"
	"github.com/taibuivan/shopauth/pkg/normalize"
)

// # Domain Entities

// User represents a registered shop account.
type User struct {
	ID              string       `json:"id"`
	Username        string       `json:"username"`
	DisplayName     string       `json:"displayName"`
	Email           string       `json:"email"`
	PasswordHash    string       `json:"-"`
	EmailVerified   bool         `json:"emailVerified"`
	Role            sec.UserRole `json:"role"`
	TokenVersion    int          `json:"-"`
	TOTPEnabled     bool         `json:"totpEnabled"`
	TOTPSecret      string       `json:"-"`
	EmailMFAEnabled bool         `json:"emailMfaEnabled"`
	CreatedAt       time.Time    `json:"createdAt"`
	UpdatedAt       time.Time    `json:"updatedAt"`
}

// HasPassword reports whether the account can sign in with a password at all.
func (user *User) HasPassword() bool {
	return user.PasswordHash != ""
}

// MFAEnabled reports whether any second factor is active.
func (user *User) MFAEnabled() bool {
	return user.TOTPEnabled || user.EmailMFAEnabled
}

// UsernameKey is the normalized username used for uniqueness and lookup.
func (user *User) UsernameKey() string {
	return normalize.Identifier(user.Username)
}

// EmailKey is the normalized email used for uniqueness and lookup.
func (user *User) EmailKey() string {
	return normalize.Identifier(user.Email)
}

// # Errors

var (
	// ErrUsernameTaken is returned by Create when the username key already exists.
	ErrUsernameTaken = errors.New("account: username already taken")

	// ErrEmailTaken is returned by Create or UpdateEmail when the email key already exists.
	ErrEmailTaken = errors.New("account: email already registered")
)

// # Repository Contract

// UserRepository defines the data access contract for user accounts.
// Lookups of missing or deleted users return [dberr.ErrNotFound].
type UserRepository interface {

	/*
		Create persists a brand-new account.

		Parameters:
		  - context: context.Context
		  - user: *User (ID and timestamps are filled in when empty)

		Returns:
		  - error: ErrUsernameTaken, ErrEmailTaken or persistence failures
	*/
	Create(context context.Context, user *User) error

	// FindByID returns the account with the given ID.
	FindByID(context context.Context, id string) (*User, error)

	// FindByIdentifier resolves a sign-in identifier (username or email).
	FindByIdentifier(context context.Context, identifier string) (*User, error)

	// FindByEmail returns the account whose normalized email matches.
	FindByEmail(context context.Context, email string) (*User, error)

	/*
		UpdatePassword replaces the password hash and bumps the token version.

		Returns:
		  - int: the new token version
		  - error: persistence failures
	*/
	UpdatePassword(context context.Context, userID, passwordHash string) (int, error)

	/*
		UpdateEmail replaces the email, clears the verified flag and bumps the token version.

		Returns:
		  - int: the new token version
		  - error: ErrEmailTaken or persistence failures
	*/
	UpdateEmail(context context.Context, userID, email string) (int, error)

	// BumpTokenVersion increments the token version and returns the new value.
	BumpTokenVersion(context context.Context, userID string) (int, error)

	// MarkVerified sets the email-verified flag.
	MarkVerified(context context.Context, userID string) error

	// SetTOTP stores the TOTP secret and flag. An empty secret disables TOTP.
	SetTOTP(context context.Context, userID, secret string, enabled bool) error

	// SetEmailMFA toggles the email second factor.
	SetEmailMFA(context context.Context, userID string, enabled bool) error

	// TokenVersion returns the live token version without hydrating the full row.
	TokenVersion(context context.Context, userID string) (int, error)
}
