// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package auth implements the account lifecycle around sign-in.

It covers registration, email verification, password reset and the
credential changes that invalidate existing tokens. Sign-in itself is driven
by the signin package; this package exposes both over HTTP.

A password or email change bumps the account's token version, which voids
every token minted before it without enumerating them. The change also
signs out every device.
*/
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/taibuivan/shopauth/internal/platform/ctxutil"
	"github.com/taibuivan/shopauth/internal/platform/dberr"
	"github.com/taibuivan/shopauth/internal/platform/sec"
	"github.com/taibuivan/shopauth/internal/users/account"
	"github.com/taibuivan/shopauth/internal/users/blacklist"
	"github.com/taibuivan/shopauth/internal/users/otp"
	"github.com/taibuivan/shopauth/internal/users/password"
	"github.com/taibuivan/shopauth/pkg/uuid"
)

// # Contracts

// CodeService issues and checks email codes.
type CodeService interface {
	Issue(context context.Context, userID string, codeType otp.Type) (otp.Issued, error)
	Verify(context context.Context, userID string, codeType otp.Type, code string) error
	Invalidate(context context.Context, userID string, codeType otp.Type) error
}

// Mailer delivers account emails.
type Mailer interface {
	SendCode(context context.Context, user *account.User, issued otp.Issued) error
	SendPasswordChanged(context context.Context, user *account.User) error
}

// TokenRetirer blacklists the caller's own access token.
type TokenRetirer interface {
	Blacklist(context context.Context, claims *sec.AuthClaims, reason blacklist.Reason) error
}

// SessionRevoker signs devices out.
type SessionRevoker interface {
	RevokeAll(context context.Context, userID string) error
}

// # Errors

var (
	ErrInvalidPassword  = errors.New("auth: current password is incorrect")
	ErrSamePassword     = errors.New("auth: new password must differ from the current one")
	ErrAlreadyVerified  = errors.New("auth: email already verified")
	ErrInvalidResetCode = errors.New("auth: invalid or expired reset code")
	ErrSameEmail        = errors.New("auth: new email matches the current one")
)

// # Service

// Service implements account use cases.
type Service struct {
	users    account.UserRepository
	policy   password.Policy
	codes    CodeService
	mailer   Mailer
	tokens   TokenRetirer
	sessions SessionRevoker
}

// NewService constructs the account service.
func NewService(
	users account.UserRepository,
	policy password.Policy,
	codes CodeService,
	mailer Mailer,
	tokens TokenRetirer,
	sessions SessionRevoker,
) *Service {
	return &Service{
		users:    users,
		policy:   policy,
		codes:    codes,
		mailer:   mailer,
		tokens:   tokens,
		sessions: sessions,
	}
}

// # Registration

// RegisterInput holds the data required to create an account.
type RegisterInput struct {
	Username    string
	Email       string
	Password    string
	DisplayName string
}

/*
Register validates the password, persists the account and mails a
verification code.

Parameters:
  - context: context.Context
  - input: RegisterInput

Returns:
  - *account.User: the created account
  - error: 422 weak password, account.ErrUsernameTaken/ErrEmailTaken or storage errors
*/
func (service *Service) Register(context context.Context, input RegisterInput) (*account.User, error) {
	verdict := service.policy.Validate(input.Password, password.PersonalInfo{
		Username:    input.Username,
		DisplayName: input.DisplayName,
		Email:       input.Email,
	})
	if err := verdict.Err(); err != nil {
		return nil, err
	}

	hash, err := sec.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("auth_service_hash_failed: %w", err)
	}

	user := &account.User{
		ID:           uuid.New(),
		Username:     strings.TrimSpace(input.Username),
		DisplayName:  strings.TrimSpace(input.DisplayName),
		Email:        strings.TrimSpace(input.Email),
		PasswordHash: hash,
		Role:         sec.RoleCustomer,
	}

	if err := service.users.Create(context, user); err != nil {
		return nil, err
	}

	ctxutil.GetLogger(context).InfoContext(context, "account_registered",
		slog.String("user_id", user.ID),
		slog.String("strength", string(verdict.Strength)),
	)

	service.sendVerification(context, user)
	return user, nil
}

// Me returns the caller's profile.
func (service *Service) Me(context context.Context, userID string) (*account.User, error) {
	return service.users.FindByID(context, userID)
}

// # Email Verification

// VerifyEmail confirms ownership of the address with a verification code.
func (service *Service) VerifyEmail(context context.Context, userID, code string) error {
	user, err := service.users.FindByID(context, userID)
	if err != nil {
		return err
	}
	if user.EmailVerified {
		return ErrAlreadyVerified
	}

	if err := service.codes.Verify(context, userID, otp.TypeVerification, code); err != nil {
		return err
	}

	if err := service.users.MarkVerified(context, userID); err != nil {
		return err
	}

	ctxutil.GetLogger(context).InfoContext(context, "email_verified", slog.String("user_id", userID))
	return nil
}

// ResendVerification mails a new verification code, subject to the cooldown.
func (service *Service) ResendVerification(context context.Context, userID string) error {
	user, err := service.users.FindByID(context, userID)
	if err != nil {
		return err
	}
	if user.EmailVerified {
		return ErrAlreadyVerified
	}

	issued, err := service.codes.Issue(context, userID, otp.TypeVerification)
	if err != nil {
		return err
	}
	return service.mailer.SendCode(context, user, issued)
}

// sendVerification is best effort: the user can always ask for a resend.
func (service *Service) sendVerification(context context.Context, user *account.User) {
	issued, err := service.codes.Issue(context, user.ID, otp.TypeVerification)
	if err == nil {
		err = service.mailer.SendCode(context, user, issued)
	}
	if err != nil {
		ctxutil.GetLogger(context).WarnContext(context, "verification_code_not_sent",
			slog.String("user_id", user.ID),
			slog.Any("error", err),
		)
	}
}

// # Password Reset

/*
RequestPasswordReset mails a reset code when the address belongs to an account.

The outcome is identical for unknown addresses and for accounts inside the
resend cooldown, so the endpoint cannot be used to probe for accounts.
*/
func (service *Service) RequestPasswordReset(context context.Context, email string) error {
	logger := ctxutil.GetLogger(context)

	user, err := service.users.FindByEmail(context, email)
	if errors.Is(err, dberr.ErrNotFound) {
		logger.InfoContext(context, "password_reset_unknown_email")
		return nil
	}
	if err != nil {
		return err
	}

	issued, err := service.codes.Issue(context, user.ID, otp.TypePasswordReset)
	var cooldown *otp.CooldownError
	if errors.As(err, &cooldown) {
		logger.InfoContext(context, "password_reset_cooldown", slog.String("user_id", user.ID))
		return nil
	}
	if err != nil {
		return err
	}

	if err := service.mailer.SendCode(context, user, issued); err != nil {
		return fmt.Errorf("auth_service_reset_mail_failed: %w", err)
	}

	logger.InfoContext(context, "password_reset_requested", slog.String("user_id", user.ID))
	return nil
}

// ResetPasswordInput completes a reset.
type ResetPasswordInput struct {
	Email       string
	Code        string
	NewPassword string
}

// ResetPassword checks the reset code, stores the new password and signs out every device.
func (service *Service) ResetPassword(context context.Context, input ResetPasswordInput) error {
	user, err := service.users.FindByEmail(context, input.Email)
	if errors.Is(err, dberr.ErrNotFound) {
		return ErrInvalidResetCode
	}
	if err != nil {
		return err
	}

	if err := service.checkNewPassword(user, input.NewPassword); err != nil {
		return err
	}

	if err := service.codes.Verify(context, user.ID, otp.TypePasswordReset, input.Code); err != nil {
		if errors.Is(err, otp.ErrNotFound) {
			return ErrInvalidResetCode
		}
		return err
	}

	return service.replacePassword(context, user, input.NewPassword, "password_reset")
}

// # Credential Changes

// ChangePassword replaces the password of a signed-in user. The caller's
// token is blacklisted and every session ends; the client signs in again.
func (service *Service) ChangePassword(context context.Context, claims *sec.AuthClaims, current, next string) error {
	user, err := service.users.FindByID(context, claims.UserID)
	if err != nil {
		return err
	}

	if !sec.CheckPasswordHash(current, user.PasswordHash) {
		return ErrInvalidPassword
	}
	if current == next {
		return ErrSamePassword
	}
	if err := service.checkNewPassword(user, next); err != nil {
		return err
	}

	if err := service.replacePassword(context, user, next, "password_changed"); err != nil {
		return err
	}
	return service.tokens.Blacklist(context, claims, blacklist.ReasonPasswordChanged)
}

func (service *Service) checkNewPassword(user *account.User, candidate string) error {
	return service.policy.Validate(candidate, password.PersonalInfo{
		Username:    user.Username,
		DisplayName: user.DisplayName,
		Email:       user.Email,
	}).Err()
}

func (service *Service) replacePassword(context context.Context, user *account.User, next, event string) error {
	hash, err := sec.HashPassword(next)
	if err != nil {
		return fmt.Errorf("auth_service_hash_failed: %w", err)
	}

	version, err := service.users.UpdatePassword(context, user.ID, hash)
	if err != nil {
		return err
	}

	if err := service.sessions.RevokeAll(context, user.ID); err != nil {
		return err
	}

	logger := ctxutil.GetLogger(context)
	logger.InfoContext(context, event,
		slog.String("user_id", user.ID),
		slog.Int("token_version", version),
	)

	if err := service.mailer.SendPasswordChanged(context, user); err != nil {
		logger.WarnContext(context, "password_changed_notice_not_sent",
			slog.String("user_id", user.ID),
			slog.Any("error", err),
		)
	}
	return nil
}

// ChangeEmailInput moves an account to a new address.
type ChangeEmailInput struct {
	Password string
	NewEmail string
}

/*
ChangeEmail stores a new address after password re-entry.

The address becomes unverified, a verification code goes to it, the token
version is bumped and every session ends.

Returns:
  - error: ErrInvalidPassword, ErrSameEmail, account.ErrEmailTaken or storage errors
*/
func (service *Service) ChangeEmail(context context.Context, claims *sec.AuthClaims, input ChangeEmailInput) error {
	user, err := service.users.FindByID(context, claims.UserID)
	if err != nil {
		return err
	}

	if !sec.CheckPasswordHash(input.Password, user.PasswordHash) {
		return ErrInvalidPassword
	}

	next := &account.User{Email: strings.TrimSpace(input.NewEmail)}
	if next.EmailKey() == user.EmailKey() {
		return ErrSameEmail
	}

	version, err := service.users.UpdateEmail(context, user.ID, next.Email)
	if err != nil {
		return err
	}

	if err := service.sessions.RevokeAll(context, user.ID); err != nil {
		return err
	}
	if err := service.tokens.Blacklist(context, claims, blacklist.ReasonVersionChange); err != nil {
		return err
	}
	if err := service.codes.Invalidate(context, user.ID, otp.TypeVerification); err != nil {
		return err
	}

	ctxutil.GetLogger(context).InfoContext(context, "email_changed",
		slog.String("user_id", user.ID),
		slog.Int("token_version", version),
	)

	user.Email = next.Email
	user.EmailVerified = false
	service.sendVerification(context, user)
	return nil
}
