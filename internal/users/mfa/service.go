// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package mfa manages the second factors of a signed-in account.

Authenticator apps are enrolled through the totp manager, email codes through
the otp service, and recovery codes through the recovery manager. Recovery
codes are only issued while another factor is on: they are a way back into an
MFA account, not a factor of their own.
*/
package mfa

import (
	"context"
	"errors"
	"log/slog"

	"github.com/taibuivan/shopauth/internal/platform/ctxutil"
	"github.com/taibuivan/shopauth/internal/platform/sec"
	"github.com/taibuivan/shopauth/internal/users/account"
	"github.com/taibuivan/shopauth/internal/users/auth"
	"github.com/taibuivan/shopauth/internal/users/otp"
	"github.com/taibuivan/shopauth/internal/users/recovery"
	"github.com/taibuivan/shopauth/internal/users/totp"
)

// # Errors

var (
	ErrEmailMFAEnabled    = errors.New("mfa: email codes are already enabled")
	ErrEmailMFANotEnabled = errors.New("mfa: email codes are not enabled")
	ErrEmailNotVerified   = errors.New("mfa: email address is not verified")
	ErrInvalidPassword    = errors.New("mfa: password confirmation failed")
)

// # Service

// Service implements the MFA management use cases.
type Service struct {
	users    account.UserRepository
	totp     *totp.Manager
	codes    auth.CodeService
	mailer   auth.Mailer
	recovery *recovery.Manager
}

// NewService constructs the MFA service.
func NewService(users account.UserRepository, totpManager *totp.Manager, codes auth.CodeService, mailer auth.Mailer, recoveryManager *recovery.Manager) *Service {
	return &Service{
		users:    users,
		totp:     totpManager,
		codes:    codes,
		mailer:   mailer,
		recovery: recoveryManager,
	}
}

// # Authenticator App

// SetupTOTP parks a new secret for the caller and returns its provisioning data.
func (service *Service) SetupTOTP(context context.Context, userID string) (totp.Provisioning, error) {
	user, err := service.users.FindByID(context, userID)
	if err != nil {
		return totp.Provisioning{}, err
	}
	return service.totp.Setup(context, user)
}

// EnableTOTP confirms the pending secret with a code from the app.
func (service *Service) EnableTOTP(context context.Context, userID, code string) error {
	user, err := service.users.FindByID(context, userID)
	if err != nil {
		return err
	}
	return service.totp.VerifyAndEnable(context, user, code)
}

// DisableTOTP turns the authenticator app off after password re-entry.
func (service *Service) DisableTOTP(context context.Context, userID, password string) error {
	user, err := service.users.FindByID(context, userID)
	if err != nil {
		return err
	}
	return service.totp.Disable(context, user, password)
}

// # Email Codes

/*
EnableEmail starts email MFA enrolment by mailing a confirmation code.
The factor is only switched on by [Service.VerifyEmail].

Returns:
  - otp.Issued: expiry of the mailed code (the code itself is not returned to the client)
  - error: ErrEmailMFAEnabled, ErrEmailNotVerified, *otp.CooldownError or storage failures
*/
func (service *Service) EnableEmail(context context.Context, userID string) (otp.Issued, error) {
	user, err := service.users.FindByID(context, userID)
	if err != nil {
		return otp.Issued{}, err
	}
	if user.EmailMFAEnabled {
		return otp.Issued{}, ErrEmailMFAEnabled
	}
	if !user.EmailVerified {
		return otp.Issued{}, ErrEmailNotVerified
	}

	issued, err := service.codes.Issue(context, user.ID, otp.TypeMFA)
	if err != nil {
		return otp.Issued{}, err
	}
	if err := service.mailer.SendCode(context, user, issued); err != nil {
		return otp.Issued{}, err
	}

	ctxutil.GetLogger(context).InfoContext(context, "email_mfa_code_sent", slog.String("user_id", user.ID))
	return issued, nil
}

// ResendEmail mails another enrolment code. The otp cooldown applies.
func (service *Service) ResendEmail(context context.Context, userID string) (otp.Issued, error) {
	return service.EnableEmail(context, userID)
}

// VerifyEmail checks the enrolment code and switches email MFA on.
func (service *Service) VerifyEmail(context context.Context, userID, code string) error {
	user, err := service.users.FindByID(context, userID)
	if err != nil {
		return err
	}
	if user.EmailMFAEnabled {
		return ErrEmailMFAEnabled
	}

	if err := service.codes.Verify(context, user.ID, otp.TypeMFA, code); err != nil {
		return err
	}
	if err := service.users.SetEmailMFA(context, user.ID, true); err != nil {
		return err
	}

	ctxutil.GetLogger(context).InfoContext(context, "email_mfa_enabled", slog.String("user_id", user.ID))
	return nil
}

// DisableEmail switches email MFA off after password re-entry and drops any pending code.
func (service *Service) DisableEmail(context context.Context, userID, password string) error {
	user, err := service.users.FindByID(context, userID)
	if err != nil {
		return err
	}
	if !user.EmailMFAEnabled {
		return ErrEmailMFANotEnabled
	}
	if !sec.CheckPasswordHash(password, user.PasswordHash) {
		return ErrInvalidPassword
	}

	if err := service.users.SetEmailMFA(context, user.ID, false); err != nil {
		return err
	}
	if err := service.codes.Invalidate(context, user.ID, otp.TypeMFA); err != nil {
		return err
	}

	ctxutil.GetLogger(context).InfoContext(context, "email_mfa_disabled", slog.String("user_id", user.ID))
	return nil
}

// # Recovery Codes

// GenerateRecoveryCodes issues a fresh batch, replacing the previous one.
func (service *Service) GenerateRecoveryCodes(context context.Context, userID string) ([]string, error) {
	user, err := service.users.FindByID(context, userID)
	if err != nil {
		return nil, err
	}
	if !user.MFAEnabled() {
		return nil, recovery.ErrMFARequired
	}
	return service.recovery.Generate(context, user.ID)
}

// RegenerateRecoveryCodes is [Service.GenerateRecoveryCodes] behind password re-entry.
func (service *Service) RegenerateRecoveryCodes(context context.Context, userID, password string) ([]string, error) {
	user, err := service.users.FindByID(context, userID)
	if err != nil {
		return nil, err
	}
	if !user.MFAEnabled() {
		return nil, recovery.ErrMFARequired
	}
	return service.recovery.Regenerate(context, user, password)
}

// RecoveryStatus reports whether the caller still holds usable codes.
func (service *Service) RecoveryStatus(context context.Context, userID string) (recovery.Status, error) {
	return service.recovery.Status(context, userID)
}
