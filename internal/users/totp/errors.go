// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package totp

import (
	"errors"

	"github.com/taibuivan/shopauth/internal/platform/apperr"
)

// ToAppError maps TOTP failures onto the HTTP taxonomy. Unknown errors pass through.
func ToAppError(err error) error {
	if err == nil {
		return nil
	}

	var locked *LockedError
	if errors.As(err, &locked) {
		return apperr.TooManyRequests("TOO_MANY_ATTEMPTS", "Too many incorrect codes, try again later", locked.RetryAfterSeconds())
	}

	var invalid *InvalidCodeError
	if errors.As(err, &invalid) {
		return apperr.UnauthorizedCode("INVALID_TOTP_CODE", "Incorrect authenticator code").WithAttempts(invalid.Remaining)
	}

	switch {
	case errors.Is(err, ErrInvalidCode):
		return apperr.UnauthorizedCode("INVALID_TOTP_CODE", "Incorrect authenticator code")
	case errors.Is(err, ErrCodeReused):
		return apperr.UnauthorizedCode("TOTP_CODE_REUSED", "This code was already used, wait for the next one")
	case errors.Is(err, ErrInvalidPassword):
		return apperr.UnauthorizedCode("INVALID_PASSWORD", "Password confirmation failed")
	case errors.Is(err, ErrPasswordRequired):
		return apperr.BadRequest("PASSWORD_REQUIRED", "Set a password before changing two-factor settings")
	case errors.Is(err, ErrNotEnabled):
		return apperr.BadRequest("TOTP_NOT_ENABLED", "Authenticator app is not enabled")
	case errors.Is(err, ErrAlreadyEnabled):
		return apperr.Conflict("Authenticator app is already enabled")
	case errors.Is(err, ErrNoPendingSetup):
		return apperr.BadRequest("TOTP_SETUP_EXPIRED", "No pending setup, start again")
	}

	return err
}
