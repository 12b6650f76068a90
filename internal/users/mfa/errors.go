// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package mfa

import (
	"errors"

	"github.com/taibuivan/shopauth/internal/platform/apperr"
	"github.com/taibuivan/shopauth/internal/users/auth"
)

// ToAppError maps MFA management failures onto the HTTP taxonomy.
func ToAppError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrEmailMFAEnabled):
		return apperr.Conflict("Email codes are already enabled")
	case errors.Is(err, ErrEmailMFANotEnabled):
		return apperr.BadRequest("EMAIL_MFA_NOT_ENABLED", "Email codes are not enabled")
	case errors.Is(err, ErrEmailNotVerified):
		return apperr.BadRequest("EMAIL_NOT_VERIFIED", "Verify your email address first")
	case errors.Is(err, ErrInvalidPassword):
		return apperr.UnauthorizedCode("INVALID_PASSWORD", "Password confirmation failed")
	}
	return auth.ToAppError(err)
}
