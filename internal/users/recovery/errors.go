// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package recovery

import (
	"errors"

	"github.com/taibuivan/shopauth/internal/platform/apperr"
)

// ToAppError maps recovery failures onto the HTTP taxonomy. Unknown errors pass through.
func ToAppError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrInvalidFormat):
		return apperr.BadRequest("INVALID_RECOVERY_CODE_FORMAT", "Recovery codes look like xxxx-xxxx-xxxx-xxxx")
	case errors.Is(err, ErrInvalidCode):
		return apperr.UnauthorizedCode("INVALID_RECOVERY_CODE", "Incorrect recovery code")
	case errors.Is(err, ErrAlreadyUsed):
		return apperr.UnauthorizedCode("RECOVERY_CODE_USED", "This recovery code has already been used")
	case errors.Is(err, ErrExpired):
		return apperr.UnauthorizedCode("RECOVERY_CODE_EXPIRED", "This recovery code has expired")
	case errors.Is(err, ErrTooManyAttempts):
		return apperr.TooManyRequests("TOO_MANY_ATTEMPTS", "Too many incorrect recovery codes, try again later",
			int(UserFailureWindow.Seconds()))
	case errors.Is(err, ErrInvalidPassword):
		return apperr.UnauthorizedCode("INVALID_PASSWORD", "Password confirmation failed")
	case errors.Is(err, ErrMFARequired):
		return apperr.BadRequest("MFA_NOT_ENABLED", "Enable a second factor before generating recovery codes")
	}
	return err
}
