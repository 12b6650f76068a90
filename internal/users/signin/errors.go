// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package signin

import (
	"errors"

	"github.com/taibuivan/shopauth/internal/platform/apperr"
	"github.com/taibuivan/shopauth/internal/users/otp"
	"github.com/taibuivan/shopauth/internal/users/recovery"
	"github.com/taibuivan/shopauth/internal/users/totp"
)

// ToAppError maps sign-in failures, including those of the second-factor
// verifiers, onto the HTTP taxonomy. Unknown errors pass through.
func ToAppError(err error) error {
	if err == nil {
		return nil
	}

	var locked *LockedError
	if errors.As(err, &locked) {
		return apperr.TooManyRequests("ACCOUNT_LOCKED", "Too many failed sign-in attempts, try again later", locked.RetryAfterSeconds())
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return apperr.UnauthorizedCode("INVALID_CREDENTIALS", "Invalid username/email or password")
	case errors.Is(err, ErrInvalidStateToken):
		return apperr.UnauthorizedCode("INVALID_STATE_TOKEN", "Sign-in session expired, start again")
	case errors.Is(err, ErrMethodNotAvailable):
		return apperr.BadRequest("MFA_METHOD_NOT_AVAILABLE", "This verification method is not available for the account")
	case errors.Is(err, ErrWrongStep):
		return apperr.BadRequest("WRONG_MFA_STEP", "The sign-in is waiting for a different verification method")
	}

	if mapped := totp.ToAppError(err); mapped != err {
		return mapped
	}
	if mapped := otp.ToAppError(err); mapped != err {
		return mapped
	}
	return recovery.ToAppError(err)
}
