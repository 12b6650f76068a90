// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package otp

import (
	"errors"

	"github.com/taibuivan/shopauth/internal/platform/apperr"
)

// ToAppError maps code failures onto the HTTP taxonomy. Unknown errors pass through.
func ToAppError(err error) error {
	if err == nil {
		return nil
	}

	var cooldown *CooldownError
	if errors.As(err, &cooldown) {
		return apperr.TooManyRequests("CODE_COOLDOWN", "Please wait before requesting another code", cooldown.RetryAfterSeconds())
	}

	var attempt *AttemptError
	if errors.As(err, &attempt) {
		if attempt.Kind == KindTooManyAttempts {
			return apperr.UnauthorizedCode("TOO_MANY_ATTEMPTS", "Too many incorrect attempts, request a new code").WithAttempts(0)
		}
		return apperr.UnauthorizedCode("CODE_MISMATCH", "Incorrect code").WithAttempts(attempt.Remaining)
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return apperr.BadRequest("CODE_NOT_FOUND", "No pending code, request a new one")
	case errors.Is(err, ErrExpired):
		return apperr.BadRequest("CODE_EXPIRED", "Code has expired, request a new one")
	case errors.Is(err, ErrInvalidType):
		return apperr.BadRequest("INVALID_CODE_TYPE", "Unknown code type")
	}

	return err
}
