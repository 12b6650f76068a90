// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"errors"

	"github.com/taibuivan/shopauth/internal/platform/apperr"
	"github.com/taibuivan/shopauth/internal/users/account"
	"github.com/taibuivan/shopauth/internal/users/signin"
)

// ToAppError maps account and sign-in failures onto the HTTP taxonomy.
func ToAppError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrInvalidPassword):
		return apperr.UnauthorizedCode("INVALID_PASSWORD", "Current password is incorrect")
	case errors.Is(err, ErrSamePassword):
		return apperr.ValidationError("New password must differ from the current one",
			apperr.FieldError{Field: FieldNewPassword, Message: "Must differ from the current password"})
	case errors.Is(err, ErrSameEmail):
		return apperr.ValidationError("New email matches the current one",
			apperr.FieldError{Field: FieldNewEmail, Message: "Must differ from the current email"})
	case errors.Is(err, ErrAlreadyVerified):
		return apperr.Conflict("Email is already verified")
	case errors.Is(err, ErrInvalidResetCode):
		return apperr.BadRequest("INVALID_RESET_CODE", "Invalid or expired reset code")
	case errors.Is(err, account.ErrUsernameTaken):
		return apperr.Conflict("Username is already taken")
	case errors.Is(err, account.ErrEmailTaken):
		return apperr.Conflict("Email is already registered")
	}
	return signin.ToAppError(err)
}
