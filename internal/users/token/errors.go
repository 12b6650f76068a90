// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package token

import "github.com/taibuivan/shopauth/internal/platform/apperr"

// ToAppError collapses every validation failure into one 401 so clients cannot
// tell a blacklisted token from an expired one. Other errors pass through.
func ToAppError(err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != "" {
		return apperr.UnauthorizedCode("TOKEN_INVALID", "Invalid or expired token").WithCause(err)
	}
	return err
}
