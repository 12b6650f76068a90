// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/shopauth/internal/platform/apperr"
	"github.com/taibuivan/shopauth/internal/platform/sec"
	"github.com/taibuivan/shopauth/internal/users/account"
	"github.com/taibuivan/shopauth/internal/users/auth"
	"github.com/taibuivan/shopauth/internal/users/otp"
)

func TestRegister_SendsVerificationCode(t *testing.T) {
	f := newFixture(t)

	user := f.register(t, "alice", "alice@shop.local")

	assert.NotEmpty(t, user.ID)
	assert.False(t, user.EmailVerified)
	assert.Equal(t, sec.RoleCustomer, user.Role)
	assert.True(t, sec.CheckPasswordHash(strongPassword, user.PasswordHash))

	sent := f.outbox.last()
	assert.Equal(t, "alice@shop.local", sent.to)
	assert.Equal(t, otp.TypeVerification, sent.issued.Type)
}

func TestRegister_RejectsWeakPassword(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Register(context.Background(), auth.RegisterInput{
		Username: "alice",
		Email:    "alice@shop.local",
		Password: "Password123!",
	})

	appErr := apperr.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, http.StatusUnprocessableEntity, appErr.HTTPStatus)
	assert.Zero(t, f.outbox.codeCount())
}

func TestRegister_DuplicateIdentifiers(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice", "alice@shop.local")

	_, err := f.service.Register(context.Background(), auth.RegisterInput{
		Username: "ALICE", Email: "other@shop.local", Password: strongPassword,
	})
	assert.ErrorIs(t, err, account.ErrUsernameTaken)

	_, err = f.service.Register(context.Background(), auth.RegisterInput{
		Username: "bob", Email: "Alice@Shop.Local", Password: strongPassword,
	})
	assert.ErrorIs(t, err, account.ErrEmailTaken)

	appErr := apperr.As(auth.ToAppError(err))
	require.NotNil(t, appErr)
	assert.Equal(t, http.StatusConflict, appErr.HTTPStatus)
}

func TestVerifyEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.register(t, "alice", "alice@shop.local")

	var attempt *otp.AttemptError
	require.ErrorAs(t, f.service.VerifyEmail(ctx, user.ID, "000000"), &attempt)
	assert.Equal(t, otp.TypeVerification.MaxAttempts()-1, attempt.Remaining)

	require.NoError(t, f.service.VerifyEmail(ctx, user.ID, fixedCode))

	stored, err := f.users.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, stored.EmailVerified)

	assert.ErrorIs(t, f.service.VerifyEmail(ctx, user.ID, fixedCode), auth.ErrAlreadyVerified)
	assert.ErrorIs(t, f.service.ResendVerification(ctx, user.ID), auth.ErrAlreadyVerified)
}

func TestResendVerification_Cooldown(t *testing.T) {
	f := newFixture(t)
	user := f.register(t, "alice", "alice@shop.local")

	err := f.service.ResendVerification(context.Background(), user.ID)

	var cooldown *otp.CooldownError
	require.ErrorAs(t, err, &cooldown)

	appErr := apperr.As(auth.ToAppError(err))
	require.NotNil(t, appErr)
	assert.Equal(t, http.StatusTooManyRequests, appErr.HTTPStatus)
	assert.Positive(t, appErr.RetryAfter)
}

func TestRequestPasswordReset_UnknownEmailIsSilent(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.service.RequestPasswordReset(context.Background(), "ghost@shop.local"))
	assert.Zero(t, f.outbox.codeCount())
}

func TestResetPassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.register(t, "alice", "alice@shop.local")
	pair := f.issue(t, user)

	require.NoError(t, f.service.RequestPasswordReset(ctx, "alice@shop.local"))
	assert.Equal(t, otp.TypePasswordReset, f.outbox.last().issued.Type)

	// A second request inside the cooldown looks identical to the caller.
	require.NoError(t, f.service.RequestPasswordReset(ctx, "alice@shop.local"))
	assert.Equal(t, 2, f.outbox.codeCount())

	require.NoError(t, f.service.ResetPassword(ctx, auth.ResetPasswordInput{
		Email:       "alice@shop.local",
		Code:        fixedCode,
		NewPassword: otherPassword,
	}))

	stored, err := f.users.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, sec.CheckPasswordHash(otherPassword, stored.PasswordHash))
	assert.Equal(t, []string{"alice@shop.local"}, f.outbox.notices)

	_, err = f.tokens.VerifyAccessToken(ctx, pair.AccessToken)
	assert.Error(t, err, "tokens minted before the reset must stop working")

	// The code is single use.
	err = f.service.ResetPassword(ctx, auth.ResetPasswordInput{
		Email: "alice@shop.local", Code: fixedCode, NewPassword: strongPassword,
	})
	assert.ErrorIs(t, err, auth.ErrInvalidResetCode)
}

func TestResetPassword_UnknownEmail(t *testing.T) {
	f := newFixture(t)

	err := f.service.ResetPassword(context.Background(), auth.ResetPasswordInput{
		Email: "ghost@shop.local", Code: fixedCode, NewPassword: otherPassword,
	})
	assert.ErrorIs(t, err, auth.ErrInvalidResetCode)
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.register(t, "alice", "alice@shop.local")
	pair := f.issue(t, user)

	claims, err := f.tokens.VerifyAccessToken(ctx, pair.AccessToken)
	require.NoError(t, err)

	assert.ErrorIs(t, f.service.ChangePassword(ctx, claims, "wrong", otherPassword), auth.ErrInvalidPassword)
	assert.ErrorIs(t, f.service.ChangePassword(ctx, claims, strongPassword, strongPassword), auth.ErrSamePassword)

	err = f.service.ChangePassword(ctx, claims, strongPassword, "Password123!")
	appErr := apperr.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, http.StatusUnprocessableEntity, appErr.HTTPStatus)

	require.NoError(t, f.service.ChangePassword(ctx, claims, strongPassword, otherPassword))

	_, err = f.tokens.VerifyAccessToken(ctx, pair.AccessToken)
	assert.Error(t, err)
	_, err = f.tokens.Refresh(ctx, pair.RefreshToken)
	assert.Error(t, err)
}

func TestChangeEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.register(t, "alice", "alice@shop.local")
	require.NoError(t, f.service.VerifyEmail(ctx, user.ID, fixedCode))
	f.register(t, "bob", "bob@shop.local")

	pair := f.issue(t, user)
	claims, err := f.tokens.VerifyAccessToken(ctx, pair.AccessToken)
	require.NoError(t, err)

	input := auth.ChangeEmailInput{Password: "wrong", NewEmail: "alice@new.local"}
	assert.ErrorIs(t, f.service.ChangeEmail(ctx, claims, input), auth.ErrInvalidPassword)

	input = auth.ChangeEmailInput{Password: strongPassword, NewEmail: "ALICE@shop.local"}
	assert.ErrorIs(t, f.service.ChangeEmail(ctx, claims, input), auth.ErrSameEmail)

	input = auth.ChangeEmailInput{Password: strongPassword, NewEmail: "bob@shop.local"}
	assert.ErrorIs(t, f.service.ChangeEmail(ctx, claims, input), account.ErrEmailTaken)

	input = auth.ChangeEmailInput{Password: strongPassword, NewEmail: "alice@new.local"}
	require.NoError(t, f.service.ChangeEmail(ctx, claims, input))

	stored, err := f.users.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice@new.local", stored.Email)
	assert.False(t, stored.EmailVerified)

	sent := f.outbox.last()
	assert.Equal(t, "alice@new.local", sent.to)
	assert.Equal(t, otp.TypeVerification, sent.issued.Type)

	_, err = f.tokens.VerifyAccessToken(ctx, pair.AccessToken)
	assert.Error(t, err)
}

func TestToAppError(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{auth.ErrInvalidPassword, http.StatusUnauthorized, "INVALID_PASSWORD"},
		{auth.ErrSamePassword, http.StatusBadRequest, "VALIDATION_ERROR"},
		{auth.ErrAlreadyVerified, http.StatusConflict, "CONFLICT"},
		{auth.ErrInvalidResetCode, http.StatusBadRequest, "INVALID_RESET_CODE"},
		{account.ErrUsernameTaken, http.StatusConflict, "CONFLICT"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			appErr := apperr.As(auth.ToAppError(tt.err))
			require.NotNil(t, appErr)
			assert.Equal(t, tt.status, appErr.HTTPStatus)
			assert.Equal(t, tt.code, appErr.Code)
		})
	}

	unknown := errors.New("boom")
	assert.Equal(t, unknown, auth.ToAppError(unknown))
}
