// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package validate_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/shopauth/internal/platform/apperr"
	"github.com/taibuivan/shopauth/internal/platform/validate"
)

func TestValidator_Required(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		hasError bool
	}{
		{"present", "alice", false},
		{"empty", "", true},
		{"whitespace_only", "   ", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := &validate.Validator{}
			v.Required("identifier", tt.value)

			if !tt.hasError {
				assert.False(t, v.HasErrors())
				assert.Nil(t, v.Err())
				return
			}

			ae := apperr.As(v.Err())
			require.NotNil(t, ae)
			assert.Equal(t, "VALIDATION_ERROR", ae.Code)
			assert.Equal(t, "identifier", ae.Details[0].Field)
		})
	}
}

func TestValidator_Email(t *testing.T) {
	tests := []struct {
		email   string
		isValid bool
	}{
		{"bob@shop.local", true},
		{"invalid-email", false},
		{"bob@", false},
		{"", false},
		{"Bob <bob@shop.local>", false},
	}

	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			v := &validate.Validator{}
			v.Email("email", tt.email)
			assert.Equal(t, !tt.isValid, v.HasErrors())
		})
	}
}

func TestValidator_Username(t *testing.T) {
	tests := []struct {
		username string
		isValid  bool
	}{
		{"carol_92", true},
		{"dave.smith-jr", true},
		{"", true},
		{"erin@shop.local", false},
		{"frank smith", false},
		{"grace!", false},
	}

	for _, tt := range tests {
		t.Run(tt.username, func(t *testing.T) {
			v := &validate.Validator{}
			v.Username("username", tt.username)
			assert.Equal(t, !tt.isValid, v.HasErrors())
		})
	}
}

func TestValidator_Digits(t *testing.T) {
	tests := []struct {
		code    string
		isValid bool
	}{
		{"123456", true},
		{"", true},
		{"12345", false},
		{"1234567", false},
		{"12a456", false},
		{"１２３４５６", false},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			v := &validate.Validator{}
			v.Digits("code", tt.code, 6)
			assert.Equal(t, !tt.isValid, v.HasErrors())
		})
	}
}

func TestValidator_OneOf(t *testing.T) {
	v := &validate.Validator{}
	v.OneOf("method", "totp", "totp", "email").OneOf("method", "sms", "totp", "email")

	ae := apperr.As(v.Err())
	require.NotNil(t, ae)
	require.Len(t, ae.Details, 1)
	assert.Equal(t, "Must be one of: totp, email", ae.Details[0].Message)
}

func TestValidator_ChainAccumulates(t *testing.T) {
	v := &validate.Validator{}

	err := v.
		Required("username", "").
		MinLen("username", "a", 3).
		Email("email", "not-an-email").
		Custom("password", true, "Too weak").
		Err()

	ae := apperr.As(err)
	require.NotNil(t, ae)
	assert.Len(t, ae.Details, 4)
}

func TestRequiredError(t *testing.T) {
	ae := validate.RequiredError("tempToken", "State token is required")

	require.Len(t, ae.Details, 1)
	assert.Equal(t, "tempToken", ae.Details[0].Field)
}
