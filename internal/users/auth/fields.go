// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

// # Request Field Names

const (
	FieldUsername        = "username"
	FieldEmail           = "email"
	FieldPassword        = "password"
	FieldDisplayName     = "displayName"
	FieldIdentifier      = "identifier"
	FieldCode            = "code"
	FieldMethod          = "method"
	FieldTempToken       = "tempToken"
	FieldRefreshToken    = "refreshToken"
	FieldCurrentPassword = "currentPassword"
	FieldNewPassword     = "newPassword"
	FieldNewEmail        = "newEmail"
	FieldMessage         = "message"
)

// # Input Bounds

const (
	usernameMinLength    = 3
	usernameMaxLength    = 32
	displayNameMaxLength = 64
	emailMaxLength       = 254
	passwordMaxLength    = 128
	codeMaxLength        = 32
)
