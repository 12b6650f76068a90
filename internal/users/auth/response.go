// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/taibuivan/shopauth/internal/platform/constants"
	"github.com/taibuivan/shopauth/internal/platform/middleware"
	"github.com/taibuivan/shopauth/internal/platform/respond"
	"github.com/taibuivan/shopauth/internal/users/account"
	"github.com/taibuivan/shopauth/internal/users/recovery"
	"github.com/taibuivan/shopauth/internal/users/session"
	"github.com/taibuivan/shopauth/internal/users/signin"
	"github.com/taibuivan/shopauth/internal/users/token"
)

// SignInResponse is the body of every sign-in step. Token fields are set once
// the flow is authenticated; tempToken while a second factor is pending.
type SignInResponse struct {
	AccessToken               string          `json:"accessToken,omitempty"`
	RefreshToken              string          `json:"refreshToken,omitempty"`
	TokenType                 string          `json:"tokenType,omitempty"`
	ExpiresIn                 int             `json:"expiresIn,omitempty"`
	ExpiresAt                 *time.Time      `json:"expiresAt,omitempty"`
	User                      *account.User   `json:"user,omitempty"`
	RequiresTOTP              bool            `json:"requiresTOTP"`
	RequiresEmailVerification bool            `json:"requiresEmailVerification"`
	RequiresMFASelection      bool            `json:"requiresMFASelection"`
	RequiresEmailCode         bool            `json:"requiresEmailCode"`
	RequiresRecoveryCode      bool            `json:"requiresRecoveryCode"`
	Methods                   []signin.Method `json:"methods,omitempty"`
	TempToken                 string          `json:"tempToken,omitempty"`
}

// NewSignInResponse renders an outcome. The profile is withheld until the
// second factor is done.
func NewSignInResponse(outcome signin.Outcome) SignInResponse {
	response := SignInResponse{
		RequiresTOTP:              outcome.State == signin.StateAwaitingTOTP,
		RequiresEmailVerification: outcome.RequiresEmailVerification,
		RequiresMFASelection:      outcome.State == signin.StateAwaitingMFASelection,
		RequiresEmailCode:         outcome.State == signin.StateAwaitingEmailCode,
		RequiresRecoveryCode:      outcome.State == signin.StateAwaitingRecoveryCode,
		Methods:                   outcome.Methods,
		TempToken:                 outcome.StateToken,
	}

	if outcome.Tokens != nil {
		response.AccessToken = outcome.Tokens.AccessToken
		response.RefreshToken = outcome.Tokens.RefreshToken
		response.TokenType = outcome.Tokens.TokenType
		response.ExpiresIn = outcome.Tokens.ExpiresIn
		expiresAt := outcome.Tokens.ExpiresAt
		response.ExpiresAt = &expiresAt
		response.User = outcome.User
	}
	return response
}

// WriteOutcome writes a sign-in step result.
func WriteOutcome(writer http.ResponseWriter, outcome signin.Outcome) {
	respond.OK(writer, NewSignInResponse(outcome))
}

// WritePair writes a refreshed token pair.
func WritePair(writer http.ResponseWriter, pair token.Pair) {
	respond.OK(writer, pair)
}

// StateToken reads the sign-in state token from the body field, falling back to the header.
func StateToken(request *http.Request, fromBody string) string {
	if value := strings.TrimSpace(fromBody); value != "" {
		return value
	}
	return strings.TrimSpace(request.Header.Get(constants.StateTokenHeader))
}

// DeviceOf describes the client that sent request.
func DeviceOf(request *http.Request, name string) session.Device {
	userAgent := request.UserAgent()
	if name == "" {
		name = userAgent
	}
	return session.Device{Name: name, IPAddress: middleware.RealIP(request), UserAgent: userAgent}
}

// OriginOf is the recovery-code audit origin of request.
func OriginOf(request *http.Request) recovery.Origin {
	return recovery.Origin{IP: middleware.RealIP(request), UserAgent: request.UserAgent()}
}
