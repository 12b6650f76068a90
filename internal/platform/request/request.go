// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package request extracts inputs from HTTP requests: JSON bodies, Basic
credentials, URL parameters and the authenticated caller.

Every failure is returned as an [apperr.AppError] so handlers can pass it
straight to respond.Error.
*/
package requestutil

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/taibuivan/shopauth/internal/platform/apperr"
	"github.com/taibuivan/shopauth/internal/platform/constants"
	"github.com/taibuivan/shopauth/internal/platform/ctxutil"
	"github.com/taibuivan/shopauth/internal/platform/sec"
	"github.com/taibuivan/shopauth/internal/platform/validate"
)

// ErrBodyTooLarge is returned when a body exceeds [constants.MaxRequestBodyBytes].
var ErrBodyTooLarge = apperr.ValidationError("Request body too large")

/*
DecodeJSON decodes a single JSON value from the request body into target.

Returns:
  - error: validate.ErrInvalidJSON for malformed or trailing data,
    ErrBodyTooLarge past the size cap
*/
func DecodeJSON(request *http.Request, target any) error {
	body := http.MaxBytesReader(nil, request.Body, constants.MaxRequestBodyBytes)
	decoder := json.NewDecoder(body)

	if err := decoder.Decode(target); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return ErrBodyTooLarge
		}
		return validate.ErrInvalidJSON
	}

	// Exactly one value per body.
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return validate.ErrInvalidJSON
	}
	return nil
}

// Credentials is a username/email and password pair from an Authorization header.
type Credentials struct {
	Identifier string
	Password   string
	DeviceName string
}

// BasicCredentials reads "Authorization: Basic" credentials. The optional
// device label comes from the X-Device-Name header.
func BasicCredentials(request *http.Request) (Credentials, bool) {
	identifier, password, ok := request.BasicAuth()
	if !ok {
		return Credentials{}, false
	}
	return Credentials{
		Identifier: strings.TrimSpace(identifier),
		Password:   password,
		DeviceName: strings.TrimSpace(request.Header.Get(constants.HeaderDeviceName)),
	}, true
}

// Param retrieves a named URL parameter.
func Param(request *http.Request, name string) string {
	return chi.URLParam(request, name)
}

// RequiredClaims returns the caller's access-token claims, or a 401 when the
// request is anonymous.
func RequiredClaims(request *http.Request) (*sec.AuthClaims, error) {
	claims := ctxutil.GetAuthUser(request.Context())
	if claims == nil {
		return nil, apperr.Unauthorized("Authentication required")
	}
	return claims, nil
}

// RequiredUserID is [RequiredClaims] narrowed to the user ID.
func RequiredUserID(request *http.Request) (string, error) {
	claims, err := RequiredClaims(request)
	if err != nil {
		return "", err
	}
	return claims.UserID, nil
}
