// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package apperr defines the error type that crosses the service/transport boundary.

Services return domain errors; each domain package maps them to an [AppError]
in its ToAppError function, and respond.Error renders the result. Anything
that reaches respond.Error without an AppError in its chain becomes a 500.

Throttling metadata travels on the error itself: RetryAfter becomes the
Retry-After header, AttemptsRemaining tells a client how many code guesses
are left.
*/
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/taibuivan/shopauth/pkg/pointer"
)

// # Generic Codes
//
// Domain packages define their own codes (ACCOUNT_LOCKED, CODE_MISMATCH, ...).

const (
	CodeNotFound      = "NOT_FOUND"
	CodeUnauthorized  = "UNAUTHORIZED"
	CodeForbidden     = "FORBIDDEN"
	CodeConflict      = "CONFLICT"
	CodeValidation    = "VALIDATION_ERROR"
	CodeUnprocessable = "UNPROCESSABLE"
	CodeRateLimited   = "RATE_LIMITED"
	CodeInternal      = "INTERNAL_ERROR"
)

// AppError is a client-safe error with an HTTP status and a machine-readable code.
//
// Cause is for server-side logs only and never leaves the process.
type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	Cause      error

	// Details lists per-field failures of a VALIDATION_ERROR.
	Details []FieldError

	// RetryAfter is in seconds. Zero means no header.
	RetryAfter int

	// AttemptsRemaining is nil unless the failure was an attempt-capped code check.
	AttemptsRemaining *int
}

// FieldError is one field-level validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func newError(status int, code, message string) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status}
}

// Error returns the client-safe message.
func (e *AppError) Error() string { return e.Message }

// Unwrap exposes Cause to [errors.Is] and [errors.As].
func (e *AppError) Unwrap() error { return e.Cause }

// # 4xx

// NotFound reports a missing resource, e.g. NotFound("Session") is "Session not found".
func NotFound(resource string) *AppError {
	return newError(http.StatusNotFound, CodeNotFound, resource+" not found")
}

// Unauthorized is a generic 401.
func Unauthorized(msg string) *AppError {
	return newError(http.StatusUnauthorized, CodeUnauthorized, msg)
}

// UnauthorizedCode is a 401 with a domain code such as INVALID_CREDENTIALS.
func UnauthorizedCode(code, msg string) *AppError {
	return newError(http.StatusUnauthorized, code, msg)
}

// Forbidden is a 403.
func Forbidden(msg string) *AppError {
	return newError(http.StatusForbidden, CodeForbidden, msg)
}

// Conflict is a 409 for uniqueness and state clashes.
func Conflict(msg string) *AppError {
	return newError(http.StatusConflict, CodeConflict, msg)
}

// ValidationError is a 400 listing the offending fields.
func ValidationError(msg string, details ...FieldError) *AppError {
	err := newError(http.StatusBadRequest, CodeValidation, msg)
	err.Details = details
	return err
}

// BadRequest is a 400 with a domain code such as EMAIL_NOT_VERIFIED.
func BadRequest(code, msg string) *AppError {
	return newError(http.StatusBadRequest, code, msg)
}

// Unprocessable is a 422 for well-formed but unacceptable input, such as a weak password.
func Unprocessable(msg string) *AppError {
	return newError(http.StatusUnprocessableEntity, CodeUnprocessable, msg)
}

// RateLimited is the per-IP 429.
func RateLimited(retryAfterSeconds int) *AppError {
	return TooManyRequests(CodeRateLimited,
		fmt.Sprintf("Too many requests. Try again in %ds.", retryAfterSeconds), retryAfterSeconds)
}

// TooManyRequests is a 429 with a domain code, e.g.
//
//	apperr.TooManyRequests("ACCOUNT_LOCKED", "Account temporarily locked", 900)
func TooManyRequests(code, msg string, retryAfterSeconds int) *AppError {
	err := newError(http.StatusTooManyRequests, code, msg)
	err.RetryAfter = retryAfterSeconds
	return err
}

// # 5xx

// Internal hides cause behind a generic message.
func Internal(cause error) *AppError {
	err := newError(http.StatusInternalServerError, CodeInternal, "An unexpected error occurred")
	err.Cause = cause
	return err
}

// # Decorators

// WithAttempts returns a copy of e carrying the remaining attempt count, floored at zero.
func (e *AppError) WithAttempts(remaining int) *AppError {
	clone := *e
	clone.AttemptsRemaining = pointer.To(max(remaining, 0))
	return &clone
}

// WithCause returns a copy of e carrying cause for the logs.
func (e *AppError) WithCause(cause error) *AppError {
	clone := *e
	clone.Cause = cause
	return &clone
}

// # Inspection

// As returns the first [*AppError] in err's chain, or nil.
func As(err error) *AppError {
	var appError *AppError
	if errors.As(err, &appError) {
		return appError
	}
	return nil
}
