// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package validate checks the shape of request payloads before they reach a
// service. Rules chain on a [Validator]; every failure is collected so the
// client receives all field problems in one 400 response.
//
// Password strength is not a shape rule and lives in the password package.
package validate

import (
	"fmt"
	"net/mail"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/taibuivan/shopauth/internal/platform/apperr"
)

var (
	// usernamePattern allows letters, digits, dot, dash and underscore.
	// No '@', so a username can never be mistaken for an email at sign-in.
	usernamePattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

	// ErrInvalidJSON is returned when the request body cannot be decoded.
	ErrInvalidJSON = apperr.ValidationError("Invalid JSON payload")
)

// Validator accumulates field errors. Use one per request.
type Validator struct {
	errs []apperr.FieldError
}

// Required fails if the trimmed value is empty.
func (v *Validator) Required(field, value string) *Validator {
	if strings.TrimSpace(value) == "" {
		v.add(field, "This field is required")
	}
	return v
}

// MaxLen fails if the rune count exceeds max.
func (v *Validator) MaxLen(field, value string, max int) *Validator {
	if utf8.RuneCountInString(value) > max {
		v.add(field, fmt.Sprintf("Maximum %d characters", max))
	}
	return v
}

// MinLen fails if the rune count is below min.
func (v *Validator) MinLen(field, value string, min int) *Validator {
	if utf8.RuneCountInString(value) < min {
		v.add(field, fmt.Sprintf("Minimum %d characters", min))
	}
	return v
}

// Email fails unless value is a bare RFC 5322 address. Display-name forms
// such as "Bob <bob@shop.local>" are rejected.
func (v *Validator) Email(field, value string) *Validator {
	address, err := mail.ParseAddress(value)
	if err != nil || address.Address != strings.TrimSpace(value) {
		v.add(field, "Must be a valid email address")
	}
	return v
}

// Username fails if value contains characters outside the username alphabet.
// Empty values are left to [Validator.Required].
func (v *Validator) Username(field, value string) *Validator {
	if value != "" && !usernamePattern.MatchString(value) {
		v.add(field, "Only letters, digits, '.', '-' and '_' are allowed")
	}
	return v
}

// Digits fails unless value is exactly length ASCII digits. Empty values are
// left to [Validator.Required].
func (v *Validator) Digits(field, value string, length int) *Validator {
	if value == "" {
		return v
	}
	if len(value) != length || strings.IndexFunc(value, func(r rune) bool { return r < '0' || r > '9' }) >= 0 {
		v.add(field, fmt.Sprintf("Must be a %d-digit code", length))
	}
	return v
}

// OneOf fails if value is not in allowed.
func (v *Validator) OneOf(field, value string, allowed ...string) *Validator {
	if !slices.Contains(allowed, value) {
		v.add(field, fmt.Sprintf("Must be one of: %s", strings.Join(allowed, ", ")))
	}
	return v
}

// Custom records message against field when failed is true.
func (v *Validator) Custom(field string, failed bool, message string) *Validator {
	if failed {
		v.add(field, message)
	}
	return v
}

// Err returns a VALIDATION_ERROR [apperr.AppError] listing every failure,
// or nil when all rules passed. Call it at the end of the chain.
func (v *Validator) Err() error {
	if !v.HasErrors() {
		return nil
	}
	return apperr.ValidationError("Validation failed", v.errs...)
}

// HasErrors reports whether any rule has failed so far.
func (v *Validator) HasErrors() bool {
	return len(v.errs) > 0
}

func (v *Validator) add(field, message string) {
	v.errs = append(v.errs, apperr.FieldError{Field: field, Message: message})
}

// RequiredError builds a single-field validation error.
func RequiredError(field, message string) *apperr.AppError {
	return apperr.ValidationError("Validation failed", apperr.FieldError{
		Field:   field,
		Message: message,
	})
}
