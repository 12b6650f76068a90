// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package normalize canonicalizes user-supplied identifiers.
//
// # Usage
//
// Sign-in identifiers (email or username) are compared and used as lockout
// keys after normalization, so "Alice@Shop.Local" and "alice@shop.local"
// share one failure counter. The password policy also folds personal info
// through [Fold] before looking for it inside a candidate password.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Identifier returns the canonical form of an email or username.
//
// # Transformation Pipeline
//
// 1. Trims surrounding whitespace.
// 2. Normalizes to NFKC (compatibility forms such as full-width letters collapse).
// 3. Applies Unicode case folding.
func Identifier(s string) string {
	s = strings.TrimSpace(s)
	s = norm.NFKC.String(s)
	return cases.Fold().String(s)
}

// Fold strips accents and case-folds s, keeping only letters and digits.
// It is used for fuzzy containment checks, never for storage.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, transform.RemoveFunc(isMn), norm.NFC)
	result, _, err := transform.String(t, s)
	if err != nil {
		result = s
	}

	result = cases.Fold().String(result)

	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return -1
	}, result)
}

// EmailLocalPart returns the part of an address before the last '@'.
func EmailLocalPart(email string) string {
	if at := strings.LastIndex(email, "@"); at >= 0 {
		return email[:at]
	}
	return email
}

// isMn reports whether r is a Unicode non-spacing mark (e.g., accents).
func isMn(r rune) bool {
	return unicode.Is(unicode.Mn, r)
}
