// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package password implements the password policy engine.

A [Policy] inspects a candidate password against length, composition,
personal-info, pattern, dictionary and entropy rules. Evaluation is pure and
deterministic: the same input always yields the same [Result], every rule is
checked, and violations are returned in rule-priority order.

Usage:

	result := password.DefaultPolicy().Validate(candidate, password.PersonalInfo{
	    Username: "alice",
	    Email:    "alice@shop.local",
	})
	if !result.Valid {
	    return result.Err()
	}
*/
package password

import (
	"math"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/taibuivan/shopauth/internal/platform/apperr"
	"github.com/taibuivan/shopauth/pkg/normalize"
)

// # Rules

// Rule identifies one policy check. Values are stable and safe to expose to clients.
type Rule string

const (
	RuleTooShort         Rule = "too_short"
	RuleTooLong          Rule = "too_long"
	RuleMissingUppercase Rule = "missing_uppercase"
	RuleMissingLowercase Rule = "missing_lowercase"
	RuleMissingDigit     Rule = "missing_digit"
	RuleMissingSpecial   Rule = "missing_special"
	RulePersonalInfo     Rule = "contains_personal_info"
	RuleRepeated         Rule = "repeated_characters"
	RuleSequential       Rule = "sequential_pattern"
	RuleKeyboardWalk     Rule = "keyboard_pattern"
	RuleCommon           Rule = "common_password"
	RuleLowEntropy       Rule = "low_entropy"
)

// Strength is a coarse band derived from entropy bits.
type Strength string

const (
	StrengthVeryWeak   Strength = "very-weak"
	StrengthWeak       Strength = "weak"
	StrengthModerate   Strength = "moderate"
	StrengthStrong     Strength = "strong"
	StrengthVeryStrong Strength = "very-strong"
)

// SpecialCharacters is the fixed set that satisfies the special-character rule.
const SpecialCharacters = "!@#$%^&*()_+-=[]{}|;:,.<>?/~`'\"\\"

const (
	defaultMinLength  = 12
	legacyMinLength   = 8
	defaultMaxLength  = 128
	defaultMinEntropy = 40.0

	// minPersonalLength skips personal values too short to be meaningful ("al").
	minPersonalLength = 3
	// runLength is the shortest repeated or sequential run that counts.
	runLength = 3
)

var (
	sequences = []string{
		"abcdefghijklmnopqrstuvwxyz",
		"0123456789",
	}

	keyboardWalk = regexp.MustCompile(`(?i)(qwert|werty|ertyu|rtyui|tyuio|yuiop|asdfg|sdfgh|dfghj|fghjk|ghjkl|zxcvb|xcvbn|cvbnm|qwertz|azerty|1qaz|2wsx|3edc|qazwsx|poiuy|lkjhg|mnbvc)`)

	leetspeak = strings.NewReplacer("@", "a", "4", "a", "1", "i", "!", "i", "0", "o", "3", "e", "$", "s", "5", "s")

	messages = map[Rule]string{
		RuleTooShort:         "Password is too short",
		RuleTooLong:          "Password is too long",
		RuleMissingUppercase: "Password must contain an uppercase letter",
		RuleMissingLowercase: "Password must contain a lowercase letter",
		RuleMissingDigit:     "Password must contain a digit",
		RuleMissingSpecial:   "Password must contain a special character",
		RulePersonalInfo:     "Password must not contain your username, name or email",
		RuleRepeated:         "Password must not repeat the same character three times in a row",
		RuleSequential:       "Password must not contain sequences like abc or 123",
		RuleKeyboardWalk:     "Password must not contain keyboard patterns like qwerty",
		RuleCommon:           "Password is too common",
		RuleLowEntropy:       "Password is too predictable",
	}

	suggestions = map[Rule]string{
		RuleTooShort:         "Use a longer passphrase",
		RuleMissingUppercase: "Add an uppercase letter",
		RuleMissingLowercase: "Add a lowercase letter",
		RuleMissingDigit:     "Add a number",
		RuleMissingSpecial:   "Add a symbol such as ! or #",
		RulePersonalInfo:     "Avoid personal details",
		RuleRepeated:         "Avoid repeated characters",
		RuleSequential:       "Avoid alphabetical or numeric runs",
		RuleKeyboardWalk:     "Avoid adjacent keyboard keys",
		RuleCommon:           "Choose something less common",
		RuleLowEntropy:       "Mix unrelated words, numbers and symbols",
	}
)

// # Types

// PersonalInfo carries values the password must not contain.
type PersonalInfo struct {
	Username    string
	DisplayName string
	Email       string
}

// Violation is one failed rule.
type Violation struct {
	Rule    Rule   `json:"rule"`
	Message string `json:"message"`
}

// Result is the full verdict for one candidate.
type Result struct {
	Valid       bool        `json:"valid"`
	Violations  []Violation `json:"violations"`
	Entropy     float64     `json:"entropy"`
	Strength    Strength    `json:"strength"`
	Suggestions []string    `json:"suggestions"`
}

// Policy holds the configurable bounds. The zero value is not usable; use a constructor.
type Policy struct {
	MinLength  int
	MaxLength  int
	MinEntropy float64
}

// DefaultPolicy applies to new accounts.
func DefaultPolicy() Policy {
	return Policy{MinLength: defaultMinLength, MaxLength: defaultMaxLength, MinEntropy: defaultMinEntropy}
}

// LegacyPolicy keeps the shorter minimum used by older flows.
func LegacyPolicy() Policy {
	return Policy{MinLength: legacyMinLength, MaxLength: defaultMaxLength, MinEntropy: defaultMinEntropy}
}

// NewPolicy returns the default policy with a custom minimum length.
func NewPolicy(minLength int) Policy {
	policy := DefaultPolicy()
	if minLength > 0 {
		policy.MinLength = minLength
	}
	return policy
}

// # Evaluation

/*
Validate runs every rule against candidate.

Parameters:
  - candidate: string (cleartext password)
  - info: PersonalInfo (optional, zero value disables the personal-info rule)

Returns:
  - Result: verdict, ordered violations, entropy, strength and suggestions
*/
func (policy Policy) Validate(candidate string, info PersonalInfo) Result {
	var failed []Rule

	length := utf8.RuneCountInString(candidate)
	if length < policy.MinLength {
		failed = append(failed, RuleTooShort)
	}
	if policy.MaxLength > 0 && length > policy.MaxLength {
		failed = append(failed, RuleTooLong)
	}

	failed = append(failed, composition(candidate)...)

	if containsPersonalInfo(candidate, info) {
		failed = append(failed, RulePersonalInfo)
	}
	if hasRepeatedRun(candidate) {
		failed = append(failed, RuleRepeated)
	}
	if hasSequentialRun(candidate) {
		failed = append(failed, RuleSequential)
	}
	if keyboardWalk.MatchString(candidate) {
		failed = append(failed, RuleKeyboardWalk)
	}
	if isCommon(candidate) {
		failed = append(failed, RuleCommon)
	}

	entropy := Entropy(candidate)
	if entropy < policy.MinEntropy {
		failed = append(failed, RuleLowEntropy)
	}

	result := Result{
		Valid:       len(failed) == 0,
		Violations:  make([]Violation, 0, len(failed)),
		Entropy:     entropy,
		Strength:    StrengthFor(entropy),
		Suggestions: make([]string, 0, len(failed)),
	}

	for _, rule := range failed {
		result.Violations = append(result.Violations, Violation{Rule: rule, Message: messages[rule]})
		if hint, ok := suggestions[rule]; ok {
			result.Suggestions = append(result.Suggestions, hint)
		}
	}

	return result
}

// Err converts an invalid result into a 422 [apperr.AppError]. Valid results return nil.
func (result Result) Err() error {
	if result.Valid {
		return nil
	}

	details := make([]apperr.FieldError, 0, len(result.Violations))
	for _, violation := range result.Violations {
		details = append(details, apperr.FieldError{Field: "password", Message: violation.Message})
	}

	appErr := apperr.Unprocessable(result.Violations[0].Message)
	appErr.Code = "WEAK_PASSWORD"
	appErr.Details = details
	return appErr
}

// Entropy estimates the password's strength in bits.
//
// The raw estimate is length × log2(pool size); it is then discounted by the
// share of distinct characters so that "Aa1!Aa1!Aa1!" scores below a password
// of the same length with no repetition.
func Entropy(candidate string) float64 {
	length := utf8.RuneCountInString(candidate)
	if length == 0 {
		return 0
	}

	var hasLower, hasUpper, hasDigit, hasSpecial, hasOther bool
	distinct := make(map[rune]struct{}, length)

	for _, r := range candidate {
		distinct[r] = struct{}{}
		switch {
		case r >= 'a' && r <= 'z':
			hasLower = true
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= '0' && r <= '9':
			hasDigit = true
		case strings.ContainsRune(SpecialCharacters, r):
			hasSpecial = true
		default:
			hasOther = true
		}
	}

	pool := 0
	if hasLower {
		pool += 26
	}
	if hasUpper {
		pool += 26
	}
	if hasDigit {
		pool += 10
	}
	if hasSpecial {
		pool += len(SpecialCharacters)
	}
	if hasOther {
		pool += 32
	}

	raw := float64(length) * math.Log2(float64(pool))
	uniqueness := float64(len(distinct)) / float64(length)

	return math.Round(raw*(0.5+0.5*uniqueness)*100) / 100
}

// StrengthFor maps entropy bits onto the 20/40/60/80 bands.
func StrengthFor(entropy float64) Strength {
	switch {
	case entropy < 20:
		return StrengthVeryWeak
	case entropy < 40:
		return StrengthWeak
	case entropy < 60:
		return StrengthModerate
	case entropy < 80:
		return StrengthStrong
	default:
		return StrengthVeryStrong
	}
}

// # Rule helpers

func composition(candidate string) []Rule {
	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range candidate {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case strings.ContainsRune(SpecialCharacters, r):
			hasSpecial = true
		}
	}

	var failed []Rule
	if !hasUpper {
		failed = append(failed, RuleMissingUppercase)
	}
	if !hasLower {
		failed = append(failed, RuleMissingLowercase)
	}
	if !hasDigit {
		failed = append(failed, RuleMissingDigit)
	}
	if !hasSpecial {
		failed = append(failed, RuleMissingSpecial)
	}
	return failed
}

func containsPersonalInfo(candidate string, info PersonalInfo) bool {
	lowered := strings.ToLower(candidate)
	folded := normalize.Fold(lowered)
	unleeted := normalize.Fold(leetspeak.Replace(lowered))

	values := []string{info.Username, info.DisplayName, normalize.EmailLocalPart(info.Email)}
	for _, value := range values {
		needle := normalize.Fold(value)
		if utf8.RuneCountInString(needle) < minPersonalLength {
			continue
		}
		if strings.Contains(folded, needle) || strings.Contains(unleeted, needle) {
			return true
		}
	}

	// Display names often contain several words; each one counts on its own.
	for _, word := range strings.Fields(info.DisplayName) {
		needle := normalize.Fold(word)
		if utf8.RuneCountInString(needle) < minPersonalLength {
			continue
		}
		if strings.Contains(folded, needle) || strings.Contains(unleeted, needle) {
			return true
		}
	}

	return false
}

func hasRepeatedRun(candidate string) bool {
	var previous rune
	run := 0
	for _, r := range candidate {
		if r == previous {
			run++
		} else {
			previous = r
			run = 1
		}
		if run >= runLength {
			return true
		}
	}
	return false
}

func hasSequentialRun(candidate string) bool {
	lowered := []rune(strings.ToLower(candidate))
	for start := 0; start+runLength <= len(lowered); start++ {
		window := string(lowered[start : start+runLength])
		for _, sequence := range sequences {
			if strings.Contains(sequence, window) || strings.Contains(reverse(sequence), window) {
				return true
			}
		}
	}
	return false
}

func reverse(s string) string {
	runes := []rune(s)
	for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
		runes[i], runes[j] = runes[j], runes[i]
	}
	return string(runes)
}
