// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package pointer holds generic helpers for optional fields, such as the
// attemptsRemaining counter that is only present on capped verification errors.
package pointer

// To returns a pointer to a copy of v.
func To[T any](v T) *T {
	return &v
}
