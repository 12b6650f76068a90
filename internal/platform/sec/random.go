// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package sec

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"math/big"
	"strings"
)

// GenerateSecureToken returns a URL-safe random token built from n random bytes.
func GenerateSecureToken(n int) (string, error) {
	buffer := make([]byte, n)
	if _, err := rand.Read(buffer); err != nil {
		return "", fmt.Errorf("sec: failed to read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buffer), nil
}

// RandomDigits returns a string of n uniformly distributed decimal digits.
func RandomDigits(n int) (string, error) {
	return RandomString(n, "0123456789")
}

// RandomString returns n characters drawn uniformly from alphabet using crypto/rand.
func RandomString(n int, alphabet string) (string, error) {
	var builder strings.Builder
	builder.Grow(n)

	max := big.NewInt(int64(len(alphabet)))
	for i := 0; i < n; i++ {
		index, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("sec: failed to draw random index: %w", err)
		}
		builder.WriteByte(alphabet[index.Int64()])
	}

	return builder.String(), nil
}
