// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package normalize_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/taibuivan/shopauth/pkg/normalize"
)

func TestIdentifier(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"lowercases", "Alice@Shop.Local", "alice@shop.local"},
		{"trims", "  bob  ", "bob"},
		{"full_width", "ＡＬＩＣＥ", "alice"},
		{"already_canonical", "carol", "carol"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, normalize.Identifier(tt.input))
		})
	}
}

func TestFold(t *testing.T) {
	assert.Equal(t, "jose", normalize.Fold("José"))
	assert.Equal(t, "maryjane", normalize.Fold("Mary-Jane"))
	assert.Equal(t, "", normalize.Fold("--"))
}

func TestEmailLocalPart(t *testing.T) {
	assert.Equal(t, "alice", normalize.EmailLocalPart("alice@shop.local"))
	assert.Equal(t, "no-at", normalize.EmailLocalPart("no-at"))
}
