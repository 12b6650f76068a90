// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package requestutil_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/shopauth/internal/platform/constants"
	"github.com/taibuivan/shopauth/internal/platform/ctxutil"
	requestutil "github.com/taibuivan/shopauth/internal/platform/request"
	"github.com/taibuivan/shopauth/internal/platform/sec"
	"github.com/taibuivan/shopauth/internal/platform/validate"
)

type payload struct {
	Identifier string `json:"identifier"`
}

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr error
	}{
		{"single_object", `{"identifier":"alice"}`, nil},
		{"trailing_whitespace", "{\"identifier\":\"alice\"}\n", nil},
		{"malformed", `{"identifier":`, validate.ErrInvalidJSON},
		{"two_objects", `{"identifier":"a"}{"identifier":"b"}`, validate.ErrInvalidJSON},
		{"empty", ``, validate.ErrInvalidJSON},
		{"too_large", `{"identifier":"` + strings.Repeat("a", constants.MaxRequestBodyBytes) + `"}`, requestutil.ErrBodyTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			request := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))

			var target payload
			err := requestutil.DecodeJSON(request, &target)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "alice", target.Identifier)
		})
	}
}

func TestBasicCredentials(t *testing.T) {
	request := httptest.NewRequest(http.MethodPost, "/", nil)
	_, ok := requestutil.BasicCredentials(request)
	assert.False(t, ok)

	request.SetBasicAuth(" bob@shop.local ", "Gx7#mQ2v!Lp9zR")
	request.Header.Set(constants.HeaderDeviceName, "Bob's phone")

	credentials, ok := requestutil.BasicCredentials(request)
	require.True(t, ok)
	assert.Equal(t, "bob@shop.local", credentials.Identifier)
	assert.Equal(t, "Gx7#mQ2v!Lp9zR", credentials.Password)
	assert.Equal(t, "Bob's phone", credentials.DeviceName)
}

func TestRequiredUserID(t *testing.T) {
	request := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err := requestutil.RequiredUserID(request)
	require.Error(t, err)

	ctx := ctxutil.WithAuthUser(request.Context(), &sec.AuthClaims{UserID: "user-1"})
	userID, err := requestutil.RequiredUserID(request.WithContext(ctx))
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)
}
