// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package middleware

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/taibuivan/shopauth/internal/platform/constants"
)

// AppConfig is the part of the configuration CORS needs.
type AppConfig interface {
	IsDevelopment() bool
	OriginSuffix() string
}

var (
	corsAllowedHeaders = strings.Join([]string{
		"Accept", "Content-Type", "Content-Length",
		constants.HeaderAuthorization, constants.HeaderXRequestID,
		constants.StateTokenHeader, constants.HeaderDeviceName,
	}, ", ")
	corsExposedHeaders = strings.Join([]string{
		"Content-Length", constants.HeaderXRequestID, constants.HeaderRetryAfter,
	}, ", ")
)

// CORS reflects allowed origins. Development allows any origin; otherwise the
// origin host must equal the configured suffix or be a subdomain of it.
func CORS(cfg AppConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			origin := request.Header.Get(constants.HeaderOrigin)
			if origin == "" {
				next.ServeHTTP(writer, request)
				return
			}

			if cfg.IsDevelopment() || originAllowed(origin, cfg.OriginSuffix()) {
				header := writer.Header()
				header.Set("Access-Control-Allow-Origin", origin)
				header.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
				header.Set("Access-Control-Allow-Headers", corsAllowedHeaders)
				header.Set("Access-Control-Expose-Headers", corsExposedHeaders)
				header.Set("Access-Control-Allow-Credentials", "true")
				header.Set("Access-Control-Max-Age", "300")
				header.Add("Vary", constants.HeaderOrigin)
			}

			if request.Method == http.MethodOptions {
				writer.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(writer, request)
		})
	}
}

// originAllowed matches on the parsed host so "evilshop.local" does not pass
// for the suffix "shop.local".
func originAllowed(origin, suffix string) bool {
	if suffix == "" {
		return false
	}
	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := parsed.Hostname()
	return host == suffix || strings.HasSuffix(host, "."+suffix)
}
