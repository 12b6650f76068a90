// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package constants holds the fixed values shared across layers of the auth
server: HTTP timing, header names, body limits and the Redis key taxonomy.

Anything an operator may want to tune lives in config instead.
*/
package constants

import "time"

// # Metadata

const (
	AppName    = "shopauth-api"
	AppVersion = "0.1.0-dev"

	// AppDisplayName appears in email subjects and bodies.
	AppDisplayName = "Shop"
)

// # Server Timing

const (
	// DefaultReadTimeout is the maximum duration for reading the entire request.
	DefaultReadTimeout = 5 * time.Second

	// DefaultWriteTimeout is the maximum duration before timing out writes of the response.
	DefaultWriteTimeout = 10 * time.Second

	// DefaultIdleTimeout is the maximum amount of time to wait for the next request.
	DefaultIdleTimeout = 120 * time.Second

	// DefaultReadHeaderTimeout is the amount of time allowed to read request headers.
	DefaultReadHeaderTimeout = 2 * time.Second

	// GlobalRequestTimeout is the deadline for the entire request lifecycle.
	GlobalRequestTimeout = 30 * time.Second

	// ShutdownTimeout is how long we wait for in-flight requests to complete during shutdown.
	ShutdownTimeout = 30 * time.Second
)

// # Rate Limiting

const (
	// RateLimitCleanupInterval is how often old IP entries are removed from memory.
	RateLimitCleanupInterval = 1 * time.Minute

	// RateLimitClientTTL is how long a client must be idle before its entry is deleted.
	RateLimitClientTTL = 3 * time.Minute
)

// # Authentication

const (
	// MaxRequestBodyBytes caps JSON request bodies. Auth payloads are tiny.
	MaxRequestBodyBytes = 64 << 10

	// StateTokenHeader carries the sign-in state token as an alternative to the body field.
	StateTokenHeader = "X-Sign-In-State"
)

// # HTTP Headers

const (
	HeaderXRequestID    = "X-Request-ID"
	HeaderXRealIP       = "X-Real-IP"
	HeaderXForwardedFor = "X-Forwarded-For"
	HeaderOrigin        = "Origin"
	HeaderAuthorization = "Authorization"
	HeaderRetryAfter    = "Retry-After"
	HeaderDeviceName    = "X-Device-Name"
)

// # Redis Prefixes
//
// Every record under these prefixes carries a TTL.

const (
	RedisPrefixCode         = "otp:code:"
	RedisPrefixCodeCooldown = "otp:cooldown:"
	RedisPrefixLockout      = "signin:fail:"
	RedisPrefixState        = "signin:state:"
	RedisPrefixStateIndex   = "signin:user:"
	RedisPrefixTokenJTI     = "token:jti:"
	RedisPrefixTokenFamily  = "token:family:"
	RedisPrefixBlacklist    = "blacklist:"
	RedisPrefixTOTPPending  = "totp:pending:"
	RedisPrefixTOTPFail     = "totp:fail:"
	RedisPrefixTOTPUsed     = "totp:used:"
	RedisPrefixRecoveryFail = "recovery:fail:"
)
