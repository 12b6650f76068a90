// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package sec provides cryptographic primitives and token signing.
//
// # Architecture
//
// This package isolates security-sensitive code (Hashing, JWT Signing) from
// the domain logic. It only knows how to sign and parse; lifecycle rules
// (rotation, blacklisting, token versions) live in the token package.
package sec

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// # Token Types

// TokenType distinguishes access tokens from refresh tokens inside the "typ" claim.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// # Parse Failures

var (
	// ErrTokenExpired is returned when the exp claim is in the past.
	ErrTokenExpired = errors.New("sec: token expired")

	// ErrTokenSignature is returned for malformed tokens or bad signatures.
	ErrTokenSignature = errors.New("sec: invalid token signature")

	// ErrTokenClaims is returned when issuer, audience or required claims are wrong.
	ErrTokenClaims = errors.New("sec: invalid token claims")
)

// AuthClaims represents the payload embedded inside both access and refresh tokens.
//
// # Why custom claims?
//
// Embedding the role and token version lets the middleware authorize a request
// with a single user lookup (the version check) instead of a session join.
type AuthClaims struct {
	jwt.RegisteredClaims

	// Custom application claims are abbreviated to keep the JWT payload small.
	UserID       string    `json:"uid"`
	Username     string    `json:"unm"`
	Role         string    `json:"rol"`
	TokenVersion int       `json:"tv"`
	FamilyID     string    `json:"fam"`
	ParentID     string    `json:"pid,omitempty"`
	Generation   int       `json:"gen"`
	SessionID    string    `json:"sid"`
	Type         TokenType `json:"typ"`
}

// TokenService handles generation and verification of JWT tokens using RS256.
type TokenService struct {
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	issuer     string
	audience   string
	now        func() time.Time
}

// TokenOption customizes a [TokenService].
type TokenOption func(*TokenService)

// WithTimeFunc overrides the clock used for expiry checks.
func WithTimeFunc(now func() time.Time) TokenOption {
	return func(service *TokenService) { service.now = now }
}

// NewTokenService creates a new TokenService.
// It reads RSA keys from the provided filesystem paths.
func NewTokenService(privateKeyPath, publicKeyPath, issuer, audience string, options ...TokenOption) (*TokenService, error) {
	privateKeyData, err := os.ReadFile(privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("auth: failed to read private key from %s: %w", privateKeyPath, err)
	}

	privateKey, err := jwt.ParseRSAPrivateKeyFromPEM(privateKeyData)
	if err != nil {
		return nil, fmt.Errorf("auth: failed to parse private key: %w", err)
	}

	publicKeyData, err := os.ReadFile(publicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("auth: failed to read public key from %s: %w", publicKeyPath, err)
	}

	publicKey, err := jwt.ParseRSAPublicKeyFromPEM(publicKeyData)
	if err != nil {
		return nil, fmt.Errorf("auth: failed to parse public key: %w", err)
	}

	return NewTokenServiceFromKey(privateKey, publicKey, issuer, audience, options...), nil
}

// NewTokenServiceFromKey builds a TokenService from already-parsed keys.
func NewTokenServiceFromKey(privateKey *rsa.PrivateKey, publicKey *rsa.PublicKey, issuer, audience string, options ...TokenOption) *TokenService {
	service := &TokenService{
		privateKey: privateKey,
		publicKey:  publicKey,
		issuer:     issuer,
		audience:   audience,
		now:        time.Now,
	}
	for _, option := range options {
		option(service)
	}
	return service
}

// Sign stamps issuer, audience and timestamps onto claims and signs them.
func (service *TokenService) Sign(claims AuthClaims, issuedAt time.Time, timeToLive time.Duration) (string, error) {
	claims.Issuer = service.issuer
	claims.Audience = jwt.ClaimStrings{service.audience}
	claims.Subject = claims.UserID
	claims.IssuedAt = jwt.NewNumericDate(issuedAt)
	claims.NotBefore = jwt.NewNumericDate(issuedAt)
	claims.ExpiresAt = jwt.NewNumericDate(issuedAt.Add(timeToLive))

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signedToken, err := token.SignedString(service.privateKey)
	if err != nil {
		return "", fmt.Errorf("auth: failed to sign token: %w", err)
	}

	return signedToken, nil
}

// Parse checks the signature, expiry, issuer and audience of a JWT string.
//
// Failures are reported as one of [ErrTokenExpired], [ErrTokenSignature]
// or [ErrTokenClaims] so callers can classify them.
func (service *TokenService) Parse(tokenString string) (*AuthClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AuthClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
		}
		return service.publicKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(service.issuer),
		jwt.WithAudience(service.audience),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(5*time.Second),
		jwt.WithTimeFunc(service.now),
	)

	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		case errors.Is(err, jwt.ErrTokenInvalidIssuer),
			errors.Is(err, jwt.ErrTokenInvalidAudience),
			errors.Is(err, jwt.ErrTokenRequiredClaimMissing),
			errors.Is(err, jwt.ErrTokenNotValidYet),
			errors.Is(err, jwt.ErrTokenInvalidClaims):
			return nil, fmt.Errorf("%w: %v", ErrTokenClaims, err)
		default:
			return nil, fmt.Errorf("%w: %v", ErrTokenSignature, err)
		}
	}

	claims, ok := token.Claims.(*AuthClaims)
	if !ok || !token.Valid {
		return nil, ErrTokenClaims
	}

	if claims.ID == "" || claims.UserID == "" || claims.FamilyID == "" {
		return nil, fmt.Errorf("%w: missing jti, uid or fam", ErrTokenClaims)
	}

	return claims, nil
}
