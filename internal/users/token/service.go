// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package token

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/taibuivan/shopauth/internal/platform/ctxutil"
	"github.com/taibuivan/shopauth/internal/platform/dberr"
	"github.com/taibuivan/shopauth/internal/platform/sec"
	"github.com/taibuivan/shopauth/internal/users/blacklist"
	"github.com/taibuivan/shopauth/pkg/uuid"
)

// VersionSource returns the live token version of a user.
// Implementations return [dberr.ErrNotFound] for unknown users.
type VersionSource interface {
	TokenVersion(context context.Context, userID string) (int, error)
}

// Service owns the token lifecycle.
type Service struct {
	signer     *sec.TokenService
	families   FamilyStore
	blacklist  blacklist.Store
	versions   VersionSource
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// Option customizes a [Service].
type Option func(*Service)

// WithClock overrides the time source used for issuance.
func WithClock(now func() time.Time) Option {
	return func(service *Service) { service.now = now }
}

// WithTTL overrides the access and refresh lifetimes. Non-positive values keep the defaults.
func WithTTL(access, refresh time.Duration) Option {
	return func(service *Service) {
		if access > 0 {
			service.accessTTL = access
		}
		if refresh > 0 {
			service.refreshTTL = refresh
		}
	}
}

// NewService wires the signer, the family store, the blacklist and the live version lookup.
func NewService(signer *sec.TokenService, families FamilyStore, blacklist blacklist.Store, versions VersionSource, options ...Option) *Service {
	service := &Service{
		signer:     signer,
		families:   families,
		blacklist:  blacklist,
		versions:   versions,
		accessTTL:  DefaultAccessTTL,
		refreshTTL: DefaultRefreshTTL,
		now:        time.Now,
	}
	for _, option := range options {
		option(service)
	}
	return service
}

// AccessTTL is the configured access token lifetime.
func (service *Service) AccessTTL() time.Duration { return service.accessTTL }

// # Issuance

/*
Issue starts a new token family for subject and mints generation 0.

Parameters:
  - context: context.Context
  - subject: Subject (user id, role, current token version)
  - sessionID: string (the session the family is bound to)

Returns:
  - Pair: signed access and refresh tokens
  - error: storage or signing failures
*/
func (service *Service) Issue(context context.Context, subject Subject, sessionID string) (Pair, error) {
	familyID := uuid.New()

	pair, record, err := service.mint(subject, sessionID, familyID, "", 0)
	if err != nil {
		return Pair{}, err
	}

	if err := service.families.Create(context, record, service.refreshTTL); err != nil {
		return Pair{}, fmt.Errorf("token_issue_failed: %w", err)
	}

	ctxutil.GetLogger(context).InfoContext(context, "token_family_created",
		slog.String("user_id", subject.UserID),
		slog.String("family_id", familyID),
		slog.String("session_id", sessionID),
	)

	return pair, nil
}

// mint signs a new pair and returns the refresh record describing it.
func (service *Service) mint(subject Subject, sessionID, familyID, parentJTI string, generation int) (Pair, Record, error) {
	issuedAt := service.now()
	accessExpiry := issuedAt.Add(service.accessTTL)
	refreshExpiry := issuedAt.Add(service.refreshTTL)

	base := sec.AuthClaims{
		UserID:       subject.UserID,
		Username:     subject.Username,
		Role:         subject.Role,
		TokenVersion: subject.TokenVersion,
		FamilyID:     familyID,
		ParentID:     parentJTI,
		Generation:   generation,
		SessionID:    sessionID,
	}

	accessClaims := base
	accessClaims.ID = uuid.New()
	accessClaims.Type = sec.TokenTypeAccess
	accessToken, err := service.signer.Sign(accessClaims, issuedAt, service.accessTTL)
	if err != nil {
		return Pair{}, Record{}, fmt.Errorf("token_sign_access_failed: %w", err)
	}

	refreshClaims := base
	refreshClaims.ID = uuid.New()
	refreshClaims.Type = sec.TokenTypeRefresh
	refreshToken, err := service.signer.Sign(refreshClaims, issuedAt, service.refreshTTL)
	if err != nil {
		return Pair{}, Record{}, fmt.Errorf("token_sign_refresh_failed: %w", err)
	}

	pair := Pair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		TokenType:        "Bearer",
		ExpiresIn:        int(service.accessTTL.Seconds()),
		ExpiresAt:        accessExpiry,
		RefreshExpiresAt: refreshExpiry,
		FamilyID:         familyID,
		SessionID:        sessionID,
		Generation:       generation,
	}

	record := Record{
		JTI:             refreshClaims.ID,
		FamilyID:        familyID,
		ParentJTI:       parentJTI,
		Generation:      generation,
		UserID:          subject.UserID,
		SessionID:       sessionID,
		AccessJTI:       accessClaims.ID,
		AccessExpiresAt: accessExpiry,
		ExpiresAt:       refreshExpiry,
	}

	return pair, record, nil
}

// # Rotation

/*
Refresh exchanges a refresh token for a new pair of the same family.

Exactly one caller can rotate a given refresh token. Every later presentation
of it revokes the whole family and fails with [KindReplay].

Returns:
  - Pair: generation+1 of the family
  - error: *ValidationError or storage failures
*/
func (service *Service) Refresh(context context.Context, raw string) (Pair, error) {
	logger := ctxutil.GetLogger(context)

	// ── 1. Signature & Claims ─────────────────────────────────────────
	claims, err := service.parse(raw, sec.TokenTypeRefresh)
	if err != nil {
		return Pair{}, err
	}

	// ── 2. Already Rotated? ───────────────────────────────────────────
	listed, err := service.blacklist.Contains(context, claims.ID)
	if err != nil {
		return Pair{}, fmt.Errorf("token_refresh_failed: %w", err)
	}
	if listed {
		return Pair{}, service.replay(context, claims)
	}

	// ── 3. Version Check ──────────────────────────────────────────────
	if err := service.checkVersion(context, claims); err != nil {
		return Pair{}, err
	}

	// ── 4. Compare-and-Swap ───────────────────────────────────────────
	subject := Subject{
		UserID:       claims.UserID,
		Username:     claims.Username,
		Role:         claims.Role,
		TokenVersion: claims.TokenVersion,
	}
	pair, next, err := service.mint(subject, claims.SessionID, claims.FamilyID, claims.ID, claims.Generation+1)
	if err != nil {
		return Pair{}, err
	}

	status, previous, err := service.families.Rotate(context, claims.ID, claims.FamilyID, next, service.refreshTTL)
	if err != nil {
		return Pair{}, fmt.Errorf("token_refresh_failed: %w", err)
	}

	switch status {
	case RotateUnknown, RotateRevoked:
		return Pair{}, reject(KindRevoked, nil)
	case RotateReplay:
		return Pair{}, service.replay(context, claims)
	}

	// ── 5. Retire the Previous Pair ───────────────────────────────────
	// A concurrent replay may have listed the jti first. The family is already
	// revoked in that case and the winner keeps its (dead) pair.
	err = service.blacklist.AddUnique(context, claims.ID, claims.ExpiresAt.Time, blacklist.ReasonRotated)
	if errors.Is(err, blacklist.ErrAlreadyBlacklisted) {
		logger.WarnContext(context, "refresh_rotation_raced",
			slog.String("family_id", claims.FamilyID),
		)
		err = nil
	}
	if err != nil {
		return Pair{}, fmt.Errorf("token_refresh_failed: %w", err)
	}

	if previous.AccessJTI != "" {
		if err := service.blacklist.Add(context, previous.AccessJTI, previous.AccessExpiresAt, blacklist.ReasonRotated); err != nil {
			return Pair{}, fmt.Errorf("token_refresh_failed: %w", err)
		}
	}

	logger.InfoContext(context, "token_refreshed",
		slog.String("user_id", claims.UserID),
		slog.String("family_id", claims.FamilyID),
		slog.Int("generation", pair.Generation),
	)

	return pair, nil
}

// replay revokes the family of a reused refresh token and blacklists it.
func (service *Service) replay(context context.Context, claims *sec.AuthClaims) error {
	ctxutil.GetLogger(context).WarnContext(context, "refresh_replay_detected",
		slog.String("user_id", claims.UserID),
		slog.String("family_id", claims.FamilyID),
		slog.Int("generation", claims.Generation),
	)

	if err := service.families.Revoke(context, claims.FamilyID, string(blacklist.ReasonReplayDetected)); err != nil {
		return fmt.Errorf("token_replay_revoke_failed: %w", err)
	}
	if err := service.blacklist.Add(context, claims.ID, claims.ExpiresAt.Time, blacklist.ReasonReplayDetected); err != nil {
		return fmt.Errorf("token_replay_revoke_failed: %w", err)
	}

	return reject(KindReplay, nil)
}

// # Revocation

// RevokeFamily kills every token of a family, access tokens included.
func (service *Service) RevokeFamily(context context.Context, familyID string, reason blacklist.Reason) error {
	if familyID == "" {
		return nil
	}
	if err := service.families.Revoke(context, familyID, string(reason)); err != nil {
		return fmt.Errorf("token_revoke_family_failed: %w", err)
	}

	ctxutil.GetLogger(context).InfoContext(context, "token_family_revoked",
		slog.String("family_id", familyID),
		slog.String("reason", string(reason)),
	)
	return nil
}

// Logout blacklists the presented access token and revokes its refresh counterpart.
func (service *Service) Logout(context context.Context, claims *sec.AuthClaims) error {
	if claims.ExpiresAt != nil {
		if err := service.blacklist.Add(context, claims.ID, claims.ExpiresAt.Time, blacklist.ReasonSignOut); err != nil {
			return fmt.Errorf("token_logout_failed: %w", err)
		}
	}
	return service.RevokeFamily(context, claims.FamilyID, blacklist.ReasonSignOut)
}

// Blacklist records jti until expiresAt. Used when a password change retires the caller's own token.
func (service *Service) Blacklist(context context.Context, claims *sec.AuthClaims, reason blacklist.Reason) error {
	if claims == nil || claims.ExpiresAt == nil {
		return nil
	}
	if err := service.blacklist.Add(context, claims.ID, claims.ExpiresAt.Time, reason); err != nil {
		return fmt.Errorf("token_blacklist_failed: %w", err)
	}
	return nil
}

// # Validation

/*
Validate performs the full gate on a token of the expected type.

Checks run in order: signature, expiry, issuer/audience, type, blacklist,
family revocation, token version. A version mismatch also blacklists the jti.

Returns:
  - *sec.AuthClaims: the verified claims
  - error: *ValidationError or storage failures
*/
func (service *Service) Validate(context context.Context, raw string, expected sec.TokenType) (*sec.AuthClaims, error) {
	claims, err := service.parse(raw, expected)
	if err != nil {
		return nil, err
	}

	listed, err := service.blacklist.Contains(context, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("token_validate_failed: %w", err)
	}
	if listed {
		return nil, reject(KindBlacklisted, nil)
	}

	revoked, err := service.families.IsRevoked(context, claims.FamilyID)
	if err != nil {
		return nil, fmt.Errorf("token_validate_failed: %w", err)
	}
	if revoked {
		return nil, reject(KindRevoked, nil)
	}

	if err := service.checkVersion(context, claims); err != nil {
		return nil, err
	}

	return claims, nil
}

// VerifyAccessToken is [Service.Validate] for access tokens.
func (service *Service) VerifyAccessToken(context context.Context, raw string) (*sec.AuthClaims, error) {
	return service.Validate(context, raw, sec.TokenTypeAccess)
}

func (service *Service) parse(raw string, expected sec.TokenType) (*sec.AuthClaims, error) {
	claims, err := service.signer.Parse(raw)
	if err != nil {
		switch {
		case errors.Is(err, sec.ErrTokenExpired):
			return nil, reject(KindExpired, err)
		case errors.Is(err, sec.ErrTokenClaims):
			return nil, reject(KindInvalidClaims, err)
		default:
			return nil, reject(KindInvalidSignature, err)
		}
	}

	if claims.Type != expected {
		return nil, reject(KindInvalidClaims, fmt.Errorf("expected %s token, got %q", expected, claims.Type))
	}

	return claims, nil
}

func (service *Service) checkVersion(context context.Context, claims *sec.AuthClaims) error {
	current, err := service.versions.TokenVersion(context, claims.UserID)
	if errors.Is(err, dberr.ErrNotFound) {
		return reject(KindInvalidClaims, errors.New("subject no longer exists"))
	}
	if err != nil {
		return fmt.Errorf("token_version_lookup_failed: %w", err)
	}

	if current == claims.TokenVersion {
		return nil
	}

	if claims.ExpiresAt != nil {
		if err := service.blacklist.Add(context, claims.ID, claims.ExpiresAt.Time, blacklist.ReasonVersionChange); err != nil {
			return fmt.Errorf("token_version_blacklist_failed: %w", err)
		}
	}
	return reject(KindVersionMismatch, nil)
}
