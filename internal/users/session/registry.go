// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/taibuivan/shopauth/internal/platform/ctxutil"
	"github.com/taibuivan/shopauth/internal/platform/dberr"
	"github.com/taibuivan/shopauth/internal/users/blacklist"
)

// FamilyRevoker kills a token family. Implemented by the token service.
type FamilyRevoker interface {
	RevokeFamily(context context.Context, familyID string, reason blacklist.Reason) error
}

// Registry coordinates session records with token family revocation.
type Registry struct {
	repository Repository
	revoker    FamilyRevoker
	now        func() time.Time
}

// RegistryOption customizes a [Registry].
type RegistryOption func(*Registry)

// WithClock overrides the time source.
func WithClock(now func() time.Time) RegistryOption {
	return func(registry *Registry) { registry.now = now }
}

// NewRegistry creates a new [Registry].
func NewRegistry(repository Repository, revoker FamilyRevoker, options ...RegistryOption) *Registry {
	registry := &Registry{repository: repository, revoker: revoker, now: time.Now}
	for _, option := range options {
		option(registry)
	}
	return registry
}

/*
Record persists the session created by a completed sign-in.

Parameters:
  - context: context.Context
  - session: Session (ID, UserID, FamilyID and ExpiresAt are required)

Returns:
  - error: Persistence failures
*/
func (registry *Registry) Record(context context.Context, session Session) error {
	now := registry.now().UTC()
	session.IsActive = true
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.LastUsedAt = now

	if err := registry.repository.Create(context, &session); err != nil {
		return fmt.Errorf("session_record_failed: %w", err)
	}

	ctxutil.GetLogger(context).InfoContext(context, "session_created",
		slog.String("user_id", session.UserID),
		slog.String("session_id", session.ID),
	)
	return nil
}

// Touch marks the session as used. Called on every refresh.
func (registry *Registry) Touch(context context.Context, sessionID, ip string) error {
	if err := registry.repository.Touch(context, sessionID, ip, registry.now().UTC()); err != nil {
		return fmt.Errorf("session_touch_failed: %w", err)
	}
	return nil
}

// List returns the user's active sessions and flags the one making the request.
func (registry *Registry) List(context context.Context, userID, currentSessionID string) ([]View, error) {
	sessions, err := registry.repository.ListActive(context, userID, registry.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("session_list_failed: %w", err)
	}

	views := make([]View, 0, len(sessions))
	for _, session := range sessions {
		views = append(views, View{Session: session, IsCurrent: session.ID == currentSessionID})
	}
	return views, nil
}

/*
Revoke signs one device out remotely.

Parameters:
  - context: context.Context
  - userID: string (owner check)
  - sessionID: string

Returns:
  - error: dberr.ErrNotFound for unknown or foreign sessions
*/
func (registry *Registry) Revoke(context context.Context, userID, sessionID string) error {
	session, err := registry.repository.Deactivate(context, userID, sessionID, registry.now().UTC())
	if err != nil {
		return err
	}

	if err := registry.revoker.RevokeFamily(context, session.FamilyID, blacklist.ReasonRevoked); err != nil {
		return fmt.Errorf("session_revoke_failed: %w", err)
	}

	ctxutil.GetLogger(context).InfoContext(context, "session_revoked",
		slog.String("user_id", userID),
		slog.String("session_id", sessionID),
	)
	return nil
}

// End deactivates a session whose tokens the caller has already retired, as on sign-out.
func (registry *Registry) End(context context.Context, userID, sessionID string) error {
	_, err := registry.repository.Deactivate(context, userID, sessionID, registry.now().UTC())
	if err != nil && !errors.Is(err, dberr.ErrNotFound) {
		return fmt.Errorf("session_end_failed: %w", err)
	}
	return nil
}

// RevokeAll signs every device of the user out.
func (registry *Registry) RevokeAll(context context.Context, userID string) error {
	return registry.revokeAllExcept(context, userID, "")
}

// RevokeOthers signs out every device except the current one.
func (registry *Registry) RevokeOthers(context context.Context, userID, currentSessionID string) error {
	return registry.revokeAllExcept(context, userID, currentSessionID)
}

func (registry *Registry) revokeAllExcept(context context.Context, userID, keepID string) error {
	sessions, err := registry.repository.DeactivateAll(context, userID, keepID, registry.now().UTC())
	if err != nil {
		return fmt.Errorf("session_revoke_all_failed: %w", err)
	}

	for _, session := range sessions {
		if err := registry.revoker.RevokeFamily(context, session.FamilyID, blacklist.ReasonRevoked); err != nil {
			return fmt.Errorf("session_revoke_all_failed: %w", err)
		}
	}

	ctxutil.GetLogger(context).InfoContext(context, "sessions_revoked",
		slog.String("user_id", userID),
		slog.Int("count", len(sessions)),
		slog.Bool("kept_current", keepID != ""),
	)
	return nil
}

// Prune deletes sessions that expired before now.
func (registry *Registry) Prune(context context.Context) (int64, error) {
	removed, err := registry.repository.DeleteExpired(context, registry.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("session_prune_failed: %w", err)
	}
	return removed, nil
}

// # Background Pruning

// DefaultPruneInterval is how often expired sessions are deleted.
const DefaultPruneInterval = time.Hour

// RunPruner calls [Registry.Prune] every interval until context is cancelled.
func (registry *Registry) RunPruner(context context.Context, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		interval = DefaultPruneInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			removed, err := registry.Prune(context)
			if err != nil {
				logger.WarnContext(context, "session_prune_failed", slog.Any("error", err))
				continue
			}
			if removed > 0 {
				logger.InfoContext(context, "session_prune_finished", slog.Int64("removed", removed))
			}
		case <-context.Done():
			return
		}
	}
}
