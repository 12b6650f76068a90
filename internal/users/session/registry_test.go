// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package session_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/shopauth/internal/platform/dberr"
	"github.com/taibuivan/shopauth/internal/users/blacklist"
	"github.com/taibuivan/shopauth/internal/users/session"
)

type recordingRevoker struct {
	mu       sync.Mutex
	families []string
}

func (revoker *recordingRevoker) RevokeFamily(_ context.Context, familyID string, reason blacklist.Reason) error {
	revoker.mu.Lock()
	defer revoker.mu.Unlock()
	if reason == blacklist.ReasonRevoked {
		revoker.families = append(revoker.families, familyID)
	}
	return nil
}

func newRegistry(now *time.Time) (*session.Registry, *recordingRevoker) {
	revoker := &recordingRevoker{}
	registry := session.NewRegistry(session.NewMemoryRepository(), revoker,
		session.WithClock(func() time.Time { return *now }))
	return registry, revoker
}

func record(t *testing.T, registry *session.Registry, id, userID, familyID string, expiresAt time.Time) {
	t.Helper()
	require.NoError(t, registry.Record(context.Background(), session.Session{
		ID:         id,
		UserID:     userID,
		FamilyID:   familyID,
		DeviceName: "Firefox on Linux",
		ExpiresAt:  expiresAt,
	}))
}

func TestRegistry_ListFlagsCurrent(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	registry, _ := newRegistry(&now)
	ctx := context.Background()

	record(t, registry, "s1", "u1", "f1", now.Add(time.Hour))
	now = now.Add(time.Minute)
	record(t, registry, "s2", "u1", "f2", now.Add(time.Hour))
	record(t, registry, "s3", "u2", "f3", now.Add(time.Hour))

	views, err := registry.List(ctx, "u1", "s1")
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, "s2", views[0].ID)
	assert.False(t, views[0].IsCurrent)
	assert.Equal(t, "s1", views[1].ID)
	assert.True(t, views[1].IsCurrent)
}

func TestRegistry_RevokeKillsFamily(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	registry, revoker := newRegistry(&now)
	ctx := context.Background()

	record(t, registry, "s1", "u1", "f1", now.Add(time.Hour))

	// Another user cannot revoke it.
	assert.ErrorIs(t, registry.Revoke(ctx, "u2", "s1"), dberr.ErrNotFound)

	require.NoError(t, registry.Revoke(ctx, "u1", "s1"))
	assert.Equal(t, []string{"f1"}, revoker.families)

	// Second revoke finds nothing active.
	assert.ErrorIs(t, registry.Revoke(ctx, "u1", "s1"), dberr.ErrNotFound)

	views, err := registry.List(ctx, "u1", "")
	require.NoError(t, err)
	assert.Empty(t, views)
}

func TestRegistry_RevokeOthersAndAll(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	registry, revoker := newRegistry(&now)
	ctx := context.Background()

	record(t, registry, "s1", "u1", "f1", now.Add(time.Hour))
	record(t, registry, "s2", "u1", "f2", now.Add(time.Hour))
	record(t, registry, "s3", "u1", "f3", now.Add(time.Hour))

	require.NoError(t, registry.RevokeOthers(ctx, "u1", "s1"))
	assert.ElementsMatch(t, []string{"f2", "f3"}, revoker.families)

	views, err := registry.List(ctx, "u1", "s1")
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "s1", views[0].ID)

	require.NoError(t, registry.RevokeAll(ctx, "u1"))
	assert.ElementsMatch(t, []string{"f1", "f2", "f3"}, revoker.families)
}

func TestRegistry_TouchAndPrune(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	registry, _ := newRegistry(&now)
	ctx := context.Background()

	record(t, registry, "s1", "u1", "f1", now.Add(time.Hour))
	record(t, registry, "s2", "u1", "f2", now.Add(3*time.Hour))

	now = now.Add(30 * time.Minute)
	require.NoError(t, registry.Touch(ctx, "s1", "203.0.113.7"))

	views, err := registry.List(ctx, "u1", "")
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, "s1", views[0].ID)
	assert.Equal(t, "203.0.113.7", views[0].IPAddress)
	assert.Equal(t, now, views[0].LastUsedAt)

	now = now.Add(time.Hour)
	removed, err := registry.Prune(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}
