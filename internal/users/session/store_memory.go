// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/taibuivan/shopauth/internal/platform/dberr"
	"github.com/taibuivan/shopauth/pkg/uuid"
)

// MemoryRepository is an in-process [Repository]. State is lost on restart.
type MemoryRepository struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewMemoryRepository creates an empty in-memory session store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{sessions: make(map[string]*Session)}
}

// Create implements [Repository].
func (memory *MemoryRepository) Create(_ context.Context, session *Session) error {
	memory.mu.Lock()
	defer memory.mu.Unlock()

	if session.ID == "" {
		session.ID = uuid.New()
	}
	copied := *session
	memory.sessions[session.ID] = &copied
	return nil
}

// Touch implements [Repository].
func (memory *MemoryRepository) Touch(_ context.Context, sessionID, ip string, at time.Time) error {
	memory.mu.Lock()
	defer memory.mu.Unlock()

	if session, ok := memory.sessions[sessionID]; ok && session.IsActive {
		session.LastUsedAt = at
		if ip != "" {
			session.IPAddress = ip
		}
	}
	return nil
}

// ListActive implements [Repository].
func (memory *MemoryRepository) ListActive(_ context.Context, userID string, now time.Time) ([]Session, error) {
	memory.mu.Lock()
	defer memory.mu.Unlock()

	var sessions []Session
	for _, session := range memory.sessions {
		if session.UserID == userID && session.IsActive && session.ExpiresAt.After(now) {
			sessions = append(sessions, *session)
		}
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].LastUsedAt.After(sessions[j].LastUsedAt)
	})
	return sessions, nil
}

// Deactivate implements [Repository].
func (memory *MemoryRepository) Deactivate(_ context.Context, userID, sessionID string, _ time.Time) (*Session, error) {
	memory.mu.Lock()
	defer memory.mu.Unlock()

	session, ok := memory.sessions[sessionID]
	if !ok || session.UserID != userID || !session.IsActive {
		return nil, dberr.ErrNotFound
	}

	before := *session
	session.IsActive = false
	return &before, nil
}

// DeactivateAll implements [Repository].
func (memory *MemoryRepository) DeactivateAll(_ context.Context, userID, keepID string, _ time.Time) ([]Session, error) {
	memory.mu.Lock()
	defer memory.mu.Unlock()

	var deactivated []Session
	for id, session := range memory.sessions {
		if session.UserID != userID || !session.IsActive || id == keepID {
			continue
		}
		deactivated = append(deactivated, *session)
		session.IsActive = false
	}
	return deactivated, nil
}

// DeleteExpired implements [Repository].
func (memory *MemoryRepository) DeleteExpired(_ context.Context, cutoff time.Time) (int64, error) {
	memory.mu.Lock()
	defer memory.mu.Unlock()

	var removed int64
	for id, session := range memory.sessions {
		if !session.ExpiresAt.After(cutoff) {
			delete(memory.sessions, id)
			removed++
		}
	}
	return removed, nil
}
