// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package recovery

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepository is an in-process [Repository]. State is lost on restart.
type MemoryRepository struct {
	mu     sync.Mutex
	byUser map[string][]*Code
}

// NewMemoryRepository creates an empty in-memory recovery code store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byUser: make(map[string][]*Code)}
}

// ReplaceAll implements [Repository].
func (memory *MemoryRepository) ReplaceAll(_ context.Context, userID string, codes []Code) error {
	memory.mu.Lock()
	defer memory.mu.Unlock()

	batch := make([]*Code, 0, len(codes))
	for _, code := range codes {
		copied := code
		copied.UserID = userID
		batch = append(batch, &copied)
	}
	sort.SliceStable(batch, func(i, j int) bool { return batch[i].CreatedAt.Before(batch[j].CreatedAt) })
	memory.byUser[userID] = batch
	return nil
}

// List implements [Repository].
func (memory *MemoryRepository) List(_ context.Context, userID string) ([]Code, error) {
	memory.mu.Lock()
	defer memory.mu.Unlock()

	stored := memory.byUser[userID]
	codes := make([]Code, 0, len(stored))
	for _, code := range stored {
		codes = append(codes, *code)
	}
	return codes, nil
}

// MarkUsed implements [Repository].
func (memory *MemoryRepository) MarkUsed(_ context.Context, codeID string, at time.Time, origin Origin) (bool, error) {
	memory.mu.Lock()
	defer memory.mu.Unlock()

	code := memory.find(codeID)
	if code == nil || code.Used {
		return false, nil
	}
	code.Used = true
	code.UsedAt = &at
	code.UsedIP = origin.IP
	code.UsedUserAgent = origin.UserAgent
	return true, nil
}

// IncrementFailure implements [Repository].
func (memory *MemoryRepository) IncrementFailure(_ context.Context, codeID string) error {
	memory.mu.Lock()
	defer memory.mu.Unlock()

	if code := memory.find(codeID); code != nil {
		code.FailedAttempts++
	}
	return nil
}

func (memory *MemoryRepository) find(codeID string) *Code {
	for _, codes := range memory.byUser {
		for _, code := range codes {
			if code.ID == codeID {
				return code
			}
		}
	}
	return nil
}
