// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package blacklist

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

// sweepBatch bounds how many entries one lock hold may remove.
const sweepBatch = 256

type entry struct {
	jti       string
	expiresAt time.Time
	reason    Reason
	index     int
}

// expiryHeap orders entries by ascending expiry.
type expiryHeap []*entry

func (h expiryHeap) Len() int           { return len(h) }
func (h expiryHeap) Less(i, j int) bool { return h[i].expiresAt.Before(h[j].expiresAt) }
func (h expiryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *expiryHeap) Push(x any) {
	item := x.(*entry)
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *expiryHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}

// Memory is the in-process backend.
//
// # Concurrency
//
// A single mutex guards the map and the heap. Lookups may evict, so reads
// take the same lock as writes. The lock is never held across I/O.
type Memory struct {
	mu       sync.Mutex
	entries  map[string]*entry
	order    expiryHeap
	capacity int
	now      func() time.Time
}

// MemoryOption customizes a [Memory] store.
type MemoryOption func(*Memory)

// WithClock overrides the time source.
func WithClock(now func() time.Time) MemoryOption {
	return func(memory *Memory) { memory.now = now }
}

// NewMemory creates a bounded in-memory store. Non-positive capacity means [DefaultCapacity].
func NewMemory(capacity int, options ...MemoryOption) *Memory {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	memory := &Memory{
		entries:  make(map[string]*entry),
		capacity: capacity,
		now:      time.Now,
	}
	for _, option := range options {
		option(memory)
	}
	return memory
}

// Add implements [Store].
func (memory *Memory) Add(_ context.Context, jti string, expiresAt time.Time, reason Reason) error {
	memory.mu.Lock()
	defer memory.mu.Unlock()

	memory.insertLocked(jti, expiresAt, reason)
	return nil
}

// AddUnique implements [Store].
func (memory *Memory) AddUnique(_ context.Context, jti string, expiresAt time.Time, reason Reason) error {
	memory.mu.Lock()
	defer memory.mu.Unlock()

	if memory.liveLocked(jti) {
		return ErrAlreadyBlacklisted
	}

	memory.insertLocked(jti, expiresAt, reason)
	return nil
}

// Contains implements [Store]. Expired entries found here are evicted on the spot.
func (memory *Memory) Contains(_ context.Context, jti string) (bool, error) {
	memory.mu.Lock()
	defer memory.mu.Unlock()

	return memory.liveLocked(jti), nil
}

// Reason returns the recorded reason for a live entry.
func (memory *Memory) Reason(jti string) (Reason, bool) {
	memory.mu.Lock()
	defer memory.mu.Unlock()

	if !memory.liveLocked(jti) {
		return "", false
	}
	return memory.entries[jti].reason, true
}

// Cleanup implements [Store]. It releases the lock between batches so that
// foreground lookups wait at most one batch.
func (memory *Memory) Cleanup(_ context.Context) (int, error) {
	removed := 0
	for {
		memory.mu.Lock()
		batch := memory.evictExpiredLocked(sweepBatch)
		memory.mu.Unlock()

		removed += batch
		if batch < sweepBatch {
			return removed, nil
		}
	}
}

// Len returns the number of stored entries, expired ones included.
func (memory *Memory) Len() int {
	memory.mu.Lock()
	defer memory.mu.Unlock()
	return len(memory.entries)
}

// Flush drops every entry and returns how many were held.
func (memory *Memory) Flush() int {
	memory.mu.Lock()
	defer memory.mu.Unlock()

	count := len(memory.entries)
	memory.entries = make(map[string]*entry)
	memory.order = nil
	return count
}

// # Internals

func (memory *Memory) liveLocked(jti string) bool {
	item, found := memory.entries[jti]
	if !found {
		return false
	}
	if !memory.now().Before(item.expiresAt) {
		memory.removeLocked(item)
		return false
	}
	return true
}

func (memory *Memory) insertLocked(jti string, expiresAt time.Time, reason Reason) {
	now := memory.now()
	if !now.Before(expiresAt) {
		return
	}

	if existing, found := memory.entries[jti]; found {
		// Idempotent: keep the first reason, extend protection if the new expiry is later.
		if expiresAt.After(existing.expiresAt) {
			existing.expiresAt = expiresAt
			heap.Fix(&memory.order, existing.index)
		}
		return
	}

	if len(memory.entries) >= memory.capacity {
		memory.evictExpiredLocked(len(memory.entries))
	}
	for len(memory.entries) >= memory.capacity {
		memory.removeLocked(memory.order[0])
	}

	item := &entry{jti: jti, expiresAt: expiresAt, reason: reason}
	heap.Push(&memory.order, item)
	memory.entries[jti] = item
}

func (memory *Memory) evictExpiredLocked(limit int) int {
	now := memory.now()
	removed := 0
	for removed < limit && len(memory.order) > 0 && !now.Before(memory.order[0].expiresAt) {
		memory.removeLocked(memory.order[0])
		removed++
	}
	return removed
}

func (memory *Memory) removeLocked(item *entry) {
	if item.index >= 0 {
		heap.Remove(&memory.order, item.index)
	}
	delete(memory.entries, item.jti)
}
