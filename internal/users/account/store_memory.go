// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package account

import (
	"context"
	"sync"
	"time"

	"github.com/taibuivan/shopauth/internal/platform/dberr"
	"github.com/taibuivan/shopauth/pkg/normalize"
	"github.com/taibuivan/shopauth/pkg/uuid"
)

// MemoryUserRepository is an in-process [UserRepository] for development and tests.
// All state is lost on restart.
type MemoryUserRepository struct {
	mu         sync.RWMutex
	byID       map[string]*User
	byUsername map[string]string
	byEmail    map[string]string
	now        func() time.Time
}

// NewMemoryUserRepository creates an empty in-memory credential store.
func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{
		byID:       make(map[string]*User),
		byUsername: make(map[string]string),
		byEmail:    make(map[string]string),
		now:        time.Now,
	}
}

func clone(user *User) *User {
	copied := *user
	return &copied
}

// Create implements [UserRepository].
func (memory *MemoryUserRepository) Create(_ context.Context, user *User) error {
	memory.mu.Lock()
	defer memory.mu.Unlock()

	usernameKey, emailKey := user.UsernameKey(), user.EmailKey()
	if _, taken := memory.byUsername[usernameKey]; taken {
		return ErrUsernameTaken
	}
	if _, taken := memory.byEmail[emailKey]; taken {
		return ErrEmailTaken
	}

	if user.ID == "" {
		user.ID = uuid.New()
	}
	now := memory.now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	memory.byID[user.ID] = clone(user)
	memory.byUsername[usernameKey] = user.ID
	memory.byEmail[emailKey] = user.ID
	return nil
}

// FindByID implements [UserRepository].
func (memory *MemoryUserRepository) FindByID(_ context.Context, id string) (*User, error) {
	memory.mu.RLock()
	defer memory.mu.RUnlock()

	user, ok := memory.byID[id]
	if !ok {
		return nil, dberr.ErrNotFound
	}
	return clone(user), nil
}

// FindByEmail implements [UserRepository].
func (memory *MemoryUserRepository) FindByEmail(context context.Context, email string) (*User, error) {
	memory.mu.RLock()
	id, ok := memory.byEmail[normalize.Identifier(email)]
	memory.mu.RUnlock()

	if !ok {
		return nil, dberr.ErrNotFound
	}
	return memory.FindByID(context, id)
}

// FindByIdentifier implements [UserRepository]. Email keys win over username keys.
func (memory *MemoryUserRepository) FindByIdentifier(context context.Context, identifier string) (*User, error) {
	key := normalize.Identifier(identifier)

	memory.mu.RLock()
	id, ok := memory.byEmail[key]
	if !ok {
		id, ok = memory.byUsername[key]
	}
	memory.mu.RUnlock()

	if !ok || key == "" {
		return nil, dberr.ErrNotFound
	}
	return memory.FindByID(context, id)
}

// mutate applies change to the stored user under the write lock.
func (memory *MemoryUserRepository) mutate(userID string, change func(user *User) error) (*User, error) {
	memory.mu.Lock()
	defer memory.mu.Unlock()

	user, ok := memory.byID[userID]
	if !ok {
		return nil, dberr.ErrNotFound
	}
	if err := change(user); err != nil {
		return nil, err
	}
	user.UpdatedAt = memory.now().UTC()
	return user, nil
}

// UpdatePassword implements [UserRepository].
func (memory *MemoryUserRepository) UpdatePassword(_ context.Context, userID, passwordHash string) (int, error) {
	user, err := memory.mutate(userID, func(user *User) error {
		user.PasswordHash = passwordHash
		user.TokenVersion++
		return nil
	})
	if err != nil {
		return 0, err
	}
	return user.TokenVersion, nil
}

// UpdateEmail implements [UserRepository].
func (memory *MemoryUserRepository) UpdateEmail(_ context.Context, userID, email string) (int, error) {
	newKey := normalize.Identifier(email)

	user, err := memory.mutate(userID, func(user *User) error {
		if owner, taken := memory.byEmail[newKey]; taken && owner != userID {
			return ErrEmailTaken
		}
		delete(memory.byEmail, user.EmailKey())
		memory.byEmail[newKey] = userID

		user.Email = email
		user.EmailVerified = false
		user.TokenVersion++
		return nil
	})
	if err != nil {
		return 0, err
	}
	return user.TokenVersion, nil
}

// BumpTokenVersion implements [UserRepository].
func (memory *MemoryUserRepository) BumpTokenVersion(_ context.Context, userID string) (int, error) {
	user, err := memory.mutate(userID, func(user *User) error {
		user.TokenVersion++
		return nil
	})
	if err != nil {
		return 0, err
	}
	return user.TokenVersion, nil
}

// MarkVerified implements [UserRepository].
func (memory *MemoryUserRepository) MarkVerified(_ context.Context, userID string) error {
	_, err := memory.mutate(userID, func(user *User) error {
		user.EmailVerified = true
		return nil
	})
	return err
}

// SetTOTP implements [UserRepository].
func (memory *MemoryUserRepository) SetTOTP(_ context.Context, userID, secret string, enabled bool) error {
	_, err := memory.mutate(userID, func(user *User) error {
		user.TOTPSecret = secret
		user.TOTPEnabled = enabled && secret != ""
		return nil
	})
	return err
}

// SetEmailMFA implements [UserRepository].
func (memory *MemoryUserRepository) SetEmailMFA(_ context.Context, userID string, enabled bool) error {
	_, err := memory.mutate(userID, func(user *User) error {
		user.EmailMFAEnabled = enabled
		return nil
	})
	return err
}

// TokenVersion implements [UserRepository].
func (memory *MemoryUserRepository) TokenVersion(_ context.Context, userID string) (int, error) {
	memory.mu.RLock()
	defer memory.mu.RUnlock()

	user, ok := memory.byID[userID]
	if !ok {
		return 0, dberr.ErrNotFound
	}
	return user.TokenVersion, nil
}
