// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package otp

import (
	"context"
	"fmt"
	"time"

	"github.com/taibuivan/shopauth/internal/platform/sec"
)

// Service issues and verifies codes on top of a [Store].
type Service struct {
	store     Store
	generator Generator
	ttl       time.Duration
	cooldown  time.Duration
	now       func() time.Time
}

// Option customizes a [Service].
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(service *Service) { service.now = now }
}

// WithTTL overrides the code lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(service *Service) {
		if ttl > 0 {
			service.ttl = ttl
		}
	}
}

// WithCooldown overrides the resend cooldown.
func WithCooldown(cooldown time.Duration) Option {
	return func(service *Service) {
		if cooldown > 0 {
			service.cooldown = cooldown
		}
	}
}

// NewService constructs a code service. A nil generator falls back to [CryptoGenerator].
func NewService(store Store, generator Generator, options ...Option) *Service {
	if generator == nil {
		generator = CryptoGenerator{}
	}

	service := &Service{
		store:     store,
		generator: generator,
		ttl:       DefaultTTL,
		cooldown:  DefaultCooldown,
		now:       time.Now,
	}
	for _, option := range options {
		option(service)
	}
	return service
}

/*
Issue creates a fresh code for (userID, codeType), replacing any pending one.

Parameters:
  - context: context.Context
  - userID: string
  - codeType: Type

Returns:
  - Issued: cleartext code for delivery and its expiry
  - error: *CooldownError, ErrInvalidType or storage failures
*/
func (service *Service) Issue(context context.Context, userID string, codeType Type) (Issued, error) {
	if !codeType.Valid() {
		return Issued{}, ErrInvalidType
	}

	code, err := service.generator.Generate()
	if err != nil {
		return Issued{}, fmt.Errorf("otp_generate_failed: %w", err)
	}

	now := service.now()
	expiresAt := now.Add(service.ttl)

	remaining, err := service.store.Save(context, userID, codeType, sec.HashToken(code), now, expiresAt, service.cooldown)
	if err != nil {
		return Issued{}, err
	}
	if remaining > 0 {
		return Issued{}, &CooldownError{Remaining: remaining}
	}

	return Issued{Code: code, Type: codeType, ExpiresAt: expiresAt}, nil
}

/*
Verify checks code for (userID, codeType). Every call consumes an attempt;
a match also consumes the code.

Returns:
  - error: nil on success; ErrNotFound, ErrExpired or *AttemptError otherwise
*/
func (service *Service) Verify(context context.Context, userID string, codeType Type, code string) error {
	if !codeType.Valid() {
		return ErrInvalidType
	}

	status, remaining, err := service.store.Consume(context, userID, codeType, sec.HashToken(code), codeType.MaxAttempts(), service.now())
	if err != nil {
		return err
	}

	switch status {
	case StatusConsumed:
		return nil
	case StatusNotFound:
		return ErrNotFound
	case StatusExpired:
		return ErrExpired
	case StatusExhausted:
		return &AttemptError{Kind: KindTooManyAttempts, Remaining: 0}
	default:
		return &AttemptError{Kind: KindMismatch, Remaining: remaining}
	}
}

// Pending reports the expiry of a code for the pair that can still be redeemed.
// The zero time means nothing usable is outstanding.
func (service *Service) Pending(context context.Context, userID string, codeType Type) (time.Time, error) {
	if !codeType.Valid() {
		return time.Time{}, ErrInvalidType
	}
	return service.store.Pending(context, userID, codeType, codeType.MaxAttempts(), service.now())
}

// Invalidate drops the pending code for the pair, if any, and lifts its resend cooldown.
func (service *Service) Invalidate(context context.Context, userID string, codeType Type) error {
	return service.store.Delete(context, userID, codeType)
}
