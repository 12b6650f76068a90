// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package session records signed-in devices and lets users revoke them.

A session is created when a sign-in completes and is bound to exactly one
token family. Revoking the session revokes that family, which kills both the
refresh token and every access token minted from it.
*/
package session

import (
	"context"
	"time"
)

// # Domain Entities

// Session is one signed-in device.
type Session struct {
	ID         string    `json:"id"`
	UserID     string    `json:"-"`
	FamilyID   string    `json:"-"`
	DeviceName string    `json:"deviceName"`
	IPAddress  string    `json:"ipAddress"`
	UserAgent  string    `json:"userAgent"`
	IsActive   bool      `json:"isActive"`
	CreatedAt  time.Time `json:"createdAt"`
	LastUsedAt time.Time `json:"lastUsedAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// Device describes where a sign-in came from.
type Device struct {
	Name      string
	IPAddress string
	UserAgent string
}

// View is a session as shown to its owner.
type View struct {
	Session
	IsCurrent bool `json:"isCurrent"`
}

// # Repository Contract

// Repository defines the persistence contract for sessions.
// Lookups of unknown sessions return [dberr.ErrNotFound].
type Repository interface {

	// Create persists a new active session.
	Create(context context.Context, session *Session) error

	// Touch records activity from ip at time at.
	Touch(context context.Context, sessionID, ip string, at time.Time) error

	// ListActive returns the user's active, unexpired sessions, newest first.
	ListActive(context context.Context, userID string, now time.Time) ([]Session, error)

	/*
		Deactivate marks one of the user's sessions inactive.

		Returns:
		  - *Session: the session as it was before deactivation
		  - error: dberr.ErrNotFound when the session does not belong to userID or is already inactive
	*/
	Deactivate(context context.Context, userID, sessionID string, at time.Time) (*Session, error)

	/*
		DeactivateAll marks every active session of the user inactive, except keepID.

		Returns:
		  - []Session: the sessions that were deactivated
		  - error: persistence failures
	*/
	DeactivateAll(context context.Context, userID, keepID string, at time.Time) ([]Session, error)

	// DeleteExpired removes sessions that expired before cutoff and returns how many.
	DeleteExpired(context context.Context, cutoff time.Time) (int64, error)
}
