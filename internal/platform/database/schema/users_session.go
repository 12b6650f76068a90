// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package schema

// UserSessionTable represents the 'users.session' table
type UserSessionTable struct {
	Table      string
	ID         string
	UserID     string
	FamilyID   string
	DeviceName string
	IPAddress  string
	UserAgent  string
	IsActive   string
	LastUsedAt string
	ExpiresAt  string
	RevokedAt  string
	CreatedAt  string
}

// UserSession is the schema definition for users.session
var UserSession = UserSessionTable{
	Table:      "users.session",
	ID:         "id",
	UserID:     "userid",
	FamilyID:   "familyid",
	DeviceName: "devicename",
	IPAddress:  "ipaddress",
	UserAgent:  "useragent",
	IsActive:   "isactive",
	LastUsedAt: "lastusedat",
	ExpiresAt:  "expiresat",
	RevokedAt:  "revokedat",
	CreatedAt:  "createdat",
}

// Columns returns the columns hydrated into a session entity, in scan order
func (t UserSessionTable) Columns() []string {
	return []string{
		t.ID, t.UserID, t.FamilyID, t.DeviceName, t.IPAddress, t.UserAgent,
		t.IsActive, t.LastUsedAt, t.ExpiresAt, t.CreatedAt,
	}
}
