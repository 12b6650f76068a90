// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package schema

// UserRecoveryCodeTable represents the 'users.recoverycode' table
type UserRecoveryCodeTable struct {
	Table          string
	ID             string
	UserID         string
	CodeHash       string
	IsUsed         string
	UsedAt         string
	UsedIP         string
	UsedUserAgent  string
	FailedAttempts string
	ExpiresAt      string
	CreatedAt      string
}

// UserRecoveryCode is the schema definition for users.recoverycode
var UserRecoveryCode = UserRecoveryCodeTable{
	Table:          "users.recoverycode",
	ID:             "id",
	UserID:         "userid",
	CodeHash:       "codehash",
	IsUsed:         "isused",
	UsedAt:         "usedat",
	UsedIP:         "usedip",
	UsedUserAgent:  "useduseragent",
	FailedAttempts: "failedattempts",
	ExpiresAt:      "expiresat",
	CreatedAt:      "createdat",
}

// Columns returns the columns hydrated into a recovery code entity, in scan order
func (t UserRecoveryCodeTable) Columns() []string {
	return []string{
		t.ID, t.UserID, t.CodeHash, t.IsUsed, t.UsedAt, t.UsedIP, t.UsedUserAgent,
		t.FailedAttempts, t.ExpiresAt, t.CreatedAt,
	}
}
