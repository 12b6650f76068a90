// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package schema names the tables and columns of the users schema so SQL in
// the Postgres repositories is assembled from one definition that mirrors
// data/migrations.
package schema

// UserAccountTable represents the 'users.account' table
type UserAccountTable struct {
	Table           string
	ID              string
	Username        string
	UsernameKey     string
	DisplayName     string
	Email           string
	EmailKey        string
	Password        string
	EmailVerified   string
	Role            string
	TokenVersion    string
	TOTPEnabled     string
	TOTPSecret      string
	EmailMFAEnabled string
	CreatedAt       string
	UpdatedAt       string
	DeletedAt       string
}

// UserAccount is the schema definition for users.account
var UserAccount = UserAccountTable{
	Table:           "users.account",
	ID:              "id",
	Username:        "username",
	UsernameKey:     "usernamekey",
	DisplayName:     "displayname",
	Email:           "email",
	EmailKey:        "emailkey",
	Password:        "passwordhash",
	EmailVerified:   "emailverified",
	Role:            "role",
	TokenVersion:    "tokenversion",
	TOTPEnabled:     "totpenabled",
	TOTPSecret:      "totpsecret",
	EmailMFAEnabled: "emailmfaenabled",
	CreatedAt:       "createdat",
	UpdatedAt:       "updatedat",
	DeletedAt:       "deletedat",
}

// Columns returns the columns hydrated into a user entity, in scan order
func (t UserAccountTable) Columns() []string {
	return []string{
		t.ID, t.Username, t.DisplayName, t.Email, t.Password, t.EmailVerified,
		t.Role, t.TokenVersion, t.TOTPEnabled, t.TOTPSecret, t.EmailMFAEnabled,
		t.CreatedAt, t.UpdatedAt,
	}
}
