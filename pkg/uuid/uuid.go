// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package uuid mints the identifiers of the auth service: user IDs, session
// IDs, token jti values, refresh-token family IDs and request IDs.
//
// All of them are UUIDv7, so primary keys in users.account and users.session
// arrive in time order and B-tree inserts stay append-only.
package uuid

import "github.com/google/uuid"

// New returns a fresh UUIDv7 string. It panics only if the system entropy
// source fails, which leaves no safe way to issue credentials anyway.
func New() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Valid reports whether s is a canonical 36-character UUID of any version.
// Path parameters are checked with it before they reach a uuid column.
func Valid(s string) bool {
	if len(s) != 36 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}
