// Copyright (c) 2025 The passgate authors
//
// This file is part of passgate.
//
// passgate is licensed under the GNU Affero General Public License v3.0.
// See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html

// Package session manages server-side login sessions established after a
// successful authentication ceremony. Tokens are opaque random strings; all
// session state lives on the server, so revocation is immediate.
package session

import (
	"errors"
	"time"
)

// Sentinel errors for session operations.
var (
	// ErrInvalidSession is returned when a token does not reference a live
	// session, whether it is malformed, unknown, expired, or revoked.
	ErrInvalidSession = errors.New("invalid or expired session")
)

// Session is one authenticated login.
type Session struct {
	// Token is the opaque session identifier handed to the client.
	Token string `json:"token"`

	// UserID is the authenticated user's identifier.
	UserID string `json:"user_id"`

	// Handle is the authenticated user's handle.
	Handle string `json:"handle"`

	// CreatedAt is when the session was issued.
	CreatedAt time.Time `json:"created_at"`

	// ExpiresAt is when the session stops validating.
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the session is past its expiry at the given time.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
