// Copyright (c) 2025 The passgate authors
//
// This file is part of passgate.
//
// passgate is licensed under the GNU Affero General Public License v3.0.
// See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html

package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"
)

const (
	// DefaultTTL is the default session lifetime.
	DefaultTTL = 7 * 24 * time.Hour

	// tokenBytes is the entropy of a session token before encoding.
	tokenBytes = 32
)

// Manager issues, validates, and revokes login sessions on top of a Store.
type Manager struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
}

// NewManager creates a session manager. A non-positive ttl falls back to
// DefaultTTL.
func NewManager(store Store, ttl time.Duration) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{
		store: store,
		ttl:   ttl,
		now:   time.Now,
	}, nil
}

// TTL returns the configured session lifetime.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Issue creates a session for an authenticated user and returns it with a
// freshly generated token.
func (m *Manager) Issue(ctx context.Context, userID, handle string) (*Session, error) {
	token, err := generateToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session token: %w", err)
	}

	now := m.now().UTC()
	sess := &Session{
		Token:     token,
		UserID:    userID,
		Handle:    handle,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}

	if err := m.store.Put(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}
	return sess, nil
}

// Validate resolves a token to its live session. An expired session is
// deleted on sight and reported as invalid.
func (m *Manager) Validate(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, ErrInvalidSession
	}

	sess, err := m.store.Get(ctx, token)
	if err != nil {
		return nil, err
	}

	if sess.Expired(m.now()) {
		_ = m.store.Delete(ctx, token)
		return nil, ErrInvalidSession
	}
	return sess, nil
}

// Revoke deletes a session. Revoking a token that does not reference a live
// session succeeds, so logout is idempotent.
func (m *Manager) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return m.store.Delete(ctx, token)
}

// generateToken returns a 256-bit random token, base64url-encoded without
// padding.
func generateToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
