// Copyright (c) 2025 The passgate authors
//
// This file is part of passgate.
//
// passgate is licensed under the GNU Affero General Public License v3.0.
// See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html

package session

import (
	"context"
	"sync"
	"time"
)

// Store is the persistence contract for sessions.
type Store interface {
	// Put persists a session until its expiry.
	Put(ctx context.Context, s *Session) error

	// Get retrieves a session by token. Returns ErrInvalidSession if no such
	// session exists. Expired sessions may still be returned; the manager
	// owns the expiry decision.
	Get(ctx context.Context, token string) (*Session, error)

	// Delete removes a session by token. Deleting a token that does not
	// exist is not an error.
	Delete(ctx context.Context, token string) error
}

// MemoryStore is an in-memory session store backed by a map. Suitable for a
// single serving instance; sessions do not survive a restart.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	now      func() time.Time
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// Put persists a session.
func (s *MemoryStore) Put(_ context.Context, sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *sess
	s.sessions[sess.Token] = &cp
	return nil
}

// Get retrieves a session by token.
func (s *MemoryStore) Get(_ context.Context, token string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[token]
	if !ok {
		return nil, ErrInvalidSession
	}
	cp := *sess
	return &cp, nil
}

// Delete removes a session by token.
func (s *MemoryStore) Delete(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, token)
	return nil
}

// Len reports the number of sessions currently held, expired included.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Cleanup removes expired sessions and returns how many were removed.
func (s *MemoryStore) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for token, sess := range s.sessions {
		if sess.Expired(now) {
			delete(s.sessions, token)
			removed++
		}
	}
	return removed
}

// StartCleanupRoutine sweeps expired sessions on the given interval until
// the context is cancelled.
func (s *MemoryStore) StartCleanupRoutine(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Cleanup()
			}
		}
	}()
}
