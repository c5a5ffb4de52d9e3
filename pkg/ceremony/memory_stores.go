// Copyright (c) 2025 The passgate authors
//
// This file is part of passgate.
//
// passgate is licensed under the GNU Affero General Public License v3.0.
// See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html

package ceremony

import (
	"context"
	"encoding/base64"
	"sync"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
)

// MemoryStore is an in-memory implementation of UserStore and
// CredentialStore backed by maps. A single mutex covers both record types so
// user-plus-credential creation is atomic. Suitable for development and
// tests; data does not survive a restart.
type MemoryStore struct {
	mu            sync.RWMutex
	usersByID     map[string]*User
	usersByHandle map[string]*User
	creds         map[string]*Credential
	credsByUser   map[string][][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		usersByID:     make(map[string]*User),
		usersByHandle: make(map[string]*User),
		creds:         make(map[string]*Credential),
		credsByUser:   make(map[string][][]byte),
	}
}

// GetByHandle retrieves a user by handle.
func (s *MemoryStore) GetByHandle(_ context.Context, handle string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.usersByHandle[handle]
	if !ok {
		return nil, ErrUnknownIdentity
	}
	return copyUser(user), nil
}

// GetByID retrieves a user by identifier.
func (s *MemoryStore) GetByID(_ context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.usersByID[id]
	if !ok {
		return nil, ErrUnknownIdentity
	}
	return copyUser(user), nil
}

// Create persists a new user and its first credential atomically.
func (s *MemoryStore) Create(_ context.Context, user *User, cred *Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usersByHandle[user.Handle]; exists {
		return ErrDuplicateIdentity
	}
	if _, exists := s.usersByID[user.ID]; exists {
		return ErrDuplicateIdentity
	}

	u := copyUser(user)
	s.usersByID[u.ID] = u
	s.usersByHandle[u.Handle] = u
	s.putCredentialLocked(cred)

	return nil
}

// GetByUser retrieves all credentials owned by a user.
func (s *MemoryStore) GetByUser(_ context.Context, userID string) ([]*Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.credsByUser[userID]
	out := make([]*Credential, 0, len(ids))
	for _, id := range ids {
		if cred, ok := s.creds[credKey(id)]; ok {
			out = append(out, copyCredential(cred))
		}
	}
	return out, nil
}

// Get retrieves a credential by its raw ID bytes.
func (s *MemoryStore) Get(_ context.Context, credID []byte) (*Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cred, ok := s.creds[credKey(credID)]
	if !ok {
		return nil, ErrCredentialNotFound
	}
	return copyCredential(cred), nil
}

// Add registers an additional credential for an existing user.
func (s *MemoryStore) Add(_ context.Context, cred *Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.usersByID[cred.UserID]; !ok {
		return ErrUnknownIdentity
	}
	s.putCredentialLocked(cred)
	return nil
}

// UpdateCounter performs a compare-and-set on the signature counter.
func (s *MemoryStore) UpdateCounter(_ context.Context, credID []byte, prev, next uint32, usedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cred, ok := s.creds[credKey(credID)]
	if !ok {
		return ErrCredentialNotFound
	}
	if cred.SignCount != prev {
		return ErrCounterConflict
	}
	cred.SignCount = next
	cred.LastUsedAt = usedAt
	return nil
}

// Clear removes all users and credentials. Intended for tests.
func (s *MemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.usersByID = make(map[string]*User)
	s.usersByHandle = make(map[string]*User)
	s.creds = make(map[string]*Credential)
	s.credsByUser = make(map[string][][]byte)
}

func (s *MemoryStore) putCredentialLocked(cred *Credential) {
	c := copyCredential(cred)
	s.creds[credKey(c.ID)] = c
	s.credsByUser[c.UserID] = append(s.credsByUser[c.UserID], c.ID)
}

// credKey maps raw credential ID bytes onto a stable map key.
func credKey(id []byte) string {
	return base64.RawURLEncoding.EncodeToString(id)
}

func copyUser(u *User) *User {
	c := *u
	c.credentials = nil
	return &c
}

func copyCredential(c *Credential) *Credential {
	cp := *c
	cp.ID = append([]byte(nil), c.ID...)
	cp.UserID = c.UserID
	cp.PublicKey = append([]byte(nil), c.PublicKey...)
	cp.AAGUID = append([]byte(nil), c.AAGUID...)
	cp.Transports = append([]protocol.AuthenticatorTransport(nil), c.Transports...)
	return &cp
}
