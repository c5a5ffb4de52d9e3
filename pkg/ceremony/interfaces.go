// Copyright (c) 2025 The passgate authors
//
// This file is part of passgate.
//
// passgate is licensed under the GNU Affero General Public License v3.0.
// See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html

package ceremony

import (
	"context"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
)

// Kind identifies the ceremony a challenge belongs to.
type Kind string

const (
	// KindRegister is the registration ceremony.
	KindRegister Kind = "register"

	// KindAuthenticate is the authentication ceremony.
	KindAuthenticate Kind = "authenticate"
)

// ChallengeKey scopes a pending challenge to one identity and one ceremony
// kind. At most one challenge is outstanding per key.
type ChallengeKey struct {
	Handle string
	Kind   Kind
}

// UserStore is the persistence contract for users. The ceremony engine is
// the only writer; users are created exactly once, together with their first
// credential, and never mutated afterwards.
type UserStore interface {
	// GetByHandle retrieves a user by handle.
	// Returns ErrUnknownIdentity if no such user exists.
	GetByHandle(ctx context.Context, handle string) (*User, error)

	// GetByID retrieves a user by identifier.
	// Returns ErrUnknownIdentity if no such user exists.
	GetByID(ctx context.Context, id string) (*User, error)

	// Create persists a new user together with its first credential as one
	// atomic operation. Returns ErrDuplicateIdentity if the handle is taken.
	Create(ctx context.Context, user *User, cred *Credential) error
}

// CredentialStore is the persistence contract for registered credentials.
// Credentials are created through UserStore.Create or Add and updated only
// through UpdateCounter; this core never deletes them.
type CredentialStore interface {
	// GetByUser retrieves all credentials owned by a user.
	// Returns an empty slice if the user has none.
	GetByUser(ctx context.Context, userID string) ([]*Credential, error)

	// Get retrieves a credential by its raw ID bytes.
	// Returns ErrCredentialNotFound if the credential does not exist.
	Get(ctx context.Context, credID []byte) (*Credential, error)

	// Add registers an additional credential for an existing user.
	Add(ctx context.Context, cred *Credential) error

	// UpdateCounter performs a compare-and-set on the signature counter,
	// recording usedAt as the credential's last use. Returns
	// ErrCounterConflict when the stored counter no longer equals prev, and
	// ErrCredentialNotFound when the credential does not exist.
	UpdateCounter(ctx context.Context, credID []byte, prev, next uint32, usedAt time.Time) error
}

// ChallengeLedger holds pending ceremony state between the options and
// verify steps. It is the only place ceremony state crosses a request
// boundary, which keeps the serving tier free to run multiple instances.
type ChallengeLedger interface {
	// Put stores the session data for a pending ceremony, overwriting any
	// prior entry for the same key.
	Put(ctx context.Context, key ChallengeKey, data *webauthn.SessionData, ttl time.Duration) error

	// Take atomically removes and returns the pending session data. Expired
	// entries are treated as absent. The entry is removed even when the
	// subsequent verification fails, so every challenge is single-use.
	// Returns ErrChallengeExpiredOrMissing when no live entry exists.
	Take(ctx context.Context, key ChallengeKey) (*webauthn.SessionData, error)
}
