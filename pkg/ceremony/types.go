// Copyright (c) 2025 The passgate authors
//
// This file is part of passgate.
//
// passgate is licensed under the GNU Affero General Public License v3.0.
// See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html

package ceremony

import (
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
)

// User is an identity registered with the gateway. A user owns zero or more
// credentials and is created atomically with its first credential during the
// registration verify step.
type User struct {
	// ID is the user identifier (UUID string). Its UTF-8 bytes double as the
	// WebAuthn user handle.
	ID string `json:"id"`

	// Handle is the unique human-readable identity (username or email).
	Handle string `json:"handle"`

	// CreatedAt is when the user completed registration.
	CreatedAt time.Time `json:"created_at"`

	// credentials are the user's loaded credentials, populated by the engine
	// before a library ceremony call.
	credentials []*Credential
}

// WebAuthnID returns the WebAuthn user handle.
func (u *User) WebAuthnID() []byte {
	return []byte(u.ID)
}

// WebAuthnName returns the user's account name.
func (u *User) WebAuthnName() string {
	return u.Handle
}

// WebAuthnDisplayName returns the name shown by authenticator UIs.
func (u *User) WebAuthnDisplayName() string {
	return u.Handle
}

// WebAuthnCredentials returns the user's registered credentials in the
// go-webauthn library's representation.
func (u *User) WebAuthnCredentials() []webauthn.Credential {
	creds := make([]webauthn.Credential, len(u.credentials))
	for i, c := range u.credentials {
		creds[i] = c.ToWebAuthn()
	}
	return creds
}

// SetCredentials replaces the user's loaded credentials.
func (u *User) SetCredentials(creds []*Credential) {
	u.credentials = creds
}

// Credentials returns the user's loaded credentials.
func (u *User) Credentials() []*Credential {
	return u.credentials
}

// Credential is one registered authenticator. The credential ID is kept as
// raw bytes everywhere inside the core; binary-to-text encodings exist only
// at storage and wire boundaries and must round-trip exactly.
type Credential struct {
	// ID is the credential identifier assigned by the authenticator.
	ID []byte `json:"id"`

	// UserID is the owning user's identifier.
	UserID string `json:"user_id"`

	// PublicKey is the credential's public key in COSE format.
	PublicKey []byte `json:"public_key"`

	// AttestationType records the attestation conveyed at registration.
	AttestationType string `json:"attestation_type"`

	// Transports lists the transports reported by the authenticator.
	// Advisory only; never used for identity decisions.
	Transports []protocol.AuthenticatorTransport `json:"transports,omitempty"`

	// Flags contains authenticator capability flags.
	Flags CredentialFlags `json:"flags"`

	// AAGUID is the authenticator model identifier.
	AAGUID []byte `json:"aaguid,omitempty"`

	// SignCount is the signature counter used for clone detection. It is
	// strictly non-decreasing across successful authentications.
	SignCount uint32 `json:"sign_count"`

	// CreatedAt is when the credential was registered.
	CreatedAt time.Time `json:"created_at"`

	// LastUsedAt is when the credential last completed an authentication.
	LastUsedAt time.Time `json:"last_used_at,omitempty"`
}

// CredentialFlags contains authenticator capability flags.
type CredentialFlags struct {
	UserPresent    bool `json:"user_present"`
	UserVerified   bool `json:"user_verified"`
	BackupEligible bool `json:"backup_eligible"`
	BackupState    bool `json:"backup_state"`
}

// ToWebAuthn converts a Credential to the go-webauthn library's type.
func (c *Credential) ToWebAuthn() webauthn.Credential {
	return webauthn.Credential{
		ID:              c.ID,
		PublicKey:       c.PublicKey,
		AttestationType: c.AttestationType,
		Transport:       c.Transports,
		Flags: webauthn.CredentialFlags{
			UserPresent:    c.Flags.UserPresent,
			UserVerified:   c.Flags.UserVerified,
			BackupEligible: c.Flags.BackupEligible,
			BackupState:    c.Flags.BackupState,
		},
		Authenticator: webauthn.Authenticator{
			AAGUID:    c.AAGUID,
			SignCount: c.SignCount,
		},
	}
}

// FromWebAuthnCredential creates a Credential from the library's type.
func FromWebAuthnCredential(userID string, wc *webauthn.Credential) *Credential {
	return &Credential{
		ID:              wc.ID,
		UserID:          userID,
		PublicKey:       wc.PublicKey,
		AttestationType: wc.AttestationType,
		Transports:      wc.Transport,
		Flags: CredentialFlags{
			UserPresent:    wc.Flags.UserPresent,
			UserVerified:   wc.Flags.UserVerified,
			BackupEligible: wc.Flags.BackupEligible,
			BackupState:    wc.Flags.BackupState,
		},
		AAGUID:    wc.Authenticator.AAGUID,
		SignCount: wc.Authenticator.SignCount,
		CreatedAt: time.Now().UTC(),
	}
}
