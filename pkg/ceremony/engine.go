// Copyright (c) 2025 The passgate authors
//
// This file is part of passgate.
//
// passgate is licensed under the GNU Affero General Public License v3.0.
// See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html

package ceremony

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"
)

// Engine drives the two-step ceremony protocol for both registration and
// authentication. All cryptographic verification is delegated to the
// go-webauthn library; the engine owns identity checks, challenge lifecycle,
// and the clone-detection policy.
type Engine struct {
	webauthn *webauthn.WebAuthn
	config   *Config
	users    UserStore
	creds    CredentialStore
	ledger   ChallengeLedger
	now      func() time.Time
}

// EngineParams contains dependencies for creating a ceremony engine.
type EngineParams struct {
	// Config is the relying-party configuration (required).
	Config *Config

	// UserStore is the user persistence layer (required).
	UserStore UserStore

	// CredentialStore is the credential persistence layer (required).
	CredentialStore CredentialStore

	// ChallengeLedger holds pending ceremony state (required).
	ChallengeLedger ChallengeLedger
}

// NewEngine creates a ceremony engine with the provided dependencies.
func NewEngine(params EngineParams) (*Engine, error) {
	if params.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if params.UserStore == nil {
		return nil, fmt.Errorf("user store is required")
	}
	if params.CredentialStore == nil {
		return nil, fmt.Errorf("credential store is required")
	}
	if params.ChallengeLedger == nil {
		return nil, fmt.Errorf("challenge ledger is required")
	}

	params.Config.SetDefaults()
	if err := params.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	wa, err := webauthn.New(params.Config.toWebAuthnConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create webauthn instance: %w", err)
	}

	return &Engine{
		webauthn: wa,
		config:   params.Config,
		users:    params.UserStore,
		creds:    params.CredentialStore,
		ledger:   params.ChallengeLedger,
		now:      time.Now,
	}, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() *Config {
	return e.config
}

// RegistrationOptions starts a registration ceremony for a new handle.
// It issues a fresh challenge, parks it in the ledger under (handle,
// register), and returns the credential-creation options for the client.
// No user or credential record is created yet.
func (e *Engine) RegistrationOptions(ctx context.Context, handle string) (*protocol.CredentialCreation, error) {
	handle, err := normalizeHandle(handle)
	if err != nil {
		return nil, err
	}

	_, err = e.users.GetByHandle(ctx, handle)
	switch {
	case err == nil:
		return nil, ErrDuplicateIdentity
	case !IsUnknownIdentity(err):
		return nil, WrapError("get user by handle", err)
	}

	// Provisional identity. It only becomes durable if the verify step
	// succeeds; until then it lives in the ledger's session data.
	registrant := &User{ID: uuid.NewString(), Handle: handle}

	creation, session, err := e.webauthn.BeginRegistration(registrant)
	if err != nil {
		return nil, WrapError("begin registration", err)
	}

	key := ChallengeKey{Handle: handle, Kind: KindRegister}
	if err := e.ledger.Put(ctx, key, session, e.config.ChallengeTTL); err != nil {
		return nil, WrapError("store challenge", err)
	}

	return creation, nil
}

// RegistrationVerify completes a registration ceremony. On success the user
// and its first credential are created atomically and the challenge is
// consumed. The challenge is consumed even when verification fails; the
// client must request fresh options to retry.
func (e *Engine) RegistrationVerify(ctx context.Context, handle string, response *protocol.ParsedCredentialCreationData) (*User, error) {
	handle, err := normalizeHandle(handle)
	if err != nil {
		return nil, err
	}
	if response == nil {
		return nil, ErrVerificationFailed
	}

	session, err := e.takeChallenge(ctx, ChallengeKey{Handle: handle, Kind: KindRegister})
	if err != nil {
		return nil, err
	}

	registrant := &User{ID: string(session.UserID), Handle: handle}
	wcred, err := e.webauthn.CreateCredential(registrant, *session, response)
	if err != nil {
		return nil, NewError("create credential", fmt.Errorf("%w: %v", ErrVerificationFailed, err))
	}

	user := &User{ID: registrant.ID, Handle: handle, CreatedAt: e.now().UTC()}
	cred := FromWebAuthnCredential(user.ID, wcred)
	cred.CreatedAt = user.CreatedAt

	if err := e.users.Create(ctx, user, cred); err != nil {
		if IsDuplicateIdentity(err) {
			return nil, ErrDuplicateIdentity
		}
		return nil, WrapError("create user", err)
	}
	user.SetCredentials([]*Credential{cred})

	return user, nil
}

// LoginOptions starts an authentication ceremony. The returned options list
// the user's registered credential IDs and transports. A handle that does
// not exist and a handle without credentials fail identically, so the
// options step cannot be used to probe for registered identities.
func (e *Engine) LoginOptions(ctx context.Context, handle string) (*protocol.CredentialAssertion, error) {
	handle, err := normalizeHandle(handle)
	if err != nil {
		return nil, err
	}

	user, err := e.loadUser(ctx, handle)
	if err != nil {
		return nil, err
	}

	assertion, session, err := e.webauthn.BeginLogin(user)
	if err != nil {
		return nil, WrapError("begin login", err)
	}

	key := ChallengeKey{Handle: handle, Kind: KindAuthenticate}
	if err := e.ledger.Put(ctx, key, session, e.config.ChallengeTTL); err != nil {
		return nil, WrapError("store challenge", err)
	}

	return assertion, nil
}

// LoginVerify completes an authentication ceremony. On success the
// credential's signature counter is advanced with a compare-and-set and the
// challenge is consumed. A counter that fails to advance past a non-zero
// stored value fails closed with ErrPossibleClone.
func (e *Engine) LoginVerify(ctx context.Context, handle string, response *protocol.ParsedCredentialAssertionData) (*User, error) {
	handle, err := normalizeHandle(handle)
	if err != nil {
		return nil, err
	}
	if response == nil {
		return nil, ErrVerificationFailed
	}

	session, err := e.takeChallenge(ctx, ChallengeKey{Handle: handle, Kind: KindAuthenticate})
	if err != nil {
		return nil, err
	}

	user, err := e.loadUser(ctx, handle)
	if err != nil {
		return nil, err
	}

	// Ownership check on raw credential ID bytes. The wire carries the ID
	// base64url-encoded and storage may re-encode it again; comparing
	// anything but the decoded bytes is how credentials silently stop
	// matching their owners.
	var owned *Credential
	for _, c := range user.Credentials() {
		if bytes.Equal(c.ID, response.RawID) {
			owned = c
			break
		}
	}
	if owned == nil {
		return nil, ErrCredentialNotFound
	}

	validated, err := e.webauthn.ValidateLogin(user, *session, response)
	if err != nil {
		return nil, NewError("validate login", fmt.Errorf("%w: %v", ErrVerificationFailed, err))
	}

	// The library flags a regressed counter but leaves the policy decision
	// to us: fail closed and keep the stored counter untouched. A counter
	// that is always zero never trips this (some authenticators simply do
	// not count).
	if validated.Authenticator.CloneWarning {
		return nil, ErrPossibleClone
	}

	err = e.creds.UpdateCounter(ctx, owned.ID, owned.SignCount, validated.Authenticator.SignCount, e.now().UTC())
	switch {
	case err == nil:
	case errors.Is(err, ErrCounterConflict):
		// Another authentication advanced the counter first. The value we
		// verified is now stale, which is indistinguishable from a replayed
		// or cloned authenticator. Fail closed.
		return nil, ErrPossibleClone
	case IsCredentialNotFound(err):
		return nil, ErrCredentialNotFound
	default:
		return nil, WrapError("update counter", err)
	}

	return user, nil
}

// User retrieves a user by identifier. Used by callers resolving an
// established session back to its identity.
func (e *Engine) User(ctx context.Context, id string) (*User, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrUnknownIdentity
	}
	return e.users.GetByID(ctx, id)
}

// loadUser fetches a user and its credentials, collapsing "no such handle"
// and "no credentials" into the same error.
func (e *Engine) loadUser(ctx context.Context, handle string) (*User, error) {
	user, err := e.users.GetByHandle(ctx, handle)
	if err != nil {
		if IsUnknownIdentity(err) {
			return nil, ErrUnknownIdentity
		}
		return nil, WrapError("get user by handle", err)
	}

	creds, err := e.creds.GetByUser(ctx, user.ID)
	if err != nil {
		return nil, WrapError("get credentials", err)
	}
	if len(creds) == 0 {
		return nil, ErrUnknownIdentity
	}
	user.SetCredentials(creds)

	return user, nil
}

// takeChallenge consumes the pending challenge for a ceremony key.
func (e *Engine) takeChallenge(ctx context.Context, key ChallengeKey) (*webauthn.SessionData, error) {
	session, err := e.ledger.Take(ctx, key)
	if err != nil {
		if IsChallengeExpiredOrMissing(err) {
			return nil, ErrChallengeExpiredOrMissing
		}
		return nil, WrapError("take challenge", err)
	}
	return session, nil
}

// normalizeHandle trims and validates a human-readable handle.
func normalizeHandle(handle string) (string, error) {
	handle = strings.TrimSpace(handle)
	if n := utf8.RuneCountInString(handle); n < 3 || n > 64 {
		return "", ErrInvalidHandle
	}
	return handle, nil
}
