// Copyright (c) 2025 The passgate authors
//
// This file is part of passgate.
//
// passgate is licensed under the GNU Affero General Public License v3.0.
// See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html

package ceremony

import (
	"errors"
	"fmt"
)

// Sentinel errors for ceremony operations.
var (
	// ErrInvalidHandle is returned when a handle fails basic validation.
	ErrInvalidHandle = errors.New("handle must be between 3 and 64 characters")

	// ErrDuplicateIdentity is returned when registering a handle that is
	// already taken.
	ErrDuplicateIdentity = errors.New("identity already exists")

	// ErrUnknownIdentity is returned when a login ceremony references a
	// handle that either does not exist or has no registered credentials.
	// The two cases intentionally share one error so callers cannot be used
	// to enumerate registered handles.
	ErrUnknownIdentity = errors.New("unknown identity or no registered credentials")

	// ErrCredentialNotFound is returned when a submitted credential ID does
	// not belong to any of the user's registered credentials.
	ErrCredentialNotFound = errors.New("credential not found")

	// ErrChallengeExpiredOrMissing is returned when no live challenge exists
	// for the ceremony, whether it expired, was already consumed, or was
	// never issued.
	ErrChallengeExpiredOrMissing = errors.New("challenge expired or missing")

	// ErrVerificationFailed is returned when the authenticator's proof does
	// not verify (bad signature, origin, or relying-party mismatch).
	ErrVerificationFailed = errors.New("verification failed")

	// ErrPossibleClone is returned when the authenticator's signature counter
	// regressed, indicating a possibly cloned authenticator. The ceremony
	// fails closed and the stored counter is not updated.
	ErrPossibleClone = errors.New("possible cloned authenticator detected")

	// ErrCounterConflict is returned by credential stores when a
	// compare-and-set counter update loses against a concurrent writer.
	ErrCounterConflict = errors.New("credential counter conflict")
)

// CeremonyError wraps an error with the operation that produced it.
type CeremonyError struct {
	Op  string
	Err error
}

// Error returns the error message.
func (e *CeremonyError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *CeremonyError) Unwrap() error {
	return e.Err
}

// Is reports whether the target error matches.
func (e *CeremonyError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewError creates a new CeremonyError with the given operation and error.
func NewError(op string, err error) error {
	return &CeremonyError{Op: op, Err: err}
}

// WrapError wraps an error with an operation name if it's not nil.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	return NewError(op, err)
}

// IsDuplicateIdentity returns true if the error indicates the handle is taken.
func IsDuplicateIdentity(err error) bool {
	return errors.Is(err, ErrDuplicateIdentity)
}

// IsUnknownIdentity returns true if the error indicates no usable identity.
func IsUnknownIdentity(err error) bool {
	return errors.Is(err, ErrUnknownIdentity)
}

// IsCredentialNotFound returns true if the error indicates an unknown credential.
func IsCredentialNotFound(err error) bool {
	return errors.Is(err, ErrCredentialNotFound)
}

// IsChallengeExpiredOrMissing returns true if the error indicates a dead challenge.
func IsChallengeExpiredOrMissing(err error) bool {
	return errors.Is(err, ErrChallengeExpiredOrMissing)
}

// IsVerificationFailed returns true if the error indicates a failed proof.
func IsVerificationFailed(err error) bool {
	return errors.Is(err, ErrVerificationFailed)
}

// IsPossibleClone returns true if the error indicates a counter regression.
func IsPossibleClone(err error) bool {
	return errors.Is(err, ErrPossibleClone)
}
