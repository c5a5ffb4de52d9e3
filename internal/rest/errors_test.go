// Copyright (c) 2025 The passgate authors
//
// This file is part of passgate.
//
// passgate is licensed under the GNU Affero General Public License v3.0.
// See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html

package rest

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cryptofolio/passgate/pkg/ceremony"
)

func TestMapCeremonyError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
	}{
		{
			name:       "invalid handle",
			err:        ceremony.ErrInvalidHandle,
			wantStatus: http.StatusBadRequest,
			wantType:   "invalid_handle",
		},
		{
			name:       "challenge expired",
			err:        ceremony.ErrChallengeExpiredOrMissing,
			wantStatus: http.StatusBadRequest,
			wantType:   "challenge_expired",
		},
		{
			name:       "verification failed",
			err:        ceremony.ErrVerificationFailed,
			wantStatus: http.StatusBadRequest,
			wantType:   "verification_failed",
		},
		{
			name:       "possible clone",
			err:        ceremony.ErrPossibleClone,
			wantStatus: http.StatusBadRequest,
			wantType:   "possible_clone",
		},
		{
			name:       "unknown identity",
			err:        ceremony.ErrUnknownIdentity,
			wantStatus: http.StatusNotFound,
			wantType:   "unknown_identity",
		},
		{
			name:       "credential not found",
			err:        ceremony.ErrCredentialNotFound,
			wantStatus: http.StatusNotFound,
			wantType:   "credential_not_found",
		},
		{
			name:       "duplicate identity",
			err:        ceremony.ErrDuplicateIdentity,
			wantStatus: http.StatusConflict,
			wantType:   "duplicate_identity",
		},
		{
			name:       "wrapped ceremony error",
			err:        ceremony.NewError("take challenge", ceremony.ErrChallengeExpiredOrMissing),
			wantStatus: http.StatusBadRequest,
			wantType:   "challenge_expired",
		},
		{
			name:       "store failure",
			err:        errors.New("connection refused"),
			wantStatus: http.StatusInternalServerError,
			wantType:   "store_failure",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, message := mapCeremonyError(tt.err)
			assert.Equal(t, tt.wantStatus, status)
			assert.NotEmpty(t, message)
			assert.Equal(t, tt.wantType, errorType(tt.err))
		})
	}
}

func TestMapCeremonyError_EnumerationSafe(t *testing.T) {
	// Unknown handles and unowned credentials produce the same message.
	_, unknownMsg := mapCeremonyError(ceremony.ErrUnknownIdentity)
	_, notOwnedMsg := mapCeremonyError(ceremony.ErrCredentialNotFound)
	assert.Equal(t, unknownMsg, notOwnedMsg)
}

func TestMapCeremonyError_InternalHidesCause(t *testing.T) {
	_, message := mapCeremonyError(errors.New("pq: relation users does not exist"))
	assert.Equal(t, ErrInternalError.Error(), message)
}
