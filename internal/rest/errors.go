// Copyright (c) 2025 The passgate authors
//
// This file is part of passgate.
//
// passgate is licensed under the GNU Affero General Public License v3.0.
// See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html

package rest

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/cryptofolio/passgate/pkg/ceremony"
)

// Common errors
var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrInvalidStep    = errors.New("step must be \"options\" or \"verify\"")
	ErrInternalError  = errors.New("internal server error")
	ErrUnauthorized   = errors.New("unauthorized")
)

// notFoundMessage is returned for both unknown handles and unknown
// credentials so responses never reveal which identities exist.
const notFoundMessage = "unknown identity or credential"

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Failed to encode JSON response: %v", err)
	}
}

// writeError writes an error response to the client.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	writeJSON(w, ErrorResponse{Error: message}, statusCode)
}

// mapCeremonyError maps a ceremony error to an HTTP status code and a
// client-safe message. Unrecognized errors collapse to a generic 500; the
// caller is responsible for logging the underlying cause.
func mapCeremonyError(err error) (int, string) {
	switch {
	case errors.Is(err, ceremony.ErrInvalidHandle):
		return http.StatusBadRequest, err.Error()
	case ceremony.IsChallengeExpiredOrMissing(err):
		return http.StatusBadRequest, ceremony.ErrChallengeExpiredOrMissing.Error()
	case ceremony.IsPossibleClone(err):
		return http.StatusBadRequest, ceremony.ErrPossibleClone.Error()
	case ceremony.IsVerificationFailed(err):
		return http.StatusBadRequest, ceremony.ErrVerificationFailed.Error()
	case ceremony.IsUnknownIdentity(err), ceremony.IsCredentialNotFound(err):
		return http.StatusNotFound, notFoundMessage
	case ceremony.IsDuplicateIdentity(err):
		return http.StatusConflict, ceremony.ErrDuplicateIdentity.Error()
	default:
		return http.StatusInternalServerError, ErrInternalError.Error()
	}
}

// errorType returns a stable identifier for an error, used as a metrics
// label value.
func errorType(err error) string {
	switch {
	case errors.Is(err, ceremony.ErrInvalidHandle):
		return "invalid_handle"
	case ceremony.IsChallengeExpiredOrMissing(err):
		return "challenge_expired"
	case ceremony.IsPossibleClone(err):
		return "possible_clone"
	case ceremony.IsVerificationFailed(err):
		return "verification_failed"
	case ceremony.IsUnknownIdentity(err):
		return "unknown_identity"
	case ceremony.IsCredentialNotFound(err):
		return "credential_not_found"
	case ceremony.IsDuplicateIdentity(err):
		return "duplicate_identity"
	default:
		return "store_failure"
	}
}
