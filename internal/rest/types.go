// Copyright (c) 2025 The passgate authors
//
// This file is part of passgate.
//
// passgate is licensed under the GNU Affero General Public License v3.0.
// See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html

package rest

import (
	"encoding/json"

	"github.com/cryptofolio/passgate/pkg/health"
)

// Ceremony steps accepted by the register and login endpoints.
const (
	StepOptions = "options"
	StepVerify  = "verify"
)

// RegisterRequest is the body of POST /auth/register.
type RegisterRequest struct {
	// Username is the handle being registered.
	Username string `json:"username"`

	// Step selects the ceremony phase: "options" or "verify".
	Step string `json:"step"`

	// Response carries the authenticator's attestation response on the
	// verify step. It is passed to the WebAuthn protocol parser untouched.
	Response json.RawMessage `json:"response,omitempty"`
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	// Email is the handle authenticating.
	Email string `json:"email"`

	// Step selects the ceremony phase: "options" or "verify".
	Step string `json:"step"`

	// Response carries the authenticator's assertion response on the
	// verify step.
	Response json.RawMessage `json:"response,omitempty"`
}

// OptionsResponse wraps the credential creation or request options returned
// by the options step.
type OptionsResponse struct {
	Options any `json:"options"`
}

// UserInfo identifies the authenticated user in verify and session responses.
type UserInfo struct {
	ID     string `json:"id"`
	Handle string `json:"handle"`
}

// VerifyResponse is returned on a successful verify step.
type VerifyResponse struct {
	Success bool     `json:"success"`
	User    UserInfo `json:"user"`

	// Token is an optional JWT bearer token, present when the server is
	// configured with a JWT issuer.
	Token string `json:"token,omitempty"`
}

// LogoutResponse is returned by POST /auth/logout.
type LogoutResponse struct {
	Success bool `json:"success"`
}

// MeResponse is returned by GET /auth/me.
type MeResponse struct {
	User UserInfo `json:"user"`
}

// ErrorResponse is the JSON body of every error status.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is returned by the health endpoint.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

// ReadinessResponse is returned by the readiness endpoint.
type ReadinessResponse struct {
	Status string               `json:"status"`
	Checks []health.CheckResult `json:"checks"`
}
