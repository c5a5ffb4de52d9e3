// Copyright (c) 2025 The passgate authors
//
// This file is part of passgate.
//
// passgate is licensed under the GNU Affero General Public License v3.0.
// See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html

package rest

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-webauthn/webauthn/protocol"

	"github.com/cryptofolio/passgate/pkg/ceremony"
	"github.com/cryptofolio/passgate/pkg/health"
	"github.com/cryptofolio/passgate/pkg/metrics"
)

// RegisterHandler handles POST /auth/register. The "options" step issues
// credential-creation options and a challenge; the "verify" step validates
// the attestation response, creates the user, and starts a session.
func (s *Server) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, ErrInvalidRequest.Error(), http.StatusBadRequest)
		return
	}

	switch req.Step {
	case StepOptions:
		s.registerOptions(w, r, req)
	case StepVerify:
		s.registerVerify(w, r, req)
	default:
		writeError(w, ErrInvalidStep.Error(), http.StatusBadRequest)
	}
}

func (s *Server) registerOptions(w http.ResponseWriter, r *http.Request, req RegisterRequest) {
	start := time.Now()

	options, err := s.engine.RegistrationOptions(r.Context(), req.Username)
	if err != nil {
		s.ceremonyError(w, metrics.CeremonyRegister, metrics.StepOptions, start, err)
		return
	}

	metrics.RecordCeremony(metrics.CeremonyRegister, metrics.StepOptions,
		metrics.StatusSuccess, time.Since(start).Seconds())
	writeJSON(w, OptionsResponse{Options: options}, http.StatusOK)
}

func (s *Server) registerVerify(w http.ResponseWriter, r *http.Request, req RegisterRequest) {
	start := time.Now()

	parsed, err := parseCreationResponse(req.Response)
	if err != nil {
		s.ceremonyError(w, metrics.CeremonyRegister, metrics.StepVerify, start,
			errors.Join(ceremony.ErrVerificationFailed, err))
		return
	}

	user, err := s.engine.RegistrationVerify(r.Context(), req.Username, parsed)
	if err != nil {
		s.ceremonyError(w, metrics.CeremonyRegister, metrics.StepVerify, start, err)
		return
	}

	metrics.RecordCeremony(metrics.CeremonyRegister, metrics.StepVerify,
		metrics.StatusSuccess, time.Since(start).Seconds())
	s.startSession(w, r, user)
}

// LoginHandler handles POST /auth/login. The "options" step issues
// credential-request options for the handle's registered credentials; the
// "verify" step validates the assertion response and starts a session.
func (s *Server) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, ErrInvalidRequest.Error(), http.StatusBadRequest)
		return
	}

	switch req.Step {
	case StepOptions:
		s.loginOptions(w, r, req)
	case StepVerify:
		s.loginVerify(w, r, req)
	default:
		writeError(w, ErrInvalidStep.Error(), http.StatusBadRequest)
	}
}

func (s *Server) loginOptions(w http.ResponseWriter, r *http.Request, req LoginRequest) {
	start := time.Now()

	options, err := s.engine.LoginOptions(r.Context(), req.Email)
	if err != nil {
		s.ceremonyError(w, metrics.CeremonyAuthenticate, metrics.StepOptions, start, err)
		return
	}

	metrics.RecordCeremony(metrics.CeremonyAuthenticate, metrics.StepOptions,
		metrics.StatusSuccess, time.Since(start).Seconds())
	writeJSON(w, OptionsResponse{Options: options}, http.StatusOK)
}

func (s *Server) loginVerify(w http.ResponseWriter, r *http.Request, req LoginRequest) {
	start := time.Now()

	parsed, err := parseAssertionResponse(req.Response)
	if err != nil {
		s.ceremonyError(w, metrics.CeremonyAuthenticate, metrics.StepVerify, start,
			errors.Join(ceremony.ErrVerificationFailed, err))
		return
	}

	user, err := s.engine.LoginVerify(r.Context(), req.Email, parsed)
	if err != nil {
		s.ceremonyError(w, metrics.CeremonyAuthenticate, metrics.StepVerify, start, err)
		return
	}

	metrics.RecordCeremony(metrics.CeremonyAuthenticate, metrics.StepVerify,
		metrics.StatusSuccess, time.Since(start).Seconds())
	s.startSession(w, r, user)
}

// LogoutHandler handles POST /auth/logout. Revocation is idempotent: the
// response is a success whether or not a session cookie was present.
func (s *Server) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(s.cookieName); err == nil && cookie.Value != "" {
		if err := s.sessions.Revoke(r.Context(), cookie.Value); err != nil {
			s.logger.Errorf("failed to revoke session: %v", err)
			writeError(w, ErrInternalError.Error(), http.StatusInternalServerError)
			return
		}
		metrics.RecordSessionRevoked()
	}

	s.clearSessionCookie(w)
	writeJSON(w, LogoutResponse{Success: true}, http.StatusOK)
}

// MeHandler handles GET /auth/me for authenticated requests.
func (s *Server) MeHandler(w http.ResponseWriter, r *http.Request) {
	sess := SessionFromContext(r.Context())
	if sess == nil {
		writeError(w, ErrUnauthorized.Error(), http.StatusUnauthorized)
		return
	}

	writeJSON(w, MeResponse{
		User: UserInfo{ID: sess.UserID, Handle: sess.Handle},
	}, http.StatusOK)
}

// HealthHandler handles the liveness endpoint.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, HealthResponse{Status: "ok", Version: s.version}, http.StatusOK)
}

// ReadinessHandler runs the registered storage checks and reports 503 when
// any dependency is unhealthy.
func (s *Server) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	if s.checker == nil {
		writeJSON(w, ReadinessResponse{Status: string(health.StatusHealthy)}, http.StatusOK)
		return
	}

	results := s.checker.Ready(r.Context())
	status := health.AggregateStatus(results)

	code := http.StatusOK
	if status != health.StatusHealthy {
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, ReadinessResponse{Status: string(status), Checks: results}, code)
}

// startSession issues a session for a verified user, sets the session
// cookie, and writes the verify response.
func (s *Server) startSession(w http.ResponseWriter, r *http.Request, user *ceremony.User) {
	sess, err := s.sessions.Issue(r.Context(), user.ID, user.Handle)
	if err != nil {
		s.logger.Errorf("failed to issue session: %v", err)
		writeError(w, ErrInternalError.Error(), http.StatusInternalServerError)
		return
	}
	metrics.RecordSessionIssued()

	resp := VerifyResponse{
		Success: true,
		User:    UserInfo{ID: user.ID, Handle: user.Handle},
	}

	if s.jwt != nil {
		token, err := s.jwt.Issue(sess)
		if err != nil {
			s.logger.Errorf("failed to issue bearer token: %v", err)
			writeError(w, ErrInternalError.Error(), http.StatusInternalServerError)
			return
		}
		resp.Token = token
	}

	s.setSessionCookie(w, sess.Token)
	writeJSON(w, resp, http.StatusOK)
}

// setSessionCookie sets the session cookie per the cookie contract.
func (s *Server) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.sessions.TTL().Seconds()),
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// clearSessionCookie expires the session cookie on the client.
func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ceremonyError records metrics for a failed ceremony step and writes the
// mapped error response. Unrecognized errors are logged and surfaced as a
// generic 500.
func (s *Server) ceremonyError(w http.ResponseWriter, ceremonyName, step string, start time.Time, err error) {
	metrics.RecordCeremony(ceremonyName, step, metrics.StatusError, time.Since(start).Seconds())
	metrics.RecordError(ceremonyName, errorType(err))

	status, message := mapCeremonyError(err)
	if status == http.StatusInternalServerError {
		s.logger.Errorf("%s %s failed: %v", ceremonyName, step, err)
	} else {
		s.logger.Debug("Ceremony rejected",
			"ceremony", ceremonyName,
			"step", step,
			"error", err.Error())
	}

	writeError(w, message, status)
}

// parseCreationResponse parses a raw attestation response into the
// WebAuthn protocol type.
func parseCreationResponse(raw json.RawMessage) (*protocol.ParsedCredentialCreationData, error) {
	if len(raw) == 0 {
		return nil, errors.New("missing response")
	}
	return protocol.ParseCredentialCreationResponseBody(bytes.NewReader(raw))
}

// parseAssertionResponse parses a raw assertion response into the WebAuthn
// protocol type.
func parseAssertionResponse(raw json.RawMessage) (*protocol.ParsedCredentialAssertionData, error) {
	if len(raw) == 0 {
		return nil, errors.New("missing response")
	}
	return protocol.ParseCredentialRequestResponseBody(bytes.NewReader(raw))
}
