// Copyright (c) 2025 The passgate authors
//
// This file is part of passgate.
//
// passgate is licensed under the GNU Affero General Public License v3.0.
// See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html

package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/descope/virtualwebauthn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptofolio/passgate/pkg/ceremony"
	"github.com/cryptofolio/passgate/pkg/health"
	"github.com/cryptofolio/passgate/pkg/logging"
	"github.com/cryptofolio/passgate/pkg/session"
)

const (
	testRPID   = "example.com"
	testRPName = "Crypto Portfolio Dashboard"
	testOrigin = "https://example.com"
	testHandle = "alice@example.com"
)

type testServer struct {
	server *Server
	ts     *httptest.Server
	client *http.Client
	rp     virtualwebauthn.RelyingParty
	jwt    *session.JWTIssuer
}

type serverOption func(*Config)

func withJWT(t *testing.T) serverOption {
	t.Helper()

	issuer, err := session.NewJWTIssuer(&session.JWTConfig{
		Secret: []byte("test-secret-test-secret-test-1234"),
	})
	require.NoError(t, err)

	return func(cfg *Config) { cfg.JWT = issuer }
}

func newTestServer(t *testing.T, opts ...serverOption) *testServer {
	t.Helper()

	store := ceremony.NewMemoryStore()
	ledger := ceremony.NewMemoryLedger()

	engine, err := ceremony.NewEngine(ceremony.EngineParams{
		Config: &ceremony.Config{
			RPID:          testRPID,
			RPDisplayName: testRPName,
			RPOrigins:     []string{testOrigin},
		},
		UserStore:       store,
		CredentialStore: store,
		ChallengeLedger: ledger,
	})
	require.NoError(t, err)

	sessions, err := session.NewManager(session.NewMemoryStore(), 0)
	require.NoError(t, err)

	cfg := &Config{
		Engine:         engine,
		Sessions:       sessions,
		Logger:         logging.NewLogger(false),
		Version:        "test",
		CORSOrigins:    []string{testOrigin},
		MetricsEnabled: true,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	server, err := NewServer(cfg)
	require.NoError(t, err)

	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	client := ts.Client()
	client.Jar = jar

	return &testServer{
		server: server,
		ts:     ts,
		client: client,
		rp: virtualwebauthn.RelyingParty{
			Name:   testRPName,
			ID:     testRPID,
			Origin: testOrigin,
		},
		jwt: cfg.JWT,
	}
}

func (s *testServer) post(t *testing.T, path string, body any) (*http.Response, []byte) {
	t.Helper()

	payload, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := s.client.Post(s.ts.URL+path, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	return resp, data
}

func (s *testServer) get(t *testing.T, path string) (*http.Response, []byte) {
	t.Helper()

	resp, err := s.client.Get(s.ts.URL + path)
	require.NoError(t, err)

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	return resp, data
}

// publicKeyOptions extracts the publicKey member of an options response.
func publicKeyOptions(t *testing.T, body []byte) string {
	t.Helper()

	var wrapper struct {
		Options struct {
			PublicKey json.RawMessage `json:"publicKey"`
		} `json:"options"`
	}
	require.NoError(t, json.Unmarshal(body, &wrapper))
	require.NotEmpty(t, wrapper.Options.PublicKey)
	return string(wrapper.Options.PublicKey)
}

// register runs a full registration ceremony over HTTP and returns the
// verify response body.
func (s *testServer) register(t *testing.T, handle string, authenticator *virtualwebauthn.Authenticator, credential *virtualwebauthn.Credential) []byte {
	t.Helper()

	resp, body := s.post(t, "/auth/register", RegisterRequest{
		Username: handle,
		Step:     StepOptions,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	parsedOptions, err := virtualwebauthn.ParseAttestationOptions(publicKeyOptions(t, body))
	require.NoError(t, err)

	attestation := virtualwebauthn.CreateAttestationResponse(s.rp, *authenticator, *credential, *parsedOptions)

	resp, body = s.post(t, "/auth/register", RegisterRequest{
		Username: handle,
		Step:     StepVerify,
		Response: json.RawMessage(attestation),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	authenticator.AddCredential(*credential)
	return body
}

// login runs a full login ceremony over HTTP and returns the verify
// response body.
func (s *testServer) login(t *testing.T, handle string, authenticator *virtualwebauthn.Authenticator, credential *virtualwebauthn.Credential) []byte {
	t.Helper()

	resp, body := s.post(t, "/auth/login", LoginRequest{
		Email: handle,
		Step:  StepOptions,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	parsedOptions, err := virtualwebauthn.ParseAssertionOptions(publicKeyOptions(t, body))
	require.NoError(t, err)

	assertion := virtualwebauthn.CreateAssertionResponse(s.rp, *authenticator, *credential, *parsedOptions)

	resp, body = s.post(t, "/auth/login", LoginRequest{
		Email:    handle,
		Step:     StepVerify,
		Response: json.RawMessage(assertion),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	return body
}

func errorMessage(t *testing.T, body []byte) string {
	t.Helper()

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	return resp.Error
}

func sessionCookie(resp *http.Response) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == "session" {
			return c
		}
	}
	return nil
}

func TestServer_RegisterFlow(t *testing.T) {
	s := newTestServer(t)
	authenticator := virtualwebauthn.NewAuthenticator()
	credential := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)

	resp, body := s.post(t, "/auth/register", RegisterRequest{
		Username: testHandle,
		Step:     StepOptions,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	optionsJSON := publicKeyOptions(t, body)
	assert.Contains(t, optionsJSON, testRPID)
	assert.Contains(t, optionsJSON, "challenge")

	parsedOptions, err := virtualwebauthn.ParseAttestationOptions(optionsJSON)
	require.NoError(t, err)

	attestation := virtualwebauthn.CreateAttestationResponse(s.rp, authenticator, credential, *parsedOptions)

	resp, body = s.post(t, "/auth/register", RegisterRequest{
		Username: testHandle,
		Step:     StepVerify,
		Response: json.RawMessage(attestation),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var verify VerifyResponse
	require.NoError(t, json.Unmarshal(body, &verify))
	assert.True(t, verify.Success)
	assert.Equal(t, testHandle, verify.User.Handle)
	assert.NotEmpty(t, verify.User.ID)
	assert.Empty(t, verify.Token)

	cookie := sessionCookie(resp)
	require.NotNil(t, cookie, "verify response must set the session cookie")
	assert.NotEmpty(t, cookie.Value)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, "/", cookie.Path)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
	assert.Equal(t, int(s.server.sessions.TTL().Seconds()), cookie.MaxAge)
}

func TestServer_RegisterInvalidStep(t *testing.T) {
	s := newTestServer(t)

	resp, body := s.post(t, "/auth/register", RegisterRequest{
		Username: testHandle,
		Step:     "finish",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, errorMessage(t, body), "options")
}

func TestServer_RegisterMalformedBody(t *testing.T) {
	s := newTestServer(t)

	resp, err := s.client.Post(s.ts.URL+"/auth/register", "application/json",
		strings.NewReader("{not json"))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_RegisterInvalidHandle(t *testing.T) {
	s := newTestServer(t)

	resp, body := s.post(t, "/auth/register", RegisterRequest{
		Username: "ab",
		Step:     StepOptions,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, errorMessage(t, body), "handle")
}

func TestServer_RegisterDuplicateHandle(t *testing.T) {
	s := newTestServer(t)
	authenticator := virtualwebauthn.NewAuthenticator()
	credential := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)

	s.register(t, testHandle, &authenticator, &credential)

	resp, body := s.post(t, "/auth/register", RegisterRequest{
		Username: testHandle,
		Step:     StepOptions,
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Contains(t, errorMessage(t, body), "already exists")
}

func TestServer_RegisterVerifyWithoutOptions(t *testing.T) {
	s := newTestServer(t)

	resp, body := s.post(t, "/auth/register", RegisterRequest{
		Username: testHandle,
		Step:     StepVerify,
		Response: json.RawMessage(`{"id":"x"}`),
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.NotEmpty(t, errorMessage(t, body))
}

func TestServer_LoginFlow(t *testing.T) {
	s := newTestServer(t)
	authenticator := virtualwebauthn.NewAuthenticator()
	credential := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)

	s.register(t, testHandle, &authenticator, &credential)
	body := s.login(t, testHandle, &authenticator, &credential)

	var verify VerifyResponse
	require.NoError(t, json.Unmarshal(body, &verify))
	assert.True(t, verify.Success)
	assert.Equal(t, testHandle, verify.User.Handle)

	// The cookie jar now holds the session; the protected endpoint works.
	resp, body := s.get(t, "/auth/me")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var me MeResponse
	require.NoError(t, json.Unmarshal(body, &me))
	assert.Equal(t, testHandle, me.User.Handle)
	assert.Equal(t, verify.User.ID, me.User.ID)
}

func TestServer_LoginUnknownEmail(t *testing.T) {
	s := newTestServer(t)

	resp, body := s.post(t, "/auth/login", LoginRequest{
		Email: "nobody@example.com",
		Step:  StepOptions,
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, notFoundMessage, errorMessage(t, body))
}

func TestServer_LoginVerifyMissingResponse(t *testing.T) {
	s := newTestServer(t)
	authenticator := virtualwebauthn.NewAuthenticator()
	credential := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)

	s.register(t, testHandle, &authenticator, &credential)

	resp, body := s.post(t, "/auth/login", LoginRequest{
		Email: testHandle,
		Step:  StepVerify,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.NotEmpty(t, errorMessage(t, body))
}

func TestServer_LoginReplayRejected(t *testing.T) {
	s := newTestServer(t)
	authenticator := virtualwebauthn.NewAuthenticator()
	credential := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)

	s.register(t, testHandle, &authenticator, &credential)

	resp, body := s.post(t, "/auth/login", LoginRequest{
		Email: testHandle,
		Step:  StepOptions,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	parsedOptions, err := virtualwebauthn.ParseAssertionOptions(publicKeyOptions(t, body))
	require.NoError(t, err)

	assertion := virtualwebauthn.CreateAssertionResponse(s.rp, authenticator, credential, *parsedOptions)

	resp, _ = s.post(t, "/auth/login", LoginRequest{
		Email:    testHandle,
		Step:     StepVerify,
		Response: json.RawMessage(assertion),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Replaying the same assertion fails; the challenge was consumed.
	resp, body = s.post(t, "/auth/login", LoginRequest{
		Email:    testHandle,
		Step:     StepVerify,
		Response: json.RawMessage(assertion),
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, errorMessage(t, body), "challenge")
}

func TestServer_MeUnauthorized(t *testing.T) {
	s := newTestServer(t)

	resp, body := s.get(t, "/auth/me")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, ErrUnauthorized.Error(), errorMessage(t, body))
}

func TestServer_LogoutIdempotent(t *testing.T) {
	s := newTestServer(t)

	// Logout without a session is still a success.
	resp, body := s.post(t, "/auth/logout", struct{}{})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var logout LogoutResponse
	require.NoError(t, json.Unmarshal(body, &logout))
	assert.True(t, logout.Success)
}

func TestServer_LogoutEndsSession(t *testing.T) {
	s := newTestServer(t)
	authenticator := virtualwebauthn.NewAuthenticator()
	credential := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)

	s.register(t, testHandle, &authenticator, &credential)

	resp, _ := s.get(t, "/auth/me")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = s.post(t, "/auth/logout", struct{}{})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	cookie := sessionCookie(resp)
	require.NotNil(t, cookie)
	assert.Empty(t, cookie.Value)
	assert.Less(t, cookie.MaxAge, 0)

	resp, _ = s.get(t, "/auth/me")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// A second logout is still a success.
	resp, _ = s.post(t, "/auth/logout", struct{}{})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_JWTToken(t *testing.T) {
	s := newTestServer(t, withJWT(t))

	authenticator := virtualwebauthn.NewAuthenticator()
	credential := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)

	body := s.register(t, testHandle, &authenticator, &credential)

	var verify VerifyResponse
	require.NoError(t, json.Unmarshal(body, &verify))
	require.NotEmpty(t, verify.Token)

	userID, handle, err := s.jwt.Verify(verify.Token)
	require.NoError(t, err)
	assert.Equal(t, verify.User.ID, userID)
	assert.Equal(t, testHandle, handle)
}

func TestServer_Health(t *testing.T) {
	s := newTestServer(t)

	resp, body := s.get(t, "/health")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var health HealthResponse
	require.NoError(t, json.Unmarshal(body, &health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "test", health.Version)
}

func TestServer_ReadinessWithoutChecker(t *testing.T) {
	s := newTestServer(t)

	resp, body := s.get(t, "/health/ready")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var ready ReadinessResponse
	require.NoError(t, json.Unmarshal(body, &ready))
	assert.Equal(t, "healthy", ready.Status)
}

func TestServer_ReadinessUnhealthyBackend(t *testing.T) {
	checker := health.NewChecker()
	checker.RegisterCheck("sqlite", health.PingCheck("sqlite", func(ctx context.Context) error {
		return errors.New("database is locked")
	}))

	s := newTestServer(t, func(cfg *Config) { cfg.Checker = checker })

	resp, body := s.get(t, "/health/ready")
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	var ready ReadinessResponse
	require.NoError(t, json.Unmarshal(body, &ready))
	assert.Equal(t, "unhealthy", ready.Status)
	require.Len(t, ready.Checks, 1)
	assert.Equal(t, "sqlite", ready.Checks[0].Name)
}

func TestServer_Metrics(t *testing.T) {
	s := newTestServer(t)

	resp, body := s.get(t, "/metrics")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "passgate_")
}

func TestServer_NewServerValidation(t *testing.T) {
	_, err := NewServer(nil)
	assert.ErrorContains(t, err, "config is required")

	_, err = NewServer(&Config{})
	assert.ErrorContains(t, err, "ceremony engine is required")
}
