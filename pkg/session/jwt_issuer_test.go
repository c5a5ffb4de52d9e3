// Copyright (c) 2025 The passgate authors
//
// This file is part of passgate.
//
// passgate is licensed under the GNU Affero General Public License v3.0.
// See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html

package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testJWTIssuer(t *testing.T) *JWTIssuer {
	t.Helper()

	issuer, err := NewJWTIssuer(&JWTConfig{
		Secret: []byte("0123456789abcdef0123456789abcdef"),
	})
	require.NoError(t, err)
	return issuer
}

func TestNewJWTIssuer_Validation(t *testing.T) {
	_, err := NewJWTIssuer(nil)
	require.Error(t, err)

	_, err = NewJWTIssuer(&JWTConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "signing secret is required")
}

func TestJWTIssuer_IssueAndVerify(t *testing.T) {
	issuer := testJWTIssuer(t)

	sess := &Session{
		Token:  "tok-1",
		UserID: "user-1",
		Handle: "alice@example.com",
	}

	token, err := issuer.Issue(sess)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	userID, handle, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)
	assert.Equal(t, "alice@example.com", handle)
}

func TestJWTIssuer_VerifyRejectsTampering(t *testing.T) {
	issuer := testJWTIssuer(t)

	token, err := issuer.Issue(&Session{UserID: "user-1", Handle: "alice@example.com"})
	require.NoError(t, err)

	_, _, err = issuer.Verify(token + "x")
	assert.Error(t, err)

	_, _, err = issuer.Verify("not-a-jwt")
	assert.Error(t, err)
}

func TestJWTIssuer_VerifyRejectsWrongSecret(t *testing.T) {
	issuer := testJWTIssuer(t)

	other, err := NewJWTIssuer(&JWTConfig{Secret: []byte("another-secret-entirely-32bytes!")})
	require.NoError(t, err)

	token, err := other.Issue(&Session{UserID: "user-1"})
	require.NoError(t, err)

	_, _, err = issuer.Verify(token)
	assert.Error(t, err)
}

func TestJWTIssuer_VerifyRejectsExpired(t *testing.T) {
	issuer, err := NewJWTIssuer(&JWTConfig{
		Secret:    []byte("0123456789abcdef0123456789abcdef"),
		ExpiresIn: time.Hour,
	})
	require.NoError(t, err)

	issuer.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, err := issuer.Issue(&Session{UserID: "user-1"})
	require.NoError(t, err)

	issuer.now = time.Now
	_, _, err = issuer.Verify(token)
	assert.Error(t, err)
}
