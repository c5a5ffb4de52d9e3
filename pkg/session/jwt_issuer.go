// Copyright (c) 2025 The passgate authors
//
// This file is part of passgate.
//
// passgate is licensed under the GNU Affero General Public License v3.0.
// See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html

package session

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTIssuer mints short-lived bearer tokens for API clients that cannot
// carry the session cookie. The tokens are stateless; revoking the session
// does not invalidate an already-issued bearer token, so their lifetime is
// kept short.
type JWTIssuer struct {
	secret    []byte
	issuer    string
	expiresIn time.Duration
	now       func() time.Time
}

// JWTConfig contains configuration for the JWT issuer.
type JWTConfig struct {
	// Secret is the HMAC signing secret (required).
	Secret []byte

	// Issuer is the iss claim. Default: "passgate".
	Issuer string

	// ExpiresIn is how long tokens are valid. Default: 1 hour.
	ExpiresIn time.Duration
}

// NewJWTIssuer creates a JWT issuer with the given configuration.
func NewJWTIssuer(config *JWTConfig) (*JWTIssuer, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if len(config.Secret) == 0 {
		return nil, fmt.Errorf("signing secret is required")
	}

	issuer := config.Issuer
	if issuer == "" {
		issuer = "passgate"
	}
	expiresIn := config.ExpiresIn
	if expiresIn == 0 {
		expiresIn = time.Hour
	}

	return &JWTIssuer{
		secret:    config.Secret,
		issuer:    issuer,
		expiresIn: expiresIn,
		now:       time.Now,
	}, nil
}

// Issue creates a signed token for the session's user.
func (j *JWTIssuer) Issue(sess *Session) (string, error) {
	now := j.now()

	claims := jwt.MapClaims{
		"iss":    j.issuer,
		"sub":    sess.UserID,
		"handle": sess.Handle,
		"iat":    now.Unix(),
		"nbf":    now.Unix(),
		"exp":    now.Add(j.expiresIn).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(j.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a token, returning the subject user ID and
// handle claims.
func (j *JWTIssuer) Verify(tokenString string) (userID, handle string, err error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return j.secret, nil
	}, jwt.WithIssuer(j.issuer), jwt.WithExpirationRequired())
	if err != nil {
		return "", "", fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", "", fmt.Errorf("invalid token claims")
	}

	sub, _ := claims["sub"].(string)
	h, _ := claims["handle"].(string)
	if sub == "" {
		return "", "", fmt.Errorf("missing subject claim")
	}
	return sub, h, nil
}
