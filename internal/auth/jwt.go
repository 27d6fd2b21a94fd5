// Voltbridge - EV Telemetry Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/voltbridge

package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tomtom215/voltbridge/internal/config"
)

// AccessTokenCookie is the cookie the dashboard stores its token in.
const AccessTokenCookie = "access_token"

const minSecretLength = 32

// Claims is the access token payload issued by the identity provider.
type Claims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// JWTAuthenticator verifies HS256 access tokens.
type JWTAuthenticator struct {
	secret   []byte
	audience string
	issuer   string
	parser   *jwt.Parser
}

func NewJWTAuthenticator(cfg *config.SecurityConfig) (*JWTAuthenticator, error) {
	if len(cfg.JWTSecret) < minSecretLength {
		return nil, fmt.Errorf("JWT_SECRET must be at least %d characters", minSecretLength)
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(5 * time.Second),
	}
	if cfg.JWTAudience != "" {
		opts = append(opts, jwt.WithAudience(cfg.JWTAudience))
	}
	if cfg.JWTIssuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.JWTIssuer))
	}
	return &JWTAuthenticator{
		secret:   []byte(cfg.JWTSecret),
		audience: cfg.JWTAudience,
		issuer:   cfg.JWTIssuer,
		parser:   jwt.NewParser(opts...),
	}, nil
}

func (a *JWTAuthenticator) Authenticate(_ context.Context, r *http.Request) (*Subject, error) {
	tokenStr := identityToken(r, AccessTokenCookie)
	if tokenStr == "" {
		return nil, ErrNoCredentials
	}

	claims, err := a.Validate(tokenStr)
	if err != nil {
		return nil, err
	}

	s := &Subject{
		ID:         claims.Subject,
		Email:      claims.Email,
		AuthMethod: MethodJWT,
	}
	if claims.ExpiresAt != nil {
		s.ExpiresAt = claims.ExpiresAt.Time
	}
	return s, nil
}

// Validate parses and verifies tokenStr.
func (a *JWTAuthenticator) Validate(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	_, err := a.parser.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredCredentials
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing sub claim", ErrInvalidCredentials)
	}
	return claims, nil
}

// Sign issues a token the authenticator accepts. Local development and
// tests use it in place of the identity provider.
func (a *JWTAuthenticator) Sign(subject, email string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		Email: email,
		Role:  "authenticated",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if a.audience != "" {
		claims.Audience = jwt.ClaimStrings{a.audience}
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func (a *JWTAuthenticator) Name() string { return string(MethodJWT) }

func (a *JWTAuthenticator) Priority() int { return 20 }

var _ Authenticator = (*JWTAuthenticator)(nil)
