// Voltbridge - EV Telemetry Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/voltbridge

package auth

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/tomtom215/voltbridge/internal/models"
)

// Method identifies how a subject was authenticated.
type Method string

const (
	MethodJWT    Method = "jwt"
	MethodOIDC   Method = "oidc"
	MethodAPIKey Method = "api_key"
)

var (
	// ErrNoCredentials indicates no credentials were provided.
	ErrNoCredentials = errors.New("no credentials provided")

	// ErrInvalidCredentials indicates credentials were invalid.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrExpiredCredentials indicates credentials have expired.
	ErrExpiredCredentials = errors.New("credentials expired")

	// ErrAuthenticatorUnavailable indicates the auth provider is unreachable.
	ErrAuthenticatorUnavailable = errors.New("authenticator unavailable")
)

// Authenticator extracts and validates one kind of credential.
type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) (*Subject, error)
	Name() string
	// Priority orders authenticators in a MultiAuthenticator. Lower runs first.
	Priority() int
}

// Subject is an authenticated caller. Authenticators fill the identity
// fields; the Resolver fills TenantID, Roles and Tier.
type Subject struct {
	ID         string            `json:"id"`
	TenantID   string            `json:"tenant_id"`
	Email      string            `json:"email,omitempty"`
	Roles      []string          `json:"roles"`
	Tier       models.Tier       `json:"tier"`
	AuthMethod Method            `json:"auth_method"`
	Scopes     []models.KeyScope `json:"scopes,omitempty"`
	KeyID      string            `json:"key_id,omitempty"`
	ExpiresAt  time.Time         `json:"expires_at,omitempty"`
}

func (s *Subject) HasRole(role string) bool {
	return slices.Contains(s.Roles, role)
}

// IsIdentity reports whether the subject holds an identity token rather
// than an API key.
func (s *Subject) IsIdentity() bool {
	return s.AuthMethod == MethodJWT || s.AuthMethod == MethodOIDC
}

// Allows reports whether the subject may use scope. Identity subjects are
// not scope limited.
func (s *Subject) Allows(scope models.KeyScope) bool {
	if s.IsIdentity() {
		return true
	}
	return slices.Contains(s.Scopes, scope)
}

// bearerToken returns the Authorization bearer value, or "".
func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// identityToken returns a bearer or cookie token that is not an API key.
func identityToken(r *http.Request, cookieName string) string {
	if tok := bearerToken(r); tok != "" {
		if IsAPIKey(tok) {
			return ""
		}
		return tok
	}
	if cookieName != "" {
		if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
			return c.Value
		}
	}
	return ""
}
