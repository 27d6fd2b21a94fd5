// Voltbridge - EV Telemetry Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/voltbridge

package models

import (
	"slices"
	"time"
)

// KeyScope is a permission carried by a static API key.
type KeyScope string

const (
	ScopeVehiclesRead    KeyScope = "vehicles:read"
	ScopeVehiclesCommand KeyScope = "vehicles:command"
	ScopeStateStream     KeyScope = "state:stream"
)

// AllScopes returns every scope an API key may hold.
func AllScopes() []KeyScope {
	return []KeyScope{ScopeVehiclesRead, ScopeVehiclesCommand, ScopeStateStream}
}

// IsValidScope reports whether s is a known scope.
func IsValidScope(s KeyScope) bool {
	return slices.Contains(AllScopes(), s)
}

// APIKey is a static credential for integrations such as home-automation
// hubs. Only a hash of the secret is stored.
type APIKey struct {
	ID          string     `json:"id"`
	TenantID    string     `json:"tenant_id"`
	CreatedBy   string     `json:"created_by"`
	Name        string     `json:"name"`
	TokenPrefix string     `json:"token_prefix"`
	TokenHash   string     `json:"-"`
	Scopes      []KeyScope `json:"scopes"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
	LastUsedIP  string     `json:"last_used_ip,omitempty"`
	UseCount    int        `json:"use_count"`
	CreatedAt   time.Time  `json:"created_at"`
	RevokedAt   *time.Time `json:"revoked_at,omitempty"`
}

func (k *APIKey) IsExpired(now time.Time) bool {
	return k.ExpiresAt != nil && now.After(*k.ExpiresAt)
}

func (k *APIKey) IsRevoked() bool {
	return k.RevokedAt != nil
}

// HasScope reports whether the key carries scope.
func (k *APIKey) HasScope(scope KeyScope) bool {
	return slices.Contains(k.Scopes, scope)
}

// CreateAPIKeyRequest is the body of POST /api/v1/keys.
type CreateAPIKeyRequest struct {
	Name          string     `json:"name" validate:"required,min=1,max=100"`
	Scopes        []KeyScope `json:"scopes" validate:"required,min=1,dive,oneof=vehicles:read vehicles:command state:stream"`
	ExpiresInDays *int       `json:"expires_in_days,omitempty" validate:"omitempty,min=1,max=365"`
}

// CreateAPIKeyResponse carries the plaintext key. It is returned once.
type CreateAPIKeyResponse struct {
	Key       *APIKey `json:"key"`
	Plaintext string  `json:"plaintext"`
}
