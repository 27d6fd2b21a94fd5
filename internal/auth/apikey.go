// Voltbridge - EV Telemetry Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/voltbridge

package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/tomtom215/voltbridge/internal/logging"
	"github.com/tomtom215/voltbridge/internal/models"
	"github.com/tomtom215/voltbridge/internal/store"
)

const (
	// APIKeyPrefix starts every plaintext key.
	APIKeyPrefix = "vb_key_"

	// APIKeyHeader is the dedicated header for API keys.
	APIKeyHeader = "X-API-Key"

	apiKeySecretLength = 32
	// prefixDisplayLength characters after APIKeyPrefix are kept for display.
	prefixDisplayLength = 8
	defaultBcryptCost   = 12
)

// IsAPIKey reports whether token carries the API key prefix.
func IsAPIKey(token string) bool {
	return strings.HasPrefix(token, APIKeyPrefix)
}

// APIKeyManager issues and validates API keys.
type APIKeyManager struct {
	store  store.APIKeyStore
	cost   int
	now    func() time.Time
	logger zerolog.Logger
}

// APIKeyOption configures an APIKeyManager.
type APIKeyOption func(*APIKeyManager)

// WithBcryptCost overrides the hashing cost. Tests use bcrypt.MinCost.
func WithBcryptCost(cost int) APIKeyOption {
	return func(m *APIKeyManager) { m.cost = cost }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) APIKeyOption {
	return func(m *APIKeyManager) { m.now = now }
}

func NewAPIKeyManager(s store.APIKeyStore, opts ...APIKeyOption) *APIKeyManager {
	m := &APIKeyManager{
		store:  s,
		cost:   defaultBcryptCost,
		now:    time.Now,
		logger: logging.WithComponent("apikey_manager"),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Create issues a key. The plaintext is returned once and never stored.
func (m *APIKeyManager) Create(ctx context.Context, tenantID, createdBy string, req *models.CreateAPIKeyRequest) (*models.APIKey, string, error) {
	if len(req.Scopes) == 0 {
		return nil, "", fmt.Errorf("at least one scope is required")
	}
	for _, scope := range req.Scopes {
		if !models.IsValidScope(scope) {
			return nil, "", fmt.Errorf("invalid scope: %s", scope)
		}
	}

	id := uuid.New().String()
	secret := make([]byte, apiKeySecretLength)
	if _, err := rand.Read(secret); err != nil {
		return nil, "", fmt.Errorf("failed to generate key secret: %w", err)
	}
	plaintext := APIKeyPrefix +
		base64.RawURLEncoding.EncodeToString([]byte(id)) + "_" +
		base64.RawURLEncoding.EncodeToString(secret)

	hash, err := m.hash(plaintext)
	if err != nil {
		return nil, "", err
	}

	now := m.now().UTC()
	key := &models.APIKey{
		ID:          id,
		TenantID:    tenantID,
		CreatedBy:   createdBy,
		Name:        req.Name,
		TokenPrefix: plaintext[:len(APIKeyPrefix)+prefixDisplayLength],
		TokenHash:   hash,
		Scopes:      append([]models.KeyScope(nil), req.Scopes...),
		CreatedAt:   now,
	}
	if req.ExpiresInDays != nil && *req.ExpiresInDays > 0 {
		exp := now.Add(time.Duration(*req.ExpiresInDays) * 24 * time.Hour)
		key.ExpiresAt = &exp
	}

	if err := m.store.CreateAPIKey(ctx, key); err != nil {
		return nil, "", fmt.Errorf("failed to store api key: %w", err)
	}

	m.logger.Info().
		Str("key_id", id).
		Str("tenant_id", tenantID).
		Int("scopes", len(key.Scopes)).
		Msg("API key created")
	return key, plaintext, nil
}

// Validate resolves a plaintext key and records its use.
func (m *APIKeyManager) Validate(ctx context.Context, plaintext, clientIP string) (*models.APIKey, error) {
	id, ok := parseKeyID(plaintext)
	if !ok {
		return nil, fmt.Errorf("%w: malformed api key", ErrInvalidCredentials)
	}

	key, err := m.store.GetAPIKey(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: unknown api key", ErrInvalidCredentials)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: key lookup: %v", ErrAuthenticatorUnavailable, err)
	}

	if !verifyHash(plaintext, key.TokenHash) {
		return nil, fmt.Errorf("%w: api key mismatch", ErrInvalidCredentials)
	}
	if key.IsRevoked() {
		return nil, fmt.Errorf("%w: api key revoked", ErrInvalidCredentials)
	}
	now := m.now()
	if key.IsExpired(now) {
		return nil, ErrExpiredCredentials
	}

	if err := m.store.RecordAPIKeyUse(ctx, key.ID, clientIP, now); err != nil {
		m.logger.Warn().Err(err).Str("key_id", key.ID).Msg("Failed to record api key use")
	}
	return key, nil
}

func (m *APIKeyManager) List(ctx context.Context, tenantID string) ([]models.APIKey, error) {
	keys, err := m.store.ListAPIKeys(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list api keys: %w", err)
	}
	return keys, nil
}

// Revoke marks a key revoked. store.ErrNotFound is returned for keys of
// other tenants and for keys that are already revoked.
func (m *APIKeyManager) Revoke(ctx context.Context, tenantID, id string) error {
	if err := m.store.RevokeAPIKey(ctx, tenantID, id, m.now().UTC()); err != nil {
		return err
	}
	m.logger.Info().Str("key_id", id).Str("tenant_id", tenantID).Msg("API key revoked")
	return nil
}

func (m *APIKeyManager) hash(plaintext string) (string, error) {
	sum := sha256.Sum256([]byte(plaintext))
	h, err := bcrypt.GenerateFromPassword(sum[:], m.cost)
	if err != nil {
		return "", fmt.Errorf("bcrypt failed: %w", err)
	}
	return string(h), nil
}

func verifyHash(plaintext, stored string) bool {
	sum := sha256.Sum256([]byte(plaintext))
	return bcrypt.CompareHashAndPassword([]byte(stored), sum[:]) == nil
}

func parseKeyID(plaintext string) (string, bool) {
	if !IsAPIKey(plaintext) {
		return "", false
	}
	encodedID, secret, ok := strings.Cut(strings.TrimPrefix(plaintext, APIKeyPrefix), "_")
	if !ok || encodedID == "" || secret == "" {
		return "", false
	}
	raw, err := base64.RawURLEncoding.DecodeString(encodedID)
	if err != nil {
		return "", false
	}
	if _, err := uuid.Parse(string(raw)); err != nil {
		return "", false
	}
	return string(raw), true
}

// APIKeyAuthenticator reads keys from X-API-Key or a prefixed bearer.
type APIKeyAuthenticator struct {
	manager *APIKeyManager
}

func NewAPIKeyAuthenticator(m *APIKeyManager) *APIKeyAuthenticator {
	return &APIKeyAuthenticator{manager: m}
}

func (a *APIKeyAuthenticator) Authenticate(ctx context.Context, r *http.Request) (*Subject, error) {
	token := strings.TrimSpace(r.Header.Get(APIKeyHeader))
	if token == "" {
		if b := bearerToken(r); IsAPIKey(b) {
			token = b
		}
	}
	if token == "" {
		return nil, ErrNoCredentials
	}

	key, err := a.manager.Validate(ctx, token, remoteIP(r))
	if err != nil {
		return nil, err
	}

	s := &Subject{
		ID:         key.CreatedBy,
		TenantID:   key.TenantID,
		Roles:      []string{string(models.RoleIntegration)},
		AuthMethod: MethodAPIKey,
		Scopes:     key.Scopes,
		KeyID:      key.ID,
	}
	if key.ExpiresAt != nil {
		s.ExpiresAt = *key.ExpiresAt
	}
	return s, nil
}

func (a *APIKeyAuthenticator) Name() string { return string(MethodAPIKey) }

func (a *APIKeyAuthenticator) Priority() int { return 5 }

var _ Authenticator = (*APIKeyAuthenticator)(nil)

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
