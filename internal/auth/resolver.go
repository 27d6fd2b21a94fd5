// Voltbridge - EV Telemetry Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/voltbridge

package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/tomtom215/voltbridge/internal/cache"
	"github.com/tomtom215/voltbridge/internal/logging"
	"github.com/tomtom215/voltbridge/internal/models"
	"github.com/tomtom215/voltbridge/internal/store"
)

// ResolverStore is the slice of store.Store the resolver needs.
type ResolverStore interface {
	store.TenantStore
	store.UserStore
}

// Resolver attaches tenant, roles and tier to an authenticated subject.
type Resolver struct {
	store     ResolverStore
	tiers     *cache.TTL[models.Tier]
	provision *rate.Limiter
	now       func() time.Time
	logger    zerolog.Logger
}

// NewResolver caches tiers for tierTTL. provisionPerMinute bounds how many
// new tenants may be created per minute; zero means unlimited.
func NewResolver(s ResolverStore, tierTTL time.Duration, provisionPerMinute int) *Resolver {
	if tierTTL <= 0 {
		tierTTL = 5 * time.Minute
	}
	lim := rate.NewLimiter(rate.Inf, 0)
	if provisionPerMinute > 0 {
		lim = rate.NewLimiter(rate.Limit(float64(provisionPerMinute)/60), provisionPerMinute)
	}
	return &Resolver{
		store:     s,
		tiers:     cache.NewTTL[models.Tier](tierTTL, tierTTL),
		provision: lim,
		now:       time.Now,
		logger:    logging.WithComponent("auth_resolver"),
	}
}

// Resolve fills s in place and returns it.
func (r *Resolver) Resolve(ctx context.Context, s *Subject) (*Subject, error) {
	if s.AuthMethod == MethodAPIKey {
		tier, err := r.Tier(ctx, s.TenantID)
		if err != nil {
			return nil, err
		}
		s.Tier = tier
		return s, nil
	}

	user, err := r.store.GetUser(ctx, s.ID)
	if errors.Is(err, store.ErrNotFound) {
		user, err = r.provisionTenant(ctx, s)
	}
	if err != nil {
		return nil, err
	}

	tier, err := r.Tier(ctx, user.TenantID)
	if err != nil {
		return nil, err
	}
	s.TenantID = user.TenantID
	s.Roles = []string{string(user.Role)}
	s.Tier = tier
	if s.Email == "" {
		s.Email = user.Email
	}
	return s, nil
}

// Tier returns the tenant tier, served from cache when possible.
func (r *Resolver) Tier(ctx context.Context, tenantID string) (models.Tier, error) {
	if tier, ok := r.tiers.Get(tenantID); ok {
		return tier, nil
	}
	tenant, err := r.store.GetTenant(ctx, tenantID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", fmt.Errorf("%w: tenant %s no longer exists", ErrInvalidCredentials, tenantID)
		}
		return "", fmt.Errorf("%w: tenant lookup: %v", ErrAuthenticatorUnavailable, err)
	}
	r.tiers.Set(tenantID, tenant.Tier)
	return tenant.Tier, nil
}

// InvalidateTier drops a cached tier after a tier change.
func (r *Resolver) InvalidateTier(tenantID string) {
	r.tiers.Delete(tenantID)
}

// Close stops the tier cache janitor.
func (r *Resolver) Close() {
	r.tiers.Close()
}

func (r *Resolver) provisionTenant(ctx context.Context, s *Subject) (*models.User, error) {
	if !r.provision.Allow() {
		return nil, fmt.Errorf("%w: tenant provisioning throttled", ErrAuthenticatorUnavailable)
	}

	now := r.now().UTC()
	tenant := &models.Tenant{
		ID:        uuid.New().String(),
		Name:      tenantName(s.Email),
		Tier:      models.TierFree,
		CreatedAt: now,
	}
	user := &models.User{
		ID:        s.ID,
		TenantID:  tenant.ID,
		Email:     s.Email,
		Role:      models.RoleOwner,
		CreatedAt: now,
	}

	err := r.store.CreateTenantWithOwner(ctx, tenant, user)
	if errors.Is(err, store.ErrConflict) {
		// Another request provisioned this user first.
		return r.store.GetUser(ctx, s.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to provision tenant: %w", err)
	}

	r.tiers.Set(tenant.ID, tenant.Tier)
	r.logger.Info().Str("tenant_id", tenant.ID).Str("user_id", user.ID).Msg("Provisioned tenant on first login")
	return user, nil
}

func tenantName(email string) string {
	if local, _, ok := strings.Cut(email, "@"); ok && local != "" {
		return local
	}
	if email != "" {
		return email
	}
	return "tenant"
}
