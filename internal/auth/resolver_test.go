// Voltbridge - EV Telemetry Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/voltbridge

package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/voltbridge/internal/models"
	"github.com/tomtom215/voltbridge/internal/store"
)

func TestResolverProvisionsOnFirstLogin(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mem := store.NewMemory()
	r := NewResolver(mem, time.Minute, 0)
	t.Cleanup(r.Close)

	s, err := r.Resolve(ctx, &Subject{ID: "idp|123", Email: "grace@example.com", AuthMethod: MethodJWT})
	if err != nil {
		t.Fatal(err)
	}
	if s.TenantID == "" || s.Tier != models.TierFree || !s.HasRole(string(models.RoleOwner)) {
		t.Fatalf("subject = %+v", s)
	}
	tenant, err := mem.GetTenant(ctx, s.TenantID)
	if err != nil || tenant.Name != "grace" {
		t.Fatalf("tenant = %+v, %v", tenant, err)
	}

	again, err := r.Resolve(ctx, &Subject{ID: "idp|123", AuthMethod: MethodJWT})
	if err != nil || again.TenantID != s.TenantID {
		t.Fatalf("second login got tenant %q, %v; want %q", again.TenantID, err, s.TenantID)
	}
	if again.Email != "grace@example.com" {
		t.Errorf("email should be filled from the user record, got %q", again.Email)
	}
}

func TestResolverConcurrentFirstLogin(t *testing.T) {
	t.Parallel()
	mem := store.NewMemory()
	r := NewResolver(mem, time.Minute, 0)
	t.Cleanup(r.Close)

	var wg sync.WaitGroup
	tenants := make([]string, 8)
	for i := range tenants {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := r.Resolve(context.Background(), &Subject{ID: "same-user", AuthMethod: MethodOIDC})
			if err != nil {
				t.Error(err)
				return
			}
			tenants[i] = s.TenantID
		}(i)
	}
	wg.Wait()
	for _, id := range tenants[1:] {
		if id != tenants[0] {
			t.Fatalf("concurrent logins produced different tenants: %v", tenants)
		}
	}
}

func TestResolverTierCache(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mem := store.NewMemory()
	r := NewResolver(mem, time.Minute, 0)
	t.Cleanup(r.Close)

	s, _ := r.Resolve(ctx, &Subject{ID: "u1", AuthMethod: MethodJWT})
	if err := mem.UpdateTenantTier(ctx, s.TenantID, models.TierPro); err != nil {
		t.Fatal(err)
	}

	if tier, _ := r.Tier(ctx, s.TenantID); tier != models.TierFree {
		t.Errorf("cached tier = %s, want free before invalidation", tier)
	}
	r.InvalidateTier(s.TenantID)
	if tier, _ := r.Tier(ctx, s.TenantID); tier != models.TierPro {
		t.Errorf("tier after invalidation = %s, want pro", tier)
	}
}

func TestResolverAPIKeySubject(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mem := store.NewMemory()
	r := NewResolver(mem, time.Minute, 0)
	t.Cleanup(r.Close)

	owner, _ := r.Resolve(ctx, &Subject{ID: "u1", AuthMethod: MethodJWT})
	s, err := r.Resolve(ctx, &Subject{ID: "u1", TenantID: owner.TenantID, AuthMethod: MethodAPIKey,
		Roles: []string{string(models.RoleIntegration)}})
	if err != nil {
		t.Fatal(err)
	}
	if s.Tier != models.TierFree || s.HasRole(string(models.RoleOwner)) {
		t.Errorf("api key subject = %+v", s)
	}

	if _, err := r.Resolve(ctx, &Subject{TenantID: "gone", AuthMethod: MethodAPIKey}); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("missing tenant error = %v", err)
	}
}

func TestResolverProvisionThrottle(t *testing.T) {
	t.Parallel()
	r := NewResolver(store.NewMemory(), time.Minute, 1)
	t.Cleanup(r.Close)
	ctx := context.Background()

	if _, err := r.Resolve(ctx, &Subject{ID: "a", AuthMethod: MethodJWT}); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Resolve(ctx, &Subject{ID: "b", AuthMethod: MethodJWT}); !errors.Is(err, ErrAuthenticatorUnavailable) {
		t.Errorf("second signup in the same instant should be throttled, got %v", err)
	}
	if _, err := r.Resolve(ctx, &Subject{ID: "a", AuthMethod: MethodJWT}); err != nil {
		t.Errorf("existing users are not throttled: %v", err)
	}
}

func TestTenantName(t *testing.T) {
	t.Parallel()
	cases := map[string]string{"ada@example.com": "ada", "noat": "noat", "": "tenant", "@example.com": "@example.com"}
	for in, want := range cases {
		if got := tenantName(in); got != want {
			t.Errorf("tenantName(%q) = %q, want %q", in, got, want)
		}
	}
}
