// Voltbridge - EV Telemetry Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/voltbridge

package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tomtom215/voltbridge/internal/models"
)

func seedTenant(t *testing.T, m *Memory, tenantID, userID string) {
	t.Helper()
	err := m.CreateTenantWithOwner(context.Background(),
		&models.Tenant{ID: tenantID, Name: "t", Tier: models.TierFree, CreatedAt: time.Now()},
		&models.User{ID: userID, TenantID: tenantID, Email: userID + "@example.com", Role: models.RoleOwner, CreatedAt: time.Now()},
	)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestMemoryTenantLifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemory()
	seedTenant(t, m, "t1", "u1")

	err := m.CreateTenantWithOwner(ctx, &models.Tenant{ID: "t2"}, &models.User{ID: "u1", TenantID: "t2"})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("second provisioning of u1 should conflict, got %v", err)
	}

	if err := m.SetTenantCustomer(ctx, "t1", "cus_1"); err != nil {
		t.Fatal(err)
	}
	if err := m.UpdateTenantTier(ctx, "t1", models.TierPro); err != nil {
		t.Fatal(err)
	}
	got, err := m.GetTenantByCustomer(ctx, "cus_1")
	if err != nil || got.ID != "t1" || got.Tier != models.TierPro {
		t.Fatalf("GetTenantByCustomer = %+v, %v", got, err)
	}
	if _, err := m.GetTenantByCustomer(ctx, ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("empty customer id must not match, got %v", err)
	}
	if err := m.UpdateTenantTier(ctx, "missing", models.TierPro); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryVehiclesAreTenantScoped(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemory()

	v := &models.Vehicle{ID: "v1", TenantID: "t1", VendorVehicleID: "vin-1", DisplayName: "Car"}
	if err := m.CreateVehicle(ctx, v); err != nil {
		t.Fatal(err)
	}
	if err := m.CreateVehicle(ctx, &models.Vehicle{ID: "v2", TenantID: "t2", VendorVehicleID: "vin-1"}); !errors.Is(err, ErrConflict) {
		t.Fatalf("duplicate vendor id should conflict, got %v", err)
	}
	if _, err := m.GetVehicle(ctx, "t2", "v1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("other tenant must not see v1, got %v", err)
	}
	if got, err := m.GetVehicleByVendorID(ctx, "vin-1"); err != nil || got.ID != "v1" {
		t.Errorf("GetVehicleByVendorID = %+v, %v", got, err)
	}
	if n, _ := m.CountVehicles(ctx, "t1"); n != 1 {
		t.Errorf("CountVehicles = %d, want 1", n)
	}
	if err := m.DeleteVehicle(ctx, "t2", "v1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("cross-tenant delete should fail, got %v", err)
	}
	if err := m.DeleteVehicle(ctx, "t1", "v1"); err != nil {
		t.Fatal(err)
	}
	if _, err := m.GetVehicleByVendorID(ctx, "vin-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("vendor index should be cleared, got %v", err)
	}
}

func TestMemoryAPIKeys(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemory()
	now := time.Now()
	past := now.Add(-time.Minute)

	keys := []*models.APIKey{
		{ID: "k1", TenantID: "t1", Scopes: []models.KeyScope{models.ScopeVehiclesRead}, CreatedAt: now},
		{ID: "k2", TenantID: "t1", ExpiresAt: &past, CreatedAt: now},
		{ID: "k3", TenantID: "t2", CreatedAt: now},
	}
	for _, k := range keys {
		if err := m.CreateAPIKey(ctx, k); err != nil {
			t.Fatal(err)
		}
	}

	if n, _ := m.CountActiveAPIKeys(ctx, "t1", now); n != 1 {
		t.Errorf("active keys = %d, want 1", n)
	}
	if err := m.RecordAPIKeyUse(ctx, "k1", "10.0.0.1", now); err != nil {
		t.Fatal(err)
	}
	got, _ := m.GetAPIKey(ctx, "k1")
	if got.UseCount != 1 || got.LastUsedIP != "10.0.0.1" {
		t.Errorf("usage not recorded: %+v", got)
	}
	got.Scopes[0] = "changed"
	again, _ := m.GetAPIKey(ctx, "k1")
	if again.Scopes[0] != models.ScopeVehiclesRead {
		t.Error("returned key must not alias stored scopes")
	}

	if err := m.RevokeAPIKey(ctx, "t2", "k1", now); !errors.Is(err, ErrNotFound) {
		t.Errorf("cross-tenant revoke should fail, got %v", err)
	}
	if err := m.RevokeAPIKey(ctx, "t1", "k1", now); err != nil {
		t.Fatal(err)
	}
	if n, _ := m.CountActiveAPIKeys(ctx, "t1", now); n != 0 {
		t.Errorf("active keys after revoke = %d, want 0", n)
	}
}

func TestMemoryWebhookEventsAreIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemory()

	first, _ := m.RecordWebhookEvent(ctx, "payments", "evt_1", time.Now())
	second, _ := m.RecordWebhookEvent(ctx, "payments", "evt_1", time.Now())
	other, _ := m.RecordWebhookEvent(ctx, "telemetry", "evt_1", time.Now())

	if !first || second || !other {
		t.Errorf("got first=%v second=%v other=%v, want true false true", first, second, other)
	}

	if err := m.ForgetWebhookEvent(ctx, "payments", "evt_1"); err != nil {
		t.Fatal(err)
	}
	if retried, _ := m.RecordWebhookEvent(ctx, "payments", "evt_1", time.Now()); !retried {
		t.Error("forgotten event should be recorded again")
	}
}

func TestMemorySubscriptionAndPreferences(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemory()

	if _, err := m.GetSubscription(ctx, "t1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := m.UpsertSubscription(ctx, &models.Subscription{TenantID: "t1", Tier: models.TierPro, Status: "active"}); err != nil {
		t.Fatal(err)
	}
	if s, _ := m.GetSubscription(ctx, "t1"); s.Tier != models.TierPro {
		t.Errorf("tier = %q, want pro", s.Tier)
	}

	if err := m.UpsertAlertPreferences(ctx, &models.AlertPreferences{UserID: "u1", LowBatteryThreshold: 15}); err != nil {
		t.Fatal(err)
	}
	if p, _ := m.GetAlertPreferences(ctx, "u1"); p.LowBatteryThreshold != 15 {
		t.Errorf("threshold = %d, want 15", p.LowBatteryThreshold)
	}
}
