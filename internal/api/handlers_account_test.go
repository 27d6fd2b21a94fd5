// Voltbridge - EV Telemetry Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/voltbridge

package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/tomtom215/voltbridge/internal/auth"
	"github.com/tomtom215/voltbridge/internal/httpresp"
	"github.com/tomtom215/voltbridge/internal/models"
)

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	rec := env.do(t, "", http.MethodGet, "/api/v1/health/live", nil)
	expectStatus(t, rec, http.StatusOK)

	rec = env.do(t, "", http.MethodGet, "/api/v1/health/ready", nil)
	expectStatus(t, rec, http.StatusOK)

	env.ready["events"] = func(context.Context) error { return errors.New("bus closed") }

	rec = env.do(t, "", http.MethodGet, "/api/v1/health/ready", nil)
	expectError(t, rec, http.StatusServiceUnavailable, httpresp.CodeUnavailable)

	rec = env.do(t, "", http.MethodGet, "/api/v1/health", nil)
	expectStatus(t, rec, http.StatusOK)
	var health HealthStatus
	decodeEnvelope(t, rec, &health)
	if health.Status != "degraded" || health.Checks["store"] != "ok" || health.Checks["events"] != "bus closed" {
		t.Errorf("health = %+v", health)
	}
	if health.Version != "test" {
		t.Errorf("version = %q", health.Version)
	}
}

func TestMetricsAndFallbackRoutes(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	expectStatus(t, env.do(t, "", http.MethodGet, "/api/v1/health/live", nil), http.StatusOK)
	rec := env.do(t, "", http.MethodGet, "/metrics", nil)
	expectStatus(t, rec, http.StatusOK)
	if !strings.Contains(rec.Body.String(), "api_requests_total") {
		t.Error("metrics output lacks api_requests_total")
	}

	rec = env.do(t, "", http.MethodGet, "/api/v1/nope", nil)
	expectError(t, rec, http.StatusNotFound, httpresp.CodeNotFound)

	rec = env.do(t, "", http.MethodGet, "/api/v1/health/live", nil)
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers missing")
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("request ID header missing")
	}
}

func TestAPIKeyLifecycle(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	req := models.CreateAPIKeyRequest{Name: "dashboard", Scopes: []models.KeyScope{models.ScopeVehiclesRead}}
	rec := env.do(t, ownerA, http.MethodPost, "/api/v1/keys", req)
	expectStatus(t, rec, http.StatusCreated)
	var created models.CreateAPIKeyResponse
	decodeEnvelope(t, rec, &created)
	if !strings.HasPrefix(created.Plaintext, auth.APIKeyPrefix) || created.Key == nil {
		t.Fatalf("created = %+v", created)
	}
	if strings.Contains(rec.Body.String(), "token_hash") {
		t.Error("response leaks the key hash")
	}

	// The free tier allows one active key.
	rec = env.do(t, ownerA, http.MethodPost, "/api/v1/keys", req)
	expectError(t, rec, http.StatusConflict, httpresp.CodeConflict)

	rec = env.do(t, ownerA, http.MethodGet, "/api/v1/keys", nil)
	expectStatus(t, rec, http.StatusOK)
	var keys []models.APIKey
	decodeEnvelope(t, rec, &keys)
	if len(keys) != 1 || keys[0].ID != created.Key.ID {
		t.Fatalf("keys = %+v", keys)
	}

	rec = env.do(t, ownerB, http.MethodDelete, "/api/v1/keys/"+created.Key.ID, nil)
	expectError(t, rec, http.StatusNotFound, httpresp.CodeNotFound)

	rec = env.do(t, ownerA, http.MethodDelete, "/api/v1/keys/"+created.Key.ID, nil)
	expectStatus(t, rec, http.StatusNoContent)

	// Revoked keys free the quota slot.
	rec = env.do(t, ownerA, http.MethodPost, "/api/v1/keys", req)
	expectStatus(t, rec, http.StatusCreated)
}

func TestAPIKeyRoutesRejectKeysAndMembers(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	for _, as := range []string{"key-command", memberA} {
		rec := env.do(t, as, http.MethodGet, "/api/v1/keys", nil)
		expectError(t, rec, http.StatusForbidden, httpresp.CodeForbidden)
	}
}

func TestSubscription(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	rec := env.do(t, ownerA, http.MethodGet, "/api/v1/billing/subscription", nil)
	expectStatus(t, rec, http.StatusOK)
	var sub models.Subscription
	decodeEnvelope(t, rec, &sub)
	if sub.Tier != models.TierFree || sub.Status != "none" {
		t.Errorf("subscription = %+v", sub)
	}

	err := env.store.UpsertSubscription(context.Background(), &models.Subscription{
		TenantID: tenantA, Tier: models.TierPro, Status: models.SubscriptionActive, PriceID: "price_pro",
	})
	if err != nil {
		t.Fatalf("UpsertSubscription: %v", err)
	}
	rec = env.do(t, ownerA, http.MethodGet, "/api/v1/billing/subscription", nil)
	decodeEnvelope(t, rec, &sub)
	if sub.Tier != models.TierPro || sub.Status != models.SubscriptionActive {
		t.Errorf("subscription = %+v", sub)
	}
}

func TestCheckout(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	rec := env.do(t, ownerA, http.MethodPost, "/api/v1/billing/checkout", models.CheckoutRequest{Tier: models.TierPro})
	expectStatus(t, rec, http.StatusCreated)
	var resp models.CheckoutResponse
	decodeEnvelope(t, rec, &resp)
	if resp.URL != "https://pay.example/cs_1" {
		t.Errorf("checkout = %+v", resp)
	}
	got := env.checkout.got
	if got.TenantID != tenantA || got.PriceID != "price_pro" || got.CustomerEmail != ownerA+"@example.com" {
		t.Errorf("checkout params = %+v", got)
	}

	rec = env.do(t, ownerA, http.MethodPost, "/api/v1/billing/checkout", models.CheckoutRequest{Tier: models.TierFree})
	expectError(t, rec, http.StatusUnprocessableEntity, httpresp.CodeValidation)

	env.checkout.err = errors.New("card declined")
	rec = env.do(t, ownerA, http.MethodPost, "/api/v1/billing/checkout", models.CheckoutRequest{Tier: models.TierFleet})
	expectError(t, rec, http.StatusBadGateway, httpresp.CodeExternal)
}

func TestAlertPreferences(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	rec := env.do(t, ownerA, http.MethodGet, "/api/v1/alerts/preferences", nil)
	expectStatus(t, rec, http.StatusOK)
	var prefs AlertPreferencesResponse
	decodeEnvelope(t, rec, &prefs)
	if !prefs.EmailEnabled || prefs.SMSEnabled || prefs.LowBatteryThreshold != 20 {
		t.Errorf("defaults = %+v", prefs.AlertPreferences)
	}

	update := models.UpdateAlertPreferencesRequest{SMSEnabled: true, LowBatteryThreshold: 15}
	rec = env.do(t, ownerA, http.MethodPut, "/api/v1/alerts/preferences", update)
	expectError(t, rec, http.StatusUnprocessableEntity, httpresp.CodeValidation)

	bad := "555-1234"
	update.Phone = &bad
	rec = env.do(t, ownerA, http.MethodPut, "/api/v1/alerts/preferences", update)
	expectError(t, rec, http.StatusUnprocessableEntity, httpresp.CodeValidation)

	phone := "+14155550100"
	update.Phone = &phone
	rec = env.do(t, ownerA, http.MethodPut, "/api/v1/alerts/preferences", update)
	expectStatus(t, rec, http.StatusOK)

	user, err := env.store.GetUser(context.Background(), ownerA)
	if err != nil || user.Phone != phone {
		t.Fatalf("user phone = %v, %v", user, err)
	}
	saved, err := env.store.GetAlertPreferences(context.Background(), ownerA)
	if err != nil || !saved.SMSEnabled || saved.LowBatteryThreshold != 15 {
		t.Fatalf("saved = %+v, %v", saved, err)
	}

	rec = env.do(t, "key-command", http.MethodGet, "/api/v1/alerts/preferences", nil)
	expectError(t, rec, http.StatusForbidden, httpresp.CodeForbidden)
}
