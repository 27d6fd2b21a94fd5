// Voltbridge - EV Telemetry Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/voltbridge

package api

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/voltbridge/internal/httpresp"
	"github.com/tomtom215/voltbridge/internal/models"
	"github.com/tomtom215/voltbridge/internal/telemetry"
	"github.com/tomtom215/voltbridge/internal/webhook"
)

func telemetryEvent(t *testing.T, id, vendorID, eventType string, at time.Time, battery int) []byte {
	t.Helper()
	body, err := json.Marshal(telemetry.WebhookEvent{
		EventID:   id,
		EventType: eventType,
		VehicleID: vendorID,
		Timestamp: at,
		Data:      telemetry.StateData{BatteryLevel: battery, ChargingState: models.ChargingStateCharging, PluggedIn: true},
	})
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return body
}

func (e *testEnv) postWebhook(path, header, signature string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set(header, signature)
	}
	rec := httptest.NewRecorder()
	e.server.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) postTelemetry(body []byte) *httptest.ResponseRecorder {
	return e.postWebhook("/api/v1/webhooks/telemetry", HeaderTelemetrySignature, webhook.SignHMAC(body, testTelemetrySecret), body)
}

func webhookStatus(t *testing.T, rec *httptest.ResponseRecorder) WebhookResponse {
	t.Helper()
	expectStatus(t, rec, http.StatusOK)
	var resp WebhookResponse
	decodeEnvelope(t, rec, &resp)
	return resp
}

func TestTelemetryWebhookSignature(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	body := telemetryEvent(t, "evt-1", "vin-a1", telemetry.EventVehicleState, time.Now(), 50)

	tests := []struct {
		name      string
		signature string
		code      string
	}{
		{"missing", "", httpresp.CodeMissingSignature},
		{"wrong secret", webhook.SignHMAC(body, "other"), httpresp.CodeInvalidSignature},
		{"not hex", "sha256=zz", httpresp.CodeInvalidSignature},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.postWebhook("/api/v1/webhooks/telemetry", HeaderTelemetrySignature, tt.signature, body)
			expectError(t, rec, http.StatusUnauthorized, tt.code)
		})
	}

	// Prefixed upper-case hex is accepted.
	env.addVehicle(t, tenantA, "a1", "vin-a1")
	sig := "sha256=" + strings.ToUpper(webhook.SignHMAC(body, testTelemetrySecret))
	rec := env.postWebhook("/api/v1/webhooks/telemetry", HeaderTelemetrySignature, sig, body)
	if got := webhookStatus(t, rec); got.Status != OutcomeAccepted {
		t.Errorf("status = %q, want accepted", got.Status)
	}
}

func TestTelemetryWebhookMergeOutcomes(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.addVehicle(t, tenantA, "a1", "vin-a1")
	now := time.Now().UTC().Truncate(time.Second)

	got := webhookStatus(t, env.postTelemetry(telemetryEvent(t, "evt-1", "vin-a1", telemetry.EventVehicleState, now, 70)))
	if got.Status != OutcomeAccepted || got.VehicleID != "a1" {
		t.Fatalf("first = %+v", got)
	}

	// Same event ID again is acknowledged without processing.
	got = webhookStatus(t, env.postTelemetry(telemetryEvent(t, "evt-1", "vin-a1", telemetry.EventVehicleState, now.Add(time.Minute), 10)))
	if got.Status != OutcomeDuplicate {
		t.Errorf("replay = %q, want duplicate", got.Status)
	}

	// Older and equal observations do not replace the cached state.
	for i, at := range []time.Time{now.Add(-time.Minute), now} {
		body := telemetryEvent(t, fmt.Sprintf("evt-old-%d", i), "vin-a1", telemetry.EventVehicleState, at, 5)
		if got = webhookStatus(t, env.postTelemetry(body)); got.Status != OutcomeStale {
			t.Errorf("observation at %v = %q, want stale", at, got.Status)
		}
	}

	cached, ok := env.handler.deps.Reconciler.Cache().Get("a1")
	if !ok || cached.BatteryLevel != 70 || cached.Source != models.SourceWebhook {
		t.Fatalf("cached = %+v", cached)
	}

	got = webhookStatus(t, env.postTelemetry(telemetryEvent(t, "evt-2", "vin-a1", telemetry.EventChargingComplete, now.Add(time.Second), 100)))
	if got.Status != OutcomeAccepted {
		t.Fatalf("charging complete = %q", got.Status)
	}
	cached, _ = env.handler.deps.Reconciler.Cache().Get("a1")
	if cached.ChargingState != models.ChargingStateComplete {
		t.Errorf("charging state = %q, want complete", cached.ChargingState)
	}
}

func TestTelemetryWebhookUnknownVehicle(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	got := webhookStatus(t, env.postTelemetry(telemetryEvent(t, "evt-x", "vin-nobody", telemetry.EventVehicleState, time.Now(), 50)))
	if got.Status != OutcomeIgnored {
		t.Errorf("status = %q, want ignored", got.Status)
	}
	if env.handler.deps.Reconciler.Cache().Len() != 0 {
		t.Error("unknown vehicle state was cached")
	}
}

func TestTelemetryWebhookValidation(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	body := []byte(`{"event_id":"e","event_type":"vehicle.exploded","vehicle_id":"v","timestamp":"2026-03-01T12:00:00Z"}`)
	expectError(t, env.postTelemetry(body), http.StatusUnprocessableEntity, httpresp.CodeValidation)

	body = []byte(`{not json`)
	expectError(t, env.postTelemetry(body), http.StatusBadRequest, httpresp.CodeBadRequest)
}

func paymentEvent(id, typ string) []byte {
	return []byte(fmt.Sprintf(`{"id":%q,"type":%q,"created":%d,"data":{"object":{}}}`, id, typ, time.Now().Unix()))
}

func (e *testEnv) postPayment(body []byte, signedAt time.Time) *httptest.ResponseRecorder {
	return e.postWebhook("/api/v1/webhooks/payments", HeaderPaymentSignature, webhook.SignTimestamped(body, testPaymentsSecret, signedAt), body)
}

func TestPaymentsWebhook(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	body := paymentEvent("evt_1", "customer.subscription.updated")

	if got := webhookStatus(t, env.postPayment(body, time.Now())); got.Status != OutcomeAccepted {
		t.Fatalf("first delivery = %q", got.Status)
	}
	if got := webhookStatus(t, env.postPayment(body, time.Now())); got.Status != OutcomeDuplicate {
		t.Errorf("redelivery = %q, want duplicate", got.Status)
	}
	if env.processor.count() != 1 {
		t.Errorf("processed %d times, want 1", env.processor.count())
	}
}

func TestPaymentsWebhookRejections(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	body := paymentEvent("evt_1", "invoice.payment_failed")

	rec := env.postPayment(body, time.Now().Add(-time.Hour))
	expectError(t, rec, http.StatusUnauthorized, httpresp.CodeInvalidSignature)

	rec = env.postWebhook("/api/v1/webhooks/payments", HeaderPaymentSignature, "", body)
	expectError(t, rec, http.StatusUnauthorized, httpresp.CodeMissingSignature)

	rec = env.postWebhook("/api/v1/webhooks/payments", HeaderPaymentSignature, webhook.SignTimestamped(body, "wrong", time.Now()), body)
	expectError(t, rec, http.StatusUnauthorized, httpresp.CodeInvalidSignature)

	bad := []byte(`{"type":"invoice.paid"}`)
	expectError(t, env.postPayment(bad, time.Now()), http.StatusBadRequest, httpresp.CodeBadRequest)

	if env.processor.count() != 0 {
		t.Error("rejected deliveries reached the processor")
	}
}

func TestPaymentsWebhookFailureAllowsRetry(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.processor.failN = 1
	body := paymentEvent("evt_retry", "checkout.session.completed")

	expectError(t, env.postPayment(body, time.Now()), http.StatusInternalServerError, httpresp.CodeInternal)

	if got := webhookStatus(t, env.postPayment(body, time.Now())); got.Status != OutcomeAccepted {
		t.Errorf("retry = %q, want accepted", got.Status)
	}
	if env.processor.count() != 1 {
		t.Errorf("processed %d times, want 1", env.processor.count())
	}
}

func TestWebhooksNotConfigured(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.handler.cfg.TelemetryWebhookSecret = ""
	env.handler.deps.Payments = nil

	body := telemetryEvent(t, "evt-1", "vin", telemetry.EventVehicleState, time.Now(), 1)
	expectError(t, env.postTelemetry(body), http.StatusServiceUnavailable, httpresp.CodeUnavailable)
	expectError(t, env.postPayment(paymentEvent("e", "x"), time.Now()), http.StatusServiceUnavailable, httpresp.CodeUnavailable)
}
