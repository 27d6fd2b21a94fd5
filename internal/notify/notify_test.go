// Voltbridge - EV Telemetry Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/voltbridge

package notify

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tomtom215/voltbridge/internal/config"
	"github.com/tomtom215/voltbridge/internal/events"
	"github.com/tomtom215/voltbridge/internal/metrics"
	"github.com/tomtom215/voltbridge/internal/models"
	"github.com/tomtom215/voltbridge/internal/store"
)

func TestSMSNotifierSend(t *testing.T) {
	t.Parallel()

	var form url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/2010-04-01/Accounts/AC123/Messages.json" {
			http.NotFound(w, r)
			return
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "AC123" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"code":20003,"message":"Authenticate"}`))
			return
		}
		body, _ := io.ReadAll(r.Body)
		form, _ = url.ParseQuery(string(body))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"SM1","status":"queued"}`))
	}))
	defer srv.Close()

	n := NewSMSNotifier(config.TwilioConfig{BaseURL: srv.URL, AccountSID: "AC123", AuthToken: "secret", FromNumber: "+15550000000"}, srv.Client())
	if err := n.Send(context.Background(), Notification{To: "+15551234567", Subject: "Model 3 battery low", Body: "at 15%"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if form.Get("To") != "+15551234567" || form.Get("From") != "+15550000000" || form.Get("Body") != "Model 3 battery low: at 15%" {
		t.Errorf("form = %v", form)
	}

	bad := NewSMSNotifier(config.TwilioConfig{BaseURL: srv.URL, AccountSID: "AC123", AuthToken: "wrong"}, srv.Client())
	err := bad.Send(context.Background(), Notification{To: "+15551234567", Body: "x"})
	var de *DeliveryError
	if !errors.As(err, &de) || de.Code != ErrorCodeAuthFailed || de.Transient || de.Message != "Authenticate" {
		t.Errorf("err = %#v", err)
	}

	if err := n.Send(context.Background(), Notification{Body: "x"}); !errors.As(err, &de) || de.Code != ErrorCodeInvalidRecipient {
		t.Errorf("empty recipient err = %v", err)
	}
}

func TestEmailNotifierSend(t *testing.T) {
	t.Parallel()

	var got brevoEmail
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v3/smtp/email" || r.Header.Get("api-key") != "xkey" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if strings.HasSuffix(got.To[0].Email, "@fail.example") {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte(`{"code":"server_error","message":"upstream"}`))
			return
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"messageId":"<1@brevo>"}`))
	}))
	defer srv.Close()

	e := NewEmailNotifier(config.BrevoConfig{BaseURL: srv.URL, APIKey: "xkey", SenderEmail: "alerts@voltbridge.example", SenderName: "Voltbridge"}, srv.Client())
	if err := e.SendEmail(context.Background(), "ada@example.com", "Hello", "Body text"); err != nil {
		t.Fatalf("SendEmail: %v", err)
	}
	if got.Sender.Email != "alerts@voltbridge.example" || got.To[0].Email != "ada@example.com" || got.Subject != "Hello" || got.TextContent != "Body text" {
		t.Errorf("payload = %+v", got)
	}

	err := e.Send(context.Background(), Notification{To: "x@fail.example", Subject: "s", Body: "b"})
	var de *DeliveryError
	if !errors.As(err, &de) || de.Code != ErrorCodeServerError || !de.Transient || de.StatusCode != http.StatusBadGateway {
		t.Errorf("err = %#v", err)
	}
	if err := e.Send(context.Background(), Notification{To: "not-an-address"}); !errors.As(err, &de) || de.Code != ErrorCodeInvalidRecipient {
		t.Errorf("invalid address err = %v", err)
	}
}

func TestClassifyStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status    int
		code      string
		transient bool
	}{
		{http.StatusUnauthorized, ErrorCodeAuthFailed, false},
		{http.StatusForbidden, ErrorCodeAuthFailed, false},
		{http.StatusTooManyRequests, ErrorCodeRateLimited, true},
		{http.StatusServiceUnavailable, ErrorCodeServerError, true},
		{http.StatusBadRequest, ErrorCodeInvalidRecipient, false},
		{http.StatusFound, ErrorCodeUnknown, false},
	}
	for _, tt := range tests {
		code, transient := classifyStatus(tt.status)
		if code != tt.code || transient != tt.transient {
			t.Errorf("classifyStatus(%d) = %s,%v want %s,%v", tt.status, code, transient, tt.code, tt.transient)
		}
	}
	if !breakerAccepts(&DeliveryError{Transient: false}) || breakerAccepts(&DeliveryError{Transient: true}) || breakerAccepts(errors.New("x")) {
		t.Error("breakerAccepts should only pass permanent delivery errors")
	}
}

type fakeNotifier struct {
	channel string
	mu      sync.Mutex
	sent    []Notification
	err     error
}

func (f *fakeNotifier) Channel() string { return f.channel }

func (f *fakeNotifier) Send(_ context.Context, n Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, n)
	return f.err
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func seed(t *testing.T, prefs *models.AlertPreferences) *store.Memory {
	t.Helper()
	ctx := context.Background()
	s := store.NewMemory()
	err := s.CreateTenantWithOwner(ctx,
		&models.Tenant{ID: "tenant-1", Name: "ada", Tier: models.TierFree},
		&models.User{ID: "user-1", TenantID: "tenant-1", Email: "ada@example.com", Phone: "+15551234567", Role: models.RoleOwner})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.CreateVehicle(ctx, &models.Vehicle{ID: "veh-1", TenantID: "tenant-1", VendorVehicleID: "v-1", DisplayName: "Model 3"}); err != nil {
		t.Fatal(err)
	}
	if prefs != nil {
		if err := s.UpsertAlertPreferences(ctx, prefs); err != nil {
			t.Fatal(err)
		}
	}
	return s
}

func TestDispatcherChannels(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		prefs     *models.AlertPreferences
		wantSMS   int
		wantEmail int
	}{
		{"defaults send email only", nil, 0, 1},
		{"both enabled", &models.AlertPreferences{UserID: "user-1", SMSEnabled: true, EmailEnabled: true}, 1, 1},
		{"sms only", &models.AlertPreferences{UserID: "user-1", SMSEnabled: true}, 1, 0},
		{"all disabled", &models.AlertPreferences{UserID: "user-1"}, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := seed(t, tt.prefs)
			sms := &fakeNotifier{channel: ChannelSMS}
			email := &fakeNotifier{channel: ChannelEmail}
			d := NewDispatcher(s, 20, sms, email)

			recipients, err := d.Recipients(context.Background(), "tenant-1")
			if err != nil || len(recipients) != 1 {
				t.Fatalf("Recipients = %v, %v", recipients, err)
			}
			if err := d.Deliver(context.Background(), recipients[0], "s", "b"); err != nil {
				t.Fatal(err)
			}
			if sms.count() != tt.wantSMS || email.count() != tt.wantEmail {
				t.Errorf("sms=%d email=%d, want %d %d", sms.count(), email.count(), tt.wantSMS, tt.wantEmail)
			}
		})
	}
}

func TestDispatcherSkipsUnconfiguredAndJoinsErrors(t *testing.T) {
	t.Parallel()

	s := seed(t, &models.AlertPreferences{UserID: "user-1", SMSEnabled: true, EmailEnabled: true})
	email := &fakeNotifier{channel: ChannelEmail, err: errors.New("boom")}
	d := NewDispatcher(s, 20, email, nil)
	if got := d.Channels(); len(got) != 1 || got[0] != ChannelEmail {
		t.Errorf("Channels = %v", got)
	}

	recipients, _ := d.Recipients(context.Background(), "tenant-1")
	err := d.Deliver(context.Background(), recipients[0], "s", "b")
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Errorf("Deliver err = %v", err)
	}
}

func state(battery int, charging string) models.VehicleState {
	return models.VehicleState{
		VehicleID: "veh-1", TenantID: "tenant-1", BatteryLevel: battery, RangeKm: float64(battery) * 4,
		ChargingState: charging, ObservedAt: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestAlertConditions(t *testing.T) {
	t.Parallel()

	prefs := &models.AlertPreferences{LowBatteryThreshold: 20, ChargingComplete: true}
	tests := []struct {
		name string
		prev models.VehicleState
		cur  models.VehicleState
		want []string
	}{
		{"crosses threshold", state(25, "stopped"), state(20, "stopped"), []string{AlertLowBattery}},
		{"already below", state(18, "stopped"), state(15, "stopped"), nil},
		{"stays above", state(40, "stopped"), state(21, "stopped"), nil},
		{"recovers", state(15, "charging"), state(30, "charging"), nil},
		{"charging completes", state(79, "charging"), state(80, "complete"), []string{AlertChargingComplete}},
		{"still complete", state(80, "complete"), state(80, "complete"), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := conditions(&tt.prev, &tt.cur, prefs)
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("conditions = %v, want %v", got, tt.want)
			}
		})
	}

	off := &models.AlertPreferences{LowBatteryThreshold: 0, ChargingComplete: false}
	prev, cur := state(25, "charging"), state(5, "complete")
	if got := conditions(&prev, &cur, off); len(got) != 0 {
		t.Errorf("disabled alerts fired: %v", got)
	}
}

func TestAlertEvaluatorHandle(t *testing.T) {
	t.Parallel()

	s := seed(t, &models.AlertPreferences{UserID: "user-1", SMSEnabled: true, LowBatteryThreshold: 20})
	sms := &fakeNotifier{channel: ChannelSMS}
	ev := NewAlertEvaluator(s, NewDispatcher(s, 20, sms))

	prev := state(22, "stopped")
	payload, _ := json.Marshal(events.StateUpdated{
		TenantID: "tenant-1", VehicleID: "veh-1", Previous: &prev, Current: state(19, "stopped"),
	})
	if err := ev.Handle(context.Background(), message.NewMessage("m1", payload)); err != nil {
		t.Fatal(err)
	}
	if sms.count() != 1 {
		t.Fatalf("sent %d sms, want 1", sms.count())
	}
	if n := sms.sent[0]; n.To != "+15551234567" || n.Subject != "Model 3 battery low" || !strings.Contains(n.Body, "19%") {
		t.Errorf("notification = %+v", n)
	}

	first, _ := json.Marshal(events.StateUpdated{TenantID: "tenant-1", VehicleID: "veh-1", Current: state(5, "stopped")})
	if err := ev.Handle(context.Background(), message.NewMessage("m2", first)); err != nil {
		t.Fatal(err)
	}
	if err := ev.Handle(context.Background(), message.NewMessage("m3", []byte("garbage"))); err != nil {
		t.Errorf("malformed payload should be dropped, got %v", err)
	}
	if sms.count() != 1 {
		t.Errorf("first observation or garbage fired alerts: %d", sms.count())
	}
}

func TestAlertEvaluatorCountsFailedDelivery(t *testing.T) {
	t.Parallel()

	s := seed(t, &models.AlertPreferences{UserID: "user-1", SMSEnabled: true, LowBatteryThreshold: 20})
	sms := &fakeNotifier{channel: ChannelSMS, err: errors.New("carrier down")}
	ev := NewAlertEvaluator(s, NewDispatcher(s, 20, sms))
	failed := metrics.AlertsDelivered.WithLabelValues(AlertLowBattery, "failed")
	before := testutil.ToFloat64(failed)

	prev := state(30, "stopped")
	payload, _ := json.Marshal(events.StateUpdated{
		TenantID: "tenant-1", VehicleID: "veh-1", Previous: &prev, Current: state(10, "stopped"),
	})
	// Delivery failures are counted but never fail the consumer.
	if err := ev.Handle(context.Background(), message.NewMessage("m1", payload)); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if sms.count() != 1 {
		t.Fatalf("attempted %d sms, want 1", sms.count())
	}
	if got := testutil.ToFloat64(failed) - before; got != 1 {
		t.Errorf("failed alert count delta = %v, want 1", got)
	}
}
