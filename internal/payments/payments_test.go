// Voltbridge - EV Telemetry Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/voltbridge

package payments

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/voltbridge/internal/config"
	"github.com/tomtom215/voltbridge/internal/events"
	"github.com/tomtom215/voltbridge/internal/models"
	"github.com/tomtom215/voltbridge/internal/store"
)

func TestCreateCheckoutSession(t *testing.T) {
	t.Parallel()

	var got url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/checkout/sessions" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer sk_test" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		body, _ := io.ReadAll(r.Body)
		got, _ = url.ParseQuery(string(body))
		_, _ = w.Write([]byte(`{"id":"cs_1","url":"https://pay.example/cs_1"}`))
	}))
	defer srv.Close()

	c := NewClient(config.PaymentsConfig{APIBaseURL: srv.URL, SecretKey: "sk_test"}, srv.Client())
	session, err := c.CreateCheckoutSession(context.Background(), CheckoutParams{
		TenantID:      "tenant-1",
		PriceID:       "price_pro",
		CustomerEmail: "ada@example.com",
		SuccessURL:    "https://app.example/ok",
		CancelURL:     "https://app.example/cancel",
	})
	if err != nil {
		t.Fatalf("CreateCheckoutSession: %v", err)
	}
	if session.URL != "https://pay.example/cs_1" || session.ID != "cs_1" {
		t.Errorf("session = %+v", session)
	}

	want := map[string]string{
		"mode":                                   "subscription",
		"line_items[0][price]":                   "price_pro",
		"line_items[0][quantity]":                "1",
		"client_reference_id":                    "tenant-1",
		"subscription_data[metadata][tenant_id]": "tenant-1",
		"customer_email":                         "ada@example.com",
		"success_url":                            "https://app.example/ok",
	}
	for k, v := range want {
		if got.Get(k) != v {
			t.Errorf("form[%s] = %q, want %q", k, got.Get(k), v)
		}
	}
	if got.Has("customer") {
		t.Error("customer should not be sent without a customer id")
	}
}

func TestCreateCheckoutSessionError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"No such price"}}`))
	}))
	defer srv.Close()

	c := NewClient(config.PaymentsConfig{APIBaseURL: srv.URL, SecretKey: "sk"}, srv.Client())
	_, err := c.CreateCheckoutSession(context.Background(), CheckoutParams{TenantID: "t", PriceID: "nope"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest || apiErr.Message != "No such price" {
		t.Errorf("apiErr = %+v", apiErr)
	}
}

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
	last   interface{}
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.last = payload
	return nil
}

type recordingMailer struct {
	to      []string
	subject string
	body    string
}

func (m *recordingMailer) SendEmail(_ context.Context, to, subject, body string) error {
	m.to = append(m.to, to)
	m.subject = subject
	m.body = body
	return nil
}

func seedTenant(t *testing.T, s *store.Memory, tier models.Tier, customer string) {
	t.Helper()
	err := s.CreateTenantWithOwner(context.Background(),
		&models.Tenant{ID: "tenant-1", Name: "ada", Tier: tier, PaymentCustomerID: customer},
		&models.User{ID: "user-1", TenantID: "tenant-1", Email: "ada@example.com", Role: models.RoleOwner})
	if err != nil {
		t.Fatal(err)
	}
}

func event(typ string, created int64, object string) *Event {
	ev := &Event{ID: fmt.Sprintf("evt_%d", created), Type: typ, Created: created}
	ev.Data.Object = []byte(object)
	return ev
}

func subscriptionJSON(customer, status, price string, meta string) string {
	return fmt.Sprintf(`{"id":"sub_1","customer":%q,"status":%q,"current_period_end":1900000000,"metadata":%s,"items":{"data":[{"price":{"id":%q}}]}}`,
		customer, status, meta, price)
}

var prices = map[string]models.Tier{"price_pro": models.TierPro, "price_fleet": models.TierFleet}

func TestSubscriptionTierMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		start    models.Tier
		typ      string
		status   string
		price    string
		wantTier models.Tier
	}{
		{"active maps price", models.TierFree, EventSubscriptionCreated, "active", "price_pro", models.TierPro},
		{"trialing maps price", models.TierFree, EventSubscriptionUpdated, "trialing", "price_fleet", models.TierFleet},
		{"past due keeps tier", models.TierPro, EventSubscriptionUpdated, "past_due", "price_pro", models.TierPro},
		{"incomplete keeps tier", models.TierFree, EventSubscriptionCreated, "incomplete", "price_pro", models.TierFree},
		{"canceled drops to free", models.TierPro, EventSubscriptionUpdated, "canceled", "price_pro", models.TierFree},
		{"unpaid drops to free", models.TierFleet, EventSubscriptionUpdated, "unpaid", "price_fleet", models.TierFree},
		{"incomplete expired drops to free", models.TierPro, EventSubscriptionUpdated, "incomplete_expired", "price_pro", models.TierFree},
		{"deleted drops to free", models.TierPro, EventSubscriptionDeleted, "active", "price_pro", models.TierFree},
		{"unknown price keeps tier", models.TierPro, EventSubscriptionUpdated, "active", "price_other", models.TierPro},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := store.NewMemory()
			seedTenant(t, s, tt.start, "cus_1")
			pub := &recordingPublisher{}
			p := NewProcessor(s, prices, WithPublisher(pub))

			ev := event(tt.typ, 1000, subscriptionJSON("cus_1", tt.status, tt.price, "{}"))
			if err := p.Handle(context.Background(), ev); err != nil {
				t.Fatalf("Handle: %v", err)
			}

			tenant, _ := s.GetTenant(context.Background(), "tenant-1")
			if tenant.Tier != tt.wantTier {
				t.Errorf("tier = %s, want %s", tenant.Tier, tt.wantTier)
			}
			sub, err := s.GetSubscription(context.Background(), "tenant-1")
			if err != nil {
				t.Fatalf("subscription not stored: %v", err)
			}
			if sub.Tier != tt.wantTier || !sub.UpdatedAt.Equal(time.Unix(1000, 0)) {
				t.Errorf("subscription = %+v", sub)
			}

			changed := tt.start != tt.wantTier
			if changed != (len(pub.topics) == 1) {
				t.Fatalf("published %v, tier changed %v", pub.topics, changed)
			}
			if changed {
				change := pub.last.(models.TierChange)
				if pub.topics[0] != events.TopicTierChanged || change.PreviousTier != tt.start || change.NewTier != tt.wantTier {
					t.Errorf("published %s %+v", pub.topics[0], change)
				}
			}
		})
	}
}

func TestSubscriptionOutOfOrderIgnored(t *testing.T) {
	t.Parallel()

	s := store.NewMemory()
	seedTenant(t, s, models.TierFree, "cus_1")
	p := NewProcessor(s, prices)
	ctx := context.Background()

	if err := p.Handle(ctx, event(EventSubscriptionUpdated, 2000, subscriptionJSON("cus_1", "active", "price_fleet", "{}"))); err != nil {
		t.Fatal(err)
	}
	// An older event arriving late must not undo the newer state.
	if err := p.Handle(ctx, event(EventSubscriptionUpdated, 1000, subscriptionJSON("cus_1", "canceled", "price_fleet", "{}"))); err != nil {
		t.Fatal(err)
	}

	tenant, _ := s.GetTenant(ctx, "tenant-1")
	if tenant.Tier != models.TierFleet {
		t.Errorf("tier = %s, want fleet", tenant.Tier)
	}
}

func TestSubscriptionMetadataFallbackLinksCustomer(t *testing.T) {
	t.Parallel()

	s := store.NewMemory()
	seedTenant(t, s, models.TierFree, "")
	p := NewProcessor(s, prices)
	ctx := context.Background()

	ev := event(EventSubscriptionCreated, 1000, subscriptionJSON("cus_new", "active", "price_pro", `{"tenant_id":"tenant-1"}`))
	if err := p.Handle(ctx, ev); err != nil {
		t.Fatal(err)
	}
	tenant, err := s.GetTenantByCustomer(ctx, "cus_new")
	if err != nil {
		t.Fatalf("customer not linked: %v", err)
	}
	if tenant.Tier != models.TierPro {
		t.Errorf("tier = %s", tenant.Tier)
	}
}

func TestSubscriptionUnknownCustomerAcknowledged(t *testing.T) {
	t.Parallel()

	p := NewProcessor(store.NewMemory(), prices)
	ev := event(EventSubscriptionUpdated, 1000, subscriptionJSON("cus_x", "active", "price_pro", "{}"))
	if err := p.Handle(context.Background(), ev); err != nil {
		t.Errorf("Handle = %v, want nil", err)
	}
}

func TestCheckoutCompletedLinksCustomer(t *testing.T) {
	t.Parallel()

	s := store.NewMemory()
	seedTenant(t, s, models.TierFree, "")
	p := NewProcessor(s, prices)
	ctx := context.Background()

	ev := event(EventCheckoutCompleted, 1000, `{"id":"cs_1","client_reference_id":"tenant-1","customer":"cus_9"}`)
	if err := p.Handle(ctx, ev); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetTenantByCustomer(ctx, "cus_9"); err != nil {
		t.Errorf("customer not linked: %v", err)
	}

	unknown := event(EventCheckoutCompleted, 1001, `{"id":"cs_2","client_reference_id":"missing","customer":"cus_8"}`)
	if err := p.Handle(ctx, unknown); err != nil {
		t.Errorf("unknown tenant should be acknowledged: %v", err)
	}
}

func TestPaymentFailedEmailsOwners(t *testing.T) {
	t.Parallel()

	s := store.NewMemory()
	seedTenant(t, s, models.TierPro, "cus_1")
	mailer := &recordingMailer{}
	p := NewProcessor(s, prices, WithMailer(mailer))

	ev := event(EventInvoicePaymentFailed, 1000,
		`{"id":"in_1","customer":"cus_1","amount_due":1999,"currency":"eur","hosted_invoice_url":"https://pay.example/in_1"}`)
	if err := p.Handle(context.Background(), ev); err != nil {
		t.Fatal(err)
	}
	if len(mailer.to) != 1 || mailer.to[0] != "ada@example.com" {
		t.Fatalf("emailed %v", mailer.to)
	}
	for _, want := range []string{"19.99 EUR", "https://pay.example/in_1"} {
		if !strings.Contains(mailer.body, want) {
			t.Errorf("body %q missing %q", mailer.body, want)
		}
	}
}

func TestUnknownEventAcknowledged(t *testing.T) {
	t.Parallel()

	p := NewProcessor(store.NewMemory(), prices)
	if err := p.Handle(context.Background(), event("charge.refunded", 1, `{}`)); err != nil {
		t.Errorf("Handle = %v", err)
	}
}

func TestParseEvent(t *testing.T) {
	t.Parallel()

	ev, err := ParseEvent([]byte(`{"id":"evt_1","type":"customer.subscription.updated","created":1700000000,"data":{"object":{"id":"sub_1"}}}`))
	if err != nil {
		t.Fatal(err)
	}
	if ev.ID != "evt_1" || !ev.CreatedAt().Equal(time.Unix(1700000000, 0)) || len(ev.Data.Object) == 0 {
		t.Errorf("event = %+v", ev)
	}

	for _, body := range []string{`not json`, `{"type":"x"}`, `{"id":"evt"}`} {
		if _, err := ParseEvent([]byte(body)); err == nil {
			t.Errorf("ParseEvent(%s) should fail", body)
		}
	}
}
