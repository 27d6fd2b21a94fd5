// Voltbridge - EV Telemetry Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/voltbridge

package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/voltbridge/internal/events"
	"github.com/tomtom215/voltbridge/internal/logging"
	"github.com/tomtom215/voltbridge/internal/metrics"
	"github.com/tomtom215/voltbridge/internal/models"
	"github.com/tomtom215/voltbridge/internal/store"
)

// Mailer sends a plain-text email. notify.EmailNotifier implements it.
type Mailer interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// Store is the persistence the processor needs.
type Store interface {
	store.TenantStore
	store.SubscriptionStore
	ListTenantUsers(ctx context.Context, tenantID string) ([]models.User, error)
}

// Processor applies verified provider events. It is safe for concurrent use
// as long as the Store is.
type Processor struct {
	store     Store
	prices    map[string]models.Tier
	publisher events.Publisher
	mailer    Mailer
	now       func() time.Time
}

type ProcessorOption func(*Processor)

func WithPublisher(p events.Publisher) ProcessorOption {
	return func(pr *Processor) { pr.publisher = p }
}

func WithMailer(m Mailer) ProcessorOption {
	return func(pr *Processor) { pr.mailer = m }
}

func NewProcessor(s Store, prices map[string]models.Tier, opts ...ProcessorOption) *Processor {
	p := &Processor{store: s, prices: prices, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Handle applies one event. Unknown types return nil so the provider stops
// retrying them.
func (p *Processor) Handle(ctx context.Context, ev *Event) error {
	logger := logging.Ctx(ctx)
	switch ev.Type {
	case EventCheckoutCompleted:
		return p.checkoutCompleted(ctx, ev)
	case EventSubscriptionCreated, EventSubscriptionUpdated, EventSubscriptionDeleted:
		return p.subscriptionChanged(ctx, ev)
	case EventInvoicePaymentFailed:
		return p.paymentFailed(ctx, ev)
	default:
		logger.Debug().Str("event_type", ev.Type).Str("event_id", ev.ID).Msg("ignoring payments event")
		return nil
	}
}

func (p *Processor) checkoutCompleted(ctx context.Context, ev *Event) error {
	var obj checkoutObject
	if err := json.Unmarshal(ev.Data.Object, &obj); err != nil {
		return fmt.Errorf("decode checkout session: %w", err)
	}
	if obj.ClientReferenceID == "" || obj.Customer == "" {
		logging.Ctx(ctx).Warn().Str("session_id", obj.ID).Msg("checkout session without tenant reference")
		return nil
	}
	err := p.store.SetTenantCustomer(ctx, obj.ClientReferenceID, obj.Customer)
	if errors.Is(err, store.ErrNotFound) {
		logging.Ctx(ctx).Warn().Str("tenant_id", obj.ClientReferenceID).Msg("checkout for unknown tenant")
		return nil
	}
	if err != nil {
		return fmt.Errorf("link customer: %w", err)
	}
	return nil
}

func (p *Processor) subscriptionChanged(ctx context.Context, ev *Event) error {
	var obj subscriptionObject
	if err := json.Unmarshal(ev.Data.Object, &obj); err != nil {
		return fmt.Errorf("decode subscription: %w", err)
	}
	logger := logging.Ctx(ctx).With().Str("subscription_id", obj.ID).Str("event_type", ev.Type).Logger()

	tenant, err := p.tenantFor(ctx, &obj)
	if err != nil {
		return err
	}
	if tenant == nil {
		logger.Warn().Str("customer_id", obj.Customer).Msg("subscription for unknown customer")
		return nil
	}

	eventAt := ev.CreatedAt()
	existing, err := p.store.GetSubscription(ctx, tenant.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("load subscription: %w", err)
	}
	if existing != nil && eventAt.Before(existing.UpdatedAt) {
		logger.Info().Time("event_at", eventAt).Time("stored_at", existing.UpdatedAt).Msg("ignoring out-of-order subscription event")
		return nil
	}

	status := obj.Status
	if ev.Type == EventSubscriptionDeleted {
		status = models.SubscriptionCanceled
	}
	tier := p.tierFor(status, obj.priceID(), tenant.Tier)

	sub := &models.Subscription{
		TenantID:               tenant.ID,
		ProviderSubscriptionID: obj.ID,
		ProviderCustomerID:     obj.Customer,
		PriceID:                obj.priceID(),
		Tier:                   tier,
		Status:                 status,
		UpdatedAt:              eventAt,
	}
	if obj.CurrentPeriodEnd > 0 {
		end := time.Unix(obj.CurrentPeriodEnd, 0).UTC()
		sub.CurrentPeriodEnd = &end
	}
	if err := p.store.UpsertSubscription(ctx, sub); err != nil {
		return fmt.Errorf("save subscription: %w", err)
	}

	if tier == tenant.Tier {
		return nil
	}
	if err := p.store.UpdateTenantTier(ctx, tenant.ID, tier); err != nil {
		return fmt.Errorf("update tier: %w", err)
	}
	metrics.TierChanges.WithLabelValues(string(tenant.Tier), string(tier)).Inc()
	logger.Info().Str("tenant_id", tenant.ID).Str("from", string(tenant.Tier)).Str("to", string(tier)).Msg("tenant tier changed")

	if p.publisher != nil {
		change := models.TierChange{
			TenantID:     tenant.ID,
			PreviousTier: tenant.Tier,
			NewTier:      tier,
			Reason:       ev.Type + ":" + status,
			ChangedAt:    p.now().UTC(),
		}
		if err := p.publisher.Publish(ctx, events.TopicTierChanged, change); err != nil {
			logger.Warn().Err(err).Msg("publish tier change")
		}
	}
	return nil
}

// tenantFor resolves the tenant by customer, falling back to the metadata the
// checkout attached. The fallback links the customer for later events.
func (p *Processor) tenantFor(ctx context.Context, obj *subscriptionObject) (*models.Tenant, error) {
	if obj.Customer != "" {
		t, err := p.store.GetTenantByCustomer(ctx, obj.Customer)
		if err == nil {
			return t, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("lookup tenant by customer: %w", err)
		}
	}
	id := obj.Metadata["tenant_id"]
	if id == "" {
		return nil, nil
	}
	t, err := p.store.GetTenant(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup tenant: %w", err)
	}
	if obj.Customer != "" && t.PaymentCustomerID != obj.Customer {
		if err := p.store.SetTenantCustomer(ctx, t.ID, obj.Customer); err != nil {
			return nil, fmt.Errorf("link customer: %w", err)
		}
		t.PaymentCustomerID = obj.Customer
	}
	return t, nil
}

// tierFor maps a subscription status and price onto a tier. Statuses that
// leave payment pending keep the current tier; an unmapped price does too.
func (p *Processor) tierFor(status, priceID string, current models.Tier) models.Tier {
	switch status {
	case models.SubscriptionActive, models.SubscriptionTrialing:
		if tier, ok := p.prices[priceID]; ok && tier.Valid() {
			return tier
		}
		return current
	case models.SubscriptionCanceled, models.SubscriptionUnpaid, models.SubscriptionIncompleteExpired:
		return models.TierFree
	default:
		return current
	}
}

func (p *Processor) paymentFailed(ctx context.Context, ev *Event) error {
	var inv invoiceObject
	if err := json.Unmarshal(ev.Data.Object, &inv); err != nil {
		return fmt.Errorf("decode invoice: %w", err)
	}
	logger := logging.Ctx(ctx).With().Str("invoice_id", inv.ID).Logger()
	if p.mailer == nil {
		logger.Info().Msg("payment failed, no mailer configured")
		return nil
	}

	tenant, err := p.store.GetTenantByCustomer(ctx, inv.Customer)
	if errors.Is(err, store.ErrNotFound) {
		logger.Warn().Str("customer_id", inv.Customer).Msg("failed invoice for unknown customer")
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup tenant by customer: %w", err)
	}
	users, err := p.store.ListTenantUsers(ctx, tenant.ID)
	if err != nil {
		return fmt.Errorf("list tenant users: %w", err)
	}

	subject, body := paymentFailedMessage(tenant, &inv)
	for i := range users {
		u := &users[i]
		if u.Role != models.RoleOwner || u.Email == "" {
			continue
		}
		if err := p.mailer.SendEmail(ctx, u.Email, subject, body); err != nil {
			logger.Warn().Err(err).Str("user_id", u.ID).Msg("payment failure email not sent")
		}
	}
	return nil
}

func paymentFailedMessage(t *models.Tenant, inv *invoiceObject) (string, string) {
	var b strings.Builder
	fmt.Fprintf(&b, "We could not collect the latest payment for %s.\n", t.Name)
	if inv.AmountDue > 0 {
		fmt.Fprintf(&b, "Amount due: %.2f %s\n", float64(inv.AmountDue)/100, strings.ToUpper(inv.Currency))
	}
	if inv.HostedInvoiceURL != "" {
		fmt.Fprintf(&b, "Update your payment method: %s\n", inv.HostedInvoiceURL)
	}
	b.WriteString("Your plan stays active while the provider retries the charge.\n")
	return "Voltbridge payment failed", b.String()
}
