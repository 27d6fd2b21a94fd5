// Voltbridge - EV Telemetry Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/voltbridge

package models

import "time"

// Subscription statuses as reported by the payments provider.
const (
	SubscriptionActive            = "active"
	SubscriptionTrialing          = "trialing"
	SubscriptionPastDue           = "past_due"
	SubscriptionCanceled          = "canceled"
	SubscriptionUnpaid            = "unpaid"
	SubscriptionIncomplete        = "incomplete"
	SubscriptionIncompleteExpired = "incomplete_expired"
)

// Subscription is the tenant's current plan as last reported by the payments
// provider. UpdatedAt holds the provider event time of the last applied
// change, so older events can be discarded.
type Subscription struct {
	TenantID               string     `json:"tenant_id"`
	ProviderSubscriptionID string     `json:"provider_subscription_id,omitempty"`
	ProviderCustomerID     string     `json:"provider_customer_id,omitempty"`
	PriceID                string     `json:"price_id,omitempty"`
	Tier                   Tier       `json:"tier"`
	Status                 string     `json:"status"`
	CurrentPeriodEnd       *time.Time `json:"current_period_end,omitempty"`
	UpdatedAt              time.Time  `json:"updated_at"`
}

// CheckoutRequest is the body of POST /api/v1/billing/checkout.
type CheckoutRequest struct {
	Tier Tier `json:"tier" validate:"required,oneof=pro fleet"`
}

// CheckoutResponse carries the hosted checkout page URL.
type CheckoutResponse struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

// TierChange is published on the event bus when a tenant's tier moves.
type TierChange struct {
	TenantID     string    `json:"tenant_id"`
	PreviousTier Tier      `json:"previous_tier"`
	NewTier      Tier      `json:"new_tier"`
	Reason       string    `json:"reason"`
	ChangedAt    time.Time `json:"changed_at"`
}
