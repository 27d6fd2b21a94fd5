// Voltbridge - EV Telemetry Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/voltbridge

// Package models holds the domain types shared by the store, the HTTP layer
// and the event bus.
package models

import "time"

// Tier is the subscription plan of a tenant.
type Tier string

const (
	TierFree  Tier = "free"
	TierPro   Tier = "pro"
	TierFleet Tier = "fleet"
)

// Tiers returns all tiers from lowest to highest.
func Tiers() []Tier {
	return []Tier{TierFree, TierPro, TierFleet}
}

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	switch t {
	case TierFree, TierPro, TierFleet:
		return true
	}
	return false
}

// Role is a user's role inside a tenant. RoleIntegration is reserved for
// API-key subjects.
type Role string

const (
	RoleOwner       Role = "owner"
	RoleMember      Role = "member"
	RoleIntegration Role = "integration"
	RoleAdmin       Role = "admin"
)

// Tenant is the billing unit. Vehicles, users, API keys and the subscription
// all belong to exactly one tenant.
type Tenant struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	Tier              Tier      `json:"tier"`
	PaymentCustomerID string    `json:"payment_customer_id,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// User is an identity-provider subject mapped onto a tenant. ID is the
// token's sub claim.
type User struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone,omitempty"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// AlertPreferences controls which vehicle alerts a user receives.
type AlertPreferences struct {
	UserID              string    `json:"user_id"`
	SMSEnabled          bool      `json:"sms_enabled"`
	EmailEnabled        bool      `json:"email_enabled"`
	LowBatteryThreshold int       `json:"low_battery_threshold"`
	ChargingComplete    bool      `json:"charging_complete"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// UpdateAlertPreferencesRequest is the body of PUT /api/v1/alerts/preferences.
type UpdateAlertPreferencesRequest struct {
	Phone               *string `json:"phone,omitempty" validate:"omitempty,e164"`
	SMSEnabled          bool    `json:"sms_enabled"`
	EmailEnabled        bool    `json:"email_enabled"`
	LowBatteryThreshold int     `json:"low_battery_threshold" validate:"min=0,max=100"`
	ChargingComplete    bool    `json:"charging_complete"`
}
