// Voltbridge - EV Telemetry Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/voltbridge

// Package store defines the persistence contract used by the HTTP layer,
// the auth resolver and the billing processor. database.DB implements it
// on DuckDB; Memory implements it for development and tests.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/tomtom215/voltbridge/internal/models"
)

var (
	// ErrNotFound is returned when the requested row does not exist or is
	// not visible to the requesting tenant.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned on unique constraint violations.
	ErrConflict = errors.New("conflict")
)

type TenantStore interface {
	// CreateTenantWithOwner creates a tenant together with its first user.
	// It returns ErrConflict when the user already exists.
	CreateTenantWithOwner(ctx context.Context, tenant *models.Tenant, owner *models.User) error
	GetTenant(ctx context.Context, id string) (*models.Tenant, error)
	GetTenantByCustomer(ctx context.Context, customerID string) (*models.Tenant, error)
	UpdateTenantTier(ctx context.Context, id string, tier models.Tier) error
	SetTenantCustomer(ctx context.Context, id, customerID string) error
}

type UserStore interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	ListTenantUsers(ctx context.Context, tenantID string) ([]models.User, error)
	UpdateUserPhone(ctx context.Context, id, phone string) error
}

// VehicleStore lookups are tenant scoped except GetVehicleByVendorID, which
// webhooks use before a tenant is known.
type VehicleStore interface {
	CreateVehicle(ctx context.Context, v *models.Vehicle) error
	GetVehicle(ctx context.Context, tenantID, id string) (*models.Vehicle, error)
	GetVehicleByVendorID(ctx context.Context, vendorID string) (*models.Vehicle, error)
	ListVehicles(ctx context.Context, tenantID string) ([]models.Vehicle, error)
	CountVehicles(ctx context.Context, tenantID string) (int, error)
	DeleteVehicle(ctx context.Context, tenantID, id string) error
}

type APIKeyStore interface {
	CreateAPIKey(ctx context.Context, k *models.APIKey) error
	GetAPIKey(ctx context.Context, id string) (*models.APIKey, error)
	ListAPIKeys(ctx context.Context, tenantID string) ([]models.APIKey, error)
	CountActiveAPIKeys(ctx context.Context, tenantID string, now time.Time) (int, error)
	RevokeAPIKey(ctx context.Context, tenantID, id string, at time.Time) error
	RecordAPIKeyUse(ctx context.Context, id, ip string, at time.Time) error
}

type SubscriptionStore interface {
	GetSubscription(ctx context.Context, tenantID string) (*models.Subscription, error)
	UpsertSubscription(ctx context.Context, s *models.Subscription) error
}

// WebhookEventStore records provider event IDs for idempotent processing.
type WebhookEventStore interface {
	// RecordWebhookEvent returns true the first time (provider, eventID) is seen.
	RecordWebhookEvent(ctx context.Context, provider, eventID string, at time.Time) (bool, error)
	// ForgetWebhookEvent undoes RecordWebhookEvent after a failed attempt so
	// the provider's retry is processed.
	ForgetWebhookEvent(ctx context.Context, provider, eventID string) error
}

type AlertPreferenceStore interface {
	GetAlertPreferences(ctx context.Context, userID string) (*models.AlertPreferences, error)
	UpsertAlertPreferences(ctx context.Context, p *models.AlertPreferences) error
}

// Store is the full persistence surface.
type Store interface {
	TenantStore
	UserStore
	VehicleStore
	APIKeyStore
	SubscriptionStore
	WebhookEventStore
	AlertPreferenceStore

	Ping(ctx context.Context) error
	Close() error
}
