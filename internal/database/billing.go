// Voltbridge - EV Telemetry Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/voltbridge

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tomtom215/voltbridge/internal/models"
)

func (db *DB) GetSubscription(ctx context.Context, tenantID string) (*models.Subscription, error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	var (
		s                    models.Subscription
		subID, custID, price sql.NullString
		tier                 string
		periodEnd            sql.NullTime
	)
	err := db.conn.QueryRowContext(ctx,
		`SELECT tenant_id, provider_subscription_id, provider_customer_id, price_id, tier, status,
		        current_period_end, updated_at
		 FROM subscriptions WHERE tenant_id = ?`, tenantID).
		Scan(&s.TenantID, &subID, &custID, &price, &tier, &s.Status, &periodEnd, &s.UpdatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	s.ProviderSubscriptionID = subID.String
	s.ProviderCustomerID = custID.String
	s.PriceID = price.String
	s.Tier = models.Tier(tier)
	s.CurrentPeriodEnd = timePtr(periodEnd)
	return &s, nil
}

func (db *DB) UpsertSubscription(ctx context.Context, s *models.Subscription) error {
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO subscriptions (tenant_id, provider_subscription_id, provider_customer_id, price_id,
		                            tier, status, current_period_end, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (tenant_id) DO UPDATE SET
		   provider_subscription_id = excluded.provider_subscription_id,
		   provider_customer_id = excluded.provider_customer_id,
		   price_id = excluded.price_id,
		   tier = excluded.tier,
		   status = excluded.status,
		   current_period_end = excluded.current_period_end,
		   updated_at = excluded.updated_at`,
		s.TenantID, nullString(s.ProviderSubscriptionID), nullString(s.ProviderCustomerID),
		nullString(s.PriceID), string(s.Tier), s.Status, nullTime(s.CurrentPeriodEnd), s.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert subscription: %w", mapError(err))
	}
	return nil
}

func (db *DB) RecordWebhookEvent(ctx context.Context, provider, eventID string, at time.Time) (bool, error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO webhook_events (provider, event_id, received_at) VALUES (?, ?, ?)
		 ON CONFLICT DO NOTHING`, provider, eventID, at.UTC())
	if err != nil {
		return false, fmt.Errorf("failed to record webhook event: %w", mapError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (db *DB) ForgetWebhookEvent(ctx context.Context, provider, eventID string) error {
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	if _, err := db.conn.ExecContext(ctx,
		`DELETE FROM webhook_events WHERE provider = ? AND event_id = ?`, provider, eventID); err != nil {
		return fmt.Errorf("failed to forget webhook event: %w", mapError(err))
	}
	return nil
}
