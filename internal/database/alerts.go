// Voltbridge - EV Telemetry Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/voltbridge

package database

import (
	"context"
	"fmt"

	"github.com/tomtom215/voltbridge/internal/models"
)

func (db *DB) GetAlertPreferences(ctx context.Context, userID string) (*models.AlertPreferences, error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	var p models.AlertPreferences
	err := db.conn.QueryRowContext(ctx,
		`SELECT user_id, sms_enabled, email_enabled, low_battery_threshold, charging_complete, updated_at
		 FROM alert_preferences WHERE user_id = ?`, userID).
		Scan(&p.UserID, &p.SMSEnabled, &p.EmailEnabled, &p.LowBatteryThreshold, &p.ChargingComplete, &p.UpdatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	return &p, nil
}

func (db *DB) UpsertAlertPreferences(ctx context.Context, p *models.AlertPreferences) error {
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO alert_preferences (user_id, sms_enabled, email_enabled, low_battery_threshold,
		                                charging_complete, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET
		   sms_enabled = excluded.sms_enabled,
		   email_enabled = excluded.email_enabled,
		   low_battery_threshold = excluded.low_battery_threshold,
		   charging_complete = excluded.charging_complete,
		   updated_at = excluded.updated_at`,
		p.UserID, p.SMSEnabled, p.EmailEnabled, p.LowBatteryThreshold, p.ChargingComplete, p.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert alert preferences: %w", mapError(err))
	}
	return nil
}
