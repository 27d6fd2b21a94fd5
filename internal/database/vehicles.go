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

const vehicleColumns = `id, tenant_id, vendor_vehicle_id, display_name, created_at`

func scanVehicle(row rowScanner) (*models.Vehicle, error) {
	var v models.Vehicle
	if err := row.Scan(&v.ID, &v.TenantID, &v.VendorVehicleID, &v.DisplayName, &v.CreatedAt); err != nil {
		return nil, mapError(err)
	}
	return &v, nil
}

func (db *DB) CreateVehicle(ctx context.Context, v *models.Vehicle) error {
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO vehicles (`+vehicleColumns+`) VALUES (?, ?, ?, ?, ?)`,
		v.ID, v.TenantID, v.VendorVehicleID, v.DisplayName, v.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert vehicle: %w", mapError(err))
	}
	return nil
}

func (db *DB) GetVehicle(ctx context.Context, tenantID, id string) (*models.Vehicle, error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	return scanVehicle(db.conn.QueryRowContext(ctx,
		`SELECT `+vehicleColumns+` FROM vehicles WHERE id = ? AND tenant_id = ?`, id, tenantID))
}

func (db *DB) GetVehicleByVendorID(ctx context.Context, vendorID string) (*models.Vehicle, error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	return scanVehicle(db.conn.QueryRowContext(ctx,
		`SELECT `+vehicleColumns+` FROM vehicles WHERE vendor_vehicle_id = ?`, vendorID))
}

func (db *DB) ListVehicles(ctx context.Context, tenantID string) ([]models.Vehicle, error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+vehicleColumns+` FROM vehicles WHERE tenant_id = ? ORDER BY lower(display_name)`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query vehicles: %w", err)
	}
	defer closeQuietly(rows)

	out := make([]models.Vehicle, 0)
	for rows.Next() {
		v, err := scanVehicle(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan vehicle: %w", err)
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

func (db *DB) CountVehicles(ctx context.Context, tenantID string) (int, error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	var n int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM vehicles WHERE tenant_id = ?`, tenantID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count vehicles: %w", err)
	}
	return n, nil
}

func (db *DB) DeleteVehicle(ctx context.Context, tenantID, id string) error {
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	return requireRow(db.conn.ExecContext(ctx, `DELETE FROM vehicles WHERE id = ? AND tenant_id = ?`, id, tenantID))
}
