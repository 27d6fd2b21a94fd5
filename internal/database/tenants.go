// Voltbridge - EV Telemetry Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/voltbridge

package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tomtom215/voltbridge/internal/models"
	"github.com/tomtom215/voltbridge/internal/store"
)

func (db *DB) CreateTenantWithOwner(ctx context.Context, tenant *models.Tenant, owner *models.User) error {
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE id = ?`, owner.ID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check user: %w", err)
	}
	if exists > 0 {
		return store.ErrConflict
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO tenants (id, name, tier, payment_customer_id, created_at) VALUES (?, ?, ?, ?, ?)`,
		tenant.ID, tenant.Name, string(tenant.Tier), nullString(tenant.PaymentCustomerID), tenant.CreatedAt.UTC(),
	); err != nil {
		return fmt.Errorf("failed to insert tenant: %w", mapError(err))
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO users (id, tenant_id, email, phone, role, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		owner.ID, owner.TenantID, owner.Email, nullString(owner.Phone), string(owner.Role), owner.CreatedAt.UTC(),
	); err != nil {
		return fmt.Errorf("failed to insert user: %w", mapError(err))
	}
	return tx.Commit()
}

const tenantColumns = `id, name, tier, payment_customer_id, created_at`

func scanTenant(row rowScanner) (*models.Tenant, error) {
	var (
		t        models.Tenant
		tier     string
		customer sql.NullString
	)
	if err := row.Scan(&t.ID, &t.Name, &tier, &customer, &t.CreatedAt); err != nil {
		return nil, mapError(err)
	}
	t.Tier = models.Tier(tier)
	t.PaymentCustomerID = customer.String
	return &t, nil
}

func (db *DB) GetTenant(ctx context.Context, id string) (*models.Tenant, error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	return scanTenant(db.conn.QueryRowContext(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = ?`, id))
}

func (db *DB) GetTenantByCustomer(ctx context.Context, customerID string) (*models.Tenant, error) {
	if customerID == "" {
		return nil, store.ErrNotFound
	}
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	return scanTenant(db.conn.QueryRowContext(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE payment_customer_id = ? LIMIT 1`, customerID))
}

func (db *DB) UpdateTenantTier(ctx context.Context, id string, tier models.Tier) error {
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	return requireRow(db.conn.ExecContext(ctx, `UPDATE tenants SET tier = ? WHERE id = ?`, string(tier), id))
}

func (db *DB) SetTenantCustomer(ctx context.Context, id, customerID string) error {
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	return requireRow(db.conn.ExecContext(ctx, `UPDATE tenants SET payment_customer_id = ? WHERE id = ?`, customerID, id))
}

const userColumns = `id, tenant_id, email, phone, role, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var (
		u     models.User
		phone sql.NullString
		role  string
	)
	if err := row.Scan(&u.ID, &u.TenantID, &u.Email, &phone, &role, &u.CreatedAt); err != nil {
		return nil, mapError(err)
	}
	u.Phone = phone.String
	u.Role = models.Role(role)
	return &u, nil
}

func (db *DB) GetUser(ctx context.Context, id string) (*models.User, error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	return scanUser(db.conn.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}

func (db *DB) ListTenantUsers(ctx context.Context, tenantID string) ([]models.User, error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE tenant_id = ? ORDER BY created_at`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer closeQuietly(rows)

	users := make([]models.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func (db *DB) UpdateUserPhone(ctx context.Context, id, phone string) error {
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	return requireRow(db.conn.ExecContext(ctx, `UPDATE users SET phone = ? WHERE id = ?`, nullString(phone), id))
}
