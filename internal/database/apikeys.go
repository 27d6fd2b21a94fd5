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

	"github.com/goccy/go-json"

	"github.com/tomtom215/voltbridge/internal/models"
)

const apiKeyColumns = `id, tenant_id, created_by, name, token_prefix, token_hash, scopes,
	expires_at, last_used_at, last_used_ip, use_count, created_at, revoked_at`

func scanAPIKey(row rowScanner) (*models.APIKey, error) {
	var (
		k                            models.APIKey
		scopes                       string
		expires, lastUsed, revokedAt sql.NullTime
		lastIP                       sql.NullString
	)
	if err := row.Scan(&k.ID, &k.TenantID, &k.CreatedBy, &k.Name, &k.TokenPrefix, &k.TokenHash, &scopes,
		&expires, &lastUsed, &lastIP, &k.UseCount, &k.CreatedAt, &revokedAt); err != nil {
		return nil, mapError(err)
	}
	if err := json.Unmarshal([]byte(scopes), &k.Scopes); err != nil {
		return nil, fmt.Errorf("failed to decode scopes for key %s: %w", k.ID, err)
	}
	k.ExpiresAt = timePtr(expires)
	k.LastUsedAt = timePtr(lastUsed)
	k.RevokedAt = timePtr(revokedAt)
	k.LastUsedIP = lastIP.String
	return &k, nil
}

func (db *DB) CreateAPIKey(ctx context.Context, k *models.APIKey) error {
	scopes, err := json.Marshal(k.Scopes)
	if err != nil {
		return fmt.Errorf("failed to encode scopes: %w", err)
	}

	ctx, cancel := ensureContext(ctx)
	defer cancel()
	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO api_keys (`+apiKeyColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		k.ID, k.TenantID, k.CreatedBy, k.Name, k.TokenPrefix, k.TokenHash, string(scopes),
		nullTime(k.ExpiresAt), nullTime(k.LastUsedAt), nullString(k.LastUsedIP), k.UseCount,
		k.CreatedAt.UTC(), nullTime(k.RevokedAt))
	if err != nil {
		return fmt.Errorf("failed to insert api key: %w", mapError(err))
	}
	return nil
}

func (db *DB) GetAPIKey(ctx context.Context, id string) (*models.APIKey, error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	return scanAPIKey(db.conn.QueryRowContext(ctx, `SELECT `+apiKeyColumns+` FROM api_keys WHERE id = ?`, id))
}

func (db *DB) ListAPIKeys(ctx context.Context, tenantID string) ([]models.APIKey, error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE tenant_id = ? ORDER BY created_at DESC`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query api keys: %w", err)
	}
	defer closeQuietly(rows)

	keys := make([]models.APIKey, 0)
	for rows.Next() {
		k, err := scanAPIKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, *k)
	}
	return keys, rows.Err()
}

func (db *DB) CountActiveAPIKeys(ctx context.Context, tenantID string, now time.Time) (int, error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	var n int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM api_keys
		 WHERE tenant_id = ? AND revoked_at IS NULL AND (expires_at IS NULL OR expires_at > ?)`,
		tenantID, now.UTC()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count api keys: %w", err)
	}
	return n, nil
}

func (db *DB) RevokeAPIKey(ctx context.Context, tenantID, id string, at time.Time) error {
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	return requireRow(db.conn.ExecContext(ctx,
		`UPDATE api_keys SET revoked_at = ? WHERE id = ? AND tenant_id = ? AND revoked_at IS NULL`,
		at.UTC(), id, tenantID))
}

func (db *DB) RecordAPIKeyUse(ctx context.Context, id, ip string, at time.Time) error {
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	return requireRow(db.conn.ExecContext(ctx,
		`UPDATE api_keys SET last_used_at = ?, last_used_ip = ?, use_count = use_count + 1 WHERE id = ?`,
		at.UTC(), nullString(ip), id))
}
