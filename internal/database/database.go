// Voltbridge - EV Telemetry Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/voltbridge

// Package database implements store.Store on DuckDB.
//
// All statements are parameterized with ? placeholders. Timestamps are
// written in UTC. Unique violations come back as store.ErrConflict and
// missing rows as store.ErrNotFound.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/tomtom215/voltbridge/internal/config"
	"github.com/tomtom215/voltbridge/internal/logging"
	"github.com/tomtom215/voltbridge/internal/store"
)

const defaultQueryTimeout = 10 * time.Second

// DB wraps the DuckDB connection pool.
type DB struct {
	conn *sql.DB
	cfg  *config.DatabaseConfig
}

var _ store.Store = (*DB)(nil)

// New opens (or creates) the database file and applies the schema.
func New(cfg *config.DatabaseConfig) (*DB, error) {
	if dir := filepath.Dir(cfg.Path); cfg.Path != ":memory:" && dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}

	dsn := cfg.Path
	if dsn == ":memory:" {
		dsn = ""
	}
	var params []string
	if cfg.Threads > 0 {
		params = append(params, fmt.Sprintf("threads=%d", cfg.Threads))
	}
	if cfg.MaxMemory != "" {
		params = append(params, "max_memory="+cfg.MaxMemory)
	}
	if len(params) > 0 {
		dsn += "?" + strings.Join(params, "&")
	}

	conn, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db := &DB{conn: conn, cfg: cfg}
	if err := db.createTables(context.Background()); err != nil {
		closeQuietly(conn)
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logging.Info().Str("path", cfg.Path).Msg("Database opened")
	return db, nil
}

// NewFromConn wraps an existing connection and applies the schema.
func NewFromConn(conn *sql.DB) (*DB, error) {
	db := &DB{conn: conn, cfg: &config.DatabaseConfig{Backend: "duckdb", Path: ":memory:"}}
	if err := db.createTables(context.Background()); err != nil {
		return nil, err
	}
	return db, nil
}

func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := db.conn.ExecContext(ctx, "CHECKPOINT"); err != nil {
		logging.Warn().Err(err).Msg("Failed to checkpoint database before close")
	}
	return db.conn.Close()
}

func (db *DB) Ping(ctx context.Context) error {
	if db.conn == nil {
		return fmt.Errorf("database connection is nil")
	}
	return db.conn.PingContext(ctx)
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS tenants (
		id VARCHAR PRIMARY KEY,
		name VARCHAR NOT NULL,
		tier VARCHAR NOT NULL,
		payment_customer_id VARCHAR,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		id VARCHAR PRIMARY KEY,
		tenant_id VARCHAR NOT NULL,
		email VARCHAR NOT NULL,
		phone VARCHAR,
		role VARCHAR NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_users_tenant ON users(tenant_id)`,
	`CREATE TABLE IF NOT EXISTS vehicles (
		id VARCHAR PRIMARY KEY,
		tenant_id VARCHAR NOT NULL,
		vendor_vehicle_id VARCHAR NOT NULL UNIQUE,
		display_name VARCHAR NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_vehicles_tenant ON vehicles(tenant_id)`,
	`CREATE TABLE IF NOT EXISTS api_keys (
		id VARCHAR PRIMARY KEY,
		tenant_id VARCHAR NOT NULL,
		created_by VARCHAR NOT NULL,
		name VARCHAR NOT NULL,
		token_prefix VARCHAR NOT NULL,
		token_hash VARCHAR NOT NULL,
		scopes VARCHAR NOT NULL,
		expires_at TIMESTAMP,
		last_used_at TIMESTAMP,
		last_used_ip VARCHAR,
		use_count INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL,
		revoked_at TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_api_keys_tenant ON api_keys(tenant_id)`,
	`CREATE TABLE IF NOT EXISTS subscriptions (
		tenant_id VARCHAR PRIMARY KEY,
		provider_subscription_id VARCHAR,
		provider_customer_id VARCHAR,
		price_id VARCHAR,
		tier VARCHAR NOT NULL,
		status VARCHAR NOT NULL,
		current_period_end TIMESTAMP,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS webhook_events (
		provider VARCHAR NOT NULL,
		event_id VARCHAR NOT NULL,
		received_at TIMESTAMP NOT NULL,
		PRIMARY KEY (provider, event_id)
	)`,
	`CREATE TABLE IF NOT EXISTS alert_preferences (
		user_id VARCHAR PRIMARY KEY,
		sms_enabled BOOLEAN NOT NULL,
		email_enabled BOOLEAN NOT NULL,
		low_battery_threshold INTEGER NOT NULL,
		charging_complete BOOLEAN NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
}

func (db *DB) createTables(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement: %w", err)
		}
	}
	return nil
}

// ensureContext bounds queries whose caller did not set a deadline.
func ensureContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); !ok {
		return context.WithTimeout(ctx, defaultQueryTimeout)
	}
	return ctx, func() {}
}

// mapError converts driver errors into store sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "primary key constraint") {
		return fmt.Errorf("%w: %v", store.ErrConflict, err)
	}
	return err
}

// requireRow turns a zero-row update into ErrNotFound.
func requireRow(res sql.Result, err error) error {
	if err != nil {
		return mapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

func closeQuietly(c io.Closer) {
	if c != nil {
		_ = c.Close()
	}
}
