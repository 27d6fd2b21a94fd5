// Voltbridge - EV Telemetry Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/voltbridge

// Package main is the entry point for the Voltbridge server.
//
// Voltbridge sits between EV owners and a vehicle telemetry vendor. It
// ingests signed vendor webhooks, caches the latest state per vehicle,
// forwards commands, bills tenants through a hosted payment provider and
// sends SMS or email alerts on low battery and charging complete.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: defaults, optional config.yaml, environment (Koanf v2)
//  2. Store: DuckDB, or the in-memory store for development
//  3. Event bus: in-process channels, external NATS or embedded NATS
//  4. State cache: Badger snapshots restored into memory
//  5. Vendor clients: telemetry, payments, Twilio and Brevo
//  6. Authentication: API keys, OIDC and HS256 JWT behind one chain
//  7. HTTP: chi router, Casbin authorization, tier rate limits
//  8. Supervisor tree: event router, websocket hub, snapshot GC, HTTP server
//
// # Configuration
//
// Minimal development setup:
//
//	export JWT_SECRET=$(openssl rand -base64 32)
//	export DATABASE_BACKEND=memory
//	./voltbridge
//
// Production with the vendor and payments enabled:
//
//	export ENVIRONMENT=production
//	export DUCKDB_PATH=/data/voltbridge.duckdb
//	export STATE_CACHE_PATH=/data/state
//	export TELEMETRY_ENABLED=true
//	export TELEMETRY_BASE_URL=https://fleet-api.example.com
//	export TELEMETRY_API_TOKEN=...
//	export TELEMETRY_WEBHOOK_SECRET=...
//	export PAYMENTS_ENABLED=true
//	export PAYMENTS_SECRET_KEY=sk_live_...
//	export PAYMENTS_WEBHOOK_SECRET=whsec_...
//	export PAYMENTS_PRICE_TIERS=price_pro:pro,price_fleet:fleet
//	./voltbridge
//
// # Signal Handling
//
// SIGINT and SIGTERM cancel the root context. The supervisor stops the HTTP
// server first (draining in-flight requests for SHUTDOWN_TIMEOUT), then the
// messaging services, then the data services; stores are closed last.
package main
