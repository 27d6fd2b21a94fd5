// Voltbridge - EV Telemetry Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/voltbridge

// Package cache provides the two in-process caches the broker relies on.
//
// TTL is a typed key/value cache with lazy and periodic expiry. It backs the
// tenant tier lookups made on every authenticated request and the per-tenant
// vehicle list.
//
// Deduper is a bounded LRU of recently seen keys. Webhook handlers use it to
// drop redelivered events before they reach the store.
//
// Both are safe for concurrent use.
package cache
