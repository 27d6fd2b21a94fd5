// Voltbridge - EV Telemetry Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/voltbridge

// Package events carries domain events between components over Watermill.
//
// Three backends share one API:
//
//   - memory: Watermill gochannel, in-process only
//   - nats: core NATS at an external URL
//   - embedded: an in-process nats-server, then the nats backend against it
//
// Published topics:
//
//	vehicle.state.updated   StateUpdated, after an accepted state merge
//	tenant.tier_changed     models.TierChange, after billing changes a tier
//
// Consumers register on a Router, which adds panic recovery, retry with
// backoff, correlation ID propagation and a poison topic for messages that
// still fail after all retries.
package events
