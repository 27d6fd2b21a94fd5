// Voltbridge - EV Telemetry Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/voltbridge

/*
Package metrics defines the Prometheus collectors exported on /metrics.

Collectors are registered on the default registry through promauto at
package init, so importing the package is enough to expose them.

# Families

  - api_*: request counts, latency and in-flight requests by chi route pattern
  - auth_*: authentication attempts by method and outcome
  - ratelimit_*: rejected requests by tier
  - webhook_*: inbound webhooks by provider and outcome
  - vehicle_state_*: reconciliation merges by source and outcome
  - vendor_*: outbound provider calls and circuit breaker state
  - notify_*: SMS and email delivery attempts
  - events_*: event bus traffic
  - websocket_*: connected stream clients

Labels never carry tenant or vehicle IDs.
*/
package metrics
