// Voltbridge - EV Telemetry Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/voltbridge

/*
Package api is the REST surface of the broker.

Routing uses chi. The global stack is request ID, real IP, access log,
panic recovery, Prometheus instrumentation, security headers and CORS.
Routes fall into three groups:

  - Public: health probes, /metrics and /swagger/*.
  - Webhooks: vendor telemetry and payment provider callbacks. These are
    authenticated by request signature and rate limited per source IP.
  - Authenticated: everything else. Requests pass through authentication,
    the per-tier rate limiter and the casbin route authorizer, in that order.

Every response uses the envelope from internal/httpresp.
*/
package api
