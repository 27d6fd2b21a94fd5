// Voltbridge - EV Telemetry Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/voltbridge

/*
Package middleware provides the infrastructure middleware shared by every
route: request and correlation IDs, access logging, Prometheus
instrumentation and API security headers.

All middleware uses the chi signature func(http.Handler) http.Handler.
The router installs them in this order:

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.AccessLog(time.Second))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Prometheus)
	r.Use(middleware.SecurityHeaders)

Prometheus labels requests by chi route pattern (for example
/api/v1/vehicles/{id}/state) so vehicle IDs never become label values.
*/
package middleware
