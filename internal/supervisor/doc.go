// Voltbridge - EV Telemetry Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/voltbridge

/*
Package supervisor runs the long-lived parts of the broker under a suture
supervisor tree.

	voltbridge (root)
	├── data-layer       state snapshot GC
	├── messaging-layer  event router, websocket hub
	└── api-layer        HTTP server

A crashing service is restarted with backoff inside its own layer; the
other layers keep running. Supervisor events are logged through
sutureslog into the zerolog-backed slog handler from internal/logging.

Service adapters live in the services subpackage.
*/
package supervisor
