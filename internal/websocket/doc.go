// Voltbridge - EV Telemetry Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/voltbridge

/*
Package websocket streams vehicle state to connected clients.

The Hub keeps clients grouped by tenant, so a state update reaches only
the sockets of the tenant that owns the vehicle. Every message is a JSON
envelope:

	{"type": "vehicle_state", "data": {...}}

Clients may send {"type":"ping"} and receive {"type":"pong"}. The server
also sends protocol pings every 54 seconds and closes connections that
miss a pong for 60 seconds.

A client whose send buffer is full when a broadcast arrives is
disconnected rather than allowed to stall the hub; it can reconnect and
fetch current state over REST.

The hub runs as a supervised service (RunWithContext) and the Consumer
feeds it from the vehicle.state.updated topic of the event bus.
*/
package websocket
