// Voltbridge - EV Telemetry Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/voltbridge

// Package testinfra starts real dependencies in containers for integration
// tests. Everything here is built only with the integration tag:
//
//	go test -tags integration ./internal/testinfra/...
//
// # NATS Container
//
//	nats, err := testinfra.NewNATSContainer(ctx)
//	if err != nil {
//	    t.Fatal(err)
//	}
//	defer testinfra.CleanupContainer(t, ctx, nats.Container)
//
//	bus, err := events.NewBus(config.EventsConfig{Backend: events.BackendNATS, NATSURL: nats.URL}, nil)
//
// Tests skip when Docker is not available. The first run pulls the image.
package testinfra
