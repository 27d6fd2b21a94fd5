// Voltbridge - EV Telemetry Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/voltbridge

// Package services adapts broker components to suture.Service. Each
// adapter depends on a small interface rather than the component's
// package, so the supervisor layer has no import cycles with the
// components it runs.
package services
