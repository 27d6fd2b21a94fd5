// Voltbridge - EV Telemetry Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/voltbridge

// Package authz enforces role-based route permissions with Casbin.
//
// Authentication (internal/auth) establishes who is calling and which
// roles they hold inside their tenant. This package answers whether any of
// those roles may invoke a route:
//
//	Request -> auth.Middleware -> authz.Middleware -> Handler
//
// The model matches objects with keyMatch2 and actions with regexMatch:
//
//	m = g(r.sub, p.sub) && keyMatch2(r.obj, p.obj) && regexMatch(r.act, p.act)
//
// Roles form a hierarchy through grouping rules. admin inherits owner and
// owner inherits member. integration is the role of static API keys and is
// kept separate so a key never gains owner routes through inheritance.
//
// Both model.conf and policy.csv are embedded. EnforcerConfig can point at
// files on disk to override either one.
//
// Tenant isolation is not a concern of this package. Handlers scope every
// store lookup by the subject's tenant ID.
package authz
