// Voltbridge - EV Telemetry Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/voltbridge

// Package auth authenticates API callers.
//
// Two credential families are accepted side by side:
//
//   - Identity tokens from the identity provider, either HS256 access tokens
//     (JWTAuthenticator) or OIDC ID tokens verified against the provider's
//     JWKS (OIDCAuthenticator).
//   - Static API keys (APIKeyAuthenticator) for home automation and other
//     integrations. Keys look like vb_key_<base64url(id)>_<secret> and are
//     stored as bcrypt(sha256(key)).
//
// MultiAuthenticator tries them in priority order. Only ErrNoCredentials and
// ErrAuthenticatorUnavailable fall through to the next authenticator; a
// presented but bad credential fails the request.
//
// The Resolver then attaches the tenant, role and tier. First-time identity
// users get a free-tier tenant with themselves as owner.
package auth
