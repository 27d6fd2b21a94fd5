// Voltbridge - EV Telemetry Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/voltbridge

// @title Voltbridge API
// @version 1.0
// @description Multi-tenant broker for EV telemetry, vehicle commands, billing and alerts.
// @description
// @description ## Authentication
// @description
// @description Dashboard users send an OIDC ID token or HS256 access token as `Authorization: Bearer <token>`.
// @description Integrations send an API key (`vb_key_...`) as `X-API-Key` or as a bearer token.
// @description API keys carry scopes and cannot manage keys, billing or alerts.
// @description
// @description ## Rate Limiting
// @description
// @description Requests are limited per tenant by subscription tier.
// @description Headers `X-RateLimit-Limit`, `X-RateLimit-Remaining` and `X-RateLimit-Reset` are included.
// @description
// @description ## Error Responses
// @description
// @description ```json
// @description {
// @description   "success": false,
// @description   "error": {"code": "NOT_FOUND", "message": "vehicle not found", "request_id": "..."}
// @description }
// @description ```
//
// @contact.name GitHub Repository
// @contact.url https://github.com/tomtom215/voltbridge/issues
//
// @license.name AGPL-3.0-or-later
// @license.url https://www.gnu.org/licenses/agpl-3.0.html
//
// @BasePath /api/v1
// @schemes http https
//
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Bearer token: OIDC ID token, HS256 JWT or API key.
//
// @securityDefinitions.apikey APIKeyAuth
// @in header
// @name X-API-Key
//
// @tag.name Health
// @tag.description Liveness, readiness and component health
//
// @tag.name Webhooks
// @tag.description Signed deliveries from the telemetry vendor and the payment provider
//
// @tag.name Vehicles
// @tag.description Vehicle registration, state and commands
//
// @tag.name Realtime
// @tag.description WebSocket stream of vehicle state updates
package main
