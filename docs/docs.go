// Voltbridge - EV Telemetry Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/voltbridge

// Package docs registers the OpenAPI document served at /swagger/doc.json.
// Regenerate with: swag init -g cmd/server/docs.go -o docs
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {
            "name": "GitHub Repository",
            "url": "https://github.com/tomtom215/voltbridge/issues"
        },
        "license": {
            "name": "AGPL-3.0-or-later",
            "url": "https://www.gnu.org/licenses/agpl-3.0.html"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/health": {
            "get": {"tags": ["Health"], "summary": "System health", "produces": ["application/json"],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/httpresp.Envelope"}}}}
        },
        "/health/live": {
            "get": {"tags": ["Health"], "summary": "Liveness probe",
                "responses": {"200": {"description": "OK"}}}
        },
        "/health/ready": {
            "get": {"tags": ["Health"], "summary": "Readiness probe",
                "responses": {"200": {"description": "OK"}, "503": {"description": "Service Unavailable"}}}
        },
        "/webhooks/telemetry": {
            "post": {"tags": ["Webhooks"], "summary": "Vehicle telemetry webhook",
                "parameters": [
                    {"type": "string", "name": "X-Telemetry-Signature", "in": "header", "required": true},
                    {"name": "event", "in": "body", "required": true, "schema": {"$ref": "#/definitions/telemetry.WebhookEvent"}}
                ],
                "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}, "401": {"description": "Unauthorized"}, "422": {"description": "Unprocessable Entity"}}}
        },
        "/webhooks/payments": {
            "post": {"tags": ["Webhooks"], "summary": "Payment provider webhook",
                "parameters": [{"type": "string", "name": "Payment-Signature", "in": "header", "required": true}],
                "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}, "401": {"description": "Unauthorized"}, "500": {"description": "Internal Server Error"}}}
        },
        "/me": {
            "get": {"security": [{"BearerAuth": []}, {"APIKeyAuth": []}], "tags": ["Account"], "summary": "Current caller",
                "responses": {"200": {"description": "OK"}, "401": {"description": "Unauthorized"}}}
        },
        "/vehicles": {
            "get": {"security": [{"BearerAuth": []}, {"APIKeyAuth": []}], "tags": ["Vehicles"], "summary": "List vehicles",
                "responses": {"200": {"description": "OK"}}},
            "post": {"security": [{"BearerAuth": []}], "tags": ["Vehicles"], "summary": "Register vehicle",
                "parameters": [{"name": "vehicle", "in": "body", "required": true, "schema": {"$ref": "#/definitions/models.RegisterVehicleRequest"}}],
                "responses": {"201": {"description": "Created"}, "409": {"description": "Already registered or quota exceeded"}, "422": {"description": "Unprocessable Entity"}}}
        },
        "/vehicles/{id}": {
            "delete": {"security": [{"BearerAuth": []}], "tags": ["Vehicles"], "summary": "Delete vehicle",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {"204": {"description": "No Content"}, "404": {"description": "Not Found"}}}
        },
        "/vehicles/{id}/state": {
            "get": {"security": [{"BearerAuth": []}, {"APIKeyAuth": []}], "tags": ["Vehicles"], "summary": "Vehicle state",
                "parameters": [
                    {"type": "string", "name": "id", "in": "path", "required": true},
                    {"type": "string", "description": "Go duration, e.g. 30s", "name": "max_age", "in": "query"}
                ],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}, "409": {"description": "Vehicle asleep"}, "502": {"description": "Bad Gateway"}}}
        },
        "/vehicles/{id}/refresh": {
            "post": {"security": [{"BearerAuth": []}, {"APIKeyAuth": []}], "tags": ["Vehicles"], "summary": "Refresh vehicle state",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}, "502": {"description": "Bad Gateway"}}}
        },
        "/vehicles/{id}/commands": {
            "post": {"security": [{"BearerAuth": []}, {"APIKeyAuth": []}], "tags": ["Vehicles"], "summary": "Send vehicle command",
                "parameters": [
                    {"type": "string", "name": "id", "in": "path", "required": true},
                    {"name": "command", "in": "body", "required": true, "schema": {"$ref": "#/definitions/models.VehicleCommandRequest"}}
                ],
                "responses": {"200": {"description": "OK"}, "409": {"description": "Vehicle asleep"}, "422": {"description": "Unprocessable Entity"}, "502": {"description": "Bad Gateway"}}}
        },
        "/keys": {
            "get": {"security": [{"BearerAuth": []}], "tags": ["Keys"], "summary": "List API keys",
                "responses": {"200": {"description": "OK"}}},
            "post": {"security": [{"BearerAuth": []}], "tags": ["Keys"], "summary": "Create API key",
                "parameters": [{"name": "key", "in": "body", "required": true, "schema": {"$ref": "#/definitions/models.CreateAPIKeyRequest"}}],
                "responses": {"201": {"description": "Created"}, "409": {"description": "Quota exceeded"}, "422": {"description": "Unprocessable Entity"}}}
        },
        "/keys/{id}": {
            "delete": {"security": [{"BearerAuth": []}], "tags": ["Keys"], "summary": "Revoke API key",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {"204": {"description": "No Content"}, "404": {"description": "Not Found"}}}
        },
        "/billing/subscription": {
            "get": {"security": [{"BearerAuth": []}], "tags": ["Billing"], "summary": "Current subscription",
                "responses": {"200": {"description": "OK"}}}
        },
        "/billing/checkout": {
            "post": {"security": [{"BearerAuth": []}], "tags": ["Billing"], "summary": "Start checkout",
                "parameters": [{"name": "checkout", "in": "body", "required": true, "schema": {"$ref": "#/definitions/models.CheckoutRequest"}}],
                "responses": {"201": {"description": "Created"}, "422": {"description": "Unprocessable Entity"}, "502": {"description": "Bad Gateway"}, "503": {"description": "Service Unavailable"}}}
        },
        "/alerts/preferences": {
            "get": {"security": [{"BearerAuth": []}], "tags": ["Alerts"], "summary": "Get alert preferences",
                "responses": {"200": {"description": "OK"}}},
            "put": {"security": [{"BearerAuth": []}], "tags": ["Alerts"], "summary": "Update alert preferences",
                "parameters": [{"name": "prefs", "in": "body", "required": true, "schema": {"$ref": "#/definitions/models.UpdateAlertPreferencesRequest"}}],
                "responses": {"200": {"description": "OK"}, "422": {"description": "Unprocessable Entity"}}}
        },
        "/stream": {
            "get": {"security": [{"BearerAuth": []}, {"APIKeyAuth": []}], "tags": ["Realtime"], "summary": "Vehicle state websocket",
                "responses": {"101": {"description": "Switching Protocols"}, "401": {"description": "Unauthorized"}, "403": {"description": "Forbidden"}}}
        }
    },
    "definitions": {
        "httpresp.Envelope": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "data": {},
                "meta": {"type": "object"},
                "error": {
                    "type": "object",
                    "properties": {
                        "code": {"type": "string"},
                        "message": {"type": "string"},
                        "details": {},
                        "request_id": {"type": "string"}
                    }
                }
            }
        },
        "telemetry.WebhookEvent": {
            "type": "object",
            "required": ["event_id", "event_type", "vehicle_id", "timestamp"],
            "properties": {
                "event_id": {"type": "string"},
                "event_type": {"type": "string", "enum": ["vehicle.state", "vehicle.charging_complete"]},
                "vehicle_id": {"type": "string"},
                "timestamp": {"type": "string", "format": "date-time"},
                "data": {
                    "type": "object",
                    "properties": {
                        "battery_level": {"type": "integer"},
                        "range_km": {"type": "number"},
                        "charging_state": {"type": "string"},
                        "plugged_in": {"type": "boolean"},
                        "locked": {"type": "boolean"},
                        "odometer_km": {"type": "number"},
                        "latitude": {"type": "number"},
                        "longitude": {"type": "number"}
                    }
                }
            }
        },
        "models.RegisterVehicleRequest": {
            "type": "object",
            "required": ["vendor_vehicle_id", "display_name"],
            "properties": {"vendor_vehicle_id": {"type": "string"}, "display_name": {"type": "string"}}
        },
        "models.VehicleCommandRequest": {
            "type": "object",
            "required": ["command"],
            "properties": {
                "command": {"type": "string", "enum": ["wake", "charge_start", "charge_stop", "lock", "unlock", "climate_on", "climate_off", "set_charge_limit"]},
                "percent": {"type": "integer", "minimum": 50, "maximum": 100}
            }
        },
        "models.CreateAPIKeyRequest": {
            "type": "object",
            "required": ["name", "scopes"],
            "properties": {
                "name": {"type": "string"},
                "scopes": {"type": "array", "items": {"type": "string", "enum": ["vehicles:read", "vehicles:command", "state:stream"]}},
                "expires_in_days": {"type": "integer", "minimum": 1, "maximum": 365}
            }
        },
        "models.CheckoutRequest": {
            "type": "object",
            "required": ["tier"],
            "properties": {"tier": {"type": "string", "enum": ["pro", "fleet"]}}
        },
        "models.UpdateAlertPreferencesRequest": {
            "type": "object",
            "properties": {
                "phone": {"type": "string"},
                "sms_enabled": {"type": "boolean"},
                "email_enabled": {"type": "boolean"},
                "low_battery_threshold": {"type": "integer", "minimum": 0, "maximum": 100},
                "charging_complete": {"type": "boolean"}
            }
        }
    },
    "securityDefinitions": {
        "APIKeyAuth": {"type": "apiKey", "name": "X-API-Key", "in": "header"},
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{"http", "https"},
	Title:            "Voltbridge API",
	Description:      "Multi-tenant broker for EV telemetry, vehicle commands, billing and alerts.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
