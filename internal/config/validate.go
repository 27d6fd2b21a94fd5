// Voltbridge - EV Telemetry Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/voltbridge

package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/tomtom215/voltbridge/internal/logging"
	"github.com/tomtom215/voltbridge/internal/models"
)

// Validate checks the configuration and returns the first problem found,
// naming the environment variable that controls it.
func (c *Config) Validate() error {
	validators := []func() error{
		c.validateServer,
		c.validateDatabase,
		c.validateSecurity,
		c.validateTiers,
		c.validateTelemetry,
		c.validatePayments,
		c.validateNotify,
		c.validateEvents,
		c.validateLogging,
	}
	for _, v := range validators {
		if err := v(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("SHUTDOWN_TIMEOUT must be positive")
	}
	return nil
}

func (c *Config) validateDatabase() error {
	switch c.Database.Backend {
	case "duckdb":
		if c.Database.Path == "" {
			return fmt.Errorf("DUCKDB_PATH is required when DATABASE_BACKEND=duckdb")
		}
	case "memory":
		if c.IsProduction() {
			return fmt.Errorf("DATABASE_BACKEND=memory is not allowed when ENVIRONMENT=production")
		}
	default:
		return fmt.Errorf("DATABASE_BACKEND must be duckdb or memory, got %q", c.Database.Backend)
	}
	return nil
}

func (c *Config) validateSecurity() error {
	s := c.Security
	if s.JWTSecret == "" && !s.OIDC.Enabled {
		return fmt.Errorf("JWT_SECRET is required unless OIDC_ENABLED=true")
	}
	if s.JWTSecret != "" && len(s.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters")
	}
	if s.OIDC.Enabled {
		if err := validateHTTPURL(s.OIDC.IssuerURL, "OIDC_ISSUER_URL"); err != nil {
			return err
		}
		if s.OIDC.ClientID == "" {
			return fmt.Errorf("OIDC_CLIENT_ID is required when OIDC_ENABLED=true")
		}
	}
	if s.APIKeyDefaultTTL < 0 {
		return fmt.Errorf("API_KEY_DEFAULT_TTL must not be negative")
	}
	if s.WebhookRateLimit <= 0 {
		return fmt.Errorf("WEBHOOK_RATE_LIMIT must be positive")
	}
	for _, origin := range s.CORSOrigins {
		if origin == "*" {
			if c.IsProduction() {
				return fmt.Errorf("CORS_ORIGINS must not contain * when ENVIRONMENT=production")
			}
			logging.Warn().Msg("CORS_ORIGINS contains *, any origin may call the API")
		}
	}
	return nil
}

func (c *Config) validateTiers() error {
	for _, tier := range models.Tiers() {
		l := c.Tiers.For(tier)
		name := strings.ToUpper(string(tier))
		if l.RequestsPerMinute <= 0 {
			return fmt.Errorf("TIER_%s_REQUESTS_PER_MINUTE must be positive", name)
		}
		if l.MaxVehicles <= 0 {
			return fmt.Errorf("TIER_%s_MAX_VEHICLES must be positive", name)
		}
		if l.MaxAPIKeys < 0 {
			return fmt.Errorf("TIER_%s_MAX_API_KEYS must not be negative", name)
		}
	}
	return nil
}

func (c *Config) validateTelemetry() error {
	t := c.Telemetry
	if !t.Enabled {
		return nil
	}
	if err := validateHTTPURL(t.BaseURL, "TELEMETRY_BASE_URL"); err != nil {
		return fmt.Errorf("%w (required when TELEMETRY_ENABLED=true)", err)
	}
	if t.WebhookSecret == "" {
		return fmt.Errorf("TELEMETRY_WEBHOOK_SECRET is required when TELEMETRY_ENABLED=true")
	}
	if t.PollRate <= 0 || t.PollBurst <= 0 {
		return fmt.Errorf("TELEMETRY_POLL_RATE and TELEMETRY_POLL_BURST must be positive")
	}
	if t.DefaultMaxStateAge <= 0 {
		return fmt.Errorf("TELEMETRY_DEFAULT_MAX_STATE_AGE must be positive")
	}
	return nil
}

func (c *Config) validatePayments() error {
	p := c.Payments
	if !p.Enabled {
		return nil
	}
	if err := validateHTTPURL(p.APIBaseURL, "PAYMENTS_API_BASE_URL"); err != nil {
		return err
	}
	if p.SecretKey == "" {
		return fmt.Errorf("PAYMENTS_SECRET_KEY is required when PAYMENTS_ENABLED=true")
	}
	if p.WebhookSecret == "" {
		return fmt.Errorf("PAYMENTS_WEBHOOK_SECRET is required when PAYMENTS_ENABLED=true")
	}
	if p.SignatureTolerance <= 0 {
		return fmt.Errorf("PAYMENTS_SIGNATURE_TOLERANCE must be positive")
	}
	for _, entry := range p.PriceTiers {
		_, tier, ok := strings.Cut(entry, ":")
		if !ok || !models.Tier(strings.TrimSpace(tier)).Valid() {
			return fmt.Errorf("PAYMENTS_PRICE_TIERS entry %q must look like price_id:tier", entry)
		}
	}
	return nil
}

func (c *Config) validateNotify() error {
	n := c.Notify
	if n.Twilio.Enabled && (n.Twilio.AccountSID == "" || n.Twilio.AuthToken == "" || n.Twilio.FromNumber == "") {
		return fmt.Errorf("TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and TWILIO_FROM_NUMBER are required when TWILIO_ENABLED=true")
	}
	if n.Brevo.Enabled && (n.Brevo.APIKey == "" || n.Brevo.SenderEmail == "") {
		return fmt.Errorf("BREVO_API_KEY and BREVO_SENDER_EMAIL are required when BREVO_ENABLED=true")
	}
	if n.DefaultLowBatteryThreshold < 0 || n.DefaultLowBatteryThreshold > 100 {
		return fmt.Errorf("DEFAULT_LOW_BATTERY_THRESHOLD must be between 0 and 100")
	}
	return nil
}

func (c *Config) validateEvents() error {
	switch c.Events.Backend {
	case "memory":
	case "nats":
		if c.Events.NATSURL == "" {
			return fmt.Errorf("NATS_URL is required when EVENTS_BACKEND=nats")
		}
	case "embedded":
		if c.Events.EmbeddedPort < 0 || c.Events.EmbeddedPort > 65535 {
			return fmt.Errorf("NATS_EMBEDDED_PORT is out of range")
		}
	default:
		return fmt.Errorf("EVENTS_BACKEND must be memory, nats or embedded, got %q", c.Events.Backend)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal", "panic", "disabled":
	default:
		return fmt.Errorf("LOG_LEVEL %q is not a valid level", c.Logging.Level)
	}
	if f := strings.ToLower(c.Logging.Format); f != "json" && f != "console" {
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.Logging.Format)
	}
	return nil
}

func validateHTTPURL(raw, envName string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", envName)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is invalid: %w", envName, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must use http or https", envName)
	}
	if u.Host == "" {
		return fmt.Errorf("%s must include a host", envName)
	}
	return nil
}
