// Voltbridge - EV Telemetry Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/voltbridge

// Package config loads Voltbridge configuration from defaults, an optional
// YAML file and environment variables, in that order of precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/tomtom215/voltbridge/internal/models"
)

// Config is the root configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Logging   LoggingConfig   `koanf:"logging"`
	Security  SecurityConfig  `koanf:"security"`
	Tiers     TiersConfig     `koanf:"tiers"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Payments  PaymentsConfig  `koanf:"payments"`
	Notify    NotifyConfig    `koanf:"notify"`
	Events    EventsConfig    `koanf:"events"`
	Cache     CacheConfig     `koanf:"cache"`
}

type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	Environment     string        `koanf:"environment"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	MetricsEnabled  bool          `koanf:"metrics_enabled"`
	SwaggerEnabled  bool          `koanf:"swagger_enabled"`
}

// Addr returns host:port for http.Server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type DatabaseConfig struct {
	// Backend is duckdb or memory. memory loses all data on restart.
	Backend   string `koanf:"backend"`
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads"`
}

type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// SecurityConfig covers both bearer schemes, API keys and HTTP hardening.
type SecurityConfig struct {
	// JWTSecret verifies HS256 access tokens issued by the identity provider.
	JWTSecret   string `koanf:"jwt_secret"`
	JWTAudience string `koanf:"jwt_audience"`
	JWTIssuer   string `koanf:"jwt_issuer"`

	OIDC OIDCConfig `koanf:"oidc"`

	APIKeysEnabled   bool          `koanf:"api_keys_enabled"`
	APIKeyDefaultTTL time.Duration `koanf:"api_key_default_ttl"`

	CORSOrigins    []string `koanf:"cors_origins"`
	TrustedProxies []string `koanf:"trusted_proxies"`

	// WebhookRateLimit is requests per minute per source IP on webhook routes.
	WebhookRateLimit int `koanf:"webhook_rate_limit"`
}

type OIDCConfig struct {
	Enabled      bool     `koanf:"enabled"`
	IssuerURL    string   `koanf:"issuer_url"`
	ClientID     string   `koanf:"client_id"`
	ClientSecret string   `koanf:"client_secret"`
	RedirectURL  string   `koanf:"redirect_url"`
	Scopes       []string `koanf:"scopes"`
}

// TierLimits are the budgets attached to one subscription tier.
type TierLimits struct {
	RequestsPerMinute int `koanf:"requests_per_minute"`
	MaxVehicles       int `koanf:"max_vehicles"`
	MaxAPIKeys        int `koanf:"max_api_keys"`
}

type TiersConfig struct {
	Free  TierLimits `koanf:"free"`
	Pro   TierLimits `koanf:"pro"`
	Fleet TierLimits `koanf:"fleet"`
}

// For returns the limits of tier. Unknown tiers get the free limits.
func (t TiersConfig) For(tier models.Tier) TierLimits {
	switch tier {
	case models.TierPro:
		return t.Pro
	case models.TierFleet:
		return t.Fleet
	default:
		return t.Free
	}
}

type TelemetryConfig struct {
	Enabled        bool          `koanf:"enabled"`
	BaseURL        string        `koanf:"base_url"`
	APIToken       string        `koanf:"api_token"`
	WebhookSecret  string        `koanf:"webhook_secret"`
	RequestTimeout time.Duration `koanf:"request_timeout"`

	// PollRate and PollBurst pace outbound vendor calls across all tenants.
	PollRate  float64 `koanf:"poll_rate"`
	PollBurst int     `koanf:"poll_burst"`

	DefaultMaxStateAge time.Duration `koanf:"default_max_state_age"`
	MaxClockSkew       time.Duration `koanf:"max_clock_skew"`
}

type PaymentsConfig struct {
	Enabled            bool          `koanf:"enabled"`
	APIBaseURL         string        `koanf:"api_base_url"`
	SecretKey          string        `koanf:"secret_key"`
	WebhookSecret      string        `koanf:"webhook_secret"`
	SignatureTolerance time.Duration `koanf:"signature_tolerance"`

	// PriceTiers maps provider price IDs to tiers as "price_id:tier" entries.
	PriceTiers []string `koanf:"price_tiers"`

	CheckoutSuccessURL string `koanf:"checkout_success_url"`
	CheckoutCancelURL  string `koanf:"checkout_cancel_url"`
}

// PriceTierMap parses PriceTiers. Malformed entries are reported by Validate.
func (p PaymentsConfig) PriceTierMap() map[string]models.Tier {
	m := make(map[string]models.Tier, len(p.PriceTiers))
	for _, entry := range p.PriceTiers {
		price, tier, ok := strings.Cut(entry, ":")
		if !ok {
			continue
		}
		m[strings.TrimSpace(price)] = models.Tier(strings.TrimSpace(tier))
	}
	return m
}

type NotifyConfig struct {
	Twilio TwilioConfig `koanf:"twilio"`
	Brevo  BrevoConfig  `koanf:"brevo"`

	// DefaultLowBatteryThreshold applies to users without saved preferences.
	DefaultLowBatteryThreshold int `koanf:"default_low_battery_threshold"`
}

type TwilioConfig struct {
	Enabled    bool   `koanf:"enabled"`
	BaseURL    string `koanf:"base_url"`
	AccountSID string `koanf:"account_sid"`
	AuthToken  string `koanf:"auth_token"`
	FromNumber string `koanf:"from_number"`
}

type BrevoConfig struct {
	Enabled     bool   `koanf:"enabled"`
	BaseURL     string `koanf:"base_url"`
	APIKey      string `koanf:"api_key"`
	SenderEmail string `koanf:"sender_email"`
	SenderName  string `koanf:"sender_name"`
}

type EventsConfig struct {
	// Backend is memory, nats or embedded.
	Backend              string        `koanf:"backend"`
	NATSURL              string        `koanf:"nats_url"`
	EmbeddedHost         string        `koanf:"embedded_host"`
	EmbeddedPort         int           `koanf:"embedded_port"`
	RetryMaxRetries      int           `koanf:"retry_max_retries"`
	RetryInitialInterval time.Duration `koanf:"retry_initial_interval"`
}

type CacheConfig struct {
	// StatePath is the Badger directory for vehicle state snapshots. Empty
	// keeps state in memory only.
	StatePath        string        `koanf:"state_path"`
	TierTTL          time.Duration `koanf:"tier_ttl"`
	WebhookDedupTTL  time.Duration `koanf:"webhook_dedup_ttl"`
	WebhookDedupSize int           `koanf:"webhook_dedup_size"`
	VehicleListTTL   time.Duration `koanf:"vehicle_list_ttl"`
}

// IsProduction reports whether the server runs with production hardening.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Server.Environment, "production")
}
