// Voltbridge - EV Telemetry Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/voltbridge

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths are searched in order when CONFIG_PATH is unset.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/voltbridge/config.yaml",
}

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			Environment:     "development",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			MetricsEnabled:  true,
			SwaggerEnabled:  true,
		},
		Database: DatabaseConfig{
			Backend:   "duckdb",
			Path:      "/data/voltbridge.duckdb",
			MaxMemory: "512MB",
			Threads:   2,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Security: SecurityConfig{
			JWTAudience:      "authenticated",
			APIKeysEnabled:   true,
			APIKeyDefaultTTL: 0,
			CORSOrigins:      []string{},
			TrustedProxies:   []string{},
			WebhookRateLimit: 600,
			OIDC: OIDCConfig{
				Scopes: []string{"openid", "email", "profile"},
			},
		},
		Tiers: TiersConfig{
			Free:  TierLimits{RequestsPerMinute: 60, MaxVehicles: 1, MaxAPIKeys: 1},
			Pro:   TierLimits{RequestsPerMinute: 600, MaxVehicles: 5, MaxAPIKeys: 10},
			Fleet: TierLimits{RequestsPerMinute: 6000, MaxVehicles: 200, MaxAPIKeys: 50},
		},
		Telemetry: TelemetryConfig{
			Enabled:            false,
			RequestTimeout:     30 * time.Second,
			PollRate:           5,
			PollBurst:          10,
			DefaultMaxStateAge: 60 * time.Second,
			MaxClockSkew:       30 * time.Second,
		},
		Payments: PaymentsConfig{
			APIBaseURL:         "https://api.stripe.com",
			SignatureTolerance: 5 * time.Minute,
			PriceTiers:         []string{},
		},
		Notify: NotifyConfig{
			Twilio:                     TwilioConfig{BaseURL: "https://api.twilio.com"},
			Brevo:                      BrevoConfig{BaseURL: "https://api.brevo.com", SenderName: "Voltbridge"},
			DefaultLowBatteryThreshold: 20,
		},
		Events: EventsConfig{
			Backend:              "memory",
			NATSURL:              "nats://127.0.0.1:4222",
			EmbeddedHost:         "127.0.0.1",
			EmbeddedPort:         4222,
			RetryMaxRetries:      3,
			RetryInitialInterval: 200 * time.Millisecond,
		},
		Cache: CacheConfig{
			TierTTL:          5 * time.Minute,
			WebhookDedupTTL:  24 * time.Hour,
			WebhookDedupSize: 10000,
			VehicleListTTL:   5 * time.Minute,
		},
	}
}

// Load builds the configuration: struct defaults, then the config file if
// one is found, then environment variables. The result is validated.
func Load() (*Config, error) {
	cfg, err := load(findConfigFile())
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// sliceConfigPaths arrive from the environment as comma-separated strings.
var sliceConfigPaths = []string{
	"security.cors_origins",
	"security.trusted_proxies",
	"security.oidc.scopes",
	"payments.price_tiers",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		s, ok := k.Get(path).(string)
		if !ok {
			continue
		}
		parts := strings.Split(s, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if err := k.Set(path, out); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps lowercased environment variable names to koanf paths.
// Variables not listed here are ignored.
var envMappings = map[string]string{
	"http_host":        "server.host",
	"http_port":        "server.port",
	"environment":      "server.environment",
	"read_timeout":     "server.read_timeout",
	"write_timeout":    "server.write_timeout",
	"shutdown_timeout": "server.shutdown_timeout",
	"metrics_enabled":  "server.metrics_enabled",
	"swagger_enabled":  "server.swagger_enabled",

	"database_backend":    "database.backend",
	"duckdb_path":         "database.path",
	"duckdb_max_memory":   "database.max_memory",
	"duckdb_threads":      "database.threads",
	"log_level":           "logging.level",
	"log_format":          "logging.format",
	"log_caller":          "logging.caller",
	"jwt_secret":          "security.jwt_secret",
	"jwt_audience":        "security.jwt_audience",
	"jwt_issuer":          "security.jwt_issuer",
	"oidc_enabled":        "security.oidc.enabled",
	"oidc_issuer_url":     "security.oidc.issuer_url",
	"oidc_client_id":      "security.oidc.client_id",
	"oidc_client_secret":  "security.oidc.client_secret",
	"oidc_redirect_url":   "security.oidc.redirect_url",
	"oidc_scopes":         "security.oidc.scopes",
	"api_keys_enabled":    "security.api_keys_enabled",
	"api_key_default_ttl": "security.api_key_default_ttl",
	"cors_origins":        "security.cors_origins",
	"trusted_proxies":     "security.trusted_proxies",
	"webhook_rate_limit":  "security.webhook_rate_limit",

	"tier_free_requests_per_minute":  "tiers.free.requests_per_minute",
	"tier_free_max_vehicles":         "tiers.free.max_vehicles",
	"tier_free_max_api_keys":         "tiers.free.max_api_keys",
	"tier_pro_requests_per_minute":   "tiers.pro.requests_per_minute",
	"tier_pro_max_vehicles":          "tiers.pro.max_vehicles",
	"tier_pro_max_api_keys":          "tiers.pro.max_api_keys",
	"tier_fleet_requests_per_minute": "tiers.fleet.requests_per_minute",
	"tier_fleet_max_vehicles":        "tiers.fleet.max_vehicles",
	"tier_fleet_max_api_keys":        "tiers.fleet.max_api_keys",

	"telemetry_enabled":               "telemetry.enabled",
	"telemetry_base_url":              "telemetry.base_url",
	"telemetry_api_token":             "telemetry.api_token",
	"telemetry_webhook_secret":        "telemetry.webhook_secret",
	"telemetry_request_timeout":       "telemetry.request_timeout",
	"telemetry_poll_rate":             "telemetry.poll_rate",
	"telemetry_poll_burst":            "telemetry.poll_burst",
	"telemetry_default_max_state_age": "telemetry.default_max_state_age",
	"telemetry_max_clock_skew":        "telemetry.max_clock_skew",

	"payments_enabled":              "payments.enabled",
	"payments_api_base_url":         "payments.api_base_url",
	"payments_secret_key":           "payments.secret_key",
	"payments_webhook_secret":       "payments.webhook_secret",
	"payments_signature_tolerance":  "payments.signature_tolerance",
	"payments_price_tiers":          "payments.price_tiers",
	"payments_checkout_success_url": "payments.checkout_success_url",
	"payments_checkout_cancel_url":  "payments.checkout_cancel_url",

	"twilio_enabled":                "notify.twilio.enabled",
	"twilio_base_url":               "notify.twilio.base_url",
	"twilio_account_sid":            "notify.twilio.account_sid",
	"twilio_auth_token":             "notify.twilio.auth_token",
	"twilio_from_number":            "notify.twilio.from_number",
	"brevo_enabled":                 "notify.brevo.enabled",
	"brevo_base_url":                "notify.brevo.base_url",
	"brevo_api_key":                 "notify.brevo.api_key",
	"brevo_sender_email":            "notify.brevo.sender_email",
	"brevo_sender_name":             "notify.brevo.sender_name",
	"default_low_battery_threshold": "notify.default_low_battery_threshold",

	"events_backend":                "events.backend",
	"nats_url":                      "events.nats_url",
	"nats_embedded_host":            "events.embedded_host",
	"nats_embedded_port":            "events.embedded_port",
	"events_retry_max_retries":      "events.retry_max_retries",
	"events_retry_initial_interval": "events.retry_initial_interval",

	"state_cache_path":   "cache.state_path",
	"tier_cache_ttl":     "cache.tier_ttl",
	"webhook_dedup_ttl":  "cache.webhook_dedup_ttl",
	"webhook_dedup_size": "cache.webhook_dedup_size",
	"vehicle_list_ttl":   "cache.vehicle_list_ttl",
}

// envTransformFunc maps TELEMETRY_BASE_URL to telemetry.base_url and so on.
// An empty return tells koanf to skip the variable.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
