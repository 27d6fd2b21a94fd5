// Voltbridge - EV Telemetry Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/voltbridge

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/tomtom215/voltbridge/internal/api"
	"github.com/tomtom215/voltbridge/internal/auth"
	"github.com/tomtom215/voltbridge/internal/authz"
	"github.com/tomtom215/voltbridge/internal/cache"
	"github.com/tomtom215/voltbridge/internal/config"
	"github.com/tomtom215/voltbridge/internal/database"
	"github.com/tomtom215/voltbridge/internal/events"
	"github.com/tomtom215/voltbridge/internal/logging"
	"github.com/tomtom215/voltbridge/internal/models"
	"github.com/tomtom215/voltbridge/internal/notify"
	"github.com/tomtom215/voltbridge/internal/payments"
	"github.com/tomtom215/voltbridge/internal/ratelimit"
	"github.com/tomtom215/voltbridge/internal/store"
	"github.com/tomtom215/voltbridge/internal/supervisor"
	"github.com/tomtom215/voltbridge/internal/supervisor/services"
	"github.com/tomtom215/voltbridge/internal/telemetry"
	"github.com/tomtom215/voltbridge/internal/vehicle"
	ws "github.com/tomtom215/voltbridge/internal/websocket"
)

// version is set with -ldflags "-X main.version=...".
var version = "dev"

const (
	// provisionPerMinute bounds first-login tenant creation.
	provisionPerMinute = 30

	snapshotGCInterval = 10 * time.Minute
	snapshotGCRatio    = 0.5
)

// app owns every long-lived component. Fields that depend on optional
// features are nil when the feature is off.
type app struct {
	cfg *config.Config

	store     store.Store
	bus       *events.Bus
	snapshots *vehicle.BadgerSnapshotStore
	cache     *vehicle.StateCache
	resolver  *auth.Resolver
	enforcer  *authz.Enforcer
	hub       *ws.Hub
	alerts    *notify.AlertEvaluator
	handler   *api.Handler
	server    *http.Server

	// router is the event router of the current RouterService run.
	router atomic.Pointer[events.Router]
}

// newApp builds the component graph. On error everything opened so far is
// closed again.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}
	built := false
	defer func() {
		if !built {
			a.Close()
		}
	}()

	var err error

	if a.store, err = openStore(cfg.Database); err != nil {
		return nil, err
	}
	logging.Info().Str("backend", cfg.Database.Backend).Msg("Store initialized")

	if a.bus, err = events.NewBus(cfg.Events, logging.NewWatermillAdapter()); err != nil {
		return nil, fmt.Errorf("event bus: %w", err)
	}
	logging.Info().Str("backend", a.bus.Backend()).Msg("Event bus connected")

	if err = a.initStateCache(ctx); err != nil {
		return nil, err
	}

	var poller vehicle.Poller
	var telemetryClient *telemetry.Client
	if cfg.Telemetry.Enabled {
		telemetryClient = telemetry.NewClient(cfg.Telemetry)
		poller = telemetryClient
		logging.Info().Str("base_url", cfg.Telemetry.BaseURL).Msg("Telemetry vendor client enabled")
	} else {
		logging.Warn().Msg("Telemetry vendor disabled: state comes from webhooks only and commands are unavailable")
	}
	reconciler := vehicle.NewReconciler(a.cache, poller, cfg.Telemetry.DefaultMaxStateAge)

	email, sms := notifiers(cfg.Notify)
	var channels []notify.Notifier
	if email != nil {
		channels = append(channels, email)
	}
	if sms != nil {
		channels = append(channels, sms)
	}
	dispatcher := notify.NewDispatcher(a.store, cfg.Notify.DefaultLowBatteryThreshold, channels...)
	a.alerts = notify.NewAlertEvaluator(a.store, dispatcher)
	logging.Info().Strs("channels", dispatcher.Channels()).Msg("Alert dispatcher configured")

	keys := auth.NewAPIKeyManager(a.store)
	a.resolver = auth.NewResolver(a.store, cfg.Cache.TierTTL, provisionPerMinute)
	authenticator, err := newAuthenticator(ctx, &cfg.Security, keys)
	if err != nil {
		return nil, err
	}
	if a.enforcer, err = authz.NewEnforcer(authz.DefaultEnforcerConfig()); err != nil {
		return nil, fmt.Errorf("authorization: %w", err)
	}

	deps := api.Deps{
		Store:       a.store,
		Reconciler:  reconciler,
		Keys:        keys,
		Quotas:      ratelimit.NewQuotas(cfg.Tiers, a.store),
		Deduper:     cache.NewDeduper(cfg.Cache.WebhookDedupSize, cfg.Cache.WebhookDedupTTL),
		ReadyChecks: map[string]api.ReadinessCheck{"event_router": a.routerReady},
	}
	if telemetryClient != nil {
		deps.Commander = telemetryClient
		deps.Directory = telemetryClient
	}
	if cfg.Payments.Enabled {
		deps.Checkout = payments.NewClient(cfg.Payments, nil)
		opts := []payments.ProcessorOption{payments.WithPublisher(a.bus)}
		if email != nil {
			opts = append(opts, payments.WithMailer(email))
		}
		deps.Payments = payments.NewProcessor(a.store, cfg.Payments.PriceTierMap(), opts...)
		logging.Info().Int("prices", len(cfg.Payments.PriceTiers)).Msg("Payments enabled")
	}
	a.handler = api.NewHandler(deps, api.HandlerConfig{
		Version:                    version,
		TelemetryWebhookSecret:     cfg.Telemetry.WebhookSecret,
		PaymentsWebhookSecret:      cfg.Payments.WebhookSecret,
		SignatureTolerance:         cfg.Payments.SignatureTolerance,
		Prices:                     cfg.Payments.PriceTierMap(),
		CheckoutSuccessURL:         cfg.Payments.CheckoutSuccessURL,
		CheckoutCancelURL:          cfg.Payments.CheckoutCancelURL,
		APIKeyDefaultTTL:           cfg.Security.APIKeyDefaultTTL,
		DefaultLowBatteryThreshold: cfg.Notify.DefaultLowBatteryThreshold,
		VehicleListTTL:             cfg.Cache.VehicleListTTL,
	})

	a.hub = ws.NewHub()

	chiCfg := api.DefaultChiMiddlewareConfig()
	chiCfg.CORSAllowedOrigins = cfg.Security.CORSOrigins
	router := api.NewRouter(
		a.handler,
		api.NewChiMiddleware(chiCfg),
		auth.NewMiddleware(authenticator, a.resolver),
		authz.NewMiddleware(a.enforcer),
		ratelimit.NewTierLimiter(cfg.Tiers),
		a.hub.Handler(cfg.Security.CORSOrigins),
		api.RouterConfig{
			MetricsEnabled:   cfg.Server.MetricsEnabled,
			SwaggerEnabled:   cfg.Server.SwaggerEnabled,
			WebhookRateLimit: cfg.Security.WebhookRateLimit,
		},
	)
	a.server = &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router.Setup(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}
	built = true
	return a, nil
}

func openStore(cfg config.DatabaseConfig) (store.Store, error) {
	switch cfg.Backend {
	case "memory":
		logging.Warn().Msg("Using the in-memory store: all data is lost on restart")
		return store.NewMemory(), nil
	default:
		db, err := database.New(&cfg)
		if err != nil {
			return nil, fmt.Errorf("database: %w", err)
		}
		return db, nil
	}
}

func (a *app) initStateCache(ctx context.Context) error {
	opts := []vehicle.Option{
		vehicle.WithClockSkew(a.cfg.Telemetry.MaxClockSkew),
		vehicle.WithPublisher(a.bus),
	}
	if path := a.cfg.Cache.StatePath; path != "" {
		snapshots, err := vehicle.OpenBadgerSnapshotStore(path)
		if err != nil {
			return fmt.Errorf("state snapshots: %w", err)
		}
		a.snapshots = snapshots
		opts = append(opts, vehicle.WithSnapshotStore(snapshots))
	}
	a.cache = vehicle.NewStateCache(opts...)

	n, err := a.cache.Load(ctx)
	if err != nil {
		return fmt.Errorf("restore vehicle state: %w", err)
	}
	logging.Info().Int("vehicles", n).Bool("persistent", a.snapshots != nil).Msg("Vehicle state cache ready")
	return nil
}

func notifiers(cfg config.NotifyConfig) (*notify.EmailNotifier, *notify.SMSNotifier) {
	var email *notify.EmailNotifier
	var sms *notify.SMSNotifier
	if cfg.Brevo.Enabled {
		email = notify.NewEmailNotifier(cfg.Brevo, nil)
	}
	if cfg.Twilio.Enabled {
		sms = notify.NewSMSNotifier(cfg.Twilio, nil)
	}
	return email, sms
}

// newAuthenticator chains API keys, OIDC and HS256 JWT. An OIDC provider
// that fails discovery at startup is a fatal configuration error.
func newAuthenticator(ctx context.Context, cfg *config.SecurityConfig, keys *auth.APIKeyManager) (auth.Authenticator, error) {
	var chain []auth.Authenticator
	if cfg.APIKeysEnabled {
		chain = append(chain, auth.NewAPIKeyAuthenticator(keys))
	}
	if cfg.OIDC.Enabled {
		oidcAuth, err := auth.NewOIDCAuthenticator(ctx, &cfg.OIDC, nil)
		if err != nil {
			return nil, err
		}
		chain = append(chain, oidcAuth)
		logging.Info().Str("issuer", oidcAuth.Issuer()).Msg("OIDC authentication enabled")
	}
	if cfg.JWTSecret != "" {
		jwtAuth, err := auth.NewJWTAuthenticator(cfg)
		if err != nil {
			return nil, err
		}
		chain = append(chain, jwtAuth)
	}
	multi := auth.NewMultiAuthenticator(chain...)
	logging.Info().Strs("methods", multi.Names()).Msg("Authentication configured")
	return multi, nil
}

// newEventRouter is the RouterService factory. Each supervisor restart gets
// a fresh router with all consumers registered.
func (a *app) newEventRouter() (services.Runner, error) {
	r, err := events.NewRouter(a.routerConfig(), a.bus)
	if err != nil {
		return nil, err
	}
	r.AddConsumer("websocket-state", events.TopicStateUpdated, a.hub.StateConsumer)
	r.AddConsumer("alerts", events.TopicStateUpdated, a.alerts.Handle)
	r.AddConsumer("websocket-tier", events.TopicTierChanged, a.hub.TierConsumer)
	r.AddConsumer("tier-cache", events.TopicTierChanged, a.invalidateTier)
	a.router.Store(r)
	return r, nil
}

func (a *app) routerConfig() events.RouterConfig {
	cfg := events.DefaultRouterConfig()
	if a.cfg.Events.RetryMaxRetries > 0 {
		cfg.RetryMaxRetries = a.cfg.Events.RetryMaxRetries
	}
	if a.cfg.Events.RetryInitialInterval > 0 {
		cfg.RetryInitialInterval = a.cfg.Events.RetryInitialInterval
	}
	return cfg
}

// invalidateTier drops the cached tier so the next request sees the new
// rate limit.
func (a *app) invalidateTier(_ context.Context, msg *message.Message) error {
	change, err := events.Decode[models.TierChange](msg)
	if err != nil {
		return err
	}
	a.resolver.InvalidateTier(change.TenantID)
	return nil
}

func (a *app) routerReady(context.Context) error {
	r := a.router.Load()
	if r == nil || !r.IsRunning() {
		return errors.New("event router not running")
	}
	return nil
}

// tree lays the services out by layer; the supervisor stops the API layer
// before the layers it depends on.
func (a *app) tree() *supervisor.Tree {
	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: a.cfg.Server.ShutdownTimeout,
	})
	if a.snapshots != nil {
		tree.AddDataService(services.NewPeriodicService("state-snapshot-gc", snapshotGCInterval, func(context.Context) error {
			return a.snapshots.RunGC(snapshotGCRatio)
		}))
	}
	tree.AddMessagingService(services.NewRouterService(a.newEventRouter))
	tree.AddMessagingService(a.hub)
	tree.AddAPIService(services.NewHTTPServerService(a.server, a.cfg.Server.ShutdownTimeout))
	return tree
}

// Close releases everything newApp opened, in reverse order. It tolerates
// a partially built app.
func (a *app) Close() {
	if a.handler != nil {
		a.handler.Close()
	}
	if a.enforcer != nil {
		a.enforcer.Close()
	}
	if a.resolver != nil {
		a.resolver.Close()
	}
	if a.snapshots != nil {
		if err := a.snapshots.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing state snapshots")
		}
	}
	if a.bus != nil {
		if err := a.bus.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing event bus")
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing store")
		}
	}
}
