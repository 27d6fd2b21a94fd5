// Voltbridge - EV Telemetry Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/voltbridge

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/tomtom215/voltbridge/internal/auth"
	"github.com/tomtom215/voltbridge/internal/authz"
	"github.com/tomtom215/voltbridge/internal/httpresp"
	"github.com/tomtom215/voltbridge/internal/middleware"
	"github.com/tomtom215/voltbridge/internal/models"
	"github.com/tomtom215/voltbridge/internal/ratelimit"
)

// RouterConfig switches optional surfaces.
type RouterConfig struct {
	MetricsEnabled   bool
	SwaggerEnabled   bool
	WebhookRateLimit int
	// SlowRequest is the access-log threshold for warning level.
	SlowRequest time.Duration
}

// Router assembles the chi route tree.
type Router struct {
	handler       *Handler
	chiMiddleware *ChiMiddleware
	authn         *auth.Middleware
	authz         *authz.Middleware
	tierLimiter   *ratelimit.TierLimiter
	stream        http.Handler
	config        RouterConfig
}

// NewRouter wires the middleware chain around handler. stream serves the
// websocket upgrade and may be nil when realtime is disabled.
func NewRouter(
	handler *Handler,
	chiMW *ChiMiddleware,
	authn *auth.Middleware,
	authzMW *authz.Middleware,
	tierLimiter *ratelimit.TierLimiter,
	stream http.Handler,
	config RouterConfig,
) *Router {
	if chiMW == nil {
		chiMW = NewChiMiddleware(nil)
	}
	if config.WebhookRateLimit <= 0 {
		config.WebhookRateLimit = 600
	}
	if config.SlowRequest <= 0 {
		config.SlowRequest = time.Second
	}
	return &Router{
		handler:       handler,
		chiMiddleware: chiMW,
		authn:         authn,
		authz:         authzMW,
		tierLimiter:   tierLimiter,
		stream:        stream,
		config:        config,
	}
}

// Setup builds the handler tree.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.AccessLog(router.config.SlowRequest))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Prometheus)
	r.Use(middleware.SecurityHeaders)
	r.Use(router.chiMiddleware.CORS())

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httpresp.Error(w, req, http.StatusNotFound, httpresp.CodeNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		httpresp.Error(w, req, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
	})

	if router.config.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	if router.config.SwaggerEnabled {
		r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))
	}

	h := router.handler
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/health", func(r chi.Router) {
			r.Get("/", h.Health)
			r.Get("/live", h.HealthLive)
			r.Get("/ready", h.HealthReady)
		})

		r.Route("/webhooks", func(r chi.Router) {
			r.Use(ratelimit.Webhooks(router.config.WebhookRateLimit))
			r.Post("/telemetry", h.TelemetryWebhook)
			r.Post("/payments", h.PaymentsWebhook)
		})

		r.Group(func(r chi.Router) {
			r.Use(router.authn.Authenticate)
			r.Use(router.tierLimiter.Handler)
			// Group middleware runs after routing, so the authorizer sees
			// the matched route pattern.
			r.Use(router.authz.Authorize)

			if router.stream != nil {
				r.With(auth.RequireScope(models.ScopeStateStream)).Get("/stream", router.stream.ServeHTTP)
			}

			r.Group(func(r chi.Router) {
				r.Use(router.chiMiddleware.Compress())

				r.Get("/me", h.Me)

				// Flat paths keep the full pattern visible to the authorizer.
				read := auth.RequireScope(models.ScopeVehiclesRead)
				r.With(read).Get("/vehicles", h.ListVehicles)
				r.Post("/vehicles", h.RegisterVehicle)
				r.Delete("/vehicles/{id}", h.DeleteVehicle)
				r.With(read).Get("/vehicles/{id}/state", h.VehicleState)
				r.With(read).Post("/vehicles/{id}/refresh", h.RefreshVehicle)
				r.With(auth.RequireScope(models.ScopeVehiclesCommand)).Post("/vehicles/{id}/commands", h.VehicleCommand)

				r.Group(func(r chi.Router) {
					r.Use(auth.RequireIdentity)
					r.Get("/keys", h.ListAPIKeys)
					r.Post("/keys", h.CreateAPIKey)
					r.Delete("/keys/{id}", h.RevokeAPIKey)
					r.Get("/billing/subscription", h.Subscription)
					r.Post("/billing/checkout", h.Checkout)
					r.Get("/alerts/preferences", h.GetAlertPreferences)
					r.Put("/alerts/preferences", h.UpdateAlertPreferences)
				})
			})
		})
	})

	return r
}
