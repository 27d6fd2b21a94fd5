// Voltbridge - EV Telemetry Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/voltbridge

// Package ratelimit applies per-tier request budgets and resource quotas.
package ratelimit

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"

	"github.com/tomtom215/voltbridge/internal/auth"
	"github.com/tomtom215/voltbridge/internal/config"
	"github.com/tomtom215/voltbridge/internal/httpresp"
	"github.com/tomtom215/voltbridge/internal/metrics"
	"github.com/tomtom215/voltbridge/internal/models"
)

// Window is the length of every request budget.
const Window = time.Minute

// TierLimiter holds one httprate limiter per tier. Requests are counted
// against the tenant, so every user and key of a tenant shares the budget.
type TierLimiter struct {
	limiters map[models.Tier]*httprate.RateLimiter
}

// NewTierLimiter builds limiters from the configured requests per minute.
func NewTierLimiter(tiers config.TiersConfig) *TierLimiter {
	tl := &TierLimiter{limiters: make(map[models.Tier]*httprate.RateLimiter, 3)}
	for _, tier := range []models.Tier{models.TierFree, models.TierPro, models.TierFleet} {
		tl.limiters[tier] = httprate.NewRateLimiter(
			tiers.For(tier).RequestsPerMinute,
			Window,
			httprate.WithKeyFuncs(KeyByTenant),
			httprate.WithLimitHandler(limitHandler(string(tier))),
		)
	}
	return tl
}

// Handler enforces the budget of the caller's tier. It must run after
// authentication. Anonymous requests use the free budget keyed by IP.
func (tl *TierLimiter) Handler(next http.Handler) http.Handler {
	wrapped := make(map[models.Tier]http.Handler, len(tl.limiters))
	for tier, l := range tl.limiters {
		wrapped[tier] = l.Handler(next)
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tier := models.TierFree
		if s := auth.SubjectFromContext(r.Context()); s != nil && s.Tier != "" {
			tier = s.Tier
		}
		h, ok := wrapped[tier]
		if !ok {
			h = wrapped[models.TierFree]
		}
		h.ServeHTTP(w, r)
	})
}

// KeyByTenant keys authenticated requests by tenant and the rest by IP.
func KeyByTenant(r *http.Request) (string, error) {
	if s := auth.SubjectFromContext(r.Context()); s != nil && s.TenantID != "" {
		return "tenant:" + s.TenantID, nil
	}
	ip, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + ip, nil
}

// Webhooks limits provider callbacks per source IP.
func Webhooks(perMinute int) func(http.Handler) http.Handler {
	return httprate.Limit(
		perMinute,
		Window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(limitHandler("webhook")),
	)
}

func limitHandler(label string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		metrics.RateLimitHits.WithLabelValues(label).Inc()
		if w.Header().Get("Retry-After") == "" {
			w.Header().Set("Retry-After", strconv.Itoa(int(Window.Seconds())))
		}
		httpresp.Error(w, r, http.StatusTooManyRequests, httpresp.CodeTooManyRequests, "rate limit exceeded")
	}
}
