// Voltbridge - EV Telemetry Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/voltbridge

package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/tomtom215/voltbridge/internal/httpresp"
)

// readyTimeout bounds all dependency checks of one readiness probe.
const readyTimeout = 3 * time.Second

// HealthStatus is the body of GET /health.
type HealthStatus struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	UptimeSeconds float64           `json:"uptime_seconds"`
	Checks        map[string]string `json:"checks"`
	CachedStates  int               `json:"cached_states"`
}

// Health reports overall status and every dependency check.
//
// @Summary System health
// @Description Dependency checks, uptime and the number of cached vehicle states. Always 200; status is healthy or degraded.
// @Tags Health
// @Produce json
// @Success 200 {object} httpresp.Envelope{data=HealthStatus}
// @Router /health [get]
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	checks, ok := h.runChecks(r.Context())
	status := "healthy"
	if !ok {
		status = "degraded"
	}
	httpresp.JSON(w, r, http.StatusOK, HealthStatus{
		Status:        status,
		Version:       h.cfg.Version,
		UptimeSeconds: time.Since(h.startTime).Seconds(),
		Checks:        checks,
		CachedStates:  h.deps.Reconciler.Cache().Len(),
	})
}

// HealthLive answers as long as the process serves HTTP.
//
// @Summary Liveness probe
// @Tags Health
// @Produce json
// @Success 200 {object} httpresp.Envelope
// @Router /health/live [get]
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	httpresp.JSON(w, r, http.StatusOK, map[string]interface{}{
		"alive":          true,
		"uptime_seconds": time.Since(h.startTime).Seconds(),
	})
}

// HealthReady returns 503 while any dependency check fails.
//
// @Summary Readiness probe
// @Tags Health
// @Produce json
// @Success 200 {object} httpresp.Envelope
// @Failure 503 {object} httpresp.Envelope
// @Router /health/ready [get]
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	checks, ok := h.runChecks(r.Context())
	if !ok {
		httpresp.ErrorWithDetails(w, r, http.StatusServiceUnavailable, httpresp.CodeUnavailable, "service not ready", checks)
		return
	}
	httpresp.JSON(w, r, http.StatusOK, map[string]interface{}{"ready": true, "checks": checks})
}

// runChecks runs the store ping and every registered check in name order.
func (h *Handler) runChecks(ctx context.Context) (map[string]string, bool) {
	ctx, cancel := context.WithTimeout(ctx, readyTimeout)
	defer cancel()

	all := make(map[string]ReadinessCheck, len(h.deps.ReadyChecks)+1)
	for name, c := range h.deps.ReadyChecks {
		all[name] = c
	}
	all["store"] = h.deps.Store.Ping

	names := make([]string, 0, len(all))
	for name := range all {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make(map[string]string, len(all))
	ok := true
	for _, name := range names {
		if err := all[name](ctx); err != nil {
			results[name] = err.Error()
			ok = false
			continue
		}
		results[name] = "ok"
	}
	return results, ok
}
