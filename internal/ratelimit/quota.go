// Voltbridge - EV Telemetry Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/voltbridge

package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/tomtom215/voltbridge/internal/config"
	"github.com/tomtom215/voltbridge/internal/httpresp"
	"github.com/tomtom215/voltbridge/internal/metrics"
	"github.com/tomtom215/voltbridge/internal/models"
)

// CodeQuotaExceeded is carried in the error details of a 409 response.
const CodeQuotaExceeded = "QUOTA_EXCEEDED"

// Resource names used in quota errors and metrics.
const (
	ResourceVehicles = "vehicles"
	ResourceAPIKeys  = "api_keys"
)

// QuotaError reports a tier limit that a create would exceed.
type QuotaError struct {
	Resource string
	Tier     models.Tier
	Limit    int
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("%s tier allows at most %d %s", e.Tier, e.Limit, e.Resource)
}

// QuotaStore counts the resources a tenant already holds.
type QuotaStore interface {
	CountVehicles(ctx context.Context, tenantID string) (int, error)
	CountActiveAPIKeys(ctx context.Context, tenantID string, now time.Time) (int, error)
}

// Quotas checks create operations against tier limits. A limit of zero or
// less means unlimited.
type Quotas struct {
	tiers config.TiersConfig
	store QuotaStore
	now   func() time.Time
}

func NewQuotas(tiers config.TiersConfig, s QuotaStore) *Quotas {
	return &Quotas{tiers: tiers, store: s, now: time.Now}
}

// CheckVehicle returns a *QuotaError when one more vehicle would exceed the tier.
func (q *Quotas) CheckVehicle(ctx context.Context, tenantID string, tier models.Tier) error {
	limit := q.tiers.For(tier).MaxVehicles
	if limit <= 0 {
		return nil
	}
	n, err := q.store.CountVehicles(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("failed to count vehicles: %w", err)
	}
	return q.check(ResourceVehicles, tier, n, limit)
}

// CheckAPIKey returns a *QuotaError when one more active key would exceed the tier.
func (q *Quotas) CheckAPIKey(ctx context.Context, tenantID string, tier models.Tier) error {
	limit := q.tiers.For(tier).MaxAPIKeys
	if limit <= 0 {
		return nil
	}
	n, err := q.store.CountActiveAPIKeys(ctx, tenantID, q.now())
	if err != nil {
		return fmt.Errorf("failed to count api keys: %w", err)
	}
	return q.check(ResourceAPIKeys, tier, n, limit)
}

func (q *Quotas) check(resource string, tier models.Tier, have, limit int) error {
	if have < limit {
		return nil
	}
	metrics.QuotaRejections.WithLabelValues(string(tier), resource).Inc()
	return &QuotaError{Resource: resource, Tier: tier, Limit: limit}
}

// WriteQuotaError writes the 409 response for a quota error and reports
// whether err was one.
func WriteQuotaError(w http.ResponseWriter, r *http.Request, err error) bool {
	var qe *QuotaError
	if !errors.As(err, &qe) {
		return false
	}
	httpresp.ErrorWithDetails(w, r, http.StatusConflict, httpresp.CodeConflict, qe.Error(), map[string]interface{}{
		"code":     CodeQuotaExceeded,
		"resource": qe.Resource,
		"tier":     qe.Tier,
		"limit":    qe.Limit,
	})
	return true
}
