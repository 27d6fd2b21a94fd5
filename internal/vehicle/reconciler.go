// Voltbridge - EV Telemetry Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/voltbridge

package vehicle

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/tomtom215/voltbridge/internal/logging"
	"github.com/tomtom215/voltbridge/internal/models"
)

// DefaultMaxAge asks State to use the reconciler's configured max age.
const DefaultMaxAge time.Duration = -1

// Poller fetches the current state of a vehicle from the vendor.
type Poller interface {
	GetVehicleState(ctx context.Context, vendorVehicleID string) (*models.VehicleState, error)
}

// Reconciler answers state reads from the cache and polls the vendor when
// the cached observation is too old.
type Reconciler struct {
	cache  *StateCache
	poller Poller
	polls  singleflight.Group
	maxAge time.Duration
	now    func() time.Time
}

// NewReconciler uses defaultMaxAge when a caller passes a zero max age.
func NewReconciler(cache *StateCache, poller Poller, defaultMaxAge time.Duration) *Reconciler {
	if defaultMaxAge <= 0 {
		defaultMaxAge = time.Minute
	}
	return &Reconciler{cache: cache, poller: poller, maxAge: defaultMaxAge, now: time.Now}
}

func (r *Reconciler) Cache() *StateCache { return r.cache }

// State returns the cached state when it is at most maxAge old. Otherwise
// it polls; if the poll fails a cached state is returned marked Stale, and
// without one the poll error is returned. A zero maxAge always polls and a
// negative one selects the configured default.
func (r *Reconciler) State(ctx context.Context, v *models.Vehicle, maxAge time.Duration) (*models.VehicleStateResponse, error) {
	if maxAge < 0 {
		maxAge = r.maxAge
	}
	if cur, ok := r.cache.Get(v.ID); ok && r.now().Sub(cur.ObservedAt) <= maxAge {
		return r.response(cur, false), nil
	}
	return r.poll(ctx, v)
}

// Refresh polls regardless of cache age, with the same stale fallback.
func (r *Reconciler) Refresh(ctx context.Context, v *models.Vehicle) (*models.VehicleStateResponse, error) {
	return r.poll(ctx, v)
}

func (r *Reconciler) poll(ctx context.Context, v *models.Vehicle) (*models.VehicleStateResponse, error) {
	if r.poller == nil {
		return r.fallback(ctx, v, fmt.Errorf("vehicle polling is not configured"))
	}

	// Concurrent reads of one vehicle share a single vendor call.
	res, err, _ := r.polls.Do(v.ID, func() (interface{}, error) {
		polled, err := r.poller.GetVehicleState(ctx, v.VendorVehicleID)
		if err != nil {
			return nil, err
		}
		polled.VehicleID = v.ID
		polled.TenantID = v.TenantID
		polled.Source = models.SourcePoll
		polled.ReceivedAt = time.Time{}
		merged, err := r.cache.Merge(ctx, *polled)
		if err != nil {
			return nil, err
		}
		return merged.Current, nil
	})
	if err != nil {
		return r.fallback(ctx, v, err)
	}
	return r.response(res.(models.VehicleState), false), nil
}

func (r *Reconciler) fallback(ctx context.Context, v *models.Vehicle, err error) (*models.VehicleStateResponse, error) {
	cur, ok := r.cache.Get(v.ID)
	if !ok {
		return nil, err
	}
	logging.Ctx(ctx).Warn().Err(err).Str("vehicle_id", v.ID).Msg("Vehicle poll failed, serving cached state")
	return r.response(cur, true), nil
}

func (r *Reconciler) response(s models.VehicleState, stale bool) *models.VehicleStateResponse {
	return &models.VehicleStateResponse{
		State: &s,
		Stale: stale,
		AgeMS: r.now().Sub(s.ObservedAt).Milliseconds(),
	}
}
