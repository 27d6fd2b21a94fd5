// Voltbridge - EV Telemetry Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/voltbridge

// Package vehicle reconciles vehicle state pushed by vendor webhooks with
// state pulled by on-demand polls.
//
// The vendor timestamp (ObservedAt) is the only ordering key. A new
// observation replaces the cached one only when it is strictly newer, so a
// slow poll response never overwrites a fresher webhook and vice versa.
package vehicle

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/voltbridge/internal/events"
	"github.com/tomtom215/voltbridge/internal/logging"
	"github.com/tomtom215/voltbridge/internal/metrics"
	"github.com/tomtom215/voltbridge/internal/models"
)

var (
	ErrMissingObservedAt = errors.New("vehicle state has no observation time")
	ErrMissingVehicleID  = errors.New("vehicle state has no vehicle id")
)

// DefaultClockSkew bounds how far in the future a vendor timestamp may be.
const DefaultClockSkew = 30 * time.Second

// MergeResult reports the outcome of a Merge. Current is the state held by
// the cache afterwards. Previous is the state it replaced, if any.
type MergeResult struct {
	Accepted bool
	Current  models.VehicleState
	Previous *models.VehicleState
}

// StateCache holds the newest known state per vehicle.
type StateCache struct {
	mu     sync.RWMutex
	states map[string]models.VehicleState

	skew      time.Duration
	now       func() time.Time
	snapshots SnapshotStore
	publisher events.Publisher
	logger    zerolog.Logger
}

type Option func(*StateCache)

// WithClockSkew sets the future tolerance. Later timestamps are clamped to now.
func WithClockSkew(d time.Duration) Option {
	return func(c *StateCache) {
		if d > 0 {
			c.skew = d
		}
	}
}

// WithSnapshotStore persists every accepted state.
func WithSnapshotStore(s SnapshotStore) Option {
	return func(c *StateCache) { c.snapshots = s }
}

// WithPublisher publishes vehicle.state.updated for every accepted state.
func WithPublisher(p events.Publisher) Option {
	return func(c *StateCache) { c.publisher = p }
}

func WithClock(now func() time.Time) Option {
	return func(c *StateCache) { c.now = now }
}

func NewStateCache(opts ...Option) *StateCache {
	c := &StateCache{
		states: make(map[string]models.VehicleState),
		skew:   DefaultClockSkew,
		now:    time.Now,
		logger: logging.WithComponent("state_cache"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Load fills the cache from the snapshot store. Loaded states go through
// the same ordering rules as live ones.
func (c *StateCache) Load(ctx context.Context) (int, error) {
	if c.snapshots == nil {
		return 0, nil
	}
	states, err := c.snapshots.LoadAll(ctx)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, s := range states {
		cur, ok := c.states[s.VehicleID]
		if s.VehicleID == "" || s.ObservedAt.IsZero() || (ok && !s.ObservedAt.After(cur.ObservedAt)) {
			continue
		}
		c.states[s.VehicleID] = s
		n++
	}
	metrics.StateCacheEntries.Set(float64(len(c.states)))
	return n, nil
}

// Merge offers an observation to the cache. It is accepted when no state
// is cached or its ObservedAt is strictly after the cached one; equal
// timestamps keep the cached state.
func (c *StateCache) Merge(ctx context.Context, incoming models.VehicleState) (MergeResult, error) {
	if incoming.VehicleID == "" {
		return MergeResult{}, ErrMissingVehicleID
	}
	if incoming.ObservedAt.IsZero() {
		metrics.StateMerges.WithLabelValues(string(incoming.Source), "rejected").Inc()
		return MergeResult{}, ErrMissingObservedAt
	}

	now := c.now().UTC()
	if incoming.ObservedAt.After(now.Add(c.skew)) {
		c.logger.Warn().
			Str("vehicle_id", incoming.VehicleID).
			Time("observed_at", incoming.ObservedAt).
			Msg("Vendor timestamp in the future, clamping to now")
		incoming.ObservedAt = now
	}
	if incoming.ReceivedAt.IsZero() {
		incoming.ReceivedAt = now
	}

	c.mu.Lock()
	cur, ok := c.states[incoming.VehicleID]
	if ok && !incoming.ObservedAt.After(cur.ObservedAt) {
		c.mu.Unlock()
		metrics.StateMerges.WithLabelValues(string(incoming.Source), "stale").Inc()
		return MergeResult{Current: cur}, nil
	}
	c.states[incoming.VehicleID] = incoming
	size := len(c.states)
	// Persist under the lock so snapshots are written in merge order.
	if c.snapshots != nil {
		if err := c.snapshots.Save(ctx, incoming); err != nil {
			c.logger.Error().Err(err).Str("vehicle_id", incoming.VehicleID).Msg("Failed to persist state snapshot")
		}
	}
	c.mu.Unlock()

	metrics.StateMerges.WithLabelValues(string(incoming.Source), "accepted").Inc()
	metrics.StateCacheEntries.Set(float64(size))

	res := MergeResult{Accepted: true, Current: incoming}
	if ok {
		prev := cur
		res.Previous = &prev
	}
	c.publish(ctx, res)
	return res, nil
}

func (c *StateCache) publish(ctx context.Context, res MergeResult) {
	if c.publisher == nil {
		return
	}
	ev := events.StateUpdated{
		TenantID:  res.Current.TenantID,
		VehicleID: res.Current.VehicleID,
		Previous:  res.Previous,
		Current:   res.Current,
	}
	if err := c.publisher.Publish(ctx, events.TopicStateUpdated, ev); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("vehicle_id", ev.VehicleID).Msg("Failed to publish state update")
	}
}

// Get returns a copy of the cached state.
func (c *StateCache) Get(vehicleID string) (models.VehicleState, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.states[vehicleID]
	return s, ok
}

// Snapshot returns a copy of every cached state.
func (c *StateCache) Snapshot() map[string]models.VehicleState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]models.VehicleState, len(c.states))
	for k, v := range c.states {
		out[k] = v
	}
	return out
}

// Delete forgets a vehicle, for example after it is unregistered.
func (c *StateCache) Delete(ctx context.Context, vehicleID string) {
	c.mu.Lock()
	delete(c.states, vehicleID)
	size := len(c.states)
	if c.snapshots != nil {
		if err := c.snapshots.Delete(ctx, vehicleID); err != nil {
			c.logger.Error().Err(err).Str("vehicle_id", vehicleID).Msg("Failed to delete state snapshot")
		}
	}
	c.mu.Unlock()
	metrics.StateCacheEntries.Set(float64(size))
}

func (c *StateCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.states)
}
