// Voltbridge - EV Telemetry Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/voltbridge

package services

import (
	"context"
	"time"

	"github.com/tomtom215/voltbridge/internal/logging"
)

// PeriodicService calls task every interval. Task errors are logged and do
// not stop the service, so a transient failure is retried on the next tick
// rather than triggering supervisor backoff.
type PeriodicService struct {
	name     string
	interval time.Duration
	task     func(ctx context.Context) error
}

func NewPeriodicService(name string, interval time.Duration, task func(ctx context.Context) error) *PeriodicService {
	if interval <= 0 {
		interval = time.Minute
	}
	return &PeriodicService{name: name, interval: interval, task: task}
}

func (p *PeriodicService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	logger := logging.WithComponent(p.name)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			start := time.Now()
			if err := p.task(ctx); err != nil {
				logger.Warn().Err(err).Msg("periodic task failed")
				continue
			}
			logger.Debug().Dur("duration", time.Since(start)).Msg("periodic task completed")
		}
	}
}

func (p *PeriodicService) String() string { return p.name }
