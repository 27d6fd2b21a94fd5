// Voltbridge - EV Telemetry Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/voltbridge

package services

import (
	"context"
	"fmt"
)

// Runner is satisfied by *events.Router.
type Runner interface {
	Run(ctx context.Context) error
	Close() error
}

// RouterService runs an event router. A watermill router cannot be started
// twice, so every Serve builds a fresh one from the factory.
type RouterService struct {
	build func() (Runner, error)
}

func NewRouterService(build func() (Runner, error)) *RouterService {
	return &RouterService{build: build}
}

func (s *RouterService) Serve(ctx context.Context) error {
	r, err := s.build()
	if err != nil {
		return fmt.Errorf("build event router: %w", err)
	}
	defer func() { _ = r.Close() }()

	if err := r.Run(ctx); err != nil {
		return fmt.Errorf("event router stopped: %w", err)
	}
	// Run returns nil once the router closes, including on ctx cancel.
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("event router stopped unexpectedly")
}

func (s *RouterService) String() string { return "event-router" }
