// Voltbridge - EV Telemetry Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/voltbridge

package events

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"

	"github.com/tomtom215/voltbridge/internal/logging"
	"github.com/tomtom215/voltbridge/internal/metrics"
)

// Handler processes one message. The context carries the correlation ID.
type Handler func(ctx context.Context, msg *message.Message) error

// RouterConfig controls retry behaviour.
type RouterConfig struct {
	CloseTimeout         time.Duration
	RetryMaxRetries      int
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
}

func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		CloseTimeout:         30 * time.Second,
		RetryMaxRetries:      3,
		RetryInitialInterval: 200 * time.Millisecond,
		RetryMaxInterval:     10 * time.Second,
	}
}

// Router runs consumer handlers against the bus subscriber.
type Router struct {
	router *message.Router
	bus    *Bus
	logger watermill.LoggerAdapter
}

// NewRouter builds a router with, outermost first: poison queue, panic
// recovery, correlation ID context, retry with exponential backoff.
func NewRouter(cfg RouterConfig, bus *Bus) (*Router, error) {
	logger := bus.logger
	wm, err := message.NewRouter(message.RouterConfig{CloseTimeout: cfg.CloseTimeout}, logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill router: %w", err)
	}

	poison, err := middleware.PoisonQueue(bus.MessagePublisher(), TopicPoison)
	if err != nil {
		return nil, fmt.Errorf("create poison queue middleware: %w", err)
	}
	wm.AddMiddleware(
		poison,
		middleware.Recoverer,
		correlationContext,
		middleware.Retry{
			MaxRetries:      cfg.RetryMaxRetries,
			InitialInterval: cfg.RetryInitialInterval,
			MaxInterval:     cfg.RetryMaxInterval,
			Multiplier:      2.0,
			Logger:          logger,
		}.Middleware,
	)

	return &Router{router: wm, bus: bus, logger: logger}, nil
}

// correlationContext moves the correlation ID from metadata into the
// message context so handlers log with it.
func correlationContext(h message.HandlerFunc) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		if id := middleware.MessageCorrelationID(msg); id != "" {
			msg.SetContext(logging.ContextWithCorrelationID(msg.Context(), id))
		}
		return h(msg)
	}
}

// AddConsumer registers handler for topic. name must be unique.
func (r *Router) AddConsumer(name, topic string, handler Handler) {
	r.router.AddConsumerHandler(name, topic, r.bus.Subscriber(), func(msg *message.Message) error {
		err := handler(msg.Context(), msg)
		outcome := "success"
		if err != nil {
			outcome = "error"
		}
		metrics.EventsHandled.WithLabelValues(name, outcome).Inc()
		return err
	})
}

// Run blocks until ctx is done or Close is called.
func (r *Router) Run(ctx context.Context) error {
	return r.router.Run(ctx)
}

// Running is closed once every handler is subscribed.
func (r *Router) Running() <-chan struct{} {
	return r.router.Running()
}

func (r *Router) IsRunning() bool {
	return r.router.IsRunning()
}

func (r *Router) Close() error {
	return r.router.Close()
}
