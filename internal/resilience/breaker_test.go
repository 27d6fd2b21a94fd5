// Voltbridge - EV Telemetry Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/voltbridge

package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tomtom215/voltbridge/internal/metrics"
)

var errClient = errors.New("client error")

func TestBreakerOpensAfterFailures(t *testing.T) {
	t.Parallel()
	b := NewBreaker("test-opens", Settings{MinRequests: 4, Timeout: time.Hour})
	fail := errors.New("upstream 500")

	for i := 0; i < 4; i++ {
		if _, err := Execute(b, func() (int, error) { return 0, fail }); !errors.Is(err, fail) {
			t.Fatalf("call %d err = %v", i, err)
		}
	}
	if b.State() != "open" {
		t.Fatalf("state = %s, want open", b.State())
	}
	called := false
	_, err := Execute(b, func() (int, error) { called = true; return 1, nil })
	if !IsOpen(err) || called {
		t.Errorf("open breaker must reject without calling: err=%v called=%v", err, called)
	}
	if got := testutil.ToFloat64(metrics.CircuitBreakerState.WithLabelValues("test-opens")); got != metrics.BreakerOpen {
		t.Errorf("state gauge = %v", got)
	}
}

func TestBreakerIgnoresAcceptedErrors(t *testing.T) {
	t.Parallel()
	b := NewBreaker("test-accepted", Settings{
		MinRequests:  2,
		IsSuccessful: func(err error) bool { return err == nil || errors.Is(err, errClient) },
	})
	for i := 0; i < 5; i++ {
		if _, err := Execute(b, func() (string, error) { return "", errClient }); !errors.Is(err, errClient) {
			t.Fatalf("accepted errors must still reach the caller, got %v", err)
		}
	}
	if b.State() != "closed" {
		t.Errorf("state = %s, want closed", b.State())
	}
}

func TestExecuteReturnsValue(t *testing.T) {
	t.Parallel()
	b := NewBreaker("test-value", Settings{})
	got, err := Execute(b, func() (*int, error) { v := 7; return &v, nil })
	if err != nil || got == nil || *got != 7 {
		t.Errorf("got %v, %v", got, err)
	}
	if b.Name() != "test-value" {
		t.Errorf("name = %s", b.Name())
	}
}
