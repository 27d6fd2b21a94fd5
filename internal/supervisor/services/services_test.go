// Voltbridge - EV Telemetry Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/voltbridge

package services

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeServer struct {
	listenErr  error
	stop       chan struct{}
	once       sync.Once
	shutdowns  atomic.Int32
	shutdownFn func(ctx context.Context) error
}

func newFakeServer(listenErr error) *fakeServer {
	return &fakeServer{listenErr: listenErr, stop: make(chan struct{})}
}

func (f *fakeServer) ListenAndServe() error {
	if f.listenErr != nil {
		return f.listenErr
	}
	<-f.stop
	return http.ErrServerClosed
}

func (f *fakeServer) Shutdown(ctx context.Context) error {
	f.shutdowns.Add(1)
	f.once.Do(func() { close(f.stop) })
	if f.shutdownFn != nil {
		return f.shutdownFn(ctx)
	}
	return nil
}

func TestHTTPServerService_ShutsDownOnCancel(t *testing.T) {
	t.Parallel()
	srv := newFakeServer(nil)
	svc := NewHTTPServerService(srv, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}
	if got := srv.shutdowns.Load(); got != 1 {
		t.Errorf("Shutdown calls = %d, want 1", got)
	}
}

func TestHTTPServerService_ListenFailure(t *testing.T) {
	t.Parallel()
	svc := NewHTTPServerService(newFakeServer(errors.New("address in use")), 0)
	err := svc.Serve(context.Background())
	if err == nil {
		t.Fatal("Serve() = nil, want listen error")
	}
	if svc.shutdownTimeout != 10*time.Second {
		t.Errorf("default shutdown timeout = %v", svc.shutdownTimeout)
	}
}

func TestHTTPServerService_ShutdownError(t *testing.T) {
	t.Parallel()
	srv := newFakeServer(nil)
	srv.shutdownFn = func(context.Context) error { return errors.New("drain failed") }
	svc := NewHTTPServerService(srv, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := svc.Serve(ctx); err == nil || errors.Is(err, context.Canceled) {
		t.Errorf("Serve() = %v, want shutdown error", err)
	}
}

type fakeRunner struct {
	runErr error
	closed atomic.Bool
	exitFn func(ctx context.Context)
}

func (r *fakeRunner) Run(ctx context.Context) error {
	if r.runErr != nil {
		return r.runErr
	}
	if r.exitFn != nil {
		r.exitFn(ctx)
		return nil
	}
	<-ctx.Done()
	return nil
}

func (r *fakeRunner) Close() error {
	r.closed.Store(true)
	return nil
}

func TestRouterService(t *testing.T) {
	t.Parallel()

	t.Run("fresh router per serve", func(t *testing.T) {
		t.Parallel()
		var builds atomic.Int32
		svc := NewRouterService(func() (Runner, error) {
			builds.Add(1)
			return &fakeRunner{}, nil
		})
		for i := 0; i < 2; i++ {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			if err := svc.Serve(ctx); !errors.Is(err, context.Canceled) {
				t.Fatalf("Serve() = %v", err)
			}
		}
		if got := builds.Load(); got != 2 {
			t.Errorf("builds = %d, want 2", got)
		}
	})

	t.Run("build error", func(t *testing.T) {
		t.Parallel()
		svc := NewRouterService(func() (Runner, error) { return nil, errors.New("no bus") })
		if err := svc.Serve(context.Background()); err == nil {
			t.Error("Serve() = nil, want build error")
		}
	})

	t.Run("run error closes router", func(t *testing.T) {
		t.Parallel()
		r := &fakeRunner{runErr: errors.New("handler setup")}
		svc := NewRouterService(func() (Runner, error) { return r, nil })
		if err := svc.Serve(context.Background()); err == nil {
			t.Error("Serve() = nil, want run error")
		}
		if !r.closed.Load() {
			t.Error("router not closed")
		}
	})

	t.Run("unexpected exit is an error", func(t *testing.T) {
		t.Parallel()
		r := &fakeRunner{exitFn: func(context.Context) {}}
		svc := NewRouterService(func() (Runner, error) { return r, nil })
		if err := svc.Serve(context.Background()); err == nil {
			t.Error("Serve() = nil, want restart-worthy error")
		}
	})
}

func TestPeriodicService_RunsUntilCanceled(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	svc := NewPeriodicService("gc", 5*time.Millisecond, func(context.Context) error {
		if calls.Add(1) == 1 {
			return errors.New("transient")
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for calls.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Serve() = %v, want context.Canceled", err)
	}
	if calls.Load() < 3 {
		t.Errorf("task ran %d times, want at least 3", calls.Load())
	}
	if svc.String() != "gc" {
		t.Errorf("String() = %q", svc.String())
	}
}
