// Voltbridge - EV Telemetry Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/voltbridge

//go:build integration

package testinfra

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/tomtom215/voltbridge/internal/config"
	"github.com/tomtom215/voltbridge/internal/events"
	"github.com/tomtom215/voltbridge/internal/models"
)

func TestNATSBus_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	SkipIfNoDocker(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	nats, err := NewNATSContainer(ctx)
	if err != nil {
		t.Fatalf("Failed to start NATS container: %v", err)
	}
	defer CleanupContainer(t, ctx, nats.Container)

	bus, err := events.NewBus(config.EventsConfig{Backend: events.BackendNATS, NATSURL: nats.URL}, nil)
	if err != nil {
		t.Fatalf("NewBus: %v\n%s", err, ContainerLogs(ctx, nats.Container))
	}
	defer bus.Close()

	router, err := events.NewRouter(events.DefaultRouterConfig(), bus)
	if err != nil {
		t.Fatal(err)
	}
	got := make(chan events.StateUpdated, 16)
	router.AddConsumer("state", events.TopicStateUpdated, func(_ context.Context, msg *message.Message) error {
		ev, err := events.Decode[events.StateUpdated](msg)
		if err != nil {
			return err
		}
		got <- ev
		return nil
	})

	runCtx, stop := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = router.Run(runCtx)
	}()
	defer func() {
		stop()
		<-done
	}()
	<-router.Running()

	want := events.StateUpdated{TenantID: "t1", VehicleID: "v1", Current: models.VehicleState{VehicleID: "v1", BatteryLevel: 81}}
	// Core NATS drops messages published before the subscription is
	// registered server side.
	tick := time.NewTicker(200 * time.Millisecond)
	defer tick.Stop()
	for {
		if err := bus.Publish(ctx, events.TopicStateUpdated, want); err != nil {
			t.Fatalf("Publish: %v", err)
		}
		select {
		case ev := <-got:
			if ev.VehicleID != "v1" || ev.Current.BatteryLevel != 81 {
				t.Errorf("event = %+v", ev)
			}
			return
		case <-tick.C:
		case <-ctx.Done():
			t.Fatal("no message received over NATS")
		}
	}
}
