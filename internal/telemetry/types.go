// Voltbridge - EV Telemetry Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/voltbridge

package telemetry

import (
	"time"

	"github.com/tomtom215/voltbridge/internal/models"
)

// Webhook event types sent by the vendor.
const (
	EventVehicleState     = "vehicle.state"
	EventChargingComplete = "vehicle.charging_complete"
)

// StateData is the vehicle snapshot shared by poll responses and webhooks.
type StateData struct {
	BatteryLevel  int     `json:"battery_level"`
	RangeKm       float64 `json:"range_km"`
	ChargingState string  `json:"charging_state"`
	PluggedIn     bool    `json:"plugged_in"`
	Locked        bool    `json:"locked"`
	OdometerKm    float64 `json:"odometer_km"`
	Latitude      float64 `json:"latitude"`
	Longitude     float64 `json:"longitude"`
}

// ToState converts vendor data observed at t into a cache entry. Vehicle
// and tenant IDs are filled in by the caller.
func (d StateData) ToState(observedAt time.Time, source models.StateSource) models.VehicleState {
	return models.VehicleState{
		BatteryLevel:  d.BatteryLevel,
		RangeKm:       d.RangeKm,
		ChargingState: d.ChargingState,
		PluggedIn:     d.PluggedIn,
		Locked:        d.Locked,
		OdometerKm:    d.OdometerKm,
		Latitude:      d.Latitude,
		Longitude:     d.Longitude,
		ObservedAt:    observedAt.UTC(),
		Source:        source,
	}
}

// StateResponse is the body of GET /v1/vehicles/{id}/state.
type StateResponse struct {
	VehicleID string    `json:"vehicle_id"`
	Timestamp time.Time `json:"timestamp"`
	StateData
}

// WebhookEvent is the body the vendor POSTs to /api/v1/webhooks/telemetry.
type WebhookEvent struct {
	EventID   string    `json:"event_id" validate:"required,max=128"`
	EventType string    `json:"event_type" validate:"required,oneof=vehicle.state vehicle.charging_complete"`
	VehicleID string    `json:"vehicle_id" validate:"required,max=128"`
	Timestamp time.Time `json:"timestamp" validate:"required"`
	Data      StateData `json:"data"`
}

// VendorVehicle is one entry of GET /v1/vehicles.
type VendorVehicle struct {
	ID          string `json:"id"`
	VIN         string `json:"vin"`
	DisplayName string `json:"display_name"`
}

type vehicleList struct {
	Vehicles []VendorVehicle `json:"vehicles"`
}
