// Voltbridge - EV Telemetry Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/voltbridge

package models

import "time"

// Vehicle links a vendor vehicle to a tenant.
type Vehicle struct {
	ID              string    `json:"id"`
	TenantID        string    `json:"tenant_id"`
	VendorVehicleID string    `json:"vendor_vehicle_id"`
	DisplayName     string    `json:"display_name"`
	CreatedAt       time.Time `json:"created_at"`
}

// StateSource records how a VehicleState reached the cache.
type StateSource string

const (
	SourceWebhook StateSource = "webhook"
	SourcePoll    StateSource = "poll"
)

// Charging states reported by the vendor.
const (
	ChargingStateDisconnected = "disconnected"
	ChargingStateStopped      = "stopped"
	ChargingStateCharging     = "charging"
	ChargingStateComplete     = "complete"
)

// VehicleState is one observation of a vehicle. ObservedAt is the vendor's
// timestamp and is the only field used to order observations; ReceivedAt
// is local bookkeeping.
type VehicleState struct {
	VehicleID     string      `json:"vehicle_id"`
	TenantID      string      `json:"tenant_id"`
	BatteryLevel  int         `json:"battery_level"`
	RangeKm       float64     `json:"range_km"`
	ChargingState string      `json:"charging_state"`
	PluggedIn     bool        `json:"plugged_in"`
	Locked        bool        `json:"locked"`
	OdometerKm    float64     `json:"odometer_km"`
	Latitude      float64     `json:"latitude"`
	Longitude     float64     `json:"longitude"`
	ObservedAt    time.Time   `json:"observed_at"`
	ReceivedAt    time.Time   `json:"received_at"`
	Source        StateSource `json:"source"`
}

// Age is how old the observation is relative to now.
func (s *VehicleState) Age(now time.Time) time.Duration {
	return now.Sub(s.ObservedAt)
}

// VehicleStateResponse is returned by GET /api/v1/vehicles/{id}/state.
// Stale is set when a refresh was needed but the vendor could not be reached.
type VehicleStateResponse struct {
	State *VehicleState `json:"state"`
	Stale bool          `json:"stale"`
	AgeMS int64         `json:"age_ms"`
}

// RegisterVehicleRequest is the body of POST /api/v1/vehicles.
type RegisterVehicleRequest struct {
	VendorVehicleID string `json:"vendor_vehicle_id" validate:"required,min=1,max=128"`
	DisplayName     string `json:"display_name" validate:"required,min=1,max=100"`
}

// Vehicle commands forwarded to the vendor.
const (
	CommandWake           = "wake"
	CommandChargeStart    = "charge_start"
	CommandChargeStop     = "charge_stop"
	CommandLock           = "lock"
	CommandUnlock         = "unlock"
	CommandClimateOn      = "climate_on"
	CommandClimateOff     = "climate_off"
	CommandSetChargeLimit = "set_charge_limit"
)

// Commands returns all supported vehicle commands.
func Commands() []string {
	return []string{
		CommandWake, CommandChargeStart, CommandChargeStop, CommandLock,
		CommandUnlock, CommandClimateOn, CommandClimateOff, CommandSetChargeLimit,
	}
}

// VehicleCommandRequest is the body of POST /api/v1/vehicles/{id}/commands.
// Percent is only read for set_charge_limit.
type VehicleCommandRequest struct {
	Command string `json:"command" validate:"required,vehicle_command"`
	Percent int    `json:"percent,omitempty" validate:"required_if=Command set_charge_limit,omitempty,min=50,max=100"`
}

// CommandResult is the vendor's answer to a command.
type CommandResult struct {
	Result bool   `json:"result"`
	Reason string `json:"reason,omitempty"`
}
