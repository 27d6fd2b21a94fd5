// Voltbridge - EV Telemetry Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/voltbridge

package events

import (
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"

	"github.com/tomtom215/voltbridge/internal/models"
)

const (
	TopicStateUpdated = "vehicle.state.updated"
	TopicTierChanged  = "tenant.tier_changed"

	// TopicPoison receives messages whose handlers failed after all retries.
	TopicPoison = "voltbridge.poison"
)

// StateUpdated is published when the state cache accepts a newer observation.
// Previous is nil for the first state seen for a vehicle.
type StateUpdated struct {
	TenantID  string               `json:"tenant_id"`
	VehicleID string               `json:"vehicle_id"`
	Previous  *models.VehicleState `json:"previous,omitempty"`
	Current   models.VehicleState  `json:"current"`
}

// Decode unmarshals a message payload.
func Decode[T any](msg *message.Message) (T, error) {
	var v T
	if err := json.Unmarshal(msg.Payload, &v); err != nil {
		return v, fmt.Errorf("decode %T message %s: %w", v, msg.UUID, err)
	}
	return v, nil
}
