// Voltbridge - EV Telemetry Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/voltbridge

package websocket

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/tomtom215/voltbridge/internal/events"
	"github.com/tomtom215/voltbridge/internal/logging"
	"github.com/tomtom215/voltbridge/internal/models"
)

// StateConsumer forwards vehicle.state.updated to the owning tenant's
// stream clients.
func (h *Hub) StateConsumer(_ context.Context, msg *message.Message) error {
	upd, err := events.Decode[events.StateUpdated](msg)
	if err != nil {
		logging.Error().Err(err).Msg("dropping malformed state update")
		return nil
	}
	if h.TenantClientCount(upd.TenantID) == 0 {
		return nil
	}
	h.Broadcast(upd.TenantID, MessageTypeVehicleState, upd.Current)
	return nil
}

// TierConsumer tells a tenant's clients that its plan changed.
func (h *Hub) TierConsumer(_ context.Context, msg *message.Message) error {
	change, err := events.Decode[models.TierChange](msg)
	if err != nil {
		logging.Error().Err(err).Msg("dropping malformed tier change")
		return nil
	}
	h.Broadcast(change.TenantID, MessageTypeTierChanged, change)
	return nil
}
