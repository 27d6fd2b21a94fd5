// Voltbridge - EV Telemetry Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/voltbridge

package notify

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/tomtom215/voltbridge/internal/events"
	"github.com/tomtom215/voltbridge/internal/logging"
	"github.com/tomtom215/voltbridge/internal/metrics"
	"github.com/tomtom215/voltbridge/internal/models"
)

// Alert kinds.
const (
	AlertLowBattery       = "low_battery"
	AlertChargingComplete = "charging_complete"
)

// Alert is one condition that fired for one recipient.
type Alert struct {
	Kind      string
	Recipient Recipient
	Subject   string
	Body      string
}

// AlertEvaluator turns accepted state updates into alerts.
type AlertEvaluator struct {
	store      Store
	dispatcher *Dispatcher
}

func NewAlertEvaluator(s Store, d *Dispatcher) *AlertEvaluator {
	return &AlertEvaluator{store: s, dispatcher: d}
}

// Handle is the events consumer for vehicle.state.updated. Delivery errors
// are logged, not returned, so a redelivery cannot repeat alerts that
// already went out.
func (a *AlertEvaluator) Handle(ctx context.Context, msg *message.Message) error {
	upd, err := events.Decode[events.StateUpdated](msg)
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("dropping malformed state update")
		return nil
	}
	alerts, err := a.Evaluate(ctx, upd)
	if err != nil {
		return err
	}
	for _, al := range alerts {
		metrics.RecordAlert(al.Kind, a.dispatcher.Deliver(ctx, al.Recipient, al.Subject, al.Body))
	}
	return nil
}

// Evaluate returns the alerts an update fires. The first observation of a
// vehicle fires nothing because there is no crossing to detect.
func (a *AlertEvaluator) Evaluate(ctx context.Context, upd events.StateUpdated) ([]Alert, error) {
	if upd.Previous == nil {
		return nil, nil
	}
	recipients, err := a.dispatcher.Recipients(ctx, upd.TenantID)
	if err != nil {
		return nil, err
	}
	if len(recipients) == 0 {
		return nil, nil
	}

	name := upd.VehicleID
	if v, err := a.store.GetVehicle(ctx, upd.TenantID, upd.VehicleID); err == nil && v.DisplayName != "" {
		name = v.DisplayName
	}

	var out []Alert
	for _, r := range recipients {
		for _, kind := range conditions(upd.Previous, &upd.Current, r.Prefs) {
			subject, body := alertMessage(kind, name, &upd.Current)
			out = append(out, Alert{Kind: kind, Recipient: r, Subject: subject, Body: body})
		}
	}
	return out, nil
}

func conditions(prev, cur *models.VehicleState, prefs *models.AlertPreferences) []string {
	var kinds []string
	if t := prefs.LowBatteryThreshold; t > 0 && prev.BatteryLevel > t && cur.BatteryLevel <= t {
		kinds = append(kinds, AlertLowBattery)
	}
	if prefs.ChargingComplete &&
		prev.ChargingState != models.ChargingStateComplete &&
		cur.ChargingState == models.ChargingStateComplete {
		kinds = append(kinds, AlertChargingComplete)
	}
	return kinds
}

func alertMessage(kind, vehicle string, s *models.VehicleState) (string, string) {
	switch kind {
	case AlertLowBattery:
		return fmt.Sprintf("%s battery low", vehicle),
			fmt.Sprintf("%s is at %d%% with about %.0f km of range left.", vehicle, s.BatteryLevel, s.RangeKm)
	default:
		return fmt.Sprintf("%s finished charging", vehicle),
			fmt.Sprintf("%s finished charging at %d%% (%.0f km of range).", vehicle, s.BatteryLevel, s.RangeKm)
	}
}
