// Voltbridge - EV Telemetry Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/voltbridge

package api

import (
	"errors"
	"net/http"

	"github.com/tomtom215/voltbridge/internal/httpresp"
	"github.com/tomtom215/voltbridge/internal/models"
	"github.com/tomtom215/voltbridge/internal/notify"
	"github.com/tomtom215/voltbridge/internal/store"
)

// AlertPreferencesResponse adds the phone on file, which lives on the user.
type AlertPreferencesResponse struct {
	*models.AlertPreferences
	Phone string `json:"phone,omitempty"`
}

// GetAlertPreferences returns the caller's alert settings, or the defaults
// when none were saved.
//
// @Summary Get alert preferences
// @Tags Alerts
// @Produce json
// @Security BearerAuth
// @Success 200 {object} httpresp.Envelope{data=AlertPreferencesResponse}
// @Router /alerts/preferences [get]
func (h *Handler) GetAlertPreferences(w http.ResponseWriter, r *http.Request) {
	s, ok := subject(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	prefs, err := h.deps.Store.GetAlertPreferences(ctx, s.ID)
	if errors.Is(err, store.ErrNotFound) {
		prefs = notify.DefaultPreferences(s.ID, h.cfg.DefaultLowBatteryThreshold)
	} else if err != nil {
		httpresp.Internal(w, r, "failed to load alert preferences", err)
		return
	}
	user, err := h.deps.Store.GetUser(ctx, s.ID)
	if err != nil {
		httpresp.Internal(w, r, "failed to load user", err)
		return
	}
	httpresp.JSON(w, r, http.StatusOK, AlertPreferencesResponse{AlertPreferences: prefs, Phone: user.Phone})
}

// UpdateAlertPreferences replaces the caller's alert settings.
//
// @Summary Update alert preferences
// @Description sms_enabled requires a phone, either in the request (E.164) or already on file.
// @Tags Alerts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param prefs body models.UpdateAlertPreferencesRequest true "Preferences"
// @Success 200 {object} httpresp.Envelope{data=AlertPreferencesResponse}
// @Failure 422 {object} httpresp.Envelope
// @Router /alerts/preferences [put]
func (h *Handler) UpdateAlertPreferences(w http.ResponseWriter, r *http.Request) {
	s, ok := subject(w, r)
	if !ok {
		return
	}
	var req models.UpdateAlertPreferencesRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ctx := r.Context()
	user, err := h.deps.Store.GetUser(ctx, s.ID)
	if err != nil {
		httpresp.Internal(w, r, "failed to load user", err)
		return
	}
	phone := user.Phone
	if req.Phone != nil {
		phone = *req.Phone
	}
	if req.SMSEnabled && phone == "" {
		httpresp.Error(w, r, http.StatusUnprocessableEntity, httpresp.CodeValidation, "sms alerts require a phone number")
		return
	}
	if req.Phone != nil && phone != user.Phone {
		if err := h.deps.Store.UpdateUserPhone(ctx, s.ID, phone); err != nil {
			httpresp.Internal(w, r, "failed to save phone", err)
			return
		}
	}

	prefs := &models.AlertPreferences{
		UserID:              s.ID,
		SMSEnabled:          req.SMSEnabled,
		EmailEnabled:        req.EmailEnabled,
		LowBatteryThreshold: req.LowBatteryThreshold,
		ChargingComplete:    req.ChargingComplete,
		UpdatedAt:           h.now().UTC(),
	}
	if err := h.deps.Store.UpsertAlertPreferences(ctx, prefs); err != nil {
		httpresp.Internal(w, r, "failed to save alert preferences", err)
		return
	}
	httpresp.JSON(w, r, http.StatusOK, AlertPreferencesResponse{AlertPreferences: prefs, Phone: phone})
}
