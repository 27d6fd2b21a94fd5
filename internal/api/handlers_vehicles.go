// Voltbridge - EV Telemetry Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/voltbridge

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/voltbridge/internal/auth"
	"github.com/tomtom215/voltbridge/internal/httpresp"
	"github.com/tomtom215/voltbridge/internal/logging"
	"github.com/tomtom215/voltbridge/internal/models"
	"github.com/tomtom215/voltbridge/internal/ratelimit"
	"github.com/tomtom215/voltbridge/internal/store"
	"github.com/tomtom215/voltbridge/internal/vehicle"
)

// maxStateAge caps the max_age query parameter.
const maxStateAge = 24 * time.Hour

const vendorVehiclesKey = "vendor-vehicles"

// MeResponse describes the caller.
type MeResponse struct {
	Subject *auth.Subject  `json:"subject"`
	Tenant  *models.Tenant `json:"tenant"`
}

// Me returns the authenticated subject and its tenant.
//
// @Summary Current caller
// @Tags Account
// @Produce json
// @Security BearerAuth
// @Security APIKeyAuth
// @Success 200 {object} httpresp.Envelope{data=MeResponse}
// @Failure 401 {object} httpresp.Envelope
// @Router /me [get]
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	s, ok := subject(w, r)
	if !ok {
		return
	}
	tenant, err := h.deps.Store.GetTenant(r.Context(), s.TenantID)
	if err != nil {
		httpresp.Internal(w, r, "failed to load tenant", err)
		return
	}
	httpresp.JSON(w, r, http.StatusOK, MeResponse{Subject: s, Tenant: tenant})
}

// ListVehicles returns the tenant's registered vehicles.
//
// @Summary List vehicles
// @Tags Vehicles
// @Produce json
// @Security BearerAuth
// @Security APIKeyAuth
// @Success 200 {object} httpresp.Envelope{data=[]models.Vehicle}
// @Router /vehicles [get]
func (h *Handler) ListVehicles(w http.ResponseWriter, r *http.Request) {
	s, ok := subject(w, r)
	if !ok {
		return
	}
	vehicles, err := h.deps.Store.ListVehicles(r.Context(), s.TenantID)
	if err != nil {
		httpresp.Internal(w, r, "failed to list vehicles", err)
		return
	}
	httpresp.List(w, r, vehicles, len(vehicles))
}

// RegisterVehicle adds a vendor vehicle to the tenant.
//
// @Summary Register vehicle
// @Description Subject to the tier's vehicle quota. A vendor vehicle belongs to at most one tenant.
// @Tags Vehicles
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param vehicle body models.RegisterVehicleRequest true "Vehicle"
// @Success 201 {object} httpresp.Envelope{data=models.Vehicle}
// @Failure 409 {object} httpresp.Envelope "Already registered or quota exceeded"
// @Failure 422 {object} httpresp.Envelope
// @Router /vehicles [post]
func (h *Handler) RegisterVehicle(w http.ResponseWriter, r *http.Request) {
	s, ok := subject(w, r)
	if !ok {
		return
	}
	var req models.RegisterVehicleRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ctx := r.Context()
	if err := h.deps.Quotas.CheckVehicle(ctx, s.TenantID, s.Tier); err != nil {
		if !ratelimit.WriteQuotaError(w, r, err) {
			httpresp.Internal(w, r, "failed to check vehicle quota", err)
		}
		return
	}

	if h.deps.Directory != nil {
		known, err := h.vendorKnows(r, req.VendorVehicleID)
		if err != nil {
			vendorError(w, r, "vehicle listing", err)
			return
		}
		if !known {
			httpresp.Error(w, r, http.StatusUnprocessableEntity, httpresp.CodeValidation, "vendor_vehicle_id is not visible to the vendor account")
			return
		}
	}

	v := &models.Vehicle{
		ID:              uuid.New().String(),
		TenantID:        s.TenantID,
		VendorVehicleID: req.VendorVehicleID,
		DisplayName:     req.DisplayName,
		CreatedAt:       h.now().UTC(),
	}
	if err := h.deps.Store.CreateVehicle(ctx, v); err != nil {
		if errors.Is(err, store.ErrConflict) {
			httpresp.Error(w, r, http.StatusConflict, httpresp.CodeConflict, "vehicle is already registered")
			return
		}
		httpresp.Internal(w, r, "failed to register vehicle", err)
		return
	}
	logging.Ctx(ctx).Info().Str("vehicle_id", v.ID).Str("vendor_vehicle_id", v.VendorVehicleID).Msg("Vehicle registered")
	httpresp.JSON(w, r, http.StatusCreated, v)
}

// vendorKnows checks id against the cached vendor listing.
func (h *Handler) vendorKnows(r *http.Request, id string) (bool, error) {
	list, ok := h.vendorVehicles.Get(vendorVehiclesKey)
	if !ok {
		fetched, err := h.deps.Directory.ListVehicles(r.Context())
		if err != nil {
			return false, err
		}
		h.vendorVehicles.Set(vendorVehiclesKey, fetched)
		list = fetched
	}
	for _, vv := range list {
		if vv.ID == id {
			return true, nil
		}
	}
	return false, nil
}

// DeleteVehicle removes a vehicle and its cached state.
//
// @Summary Delete vehicle
// @Tags Vehicles
// @Security BearerAuth
// @Param id path string true "Vehicle ID"
// @Success 204
// @Failure 404 {object} httpresp.Envelope
// @Router /vehicles/{id} [delete]
func (h *Handler) DeleteVehicle(w http.ResponseWriter, r *http.Request) {
	s, ok := subject(w, r)
	if !ok {
		return
	}
	v, ok := h.tenantVehicle(w, r, s)
	if !ok {
		return
	}
	ctx := r.Context()
	if err := h.deps.Store.DeleteVehicle(ctx, s.TenantID, v.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httpresp.Error(w, r, http.StatusNotFound, httpresp.CodeNotFound, "vehicle not found")
			return
		}
		httpresp.Internal(w, r, "failed to delete vehicle", err)
		return
	}
	h.deps.Reconciler.Cache().Delete(ctx, v.ID)
	w.WriteHeader(http.StatusNoContent)
}

// VehicleState returns cached state, polling the vendor when it is older
// than max_age.
//
// @Summary Vehicle state
// @Description Serves the cache when fresh enough, polls otherwise. A failed poll with cached state returns it with stale=true.
// @Tags Vehicles
// @Produce json
// @Security BearerAuth
// @Security APIKeyAuth
// @Param id path string true "Vehicle ID"
// @Param max_age query string false "Go duration, e.g. 30s"
// @Success 200 {object} httpresp.Envelope{data=models.VehicleStateResponse}
// @Failure 400 {object} httpresp.Envelope
// @Failure 404 {object} httpresp.Envelope
// @Failure 409 {object} httpresp.Envelope "Vehicle asleep"
// @Failure 502 {object} httpresp.Envelope
// @Router /vehicles/{id}/state [get]
func (h *Handler) VehicleState(w http.ResponseWriter, r *http.Request) {
	s, ok := subject(w, r)
	if !ok {
		return
	}
	maxAge := vehicle.DefaultMaxAge
	if raw := r.URL.Query().Get("max_age"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d < 0 || d > maxStateAge {
			httpresp.Error(w, r, http.StatusBadRequest, httpresp.CodeBadRequest, "max_age must be a duration between 0s and 24h")
			return
		}
		maxAge = d
	}
	v, ok := h.tenantVehicle(w, r, s)
	if !ok {
		return
	}
	resp, err := h.deps.Reconciler.State(r.Context(), v, maxAge)
	if err != nil {
		vendorError(w, r, "state poll", err)
		return
	}
	httpresp.JSON(w, r, http.StatusOK, resp)
}

// RefreshVehicle forces a vendor poll.
//
// @Summary Refresh vehicle state
// @Tags Vehicles
// @Produce json
// @Security BearerAuth
// @Security APIKeyAuth
// @Param id path string true "Vehicle ID"
// @Success 200 {object} httpresp.Envelope{data=models.VehicleStateResponse}
// @Failure 404 {object} httpresp.Envelope
// @Failure 502 {object} httpresp.Envelope
// @Router /vehicles/{id}/refresh [post]
func (h *Handler) RefreshVehicle(w http.ResponseWriter, r *http.Request) {
	s, ok := subject(w, r)
	if !ok {
		return
	}
	v, ok := h.tenantVehicle(w, r, s)
	if !ok {
		return
	}
	resp, err := h.deps.Reconciler.Refresh(r.Context(), v)
	if err != nil {
		vendorError(w, r, "state poll", err)
		return
	}
	httpresp.JSON(w, r, http.StatusOK, resp)
}

// VehicleCommand forwards a command to the vendor.
//
// @Summary Send vehicle command
// @Description API keys need the vehicles:command scope. set_charge_limit takes percent 50..100.
// @Tags Vehicles
// @Accept json
// @Produce json
// @Security BearerAuth
// @Security APIKeyAuth
// @Param id path string true "Vehicle ID"
// @Param command body models.VehicleCommandRequest true "Command"
// @Success 200 {object} httpresp.Envelope{data=models.CommandResult}
// @Failure 409 {object} httpresp.Envelope "Vehicle asleep"
// @Failure 422 {object} httpresp.Envelope
// @Failure 502 {object} httpresp.Envelope
// @Router /vehicles/{id}/commands [post]
func (h *Handler) VehicleCommand(w http.ResponseWriter, r *http.Request) {
	s, ok := subject(w, r)
	if !ok {
		return
	}
	if h.deps.Commander == nil {
		httpresp.Error(w, r, http.StatusServiceUnavailable, httpresp.CodeUnavailable, "vehicle commands are not enabled")
		return
	}
	var req models.VehicleCommandRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	v, ok := h.tenantVehicle(w, r, s)
	if !ok {
		return
	}

	var params map[string]interface{}
	if req.Command == models.CommandSetChargeLimit {
		params = map[string]interface{}{"percent": req.Percent}
	}
	result, err := h.deps.Commander.SendCommand(r.Context(), v.VendorVehicleID, req.Command, params)
	if err != nil {
		vendorError(w, r, "command", err)
		return
	}
	logging.Ctx(r.Context()).Info().
		Str("vehicle_id", v.ID).
		Str("command", req.Command).
		Str("subject", s.ID).
		Bool("result", result.Result).
		Msg("Vehicle command sent")
	httpresp.JSON(w, r, http.StatusOK, result)
}
