// Voltbridge - EV Telemetry Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/voltbridge

package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/tomtom215/voltbridge/internal/httpresp"
	"github.com/tomtom215/voltbridge/internal/logging"
	"github.com/tomtom215/voltbridge/internal/metrics"
	"github.com/tomtom215/voltbridge/internal/models"
	"github.com/tomtom215/voltbridge/internal/payments"
	"github.com/tomtom215/voltbridge/internal/store"
	"github.com/tomtom215/voltbridge/internal/telemetry"
	"github.com/tomtom215/voltbridge/internal/validation"
	"github.com/tomtom215/voltbridge/internal/webhook"
)

const (
	HeaderTelemetrySignature = "X-Telemetry-Signature"
	HeaderPaymentSignature   = "Payment-Signature"

	providerTelemetry = "telemetry"
	providerPayments  = "payments"
)

// Webhook outcomes, reported in the response and the received counter.
const (
	OutcomeAccepted  = "accepted"
	OutcomeStale     = "stale"
	OutcomeDuplicate = "duplicate"
	OutcomeIgnored   = "ignored"
)

// WebhookResponse is the body of every acknowledged webhook.
type WebhookResponse struct {
	Status    string `json:"status"`
	EventID   string `json:"event_id"`
	VehicleID string `json:"vehicle_id,omitempty"`
}

// rejectSignature writes the response for a failed signature check.
func rejectSignature(w http.ResponseWriter, r *http.Request, provider string, err error) {
	reason := webhook.Reason(err)
	metrics.WebhooksRejected.WithLabelValues(provider, reason).Inc()
	logging.Ctx(r.Context()).Warn().Str("provider", provider).Str("reason", reason).Msg("Webhook rejected")

	switch {
	case errors.Is(err, webhook.ErrNoSecret):
		httpresp.Error(w, r, http.StatusServiceUnavailable, httpresp.CodeUnavailable, provider+" webhooks are not configured")
	case errors.Is(err, webhook.ErrMissingSignature):
		httpresp.Error(w, r, http.StatusUnauthorized, httpresp.CodeMissingSignature, "missing webhook signature")
	default:
		httpresp.Error(w, r, http.StatusUnauthorized, httpresp.CodeInvalidSignature, "invalid webhook signature")
	}
}

// claimEvent reports whether this delivery is the first for eventID. The
// in-memory deduper answers repeats cheaply; the store is the durable record.
func (h *Handler) claimEvent(ctx context.Context, provider, eventID string) (bool, error) {
	key := provider + ":" + eventID
	if h.deps.Deduper.IsDuplicate(key) {
		return false, nil
	}
	first, err := h.deps.Store.RecordWebhookEvent(ctx, provider, eventID, h.now())
	if err != nil {
		h.deps.Deduper.Forget(key)
		return false, err
	}
	return first, nil
}

// releaseEvent undoes claimEvent after a processing failure so the
// provider's retry is handled.
func (h *Handler) releaseEvent(ctx context.Context, provider, eventID string) {
	h.deps.Deduper.Forget(provider + ":" + eventID)
	if err := h.deps.Store.ForgetWebhookEvent(ctx, provider, eventID); err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("provider", provider).Str("event_id", eventID).
			Msg("Failed to release webhook event, provider retry will be dropped")
	}
}

func (h *Handler) acknowledge(w http.ResponseWriter, r *http.Request, provider string, resp WebhookResponse) {
	metrics.WebhooksReceived.WithLabelValues(provider, resp.Status).Inc()
	httpresp.JSON(w, r, http.StatusOK, resp)
}

// TelemetryWebhook merges a vendor state push into the state cache.
//
// @Summary Vehicle telemetry webhook
// @Description Signed with HMAC-SHA256 of the raw body in X-Telemetry-Signature. Duplicate event IDs and unknown vehicles are acknowledged without processing.
// @Tags Webhooks
// @Accept json
// @Produce json
// @Param X-Telemetry-Signature header string true "hex HMAC-SHA256, optionally sha256= prefixed"
// @Param event body telemetry.WebhookEvent true "Vendor event"
// @Success 200 {object} httpresp.Envelope{data=WebhookResponse}
// @Failure 400 {object} httpresp.Envelope
// @Failure 401 {object} httpresp.Envelope
// @Failure 422 {object} httpresp.Envelope
// @Router /webhooks/telemetry [post]
func (h *Handler) TelemetryWebhook(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	if err := webhook.VerifyHMAC(body, h.cfg.TelemetryWebhookSecret, r.Header.Get(HeaderTelemetrySignature)); err != nil {
		rejectSignature(w, r, providerTelemetry, err)
		return
	}

	var ev telemetry.WebhookEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		metrics.WebhooksRejected.WithLabelValues(providerTelemetry, "malformed").Inc()
		httpresp.Error(w, r, http.StatusBadRequest, httpresp.CodeBadRequest, "invalid JSON body")
		return
	}
	if verr := validation.ValidateStruct(&ev); verr != nil {
		metrics.WebhooksRejected.WithLabelValues(providerTelemetry, "invalid").Inc()
		httpresp.Validation(w, r, verr)
		return
	}

	ctx := r.Context()
	logger := logging.Ctx(ctx).With().Str("event_id", ev.EventID).Str("vendor_vehicle_id", ev.VehicleID).Logger()

	first, err := h.claimEvent(ctx, providerTelemetry, ev.EventID)
	if err != nil {
		httpresp.Internal(w, r, "failed to record webhook event", err)
		return
	}
	resp := WebhookResponse{EventID: ev.EventID}
	if !first {
		resp.Status = OutcomeDuplicate
		h.acknowledge(w, r, providerTelemetry, resp)
		return
	}

	v, err := h.deps.Store.GetVehicleByVendorID(ctx, ev.VehicleID)
	if errors.Is(err, store.ErrNotFound) {
		// Acknowledged so the vendor stops retrying a vehicle nobody registered.
		logger.Debug().Msg("Telemetry for unregistered vehicle ignored")
		resp.Status = OutcomeIgnored
		h.acknowledge(w, r, providerTelemetry, resp)
		return
	}
	if err != nil {
		h.releaseEvent(ctx, providerTelemetry, ev.EventID)
		httpresp.Internal(w, r, "failed to look up vehicle", err)
		return
	}

	state := ev.Data.ToState(ev.Timestamp, models.SourceWebhook)
	state.VehicleID = v.ID
	state.TenantID = v.TenantID
	if ev.EventType == telemetry.EventChargingComplete {
		state.ChargingState = models.ChargingStateComplete
	}

	res, err := h.deps.Reconciler.Cache().Merge(ctx, state)
	if err != nil {
		h.releaseEvent(ctx, providerTelemetry, ev.EventID)
		httpresp.Internal(w, r, "failed to merge vehicle state", err)
		return
	}

	resp.VehicleID = v.ID
	resp.Status = OutcomeStale
	if res.Accepted {
		resp.Status = OutcomeAccepted
	}
	logger.Debug().Str("vehicle_id", v.ID).Str("outcome", resp.Status).Msg("Telemetry webhook processed")
	h.acknowledge(w, r, providerTelemetry, resp)
}

// PaymentsWebhook applies a payment provider event.
//
// @Summary Payment provider webhook
// @Description Payment-Signature carries t=<unix>,v1=<hex> over "<t>.<body>". Unknown event types are acknowledged.
// @Tags Webhooks
// @Accept json
// @Produce json
// @Param Payment-Signature header string true "timestamped signature"
// @Success 200 {object} httpresp.Envelope{data=WebhookResponse}
// @Failure 400 {object} httpresp.Envelope
// @Failure 401 {object} httpresp.Envelope
// @Failure 500 {object} httpresp.Envelope
// @Router /webhooks/payments [post]
func (h *Handler) PaymentsWebhook(w http.ResponseWriter, r *http.Request) {
	if h.deps.Payments == nil {
		httpresp.Error(w, r, http.StatusServiceUnavailable, httpresp.CodeUnavailable, "payments are not enabled")
		return
	}
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	err := webhook.VerifyTimestamped(body, r.Header.Get(HeaderPaymentSignature), h.cfg.PaymentsWebhookSecret, h.cfg.SignatureTolerance, h.now())
	if err != nil {
		rejectSignature(w, r, providerPayments, err)
		return
	}

	ev, err := payments.ParseEvent(body)
	if err != nil {
		metrics.WebhooksRejected.WithLabelValues(providerPayments, "malformed").Inc()
		httpresp.Error(w, r, http.StatusBadRequest, httpresp.CodeBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	first, err := h.claimEvent(ctx, providerPayments, ev.ID)
	if err != nil {
		httpresp.Internal(w, r, "failed to record webhook event", err)
		return
	}
	resp := WebhookResponse{EventID: ev.ID}
	if !first {
		resp.Status = OutcomeDuplicate
		h.acknowledge(w, r, providerPayments, resp)
		return
	}

	if err := h.deps.Payments.Handle(ctx, ev); err != nil {
		// A 500 makes the provider retry, so the event must be claimable again.
		h.releaseEvent(ctx, providerPayments, ev.ID)
		httpresp.Internal(w, r, "failed to process payment event", err)
		return
	}
	logging.Ctx(ctx).Info().Str("event_id", ev.ID).Str("type", ev.Type).Msg("Payment event processed")
	resp.Status = OutcomeAccepted
	h.acknowledge(w, r, providerPayments, resp)
}
