// Voltbridge - EV Telemetry Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/voltbridge

package api

import (
	"errors"
	"net/http"
	"sort"

	"github.com/tomtom215/voltbridge/internal/httpresp"
	"github.com/tomtom215/voltbridge/internal/logging"
	"github.com/tomtom215/voltbridge/internal/models"
	"github.com/tomtom215/voltbridge/internal/payments"
	"github.com/tomtom215/voltbridge/internal/resilience"
	"github.com/tomtom215/voltbridge/internal/store"
)

// Subscription returns the tenant's subscription. Tenants that never
// subscribed get a synthetic free-tier record.
//
// @Summary Current subscription
// @Tags Billing
// @Produce json
// @Security BearerAuth
// @Success 200 {object} httpresp.Envelope{data=models.Subscription}
// @Router /billing/subscription [get]
func (h *Handler) Subscription(w http.ResponseWriter, r *http.Request) {
	s, ok := subject(w, r)
	if !ok {
		return
	}
	sub, err := h.deps.Store.GetSubscription(r.Context(), s.TenantID)
	if errors.Is(err, store.ErrNotFound) {
		tenant, terr := h.deps.Store.GetTenant(r.Context(), s.TenantID)
		if terr != nil {
			httpresp.Internal(w, r, "failed to load tenant", terr)
			return
		}
		httpresp.JSON(w, r, http.StatusOK, models.Subscription{TenantID: s.TenantID, Tier: tenant.Tier, Status: "none"})
		return
	}
	if err != nil {
		httpresp.Internal(w, r, "failed to load subscription", err)
		return
	}
	httpresp.JSON(w, r, http.StatusOK, sub)
}

// priceFor returns the price ID configured for tier. Several prices may map
// to one tier; the lexically first is used so the choice is stable.
func (h *Handler) priceFor(tier models.Tier) (string, bool) {
	var ids []string
	for id, t := range h.cfg.Prices {
		if t == tier {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return "", false
	}
	sort.Strings(ids)
	return ids[0], true
}

// Checkout opens a hosted checkout session for a paid tier.
//
// @Summary Start checkout
// @Description Identity tokens only. The tier changes when the provider confirms the subscription by webhook.
// @Tags Billing
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param checkout body models.CheckoutRequest true "Target tier"
// @Success 201 {object} httpresp.Envelope{data=models.CheckoutResponse}
// @Failure 422 {object} httpresp.Envelope
// @Failure 502 {object} httpresp.Envelope
// @Failure 503 {object} httpresp.Envelope
// @Router /billing/checkout [post]
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	s, ok := subject(w, r)
	if !ok {
		return
	}
	if h.deps.Checkout == nil {
		httpresp.Error(w, r, http.StatusServiceUnavailable, httpresp.CodeUnavailable, "payments are not enabled")
		return
	}
	var req models.CheckoutRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	price, ok := h.priceFor(req.Tier)
	if !ok {
		httpresp.Error(w, r, http.StatusUnprocessableEntity, httpresp.CodeValidation, "no price is configured for tier "+string(req.Tier))
		return
	}

	ctx := r.Context()
	tenant, err := h.deps.Store.GetTenant(ctx, s.TenantID)
	if err != nil {
		httpresp.Internal(w, r, "failed to load tenant", err)
		return
	}
	if tenant.Tier == req.Tier {
		httpresp.Error(w, r, http.StatusConflict, httpresp.CodeConflict, "tenant is already on tier "+string(req.Tier))
		return
	}

	session, err := h.deps.Checkout.CreateCheckoutSession(ctx, payments.CheckoutParams{
		TenantID:      tenant.ID,
		PriceID:       price,
		CustomerID:    tenant.PaymentCustomerID,
		CustomerEmail: s.Email,
		SuccessURL:    h.cfg.CheckoutSuccessURL,
		CancelURL:     h.cfg.CheckoutCancelURL,
	})
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("tier", string(req.Tier)).Msg("Checkout session failed")
		if resilience.IsOpen(err) {
			httpresp.Error(w, r, http.StatusServiceUnavailable, httpresp.CodeUnavailable, "payment provider temporarily unavailable")
			return
		}
		httpresp.Error(w, r, http.StatusBadGateway, httpresp.CodeExternal, "payment provider rejected the checkout")
		return
	}
	httpresp.JSON(w, r, http.StatusCreated, models.CheckoutResponse{SessionID: session.ID, URL: session.URL})
}
