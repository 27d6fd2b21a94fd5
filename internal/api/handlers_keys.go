// Voltbridge - EV Telemetry Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/voltbridge

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/voltbridge/internal/httpresp"
	"github.com/tomtom215/voltbridge/internal/models"
	"github.com/tomtom215/voltbridge/internal/ratelimit"
	"github.com/tomtom215/voltbridge/internal/store"
)

// ListAPIKeys returns the tenant's keys, revoked ones included. Hashes are
// never serialized.
//
// @Summary List API keys
// @Tags Keys
// @Produce json
// @Security BearerAuth
// @Success 200 {object} httpresp.Envelope{data=[]models.APIKey}
// @Router /keys [get]
func (h *Handler) ListAPIKeys(w http.ResponseWriter, r *http.Request) {
	s, ok := subject(w, r)
	if !ok {
		return
	}
	keys, err := h.deps.Keys.List(r.Context(), s.TenantID)
	if err != nil {
		httpresp.Internal(w, r, "failed to list api keys", err)
		return
	}
	httpresp.List(w, r, keys, len(keys))
}

// CreateAPIKey issues a key. The plaintext is only in this response.
//
// @Summary Create API key
// @Description Identity tokens only. Subject to the tier's key quota. Without expires_in_days the configured default TTL applies.
// @Tags Keys
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param key body models.CreateAPIKeyRequest true "Key"
// @Success 201 {object} httpresp.Envelope{data=models.CreateAPIKeyResponse}
// @Failure 409 {object} httpresp.Envelope "Quota exceeded"
// @Failure 422 {object} httpresp.Envelope
// @Router /keys [post]
func (h *Handler) CreateAPIKey(w http.ResponseWriter, r *http.Request) {
	s, ok := subject(w, r)
	if !ok {
		return
	}
	var req models.CreateAPIKeyRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ctx := r.Context()
	if err := h.deps.Quotas.CheckAPIKey(ctx, s.TenantID, s.Tier); err != nil {
		if !ratelimit.WriteQuotaError(w, r, err) {
			httpresp.Internal(w, r, "failed to check api key quota", err)
		}
		return
	}

	if req.ExpiresInDays == nil && h.cfg.APIKeyDefaultTTL > 0 {
		days := int((h.cfg.APIKeyDefaultTTL + 24*time.Hour - 1) / (24 * time.Hour))
		req.ExpiresInDays = &days
	}

	key, plaintext, err := h.deps.Keys.Create(ctx, s.TenantID, s.ID, &req)
	if err != nil {
		httpresp.Internal(w, r, "failed to create api key", err)
		return
	}
	httpresp.JSON(w, r, http.StatusCreated, models.CreateAPIKeyResponse{Key: key, Plaintext: plaintext})
}

// RevokeAPIKey revokes a key of the tenant.
//
// @Summary Revoke API key
// @Tags Keys
// @Security BearerAuth
// @Param id path string true "Key ID"
// @Success 204
// @Failure 404 {object} httpresp.Envelope
// @Router /keys/{id} [delete]
func (h *Handler) RevokeAPIKey(w http.ResponseWriter, r *http.Request) {
	s, ok := subject(w, r)
	if !ok {
		return
	}
	err := h.deps.Keys.Revoke(r.Context(), s.TenantID, chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		httpresp.Error(w, r, http.StatusNotFound, httpresp.CodeNotFound, "api key not found")
		return
	}
	if err != nil {
		httpresp.Internal(w, r, "failed to revoke api key", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
