// Voltbridge - EV Telemetry Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/voltbridge

package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/tomtom215/voltbridge/internal/auth"
	"github.com/tomtom215/voltbridge/internal/cache"
	"github.com/tomtom215/voltbridge/internal/httpresp"
	"github.com/tomtom215/voltbridge/internal/models"
	"github.com/tomtom215/voltbridge/internal/payments"
	"github.com/tomtom215/voltbridge/internal/ratelimit"
	"github.com/tomtom215/voltbridge/internal/resilience"
	"github.com/tomtom215/voltbridge/internal/store"
	"github.com/tomtom215/voltbridge/internal/telemetry"
	"github.com/tomtom215/voltbridge/internal/validation"
	"github.com/tomtom215/voltbridge/internal/vehicle"
)

// maxBodyBytes bounds every request body, webhooks included.
const maxBodyBytes = 1 << 20

// Commander sends vehicle commands. *telemetry.Client implements it.
type Commander interface {
	SendCommand(ctx context.Context, vendorID, command string, params map[string]interface{}) (*models.CommandResult, error)
}

// VehicleDirectory lists the vehicles the vendor token can see. When set,
// registration only accepts vendor IDs it returns.
type VehicleDirectory interface {
	ListVehicles(ctx context.Context) ([]telemetry.VendorVehicle, error)
}

// CheckoutCreator opens hosted checkout sessions. *payments.Client implements it.
type CheckoutCreator interface {
	CreateCheckoutSession(ctx context.Context, p payments.CheckoutParams) (*payments.CheckoutSession, error)
}

// PaymentEventHandler applies provider events. *payments.Processor implements it.
type PaymentEventHandler interface {
	Handle(ctx context.Context, ev *payments.Event) error
}

// ReadinessCheck reports whether one dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

// Deps are the collaborators of Handler. Store, Reconciler, Keys and Quotas
// are required; the rest switch features off when nil.
type Deps struct {
	Store      store.Store
	Reconciler *vehicle.Reconciler
	Keys       *auth.APIKeyManager
	Quotas     *ratelimit.Quotas

	Commander Commander
	Directory VehicleDirectory
	Checkout  CheckoutCreator
	Payments  PaymentEventHandler
	Deduper   *cache.Deduper

	ReadyChecks map[string]ReadinessCheck
}

// HandlerConfig holds the settings handlers read on each request.
type HandlerConfig struct {
	Version string

	TelemetryWebhookSecret string
	PaymentsWebhookSecret  string
	SignatureTolerance     time.Duration

	// Prices maps provider price IDs to tiers.
	Prices             map[string]models.Tier
	CheckoutSuccessURL string
	CheckoutCancelURL  string

	APIKeyDefaultTTL           time.Duration
	DefaultLowBatteryThreshold int
	VehicleListTTL             time.Duration
}

// Handler serves every REST route.
type Handler struct {
	deps      Deps
	cfg       HandlerConfig
	startTime time.Time
	now       func() time.Time

	// vendorVehicles caches the directory listing under a single key.
	vendorVehicles *cache.TTL[[]telemetry.VendorVehicle]
}

func NewHandler(deps Deps, cfg HandlerConfig) *Handler {
	if deps.Deduper == nil {
		deps.Deduper = cache.NewDeduper(0, 0)
	}
	if cfg.VehicleListTTL <= 0 {
		cfg.VehicleListTTL = time.Minute
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	return &Handler{
		deps:           deps,
		cfg:            cfg,
		startTime:      time.Now(),
		now:            time.Now,
		vendorVehicles: cache.NewTTL[[]telemetry.VendorVehicle](cfg.VehicleListTTL, cfg.VehicleListTTL),
	}
}

// Close stops background cache cleanup.
func (h *Handler) Close() {
	h.vendorVehicles.Close()
}

// decodeJSON reads a bounded JSON body into dst and validates it. It writes
// the error response itself and reports whether the caller may continue.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			httpresp.Error(w, r, http.StatusBadRequest, httpresp.CodeBadRequest, "request body is required")
			return false
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpresp.Error(w, r, http.StatusRequestEntityTooLarge, httpresp.CodeBadRequest, "request body too large")
			return false
		}
		httpresp.Error(w, r, http.StatusBadRequest, httpresp.CodeBadRequest, "invalid JSON body")
		return false
	}
	if verr := validation.ValidateStruct(dst); verr != nil {
		httpresp.Validation(w, r, verr)
		return false
	}
	return true
}

// readBody reads a bounded raw body, as signature checks need the exact bytes.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpresp.Error(w, r, http.StatusRequestEntityTooLarge, httpresp.CodeBadRequest, "request body too large")
			return nil, false
		}
		httpresp.Error(w, r, http.StatusBadRequest, httpresp.CodeBadRequest, "failed to read request body")
		return nil, false
	}
	return body, true
}

// subject returns the authenticated caller. Routes that call it sit behind
// auth.Middleware.Authenticate, so a nil subject is a wiring bug.
func subject(w http.ResponseWriter, r *http.Request) (*auth.Subject, bool) {
	s := auth.SubjectFromContext(r.Context())
	if s == nil || s.TenantID == "" {
		httpresp.Error(w, r, http.StatusUnauthorized, httpresp.CodeUnauthorized, "authentication required")
		return nil, false
	}
	return s, true
}

// tenantVehicle loads the {id} vehicle of the caller's tenant. Vehicles of
// other tenants are reported as not found.
func (h *Handler) tenantVehicle(w http.ResponseWriter, r *http.Request, s *auth.Subject) (*models.Vehicle, bool) {
	id := chi.URLParam(r, "id")
	v, err := h.deps.Store.GetVehicle(r.Context(), s.TenantID, id)
	if errors.Is(err, store.ErrNotFound) {
		httpresp.Error(w, r, http.StatusNotFound, httpresp.CodeNotFound, "vehicle not found")
		return nil, false
	}
	if err != nil {
		httpresp.Internal(w, r, "failed to load vehicle", err)
		return nil, false
	}
	return v, true
}

// vendorError maps vendor client failures onto HTTP responses.
func vendorError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var status *telemetry.StatusError
	switch {
	case errors.Is(err, telemetry.ErrVehicleAsleep):
		httpresp.Error(w, r, http.StatusConflict, "VEHICLE_ASLEEP", "vehicle is asleep, send a wake command first")
	case errors.Is(err, telemetry.ErrUnknownCommand), errors.Is(err, telemetry.ErrInvalidParams):
		httpresp.Error(w, r, http.StatusUnprocessableEntity, httpresp.CodeValidation, err.Error())
	case resilience.IsOpen(err):
		httpresp.Error(w, r, http.StatusServiceUnavailable, httpresp.CodeUnavailable, "vehicle vendor temporarily unavailable")
	case errors.Is(err, context.DeadlineExceeded):
		httpresp.Error(w, r, http.StatusGatewayTimeout, httpresp.CodeExternal, fmt.Sprintf("vendor %s timed out", op))
	case errors.As(err, &status):
		httpresp.Error(w, r, http.StatusBadGateway, httpresp.CodeExternal, fmt.Sprintf("vendor %s failed with status %d", op, status.StatusCode))
	default:
		httpresp.Error(w, r, http.StatusBadGateway, httpresp.CodeExternal, fmt.Sprintf("vendor %s failed", op))
	}
}
