// Voltbridge - EV Telemetry Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/voltbridge

package api

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/crypto/bcrypt"

	"github.com/tomtom215/voltbridge/internal/auth"
	"github.com/tomtom215/voltbridge/internal/authz"
	"github.com/tomtom215/voltbridge/internal/config"
	"github.com/tomtom215/voltbridge/internal/httpresp"
	"github.com/tomtom215/voltbridge/internal/models"
	"github.com/tomtom215/voltbridge/internal/payments"
	"github.com/tomtom215/voltbridge/internal/ratelimit"
	"github.com/tomtom215/voltbridge/internal/store"
	"github.com/tomtom215/voltbridge/internal/telemetry"
	"github.com/tomtom215/voltbridge/internal/vehicle"
)

const (
	testTelemetrySecret = "telemetry-secret"
	testPaymentsSecret  = "payments-secret"

	tenantA = "tenant-a"
	tenantB = "tenant-b"
	ownerA  = "owner-a"
	memberA = "member-a"
	ownerB  = "owner-b"

	// headerTestSubject selects one of the env subjects.
	headerTestSubject = "X-Test-Subject"
)

// headerAuthenticator resolves subjects by name from a fixed table.
type headerAuthenticator struct {
	subjects map[string]*auth.Subject
}

func (a *headerAuthenticator) Authenticate(_ context.Context, r *http.Request) (*auth.Subject, error) {
	name := r.Header.Get(headerTestSubject)
	if name == "" {
		return nil, auth.ErrNoCredentials
	}
	s, ok := a.subjects[name]
	if !ok {
		return nil, auth.ErrInvalidCredentials
	}
	cp := *s
	return &cp, nil
}

func (a *headerAuthenticator) Name() string  { return "test" }
func (a *headerAuthenticator) Priority() int { return 0 }

type fakePoller struct {
	mu     sync.Mutex
	states map[string]*models.VehicleState
	err    error
	calls  int
}

func (p *fakePoller) GetVehicleState(_ context.Context, vendorID string) (*models.VehicleState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	s, ok := p.states[vendorID]
	if !ok {
		return nil, &telemetry.StatusError{StatusCode: http.StatusNotFound, Body: "unknown vehicle"}
	}
	cp := *s
	return &cp, nil
}

type fakeCommander struct {
	mu     sync.Mutex
	err    error
	sent   []string
	params []map[string]interface{}
}

func (c *fakeCommander) SendCommand(_ context.Context, vendorID, command string, params map[string]interface{}) (*models.CommandResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	c.sent = append(c.sent, vendorID+"/"+command)
	c.params = append(c.params, params)
	return &models.CommandResult{Result: true}, nil
}

type fakeCheckout struct {
	got payments.CheckoutParams
	err error
}

func (c *fakeCheckout) CreateCheckoutSession(_ context.Context, p payments.CheckoutParams) (*payments.CheckoutSession, error) {
	c.got = p
	if c.err != nil {
		return nil, c.err
	}
	return &payments.CheckoutSession{ID: "cs_1", URL: "https://pay.example/cs_1"}, nil
}

type fakeProcessor struct {
	mu      sync.Mutex
	handled []string
	failN   int
}

func (p *fakeProcessor) Handle(_ context.Context, ev *payments.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failN > 0 {
		p.failN--
		return errors.New("store unavailable")
	}
	p.handled = append(p.handled, ev.ID)
	return nil
}

func (p *fakeProcessor) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.handled)
}

type testEnv struct {
	store     *store.Memory
	handler   *Handler
	server    http.Handler
	poller    *fakePoller
	commander *fakeCommander
	checkout  *fakeCheckout
	processor *fakeProcessor
	ready     map[string]ReadinessCheck
}

func testTiers() config.TiersConfig {
	return config.TiersConfig{
		Free:  config.TierLimits{RequestsPerMinute: 10000, MaxVehicles: 2, MaxAPIKeys: 1},
		Pro:   config.TierLimits{RequestsPerMinute: 10000, MaxVehicles: 10, MaxAPIKeys: 5},
		Fleet: config.TierLimits{RequestsPerMinute: 10000},
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	mem := store.NewMemory()
	now := time.Now().UTC()
	seed := []struct {
		tenant string
		owner  string
	}{{tenantA, ownerA}, {tenantB, ownerB}}
	for _, s := range seed {
		err := mem.CreateTenantWithOwner(ctx,
			&models.Tenant{ID: s.tenant, Name: s.tenant, Tier: models.TierFree, CreatedAt: now},
			&models.User{ID: s.owner, TenantID: s.tenant, Email: s.owner + "@example.com", Role: models.RoleOwner, CreatedAt: now},
		)
		if err != nil {
			t.Fatalf("seed tenant: %v", err)
		}
	}

	enforcer, err := authz.NewEnforcer(authz.DefaultEnforcerConfig())
	if err != nil {
		t.Fatalf("NewEnforcer: %v", err)
	}
	t.Cleanup(enforcer.Close)

	poller := &fakePoller{states: map[string]*models.VehicleState{}}
	reconciler := vehicle.NewReconciler(vehicle.NewStateCache(), poller, 30*time.Second)
	env := &testEnv{
		store:     mem,
		poller:    poller,
		commander: &fakeCommander{},
		checkout:  &fakeCheckout{},
		processor: &fakeProcessor{},
		ready:     map[string]ReadinessCheck{},
	}

	tiers := testTiers()
	env.handler = NewHandler(Deps{
		Store:       mem,
		Reconciler:  reconciler,
		Keys:        auth.NewAPIKeyManager(mem, auth.WithBcryptCost(bcrypt.MinCost)),
		Quotas:      ratelimit.NewQuotas(tiers, mem),
		Commander:   env.commander,
		Checkout:    env.checkout,
		Payments:    env.processor,
		ReadyChecks: env.ready,
	}, HandlerConfig{
		Version:                    "test",
		TelemetryWebhookSecret:     testTelemetrySecret,
		PaymentsWebhookSecret:      testPaymentsSecret,
		SignatureTolerance:         5 * time.Minute,
		Prices:                     map[string]models.Tier{"price_pro": models.TierPro, "price_fleet": models.TierFleet},
		DefaultLowBatteryThreshold: 20,
	})
	t.Cleanup(env.handler.Close)

	authn := auth.NewMiddleware(&headerAuthenticator{subjects: map[string]*auth.Subject{
		ownerA: {ID: ownerA, TenantID: tenantA, Email: ownerA + "@example.com", Roles: []string{"owner"}, Tier: models.TierFree, AuthMethod: auth.MethodJWT},
		memberA: {ID: memberA, TenantID: tenantA, Roles: []string{"member"}, Tier: models.TierFree, AuthMethod: auth.MethodJWT},
		ownerB: {ID: ownerB, TenantID: tenantB, Roles: []string{"owner"}, Tier: models.TierFree, AuthMethod: auth.MethodJWT},
		"key-read": {ID: "key-read", TenantID: tenantA, Roles: []string{"integration"}, Tier: models.TierFree,
			AuthMethod: auth.MethodAPIKey, KeyID: "key-read", Scopes: []models.KeyScope{models.ScopeVehiclesRead}},
		"key-command": {ID: "key-command", TenantID: tenantA, Roles: []string{"integration"}, Tier: models.TierFree,
			AuthMethod: auth.MethodAPIKey, KeyID: "key-command", Scopes: []models.KeyScope{models.ScopeVehiclesRead, models.ScopeVehiclesCommand}},
	}}, nil)

	stream := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusSwitchingProtocols) })
	router := NewRouter(env.handler, nil, authn, authz.NewMiddleware(enforcer), ratelimit.NewTierLimiter(tiers), stream,
		RouterConfig{MetricsEnabled: true})
	env.server = router.Setup()
	return env
}

// addVehicle registers a vehicle directly in the store.
func (e *testEnv) addVehicle(t *testing.T, tenantID, id, vendorID string) *models.Vehicle {
	t.Helper()
	v := &models.Vehicle{ID: id, TenantID: tenantID, VendorVehicleID: vendorID, DisplayName: "Car " + id, CreatedAt: time.Now().UTC()}
	if err := e.store.CreateVehicle(context.Background(), v); err != nil {
		t.Fatalf("CreateVehicle: %v", err)
	}
	return v
}

// do sends a request as the named subject; an empty name is anonymous.
func (e *testEnv) do(t *testing.T, as, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.([]byte); ok {
			buf.Write(raw)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if as != "" {
		req.Header.Set(headerTestSubject, as)
	}
	rec := httptest.NewRecorder()
	e.server.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Success bool               `json:"success"`
	Data    json.RawMessage    `json:"data"`
	Error   *httpresp.APIError `json:"error"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder, data interface{}) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope %q: %v", rec.Body.String(), err)
	}
	if data != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, data); err != nil {
			t.Fatalf("decode data %s: %v", env.Data, err)
		}
	}
	return env
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d; body: %s", rec.Code, want, rec.Body.String())
	}
}

func expectError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	expectStatus(t, rec, status)
	env := decodeEnvelope(t, rec, nil)
	if env.Error == nil || env.Error.Code != code {
		t.Fatalf("error = %+v, want code %s", env.Error, code)
	}
}
