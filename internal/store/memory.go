// Voltbridge - EV Telemetry Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/voltbridge

package store

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tomtom215/voltbridge/internal/models"
)

// Memory is a mutex-guarded Store. Values are copied in and out so callers
// never share memory with the store.
type Memory struct {
	mu            sync.RWMutex
	tenants       map[string]models.Tenant
	users         map[string]models.User
	vehicles      map[string]models.Vehicle
	vendorIndex   map[string]string
	apiKeys       map[string]models.APIKey
	subscriptions map[string]models.Subscription
	webhookEvents map[string]time.Time
	alertPrefs    map[string]models.AlertPreferences
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		tenants:       make(map[string]models.Tenant),
		users:         make(map[string]models.User),
		vehicles:      make(map[string]models.Vehicle),
		vendorIndex:   make(map[string]string),
		apiKeys:       make(map[string]models.APIKey),
		subscriptions: make(map[string]models.Subscription),
		webhookEvents: make(map[string]time.Time),
		alertPrefs:    make(map[string]models.AlertPreferences),
	}
}

func (m *Memory) Ping(context.Context) error { return nil }
func (m *Memory) Close() error               { return nil }

func (m *Memory) CreateTenantWithOwner(_ context.Context, tenant *models.Tenant, owner *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[owner.ID]; ok {
		return ErrConflict
	}
	if _, ok := m.tenants[tenant.ID]; ok {
		return ErrConflict
	}
	m.tenants[tenant.ID] = *tenant
	m.users[owner.ID] = *owner
	return nil
}

func (m *Memory) GetTenant(_ context.Context, id string) (*models.Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tenants[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &t, nil
}

func (m *Memory) GetTenantByCustomer(_ context.Context, customerID string) (*models.Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.tenants {
		if customerID != "" && t.PaymentCustomerID == customerID {
			return &t, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) UpdateTenantTier(_ context.Context, id string, tier models.Tier) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[id]
	if !ok {
		return ErrNotFound
	}
	t.Tier = tier
	m.tenants[id] = t
	return nil
}

func (m *Memory) SetTenantCustomer(_ context.Context, id, customerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[id]
	if !ok {
		return ErrNotFound
	}
	t.PaymentCustomerID = customerID
	m.tenants[id] = t
	return nil
}

func (m *Memory) GetUser(_ context.Context, id string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (m *Memory) ListTenantUsers(_ context.Context, tenantID string) ([]models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.User, 0)
	for _, u := range m.users {
		if u.TenantID == tenantID {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) UpdateUserPhone(_ context.Context, id, phone string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.Phone = phone
	m.users[id] = u
	return nil
}

func (m *Memory) CreateVehicle(_ context.Context, v *models.Vehicle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.vendorIndex[v.VendorVehicleID]; ok {
		return ErrConflict
	}
	if _, ok := m.vehicles[v.ID]; ok {
		return ErrConflict
	}
	m.vehicles[v.ID] = *v
	m.vendorIndex[v.VendorVehicleID] = v.ID
	return nil
}

func (m *Memory) GetVehicle(_ context.Context, tenantID, id string) (*models.Vehicle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.vehicles[id]
	if !ok || v.TenantID != tenantID {
		return nil, ErrNotFound
	}
	return &v, nil
}

func (m *Memory) GetVehicleByVendorID(_ context.Context, vendorID string) (*models.Vehicle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.vendorIndex[vendorID]
	if !ok {
		return nil, ErrNotFound
	}
	v := m.vehicles[id]
	return &v, nil
}

func (m *Memory) ListVehicles(_ context.Context, tenantID string) ([]models.Vehicle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Vehicle, 0)
	for _, v := range m.vehicles {
		if v.TenantID == tenantID {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].DisplayName) < strings.ToLower(out[j].DisplayName)
	})
	return out, nil
}

func (m *Memory) CountVehicles(ctx context.Context, tenantID string) (int, error) {
	vs, err := m.ListVehicles(ctx, tenantID)
	return len(vs), err
}

func (m *Memory) DeleteVehicle(_ context.Context, tenantID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vehicles[id]
	if !ok || v.TenantID != tenantID {
		return ErrNotFound
	}
	delete(m.vehicles, id)
	delete(m.vendorIndex, v.VendorVehicleID)
	return nil
}

func (m *Memory) CreateAPIKey(_ context.Context, k *models.APIKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.apiKeys[k.ID]; ok {
		return ErrConflict
	}
	c := *k
	c.Scopes = slices.Clone(k.Scopes)
	m.apiKeys[k.ID] = c
	return nil
}

func (m *Memory) GetAPIKey(_ context.Context, id string) (*models.APIKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	k, ok := m.apiKeys[id]
	if !ok {
		return nil, ErrNotFound
	}
	k.Scopes = slices.Clone(k.Scopes)
	return &k, nil
}

func (m *Memory) ListAPIKeys(_ context.Context, tenantID string) ([]models.APIKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.APIKey, 0)
	for _, k := range m.apiKeys {
		if k.TenantID == tenantID {
			k.Scopes = slices.Clone(k.Scopes)
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) CountActiveAPIKeys(_ context.Context, tenantID string, now time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, k := range m.apiKeys {
		if k.TenantID == tenantID && !k.IsRevoked() && !k.IsExpired(now) {
			n++
		}
	}
	return n, nil
}

func (m *Memory) RevokeAPIKey(_ context.Context, tenantID, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.apiKeys[id]
	if !ok || k.TenantID != tenantID || k.RevokedAt != nil {
		return ErrNotFound
	}
	k.RevokedAt = &at
	m.apiKeys[id] = k
	return nil
}

func (m *Memory) RecordAPIKeyUse(_ context.Context, id, ip string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.apiKeys[id]
	if !ok {
		return ErrNotFound
	}
	k.LastUsedAt = &at
	k.LastUsedIP = ip
	k.UseCount++
	m.apiKeys[id] = k
	return nil
}

func (m *Memory) GetSubscription(_ context.Context, tenantID string) (*models.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.subscriptions[tenantID]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

func (m *Memory) UpsertSubscription(_ context.Context, s *models.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions[s.TenantID] = *s
	return nil
}

func (m *Memory) RecordWebhookEvent(_ context.Context, provider, eventID string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := provider + "\x00" + eventID
	if _, seen := m.webhookEvents[key]; seen {
		return false, nil
	}
	m.webhookEvents[key] = at
	return true, nil
}

func (m *Memory) ForgetWebhookEvent(_ context.Context, provider, eventID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.webhookEvents, provider+"\x00"+eventID)
	return nil
}

func (m *Memory) GetAlertPreferences(_ context.Context, userID string) (*models.AlertPreferences, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.alertPrefs[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (m *Memory) UpsertAlertPreferences(_ context.Context, p *models.AlertPreferences) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alertPrefs[p.UserID] = *p
	return nil
}
