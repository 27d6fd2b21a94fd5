// Voltbridge - EV Telemetry Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/voltbridge

package authz

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"

	"github.com/tomtom215/voltbridge/internal/cache"
)

//go:embed model.conf
var embeddedModel string

//go:embed policy.csv
var embeddedPolicy string

// EnforcerConfig holds configuration for the Casbin enforcer.
type EnforcerConfig struct {
	// ModelPath overrides the embedded model when set.
	ModelPath string

	// PolicyPath overrides the embedded policy when set.
	PolicyPath string

	// CacheTTL is how long decisions are cached. Zero disables caching.
	CacheTTL time.Duration
}

// DefaultEnforcerConfig returns the embedded model and policy with a
// five minute decision cache.
func DefaultEnforcerConfig() *EnforcerConfig {
	return &EnforcerConfig{CacheTTL: 5 * time.Minute}
}

// Enforcer wraps a synced Casbin enforcer with a decision cache.
type Enforcer struct {
	enforcer *casbin.SyncedEnforcer
	cache    *cache.TTL[bool]
}

// NewEnforcer loads the model and policy and builds the enforcer.
func NewEnforcer(cfg *EnforcerConfig) (*Enforcer, error) {
	if cfg == nil {
		cfg = DefaultEnforcerConfig()
	}

	modelText, err := readOr(cfg.ModelPath, embeddedModel)
	if err != nil {
		return nil, fmt.Errorf("failed to read casbin model: %w", err)
	}
	policyText, err := readOr(cfg.PolicyPath, embeddedPolicy)
	if err != nil {
		return nil, fmt.Errorf("failed to read casbin policy: %w", err)
	}

	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, fmt.Errorf("failed to load casbin model: %w", err)
	}
	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("failed to create casbin enforcer: %w", err)
	}
	if err := loadPolicy(enforcer, policyText); err != nil {
		return nil, err
	}

	e := &Enforcer{enforcer: enforcer}
	if cfg.CacheTTL > 0 {
		e.cache = cache.NewTTL[bool](cfg.CacheTTL, cfg.CacheTTL)
	}
	return e, nil
}

func readOr(path, fallback string) (string, error) {
	if path == "" {
		return fallback, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// loadPolicy parses CSV policy lines. Fields are split on the first
// commas only, so regex actions may not contain commas.
func loadPolicy(enforcer *casbin.SyncedEnforcer, policy string) error {
	for n, line := range strings.Split(policy, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Split(line, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}

		switch {
		case parts[0] == "p" && len(parts) == 4:
			if _, err := enforcer.AddPolicy(parts[1], parts[2], parts[3]); err != nil {
				return fmt.Errorf("policy line %d: %w", n+1, err)
			}
		case parts[0] == "g" && len(parts) == 3:
			if _, err := enforcer.AddGroupingPolicy(parts[1], parts[2]); err != nil {
				return fmt.Errorf("policy line %d: %w", n+1, err)
			}
		default:
			return fmt.Errorf("policy line %d: malformed rule %q", n+1, line)
		}
	}
	return nil
}

// Enforce reports whether role may perform act on obj.
func (e *Enforcer) Enforce(role, obj, act string) (bool, error) {
	key := role + "|" + obj + "|" + act
	if e.cache != nil {
		if allowed, ok := e.cache.Get(key); ok {
			return allowed, nil
		}
	}

	allowed, err := e.enforcer.Enforce(role, obj, act)
	if err != nil {
		return false, fmt.Errorf("enforcement failed: %w", err)
	}
	if e.cache != nil {
		e.cache.Set(key, allowed)
	}
	return allowed, nil
}

// EnforceAny reports whether any of roles may perform act on obj.
// The second result is the role that granted access.
func (e *Enforcer) EnforceAny(roles []string, obj, act string) (bool, string, error) {
	for _, role := range roles {
		allowed, err := e.Enforce(role, obj, act)
		if err != nil {
			return false, "", err
		}
		if allowed {
			return true, role, nil
		}
	}
	return false, "", nil
}

// ImplicitRoles returns role plus every role it inherits.
func (e *Enforcer) ImplicitRoles(role string) ([]string, error) {
	inherited, err := e.enforcer.GetImplicitRolesForUser(role)
	if err != nil {
		return nil, err
	}
	return append([]string{role}, inherited...), nil
}

// Close stops the decision cache janitor.
func (e *Enforcer) Close() {
	if e.cache != nil {
		e.cache.Close()
	}
}
