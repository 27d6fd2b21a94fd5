// Voltbridge - EV Telemetry Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/voltbridge

package authz

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/voltbridge/internal/auth"
	"github.com/tomtom215/voltbridge/internal/httpresp"
	"github.com/tomtom215/voltbridge/internal/logging"
	"github.com/tomtom215/voltbridge/internal/metrics"
)

// Middleware authorizes requests against the enforcer.
type Middleware struct {
	enforcer *Enforcer
}

func NewMiddleware(enforcer *Enforcer) *Middleware {
	return &Middleware{enforcer: enforcer}
}

// Authorize checks the subject's roles against the request route and method.
// It must run after auth.Middleware.Authenticate.
func (m *Middleware) Authorize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject := auth.SubjectFromContext(r.Context())
		if subject == nil {
			httpresp.Error(w, r, http.StatusUnauthorized, httpresp.CodeUnauthorized, "authentication required")
			return
		}

		obj := routeObject(r)
		allowed, role, err := m.enforcer.EnforceAny(subject.Roles, obj, r.Method)
		if err != nil {
			httpresp.Internal(w, r, "authorization failed", err)
			return
		}
		if !allowed {
			metrics.AuthzDecisions.WithLabelValues(primaryRole(subject.Roles), "deny").Inc()
			logging.Ctx(r.Context()).Debug().
				Str("subject", subject.ID).
				Strs("roles", subject.Roles).
				Str("object", obj).
				Str("method", r.Method).
				Msg("Authorization denied")
			httpresp.Error(w, r, http.StatusForbidden, httpresp.CodeForbidden, "insufficient permissions")
			return
		}
		metrics.AuthzDecisions.WithLabelValues(role, "allow").Inc()
		next.ServeHTTP(w, r)
	})
}

// routeObject prefers the matched chi pattern so decisions cache per route
// rather than per vehicle ID. keyMatch2 treats {id} like any path segment.
func routeObject(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" && !strings.HasSuffix(p, "/*") {
			return p
		}
	}
	return r.URL.Path
}

func primaryRole(roles []string) string {
	if len(roles) == 0 {
		return "none"
	}
	return roles[0]
}
