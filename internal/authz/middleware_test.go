// Voltbridge - EV Telemetry Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/voltbridge

package authz

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/voltbridge/internal/auth"
)

// subjectInjector stands in for auth.Middleware.Authenticate.
func subjectInjector(s *auth.Subject) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if s != nil {
				r = r.WithContext(auth.ContextWithSubject(r.Context(), s))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func TestMiddlewareAuthorize(t *testing.T) {
	t.Parallel()
	m := NewMiddleware(newTestEnforcer(t))
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	tests := []struct {
		name    string
		subject *auth.Subject
		method  string
		path    string
		want    int
	}{
		{"member reads state", &auth.Subject{ID: "u", Roles: []string{"member"}}, http.MethodGet, "/api/v1/vehicles/v1/state", http.StatusOK},
		{"member deletes vehicle", &auth.Subject{ID: "u", Roles: []string{"member"}}, http.MethodDelete, "/api/v1/vehicles/v1", http.StatusForbidden},
		{"owner deletes vehicle", &auth.Subject{ID: "u", Roles: []string{"owner"}}, http.MethodDelete, "/api/v1/vehicles/v1", http.StatusOK},
		{"key lists keys", &auth.Subject{ID: "u", Roles: []string{"integration"}}, http.MethodGet, "/api/v1/keys", http.StatusForbidden},
		{"anonymous", nil, http.MethodGet, "/api/v1/vehicles", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := chi.NewRouter()
			r.Group(func(r chi.Router) {
				r.Use(subjectInjector(tt.subject))
				r.Use(m.Authorize)
				r.Get("/api/v1/vehicles", ok)
				r.Get("/api/v1/keys", ok)
				r.Get("/api/v1/vehicles/{id}/state", ok)
				r.Delete("/api/v1/vehicles/{id}", ok)
			})

			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (%s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestRouteObjectFallsBackToPath(t *testing.T) {
	t.Parallel()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/vehicles/abc", nil)
	if got := routeObject(req); got != "/api/v1/vehicles/abc" {
		t.Errorf("routeObject = %q", got)
	}
}
