// Voltbridge - EV Telemetry Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/voltbridge

package auth

import (
	"context"
	"errors"
	"net/http"
	"slices"

	"github.com/tomtom215/voltbridge/internal/httpresp"
	"github.com/tomtom215/voltbridge/internal/logging"
	"github.com/tomtom215/voltbridge/internal/metrics"
	"github.com/tomtom215/voltbridge/internal/models"
)

type contextKey string

const subjectContextKey contextKey = "auth_subject"

// ContextWithSubject stores s in ctx.
func ContextWithSubject(ctx context.Context, s *Subject) context.Context {
	return context.WithValue(ctx, subjectContextKey, s)
}

// SubjectFromContext returns the authenticated subject, or nil.
func SubjectFromContext(ctx context.Context) *Subject {
	s, _ := ctx.Value(subjectContextKey).(*Subject)
	return s
}

// Middleware authenticates requests and resolves their tenant.
type Middleware struct {
	authenticator Authenticator
	resolver      *Resolver
}

func NewMiddleware(a Authenticator, r *Resolver) *Middleware {
	return &Middleware{authenticator: a, resolver: r}
}

// Authenticate rejects requests without a valid credential.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject, err := m.authenticator.Authenticate(r.Context(), r)
		if err == nil && m.resolver != nil {
			subject, err = m.resolver.Resolve(r.Context(), subject)
		}
		if err != nil {
			metrics.AuthAttempts.WithLabelValues("none", outcome(err)).Inc()
			writeAuthError(w, r, err)
			return
		}
		metrics.AuthAttempts.WithLabelValues(string(subject.AuthMethod), "success").Inc()

		ctx := ContextWithSubject(r.Context(), subject)
		ctx = logging.ContextWithTenantID(ctx, subject.TenantID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireMethod restricts a route to the given authentication methods.
// API keys cannot mint keys or manage billing.
func RequireMethod(methods ...Method) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s := SubjectFromContext(r.Context())
			if s == nil {
				httpresp.Error(w, r, http.StatusUnauthorized, httpresp.CodeUnauthorized, "authentication required")
				return
			}
			if !slices.Contains(methods, s.AuthMethod) {
				httpresp.Error(w, r, http.StatusForbidden, httpresp.CodeForbidden,
					"this endpoint requires a user session")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireIdentity is RequireMethod(MethodJWT, MethodOIDC).
func RequireIdentity(next http.Handler) http.Handler {
	return RequireMethod(MethodJWT, MethodOIDC)(next)
}

// RequireScope rejects API keys that lack scope.
func RequireScope(scope models.KeyScope) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s := SubjectFromContext(r.Context())
			if s == nil {
				httpresp.Error(w, r, http.StatusUnauthorized, httpresp.CodeUnauthorized, "authentication required")
				return
			}
			if !s.Allows(scope) {
				httpresp.Error(w, r, http.StatusForbidden, httpresp.CodeForbidden,
					"api key is missing scope "+string(scope))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeAuthError(w http.ResponseWriter, r *http.Request, err error) {
	logging.Ctx(r.Context()).Debug().Err(err).Msg("Authentication failed")

	switch {
	case errors.Is(err, ErrNoCredentials):
		w.Header().Set("WWW-Authenticate", `Bearer realm="voltbridge"`)
		httpresp.Error(w, r, http.StatusUnauthorized, httpresp.CodeUnauthorized, "authentication required")
	case errors.Is(err, ErrExpiredCredentials):
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="expired"`)
		httpresp.Error(w, r, http.StatusUnauthorized, httpresp.CodeUnauthorized, "credentials expired")
	case errors.Is(err, ErrAuthenticatorUnavailable):
		httpresp.Error(w, r, http.StatusServiceUnavailable, httpresp.CodeUnavailable,
			"authentication service unavailable")
	default:
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
		httpresp.Error(w, r, http.StatusUnauthorized, httpresp.CodeUnauthorized, "invalid credentials")
	}
}

func outcome(err error) string {
	switch {
	case errors.Is(err, ErrNoCredentials):
		return "missing"
	case errors.Is(err, ErrExpiredCredentials):
		return "expired"
	case errors.Is(err, ErrAuthenticatorUnavailable):
		return "unavailable"
	default:
		return "invalid"
	}
}
