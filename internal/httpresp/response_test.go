// Voltbridge - EV Telemetry Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/voltbridge

package httpresp

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"

	"github.com/tomtom215/voltbridge/internal/logging"
	"github.com/tomtom215/voltbridge/internal/validation"
)

func decode(t *testing.T, rec *httptest.ResponseRecorder) Envelope {
	t.Helper()
	var env Envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return env
}

func TestJSON(t *testing.T) {
	t.Parallel()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(logging.ContextWithRequestID(req.Context(), "req-1"))
	rec := httptest.NewRecorder()

	JSON(rec, req, http.StatusCreated, map[string]string{"id": "v1"})

	if rec.Code != http.StatusCreated {
		t.Errorf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content-type = %q", ct)
	}
	env := decode(t, rec)
	if !env.Success || env.Meta == nil || env.Meta.RequestID != "req-1" {
		t.Errorf("unexpected envelope: %+v", env)
	}
}

func TestList(t *testing.T) {
	t.Parallel()
	rec := httptest.NewRecorder()
	List(rec, httptest.NewRequest(http.MethodGet, "/", nil), []int{1, 2}, 2)
	env := decode(t, rec)
	if env.Meta.Count == nil || *env.Meta.Count != 2 {
		t.Errorf("count = %v", env.Meta.Count)
	}
}

func TestError(t *testing.T) {
	t.Parallel()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(logging.ContextWithRequestID(req.Context(), "req-2"))
	rec := httptest.NewRecorder()

	Error(rec, req, http.StatusNotFound, CodeNotFound, "vehicle not found")

	env := decode(t, rec)
	if env.Success || env.Error == nil {
		t.Fatalf("unexpected envelope: %+v", env)
	}
	if env.Error.Code != CodeNotFound || env.Error.RequestID != "req-2" {
		t.Errorf("error = %+v", env.Error)
	}
}

func TestInternalHidesCause(t *testing.T) {
	t.Parallel()
	rec := httptest.NewRecorder()
	Internal(rec, httptest.NewRequest(http.MethodGet, "/", nil), "boom", errors.New("secret dsn\nFAKE LOG LINE"))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d", rec.Code)
	}
	env := decode(t, rec)
	if env.Error.Message != "internal server error" {
		t.Errorf("message leaked: %q", env.Error.Message)
	}
}

func TestValidation(t *testing.T) {
	t.Parallel()
	type body struct {
		Name string `json:"name" validate:"required"`
	}
	verr := validation.ValidateStruct(&body{})
	if verr == nil {
		t.Fatal("expected a validation error")
	}
	rec := httptest.NewRecorder()
	Validation(rec, httptest.NewRequest(http.MethodPost, "/", nil), verr)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d", rec.Code)
	}
	if env := decode(t, rec); env.Error.Code != CodeValidation || env.Error.Details == nil {
		t.Errorf("error = %+v", env.Error)
	}
}

func TestSanitize(t *testing.T) {
	t.Parallel()
	if got := sanitize(errors.New("a\nb")); got != `a\x0ab` {
		t.Errorf("sanitize = %q", got)
	}
	if sanitize(nil) != "" {
		t.Error("nil error should sanitize to empty")
	}
}
