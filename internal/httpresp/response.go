// Voltbridge - EV Telemetry Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/voltbridge

// Package httpresp writes the JSON envelopes shared by every HTTP surface:
//
//	{"success":true,"data":...,"meta":{...}}
//	{"success":false,"error":{"code":...,"message":...,"details":...,"request_id":...}}
//
// It lives outside package api so the auth, authz and rate limit
// middleware can answer in the same shape.
package httpresp

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/voltbridge/internal/logging"
	"github.com/tomtom215/voltbridge/internal/validation"
)

// Error codes.
const (
	CodeBadRequest       = "BAD_REQUEST"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeForbidden        = "FORBIDDEN"
	CodeNotFound         = "NOT_FOUND"
	CodeConflict         = "CONFLICT"
	CodeTooManyRequests  = "TOO_MANY_REQUESTS"
	CodeValidation       = "VALIDATION_FAILED"
	CodeInternal         = "INTERNAL_ERROR"
	CodeExternal         = "EXTERNAL_SERVICE_FAILED"
	CodeUnavailable      = "SERVICE_UNAVAILABLE"
	CodeMissingSignature = "MISSING_SIGNATURE"
	CodeInvalidSignature = "INVALID_SIGNATURE"
)

type Meta struct {
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
	Count     *int      `json:"count,omitempty"`
}

type Envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Meta    *Meta       `json:"meta,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
}

type APIError struct {
	Code      string      `json:"code"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
}

func write(w http.ResponseWriter, status int, env *Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Debug().Err(err).Msg("Failed to write JSON response")
	}
}

// JSON writes a success envelope.
func JSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	write(w, status, &Envelope{
		Success: true,
		Data:    data,
		Meta:    &Meta{Timestamp: time.Now().UTC(), RequestID: requestID(r)},
	})
}

// List writes a success envelope with meta.count set.
func List(w http.ResponseWriter, r *http.Request, data interface{}, count int) {
	write(w, http.StatusOK, &Envelope{
		Success: true,
		Data:    data,
		Meta:    &Meta{Timestamp: time.Now().UTC(), RequestID: requestID(r), Count: &count},
	})
}

// Error writes an error envelope.
func Error(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	ErrorWithDetails(w, r, status, code, message, nil)
}

func ErrorWithDetails(w http.ResponseWriter, r *http.Request, status int, code, message string, details interface{}) {
	write(w, status, &Envelope{
		Success: false,
		Error: &APIError{
			Code:      code,
			Message:   message,
			Details:   details,
			RequestID: requestID(r),
		},
	})
}

// Internal logs err and answers 500 without leaking it.
func Internal(w http.ResponseWriter, r *http.Request, msg string, err error) {
	logging.Ctx(r.Context()).Error().Str("error", sanitize(err)).Msg(msg)
	Error(w, r, http.StatusInternalServerError, CodeInternal, "internal server error")
}

// Validation answers 422 with the per-field failures.
func Validation(w http.ResponseWriter, r *http.Request, verr *validation.RequestValidationError) {
	ErrorWithDetails(w, r, http.StatusUnprocessableEntity, CodeValidation, verr.Message(), verr.Fields())
}

func requestID(r *http.Request) string {
	if r == nil {
		return ""
	}
	return logging.RequestIDFromContext(r.Context())
}

// sanitize strips control characters so error text cannot forge log lines.
func sanitize(err error) string {
	if err == nil {
		return ""
	}
	s := err.Error()
	var b strings.Builder
	b.Grow(len(s))
	for _, c := range s {
		if c < 0x20 || c == 0x7f {
			fmt.Fprintf(&b, "\\x%02x", c)
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}
