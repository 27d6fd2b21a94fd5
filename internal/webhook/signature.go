// Voltbridge - EV Telemetry Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/voltbridge

// Package webhook verifies signatures on inbound provider webhooks.
//
// Two schemes are supported. The telemetry vendor sends a bare hex
// HMAC-SHA256 of the body. The payments provider sends a timestamped header
// of the form t=<unix>,v1=<hex> where the MAC covers "<t>.<body>", which
// bounds replay to the configured tolerance.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrMissingSignature        = errors.New("missing webhook signature")
	ErrInvalidSignature        = errors.New("invalid webhook signature")
	ErrTimestampOutOfTolerance = errors.New("webhook timestamp outside tolerance")
	ErrNoSecret                = errors.New("webhook secret not configured")
)

// DefaultTolerance bounds how old a timestamped signature may be.
const DefaultTolerance = 5 * time.Minute

func computeMAC(secret string, parts ...[]byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	for _, p := range parts {
		mac.Write(p)
	}
	return mac.Sum(nil)
}

// SignHMAC returns the lowercase hex HMAC-SHA256 of body.
func SignHMAC(body []byte, secret string) string {
	return hex.EncodeToString(computeMAC(secret, body))
}

// VerifyHMAC checks header against HMAC-SHA256(secret, body). The header
// may use either hex case and may carry a "sha256=" prefix.
func VerifyHMAC(body []byte, secret, header string) error {
	if secret == "" {
		return ErrNoSecret
	}
	header = strings.TrimSpace(header)
	if header == "" {
		return ErrMissingSignature
	}
	header = strings.TrimPrefix(header, "sha256=")

	got, err := hex.DecodeString(strings.ToLower(header))
	if err != nil {
		return fmt.Errorf("%w: malformed hex", ErrInvalidSignature)
	}
	if !hmac.Equal(got, computeMAC(secret, body)) {
		return ErrInvalidSignature
	}
	return nil
}

// SignTimestamped builds a t=<unix>,v1=<hex> header for body at ts.
func SignTimestamped(body []byte, secret string, ts time.Time) string {
	t := strconv.FormatInt(ts.Unix(), 10)
	sig := computeMAC(secret, []byte(t), []byte("."), body)
	return "t=" + t + ",v1=" + hex.EncodeToString(sig)
}

// VerifyTimestamped validates a timestamped signature header. Any one of
// several v1 values may match, which lets the provider roll secrets.
// Unknown schemes in the header are ignored.
func VerifyTimestamped(body []byte, header, secret string, tolerance time.Duration, now time.Time) error {
	if secret == "" {
		return ErrNoSecret
	}
	header = strings.TrimSpace(header)
	if header == "" {
		return ErrMissingSignature
	}
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}

	var (
		ts         string
		signatures [][]byte
	)
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts = v
		case "v1":
			if sig, err := hex.DecodeString(strings.ToLower(v)); err == nil {
				signatures = append(signatures, sig)
			}
		}
	}
	if ts == "" {
		return fmt.Errorf("%w: missing timestamp", ErrInvalidSignature)
	}
	if len(signatures) == 0 {
		return fmt.Errorf("%w: no v1 signature", ErrInvalidSignature)
	}

	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: malformed timestamp", ErrInvalidSignature)
	}

	expected := computeMAC(secret, []byte(ts), []byte("."), body)
	matched := false
	for _, sig := range signatures {
		if hmac.Equal(sig, expected) {
			matched = true
			break
		}
	}
	if !matched {
		return ErrInvalidSignature
	}

	skew := now.Sub(time.Unix(unix, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > tolerance {
		return ErrTimestampOutOfTolerance
	}
	return nil
}

// Reason maps a verification error to a short label for metrics and logs.
func Reason(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrMissingSignature):
		return "missing_signature"
	case errors.Is(err, ErrTimestampOutOfTolerance):
		return "stale_timestamp"
	case errors.Is(err, ErrNoSecret):
		return "not_configured"
	default:
		return "invalid_signature"
	}
}
