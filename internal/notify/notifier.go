// Voltbridge - EV Telemetry Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/voltbridge

// Package notify delivers vehicle alerts and billing notices over SMS and
// email, and evaluates state updates for alert conditions.
//
// Each provider client sits behind its own circuit breaker. Delivery
// failures carry an error code and a transient flag so callers can decide
// whether a retry is worthwhile.
package notify

import (
	"context"
	"fmt"
	"net/http"

	"github.com/tomtom215/voltbridge/internal/models"
)

// Channel names.
const (
	ChannelSMS   = "sms"
	ChannelEmail = "email"
)

// Notification is one plain-text message to one recipient. To is a phone
// number in E.164 form for SMS and an address for email.
type Notification struct {
	To      string
	Subject string
	Body    string
}

// Notifier delivers notifications over one channel.
type Notifier interface {
	Channel() string
	Send(ctx context.Context, n Notification) error
}

// Error codes for delivery failures.
const (
	ErrorCodeInvalidRecipient = "INVALID_RECIPIENT"
	ErrorCodeAuthFailed       = "AUTH_FAILED"
	ErrorCodeRateLimited      = "RATE_LIMITED"
	ErrorCodeServerError      = "SERVER_ERROR"
	ErrorCodeConnectionFailed = "CONNECTION_FAILED"
	ErrorCodeUnknown          = "UNKNOWN"
)

// DeliveryError describes a failed delivery.
type DeliveryError struct {
	Channel    string
	StatusCode int
	Code       string
	Message    string
	Transient  bool
}

func (e *DeliveryError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s delivery failed (%s, status %d): %s", e.Channel, e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s delivery failed (%s): %s", e.Channel, e.Code, e.Message)
}

func classifyStatus(code int) (string, bool) {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return ErrorCodeAuthFailed, false
	case code == http.StatusTooManyRequests:
		return ErrorCodeRateLimited, true
	case code >= 500:
		return ErrorCodeServerError, true
	case code >= 400:
		return ErrorCodeInvalidRecipient, false
	default:
		return ErrorCodeUnknown, false
	}
}

func statusError(channel string, status int, message string) *DeliveryError {
	code, transient := classifyStatus(status)
	return &DeliveryError{
		Channel:    channel,
		StatusCode: status,
		Code:       code,
		Message:    message,
		Transient:  transient,
	}
}

func connectionError(channel string, err error) *DeliveryError {
	return &DeliveryError{Channel: channel, Code: ErrorCodeConnectionFailed, Message: err.Error(), Transient: true}
}

// breakerAccepts keeps permanent provider rejections from opening the
// breaker; only transient failures count.
func breakerAccepts(err error) bool {
	if err == nil {
		return true
	}
	de, ok := err.(*DeliveryError)
	return ok && !de.Transient
}

// DefaultPreferences apply to users who never saved alert preferences.
func DefaultPreferences(userID string, lowBatteryThreshold int) *models.AlertPreferences {
	return &models.AlertPreferences{
		UserID:              userID,
		EmailEnabled:        true,
		LowBatteryThreshold: lowBatteryThreshold,
		ChargingComplete:    true,
	}
}
