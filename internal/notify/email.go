// Voltbridge - EV Telemetry Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/voltbridge

package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/voltbridge/internal/config"
	"github.com/tomtom215/voltbridge/internal/metrics"
	"github.com/tomtom215/voltbridge/internal/resilience"
)

// EmailNotifier sends transactional email through the Brevo API.
type EmailNotifier struct {
	baseURL    string
	apiKey     string
	sender     brevoContact
	httpClient *http.Client
	breaker    *resilience.Breaker
}

func NewEmailNotifier(cfg config.BrevoConfig, httpClient *http.Client) *EmailNotifier {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	base := cfg.BaseURL
	if base == "" {
		base = "https://api.brevo.com"
	}
	return &EmailNotifier{
		baseURL:    strings.TrimSuffix(base, "/"),
		apiKey:     cfg.APIKey,
		sender:     brevoContact{Name: cfg.SenderName, Email: cfg.SenderEmail},
		httpClient: httpClient,
		breaker:    resilience.NewBreaker("notify-email", resilience.Settings{IsSuccessful: breakerAccepts}),
	}
}

func (e *EmailNotifier) Channel() string { return ChannelEmail }

type brevoContact struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
}

type brevoEmail struct {
	Sender      brevoContact   `json:"sender"`
	To          []brevoContact `json:"to"`
	Subject     string         `json:"subject"`
	TextContent string         `json:"textContent"`
}

type brevoResponse struct {
	MessageID string `json:"messageId"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

// SendEmail lets EmailNotifier serve as the billing mailer.
func (e *EmailNotifier) SendEmail(ctx context.Context, to, subject, body string) error {
	return e.Send(ctx, Notification{To: to, Subject: subject, Body: body})
}

func (e *EmailNotifier) Send(ctx context.Context, n Notification) error {
	if !strings.Contains(n.To, "@") {
		return &DeliveryError{Channel: ChannelEmail, Code: ErrorCodeInvalidRecipient, Message: "invalid email address"}
	}
	start := time.Now()
	_, err := resilience.Execute(e.breaker, func() (string, error) {
		return e.send(ctx, n)
	})
	metrics.RecordVendorRequest("brevo", "send_email", time.Since(start), err)
	metrics.RecordNotification(ChannelEmail, err)
	return err
}

func (e *EmailNotifier) send(ctx context.Context, n Notification) (string, error) {
	payload, err := json.Marshal(brevoEmail{
		Sender:      e.sender,
		To:          []brevoContact{{Email: n.To}},
		Subject:     n.Subject,
		TextContent: n.Body,
	})
	if err != nil {
		return "", fmt.Errorf("marshal email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/v3/smtp/email", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build email request: %w", err)
	}
	req.Header.Set("api-key", e.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return "", err
		}
		return "", connectionError(ChannelEmail, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return "", connectionError(ChannelEmail, err)
	}
	var out brevoResponse
	_ = json.Unmarshal(raw, &out)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text := out.Message
		if text == "" {
			text = strings.TrimSpace(string(raw))
		}
		return "", statusError(ChannelEmail, resp.StatusCode, text)
	}
	return out.MessageID, nil
}
