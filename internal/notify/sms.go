// Voltbridge - EV Telemetry Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/voltbridge

package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/voltbridge/internal/config"
	"github.com/tomtom215/voltbridge/internal/metrics"
	"github.com/tomtom215/voltbridge/internal/resilience"
)

// SMSNotifier sends text messages through the Twilio Messages API.
type SMSNotifier struct {
	baseURL    string
	accountSID string
	authToken  string
	from       string
	httpClient *http.Client
	breaker    *resilience.Breaker
}

func NewSMSNotifier(cfg config.TwilioConfig, httpClient *http.Client) *SMSNotifier {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	base := cfg.BaseURL
	if base == "" {
		base = "https://api.twilio.com"
	}
	return &SMSNotifier{
		baseURL:    strings.TrimSuffix(base, "/"),
		accountSID: cfg.AccountSID,
		authToken:  cfg.AuthToken,
		from:       cfg.FromNumber,
		httpClient: httpClient,
		breaker:    resilience.NewBreaker("notify-sms", resilience.Settings{IsSuccessful: breakerAccepts}),
	}
}

func (s *SMSNotifier) Channel() string { return ChannelSMS }

type twilioMessage struct {
	SID     string `json:"sid"`
	Status  string `json:"status"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (s *SMSNotifier) Send(ctx context.Context, n Notification) error {
	if n.To == "" {
		return &DeliveryError{Channel: ChannelSMS, Code: ErrorCodeInvalidRecipient, Message: "phone number is required"}
	}
	start := time.Now()
	_, err := resilience.Execute(s.breaker, func() (string, error) {
		return s.send(ctx, n)
	})
	metrics.RecordVendorRequest("twilio", "send_sms", time.Since(start), err)
	metrics.RecordNotification(ChannelSMS, err)
	return err
}

func (s *SMSNotifier) send(ctx context.Context, n Notification) (string, error) {
	form := url.Values{}
	form.Set("To", n.To)
	form.Set("From", s.from)
	body := n.Body
	if n.Subject != "" {
		body = n.Subject + ": " + body
	}
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", s.baseURL, url.PathEscape(s.accountSID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build sms request: %w", err)
	}
	req.SetBasicAuth(s.accountSID, s.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return "", err
		}
		return "", connectionError(ChannelSMS, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return "", connectionError(ChannelSMS, err)
	}
	var msg twilioMessage
	_ = json.Unmarshal(raw, &msg)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text := msg.Message
		if text == "" {
			text = strings.TrimSpace(string(raw))
		}
		return "", statusError(ChannelSMS, resp.StatusCode, text)
	}
	return msg.SID, nil
}
