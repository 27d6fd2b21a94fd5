// Voltbridge - EV Telemetry Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/voltbridge

// Package payments creates hosted checkout sessions and applies
// subscription webhooks from the payments provider to tenant tiers.
package payments

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

const provider = "payments"

// APIError is an error response from the provider.
type APIError struct {
	StatusCode int
	Type       string `json:"type"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("payments provider returned status %d (%s): %s", e.StatusCode, e.Type, e.Message)
}

// CheckoutParams describe one subscription checkout.
type CheckoutParams struct {
	TenantID      string
	PriceID       string
	CustomerID    string
	CustomerEmail string
	SuccessURL    string
	CancelURL     string
}

// CheckoutSession is the provider's answer to a session create.
type CheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Client calls the provider REST API with the secret key.
type Client struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
	breaker    *resilience.Breaker
}

func NewClient(cfg config.PaymentsConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	base := cfg.APIBaseURL
	if base == "" {
		base = "https://api.stripe.com"
	}
	return &Client{
		baseURL:    strings.TrimSuffix(base, "/"),
		secretKey:  cfg.SecretKey,
		httpClient: httpClient,
		breaker: resilience.NewBreaker("payments-api", resilience.Settings{
			IsSuccessful: func(err error) bool {
				var ae *APIError
				return err == nil || (errors.As(err, &ae) && ae.StatusCode < 500 && ae.StatusCode != http.StatusTooManyRequests)
			},
		}),
	}
}

// CreateCheckoutSession starts a subscription checkout. The tenant ID
// travels as client_reference_id and as subscription metadata so either
// webhook can find the tenant.
func (c *Client) CreateCheckoutSession(ctx context.Context, p CheckoutParams) (*CheckoutSession, error) {
	form := url.Values{}
	form.Set("mode", "subscription")
	form.Set("line_items[0][price]", p.PriceID)
	form.Set("line_items[0][quantity]", "1")
	form.Set("success_url", p.SuccessURL)
	form.Set("cancel_url", p.CancelURL)
	form.Set("client_reference_id", p.TenantID)
	form.Set("subscription_data[metadata][tenant_id]", p.TenantID)
	if p.CustomerID != "" {
		form.Set("customer", p.CustomerID)
	} else if p.CustomerEmail != "" {
		form.Set("customer_email", p.CustomerEmail)
	}

	start := time.Now()
	session, err := resilience.Execute(c.breaker, func() (*CheckoutSession, error) {
		return c.postForm(ctx, "/v1/checkout/sessions", form)
	})
	metrics.RecordVendorRequest(provider, "create_checkout_session", time.Since(start), err)
	return session, err
}

func (c *Client) postForm(ctx context.Context, path string, form url.Values) (*CheckoutSession, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("payments request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read payments response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var wrapper struct {
			Error APIError `json:"error"`
		}
		_ = json.Unmarshal(body, &wrapper)
		wrapper.Error.StatusCode = resp.StatusCode
		if wrapper.Error.Message == "" {
			wrapper.Error.Message = strings.TrimSpace(string(body))
		}
		return nil, &wrapper.Error
	}

	var session CheckoutSession
	if err := json.Unmarshal(body, &session); err != nil {
		return nil, fmt.Errorf("decode checkout session: %w", err)
	}
	if session.URL == "" {
		return nil, fmt.Errorf("checkout session %s has no url", session.ID)
	}
	return &session, nil
}
