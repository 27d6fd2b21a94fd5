// Voltbridge - EV Telemetry Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/voltbridge

// Package telemetry is the REST client for the vehicle telemetry vendor.
package telemetry

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/tomtom215/voltbridge/internal/config"
	"github.com/tomtom215/voltbridge/internal/metrics"
	"github.com/tomtom215/voltbridge/internal/models"
	"github.com/tomtom215/voltbridge/internal/resilience"
)

const provider = "telemetry"

var (
	// ErrVehicleAsleep is returned when the vendor answers 408: the vehicle
	// must be woken before it reports state or accepts commands.
	ErrVehicleAsleep = errors.New("vehicle is asleep")

	ErrUnknownCommand = errors.New("unknown vehicle command")
	ErrInvalidParams  = errors.New("invalid command parameters")
)

// StatusError is a non-2xx vendor response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("telemetry vendor returned status %d: %s", e.StatusCode, e.Body)
}

// maxErrorBody bounds how much of an error response is kept.
const maxErrorBody = 4096

// Client talks to the vendor API with bearer auth, pacing and a breaker.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *resilience.Breaker
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// WithBreaker replaces the default breaker, mainly for tests.
func WithBreaker(b *resilience.Breaker) Option {
	return func(cl *Client) { cl.breaker = b }
}

func NewClient(cfg config.TelemetryConfig, opts ...Option) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	limit := rate.Inf
	if cfg.PollRate > 0 {
		limit = rate.Limit(cfg.PollRate)
	}
	burst := cfg.PollBurst
	if burst <= 0 {
		burst = 1
	}

	c := &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		token:      cfg.APIToken,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(limit, burst),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.breaker == nil {
		c.breaker = resilience.NewBreaker("telemetry-api", resilience.Settings{IsSuccessful: countsAsSuccess})
	}
	return c
}

// countsAsSuccess keeps caller mistakes and sleeping vehicles from opening
// the breaker. Only transport errors and 5xx count against the vendor.
func countsAsSuccess(err error) bool {
	if err == nil || errors.Is(err, ErrVehicleAsleep) || errors.Is(err, context.Canceled) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode < 500 && se.StatusCode != http.StatusTooManyRequests
	}
	return false
}

// GetVehicleState polls the vendor for one vehicle.
func (c *Client) GetVehicleState(ctx context.Context, vendorID string) (*models.VehicleState, error) {
	var resp StateResponse
	if err := c.do(ctx, "get_state", http.MethodGet, "/v1/vehicles/"+url.PathEscape(vendorID)+"/state", nil, &resp); err != nil {
		return nil, err
	}
	if resp.Timestamp.IsZero() {
		return nil, fmt.Errorf("vendor state for %s has no timestamp", vendorID)
	}
	s := resp.StateData.ToState(resp.Timestamp, models.SourcePoll)
	return &s, nil
}

// ListVehicles returns every vehicle visible to the vendor token.
func (c *Client) ListVehicles(ctx context.Context) ([]VendorVehicle, error) {
	var list vehicleList
	if err := c.do(ctx, "list_vehicles", http.MethodGet, "/v1/vehicles", nil, &list); err != nil {
		return nil, err
	}
	if list.Vehicles == nil {
		list.Vehicles = []VendorVehicle{}
	}
	return list.Vehicles, nil
}

// SendCommand forwards command with params to the vehicle.
func (c *Client) SendCommand(ctx context.Context, vendorID, command string, params map[string]interface{}) (*models.CommandResult, error) {
	if err := validateCommand(command, params); err != nil {
		return nil, err
	}
	if params == nil {
		params = map[string]interface{}{}
	}
	var result models.CommandResult
	path := "/v1/vehicles/" + url.PathEscape(vendorID) + "/commands/" + command
	if err := c.do(ctx, "command", http.MethodPost, path, params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func validateCommand(command string, params map[string]interface{}) error {
	if !slices.Contains(models.Commands(), command) {
		return fmt.Errorf("%w: %q", ErrUnknownCommand, command)
	}
	if command != models.CommandSetChargeLimit {
		return nil
	}
	var pct int
	switch v := params["percent"].(type) {
	case int:
		pct = v
	case float64:
		pct = int(v)
	default:
		return fmt.Errorf("%w: set_charge_limit requires percent", ErrInvalidParams)
	}
	if pct < 50 || pct > 100 {
		return fmt.Errorf("%w: percent must be between 50 and 100", ErrInvalidParams)
	}
	return nil
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("telemetry rate limiter: %w", err)
	}

	start := time.Now()
	_, err := resilience.Execute(c.breaker, func() (struct{}, error) {
		return struct{}{}, c.roundTrip(ctx, method, path, body, out)
	})
	metrics.RecordVendorRequest(provider, op, time.Since(start), err)
	return err
}

func (c *Client) roundTrip(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("telemetry request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusRequestTimeout {
		return ErrVehicleAsleep
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode telemetry response: %w", err)
	}
	return nil
}
