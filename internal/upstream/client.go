// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Platewise Contributors

// Package upstream probes the third-party recipe API and classifies the
// outcome into a health snapshot. The probe never returns an error: every
// failure mode becomes a Status with Healthy=false.
package upstream

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	pwerr "github.com/platewise-dev/platewise/pkg/errors"
	"github.com/platewise-dev/platewise/pkg/health"
)

// ProbeEndpoint is the fixed low-cost diagnostic endpoint. A single-result
// search is the cheapest authenticated read the recipe API offers.
const ProbeEndpoint = "recipes/complexSearch"

// mockEndpoint is reported when no API key is configured and probes are
// answered locally.
const mockEndpoint = "mock-data"

// maxProbeBodyBytes bounds how much of a probe response body is read.
const maxProbeBodyBytes = 64 << 10

// Config holds the upstream client configuration.
type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// Client issues health probes against the recipe API.
type Client struct {
	apiKey  string
	baseURL string
	timeout time.Duration
	httpc   *http.Client
	nowFunc func() time.Time // for testing
}

// NewClient creates an upstream client. BaseURL is required; an empty APIKey
// selects mock mode, where probes succeed without network calls.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, pwerr.Errorf(pwerr.CodeUpstreamConfigInvalid, "upstream base URL must not be empty")
	}
	if cfg.Timeout <= 0 {
		return nil, pwerr.Errorf(pwerr.CodeUpstreamConfigInvalid, "upstream probe timeout must be positive, got %s", cfg.Timeout)
	}

	return &Client{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		timeout: cfg.Timeout,
		// The transport-level timeout is handled per-call via context so a
		// caller-supplied deadline shorter than ours still wins.
		httpc:   &http.Client{},
		nowFunc: time.Now,
	}, nil
}

// MockMode reports whether the client answers probes locally because no API
// key is configured.
func (c *Client) MockMode() bool {
	return c.apiKey == ""
}

// SetNowFunc overrides the time source (for testing).
func (c *Client) SetNowFunc(fn func() time.Time) {
	c.nowFunc = fn
}

// Probe performs one health check of the upstream API and classifies the
// outcome. It never returns an error; CheckedAt is always set.
func (c *Client) Probe(ctx context.Context) health.Status {
	status, _ := c.probe(ctx)
	return status
}

// Diagnose performs one health check and wraps it in the diagnostic envelope
// consumed by operator surfaces.
func (c *Client) Diagnose(ctx context.Context) health.CheckResult {
	status, raw := c.probe(ctx)

	result := health.CheckResult{
		Status:        status,
		RateLimitInfo: status.RateLimitRemaining != nil,
	}
	if status.ResponseTimeMillis != nil {
		result.LatencyMillis = *status.ResponseTimeMillis
	}

	if c.MockMode() {
		result.Connectivity = true
		result.Authentication = true
		return result
	}

	// Connectivity passed when the transport produced any HTTP response.
	result.Connectivity = raw.err == nil && !raw.timedOut
	// Authentication passed when the upstream did not reject the key.
	result.Authentication = result.Connectivity &&
		raw.statusCode != http.StatusUnauthorized && raw.statusCode != http.StatusForbidden
	result.LatencyMillis = raw.elapsed.Milliseconds()

	return result
}

// probe runs the transport exchange and returns both the classified status
// and the raw outcome for diagnostic consumers.
func (c *Client) probe(ctx context.Context) (health.Status, probeOutcome) {
	probeID := uuid.NewString()

	if c.MockMode() {
		status := health.Status{
			Healthy:        true,
			CheckedAt:      c.nowFunc(),
			APIVersion:     "mock",
			EndpointProbed: mockEndpoint,
		}
		slog.Debug("upstream probe answered in mock mode", "probe_id", probeID)
		return status, probeOutcome{checkedAt: status.CheckedAt}
	}

	raw := c.exchange(ctx)
	status := classify(raw)

	if status.Healthy {
		slog.Debug("upstream probe succeeded",
			"probe_id", probeID,
			"endpoint", raw.endpoint,
			"elapsed_ms", raw.elapsed.Milliseconds(),
		)
	} else {
		slog.Error("upstream probe failed",
			"probe_id", probeID,
			"endpoint", raw.endpoint,
			"status_code", raw.statusCode,
			"error", status.Error,
		)
	}

	return status, raw
}

// exchange performs the single read-only request against the probe endpoint,
// bounded by the configured timeout. It records the raw transport outcome
// without interpreting it; classification is a separate, pure step.
func (c *Client) exchange(ctx context.Context) probeOutcome {
	checkedAt := c.nowFunc()
	out := probeOutcome{
		checkedAt: checkedAt,
		timeout:   c.timeout,
		endpoint:  ProbeEndpoint,
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	url := c.baseURL + "/" + ProbeEndpoint + "?number=1"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		out.err = err
		return out
	}
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpc.Do(req)
	out.elapsed = time.Since(start)
	if err != nil {
		out.err = err
		out.timedOut = ctx.Err() == context.DeadlineExceeded
		return out
	}
	defer func() { _ = resp.Body.Close() }()

	out.statusCode = resp.StatusCode
	out.header = resp.Header

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProbeBodyBytes))
	if err != nil {
		// A half-read body on an otherwise successful exchange is treated
		// the same as a transport failure.
		out.err = err
		out.timedOut = ctx.Err() == context.DeadlineExceeded
		return out
	}
	out.body = body

	return out
}
