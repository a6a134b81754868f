// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Platewise Contributors

package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/platewise-dev/platewise/pkg/health"
)

// maxErrorBodyBytes bounds how much of an unexpected response body is quoted
// in the resulting error string.
const maxErrorBodyBytes = 256

// probeOutcome is the raw result of one transport exchange, before any
// interpretation. Exactly one of err or a received response is meaningful.
type probeOutcome struct {
	err        error // transport failure; nil when a response was received
	timedOut   bool
	statusCode int
	body       []byte
	header     http.Header
	elapsed    time.Duration
	checkedAt  time.Time
	timeout    time.Duration
	endpoint   string
}

// classify maps a raw probe outcome to a health Status. It is pure: no I/O,
// no clock reads, no logging. Every failure mode yields Healthy=false with a
// populated Error; it never panics on malformed input.
func classify(out probeOutcome) health.Status {
	status := health.Status{
		CheckedAt:      out.checkedAt,
		EndpointProbed: out.endpoint,
	}

	switch {
	case out.timedOut || isTimeout(out.err):
		status.Error = fmt.Sprintf("timeout after %dms", out.timeout.Milliseconds())
		return status
	case out.err != nil:
		status.Error = fmt.Sprintf("network error: %v", out.err)
		return status
	}

	applyResponseMetadata(&status, out.header)

	switch {
	case out.statusCode == http.StatusUnauthorized:
		status.Error = "authentication failed - invalid API key"
	case out.statusCode == http.StatusTooManyRequests:
		status.Error = "rate limit exceeded"
	case out.statusCode == http.StatusServiceUnavailable:
		status.Error = "service temporarily unavailable"
	case out.statusCode < 200 || out.statusCode > 299:
		status.Error = formatUnexpectedStatus(out.statusCode, out.body)
	case !hasResultsCollection(out.body):
		// A 200 that does not carry the expected results collection is an
		// upstream contract violation, not a success.
		status.Error = "invalid API response structure"
	default:
		status.Healthy = true
		ms := out.elapsed.Milliseconds()
		status.ResponseTimeMillis = &ms
	}

	return status
}

// isTimeout reports whether err is a deadline or transport-level timeout.
func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// hasResultsCollection reports whether body is JSON carrying a top-level
// "results" array. A null or absent field fails the check.
func hasResultsCollection(body []byte) bool {
	var payload struct {
		Results *[]json.RawMessage `json:"results"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return false
	}
	return payload.Results != nil
}

// applyResponseMetadata extracts rate-limit headers and the advertised API
// version when the upstream provides them.
func applyResponseMetadata(status *health.Status, header http.Header) {
	if header == nil {
		return
	}

	if v := header.Get("X-RateLimit-Remaining"); v != "" {
		if remaining, err := strconv.Atoi(v); err == nil {
			status.RateLimitRemaining = &remaining
		}
	}
	if v := header.Get("X-RateLimit-Reset"); v != "" {
		if unix, err := strconv.ParseInt(v, 10, 64); err == nil {
			resetAt := time.Unix(unix, 0).UTC()
			status.RateLimitResetAt = &resetAt
		}
	}
	if v := header.Get("X-API-Version"); v != "" {
		status.APIVersion = v
	}
}

// formatUnexpectedStatus renders a non-success HTTP status as
// "<code>: <status text>[ - <body>]", quoting at most maxErrorBodyBytes of
// the body.
func formatUnexpectedStatus(code int, body []byte) string {
	text := http.StatusText(code)
	if text == "" {
		text = "unexpected status"
	}

	msg := fmt.Sprintf("%d: %s", code, text)

	if len(body) > maxErrorBodyBytes {
		body = body[:maxErrorBodyBytes]
	}
	if snippet := strings.TrimSpace(string(body)); snippet != "" {
		msg += " - " + snippet
	}
	return msg
}
