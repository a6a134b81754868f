// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Platewise Contributors

// Package health defines the snapshot types describing the health of the
// upstream recipe API. Values are immutable once produced and safe to
// serialize to JSON.
package health

import "time"

// Status is a point-in-time snapshot of upstream health produced by a single
// probe. Healthy implies Error is empty; CheckedAt is always set.
type Status struct {
	Healthy            bool       `json:"healthy"`
	CheckedAt          time.Time  `json:"checked_at"`
	ResponseTimeMillis *int64     `json:"response_time_millis,omitempty"`
	Error              string     `json:"error,omitempty"`
	RateLimitRemaining *int       `json:"rate_limit_remaining,omitempty"`
	RateLimitResetAt   *time.Time `json:"rate_limit_reset_at,omitempty"`
	APIVersion         string     `json:"api_version,omitempty"`
	EndpointProbed     string     `json:"endpoint_probed,omitempty"`
}

// CheckResult is the diagnostic envelope returned by a full check. It carries
// the probe's Status plus per-dimension pass flags for operator visibility.
// Never persisted.
type CheckResult struct {
	Status         Status `json:"status"`
	Connectivity   bool   `json:"connectivity"`
	Authentication bool   `json:"authentication"`
	RateLimitInfo  bool   `json:"rate_limit_info"`
	LatencyMillis  int64  `json:"latency_millis"`
}

// Unhealthy builds a failure Status stamped at checkedAt.
func Unhealthy(checkedAt time.Time, cause string) Status {
	return Status{
		Healthy:   false,
		CheckedAt: checkedAt,
		Error:     cause,
	}
}
