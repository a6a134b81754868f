// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Platewise Contributors

package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/platewise-dev/platewise/pkg/health"
)

// HealthService is the monitor surface the server consumes.
type HealthService interface {
	CheckHealth(ctx context.Context) health.Status
	CachedStatus() (health.Status, bool)
	Diagnostics(ctx context.Context) health.CheckResult
}

// RegisterHealthService registers the upstream health routes backed by svc.
func (s *Server) RegisterHealthService(svc HealthService) {
	huma.Register(s.api, huma.Operation{
		OperationID: "upstream-health",
		Method:      http.MethodGet,
		Path:        "/api/v1/upstream/health",
		Summary:     "Check upstream recipe API health",
		Description: "May trigger a real probe, subject to caching and rate limiting.",
		Tags:        []string{"upstream"},
	}, func(ctx context.Context, _ *struct{}) (*upstreamHealthOutput, error) {
		return upstreamHealthResponse(svc.CheckHealth(ctx)), nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "upstream-health-cached",
		Method:      http.MethodGet,
		Path:        "/api/v1/upstream/health/cached",
		Summary:     "Read the cached upstream health status",
		Description: "Never triggers a probe; absent or expired cache reports unknown.",
		Tags:        []string{"upstream"},
	}, func(_ context.Context, _ *struct{}) (*cachedHealthOutput, error) {
		out := &cachedHealthOutput{}
		if status, ok := svc.CachedStatus(); ok {
			out.Body.State = stateOf(status)
			out.Body.Status = &status
		} else {
			out.Body.State = "unknown"
		}
		return out, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "upstream-diagnostics",
		Method:      http.MethodGet,
		Path:        "/api/v1/upstream/diagnostics",
		Summary:     "Run a full upstream diagnostic check",
		Tags:        []string{"upstream"},
	}, func(ctx context.Context, _ *struct{}) (*diagnosticsOutput, error) {
		out := &diagnosticsOutput{}
		out.Body = svc.Diagnostics(ctx)
		return out, nil
	})
}

// upstreamHealthResponse maps a probe status to the HTTP surface: healthy is
// 200, anything else is 503 so load balancers and operators see a degraded
// upstream. The body always carries the full status; the surface never fails
// open.
func upstreamHealthResponse(status health.Status) *upstreamHealthOutput {
	out := &upstreamHealthOutput{}
	out.Body.State = stateOf(status)
	out.Body.Status = &status
	if !status.Healthy {
		out.Status = http.StatusServiceUnavailable
	}
	return out
}

// stateOf collapses a status to the coarse state string exposed over HTTP.
func stateOf(status health.Status) string {
	if status.Healthy {
		return "healthy"
	}
	return "unhealthy"
}

type healthBody struct {
	State  string         `json:"state" enum:"healthy,unhealthy,unknown" doc:"Coarse upstream state"`
	Status *health.Status `json:"status,omitempty" doc:"Most recent probe result, absent when unknown"`
}

type upstreamHealthOutput struct {
	Status int
	Body   healthBody
}

type cachedHealthOutput struct {
	Body healthBody
}

type diagnosticsOutput struct {
	Body health.CheckResult
}
