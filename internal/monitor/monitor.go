// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Platewise Contributors

// Package monitor composes the upstream probe executor with a short-TTL
// status cache, a probe rate limiter, and a single-flight guard, and runs
// the probe on a recurring schedule. One Monitor instance is constructed at
// wiring time and shared by every call site; there is no package-level state.
package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	pwerr "github.com/platewise-dev/platewise/pkg/errors"
	"github.com/platewise-dev/platewise/pkg/health"
)

// Prober executes one health probe against the upstream. Implementations
// never return an error; failures are carried inside the Status.
type Prober interface {
	Probe(ctx context.Context) health.Status
	Diagnose(ctx context.Context) health.CheckResult
}

// Config holds the monitoring knobs. All durations must be positive.
type Config struct {
	Enabled          bool
	Interval         time.Duration
	CacheTTL         time.Duration
	MinProbeInterval time.Duration
}

// Monitor is the health-monitoring façade. Safe for concurrent use; at most
// one probe is in flight at any time across on-demand and scheduled callers.
type Monitor struct {
	prober Prober
	cfg    Config

	cache *statusCache
	gate  *probeGate

	mu            sync.Mutex
	probeInFlight bool

	schedMu sync.Mutex
	stopCh  chan struct{} // non-nil while the scheduler is running

	nowFunc func() time.Time // for testing
}

// New creates a Monitor around prober. Returns an error if any duration is
// not positive.
func New(prober Prober, cfg Config) (*Monitor, error) {
	if cfg.Interval <= 0 {
		return nil, pwerr.Errorf(pwerr.CodeMonitorConfigInvalid, "monitor interval must be positive, got %s", cfg.Interval)
	}
	if cfg.CacheTTL <= 0 {
		return nil, pwerr.Errorf(pwerr.CodeMonitorConfigInvalid, "monitor cache TTL must be positive, got %s", cfg.CacheTTL)
	}
	if cfg.MinProbeInterval <= 0 {
		return nil, pwerr.Errorf(pwerr.CodeMonitorConfigInvalid, "monitor min probe interval must be positive, got %s", cfg.MinProbeInterval)
	}

	return &Monitor{
		prober:  prober,
		cfg:     cfg,
		cache:   newStatusCache(cfg.CacheTTL),
		gate:    newProbeGate(cfg.MinProbeInterval),
		nowFunc: time.Now,
	}, nil
}

// CheckHealth returns the current upstream health, probing only when the
// cached status is stale or the rate-limit gate permits a refresh. It never
// returns an error and never blocks behind another caller's probe.
func (m *Monitor) CheckHealth(ctx context.Context) health.Status {
	if cached, ok := m.cache.get(); ok && !m.gate.canProbeNow() {
		return cached
	}

	if !m.tryBeginProbe() {
		return m.inFlightFallback()
	}
	defer m.endProbe()

	if !m.gate.canProbeNow() {
		// A probe ran recently but its result is gone (explicit clear).
		// Refusing to re-probe keeps the gate meaningful; report unknown
		// rather than fabricating a healthy answer.
		return health.Unhealthy(m.nowFunc(), "unknown, last probe too recent to refresh")
	}

	// Stamp the gate before the upstream call so a caller arriving during a
	// slow probe sees the attempt as already counted.
	m.gate.recordProbe()

	status := m.prober.Probe(ctx)
	m.cache.set(status)
	return status
}

// CachedStatus returns the cached status without ever probing or mutating
// rate-limiter or guard state. The second return is false when the cache is
// absent or expired.
func (m *Monitor) CachedStatus() (health.Status, bool) {
	return m.cache.get()
}

// Diagnostics runs a full check and returns the diagnostic envelope. It is
// an explicit operator action: it honors the single-flight guard and stamps
// the rate-limit gate, but is not blocked by the gate.
func (m *Monitor) Diagnostics(ctx context.Context) health.CheckResult {
	if !m.tryBeginProbe() {
		status := m.inFlightFallback()
		return health.CheckResult{
			Status:        status,
			RateLimitInfo: status.RateLimitRemaining != nil,
		}
	}
	defer m.endProbe()

	m.gate.recordProbe()

	result := m.prober.Diagnose(ctx)
	m.cache.set(result.Status)
	return result
}

// Reset clears the cached status. Used on shutdown and in tests.
func (m *Monitor) Reset() {
	m.cache.clear()
}

// StartScheduledChecks launches the background probe loop: one immediate
// check, then one per configured interval, all through the same CheckHealth
// path as on-demand callers. No-op when monitoring is disabled; idempotent
// when already running.
func (m *Monitor) StartScheduledChecks() {
	if !m.cfg.Enabled {
		slog.Debug("upstream health monitoring disabled; scheduler not started")
		return
	}

	m.schedMu.Lock()
	defer m.schedMu.Unlock()

	if m.stopCh != nil {
		slog.Warn("scheduled upstream health checks already running")
		return
	}

	m.stopCh = make(chan struct{})
	go m.run(m.stopCh)

	slog.Info("scheduled upstream health checks started", "interval", m.cfg.Interval)
}

// StopScheduledChecks cancels the recurring checks. It does not cancel a
// probe already in flight. Safe to call when not running.
func (m *Monitor) StopScheduledChecks() {
	m.schedMu.Lock()
	defer m.schedMu.Unlock()

	if m.stopCh == nil {
		return
	}

	close(m.stopCh)
	m.stopCh = nil
	slog.Info("scheduled upstream health checks stopped")
}

// ScheduledChecksRunning reports whether the scheduler loop is active.
func (m *Monitor) ScheduledChecksRunning() bool {
	m.schedMu.Lock()
	defer m.schedMu.Unlock()
	return m.stopCh != nil
}

func (m *Monitor) run(stop <-chan struct{}) {
	// Immediate first check so upstream health is known at startup rather
	// than after the first interval elapses. Failures are logged by the
	// prober, never surfaced to the caller of StartScheduledChecks.
	m.scheduledCheck()

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.scheduledCheck()
		case <-stop:
			return
		}
	}
}

func (m *Monitor) scheduledCheck() {
	status := m.CheckHealth(context.Background())
	if !status.Healthy {
		slog.Warn("scheduled upstream health check reported unhealthy", "error", status.Error)
	}
}

// tryBeginProbe atomically claims the single probe slot. The check and the
// set happen under one lock so two callers cannot both observe "not in
// flight" and both start probing.
func (m *Monitor) tryBeginProbe() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.probeInFlight {
		return false
	}
	m.probeInFlight = true
	return true
}

// endProbe releases the probe slot. Deferred on every exit path.
func (m *Monitor) endProbe() {
	m.mu.Lock()
	m.probeInFlight = false
	m.mu.Unlock()
}

// inFlightFallback is returned to a caller that lost the guard race: the
// cached status when one exists, otherwise a synthesized unhealthy status
// naming the contention. The caller is never blocked behind the running
// probe.
func (m *Monitor) inFlightFallback() health.Status {
	if cached, ok := m.cache.get(); ok {
		return cached
	}
	return health.Unhealthy(m.nowFunc(), "health check already in progress")
}
