// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Platewise Contributors

package monitor

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/platewise-dev/platewise/pkg/health"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProber counts probes and returns a configurable status. When blockCh is
// set, Probe parks until the channel is closed, signalling entry on startedCh.
type fakeProber struct {
	mu        sync.Mutex
	status    health.Status
	probes    atomic.Int64
	blockCh   chan struct{}
	startedCh chan struct{}
}

func newFakeProber() *fakeProber {
	return &fakeProber{
		status: health.Status{Healthy: true, CheckedAt: time.Now()},
	}
}

func (f *fakeProber) setStatus(s health.Status) {
	f.mu.Lock()
	f.status = s
	f.mu.Unlock()
}

func (f *fakeProber) Probe(_ context.Context) health.Status {
	f.probes.Add(1)
	if f.startedCh != nil {
		f.startedCh <- struct{}{}
	}
	if f.blockCh != nil {
		<-f.blockCh
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeProber) Diagnose(ctx context.Context) health.CheckResult {
	status := f.Probe(ctx)
	return health.CheckResult{
		Status:         status,
		Connectivity:   true,
		Authentication: status.Healthy,
	}
}

func testConfig() Config {
	return Config{
		Enabled:          true,
		Interval:         time.Hour, // scheduler never ticks unless a test wants it
		CacheTTL:         time.Minute,
		MinProbeInterval: 30 * time.Second,
	}
}

func newTestMonitor(t *testing.T, prober Prober, cfg Config) *Monitor {
	t.Helper()
	m, err := New(prober, cfg)
	require.NoError(t, err)
	return m
}

// setNow pins every internal clock of the monitor to the given function.
func setNow(m *Monitor, fn func() time.Time) {
	m.cache.setNowFunc(fn)
	m.gate.setNowFunc(fn)
	m.nowFunc = fn
}

func TestNewValidatesConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"zero interval", Config{Interval: 0, CacheTTL: time.Minute, MinProbeInterval: time.Second}},
		{"zero cache ttl", Config{Interval: time.Minute, CacheTTL: 0, MinProbeInterval: time.Second}},
		{"zero min probe interval", Config{Interval: time.Minute, CacheTTL: time.Minute, MinProbeInterval: 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(newFakeProber(), tt.cfg)
			assert.Error(t, err)
		})
	}
}

func TestCheckHealthFirstCallAlwaysProbes(t *testing.T) {
	prober := newFakeProber()
	m := newTestMonitor(t, prober, testConfig())

	status := m.CheckHealth(context.Background())

	assert.True(t, status.Healthy)
	assert.Equal(t, int64(1), prober.probes.Load())
}

func TestCheckHealthServesCacheWithinGateWindow(t *testing.T) {
	prober := newFakeProber()
	m := newTestMonitor(t, prober, testConfig())

	now := time.Now()
	setNow(m, func() time.Time { return now })

	first := m.CheckHealth(context.Background())
	require.Equal(t, int64(1), prober.probes.Load())

	// Second call 10s later: cache fresh, gate closed.
	setNow(m, func() time.Time { return now.Add(10 * time.Second) })
	second := m.CheckHealth(context.Background())

	assert.Equal(t, int64(1), prober.probes.Load(), "no second real probe inside the gate window")
	assert.Equal(t, first, second)
}

func TestCheckHealthReprobesOnceGateOpens(t *testing.T) {
	prober := newFakeProber()
	m := newTestMonitor(t, prober, testConfig())

	now := time.Now()
	setNow(m, func() time.Time { return now })
	m.CheckHealth(context.Background())

	// Cache is still fresh (TTL 60s) but the gate reopened at 30s: a forced
	// check may refresh more often than the passive cache would allow.
	setNow(m, func() time.Time { return now.Add(31 * time.Second) })
	m.CheckHealth(context.Background())

	assert.Equal(t, int64(2), prober.probes.Load())
}

func TestCheckHealthCachesFailures(t *testing.T) {
	prober := newFakeProber()
	prober.setStatus(health.Status{Healthy: false, CheckedAt: time.Now(), Error: "service temporarily unavailable"})
	m := newTestMonitor(t, prober, testConfig())

	now := time.Now()
	setNow(m, func() time.Time { return now })

	first := m.CheckHealth(context.Background())
	assert.False(t, first.Healthy)

	setNow(m, func() time.Time { return now.Add(5 * time.Second) })
	second := m.CheckHealth(context.Background())

	assert.Equal(t, int64(1), prober.probes.Load(), "a known-down upstream is not re-probed inside the gate window")
	assert.Equal(t, "service temporarily unavailable", second.Error)
}

func TestCheckHealthUnknownAfterClearInsideGateWindow(t *testing.T) {
	prober := newFakeProber()
	m := newTestMonitor(t, prober, testConfig())

	now := time.Now()
	setNow(m, func() time.Time { return now })
	m.CheckHealth(context.Background())

	m.Reset()

	setNow(m, func() time.Time { return now.Add(5 * time.Second) })
	status := m.CheckHealth(context.Background())

	assert.False(t, status.Healthy)
	assert.Contains(t, status.Error, "last probe too recent to refresh")
	assert.Equal(t, int64(1), prober.probes.Load())

	// The guard must have been released on that early-return path.
	setNow(m, func() time.Time { return now.Add(31 * time.Second) })
	m.CheckHealth(context.Background())
	assert.Equal(t, int64(2), prober.probes.Load())
}

func TestGuardMutualExclusion(t *testing.T) {
	prober := newFakeProber()
	prober.blockCh = make(chan struct{})
	prober.startedCh = make(chan struct{}, 1)
	m := newTestMonitor(t, prober, testConfig())

	firstDone := make(chan health.Status, 1)
	go func() {
		firstDone <- m.CheckHealth(context.Background())
	}()

	// Wait until the first probe is parked inside the prober.
	<-prober.startedCh

	second := m.CheckHealth(context.Background())
	assert.False(t, second.Healthy)
	assert.Equal(t, "health check already in progress", second.Error)
	assert.Equal(t, int64(1), prober.probes.Load(), "exactly one real probe may run")

	close(prober.blockCh)
	first := <-firstDone
	assert.True(t, first.Healthy)
}

func TestGuardContentionFallsBackToCache(t *testing.T) {
	prober := newFakeProber()
	m := newTestMonitor(t, prober, testConfig())

	now := time.Now()
	setNow(m, func() time.Time { return now })
	cached := m.CheckHealth(context.Background())
	require.Equal(t, int64(1), prober.probes.Load())

	// Park a diagnostics probe inside the guard, then race an on-demand check
	// against it. Diagnostics bypasses the gate, so the guard is what stops
	// the second caller.
	prober.blockCh = make(chan struct{})
	prober.startedCh = make(chan struct{}, 1)

	diagDone := make(chan health.CheckResult, 1)
	go func() {
		diagDone <- m.Diagnostics(context.Background())
	}()
	<-prober.startedCh

	second := m.Diagnostics(context.Background())
	assert.Equal(t, cached, second.Status, "contended caller receives the cached status, never a duplicate probe")

	close(prober.blockCh)
	<-diagDone
	assert.Equal(t, int64(2), prober.probes.Load())
}

func TestGuardReleasedAfterFailedProbe(t *testing.T) {
	prober := newFakeProber()
	prober.setStatus(health.Status{Healthy: false, CheckedAt: time.Now(), Error: "timeout after 5000ms"})
	m := newTestMonitor(t, prober, testConfig())

	now := time.Now()
	setNow(m, func() time.Time { return now })
	m.CheckHealth(context.Background())

	// A probe issued after the gate reopens must be allowed to run: the
	// failure path released the guard.
	setNow(m, func() time.Time { return now.Add(31 * time.Second) })
	m.CheckHealth(context.Background())

	assert.Equal(t, int64(2), prober.probes.Load())
}

func TestCachedStatusNeverProbes(t *testing.T) {
	prober := newFakeProber()
	m := newTestMonitor(t, prober, testConfig())

	_, ok := m.CachedStatus()
	assert.False(t, ok)
	assert.Zero(t, prober.probes.Load())

	m.CheckHealth(context.Background())
	got, ok := m.CachedStatus()
	assert.True(t, ok)
	assert.True(t, got.Healthy)
	assert.Equal(t, int64(1), prober.probes.Load(), "CachedStatus must not trigger probes")

	// Reading the cache must not stamp the gate either: gate state belongs
	// to real probe attempts only.
	assert.False(t, m.gate.canProbeNow())
}

func TestDiagnosticsRunsFullCheck(t *testing.T) {
	prober := newFakeProber()
	m := newTestMonitor(t, prober, testConfig())

	result := m.Diagnostics(context.Background())

	assert.True(t, result.Status.Healthy)
	assert.True(t, result.Connectivity)
	assert.Equal(t, int64(1), prober.probes.Load())

	// Diagnostics feeds the cache like any other probe.
	cached, ok := m.CachedStatus()
	assert.True(t, ok)
	assert.Equal(t, result.Status, cached)
}

func TestSchedulerDisabled(t *testing.T) {
	prober := newFakeProber()
	cfg := testConfig()
	cfg.Enabled = false
	m := newTestMonitor(t, prober, cfg)

	m.StartScheduledChecks()

	assert.False(t, m.ScheduledChecksRunning())
	assert.Zero(t, prober.probes.Load())
}

func TestSchedulerImmediateFirstCheck(t *testing.T) {
	prober := newFakeProber()
	m := newTestMonitor(t, prober, testConfig())
	defer m.StopScheduledChecks()

	m.StartScheduledChecks()

	require.Eventually(t, func() bool {
		return prober.probes.Load() == 1
	}, time.Second, 5*time.Millisecond, "scheduler start must trigger an immediate check")
}

func TestSchedulerRecurringTicks(t *testing.T) {
	prober := newFakeProber()
	cfg := testConfig()
	cfg.Interval = 10 * time.Millisecond
	cfg.MinProbeInterval = time.Nanosecond // let every tick through the gate
	m := newTestMonitor(t, prober, cfg)
	defer m.StopScheduledChecks()

	m.StartScheduledChecks()

	require.Eventually(t, func() bool {
		return prober.probes.Load() >= 3
	}, time.Second, 5*time.Millisecond, "ticker must keep probing")
}

func TestSchedulerStartIsIdempotent(t *testing.T) {
	prober := newFakeProber()
	m := newTestMonitor(t, prober, testConfig())
	defer m.StopScheduledChecks()

	m.StartScheduledChecks()
	m.StartScheduledChecks()

	assert.True(t, m.ScheduledChecksRunning())

	require.Eventually(t, func() bool {
		return prober.probes.Load() >= 1
	}, time.Second, 5*time.Millisecond)

	// With an hour-long interval, only the immediate first check of a single
	// loop can have run. A second loop would have produced a second probe.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int64(1), prober.probes.Load(), "double start must not spawn a second loop")
}

func TestSchedulerStopIsIdempotent(t *testing.T) {
	prober := newFakeProber()
	m := newTestMonitor(t, prober, testConfig())

	m.StopScheduledChecks() // never started: no-op

	m.StartScheduledChecks()
	require.True(t, m.ScheduledChecksRunning())

	m.StopScheduledChecks()
	assert.False(t, m.ScheduledChecksRunning())

	m.StopScheduledChecks() // second stop: no-op
	assert.False(t, m.ScheduledChecksRunning())
}

func TestSchedulerStopHaltsTicks(t *testing.T) {
	prober := newFakeProber()
	cfg := testConfig()
	cfg.Interval = 10 * time.Millisecond
	cfg.MinProbeInterval = time.Nanosecond
	m := newTestMonitor(t, prober, cfg)

	m.StartScheduledChecks()
	require.Eventually(t, func() bool {
		return prober.probes.Load() >= 2
	}, time.Second, 5*time.Millisecond)

	m.StopScheduledChecks()
	after := prober.probes.Load()
	time.Sleep(50 * time.Millisecond)

	assert.LessOrEqual(t, prober.probes.Load(), after+1, "at most one tick already in flight may complete after stop")
}

func TestSchedulerRestartAfterStop(t *testing.T) {
	prober := newFakeProber()
	m := newTestMonitor(t, prober, testConfig())

	m.StartScheduledChecks()
	m.StopScheduledChecks()

	m.StartScheduledChecks()
	defer m.StopScheduledChecks()
	assert.True(t, m.ScheduledChecksRunning())
}
