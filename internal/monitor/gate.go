// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Platewise Contributors

package monitor

import (
	"sync"
	"time"
)

// probeGate enforces a minimum wall-clock interval between real probe
// attempts, independent of the cache TTL. The gate is stamped when a probe
// begins, not when it completes, so a slow probe cannot be double-counted
// by rapid callers.
type probeGate struct {
	mu          sync.Mutex
	lastProbeAt time.Time
	minInterval time.Duration
	nowFunc     func() time.Time // for testing
}

func newProbeGate(minInterval time.Duration) *probeGate {
	return &probeGate{
		minInterval: minInterval,
		nowFunc:     time.Now,
	}
}

// canProbeNow reports whether enough time has passed since the last probe.
// A gate that has never been stamped always permits the first probe.
func (g *probeGate) canProbeNow() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.lastProbeAt.IsZero() {
		return true
	}
	return g.nowFunc().Sub(g.lastProbeAt) >= g.minInterval
}

// recordProbe stamps the gate. Called exactly once per real probe attempt,
// before the upstream call begins.
func (g *probeGate) recordProbe() {
	g.mu.Lock()
	g.lastProbeAt = g.nowFunc()
	g.mu.Unlock()
}

func (g *probeGate) setNowFunc(fn func() time.Time) {
	g.mu.Lock()
	g.nowFunc = fn
	g.mu.Unlock()
}
