// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Platewise Contributors

package monitor

import (
	"sync"
	"time"

	"github.com/platewise-dev/platewise/pkg/health"
)

// statusCache stores the most recent probe result for a fixed TTL so that
// on-demand checks can be answered without touching the upstream. Failed
// probes are cached the same as successes; serving a known-down status is
// cheaper than re-confirming it.
type statusCache struct {
	mu        sync.RWMutex
	status    health.Status
	expiresAt time.Time
	present   bool
	ttl       time.Duration
	nowFunc   func() time.Time // for testing
}

func newStatusCache(ttl time.Duration) *statusCache {
	return &statusCache{
		ttl:     ttl,
		nowFunc: time.Now,
	}
}

// set unconditionally stores status, stamping a fresh expiry.
func (c *statusCache) set(status health.Status) {
	c.mu.Lock()
	c.status = status
	c.expiresAt = c.nowFunc().Add(c.ttl)
	c.present = true
	c.mu.Unlock()
}

// get returns the stored status while it is fresh. An expired or never-set
// entry reports absent, not an error.
func (c *statusCache) get() (health.Status, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.present || c.nowFunc().After(c.expiresAt) {
		return health.Status{}, false
	}
	return c.status, true
}

// clear forces the next get to report absent.
func (c *statusCache) clear() {
	c.mu.Lock()
	c.present = false
	c.mu.Unlock()
}

func (c *statusCache) setNowFunc(fn func() time.Time) {
	c.mu.Lock()
	c.nowFunc = fn
	c.mu.Unlock()
}
