package api

import (
	"sync"
	"time"
)

// broadcastKey throttles sends without a recipient as one shared bucket.
const broadcastKey = "GLOBAL_BROADCAST"

// rateGuard enforces a minimum interval between sends per recipient key.
// Kept in memory on purpose: one store instance is the deployment unit.
type rateGuard struct {
	mu       sync.Mutex
	last     map[string]time.Time
	interval time.Duration
	now      func() time.Time
}

func newRateGuard(interval time.Duration) *rateGuard {
	return &rateGuard{
		last:     make(map[string]time.Time),
		interval: interval,
		now:      time.Now,
	}
}

// Allow reports whether a send for the given key is permitted and, if
// so, consumes the slot.
func (g *rateGuard) Allow(key string) bool {
	if key == "" {
		key = broadcastKey
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if last, ok := g.last[key]; ok && now.Sub(last) < g.interval {
		return false
	}
	g.last[key] = now

	return true
}
