package http

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	throttleSweepEvery = 5 * time.Minute
	throttleIdleAfter  = 10 * time.Minute
)

// ipThrottle limits room creation per client IP. Entries for idle IPs
// are swept inline on the next request; there is no background
// goroutine to stop.
type ipThrottle struct {
	mu        sync.Mutex
	limiters  map[string]*throttleEntry
	perMin    int
	now       func() time.Time
	lastSweep time.Time
}

type throttleEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newIPThrottle(perMinute int) *ipThrottle {
	return &ipThrottle{
		limiters: make(map[string]*throttleEntry),
		perMin:   perMinute,
		now:      time.Now,
	}
}

func (t *ipThrottle) allow(ip string) bool {
	if t.perMin <= 0 {
		return true
	}

	t.mu.Lock()
	now := t.now()
	t.sweepLocked(now)
	entry, ok := t.limiters[ip]
	if !ok {
		entry = &throttleEntry{
			limiter: rate.NewLimiter(rate.Limit(float64(t.perMin)/60), t.perMin),
		}
		t.limiters[ip] = entry
	}
	entry.lastSeen = now
	t.mu.Unlock()

	return entry.limiter.Allow()
}

func (t *ipThrottle) sweepLocked(now time.Time) {
	if now.Sub(t.lastSweep) < throttleSweepEvery {
		return
	}
	t.lastSweep = now
	cutoff := now.Add(-throttleIdleAfter)
	for ip, entry := range t.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(t.limiters, ip)
		}
	}
}
