package room

import "time"

// Rate limit: messages per client per rolling-ish minute. The window is
// a fixed reset, not a sliding log, so a client can burst up to twice
// the cap across a window boundary. That matches the intended soft
// throttle; this is not a security boundary.
const (
	rateLimitWindow = time.Minute
	rateLimitMax    = 60
)

type rateWindow struct {
	count       int
	windowStart time.Time
}

// rateLimiter tracks per-client fixed-window counters. It is owned by
// the actor goroutine and needs no locking; counters reset on restart.
type rateLimiter struct {
	clients map[string]*rateWindow
	now     func() time.Time
}

func newRateLimiter(now func() time.Time) *rateLimiter {
	if now == nil {
		now = time.Now
	}
	return &rateLimiter{
		clients: make(map[string]*rateWindow),
		now:     now,
	}
}

// allow counts one message and reports whether it is within the cap.
func (l *rateLimiter) allow(clientID string) bool {
	now := l.now()

	entry, ok := l.clients[clientID]
	if !ok || now.Sub(entry.windowStart) > rateLimitWindow {
		l.clients[clientID] = &rateWindow{count: 1, windowStart: now}
		return true
	}

	if entry.count >= rateLimitMax {
		return false
	}

	entry.count++
	return true
}

// forget drops a client's counter on disconnect.
func (l *rateLimiter) forget(clientID string) {
	delete(l.clients, clientID)
}
