package identity

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	limiterPruneAt = 1024
	limiterMax     = 10000
)

type limiterEntry struct {
	lim  *rate.Limiter
	last time.Time
}

// signInLimiter throttles sign-in attempts per normalized email. Limiters
// idle long enough to have refilled are pruned, and the map never exceeds
// max entries.
type signInLimiter struct {
	mu       sync.Mutex
	every    rate.Limit
	burst    int
	idle     time.Duration
	pruneAt  int
	max      int
	limiters map[string]*limiterEntry
}

func newSignInLimiter(interval time.Duration, burst int) *signInLimiter {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	if burst <= 0 {
		burst = 1
	}
	return &signInLimiter{
		every:    limit,
		burst:    burst,
		idle:     interval * time.Duration(burst),
		pruneAt:  limiterPruneAt,
		max:      limiterMax,
		limiters: make(map[string]*limiterEntry),
	}
}

func (l *signInLimiter) allow(email string, now time.Time) bool {
	if l.every == rate.Inf {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.limiters[email]
	if !ok {
		if len(l.limiters) >= l.pruneAt {
			l.prune(now)
		}
		e = &limiterEntry{lim: rate.NewLimiter(l.every, l.burst)}
		l.limiters[email] = e
	}
	e.last = now
	return e.lim.AllowN(now, 1)
}

// prune drops refilled limiters, then the least recently used ones while
// the map is at capacity. Caller holds mu.
func (l *signInLimiter) prune(now time.Time) {
	for k, e := range l.limiters {
		if now.Sub(e.last) >= l.idle {
			delete(l.limiters, k)
		}
	}
	for len(l.limiters) >= l.max {
		var oldest string
		var oldestAt time.Time
		for k, e := range l.limiters {
			if oldest == "" || e.last.Before(oldestAt) {
				oldest, oldestAt = k, e.last
			}
		}
		delete(l.limiters, oldest)
	}
}

// forget drops the limiter after a successful sign-in.
func (l *signInLimiter) forget(email string) {
	l.mu.Lock()
	delete(l.limiters, email)
	l.mu.Unlock()
}

func (l *signInLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}
