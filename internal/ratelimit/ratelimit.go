// Package ratelimit provides a bounded per-user request limiter. It is
// process-wide state with an explicit lifecycle: constructed once in
// main, injected into request handling, reset in tests, closed on
// shutdown.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter tracks one token bucket per user identity and periodically
// sweeps entries that have gone quiet, bounding the table size.
type Limiter struct {
	mu      sync.Mutex
	users   map[string]*entry
	limit   rate.Limit
	burst   int
	maxIdle time.Duration
	done    chan struct{}
	once    sync.Once
}

// New creates a limiter allowing perMinute requests with the given burst,
// sweeping idle entries every sweep interval.
func New(perMinute, burst int, sweep time.Duration) *Limiter {
	l := &Limiter{
		users:   make(map[string]*entry),
		limit:   rate.Limit(float64(perMinute) / 60.0),
		burst:   burst,
		maxIdle: sweep,
		done:    make(chan struct{}),
	}
	go l.sweepLoop(sweep)
	return l
}

// Allow reports whether the user may issue another request now.
func (l *Limiter) Allow(userID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.users[userID]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.users[userID] = e
	}
	e.lastSeen = time.Now()
	return e.limiter.Allow()
}

// Reset drops all tracked users. Intended for tests.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.users = make(map[string]*entry)
}

// Close stops the sweep goroutine.
func (l *Limiter) Close() {
	l.once.Do(func() { close(l.done) })
}

func (l *Limiter) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-l.maxIdle)
			l.mu.Lock()
			for id, e := range l.users {
				if e.lastSeen.Before(cutoff) {
					delete(l.users, id)
				}
			}
			l.mu.Unlock()
		}
	}
}
