// Package ratelimit tracks failed pairing attempts per network origin.
//
// Failures are counted with no sliding window: once an origin accumulates
// the threshold of invalid-code attempts it is blocked, and the record is
// dropped a fixed duration after the block was imposed, after which the
// origin is treated as never having failed. Records that never reach the
// threshold decay the same duration after their last failure.
package ratelimit

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

type record struct {
	count       int
	lastAttempt time.Time
	blocked     bool
	timer       *clock.Timer
}

// Limiter tracks failed attempts keyed by origin.
type Limiter struct {
	mu        sync.Mutex
	clock     clock.Clock
	threshold int
	window    time.Duration
	records   map[string]*record
}

// NewLimiter creates a limiter that blocks an origin after threshold
// failures and clears the block after window.
func NewLimiter(clk clock.Clock, threshold int, window time.Duration) *Limiter {
	return &Limiter{
		clock:     clk,
		threshold: threshold,
		window:    window,
		records:   make(map[string]*record),
	}
}

// RecordFailure registers one invalid-code attempt from the origin and
// reports whether the origin is now blocked.
func (l *Limiter) RecordFailure(origin string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, exists := l.records[origin]
	if !exists {
		rec = &record{}
		l.records[origin] = rec
	}
	rec.count++
	rec.lastAttempt = l.clock.Now()

	if rec.blocked {
		return true
	}
	if rec.timer != nil {
		rec.timer.Stop()
	}
	if rec.count >= l.threshold {
		rec.blocked = true
	}
	// Blocked records reset a fixed window after the block was imposed;
	// sub-threshold records decay the same window after their last failure.
	rec.timer = l.clock.AfterFunc(l.window, func() {
		l.forget(origin, rec)
	})
	return rec.blocked
}

// IsBlocked reports whether the origin is inside an active block window.
func (l *Limiter) IsBlocked(origin string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, exists := l.records[origin]
	return exists && rec.blocked
}

// forget drops a record when its reset timer fires. The identity check
// makes a stale timer for a replaced record a no-op.
func (l *Limiter) forget(origin string, rec *record) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if current, exists := l.records[origin]; exists && current == rec {
		delete(l.records, origin)
	}
}
