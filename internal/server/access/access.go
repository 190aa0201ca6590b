// Package access issues and tracks short-lived pairing codes.
//
// A code is a 6-digit decimal string (leading zeros preserved) owned by the
// host connection that requested it. A code is single-use: it is consumed
// the instant a session is created from it, and is otherwise removed on
// expiry, on explicit cancellation, or when the owning host disconnects.
package access

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

var (
	// ErrNotFound reports a code with no outstanding entry.
	ErrNotFound = errors.New("access code not found")
	// ErrExpired reports a code past its expiry; the entry is removed.
	ErrExpired = errors.New("access code expired")
)

const codeDigits = 6

// issueAttempts bounds collision retries when generating a code.
const issueAttempts = 10

type entry struct {
	code      string
	hostID    string
	userAgent string
	expiresAt time.Time
	timer     *clock.Timer
}

// ExpiryFunc is invoked after an unconsumed code reaches its TTL, outside
// the registry lock, so the host can be notified if still connected.
type ExpiryFunc func(hostID, code string)

// Registry stores outstanding access codes.
type Registry struct {
	mu       sync.Mutex
	clock    clock.Clock
	ttl      time.Duration
	codes    map[string]*entry
	onExpire ExpiryFunc

	// generate produces one candidate code; replaced in tests.
	generate func() (string, error)
}

// NewRegistry creates a code registry. onExpire may be nil.
func NewRegistry(clk clock.Clock, ttl time.Duration, onExpire ExpiryFunc) *Registry {
	return &Registry{
		clock:    clk,
		ttl:      ttl,
		codes:    make(map[string]*entry),
		onExpire: onExpire,
		generate: generateCode,
	}
}

// Issue creates a new code owned by the given host connection and arms its
// expiry timer. Generation retries on collision with an outstanding code.
func (r *Registry) Issue(hostID, userAgent string) (string, time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var code string
	for i := 0; ; i++ {
		if i == issueAttempts {
			return "", time.Time{}, fmt.Errorf("could not generate an unused code after %d attempts", issueAttempts)
		}
		candidate, err := r.generate()
		if err != nil {
			return "", time.Time{}, fmt.Errorf("failed to generate code: %w", err)
		}
		if _, taken := r.codes[candidate]; !taken {
			code = candidate
			break
		}
	}

	e := &entry{
		code:      code,
		hostID:    hostID,
		userAgent: userAgent,
		expiresAt: r.clock.Now().Add(r.ttl),
	}
	e.timer = r.clock.AfterFunc(r.ttl, func() {
		r.expire(e)
	})
	r.codes[code] = e

	return code, e.expiresAt, nil
}

// expire removes a code when its timer fires. The entry identity check
// makes a stale timer for a consumed-and-reissued code a no-op.
func (r *Registry) expire(e *entry) {
	r.mu.Lock()
	current, exists := r.codes[e.code]
	if !exists || current != e {
		r.mu.Unlock()
		return
	}
	delete(r.codes, e.code)
	onExpire := r.onExpire
	r.mu.Unlock()

	if onExpire != nil {
		onExpire(e.hostID, e.code)
	}
}

// Validate resolves a code to its owning host connection. An expired entry
// is removed on the spot and reported as ErrExpired.
func (r *Registry) Validate(code string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, exists := r.codes[code]
	if !exists {
		return "", ErrNotFound
	}
	if !r.clock.Now().Before(e.expiresAt) {
		e.timer.Stop()
		delete(r.codes, code)
		return "", ErrExpired
	}
	return e.hostID, nil
}

// Consume removes a code once a session has been created from it.
// Idempotent if the code is already absent.
func (r *Registry) Consume(code string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, exists := r.codes[code]; exists {
		e.timer.Stop()
		delete(r.codes, code)
	}
}

// CancelAllForHost removes every code owned by the given host connection.
// Invoked on host disconnect.
func (r *Registry) CancelAllForHost(hostID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for code, e := range r.codes {
		if e.hostID == hostID {
			e.timer.Stop()
			delete(r.codes, code)
		}
	}
}

// Count returns the number of outstanding codes.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.codes)
}

// generateCode draws each digit independently and uniformly from
// crypto/rand, so leading zeros are as likely as any other digit.
func generateCode() (string, error) {
	digits := make([]byte, codeDigits)
	for i := range digits {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		digits[i] = '0' + byte(n.Int64())
	}
	return string(digits), nil
}
