// Package ratelimit implements the gateway's per-identifier token bucket:
// capacity N requests/minute, greedy refill of the full capacity spread
// continuously over sixty seconds, one bucket per caller identifier.
package ratelimit

import (
	"math"
	"sync"
	"time"

	"go.uber.org/atomic"
)

// window is the refill period the capacity is spread over.
const window = 60 * time.Second

// bucket is one identifier's token bucket. Refill math needs to read and
// update tokens + lastRefill together, so a small per-bucket mutex guards
// that pair rather than a lock-free CAS loop — simpler to get right, and
// contention is inherently per-identifier, never global.
type bucket struct {
	mu         sync.Mutex
	capacity   float64
	tokens     float64
	lastRefill time.Time
}

func newBucket(capacity float64) *bucket {
	return &bucket{capacity: capacity, tokens: capacity, lastRefill: time.Now()}
}

// refillLocked applies greedy continuous refill for elapsed wall-clock
// time. Must be called with mu held.
func (b *bucket) refillLocked(now time.Time) {
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	refillRate := b.capacity / window.Seconds() // tokens per second
	b.tokens = math.Min(b.capacity, b.tokens+elapsed*refillRate)
	b.lastRefill = now
}

// take refills, then consumes one token if available. Returns the
// remaining token count (floored) and the seconds until a full bucket,
// taken immediately after the decrement so callers always see the
// post-decrement snapshot — never the stale pre-decrement value (the
// source's ordering bug this gateway deliberately does not repeat).
func (b *bucket) take() (allowed bool, remaining int, resetSeconds int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked(time.Now())

	if b.tokens >= 1 {
		b.tokens--
		allowed = true
	}

	return allowed, b.snapshotLocked()
}

// peek refills without consuming — used by the admin read endpoint, which
// must not cost the caller a token just for inspecting their own bucket.
func (b *bucket) peek() (remaining int, resetSeconds int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked(time.Now())
	return b.snapshotLocked()
}

// snapshotLocked must be called with mu held.
func (b *bucket) snapshotLocked() (remaining int, resetSeconds int) {
	remaining = int(math.Floor(b.tokens))
	deficit := b.capacity - b.tokens
	if deficit <= 0 {
		return remaining, 0
	}
	refillRate := b.capacity / window.Seconds()
	resetSeconds = int(math.Ceil(deficit / refillRate))
	return remaining, resetSeconds
}

// Limiter holds one bucket per identifier, created lazily on first
// observation and never destroyed except by explicit Reset.
type Limiter struct {
	enabled  bool
	capacity int

	buckets sync.Map // string -> *bucket

	allowed  atomic.Int64
	rejected atomic.Int64
}

// New constructs a Limiter with the given per-identifier capacity
// (requests/minute). If enabled is false, Allow always permits the call
// and reports remaining==limit.
func New(capacity int, enabled bool) *Limiter {
	return &Limiter{capacity: capacity, enabled: enabled}
}

func (l *Limiter) bucketFor(id string) *bucket {
	if v, ok := l.buckets.Load(id); ok {
		return v.(*bucket)
	}
	nb := newBucket(float64(l.capacity))
	actual, _ := l.buckets.LoadOrStore(id, nb)
	return actual.(*bucket)
}

// Snapshot is the {limit, remaining, resetSeconds} triple ingress stamps on
// response headers and the admin endpoint returns.
type Snapshot struct {
	Limit        int
	Remaining    int
	ResetSeconds int
}

// Allow attempts to consume one token for id. The returned Snapshot is
// taken immediately after the decrement, so a caller who gets Allowed=true
// always sees Remaining reflecting that consumption.
func (l *Limiter) Allow(id string) (Snapshot, bool) {
	if !l.enabled {
		return Snapshot{Limit: l.capacity, Remaining: l.capacity, ResetSeconds: 0}, true
	}

	b := l.bucketFor(id)
	ok, remaining, resetSeconds := b.take()
	if ok {
		l.allowed.Inc()
	} else {
		l.rejected.Inc()
	}
	return Snapshot{Limit: l.capacity, Remaining: remaining, ResetSeconds: resetSeconds}, ok
}

// Peek returns id's current bucket state without consuming a token. Used
// by GET /admin/ratelimit/{id}.
func (l *Limiter) Peek(id string) Snapshot {
	if !l.enabled {
		return Snapshot{Limit: l.capacity, Remaining: l.capacity, ResetSeconds: 0}
	}
	b := l.bucketFor(id)
	remaining, resetSeconds := b.peek()
	return Snapshot{Limit: l.capacity, Remaining: remaining, ResetSeconds: resetSeconds}
}

// Reset deletes id's bucket; the next Allow/Peek recreates it at full
// capacity. Used by DELETE /admin/ratelimit/{id}.
func (l *Limiter) Reset(id string) {
	l.buckets.Delete(id)
}

// Totals reports process-lifetime allow/reject counts, for /metrics.
func (l *Limiter) Totals() (allowed, rejected int64) {
	return l.allowed.Load(), l.rejected.Load()
}
