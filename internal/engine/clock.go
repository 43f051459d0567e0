package engine

import (
	"sync/atomic"
	"time"
)

// Clock is the monotonic logical clock that stamps creation order.
//
// Every stored record carries a seq from this clock. Ordering ties
// (queue entries with equal expiry, listings) fall back to seq, never to
// wall-clock timestamps.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock that resumes after start.
// Used on open to continue past the highest seq in the store.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}

// WallClock supplies the current wall-clock time for operations that are
// not handed an explicit time, such as the liveness check and UpdatedAt.
type WallClock interface {
	Now() time.Time
}

// SystemClock reads the real time in UTC.
type SystemClock struct{}

// Now implements WallClock.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
