// Package internal provides internal utilities for the tvremote package.
package internal

import (
	"sync"
	"time"
)

// Clock is an interface for obtaining the current wall time.
// Meeting names are derived from it, so tests can pin them.
type Clock interface {
	Now() time.Time
}

// SystemClock is a Clock backed by time.Now.
type SystemClock struct{}

// Now returns the current system time.
func (SystemClock) Now() time.Time {
	return time.Now()
}

// ManualClock is a Clock for tests whose time only moves when told to.
type ManualClock struct {
	mu      sync.Mutex
	current time.Time
}

// NewManualClock creates a ManualClock initialized to the given time.
// If t is zero, it initializes to a fixed default start time.
func NewManualClock(t time.Time) *ManualClock {
	if t.IsZero() {
		t = time.UnixMilli(1_700_000_000_000)
	}
	return &ManualClock{current: t}
}

// Now returns the clock's current time.
func (m *ManualClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Advance moves the clock forward by d.
// Panics if d is negative.
func (m *ManualClock) Advance(d time.Duration) {
	if d < 0 {
		panic("ManualClock.Advance: duration must be non-negative")
	}
	m.mu.Lock()
	m.current = m.current.Add(d)
	m.mu.Unlock()
}
