// Package internal provides internal utilities for the congestion package.
package internal

import "time"

// Clock supplies timestamps to the controller. The controller only ever
// computes differences between values from the same Clock, so any source
// that is monotonic and has millisecond resolution or better will do.
type Clock interface {
	// Now returns the current time. Implementations must return
	// non-decreasing values.
	Now() time.Time
}

// SystemClock reads the system clock. Go's time.Now carries a monotonic
// reading, so elapsed-time arithmetic is immune to wall-clock steps.
type SystemClock struct{}

// Now returns the current system time.
func (SystemClock) Now() time.Time {
	return time.Now()
}

// MockClock is a manually advanced Clock for deterministic tests.
// It is not safe for concurrent use.
type MockClock struct {
	current time.Time
}

// NewMockClock returns a MockClock starting at t, or at a fixed non-zero
// epoch when t is the zero time (zero time values trip IsZero checks in
// code under test).
func NewMockClock(t time.Time) *MockClock {
	if t.IsZero() {
		t = time.Unix(1700000000, 0)
	}
	return &MockClock{current: t}
}

// Now returns the mock clock's current time.
func (m *MockClock) Now() time.Time {
	return m.current
}

// Advance moves the clock forward by d. Panics on negative d so tests
// cannot accidentally violate monotonicity.
func (m *MockClock) Advance(d time.Duration) {
	if d < 0 {
		panic("MockClock.Advance: duration must be non-negative")
	}
	m.current = m.current.Add(d)
}
