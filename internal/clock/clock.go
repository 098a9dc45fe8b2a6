package clock

import (
	"sync"
	"time"
)

// Precision is the resolution every ledger timestamp is truncated to.
// Postgres stores microseconds, so anything finer would not round-trip.
const Precision = time.Microsecond

// Clock supplies ledger timestamps
type Clock interface {
	Now() time.Time
}

// System is the wall clock in UTC
type System struct{}

// Now returns the current UTC time truncated to Precision
func (System) Now() time.Time {
	return time.Now().UTC().Truncate(Precision)
}

// Manual is a clock that only moves when told to. Safe for concurrent use.
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

// NewManual creates a manual clock starting at t
func NewManual(t time.Time) *Manual {
	return &Manual{now: t.UTC().Truncate(Precision)}
}

// Now returns the current manual time
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the clock forward by d
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d).Truncate(Precision)
}

// Set moves the clock to t
func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t.UTC().Truncate(Precision)
}
