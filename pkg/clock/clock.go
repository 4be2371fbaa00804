// Package clock supplies the monotonic fractional-seconds time source shared by
// every component that measures elapsed time.
package clock

import (
	"sync"
	"time"
)

// Clock returns monotonic time in seconds. Only differences are meaningful.
type Clock interface {
	Now() float64
}

type system struct {
	start time.Time
}

// System returns a clock backed by the runtime's monotonic clock, counting
// from the moment it was created.
func System() Clock {
	return &system{start: time.Now()}
}

func (s *system) Now() float64 {
	return time.Since(s.start).Seconds()
}

// Manual is a clock that only moves when told to. Simulation and tests use it
// to produce exact, repeatable tick timing.
type Manual struct {
	mu  sync.Mutex
	now float64
}

// NewManual returns a manual clock reading start.
func NewManual(start float64) *Manual {
	return &Manual{now: start}
}

// Now returns the current manual time.
func (m *Manual) Now() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Set jumps to t.
func (m *Manual) Set(t float64) {
	m.mu.Lock()
	m.now = t
	m.mu.Unlock()
}

// Advance moves the clock forward by dt seconds and returns the new time.
func (m *Manual) Advance(dt float64) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now += dt
	return m.now
}
