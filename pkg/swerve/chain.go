package swerve

import (
	"errors"
	"fmt"

	"github.com/gwillem/rubeus/pkg/vector"
)

// Chain is an ordered fleet of modules. Every fleet operation takes a start
// index and acts on that module and the ones after it, never the ones before.
// Build it once before the first tick; it is not safe for concurrent use.
type Chain struct {
	modules []*Module
}

// NewChain links modules in order. A module may appear only once.
func NewChain(modules ...*Module) (*Chain, error) {
	if len(modules) == 0 {
		return nil, errors.New("chain needs at least one module")
	}
	seen := make(map[*Module]bool, len(modules))
	for i, m := range modules {
		if m == nil {
			return nil, fmt.Errorf("module %d is nil", i)
		}
		if seen[m] {
			return nil, fmt.Errorf("module %q linked twice", m.Name())
		}
		seen[m] = true
	}
	return &Chain{modules: append([]*Module(nil), modules...)}, nil
}

// Len returns the number of modules.
func (c *Chain) Len() int { return len(c.modules) }

// Module returns the module at index i.
func (c *Chain) Module(i int) *Module { return c.modules[i] }

// Modules returns a copy of the ordered modules.
func (c *Chain) Modules() []*Module {
	return append([]*Module(nil), c.modules...)
}

func (c *Chain) from(start int) []*Module {
	if start < 0 || start >= len(c.modules) {
		panic(fmt.Sprintf("swerve: chain index %d out of range [0, %d)", start, len(c.modules)))
	}
	return c.modules[start:]
}

// SetDirection steers every module from start toward target ticks.
func (c *Chain) SetDirection(start int, target float64) {
	for _, m := range c.from(start) {
		m.SetDirection(target)
	}
}

// SetPercent adds spd to every module's pending drive percent.
func (c *Chain) SetPercent(start int, spd float64) {
	for _, m := range c.from(start) {
		m.SetPercent(spd)
	}
}

// SetSpeed runs every drive in closed-loop speed mode.
func (c *Chain) SetSpeed(start int, target float64) {
	for _, m := range c.from(start) {
		m.SetSpeed(target)
	}
}

// SetLockTime sets the auto-lock delay on every module.
func (c *Chain) SetLockTime(start int, seconds float64) {
	for _, m := range c.from(start) {
		m.SetLockTime(seconds)
	}
}

// SetToVector commands translation and rotation to every module.
func (c *Chain) SetToVector(start int, translation, rotation vector.Vector) {
	for _, m := range c.from(start) {
		m.SetToVector(translation, rotation)
	}
}

// ApplySpeed flushes drive percents and runs auto-lock on every module.
func (c *Chain) ApplySpeed(start int) {
	for _, m := range c.from(start) {
		m.ApplySpeed()
	}
}

// Lock locks every module and reports whether all are at their lock heading.
func (c *Chain) Lock(start int) bool {
	all := true
	for _, m := range c.from(start) {
		all = m.Lock() && all
	}
	return all
}

// Orb aligns every module for rotation in place and reports whether all are there.
func (c *Chain) Orb(start int) bool {
	all := true
	for _, m := range c.from(start) {
		all = m.Orb() && all
	}
	return all
}

// Orient drives every module to its diagonal and reports ready once all of
// them are within the deadband. An angle of -1 means no request.
func (c *Chain) Orient(start int, angle float64) bool {
	if angle == -1 {
		return true
	}
	for _, m := range c.from(start) {
		m.Orient(angle)
	}
	return c.AllReadyToOrient(start)
}

// AllReadyToOrient reports whether every module from start finished Orient.
func (c *Chain) AllReadyToOrient(start int) bool {
	for _, m := range c.from(start) {
		if !m.ReadyToOrient() {
			return false
		}
	}
	return true
}

// OrientTo applies the heading hold on every module.
func (c *Chain) OrientTo(start int, current, target float64) {
	for _, m := range c.from(start) {
		m.OrientTo(current, target)
	}
}

// NoOrient clears heading-hold state on every module.
func (c *Chain) NoOrient(start int) {
	for _, m := range c.from(start) {
		m.NoOrient()
	}
}

// AverageSpeed returns the mean drive velocity of the modules from start.
func (c *Chain) AverageSpeed(start int) float64 {
	ms := c.from(start)
	total := 0.0
	for _, m := range ms {
		total += m.Speed()
	}
	return total / float64(len(ms))
}
