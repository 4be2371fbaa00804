// Package motor holds the actuator capabilities consumed by the control core,
// the frequency-independent PID controller and the overcurrent watcher.
//
// Concrete hardware adapters live in pkg/robot; everything here talks to them
// only through the small interfaces below.
package motor

// PercentOutput accepts a duty command in [-1, 1].
type PercentOutput interface {
	SetPercent(percent float64)
}

// Controllable is what a PIDController drives: an output plus the encoder
// readings it closes the loop on.
type Controllable interface {
	PercentOutput
	// GetPosition returns the encoder position in ticks.
	GetPosition() float64
	// GetVelocity returns the encoder velocity in ticks per second.
	GetVelocity() float64
}

// CurrentSensor reports the current draw in amps.
type CurrentSensor interface {
	GetCurrent() float64
}

// Actuator is a full motor controller.
type Actuator interface {
	Controllable
	CurrentSensor
	SetInverted(inverted bool)
	Inverted() bool
}

// AbsoluteEncoder reports a position in [0, circumference) ticks that
// survives power cycles.
type AbsoluteEncoder interface {
	GetAbsolutePosition() float64
}

// LimitSwitch reports whether the switch is triggered. Adapters resolve
// normally-open versus normally-closed wiring before it gets here.
type LimitSwitch interface {
	Get() bool
}

// ToggleInverted flips the inversion state of a.
func ToggleInverted(a Actuator) {
	a.SetInverted(!a.Inverted())
}
