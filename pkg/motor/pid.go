package motor

import (
	"errors"
	"fmt"
	"math"

	"github.com/gwillem/rubeus/pkg/clock"
)

// DefaultFrequency is the nominal PID update rate in Hz.
const DefaultFrequency = 50

// Mode is the setpoint type of a PIDController.
type Mode int

const (
	Disabled Mode = iota
	Position
	Speed
)

func (m Mode) String() string {
	switch m {
	case Disabled:
		return "disabled"
	case Position:
		return "position"
	case Speed:
		return "speed"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Constants are the PIDF gains and output bounds.
type Constants struct {
	P         float64 `json:"p" yaml:"p"`
	I         float64 `json:"i" yaml:"i"`
	D         float64 `json:"d" yaml:"d"`
	F         float64 `json:"f" yaml:"f"`
	IZone     float64 `json:"i_zone" yaml:"i_zone"`
	MinOutput float64 `json:"min_output" yaml:"min_output"`
	MaxOutput float64 `json:"max_output" yaml:"max_output"`
}

// DefaultConstants returns zero gains and a [-1, 1] output range.
func DefaultConstants() Constants {
	return Constants{MinOutput: -1, MaxOutput: 1}
}

// Validate reports malformed gains or bounds.
func (c Constants) Validate() error {
	if c.MinOutput > c.MaxOutput {
		return fmt.Errorf("min output %g exceeds max output %g", c.MinOutput, c.MaxOutput)
	}
	if c.IZone < 0 {
		return errors.New("i zone must not be negative")
	}
	for _, v := range []float64{c.P, c.I, c.D, c.F, c.IZone, c.MinOutput, c.MaxOutput} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.New("constants must be finite")
		}
	}
	return nil
}

func (c Constants) clamp(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	if v > c.MaxOutput {
		return c.MaxOutput
	}
	if v < c.MinOutput {
		return c.MinOutput
	}
	return v
}

// PIDController closes a loop around a Controllable. Accumulating terms are
// scaled by the time elapsed since the previous update relative to the
// nominal period, so irregular call rates converge the same way.
//
// The derivative term is not scaled, which makes its magnitude depend on the
// real call rate.
type PIDController struct {
	target    Controllable
	clock     clock.Clock
	hz        float64
	constants Constants

	mode          Mode
	setpoint      float64
	integral      float64
	previousError float64
	speedAccum    float64
	circumference float64 // -1 = linear

	measurement float64
	lastError   float64
	lastOutput  float64
	lastUpdate  float64
	started     bool
}

// PIDOption configures a PIDController at construction.
type PIDOption func(*PIDController)

// WithFrequency sets the nominal update rate in Hz.
func WithFrequency(hz float64) PIDOption {
	return func(p *PIDController) {
		p.hz = hz
	}
}

// WithCircumference enables wraparound error with the given revolution length.
func WithCircumference(c float64) PIDOption {
	return func(p *PIDController) {
		p.SetCircumference(c)
	}
}

// NewPIDController returns a disabled controller for target. It panics when
// constants are invalid: bad static gains are a programming error.
func NewPIDController(target Controllable, clk clock.Clock, constants Constants, opts ...PIDOption) *PIDController {
	p := &PIDController{
		target:        target,
		clock:         clk,
		hz:            DefaultFrequency,
		circumference: -1,
	}
	p.SetConstants(constants)
	for _, opt := range opts {
		opt(p)
	}
	if p.hz <= 0 {
		panic(fmt.Sprintf("pid: frequency must be positive, got %g", p.hz))
	}
	return p
}

// SetConstants replaces the gains. It panics when they are invalid.
func (p *PIDController) SetConstants(c Constants) {
	if err := c.Validate(); err != nil {
		panic("pid: " + err.Error())
	}
	p.constants = c
}

// Constants returns the current gains.
func (p *PIDController) Constants() Constants {
	return p.constants
}

// SetCircumference turns on wraparound with revolution length c ticks.
func (p *PIDController) SetCircumference(c float64) {
	if c <= 0 {
		panic(fmt.Sprintf("pid: circumference must be positive, got %g", c))
	}
	p.circumference = c
}

// Circumference returns the revolution length, or -1 for linear error.
func (p *PIDController) Circumference() float64 {
	return p.circumference
}

// SetPosition switches to position mode with setpoint pos.
func (p *PIDController) SetPosition(pos float64) {
	p.setpoint = pos
	p.mode = Position
}

// SetSpeed switches to speed mode with setpoint speed.
func (p *PIDController) SetSpeed(speed float64) {
	p.setpoint = speed
	p.mode = Speed
}

// Stop disables the controller and clears the accumulators.
func (p *PIDController) Stop() {
	p.mode = Disabled
	p.integral = 0
	p.speedAccum = 0
	p.started = false
}

// Mode returns the current setpoint type.
func (p *PIDController) Mode() Mode { return p.mode }

// Setpoint returns the current target.
func (p *PIDController) Setpoint() float64 { return p.setpoint }

// Measurement returns the value passed to the last update.
func (p *PIDController) Measurement() float64 { return p.measurement }

// LastError returns the error computed by the last update.
func (p *PIDController) LastError() float64 { return p.lastError }

// LastOutput returns the command delivered by the last update.
func (p *PIDController) LastOutput() float64 { return p.lastOutput }

// Error returns the error between set and cur, taking the shorter arc when a
// circumference is configured.
func (p *PIDController) Error(set, cur float64) float64 {
	if p.circumference < 0 {
		return set - cur
	}
	return Loopize(set, cur, p.circumference)
}

// Update reads the target's own encoder (position or velocity depending on
// mode) and runs one control step.
func (p *PIDController) Update() {
	switch p.mode {
	case Position:
		p.UpdateWith(p.target.GetPosition())
	case Speed:
		p.UpdateWith(p.target.GetVelocity())
	}
}

// UpdateWith runs one control step against an externally measured value and
// sends the clamped command to the target. It does nothing while disabled.
func (p *PIDController) UpdateWith(measurement float64) {
	if p.mode == Disabled {
		return
	}
	p.measurement = measurement

	now := p.clock.Now()
	fe := 1.0 // first step after construction or Stop counts as one nominal tick
	if p.started {
		fe = math.Max(0, (now-p.lastUpdate)*p.hz)
	}

	out := p.constants.clamp(p.step(fe))
	if p.mode == Speed {
		p.speedAccum += out * fe
		out = p.constants.clamp(p.speedAccum)
	}

	p.lastOutput = out
	p.target.SetPercent(out)
	p.lastUpdate = now
	p.started = true
}

func (p *PIDController) step(fe float64) float64 {
	c := p.constants
	err := p.Error(p.setpoint, p.measurement)
	p.lastError = err

	pTerm := err * c.P

	if c.IZone == 0 || math.Abs(err) <= c.IZone {
		p.integral += err * c.I * fe
	} else {
		p.integral = 0
	}

	dTerm := (err - p.previousError) * c.D
	p.previousError = err

	fTerm := p.setpoint * c.F

	return pTerm + p.integral + dTerm + fTerm
}

// IsAtTarget reports whether the last measurement lies within margin of the
// setpoint. Wraparound is not considered.
func (p *PIDController) IsAtTarget(margin float64) bool {
	return p.measurement >= p.setpoint-margin && p.measurement <= p.setpoint+margin
}
