// Package swerve coordinates steerable drive wheels. A Module owns one wheel;
// a Chain commands an ordered run of modules as a fleet.
package swerve

import (
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/gwillem/rubeus/pkg/clock"
	"github.com/gwillem/rubeus/pkg/motor"
	"github.com/gwillem/rubeus/pkg/vector"
)

const (
	// DefaultCircumference is one revolution of the absolute encoder in ticks.
	DefaultCircumference = 4096
	// DefaultFlipThreshold is the heading change, in ticks of a 4096-tick
	// revolution, beyond which the drive is reversed instead of steering.
	DefaultFlipThreshold = 1524
	// DefaultPositionDeadband is the IsAtPosition tolerance in ticks.
	DefaultPositionDeadband = 30

	// combined vectors shorter than this count as zero
	vectorEpsilon = 1e-9

	orientDeadband      = 3 // ticks
	orientHeadingP      = -0.002
	orientHeadingI      = 0.01
	orientHeadingMargin = 3 // degrees
)

// ModuleConfig is the static setup of one wheel.
type ModuleConfig struct {
	Role          int     `json:"role" yaml:"role"`                     // 0-3, mechanical placement
	EncoderOffset float64 `json:"encoder_offset" yaml:"encoder_offset"` // ticks read when the wheel points forward
	Circumference float64 `json:"circumference" yaml:"circumference"`
	FlipThreshold float64 `json:"flip_threshold" yaml:"flip_threshold"` // 0 = scaled from DefaultFlipThreshold
	LockTime      float64 `json:"lock_time" yaml:"lock_time"`           // idle seconds before locking, negative = never

	DriveInverted     bool `json:"drive_inverted" yaml:"drive_inverted"`
	DirectionInverted bool `json:"direction_inverted" yaml:"direction_inverted"`

	Direction motor.Constants `json:"direction" yaml:"direction"`
	Speed     motor.Constants `json:"speed" yaml:"speed"`
}

// DefaultModuleConfig returns the tuned gains of the competition drive.
func DefaultModuleConfig(role int, offset float64) ModuleConfig {
	return ModuleConfig{
		Role:          role,
		EncoderOffset: offset,
		Circumference: DefaultCircumference,
		LockTime:      -1,
		Direction:     motor.Constants{P: 0.0005, MinOutput: -0.2, MaxOutput: 0.2},
		Speed:         motor.Constants{P: 0.005, D: 0.0015, MinOutput: -1, MaxOutput: 1},
	}
}

// Validate reports an unusable module setup.
func (c ModuleConfig) Validate() error {
	if c.Role < 0 || c.Role > 3 {
		return fmt.Errorf("role %d outside 0-3", c.Role)
	}
	if c.Circumference <= 0 {
		return errors.New("circumference must be positive")
	}
	if c.FlipThreshold < 0 || c.FlipThreshold > c.Circumference/2 {
		return fmt.Errorf("flip threshold %g outside [0, %g]", c.FlipThreshold, c.Circumference/2)
	}
	if err := c.Direction.Validate(); err != nil {
		return fmt.Errorf("direction gains: %w", err)
	}
	if err := c.Speed.Validate(); err != nil {
		return fmt.Errorf("speed gains: %w", err)
	}
	return nil
}

// Module drives one wheel: a drive actuator for speed and a direction
// actuator steered by a circular PID loop on an absolute encoder.
type Module struct {
	name      string
	cfg       ModuleConfig
	drive     motor.Actuator
	direction motor.Actuator
	encoder   motor.AbsoluteEncoder
	clock     clock.Clock
	logger    *zap.Logger

	directionPID *motor.PIDController
	speedPID     *motor.PIDController

	curPercent float64
	lockTime   float64
	lockStart  float64 // -1 = not idle
	locked     bool

	readyToOrient bool

	headingIntegral float64
	headingLast     float64 // -1 = heading hold idle
}

// NewModule builds a module. It panics on an invalid config.
func NewModule(name string, cfg ModuleConfig, drive, direction motor.Actuator, encoder motor.AbsoluteEncoder, clk clock.Clock, logger *zap.Logger) *Module {
	if cfg.Circumference == 0 {
		cfg.Circumference = DefaultCircumference
	}
	if err := cfg.Validate(); err != nil {
		panic("swerve module " + name + ": " + err.Error())
	}
	if cfg.FlipThreshold == 0 {
		cfg.FlipThreshold = cfg.Circumference * DefaultFlipThreshold / DefaultCircumference
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &Module{
		name:        name,
		cfg:         cfg,
		drive:       drive,
		direction:   direction,
		encoder:     encoder,
		clock:       clk,
		logger:      logger.With(zap.String("module", name), zap.Int("role", cfg.Role)),
		lockTime:    cfg.LockTime,
		lockStart:   -1,
		headingLast: -1,
	}
	m.directionPID = motor.NewPIDController(direction, clk, cfg.Direction, motor.WithCircumference(cfg.Circumference))
	m.speedPID = motor.NewPIDController(drive, clk, cfg.Speed)

	drive.SetInverted(cfg.DriveInverted)
	direction.SetInverted(cfg.DirectionInverted)
	return m
}

// Name returns the module label.
func (m *Module) Name() string { return m.name }

// Role returns the mechanical placement index.
func (m *Module) Role() int { return m.cfg.Role }

// Locked reports whether auto-lock currently holds the heading.
func (m *Module) Locked() bool { return m.locked }

// PendingPercent returns the drive percent accumulated for the next ApplySpeed.
func (m *Module) PendingPercent() float64 { return m.curPercent }

// DirectionSetpoint returns the heading the direction loop is chasing.
func (m *Module) DirectionSetpoint() float64 { return m.directionPID.Setpoint() }

// ticks converts degrees to encoder ticks.
func (m *Module) ticks(degrees float64) float64 {
	return degrees * m.cfg.Circumference / 360
}

// Direction returns the physical heading of the wheel in ticks. While the
// drive runs inverted the wheel points the opposite way.
func (m *Module) Direction() float64 {
	raw := m.encoder.GetAbsolutePosition() - m.cfg.EncoderOffset
	if m.drive.Inverted() {
		raw += m.cfg.Circumference / 2
	}
	return motor.SmartLoop(raw, m.cfg.Circumference)
}

// SetDirection steers toward target ticks. Ignored while locked.
func (m *Module) SetDirection(target float64) {
	m.setDirection(target, false)
}

func (m *Module) setDirection(target float64, ignoreLock bool) {
	if m.locked && !ignoreLock {
		return
	}
	if math.Abs(motor.Loopize(target, m.Direction(), m.cfg.Circumference)) > m.cfg.FlipThreshold {
		// reverse the wheel rather than turning past a quarter revolution
		motor.ToggleInverted(m.drive)
	}
	m.directionPID.SetPosition(target)
	m.directionPID.UpdateWith(m.Direction())
}

// SetPercent adds spd to the drive percent applied by the next ApplySpeed.
func (m *Module) SetPercent(spd float64) {
	m.curPercent += spd
}

// SetSpeed runs the drive in closed-loop speed mode.
func (m *Module) SetSpeed(target float64) {
	m.speedPID.SetSpeed(target)
	m.speedPID.Update()
}

// Speed returns the drive velocity in ticks per second.
func (m *Module) Speed() float64 {
	return m.drive.GetVelocity()
}

// SetLockTime sets the idle seconds before auto-lock; negative disables it.
func (m *Module) SetLockTime(seconds float64) {
	m.lockTime = seconds
}

// ApplySpeed sends the accumulated drive percent and runs the auto-lock timer.
// Call it every tick, whatever else happened.
func (m *Module) ApplySpeed() {
	wasLocked := m.locked
	m.locked = false
	m.drive.SetPercent(m.curPercent)

	if m.lockTime >= 0 {
		if m.curPercent == 0 {
			now := m.clock.Now()
			if m.lockStart < 0 {
				m.lockStart = now
			}
			if now-m.lockStart > m.lockTime {
				m.Lock()
				m.locked = true
			}
		} else {
			m.lockStart = -1
		}
	}

	if m.locked != wasLocked {
		m.logger.Debug("lock changed", zap.Bool("locked", m.locked))
	}
	// drive percent is not sticky
	m.curPercent = 0
}

// SetToVector applies swerve inverse kinematics: the rotation vector is turned
// by the module's phase and added to the translation.
func (m *Module) SetToVector(translation, rotation vector.Vector) {
	combined := translation.Add(rotation.Rotate(math.Pi / 2 * float64(m.cfg.Role)))
	if combined.Magnitude() < vectorEpsilon {
		if !m.locked {
			m.direction.SetPercent(0)
		}
		return
	}
	heading := motor.SmartLoop(combined.Angle()*m.cfg.Circumference/(2*math.Pi), m.cfg.Circumference)
	m.setDirection(heading, false)
	m.SetPercent(combined.Magnitude())
}

// LockHeading returns the diagonal heading used by Lock, in ticks.
func (m *Module) LockHeading() float64 {
	return motor.SmartLoop(m.ticks(float64(m.cfg.Role)*90+135), m.cfg.Circumference)
}

// OrbHeading returns the heading used by Orb, in ticks.
func (m *Module) OrbHeading() float64 {
	return motor.SmartLoop(m.ticks(float64(m.cfg.Role)*90+45), m.cfg.Circumference)
}

// Lock points the wheel at its diagonal lock heading, even while locked, and
// reports whether it is there.
func (m *Module) Lock() bool {
	heading := m.LockHeading()
	m.setDirection(heading, true)
	return m.IsAtPosition(heading, DefaultPositionDeadband)
}

// Orb points the wheel tangentially so the base can only rotate in place and
// reports whether it is there.
func (m *Module) Orb() bool {
	heading := m.OrbHeading()
	m.SetDirection(heading)
	return m.IsAtPosition(heading, DefaultPositionDeadband)
}

// Orient steers to one of two diagonals chosen by role and records whether
// this wheel is there. An angle of -1 means no orientation is requested.
func (m *Module) Orient(angle float64) bool {
	if angle == -1 {
		return true
	}
	target := m.ticks(315)
	if m.cfg.Role == 1 || m.cfg.Role == 3 {
		target = m.ticks(45)
	}
	m.SetDirection(target)
	m.readyToOrient = m.IsAtPosition(target, orientDeadband)
	return m.readyToOrient
}

// ReadyToOrient reports the result of the last Orient.
func (m *Module) ReadyToOrient() bool { return m.readyToOrient }

// OrientTo adds a drive percent that turns the base from current toward target
// heading, both in degrees. A target of -1 resets the hold.
func (m *Module) OrientTo(current, target float64) {
	now := m.clock.Now()
	if target == -1 {
		m.headingIntegral = 0
		m.headingLast = now
		return
	}
	if m.headingLast < 0 {
		m.headingLast = now
	}
	elapsed := now - m.headingLast
	m.headingLast = now

	err := motor.Loopize(motor.SmartLoop(target, 360), motor.SmartLoop(current, 360), 360)
	m.SetPercent(err*orientHeadingP + m.headingIntegral)

	switch {
	case err < -orientHeadingMargin:
		if m.headingIntegral > 0 {
			m.headingIntegral = 0
		}
		m.headingIntegral += orientHeadingI * elapsed
	case err > orientHeadingMargin:
		if m.headingIntegral < 0 {
			m.headingIntegral = 0
		}
		m.headingIntegral -= orientHeadingI * elapsed
	default:
		m.headingIntegral = 0
	}
}

// NoOrient clears the heading-hold state.
func (m *Module) NoOrient() {
	m.headingIntegral = 0
	m.headingLast = -1
}

// IsAtPosition reports whether the wheel heading is within deadband ticks of
// position, around the circle.
func (m *Module) IsAtPosition(position, deadband float64) bool {
	return math.Abs(motor.Loopize(position, m.Direction(), m.cfg.Circumference)) < deadband
}
