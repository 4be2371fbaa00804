package robot

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/gwillem/rubeus/pkg/arm"
	"github.com/gwillem/rubeus/pkg/clock"
	"github.com/gwillem/rubeus/pkg/odometry"
	"github.com/gwillem/rubeus/pkg/swerve"
	"github.com/gwillem/rubeus/pkg/telemetry"
	"github.com/gwillem/rubeus/pkg/vector"
)

// ArmPreset picks the arm goal for a tick.
type ArmPreset int

const (
	PresetKeep ArmPreset = iota // leave the goal alone
	PresetHome
	PresetPickup
	PresetLowPole
	PresetHighPole
	PresetCustom // Input.ArmGoal
)

// Input is what the operator asks for during one tick. Zero, Retract and
// ZeroHeading are requests: send them for one tick.
type Input struct {
	Translation vector.Vector // x right, y forward, length up to 1
	Rotation    float64       // [-1, 1], positive turns clockwise
	SpeedLimit  float64       // (0, 1], zero means full speed
	Lock        bool
	Orb         bool
	ZeroHeading bool

	ArmPreset       ArmPreset
	ArmGoal         vector.Vector // centimeters, with PresetCustom
	Retract         bool
	Zero            bool
	Grab            arm.GrabMode
	ArmManual       bool // drive the joints open-loop and leave the wheels idle
	ShoulderPercent float64
	ElbowPercent    float64
}

// WheelState is the readback of one swerve module.
type WheelState struct {
	Name      string
	Direction float64 // ticks
	Setpoint  float64 // ticks
	Percent   float64
	Locked    bool
}

// State is the outcome of one tick.
type State struct {
	Time     float64
	Heading  float64 // degrees, clockwise from the zeroed heading
	Estimate odometry.Estimate
	Nearest  odometry.Marker
	Wheels   []WheelState

	ArmGoal       vector.Vector
	ArmPosition   vector.Vector
	ArmZeroed     bool
	ArmAtGoal     bool
	ArmEndangered bool
	HasPiece      bool

	// Halted is set when stale readings kept every actuator at zero.
	Halted bool
}

// Robot composes the swerve chain, the arm and odometry. Tick it at the
// configured rate from a single goroutine.
type Robot struct {
	cfg       *Config
	hw        Hardware
	clock     clock.Clock
	telemetry telemetry.Sink
	logger    *zap.Logger

	chain    *swerve.Chain
	arm      *arm.Arm
	odometry *odometry.Estimator

	headingOffset float64
	lastPercent   []float64
	halted        bool
}

// New validates cfg and hw and builds the robot.
func New(cfg *Config, hw Hardware, clk clock.Clock, sink telemetry.Sink, logger *zap.Logger) (*Robot, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := hw.Validate(len(cfg.Drive.Wheels)); err != nil {
		return nil, fmt.Errorf("hardware: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	markers, err := cfg.Markers()
	if err != nil {
		return nil, err
	}

	var modules []*swerve.Module
	for i, w := range cfg.Drive.Wheels {
		wh := hw.Wheels[i]
		modules = append(modules, swerve.NewModule(w.Name, w.ModuleConfig, wh.Drive, wh.Steer, wh.Encoder, clk, logger))
	}
	chain, err := swerve.NewChain(modules...)
	if err != nil {
		return nil, fmt.Errorf("chain: %w", err)
	}
	chain.SetLockTime(0, cfg.Drive.LockTime)

	r := &Robot{
		cfg:         cfg,
		hw:          hw,
		clock:       clk,
		telemetry:   telemetry.OrNop(sink),
		logger:      logger,
		chain:       chain,
		arm:         arm.New(cfg.Arm, hw.Arm, clk, logger),
		odometry:    odometry.NewEstimator(markers, hw.Vision, hw.IMU, logger),
		lastPercent: make([]float64, len(modules)),
	}
	r.ZeroHeading()
	logger.Info("robot ready", zap.Int("wheels", chain.Len()), zap.String("field", cfg.Field))
	return r, nil
}

// Chain returns the swerve fleet.
func (r *Robot) Chain() *swerve.Chain { return r.chain }

// Arm returns the arm controller.
func (r *Robot) Arm() *arm.Arm { return r.arm }

// Odometry returns the position estimator.
func (r *Robot) Odometry() *odometry.Estimator { return r.odometry }

// ZeroHeading makes the current inertial heading the field's zero.
func (r *Robot) ZeroHeading() {
	r.headingOffset = r.hw.IMU.FusedHeading()
}

// Heading returns the heading relative to the last ZeroHeading in degrees.
func (r *Robot) Heading() float64 {
	return r.hw.IMU.FusedHeading() - r.headingOffset
}

// Tick runs one control period and returns what happened.
func (r *Robot) Tick(ctx context.Context, in Input) State {
	if r.hw.Refresh != nil {
		if err := r.hw.Refresh(ctx); err != nil {
			return r.halt(err)
		}
		if r.halted {
			r.halted = false
			r.logger.Info("hardware recovered, resuming control")
		}
	}

	est := r.odometry.Update()
	if in.ZeroHeading {
		r.ZeroHeading()
	}
	heading := r.Heading()

	r.commandArm(in)
	if in.ArmManual {
		r.arm.AuxSetPercent(in.ShoulderPercent, in.ElbowPercent)
	} else {
		r.drive(in, heading)
		r.arm.Update()
	}

	for i, m := range r.chain.Modules() {
		r.lastPercent[i] = m.PendingPercent()
	}
	// runs every tick: it applies the drive and keeps the lock timer going
	r.chain.ApplySpeed(0)

	st := r.state(est, heading)
	r.publish(st, in)
	return st
}

// halt zeroes every actuator and skips the closed loops for a tick whose
// readings cannot be trusted.
func (r *Robot) halt(err error) State {
	if !r.halted {
		r.halted = true
		r.logger.Warn("stale hardware readings, holding actuators", zap.Error(err))
	}
	r.zeroActuators()
	clear(r.lastPercent)

	est := r.odometry.Update()
	st := r.state(est, r.Heading())
	st.Halted = true
	r.publish(st, Input{})
	return st
}

// Stop sets every actuator to zero output.
func (r *Robot) Stop() {
	r.zeroActuators()
	r.logger.Info("robot stopped")
}

func (r *Robot) zeroActuators() {
	for _, w := range r.hw.Wheels {
		w.Drive.SetPercent(0)
		w.Steer.SetPercent(0)
	}
	r.hw.Arm.Shoulder.SetPercent(0)
	r.hw.Arm.Elbow.SetPercent(0)
	r.hw.Arm.Hand.SetPercent(0)
}

func (r *Robot) commandArm(in Input) {
	if in.Zero {
		r.arm.Zero()
	}
	if in.Retract {
		r.arm.SetRetract(true)
	}
	// the grab latch is only cleared by a closed-loop arm update
	if in.Grab != arm.GrabOff && !in.ArmManual {
		r.arm.SetGrab(in.Grab)
	}
	switch in.ArmPreset {
	case PresetHome:
		r.arm.GoToHome()
	case PresetPickup:
		r.arm.GoToPickup()
	case PresetLowPole:
		r.arm.GoToLowPole()
	case PresetHighPole:
		r.arm.GoToHighPole()
	case PresetCustom:
		r.arm.GoTo(in.ArmGoal)
	}
}

func (r *Robot) drive(in Input, heading float64) {
	limit := in.SpeedLimit
	if limit <= 0 || limit > 1 {
		limit = 1
	}

	translation := in.Translation
	translation.Dead(r.cfg.Drive.TranslationDeadband)
	translation.SpeedLimit(limit)
	if r.cfg.Drive.FieldOriented {
		translation = translation.Rotate(heading * math.Pi / 180)
	}

	rotation := vector.Polar(in.Rotation, math.Pi/4)
	rotation.Dead(r.cfg.Drive.RotationDeadband)
	rotation.SpeedLimit(limit)

	switch {
	case in.Lock:
		r.chain.Lock(0)
	case in.Orb:
		r.chain.Orb(0)
		r.chain.SetPercent(0, -math.Copysign(rotation.Magnitude(), in.Rotation))
	default:
		// clockwise input turns the wheels against the counter-clockwise tangent
		r.chain.SetToVector(0, translation, rotation.Neg())
	}
}

func (r *Robot) state(est odometry.Estimate, heading float64) State {
	st := State{
		Time:          r.clock.Now(),
		Heading:       heading,
		Estimate:      est,
		Nearest:       r.odometry.Nearest(),
		ArmGoal:       r.arm.Goal(),
		ArmPosition:   r.arm.Position(),
		ArmZeroed:     r.arm.Zeroed(),
		ArmAtGoal:     r.arm.AtGoal(),
		ArmEndangered: r.arm.Endangered(),
		HasPiece:      r.arm.Has(),
	}
	for i, m := range r.chain.Modules() {
		st.Wheels = append(st.Wheels, WheelState{
			Name:      m.Name(),
			Direction: m.Direction(),
			Setpoint:  m.DirectionSetpoint(),
			Percent:   r.lastPercent[i],
			Locked:    m.Locked(),
		})
	}
	return st
}

func (r *Robot) publish(st State, in Input) {
	t := r.telemetry
	t.PutNumber("Odometry X", st.Estimate.Position.X)
	t.PutNumber("Odometry Y", st.Estimate.Position.Y)
	t.PutNumber("Odometry Quality", float64(st.Estimate.Quality))
	t.PutNumber("Odometry nearest angle", st.Nearest.Orientation*180/math.Pi)
	t.PutNumber("Heading", st.Heading)
	t.PutNumber("Speed limit", in.SpeedLimit)

	for _, w := range st.Wheels {
		t.PutNumber(w.Name+" direction", w.Direction)
		t.PutBoolean(w.Name+" locked", w.Locked)
	}

	t.PutNumber("Head Goal X", st.ArmGoal.X)
	t.PutNumber("Head Goal Y", st.ArmGoal.Y)
	t.PutNumber("Head X", st.ArmPosition.X)
	t.PutNumber("Head Y", st.ArmPosition.Y)
	sh, el := r.arm.GoalTicks()
	t.PutNumber("Shoulder goal", sh)
	t.PutNumber("Elbow goal", el)
	t.PutBoolean("Arm zeroed", st.ArmZeroed)
	t.PutBoolean("Arm at goal", st.ArmAtGoal)
	t.PutBoolean("Arm danger", st.ArmEndangered)
	t.PutBoolean("Has piece", st.HasPiece)
	t.PutBoolean("Halted", st.Halted)
}
