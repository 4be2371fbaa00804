package arm

import (
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/gwillem/rubeus/pkg/clock"
	"github.com/gwillem/rubeus/pkg/motor"
	"github.com/gwillem/rubeus/pkg/vector"
)

// Circumference is one revolution of the joint encoders in ticks.
const Circumference = 4096

// Preset hand positions in centimeters.
var (
	Home     = vector.New(35, 0)
	Pickup   = vector.New(100, 0)
	LowPole  = vector.New(130, 76.36)
	HighPole = vector.New(130, 106.84)
)

// GrabMode selects what the hand does this tick.
type GrabMode int

const (
	GrabOff GrabMode = iota
	GrabIntake
	GrabBarf
)

func (m GrabMode) String() string {
	switch m {
	case GrabOff:
		return "off"
	case GrabIntake:
		return "intake"
	case GrabBarf:
		return "barf"
	default:
		return fmt.Sprintf("GrabMode(%d)", int(m))
	}
}

// Config is the static setup of the arm.
type Config struct {
	Geometry Geometry `json:"geometry" yaml:"geometry"`

	Shoulder        motor.Constants     `json:"shoulder" yaml:"shoulder"`
	Elbow           motor.Constants     `json:"elbow" yaml:"elbow"`
	ShoulderWatcher motor.WatcherConfig `json:"shoulder_watcher" yaml:"shoulder_watcher"`
	ElbowWatcher    motor.WatcherConfig `json:"elbow_watcher" yaml:"elbow_watcher"`

	ZeroShoulderPercent float64 `json:"zero_shoulder_percent" yaml:"zero_shoulder_percent"`
	ZeroElbowPercent    float64 `json:"zero_elbow_percent" yaml:"zero_elbow_percent"`
	ZeroDebounce        float64 `json:"zero_debounce" yaml:"zero_debounce"` // seconds a switch must stay pressed

	HandPercent   float64 `json:"hand_percent" yaml:"hand_percent"`
	GoalTolerance float64 `json:"goal_tolerance" yaml:"goal_tolerance"` // ticks
}

// DefaultConfig returns the tuned competition arm.
func DefaultConfig() Config {
	return Config{
		Geometry:            DefaultGeometry(),
		Shoulder:            motor.Constants{P: 0.0025, MinOutput: -0.15, MaxOutput: 0.15},
		Elbow:               motor.Constants{P: 0.005, MinOutput: -0.25, MaxOutput: 0.25},
		ShoulderWatcher:     motor.WatcherConfig{DangerCurrent: 35, DangerSeconds: 2, Cooldown: 1},
		ElbowWatcher:        motor.WatcherConfig{DangerCurrent: 3, DangerSeconds: 2, Cooldown: 1},
		ZeroShoulderPercent: 0.2,
		ZeroElbowPercent:    0.1,
		ZeroDebounce:        0.1,
		HandPercent:         0.35,
		GoalTolerance:       15,
	}
}

// Validate checks every static invariant of the arm.
func (c Config) Validate() error {
	if err := c.Geometry.Validate(); err != nil {
		return fmt.Errorf("geometry: %w", err)
	}
	for name, k := range map[string]motor.Constants{"shoulder": c.Shoulder, "elbow": c.Elbow} {
		if err := k.Validate(); err != nil {
			return fmt.Errorf("%s gains: %w", name, err)
		}
	}
	if err := c.ShoulderWatcher.Validate(); err != nil {
		return fmt.Errorf("shoulder watcher: %w", err)
	}
	if err := c.ElbowWatcher.Validate(); err != nil {
		return fmt.Errorf("elbow watcher: %w", err)
	}
	if c.ZeroDebounce < 0 || c.GoalTolerance <= 0 {
		return errors.New("zero debounce must not be negative and goal tolerance must be positive")
	}
	return nil
}

// Hardware is what the arm drives and reads. Limit switches report true at the
// limit; GamePiece may be nil.
type Hardware struct {
	Shoulder, Elbow, Hand motor.Actuator

	ShoulderEncoder, ElbowEncoder motor.AbsoluteEncoder
	ShoulderLimit, ElbowLimit     motor.LimitSwitch
	GamePiece                     motor.LimitSwitch
}

// joint tracks the zeroing of one joint.
type joint struct {
	name        string
	encoder     motor.AbsoluteEncoder
	limit       motor.LimitSwitch
	zeroTicks   float64
	zeroed      bool
	pressedFrom float64 // -1 = switch released
}

func (j *joint) reset() {
	j.zeroed = false
	j.pressedFrom = -1
}

// Arm controls the shoulder, elbow and hand. Call Update once per tick.
type Arm struct {
	cfg    Config
	hw     Hardware
	clock  clock.Clock
	logger *zap.Logger

	shoulderPID     *motor.PIDController
	elbowPID        *motor.PIDController
	shoulderWatcher *motor.CurrentWatcher
	elbowWatcher    *motor.CurrentWatcher

	shoulder joint
	elbow    joint

	goal      vector.Vector
	zeroed    bool
	retract   bool
	grab      GrabMode
	solution  Solution
	goalTicks [2]float64 // shoulder, elbow
	hasTicks  bool
}

// New builds an unzeroed arm aiming at Home. It panics on an invalid config.
func New(cfg Config, hw Hardware, clk clock.Clock, logger *zap.Logger) *Arm {
	if err := cfg.Validate(); err != nil {
		panic("arm: " + err.Error())
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "arm"))
	return &Arm{
		cfg:             cfg,
		hw:              hw,
		clock:           clk,
		logger:          logger,
		shoulderPID:     motor.NewPIDController(hw.Shoulder, clk, cfg.Shoulder, motor.WithCircumference(Circumference)),
		elbowPID:        motor.NewPIDController(hw.Elbow, clk, cfg.Elbow, motor.WithCircumference(Circumference)),
		shoulderWatcher: motor.NewCurrentWatcher("shoulder", hw.Shoulder, clk, cfg.ShoulderWatcher, logger),
		elbowWatcher:    motor.NewCurrentWatcher("elbow", hw.Elbow, clk, cfg.ElbowWatcher, logger),
		shoulder:        joint{name: "shoulder", encoder: hw.ShoulderEncoder, limit: hw.ShoulderLimit, pressedFrom: -1},
		elbow:           joint{name: "elbow", encoder: hw.ElbowEncoder, limit: hw.ElbowLimit, pressedFrom: -1},
		goal:            Home,
	}
}

// GoTo sets the hand goal.
func (a *Arm) GoTo(goal vector.Vector) { a.goal = goal }

// Goal returns the hand goal.
func (a *Arm) Goal() vector.Vector { return a.goal }

func (a *Arm) GoToHome() { a.GoTo(Home) }
func (a *Arm) GoToPickup() { a.GoTo(Pickup) }
func (a *Arm) GoToLowPole() { a.GoTo(LowPole) }
func (a *Arm) GoToHighPole() { a.GoTo(HighPole) }

// SetRetract overrides the goal with Home until the arm gets there.
func (a *Arm) SetRetract(retract bool) { a.retract = retract }

// Retracting reports whether the retract override is active.
func (a *Arm) Retracting() bool { return a.retract }

// SetGrab sets the hand mode for the current tick only.
func (a *Arm) SetGrab(mode GrabMode) { a.grab = mode }

// Grab returns the pending hand mode.
func (a *Arm) Grab() GrabMode { return a.grab }

// Zero restarts the zeroing sequence.
func (a *Arm) Zero() {
	a.zeroed = false
	a.shoulder.reset()
	a.elbow.reset()
	a.shoulderPID.Stop()
	a.elbowPID.Stop()
	a.hasTicks = false
	a.logger.Info("zeroing requested")
}

// Zeroed reports whether both joints have found their references.
func (a *Arm) Zeroed() bool { return a.zeroed }

// Has reports whether a game piece sits in the hand.
func (a *Arm) Has() bool {
	return a.hw.GamePiece != nil && a.hw.GamePiece.Get()
}

// Endangered reports whether either joint watcher has tripped.
func (a *Arm) Endangered() bool {
	return a.shoulderWatcher.Endangered() || a.elbowWatcher.Endangered()
}

// Solution returns the inverse-kinematics result of the last operating tick.
func (a *Arm) Solution() Solution { return a.solution }

// GoalTicks returns the shoulder and elbow encoder setpoints of the last
// operating tick.
func (a *Arm) GoalTicks() (shoulder, elbow float64) {
	return a.goalTicks[0], a.goalTicks[1]
}

func (a *Arm) degreesPerTick() float64 { return 360.0 / Circumference }

// ShoulderAngle returns the upper link angle in degrees from the ground.
func (a *Arm) ShoulderAngle() float64 {
	norm := motor.SmartLoop(a.shoulder.zeroTicks-a.shoulder.encoder.GetAbsolutePosition(), Circumference)
	return loop360(a.cfg.Geometry.ShoulderDefaultAngle - norm*a.degreesPerTick())
}

// ElbowAngle returns the forearm angle in degrees from the ground.
func (a *Arm) ElbowAngle() float64 {
	g := a.cfg.Geometry
	norm := motor.SmartLoop(a.elbow.zeroTicks-a.elbow.encoder.GetAbsolutePosition(), Circumference)
	return loop360(g.ElbowDefaultAngle + g.ElbowOffset + norm*a.degreesPerTick() - (90 - a.ShoulderAngle()))
}

// Position returns the hand position measured from the encoders.
func (a *Arm) Position() vector.Vector {
	return Forward(a.ShoulderAngle(), a.ElbowAngle(), a.cfg.Geometry)
}

// ShoulderTicks converts a shoulder angle to its encoder setpoint.
func (a *Arm) ShoulderTicks(angle float64) float64 {
	return motor.SmartLoop((angle-a.cfg.Geometry.ShoulderDefaultAngle)/a.degreesPerTick()+a.shoulder.zeroTicks, Circumference)
}

// ElbowTicks converts an elbow command angle to its encoder setpoint given
// the shoulder angle it will be paired with.
func (a *Arm) ElbowTicks(angle, shoulder float64) float64 {
	g := a.cfg.Geometry
	return motor.SmartLoop(a.elbow.zeroTicks-(angle-g.ElbowDefaultAngle+(90-shoulder))/a.degreesPerTick(), Circumference)
}

// AtGoal reports whether both joints are within the goal tolerance of the
// setpoints computed on the last operating tick.
func (a *Arm) AtGoal() bool {
	if !a.hasTicks {
		return false
	}
	tol := a.cfg.GoalTolerance
	s := math.Abs(motor.Loopize(a.goalTicks[0], a.shoulder.encoder.GetAbsolutePosition(), Circumference))
	e := math.Abs(motor.Loopize(a.goalTicks[1], a.elbow.encoder.GetAbsolutePosition(), Circumference))
	return s < tol && e < tol
}

// ShoulderAtLimit reports whether the shoulder may not move further up.
func (a *Arm) ShoulderAtLimit() bool {
	return a.hw.ShoulderLimit.Get() || a.shoulderWatcher.Endangered()
}

// ElbowAtLimit reports whether the elbow may not move further up.
func (a *Arm) ElbowAtLimit() bool {
	return a.hw.ElbowLimit.Get() || a.elbowWatcher.Endangered()
}

// AuxSetPercent drives the joints open-loop. Positive commands stop at the
// limit switches and a tripped watcher zeroes its joint.
func (a *Arm) AuxSetPercent(shoulder, elbow float64) {
	a.shoulderWatcher.Update()
	a.elbowWatcher.Update()
	a.setJoints(shoulder, elbow)
}

func (a *Arm) setJoints(shoulder, elbow float64) {
	if (a.ShoulderAtLimit() && shoulder > 0) || a.shoulderWatcher.Endangered() {
		shoulder = 0
	}
	if (a.ElbowAtLimit() && elbow > 0) || a.elbowWatcher.Endangered() {
		elbow = 0
	}
	a.hw.Shoulder.SetPercent(shoulder)
	a.hw.Elbow.SetPercent(elbow)
}

// Update runs one tick: watchers, zeroing or closed-loop control, and the hand.
func (a *Arm) Update() {
	defer a.driveHand()

	a.shoulderWatcher.Update()
	a.elbowWatcher.Update()

	if !a.zeroed {
		a.zeroStep()
		return
	}

	// switches stay live so every contact refreshes the reference
	now := a.clock.Now()
	a.checkSwitch(&a.shoulder, now)
	a.checkSwitch(&a.elbow, now)

	if a.Endangered() {
		a.setJoints(0, 0)
		return
	}

	goal := a.goal
	if a.retract {
		goal = Home
	}

	g := a.cfg.Geometry
	sol := Solve(goal, g)
	sol.ClearChassis(a.Position().X, g)
	a.solution = sol

	a.goalTicks[0] = a.ShoulderTicks(sol.Shoulder)
	a.goalTicks[1] = a.ElbowTicks(sol.Elbow, sol.Shoulder)
	a.hasTicks = true

	a.shoulderPID.SetPosition(a.goalTicks[0])
	a.elbowPID.SetPosition(a.goalTicks[1])
	a.shoulderPID.UpdateWith(a.shoulder.encoder.GetAbsolutePosition())
	a.elbowPID.UpdateWith(a.elbow.encoder.GetAbsolutePosition())

	if a.retract && a.AtGoal() {
		a.retract = false
		a.goal = Home
		a.logger.Info("retracted")
	}
}

// checkSwitch records the joint reference once its switch has stayed pressed
// for the debounce time.
func (a *Arm) checkSwitch(j *joint, now float64) bool {
	if !j.limit.Get() {
		j.pressedFrom = -1
		return false
	}
	if j.pressedFrom < 0 {
		j.pressedFrom = now
	}
	if now-j.pressedFrom < a.cfg.ZeroDebounce {
		return false
	}
	j.zeroTicks = j.encoder.GetAbsolutePosition()
	if !j.zeroed {
		j.zeroed = true
		a.logger.Info("joint zeroed", zap.String("joint", j.name), zap.Float64("ticks", j.zeroTicks))
	}
	return true
}

func (a *Arm) zeroStep() {
	now := a.clock.Now()
	var s, e float64
	if !a.shoulder.zeroed && !a.checkSwitch(&a.shoulder, now) {
		s = a.cfg.ZeroShoulderPercent
	}
	if !a.elbow.zeroed && !a.checkSwitch(&a.elbow, now) {
		e = a.cfg.ZeroElbowPercent
	}
	a.setJoints(s, e)

	if a.shoulder.zeroed && a.elbow.zeroed {
		a.zeroed = true
		a.logger.Info("arm zeroed")
	}
}

func (a *Arm) driveHand() {
	switch a.grab {
	case GrabIntake:
		a.hw.Hand.SetPercent(a.cfg.HandPercent)
	case GrabBarf:
		a.hw.Hand.SetPercent(-a.cfg.HandPercent)
	default:
		a.hw.Hand.SetPercent(0)
	}
	a.grab = GrabOff
}
