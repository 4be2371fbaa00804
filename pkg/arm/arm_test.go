package arm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gwillem/rubeus/pkg/clock"
	"github.com/gwillem/rubeus/pkg/vector"
)

func TestSolve_LowPole(t *testing.T) {
	g := DefaultGeometry()
	sol := Solve(LowPole, g)

	assert.InDelta(t, 30.4293, sol.GoalAngle, 1e-3)
	assert.InDelta(t, 111.0568, sol.Theta, 1e-3)
	assert.InDelta(t, 64.9009, sol.Shoulder, 1e-3)
	assert.InDelta(t, 345.9577, sol.Elbow, 1e-3)

	assert.Equal(t, sol, Solve(LowPole, g), "solve is pure")
}

func TestSolve_ForwardRoundTrip(t *testing.T) {
	g := DefaultGeometry()
	for _, goal := range []vector.Vector{Home, Pickup, LowPole, HighPole, vector.New(60, -20)} {
		sol := Solve(goal, g)
		got := Forward(sol.Shoulder, sol.Elbow+g.ElbowOffset, g)
		assert.InDelta(t, goal.X, got.X, 1e-9, "goal %v", goal)
		assert.InDelta(t, goal.Y, got.Y, 1e-9, "goal %v", goal)
		for _, v := range []float64{sol.GoalAngle, sol.Theta, sol.BaseAngle, sol.Shoulder, sol.Elbow} {
			assert.GreaterOrEqual(t, v, 0.0)
			assert.Less(t, v, 360.0)
		}
	}
}

func TestSolve_OutOfReachStretches(t *testing.T) {
	g := DefaultGeometry()
	assert.False(t, Reachable(vector.New(300, 0), g))
	assert.True(t, Reachable(LowPole, g))

	sol := Solve(vector.New(300, 0), g)
	assert.InDelta(t, 180, sol.Theta, 1e-9)
	assert.InDelta(t, 0, sol.Shoulder, 1e-9)
	assert.Equal(t, Solve(vector.New(2*g.LinkLength, 0), g), sol)
}

func TestSolution_ClearChassis(t *testing.T) {
	g := DefaultGeometry()
	tests := []struct {
		x    float64
		want bool
	}{
		{20, false},
		{25, false},
		{30, true},
		{54.9, true},
		{55, false},
	}
	for _, tt := range tests {
		sol := Solve(Pickup, g)
		assert.Equal(t, tt.want, sol.ClearChassis(tt.x, g), "x=%v", tt.x)
		if tt.want {
			assert.Equal(t, g.ClearanceShoulder, sol.Shoulder)
		}
	}
}

func TestSolution_RestrictOutputs(t *testing.T) {
	sol := Solution{Shoulder: 100, Elbow: 10}
	sol.RestrictOutputs(80, 0, 360, 280)
	assert.Equal(t, 80.0, sol.Shoulder)
	assert.Equal(t, 280.0, sol.Elbow)

	assert.Panics(t, func() { sol.RestrictOutputs(0, 80, 360, 280) })
	assert.Panics(t, func() { sol.RestrictOutputs(80, 0, 280, 280) })
}

type fakeActuator struct {
	percent float64
	current float64
}

func (f *fakeActuator) SetPercent(p float64) { f.percent = p }
func (f *fakeActuator) GetPosition() float64 { return 0 }
func (f *fakeActuator) GetVelocity() float64 { return 0 }
func (f *fakeActuator) GetCurrent() float64 { return f.current }
func (f *fakeActuator) SetInverted(bool) {}
func (f *fakeActuator) Inverted() bool { return false }

type fakeEncoder struct{ ticks float64 }

func (e *fakeEncoder) GetAbsolutePosition() float64 { return e.ticks }

type fakeSwitch struct{ on bool }

func (s *fakeSwitch) Get() bool { return s.on }

type rig struct {
	arm                   *Arm
	clk                   *clock.Manual
	shoulder, elbow, hand *fakeActuator
	shoulderEnc, elbowEnc *fakeEncoder
	shoulderLim, elbowLim *fakeSwitch
}

func newRig() *rig {
	r := &rig{
		clk:         clock.NewManual(0),
		shoulder:    &fakeActuator{},
		elbow:       &fakeActuator{},
		hand:        &fakeActuator{},
		shoulderEnc: &fakeEncoder{},
		elbowEnc:    &fakeEncoder{},
		shoulderLim: &fakeSwitch{},
		elbowLim:    &fakeSwitch{},
	}
	r.arm = New(DefaultConfig(), Hardware{
		Shoulder:        r.shoulder,
		Elbow:           r.elbow,
		Hand:            r.hand,
		ShoulderEncoder: r.shoulderEnc,
		ElbowEncoder:    r.elbowEnc,
		ShoulderLimit:   r.shoulderLim,
		ElbowLimit:      r.elbowLim,
	}, r.clk, nil)
	return r
}

// zeroAt zeroes the arm with the encoders at the given references.
func (r *rig) zeroAt(t *testing.T, shoulder, elbow float64) {
	t.Helper()
	r.shoulderEnc.ticks, r.elbowEnc.ticks = shoulder, elbow
	r.shoulderLim.on, r.elbowLim.on = true, true
	r.arm.Update()
	r.clk.Advance(0.5)
	r.arm.Update()
	require.True(t, r.arm.Zeroed())
	r.shoulderLim.on, r.elbowLim.on = false, false
}

func TestArm_ZeroingPerJoint(t *testing.T) {
	r := newRig()
	r.shoulderEnc.ticks, r.elbowEnc.ticks = 700, 1900

	r.arm.Update()
	assert.InDelta(t, 0.2, r.shoulder.percent, 1e-9)
	assert.InDelta(t, 0.1, r.elbow.percent, 1e-9)

	r.clk.Set(0.5)
	r.shoulderLim.on = true
	r.arm.Update()
	assert.Zero(t, r.shoulder.percent, "switch stops upward motion before debounce")
	assert.InDelta(t, 0.1, r.elbow.percent, 1e-9)
	assert.False(t, r.arm.Zeroed())

	r.clk.Set(1)
	r.elbowLim.on = true
	r.arm.Update()
	assert.False(t, r.arm.Zeroed(), "elbow still debouncing")

	r.clk.Set(1.5)
	r.arm.Update()
	require.True(t, r.arm.Zeroed())
	assert.InDelta(t, 80, r.arm.ShoulderAngle(), 1e-9)
	assert.InDelta(t, 280, r.arm.ElbowAngle(), 1e-9)

	r.shoulderLim.on, r.elbowLim.on = false, false
	r.arm.Zero()
	assert.False(t, r.arm.Zeroed())
	r.clk.Set(2)
	r.arm.Update()
	assert.InDelta(t, 0.2, r.shoulder.percent, 1e-9)
	assert.InDelta(t, 0.1, r.elbow.percent, 1e-9)
}

func TestArm_TicksRoundTrip(t *testing.T) {
	r := newRig()
	r.zeroAt(t, 1000, 2000)

	for _, goal := range []vector.Vector{LowPole, HighPole, Pickup} {
		sol := Solve(goal, DefaultGeometry())
		r.shoulderEnc.ticks = r.arm.ShoulderTicks(sol.Shoulder)
		r.elbowEnc.ticks = r.arm.ElbowTicks(sol.Elbow, sol.Shoulder)

		pos := r.arm.Position()
		assert.InDelta(t, goal.X, pos.X, 1e-6, "goal %v", goal)
		assert.InDelta(t, goal.Y, pos.Y, 1e-6, "goal %v", goal)
	}
}

func TestArm_ClearanceClampAndControl(t *testing.T) {
	r := newRig()
	r.zeroAt(t, 1000, 2000)
	require.InDelta(t, 31.76, r.arm.Position().X, 0.01, "rest position is inside the clearance band")

	r.arm.GoToLowPole()
	r.arm.Update()
	assert.Equal(t, 80.0, r.arm.Solution().Shoulder)
	s, _ := r.arm.GoalTicks()
	assert.InDelta(t, 1000, s, 1e-9)
	assert.InDelta(t, -0.25, r.elbow.percent, 1e-9, "elbow loop saturates toward the goal")

	sol := Solve(LowPole, DefaultGeometry())
	r.shoulderEnc.ticks = r.arm.ShoulderTicks(sol.Shoulder)
	r.elbowEnc.ticks = r.arm.ElbowTicks(sol.Elbow, sol.Shoulder)
	r.clk.Advance(0.02)
	r.arm.Update()
	assert.InDelta(t, sol.Shoulder, r.arm.Solution().Shoulder, 1e-9, "outside the band the geometric solution stands")
	assert.True(t, r.arm.AtGoal())
}

func TestArm_EndangeredZeroesBothJoints(t *testing.T) {
	r := newRig()
	r.zeroAt(t, 1000, 2000)
	r.arm.GoToLowPole()

	r.clk.Set(1)
	r.elbow.current = 5
	r.arm.Update()
	r.clk.Set(2)
	r.arm.Update()
	require.NotZero(t, r.elbow.percent)
	require.False(t, r.arm.Endangered())

	r.clk.Set(3)
	r.arm.Update()
	assert.True(t, r.arm.Endangered())
	assert.Zero(t, r.shoulder.percent)
	assert.Zero(t, r.elbow.percent)

	r.elbow.current = 0
	r.clk.Set(3.5)
	r.arm.Update()
	assert.True(t, r.arm.Endangered(), "cooling")
	r.clk.Set(4.5)
	r.arm.Update()
	assert.False(t, r.arm.Endangered())
	assert.NotZero(t, r.elbow.percent)
}

func TestArm_RetractReturnsHome(t *testing.T) {
	r := newRig()
	r.zeroAt(t, 1000, 2000)
	r.shoulderEnc.ticks = 1500

	r.arm.GoToHighPole()
	r.arm.SetRetract(true)
	r.arm.Update()
	require.True(t, r.arm.Retracting())

	for i := 0; i < 3 && r.arm.Retracting(); i++ {
		r.shoulderEnc.ticks, r.elbowEnc.ticks = r.arm.GoalTicks()
		r.clk.Advance(0.02)
		r.arm.Update()
	}
	assert.False(t, r.arm.Retracting())
	assert.Equal(t, Home, r.arm.Goal())
}

func TestArm_GrabIsOneTick(t *testing.T) {
	r := newRig()

	r.arm.SetGrab(GrabIntake)
	r.arm.Update()
	assert.InDelta(t, 0.35, r.hand.percent, 1e-9)
	assert.Equal(t, GrabOff, r.arm.Grab())

	r.arm.Update()
	assert.Zero(t, r.hand.percent)

	r.arm.SetGrab(GrabBarf)
	r.arm.Update()
	assert.InDelta(t, -0.35, r.hand.percent, 1e-9)
}

func TestArm_AuxSetPercentRespectsLimits(t *testing.T) {
	r := newRig()
	r.shoulderLim.on = true

	r.arm.AuxSetPercent(0.5, -0.3)
	assert.Zero(t, r.shoulder.percent)
	assert.InDelta(t, -0.3, r.elbow.percent, 1e-9)

	r.arm.AuxSetPercent(-0.5, 0.3)
	assert.InDelta(t, -0.5, r.shoulder.percent, 1e-9)
	assert.InDelta(t, 0.3, r.elbow.percent, 1e-9)
}

func TestArm_Has(t *testing.T) {
	r := newRig()
	assert.False(t, r.arm.Has())

	piece := &fakeSwitch{on: true}
	r.arm.hw.GamePiece = piece
	assert.True(t, r.arm.Has())
}

func TestNew_InvalidConfigPanics(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Shoulder.MinOutput = 1
	assert.Panics(t, func() { New(cfg, Hardware{}, clock.NewManual(0), nil) })

	cfg = DefaultConfig()
	cfg.Geometry.LinkLength = 0
	assert.Panics(t, func() { New(cfg, Hardware{}, clock.NewManual(0), nil) })
}
