package motor

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gwillem/rubeus/pkg/clock"
)

// fakeMotor records the last command and serves canned readings.
type fakeMotor struct {
	percent  float64
	sets     int
	position float64
	velocity float64
	current  float64
	inverted bool
}

func (f *fakeMotor) SetPercent(p float64) { f.percent = p; f.sets++ }
func (f *fakeMotor) GetPosition() float64 { return f.position }
func (f *fakeMotor) GetVelocity() float64 { return f.velocity }
func (f *fakeMotor) GetCurrent() float64 { return f.current }
func (f *fakeMotor) SetInverted(inv bool) { f.inverted = inv }
func (f *fakeMotor) Inverted() bool { return f.inverted }

func TestSmartLoop(t *testing.T) {
	tests := []struct {
		pos, round, want float64
	}{
		{-10, 360, 350},
		{370, 360, 10},
		{0, 360, 0},
		{360, 360, 0},
		{720.5, 360, 0.5},
		{-4096, 4096, 0},
		{5000, 4096, 904},
		{-1e-18, 360, 0},
	}

	for _, tt := range tests {
		got := SmartLoop(tt.pos, tt.round)
		assert.InDelta(t, tt.want, got, 1e-9, "SmartLoop(%v, %v)", tt.pos, tt.round)
		assert.GreaterOrEqual(t, got, 0.0)
		assert.Less(t, got, tt.round)
	}
}

func TestSmartLoop_Range(t *testing.T) {
	for p := -10000.0; p <= 10000; p += 37.3 {
		for _, round := range []float64{1, 360, 4096, 2 * math.Pi} {
			got := SmartLoop(p, round)
			if got < 0 || got >= round {
				t.Fatalf("SmartLoop(%v, %v) = %v, outside [0, round)", p, round, got)
			}
		}
	}
}

func TestLoopize(t *testing.T) {
	tests := []struct {
		set, cur, c, want float64
	}{
		{10, 350, 360, 20},
		{350, 10, 360, -20},
		{90, 0, 360, 90},
		{0, 90, 360, -90},
		{4000, 100, 4096, -196},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, Loopize(tt.set, tt.cur, tt.c), 1e-9, "Loopize(%v, %v, %v)", tt.set, tt.cur, tt.c)
	}
	assert.InDelta(t, 2048, math.Abs(Loopize(2048, 0, 4096)), 1e-9)
}

func TestPID_StartsDisabled(t *testing.T) {
	m := &fakeMotor{}
	pid := NewPIDController(m, clock.NewManual(0), Constants{P: 1, MinOutput: -1, MaxOutput: 1})

	assert.Equal(t, Disabled, pid.Mode())
	pid.Update()
	pid.UpdateWith(5)
	assert.Zero(t, m.sets, "disabled controller must not command the motor")
}

func TestPID_CircularError(t *testing.T) {
	m := &fakeMotor{position: 350}
	pid := NewPIDController(m, clock.NewManual(0), Constants{P: 0.01, MinOutput: -1, MaxOutput: 1}, WithCircumference(360))

	pid.SetPosition(10)
	pid.Update()

	assert.InDelta(t, 20, pid.LastError(), 1e-9)
	assert.InDelta(t, 0.2, m.percent, 1e-9)
}

func TestPID_LinearError(t *testing.T) {
	m := &fakeMotor{}
	pid := NewPIDController(m, clock.NewManual(0), Constants{P: 0.001, MinOutput: -1, MaxOutput: 1})

	pid.SetPosition(10)
	pid.UpdateWith(350)

	assert.InDelta(t, -340, pid.LastError(), 1e-9)
	assert.InDelta(t, -0.34, m.percent, 1e-9)
}

func TestPID_IntegralScalesWithElapsedTime(t *testing.T) {
	run := func(dt float64, steps int) float64 {
		clk := clock.NewManual(0)
		m := &fakeMotor{}
		pid := NewPIDController(m, clk, Constants{I: 0.01, MinOutput: -100, MaxOutput: 100})
		pid.SetPosition(1)
		pid.UpdateWith(0) // first step counts as one nominal tick
		for i := 0; i < steps; i++ {
			clk.Advance(dt)
			pid.UpdateWith(0)
		}
		return m.percent
	}

	// one second at 50 Hz versus the same second at 200 Hz
	slow := run(0.02, 50)
	fast := run(0.005, 200)
	assert.InDelta(t, slow, fast, 1e-9)
	assert.InDelta(t, 0.01*51, slow, 1e-9)
}

func TestPID_IZoneResetsIntegral(t *testing.T) {
	clk := clock.NewManual(0)
	m := &fakeMotor{}
	pid := NewPIDController(m, clk, Constants{I: 0.1, IZone: 5, MinOutput: -10, MaxOutput: 10})

	pid.SetPosition(3)
	pid.UpdateWith(0)
	assert.InDelta(t, 0.3, m.percent, 1e-9)

	clk.Advance(0.02)
	pid.UpdateWith(-10) // error 13, outside the zone
	assert.InDelta(t, 0, m.percent, 1e-9)
}

func TestPID_DerivativeAndFeedForward(t *testing.T) {
	clk := clock.NewManual(0)
	m := &fakeMotor{}
	pid := NewPIDController(m, clk, Constants{D: 0.5, F: 0.1, MinOutput: -10, MaxOutput: 10})

	pid.SetPosition(2)
	pid.UpdateWith(0) // d = (2-0)*0.5, f = 0.2
	assert.InDelta(t, 1.2, m.percent, 1e-9)

	clk.Advance(0.02)
	pid.UpdateWith(1) // d = (1-2)*0.5
	assert.InDelta(t, -0.3, m.percent, 1e-9)
}

func TestPID_SpeedModeSendsAccumulator(t *testing.T) {
	clk := clock.NewManual(0)
	m := &fakeMotor{velocity: 0}
	pid := NewPIDController(m, clk, Constants{P: 0.1, MinOutput: -1, MaxOutput: 1})

	pid.SetSpeed(1)
	pid.Update()
	assert.InDelta(t, 0.1, m.percent, 1e-9)

	clk.Advance(0.02)
	pid.Update()
	assert.InDelta(t, 0.2, m.percent, 1e-9)

	clk.Advance(0.04) // two nominal ticks
	pid.Update()
	assert.InDelta(t, 0.4, m.percent, 1e-9)
}

func TestPID_StopClearsAccumulators(t *testing.T) {
	clk := clock.NewManual(0)
	m := &fakeMotor{}
	pid := NewPIDController(m, clk, Constants{P: 0.1, I: 0.1, MinOutput: -1, MaxOutput: 1})

	pid.SetSpeed(1)
	pid.UpdateWith(0)
	clk.Advance(0.02)
	pid.UpdateWith(0)
	require.NotZero(t, m.percent)

	pid.Stop()
	assert.Equal(t, Disabled, pid.Mode())

	pid.SetSpeed(0)
	clk.Advance(10)
	pid.UpdateWith(0)
	assert.InDelta(t, 0, m.percent, 1e-9, "no leftover integral or speed accumulation")
}

func TestPID_OutputAlwaysClamped(t *testing.T) {
	gains := []float64{0, 0.001, 1, 50}
	errs := []float64{-1e6, -3, 0, 2.5, 1e6}
	gaps := []float64{0, 0.001, 0.02, 1, 100}

	for _, g := range gains {
		for _, e := range errs {
			for _, gap := range gaps {
				for _, mode := range []Mode{Position, Speed} {
					clk := clock.NewManual(0)
					m := &fakeMotor{}
					c := Constants{P: g, I: g, D: g, F: g, MinOutput: -0.3, MaxOutput: 0.7}
					pid := NewPIDController(m, clk, c)
					if mode == Position {
						pid.SetPosition(e)
					} else {
						pid.SetSpeed(e)
					}
					for i := 0; i < 4; i++ {
						pid.UpdateWith(0)
						clk.Advance(gap)
						if m.percent < c.MinOutput || m.percent > c.MaxOutput {
							t.Fatalf("output %v outside bounds (gain=%v err=%v gap=%v mode=%v)", m.percent, g, e, gap, mode)
						}
					}
				}
			}
		}
	}
}

func TestPID_IsAtTarget(t *testing.T) {
	m := &fakeMotor{}
	pid := NewPIDController(m, clock.NewManual(0), DefaultConstants(), WithCircumference(4096))
	pid.SetPosition(100)

	pid.UpdateWith(95)
	assert.True(t, pid.IsAtTarget(5))
	assert.False(t, pid.IsAtTarget(4))

	// no wraparound: 4095 is one tick from 0 on the circle but not "at target"
	pid.SetPosition(0)
	pid.UpdateWith(4095)
	assert.False(t, pid.IsAtTarget(10))
}

func TestPID_InvalidConstantsPanic(t *testing.T) {
	assert.Panics(t, func() {
		NewPIDController(&fakeMotor{}, clock.NewManual(0), Constants{MinOutput: 1, MaxOutput: -1})
	})
	assert.Panics(t, func() {
		NewPIDController(&fakeMotor{}, clock.NewManual(0), DefaultConstants(), WithCircumference(0))
	})
	assert.Panics(t, func() {
		NewPIDController(&fakeMotor{}, clock.NewManual(0), DefaultConstants(), WithFrequency(0))
	})
}

func TestCurrentWatcher_TripAndCooldown(t *testing.T) {
	clk := clock.NewManual(0)
	m := &fakeMotor{current: 15}
	w := NewCurrentWatcher("test", m, clk, WatcherConfig{DangerCurrent: 10, DangerSeconds: 2, Cooldown: 1}, nil)

	assert.True(t, w.Endangered(), "fail-safe before the first update")

	for _, ts := range []float64{0, 0.5, 1, 1.5, 1.98} {
		clk.Set(ts)
		assert.False(t, w.Update(), "t=%v", ts)
	}

	clk.Set(2)
	assert.True(t, w.Update(), "trips at t=2")
	clk.Set(2.3)
	assert.True(t, w.Update())

	m.current = 5
	for _, ts := range []float64{2.5, 3, 3.4, 3.49} {
		clk.Set(ts)
		assert.True(t, w.Update(), "still cooling at t=%v", ts)
	}

	clk.Set(3.5)
	assert.False(t, w.Update(), "clears at t=3.5")
	assert.False(t, w.Endangered())
}

func TestCurrentWatcher_ShortSpikeDoesNotTrip(t *testing.T) {
	clk := clock.NewManual(0)
	m := &fakeMotor{current: 1}
	w := NewCurrentWatcher("test", m, clk, WatcherConfig{DangerCurrent: 10, DangerSeconds: 2, Cooldown: 1}, nil)

	w.Update()
	m.current = 50
	clk.Set(1)
	assert.False(t, w.Update())
	clk.Set(2.9)
	assert.False(t, w.Update())

	m.current = 1
	clk.Set(3)
	assert.False(t, w.Update())

	m.current = 50
	clk.Set(4)
	assert.False(t, w.Update(), "spike timer restarts after dropping below")
}

func TestCurrentWatcher_SpikeDuringCooldownRestartsIt(t *testing.T) {
	clk := clock.NewManual(0)
	m := &fakeMotor{current: 20}
	w := NewCurrentWatcher("test", m, clk, WatcherConfig{DangerCurrent: 10, DangerSeconds: 1, Cooldown: 1}, nil)

	w.Update()
	clk.Set(1)
	require.True(t, w.Update())

	m.current = 0
	clk.Set(1.2)
	require.True(t, w.Update()) // cooling until 2.2

	m.current = 20
	clk.Set(1.5)
	assert.True(t, w.Update())

	m.current = 0
	clk.Set(1.6)
	assert.True(t, w.Update()) // cooling until 2.6
	clk.Set(2.3)
	assert.True(t, w.Update(), "must stay below threshold for a full cooldown")
	clk.Set(2.6)
	assert.False(t, w.Update())
}

func TestCurrentWatcher_StaysEndangeredWhileRespiking(t *testing.T) {
	clk := clock.NewManual(0)
	m := &fakeMotor{current: 15}
	w := NewCurrentWatcher("test", m, clk, WatcherConfig{DangerCurrent: 10, DangerSeconds: 2, Cooldown: 1}, nil)

	for _, ts := range []float64{0, 1, 2} {
		clk.Set(ts)
		w.Update()
	}
	require.True(t, w.Endangered())

	m.current = 5
	clk.Set(2.5)
	require.True(t, w.Update())

	m.current = 15
	for _, ts := range []float64{3.4, 3.6, 4, 5} {
		clk.Set(ts)
		assert.True(t, w.Update(), "overcurrent again at t=%v", ts)
	}

	m.current = 5
	clk.Set(6)
	assert.True(t, w.Update())
	clk.Set(6.5)
	assert.True(t, w.Update())
	clk.Set(7)
	assert.False(t, w.Update(), "a full cooldown below threshold clears it")
}

func TestToggleInverted(t *testing.T) {
	m := &fakeMotor{}
	ToggleInverted(m)
	assert.True(t, m.Inverted())
	ToggleInverted(m)
	assert.False(t, m.Inverted())
}
