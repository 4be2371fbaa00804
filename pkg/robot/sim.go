package robot

import (
	"math"

	"github.com/gwillem/rubeus/pkg/arm"
	"github.com/gwillem/rubeus/pkg/clock"
	"github.com/gwillem/rubeus/pkg/motor"
	"github.com/gwillem/rubeus/pkg/odometry"
	"github.com/gwillem/rubeus/pkg/vector"
)

// SimMotor is a simulated motor. Its position integrates the commanded
// percent; current is proportional to output and jumps to StallCurrent while
// it pushes against a hard stop.
type SimMotor struct {
	MaxSpeed       float64 // ticks per second at full output
	FullCurrent    float64 // amps at full output
	StallCurrent   float64
	MinPos, MaxPos float64 // hard stops in ticks, ignored when equal

	percent  float64
	position float64
	velocity float64
	current  float64
	inverted bool
}

// NewSimMotor returns a free-spinning motor.
func NewSimMotor(maxSpeed, fullCurrent float64) *SimMotor {
	return &SimMotor{MaxSpeed: maxSpeed, FullCurrent: fullCurrent}
}

func (m *SimMotor) SetPercent(percent float64) {
	m.percent = math.Max(-1, math.Min(1, percent))
}

// Percent returns the last command.
func (m *SimMotor) Percent() float64 { return m.percent }

func (m *SimMotor) GetPosition() float64 { return m.position }
func (m *SimMotor) GetVelocity() float64 { return m.velocity }
func (m *SimMotor) GetCurrent() float64 { return m.current }

func (m *SimMotor) SetInverted(inverted bool) { m.inverted = inverted }

func (m *SimMotor) Inverted() bool { return m.inverted }

// SetPosition moves the rotor without simulating the motion.
func (m *SimMotor) SetPosition(ticks float64) { m.position = ticks }

// Step advances the motor by dt seconds.
func (m *SimMotor) Step(dt float64) {
	out := m.percent
	if m.inverted {
		out = -out
	}
	m.velocity = out * m.MaxSpeed
	m.current = math.Abs(m.percent) * m.FullCurrent
	next := m.position + m.velocity*dt

	if m.MinPos != m.MaxPos && (next < m.MinPos || next > m.MaxPos) {
		next = math.Max(m.MinPos, math.Min(m.MaxPos, next))
		m.velocity = 0
		if m.percent != 0 {
			m.current = m.StallCurrent
		}
	}
	m.position = next
}

// SimConfig tunes the simulated robot.
type SimConfig struct {
	DriveSpeed    float64 // drive ticks per second at full output
	SteerSpeed    float64 // steering ticks per second at full output
	MetersPerTick float64 // wheel travel per drive tick
	TrackRadius   float64 // meters from the center to each wheel

	ArmSpeed       float64 // joint ticks per second at full output
	ShoulderTravel float64 // ticks from the start pose to the shoulder switch
	ElbowTravel    float64 // ticks from the start pose to the elbow switch

	VisionRange float64 // meters within which markers are detected
}

// DefaultSimConfig returns a robot that behaves roughly like the real one.
func DefaultSimConfig() SimConfig {
	return SimConfig{
		DriveSpeed:     4000,
		SteerSpeed:     2000,
		MetersPerTick:  0.001,
		TrackRadius:    0.4,
		ArmSpeed:       1500,
		ShoulderTravel: 300,
		ElbowTravel:    200,
		VisionRange:    4,
	}
}

type simWheel struct {
	role    int
	offset  float64
	drive   *SimMotor
	steer   *SimMotor
	encoder motor.AbsoluteEncoder
}

// Sim is a simulated robot on a marker field. It is its own camera and
// inertial sensor. Step it once per tick, after the robot has commanded it.
type Sim struct {
	cfg     SimConfig
	clock   *clock.Manual
	markers *odometry.MarkerTable

	wheels []simWheel

	shoulder, elbow, hand     *SimMotor
	shoulderStart, elbowStart float64
	shoulderLimit, elbowLimit motor.LimitSwitch
	shoulderEnc, elbowEnc     motor.AbsoluteEncoder

	position     vector.Vector // meters
	heading      float64       // degrees, clockwise
	displacement vector.Vector
}

// NewSim builds the simulated robot described by cfg, starting at the origin
// facing heading zero with the arm folded below its switches.
func NewSim(cfg *Config, sc SimConfig, clk *clock.Manual) (*Sim, error) {
	markers, err := cfg.Markers()
	if err != nil {
		return nil, err
	}
	s := &Sim{
		cfg:           sc,
		clock:         clk,
		markers:       markers,
		shoulderStart: 1000,
		elbowStart:    2500,
	}

	for _, w := range cfg.Drive.Wheels {
		sw := simWheel{
			role:   w.Role,
			offset: w.EncoderOffset,
			drive:  NewSimMotor(sc.DriveSpeed, 20),
			steer:  NewSimMotor(sc.SteerSpeed, 5),
		}
		steer, offset := sw.steer, sw.offset
		sw.encoder = encoderFunc(func() float64 {
			return motor.SmartLoop(offset+steer.GetPosition(), EncoderCircumference)
		})
		s.wheels = append(s.wheels, sw)
	}

	s.shoulder = &SimMotor{
		MaxSpeed:     sc.ArmSpeed,
		FullCurrent:  20,
		StallCurrent: 60,
		MinPos:       -2000,
		MaxPos:       sc.ShoulderTravel + 20,
	}
	s.elbow = &SimMotor{
		MaxSpeed:     sc.ArmSpeed,
		FullCurrent:  2,
		StallCurrent: 5,
		MinPos:       -2000,
		MaxPos:       sc.ElbowTravel + 20,
	}
	s.hand = &SimMotor{MaxSpeed: 800, FullCurrent: 5, StallCurrent: 10, MinPos: 0, MaxPos: 400}

	s.shoulderEnc = encoderFunc(func() float64 {
		return motor.SmartLoop(s.shoulderStart+s.shoulder.GetPosition(), arm.Circumference)
	})
	s.elbowEnc = encoderFunc(func() float64 {
		return motor.SmartLoop(s.elbowStart+s.elbow.GetPosition(), arm.Circumference)
	})
	s.shoulderLimit = switchFunc(func() bool { return s.shoulder.GetPosition() >= sc.ShoulderTravel })
	s.elbowLimit = switchFunc(func() bool { return s.elbow.GetPosition() >= sc.ElbowTravel })
	return s, nil
}

// Hardware returns the simulated devices.
func (s *Sim) Hardware() Hardware {
	var hw Hardware
	for _, w := range s.wheels {
		hw.Wheels = append(hw.Wheels, WheelHardware{Drive: w.drive, Steer: w.steer, Encoder: w.encoder})
	}
	hw.Arm = arm.Hardware{
		Shoulder:        s.shoulder,
		Elbow:           s.elbow,
		Hand:            s.hand,
		ShoulderEncoder: s.shoulderEnc,
		ElbowEncoder:    s.elbowEnc,
		ShoulderLimit:   s.shoulderLimit,
		ElbowLimit:      s.elbowLimit,
		GamePiece:       switchFunc(s.HasPiece),
	}
	hw.Vision = s
	hw.IMU = s
	return hw
}

// Step advances the world by dt seconds, including the clock.
func (s *Sim) Step(dt float64) {
	var (
		linear  vector.Vector
		angular float64
	)
	for _, w := range s.wheels {
		w.drive.Step(dt)
		w.steer.Step(dt)

		angle := motor.SmartLoop(w.steer.GetPosition(), EncoderCircumference) * 2 * math.Pi / EncoderCircumference
		v := vector.Polar(w.drive.GetVelocity()*s.cfg.MetersPerTick, angle)
		linear = linear.Add(v)

		tangent := vector.Polar(1, math.Pi/4+math.Pi/2*float64(w.role))
		angular += v.X*tangent.X + v.Y*tangent.Y
	}
	if n := float64(len(s.wheels)); n > 0 {
		linear = linear.Scale(1 / n)
		angular /= n * s.cfg.TrackRadius
	}

	// counter-clockwise spin lowers the clockwise heading
	s.heading = motor.SmartLoop(s.heading-angular*dt*180/math.Pi, 360)
	world := linear.Rotate(-s.heading * math.Pi / 180).Scale(dt)
	s.position = s.position.Add(world)
	s.displacement = s.displacement.Add(world)

	s.shoulder.Step(dt)
	s.elbow.Step(dt)
	s.hand.Step(dt)

	s.clock.Advance(dt)
}

// Pose returns the true position in meters and heading in degrees.
func (s *Sim) Pose() (vector.Vector, float64) {
	return s.position, s.heading
}

// SetPose teleports the robot.
func (s *Sim) SetPose(position vector.Vector, heading float64) {
	s.position = position
	s.heading = motor.SmartLoop(heading, 360)
}

// HasPiece reports whether the hand has pulled a game piece in.
func (s *Sim) HasPiece() bool {
	return s.hand.GetPosition() >= 300
}

// LatestResult returns every marker within vision range.
func (s *Sim) LatestResult() []odometry.Detection {
	var dets []odometry.Detection
	for _, m := range s.markers.Markers() {
		rel := s.position.Sub(m.Position())
		dist := rel.Magnitude()
		if dist > s.cfg.VisionRange {
			continue
		}
		dets = append(dets, odometry.Detection{
			ID:        m.ID,
			Ambiguity: dist / s.cfg.VisionRange,
			Pose:      rel.Rotate(-m.Orientation),
			Yaw:       s.heading - m.Orientation*180/math.Pi,
		})
	}
	return dets
}

func (s *Sim) FusedHeading() float64 { return s.heading }

func (s *Sim) DisplacementX() float64 { return s.displacement.X }

func (s *Sim) DisplacementY() float64 { return s.displacement.Y }

func (s *Sim) ResetDisplacement() { s.displacement = vector.Vector{} }

// Wheel returns the simulated drive and steering motors of wheel i.
func (s *Sim) Wheel(i int) (drive, steer *SimMotor) {
	return s.wheels[i].drive, s.wheels[i].steer
}

// Joints returns the simulated arm motors.
func (s *Sim) Joints() (shoulder, elbow, hand *SimMotor) {
	return s.shoulder, s.elbow, s.hand
}
