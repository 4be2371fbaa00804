package robot

import (
	"context"
	"errors"
	"fmt"

	"github.com/gwillem/rubeus/pkg/arm"
	"github.com/gwillem/rubeus/pkg/motor"
	"github.com/gwillem/rubeus/pkg/odometry"
)

type encoderFunc func() float64

func (f encoderFunc) GetAbsolutePosition() float64 { return f() }

type switchFunc func() bool

func (f switchFunc) Get() bool { return f() }

// WheelHardware is the devices of one swerve module.
type WheelHardware struct {
	Drive, Steer motor.Actuator
	Encoder      motor.AbsoluteEncoder
}

// Hardware is everything a Robot drives and reads. Wheels are in chain order.
type Hardware struct {
	Wheels []WheelHardware
	Arm    arm.Hardware
	Vision odometry.Vision
	IMU    odometry.Inertial

	// Refresh, when set, runs before every tick to pull sensor readings. An
	// error means the readings are stale: the robot holds every actuator at
	// zero for that tick.
	Refresh func(ctx context.Context) error
}

// Validate reports missing devices.
func (h *Hardware) Validate(wheels int) error {
	if len(h.Wheels) != wheels {
		return fmt.Errorf("%d wheels wired, want %d", len(h.Wheels), wheels)
	}
	for i, w := range h.Wheels {
		if w.Drive == nil || w.Steer == nil || w.Encoder == nil {
			return fmt.Errorf("wheel %d: missing device", i)
		}
	}
	a := h.Arm
	if a.Shoulder == nil || a.Elbow == nil || a.Hand == nil ||
		a.ShoulderEncoder == nil || a.ElbowEncoder == nil ||
		a.ShoulderLimit == nil || a.ElbowLimit == nil {
		return errors.New("arm: missing device")
	}
	if h.Vision == nil || h.IMU == nil {
		return errors.New("vision and imu are required")
	}
	return nil
}

// Blind stands in for the camera and the inertial sensor on a robot without
// them. Odometry stays Bad.
type Blind struct{}

func (Blind) LatestResult() []odometry.Detection { return nil }
func (Blind) FusedHeading() float64 { return 0 }
func (Blind) DisplacementX() float64 { return 0 }
func (Blind) DisplacementY() float64 { return 0 }
func (Blind) ResetDisplacement() {}

// CANHardware wires the robot to motor controllers on bus. Steering encoders
// come from servos when servos is not nil, else from CAN encoders. Arm
// encoders and limit switches are the controllers' own inputs; the game piece
// sensor is the hand's reverse limit input.
func CANHardware(cfg *Config, bus *CANBus, servos *ServoBus) Hardware {
	dev := func(name MotorName) int { return cfg.Devices[name].ID }

	var hw Hardware
	for _, w := range Wheels() {
		wh := WheelHardware{
			Drive: bus.Motor(dev(w.Drive)),
			Steer: bus.Motor(dev(w.Steer)),
		}
		if servos != nil {
			wh.Encoder = servos.Encoder(w.Encoder)
		} else {
			wh.Encoder = bus.Encoder(dev(w.Encoder))
		}
		hw.Wheels = append(hw.Wheels, wh)
	}

	shoulder, elbow, hand := bus.Motor(dev(Shoulder)), bus.Motor(dev(Elbow)), bus.Motor(dev(Hand))
	hw.Arm = arm.Hardware{
		Shoulder:        shoulder,
		Elbow:           elbow,
		Hand:            hand,
		ShoulderEncoder: shoulder.AbsoluteEncoder(),
		ElbowEncoder:    elbow.AbsoluteEncoder(),
		ShoulderLimit:   shoulder.ForwardLimit(),
		ElbowLimit:      elbow.ForwardLimit(),
		GamePiece:       hand.ReverseLimit(),
	}
	hw.Vision = Blind{}
	hw.IMU = Blind{}
	hw.Refresh = func(ctx context.Context) error {
		if err := bus.Health(); err != nil {
			return err
		}
		if servos != nil {
			return servos.Refresh(ctx)
		}
		return nil
	}
	return hw
}
