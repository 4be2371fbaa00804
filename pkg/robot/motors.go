// Package robot wires the control core to hardware: configuration, device
// names, calibration, the CAN and servo-bus backends, the simulator and the
// per-tick composition of drive, arm and odometry.
package robot

// MotorName identifies a device on the robot: a motor controller or the
// absolute encoder of a steering axle.
type MotorName string

// Device names of the competition robot.
const (
	BackLeftDrive    MotorName = "back_left_drive"
	BackLeftSteer    MotorName = "back_left_steer"
	BackLeftEncoder  MotorName = "back_left_encoder"
	BackRightDrive   MotorName = "back_right_drive"
	BackRightSteer   MotorName = "back_right_steer"
	BackRightEncoder MotorName = "back_right_encoder"

	FrontRightDrive   MotorName = "front_right_drive"
	FrontRightSteer   MotorName = "front_right_steer"
	FrontRightEncoder MotorName = "front_right_encoder"
	FrontLeftDrive    MotorName = "front_left_drive"
	FrontLeftSteer    MotorName = "front_left_steer"
	FrontLeftEncoder  MotorName = "front_left_encoder"

	Shoulder MotorName = "shoulder"
	Elbow    MotorName = "elbow"
	Hand     MotorName = "hand"
)

// Wheel names the three devices of one swerve module.
type Wheel struct {
	Name    string
	Drive   MotorName
	Steer   MotorName
	Encoder MotorName
}

// Wheels returns the swerve modules in chain order. The first one is the
// module fleet commands start from.
func Wheels() []Wheel {
	return []Wheel{
		{"back_left", BackLeftDrive, BackLeftSteer, BackLeftEncoder},
		{"back_right", BackRightDrive, BackRightSteer, BackRightEncoder},
		{"front_right", FrontRightDrive, FrontRightSteer, FrontRightEncoder},
		{"front_left", FrontLeftDrive, FrontLeftSteer, FrontLeftEncoder},
	}
}

// AllMotors returns every motor controller, wheels first in chain order,
// then the arm.
func AllMotors() []MotorName {
	var names []MotorName
	for _, w := range Wheels() {
		names = append(names, w.Drive, w.Steer)
	}
	return append(names, Shoulder, Elbow, Hand)
}

// AllEncoders returns the steering encoders in chain order.
func AllEncoders() []MotorName {
	var names []MotorName
	for _, w := range Wheels() {
		names = append(names, w.Encoder)
	}
	return names
}
