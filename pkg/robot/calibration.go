package robot

import (
	"fmt"

	"github.com/gwillem/rubeus/pkg/motor"
)

// EncoderCircumference is one revolution of every encoder on the robot.
const EncoderCircumference = 4096

// MotorCalibration holds the bus address and calibration of one device.
type MotorCalibration struct {
	ID           int `json:"id" yaml:"id"`
	DriveMode    int `json:"drive_mode" yaml:"drive_mode"` // 1 = counts the other way
	HomingOffset int `json:"homing_offset" yaml:"homing_offset"`
}

// Calibration holds calibration data for all devices, keyed by name.
type Calibration map[MotorName]MotorCalibration

// Ticks converts a raw encoder reading to ticks in [0, EncoderCircumference),
// applying the drive mode and homing offset.
func (c MotorCalibration) Ticks(raw int) float64 {
	v := raw
	if c.DriveMode == 1 {
		v = -v
	}
	return motor.SmartLoop(float64(v-c.HomingOffset), EncoderCircumference)
}

// MotorIDs returns the bus IDs of all calibrated devices, motors first.
func (c Calibration) MotorIDs() []int {
	var ids []int
	for _, name := range append(AllMotors(), AllEncoders()...) {
		if mc, ok := c[name]; ok {
			ids = append(ids, mc.ID)
		}
	}
	return ids
}

// ByID returns device name and calibration for a given bus ID.
func (c Calibration) ByID(id int) (MotorName, MotorCalibration, bool) {
	for name, mc := range c {
		if mc.ID == id {
			return name, mc, true
		}
	}
	return "", MotorCalibration{}, false
}

// Validate reports duplicate bus IDs.
func (c Calibration) Validate() error {
	seen := make(map[int]MotorName, len(c))
	for name, mc := range c {
		if mc.ID <= 0 {
			return fmt.Errorf("%s: bus id %d must be positive", name, mc.ID)
		}
		if other, ok := seen[mc.ID]; ok {
			return fmt.Errorf("%s and %s share bus id %d", other, name, mc.ID)
		}
		seen[mc.ID] = name
	}
	return nil
}
