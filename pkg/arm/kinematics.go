// Package arm solves and drives the two-link manipulator: pure inverse and
// forward kinematics in degrees, plus the Arm controller that zeroes the joints
// against their limit switches and closes position loops on them.
package arm

import (
	"fmt"
	"math"

	"github.com/gwillem/rubeus/pkg/motor"
	"github.com/gwillem/rubeus/pkg/vector"
)

// Geometry describes the arm links and the encoder reference angles. All
// angles are in degrees, lengths in centimeters.
type Geometry struct {
	LinkLength float64 `json:"link_length" yaml:"link_length"` // both links are this long

	// Joint angles at the limit-switch zero.
	ShoulderDefaultAngle float64 `json:"shoulder_default_angle" yaml:"shoulder_default_angle"`
	ElbowDefaultAngle    float64 `json:"elbow_default_angle" yaml:"elbow_default_angle"`

	// ElbowOffset is the measured difference between the geometric elbow
	// angle and what the elbow encoder reference reports.
	ElbowOffset float64 `json:"elbow_offset" yaml:"elbow_offset"`

	// While the hand is between ClearanceMinX and ClearanceMaxX the shoulder
	// is held at ClearanceShoulder so the forearm clears the chassis.
	ClearanceMinX     float64 `json:"clearance_min_x" yaml:"clearance_min_x"`
	ClearanceMaxX     float64 `json:"clearance_max_x" yaml:"clearance_max_x"`
	ClearanceShoulder float64 `json:"clearance_shoulder" yaml:"clearance_shoulder"`
}

// DefaultGeometry returns the competition arm.
func DefaultGeometry() Geometry {
	return Geometry{
		LinkLength:           91.44,
		ShoulderDefaultAngle: 80,
		ElbowDefaultAngle:    280,
		ElbowOffset:          10,
		ClearanceMinX:        25,
		ClearanceMaxX:        55,
		ClearanceShoulder:    80,
	}
}

// Validate reports impossible geometry.
func (g Geometry) Validate() error {
	if g.LinkLength <= 0 {
		return fmt.Errorf("link length must be positive, got %g", g.LinkLength)
	}
	if g.ClearanceMinX > g.ClearanceMaxX {
		return fmt.Errorf("clearance band [%g, %g] is inverted", g.ClearanceMinX, g.ClearanceMaxX)
	}
	return nil
}

// Solution holds every intermediate angle of one inverse-kinematics solve.
// All values are degrees in [0, 360).
type Solution struct {
	GoalAngle            float64 // polar angle of the goal point
	Theta                float64 // elbow apex angle of the isosceles triangle
	BaseAngle            float64 // angle between the goal vector and the upper link
	Shoulder             float64 // absolute upper link angle
	ShoulderFromVertical float64
	ElbowFromVertical    float64
	Elbow                float64 // elbow command angle, calibration offset applied
}

func degrees(rad float64) float64 { return rad * 180 / math.Pi }

func radians(deg float64) float64 { return deg * math.Pi / 180 }

func loop360(deg float64) float64 { return motor.SmartLoop(deg, 360) }

// Solve computes joint angles that put the hand at goal. Targets out of reach
// resolve to the arm stretched straight toward them. Solve is pure.
func Solve(goal vector.Vector, g Geometry) Solution {
	var s Solution
	s.GoalAngle = loop360(degrees(goal.Angle()))

	ratio := goal.Magnitude() / 2 / g.LinkLength
	ratio = math.Max(-1, math.Min(1, ratio))
	s.Theta = loop360(2 * degrees(math.Asin(ratio)))

	s.BaseAngle = loop360((180 - s.Theta) / 2)
	s.Shoulder = loop360(s.BaseAngle + s.GoalAngle)
	s.ShoulderFromVertical = loop360(90 - s.Shoulder)
	s.ElbowFromVertical = loop360(s.Theta - s.ShoulderFromVertical)
	s.Elbow = loop360(270 + s.ElbowFromVertical - g.ElbowOffset)
	return s
}

// Reachable reports whether goal lies within the arm's span.
func Reachable(goal vector.Vector, g Geometry) bool {
	return goal.Magnitude() <= 2*g.LinkLength
}

// ClearChassis raises the shoulder to the clearance angle when handX lies
// strictly inside the clearance band, and reports whether it did.
func (s *Solution) ClearChassis(handX float64, g Geometry) bool {
	if handX > g.ClearanceMinX && handX < g.ClearanceMaxX {
		s.Shoulder = g.ClearanceShoulder
		return true
	}
	return false
}

// RestrictOutputs clamps the shoulder and elbow angles to their ranges. It
// panics when a max does not exceed its min.
func (s *Solution) RestrictOutputs(shoulderMax, shoulderMin, elbowMax, elbowMin float64) {
	if shoulderMax <= shoulderMin || elbowMax <= elbowMin {
		panic(fmt.Sprintf("arm: invalid joint ranges shoulder [%g, %g] elbow [%g, %g]",
			shoulderMin, shoulderMax, elbowMin, elbowMax))
	}
	s.Elbow = math.Max(elbowMin, math.Min(elbowMax, s.Elbow))
	s.Shoulder = math.Max(shoulderMin, math.Min(shoulderMax, s.Shoulder))
}

// Forward returns the hand position for absolute link angles in degrees.
func Forward(shoulder, elbow float64, g Geometry) vector.Vector {
	return vector.Polar(g.LinkLength, radians(shoulder)).
		Add(vector.Polar(g.LinkLength, radians(elbow)))
}
