package motor

import "math"

// SmartLoop wraps pos into [0, round). round must be positive.
func SmartLoop(pos, round float64) float64 {
	r := math.Mod(pos, round)
	if r < 0 {
		r += round
	}
	// -tiny + round can land exactly on round
	if r >= round {
		r = 0
	}
	return r
}

// Loopize returns the signed error from cur to set on a circle of the given
// circumference, choosing whichever of the two arcs is shorter.
func Loopize(set, cur, circumference float64) float64 {
	d := SmartLoop(set-cur, circumference)
	if d >= circumference/2 {
		d -= circumference
	}
	return d
}
