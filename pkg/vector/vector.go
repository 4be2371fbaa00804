// Package vector provides a 2-D vector with polar helpers used by the drive,
// arm, and odometry code.
package vector

import (
	"fmt"
	"math"

	"github.com/golang/geo/r2"
)

// Vector is a planar vector in whatever units the caller uses consistently.
// Arithmetic methods return new values; the pointer methods mutate in place.
type Vector struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// New returns the vector (x, y).
func New(x, y float64) Vector {
	return Vector{X: x, Y: y}
}

// Polar returns the vector with the given magnitude and angle in radians.
func Polar(magnitude, angle float64) Vector {
	return Vector{X: math.Cos(angle) * magnitude, Y: math.Sin(angle) * magnitude}
}

func (v Vector) point() r2.Point {
	return r2.Point{X: v.X, Y: v.Y}
}

func fromPoint(p r2.Point) Vector {
	return Vector{X: p.X, Y: p.Y}
}

// Add returns v + o.
func (v Vector) Add(o Vector) Vector {
	return fromPoint(v.point().Add(o.point()))
}

// Sub returns v - o.
func (v Vector) Sub(o Vector) Vector {
	return fromPoint(v.point().Sub(o.point()))
}

// Scale returns v * k.
func (v Vector) Scale(k float64) Vector {
	return fromPoint(v.point().Mul(k))
}

// Neg returns -v.
func (v Vector) Neg() Vector {
	return v.Scale(-1)
}

// Angle returns the direction of v in radians, in (-π, π].
func (v Vector) Angle() float64 {
	return math.Atan2(v.Y, v.X)
}

// Magnitude returns the length of v.
func (v Vector) Magnitude() float64 {
	return v.point().Norm()
}

// Rotate returns v rotated counter-clockwise by amount radians.
func (v Vector) Rotate(amount float64) Vector {
	sin, cos := math.Sincos(amount)
	return Vector{
		X: v.X*cos - v.Y*sin,
		Y: v.X*sin + v.Y*cos,
	}
}

// IsZero reports whether both components are exactly zero.
func (v Vector) IsZero() bool {
	return v.X == 0 && v.Y == 0
}

// Distance returns the Euclidean distance between v and o.
func (v Vector) Distance(o Vector) float64 {
	return v.Sub(o).Magnitude()
}

func (v Vector) String() string {
	return fmt.Sprintf("(%f, %f)", v.X, v.Y)
}

// SetMagnitudeAngle replaces v with the vector of the given polar form.
func (v *Vector) SetMagnitudeAngle(magnitude, angle float64) {
	*v = Polar(magnitude, angle)
}

// SetMagnitude keeps the direction of v and changes its length.
func (v *Vector) SetMagnitude(magnitude float64) {
	v.SetMagnitudeAngle(magnitude, v.Angle())
}

// SetAngle keeps the length of v and points it at angle radians.
func (v *Vector) SetAngle(angle float64) {
	v.SetMagnitudeAngle(v.Magnitude(), angle)
}

// Flip negates v in place.
func (v *Vector) Flip() {
	*v = v.Neg()
}

// Zero sets both components to zero.
func (v *Vector) Zero() {
	*v = Vector{}
}

// Dead zeroes v when its length is below band.
func (v *Vector) Dead(band float64) {
	if v.Magnitude() < band {
		v.Zero()
	}
}

// Cap shortens v to top if it is longer.
func (v *Vector) Cap(top float64) {
	if v.Magnitude() > top {
		v.SetMagnitude(top)
	}
}

// SpeedLimit scales v by limit, then caps the result at limit.
func (v *Vector) SpeedLimit(limit float64) {
	v.SetMagnitude(v.Magnitude() * limit)
	v.Cap(limit)
}
