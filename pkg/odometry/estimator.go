package odometry

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/gwillem/rubeus/pkg/vector"
)

// Quality grades an estimate.
type Quality int

const (
	// Bad means no marker has been seen yet; positions are meaningless.
	Bad Quality = iota
	// Stale means the last fix is being extended with inertial displacement.
	Stale
	// Fresh means a known marker is in view this tick.
	Fresh
)

func (q Quality) String() string {
	switch q {
	case Bad:
		return "bad"
	case Stale:
		return "stale"
	case Fresh:
		return "fresh"
	default:
		return fmt.Sprintf("Quality(%d)", int(q))
	}
}

// Detection is one marker seen by the camera.
type Detection struct {
	ID        int
	Ambiguity float64       // pose ambiguity in [0, 1], lower is better
	Pose      vector.Vector // robot position relative to the marker, meters
	Yaw       float64       // degrees
}

// Vision returns the markers visible in the latest camera frame.
type Vision interface {
	LatestResult() []Detection
}

// Inertial is the orientation and displacement sensor.
type Inertial interface {
	FusedHeading() float64 // degrees
	DisplacementX() float64
	DisplacementY() float64
	ResetDisplacement()
}

// Estimate is the fused result of one tick.
type Estimate struct {
	Position vector.Vector
	Heading  float64 // degrees, from the last marker fix
	Quality  Quality
	MarkerID int // marker used this tick, 0 unless Fresh
}

// Estimator keeps the position estimate. Call Update once per tick.
type Estimator struct {
	markers *MarkerTable
	vision  Vision
	imu     Inertial
	logger  *zap.Logger

	last     Estimate
	lastGood vector.Vector
	fixed    bool
}

// NewEstimator returns an estimator with Bad quality.
func NewEstimator(markers *MarkerTable, vision Vision, imu Inertial, logger *zap.Logger) *Estimator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Estimator{
		markers: markers,
		vision:  vision,
		imu:     imu,
		logger:  logger.With(zap.String("component", "odometry")),
	}
}

// Update reads the camera and the inertial sensor and returns the new estimate.
func (e *Estimator) Update() Estimate {
	prev := e.last.Quality

	if det, m, ok := e.best(e.vision.LatestResult()); ok {
		pos := m.Position().Add(det.Pose.Rotate(m.Orientation))
		e.imu.ResetDisplacement()
		e.lastGood = pos
		if !e.fixed {
			e.logger.Info("first marker fix", zap.Int("marker", m.ID), zap.Stringer("position", pos))
		}
		e.fixed = true
		e.last = Estimate{
			Position: pos,
			Heading:  det.Yaw + m.Orientation*180/math.Pi,
			Quality:  Fresh,
			MarkerID: m.ID,
		}
	} else {
		q := Stale
		if !e.fixed {
			q = Bad
		}
		disp := vector.New(e.imu.DisplacementX(), e.imu.DisplacementY())
		e.last = Estimate{
			Position: e.lastGood.Add(disp),
			Heading:  e.last.Heading,
			Quality:  q,
		}
	}

	if e.last.Quality != prev {
		e.logger.Debug("quality changed", zap.Stringer("from", prev), zap.Stringer("to", e.last.Quality))
	}
	return e.last
}

// best picks the least ambiguous detection of a known marker.
func (e *Estimator) best(dets []Detection) (Detection, Marker, bool) {
	var (
		bestDet    Detection
		bestMarker Marker
		found      bool
	)
	for _, d := range dets {
		m, ok := e.markers.Lookup(d.ID)
		if !ok {
			continue
		}
		if !found || d.Ambiguity < bestDet.Ambiguity {
			bestDet, bestMarker, found = d, m, true
		}
	}
	return bestDet, bestMarker, found
}

// Estimate returns the result of the last Update.
func (e *Estimator) Estimate() Estimate { return e.last }

// Position returns the last estimated position.
func (e *Estimator) Position() vector.Vector { return e.last.Position }

// Quality returns the grade of the last estimate.
func (e *Estimator) Quality() Quality { return e.last.Quality }

// LastGood returns the position of the most recent marker fix.
func (e *Estimator) LastGood() vector.Vector { return e.lastGood }

// Nearest returns the marker closest to the last estimate.
func (e *Estimator) Nearest() Marker {
	return e.markers.Nearest(e.last.Position)
}

// NearestAngle returns the orientation of the nearest marker in radians.
func (e *Estimator) NearestAngle() float64 {
	return e.Nearest().Orientation
}
