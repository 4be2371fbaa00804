package odometry

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gwillem/rubeus/pkg/vector"
)

type fakeVision struct{ dets []Detection }

func (v *fakeVision) LatestResult() []Detection { return v.dets }

type fakeIMU struct {
	heading, dx, dy float64
	resets          int
}

func (i *fakeIMU) FusedHeading() float64 { return i.heading }
func (i *fakeIMU) DisplacementX() float64 { return i.dx }
func (i *fakeIMU) DisplacementY() float64 { return i.dy }
func (i *fakeIMU) ResetDisplacement() {
	i.dx, i.dy = 0, 0
	i.resets++
}

func newEstimator(t *testing.T, markers ...Marker) (*Estimator, *fakeVision, *fakeIMU) {
	t.Helper()
	table, err := NewMarkerTable(markers...)
	require.NoError(t, err)
	v, imu := &fakeVision{}, &fakeIMU{}
	return NewEstimator(table, v, imu, nil), v, imu
}

func TestEstimator_FreshThenStale(t *testing.T) {
	e, v, imu := newEstimator(t, Marker{ID: 1})

	v.dets = []Detection{{ID: 1, Ambiguity: 0.1, Pose: vector.New(1, 2)}}
	est := e.Update()
	assert.Equal(t, Fresh, est.Quality)
	assert.InDelta(t, 1, est.Position.X, 1e-9)
	assert.InDelta(t, 2, est.Position.Y, 1e-9)
	assert.Equal(t, 1, imu.resets)

	v.dets = nil
	imu.dx, imu.dy = 0.1, 0
	est = e.Update()
	assert.Equal(t, Stale, est.Quality)
	assert.InDelta(t, 1.1, est.Position.X, 1e-9)
	assert.InDelta(t, 2, est.Position.Y, 1e-9)
	assert.Equal(t, vector.New(1, 2), e.LastGood(), "last good only moves on a fix")
}

func TestEstimator_BadUntilFirstFix(t *testing.T) {
	e, v, imu := newEstimator(t, Marker{ID: 1})

	assert.Equal(t, Bad, e.Quality())
	imu.dx = 3
	assert.Equal(t, Bad, e.Update().Quality)

	v.dets = []Detection{{ID: 42, Pose: vector.New(1, 1)}}
	assert.Equal(t, Bad, e.Update().Quality, "unknown markers are not a fix")
	assert.Zero(t, imu.resets)

	v.dets = []Detection{{ID: 1, Pose: vector.New(1, 1)}}
	assert.Equal(t, Fresh, e.Update().Quality)

	v.dets = nil
	assert.Equal(t, Stale, e.Update().Quality, "never degrades back to bad")
}

func TestEstimator_PicksLeastAmbiguous(t *testing.T) {
	e, v, _ := newEstimator(t,
		Marker{ID: 1},
		Marker{ID: 8, X: 13.8, Orientation: math.Pi},
	)

	v.dets = []Detection{
		{ID: 1, Ambiguity: 0.4, Pose: vector.New(5, 5)},
		{ID: 8, Ambiguity: 0.05, Pose: vector.New(2, 1), Yaw: 10},
		{ID: 99, Ambiguity: 0, Pose: vector.New(0, 0)},
	}
	est := e.Update()
	assert.Equal(t, 8, est.MarkerID)
	assert.InDelta(t, 11.8, est.Position.X, 1e-9, "pose is rotated by the marker orientation")
	assert.InDelta(t, -1, est.Position.Y, 1e-9)
	assert.InDelta(t, 190, est.Heading, 1e-9)
}

func TestEstimator_Nearest(t *testing.T) {
	e := NewEstimator(Official(), &fakeVision{dets: []Detection{{ID: 6, Pose: vector.New(-1, 0)}}}, &fakeIMU{}, nil)

	e.Update()
	assert.InDelta(t, 14.8, e.Position().X, 1e-9)
	assert.Equal(t, 6, e.Nearest().ID)
	assert.InDelta(t, math.Pi, e.NearestAngle(), 1e-12)
}

func TestNewMarkerTable(t *testing.T) {
	_, err := NewMarkerTable(Marker{ID: 1}, Marker{ID: 1, X: 2})
	assert.ErrorContains(t, err, "duplicate marker id 1")

	_, err = NewMarkerTable()
	assert.Error(t, err)

	assert.Equal(t, 8, Official().Len())
	assert.Equal(t, 6, Makerspace().Len())

	m, ok := Makerspace().Lookup(5)
	require.True(t, ok)
	assert.Equal(t, Marker{ID: 5, X: 0, Y: 1}, m)
	_, ok = Makerspace().Lookup(2)
	assert.False(t, ok)
}

func TestMarkerTable_NearestTieGoesFirst(t *testing.T) {
	table, err := NewMarkerTable(Marker{ID: 3, X: -1}, Marker{ID: 4, X: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, table.Nearest(vector.Vector{}).ID)
	assert.Equal(t, 4, table.Nearest(vector.New(0.5, 0)).ID)
}
