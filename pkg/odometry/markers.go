// Package odometry fuses fiducial-marker fixes from a camera with inertial
// dead-reckoning into a field position estimate.
package odometry

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/gwillem/rubeus/pkg/vector"
)

// Marker is a fiducial tag with a fixed field pose. X and Y are in meters,
// Orientation in radians.
type Marker struct {
	ID          int     `json:"id" yaml:"id"`
	X           float64 `json:"x" yaml:"x"`
	Y           float64 `json:"y" yaml:"y"`
	Orientation float64 `json:"orientation" yaml:"orientation"`
}

// Position returns the marker's field offset.
func (m Marker) Position() vector.Vector {
	return vector.New(m.X, m.Y)
}

// MarkerTable is an immutable set of markers keyed by id.
type MarkerTable struct {
	markers []Marker
	byID    map[int]int
}

// NewMarkerTable builds a table. Ids must be unique.
func NewMarkerTable(markers ...Marker) (*MarkerTable, error) {
	if len(markers) == 0 {
		return nil, errors.New("marker table is empty")
	}
	t := &MarkerTable{
		markers: slices.Clone(markers),
		byID:    make(map[int]int, len(markers)),
	}
	for i, m := range markers {
		if _, dup := t.byID[m.ID]; dup {
			return nil, fmt.Errorf("duplicate marker id %d", m.ID)
		}
		t.byID[m.ID] = i
	}
	return t, nil
}

func mustTable(markers ...Marker) *MarkerTable {
	t, err := NewMarkerTable(markers...)
	if err != nil {
		panic(err)
	}
	return t
}

// Official returns the competition field layout.
func Official() *MarkerTable {
	return mustTable(
		Marker{ID: 1, X: 0, Y: 0},
		Marker{ID: 2, X: 0, Y: -1.65},
		Marker{ID: 3, X: 0, Y: -3.3},
		Marker{ID: 4, X: -0.73, Y: -5.51},
		Marker{ID: 5, X: 14.53, Y: -5.6, Orientation: math.Pi},
		Marker{ID: 6, X: 13.8, Y: -3.3, Orientation: math.Pi},
		Marker{ID: 7, X: 13.8, Y: -1.65, Orientation: math.Pi},
		Marker{ID: 8, X: 13.8, Y: 0, Orientation: math.Pi},
	)
}

// Makerspace returns the practice-space layout.
func Makerspace() *MarkerTable {
	return mustTable(
		Marker{ID: 1, X: 0, Y: 0},
		Marker{ID: 5, X: 0, Y: 1},
		Marker{ID: 3, X: 0, Y: -1.5},
		Marker{ID: 6, X: 0, Y: -3.125},
		Marker{ID: 4, X: 3.1, Y: -1, Orientation: math.Pi},
		Marker{ID: 8, X: 3.1, Y: -2.8, Orientation: math.Pi},
	)
}

// Lookup returns the marker with the given id.
func (t *MarkerTable) Lookup(id int) (Marker, bool) {
	i, ok := t.byID[id]
	if !ok {
		return Marker{}, false
	}
	return t.markers[i], true
}

// Markers returns a copy of the table in declaration order.
func (t *MarkerTable) Markers() []Marker {
	return slices.Clone(t.markers)
}

// Len returns the number of markers.
func (t *MarkerTable) Len() int { return len(t.markers) }

// Nearest returns the marker closest to p. Ties go to the earlier entry.
func (t *MarkerTable) Nearest(p vector.Vector) Marker {
	best, bestDist := 0, math.Inf(1)
	for i, m := range t.markers {
		if d := m.Position().Distance(p); d < bestDist {
			best, bestDist = i, d
		}
	}
	return t.markers[best]
}
