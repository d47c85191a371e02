/*
calibration.go - Dip-to-volume calibration tables

PURPOSE:
  A calibration table maps a measured dip (mm) to the liters held at that
  depth for one physical tank. Operators enter points by hand or import a
  CSV; lookups interpolate between the two surrounding points.

INVARIANTS:
  - Points are sorted ascending by DipMM
  - DipMM values are unique
  - DipMM and VolumeLiters are >= 0

IMMUTABILITY:
  A Table is a value. AddPoint and RemovePoint return a new Table and leave
  the receiver untouched, so two operators editing the same tank can only
  ever overwrite each other's whole table (last writer wins in storage).

LOOKUP:
  VolumeFromDip binary-searches for the bracketing pair and interpolates
  linearly. Dips outside the table clamp to the nearest boundary and are
  flagged OutOfRange; the table is never extrapolated.
*/
package tank

import (
	"math"
	"sort"

	"github.com/warp/fuel-engine/fuel"
)

// Point is a single calibration measurement.
type Point struct {
	DipMM        float64 `json:"dip_mm"`
	VolumeLiters float64 `json:"volume_liters"`
}

// Table is an immutable calibration table.
type Table struct {
	points []Point
}

// NewTable validates points and returns them as a sorted table.
func NewTable(points []Point) (Table, error) {
	t := Table{}
	for _, p := range points {
		next, err := AddPoint(t, p)
		if err != nil {
			return Table{}, err
		}
		t = next
	}
	return t, nil
}

func (t Table) Len() int      { return len(t.points) }
func (t Table) IsEmpty() bool { return len(t.points) == 0 }
func (t Table) At(i int) Point { return t.points[i] }

// Points returns a copy of the table contents.
func (t Table) Points() []Point {
	out := make([]Point, len(t.points))
	copy(out, t.points)
	return out
}

// Sorted returns a copy of t ordered by dip. Sorting an already sorted
// table yields an identical table.
func (t Table) Sorted() Table {
	pts := t.Points()
	sort.SliceStable(pts, func(i, j int) bool { return pts[i].DipMM < pts[j].DipMM })
	return Table{points: pts}
}

// Capacity returns the largest recorded volume, or zero for an empty table.
func (t Table) Capacity() float64 {
	var max float64
	for _, p := range t.points {
		if p.VolumeLiters > max {
			max = p.VolumeLiters
		}
	}
	return max
}

// =============================================================================
// EDITING
// =============================================================================

// AddPoint returns a new table containing p.
func AddPoint(t Table, p Point) (Table, error) {
	if err := validatePoint(p); err != nil {
		return t, err
	}
	for _, existing := range t.points {
		if existing.DipMM == p.DipMM {
			return t, &fuel.DuplicateReadingError{DipMM: p.DipMM}
		}
	}
	pts := make([]Point, 0, len(t.points)+1)
	pts = append(pts, t.points...)
	pts = append(pts, p)
	return Table{points: pts}.Sorted(), nil
}

// RemovePoint returns a new table without the entry at index.
func RemovePoint(t Table, index int) (Table, error) {
	if index < 0 || index >= len(t.points) {
		return t, &fuel.IndexOutOfRangeError{Index: index, Len: len(t.points)}
	}
	pts := make([]Point, 0, len(t.points)-1)
	pts = append(pts, t.points[:index]...)
	pts = append(pts, t.points[index+1:]...)
	return Table{points: pts}, nil
}

func validatePoint(p Point) error {
	if p.DipMM < 0 || math.IsNaN(p.DipMM) || math.IsInf(p.DipMM, 0) {
		return fuel.Negative("dip_mm", p.DipMM)
	}
	if p.VolumeLiters < 0 || math.IsNaN(p.VolumeLiters) || math.IsInf(p.VolumeLiters, 0) {
		return fuel.Negative("volume_liters", p.VolumeLiters)
	}
	return nil
}

// =============================================================================
// LOOKUP
// =============================================================================

// Bound says which edge of the table an out-of-range dip was clamped to.
type Bound string

const (
	BoundNone  Bound = ""
	BoundBelow Bound = "below_min"
	BoundAbove Bound = "above_max"
)

// DipReading is the result of converting a dip to a volume.
type DipReading struct {
	DipMM      float64 `json:"dip_mm"`
	Liters     float64 `json:"liters"`
	OutOfRange bool    `json:"out_of_range"`
	Bound      Bound   `json:"bound,omitempty"`
}

// VolumeFromDip converts dipMM to liters using t.
func VolumeFromDip(t Table, dipMM float64) (DipReading, error) {
	if t.IsEmpty() {
		return DipReading{}, fuel.ErrConfiguration
	}
	if dipMM < 0 || math.IsNaN(dipMM) || math.IsInf(dipMM, 0) {
		return DipReading{}, fuel.Negative("dip_mm", dipMM)
	}

	pts := t.points
	first, last := pts[0], pts[len(pts)-1]
	switch {
	case dipMM < first.DipMM:
		return DipReading{DipMM: dipMM, Liters: first.VolumeLiters, OutOfRange: true, Bound: BoundBelow}, nil
	case dipMM > last.DipMM:
		return DipReading{DipMM: dipMM, Liters: last.VolumeLiters, OutOfRange: true, Bound: BoundAbove}, nil
	}

	// First index with DipMM >= dipMM; guaranteed in range after the checks above.
	i := sort.Search(len(pts), func(i int) bool { return pts[i].DipMM >= dipMM })
	hi := pts[i]
	if hi.DipMM == dipMM {
		return DipReading{DipMM: dipMM, Liters: hi.VolumeLiters}, nil
	}
	lo := pts[i-1]
	frac := (dipMM - lo.DipMM) / (hi.DipMM - lo.DipMM)
	liters := lo.VolumeLiters + frac*(hi.VolumeLiters-lo.VolumeLiters)
	return DipReading{DipMM: dipMM, Liters: liters}, nil
}
