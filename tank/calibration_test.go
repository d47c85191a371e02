package tank_test

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/fuel-engine/fuel"
	"github.com/warp/fuel-engine/tank"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func pts(pairs ...float64) []tank.Point {
	out := make([]tank.Point, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, tank.Point{DipMM: pairs[i], VolumeLiters: pairs[i+1]})
	}
	return out
}

func mustTable(t *testing.T, pairs ...float64) tank.Table {
	t.Helper()
	table, err := tank.NewTable(pts(pairs...))
	require.NoError(t, err)
	return table
}

// =============================================================================
// TABLE EDITING
// =============================================================================

func TestNewTable_SortsByDip(t *testing.T) {
	table := mustTable(t, 200, 1500, 0, 0, 100, 500)

	want := pts(0, 0, 100, 500, 200, 1500)
	if diff := cmp.Diff(want, table.Points()); diff != "" {
		t.Errorf("points mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 1500.0, table.Capacity())
}

func TestTable_SortedIsIdempotent(t *testing.T) {
	table := mustTable(t, 300, 3200, 0, 0, 100, 500)

	once := table.Sorted()
	twice := once.Sorted()

	if diff := cmp.Diff(once.Points(), twice.Points()); diff != "" {
		t.Errorf("second sort changed the table (-once +twice):\n%s", diff)
	}
}

func TestAddPoint_DuplicateLeavesTableUnchanged(t *testing.T) {
	// GIVEN: A table with a point at 100mm
	table := mustTable(t, 0, 0, 100, 500)

	// WHEN: Adding a second point at 100mm
	got, err := tank.AddPoint(table, tank.Point{DipMM: 100, VolumeLiters: 600})

	// THEN: DuplicateReadingError and the original table
	var dup *fuel.DuplicateReadingError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, 100.0, dup.DipMM)
	assert.Equal(t, table.Points(), got.Points())
}

func TestAddPoint_DoesNotMutateInput(t *testing.T) {
	table := mustTable(t, 0, 0, 200, 1500)

	next, err := tank.AddPoint(table, tank.Point{DipMM: 100, VolumeLiters: 500})
	require.NoError(t, err)

	assert.Equal(t, 2, table.Len())
	assert.Equal(t, 3, next.Len())
	assert.Equal(t, 100.0, next.At(1).DipMM)
}

func TestAddPoint_RejectsNegative(t *testing.T) {
	_, err := tank.AddPoint(tank.Table{}, tank.Point{DipMM: -1, VolumeLiters: 10})
	assert.ErrorIs(t, err, fuel.ErrInvalidValue)

	_, err = tank.AddPoint(tank.Table{}, tank.Point{DipMM: 1, VolumeLiters: -10})
	assert.ErrorIs(t, err, fuel.ErrInvalidValue)
}

func TestRemovePoint(t *testing.T) {
	table := mustTable(t, 0, 0, 100, 500, 200, 1500)

	next, err := tank.RemovePoint(table, 1)
	require.NoError(t, err)
	assert.Equal(t, pts(0, 0, 200, 1500), next.Points())

	for _, idx := range []int{-1, 3} {
		got, err := tank.RemovePoint(table, idx)
		var ioor *fuel.IndexOutOfRangeError
		require.ErrorAs(t, err, &ioor, "index %d", idx)
		assert.Equal(t, 3, ioor.Len)
		assert.Equal(t, 3, got.Len())
	}
}

// =============================================================================
// DIP LOOKUP
// =============================================================================

func TestVolumeFromDip(t *testing.T) {
	table := mustTable(t, 0, 0, 100, 500, 200, 1500)

	tests := []struct {
		name       string
		dip        float64
		liters     float64
		outOfRange bool
		bound      tank.Bound
	}{
		{"exact point", 100, 500, false, tank.BoundNone},
		{"first point", 0, 0, false, tank.BoundNone},
		{"last point", 200, 1500, false, tank.BoundNone},
		{"midpoint", 50, 250, false, tank.BoundNone},
		{"upper segment", 150, 1000, false, tank.BoundNone},
		{"above max clamps", 250, 1500, true, tank.BoundAbove},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := tank.VolumeFromDip(table, tt.dip)
			require.NoError(t, err)
			assert.InDelta(t, tt.liters, r.Liters, 1e-9)
			assert.Equal(t, tt.outOfRange, r.OutOfRange)
			assert.Equal(t, tt.bound, r.Bound)
			assert.Equal(t, tt.dip, r.DipMM)
		})
	}
}

func TestVolumeFromDip_BelowMinClamps(t *testing.T) {
	table := mustTable(t, 50, 200, 100, 500)

	r, err := tank.VolumeFromDip(table, 10)
	require.NoError(t, err)
	assert.Equal(t, 200.0, r.Liters)
	assert.True(t, r.OutOfRange)
	assert.Equal(t, tank.BoundBelow, r.Bound)
}

func TestVolumeFromDip_SinglePoint(t *testing.T) {
	table := mustTable(t, 100, 500)

	r, err := tank.VolumeFromDip(table, 100)
	require.NoError(t, err)
	assert.Equal(t, 500.0, r.Liters)
	assert.False(t, r.OutOfRange)
}

func TestVolumeFromDip_Errors(t *testing.T) {
	_, err := tank.VolumeFromDip(tank.Table{}, 10)
	assert.ErrorIs(t, err, fuel.ErrConfiguration)

	table := mustTable(t, 0, 0, 100, 500)
	_, err = tank.VolumeFromDip(table, -5)
	assert.ErrorIs(t, err, fuel.ErrInvalidValue)

	_, err = tank.VolumeFromDip(table, math.NaN())
	assert.ErrorIs(t, err, fuel.ErrInvalidValue)
}

func TestVolumeFromDip_Monotonic(t *testing.T) {
	table := mustTable(t, 0, 0, 100, 500, 200, 1500, 300, 3200)

	prev := -1.0
	for dip := 0.0; dip <= 300; dip += 7 {
		r, err := tank.VolumeFromDip(table, dip)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, r.Liters, prev, "dip %v", dip)
		prev = r.Liters
	}
}
