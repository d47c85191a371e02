package tank_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/fuel-engine/fuel"
	"github.com/warp/fuel-engine/tank"
)

func TestParseGeometry(t *testing.T) {
	g, err := tank.ParseGeometry([]byte(`{"shape":"horizontal_cylinder","dimensions":{"diameter":2.5,"length":8}}`))
	require.NoError(t, err)
	assert.Equal(t, tank.HorizontalCylinder{Diameter: 2.5, Length: 8}, g)

	g, err = tank.ParseGeometry([]byte(`{"shape":"custom"}`))
	require.NoError(t, err)
	assert.Equal(t, tank.Custom{}, g)
}

func TestDecodeGeometry_Rejects(t *testing.T) {
	_, err := tank.DecodeGeometry(tank.GeometryJSON{Shape: "sphere"})
	assert.ErrorIs(t, err, fuel.ErrInvalidValue)

	_, err = tank.DecodeGeometry(tank.GeometryJSON{
		Shape:      tank.ShapeHorizontalCylinder,
		Dimensions: map[string]float64{"diameter": 2, "width": 3},
	})
	var ive *fuel.InvalidValueError
	require.ErrorAs(t, err, &ive)
	assert.Equal(t, "width", ive.Value)
}

func TestDecodeGeometry_MissingKeyNeedsCalibration(t *testing.T) {
	g, err := tank.DecodeGeometry(tank.GeometryJSON{
		Shape:      tank.ShapeRectangular,
		Dimensions: map[string]float64{"length": 2, "width": 2},
	})
	require.NoError(t, err)

	_, err = tank.NominalVolume(g)
	assert.ErrorIs(t, err, fuel.ErrCalibrationRequired)
}

func TestEncodeGeometry_RoundTrip(t *testing.T) {
	for _, g := range []tank.Geometry{
		tank.HorizontalCylinder{Diameter: 2, Length: 10},
		tank.Rectangular{Length: 3, Width: 2, Height: 1},
		tank.Capsule{Diameter: 2, Length: 6},
		tank.Custom{},
	} {
		back, err := tank.DecodeGeometry(tank.EncodeGeometry(g))
		require.NoError(t, err)
		assert.Equal(t, g, back)
	}
	assert.Equal(t, tank.ShapeCustom, tank.EncodeGeometry(nil).Shape)
}

func TestTable_JSON(t *testing.T) {
	table := mustTable(t, 0, 0, 100, 500)

	data, err := json.Marshal(table)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"dip_mm":0,"volume_liters":0},{"dip_mm":100,"volume_liters":500}]`, string(data))

	var back tank.Table
	require.NoError(t, json.Unmarshal([]byte(`[{"dip_mm":100,"volume_liters":500},{"dip_mm":0,"volume_liters":0}]`), &back))
	assert.Equal(t, table.Points(), back.Points())

	err = json.Unmarshal([]byte(`[{"dip_mm":1,"volume_liters":1},{"dip_mm":1,"volume_liters":2}]`), &back)
	assert.ErrorIs(t, err, fuel.ErrDuplicateReading)
}
