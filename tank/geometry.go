/*
Package tank converts tank geometry and dip readings into fuel volumes.

PURPOSE:
  Two independent paths to a volume:
  1. Geometry: shape + dimensions -> nominal container volume (formula)
  2. Calibration: dip in millimeters -> liters (lookup + interpolation)

  A tank with a calibration table always prefers it; geometry is the
  fallback estimate and the only source of capacity for new tanks.

GEOMETRY:
  Each shape is its own type carrying exactly the dimensions it needs,
  so a cylinder can never be asked for a width.

    HorizontalCylinder  pi * (d/2)^2 * L
    Rectangular         L * W * H
    Capsule             pi * (d/2)^2 * (L - d) + 4/3 * pi * (d/2)^3
    Custom              no formula, requires calibration

  Dimensions are meters, so nominal volume is cubic meters.

CONCURRENCY:
  Everything here is a pure function over values. Safe for concurrent use.

SEE ALSO:
  - calibration.go: Dip lookup tables
  - csv.go: Calibration import/export
  - json.go: Wire form for geometry
*/
package tank

import (
	"math"

	"github.com/warp/fuel-engine/fuel"
)

// =============================================================================
// SHAPES
// =============================================================================

type Shape string

const (
	ShapeHorizontalCylinder Shape = "horizontal_cylinder"
	ShapeRectangular        Shape = "rectangular"
	ShapeCapsule            Shape = "capsule"
	ShapeCustom             Shape = "custom"
)

// Geometry is implemented by every supported tank shape.
type Geometry interface {
	Shape() Shape
	volume() (float64, error)
}

type HorizontalCylinder struct {
	Diameter float64
	Length   float64
}

type Rectangular struct {
	Length float64
	Width  float64
	Height float64
}

// Capsule is a cylinder closed by two hemispherical end caps. Length is the
// overall length, caps included.
type Capsule struct {
	Diameter float64
	Length   float64
}

// Custom tanks have no closed-form volume.
type Custom struct{}

func (HorizontalCylinder) Shape() Shape { return ShapeHorizontalCylinder }
func (Rectangular) Shape() Shape        { return ShapeRectangular }
func (Capsule) Shape() Shape            { return ShapeCapsule }
func (Custom) Shape() Shape             { return ShapeCustom }

// =============================================================================
// NOMINAL VOLUME
// =============================================================================

// Volume is a nominal container volume.
type Volume struct {
	CubicMeters float64
}

func (v Volume) Liters() float64 { return v.CubicMeters * 1000 }

// NominalVolume computes the container volume for g.
//
// Custom shapes, a nil geometry and unspecified (zero) dimensions return
// fuel.ErrCalibrationRequired. Negative dimensions return an
// *fuel.InvalidValueError. A capsule whose length does not exceed its
// diameter returns fuel.ErrInvalidGeometry.
func NominalVolume(g Geometry) (Volume, error) {
	if g == nil {
		return Volume{}, fuel.ErrCalibrationRequired
	}
	v, err := g.volume()
	if err != nil {
		return Volume{}, err
	}
	return Volume{CubicMeters: v}, nil
}

func (c HorizontalCylinder) volume() (float64, error) {
	if err := checkDimensions(dim{"diameter", c.Diameter}, dim{"length", c.Length}); err != nil {
		return 0, err
	}
	r := c.Diameter / 2
	return math.Pi * r * r * c.Length, nil
}

func (b Rectangular) volume() (float64, error) {
	if err := checkDimensions(dim{"length", b.Length}, dim{"width", b.Width}, dim{"height", b.Height}); err != nil {
		return 0, err
	}
	return b.Length * b.Width * b.Height, nil
}

func (c Capsule) volume() (float64, error) {
	if err := checkDimensions(dim{"diameter", c.Diameter}, dim{"length", c.Length}); err != nil {
		return 0, err
	}
	if c.Length <= c.Diameter {
		return 0, &geometryError{msg: "capsule length must exceed diameter"}
	}
	r := c.Diameter / 2
	body := math.Pi * r * r * (c.Length - c.Diameter)
	caps := 4.0 / 3.0 * math.Pi * r * r * r
	return body + caps, nil
}

func (Custom) volume() (float64, error) {
	return 0, fuel.ErrCalibrationRequired
}

type dim struct {
	name  string
	value float64
}

// checkDimensions rejects negative values first so a tank with one bad and
// one missing dimension reports the bad one.
func checkDimensions(dims ...dim) error {
	for _, d := range dims {
		if d.value < 0 || math.IsNaN(d.value) || math.IsInf(d.value, 0) {
			return &fuel.InvalidValueError{Field: d.name, Value: d.value, Reason: "must be a positive number"}
		}
	}
	for _, d := range dims {
		if d.value == 0 {
			return fuel.ErrCalibrationRequired
		}
	}
	return nil
}

type geometryError struct {
	msg string
}

func (e *geometryError) Error() string { return e.msg }
func (e *geometryError) Unwrap() error { return fuel.ErrInvalidGeometry }
