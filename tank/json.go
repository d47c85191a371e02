/*
json.go - Wire form for tank geometry and calibration tables

JSON FORMAT:
  {
    "shape": "horizontal_cylinder",
    "dimensions": {"diameter": 2.5, "length": 8}
  }

  Dimension keys per shape:
    horizontal_cylinder  diameter, length
    rectangular          length, width, height
    capsule              diameter, length
    custom               (none)

  Missing keys decode to zero, which NominalVolume reports as
  fuel.ErrCalibrationRequired. Unknown shapes are rejected at decode time.
  Keys belonging to another shape are rejected too.

  A Table marshals as a plain array of points and is re-validated (and
  re-sorted) on unmarshal.
*/
package tank

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/warp/fuel-engine/fuel"
)

// GeometryJSON is the serialized form of a Geometry.
type GeometryJSON struct {
	Shape      Shape              `json:"shape"`
	Dimensions map[string]float64 `json:"dimensions,omitempty"`
}

var shapeKeys = map[Shape][]string{
	ShapeHorizontalCylinder: {"diameter", "length"},
	ShapeRectangular:        {"length", "width", "height"},
	ShapeCapsule:            {"diameter", "length"},
	ShapeCustom:             nil,
}

// DecodeGeometry converts the wire form into a typed Geometry.
func DecodeGeometry(gj GeometryJSON) (Geometry, error) {
	keys, ok := shapeKeys[gj.Shape]
	if !ok {
		return nil, &fuel.InvalidValueError{Field: "shape", Value: gj.Shape, Reason: "unknown tank shape"}
	}
	allowed := make(map[string]bool, len(keys))
	for _, k := range keys {
		allowed[k] = true
	}
	var extra []string
	for k := range gj.Dimensions {
		if !allowed[k] {
			extra = append(extra, k)
		}
	}
	if len(extra) > 0 {
		sort.Strings(extra)
		return nil, &fuel.InvalidValueError{
			Field:  "dimensions",
			Value:  strings.Join(extra, ","),
			Reason: fmt.Sprintf("not used by shape %s", gj.Shape),
		}
	}

	d := gj.Dimensions
	switch gj.Shape {
	case ShapeHorizontalCylinder:
		return HorizontalCylinder{Diameter: d["diameter"], Length: d["length"]}, nil
	case ShapeRectangular:
		return Rectangular{Length: d["length"], Width: d["width"], Height: d["height"]}, nil
	case ShapeCapsule:
		return Capsule{Diameter: d["diameter"], Length: d["length"]}, nil
	default:
		return Custom{}, nil
	}
}

// EncodeGeometry converts g into its wire form. A nil geometry encodes as custom.
func EncodeGeometry(g Geometry) GeometryJSON {
	switch v := g.(type) {
	case HorizontalCylinder:
		return GeometryJSON{Shape: v.Shape(), Dimensions: map[string]float64{"diameter": v.Diameter, "length": v.Length}}
	case Rectangular:
		return GeometryJSON{Shape: v.Shape(), Dimensions: map[string]float64{"length": v.Length, "width": v.Width, "height": v.Height}}
	case Capsule:
		return GeometryJSON{Shape: v.Shape(), Dimensions: map[string]float64{"diameter": v.Diameter, "length": v.Length}}
	default:
		return GeometryJSON{Shape: ShapeCustom}
	}
}

// ParseGeometry decodes raw JSON into a Geometry.
func ParseGeometry(data []byte) (Geometry, error) {
	var gj GeometryJSON
	if err := json.Unmarshal(data, &gj); err != nil {
		return nil, fmt.Errorf("failed to parse geometry JSON: %w", err)
	}
	return DecodeGeometry(gj)
}

func (t Table) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Points())
}

func (t *Table) UnmarshalJSON(data []byte) error {
	var pts []Point
	if err := json.Unmarshal(data, &pts); err != nil {
		return err
	}
	table, err := NewTable(pts)
	if err != nil {
		return err
	}
	*t = table
	return nil
}
