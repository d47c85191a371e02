package tank

import (
	"time"

	"github.com/warp/fuel-engine/fuel"
)

// Tank is an underground storage tank holding one fuel type.
type Tank struct {
	ID                 fuel.TankID
	Name               string
	FuelType           fuel.FuelType
	Geometry           Geometry
	Calibration        Table
	CurrentStockLiters float64
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// CapacityLiters prefers the calibration table's top volume and falls back
// to the nominal geometric volume. Zero means capacity is unknown.
func (t Tank) CapacityLiters() float64 {
	if !t.Calibration.IsEmpty() {
		return t.Calibration.Capacity()
	}
	v, err := NominalVolume(t.Geometry)
	if err != nil {
		return 0
	}
	return v.Liters()
}

// Stock classifies the tank's current contents.
func (t Tank) Stock(th Thresholds) StockStatus {
	return ClassifyStock(t.CurrentStockLiters, t.CapacityLiters(), th)
}
