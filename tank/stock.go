package tank

import "math"

// StockLevel classifies how full a tank is.
type StockLevel string

const (
	StockCritical StockLevel = "critical"
	StockLow      StockLevel = "low"
	StockNormal   StockLevel = "normal"
	StockOverfill StockLevel = "overfill"
	StockUnknown  StockLevel = "unknown"
)

// Thresholds are percentages of capacity at or below which a level applies.
type Thresholds struct {
	CriticalPercent float64 `yaml:"critical_percent"`
	LowPercent      float64 `yaml:"low_percent"`
}

// DefaultThresholds flags tanks at 10% as critical and 25% as low.
var DefaultThresholds = Thresholds{CriticalPercent: 10, LowPercent: 25}

// StockStatus is the classification of one tank's contents.
type StockStatus struct {
	CurrentLiters  float64    `json:"current_liters"`
	CapacityLiters float64    `json:"capacity_liters"`
	PercentFull    float64    `json:"percent_full"`
	Level          StockLevel `json:"level"`
}

// ClassifyStock places current liters against capacity. Without a usable
// capacity the level is unknown.
func ClassifyStock(current, capacity float64, th Thresholds) StockStatus {
	s := StockStatus{CurrentLiters: current, CapacityLiters: capacity}
	if capacity <= 0 || math.IsNaN(capacity) || math.IsNaN(current) {
		s.Level = StockUnknown
		return s
	}
	s.PercentFull = current / capacity * 100
	switch {
	case s.PercentFull > 100:
		s.Level = StockOverfill
	case s.PercentFull <= th.CriticalPercent:
		s.Level = StockCritical
	case s.PercentFull <= th.LowPercent:
		s.Level = StockLow
	default:
		s.Level = StockNormal
	}
	return s
}

// NeedsAttention is true for critical, low and overfilled tanks.
func (s StockStatus) NeedsAttention() bool {
	return s.Level == StockCritical || s.Level == StockLow || s.Level == StockOverfill
}
