/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication, decoupling the
  domain types (tank, reconcile) from the external contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

DECIMALS:
  Money and metered liters are decimal.Decimal. Responses encode them as
  JSON strings ("50000.5"); requests accept either strings or numbers.

VALIDATION:
  Validation is done by the domain packages, not here. DTOs are pure
  data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - client/client.go: Decodes these types on the other side
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/fuel-engine/reconcile"
	"github.com/warp/fuel-engine/station"
	"github.com/warp/fuel-engine/tank"
)

// =============================================================================
// TANKS
// =============================================================================

type TankDTO struct {
	ID                 string            `json:"id"`
	Name               string            `json:"name"`
	FuelType           string            `json:"fuel_type"`
	Geometry           tank.GeometryJSON `json:"geometry"`
	CalibrationPoints  int               `json:"calibration_points"`
	CurrentStockLiters float64           `json:"current_stock_liters"`
	Stock              tank.StockStatus  `json:"stock"`
	CreatedAt          string            `json:"created_at,omitempty"`
	UpdatedAt          string            `json:"updated_at,omitempty"`
}

type CreateTankRequest struct {
	ID           string            `json:"id,omitempty"`
	Name         string            `json:"name"`
	FuelType     string            `json:"fuel_type"`
	Geometry     tank.GeometryJSON `json:"geometry"`
	InitialStock float64           `json:"initial_stock_liters"`
}

type UpdateGeometryRequest struct {
	Geometry tank.GeometryJSON `json:"geometry"`
}

type VolumeDTO struct {
	Shape               string   `json:"shape"`
	NominalCubicMeters  *float64 `json:"nominal_cubic_meters,omitempty"`
	NominalLiters       *float64 `json:"nominal_liters,omitempty"`
	RequiresCalibration bool     `json:"requires_calibration"`
	CalibrationPoints   int      `json:"calibration_points"`
	CapacityLiters      float64  `json:"capacity_liters"`
}

type CalibrationDTO struct {
	TankID string       `json:"tank_id,omitempty"`
	Points []tank.Point `json:"points"`
}

type DipRequest struct {
	DipMM float64 `json:"dip_mm"`
}

type StockDTO struct {
	TankID   string           `json:"tank_id"`
	Name     string           `json:"name"`
	FuelType string           `json:"fuel_type"`
	Status   tank.StockStatus `json:"status"`
}

// =============================================================================
// SHIFTS
// =============================================================================

type ShiftDTO struct {
	ID             string                  `json:"id"`
	NozzleID       string                  `json:"nozzle_id"`
	Nozzleman      string                  `json:"nozzleman"`
	FuelType       string                  `json:"fuel_type,omitempty"`
	StartReading   decimal.Decimal         `json:"start_reading"`
	EndReading     *decimal.Decimal        `json:"end_reading,omitempty"`
	Rate           decimal.Decimal         `json:"rate"`
	CashCollected  *decimal.Decimal        `json:"cash_collected,omitempty"`
	Status         string                  `json:"status"`
	ReviewedBy     string                  `json:"reviewed_by,omitempty"`
	ReviewNote     string                  `json:"review_note,omitempty"`
	StartedAt      string                  `json:"started_at"`
	EndedAt        *string                 `json:"ended_at,omitempty"`
	ReviewedAt     *string                 `json:"reviewed_at,omitempty"`
	Reconciliation *ShiftReconciliationDTO `json:"reconciliation,omitempty"`
}

type ShiftReconciliationDTO struct {
	FuelDispensed   decimal.Decimal `json:"fuel_dispensed"`
	ExpectedCash    decimal.Decimal `json:"expected_cash"`
	CashCollected   decimal.Decimal `json:"cash_collected"`
	Difference      decimal.Decimal `json:"difference"`
	WithinTolerance bool            `json:"within_tolerance"`
	Tolerance       decimal.Decimal `json:"tolerance"`
}

type OpenShiftRequest struct {
	NozzleID     string          `json:"nozzle_id"`
	Nozzleman    string          `json:"nozzleman"`
	FuelType     string          `json:"fuel_type"`
	StartReading decimal.Decimal `json:"start_reading"`
	Rate         decimal.Decimal `json:"rate"`
}

type CloseShiftRequest struct {
	EndReading    decimal.Decimal `json:"end_reading"`
	CashCollected decimal.Decimal `json:"cash_collected"`
}

// ReviewRequest approves, verifies or rejects a shift or sale.
type ReviewRequest struct {
	ReviewerID string `json:"reviewer_id"`
	Note       string `json:"note"`
}

// =============================================================================
// SALES
// =============================================================================

type SaleDTO struct {
	ID             string                 `json:"id"`
	TankID         string                 `json:"tank_id,omitempty"`
	NozzleID       string                 `json:"nozzle_id,omitempty"`
	FuelType       string                 `json:"fuel_type,omitempty"`
	Liters         decimal.Decimal        `json:"liters"`
	Price          decimal.Decimal        `json:"price"`
	TotalAmount    decimal.Decimal        `json:"total_amount"`
	PaymentMethod  string                 `json:"payment_method,omitempty"`
	Customer       string                 `json:"customer,omitempty"`
	Status         string                 `json:"status"`
	ReviewedBy     string                 `json:"reviewed_by,omitempty"`
	ReviewNote     string                 `json:"review_note,omitempty"`
	SoldAt         string                 `json:"sold_at"`
	ReviewedAt     *string                `json:"reviewed_at,omitempty"`
	Reconciliation *SaleReconciliationDTO `json:"reconciliation,omitempty"`
}

type SaleReconciliationDTO struct {
	ExpectedAmount decimal.Decimal `json:"expected_amount"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	Difference     decimal.Decimal `json:"difference"`
	HasDiscrepancy bool            `json:"has_discrepancy"`
	Tolerance      decimal.Decimal `json:"tolerance"`
}

type RecordSaleRequest struct {
	TankID        string          `json:"tank_id"`
	NozzleID      string          `json:"nozzle_id"`
	FuelType      string          `json:"fuel_type"`
	Liters        decimal.Decimal `json:"liters"`
	Price         decimal.Decimal `json:"price"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	PaymentMethod string          `json:"payment_method"`
	Customer      string          `json:"customer"`
}

// =============================================================================
// CALCULATORS (stateless)
// =============================================================================

type NominalVolumeRequest struct {
	Geometry tank.GeometryJSON `json:"geometry"`
}

type NominalVolumeDTO struct {
	CubicMeters float64 `json:"cubic_meters"`
	Liters      float64 `json:"liters"`
}

type DipVolumeRequest struct {
	Points []tank.Point `json:"points"`
	DipMM  float64      `json:"dip_mm"`
}

// ShiftCalcRequest reconciles a shift without storing it. Tolerance is optional.
type ShiftCalcRequest struct {
	StartReading  decimal.Decimal  `json:"start_reading"`
	EndReading    decimal.Decimal  `json:"end_reading"`
	Rate          decimal.Decimal  `json:"rate"`
	CashCollected decimal.Decimal  `json:"cash_collected"`
	Tolerance     *decimal.Decimal `json:"tolerance,omitempty"`
}

type SaleCalcRequest struct {
	Liters      decimal.Decimal  `json:"liters"`
	Price       decimal.Decimal  `json:"price"`
	TotalAmount decimal.Decimal  `json:"total_amount"`
	Tolerance   *decimal.Decimal `json:"tolerance,omitempty"`
}

// =============================================================================
// DIGEST, SCENARIOS & ERRORS
// =============================================================================

type DigestDTO struct {
	Shifts []ShiftDTO `json:"shifts"`
	Sales  []SaleDTO  `json:"sales"`
	Stock  []StockDTO `json:"stock"`
}

// ScenarioDTO describes a demo station that can be loaded.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	Row     int    `json:"row,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toTankDTO(t tank.Tank, th tank.Thresholds) TankDTO {
	return TankDTO{
		ID:                 string(t.ID),
		Name:               t.Name,
		FuelType:           string(t.FuelType),
		Geometry:           tank.EncodeGeometry(t.Geometry),
		CalibrationPoints:  t.Calibration.Len(),
		CurrentStockLiters: t.CurrentStockLiters,
		Stock:              t.Stock(th),
		CreatedAt:          formatTime(t.CreatedAt),
		UpdatedAt:          formatTime(t.UpdatedAt),
	}
}

func toShiftDTO(s reconcile.Shift, rec *reconcile.ShiftReconciliation) ShiftDTO {
	dto := ShiftDTO{
		ID:            string(s.ID),
		NozzleID:      string(s.NozzleID),
		Nozzleman:     s.Nozzleman,
		FuelType:      string(s.FuelType),
		StartReading:  s.StartReading,
		EndReading:    s.EndReading,
		Rate:          s.Rate,
		CashCollected: s.CashCollected,
		Status:        string(s.Status),
		ReviewedBy:    s.ReviewedBy,
		ReviewNote:    s.ReviewNote,
		StartedAt:     formatTime(s.StartedAt),
		EndedAt:       formatTimePtr(s.EndedAt),
		ReviewedAt:    formatTimePtr(s.ReviewedAt),
	}
	if rec != nil {
		dto.Reconciliation = &ShiftReconciliationDTO{
			FuelDispensed:   rec.FuelDispensed,
			ExpectedCash:    rec.ExpectedCash,
			CashCollected:   rec.CashCollected,
			Difference:      rec.Difference,
			WithinTolerance: rec.WithinTolerance,
			Tolerance:       rec.Tolerance,
		}
	}
	return dto
}

func toSaleDTO(s reconcile.Sale, rec *reconcile.SaleReconciliation) SaleDTO {
	dto := SaleDTO{
		ID:            string(s.ID),
		TankID:        string(s.TankID),
		NozzleID:      string(s.NozzleID),
		FuelType:      string(s.FuelType),
		Liters:        s.Liters,
		Price:         s.Price,
		TotalAmount:   s.TotalAmount,
		PaymentMethod: s.PaymentMethod,
		Customer:      s.Customer,
		Status:        string(s.Status),
		ReviewedBy:    s.ReviewedBy,
		ReviewNote:    s.ReviewNote,
		SoldAt:        formatTime(s.SoldAt),
		ReviewedAt:    formatTimePtr(s.ReviewedAt),
	}
	if rec != nil {
		dto.Reconciliation = &SaleReconciliationDTO{
			ExpectedAmount: rec.ExpectedAmount,
			TotalAmount:    rec.TotalAmount,
			Difference:     rec.Difference,
			HasDiscrepancy: rec.HasDiscrepancy,
			Tolerance:      rec.Tolerance,
		}
	}
	return dto
}

func toStockDTO(ts station.TankStock) StockDTO {
	return StockDTO{
		TankID:   string(ts.TankID),
		Name:     ts.Name,
		FuelType: string(ts.FuelType),
		Status:   ts.Status,
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}
