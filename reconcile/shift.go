/*
Package reconcile compares reported money against what the metered fuel
says it should be.

PURPOSE:
  Two independent calculators with independently tuned tolerances:
  - Shift cash:   (end - start meter) * rate vs. cash handed over
  - Sales amount: liters * price vs. amount charged

  Both are advisory. A flagged discrepancy never blocks approval; the
  manager may approve anyway. The calculators do no I/O, never log and
  keep no state, so they may be called concurrently from anywhere.

SIGN CONVENTION:
  difference = reported - expected
  Positive: more money than the fuel accounts for (excess)
  Negative: money missing (shortage)

TOLERANCES:
  Absolute currency bands, not percentages:
    shifts  10 units (DefaultShiftTolerance)
    sales    1 unit  (DefaultSalesTolerance)
  They are parameters; config.Reconcile supplies the station's values.
  A negative band is rejected, never flipped to its absolute value.

SEE ALSO:
  - sales.go: Sales amount reconciliation
  - fuel/status.go: Review workflow
*/
package reconcile

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/fuel-engine/fuel"
)

// Default tolerances, in currency units.
var (
	DefaultShiftTolerance = decimal.NewFromInt(10)
	DefaultSalesTolerance = decimal.NewFromInt(1)
)

// Tolerances groups the two bands so they can be configured together.
type Tolerances struct {
	Shift decimal.Decimal
	Sales decimal.Decimal
}

// DefaultTolerances returns the stock bands.
func DefaultTolerances() Tolerances {
	return Tolerances{Shift: DefaultShiftTolerance, Sales: DefaultSalesTolerance}
}

// =============================================================================
// SHIFT CALCULATOR
// =============================================================================

// FuelDispensed is end - start. A meter that runs backwards is rejected.
func FuelDispensed(startReading, endReading decimal.Decimal) (decimal.Decimal, error) {
	if startReading.IsNegative() {
		return decimal.Zero, fuel.Negative("start_reading", startReading)
	}
	if endReading.LessThan(startReading) {
		return decimal.Zero, &fuel.InvalidValueError{
			Field:  "end_reading",
			Value:  endReading,
			Reason: "must not be below start reading " + startReading.String(),
		}
	}
	return endReading.Sub(startReading), nil
}

// ExpectedCash is fuelDispensed * rate.
func ExpectedCash(fuelDispensed, rate decimal.Decimal) (decimal.Decimal, error) {
	if fuelDispensed.IsNegative() {
		return decimal.Zero, fuel.Negative("fuel_dispensed", fuelDispensed)
	}
	if rate.IsNegative() {
		return decimal.Zero, fuel.Negative("rate", rate)
	}
	return fuelDispensed.Mul(rate), nil
}

// ShiftResult classifies a shift's cash handover.
type ShiftResult struct {
	Difference      decimal.Decimal
	WithinTolerance bool
}

// ClassifyShift compares collected cash to expected cash. The boundary is
// inclusive: a difference of exactly tolerance is within tolerance.
// tolerance must not be negative; Shift.Reconcile checks it.
func ClassifyShift(cashCollected, expectedCash, tolerance decimal.Decimal) ShiftResult {
	diff := cashCollected.Sub(expectedCash)
	return ShiftResult{
		Difference:      diff,
		WithinTolerance: diff.Abs().LessThanOrEqual(tolerance),
	}
}

// CheckTolerance rejects a negative band.
func CheckTolerance(tolerance decimal.Decimal) error {
	if tolerance.IsNegative() {
		return fuel.Negative("tolerance", tolerance)
	}
	return nil
}

// =============================================================================
// SHIFT RECORD
// =============================================================================

// Shift is one nozzleman's work period on one nozzle.
type Shift struct {
	ID            fuel.ShiftID
	NozzleID      fuel.NozzleID
	Nozzleman     string
	FuelType      fuel.FuelType
	StartReading  decimal.Decimal
	EndReading    *decimal.Decimal
	Rate          decimal.Decimal
	CashCollected *decimal.Decimal
	Status        fuel.Status
	ReviewedBy    string
	ReviewNote    string
	StartedAt     time.Time
	EndedAt       *time.Time
	ReviewedAt    *time.Time
}

// ShiftReconciliation holds every derived value for a closed shift.
type ShiftReconciliation struct {
	FuelDispensed   decimal.Decimal
	ExpectedCash    decimal.Decimal
	CashCollected   decimal.Decimal
	Difference      decimal.Decimal
	WithinTolerance bool
	Tolerance       decimal.Decimal
}

// Reconcile derives dispensed fuel, expected cash and the discrepancy.
// An active shift has no end reading yet and fails with ErrInvalidValue.
func (s Shift) Reconcile(tolerance decimal.Decimal) (ShiftReconciliation, error) {
	if err := CheckTolerance(tolerance); err != nil {
		return ShiftReconciliation{}, err
	}
	if s.EndReading == nil {
		return ShiftReconciliation{}, &fuel.InvalidValueError{Field: "end_reading", Value: nil, Reason: "shift is not closed"}
	}
	if s.CashCollected == nil {
		return ShiftReconciliation{}, &fuel.InvalidValueError{Field: "cash_collected", Value: nil, Reason: "shift is not closed"}
	}
	if s.CashCollected.IsNegative() {
		return ShiftReconciliation{}, fuel.Negative("cash_collected", *s.CashCollected)
	}
	dispensed, err := FuelDispensed(s.StartReading, *s.EndReading)
	if err != nil {
		return ShiftReconciliation{}, err
	}
	expected, err := ExpectedCash(dispensed, s.Rate)
	if err != nil {
		return ShiftReconciliation{}, err
	}
	res := ClassifyShift(*s.CashCollected, expected, tolerance)
	return ShiftReconciliation{
		FuelDispensed:   dispensed,
		ExpectedCash:    expected,
		CashCollected:   *s.CashCollected,
		Difference:      res.Difference,
		WithinTolerance: res.WithinTolerance,
		Tolerance:       tolerance,
	}, nil
}
