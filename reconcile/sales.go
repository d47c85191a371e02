package reconcile

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/fuel-engine/fuel"
)

// =============================================================================
// SALES CALCULATOR
// =============================================================================

// ExpectedAmount is liters * pricePerLiter.
func ExpectedAmount(liters, pricePerLiter decimal.Decimal) (decimal.Decimal, error) {
	if liters.IsNegative() {
		return decimal.Zero, fuel.Negative("liters", liters)
	}
	if pricePerLiter.IsNegative() {
		return decimal.Zero, fuel.Negative("price", pricePerLiter)
	}
	return liters.Mul(pricePerLiter), nil
}

// SaleResult classifies a sale's charged amount.
type SaleResult struct {
	Difference     decimal.Decimal
	HasDiscrepancy bool
}

// ClassifySale flags a discrepancy only when |difference| exceeds tolerance.
// tolerance must not be negative; Sale.Reconcile checks it.
func ClassifySale(totalAmount, expectedAmount, tolerance decimal.Decimal) SaleResult {
	diff := totalAmount.Sub(expectedAmount)
	return SaleResult{
		Difference:     diff,
		HasDiscrepancy: diff.Abs().GreaterThan(tolerance),
	}
}

// =============================================================================
// SALE RECORD
// =============================================================================

// Sale is a single recorded fuel sale awaiting verification.
type Sale struct {
	ID            fuel.SaleID
	TankID        fuel.TankID
	NozzleID      fuel.NozzleID
	FuelType      fuel.FuelType
	Liters        decimal.Decimal
	Price         decimal.Decimal
	TotalAmount   decimal.Decimal
	PaymentMethod string
	Customer      string
	Status        fuel.Status
	ReviewedBy    string
	ReviewNote    string
	SoldAt        time.Time
	ReviewedAt    *time.Time
}

type SaleReconciliation struct {
	ExpectedAmount decimal.Decimal
	TotalAmount    decimal.Decimal
	Difference     decimal.Decimal
	HasDiscrepancy bool
	Tolerance      decimal.Decimal
}

func (s Sale) Reconcile(tolerance decimal.Decimal) (SaleReconciliation, error) {
	if err := CheckTolerance(tolerance); err != nil {
		return SaleReconciliation{}, err
	}
	if s.TotalAmount.IsNegative() {
		return SaleReconciliation{}, fuel.Negative("total_amount", s.TotalAmount)
	}
	expected, err := ExpectedAmount(s.Liters, s.Price)
	if err != nil {
		return SaleReconciliation{}, err
	}
	res := ClassifySale(s.TotalAmount, expected, tolerance)
	return SaleReconciliation{
		ExpectedAmount: expected,
		TotalAmount:    s.TotalAmount,
		Difference:     res.Difference,
		HasDiscrepancy: res.HasDiscrepancy,
		Tolerance:      tolerance,
	}, nil
}

// StockDeducter receives the liters of a verified sale. The calculator
// supplies the quantity; the deduction itself belongs to the stock keeper.
type StockDeducter interface {
	DeductStock(ctx context.Context, tankID fuel.TankID, liters decimal.Decimal) error
}
