package station

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/fuel-engine/fuel"
	"github.com/warp/fuel-engine/reconcile"
)

// =============================================================================
// SHIFTS
// =============================================================================

type OpenShiftInput struct {
	NozzleID     fuel.NozzleID
	Nozzleman    string
	FuelType     fuel.FuelType
	StartReading decimal.Decimal
	Rate         decimal.Decimal
}

// OpenShift starts an active shift.
func (s *Service) OpenShift(ctx context.Context, in OpenShiftInput) (reconcile.Shift, error) {
	if in.NozzleID == "" {
		return reconcile.Shift{}, &fuel.InvalidValueError{Field: "nozzle_id", Value: in.NozzleID, Reason: "required"}
	}
	if strings.TrimSpace(in.Nozzleman) == "" {
		return reconcile.Shift{}, &fuel.InvalidValueError{Field: "nozzleman", Value: in.Nozzleman, Reason: "required"}
	}
	if in.StartReading.IsNegative() {
		return reconcile.Shift{}, fuel.Negative("start_reading", in.StartReading)
	}
	if in.Rate.IsNegative() {
		return reconcile.Shift{}, fuel.Negative("rate", in.Rate)
	}

	sh := reconcile.Shift{
		ID:           fuel.ShiftID(s.newID()),
		NozzleID:     in.NozzleID,
		Nozzleman:    in.Nozzleman,
		FuelType:     in.FuelType,
		StartReading: in.StartReading,
		Rate:         in.Rate,
		Status:       fuel.StatusActive,
		StartedAt:    s.now(),
	}
	if err := s.store.SaveShift(ctx, sh); err != nil {
		return reconcile.Shift{}, fmt.Errorf("failed to save shift: %w", err)
	}
	s.log.Info("shift opened",
		zap.String("shift_id", string(sh.ID)),
		zap.String("nozzle_id", string(sh.NozzleID)),
		zap.String("nozzleman", sh.Nozzleman))
	return sh, nil
}

// CloseShift records the end reading and cash and sends the shift for
// approval. The reconciliation is returned for display; it is not stored.
func (s *Service) CloseShift(ctx context.Context, id fuel.ShiftID, endReading, cashCollected decimal.Decimal) (reconcile.Shift, reconcile.ShiftReconciliation, error) {
	sh, err := s.store.GetShift(ctx, id)
	if err != nil {
		return reconcile.Shift{}, reconcile.ShiftReconciliation{}, err
	}
	next, err := fuel.Transition(sh.Status, fuel.StatusPendingApproval)
	if err != nil {
		return reconcile.Shift{}, reconcile.ShiftReconciliation{}, err
	}

	closed := sh
	closed.EndReading = &endReading
	closed.CashCollected = &cashCollected
	rec, err := closed.Reconcile(s.tolerances.Shift)
	if err != nil {
		return reconcile.Shift{}, reconcile.ShiftReconciliation{}, err
	}

	now := s.now()
	closed.Status = next
	closed.EndedAt = &now
	if err := s.store.SaveShift(ctx, closed); err != nil {
		return reconcile.Shift{}, reconcile.ShiftReconciliation{}, fmt.Errorf("failed to save shift: %w", err)
	}

	fields := []zap.Field{
		zap.String("shift_id", string(id)),
		zap.String("fuel_dispensed", rec.FuelDispensed.String()),
		zap.String("expected_cash", rec.ExpectedCash.String()),
		zap.String("difference", rec.Difference.String()),
	}
	if rec.WithinTolerance {
		s.log.Info("shift closed", fields...)
	} else {
		s.log.Warn("shift closed with cash discrepancy", fields...)
	}
	return closed, rec, nil
}

func (s *Service) GetShift(ctx context.Context, id fuel.ShiftID) (reconcile.Shift, error) {
	return s.store.GetShift(ctx, id)
}

func (s *Service) ListShifts(ctx context.Context, status fuel.Status) ([]reconcile.Shift, error) {
	return s.store.ListShifts(ctx, status)
}

// ReconcileShift recomputes a closed shift's figures.
func (s *Service) ReconcileShift(ctx context.Context, id fuel.ShiftID) (reconcile.ShiftReconciliation, error) {
	sh, err := s.store.GetShift(ctx, id)
	if err != nil {
		return reconcile.ShiftReconciliation{}, err
	}
	return sh.Reconcile(s.tolerances.Shift)
}

// ApproveShift approves a pending shift, discrepancy or not.
func (s *Service) ApproveShift(ctx context.Context, id fuel.ShiftID, reviewer, note string) (reconcile.Shift, error) {
	return s.reviewShift(ctx, id, fuel.StatusApproved, reviewer, note)
}

func (s *Service) RejectShift(ctx context.Context, id fuel.ShiftID, reviewer, note string) (reconcile.Shift, error) {
	return s.reviewShift(ctx, id, fuel.StatusRejected, reviewer, note)
}

func (s *Service) reviewShift(ctx context.Context, id fuel.ShiftID, to fuel.Status, reviewer, note string) (reconcile.Shift, error) {
	sh, err := s.store.GetShift(ctx, id)
	if err != nil {
		return reconcile.Shift{}, err
	}
	next, err := fuel.Transition(sh.Status, to)
	if err != nil {
		return reconcile.Shift{}, err
	}
	now := s.now()
	sh.Status = next
	sh.ReviewedBy = reviewerOrDefault(reviewer)
	sh.ReviewNote = note
	sh.ReviewedAt = &now
	if err := s.store.SaveShift(ctx, sh); err != nil {
		return reconcile.Shift{}, fmt.Errorf("failed to save shift: %w", err)
	}
	s.log.Info("shift reviewed",
		zap.String("shift_id", string(id)),
		zap.String("status", string(next)),
		zap.String("reviewer", sh.ReviewedBy))
	return sh, nil
}

// =============================================================================
// SALES
// =============================================================================

type RecordSaleInput struct {
	TankID        fuel.TankID
	NozzleID      fuel.NozzleID
	FuelType      fuel.FuelType
	Liters        decimal.Decimal
	Price         decimal.Decimal
	TotalAmount   decimal.Decimal
	PaymentMethod string
	Customer      string
}

// RecordSale stores a pending sale and returns its reconciliation.
func (s *Service) RecordSale(ctx context.Context, in RecordSaleInput) (reconcile.Sale, reconcile.SaleReconciliation, error) {
	sale := reconcile.Sale{
		ID:            fuel.SaleID(s.newID()),
		TankID:        in.TankID,
		NozzleID:      in.NozzleID,
		FuelType:      in.FuelType,
		Liters:        in.Liters,
		Price:         in.Price,
		TotalAmount:   in.TotalAmount,
		PaymentMethod: in.PaymentMethod,
		Customer:      in.Customer,
		Status:        fuel.StatusPending,
		SoldAt:        s.now(),
	}
	rec, err := sale.Reconcile(s.tolerances.Sales)
	if err != nil {
		return reconcile.Sale{}, reconcile.SaleReconciliation{}, err
	}
	if sale.TankID != "" {
		if _, err := s.store.GetTank(ctx, sale.TankID); err != nil {
			return reconcile.Sale{}, reconcile.SaleReconciliation{}, err
		}
	}
	if err := s.store.SaveSale(ctx, sale); err != nil {
		return reconcile.Sale{}, reconcile.SaleReconciliation{}, fmt.Errorf("failed to save sale: %w", err)
	}
	if rec.HasDiscrepancy {
		s.log.Warn("sale recorded with amount discrepancy",
			zap.String("sale_id", string(sale.ID)),
			zap.String("expected_amount", rec.ExpectedAmount.String()),
			zap.String("difference", rec.Difference.String()))
	}
	return sale, rec, nil
}

func (s *Service) GetSale(ctx context.Context, id fuel.SaleID) (reconcile.Sale, error) {
	return s.store.GetSale(ctx, id)
}

func (s *Service) ListSales(ctx context.Context, status fuel.Status) ([]reconcile.Sale, error) {
	return s.store.ListSales(ctx, status)
}

func (s *Service) ReconcileSale(ctx context.Context, id fuel.SaleID) (reconcile.SaleReconciliation, error) {
	sale, err := s.store.GetSale(ctx, id)
	if err != nil {
		return reconcile.SaleReconciliation{}, err
	}
	return sale.Reconcile(s.tolerances.Sales)
}

// VerifySale accepts a pending sale and takes its liters out of the tank.
// The status change and the deduction land together: if either fails the
// sale stays pending and a retry deducts exactly once.
func (s *Service) VerifySale(ctx context.Context, id fuel.SaleID, reviewer, note string) (reconcile.Sale, error) {
	sale, err := s.store.GetSale(ctx, id)
	if err != nil {
		return reconcile.Sale{}, err
	}
	next, err := fuel.Transition(sale.Status, fuel.StatusVerified)
	if err != nil {
		return reconcile.Sale{}, err
	}
	verified := s.reviewed(sale, next, reviewer, note)

	if s.deducter == nil {
		if err := s.store.VerifySale(ctx, verified); err != nil {
			if fuel.IsConflict(err) || fuel.IsNotFound(err) {
				return reconcile.Sale{}, err
			}
			return reconcile.Sale{}, fmt.Errorf("failed to verify sale: %w", err)
		}
	} else {
		if err := s.store.SaveSale(ctx, verified); err != nil {
			return reconcile.Sale{}, fmt.Errorf("failed to save sale: %w", err)
		}
		if sale.TankID != "" {
			if err := s.deducter.DeductStock(ctx, sale.TankID, sale.Liters); err != nil {
				if rerr := s.store.SaveSale(ctx, sale); rerr != nil {
					s.log.Error("failed to put sale back to pending",
						zap.String("sale_id", string(id)), zap.Error(rerr))
				}
				return reconcile.Sale{}, fmt.Errorf("failed to deduct stock: %w", err)
			}
		}
	}
	s.logSaleReview(verified)
	return verified, nil
}

func (s *Service) RejectSale(ctx context.Context, id fuel.SaleID, reviewer, note string) (reconcile.Sale, error) {
	sale, err := s.store.GetSale(ctx, id)
	if err != nil {
		return reconcile.Sale{}, err
	}
	next, err := fuel.Transition(sale.Status, fuel.StatusRejected)
	if err != nil {
		return reconcile.Sale{}, err
	}
	rejected := s.reviewed(sale, next, reviewer, note)
	if err := s.store.SaveSale(ctx, rejected); err != nil {
		return reconcile.Sale{}, fmt.Errorf("failed to save sale: %w", err)
	}
	s.logSaleReview(rejected)
	return rejected, nil
}

func (s *Service) reviewed(sale reconcile.Sale, next fuel.Status, reviewer, note string) reconcile.Sale {
	now := s.now()
	sale.Status = next
	sale.ReviewedBy = reviewerOrDefault(reviewer)
	sale.ReviewNote = note
	sale.ReviewedAt = &now
	return sale
}

func (s *Service) logSaleReview(sale reconcile.Sale) {
	s.log.Info("sale reviewed",
		zap.String("sale_id", string(sale.ID)),
		zap.String("status", string(sale.Status)),
		zap.String("liters", sale.Liters.String()))
}

func reviewerOrDefault(r string) string {
	if r == "" {
		return "admin"
	}
	return r
}

// =============================================================================
// DIGEST
// =============================================================================

// ShiftFlag is a shift awaiting approval whose cash is outside tolerance.
type ShiftFlag struct {
	Shift          reconcile.Shift
	Reconciliation reconcile.ShiftReconciliation
}

// SaleFlag is a pending sale with an amount discrepancy.
type SaleFlag struct {
	Sale           reconcile.Sale
	Reconciliation reconcile.SaleReconciliation
}

// Digest summarizes everything a manager should look at.
type Digest struct {
	Shifts []ShiftFlag
	Sales  []SaleFlag
	Stock  []TankStock
}

func (d Digest) Empty() bool {
	return len(d.Shifts) == 0 && len(d.Sales) == 0 && len(d.Stock) == 0
}

// DiscrepancyDigest collects flagged pending shifts and sales plus tanks
// whose stock needs attention.
func (s *Service) DiscrepancyDigest(ctx context.Context) (Digest, error) {
	var d Digest

	shifts, err := s.store.ListShifts(ctx, fuel.StatusPendingApproval)
	if err != nil {
		return Digest{}, err
	}
	for _, sh := range shifts {
		rec, err := sh.Reconcile(s.tolerances.Shift)
		if err != nil {
			s.log.Warn("skipping unreconcilable shift", zap.String("shift_id", string(sh.ID)), zap.Error(err))
			continue
		}
		if !rec.WithinTolerance {
			d.Shifts = append(d.Shifts, ShiftFlag{Shift: sh, Reconciliation: rec})
		}
	}

	sales, err := s.store.ListSales(ctx, fuel.StatusPending)
	if err != nil {
		return Digest{}, err
	}
	for _, sale := range sales {
		rec, err := sale.Reconcile(s.tolerances.Sales)
		if err != nil {
			s.log.Warn("skipping unreconcilable sale", zap.String("sale_id", string(sale.ID)), zap.Error(err))
			continue
		}
		if rec.HasDiscrepancy {
			d.Sales = append(d.Sales, SaleFlag{Sale: sale, Reconciliation: rec})
		}
	}

	stock, err := s.StockReport(ctx)
	if err != nil {
		return Digest{}, err
	}
	for _, ts := range stock {
		if ts.Status.NeedsAttention() {
			d.Stock = append(d.Stock, ts)
		}
	}
	return d, nil
}
