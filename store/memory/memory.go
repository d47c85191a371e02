// Package memory provides an in-memory station.Store for tests and demos.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/warp/fuel-engine/fuel"
	"github.com/warp/fuel-engine/reconcile"
	"github.com/warp/fuel-engine/tank"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu     sync.RWMutex
	tanks  map[fuel.TankID]tank.Tank
	shifts map[fuel.ShiftID]reconcile.Shift
	sales  map[fuel.SaleID]reconcile.Sale
}

func New() *Memory {
	return &Memory{
		tanks:  make(map[fuel.TankID]tank.Tank),
		shifts: make(map[fuel.ShiftID]reconcile.Shift),
		sales:  make(map[fuel.SaleID]reconcile.Sale),
	}
}

// Tables are immutable values, so storing a Tank by value is enough to
// isolate callers from each other.

func (m *Memory) SaveTank(_ context.Context, t tank.Tank) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tanks[t.ID] = t
	return nil
}

func (m *Memory) GetTank(_ context.Context, id fuel.TankID) (tank.Tank, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tanks[id]
	if !ok {
		return tank.Tank{}, fmt.Errorf("tank %s: %w", id, fuel.ErrNotFound)
	}
	return t, nil
}

func (m *Memory) ListTanks(_ context.Context) ([]tank.Tank, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]tank.Tank, 0, len(m.tanks))
	for _, t := range m.tanks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name == out[j].Name {
			return out[i].ID < out[j].ID
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (m *Memory) DeleteTank(_ context.Context, id fuel.TankID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tanks[id]; !ok {
		return fmt.Errorf("tank %s: %w", id, fuel.ErrNotFound)
	}
	delete(m.tanks, id)
	return nil
}

func (m *Memory) SaveGeometry(_ context.Context, id fuel.TankID, g tank.Geometry) error {
	return m.updateTank(id, func(t *tank.Tank) { t.Geometry = g })
}

func (m *Memory) SaveCalibration(_ context.Context, id fuel.TankID, table tank.Table) error {
	return m.updateTank(id, func(t *tank.Tank) { t.Calibration = table })
}

func (m *Memory) SetStock(_ context.Context, id fuel.TankID, liters float64) error {
	return m.updateTank(id, func(t *tank.Tank) { t.CurrentStockLiters = liters })
}

// DeductStock implements reconcile.StockDeducter.
func (m *Memory) DeductStock(_ context.Context, id fuel.TankID, liters decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deductLocked(id, liters)
}

func (m *Memory) deductLocked(id fuel.TankID, liters decimal.Decimal) error {
	l, _ := liters.Float64()
	return m.updateLocked(id, func(t *tank.Tank) {
		t.CurrentStockLiters -= l
		if t.CurrentStockLiters < 0 {
			t.CurrentStockLiters = 0
		}
	})
}

func (m *Memory) updateTank(id fuel.TankID, fn func(*tank.Tank)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateLocked(id, fn)
}

func (m *Memory) updateLocked(id fuel.TankID, fn func(*tank.Tank)) error {
	t, ok := m.tanks[id]
	if !ok {
		return fmt.Errorf("tank %s: %w", id, fuel.ErrNotFound)
	}
	fn(&t)
	m.tanks[id] = t
	return nil
}

// =============================================================================
// SHIFTS & SALES
// =============================================================================

func (m *Memory) SaveShift(_ context.Context, s reconcile.Shift) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shifts[s.ID] = s
	return nil
}

func (m *Memory) GetShift(_ context.Context, id fuel.ShiftID) (reconcile.Shift, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.shifts[id]
	if !ok {
		return reconcile.Shift{}, fmt.Errorf("shift %s: %w", id, fuel.ErrNotFound)
	}
	return s, nil
}

func (m *Memory) ListShifts(_ context.Context, status fuel.Status) ([]reconcile.Shift, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []reconcile.Shift
	for _, s := range m.shifts {
		if status == "" || s.Status == status {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out, nil
}

func (m *Memory) SaveSale(_ context.Context, s reconcile.Sale) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sales[s.ID] = s
	return nil
}

func (m *Memory) GetSale(_ context.Context, id fuel.SaleID) (reconcile.Sale, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sales[id]
	if !ok {
		return reconcile.Sale{}, fmt.Errorf("sale %s: %w", id, fuel.ErrNotFound)
	}
	return s, nil
}

// VerifySale holds the write lock across the status check, the deduction
// and the save, so nothing is applied unless all of it is.
func (m *Memory) VerifySale(_ context.Context, sale reconcile.Sale) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.sales[sale.ID]
	if !ok {
		return fmt.Errorf("sale %s: %w", sale.ID, fuel.ErrNotFound)
	}
	if stored.Status != fuel.StatusPending {
		return &fuel.TransitionError{From: stored.Status, To: fuel.StatusVerified}
	}
	if stored.TankID != "" {
		if err := m.deductLocked(stored.TankID, stored.Liters); err != nil {
			return err
		}
	}
	m.sales[sale.ID] = sale
	return nil
}

func (m *Memory) ListSales(_ context.Context, status fuel.Status) ([]reconcile.Sale, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []reconcile.Sale
	for _, s := range m.sales {
		if status == "" || s.Status == status {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SoldAt.Equal(out[j].SoldAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].SoldAt.Before(out[j].SoldAt)
	})
	return out, nil
}

// =============================================================================
// ADMIN
// =============================================================================

func (m *Memory) Ping(context.Context) error { return nil }

// Reset drops every tank, shift and sale.
func (m *Memory) Reset(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tanks = make(map[fuel.TankID]tank.Tank)
	m.shifts = make(map[fuel.ShiftID]reconcile.Shift)
	m.sales = make(map[fuel.SaleID]reconcile.Sale)
	return nil
}
