/*
store.go - Persistence interface for tanks, shifts and sales

PURPOSE:
  Defines the boundary between the station service and the database.
  The calculators never see a Store; only the service does.

KEY INTERFACES:
  TankStore:  Tank configuration, calibration tables and stock levels
  ShiftStore: Shift records and their review status
  SaleStore:  Sale records and their review status
  Store:      All of the above

LAST WRITER WINS:
  SaveCalibration replaces a tank's whole table. Two operators editing the
  same tank do not merge; the later save wins. No locking is offered.
  Geometry, calibration and stock are written by separate targeted updates,
  so an edit to one never rolls back the others.

VERIFYING SALES:
  VerifySale flips the sale to verified and deducts its liters in one
  transaction. A sale that is no longer pending is refused, so a retried
  verification cannot deduct twice.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite via sqlx
  - store/memory/memory.go: In-memory for tests and demos

NOT FOUND:
  Get* methods return fuel.ErrNotFound (possibly wrapped) for unknown IDs.
*/
package station

import (
	"context"

	"github.com/warp/fuel-engine/fuel"
	"github.com/warp/fuel-engine/reconcile"
	"github.com/warp/fuel-engine/tank"
)

// TankStore persists tanks.
type TankStore interface {
	SaveTank(ctx context.Context, t tank.Tank) error
	GetTank(ctx context.Context, id fuel.TankID) (tank.Tank, error)
	ListTanks(ctx context.Context) ([]tank.Tank, error)
	DeleteTank(ctx context.Context, id fuel.TankID) error

	// SaveGeometry replaces the tank's shape and dimensions only.
	SaveGeometry(ctx context.Context, id fuel.TankID, g tank.Geometry) error

	// SaveCalibration replaces the tank's calibration table wholesale.
	SaveCalibration(ctx context.Context, id fuel.TankID, table tank.Table) error

	// SetStock records the tank's current contents in liters.
	SetStock(ctx context.Context, id fuel.TankID, liters float64) error
}

// ShiftStore persists shifts. SaveShift is an upsert.
type ShiftStore interface {
	SaveShift(ctx context.Context, s reconcile.Shift) error
	GetShift(ctx context.Context, id fuel.ShiftID) (reconcile.Shift, error)
	// ListShifts returns shifts in the given status, or all when status is empty.
	ListShifts(ctx context.Context, status fuel.Status) ([]reconcile.Shift, error)
}

// SaleStore persists sales. SaveSale is an upsert.
type SaleStore interface {
	SaveSale(ctx context.Context, s reconcile.Sale) error
	GetSale(ctx context.Context, id fuel.SaleID) (reconcile.Sale, error)
	ListSales(ctx context.Context, status fuel.Status) ([]reconcile.Sale, error)

	// VerifySale saves sale, already moved to verified, and lowers its
	// tank's stock by sale.Liters (floored at zero) atomically. It fails
	// with fuel.ErrInvalidTransition when the stored sale is not pending.
	VerifySale(ctx context.Context, sale reconcile.Sale) error
}

// Store is everything the service needs.
type Store interface {
	TankStore
	ShiftStore
	SaleStore
}
