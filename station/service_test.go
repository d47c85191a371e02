package station_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/warp/fuel-engine/fuel"
	"github.com/warp/fuel-engine/reconcile"
	"github.com/warp/fuel-engine/station"
	"github.com/warp/fuel-engine/store/memory"
	"github.com/warp/fuel-engine/tank"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var testNow = time.Date(2025, time.March, 10, 8, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, opts station.Options) (*station.Service, *memory.Memory) {
	t.Helper()
	store := memory.New()
	n := 0
	if opts.NewID == nil {
		opts.NewID = func() string {
			n++
			return fmt.Sprintf("id-%d", n)
		}
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return testNow }
	}
	return station.NewService(store, opts), store
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func createCalibratedTank(t *testing.T, svc *station.Service, id string) tank.Tank {
	t.Helper()
	ctx := context.Background()
	tk, err := svc.CreateTank(ctx, station.CreateTankInput{
		ID:       fuel.TankID(id),
		Name:     "Tank " + id,
		FuelType: "diesel",
		Geometry: tank.Custom{},
	})
	require.NoError(t, err)
	_, err = svc.ImportCalibration(ctx, tk.ID, strings.NewReader(tank.TemplateCSV))
	require.NoError(t, err)
	return tk
}

// =============================================================================
// TANKS & CALIBRATION
// =============================================================================

func TestCreateTank_Validation(t *testing.T) {
	svc, _ := newTestService(t, station.Options{})
	ctx := context.Background()

	tests := []struct {
		name string
		in   station.CreateTankInput
	}{
		{"no name", station.CreateTankInput{FuelType: "petrol"}},
		{"no fuel type", station.CreateTankInput{Name: "T1"}},
		{"negative stock", station.CreateTankInput{Name: "T1", FuelType: "petrol", InitialStock: -1}},
		{"negative dimension", station.CreateTankInput{Name: "T1", FuelType: "petrol", Geometry: tank.HorizontalCylinder{Diameter: -2, Length: 10}}},
		{"short capsule", station.CreateTankInput{Name: "T1", FuelType: "petrol", Geometry: tank.Capsule{Diameter: 3, Length: 2}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateTank(ctx, tt.in)
			assert.True(t, fuel.IsClientError(err), "got %v", err)
		})
	}
}

func TestCreateTank_DefaultsToCustom(t *testing.T) {
	svc, _ := newTestService(t, station.Options{})

	tk, err := svc.CreateTank(context.Background(), station.CreateTankInput{Name: "T1", FuelType: "petrol"})
	require.NoError(t, err)
	assert.Equal(t, fuel.TankID("id-1"), tk.ID)
	assert.Equal(t, tank.ShapeCustom, tk.Geometry.Shape())
	assert.Equal(t, testNow, tk.CreatedAt)
}

// racingStore records a dip right after the first tank read, standing in
// for an operator working on the same tank at the same moment.
type racingStore struct {
	*memory.Memory
	raced bool
}

func (r *racingStore) GetTank(ctx context.Context, id fuel.TankID) (tank.Tank, error) {
	t, err := r.Memory.GetTank(ctx, id)
	if err == nil && !r.raced {
		r.raced = true
		if err := r.Memory.SetStock(ctx, id, 42); err != nil {
			return tank.Tank{}, err
		}
	}
	return t, err
}

func TestUpdateGeometry_KeepsStockAndCalibration(t *testing.T) {
	mem := memory.New()
	ctx := context.Background()
	setup := station.NewService(mem, station.Options{})
	_, err := setup.CreateTank(ctx, station.CreateTankInput{ID: "t1", Name: "T1", FuelType: "diesel", InitialStock: 1000})
	require.NoError(t, err)
	_, err = setup.ImportCalibration(ctx, "t1", strings.NewReader(tank.TemplateCSV))
	require.NoError(t, err)

	svc := station.NewService(&racingStore{Memory: mem}, station.Options{})
	updated, err := svc.UpdateGeometry(ctx, "t1", tank.Rectangular{Length: 2, Width: 1, Height: 1})
	require.NoError(t, err)
	assert.Equal(t, tank.Rectangular{Length: 2, Width: 1, Height: 1}, updated.Geometry)

	stored, err := mem.GetTank(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 42.0, stored.CurrentStockLiters)
	assert.Equal(t, 4, stored.Calibration.Len())
	assert.Equal(t, tank.ShapeRectangular, stored.Geometry.Shape())

	_, err = svc.UpdateGeometry(ctx, "t1", tank.Rectangular{Length: -1, Width: 1, Height: 1})
	assert.ErrorIs(t, err, fuel.ErrInvalidValue)
	_, err = svc.UpdateGeometry(ctx, "missing", tank.Custom{})
	assert.True(t, fuel.IsNotFound(err))
}

func TestTankVolume(t *testing.T) {
	svc, _ := newTestService(t, station.Options{})
	ctx := context.Background()

	cyl, err := svc.CreateTank(ctx, station.CreateTankInput{
		Name: "Cyl", FuelType: "petrol",
		Geometry: tank.HorizontalCylinder{Diameter: 2, Length: 10},
	})
	require.NoError(t, err)

	v, err := svc.TankVolume(ctx, cyl.ID)
	require.NoError(t, err)
	require.NotNil(t, v.Nominal)
	assert.InDelta(t, 31.416, v.Nominal.CubicMeters, 0.001)
	assert.False(t, v.RequiresCalibrate)

	// GIVEN: A custom tank without a table
	custom, err := svc.CreateTank(ctx, station.CreateTankInput{Name: "Odd", FuelType: "diesel"})
	require.NoError(t, err)

	v, err = svc.TankVolume(ctx, custom.ID)
	require.NoError(t, err)
	assert.Nil(t, v.Nominal)
	assert.True(t, v.RequiresCalibrate)

	// WHEN: A table is imported, THEN calibration is no longer required
	_, err = svc.ImportCalibration(ctx, custom.ID, strings.NewReader(tank.TemplateCSV))
	require.NoError(t, err)
	v, err = svc.TankVolume(ctx, custom.ID)
	require.NoError(t, err)
	assert.False(t, v.RequiresCalibrate)
	assert.Equal(t, 3200.0, v.CapacityLiters)
}

func TestCalibrationEdits(t *testing.T) {
	svc, _ := newTestService(t, station.Options{})
	ctx := context.Background()
	tk := createCalibratedTank(t, svc, "t1")

	table, err := svc.AddCalibrationPoint(ctx, tk.ID, tank.Point{DipMM: 50, VolumeLiters: 200})
	require.NoError(t, err)
	assert.Equal(t, 5, table.Len())
	assert.Equal(t, 50.0, table.At(1).DipMM)

	_, err = svc.AddCalibrationPoint(ctx, tk.ID, tank.Point{DipMM: 50, VolumeLiters: 210})
	assert.ErrorIs(t, err, fuel.ErrDuplicateReading)

	table, err = svc.RemoveCalibrationPoint(ctx, tk.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 4, table.Len())

	_, err = svc.RemoveCalibrationPoint(ctx, tk.ID, 10)
	assert.ErrorIs(t, err, fuel.ErrIndexOutOfRange)

	stored, err := svc.Calibration(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, table.Points(), stored.Points())
}

func TestImportCalibration_FailureKeepsOldTable(t *testing.T) {
	// GIVEN: A tank with the template table
	svc, _ := newTestService(t, station.Options{})
	ctx := context.Background()
	tk := createCalibratedTank(t, svc, "t1")

	// WHEN: Importing a file with a bad row
	_, err := svc.ImportCalibration(ctx, tk.ID, strings.NewReader("0,0\n100,x\n"))

	// THEN: The error names the row and the old table survives
	var perr *fuel.ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 2, perr.Row)

	stored, err := svc.Calibration(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, stored.Len())
}

func TestCalibration_UnknownTank(t *testing.T) {
	svc, _ := newTestService(t, station.Options{})
	_, err := svc.AddCalibrationPoint(context.Background(), "nope", tank.Point{DipMM: 1, VolumeLiters: 1})
	assert.True(t, fuel.IsNotFound(err))
}

// =============================================================================
// DIPS & STOCK
// =============================================================================

func TestRecordDip_UpdatesStockAndWarnsWhenClamped(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	svc, _ := newTestService(t, station.Options{Logger: zap.New(core)})
	ctx := context.Background()
	tk := createCalibratedTank(t, svc, "t1")

	r, err := svc.RecordDip(ctx, tk.ID, 150)
	require.NoError(t, err)
	assert.Equal(t, 1000.0, r.Liters)

	got, err := svc.GetTank(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, 1000.0, got.CurrentStockLiters)

	r, err = svc.RecordDip(ctx, tk.ID, 400)
	require.NoError(t, err)
	assert.True(t, r.OutOfRange)
	assert.Equal(t, 3200.0, r.Liters)
	assert.Equal(t, 1, logs.FilterMessage("dip outside calibration range, volume clamped").Len())
}

func TestDipVolume_EmptyTable(t *testing.T) {
	svc, _ := newTestService(t, station.Options{})
	ctx := context.Background()
	tk, err := svc.CreateTank(ctx, station.CreateTankInput{Name: "T", FuelType: "petrol"})
	require.NoError(t, err)

	_, err = svc.DipVolume(ctx, tk.ID, 10)
	assert.ErrorIs(t, err, fuel.ErrConfiguration)
}

func TestStockReport(t *testing.T) {
	svc, _ := newTestService(t, station.Options{})
	ctx := context.Background()
	a := createCalibratedTank(t, svc, "a")
	b := createCalibratedTank(t, svc, "b")

	_, err := svc.RecordDip(ctx, a.ID, 20) // 100 L of 3200
	require.NoError(t, err)
	_, err = svc.RecordDip(ctx, b.ID, 250) // 2350 L of 3200
	require.NoError(t, err)

	report, err := svc.StockReport(ctx)
	require.NoError(t, err)
	require.Len(t, report, 2)
	assert.Equal(t, tank.StockCritical, report[0].Status.Level)
	assert.Equal(t, tank.StockNormal, report[1].Status.Level)
}

// =============================================================================
// SHIFTS
// =============================================================================

func openShift(t *testing.T, svc *station.Service) fuel.ShiftID {
	t.Helper()
	sh, err := svc.OpenShift(context.Background(), station.OpenShiftInput{
		NozzleID:     "n1",
		Nozzleman:    "Ravi",
		FuelType:     "petrol",
		StartReading: d("1000"),
		Rate:         d("100"),
	})
	require.NoError(t, err)
	assert.Equal(t, fuel.StatusActive, sh.Status)
	return sh.ID
}

func TestShiftLifecycle_ApproveDespiteDiscrepancy(t *testing.T) {
	svc, _ := newTestService(t, station.Options{})
	ctx := context.Background()
	id := openShift(t, svc)

	// WHEN: The shift closes 15 short
	sh, rec, err := svc.CloseShift(ctx, id, d("1500"), d("49985"))
	require.NoError(t, err)

	// THEN: It is pending with a flagged shortage
	assert.Equal(t, fuel.StatusPendingApproval, sh.Status)
	assert.True(t, rec.Difference.Equal(d("-15")))
	assert.False(t, rec.WithinTolerance)

	// AND: The manager may approve it anyway
	sh, err = svc.ApproveShift(ctx, id, "", "short change")
	require.NoError(t, err)
	assert.Equal(t, fuel.StatusApproved, sh.Status)
	assert.Equal(t, "admin", sh.ReviewedBy)
	require.NotNil(t, sh.ReviewedAt)

	_, err = svc.RejectShift(ctx, id, "mgr", "")
	assert.True(t, fuel.IsConflict(err))
}

func TestCloseShift_Errors(t *testing.T) {
	svc, _ := newTestService(t, station.Options{})
	ctx := context.Background()
	id := openShift(t, svc)

	_, _, err := svc.CloseShift(ctx, id, d("900"), d("0"))
	assert.ErrorIs(t, err, fuel.ErrInvalidValue)

	// The failed close left the shift active.
	sh, err := svc.GetShift(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, fuel.StatusActive, sh.Status)

	_, err = svc.ApproveShift(ctx, id, "mgr", "")
	assert.ErrorIs(t, err, fuel.ErrInvalidTransition)

	_, _, err = svc.CloseShift(ctx, "missing", d("1"), d("1"))
	assert.True(t, fuel.IsNotFound(err))
}

func TestShiftTolerance_IsConfigurable(t *testing.T) {
	svc, _ := newTestService(t, station.Options{Tolerances: &reconcile.Tolerances{Shift: d("20"), Sales: d("1")}})
	ctx := context.Background()
	id := openShift(t, svc)

	_, _, err := svc.CloseShift(ctx, id, d("1500"), d("49985"))
	require.NoError(t, err)

	rec, err := svc.ReconcileShift(ctx, id)
	require.NoError(t, err)
	assert.True(t, rec.WithinTolerance)
	assert.True(t, rec.Tolerance.Equal(d("20")))
}

func TestNewService_Tolerances(t *testing.T) {
	svc := station.NewService(memory.New(), station.Options{})
	assert.Equal(t, reconcile.DefaultTolerances(), svc.Tolerances())

	// A strict station runs with zero bands; they are not swapped for defaults.
	strict := station.NewService(memory.New(), station.Options{Tolerances: &reconcile.Tolerances{}})
	assert.True(t, strict.Tolerances().Shift.IsZero())
	assert.True(t, strict.Tolerances().Sales.IsZero())

	ctx := context.Background()
	sale, rec, err := strict.RecordSale(ctx, station.RecordSaleInput{Liters: d("10"), Price: d("100"), TotalAmount: d("1000.50")})
	require.NoError(t, err)
	assert.True(t, rec.HasDiscrepancy)
	assert.Equal(t, fuel.StatusPending, sale.Status)
}

func TestListShifts_FilterByStatus(t *testing.T) {
	svc, _ := newTestService(t, station.Options{})
	ctx := context.Background()
	a := openShift(t, svc)
	openShift(t, svc)
	_, _, err := svc.CloseShift(ctx, a, d("1100"), d("10000"))
	require.NoError(t, err)

	all, err := svc.ListShifts(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	pending, err := svc.ListShifts(ctx, fuel.StatusPendingApproval)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, a, pending[0].ID)
}

// =============================================================================
// SALES
// =============================================================================

func TestSaleVerify_DeductsStock(t *testing.T) {
	svc, _ := newTestService(t, station.Options{})
	ctx := context.Background()
	tk := createCalibratedTank(t, svc, "t1")
	_, err := svc.RecordDip(ctx, tk.ID, 200) // 1500 L
	require.NoError(t, err)

	sale, rec, err := svc.RecordSale(ctx, station.RecordSaleInput{
		TankID: tk.ID, FuelType: "diesel",
		Liters: d("25.5"), Price: d("100"), TotalAmount: d("2552"),
	})
	require.NoError(t, err)
	assert.True(t, rec.HasDiscrepancy)
	assert.Equal(t, fuel.StatusPending, sale.Status)

	// Stock is untouched until verification.
	got, err := svc.GetTank(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, 1500.0, got.CurrentStockLiters)

	sale, err = svc.VerifySale(ctx, sale.ID, "mgr", "")
	require.NoError(t, err)
	assert.Equal(t, fuel.StatusVerified, sale.Status)
	assert.Equal(t, "mgr", sale.ReviewedBy)

	got, err = svc.GetTank(ctx, tk.ID)
	require.NoError(t, err)
	assert.InDelta(t, 1474.5, got.CurrentStockLiters, 1e-9)

	_, err = svc.RejectSale(ctx, sale.ID, "mgr", "")
	assert.ErrorIs(t, err, fuel.ErrInvalidTransition)
}

type failingDeducter struct{}

func (failingDeducter) DeductStock(context.Context, fuel.TankID, decimal.Decimal) error {
	return errors.New("stock service down")
}

func TestSaleVerify_DeductionFailureKeepsPending(t *testing.T) {
	svc, _ := newTestService(t, station.Options{Deducter: failingDeducter{}})
	ctx := context.Background()
	tk := createCalibratedTank(t, svc, "t1")

	sale, _, err := svc.RecordSale(ctx, station.RecordSaleInput{
		TankID: tk.ID, Liters: d("10"), Price: d("100"), TotalAmount: d("1000"),
	})
	require.NoError(t, err)

	_, err = svc.VerifySale(ctx, sale.ID, "mgr", "")
	require.Error(t, err)

	stored, err := svc.GetSale(ctx, sale.ID)
	require.NoError(t, err)
	assert.Equal(t, fuel.StatusPending, stored.Status)
}

// flakyStore fails the next verified-sale write, the way a full disk would.
type flakyStore struct {
	*memory.Memory
	failVerify   bool
	failSaveSale bool
}

var errDiskFull = errors.New("disk full")

func (f *flakyStore) VerifySale(ctx context.Context, sale reconcile.Sale) error {
	if f.failVerify {
		f.failVerify = false
		return errDiskFull
	}
	return f.Memory.VerifySale(ctx, sale)
}

func (f *flakyStore) SaveSale(ctx context.Context, sale reconcile.Sale) error {
	if f.failSaveSale && sale.Status == fuel.StatusVerified {
		f.failSaveSale = false
		return errDiskFull
	}
	return f.Memory.SaveSale(ctx, sale)
}

func pendingSaleFrom900L(t *testing.T, store station.Store, opts station.Options) (*station.Service, fuel.SaleID) {
	t.Helper()
	svc := station.NewService(store, opts)
	ctx := context.Background()
	_, err := svc.CreateTank(ctx, station.CreateTankInput{ID: "t1", Name: "T1", FuelType: "diesel", InitialStock: 900})
	require.NoError(t, err)
	sale, _, err := svc.RecordSale(ctx, station.RecordSaleInput{
		TankID: "t1", Liters: d("100"), Price: d("90"), TotalAmount: d("9000"),
	})
	require.NoError(t, err)
	return svc, sale.ID
}

func TestSaleVerify_FailedWriteDeductsOnceOnRetry(t *testing.T) {
	tests := []struct {
		name  string
		store *flakyStore
		opts  func(*flakyStore) station.Options
	}{
		{
			name:  "store transaction",
			store: &flakyStore{Memory: memory.New(), failVerify: true},
			opts:  func(*flakyStore) station.Options { return station.Options{} },
		},
		{
			name:  "external deducter",
			store: &flakyStore{Memory: memory.New(), failSaveSale: true},
			opts:  func(f *flakyStore) station.Options { return station.Options{Deducter: f.Memory} },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// GIVEN: A pending 100 L sale from a 900 L tank and a store that fails once
			svc, id := pendingSaleFrom900L(t, tt.store, tt.opts(tt.store))
			ctx := context.Background()

			// WHEN: The first verification fails
			_, err := svc.VerifySale(ctx, id, "mgr", "")
			require.ErrorIs(t, err, errDiskFull)

			// THEN: Nothing moved
			sale, err := svc.GetSale(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, fuel.StatusPending, sale.Status)
			tk, err := svc.GetTank(ctx, "t1")
			require.NoError(t, err)
			assert.Equal(t, 900.0, tk.CurrentStockLiters)

			// WHEN: Retrying
			sale, err = svc.VerifySale(ctx, id, "mgr", "")
			require.NoError(t, err)
			assert.Equal(t, fuel.StatusVerified, sale.Status)

			// THEN: The liters left the tank exactly once
			tk, err = svc.GetTank(ctx, "t1")
			require.NoError(t, err)
			assert.Equal(t, 800.0, tk.CurrentStockLiters)

			_, err = svc.VerifySale(ctx, id, "mgr", "")
			assert.ErrorIs(t, err, fuel.ErrInvalidTransition)
		})
	}
}

func TestRecordSale_Rejects(t *testing.T) {
	svc, _ := newTestService(t, station.Options{})
	ctx := context.Background()

	_, _, err := svc.RecordSale(ctx, station.RecordSaleInput{Liters: d("-1"), Price: d("1"), TotalAmount: d("1")})
	assert.ErrorIs(t, err, fuel.ErrInvalidValue)

	_, _, err = svc.RecordSale(ctx, station.RecordSaleInput{TankID: "ghost", Liters: d("1"), Price: d("1"), TotalAmount: d("1")})
	assert.True(t, fuel.IsNotFound(err))

	sales, err := svc.ListSales(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, sales)
}

// =============================================================================
// DIGEST
// =============================================================================

func TestDiscrepancyDigest(t *testing.T) {
	svc, _ := newTestService(t, station.Options{})
	ctx := context.Background()

	// Empty station
	dg, err := svc.DiscrepancyDigest(ctx)
	require.NoError(t, err)
	assert.True(t, dg.Empty())

	// One bad shift, one good shift, one bad sale, one low tank
	bad := openShift(t, svc)
	good := openShift(t, svc)
	_, _, err = svc.CloseShift(ctx, bad, d("1500"), d("49985"))
	require.NoError(t, err)
	_, _, err = svc.CloseShift(ctx, good, d("1500"), d("50005"))
	require.NoError(t, err)

	_, _, err = svc.RecordSale(ctx, station.RecordSaleInput{Liters: d("25.5"), Price: d("100"), TotalAmount: d("2552")})
	require.NoError(t, err)
	_, _, err = svc.RecordSale(ctx, station.RecordSaleInput{Liters: d("25.5"), Price: d("100"), TotalAmount: d("2550")})
	require.NoError(t, err)

	tk := createCalibratedTank(t, svc, "t1")
	_, err = svc.RecordDip(ctx, tk.ID, 10)
	require.NoError(t, err)

	dg, err = svc.DiscrepancyDigest(ctx)
	require.NoError(t, err)
	require.Len(t, dg.Shifts, 1)
	assert.Equal(t, bad, dg.Shifts[0].Shift.ID)
	require.Len(t, dg.Sales, 1)
	assert.True(t, dg.Sales[0].Reconciliation.Difference.Equal(d("2")))
	require.Len(t, dg.Stock, 1)
	assert.Equal(t, tk.ID, dg.Stock[0].TankID)

	// Approved shifts drop out of the digest.
	_, err = svc.ApproveShift(ctx, bad, "mgr", "")
	require.NoError(t, err)
	dg, err = svc.DiscrepancyDigest(ctx)
	require.NoError(t, err)
	assert.Empty(t, dg.Shifts)
}
