package reconcile_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/fuel-engine/fuel"
	"github.com/warp/fuel-engine/reconcile"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func dp(s string) *decimal.Decimal {
	v := d(s)
	return &v
}

// assertDecimal compares numerically so "50000" and "50000.00" match.
func assertDecimal(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.True(t, d(want).Equal(got), append([]any{"want %s, got %s", want, got.String()}, msgAndArgs...)...)
}

// =============================================================================
// SHIFT CASH
// =============================================================================

func TestShiftReconcile_WithinTolerance(t *testing.T) {
	// GIVEN: 500L dispensed at 100/L and 50005 handed over
	sh := reconcile.Shift{
		StartReading:  d("1000"),
		EndReading:    dp("1500"),
		Rate:          d("100"),
		CashCollected: dp("50005"),
	}

	// WHEN: Reconciling with the default band
	rec, err := sh.Reconcile(reconcile.DefaultShiftTolerance)

	// THEN: Expected 50000, +5 excess, within tolerance
	require.NoError(t, err)
	assertDecimal(t, "500", rec.FuelDispensed)
	assertDecimal(t, "50000", rec.ExpectedCash)
	assertDecimal(t, "5", rec.Difference)
	assert.True(t, rec.WithinTolerance)
}

func TestShiftReconcile_Shortage(t *testing.T) {
	sh := reconcile.Shift{
		StartReading:  d("1000"),
		EndReading:    dp("1500"),
		Rate:          d("100"),
		CashCollected: dp("49985"),
	}

	rec, err := sh.Reconcile(reconcile.DefaultShiftTolerance)

	require.NoError(t, err)
	assertDecimal(t, "-15", rec.Difference)
	assert.False(t, rec.WithinTolerance)
}

func TestClassifyShift_BoundaryIsInclusive(t *testing.T) {
	tol := d("10")
	assert.True(t, reconcile.ClassifyShift(d("50010"), d("50000"), tol).WithinTolerance)
	assert.True(t, reconcile.ClassifyShift(d("49990"), d("50000"), tol).WithinTolerance)
	assert.False(t, reconcile.ClassifyShift(d("50010.01"), d("50000"), tol).WithinTolerance)
}

func TestShiftReconcile_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		shift reconcile.Shift
		field string
	}{
		{"open shift", reconcile.Shift{StartReading: d("1"), Rate: d("1")}, "end_reading"},
		{"no cash", reconcile.Shift{StartReading: d("1"), EndReading: dp("2"), Rate: d("1")}, "cash_collected"},
		{"meter went backwards", reconcile.Shift{StartReading: d("10"), EndReading: dp("5"), Rate: d("1"), CashCollected: dp("0")}, "end_reading"},
		{"negative start", reconcile.Shift{StartReading: d("-1"), EndReading: dp("5"), Rate: d("1"), CashCollected: dp("0")}, "start_reading"},
		{"negative rate", reconcile.Shift{StartReading: d("1"), EndReading: dp("5"), Rate: d("-1"), CashCollected: dp("0")}, "rate"},
		{"negative cash", reconcile.Shift{StartReading: d("1"), EndReading: dp("5"), Rate: d("1"), CashCollected: dp("-3")}, "cash_collected"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.shift.Reconcile(reconcile.DefaultShiftTolerance)
			var ive *fuel.InvalidValueError
			require.ErrorAs(t, err, &ive)
			assert.Equal(t, tt.field, ive.Field)
		})
	}
}

func TestReconcile_NegativeToleranceIsRejected(t *testing.T) {
	shift := reconcile.Shift{StartReading: d("1000"), EndReading: dp("1500"), Rate: d("100"), CashCollected: dp("49985")}
	_, err := shift.Reconcile(d("-20"))
	var ive *fuel.InvalidValueError
	require.ErrorAs(t, err, &ive)
	assert.Equal(t, "tolerance", ive.Field)

	_, err = reconcile.Sale{Liters: d("25.5"), Price: d("100"), TotalAmount: d("2552")}.Reconcile(d("-5"))
	require.ErrorAs(t, err, &ive)
	assert.Equal(t, "tolerance", ive.Field)

	assert.NoError(t, reconcile.CheckTolerance(decimal.Zero))
}

func TestFuelDispensed_ZeroIsAllowed(t *testing.T) {
	got, err := reconcile.FuelDispensed(d("750.5"), d("750.5"))
	require.NoError(t, err)
	assert.True(t, got.IsZero())
}

// =============================================================================
// SALES AMOUNT
// =============================================================================

func TestSaleReconcile_Discrepancy(t *testing.T) {
	// GIVEN: 25.5L at 100/L charged 2552
	sale := reconcile.Sale{Liters: d("25.5"), Price: d("100"), TotalAmount: d("2552")}

	// WHEN: Reconciling with the default band of 1
	rec, err := sale.Reconcile(reconcile.DefaultSalesTolerance)

	// THEN: Expected 2550, +2, flagged
	require.NoError(t, err)
	assertDecimal(t, "2550", rec.ExpectedAmount)
	assertDecimal(t, "2", rec.Difference)
	assert.True(t, rec.HasDiscrepancy)
}

func TestClassifySale_BoundaryIsNotADiscrepancy(t *testing.T) {
	tol := d("1")
	assert.False(t, reconcile.ClassifySale(d("2551"), d("2550"), tol).HasDiscrepancy)
	assert.False(t, reconcile.ClassifySale(d("2549"), d("2550"), tol).HasDiscrepancy)
	assert.True(t, reconcile.ClassifySale(d("2548.99"), d("2550"), tol).HasDiscrepancy)
}

func TestSaleReconcile_ExactDecimal(t *testing.T) {
	// 0.1 * 3 must not drift the way float64 would.
	sale := reconcile.Sale{Liters: d("0.1"), Price: d("3"), TotalAmount: d("0.3")}
	rec, err := sale.Reconcile(decimal.Zero)
	require.NoError(t, err)
	assert.True(t, rec.Difference.IsZero())
	assert.False(t, rec.HasDiscrepancy)
}

func TestSaleReconcile_Rejects(t *testing.T) {
	_, err := reconcile.Sale{Liters: d("-1"), Price: d("1"), TotalAmount: d("1")}.Reconcile(decimal.Zero)
	assert.ErrorIs(t, err, fuel.ErrInvalidValue)

	_, err = reconcile.Sale{Liters: d("1"), Price: d("-1"), TotalAmount: d("1")}.Reconcile(decimal.Zero)
	assert.ErrorIs(t, err, fuel.ErrInvalidValue)

	_, err = reconcile.Sale{Liters: d("1"), Price: d("1"), TotalAmount: d("-1")}.Reconcile(decimal.Zero)
	assert.ErrorIs(t, err, fuel.ErrInvalidValue)
}
