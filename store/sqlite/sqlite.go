/*
Package sqlite provides a SQLite-backed implementation of station.Store.

PURPOSE:
  Persists tanks (geometry, calibration, stock), shifts and sales. Only
  authoritative inputs are stored: meter readings, rates, cash, liters,
  prices and charged amounts. Expected cash, differences and discrepancy
  flags are recomputed by the reconcile package on every read.

KEY TABLES:
  tanks:   Geometry and calibration table as JSON, current stock in liters
  shifts:  Meter readings, rate, cash and review status
  sales:   Liters, price, charged amount and review status

DECIMALS:
  Money and metered liters are stored as TEXT through decimal.Decimal's
  sql.Scanner/driver.Valuer so no precision is lost.

CALIBRATION WRITES:
  SaveCalibration replaces the JSON column in a single UPDATE. Concurrent
  editors overwrite each other; the last write wins. SaveGeometry and
  SetStock touch only their own columns.

SALE VERIFICATION:
  VerifySale runs the pending-only status UPDATE and the stock deduction in
  one sqlx transaction.

CONCURRENCY:
  sync.RWMutex plus a single open connection; SQLite allows one writer.

USAGE:
  store, err := sqlite.New("./data/fuel.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - station/store.go: Interface definitions
  - store/memory/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/fuel-engine/fuel"
	"github.com/warp/fuel-engine/reconcile"
	"github.com/warp/fuel-engine/tank"
)

// Store implements station.Store using SQLite.
type Store struct {
	db *sqlx.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sqlx.Connect("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A second connection to ":memory:" would see an empty database.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tanks (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		fuel_type TEXT NOT NULL,
		geometry_json TEXT NOT NULL,
		calibration_json TEXT NOT NULL DEFAULT '[]',
		current_stock REAL NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_tanks_fuel_type ON tanks(fuel_type);

	CREATE TABLE IF NOT EXISTS shifts (
		id TEXT PRIMARY KEY,
		nozzle_id TEXT NOT NULL,
		nozzleman TEXT NOT NULL,
		fuel_type TEXT NOT NULL DEFAULT '',
		start_reading TEXT NOT NULL,
		end_reading TEXT,
		rate TEXT NOT NULL,
		cash_collected TEXT,
		status TEXT NOT NULL,
		reviewed_by TEXT NOT NULL DEFAULT '',
		review_note TEXT NOT NULL DEFAULT '',
		started_at TEXT NOT NULL,
		ended_at TEXT,
		reviewed_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_shifts_status ON shifts(status, started_at);

	CREATE TABLE IF NOT EXISTS sales (
		id TEXT PRIMARY KEY,
		tank_id TEXT NOT NULL DEFAULT '',
		nozzle_id TEXT NOT NULL DEFAULT '',
		fuel_type TEXT NOT NULL DEFAULT '',
		liters TEXT NOT NULL,
		price TEXT NOT NULL,
		total_amount TEXT NOT NULL,
		payment_method TEXT NOT NULL DEFAULT '',
		customer TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		reviewed_by TEXT NOT NULL DEFAULT '',
		review_note TEXT NOT NULL DEFAULT '',
		sold_at TEXT NOT NULL,
		reviewed_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_sales_status ON sales(status, sold_at);
	CREATE INDEX IF NOT EXISTS idx_sales_tank ON sales(tank_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TANKS
// =============================================================================

type tankRow struct {
	ID              string  `db:"id"`
	Name            string  `db:"name"`
	FuelType        string  `db:"fuel_type"`
	GeometryJSON    string  `db:"geometry_json"`
	CalibrationJSON string  `db:"calibration_json"`
	CurrentStock    float64 `db:"current_stock"`
	CreatedAt       string  `db:"created_at"`
	UpdatedAt       string  `db:"updated_at"`
}

func (r tankRow) toTank() (tank.Tank, error) {
	g, err := tank.ParseGeometry([]byte(r.GeometryJSON))
	if err != nil {
		return tank.Tank{}, fmt.Errorf("tank %s: %w", r.ID, err)
	}
	var table tank.Table
	if err := json.Unmarshal([]byte(r.CalibrationJSON), &table); err != nil {
		return tank.Tank{}, fmt.Errorf("tank %s calibration: %w", r.ID, err)
	}
	return tank.Tank{
		ID:                 fuel.TankID(r.ID),
		Name:               r.Name,
		FuelType:           fuel.FuelType(r.FuelType),
		Geometry:           g,
		Calibration:        table,
		CurrentStockLiters: r.CurrentStock,
		CreatedAt:          parseTime(r.CreatedAt),
		UpdatedAt:          parseTime(r.UpdatedAt),
	}, nil
}

// SaveTank upserts a tank, including its calibration table.
func (s *Store) SaveTank(ctx context.Context, t tank.Tank) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	geometryJSON, err := json.Marshal(tank.EncodeGeometry(t.Geometry))
	if err != nil {
		return err
	}
	calibrationJSON, err := json.Marshal(t.Calibration)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO tanks (id, name, fuel_type, geometry_json, calibration_json, current_stock, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			fuel_type = excluded.fuel_type,
			geometry_json = excluded.geometry_json,
			calibration_json = excluded.calibration_json,
			current_stock = excluded.current_stock,
			updated_at = excluded.updated_at
	`
	_, err = s.db.ExecContext(ctx, query,
		t.ID, t.Name, t.FuelType, string(geometryJSON), string(calibrationJSON),
		t.CurrentStockLiters, formatTime(t.CreatedAt), formatTime(t.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save tank: %w", err)
	}
	return nil
}

func (s *Store) GetTank(ctx context.Context, id fuel.TankID) (tank.Tank, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var row tankRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM tanks WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return tank.Tank{}, fmt.Errorf("tank %s: %w", id, fuel.ErrNotFound)
	}
	if err != nil {
		return tank.Tank{}, err
	}
	return row.toTank()
}

func (s *Store) ListTanks(ctx context.Context) ([]tank.Tank, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rows []tankRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM tanks ORDER BY name, id`); err != nil {
		return nil, err
	}
	tanks := make([]tank.Tank, 0, len(rows))
	for _, r := range rows {
		t, err := r.toTank()
		if err != nil {
			return nil, err
		}
		tanks = append(tanks, t)
	}
	return tanks, nil
}

func (s *Store) DeleteTank(ctx context.Context, id fuel.TankID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM tanks WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireAffected(res, "tank", string(id))
}

func (s *Store) SaveGeometry(ctx context.Context, id fuel.TankID, g tank.Geometry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(tank.EncodeGeometry(g))
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE tanks SET geometry_json = ?, updated_at = ? WHERE id = ?`,
		string(data), formatTime(time.Now().UTC()), id)
	if err != nil {
		return err
	}
	return requireAffected(res, "tank", string(id))
}

func (s *Store) SaveCalibration(ctx context.Context, id fuel.TankID, table tank.Table) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(table)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE tanks SET calibration_json = ?, updated_at = ? WHERE id = ?`,
		string(data), formatTime(time.Now().UTC()), id)
	if err != nil {
		return err
	}
	return requireAffected(res, "tank", string(id))
}

func (s *Store) SetStock(ctx context.Context, id fuel.TankID, liters float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE tanks SET current_stock = ?, updated_at = ? WHERE id = ?`,
		liters, formatTime(time.Now().UTC()), id)
	if err != nil {
		return err
	}
	return requireAffected(res, "tank", string(id))
}

// DeductStock implements reconcile.StockDeducter.
func (s *Store) DeductStock(ctx context.Context, id fuel.TankID, liters decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return deductStock(ctx, s.db, id, liters)
}

func deductStock(ctx context.Context, db sqlx.ExecerContext, id fuel.TankID, liters decimal.Decimal) error {
	l, _ := liters.Float64()
	res, err := db.ExecContext(ctx,
		`UPDATE tanks SET current_stock = MAX(current_stock - ?, 0), updated_at = ? WHERE id = ?`,
		l, formatTime(time.Now().UTC()), id)
	if err != nil {
		return err
	}
	return requireAffected(res, "tank", string(id))
}

// =============================================================================
// SHIFTS
// =============================================================================

type shiftRow struct {
	ID            string              `db:"id"`
	NozzleID      string              `db:"nozzle_id"`
	Nozzleman     string              `db:"nozzleman"`
	FuelType      string              `db:"fuel_type"`
	StartReading  decimal.Decimal     `db:"start_reading"`
	EndReading    decimal.NullDecimal `db:"end_reading"`
	Rate          decimal.Decimal     `db:"rate"`
	CashCollected decimal.NullDecimal `db:"cash_collected"`
	Status        string              `db:"status"`
	ReviewedBy    string              `db:"reviewed_by"`
	ReviewNote    string              `db:"review_note"`
	StartedAt     string              `db:"started_at"`
	EndedAt       sql.NullString      `db:"ended_at"`
	ReviewedAt    sql.NullString      `db:"reviewed_at"`
}

func (r shiftRow) toShift() reconcile.Shift {
	return reconcile.Shift{
		ID:            fuel.ShiftID(r.ID),
		NozzleID:      fuel.NozzleID(r.NozzleID),
		Nozzleman:     r.Nozzleman,
		FuelType:      fuel.FuelType(r.FuelType),
		StartReading:  r.StartReading,
		EndReading:    decimalPtr(r.EndReading),
		Rate:          r.Rate,
		CashCollected: decimalPtr(r.CashCollected),
		Status:        fuel.Status(r.Status),
		ReviewedBy:    r.ReviewedBy,
		ReviewNote:    r.ReviewNote,
		StartedAt:     parseTime(r.StartedAt),
		EndedAt:       parseTimePtr(r.EndedAt),
		ReviewedAt:    parseTimePtr(r.ReviewedAt),
	}
}

func (s *Store) SaveShift(ctx context.Context, sh reconcile.Shift) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO shifts (id, nozzle_id, nozzleman, fuel_type, start_reading, end_reading, rate,
			cash_collected, status, reviewed_by, review_note, started_at, ended_at, reviewed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			end_reading = excluded.end_reading,
			cash_collected = excluded.cash_collected,
			status = excluded.status,
			reviewed_by = excluded.reviewed_by,
			review_note = excluded.review_note,
			ended_at = excluded.ended_at,
			reviewed_at = excluded.reviewed_at
	`
	_, err := s.db.ExecContext(ctx, query,
		sh.ID, sh.NozzleID, sh.Nozzleman, sh.FuelType, sh.StartReading, nullDecimal(sh.EndReading),
		sh.Rate, nullDecimal(sh.CashCollected), sh.Status, sh.ReviewedBy, sh.ReviewNote,
		formatTime(sh.StartedAt), formatTimePtr(sh.EndedAt), formatTimePtr(sh.ReviewedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save shift: %w", err)
	}
	return nil
}

func (s *Store) GetShift(ctx context.Context, id fuel.ShiftID) (reconcile.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var row shiftRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM shifts WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return reconcile.Shift{}, fmt.Errorf("shift %s: %w", id, fuel.ErrNotFound)
	}
	if err != nil {
		return reconcile.Shift{}, err
	}
	return row.toShift(), nil
}

func (s *Store) ListShifts(ctx context.Context, status fuel.Status) ([]reconcile.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rows []shiftRow
	var err error
	if status == "" {
		err = s.db.SelectContext(ctx, &rows, `SELECT * FROM shifts ORDER BY started_at, id`)
	} else {
		err = s.db.SelectContext(ctx, &rows, `SELECT * FROM shifts WHERE status = ? ORDER BY started_at, id`, status)
	}
	if err != nil {
		return nil, err
	}
	shifts := make([]reconcile.Shift, len(rows))
	for i, r := range rows {
		shifts[i] = r.toShift()
	}
	return shifts, nil
}

// =============================================================================
// SALES
// =============================================================================

type saleRow struct {
	ID            string          `db:"id"`
	TankID        string          `db:"tank_id"`
	NozzleID      string          `db:"nozzle_id"`
	FuelType      string          `db:"fuel_type"`
	Liters        decimal.Decimal `db:"liters"`
	Price         decimal.Decimal `db:"price"`
	TotalAmount   decimal.Decimal `db:"total_amount"`
	PaymentMethod string          `db:"payment_method"`
	Customer      string          `db:"customer"`
	Status        string          `db:"status"`
	ReviewedBy    string          `db:"reviewed_by"`
	ReviewNote    string          `db:"review_note"`
	SoldAt        string          `db:"sold_at"`
	ReviewedAt    sql.NullString  `db:"reviewed_at"`
}

func (r saleRow) toSale() reconcile.Sale {
	return reconcile.Sale{
		ID:            fuel.SaleID(r.ID),
		TankID:        fuel.TankID(r.TankID),
		NozzleID:      fuel.NozzleID(r.NozzleID),
		FuelType:      fuel.FuelType(r.FuelType),
		Liters:        r.Liters,
		Price:         r.Price,
		TotalAmount:   r.TotalAmount,
		PaymentMethod: r.PaymentMethod,
		Customer:      r.Customer,
		Status:        fuel.Status(r.Status),
		ReviewedBy:    r.ReviewedBy,
		ReviewNote:    r.ReviewNote,
		SoldAt:        parseTime(r.SoldAt),
		ReviewedAt:    parseTimePtr(r.ReviewedAt),
	}
}

func (s *Store) SaveSale(ctx context.Context, sale reconcile.Sale) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO sales (id, tank_id, nozzle_id, fuel_type, liters, price, total_amount,
			payment_method, customer, status, reviewed_by, review_note, sold_at, reviewed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			reviewed_by = excluded.reviewed_by,
			review_note = excluded.review_note,
			reviewed_at = excluded.reviewed_at
	`
	_, err := s.db.ExecContext(ctx, query,
		sale.ID, sale.TankID, sale.NozzleID, sale.FuelType, sale.Liters, sale.Price, sale.TotalAmount,
		sale.PaymentMethod, sale.Customer, sale.Status, sale.ReviewedBy, sale.ReviewNote,
		formatTime(sale.SoldAt), formatTimePtr(sale.ReviewedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save sale: %w", err)
	}
	return nil
}

// VerifySale marks a pending sale verified and deducts its liters from its
// tank. Either both happen or neither does.
func (s *Store) VerifySale(ctx context.Context, sale reconcile.Sale) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var current saleRow
	err = tx.GetContext(ctx, &current, `SELECT * FROM sales WHERE id = ?`, sale.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("sale %s: %w", sale.ID, fuel.ErrNotFound)
	}
	if err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE sales SET status = ?, reviewed_by = ?, review_note = ?, reviewed_at = ?
		WHERE id = ? AND status = ?`,
		fuel.StatusVerified, sale.ReviewedBy, sale.ReviewNote, formatTimePtr(sale.ReviewedAt),
		sale.ID, fuel.StatusPending)
	if err != nil {
		return fmt.Errorf("failed to verify sale: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &fuel.TransitionError{From: fuel.Status(current.Status), To: fuel.StatusVerified}
	}

	if current.TankID != "" {
		if err := deductStock(ctx, tx, fuel.TankID(current.TankID), current.Liters); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) GetSale(ctx context.Context, id fuel.SaleID) (reconcile.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var row saleRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM sales WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return reconcile.Sale{}, fmt.Errorf("sale %s: %w", id, fuel.ErrNotFound)
	}
	if err != nil {
		return reconcile.Sale{}, err
	}
	return row.toSale(), nil
}

func (s *Store) ListSales(ctx context.Context, status fuel.Status) ([]reconcile.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rows []saleRow
	var err error
	if status == "" {
		err = s.db.SelectContext(ctx, &rows, `SELECT * FROM sales ORDER BY sold_at, id`)
	} else {
		err = s.db.SelectContext(ctx, &rows, `SELECT * FROM sales WHERE status = ? ORDER BY sold_at, id`, status)
	}
	if err != nil {
		return nil, err
	}
	sales := make([]reconcile.Sale, len(rows))
	for i, r := range rows {
		sales[i] = r.toSale()
	}
	return sales, nil
}

// Reset deletes all data. Intended for demos and tests.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{"sales", "shifts", "tanks"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to reset %s: %w", table, err)
		}
	}
	return nil
}

// Helper functions

func requireAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, fuel.ErrNotFound)
	}
	return nil
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func decimalPtr(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	v := d.Decimal
	return &v
}

// Times are stored as fixed-width UTC strings so TEXT ordering is chronological.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}
	}
	return t
}

func parseTimePtr(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t := parseTime(s.String)
	return &t
}
