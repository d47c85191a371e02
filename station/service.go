/*
service.go - Station operations built on the pure calculators

PURPOSE:
  Glue between storage and the tank/reconcile calculators. Every method
  loads the authoritative inputs, calls a calculator, and persists only
  authoritative inputs again. Derived values (expected cash, differences,
  interpolated volumes) are recomputed on every read.

OPERATIONS:
  Tanks:        CreateTank, UpdateGeometry, TankVolume, DeleteTank
  Calibration:  AddCalibrationPoint, RemoveCalibrationPoint, ImportCalibration
  Dips/stock:   DipVolume, RecordDip, StockReport
  Shifts:       OpenShift, CloseShift, ReconcileShift, ApproveShift, RejectShift
  Sales:        RecordSale, ReconcileSale, VerifySale, RejectSale
  Reporting:    DiscrepancyDigest

FAILURE BEHAVIOR:
  A failed edit leaves stored state unchanged. Calibration imports are
  parsed completely before anything is saved. Verifying a sale moves its
  status and the tank's stock together.

LOGGING:
  The service logs state changes; the calculators it calls never do.
*/
package station

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/fuel-engine/fuel"
	"github.com/warp/fuel-engine/reconcile"
	"github.com/warp/fuel-engine/tank"
)

// Options configures a Service. Nil or zero fields fall back to defaults.
type Options struct {
	// Tolerances are used exactly as given, zero included. Nil means
	// reconcile.DefaultTolerances.
	Tolerances *reconcile.Tolerances
	Thresholds tank.Thresholds
	Logger     *zap.Logger

	// Deducter receives verified sale liters in place of the store. The sale
	// is saved as verified first and put back to pending if the deduction
	// fails. Nil lets the store verify and deduct in one transaction.
	Deducter reconcile.StockDeducter

	Now   func() time.Time
	NewID func() string
}

// Service implements station workflows.
type Service struct {
	store      Store
	deducter   reconcile.StockDeducter
	tolerances reconcile.Tolerances
	thresholds tank.Thresholds
	log        *zap.Logger
	now        func() time.Time
	newID      func() string
}

// NewService creates a service over store.
func NewService(store Store, opts Options) *Service {
	s := &Service{
		store:      store,
		deducter:   opts.Deducter,
		tolerances: reconcile.DefaultTolerances(),
		thresholds: opts.Thresholds,
		log:        opts.Logger,
		now:        opts.Now,
		newID:      opts.NewID,
	}
	if opts.Tolerances != nil {
		s.tolerances = *opts.Tolerances
	}
	if s.thresholds == (tank.Thresholds{}) {
		s.thresholds = tank.DefaultThresholds
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	return s
}

func (s *Service) Tolerances() reconcile.Tolerances { return s.tolerances }
func (s *Service) Thresholds() tank.Thresholds       { return s.thresholds }

// =============================================================================
// TANKS
// =============================================================================

type CreateTankInput struct {
	ID           fuel.TankID
	Name         string
	FuelType     fuel.FuelType
	Geometry     tank.Geometry
	InitialStock float64
}

// CreateTank stores a new tank. A custom (or incomplete) geometry is
// accepted since a calibration table can follow; invalid dimensions are not.
func (s *Service) CreateTank(ctx context.Context, in CreateTankInput) (tank.Tank, error) {
	if strings.TrimSpace(in.Name) == "" {
		return tank.Tank{}, &fuel.InvalidValueError{Field: "name", Value: in.Name, Reason: "required"}
	}
	if in.FuelType == "" {
		return tank.Tank{}, &fuel.InvalidValueError{Field: "fuel_type", Value: in.FuelType, Reason: "required"}
	}
	if in.InitialStock < 0 {
		return tank.Tank{}, fuel.Negative("initial_stock", in.InitialStock)
	}
	if err := checkGeometry(in.Geometry); err != nil {
		return tank.Tank{}, err
	}
	if in.Geometry == nil {
		in.Geometry = tank.Custom{}
	}
	id := in.ID
	if id == "" {
		id = fuel.TankID(s.newID())
	}
	now := s.now()
	t := tank.Tank{
		ID:                 id,
		Name:               in.Name,
		FuelType:           in.FuelType,
		Geometry:           in.Geometry,
		CurrentStockLiters: in.InitialStock,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.store.SaveTank(ctx, t); err != nil {
		return tank.Tank{}, fmt.Errorf("failed to save tank: %w", err)
	}
	s.log.Info("tank created",
		zap.String("tank_id", string(t.ID)),
		zap.String("shape", string(t.Geometry.Shape())),
		zap.String("fuel_type", string(t.FuelType)))
	return t, nil
}

func checkGeometry(g tank.Geometry) error {
	_, err := tank.NominalVolume(g)
	if err == nil || errors.Is(err, fuel.ErrCalibrationRequired) {
		return nil
	}
	return err
}

func (s *Service) GetTank(ctx context.Context, id fuel.TankID) (tank.Tank, error) {
	return s.store.GetTank(ctx, id)
}

func (s *Service) ListTanks(ctx context.Context) ([]tank.Tank, error) {
	return s.store.ListTanks(ctx)
}

func (s *Service) DeleteTank(ctx context.Context, id fuel.TankID) error {
	if err := s.store.DeleteTank(ctx, id); err != nil {
		return err
	}
	s.log.Info("tank deleted", zap.String("tank_id", string(id)))
	return nil
}

// UpdateGeometry replaces a tank's shape and dimensions. Stock and the
// calibration table are left as stored.
func (s *Service) UpdateGeometry(ctx context.Context, id fuel.TankID, g tank.Geometry) (tank.Tank, error) {
	if err := checkGeometry(g); err != nil {
		return tank.Tank{}, err
	}
	if g == nil {
		g = tank.Custom{}
	}
	if err := s.store.SaveGeometry(ctx, id, g); err != nil {
		if fuel.IsNotFound(err) {
			return tank.Tank{}, err
		}
		return tank.Tank{}, fmt.Errorf("failed to save geometry: %w", err)
	}
	s.log.Info("tank geometry updated",
		zap.String("tank_id", string(id)),
		zap.String("shape", string(g.Shape())))
	return s.store.GetTank(ctx, id)
}

// TankVolume describes what is known about a tank's size.
type TankVolume struct {
	Shape             tank.Shape
	Nominal           *tank.Volume
	RequiresCalibrate bool
	CalibrationPoints int
	CapacityLiters    float64
}

func (s *Service) TankVolume(ctx context.Context, id fuel.TankID) (TankVolume, error) {
	t, err := s.store.GetTank(ctx, id)
	if err != nil {
		return TankVolume{}, err
	}
	out := TankVolume{
		Shape:             t.Geometry.Shape(),
		CalibrationPoints: t.Calibration.Len(),
		CapacityLiters:    t.CapacityLiters(),
	}
	v, err := tank.NominalVolume(t.Geometry)
	switch {
	case err == nil:
		out.Nominal = &v
	case errors.Is(err, fuel.ErrCalibrationRequired):
		out.RequiresCalibrate = t.Calibration.IsEmpty()
	default:
		return TankVolume{}, err
	}
	return out, nil
}

// =============================================================================
// CALIBRATION
// =============================================================================

func (s *Service) Calibration(ctx context.Context, id fuel.TankID) (tank.Table, error) {
	t, err := s.store.GetTank(ctx, id)
	if err != nil {
		return tank.Table{}, err
	}
	return t.Calibration, nil
}

func (s *Service) AddCalibrationPoint(ctx context.Context, id fuel.TankID, p tank.Point) (tank.Table, error) {
	return s.editCalibration(ctx, id, "calibration point added", func(t tank.Table) (tank.Table, error) {
		return tank.AddPoint(t, p)
	})
}

func (s *Service) RemoveCalibrationPoint(ctx context.Context, id fuel.TankID, index int) (tank.Table, error) {
	return s.editCalibration(ctx, id, "calibration point removed", func(t tank.Table) (tank.Table, error) {
		return tank.RemovePoint(t, index)
	})
}

// ImportCalibration replaces a tank's table with the parsed CSV. Nothing is
// saved unless every row parses.
func (s *Service) ImportCalibration(ctx context.Context, id fuel.TankID, r io.Reader) (tank.Table, error) {
	table, err := tank.ParseCSV(r)
	if err != nil {
		return tank.Table{}, err
	}
	return s.editCalibration(ctx, id, "calibration imported", func(tank.Table) (tank.Table, error) {
		return table, nil
	})
}

func (s *Service) editCalibration(ctx context.Context, id fuel.TankID, msg string, edit func(tank.Table) (tank.Table, error)) (tank.Table, error) {
	t, err := s.store.GetTank(ctx, id)
	if err != nil {
		return tank.Table{}, err
	}
	next, err := edit(t.Calibration)
	if err != nil {
		return tank.Table{}, err
	}
	if err := s.store.SaveCalibration(ctx, id, next); err != nil {
		return tank.Table{}, fmt.Errorf("failed to save calibration: %w", err)
	}
	s.log.Info(msg, zap.String("tank_id", string(id)), zap.Int("points", next.Len()))
	return next, nil
}

// =============================================================================
// DIPS & STOCK
// =============================================================================

func (s *Service) DipVolume(ctx context.Context, id fuel.TankID, dipMM float64) (tank.DipReading, error) {
	t, err := s.store.GetTank(ctx, id)
	if err != nil {
		return tank.DipReading{}, err
	}
	return tank.VolumeFromDip(t.Calibration, dipMM)
}

// RecordDip converts a dip and stores the result as the tank's stock.
func (s *Service) RecordDip(ctx context.Context, id fuel.TankID, dipMM float64) (tank.DipReading, error) {
	reading, err := s.DipVolume(ctx, id, dipMM)
	if err != nil {
		return tank.DipReading{}, err
	}
	if err := s.store.SetStock(ctx, id, reading.Liters); err != nil {
		return tank.DipReading{}, fmt.Errorf("failed to record stock: %w", err)
	}
	fields := []zap.Field{
		zap.String("tank_id", string(id)),
		zap.Float64("dip_mm", dipMM),
		zap.Float64("liters", reading.Liters),
	}
	if reading.OutOfRange {
		s.log.Warn("dip outside calibration range, volume clamped", append(fields, zap.String("bound", string(reading.Bound)))...)
	} else {
		s.log.Info("dip recorded", fields...)
	}
	return reading, nil
}

// TankStock pairs a tank with its classification.
type TankStock struct {
	TankID   fuel.TankID
	Name     string
	FuelType fuel.FuelType
	Status   tank.StockStatus
}

func (s *Service) StockReport(ctx context.Context) ([]TankStock, error) {
	tanks, err := s.store.ListTanks(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]TankStock, 0, len(tanks))
	for _, t := range tanks {
		out = append(out, TankStock{
			TankID:   t.ID,
			Name:     t.Name,
			FuelType: t.FuelType,
			Status:   t.Stock(s.thresholds),
		})
	}
	return out, nil
}
