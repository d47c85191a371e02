/*
scenarios.go - Demo station loaders for testing and demonstrations

PURPOSE:

	Provides pre-built stations that populate the database with realistic
	data for demos and manual testing of the dashboard. Each scenario goes
	through the station service, so the same validation, reconciliation
	and logging apply as for real traffic.

AVAILABLE SCENARIOS:

	station-setup:  Three tanks (cylinder, rectangular, custom) with
	                calibration tables and dips at normal, low and
	                critical levels
	shift-review:   station-setup plus one clean shift awaiting approval,
	                one short by 15 and one still open
	sales-audit:    station-setup plus a verified sale, a clean pending
	                sale and one overcharged by 2

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Create tanks and import their calibration CSVs
 3. Record dips so stock levels are set
 4. Open/close shifts or record sales as the scenario needs

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "shift-review"}

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Admin interface (Reset)
  - station/service.go: Every write goes through the service
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/fuel-engine/fuel"
	"github.com/warp/fuel-engine/station"
	"github.com/warp/fuel-engine/tank"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "station-setup",
		Name:        "Station Setup",
		Description: "Three calibrated tanks at normal, low and critical stock",
		Category:    "tanks",
	},
	{
		ID:          "shift-review",
		Name:        "Shift Review",
		Description: "Closed shifts awaiting approval, one outside the cash tolerance",
		Category:    "shifts",
	},
	{
		ID:          "sales-audit",
		Name:        "Sales Audit",
		Description: "Recorded sales with one amount discrepancy to review",
		Category:    "sales",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: current, Name: current})
}

// LoadScenario wipes the store and loads a predefined station.
// POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ScenarioID string `json:"scenario_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var load func(context.Context) error
	switch req.ScenarioID {
	case "station-setup":
		load = h.loadStationSetup
	case "shift-review":
		load = h.loadShiftReview
	case "sales-audit":
		load = h.loadSalesAudit
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}
	if h.admin == nil {
		writeError(w, http.StatusNotImplemented, "Store does not support reset", nil)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ctx := r.Context()
	if err := h.admin.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""

	if err := load(ctx); err != nil {
		h.writeServiceError(w, fmt.Sprintf("Failed to load scenario %s", req.ScenarioID), err)
		return
	}
	h.currentScenario = req.ScenarioID
	h.log.Info("scenario loaded", zap.String("scenario", req.ScenarioID))

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

// Diesel tank: horizontal cylinder, 2.5 m diameter, 8 m long (39270 L).
// Volumes follow the circular segment area at each dip.
const dieselCalibrationCSV = `dip,liters
0,0
500,5591
1000,14668
1250,19635
1500,24602
2000,33679
2500,39270
`

// Petrol tank: 3 x 2 x 2 m box, 6000 L per meter of depth.
const petrolCalibrationCSV = `dip,liters
0,0
500,3000
1000,6000
1500,9000
2000,12000
`

type demoTank struct {
	in  station.CreateTankInput
	csv string
	dip float64
}

var demoTanks = []demoTank{
	{
		in: station.CreateTankInput{
			ID: "diesel-1", Name: "Diesel Main", FuelType: "diesel",
			Geometry: tank.HorizontalCylinder{Diameter: 2.5, Length: 8},
		},
		csv: dieselCalibrationCSV,
		dip: 1500, // ~63% full
	},
	{
		in: station.CreateTankInput{
			ID: "petrol-1", Name: "Petrol", FuelType: "petrol",
			Geometry: tank.Rectangular{Length: 3, Width: 2, Height: 2},
		},
		csv: petrolCalibrationCSV,
		dip: 400, // 20%, low
	},
	{
		in: station.CreateTankInput{
			ID: "kerosene-1", Name: "Kerosene (old tank)", FuelType: "kerosene",
			Geometry: tank.Custom{},
		},
		csv: tank.TemplateCSV,
		dip: 20, // ~3%, critical
	},
}

func (h *Handler) loadStationSetup(ctx context.Context) error {
	for _, dt := range demoTanks {
		if _, err := h.Service.CreateTank(ctx, dt.in); err != nil {
			return err
		}
		if _, err := h.Service.ImportCalibration(ctx, dt.in.ID, strings.NewReader(dt.csv)); err != nil {
			return err
		}
		if _, err := h.Service.RecordDip(ctx, dt.in.ID, dt.dip); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) loadShiftReview(ctx context.Context) error {
	if err := h.loadStationSetup(ctx); err != nil {
		return err
	}

	closed := []struct {
		open      station.OpenShiftInput
		end, cash string
	}{
		// 380.5 L at 90 = 34245, handed over 34250 (+5, within tolerance)
		{station.OpenShiftInput{NozzleID: "n-1", Nozzleman: "Ravi", FuelType: "diesel", StartReading: dec("10450"), Rate: dec("90")}, "10830.5", "34250"},
		// 300 L at 100 = 30000, handed over 29985 (-15, flagged)
		{station.OpenShiftInput{NozzleID: "n-2", Nozzleman: "Priya", FuelType: "petrol", StartReading: dec("5200"), Rate: dec("100")}, "5500", "29985"},
	}
	for _, c := range closed {
		sh, err := h.Service.OpenShift(ctx, c.open)
		if err != nil {
			return err
		}
		if _, _, err := h.Service.CloseShift(ctx, sh.ID, dec(c.end), dec(c.cash)); err != nil {
			return err
		}
	}

	_, err := h.Service.OpenShift(ctx, station.OpenShiftInput{
		NozzleID: "n-3", Nozzleman: "Arun", FuelType: "diesel", StartReading: dec("20000"), Rate: dec("90"),
	})
	return err
}

func (h *Handler) loadSalesAudit(ctx context.Context) error {
	if err := h.loadStationSetup(ctx); err != nil {
		return err
	}

	sales := []station.RecordSaleInput{
		{TankID: "diesel-1", NozzleID: "n-1", FuelType: "diesel", Liters: dec("40"), Price: dec("90"), TotalAmount: dec("3600"), PaymentMethod: "card"},
		{TankID: "diesel-1", NozzleID: "n-1", FuelType: "diesel", Liters: dec("10"), Price: dec("90"), TotalAmount: dec("900.50"), PaymentMethod: "cash"},
		{TankID: "petrol-1", NozzleID: "n-2", FuelType: "petrol", Liters: dec("25.5"), Price: dec("100"), TotalAmount: dec("2552"), PaymentMethod: "cash", Customer: "walk-in"},
	}
	var ids []fuel.SaleID
	for _, in := range sales {
		sale, _, err := h.Service.RecordSale(ctx, in)
		if err != nil {
			return err
		}
		ids = append(ids, sale.ID)
	}

	// The first sale has already been checked by the manager.
	_, err := h.Service.VerifySale(ctx, ids[0], "manager", "card slip matches")
	return err
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }
