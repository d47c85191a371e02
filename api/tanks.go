package api

import (
	"bytes"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/warp/fuel-engine/fuel"
	"github.com/warp/fuel-engine/station"
	"github.com/warp/fuel-engine/tank"
)

// =============================================================================
// TANK HANDLERS
// =============================================================================

// ListTanks returns all tanks with their stock classification.
func (h *Handler) ListTanks(w http.ResponseWriter, r *http.Request) {
	tanks, err := h.Service.ListTanks(r.Context())
	if err != nil {
		h.writeServiceError(w, "Failed to list tanks", err)
		return
	}
	dtos := make([]TankDTO, len(tanks))
	for i, t := range tanks {
		dtos[i] = toTankDTO(t, h.Service.Thresholds())
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetTank(w http.ResponseWriter, r *http.Request) {
	t, err := h.Service.GetTank(r.Context(), tankID(r))
	if err != nil {
		h.writeServiceError(w, "Failed to get tank", err)
		return
	}
	writeJSON(w, http.StatusOK, toTankDTO(t, h.Service.Thresholds()))
}

// CreateTank creates a tank. Custom shapes are accepted without dimensions.
func (h *Handler) CreateTank(w http.ResponseWriter, r *http.Request) {
	var req CreateTankRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Geometry.Shape == "" {
		req.Geometry.Shape = tank.ShapeCustom
	}
	g, err := tank.DecodeGeometry(req.Geometry)
	if err != nil {
		h.writeServiceError(w, "Invalid geometry", err)
		return
	}
	t, err := h.Service.CreateTank(r.Context(), station.CreateTankInput{
		ID:           fuel.TankID(req.ID),
		Name:         req.Name,
		FuelType:     fuel.FuelType(req.FuelType),
		Geometry:     g,
		InitialStock: req.InitialStock,
	})
	if err != nil {
		h.writeServiceError(w, "Failed to create tank", err)
		return
	}
	writeJSON(w, http.StatusCreated, toTankDTO(t, h.Service.Thresholds()))
}

func (h *Handler) DeleteTank(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.DeleteTank(r.Context(), tankID(r)); err != nil {
		h.writeServiceError(w, "Failed to delete tank", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpdateGeometry replaces a tank's shape and dimensions.
// PUT /api/tanks/{id}/geometry
func (h *Handler) UpdateGeometry(w http.ResponseWriter, r *http.Request) {
	var req UpdateGeometryRequest
	if !decodeBody(w, r, &req) {
		return
	}
	g, err := tank.DecodeGeometry(req.Geometry)
	if err != nil {
		h.writeServiceError(w, "Invalid geometry", err)
		return
	}
	t, err := h.Service.UpdateGeometry(r.Context(), tankID(r), g)
	if err != nil {
		h.writeServiceError(w, "Failed to update geometry", err)
		return
	}
	writeJSON(w, http.StatusOK, toTankDTO(t, h.Service.Thresholds()))
}

// GetTankVolume reports nominal volume, or that calibration is required.
// GET /api/tanks/{id}/volume
func (h *Handler) GetTankVolume(w http.ResponseWriter, r *http.Request) {
	v, err := h.Service.TankVolume(r.Context(), tankID(r))
	if err != nil {
		h.writeServiceError(w, "Failed to compute volume", err)
		return
	}
	dto := VolumeDTO{
		Shape:               string(v.Shape),
		RequiresCalibration: v.RequiresCalibrate,
		CalibrationPoints:   v.CalibrationPoints,
		CapacityLiters:      v.CapacityLiters,
	}
	if v.Nominal != nil {
		m3, liters := v.Nominal.CubicMeters, v.Nominal.Liters()
		dto.NominalCubicMeters = &m3
		dto.NominalLiters = &liters
	}
	writeJSON(w, http.StatusOK, dto)
}

// =============================================================================
// CALIBRATION HANDLERS
// =============================================================================

func (h *Handler) GetCalibration(w http.ResponseWriter, r *http.Request) {
	table, err := h.Service.Calibration(r.Context(), tankID(r))
	if err != nil {
		h.writeServiceError(w, "Failed to get calibration", err)
		return
	}
	writeJSON(w, http.StatusOK, CalibrationDTO{TankID: string(tankID(r)), Points: table.Points()})
}

// AddCalibrationPoint inserts one point.
// POST /api/tanks/{id}/calibration
func (h *Handler) AddCalibrationPoint(w http.ResponseWriter, r *http.Request) {
	var p tank.Point
	if !decodeBody(w, r, &p) {
		return
	}
	table, err := h.Service.AddCalibrationPoint(r.Context(), tankID(r), p)
	if err != nil {
		h.writeServiceError(w, "Failed to add calibration point", err)
		return
	}
	writeJSON(w, http.StatusCreated, CalibrationDTO{TankID: string(tankID(r)), Points: table.Points()})
}

// RemoveCalibrationPoint deletes the point at {index} (0-based, sorted order).
// DELETE /api/tanks/{id}/calibration/{index}
func (h *Handler) RemoveCalibrationPoint(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid index", err)
		return
	}
	table, err := h.Service.RemoveCalibrationPoint(r.Context(), tankID(r), index)
	if err != nil {
		h.writeServiceError(w, "Failed to remove calibration point", err)
		return
	}
	writeJSON(w, http.StatusOK, CalibrationDTO{TankID: string(tankID(r)), Points: table.Points()})
}

// ImportCalibration replaces the table with a CSV body. All-or-nothing.
// POST /api/tanks/{id}/calibration/import
func (h *Handler) ImportCalibration(w http.ResponseWriter, r *http.Request) {
	table, err := h.Service.ImportCalibration(r.Context(), tankID(r), r.Body)
	if err != nil {
		h.writeServiceError(w, "Calibration import failed", err)
		return
	}
	writeJSON(w, http.StatusOK, CalibrationDTO{TankID: string(tankID(r)), Points: table.Points()})
}

// ExportCalibration downloads the table as CSV.
// GET /api/tanks/{id}/calibration/export
func (h *Handler) ExportCalibration(w http.ResponseWriter, r *http.Request) {
	table, err := h.Service.Calibration(r.Context(), tankID(r))
	if err != nil {
		h.writeServiceError(w, "Failed to get calibration", err)
		return
	}
	var buf bytes.Buffer
	if err := tank.WriteCSV(&buf, table); err != nil {
		h.writeServiceError(w, "Failed to export calibration", err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="calibration_`+string(tankID(r))+`.csv"`)
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// =============================================================================
// DIP & STOCK HANDLERS
// =============================================================================

// LookupDip converts ?dip_mm= without recording it.
// GET /api/tanks/{id}/dip?dip_mm=123
func (h *Handler) LookupDip(w http.ResponseWriter, r *http.Request) {
	dip, err := strconv.ParseFloat(r.URL.Query().Get("dip_mm"), 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid dip_mm", err)
		return
	}
	reading, err := h.Service.DipVolume(r.Context(), tankID(r), dip)
	if err != nil {
		h.writeServiceError(w, "Dip lookup failed", err)
		return
	}
	writeJSON(w, http.StatusOK, reading)
}

// RecordDip converts a dip and stores it as current stock.
// POST /api/tanks/{id}/dip
func (h *Handler) RecordDip(w http.ResponseWriter, r *http.Request) {
	var req DipRequest
	if !decodeBody(w, r, &req) {
		return
	}
	reading, err := h.Service.RecordDip(r.Context(), tankID(r), req.DipMM)
	if err != nil {
		h.writeServiceError(w, "Failed to record dip", err)
		return
	}
	writeJSON(w, http.StatusOK, reading)
}

// StockReport lists every tank's stock level.
// GET /api/stock
func (h *Handler) StockReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.Service.StockReport(r.Context())
	if err != nil {
		h.writeServiceError(w, "Failed to build stock report", err)
		return
	}
	dtos := make([]StockDTO, len(report))
	for i, ts := range report {
		dtos[i] = toStockDTO(ts)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func tankID(r *http.Request) fuel.TankID {
	return fuel.TankID(chi.URLParam(r, "id"))
}
