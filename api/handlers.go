/*
handlers.go - HTTP API handlers for the fuel station engine

PURPOSE:
  Exposes the station service and the pure calculators over REST. Handles
  HTTP request/response and JSON serialization; all domain decisions are
  delegated to the station, tank and reconcile packages.

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Service: station workflows over a Store
  - Auth: bearer token validation for mutating routes
  - Admin: database ping and reset (health, scenarios)
  - Log: zap logger

REQUEST FLOW:
  1. Parse HTTP request
  2. Call the service or a calculator
  3. Serialize response
  4. Map errors to status codes

ERROR HANDLING:
  Errors are returned as JSON {"error", "details", "row"}:
  - 400: Invalid values, duplicate dips, bad indexes, CSV parse errors,
         empty calibration tables, shapes requiring calibration
  - 401: Missing or invalid bearer token
  - 404: Tank, shift or sale not found
  - 409: Illegal status transition (e.g. approving an approved shift)
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - tanks.go: Tank and calibration endpoints
  - workflow.go: Shift and sale endpoints
  - scenarios.go: Demo station loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/warp/fuel-engine/fuel"
	"github.com/warp/fuel-engine/reconcile"
	"github.com/warp/fuel-engine/station"
	"github.com/warp/fuel-engine/tank"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Admin is implemented by stores that can report their health and be
// wiped for demo scenarios. *sqlite.Store and *memory.Memory both do.
type Admin interface {
	Ping(ctx context.Context) error
	Reset(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service *station.Service
	auth    *Authenticator
	admin   Admin
	log     *zap.Logger

	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a handler. auth, admin and log may be nil; without an
// admin, health skips the database ping and scenarios cannot be loaded.
func NewHandler(svc *station.Service, auth *Authenticator, admin Admin, log *zap.Logger) *Handler {
	if auth == nil {
		auth = NewAuthenticator("", 0)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{Service: svc, auth: auth, admin: admin, log: log}
}

// Health reports liveness and, when possible, database reachability.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.admin != nil {
		if err := h.admin.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "Database unavailable", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// STATELESS CALCULATORS
// =============================================================================

// CalcNominalVolume computes a geometry's volume without storing anything.
// POST /api/calc/nominal-volume
func (h *Handler) CalcNominalVolume(w http.ResponseWriter, r *http.Request) {
	var req NominalVolumeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	g, err := tank.DecodeGeometry(req.Geometry)
	if err != nil {
		h.writeServiceError(w, "Invalid geometry", err)
		return
	}
	v, err := tank.NominalVolume(g)
	if err != nil {
		h.writeServiceError(w, "Volume unavailable", err)
		return
	}
	writeJSON(w, http.StatusOK, NominalVolumeDTO{CubicMeters: v.CubicMeters, Liters: v.Liters()})
}

// CalcDipVolume interpolates a dip against a caller-supplied table.
// POST /api/calc/dip-volume
func (h *Handler) CalcDipVolume(w http.ResponseWriter, r *http.Request) {
	var req DipVolumeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	table, err := tank.NewTable(req.Points)
	if err != nil {
		h.writeServiceError(w, "Invalid calibration table", err)
		return
	}
	reading, err := tank.VolumeFromDip(table, req.DipMM)
	if err != nil {
		h.writeServiceError(w, "Dip lookup failed", err)
		return
	}
	writeJSON(w, http.StatusOK, reading)
}

// CalcShift reconciles shift figures without storing a shift.
// POST /api/calc/shift
func (h *Handler) CalcShift(w http.ResponseWriter, r *http.Request) {
	var req ShiftCalcRequest
	if !decodeBody(w, r, &req) {
		return
	}
	tol := h.Service.Tolerances().Shift
	if req.Tolerance != nil {
		if err := reconcile.CheckTolerance(*req.Tolerance); err != nil {
			h.writeServiceError(w, "Invalid tolerance", err)
			return
		}
		tol = *req.Tolerance
	}
	sh := reconcile.Shift{
		StartReading:  req.StartReading,
		EndReading:    &req.EndReading,
		Rate:          req.Rate,
		CashCollected: &req.CashCollected,
	}
	rec, err := sh.Reconcile(tol)
	if err != nil {
		h.writeServiceError(w, "Shift reconciliation failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toShiftDTO(sh, &rec).Reconciliation)
}

// CalcSale reconciles sale figures without storing a sale.
// POST /api/calc/sale
func (h *Handler) CalcSale(w http.ResponseWriter, r *http.Request) {
	var req SaleCalcRequest
	if !decodeBody(w, r, &req) {
		return
	}
	tol := h.Service.Tolerances().Sales
	if req.Tolerance != nil {
		if err := reconcile.CheckTolerance(*req.Tolerance); err != nil {
			h.writeServiceError(w, "Invalid tolerance", err)
			return
		}
		tol = *req.Tolerance
	}
	sale := reconcile.Sale{Liters: req.Liters, Price: req.Price, TotalAmount: req.TotalAmount}
	rec, err := sale.Reconcile(tol)
	if err != nil {
		h.writeServiceError(w, "Sale reconciliation failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toSaleDTO(sale, &rec).Reconciliation)
}

// CalcParseCalibration validates a CSV body and returns the parsed table.
// POST /api/calc/calibration/parse
func (h *Handler) CalcParseCalibration(w http.ResponseWriter, r *http.Request) {
	table, err := tank.ParseCSV(r.Body)
	if err != nil {
		h.writeServiceError(w, "Calibration import failed", err)
		return
	}
	writeJSON(w, http.StatusOK, CalibrationDTO{Points: table.Points()})
}

// CalibrationTemplate serves the sample CSV.
// GET /api/calibration/template
func (h *Handler) CalibrationTemplate(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="calibration_template.csv"`)
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(tank.TemplateCSV))
}

// =============================================================================
// DIGEST
// =============================================================================

// Digest returns flagged shifts, flagged sales and tanks needing attention.
// GET /api/digest
func (h *Handler) Digest(w http.ResponseWriter, r *http.Request) {
	d, err := h.Service.DiscrepancyDigest(r.Context())
	if err != nil {
		h.writeServiceError(w, "Failed to build digest", err)
		return
	}
	dto := DigestDTO{
		Shifts: make([]ShiftDTO, 0, len(d.Shifts)),
		Sales:  make([]SaleDTO, 0, len(d.Sales)),
		Stock:  make([]StockDTO, 0, len(d.Stock)),
	}
	for _, f := range d.Shifts {
		rec := f.Reconciliation
		dto.Shifts = append(dto.Shifts, toShiftDTO(f.Shift, &rec))
	}
	for _, f := range d.Sales {
		rec := f.Reconciliation
		dto.Sales = append(dto.Sales, toSaleDTO(f.Sale, &rec))
	}
	for _, ts := range d.Stock {
		dto.Stock = append(dto.Stock, toStockDTO(ts))
	}
	writeJSON(w, http.StatusOK, dto)
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
		var perr *fuel.ParseError
		if errors.As(err, &perr) {
			resp.Row = perr.Row
		}
	}
	writeJSON(w, status, resp)
}

// writeServiceError maps domain errors onto HTTP statuses.
func (h *Handler) writeServiceError(w http.ResponseWriter, message string, err error) {
	switch {
	case fuel.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case fuel.IsConflict(err):
		writeError(w, http.StatusConflict, message, err)
	case fuel.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		h.log.Error(message, zap.Error(err))
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

// reviewer prefers the authenticated subject over the body's reviewer_id.
func reviewer(r *http.Request, fromBody string) string {
	if c, ok := ClaimsFrom(r.Context()); ok && c.Subject != "" {
		return c.Subject
	}
	return strings.TrimSpace(fromBody)
}

func parseStatus(r *http.Request) (fuel.Status, bool) {
	s := fuel.Status(r.URL.Query().Get("status"))
	if s == "" {
		return "", true
	}
	return s, s.Valid()
}
