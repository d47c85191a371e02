package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/warp/fuel-engine/fuel"
	"github.com/warp/fuel-engine/reconcile"
	"github.com/warp/fuel-engine/station"
)

// =============================================================================
// SHIFT HANDLERS
// =============================================================================

// ListShifts returns shifts, optionally filtered by ?status=.
func (h *Handler) ListShifts(w http.ResponseWriter, r *http.Request) {
	status, ok := parseStatus(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid status filter", nil)
		return
	}
	shifts, err := h.Service.ListShifts(r.Context(), status)
	if err != nil {
		h.writeServiceError(w, "Failed to list shifts", err)
		return
	}
	dtos := make([]ShiftDTO, len(shifts))
	for i, s := range shifts {
		dtos[i] = h.shiftDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetShift returns a shift; closed shifts include their reconciliation.
func (h *Handler) GetShift(w http.ResponseWriter, r *http.Request) {
	s, err := h.Service.GetShift(r.Context(), fuel.ShiftID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeServiceError(w, "Failed to get shift", err)
		return
	}
	writeJSON(w, http.StatusOK, h.shiftDTO(s))
}

func (h *Handler) OpenShift(w http.ResponseWriter, r *http.Request) {
	var req OpenShiftRequest
	if !decodeBody(w, r, &req) {
		return
	}
	s, err := h.Service.OpenShift(r.Context(), station.OpenShiftInput{
		NozzleID:     fuel.NozzleID(req.NozzleID),
		Nozzleman:    req.Nozzleman,
		FuelType:     fuel.FuelType(req.FuelType),
		StartReading: req.StartReading,
		Rate:         req.Rate,
	})
	if err != nil {
		h.writeServiceError(w, "Failed to open shift", err)
		return
	}
	writeJSON(w, http.StatusCreated, toShiftDTO(s, nil))
}

// CloseShift records end reading and cash; the shift moves to pending approval.
// POST /api/shifts/{id}/close
func (h *Handler) CloseShift(w http.ResponseWriter, r *http.Request) {
	var req CloseShiftRequest
	if !decodeBody(w, r, &req) {
		return
	}
	s, rec, err := h.Service.CloseShift(r.Context(), fuel.ShiftID(chi.URLParam(r, "id")), req.EndReading, req.CashCollected)
	if err != nil {
		h.writeServiceError(w, "Failed to close shift", err)
		return
	}
	writeJSON(w, http.StatusOK, toShiftDTO(s, &rec))
}

// ApproveShift approves regardless of the discrepancy flag.
// POST /api/shifts/{id}/approve
func (h *Handler) ApproveShift(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeReview(w, r)
	if !ok {
		return
	}
	s, err := h.Service.ApproveShift(r.Context(), fuel.ShiftID(chi.URLParam(r, "id")), reviewer(r, req.ReviewerID), req.Note)
	if err != nil {
		h.writeServiceError(w, "Failed to approve shift", err)
		return
	}
	writeJSON(w, http.StatusOK, h.shiftDTO(s))
}

func (h *Handler) RejectShift(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeReview(w, r)
	if !ok {
		return
	}
	s, err := h.Service.RejectShift(r.Context(), fuel.ShiftID(chi.URLParam(r, "id")), reviewer(r, req.ReviewerID), req.Note)
	if err != nil {
		h.writeServiceError(w, "Failed to reject shift", err)
		return
	}
	writeJSON(w, http.StatusOK, h.shiftDTO(s))
}

func (h *Handler) shiftDTO(s reconcile.Shift) ShiftDTO {
	if s.EndReading == nil {
		return toShiftDTO(s, nil)
	}
	rec, err := s.Reconcile(h.Service.Tolerances().Shift)
	if err != nil {
		return toShiftDTO(s, nil)
	}
	return toShiftDTO(s, &rec)
}

// =============================================================================
// SALE HANDLERS
// =============================================================================

func (h *Handler) ListSales(w http.ResponseWriter, r *http.Request) {
	status, ok := parseStatus(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid status filter", nil)
		return
	}
	sales, err := h.Service.ListSales(r.Context(), status)
	if err != nil {
		h.writeServiceError(w, "Failed to list sales", err)
		return
	}
	dtos := make([]SaleDTO, len(sales))
	for i, s := range sales {
		dtos[i] = h.saleDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetSale(w http.ResponseWriter, r *http.Request) {
	s, err := h.Service.GetSale(r.Context(), fuel.SaleID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeServiceError(w, "Failed to get sale", err)
		return
	}
	writeJSON(w, http.StatusOK, h.saleDTO(s))
}

func (h *Handler) RecordSale(w http.ResponseWriter, r *http.Request) {
	var req RecordSaleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	s, rec, err := h.Service.RecordSale(r.Context(), station.RecordSaleInput{
		TankID:        fuel.TankID(req.TankID),
		NozzleID:      fuel.NozzleID(req.NozzleID),
		FuelType:      fuel.FuelType(req.FuelType),
		Liters:        req.Liters,
		Price:         req.Price,
		TotalAmount:   req.TotalAmount,
		PaymentMethod: req.PaymentMethod,
		Customer:      req.Customer,
	})
	if err != nil {
		h.writeServiceError(w, "Failed to record sale", err)
		return
	}
	writeJSON(w, http.StatusCreated, toSaleDTO(s, &rec))
}

// VerifySale verifies a pending sale and deducts its liters from stock.
// POST /api/sales/{id}/verify
func (h *Handler) VerifySale(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeReview(w, r)
	if !ok {
		return
	}
	s, err := h.Service.VerifySale(r.Context(), fuel.SaleID(chi.URLParam(r, "id")), reviewer(r, req.ReviewerID), req.Note)
	if err != nil {
		h.writeServiceError(w, "Failed to verify sale", err)
		return
	}
	writeJSON(w, http.StatusOK, h.saleDTO(s))
}

func (h *Handler) RejectSale(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeReview(w, r)
	if !ok {
		return
	}
	s, err := h.Service.RejectSale(r.Context(), fuel.SaleID(chi.URLParam(r, "id")), reviewer(r, req.ReviewerID), req.Note)
	if err != nil {
		h.writeServiceError(w, "Failed to reject sale", err)
		return
	}
	writeJSON(w, http.StatusOK, h.saleDTO(s))
}

func (h *Handler) saleDTO(s reconcile.Sale) SaleDTO {
	rec, err := s.Reconcile(h.Service.Tolerances().Sales)
	if err != nil {
		return toSaleDTO(s, nil)
	}
	return toSaleDTO(s, &rec)
}

// decodeReview accepts an empty body.
func decodeReview(w http.ResponseWriter, r *http.Request) (ReviewRequest, bool) {
	var req ReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return req, false
	}
	return req, true
}
