/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the chi router, middleware stack and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     zap request logging (see middleware.go)
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the dashboard front end
  5. Auth:       Bearer JWT on mutating routes (only when a secret is set)

ROUTE GROUPS:
  /api/health           Liveness + database ping
  /api/calc/*           Stateless calculators (no storage)
  /api/calibration/*    Template download
  /api/tanks/*          Tanks, calibration tables, dips
  /api/stock            Stock level report
  /api/shifts/*         Shift lifecycle and reconciliation
  /api/sales/*          Sale recording and verification
  /api/digest           Flagged discrepancies and low stock
  /api/scenarios/*      Demo station loaders (reset the database)

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, corsOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(RequestLogger(h.log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)

		// Read-only and pure computation routes
		r.Route("/calc", func(r chi.Router) {
			r.Post("/nominal-volume", h.CalcNominalVolume)
			r.Post("/dip-volume", h.CalcDipVolume)
			r.Post("/shift", h.CalcShift)
			r.Post("/sale", h.CalcSale)
			r.Post("/calibration/parse", h.CalcParseCalibration)
		})
		r.Get("/calibration/template", h.CalibrationTemplate)
		r.Get("/stock", h.StockReport)
		r.Get("/digest", h.Digest)

		// Demo data (resets the database)
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.With(h.auth.Middleware).Post("/load", h.LoadScenario)
		})

		r.Route("/tanks", func(r chi.Router) {
			r.Get("/", h.ListTanks)
			r.Get("/{id}", h.GetTank)
			r.Get("/{id}/volume", h.GetTankVolume)
			r.Get("/{id}/calibration", h.GetCalibration)
			r.Get("/{id}/calibration/export", h.ExportCalibration)
			r.Get("/{id}/dip", h.LookupDip)

			r.Group(func(r chi.Router) {
				r.Use(h.auth.Middleware)
				r.Post("/", h.CreateTank)
				r.Delete("/{id}", h.DeleteTank)
				r.Put("/{id}/geometry", h.UpdateGeometry)
				r.Post("/{id}/calibration", h.AddCalibrationPoint)
				r.Delete("/{id}/calibration/{index}", h.RemoveCalibrationPoint)
				r.Post("/{id}/calibration/import", h.ImportCalibration)
				r.Post("/{id}/dip", h.RecordDip)
			})
		})

		r.Route("/shifts", func(r chi.Router) {
			r.Get("/", h.ListShifts)
			r.Get("/{id}", h.GetShift)

			r.Group(func(r chi.Router) {
				r.Use(h.auth.Middleware)
				r.Post("/", h.OpenShift)
				r.Post("/{id}/close", h.CloseShift)
				r.Post("/{id}/approve", h.ApproveShift)
				r.Post("/{id}/reject", h.RejectShift)
			})
		})

		r.Route("/sales", func(r chi.Router) {
			r.Get("/", h.ListSales)
			r.Get("/{id}", h.GetSale)

			r.Group(func(r chi.Router) {
				r.Use(h.auth.Middleware)
				r.Post("/", h.RecordSale)
				r.Post("/{id}/verify", h.VerifySale)
				r.Post("/{id}/reject", h.RejectSale)
			})
		})
	})

	return r
}
