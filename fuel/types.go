/*
Package fuel provides the shared kernel for the fuel station engine.

PURPOSE:
  Holds the small set of types every other package agrees on: identifiers,
  the review workflow states and the error taxonomy. It has no knowledge of
  tanks, shifts or sales.

KEY CONCEPTS IN THIS FILE (types.go):
  - Identifiers: Tank, shift, sale and nozzle IDs
  - FuelType: The product name carried by tanks, shifts and sales

DESIGN PRINCIPLES:
  1. Precision: Money and metered liters use decimal.Decimal
  2. Type Safety: Distinct ID types prevent mixing tank/shift/sale IDs
  3. Derived values are recomputed, never stored

SEE ALSO:
  - errors.go: Error kinds shared by all calculators
  - status.go: Review workflow states
*/
package fuel

// =============================================================================
// IDENTIFIERS
// =============================================================================

type TankID string
type ShiftID string
type SaleID string
type NozzleID string

// FuelType names a product sold at the station (petrol, diesel, ...).
type FuelType string
