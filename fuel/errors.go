/*
errors.go - Centralized error types for the fuel engine

PURPOSE:
  All error kinds in one place. Calculators return these as values; they
  never log and never retry. Callers surface the kind and message to the
  operator and keep their prior state.

ERROR CATEGORIES:
  1. Input errors - negative or non-numeric values, malformed CSV rows
  2. Table errors - duplicate dip readings, bad indexes, empty tables
  3. Geometry errors - shapes that need calibration or are physically invalid
  4. Workflow errors - illegal status transitions, missing records

USAGE:
    if errors.Is(err, fuel.ErrDuplicateReading) {
        // reject the edit, table unchanged
    }

    var perr *fuel.ParseError
    if errors.As(err, &perr) {
        fmt.Println("bad row", perr.Row)
    }

SEE ALSO:
  - tank/calibration.go: Table errors
  - reconcile/shift.go: Input errors
  - api/handlers.go: HTTP status mapping
*/
package fuel

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidValue covers negative or non-numeric numeric input.
	ErrInvalidValue = errors.New("invalid value")

	// ErrDuplicateReading is returned when a calibration table already holds the dip.
	ErrDuplicateReading = errors.New("duplicate dip reading")

	// ErrIndexOutOfRange is returned when removing a calibration point that does not exist.
	ErrIndexOutOfRange = errors.New("index out of range")

	// ErrConfiguration is returned when a lookup runs against an empty calibration table.
	ErrConfiguration = errors.New("calibration table is empty")

	// ErrParse is returned for malformed calibration imports.
	ErrParse = errors.New("parse error")

	// ErrCalibrationRequired means no formula applies; the tank needs a calibration table.
	ErrCalibrationRequired = errors.New("volume unavailable: requires calibration")

	// ErrInvalidGeometry is returned for dimensions that are positive but physically meaningless.
	ErrInvalidGeometry = errors.New("invalid tank geometry")

	// ErrInvalidTransition is returned when a review status change is not allowed.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrNotFound is returned when a referenced tank, shift or sale doesn't exist.
	ErrNotFound = errors.New("not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InvalidValueError names the offending field.
type InvalidValueError struct {
	Field  string
	Value  any
	Reason string
}

func (e *InvalidValueError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("invalid %s %v: %s", e.Field, e.Value, e.Reason)
	}
	return fmt.Sprintf("invalid %s %v", e.Field, e.Value)
}

func (e *InvalidValueError) Unwrap() error { return ErrInvalidValue }

// Negative builds the common "must not be negative" error.
func Negative(field string, value any) *InvalidValueError {
	return &InvalidValueError{Field: field, Value: value, Reason: "must not be negative"}
}

// DuplicateReadingError reports the dip that already exists in the table.
type DuplicateReadingError struct {
	DipMM float64
}

func (e *DuplicateReadingError) Error() string {
	return fmt.Sprintf("a calibration point for dip %gmm already exists", e.DipMM)
}

func (e *DuplicateReadingError) Unwrap() error { return ErrDuplicateReading }

type IndexOutOfRangeError struct {
	Index int
	Len   int
}

func (e *IndexOutOfRangeError) Error() string {
	return fmt.Sprintf("index %d out of range [0,%d)", e.Index, e.Len)
}

func (e *IndexOutOfRangeError) Unwrap() error { return ErrIndexOutOfRange }

// ParseError identifies the offending CSV row.
//
// Row is the physical line number in the file, 1-based, as an editor shows
// it. The header line and blank lines count, so in "dip,liters\n\n0,x" the
// bad row is 3 even though it is the first data point. Row 0 means the
// input as a whole (empty file, header only).
type ParseError struct {
	Row    int
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Row == 0 {
		return fmt.Sprintf("calibration import: %s", e.Reason)
	}
	return fmt.Sprintf("calibration import: row %d: %s", e.Row, e.Reason)
}

// Unwrap exposes both ErrParse and the underlying cause.
func (e *ParseError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrParse, e.Err}
	}
	return []error{ErrParse}
}

// TransitionError describes a rejected status change.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot move from %s to %s", e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidValue) ||
		errors.Is(err, ErrDuplicateReading) ||
		errors.Is(err, ErrIndexOutOfRange) ||
		errors.Is(err, ErrConfiguration) ||
		errors.Is(err, ErrParse) ||
		errors.Is(err, ErrCalibrationRequired) ||
		errors.Is(err, ErrInvalidGeometry)
}

// IsConflict returns true for workflow violations.
func IsConflict(err error) bool {
	return errors.Is(err, ErrInvalidTransition)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
