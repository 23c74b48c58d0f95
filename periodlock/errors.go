/*
errors.go - Centralized error types for the period-lock engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Expected business outcomes (period_locked, forbidden) are modeled as
  typed errors, never panics.

ERROR CATEGORIES:
  1. Validation errors - Malformed period keys, missing justification
  2. Authorization errors - The gate's negative result
  3. Policy outcomes - period_locked is an expected, frequent outcome
  4. Store errors - Missing records

SEE ALSO:
  - service.go: Returns these from the guarded write path
  - resolver.go: Never errors by design; see resolver contract
*/
package periodlock

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidPeriodKey is returned when a period key cannot be
	// normalized to a calendar month.
	ErrInvalidPeriodKey = errors.New("invalid period key")

	// ErrForbidden is the Authorization Gate's negative result.
	ErrForbidden = errors.New("forbidden")

	// ErrJustificationRequired is returned when a manager writes to a
	// locked period without an acceptable justification.
	ErrJustificationRequired = errors.New("justification required")

	// ErrPeriodLocked is returned when a locked period rejects a write
	// outright. Wrap with PeriodLockedError for level and reason.
	ErrPeriodLocked = errors.New("period locked")

	// ErrNotFound is returned when a referenced record doesn't exist.
	ErrNotFound = errors.New("not found")

	// ErrDateOutsidePeriod is returned when an entry's date falls outside
	// its timesheet's month.
	ErrDateOutsidePeriod = errors.New("entry date outside timesheet period")

	// ErrTenantMismatch is returned when a record belongs to a different
	// tenant than the actor.
	ErrTenantMismatch = errors.New("tenant mismatch")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// PeriodLockedError reports a rejected write against a locked period with
// enough context for the caller to render an actionable message.
type PeriodLockedError struct {
	Period PeriodKey
	Level  Scope
	Reason string
}

func (e *PeriodLockedError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("period %s locked at %s scope", e.Period, e.Level)
	}
	return fmt.Sprintf("period %s locked at %s scope: %s", e.Period, e.Level, e.Reason)
}

func (e *PeriodLockedError) Unwrap() error { return ErrPeriodLocked }

// JustificationError reports why a justification was unacceptable.
type JustificationError struct {
	Provided int
	Minimum  int
}

func (e *JustificationError) Error() string {
	return fmt.Sprintf("justification required: got %d characters, need at least %d", e.Provided, e.Minimum)
}

func (e *JustificationError) Unwrap() error { return ErrJustificationRequired }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to the caller's input or
// standing, as opposed to a system failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidPeriodKey) ||
		errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrJustificationRequired) ||
		errors.Is(err, ErrPeriodLocked) ||
		errors.Is(err, ErrNotFound)
}
