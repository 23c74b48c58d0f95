package periodlock

import (
	"fmt"
	"time"
)

// =============================================================================
// PERIOD KEY - The unit at which locks are granted
// =============================================================================

// PeriodKey is a calendar month normalized to its first day, rendered as
// YYYY-MM-01. All override lookups operate on this canonical key: callers may
// pass "2025-03", "2025-03-17" or "2025-03-01" and must get identical
// resolution.
type PeriodKey struct {
	Year  int
	Month time.Month
}

// ParsePeriodKey normalizes a date-like string to its containing month.
// Accepted forms: YYYY-MM and YYYY-MM-DD. Anything else is a validation
// error, never coerced.
func ParsePeriodKey(s string) (PeriodKey, error) {
	for _, layout := range []string{"2006-01-02", "2006-01"} {
		if t, err := time.Parse(layout, s); err == nil {
			return PeriodKey{Year: t.Year(), Month: t.Month()}, nil
		}
	}
	return PeriodKey{}, fmt.Errorf("%w: %q (want YYYY-MM or YYYY-MM-DD)", ErrInvalidPeriodKey, s)
}

// PeriodOf returns the key for the month containing t.
func PeriodOf(t time.Time) PeriodKey {
	return PeriodKey{Year: t.Year(), Month: t.Month()}
}

func (k PeriodKey) IsZero() bool { return k.Year == 0 }

// String renders the canonical first-of-month form.
func (k PeriodKey) String() string {
	return fmt.Sprintf("%04d-%02d-01", k.Year, int(k.Month))
}

// Start returns the first instant of the month, UTC.
func (k PeriodKey) Start() time.Time {
	return time.Date(k.Year, k.Month, 1, 0, 0, 0, 0, time.UTC)
}

// End returns the last day of the month, UTC, day granularity.
func (k PeriodKey) End() time.Time {
	return k.Start().AddDate(0, 1, -1)
}

// Contains reports whether t falls inside the month.
func (k PeriodKey) Contains(t time.Time) bool {
	return t.Year() == k.Year && t.Month() == k.Month
}

func (k PeriodKey) Next() PeriodKey     { return PeriodOf(k.Start().AddDate(0, 1, 0)) }
func (k PeriodKey) Previous() PeriodKey { return PeriodOf(k.Start().AddDate(0, -1, 0)) }
