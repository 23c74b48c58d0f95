/*
ledger.go - Append-only audit ledger

PURPOSE:
  The ledger records domain actions as immutable events and doubles as the
  source of truth for derived reconciliation state. There is no persisted
  "acknowledgment status" anywhere - status is always recomputed from the
  event streams at read time (see derive.go).

CRITICAL INVARIANTS:
  1. APPEND-ONLY: No Update, No Delete. EVER.
  2. IMMUTABLE: Once written, events cannot be modified
  3. DUPLICATES ARE DATA: Two acknowledgments for the same edit can both
     land (no compare-and-set is assumed). The derivation layer's
     deterministic tie-break - most recent created_at wins - is the
     correctness boundary, not a database constraint.

ACTIONS THAT MATTER TO THIS CORE:
  manager_edit_closed_period      resource = timesheet_entry
  employee_acknowledge_adjustment resource = audit_log (the edit event)

SEE ALSO:
  - derive.go: Joins the two streams into acknowledgment state
  - service.go: Writes the edit event alongside the guarded write
*/
package periodlock

import (
	"context"
	"time"
)

// =============================================================================
// AUDIT EVENT
// =============================================================================

type EventID string

type Action string

const (
	// ActionManagerEditClosedPeriod tags a manager's write to an entry in
	// a locked period. NewValues carries the justification.
	ActionManagerEditClosedPeriod Action = "manager_edit_closed_period"

	// ActionAcknowledgeAdjustment is the employee's response to such an
	// edit. ResourceID references the edit event; NewValues["accepted"]
	// defaults to true when absent.
	ActionAcknowledgeAdjustment Action = "employee_acknowledge_adjustment"
)

type ResourceType string

const (
	ResourceTimesheetEntry ResourceType = "timesheet_entry"
	ResourceAuditLog       ResourceType = "audit_log"
)

// Event is one immutable ledger record.
type Event struct {
	ID           EventID
	Tenant       TenantID
	ActorID      EmployeeID
	Action       Action
	ResourceType ResourceType
	ResourceID   string
	OldValues    map[string]any
	NewValues    map[string]any
	CreatedAt    time.Time
}

// Accepted interprets an acknowledgment event's verdict. Absence of the
// field means accepted.
func (e Event) Accepted() bool {
	v, ok := e.NewValues["accepted"]
	if !ok {
		return true
	}
	b, ok := v.(bool)
	if !ok {
		return true
	}
	return b
}

// Justification returns the free-text reason on an edit event, if any.
func (e Event) Justification() string {
	if v, ok := e.NewValues["justification"].(string); ok {
		return v
	}
	return ""
}

// =============================================================================
// LEDGER - Interface to the append-only event store
// =============================================================================

type Ledger interface {
	// Append persists an event and returns its id. The store assigns the
	// id and created_at when the event carries none.
	Append(ctx context.Context, e Event) (EventID, error)

	// Get returns an event by id, or nil when absent.
	Get(ctx context.Context, tenant TenantID, id EventID) (*Event, error)

	// QueryByResourceIDs returns all events for the action against any of
	// the resource ids, ordered by created_at ascending. An empty id list
	// yields an empty result.
	QueryByResourceIDs(ctx context.Context, tenant TenantID, action Action, rt ResourceType, resourceIDs []string) ([]Event, error)
}
