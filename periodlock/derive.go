/*
derive.go - Read-side reconciliation state, derived from the ledger

PURPOSE:
  Derives the acknowledgment state of every manager edit made to a locked
  period by joining two event streams at read time. No status column is
  persisted anywhere; the ledger is the single source of truth, so derived
  state can never drift from it.

STATE MACHINE (per manager-edit event):

    Created -> PendingAck -> { Acknowledged, Contested }

  Created happens atomically with the justified write (service.go).
  The transition out of PendingAck happens exactly once per edit as far as
  derivation is concerned: when several acknowledgment events reference
  the same edit, the most recent created_at wins - an explicit, testable
  policy, not an error. There is no terminal cleanup state; the machine is
  permanently queryable from history.

SHORT-CIRCUITS:
  The per-employee pending view walks timesheets -> entries -> edits ->
  unacknowledged edits. Emptiness at any stage is an explicit early return
  of an empty result, not an error.

SEE ALSO:
  - ledger.go: Event shapes and the append-only contract
  - service.go: The write side producing these events
*/
package periodlock

import (
	"context"
	"time"
)

// =============================================================================
// ACKNOWLEDGMENT STATE
// =============================================================================

type AckState string

const (
	StatePendingAck   AckState = "pending"
	StateAcknowledged AckState = "acknowledged"
	StateContested    AckState = "contested"
)

// DeriveStates is the pure derivation from event lists to state: for each
// edit event, pending when no acknowledgment references it, acknowledged
// when the winning acknowledgment has accepted != false, contested
// otherwise. The winning acknowledgment is the one with the latest
// created_at; equal timestamps fall back to the larger event id so the
// result stays deterministic.
func DeriveStates(edits []Event, acks []Event) map[EventID]AckState {
	winner := make(map[EventID]Event, len(edits))
	for _, ack := range acks {
		ref := EventID(ack.ResourceID)
		cur, ok := winner[ref]
		if !ok || laterThan(ack, cur) {
			winner[ref] = ack
		}
	}

	states := make(map[EventID]AckState, len(edits))
	for _, edit := range edits {
		ack, ok := winner[edit.ID]
		switch {
		case !ok:
			states[edit.ID] = StatePendingAck
		case ack.Accepted():
			states[edit.ID] = StateAcknowledged
		default:
			states[edit.ID] = StateContested
		}
	}
	return states
}

func laterThan(a, b Event) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

// =============================================================================
// TRACKER - The two read contracts
// =============================================================================

// Tracker answers "edits pending my acknowledgment" for employees and
// "reconciliation status of this timesheet" for managers and admins.
type Tracker struct {
	Timesheets TimesheetStore
	Ledger     Ledger
	Directory  DirectoryStore

	// DeclarationBaseURL prefixes the formal declaration document link on
	// pending items. Defaults to "/declarations".
	DeclarationBaseURL string
}

func NewTracker(timesheets TimesheetStore, ledger Ledger, directory DirectoryStore) *Tracker {
	return &Tracker{Timesheets: timesheets, Ledger: ledger, Directory: directory}
}

func (t *Tracker) declarationURL(id EventID) string {
	base := t.DeclarationBaseURL
	if base == "" {
		base = "/declarations"
	}
	return base + "/" + string(id)
}

// PendingAdjustment is one manager edit awaiting the employee's verdict.
type PendingAdjustment struct {
	AuditID        EventID
	EntryID        EntryID
	TimesheetID    TimesheetID
	CreatedAt      time.Time
	Justification  string
	ManagerName    string
	DeclarationURL string
}

// PendingAcknowledgments enumerates the employee's unacknowledged manager
// edits, enriched with the acting manager's display name and a declaration
// link.
func (t *Tracker) PendingAcknowledgments(ctx context.Context, tenant TenantID, employee EmployeeID) ([]PendingAdjustment, error) {
	sheets, err := t.Timesheets.TimesheetsOf(ctx, tenant, employee)
	if err != nil {
		return nil, err
	}
	if len(sheets) == 0 {
		return []PendingAdjustment{}, nil
	}

	entryOwner := make(map[string]TimesheetID)
	var entryIDs []string
	for _, ts := range sheets {
		entries, err := t.Timesheets.EntriesOf(ctx, tenant, ts.ID)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			entryOwner[string(e.ID)] = ts.ID
			entryIDs = append(entryIDs, string(e.ID))
		}
	}
	if len(entryIDs) == 0 {
		return []PendingAdjustment{}, nil
	}

	edits, err := t.Ledger.QueryByResourceIDs(ctx, tenant, ActionManagerEditClosedPeriod, ResourceTimesheetEntry, entryIDs)
	if err != nil {
		return nil, err
	}
	if len(edits) == 0 {
		return []PendingAdjustment{}, nil
	}

	editIDs := make([]string, len(edits))
	for i, e := range edits {
		editIDs[i] = string(e.ID)
	}
	acks, err := t.Ledger.QueryByResourceIDs(ctx, tenant, ActionAcknowledgeAdjustment, ResourceAuditLog, editIDs)
	if err != nil {
		return nil, err
	}

	states := DeriveStates(edits, acks)
	names := make(map[EmployeeID]string)

	pending := []PendingAdjustment{}
	for _, edit := range edits {
		if states[edit.ID] != StatePendingAck {
			continue
		}
		name, ok := names[edit.ActorID]
		if !ok {
			mgr, err := t.Directory.GetEmployee(ctx, tenant, edit.ActorID)
			if err != nil {
				return nil, err
			}
			// A missing directory record leaves the name empty; a failing
			// directory read must not be mistaken for one.
			if mgr != nil {
				name = mgr.Name
			}
			names[edit.ActorID] = name
		}
		pending = append(pending, PendingAdjustment{
			AuditID:        edit.ID,
			EntryID:        EntryID(edit.ResourceID),
			TimesheetID:    entryOwner[edit.ResourceID],
			CreatedAt:      edit.CreatedAt,
			Justification:  edit.Justification(),
			ManagerName:    name,
			DeclarationURL: t.declarationURL(edit.ID),
		})
	}
	return pending, nil
}

// ReconciliationStatus summarizes one timesheet's reconciliation.
//
// Acknowledged counts edits with any acknowledgment, accepted or contested;
// Contested is the contested subset. PendingAck = WithJustification -
// Acknowledged holds by construction.
type ReconciliationStatus struct {
	Total             int
	WithJustification int
	Acknowledged      int
	Contested         int
	PendingAck        int
}

// Status computes the reconciliation summary for a timesheet.
func (t *Tracker) Status(ctx context.Context, tenant TenantID, timesheet TimesheetID) (*ReconciliationStatus, error) {
	ts, err := t.Timesheets.GetTimesheet(ctx, tenant, timesheet)
	if err != nil {
		return nil, err
	}
	if ts == nil {
		return nil, ErrNotFound
	}

	entries, err := t.Timesheets.EntriesOf(ctx, tenant, timesheet)
	if err != nil {
		return nil, err
	}
	status := &ReconciliationStatus{Total: len(entries)}
	if len(entries) == 0 {
		return status, nil
	}

	entryIDs := make([]string, len(entries))
	for i, e := range entries {
		entryIDs[i] = string(e.ID)
	}
	edits, err := t.Ledger.QueryByResourceIDs(ctx, tenant, ActionManagerEditClosedPeriod, ResourceTimesheetEntry, entryIDs)
	if err != nil {
		return nil, err
	}
	status.WithJustification = len(edits)
	if len(edits) == 0 {
		return status, nil
	}

	editIDs := make([]string, len(edits))
	for i, e := range edits {
		editIDs[i] = string(e.ID)
	}
	acks, err := t.Ledger.QueryByResourceIDs(ctx, tenant, ActionAcknowledgeAdjustment, ResourceAuditLog, editIDs)
	if err != nil {
		return nil, err
	}

	for _, state := range DeriveStates(edits, acks) {
		switch state {
		case StateAcknowledged:
			status.Acknowledged++
		case StateContested:
			status.Acknowledged++
			status.Contested++
		}
	}
	status.PendingAck = status.WithJustification - status.Acknowledged
	return status, nil
}
