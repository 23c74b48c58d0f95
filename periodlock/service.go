/*
service.go - The guarded write path

PURPOSE:
  Service ties the gate, the resolver, and the ledger into the two write
  operations of this core:

    CheckAndWrite          gate -> resolve -> write (-> audit -> notify)
    AcknowledgeAdjustment  validate ownership -> append acknowledgment

WRITE-THEN-AUDIT PAIRING:
  A manager write to a locked period and its audit event are one logical
  unit, but the audit write is required-but-non-fatal: the data write has
  already committed when the audit is attempted, so callers must not roll
  it back on audit failure. The degraded state (a manager edit that became
  untracked) is surfaced on the typed result and logged at error level -
  it silently weakens the reconciliation guarantee, so it is logged loudly.

NOTIFICATION:
  Dispatched best-effort after the audit event is durable. Failure never
  fails the request.

SEE ALSO:
  - derive.go: The read side built on the events written here
  - errors.go: period_locked / justification_required / forbidden
*/
package periodlock

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"
)

// DefaultMinJustification is the minimum justification length a non-admin
// must supply to edit a locked period.
const DefaultMinJustification = 10

// =============================================================================
// SERVICE
// =============================================================================

type Service struct {
	Resolver   *Resolver
	Gate       *Gate
	Directory  DirectoryStore
	Timesheets TimesheetStore
	Ledger     Ledger
	Notifier   Notifier
	Log        zerolog.Logger

	// MinJustification overrides DefaultMinJustification when > 0.
	MinJustification int
}

func NewService(resolver *Resolver, gate *Gate, directory DirectoryStore, timesheets TimesheetStore, ledger Ledger, notifier Notifier, log zerolog.Logger) *Service {
	return &Service{
		Resolver:   resolver,
		Gate:       gate,
		Directory:  directory,
		Timesheets: timesheets,
		Ledger:     ledger,
		Notifier:   notifier,
		Log:        log,
	}
}

func (s *Service) minJustification() int {
	if s.MinJustification > 0 {
		return s.MinJustification
	}
	return DefaultMinJustification
}

// WriteResult is the typed outcome of a successful CheckAndWrite. It
// distinguishes "primary operation succeeded" from "side effect degraded".
type WriteResult struct {
	Entry    *Entry
	Decision Decision

	// Guarded is true when the write hit a locked period and was recorded
	// as a reconciling edit.
	Guarded bool

	// AuditID is the id of the manager_edit_closed_period event, when one
	// was written.
	AuditID EventID

	// AuditDegraded is true when the audit append failed after the data
	// write committed. The edit is untracked; this is logged loudly.
	AuditDegraded bool

	// Notified is true when the employee notification was dispatched.
	Notified bool
}

// =============================================================================
// CHECK AND WRITE
// =============================================================================

// CheckAndWrite performs a timesheet entry write under the period-lock
// policy. Expected rejections come back as typed errors: ErrForbidden,
// *PeriodLockedError, *JustificationError, ErrNotFound.
func (s *Service) CheckAndWrite(ctx context.Context, actor Actor, w EntryWrite, justification string) (*WriteResult, error) {
	ts, err := s.Timesheets.GetTimesheet(ctx, actor.Tenant, w.Timesheet)
	if err != nil {
		return nil, err
	}
	if ts == nil {
		return nil, ErrNotFound
	}

	// Gate first: an undelegated manager must not learn lock state.
	if err := s.Gate.CanAct(ctx, actor, ts); err != nil {
		return nil, err
	}

	if !ts.Period.Contains(w.Date) {
		return nil, ErrDateOutsidePeriod
	}

	// On update, the existing entry must belong to the timesheet the actor
	// was authorized against. Without this check an actor authorized on
	// their own timesheet could re-key another timesheet's entry.
	var prev *Entry
	if w.ID != "" {
		prev, err = s.Timesheets.GetEntry(ctx, actor.Tenant, w.ID)
		if err != nil {
			return nil, err
		}
		if prev != nil && prev.Timesheet != w.Timesheet {
			return nil, ErrNotFound
		}
	}

	decision, err := s.Resolver.Resolve(ctx, actor.Tenant, ts.Employee, ts.Period)
	if err != nil {
		return nil, err
	}

	if !decision.Locked {
		entry, err := s.Timesheets.PutEntry(ctx, actor.Tenant, w)
		if err != nil {
			return nil, err
		}
		return &WriteResult{Entry: entry, Decision: decision}, nil
	}

	// Locked period. Employees have no bypass; managers need a
	// justification; admins skip the requirement but never the audit.
	// The minimum counts runes, not bytes.
	justification = strings.TrimSpace(justification)
	justLen := utf8.RuneCountInString(justification)
	switch {
	case actor.Role == RoleEmployee:
		return nil, &PeriodLockedError{Period: ts.Period, Level: decision.Level, Reason: decision.Reason}
	case actor.IsAdmin():
		// no justification requirement
	case justLen < s.minJustification():
		return nil, &JustificationError{Provided: justLen, Minimum: s.minJustification()}
	}

	var old map[string]any
	if prev != nil {
		old = map[string]any{
			"date":  prev.Date.Format("2006-01-02"),
			"hours": prev.Hours.String(),
			"note":  prev.Note,
		}
	}

	entry, err := s.Timesheets.PutEntry(ctx, actor.Tenant, w)
	if err != nil {
		return nil, err
	}

	res := &WriteResult{Entry: entry, Decision: decision, Guarded: true}

	auditID, err := s.Ledger.Append(ctx, Event{
		Tenant:       actor.Tenant,
		ActorID:      actor.ID,
		Action:       ActionManagerEditClosedPeriod,
		ResourceType: ResourceTimesheetEntry,
		ResourceID:   string(entry.ID),
		OldValues:    old,
		NewValues: map[string]any{
			"justification": justification,
			"date":          entry.Date.Format("2006-01-02"),
			"hours":         entry.Hours.String(),
		},
	})
	if err != nil {
		// The data write already committed. Do not roll back; surface
		// the degraded state instead.
		res.AuditDegraded = true
		s.Log.Error().Err(err).
			Str("tenant", string(actor.Tenant)).
			Str("actor", string(actor.ID)).
			Str("entry", string(entry.ID)).
			Str("period", ts.Period.String()).
			Msg("audit append failed; closed-period edit is untracked")
		return res, nil
	}
	res.AuditID = auditID

	if err := s.Notifier.Send(ctx, Notification{
		Type:      NotifyClosedPeriodEdit,
		Tenant:    actor.Tenant,
		Recipient: ts.Employee,
		Payload: map[string]any{
			"audit_id": string(auditID),
			"entry_id": string(entry.ID),
			"period":   ts.Period.String(),
		},
	}); err != nil {
		s.Log.Warn().Err(err).
			Str("recipient", string(ts.Employee)).
			Str("audit_id", string(auditID)).
			Msg("closed-period edit notification failed")
	} else {
		res.Notified = true
	}

	return res, nil
}

// =============================================================================
// ACKNOWLEDGE ADJUSTMENT
// =============================================================================

// AcknowledgeAdjustment records the employee's verdict on a manager edit.
// Only the owning employee may acknowledge. Later acknowledgments for the
// same edit are accepted into the ledger but ignored by the derivation
// (most recent created_at wins).
func (s *Service) AcknowledgeAdjustment(ctx context.Context, actor Actor, auditID EventID, accepted bool) (EventID, error) {
	ev, err := s.Ledger.Get(ctx, actor.Tenant, auditID)
	if err != nil {
		return "", err
	}
	if ev == nil || ev.Action != ActionManagerEditClosedPeriod {
		return "", ErrNotFound
	}

	entry, err := s.Timesheets.GetEntry(ctx, actor.Tenant, EntryID(ev.ResourceID))
	if err != nil {
		return "", err
	}
	if entry == nil {
		return "", ErrNotFound
	}
	ts, err := s.Timesheets.GetTimesheet(ctx, actor.Tenant, entry.Timesheet)
	if err != nil {
		return "", err
	}
	if ts == nil {
		return "", ErrNotFound
	}
	if ts.Employee != actor.ID {
		return "", ErrForbidden
	}

	return s.Ledger.Append(ctx, Event{
		Tenant:       actor.Tenant,
		ActorID:      actor.ID,
		Action:       ActionAcknowledgeAdjustment,
		ResourceType: ResourceAuditLog,
		ResourceID:   string(auditID),
		NewValues:    map[string]any{"accepted": accepted},
	})
}
