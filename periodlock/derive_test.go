package periodlock_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/timesheet-engine/periodlock"
)

// =============================================================================
// PURE DERIVATION
// =============================================================================

func editEvent(id string, at time.Time) periodlock.Event {
	return periodlock.Event{
		ID:           periodlock.EventID(id),
		Tenant:       testTenant,
		Action:       periodlock.ActionManagerEditClosedPeriod,
		ResourceType: periodlock.ResourceTimesheetEntry,
		ResourceID:   "entry-" + id,
		CreatedAt:    at,
	}
}

func ackEvent(id, editID string, accepted bool, at time.Time) periodlock.Event {
	return periodlock.Event{
		ID:           periodlock.EventID(id),
		Tenant:       testTenant,
		Action:       periodlock.ActionAcknowledgeAdjustment,
		ResourceType: periodlock.ResourceAuditLog,
		ResourceID:   editID,
		NewValues:    map[string]any{"accepted": accepted},
		CreatedAt:    at,
	}
}

func TestDeriveStates_NoAck_Pending(t *testing.T) {
	now := time.Now()
	states := periodlock.DeriveStates([]periodlock.Event{editEvent("e1", now)}, nil)
	assert.Equal(t, periodlock.StatePendingAck, states["e1"])
}

func TestDeriveStates_AcceptedAndContested(t *testing.T) {
	now := time.Now()
	edits := []periodlock.Event{editEvent("e1", now), editEvent("e2", now)}
	acks := []periodlock.Event{
		ackEvent("a1", "e1", true, now.Add(time.Hour)),
		ackEvent("a2", "e2", false, now.Add(time.Hour)),
	}

	states := periodlock.DeriveStates(edits, acks)
	assert.Equal(t, periodlock.StateAcknowledged, states["e1"])
	assert.Equal(t, periodlock.StateContested, states["e2"])
}

func TestDeriveStates_MissingAcceptedField_DefaultsToAccepted(t *testing.T) {
	now := time.Now()
	ack := ackEvent("a1", "e1", true, now.Add(time.Minute))
	ack.NewValues = map[string]any{}

	states := periodlock.DeriveStates([]periodlock.Event{editEvent("e1", now)}, []periodlock.Event{ack})
	assert.Equal(t, periodlock.StateAcknowledged, states["e1"])
}

func TestDeriveStates_DuplicateAcks_MostRecentWins(t *testing.T) {
	// Two acknowledgments for the same edit with different verdicts and
	// different timestamps: derivation honors the most recent only.
	now := time.Now()
	edits := []periodlock.Event{editEvent("e1", now)}

	acks := []periodlock.Event{
		ackEvent("a1", "e1", true, now.Add(1*time.Minute)),
		ackEvent("a2", "e1", false, now.Add(2*time.Minute)),
	}
	states := periodlock.DeriveStates(edits, acks)
	assert.Equal(t, periodlock.StateContested, states["e1"])

	// Order of the input slice must not matter.
	states = periodlock.DeriveStates(edits, []periodlock.Event{acks[1], acks[0]})
	assert.Equal(t, periodlock.StateContested, states["e1"])
}

func TestDeriveStates_EqualTimestamps_DeterministicTieBreak(t *testing.T) {
	now := time.Now()
	edits := []periodlock.Event{editEvent("e1", now)}
	acks := []periodlock.Event{
		ackEvent("a1", "e1", true, now.Add(time.Minute)),
		ackEvent("a2", "e1", false, now.Add(time.Minute)),
	}

	first := periodlock.DeriveStates(edits, acks)
	second := periodlock.DeriveStates(edits, []periodlock.Event{acks[1], acks[0]})
	assert.Equal(t, first["e1"], second["e1"], "tie-break must not depend on input order")
}

// =============================================================================
// PENDING ACKNOWLEDGMENTS VIEW
// =============================================================================

func newTracker(f *fixture) *periodlock.Tracker {
	return periodlock.NewTracker(f.mem, f.mem, f.mem)
}

func TestPendingAcknowledgments_ShortCircuitsToEmpty(t *testing.T) {
	f := newFixture(t)
	tracker := newTracker(f)
	ctx := context.Background()

	// No timesheets at all.
	pending, err := tracker.PendingAcknowledgments(ctx, testTenant, "nobody")
	require.NoError(t, err)
	assert.Empty(t, pending)

	// Timesheet but no entries.
	pending, err = tracker.PendingAcknowledgments(ctx, testTenant, "emp-1")
	require.NoError(t, err)
	assert.Empty(t, pending)

	// Entries but no manager edits.
	_, err = f.svc.CheckAndWrite(ctx, employee, entryWrite(3, 8), "")
	require.NoError(t, err)
	pending, err = tracker.PendingAcknowledgments(ctx, testTenant, "emp-1")
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestPendingAcknowledgments_EnrichedWithManagerName(t *testing.T) {
	f := newFixture(t)
	f.lockGroup(t, "month closed")
	tracker := newTracker(f)
	ctx := context.Background()

	res, err := f.svc.CheckAndWrite(ctx, manager, entryWrite(10, 7.5), "adjusted per client timesheet")
	require.NoError(t, err)

	pending, err := tracker.PendingAcknowledgments(ctx, testTenant, "emp-1")
	require.NoError(t, err)
	require.Len(t, pending, 1)

	item := pending[0]
	assert.Equal(t, res.AuditID, item.AuditID)
	assert.Equal(t, res.Entry.ID, item.EntryID)
	assert.Equal(t, periodlock.TimesheetID("ts-1"), item.TimesheetID)
	assert.Equal(t, "adjusted per client timesheet", item.Justification)
	assert.Equal(t, "Mara Chen", item.ManagerName)
	assert.Equal(t, "/declarations/"+string(res.AuditID), item.DeclarationURL)
}

// failDirectory rejects employee lookups to simulate a broken directory.
type failDirectory struct {
	periodlock.DirectoryStore
}

func (failDirectory) GetEmployee(context.Context, periodlock.TenantID, periodlock.EmployeeID) (*periodlock.Employee, error) {
	return nil, errors.New("directory unavailable")
}

func TestPendingAcknowledgments_DirectoryFailureSurfaces(t *testing.T) {
	f := newFixture(t)
	f.lockGroup(t, "month closed")
	ctx := context.Background()

	_, err := f.svc.CheckAndWrite(ctx, manager, entryWrite(10, 8), "adjusted per client timesheet")
	require.NoError(t, err)

	tracker := periodlock.NewTracker(f.mem, f.mem, failDirectory{f.mem})
	_, err = tracker.PendingAcknowledgments(ctx, testTenant, "emp-1")
	require.Error(t, err, "a failing directory read must not pass for a missing name")
}

// =============================================================================
// STATUS VIEW
// =============================================================================

func TestStatus_ZeroBoundary(t *testing.T) {
	f := newFixture(t)
	tracker := newTracker(f)
	ctx := context.Background()

	// Empty timesheet: everything zero.
	status, err := tracker.Status(ctx, testTenant, "ts-1")
	require.NoError(t, err)
	assert.Equal(t, &periodlock.ReconciliationStatus{}, status)

	// Entries without justified edits: withJustification == 0 => pendingAck == 0.
	_, err = f.svc.CheckAndWrite(ctx, employee, entryWrite(3, 8), "")
	require.NoError(t, err)
	status, err = tracker.Status(ctx, testTenant, "ts-1")
	require.NoError(t, err)
	assert.Equal(t, 1, status.Total)
	assert.Zero(t, status.WithJustification)
	assert.Zero(t, status.PendingAck)
}

func TestStatus_UnknownTimesheet_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := newTracker(f).Status(context.Background(), testTenant, "ts-missing")
	require.ErrorIs(t, err, periodlock.ErrNotFound)
}

func TestStatus_ArithmeticIdentityHolds(t *testing.T) {
	f := newFixture(t)
	f.lockGroup(t, "month closed")
	tracker := newTracker(f)
	ctx := context.Background()

	// Three justified manager edits on distinct days.
	var auditIDs []periodlock.EventID
	for day := 3; day <= 5; day++ {
		res, err := f.svc.CheckAndWrite(ctx, manager, entryWrite(day, 8), "adjusted per client timesheet")
		require.NoError(t, err)
		auditIDs = append(auditIDs, res.AuditID)
	}

	// Acknowledge one, contest another, leave the third pending.
	_, err := f.svc.AcknowledgeAdjustment(ctx, employee, auditIDs[0], true)
	require.NoError(t, err)
	_, err = f.svc.AcknowledgeAdjustment(ctx, employee, auditIDs[1], false)
	require.NoError(t, err)

	status, err := tracker.Status(ctx, testTenant, "ts-1")
	require.NoError(t, err)

	assert.Equal(t, 3, status.Total)
	assert.Equal(t, 3, status.WithJustification)
	assert.Equal(t, 2, status.Acknowledged, "acknowledged counts accepted and contested")
	assert.Equal(t, 1, status.Contested)
	assert.Equal(t, 1, status.PendingAck)
	assert.Equal(t, status.WithJustification-status.Acknowledged, status.PendingAck)
}

// =============================================================================
// END TO END
// =============================================================================

func TestReconciliation_EndToEnd(t *testing.T) {
	// Employee emp-1 in locked group; manager mgr-1 (assigned to the group)
	// writes an entry with a justification; the edit shows up pending with
	// the manager's name; the employee accepts; the pending list drains and
	// the status reports acknowledged=1.
	f := newFixture(t)
	f.lockGroup(t, "month closed")
	tracker := newTracker(f)
	ctx := context.Background()

	res, err := f.svc.CheckAndWrite(ctx, manager, entryWrite(10, 7.5), "adjusted per client timesheet")
	require.NoError(t, err)
	require.True(t, res.Guarded)

	pending, err := tracker.PendingAcknowledgments(ctx, testTenant, "emp-1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "Mara Chen", pending[0].ManagerName)

	_, err = f.svc.AcknowledgeAdjustment(ctx, employee, res.AuditID, true)
	require.NoError(t, err)

	pending, err = tracker.PendingAcknowledgments(ctx, testTenant, "emp-1")
	require.NoError(t, err)
	assert.Empty(t, pending)

	status, err := tracker.Status(ctx, testTenant, "ts-1")
	require.NoError(t, err)
	assert.Equal(t, 1, status.Acknowledged)
	assert.Zero(t, status.PendingAck)
	assert.Zero(t, status.Contested)
}

// Acknowledgments submitted after the first one are accepted into the ledger
// but the derivation honors the most recent, end to end.
func TestReconciliation_LateContestOverridesEarlierAccept(t *testing.T) {
	f := newFixture(t)
	f.lockGroup(t, "month closed")
	tracker := newTracker(f)
	ctx := context.Background()

	res, err := f.svc.CheckAndWrite(ctx, manager, entryWrite(10, 8), "adjusted per client timesheet")
	require.NoError(t, err)

	_, err = f.svc.AcknowledgeAdjustment(ctx, employee, res.AuditID, true)
	require.NoError(t, err)

	// The memory ledger assigns created_at at append time; a later append
	// therefore carries a later timestamp.
	time.Sleep(2 * time.Millisecond)
	_, err = f.svc.AcknowledgeAdjustment(ctx, employee, res.AuditID, false)
	require.NoError(t, err)

	status, err := tracker.Status(ctx, testTenant, "ts-1")
	require.NoError(t, err)
	assert.Equal(t, 1, status.Contested)
	assert.Equal(t, 1, status.Acknowledged)
	assert.Zero(t, status.PendingAck)
}
