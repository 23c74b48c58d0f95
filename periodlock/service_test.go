package periodlock_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/timesheet-engine/periodlock"
	"github.com/warp/timesheet-engine/periodlock/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================
// Note: testTenant, march2025, setOverride and addGroup are defined in
// resolver_test.go.

var (
	employee = periodlock.Actor{ID: "emp-1", Tenant: testTenant, Role: periodlock.RoleEmployee}
	manager  = periodlock.Actor{ID: "mgr-1", Tenant: testTenant, Role: periodlock.RoleManager}
	outsider = periodlock.Actor{ID: "mgr-2", Tenant: testTenant, Role: periodlock.RoleManager}
	admin    = periodlock.Actor{ID: "adm-1", Tenant: testTenant, Role: periodlock.RoleAdmin}
)

type captureNotifier struct {
	sent []periodlock.Notification
	fail bool
}

func (c *captureNotifier) Send(_ context.Context, n periodlock.Notification) error {
	if c.fail {
		return errors.New("smtp down")
	}
	c.sent = append(c.sent, n)
	return nil
}

// failLedger rejects appends to simulate a degraded audit store.
type failLedger struct {
	periodlock.Ledger
}

func (failLedger) Append(context.Context, periodlock.Event) (periodlock.EventID, error) {
	return "", errors.New("ledger unavailable")
}

type fixture struct {
	mem      *store.Memory
	svc      *periodlock.Service
	notifier *captureNotifier
}

// newFixture seeds employee emp-1 in group "eng" managed by mgr-1, with an
// outsider manager mgr-2 on an unrelated group, and timesheet ts-1 covering
// March 2025.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	mem := store.NewMemory()

	require.NoError(t, mem.SaveEmployee(ctx, periodlock.Employee{ID: "emp-1", Tenant: testTenant, Name: "Erin Vale", Role: periodlock.RoleEmployee}))
	require.NoError(t, mem.SaveEmployee(ctx, periodlock.Employee{ID: "mgr-1", Tenant: testTenant, Name: "Mara Chen", Role: periodlock.RoleManager}))
	require.NoError(t, mem.SaveEmployee(ctx, periodlock.Employee{ID: "mgr-2", Tenant: testTenant, Name: "Odd One Out", Role: periodlock.RoleManager}))

	addGroup(t, mem, "eng", "", "emp-1")
	require.NoError(t, mem.AddManager(ctx, testTenant, "eng", "mgr-1"))
	addGroup(t, mem, "sales", "")
	require.NoError(t, mem.AddManager(ctx, testTenant, "sales", "mgr-2"))

	require.NoError(t, mem.SaveTimesheet(ctx, periodlock.Timesheet{
		ID: "ts-1", Tenant: testTenant, Employee: "emp-1", Period: march2025(),
	}))

	notifier := &captureNotifier{}
	svc := periodlock.NewService(
		periodlock.NewResolver(mem, mem),
		periodlock.NewGate(mem),
		mem, mem, mem, notifier, zerolog.Nop(),
	)
	return &fixture{mem: mem, svc: svc, notifier: notifier}
}

func (f *fixture) lockGroup(t *testing.T, reason string) {
	t.Helper()
	setOverride(t, f.mem, periodlock.ScopeGroup, "eng", true, reason)
}

func entryWrite(day int, hours float64) periodlock.EntryWrite {
	return periodlock.EntryWrite{
		Timesheet: "ts-1",
		Date:      time.Date(2025, time.March, day, 0, 0, 0, 0, time.UTC),
		Hours:     decimal.NewFromFloat(hours),
	}
}

func (f *fixture) editsOn(t *testing.T, entryID periodlock.EntryID) []periodlock.Event {
	t.Helper()
	events, err := f.mem.QueryByResourceIDs(context.Background(), testTenant,
		periodlock.ActionManagerEditClosedPeriod, periodlock.ResourceTimesheetEntry,
		[]string{string(entryID)})
	require.NoError(t, err)
	return events
}

// =============================================================================
// UNLOCKED PERIOD
// =============================================================================

func TestCheckAndWrite_UnlockedPeriod_WritesWithoutAudit(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.CheckAndWrite(context.Background(), employee, entryWrite(10, 8), "")
	require.NoError(t, err)

	assert.False(t, res.Guarded)
	assert.Empty(t, res.AuditID)
	assert.Equal(t, periodlock.ScopeNone, res.Decision.Level)
	assert.Empty(t, f.editsOn(t, res.Entry.ID))
	assert.Empty(t, f.notifier.sent)
}

func TestCheckAndWrite_DateOutsideTimesheetMonth_Rejected(t *testing.T) {
	f := newFixture(t)

	w := entryWrite(10, 8)
	w.Date = time.Date(2025, time.April, 2, 0, 0, 0, 0, time.UTC)
	_, err := f.svc.CheckAndWrite(context.Background(), employee, w, "")
	require.ErrorIs(t, err, periodlock.ErrDateOutsidePeriod)
}

// =============================================================================
// JUSTIFICATION GATE
// =============================================================================

func TestCheckAndWrite_LockedPeriod_EmployeeRejected(t *testing.T) {
	f := newFixture(t)
	f.lockGroup(t, "month closed")

	_, err := f.svc.CheckAndWrite(context.Background(), employee, entryWrite(10, 8), "")
	require.ErrorIs(t, err, periodlock.ErrPeriodLocked)

	var locked *periodlock.PeriodLockedError
	require.ErrorAs(t, err, &locked)
	assert.Equal(t, periodlock.ScopeGroup, locked.Level)
	assert.Equal(t, "month closed", locked.Reason)
}

func TestCheckAndWrite_LockedPeriod_ManagerNeedsJustification(t *testing.T) {
	f := newFixture(t)
	f.lockGroup(t, "month closed")
	ctx := context.Background()

	// Empty and too-short justifications are rejected, not silently allowed.
	for _, just := range []string{"", "too short", "         "} {
		_, err := f.svc.CheckAndWrite(ctx, manager, entryWrite(10, 8), just)
		require.ErrorIs(t, err, periodlock.ErrJustificationRequired, "justification %q", just)
	}
}

func TestCheckAndWrite_JustificationMinimumCountsRunes(t *testing.T) {
	f := newFixture(t)
	f.lockGroup(t, "month closed")
	ctx := context.Background()

	// Five CJK characters are fifteen bytes but still too short.
	_, err := f.svc.CheckAndWrite(ctx, manager, entryWrite(10, 8), "理由が不足")
	require.ErrorIs(t, err, periodlock.ErrJustificationRequired)
	var je *periodlock.JustificationError
	require.ErrorAs(t, err, &je)
	assert.Equal(t, 5, je.Provided)

	// Eleven characters pass regardless of byte width.
	_, err = f.svc.CheckAndWrite(ctx, manager, entryWrite(11, 8), "クライアント調整のため")
	require.NoError(t, err)
}

func TestCheckAndWrite_LockedPeriod_ManagerWithJustification_Succeeds(t *testing.T) {
	f := newFixture(t)
	f.lockGroup(t, "month closed")

	res, err := f.svc.CheckAndWrite(context.Background(), manager, entryWrite(10, 7.5), "adjusted per client timesheet")
	require.NoError(t, err)

	assert.True(t, res.Guarded)
	assert.NotEmpty(t, res.AuditID)
	assert.False(t, res.AuditDegraded)
	assert.True(t, res.Notified)

	// Exactly one manager_edit_closed_period event, carrying the justification.
	edits := f.editsOn(t, res.Entry.ID)
	require.Len(t, edits, 1)
	assert.Equal(t, "adjusted per client timesheet", edits[0].Justification())
	assert.Equal(t, periodlock.EmployeeID("mgr-1"), edits[0].ActorID)

	// Notification went to the affected employee.
	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, periodlock.EmployeeID("emp-1"), f.notifier.sent[0].Recipient)
	assert.Equal(t, periodlock.NotifyClosedPeriodEdit, f.notifier.sent[0].Type)
}

// =============================================================================
// UPDATE PATH
// =============================================================================

func TestCheckAndWrite_UpdateKeepsEntryIdentity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.svc.CheckAndWrite(ctx, employee, entryWrite(10, 8), "")
	require.NoError(t, err)

	w := entryWrite(10, 6.5)
	w.ID = created.Entry.ID
	updated, err := f.svc.CheckAndWrite(ctx, employee, w, "")
	require.NoError(t, err)

	assert.Equal(t, created.Entry.ID, updated.Entry.ID)
	assert.True(t, decimal.NewFromFloat(6.5).Equal(updated.Entry.Hours))

	entries, err := f.mem.EntriesOf(ctx, testTenant, "ts-1")
	require.NoError(t, err)
	require.Len(t, entries, 1, "update must not create a second entry")
}

func TestCheckAndWrite_LockedUpdate_SnapshotsOldValues(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.svc.CheckAndWrite(ctx, employee, entryWrite(10, 8), "")
	require.NoError(t, err)

	f.lockGroup(t, "month closed")
	w := entryWrite(10, 6)
	w.ID = created.Entry.ID
	_, err = f.svc.CheckAndWrite(ctx, manager, w, "adjusted per client timesheet")
	require.NoError(t, err)

	edits := f.editsOn(t, created.Entry.ID)
	require.Len(t, edits, 1)
	assert.Equal(t, "8", edits[0].OldValues["hours"])
	assert.Equal(t, "6", edits[0].NewValues["hours"])
}

func TestCheckAndWrite_UpdateCannotStealForeignEntry(t *testing.T) {
	// emp-1 is authorized on ts-1 only. Supplying another timesheet's entry
	// id must not re-key that entry onto ts-1.
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.mem.SaveEmployee(ctx, periodlock.Employee{ID: "emp-2", Tenant: testTenant, Name: "Vic Tim", Role: periodlock.RoleEmployee}))
	require.NoError(t, f.mem.SaveTimesheet(ctx, periodlock.Timesheet{
		ID: "ts-2", Tenant: testTenant, Employee: "emp-2", Period: march2025(),
	}))
	victim, err := f.mem.PutEntry(ctx, testTenant, periodlock.EntryWrite{
		Timesheet: "ts-2",
		Date:      time.Date(2025, time.March, 4, 0, 0, 0, 0, time.UTC),
		Hours:     decimal.NewFromInt(8),
		Note:      "legit work",
	})
	require.NoError(t, err)

	w := entryWrite(10, 1)
	w.ID = victim.ID
	w.Note = "clobbered"
	_, err = f.svc.CheckAndWrite(ctx, employee, w, "")
	require.ErrorIs(t, err, periodlock.ErrNotFound)

	// The victim entry is untouched and still on its own timesheet.
	after, err := f.mem.GetEntry(ctx, testTenant, victim.ID)
	require.NoError(t, err)
	require.NotNil(t, after)
	assert.Equal(t, periodlock.TimesheetID("ts-2"), after.Timesheet)
	assert.Equal(t, "legit work", after.Note)

	entries, err := f.mem.EntriesOf(ctx, testTenant, "ts-2")
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

// =============================================================================
// AUTHORIZATION GATE
// =============================================================================

func TestCheckAndWrite_UndelegatedManager_ForbiddenBeforeResolution(t *testing.T) {
	f := newFixture(t)
	f.lockGroup(t, "month closed")

	// mgr-2 manages no group containing emp-1. Even a perfectly justified
	// write is rejected, and the lock state is not leaked.
	_, err := f.svc.CheckAndWrite(context.Background(), outsider, entryWrite(10, 8), "adjusted per client timesheet")
	require.ErrorIs(t, err, periodlock.ErrForbidden)
	assert.NotErrorIs(t, err, periodlock.ErrPeriodLocked)
}

func TestCheckAndWrite_EmployeeCannotWriteOthersTimesheet(t *testing.T) {
	f := newFixture(t)
	other := periodlock.Actor{ID: "emp-9", Tenant: testTenant, Role: periodlock.RoleEmployee}

	_, err := f.svc.CheckAndWrite(context.Background(), other, entryWrite(10, 8), "")
	require.ErrorIs(t, err, periodlock.ErrForbidden)
}

// =============================================================================
// ADMIN PATH
// =============================================================================

func TestCheckAndWrite_Admin_ExemptFromJustificationNotFromAudit(t *testing.T) {
	f := newFixture(t)
	f.lockGroup(t, "month closed")

	res, err := f.svc.CheckAndWrite(context.Background(), admin, entryWrite(10, 8), "")
	require.NoError(t, err)

	assert.True(t, res.Guarded)
	require.NotEmpty(t, res.AuditID)
	edits := f.editsOn(t, res.Entry.ID)
	require.Len(t, edits, 1)
	assert.Equal(t, periodlock.EmployeeID("adm-1"), edits[0].ActorID)
}

// =============================================================================
// DEGRADED SIDE EFFECTS
// =============================================================================

func TestCheckAndWrite_AuditAppendFails_PrimaryWriteSurvives(t *testing.T) {
	f := newFixture(t)
	f.lockGroup(t, "month closed")

	broken := periodlock.NewService(
		periodlock.NewResolver(f.mem, f.mem),
		periodlock.NewGate(f.mem),
		f.mem, f.mem, failLedger{f.mem}, f.notifier, zerolog.Nop(),
	)

	res, err := broken.CheckAndWrite(context.Background(), manager, entryWrite(10, 8), "adjusted per client timesheet")
	require.NoError(t, err, "audit failure must not fail the request")

	assert.True(t, res.AuditDegraded)
	assert.Empty(t, res.AuditID)
	assert.False(t, res.Notified, "notification waits for a durable audit event")

	// The data write committed.
	entry, err := f.mem.GetEntry(context.Background(), testTenant, res.Entry.ID)
	require.NoError(t, err)
	require.NotNil(t, entry)
}

func TestCheckAndWrite_NotificationFails_RequestStillSucceeds(t *testing.T) {
	f := newFixture(t)
	f.lockGroup(t, "month closed")
	f.notifier.fail = true

	res, err := f.svc.CheckAndWrite(context.Background(), manager, entryWrite(10, 8), "adjusted per client timesheet")
	require.NoError(t, err)
	assert.NotEmpty(t, res.AuditID)
	assert.False(t, res.Notified)
}

// =============================================================================
// ACKNOWLEDGMENT WRITES
// =============================================================================

func TestAcknowledgeAdjustment_UnknownEvent_NotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.AcknowledgeAdjustment(context.Background(), employee, "no-such-event", true)
	require.ErrorIs(t, err, periodlock.ErrNotFound)
}

func TestAcknowledgeAdjustment_NotOwner_Forbidden(t *testing.T) {
	f := newFixture(t)
	f.lockGroup(t, "month closed")
	ctx := context.Background()

	res, err := f.svc.CheckAndWrite(ctx, manager, entryWrite(10, 8), "adjusted per client timesheet")
	require.NoError(t, err)

	other := periodlock.Actor{ID: "emp-9", Tenant: testTenant, Role: periodlock.RoleEmployee}
	_, err = f.svc.AcknowledgeAdjustment(ctx, other, res.AuditID, true)
	require.ErrorIs(t, err, periodlock.ErrForbidden)
}

func TestAcknowledgeAdjustment_OnlyEditEventsAreAcknowledgeable(t *testing.T) {
	f := newFixture(t)
	f.lockGroup(t, "month closed")
	ctx := context.Background()

	res, err := f.svc.CheckAndWrite(ctx, manager, entryWrite(10, 8), "adjusted per client timesheet")
	require.NoError(t, err)

	ackID, err := f.svc.AcknowledgeAdjustment(ctx, employee, res.AuditID, true)
	require.NoError(t, err)

	// Acknowledging an acknowledgment is not a thing.
	_, err = f.svc.AcknowledgeAdjustment(ctx, employee, ackID, true)
	require.ErrorIs(t, err, periodlock.ErrNotFound)
}
