/*
store.go - Persistence interfaces for overrides, directory, and timesheets

PURPOSE:
  Defines the boundary between the engine and its backing stores. The
  engine treats every store as a collaborator: overrides and directory
  edges are read-only from its perspective (written by admin tooling),
  timesheet entries are the one thing it mutates, and the audit ledger
  (ledger.go) is append-only.

IMPLEMENTATIONS:
  - periodlock/store/memory.go: In-memory, for tests and dev
  - store/sqlite/sqlite.go: Production SQLite

SEE ALSO:
  - resolver.go: Consumes OverrideStore + DirectoryStore
  - service.go: Consumes TimesheetStore
*/
package periodlock

import "context"

// =============================================================================
// OVERRIDE STORE - One polymorphic table, scope-tagged
// =============================================================================

// Override is a scope-specific lock decision for one period. Absence of a
// record at a scope means "no opinion", not "unlocked".
type Override struct {
	Scope   Scope
	ScopeID string
	Period  PeriodKey
	Locked  bool
	Reason  string
}

// OverrideStore holds at most one override per (scope, scope_id, period).
// The four scope tables of the original design collapse into this single
// scope-tagged lookup.
type OverrideStore interface {
	// GetOverride returns the override for the key, or nil if no opinion
	// is recorded at that scope.
	GetOverride(ctx context.Context, tenant TenantID, scope Scope, scopeID string, period PeriodKey) (*Override, error)

	// SetOverride creates or replaces the override for its key. Used by
	// admin tooling only; the resolver never writes.
	SetOverride(ctx context.Context, tenant TenantID, ov Override) error
}

// =============================================================================
// DIRECTORY STORE - Membership edges and employee records
// =============================================================================

// DirectoryStore exposes the read-only membership graph owned by the
// administrative subsystem: employee -> groups, group -> environment, and
// manager -> managed groups.
type DirectoryStore interface {
	GetEmployee(ctx context.Context, tenant TenantID, id EmployeeID) (*Employee, error)

	// GroupsOf returns the groups the employee is a member of, in a
	// stable order. Empty is a normal answer, not an error.
	GroupsOf(ctx context.Context, tenant TenantID, employee EmployeeID) ([]Group, error)

	// GroupsManagedBy returns the groups the manager is assigned to.
	GroupsManagedBy(ctx context.Context, tenant TenantID, manager EmployeeID) ([]Group, error)
}

// =============================================================================
// TIMESHEET STORE - The guarded data
// =============================================================================

type TimesheetStore interface {
	GetTimesheet(ctx context.Context, tenant TenantID, id TimesheetID) (*Timesheet, error)

	// TimesheetsOf returns all of an employee's timesheets.
	TimesheetsOf(ctx context.Context, tenant TenantID, employee EmployeeID) ([]Timesheet, error)

	// EntriesOf returns a timesheet's entries ordered by date.
	EntriesOf(ctx context.Context, tenant TenantID, timesheet TimesheetID) ([]Entry, error)

	GetEntry(ctx context.Context, tenant TenantID, id EntryID) (*Entry, error)

	// PutEntry creates or updates an entry and returns the stored record.
	// This is the only mutation the engine performs outside the ledger.
	PutEntry(ctx context.Context, tenant TenantID, w EntryWrite) (*Entry, error)
}
