/*
Package periodlock implements the period-lock policy engine and the
manager-edit reconciliation workflow for a multi-tenant timesheet system.

PURPOSE:
  This package decides, for any employee and any calendar period, whether
  timesheet edits are allowed, and tracks, audits, and reconciles edits a
  manager makes to a period the employee can no longer edit.

KEY CONCEPTS IN THIS FILE (types.go):
  - Actor: Who is performing an operation (id + role)
  - Employee / Group / Environment: Directory model resolved for scoping
  - Timesheet / Entry: The data being guarded; hours use decimal.Decimal
  - Type-safe identifiers: Prevents mixing employee/group/timesheet ids

DESIGN PRINCIPLES:
  1. Derivation over state: Acknowledgment status is computed from the
     audit ledger at read time, never stored as a mutable column
  2. Precision: Entry hours use decimal.Decimal to avoid float errors
  3. Type Safety: Strong typing for IDs
  4. Auditability: Every guarded write leaves an immutable audit event

SEE ALSO:
  - period.go: Period key normalization (the unit locks are granted at)
  - resolver.go: Four-scope override resolution
  - service.go: The guarded write path (CheckAndWrite)
  - derive.go: Read-side reconciliation state derivation
*/
package periodlock

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type TenantID string
type EmployeeID string
type GroupID string
type EnvironmentID string
type TimesheetID string
type EntryID string

// =============================================================================
// ACTOR - Who is performing an operation
// =============================================================================

type Role string

const (
	RoleEmployee Role = "employee"
	RoleManager  Role = "manager"
	RoleAdmin    Role = "admin"
)

// Actor identifies the principal behind a request. Authentication is the
// caller's concern; this package only consumes the resolved identity.
type Actor struct {
	ID     EmployeeID
	Tenant TenantID
	Role   Role
}

func (a Actor) IsAdmin() bool   { return a.Role == RoleAdmin }
func (a Actor) IsManager() bool { return a.Role == RoleManager }

// =============================================================================
// DIRECTORY MODEL - Read-only inputs to scoping and enrichment
// =============================================================================

// Employee is a directory record. The engine reads it for display names and
// tenant membership; lifecycle is owned by a separate administrative system.
type Employee struct {
	ID        EmployeeID
	Tenant    TenantID
	Name      string
	Email     string
	Role      Role
	CreatedAt time.Time
}

// Group is a delegation unit: members are employees whose timesheets the
// group's managers may act on. A group optionally belongs to one environment.
type Group struct {
	ID          GroupID
	Tenant      TenantID
	Name        string
	Environment EnvironmentID // empty = no environment
}

// =============================================================================
// TIMESHEET MODEL - The data being guarded
// =============================================================================

// Timesheet collects one employee's entries for one calendar month.
type Timesheet struct {
	ID        TimesheetID
	Tenant    TenantID
	Employee  EmployeeID
	Period    PeriodKey
	CreatedAt time.Time
}

// Entry is a single line on a timesheet.
type Entry struct {
	ID        EntryID
	Timesheet TimesheetID
	Date      time.Time // day granularity, UTC
	Hours     decimal.Decimal
	Note      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// EntryWrite is the inbound mutation: create or update an entry. An empty ID
// means create; the store assigns one.
type EntryWrite struct {
	ID        EntryID
	Timesheet TimesheetID
	Date      time.Time
	Hours     decimal.Decimal
	Note      string
}
