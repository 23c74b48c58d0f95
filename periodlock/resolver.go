/*
resolver.go - Four-scope override resolution

PURPOSE:
  Answers the single question "may this employee's period be edited?" by
  consulting overrides at four scopes in strict precedence order:

    employee > group > environment > tenant > (none)

  First scope with an opinion wins; higher scopes are never consulted once
  a lower one answers.

THE ONE SUBTLE RULE:
  At group and environment scope an employee can reach several overrides
  at once. The decision is locked if ANY of them is locked - an employee
  must not be able to edit a period just because one of their groups is
  unlocked while another is locked. Taking the first group arbitrarily
  instead of OR-ing the locked flags is the classic way to get this wrong.

CONTRACT:
  Resolution never fails by design: every input either resolves to a
  definite decision or falls through to ScopeNone/unlocked. An employee
  with no memberships simply has nothing to find at group/environment
  scope. Store errors are the only error path.

SEE ALSO:
  - store.go: OverrideStore, DirectoryStore
  - service.go: Treats locked=true as a hard gate on writes
*/
package periodlock

import "context"

// =============================================================================
// SCOPE - The levels at which an override can be declared
// =============================================================================

type Scope string

const (
	ScopeEmployee    Scope = "employee"
	ScopeGroup       Scope = "group"
	ScopeEnvironment Scope = "environment"
	ScopeTenant      Scope = "tenant"
	ScopeNone        Scope = "none"
)

// ScopePrecedence is the resolution order, most specific first. The loop in
// Resolve walks this list instead of four bespoke lookups.
var ScopePrecedence = []Scope{ScopeEmployee, ScopeGroup, ScopeEnvironment, ScopeTenant}

// ValidScope reports whether s names a declarable scope (ScopeNone is a
// resolution outcome, not a declarable scope).
func ValidScope(s Scope) bool {
	for _, v := range ScopePrecedence {
		if s == v {
			return true
		}
	}
	return false
}

// =============================================================================
// DECISION - The resolver's answer
// =============================================================================

// Decision is the effective lock state for (employee, period).
type Decision struct {
	Locked bool
	Reason string
	Level  Scope // which scope answered; ScopeNone if no override found
}

// =============================================================================
// RESOLVER
// =============================================================================

// Resolver computes effective lock decisions from the override store and the
// membership graph. It is a pure read path: safe under arbitrary concurrency.
type Resolver struct {
	Overrides OverrideStore
	Directory DirectoryStore
}

func NewResolver(overrides OverrideStore, directory DirectoryStore) *Resolver {
	return &Resolver{Overrides: overrides, Directory: directory}
}

// Resolve returns the effective lock decision for the employee and period.
func (r *Resolver) Resolve(ctx context.Context, tenant TenantID, employee EmployeeID, period PeriodKey) (Decision, error) {
	for _, scope := range ScopePrecedence {
		var (
			d   *Decision
			err error
		)
		switch scope {
		case ScopeEmployee:
			d, err = r.single(ctx, tenant, ScopeEmployee, string(employee), period)
		case ScopeGroup:
			d, err = r.groupScope(ctx, tenant, employee, period)
		case ScopeEnvironment:
			d, err = r.environmentScope(ctx, tenant, employee, period)
		case ScopeTenant:
			d, err = r.single(ctx, tenant, ScopeTenant, string(tenant), period)
		}
		if err != nil {
			return Decision{}, err
		}
		if d != nil {
			return *d, nil
		}
	}

	// No override at any scope: editable.
	return Decision{Locked: false, Level: ScopeNone}, nil
}

// single resolves a scope that can hold at most one override for the key.
func (r *Resolver) single(ctx context.Context, tenant TenantID, scope Scope, scopeID string, period PeriodKey) (*Decision, error) {
	ov, err := r.Overrides.GetOverride(ctx, tenant, scope, scopeID, period)
	if err != nil {
		return nil, err
	}
	if ov == nil {
		return nil, nil
	}
	return &Decision{Locked: ov.Locked, Reason: ov.Reason, Level: scope}, nil
}

// groupScope applies the any-locked-wins rule across the employee's groups.
func (r *Resolver) groupScope(ctx context.Context, tenant TenantID, employee EmployeeID, period PeriodKey) (*Decision, error) {
	groups, err := r.Directory.GroupsOf(ctx, tenant, employee)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(groups))
	for _, g := range groups {
		ids = append(ids, string(g.ID))
	}
	return r.anyLocked(ctx, tenant, ScopeGroup, ids, period)
}

// environmentScope applies the same rule across the distinct environments
// reachable through the employee's groups.
func (r *Resolver) environmentScope(ctx context.Context, tenant TenantID, employee EmployeeID, period PeriodKey) (*Decision, error) {
	groups, err := r.Directory.GroupsOf(ctx, tenant, employee)
	if err != nil {
		return nil, err
	}
	seen := make(map[EnvironmentID]bool)
	var ids []string
	for _, g := range groups {
		if g.Environment == "" || seen[g.Environment] {
			continue
		}
		seen[g.Environment] = true
		ids = append(ids, string(g.Environment))
	}
	return r.anyLocked(ctx, tenant, ScopeEnvironment, ids, period)
}

// anyLocked collects the overrides present across scopeIDs. If none exist
// the scope has no opinion. If any exist, the decision is locked when at
// least one is locked; the reason comes from the first locked override in
// membership order (or the first override at all when none is locked).
func (r *Resolver) anyLocked(ctx context.Context, tenant TenantID, scope Scope, scopeIDs []string, period PeriodKey) (*Decision, error) {
	var found []*Override
	for _, id := range scopeIDs {
		ov, err := r.Overrides.GetOverride(ctx, tenant, scope, id, period)
		if err != nil {
			return nil, err
		}
		if ov != nil {
			found = append(found, ov)
		}
	}
	if len(found) == 0 {
		return nil, nil
	}

	d := &Decision{Level: scope, Reason: found[0].Reason}
	for _, ov := range found {
		if ov.Locked {
			d.Locked = true
			d.Reason = ov.Reason
			break
		}
	}
	return d, nil
}
