package periodlock

import "context"

// =============================================================================
// AUTHORIZATION GATE - Who may act on whose timesheet
// =============================================================================

// Gate decides whether an actor may act on a given timesheet. It runs before
// lock resolution on every manager-initiated write, so a manager without
// delegation cannot probe lock state for employees outside their scope.
type Gate struct {
	Directory DirectoryStore
}

func NewGate(directory DirectoryStore) *Gate {
	return &Gate{Directory: directory}
}

// CanAct returns nil when the actor may act on the timesheet, ErrForbidden
// otherwise.
//
// Rules:
//   - Admins always pass.
//   - Employees pass only on their own timesheet.
//   - Managers pass only when the owning employee belongs to at least one
//     group the manager is assigned to. Both memberships are resolved
//     independently and intersected; an empty intersection is forbid.
//   - Any other role is forbid by default.
func (g *Gate) CanAct(ctx context.Context, actor Actor, ts *Timesheet) error {
	if ts.Tenant != actor.Tenant {
		return ErrForbidden
	}

	switch actor.Role {
	case RoleAdmin:
		return nil

	case RoleEmployee:
		if ts.Employee == actor.ID {
			return nil
		}
		return ErrForbidden

	case RoleManager:
		memberOf, err := g.Directory.GroupsOf(ctx, actor.Tenant, ts.Employee)
		if err != nil {
			return err
		}
		if len(memberOf) == 0 {
			return ErrForbidden
		}
		managed, err := g.Directory.GroupsManagedBy(ctx, actor.Tenant, actor.ID)
		if err != nil {
			return err
		}
		managedSet := make(map[GroupID]bool, len(managed))
		for _, m := range managed {
			managedSet[m.ID] = true
		}
		for _, m := range memberOf {
			if managedSet[m.ID] {
				return nil
			}
		}
		return ErrForbidden

	default:
		return ErrForbidden
	}
}
