// Package store provides in-memory implementations of the periodlock store
// interfaces, for tests and development.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/warp/timesheet-engine/periodlock"
)

// =============================================================================
// MEMORY - Implements OverrideStore, DirectoryStore, TimesheetStore, Ledger
// =============================================================================

type Memory struct {
	mu sync.RWMutex

	overrides  map[overrideKey]periodlock.Override
	employees  map[scopedID]periodlock.Employee
	groups     map[scopedID]periodlock.Group
	memberOf   map[scopedID][]periodlock.GroupID
	managerOf  map[scopedID][]periodlock.GroupID
	timesheets map[scopedID]periodlock.Timesheet
	entries    map[scopedID]periodlock.Entry
	events     map[scopedID]periodlock.Event
}

type scopedID struct {
	Tenant periodlock.TenantID
	ID     string
}

type overrideKey struct {
	Tenant  periodlock.TenantID
	Scope   periodlock.Scope
	ScopeID string
	Period  string
}

func NewMemory() *Memory {
	return &Memory{
		overrides:  make(map[overrideKey]periodlock.Override),
		employees:  make(map[scopedID]periodlock.Employee),
		groups:     make(map[scopedID]periodlock.Group),
		memberOf:   make(map[scopedID][]periodlock.GroupID),
		managerOf:  make(map[scopedID][]periodlock.GroupID),
		timesheets: make(map[scopedID]periodlock.Timesheet),
		entries:    make(map[scopedID]periodlock.Entry),
		events:     make(map[scopedID]periodlock.Event),
	}
}

// =============================================================================
// OVERRIDE STORE
// =============================================================================

func (m *Memory) GetOverride(_ context.Context, tenant periodlock.TenantID, scope periodlock.Scope, scopeID string, period periodlock.PeriodKey) (*periodlock.Override, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ov, ok := m.overrides[overrideKey{tenant, scope, scopeID, period.String()}]
	if !ok {
		return nil, nil
	}
	return &ov, nil
}

func (m *Memory) SetOverride(_ context.Context, tenant periodlock.TenantID, ov periodlock.Override) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.overrides[overrideKey{tenant, ov.Scope, ov.ScopeID, ov.Period.String()}] = ov
	return nil
}

// =============================================================================
// DIRECTORY STORE
// =============================================================================

func (m *Memory) GetEmployee(_ context.Context, tenant periodlock.TenantID, id periodlock.EmployeeID) (*periodlock.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.employees[scopedID{tenant, string(id)}]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (m *Memory) GroupsOf(_ context.Context, tenant periodlock.TenantID, employee periodlock.EmployeeID) ([]periodlock.Group, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.groupList(tenant, m.memberOf[scopedID{tenant, string(employee)}]), nil
}

func (m *Memory) GroupsManagedBy(_ context.Context, tenant periodlock.TenantID, manager periodlock.EmployeeID) ([]periodlock.Group, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.groupList(tenant, m.managerOf[scopedID{tenant, string(manager)}]), nil
}

func (m *Memory) groupList(tenant periodlock.TenantID, ids []periodlock.GroupID) []periodlock.Group {
	groups := make([]periodlock.Group, 0, len(ids))
	for _, id := range ids {
		if g, ok := m.groups[scopedID{tenant, string(id)}]; ok {
			groups = append(groups, g)
		}
	}
	return groups
}

// SaveEmployee registers a directory record.
func (m *Memory) SaveEmployee(_ context.Context, e periodlock.Employee) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	m.employees[scopedID{e.Tenant, string(e.ID)}] = e
	return nil
}

// SaveGroup registers a group.
func (m *Memory) SaveGroup(_ context.Context, g periodlock.Group) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.groups[scopedID{g.Tenant, string(g.ID)}] = g
	return nil
}

// AddMember records employee membership in a group.
func (m *Memory) AddMember(_ context.Context, tenant periodlock.TenantID, group periodlock.GroupID, employee periodlock.EmployeeID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := scopedID{tenant, string(employee)}
	m.memberOf[k] = appendUnique(m.memberOf[k], group)
	return nil
}

// AddManager records a manager's assignment to a group.
func (m *Memory) AddManager(_ context.Context, tenant periodlock.TenantID, group periodlock.GroupID, manager periodlock.EmployeeID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := scopedID{tenant, string(manager)}
	m.managerOf[k] = appendUnique(m.managerOf[k], group)
	return nil
}

func appendUnique(ids []periodlock.GroupID, id periodlock.GroupID) []periodlock.GroupID {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}

// =============================================================================
// TIMESHEET STORE
// =============================================================================

func (m *Memory) GetTimesheet(_ context.Context, tenant periodlock.TenantID, id periodlock.TimesheetID) (*periodlock.Timesheet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ts, ok := m.timesheets[scopedID{tenant, string(id)}]
	if !ok {
		return nil, nil
	}
	return &ts, nil
}

func (m *Memory) TimesheetsOf(_ context.Context, tenant periodlock.TenantID, employee periodlock.EmployeeID) ([]periodlock.Timesheet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var sheets []periodlock.Timesheet
	for k, ts := range m.timesheets {
		if k.Tenant == tenant && ts.Employee == employee {
			sheets = append(sheets, ts)
		}
	}
	sort.Slice(sheets, func(i, j int) bool { return sheets[i].ID < sheets[j].ID })
	return sheets, nil
}

func (m *Memory) EntriesOf(_ context.Context, tenant periodlock.TenantID, timesheet periodlock.TimesheetID) ([]periodlock.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var entries []periodlock.Entry
	for k, e := range m.entries {
		if k.Tenant == tenant && e.Timesheet == timesheet {
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].Date.Equal(entries[j].Date) {
			return entries[i].Date.Before(entries[j].Date)
		}
		return entries[i].ID < entries[j].ID
	})
	return entries, nil
}

func (m *Memory) GetEntry(_ context.Context, tenant periodlock.TenantID, id periodlock.EntryID) (*periodlock.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[scopedID{tenant, string(id)}]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (m *Memory) PutEntry(_ context.Context, tenant periodlock.TenantID, w periodlock.EntryWrite) (*periodlock.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	entry := periodlock.Entry{
		ID:        w.ID,
		Timesheet: w.Timesheet,
		Date:      w.Date,
		Hours:     w.Hours,
		Note:      w.Note,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if entry.ID == "" {
		entry.ID = periodlock.EntryID(uuid.NewString())
	} else if prev, ok := m.entries[scopedID{tenant, string(entry.ID)}]; ok {
		entry.CreatedAt = prev.CreatedAt
	}
	m.entries[scopedID{tenant, string(entry.ID)}] = entry
	return &entry, nil
}

// SaveTimesheet registers a timesheet.
func (m *Memory) SaveTimesheet(_ context.Context, ts periodlock.Timesheet) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ts.CreatedAt.IsZero() {
		ts.CreatedAt = time.Now().UTC()
	}
	m.timesheets[scopedID{ts.Tenant, string(ts.ID)}] = ts
	return nil
}

// =============================================================================
// LEDGER - Append-only
// =============================================================================

func (m *Memory) Append(_ context.Context, e periodlock.Event) (periodlock.EventID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e.ID == "" {
		e.ID = periodlock.EventID(uuid.NewString())
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	m.events[scopedID{e.Tenant, string(e.ID)}] = e
	return e.ID, nil
}

func (m *Memory) Get(_ context.Context, tenant periodlock.TenantID, id periodlock.EventID) (*periodlock.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.events[scopedID{tenant, string(id)}]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (m *Memory) QueryByResourceIDs(_ context.Context, tenant periodlock.TenantID, action periodlock.Action, rt periodlock.ResourceType, resourceIDs []string) ([]periodlock.Event, error) {
	if len(resourceIDs) == 0 {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	wanted := make(map[string]bool, len(resourceIDs))
	for _, id := range resourceIDs {
		wanted[id] = true
	}

	var result []periodlock.Event
	for k, e := range m.events {
		if k.Tenant == tenant && e.Action == action && e.ResourceType == rt && wanted[e.ResourceID] {
			result = append(result, e)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}
