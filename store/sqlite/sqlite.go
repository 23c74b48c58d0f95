/*
Package sqlite provides a SQLite-backed implementation of the periodlock
storage interfaces.

PURPOSE:
  Implements OverrideStore, DirectoryStore, TimesheetStore, and Ledger on
  SQLite. In production the same patterns apply to PostgreSQL - only minor
  SQL dialect differences.

APPEND-ONLY ENFORCEMENT:
  The audit_events table has no UPDATE and no DELETE statements anywhere
  in this package. Acknowledgment state is derived from event history, so
  duplicate acknowledgments are stored as-is; the derivation layer's
  tie-break handles them.

KEY TABLES:
  overrides      One row per (tenant, scope, scope_id, period_key)
  employees      Directory records
  work_groups    Delegation units, optional environment edge
  group_members  employee -> group membership
  group_managers manager -> group assignment
  timesheets     One per employee per month
  entries        Timesheet lines, hours as decimal text
  audit_events   Immutable ledger

WAL MODE:
  Opened with WAL for better concurrency: readers don't block, single
  writer at a time, better crash recovery.

SEE ALSO:
  - periodlock/store.go: Interface definitions
  - periodlock/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/timesheet-engine/periodlock"
)

// Store implements all periodlock storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Overrides: one polymorphic table, scope-tagged
	CREATE TABLE IF NOT EXISTS overrides (
		tenant_id TEXT NOT NULL,
		scope TEXT NOT NULL,
		scope_id TEXT NOT NULL,
		period_key TEXT NOT NULL,
		locked BOOLEAN NOT NULL,
		reason TEXT,
		PRIMARY KEY (tenant_id, scope, scope_id, period_key)
	);

	-- Directory
	CREATE TABLE IF NOT EXISTS employees (
		tenant_id TEXT NOT NULL,
		id TEXT NOT NULL,
		name TEXT NOT NULL,
		email TEXT,
		role TEXT NOT NULL,
		created_at TEXT NOT NULL,
		PRIMARY KEY (tenant_id, id)
	);

	CREATE TABLE IF NOT EXISTS work_groups (
		tenant_id TEXT NOT NULL,
		id TEXT NOT NULL,
		name TEXT NOT NULL,
		environment_id TEXT,
		PRIMARY KEY (tenant_id, id)
	);

	CREATE TABLE IF NOT EXISTS group_members (
		tenant_id TEXT NOT NULL,
		group_id TEXT NOT NULL,
		employee_id TEXT NOT NULL,
		PRIMARY KEY (tenant_id, group_id, employee_id)
	);
	CREATE INDEX IF NOT EXISTS idx_members_employee
		ON group_members(tenant_id, employee_id);

	CREATE TABLE IF NOT EXISTS group_managers (
		tenant_id TEXT NOT NULL,
		group_id TEXT NOT NULL,
		manager_id TEXT NOT NULL,
		PRIMARY KEY (tenant_id, group_id, manager_id)
	);
	CREATE INDEX IF NOT EXISTS idx_managers_manager
		ON group_managers(tenant_id, manager_id);

	-- Timesheets
	CREATE TABLE IF NOT EXISTS timesheets (
		tenant_id TEXT NOT NULL,
		id TEXT NOT NULL,
		employee_id TEXT NOT NULL,
		period_key TEXT NOT NULL,
		created_at TEXT NOT NULL,
		PRIMARY KEY (tenant_id, id)
	);
	CREATE INDEX IF NOT EXISTS idx_timesheets_employee
		ON timesheets(tenant_id, employee_id);

	CREATE TABLE IF NOT EXISTS entries (
		tenant_id TEXT NOT NULL,
		id TEXT NOT NULL,
		timesheet_id TEXT NOT NULL,
		date TEXT NOT NULL,
		hours TEXT NOT NULL,
		note TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (tenant_id, id)
	);
	CREATE INDEX IF NOT EXISTS idx_entries_timesheet
		ON entries(tenant_id, timesheet_id, date);

	-- Audit events (append-only ledger)
	CREATE TABLE IF NOT EXISTS audit_events (
		tenant_id TEXT NOT NULL,
		id TEXT NOT NULL,
		actor_id TEXT NOT NULL,
		action TEXT NOT NULL,
		resource_type TEXT NOT NULL,
		resource_id TEXT NOT NULL,
		old_values_json TEXT,
		new_values_json TEXT,
		created_at TEXT NOT NULL,
		PRIMARY KEY (tenant_id, id)
	);
	CREATE INDEX IF NOT EXISTS idx_events_resource
		ON audit_events(tenant_id, action, resource_type, resource_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// OVERRIDE STORE (periodlock.OverrideStore interface)
// =============================================================================

func (s *Store) GetOverride(ctx context.Context, tenant periodlock.TenantID, scope periodlock.Scope, scopeID string, period periodlock.PeriodKey) (*periodlock.Override, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		ov     periodlock.Override
		reason sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT scope, scope_id, locked, reason FROM overrides
		 WHERE tenant_id = ? AND scope = ? AND scope_id = ? AND period_key = ?`,
		tenant, scope, scopeID, period.String(),
	).Scan(&ov.Scope, &ov.ScopeID, &ov.Locked, &reason)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query override: %w", err)
	}
	ov.Period = period
	ov.Reason = reason.String
	return &ov, nil
}

func (s *Store) SetOverride(ctx context.Context, tenant periodlock.TenantID, ov periodlock.Override) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO overrides (tenant_id, scope, scope_id, period_key, locked, reason)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (tenant_id, scope, scope_id, period_key)
		 DO UPDATE SET locked = excluded.locked, reason = excluded.reason`,
		tenant, ov.Scope, ov.ScopeID, ov.Period.String(), ov.Locked, ov.Reason,
	)
	if err != nil {
		return fmt.Errorf("failed to set override: %w", err)
	}
	return nil
}

// =============================================================================
// DIRECTORY STORE (periodlock.DirectoryStore interface)
// =============================================================================

func (s *Store) GetEmployee(ctx context.Context, tenant periodlock.TenantID, id periodlock.EmployeeID) (*periodlock.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		e         periodlock.Employee
		email     sql.NullString
		createdAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, email, role, created_at FROM employees
		 WHERE tenant_id = ? AND id = ?`,
		tenant, id,
	).Scan(&e.ID, &e.Name, &email, &e.Role, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query employee: %w", err)
	}
	e.Tenant = tenant
	e.Email = email.String
	e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &e, nil
}

func (s *Store) GroupsOf(ctx context.Context, tenant periodlock.TenantID, employee periodlock.EmployeeID) ([]periodlock.Group, error) {
	return s.queryGroups(ctx, tenant,
		`SELECT g.id, g.name, g.environment_id FROM work_groups g
		 JOIN group_members m ON m.tenant_id = g.tenant_id AND m.group_id = g.id
		 WHERE g.tenant_id = ? AND m.employee_id = ?
		 ORDER BY m.rowid`,
		tenant, employee)
}

func (s *Store) GroupsManagedBy(ctx context.Context, tenant periodlock.TenantID, manager periodlock.EmployeeID) ([]periodlock.Group, error) {
	return s.queryGroups(ctx, tenant,
		`SELECT g.id, g.name, g.environment_id FROM work_groups g
		 JOIN group_managers m ON m.tenant_id = g.tenant_id AND m.group_id = g.id
		 WHERE g.tenant_id = ? AND m.manager_id = ?
		 ORDER BY m.rowid`,
		tenant, manager)
}

func (s *Store) queryGroups(ctx context.Context, tenant periodlock.TenantID, query string, args ...any) ([]periodlock.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query groups: %w", err)
	}
	defer rows.Close()

	var groups []periodlock.Group
	for rows.Next() {
		var (
			g   periodlock.Group
			env sql.NullString
		)
		if err := rows.Scan(&g.ID, &g.Name, &env); err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		g.Tenant = tenant
		g.Environment = periodlock.EnvironmentID(env.String)
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// SaveEmployee creates or replaces a directory record.
func (s *Store) SaveEmployee(ctx context.Context, e periodlock.Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO employees (tenant_id, id, name, email, role, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.Tenant, e.ID, e.Name, e.Email, e.Role, e.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to save employee: %w", err)
	}
	return nil
}

// SaveGroup creates or replaces a group.
func (s *Store) SaveGroup(ctx context.Context, g periodlock.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO work_groups (tenant_id, id, name, environment_id)
		 VALUES (?, ?, ?, ?)`,
		g.Tenant, g.ID, g.Name, string(g.Environment),
	)
	if err != nil {
		return fmt.Errorf("failed to save group: %w", err)
	}
	return nil
}

// AddMember records employee membership in a group.
func (s *Store) AddMember(ctx context.Context, tenant periodlock.TenantID, group periodlock.GroupID, employee periodlock.EmployeeID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO group_members (tenant_id, group_id, employee_id) VALUES (?, ?, ?)`,
		tenant, group, employee,
	)
	return err
}

// AddManager records a manager's assignment to a group.
func (s *Store) AddManager(ctx context.Context, tenant periodlock.TenantID, group periodlock.GroupID, manager periodlock.EmployeeID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO group_managers (tenant_id, group_id, manager_id) VALUES (?, ?, ?)`,
		tenant, group, manager,
	)
	return err
}

// =============================================================================
// TIMESHEET STORE (periodlock.TimesheetStore interface)
// =============================================================================

func (s *Store) GetTimesheet(ctx context.Context, tenant periodlock.TenantID, id periodlock.TimesheetID) (*periodlock.Timesheet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT id, employee_id, period_key, created_at FROM timesheets
		 WHERE tenant_id = ? AND id = ?`,
		tenant, id,
	)
	ts, err := scanTimesheet(row, tenant)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return ts, nil
}

func (s *Store) TimesheetsOf(ctx context.Context, tenant periodlock.TenantID, employee periodlock.EmployeeID) ([]periodlock.Timesheet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, employee_id, period_key, created_at FROM timesheets
		 WHERE tenant_id = ? AND employee_id = ?
		 ORDER BY period_key`,
		tenant, employee,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query timesheets: %w", err)
	}
	defer rows.Close()

	var sheets []periodlock.Timesheet
	for rows.Next() {
		ts, err := scanTimesheet(rows, tenant)
		if err != nil {
			return nil, err
		}
		sheets = append(sheets, *ts)
	}
	return sheets, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTimesheet(row rowScanner, tenant periodlock.TenantID) (*periodlock.Timesheet, error) {
	var (
		ts        periodlock.Timesheet
		periodKey string
		createdAt string
	)
	if err := row.Scan(&ts.ID, &ts.Employee, &periodKey, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan timesheet: %w", err)
	}
	ts.Tenant = tenant
	period, err := periodlock.ParsePeriodKey(periodKey)
	if err != nil {
		return nil, err
	}
	ts.Period = period
	ts.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &ts, nil
}

// SaveTimesheet creates or replaces a timesheet.
func (s *Store) SaveTimesheet(ctx context.Context, ts periodlock.Timesheet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ts.CreatedAt.IsZero() {
		ts.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO timesheets (tenant_id, id, employee_id, period_key, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		ts.Tenant, ts.ID, ts.Employee, ts.Period.String(), ts.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to save timesheet: %w", err)
	}
	return nil
}

func (s *Store) EntriesOf(ctx context.Context, tenant periodlock.TenantID, timesheet periodlock.TimesheetID) ([]periodlock.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, timesheet_id, date, hours, note, created_at, updated_at FROM entries
		 WHERE tenant_id = ? AND timesheet_id = ?
		 ORDER BY date, id`,
		tenant, timesheet,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	var entries []periodlock.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

func (s *Store) GetEntry(ctx context.Context, tenant periodlock.TenantID, id periodlock.EntryID) (*periodlock.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT id, timesheet_id, date, hours, note, created_at, updated_at FROM entries
		 WHERE tenant_id = ? AND id = ?`,
		tenant, id,
	)
	e, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

func scanEntry(row rowScanner) (*periodlock.Entry, error) {
	var (
		e         periodlock.Entry
		date      string
		hours     string
		note      sql.NullString
		createdAt string
		updatedAt string
	)
	if err := row.Scan(&e.ID, &e.Timesheet, &date, &hours, &note, &createdAt, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan entry: %w", err)
	}
	e.Date, _ = time.Parse("2006-01-02", date)
	e.Hours, _ = decimal.NewFromString(hours)
	e.Note = note.String
	e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	e.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &e, nil
}

func (s *Store) PutEntry(ctx context.Context, tenant periodlock.TenantID, w periodlock.EntryWrite) (*periodlock.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

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
	} else {
		var createdAt string
		err := s.db.QueryRowContext(ctx,
			`SELECT created_at FROM entries WHERE tenant_id = ? AND id = ?`,
			tenant, entry.ID,
		).Scan(&createdAt)
		if err == nil {
			entry.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		} else if err != sql.ErrNoRows {
			return nil, fmt.Errorf("failed to query entry: %w", err)
		}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO entries (tenant_id, id, timesheet_id, date, hours, note, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		tenant, entry.ID, entry.Timesheet, entry.Date.Format("2006-01-02"),
		entry.Hours.String(), entry.Note,
		entry.CreatedAt.Format(time.RFC3339Nano), entry.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to put entry: %w", err)
	}
	return &entry, nil
}

// =============================================================================
// LEDGER (periodlock.Ledger interface) - Append-only
// =============================================================================

func (s *Store) Append(ctx context.Context, e periodlock.Event) (periodlock.EventID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.ID == "" {
		e.ID = periodlock.EventID(uuid.NewString())
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	oldJSON, err := marshalValues(e.OldValues)
	if err != nil {
		return "", err
	}
	newJSON, err := marshalValues(e.NewValues)
	if err != nil {
		return "", err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO audit_events (tenant_id, id, actor_id, action, resource_type, resource_id, old_values_json, new_values_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Tenant, e.ID, e.ActorID, e.Action, e.ResourceType, e.ResourceID,
		oldJSON, newJSON, e.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return "", fmt.Errorf("failed to append audit event: %w", err)
	}
	return e.ID, nil
}

func (s *Store) Get(ctx context.Context, tenant periodlock.TenantID, id periodlock.EventID) (*periodlock.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT id, actor_id, action, resource_type, resource_id, old_values_json, new_values_json, created_at
		 FROM audit_events WHERE tenant_id = ? AND id = ?`,
		tenant, id,
	)
	e, err := scanEvent(row, tenant)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (s *Store) QueryByResourceIDs(ctx context.Context, tenant periodlock.TenantID, action periodlock.Action, rt periodlock.ResourceType, resourceIDs []string) ([]periodlock.Event, error) {
	if len(resourceIDs) == 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	placeholders := strings.Repeat("?,", len(resourceIDs))
	placeholders = placeholders[:len(placeholders)-1]

	args := []any{tenant, action, rt}
	for _, id := range resourceIDs {
		args = append(args, id)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, actor_id, action, resource_type, resource_id, old_values_json, new_values_json, created_at
		 FROM audit_events
		 WHERE tenant_id = ? AND action = ? AND resource_type = ? AND resource_id IN (`+placeholders+`)
		 ORDER BY created_at, id`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close()

	var events []periodlock.Event
	for rows.Next() {
		e, err := scanEvent(rows, tenant)
		if err != nil {
			return nil, err
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

func scanEvent(row rowScanner, tenant periodlock.TenantID) (*periodlock.Event, error) {
	var (
		e         periodlock.Event
		oldJSON   sql.NullString
		newJSON   sql.NullString
		createdAt string
	)
	if err := row.Scan(&e.ID, &e.ActorID, &e.Action, &e.ResourceType, &e.ResourceID, &oldJSON, &newJSON, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan audit event: %w", err)
	}
	e.Tenant = tenant
	if oldJSON.Valid && oldJSON.String != "" {
		json.Unmarshal([]byte(oldJSON.String), &e.OldValues)
	}
	if newJSON.Valid && newJSON.String != "" {
		json.Unmarshal([]byte(newJSON.String), &e.NewValues)
	}
	e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &e, nil
}

func marshalValues(v map[string]any) (string, error) {
	if v == nil {
		return "", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal values: %w", err)
	}
	return string(b), nil
}
