/*
handlers.go - HTTP API handlers for the period-lock engine

PURPOSE:
  Exposes the engine via REST. Handles HTTP request/response, JSON
  serialization, and delegates to domain logic.

ENDPOINTS:
  Guarded writes:
    POST   /api/timesheets/{id}/entries          Write an entry (CheckAndWrite)
    GET    /api/timesheets/{id}/entries          List entries
    GET    /api/timesheets/{id}/reconciliation   Reconciliation status

  Reconciliation:
    GET    /api/employees/{id}/acknowledgments/pending
    POST   /api/employees/{id}/acknowledgments

  Policy:
    GET    /api/policy/resolve?employee=&period=

  Admin:
    PUT    /api/admin/overrides     Declare a lock at one scope
    POST   /api/admin/employees     Register a directory record
    POST   /api/admin/groups        Register a group + memberships
    POST   /api/admin/timesheets    Register a timesheet

ACTOR IDENTITY:
  No authentication layer here; the caller's identity arrives in the
  X-Tenant-ID, X-Actor-ID and X-Actor-Role headers, the way an upstream
  gateway would inject it.

ERROR HANDLING:
  Expected business outcomes map to JSON errors with stable codes:
  - 400 validation         Malformed period key, date, body
  - 403 forbidden          Authorization Gate said no
  - 404 not_found          Missing timesheet/entry/event
  - 409 period_locked      The lock rejected the write (level + reason)
  - 422 justification_required

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/warp/timesheet-engine/config"
	"github.com/warp/timesheet-engine/periodlock"
	"github.com/warp/timesheet-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store    *sqlite.Store
	Service  *periodlock.Service
	Tracker  *periodlock.Tracker
	Resolver *periodlock.Resolver
	Log      zerolog.Logger
}

// NewHandler wires the engine onto the given store.
func NewHandler(store *sqlite.Store, cfg config.Config, log zerolog.Logger) *Handler {
	resolver := periodlock.NewResolver(store, store)
	gate := periodlock.NewGate(store)
	notifier := &periodlock.LogNotifier{Log: log}

	service := periodlock.NewService(resolver, gate, store, store, store, notifier, log)
	service.MinJustification = cfg.MinJustification

	tracker := periodlock.NewTracker(store, store, store)
	tracker.DeclarationBaseURL = cfg.DeclarationBaseURL

	return &Handler{
		Store:    store,
		Service:  service,
		Tracker:  tracker,
		Resolver: resolver,
		Log:      log,
	}
}

// actorFromRequest reads the identity headers an upstream gateway injects.
func actorFromRequest(r *http.Request) (periodlock.Actor, bool) {
	actor := periodlock.Actor{
		ID:     periodlock.EmployeeID(r.Header.Get("X-Actor-ID")),
		Tenant: periodlock.TenantID(r.Header.Get("X-Tenant-ID")),
		Role:   periodlock.Role(r.Header.Get("X-Actor-Role")),
	}
	if actor.ID == "" || actor.Tenant == "" || actor.Role == "" {
		return periodlock.Actor{}, false
	}
	return actor, true
}

// =============================================================================
// GUARDED WRITE HANDLERS
// =============================================================================

// WriteEntry performs a timesheet entry write under the period-lock policy.
func (h *Handler) WriteEntry(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "validation", "Missing actor headers", nil)
		return
	}

	var req WriteEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation", "Invalid request body", err)
		return
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation", "Invalid date format (use YYYY-MM-DD)", err)
		return
	}

	write := periodlock.EntryWrite{
		ID:        periodlock.EntryID(req.ID),
		Timesheet: periodlock.TimesheetID(chi.URLParam(r, "id")),
		Date:      date,
		Hours:     decimal.NewFromFloat(req.Hours),
		Note:      req.Note,
	}

	res, err := h.Service.CheckAndWrite(r.Context(), actor, write, req.Justification)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, WriteEntryResponse{
		Entry:         toEntryDTO(res.Entry),
		Decision:      toDecisionDTO(res.Decision),
		Guarded:       res.Guarded,
		AuditID:       string(res.AuditID),
		AuditDegraded: res.AuditDegraded,
		Notified:      res.Notified,
	})
}

// authorizeTimesheet applies the same owner/manager/admin rule as the write
// path before any timesheet read.
func (h *Handler) authorizeTimesheet(w http.ResponseWriter, r *http.Request, actor periodlock.Actor, id periodlock.TimesheetID) bool {
	ts, err := h.Store.GetTimesheet(r.Context(), actor.Tenant, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "Failed to load timesheet", err)
		return false
	}
	if ts == nil {
		writeError(w, http.StatusNotFound, "not_found", "Not found", nil)
		return false
	}
	if err := h.Service.Gate.CanAct(r.Context(), actor, ts); err != nil {
		h.writeDomainError(w, err)
		return false
	}
	return true
}

// ListEntries returns a timesheet's entries.
func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "validation", "Missing actor headers", nil)
		return
	}
	id := periodlock.TimesheetID(chi.URLParam(r, "id"))
	if !h.authorizeTimesheet(w, r, actor, id) {
		return
	}

	entries, err := h.Store.EntriesOf(r.Context(), actor.Tenant, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "Failed to list entries", err)
		return
	}
	dtos := make([]EntryDTO, len(entries))
	for i := range entries {
		dtos[i] = toEntryDTO(&entries[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetReconciliation returns the reconciliation status of a timesheet.
func (h *Handler) GetReconciliation(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "validation", "Missing actor headers", nil)
		return
	}

	id := periodlock.TimesheetID(chi.URLParam(r, "id"))
	if !h.authorizeTimesheet(w, r, actor, id) {
		return
	}

	status, err := h.Tracker.Status(r.Context(), actor.Tenant, id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ReconciliationStatusDTO{
		Total:             status.Total,
		WithJustification: status.WithJustification,
		Acknowledged:      status.Acknowledged,
		Contested:         status.Contested,
		PendingAck:        status.PendingAck,
	})
}

// =============================================================================
// ACKNOWLEDGMENT HANDLERS
// =============================================================================

// GetPendingAcknowledgments lists the manager edits awaiting the employee's
// verdict.
func (h *Handler) GetPendingAcknowledgments(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "validation", "Missing actor headers", nil)
		return
	}
	employee := periodlock.EmployeeID(chi.URLParam(r, "id"))
	if actor.ID != employee && !actor.IsAdmin() {
		writeError(w, http.StatusForbidden, "forbidden", "Cannot view another employee's acknowledgments", nil)
		return
	}

	pending, err := h.Tracker.PendingAcknowledgments(r.Context(), actor.Tenant, employee)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "Failed to derive pending acknowledgments", err)
		return
	}
	writeJSON(w, http.StatusOK, toPendingDTOs(pending))
}

// Acknowledge records the employee's verdict on a manager edit.
func (h *Handler) Acknowledge(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "validation", "Missing actor headers", nil)
		return
	}
	if actor.ID != periodlock.EmployeeID(chi.URLParam(r, "id")) {
		writeError(w, http.StatusForbidden, "forbidden", "Only the employee may acknowledge", nil)
		return
	}

	var req AcknowledgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation", "Invalid request body", err)
		return
	}
	if req.AuditID == "" {
		writeError(w, http.StatusBadRequest, "validation", "audit_id is required", nil)
		return
	}
	accepted := true
	if req.Accepted != nil {
		accepted = *req.Accepted
	}

	ackID, err := h.Service.AcknowledgeAdjustment(r.Context(), actor, periodlock.EventID(req.AuditID), accepted)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, AcknowledgeResponse{AuditID: string(ackID)})
}

// =============================================================================
// POLICY HANDLERS
// =============================================================================

// ResolvePolicy returns the effective lock decision for an employee and
// period.
func (h *Handler) ResolvePolicy(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "validation", "Missing actor headers", nil)
		return
	}

	employee := periodlock.EmployeeID(r.URL.Query().Get("employee"))
	if employee == "" {
		employee = actor.ID
	}
	period, err := periodlock.ParsePeriodKey(r.URL.Query().Get("period"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	decision, err := h.Resolver.Resolve(r.Context(), actor.Tenant, employee, period)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "Failed to resolve policy", err)
		return
	}
	writeJSON(w, http.StatusOK, toDecisionDTO(decision))
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

func (h *Handler) requireAdmin(w http.ResponseWriter, r *http.Request) (periodlock.Actor, bool) {
	actor, ok := actorFromRequest(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "validation", "Missing actor headers", nil)
		return periodlock.Actor{}, false
	}
	if !actor.IsAdmin() {
		writeError(w, http.StatusForbidden, "forbidden", "Administrator role required", nil)
		return periodlock.Actor{}, false
	}
	return actor, true
}

// SetOverride declares a lock decision at one scope for one period.
func (h *Handler) SetOverride(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireAdmin(w, r)
	if !ok {
		return
	}

	var req SetOverrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation", "Invalid request body", err)
		return
	}
	if !periodlock.ValidScope(periodlock.Scope(req.Scope)) {
		writeError(w, http.StatusBadRequest, "validation", "Unknown scope", nil)
		return
	}
	if req.ScopeID == "" {
		writeError(w, http.StatusBadRequest, "validation", "scope_id is required", nil)
		return
	}
	period, err := periodlock.ParsePeriodKey(req.Period)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	err = h.Store.SetOverride(r.Context(), actor.Tenant, periodlock.Override{
		Scope:   periodlock.Scope(req.Scope),
		ScopeID: req.ScopeID,
		Period:  period,
		Locked:  req.Locked,
		Reason:  req.Reason,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "Failed to set override", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateEmployee registers a directory record.
func (h *Handler) CreateEmployee(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireAdmin(w, r)
	if !ok {
		return
	}

	var req CreateEmployeeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation", "Invalid request body", err)
		return
	}
	if req.ID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "validation", "id and name are required", nil)
		return
	}

	err := h.Store.SaveEmployee(r.Context(), periodlock.Employee{
		ID:     periodlock.EmployeeID(req.ID),
		Tenant: actor.Tenant,
		Name:   req.Name,
		Email:  req.Email,
		Role:   periodlock.Role(req.Role),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "Failed to create employee", err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// CreateGroup registers a group and its memberships.
func (h *Handler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireAdmin(w, r)
	if !ok {
		return
	}

	var req CreateGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation", "Invalid request body", err)
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "validation", "id is required", nil)
		return
	}

	ctx := r.Context()
	group := periodlock.GroupID(req.ID)
	err := h.Store.SaveGroup(ctx, periodlock.Group{
		ID:          group,
		Tenant:      actor.Tenant,
		Name:        req.Name,
		Environment: periodlock.EnvironmentID(req.Environment),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "Failed to create group", err)
		return
	}
	for _, member := range req.Members {
		if err := h.Store.AddMember(ctx, actor.Tenant, group, periodlock.EmployeeID(member)); err != nil {
			writeError(w, http.StatusInternalServerError, "internal", "Failed to add member", err)
			return
		}
	}
	for _, manager := range req.Managers {
		if err := h.Store.AddManager(ctx, actor.Tenant, group, periodlock.EmployeeID(manager)); err != nil {
			writeError(w, http.StatusInternalServerError, "internal", "Failed to add manager", err)
			return
		}
	}
	w.WriteHeader(http.StatusCreated)
}

// CreateTimesheet registers a timesheet for one employee and month.
func (h *Handler) CreateTimesheet(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireAdmin(w, r)
	if !ok {
		return
	}

	var req CreateTimesheetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation", "Invalid request body", err)
		return
	}
	if req.ID == "" || req.EmployeeID == "" {
		writeError(w, http.StatusBadRequest, "validation", "id and employee_id are required", nil)
		return
	}
	period, err := periodlock.ParsePeriodKey(req.Period)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	err = h.Store.SaveTimesheet(r.Context(), periodlock.Timesheet{
		ID:       periodlock.TimesheetID(req.ID),
		Tenant:   actor.Tenant,
		Employee: periodlock.EmployeeID(req.EmployeeID),
		Period:   period,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "Failed to create timesheet", err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

// writeDomainError maps the engine's typed errors onto stable HTTP codes.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	var locked *periodlock.PeriodLockedError
	if errors.As(err, &locked) {
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error: locked.Error(),
			Code:  "period_locked",
			Details: map[string]string{
				"level":  string(locked.Level),
				"reason": locked.Reason,
				"period": locked.Period.String(),
			},
		})
		return
	}
	switch {
	case errors.Is(err, periodlock.ErrJustificationRequired):
		writeError(w, http.StatusUnprocessableEntity, "justification_required", err.Error(), nil)
	case errors.Is(err, periodlock.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", "Forbidden", nil)
	case errors.Is(err, periodlock.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "Not found", nil)
	case errors.Is(err, periodlock.ErrInvalidPeriodKey), errors.Is(err, periodlock.ErrDateOutsidePeriod):
		writeError(w, http.StatusBadRequest, "validation", err.Error(), nil)
	default:
		h.Log.Error().Err(err).Msg("internal error")
		writeError(w, http.StatusInternalServerError, "internal", "Internal error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string, err error) {
	resp := ErrorResponse{Error: msg, Code: code}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
