/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication, decoupling the domain
  model from the external contract. Validation is done in handlers; DTOs
  are pure data carriers.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/timesheet-engine/periodlock"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// EntryDTO represents a timesheet entry in API responses.
type EntryDTO struct {
	ID          string  `json:"id"`
	TimesheetID string  `json:"timesheet_id"`
	Date        string  `json:"date"`
	Hours       float64 `json:"hours"`
	Note        string  `json:"note,omitempty"`
	UpdatedAt   string  `json:"updated_at,omitempty"`
}

// DecisionDTO is the resolver's answer.
type DecisionDTO struct {
	Locked bool   `json:"locked"`
	Reason string `json:"reason,omitempty"`
	Level  string `json:"level"`
}

// WriteEntryRequest is the guarded write. Justification is required when the
// entry's period is locked and the actor is not an administrator.
type WriteEntryRequest struct {
	ID            string  `json:"id,omitempty"`
	Date          string  `json:"date"`
	Hours         float64 `json:"hours"`
	Note          string  `json:"note,omitempty"`
	Justification string  `json:"justification,omitempty"`
}

// WriteEntryResponse reports the write outcome, including side-effect state.
type WriteEntryResponse struct {
	Entry         EntryDTO    `json:"entry"`
	Decision      DecisionDTO `json:"decision"`
	Guarded       bool        `json:"guarded"`
	AuditID       string      `json:"audit_id,omitempty"`
	AuditDegraded bool        `json:"audit_degraded,omitempty"`
	Notified      bool        `json:"notified,omitempty"`
}

// PendingAdjustmentDTO is one manager edit awaiting acknowledgment.
type PendingAdjustmentDTO struct {
	AuditID        string `json:"audit_id"`
	EntryID        string `json:"entry_id"`
	TimesheetID    string `json:"timesheet_id"`
	CreatedAt      string `json:"created_at"`
	Justification  string `json:"justification"`
	ManagerName    string `json:"manager_name"`
	DeclarationURL string `json:"declaration_url"`
}

// AcknowledgeRequest records the employee's verdict on a manager edit.
type AcknowledgeRequest struct {
	AuditID  string `json:"audit_id"`
	Accepted *bool  `json:"accepted,omitempty"` // nil = accepted
}

// AcknowledgeResponse returns the id of the acknowledgment event.
type AcknowledgeResponse struct {
	AuditID string `json:"audit_id"`
}

// ReconciliationStatusDTO summarizes one timesheet's reconciliation.
type ReconciliationStatusDTO struct {
	Total             int `json:"total"`
	WithJustification int `json:"with_justification"`
	Acknowledged      int `json:"acknowledged"`
	Contested         int `json:"contested"`
	PendingAck        int `json:"pending_ack"`
}

// SetOverrideRequest declares a lock decision at one scope for one period.
type SetOverrideRequest struct {
	Scope   string `json:"scope"`
	ScopeID string `json:"scope_id"`
	Period  string `json:"period"`
	Locked  bool   `json:"locked"`
	Reason  string `json:"reason,omitempty"`
}

// CreateEmployeeRequest registers a directory record.
type CreateEmployeeRequest struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Role  string `json:"role"`
}

// CreateGroupRequest registers a group with its memberships.
type CreateGroupRequest struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Environment string   `json:"environment,omitempty"`
	Members     []string `json:"members,omitempty"`
	Managers    []string `json:"managers,omitempty"`
}

// CreateTimesheetRequest registers a timesheet for one employee and month.
type CreateTimesheetRequest struct {
	ID         string `json:"id"`
	EmployeeID string `json:"employee_id"`
	Period     string `json:"period"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toEntryDTO(e *periodlock.Entry) EntryDTO {
	hours, _ := e.Hours.Float64()
	return EntryDTO{
		ID:          string(e.ID),
		TimesheetID: string(e.Timesheet),
		Date:        e.Date.Format("2006-01-02"),
		Hours:       hours,
		Note:        e.Note,
		UpdatedAt:   e.UpdatedAt.Format(time.RFC3339),
	}
}

func toDecisionDTO(d periodlock.Decision) DecisionDTO {
	return DecisionDTO{Locked: d.Locked, Reason: d.Reason, Level: string(d.Level)}
}

func toPendingDTOs(items []periodlock.PendingAdjustment) []PendingAdjustmentDTO {
	dtos := make([]PendingAdjustmentDTO, len(items))
	for i, p := range items {
		dtos[i] = PendingAdjustmentDTO{
			AuditID:        string(p.AuditID),
			EntryID:        string(p.EntryID),
			TimesheetID:    string(p.TimesheetID),
			CreatedAt:      p.CreatedAt.Format(time.RFC3339),
			Justification:  p.Justification,
			ManagerName:    p.ManagerName,
			DeclarationURL: p.DeclarationURL,
		}
	}
	return dtos
}
