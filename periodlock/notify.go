package periodlock

import (
	"context"

	"github.com/rs/zerolog"
)

// =============================================================================
// NOTIFICATION GATEWAY - Best-effort, fire-and-forget
// =============================================================================

type NotificationType string

const (
	// NotifyClosedPeriodEdit tells an employee a manager edited one of
	// their entries in a period they can no longer edit.
	NotifyClosedPeriodEdit NotificationType = "closed_period_edit"
)

type Notification struct {
	Type      NotificationType
	Tenant    TenantID
	Recipient EmployeeID
	Payload   map[string]any
}

// Notifier dispatches a message to an employee. Delivery transport is a
// collaborator concern; implementations must be safe to call best-effort.
// A Send failure never fails the caller's request.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
}

// LogNotifier records notifications to the structured log instead of
// delivering them. The default when no transport is wired.
type LogNotifier struct {
	Log zerolog.Logger
}

func (ln *LogNotifier) Send(_ context.Context, n Notification) error {
	ln.Log.Info().
		Str("type", string(n.Type)).
		Str("tenant", string(n.Tenant)).
		Str("recipient", string(n.Recipient)).
		Interface("payload", n.Payload).
		Msg("notification dispatched")
	return nil
}

// NopNotifier discards notifications. For tests.
type NopNotifier struct{}

func (NopNotifier) Send(context.Context, Notification) error { return nil }
