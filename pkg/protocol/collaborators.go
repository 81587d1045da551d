// Package protocol defines the ports through which the engine talks to its
// external collaborators.
package protocol

import (
	"context"

	"github.com/dukex/cadence/pkg/events"
	"github.com/dukex/cadence/pkg/models"
)

// WorkflowTrigger names a domain event the automation system reacts to.
type WorkflowTrigger string

const (
	TriggerFirstTouch   WorkflowTrigger = "first_touch"
	TriggerCadenceEnded WorkflowTrigger = "cadence_ended"
	TriggerPaused       WorkflowTrigger = "paused"
	TriggerResumed      WorkflowTrigger = "resumed"
	TriggerStopped      WorkflowTrigger = "stopped"
	TriggerUnsubscribed WorkflowTrigger = "unsubscribed"
)

// WorkflowSink receives fire-and-forget workflow triggers.
type WorkflowSink interface {
	ApplyWorkflow(ctx context.Context, trigger WorkflowTrigger, cadenceID, leadID string) error
}

// Notifier pushes out-of-band notifications. key identifies the recipient,
// usually a user id.
type Notifier interface {
	Notify(ctx context.Context, key string, event events.Event) error
}

// MirrorRequest is a lead-cadence status change to reflect in the CRM.
type MirrorRequest struct {
	LeadID    string                   `json:"lead_id"`
	CadenceID string                   `json:"cadence_id"`
	Status    models.LeadCadenceStatus `json:"status"`
	Reason    string                   `json:"reason,omitempty"`
}

// CRMAdapter mirrors cadence membership changes into the connected CRM.
// Calls are best effort; local state never depends on their outcome.
type CRMAdapter interface {
	MirrorStatus(ctx context.Context, req MirrorRequest) error
}

// SettingsProvider resolves the effective engine settings of a user.
type SettingsProvider interface {
	Settings(ctx context.Context, userID string) (models.Settings, error)
}
