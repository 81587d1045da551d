package models

import "time"

// LeadCadenceStatus represents one lead's enrollment state within one cadence.
type LeadCadenceStatus string

const (
	LeadCadenceStatusNotStarted LeadCadenceStatus = "not_started"
	LeadCadenceStatusInProgress LeadCadenceStatus = "in_progress"
	LeadCadenceStatusPaused     LeadCadenceStatus = "paused"
	LeadCadenceStatusStopped    LeadCadenceStatus = "stopped"
	LeadCadenceStatusCompleted  LeadCadenceStatus = "completed"
)

// LeadCadence links a lead to a cadence and tracks its position in the node chain.
type LeadCadence struct {
	LeadID            string            `json:"lead_id"                       validate:"required"`
	CadenceID         string            `json:"cadence_id"                    validate:"required"`
	UserID            string            `json:"user_id"                       validate:"required"` // Lead owner at enrollment
	Status            LeadCadenceStatus `json:"status"                        validate:"required"`
	StatusReason      string            `json:"status_reason,omitempty"`
	Unsubscribed      bool              `json:"unsubscribed"`
	UnsubscribeNodeID *string           `json:"unsubscribe_node_id,omitempty"`
	CurrentNodeID     *string           `json:"current_node_id,omitempty"`
	LeadCadenceOrder  int               `json:"lead_cadence_order"`
	PausedUntil       *time.Time        `json:"paused_until,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// IsActive reports whether the lead still has steps to walk through.
func (l *LeadCadence) IsActive() bool {
	return l.Status == LeadCadenceStatusNotStarted ||
		l.Status == LeadCadenceStatusInProgress ||
		l.Status == LeadCadenceStatusPaused
}
