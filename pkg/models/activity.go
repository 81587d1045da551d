package models

import "time"

// ActivityType classifies timeline entries.
type ActivityType string

const (
	ActivityTypeLaunchCadence    ActivityType = "launch_cadence"
	ActivityTypeCompletedCadence ActivityType = "completed_cadence"
	ActivityTypePauseCadence     ActivityType = "pause_cadence"
	ActivityTypeResumeCadence    ActivityType = "resume_cadence"
	ActivityTypeStopCadence      ActivityType = "stop_cadence"
	ActivityTypeUnsubscribe      ActivityType = "unsubscribe"
	ActivityTypeTaskSkipped      ActivityType = "task_skipped"
)

// Activity names recorded on the lead timeline.
const (
	ActivityNameCadenceCompleted = "Cadence has been completed"
	ActivityNameCadencePaused    = "Cadence has been paused"
	ActivityNameCadenceResumed   = "Cadence has been resumed"
	ActivityNameCadenceStopped   = "Cadence has been stopped"
	ActivityNameCadenceLaunched  = "Cadence has been launched"
	ActivityNameUnsubscribed     = "Lead unsubscribed"
)

// Activity is an append-only timeline entry for a lead.
type Activity struct {
	ID        string       `json:"id"`
	Type      ActivityType `json:"type"`
	Name      string       `json:"name"`
	Status    string       `json:"status,omitempty"`
	LeadID    string       `json:"lead_id"`
	CadenceID string       `json:"cadence_id,omitempty"`
	UserID    string       `json:"user_id,omitempty"`
	NodeID    *string      `json:"node_id,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}
