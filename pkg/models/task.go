package models

import "time"

// Task is a concrete unit of work instantiating a node for one lead.
type Task struct {
	ID           string         `json:"id"`
	LeadID       string         `json:"lead_id"`
	NodeID       *string        `json:"node_id,omitempty"` // Nil for ad-hoc custom tasks
	CadenceID    string         `json:"cadence_id"`
	UserID       string         `json:"user_id"`
	Name         string         `json:"name"`
	Urgent       bool           `json:"urgent"`
	Completed    bool           `json:"completed"`
	CompleteTime *time.Time     `json:"complete_time,omitempty"`
	IsSkipped    bool           `json:"is_skipped"`
	SkipTime     *time.Time     `json:"skip_time,omitempty"`
	SkipReason   string         `json:"skip_reason,omitempty"`
	StartTime    time.Time      `json:"start_time"`
	IsToday      bool           `json:"is_today"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// IsOutstanding reports whether the task is neither completed nor skipped.
func (t *Task) IsOutstanding() bool {
	return !t.Completed && !t.IsSkipped
}

// QueueCandidate is an outstanding task together with the inputs the daily
// queue needs to rank it.
type QueueCandidate struct {
	Task             *Task           `json:"task"`
	CadencePriority  CadencePriority `json:"cadence_priority"`
	LeadCadenceOrder int             `json:"lead_cadence_order"`
}

// IsHighPriority reports whether the candidate competes for the reserved split.
func (q *QueueCandidate) IsHighPriority() bool {
	return q.CadencePriority == CadencePriorityHigh || q.Task.Urgent
}
