// Package models defines the core domain models for cadence execution
package models

import "time"

// CadenceStatus represents the lifecycle state of a cadence.
type CadenceStatus string

const (
	CadenceStatusNotStarted CadenceStatus = "not_started" // Created, never launched
	CadenceStatusProcessing CadenceStatus = "processing"  // Launch or pause tail in flight
	CadenceStatusInProgress CadenceStatus = "in_progress" // Leads are progressing
	CadenceStatusPaused     CadenceStatus = "paused"      // Halted until resumed or resume_at
	CadenceStatusCompleted  CadenceStatus = "completed"   // All leads finished or stopped
)

// CadencePriority drives the high priority split of the daily queue.
type CadencePriority string

const (
	CadencePriorityStandard CadencePriority = "standard"
	CadencePriorityHigh     CadencePriority = "high"
)

// CadenceType scopes who can see and edit a cadence.
type CadenceType string

const (
	CadenceTypePersonal CadenceType = "personal"
	CadenceTypeTeam     CadenceType = "team"
	CadenceTypeCompany  CadenceType = "company"
)

// Cadence is an ordered outreach sequence that leads are enrolled into.
type Cadence struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"                     validate:"required,min=3"`
	Description     string          `json:"description"`
	Status          CadenceStatus   `json:"status"                   validate:"required"`
	Priority        CadencePriority `json:"priority"                 validate:"required,oneof=standard high"`
	Type            CadenceType     `json:"type"                     validate:"required,oneof=personal team company"`
	UserID          string          `json:"user_id"                  validate:"required"`
	SubDepartmentID string          `json:"sd_id"`
	CompanyID       string          `json:"company_id"`
	IsProductTour   bool            `json:"is_product_tour"`
	ResumeAt        *time.Time      `json:"resume_at,omitempty"`
	LaunchAt        *time.Time      `json:"launch_at,omitempty"`   // One-shot scheduled launch
	LaunchCron      string          `json:"launch_cron,omitempty"` // Recurring scheduled launch
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// IsRunning reports whether the cadence is launched or mid-transition.
func (c *Cadence) IsRunning() bool {
	return c.Status == CadenceStatusProcessing || c.Status == CadenceStatusInProgress
}

// HasLaunchSchedule reports whether a companion schedule record should exist.
func (c *Cadence) HasLaunchSchedule() bool {
	return c.LaunchCron != "" || c.LaunchAt != nil
}

// CadenceStatistics aggregates lead and task counts for a cadence.
type CadenceStatistics struct {
	CadenceID string                    `json:"cadence_id"`
	Status    CadenceStatus             `json:"status"`
	Leads     map[LeadCadenceStatus]int `json:"leads"`
	Nodes     []*NodeStatistics         `json:"nodes"`
}

// NodeStatistics holds the task counts for one node in sequence order.
type NodeStatistics struct {
	NodeID      string   `json:"node_id"`
	Name        string   `json:"name"`
	Type        NodeType `json:"type"`
	StepNumber  int      `json:"step_number"`
	Outstanding int      `json:"outstanding"`
	Completed   int      `json:"completed"`
	Skipped     int      `json:"skipped"`
}

// NodeTaskCount is the raw per-node aggregation returned by storage.
type NodeTaskCount struct {
	NodeID      string `json:"node_id"`
	Outstanding int    `json:"outstanding"`
	Completed   int    `json:"completed"`
	Skipped     int    `json:"skipped"`
}
