package models

import "time"

// LeadStatus is the aggregate status of a lead across cadences.
type LeadStatus string

const (
	LeadStatusNew       LeadStatus = "new"
	LeadStatusOngoing   LeadStatus = "ongoing"
	LeadStatusPaused    LeadStatus = "paused"
	LeadStatusConverted LeadStatus = "converted"
	LeadStatusTrash     LeadStatus = "trash"
)

// Lead is a prospect owned by a salesperson.
type Lead struct {
	ID               string     `json:"id"`
	UserID           string     `json:"user_id"            validate:"required"`
	FullName         string     `json:"full_name"          validate:"required"`
	Status           LeadStatus `json:"status"`
	FirstContactTime *time.Time `json:"first_contact_time,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}
