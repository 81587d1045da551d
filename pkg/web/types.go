// Package web provides the HTTP handlers of the cadence API.
package web

import (
	"time"

	"github.com/dukex/cadence/pkg/models"
)

// AcceptedResponse answers operations whose work continues in the background.
type AcceptedResponse struct {
	Message   string `json:"message"`
	CadenceID string `json:"cadence_id"`
}

type PauseCadenceRequest struct {
	PauseFor *time.Time `json:"pause_for"` // Nil pauses until resumed
}

type StopCadenceRequest struct {
	Reason string `json:"reason"`
}

type EnrollRequest struct {
	LeadIDs []string `json:"lead_ids" validate:"required,min=1,dive,required"`
}

type SkipTaskRequest struct {
	NodeID string `json:"node_id" validate:"required"`
	Reason string `json:"reason"`
}

type PauseLeadRequest struct {
	CadenceIDs []string   `json:"cadence_ids" validate:"required,min=1,dive,required"`
	PauseFor   *time.Time `json:"pause_for"`
}

type ResumeLeadRequest struct {
	CadenceIDs []string `json:"cadence_ids" validate:"required,min=1,dive,required"`
}

type StopLeadRequest struct {
	CadenceIDs []string                 `json:"cadence_ids" validate:"required,min=1,dive,required"`
	Status     models.LeadCadenceStatus `json:"status"      validate:"required,oneof=stopped completed"`
	Reason     string                   `json:"reason"`
}

type UnsubscribeRequest struct {
	NodeID *string `json:"node_id"`
}

// QueueResponse summarizes a recalculated daily queue.
type QueueResponse struct {
	UserID      string   `json:"user_id"`
	High        []string `json:"high"`
	Standard    []string `json:"standard"`
	Outstanding int      `json:"outstanding"`
}
