package protocol

import (
	"context"

	"github.com/dukex/cadence/pkg/models"
)

type Role string

const (
	RoleAdmin       Role = "admin"
	RoleSuperAdmin  Role = "super_admin"
	RoleManager     Role = "manager"
	RoleSalesPerson Role = "sales_person"

	// RoleSystem is used by the worker and the scheduler acting on their own.
	RoleSystem Role = "system"
)

// SystemActor is the actor of operations nobody requested directly.
var SystemActor = Actor{UserID: "system", Role: RoleSystem}

// Actor is the authenticated caller of an operation.
type Actor struct {
	UserID          string `json:"user_id"`
	Role            Role   `json:"role"`
	SubDepartmentID string `json:"sd_id"`
	CompanyID       string `json:"company_id"`
}

// AccessChecker decides whether an actor may act on a cadence or a lead.
// Implementations return an error wrapping a forbidden sentinel on refusal.
type AccessChecker interface {
	CanReadCadence(ctx context.Context, actor Actor, cadence *models.Cadence) error
	CanUpdateCadence(ctx context.Context, actor Actor, cadence *models.Cadence) error
	CanActOnLead(ctx context.Context, actor Actor, lead *models.Lead) error
}
