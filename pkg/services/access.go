package services

import (
	"context"
	"fmt"

	"github.com/dukex/cadence/pkg/models"
	"github.com/dukex/cadence/pkg/protocol"
)

// RoleAccess grants access from the actor's role and the cadence scope:
// admins see their whole company, managers their sub-department and
// salespeople what they own plus shared team and company cadences.
type RoleAccess struct{}

func NewRoleAccess() *RoleAccess {
	return &RoleAccess{}
}

func (RoleAccess) CanReadCadence(_ context.Context, actor protocol.Actor, cadence *models.Cadence) error {
	if actor.Role == protocol.RoleSystem || cadence.UserID == actor.UserID {
		return nil
	}

	if !sameCompany(actor, cadence) {
		return forbidden(actor, "read", cadence)
	}

	switch actor.Role {
	case protocol.RoleAdmin, protocol.RoleSuperAdmin:
		return nil
	case protocol.RoleManager:
		if cadence.Type == models.CadenceTypeCompany || cadence.SubDepartmentID == actor.SubDepartmentID {
			return nil
		}
	case protocol.RoleSalesPerson:
		if cadence.Type == models.CadenceTypeCompany ||
			(cadence.Type == models.CadenceTypeTeam && cadence.SubDepartmentID == actor.SubDepartmentID) {
			return nil
		}
	}

	return forbidden(actor, "read", cadence)
}

func (RoleAccess) CanUpdateCadence(_ context.Context, actor protocol.Actor, cadence *models.Cadence) error {
	if actor.Role == protocol.RoleSystem {
		return nil
	}

	if !sameCompany(actor, cadence) {
		return forbidden(actor, "update", cadence)
	}

	switch actor.Role {
	case protocol.RoleAdmin, protocol.RoleSuperAdmin:
		return nil
	case protocol.RoleManager:
		if cadence.Type != models.CadenceTypeCompany &&
			(cadence.UserID == actor.UserID || cadence.SubDepartmentID == actor.SubDepartmentID) {
			return nil
		}
	case protocol.RoleSalesPerson:
		if cadence.Type == models.CadenceTypePersonal && cadence.UserID == actor.UserID {
			return nil
		}
	}

	return forbidden(actor, "update", cadence)
}

func (RoleAccess) CanActOnLead(_ context.Context, actor protocol.Actor, lead *models.Lead) error {
	if lead.UserID == actor.UserID {
		return nil
	}

	switch actor.Role {
	case protocol.RoleSystem, protocol.RoleAdmin, protocol.RoleSuperAdmin, protocol.RoleManager:
		return nil
	default:
		return fmt.Errorf("%w: user %s cannot act on lead %s", ErrForbidden, actor.UserID, lead.ID)
	}
}

func sameCompany(actor protocol.Actor, cadence *models.Cadence) bool {
	return cadence.CompanyID == "" || cadence.CompanyID == actor.CompanyID
}

func forbidden(actor protocol.Actor, action string, cadence *models.Cadence) error {
	return fmt.Errorf("%w: user %s cannot %s cadence %s", ErrForbidden, actor.UserID, action, cadence.ID)
}
