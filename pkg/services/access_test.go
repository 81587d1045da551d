package services

import (
	"context"
	"testing"

	"github.com/dukex/cadence/pkg/models"
	"github.com/dukex/cadence/pkg/protocol"
	"github.com/stretchr/testify/assert"
)

func TestRoleAccess_Cadence(t *testing.T) {
	t.Parallel()

	personal := &models.Cadence{ID: "c1", UserID: "owner", SubDepartmentID: "sd-1", CompanyID: "co", Type: models.CadenceTypePersonal}
	team := &models.Cadence{ID: "c2", UserID: "owner", SubDepartmentID: "sd-1", CompanyID: "co", Type: models.CadenceTypeTeam}
	company := &models.Cadence{ID: "c3", UserID: "admin", CompanyID: "co", Type: models.CadenceTypeCompany}

	owner := protocol.Actor{UserID: "owner", Role: protocol.RoleSalesPerson, SubDepartmentID: "sd-1", CompanyID: "co"}
	peer := protocol.Actor{UserID: "peer", Role: protocol.RoleSalesPerson, SubDepartmentID: "sd-1", CompanyID: "co"}
	outsider := protocol.Actor{UserID: "out", Role: protocol.RoleSalesPerson, SubDepartmentID: "sd-2", CompanyID: "co"}
	manager := protocol.Actor{UserID: "mgr", Role: protocol.RoleManager, SubDepartmentID: "sd-1", CompanyID: "co"}
	otherAdmin := protocol.Actor{UserID: "adm", Role: protocol.RoleAdmin, CompanyID: "other"}
	admin := protocol.Actor{UserID: "adm", Role: protocol.RoleAdmin, CompanyID: "co"}

	tests := []struct {
		name       string
		actor      protocol.Actor
		cadence    *models.Cadence
		canRead    bool
		canUpdate  bool
	}{
		{"owner of personal", owner, personal, true, true},
		{"peer on personal", peer, personal, false, false},
		{"peer on team", peer, team, true, false},
		{"outsider on team", outsider, team, false, false},
		{"salesperson on company", outsider, company, true, false},
		{"manager on team", manager, team, true, true},
		{"manager on company", manager, company, true, false},
		{"admin of another company", otherAdmin, team, false, false},
		{"admin", admin, company, true, true},
		{"system", protocol.SystemActor, company, true, true},
	}

	access := NewRoleAccess()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			readErr := access.CanReadCadence(context.Background(), tt.actor, tt.cadence)
			updateErr := access.CanUpdateCadence(context.Background(), tt.actor, tt.cadence)

			assert.Equal(t, tt.canRead, readErr == nil, "read")
			assert.Equal(t, tt.canUpdate, updateErr == nil, "update")

			if updateErr != nil {
				assert.True(t, IsForbiddenError(updateErr))
			}
		})
	}
}

func TestRoleAccess_Lead(t *testing.T) {
	access := NewRoleAccess()
	lead := &models.Lead{ID: "lead-1", UserID: "owner"}

	assert.NoError(t, access.CanActOnLead(context.Background(), protocol.Actor{UserID: "owner", Role: protocol.RoleSalesPerson}, lead))
	assert.NoError(t, access.CanActOnLead(context.Background(), protocol.Actor{UserID: "mgr", Role: protocol.RoleManager}, lead))
	assert.ErrorIs(t, access.CanActOnLead(context.Background(), protocol.Actor{UserID: "peer", Role: protocol.RoleSalesPerson}, lead), ErrForbidden)
}
