package file

import (
	"context"

	"github.com/dukex/cadence/pkg/models"
	"github.com/dukex/cadence/pkg/persistence"
)

type leadRepository struct {
	p *Persistence
}

func (r *leadRepository) GetByID(_ context.Context, id string) (*models.Lead, error) {
	var lead *models.Lead

	err := r.p.read(func(s *state) error {
		stored, ok := s.Leads[id]
		if !ok {
			return persistence.ErrLeadNotFound
		}

		lead = clone(stored)

		return nil
	})

	return lead, err
}

func (r *leadRepository) Save(_ context.Context, lead *models.Lead) error {
	return r.p.write(func(s *state) error {
		s.Leads[lead.ID] = clone(lead)

		return nil
	})
}
