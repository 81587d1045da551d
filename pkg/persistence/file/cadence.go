package file

import (
	"context"
	"slices"
	"sort"
	"time"

	"github.com/dukex/cadence/pkg/models"
	"github.com/dukex/cadence/pkg/persistence"
)

type cadenceRepository struct {
	p *Persistence
}

func (r *cadenceRepository) GetByID(_ context.Context, id string) (*models.Cadence, error) {
	var cadence *models.Cadence

	err := r.p.read(func(s *state) error {
		stored, ok := s.Cadences[id]
		if !ok {
			return persistence.ErrCadenceNotFound
		}

		cadence = clone(stored)

		return nil
	})

	return cadence, err
}

func (r *cadenceRepository) List(_ context.Context, filter persistence.CadenceFilter) ([]*models.Cadence, error) {
	cadences := make([]*models.Cadence, 0)

	err := r.p.read(func(s *state) error {
		for _, c := range s.Cadences {
			if filter.UserID != "" && c.UserID != filter.UserID {
				continue
			}

			if filter.SubDepartmentID != "" && c.SubDepartmentID != filter.SubDepartmentID {
				continue
			}

			if filter.CompanyID != "" && c.CompanyID != filter.CompanyID {
				continue
			}

			if filter.Status != "" && c.Status != filter.Status {
				continue
			}

			cadences = append(cadences, clone(c))
		}

		return nil
	})

	sort.Slice(cadences, func(i, j int) bool {
		if cadences[i].CreatedAt.Equal(cadences[j].CreatedAt) {
			return cadences[i].ID < cadences[j].ID
		}

		return cadences[i].CreatedAt.After(cadences[j].CreatedAt)
	})

	return cadences, err
}

func (r *cadenceRepository) Save(_ context.Context, cadence *models.Cadence) error {
	return r.p.write(func(s *state) error {
		s.Cadences[cadence.ID] = clone(cadence)

		return nil
	})
}

func (r *cadenceRepository) Delete(_ context.Context, id string) error {
	return r.p.write(func(s *state) error {
		if _, ok := s.Cadences[id]; !ok {
			return persistence.NewCadenceError("Delete", id, persistence.ErrCadenceNotFound)
		}

		delete(s.Cadences, id)

		for key, node := range s.Nodes {
			if node.CadenceID == id {
				delete(s.Nodes, key)
			}
		}

		for key, link := range s.Links {
			if link.CadenceID == id {
				delete(s.Links, key)
			}
		}

		for key, task := range s.Tasks {
			if task.CadenceID == id {
				delete(s.Tasks, key)
			}
		}

		for key, schedule := range s.Schedules {
			if schedule.CadenceID == id {
				delete(s.Schedules, key)
			}
		}

		return nil
	})
}

// Lock only checks existence; the store mutex already serializes transactions.
func (r *cadenceRepository) Lock(_ context.Context, id string) error {
	return r.p.read(func(s *state) error {
		if _, ok := s.Cadences[id]; !ok {
			return persistence.ErrCadenceNotFound
		}

		return nil
	})
}

func (r *cadenceRepository) TransitionStatus(_ context.Context, transition persistence.CadenceStatusTransition) (bool, error) {
	applied := false

	err := r.p.write(func(s *state) error {
		cadence, ok := s.Cadences[transition.CadenceID]
		if !ok {
			return persistence.NewCadenceError("TransitionStatus", transition.CadenceID, persistence.ErrCadenceNotFound)
		}

		if !slices.Contains(transition.From, cadence.Status) {
			return nil
		}

		cadence.Status = transition.To
		cadence.ResumeAt = transition.ResumeAt
		cadence.UpdatedAt = time.Now().UTC()
		applied = true

		return nil
	})

	return applied, err
}

func (r *cadenceRepository) DueForResume(_ context.Context, before time.Time) ([]*models.Cadence, error) {
	cadences := make([]*models.Cadence, 0)

	err := r.p.read(func(s *state) error {
		for _, c := range s.Cadences {
			if c.Status == models.CadenceStatusPaused && c.ResumeAt != nil && !c.ResumeAt.After(before) {
				cadences = append(cadences, clone(c))
			}
		}

		return nil
	})

	sort.Slice(cadences, func(i, j int) bool { return cadences[i].ResumeAt.Before(*cadences[j].ResumeAt) })

	return cadences, err
}
