package file

import (
	"context"
	"slices"
	"sort"
	"time"

	"github.com/dukex/cadence/pkg/models"
	"github.com/dukex/cadence/pkg/persistence"
)

type leadCadenceRepository struct {
	p *Persistence
}

func linkKey(leadID, cadenceID string) string {
	return leadID + "/" + cadenceID
}

func (r *leadCadenceRepository) Get(_ context.Context, leadID, cadenceID string) (*models.LeadCadence, error) {
	var link *models.LeadCadence

	err := r.p.read(func(s *state) error {
		stored, ok := s.Links[linkKey(leadID, cadenceID)]
		if !ok {
			return persistence.ErrLeadCadenceNotFound
		}

		link = clone(stored)

		return nil
	})

	return link, err
}

// GetForUpdate is Get: transactions already hold the store lock.
func (r *leadCadenceRepository) GetForUpdate(ctx context.Context, leadID, cadenceID string) (*models.LeadCadence, error) {
	return r.Get(ctx, leadID, cadenceID)
}

func (r *leadCadenceRepository) ListByCadence(_ context.Context, cadenceID string, statuses ...models.LeadCadenceStatus) ([]*models.LeadCadence, error) {
	return r.filter(func(l *models.LeadCadence) bool {
		return l.CadenceID == cadenceID && (len(statuses) == 0 || slices.Contains(statuses, l.Status))
	})
}

func (r *leadCadenceRepository) ListByLead(_ context.Context, leadID string) ([]*models.LeadCadence, error) {
	return r.filter(func(l *models.LeadCadence) bool { return l.LeadID == leadID })
}

func (r *leadCadenceRepository) DueForResume(_ context.Context, before time.Time) ([]*models.LeadCadence, error) {
	return r.filter(func(l *models.LeadCadence) bool {
		return l.Status == models.LeadCadenceStatusPaused && l.PausedUntil != nil && !l.PausedUntil.After(before)
	})
}

func (r *leadCadenceRepository) filter(match func(*models.LeadCadence) bool) ([]*models.LeadCadence, error) {
	links := make([]*models.LeadCadence, 0)

	err := r.p.read(func(s *state) error {
		for _, l := range s.Links {
			if match(l) {
				links = append(links, clone(l))
			}
		}

		return nil
	})

	sort.Slice(links, func(i, j int) bool {
		if links[i].LeadCadenceOrder == links[j].LeadCadenceOrder {
			return linkKey(links[i].LeadID, links[i].CadenceID) < linkKey(links[j].LeadID, links[j].CadenceID)
		}

		return links[i].LeadCadenceOrder < links[j].LeadCadenceOrder
	})

	return links, err
}

func (r *leadCadenceRepository) Save(_ context.Context, link *models.LeadCadence) error {
	return r.p.write(func(s *state) error {
		s.Links[linkKey(link.LeadID, link.CadenceID)] = clone(link)

		return nil
	})
}

func (r *leadCadenceRepository) TransitionStatus(_ context.Context, transition persistence.LinkStatusTransition) (bool, error) {
	applied := false

	err := r.p.write(func(s *state) error {
		link, ok := s.Links[linkKey(transition.LeadID, transition.CadenceID)]
		if !ok {
			return persistence.ErrLeadCadenceNotFound
		}

		if !slices.Contains(transition.From, link.Status) {
			return nil
		}

		link.Status = transition.To
		link.StatusReason = transition.Reason
		link.PausedUntil = transition.PausedUntil
		link.UpdatedAt = time.Now().UTC()
		applied = true

		return nil
	})

	return applied, err
}

func (r *leadCadenceRepository) MaxOrder(_ context.Context, cadenceID, userID string) (int, error) {
	maxOrder := 0

	err := r.p.read(func(s *state) error {
		for _, l := range s.Links {
			if l.CadenceID == cadenceID && l.UserID == userID && l.LeadCadenceOrder > maxOrder {
				maxOrder = l.LeadCadenceOrder
			}
		}

		return nil
	})

	return maxOrder, err
}

func (r *leadCadenceRepository) UserIDsByCadence(_ context.Context, cadenceID string) ([]string, error) {
	users := make([]string, 0)

	err := r.p.read(func(s *state) error {
		for _, l := range s.Links {
			if l.CadenceID == cadenceID && !slices.Contains(users, l.UserID) {
				users = append(users, l.UserID)
			}
		}

		return nil
	})

	sort.Strings(users)

	return users, err
}
