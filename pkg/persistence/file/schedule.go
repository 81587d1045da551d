package file

import (
	"context"
	"sort"
	"time"

	"github.com/dukex/cadence/pkg/models"
	"github.com/dukex/cadence/pkg/persistence"
)

type scheduleRepository struct {
	p *Persistence
}

func (r *scheduleRepository) GetByCadence(_ context.Context, cadenceID string) (*models.Schedule, error) {
	var schedule *models.Schedule

	err := r.p.read(func(s *state) error {
		for _, stored := range s.Schedules {
			if stored.CadenceID == cadenceID {
				schedule = clone(stored)

				return nil
			}
		}

		return persistence.ErrScheduleNotFound
	})

	return schedule, err
}

func (r *scheduleRepository) Save(_ context.Context, schedule *models.Schedule) error {
	return r.p.write(func(s *state) error {
		s.Schedules[schedule.ID] = clone(schedule)

		return nil
	})
}

func (r *scheduleRepository) Delete(_ context.Context, id string) error {
	return r.p.write(func(s *state) error {
		if _, ok := s.Schedules[id]; !ok {
			return persistence.ErrScheduleNotFound
		}

		delete(s.Schedules, id)

		return nil
	})
}

func (r *scheduleRepository) Due(_ context.Context, before time.Time) ([]*models.Schedule, error) {
	due := make([]*models.Schedule, 0)

	err := r.p.read(func(s *state) error {
		for _, schedule := range s.Schedules {
			if schedule.IsDue(before) {
				due = append(due, clone(schedule))
			}
		}

		return nil
	})

	sort.Slice(due, func(i, j int) bool { return due[i].NextDueAt.Before(due[j].NextDueAt) })

	return due, err
}
