package file

import (
	"context"
	"sort"

	"github.com/dukex/cadence/pkg/models"
)

type activityRepository struct {
	p *Persistence
}

func (r *activityRepository) Create(_ context.Context, activity *models.Activity) error {
	return r.p.write(func(s *state) error {
		s.Activities = append(s.Activities, clone(activity))

		return nil
	})
}

func (r *activityRepository) ListByLead(_ context.Context, leadID string) ([]*models.Activity, error) {
	activities := make([]*models.Activity, 0)

	err := r.p.read(func(s *state) error {
		for _, a := range s.Activities {
			if a.LeadID == leadID {
				activities = append(activities, clone(a))
			}
		}

		return nil
	})

	sort.SliceStable(activities, func(i, j int) bool { return activities[i].CreatedAt.Before(activities[j].CreatedAt) })

	return activities, err
}
