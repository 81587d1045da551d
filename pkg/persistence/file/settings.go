package file

import (
	"context"
	"sort"

	"github.com/dukex/cadence/pkg/models"
	"github.com/dukex/cadence/pkg/persistence"
)

type settingsRepository struct {
	p *Persistence
}

func (r *settingsRepository) Get(_ context.Context, userID string) (*models.Settings, error) {
	var settings *models.Settings

	err := r.p.read(func(s *state) error {
		stored, ok := s.Settings[userID]
		if !ok {
			return persistence.ErrSettingsNotFound
		}

		settings = clone(stored)

		return nil
	})

	return settings, err
}

func (r *settingsRepository) Save(_ context.Context, settings *models.Settings) error {
	return r.p.write(func(s *state) error {
		s.Settings[settings.UserID] = clone(settings)

		return nil
	})
}

func (r *settingsRepository) ListBySubDepartment(_ context.Context, subDepartmentID string) ([]*models.Settings, error) {
	result := make([]*models.Settings, 0)

	err := r.p.read(func(s *state) error {
		for _, settings := range s.Settings {
			if settings.SubDepartmentID == subDepartmentID {
				result = append(result, clone(settings))
			}
		}

		return nil
	})

	sort.Slice(result, func(i, j int) bool { return result[i].UserID < result[j].UserID })

	return result, err
}
