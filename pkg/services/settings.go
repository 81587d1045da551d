package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/cadence/pkg/models"
	"github.com/dukex/cadence/pkg/persistence"
	"github.com/dukex/cadence/pkg/protocol"
	"github.com/go-playground/validator/v10"
)

// SettingsService resolves and updates per-user engine settings.
type SettingsService struct {
	persistence persistence.Persistence
	validate    *validator.Validate
	logger      *slog.Logger
	recalc      Recalculator
}

// Recalculator requests asynchronous daily queue recalculations.
type Recalculator interface {
	Trigger(ctx context.Context, userIDs ...string)
}

func NewSettingsService(p persistence.Persistence, logger *slog.Logger) *SettingsService {
	return &SettingsService{
		persistence: p,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		logger:      logger.With("module", "settings"),
	}
}

// Settings returns the stored settings of userID, or the defaults. Missing
// unsubscribe policies fall back to the default ones.
func (s *SettingsService) Settings(ctx context.Context, userID string) (models.Settings, error) {
	defaults := models.DefaultSettings()
	defaults.UserID = userID

	stored, err := s.persistence.SettingsRepository().Get(ctx, userID)
	if err != nil {
		if persistence.IsNotFound(err) {
			return defaults, nil
		}

		return models.Settings{}, fmt.Errorf("failed to load settings: %w", err)
	}

	settings := *stored
	if settings.LeadCadenceOrderMax <= 0 {
		settings.LeadCadenceOrderMax = defaults.LeadCadenceOrderMax
	}

	if settings.UnsubscribeSkip == nil {
		settings.UnsubscribeSkip = defaults.UnsubscribeSkip
	}

	return settings, nil
}

// Update stores the settings of one user and recalculates their daily queue.
func (s *SettingsService) Update(ctx context.Context, settings *models.Settings) error {
	if settings.UserID == "" {
		return NewValidationError("update_settings", "user_required", "user id is required", ErrInvalidRequest)
	}

	if err := s.validate.Struct(settings); err != nil {
		return NewValidationError("update_settings", "invalid_settings", err.Error(), ErrInvalidRequest)
	}

	if err := s.persistence.SettingsRepository().Save(ctx, settings); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}

	s.triggerRecalculation(ctx, settings.UserID)

	return nil
}

// SettingsFor returns the settings of userID when actor may manage that user.
func (s *SettingsService) SettingsFor(ctx context.Context, actor protocol.Actor, userID string) (models.Settings, error) {
	stored, err := s.stored(ctx, userID)
	if err != nil {
		return models.Settings{}, err
	}

	if err := canManageUser(actor, userID, stored); err != nil {
		return models.Settings{}, err
	}

	return s.Settings(ctx, userID)
}

// UpdateAs stores settings on behalf of actor. The sub-department and company
// never come from the request: stored ones are kept, and a user configuring
// themselves for the first time takes their own.
func (s *SettingsService) UpdateAs(ctx context.Context, actor protocol.Actor, settings *models.Settings) error {
	stored, err := s.stored(ctx, settings.UserID)
	if err != nil {
		return err
	}

	if err := canManageUser(actor, settings.UserID, stored); err != nil {
		return err
	}

	settings.SubDepartmentID, settings.CompanyID = "", ""

	if stored != nil {
		settings.SubDepartmentID, settings.CompanyID = stored.SubDepartmentID, stored.CompanyID
	}

	if settings.SubDepartmentID == "" && actor.UserID == settings.UserID {
		settings.SubDepartmentID, settings.CompanyID = actor.SubDepartmentID, actor.CompanyID
	}

	return s.Update(ctx, settings)
}

func (s *SettingsService) stored(ctx context.Context, userID string) (*models.Settings, error) {
	stored, err := s.persistence.SettingsRepository().Get(ctx, userID)
	if err != nil {
		if persistence.IsNotFound(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	return stored, nil
}

// canManageUser scopes settings access like cadence access: managers reach
// users of their sub-department, admins users of their company. stored is nil
// for users still on the defaults, whose scope is unknown.
func canManageUser(actor protocol.Actor, userID string, stored *models.Settings) error {
	if actor.UserID == userID || actor.Role == protocol.RoleSystem {
		return nil
	}

	switch actor.Role {
	case protocol.RoleAdmin, protocol.RoleSuperAdmin:
		if stored == nil || stored.CompanyID == "" || stored.CompanyID == actor.CompanyID {
			return nil
		}
	case protocol.RoleManager:
		if stored != nil && stored.SubDepartmentID == actor.SubDepartmentID &&
			(stored.CompanyID == "" || stored.CompanyID == actor.CompanyID) {
			return nil
		}
	}

	return fmt.Errorf("%w: user %s cannot manage settings of user %s", ErrForbidden, actor.UserID, userID)
}

// SubDepartmentPatch changes the queue settings of every user in a sub-department.
type SubDepartmentPatch struct {
	MaxTasks          *int `json:"max_tasks"           validate:"omitempty,min=0"`
	HighPrioritySplit *int `json:"high_priority_split" validate:"omitempty,min=0,max=100"`
}

// UpdateSubDepartment applies patch to the stored settings of the sub-department
// and recalculates the queue of each affected user. It returns the users touched.
// Managers patch only their own sub-department, admins only one of their company.
func (s *SettingsService) UpdateSubDepartment(ctx context.Context, actor protocol.Actor, subDepartmentID string, patch SubDepartmentPatch) ([]string, error) {
	denied := fmt.Errorf("%w: user %s cannot change settings of sub-department %s", ErrForbidden, actor.UserID, subDepartmentID)

	switch actor.Role {
	case protocol.RoleSystem, protocol.RoleAdmin, protocol.RoleSuperAdmin:
	case protocol.RoleManager:
		if subDepartmentID != actor.SubDepartmentID {
			return nil, denied
		}
	default:
		return nil, denied
	}

	if err := s.validate.Struct(patch); err != nil {
		return nil, NewValidationError("update_sub_department_settings", "invalid_settings", err.Error(), ErrInvalidRequest)
	}

	userIDs := make([]string, 0)

	err := s.persistence.Transaction(ctx, func(tx persistence.Persistence) error {
		all, err := tx.SettingsRepository().ListBySubDepartment(ctx, subDepartmentID)
		if err != nil {
			return err
		}

		for _, settings := range all {
			if actor.Role != protocol.RoleSystem && settings.CompanyID != "" && settings.CompanyID != actor.CompanyID {
				return denied
			}
		}

		for _, settings := range all {
			if patch.MaxTasks != nil {
				settings.MaxTasks = *patch.MaxTasks
			}

			if patch.HighPrioritySplit != nil {
				settings.HighPrioritySplit = *patch.HighPrioritySplit
			}

			if err := tx.SettingsRepository().Save(ctx, settings); err != nil {
				return err
			}

			userIDs = append(userIDs, settings.UserID)
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update sub-department settings: %w", err)
	}

	s.triggerRecalculation(ctx, userIDs...)

	return userIDs, nil
}

func (s *SettingsService) triggerRecalculation(ctx context.Context, userIDs ...string) {
	if s.recalc != nil {
		s.recalc.Trigger(ctx, userIDs...)
	}
}
