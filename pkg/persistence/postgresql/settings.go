package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/cadence/pkg/models"
	"github.com/dukex/cadence/pkg/persistence"
)

const settingsColumns = `user_id, sd_id, company_id, max_tasks, high_priority_split, lead_cadence_order_max, unsubscribe_skip, skip_weekends`

// SettingsRepository handles per-user settings database operations.
type SettingsRepository struct {
	q      querier
	logger *slog.Logger
}

func (r *SettingsRepository) Get(ctx context.Context, userID string) (*models.Settings, error) {
	settings, err := scanSettings(r.q.QueryRowContext(ctx, `SELECT `+settingsColumns+` FROM settings WHERE user_id = $1`, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrSettingsNotFound
		}

		return nil, fmt.Errorf("failed to scan settings: %w", err)
	}

	return settings, nil
}

func (r *SettingsRepository) Save(ctx context.Context, settings *models.Settings) error {
	skipJSON, err := json.Marshal(settings.UnsubscribeSkip)
	if err != nil {
		return fmt.Errorf("failed to marshal unsubscribe policy: %w", err)
	}

	query := `
		INSERT INTO settings (` + settingsColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id) DO UPDATE SET
			sd_id = EXCLUDED.sd_id,
			company_id = EXCLUDED.company_id,
			max_tasks = EXCLUDED.max_tasks,
			high_priority_split = EXCLUDED.high_priority_split,
			lead_cadence_order_max = EXCLUDED.lead_cadence_order_max,
			unsubscribe_skip = EXCLUDED.unsubscribe_skip,
			skip_weekends = EXCLUDED.skip_weekends
	`

	_, err = r.q.ExecContext(ctx, query,
		settings.UserID,
		settings.SubDepartmentID,
		settings.CompanyID,
		settings.MaxTasks,
		settings.HighPrioritySplit,
		settings.LeadCadenceOrderMax,
		skipJSON,
		settings.SkipWeekends,
	)
	if err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}

	return nil
}

func (r *SettingsRepository) ListBySubDepartment(ctx context.Context, subDepartmentID string) ([]*models.Settings, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+settingsColumns+` FROM settings WHERE sd_id = $1 ORDER BY user_id`, subDepartmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query settings: %w", err)
	}

	return collect(ctx, r.logger, rows, scanSettings)
}

func scanSettings(s scanner) (*models.Settings, error) {
	var (
		settings models.Settings
		skipJSON []byte
	)

	err := s.Scan(
		&settings.UserID,
		&settings.SubDepartmentID,
		&settings.CompanyID,
		&settings.MaxTasks,
		&settings.HighPrioritySplit,
		&settings.LeadCadenceOrderMax,
		&skipJSON,
		&settings.SkipWeekends,
	)
	if err != nil {
		return nil, err
	}

	if skipJSON != nil {
		if err := json.Unmarshal(skipJSON, &settings.UnsubscribeSkip); err != nil {
			return nil, fmt.Errorf("failed to unmarshal unsubscribe policy: %w", err)
		}
	}

	return &settings, nil
}
