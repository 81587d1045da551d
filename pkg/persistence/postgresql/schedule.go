package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/cadence/pkg/models"
	"github.com/dukex/cadence/pkg/persistence"
)

const scheduleColumns = `id, cadence_id, cron_expression, launch_at, next_due_at, active, created_at, updated_at`

// ScheduleRepository handles launch schedule database operations.
type ScheduleRepository struct {
	q      querier
	logger *slog.Logger
}

func (r *ScheduleRepository) GetByCadence(ctx context.Context, cadenceID string) (*models.Schedule, error) {
	schedule, err := scanSchedule(r.q.QueryRowContext(ctx, `SELECT `+scheduleColumns+` FROM schedules WHERE cadence_id = $1`, cadenceID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrScheduleNotFound
		}

		return nil, fmt.Errorf("failed to scan schedule: %w", err)
	}

	return schedule, nil
}

func (r *ScheduleRepository) Save(ctx context.Context, schedule *models.Schedule) error {
	query := `
		INSERT INTO schedules (` + scheduleColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			cron_expression = EXCLUDED.cron_expression,
			launch_at = EXCLUDED.launch_at,
			next_due_at = EXCLUDED.next_due_at,
			active = EXCLUDED.active,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.q.ExecContext(ctx, query,
		schedule.ID,
		schedule.CadenceID,
		schedule.CronExpression,
		schedule.LaunchAt,
		schedule.NextDueAt,
		schedule.Active,
		schedule.CreatedAt,
		schedule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save schedule: %w", err)
	}

	return nil
}

func (r *ScheduleRepository) Delete(ctx context.Context, id string) error {
	result, err := r.q.ExecContext(ctx, `DELETE FROM schedules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete schedule: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return persistence.ErrScheduleNotFound
	}

	return nil
}

func (r *ScheduleRepository) Due(ctx context.Context, before time.Time) ([]*models.Schedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM schedules WHERE active AND next_due_at <= $1 ORDER BY next_due_at`

	rows, err := r.q.QueryContext(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("failed to query due schedules: %w", err)
	}

	return collect(ctx, r.logger, rows, scanSchedule)
}

func scanSchedule(s scanner) (*models.Schedule, error) {
	var schedule models.Schedule

	err := s.Scan(
		&schedule.ID,
		&schedule.CadenceID,
		&schedule.CronExpression,
		&schedule.LaunchAt,
		&schedule.NextDueAt,
		&schedule.Active,
		&schedule.CreatedAt,
		&schedule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &schedule, nil
}
