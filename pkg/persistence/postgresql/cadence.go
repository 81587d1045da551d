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
	"github.com/google/uuid"
	"github.com/lib/pq"
)

const cadenceColumns = `
	id
  , name
  , description
  , status
  , priority
  , type
  , user_id
  , sd_id
  , company_id
  , is_product_tour
  , resume_at
  , launch_at
  , launch_cron
  , created_at
  , updated_at
`

// CadenceRepository handles cadence-related database operations.
type CadenceRepository struct {
	q      querier
	logger *slog.Logger
}

func (r *CadenceRepository) GetByID(ctx context.Context, id string) (*models.Cadence, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+cadenceColumns+` FROM cadences WHERE id = $1`, id)

	cadence, err := scanCadence(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrCadenceNotFound
		}

		return nil, fmt.Errorf("failed to scan cadence: %w", err)
	}

	return cadence, nil
}

func (r *CadenceRepository) List(ctx context.Context, filter persistence.CadenceFilter) ([]*models.Cadence, error) {
	query := `SELECT ` + cadenceColumns + ` FROM cadences
		WHERE ($1 = '' OR user_id = $1)
		  AND ($2 = '' OR sd_id = $2)
		  AND ($3 = '' OR company_id = $3)
		  AND ($4 = '' OR status = $4)
		ORDER BY created_at DESC, id`

	rows, err := r.q.QueryContext(ctx, query, filter.UserID, filter.SubDepartmentID, filter.CompanyID, string(filter.Status))
	if err != nil {
		return nil, fmt.Errorf("failed to query cadences: %w", err)
	}

	return collect(ctx, r.logger, rows, scanCadence)
}

func (r *CadenceRepository) Save(ctx context.Context, cadence *models.Cadence) error {
	now := time.Now().UTC()

	if cadence.CreatedAt.IsZero() {
		cadence.CreatedAt = now
	}

	cadence.UpdatedAt = now

	if cadence.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate cadence ID: %w", err)
		}

		cadence.ID = id.String()
	}

	query := `
		INSERT INTO cadences (` + cadenceColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			status = EXCLUDED.status,
			priority = EXCLUDED.priority,
			type = EXCLUDED.type,
			user_id = EXCLUDED.user_id,
			sd_id = EXCLUDED.sd_id,
			company_id = EXCLUDED.company_id,
			is_product_tour = EXCLUDED.is_product_tour,
			resume_at = EXCLUDED.resume_at,
			launch_at = EXCLUDED.launch_at,
			launch_cron = EXCLUDED.launch_cron,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.q.ExecContext(ctx, query,
		cadence.ID,
		cadence.Name,
		cadence.Description,
		cadence.Status,
		cadence.Priority,
		cadence.Type,
		cadence.UserID,
		cadence.SubDepartmentID,
		cadence.CompanyID,
		cadence.IsProductTour,
		cadence.ResumeAt,
		cadence.LaunchAt,
		cadence.LaunchCron,
		cadence.CreatedAt,
		cadence.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save cadence: %w", err)
	}

	return nil
}

// Delete removes the cadence. Nodes, links and schedules cascade through
// foreign keys; tasks are removed explicitly.
func (r *CadenceRepository) Delete(ctx context.Context, id string) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM tasks WHERE cadence_id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete cadence tasks: %w", err)
	}

	result, err := r.q.ExecContext(ctx, `DELETE FROM cadences WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete cadence: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return persistence.NewCadenceError("Delete", id, persistence.ErrCadenceNotFound)
	}

	return nil
}

func (r *CadenceRepository) Lock(ctx context.Context, id string) error {
	var locked string

	err := r.q.QueryRowContext(ctx, `SELECT id FROM cadences WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.ErrCadenceNotFound
		}

		return fmt.Errorf("failed to lock cadence: %w", err)
	}

	return nil
}

func (r *CadenceRepository) TransitionStatus(ctx context.Context, transition persistence.CadenceStatusTransition) (bool, error) {
	query := `
		UPDATE cadences
		SET status = $2, resume_at = $3, updated_at = NOW()
		WHERE id = $1 AND status = ANY($4)
	`

	result, err := r.q.ExecContext(ctx, query,
		transition.CadenceID,
		transition.To,
		transition.ResumeAt,
		pq.Array(toStrings(transition.From)),
	)
	if err != nil {
		return false, fmt.Errorf("failed to transition cadence status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected > 0 {
		return true, nil
	}

	// Distinguish a missing cadence from a status mismatch.
	var exists bool

	err = r.q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM cadences WHERE id = $1)`, transition.CadenceID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check cadence existence: %w", err)
	}

	if !exists {
		return false, persistence.NewCadenceError("TransitionStatus", transition.CadenceID, persistence.ErrCadenceNotFound)
	}

	return false, nil
}

func (r *CadenceRepository) DueForResume(ctx context.Context, before time.Time) ([]*models.Cadence, error) {
	query := `SELECT ` + cadenceColumns + ` FROM cadences
		WHERE status = 'paused' AND resume_at IS NOT NULL AND resume_at <= $1
		ORDER BY resume_at`

	rows, err := r.q.QueryContext(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("failed to query cadences due for resume: %w", err)
	}

	return collect(ctx, r.logger, rows, scanCadence)
}

func scanCadence(s scanner) (*models.Cadence, error) {
	var cadence models.Cadence

	err := s.Scan(
		&cadence.ID,
		&cadence.Name,
		&cadence.Description,
		&cadence.Status,
		&cadence.Priority,
		&cadence.Type,
		&cadence.UserID,
		&cadence.SubDepartmentID,
		&cadence.CompanyID,
		&cadence.IsProductTour,
		&cadence.ResumeAt,
		&cadence.LaunchAt,
		&cadence.LaunchCron,
		&cadence.CreatedAt,
		&cadence.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &cadence, nil
}
