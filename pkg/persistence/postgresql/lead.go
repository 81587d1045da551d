package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dukex/cadence/pkg/models"
	"github.com/dukex/cadence/pkg/persistence"
	"github.com/google/uuid"
)

// LeadRepository handles lead-related database operations.
type LeadRepository struct {
	q querier
}

func (r *LeadRepository) GetByID(ctx context.Context, id string) (*models.Lead, error) {
	query := `
		SELECT id, user_id, full_name, status, first_contact_time, created_at, updated_at
		FROM leads
		WHERE id = $1
	`

	var lead models.Lead

	err := r.q.QueryRowContext(ctx, query, id).Scan(
		&lead.ID,
		&lead.UserID,
		&lead.FullName,
		&lead.Status,
		&lead.FirstContactTime,
		&lead.CreatedAt,
		&lead.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrLeadNotFound
		}

		return nil, fmt.Errorf("failed to scan lead: %w", err)
	}

	return &lead, nil
}

func (r *LeadRepository) Save(ctx context.Context, lead *models.Lead) error {
	now := time.Now().UTC()

	if lead.CreatedAt.IsZero() {
		lead.CreatedAt = now
	}

	lead.UpdatedAt = now

	if lead.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate lead ID: %w", err)
		}

		lead.ID = id.String()
	}

	query := `
		INSERT INTO leads (id, user_id, full_name, status, first_contact_time, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			full_name = EXCLUDED.full_name,
			status = EXCLUDED.status,
			first_contact_time = EXCLUDED.first_contact_time,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.q.ExecContext(ctx, query,
		lead.ID,
		lead.UserID,
		lead.FullName,
		lead.Status,
		lead.FirstContactTime,
		lead.CreatedAt,
		lead.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save lead: %w", err)
	}

	return nil
}
