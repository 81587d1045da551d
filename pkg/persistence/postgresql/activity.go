package postgresql

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/cadence/pkg/models"
	"github.com/google/uuid"
)

// ActivityRepository appends lead timeline entries.
type ActivityRepository struct {
	q      querier
	logger *slog.Logger
}

func (r *ActivityRepository) Create(ctx context.Context, activity *models.Activity) error {
	if activity.CreatedAt.IsZero() {
		activity.CreatedAt = time.Now().UTC()
	}

	if activity.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate activity ID: %w", err)
		}

		activity.ID = id.String()
	}

	query := `
		INSERT INTO activities (id, type, name, status, lead_id, cadence_id, user_id, node_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.q.ExecContext(ctx, query,
		activity.ID,
		activity.Type,
		activity.Name,
		activity.Status,
		activity.LeadID,
		activity.CadenceID,
		activity.UserID,
		activity.NodeID,
		activity.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create activity: %w", err)
	}

	return nil
}

func (r *ActivityRepository) ListByLead(ctx context.Context, leadID string) ([]*models.Activity, error) {
	query := `
		SELECT id, type, name, status, lead_id, cadence_id, user_id, node_id, created_at
		FROM activities
		WHERE lead_id = $1
		ORDER BY created_at, id
	`

	rows, err := r.q.QueryContext(ctx, query, leadID)
	if err != nil {
		return nil, fmt.Errorf("failed to query activities: %w", err)
	}

	return collect(ctx, r.logger, rows, func(s scanner) (*models.Activity, error) {
		var activity models.Activity

		err := s.Scan(
			&activity.ID,
			&activity.Type,
			&activity.Name,
			&activity.Status,
			&activity.LeadID,
			&activity.CadenceID,
			&activity.UserID,
			&activity.NodeID,
			&activity.CreatedAt,
		)

		return &activity, err
	})
}
