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
	"github.com/lib/pq"
)

const linkColumns = `
	lead_id
  , cadence_id
  , user_id
  , status
  , status_reason
  , unsubscribed
  , unsubscribe_node_id
  , current_node_id
  , lead_cadence_order
  , paused_until
  , created_at
  , updated_at
`

// LeadCadenceRepository handles lead-cadence link database operations.
type LeadCadenceRepository struct {
	q      querier
	logger *slog.Logger
}

func (r *LeadCadenceRepository) Get(ctx context.Context, leadID, cadenceID string) (*models.LeadCadence, error) {
	return r.get(ctx, leadID, cadenceID, "")
}

func (r *LeadCadenceRepository) GetForUpdate(ctx context.Context, leadID, cadenceID string) (*models.LeadCadence, error) {
	return r.get(ctx, leadID, cadenceID, " FOR UPDATE")
}

func (r *LeadCadenceRepository) get(ctx context.Context, leadID, cadenceID, lock string) (*models.LeadCadence, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+linkColumns+` FROM lead_cadences WHERE lead_id = $1 AND cadence_id = $2`+lock, leadID, cadenceID)

	link, err := scanLink(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrLeadCadenceNotFound
		}

		return nil, fmt.Errorf("failed to scan lead cadence: %w", err)
	}

	return link, nil
}

func (r *LeadCadenceRepository) ListByCadence(ctx context.Context, cadenceID string, statuses ...models.LeadCadenceStatus) ([]*models.LeadCadence, error) {
	query := `SELECT ` + linkColumns + ` FROM lead_cadences
		WHERE cadence_id = $1 AND (cardinality($2::text[]) = 0 OR status = ANY($2))
		ORDER BY lead_cadence_order, lead_id`

	rows, err := r.q.QueryContext(ctx, query, cadenceID, pq.Array(toStrings(statuses)))
	if err != nil {
		return nil, fmt.Errorf("failed to query lead cadences: %w", err)
	}

	return collect(ctx, r.logger, rows, scanLink)
}

func (r *LeadCadenceRepository) ListByLead(ctx context.Context, leadID string) ([]*models.LeadCadence, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+linkColumns+` FROM lead_cadences WHERE lead_id = $1 ORDER BY created_at, cadence_id`, leadID)
	if err != nil {
		return nil, fmt.Errorf("failed to query lead cadences: %w", err)
	}

	return collect(ctx, r.logger, rows, scanLink)
}

func (r *LeadCadenceRepository) DueForResume(ctx context.Context, before time.Time) ([]*models.LeadCadence, error) {
	query := `SELECT ` + linkColumns + ` FROM lead_cadences
		WHERE status = 'paused' AND paused_until IS NOT NULL AND paused_until <= $1
		ORDER BY paused_until`

	rows, err := r.q.QueryContext(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("failed to query lead cadences due for resume: %w", err)
	}

	return collect(ctx, r.logger, rows, scanLink)
}

func (r *LeadCadenceRepository) Save(ctx context.Context, link *models.LeadCadence) error {
	now := time.Now().UTC()

	if link.CreatedAt.IsZero() {
		link.CreatedAt = now
	}

	link.UpdatedAt = now

	query := `
		INSERT INTO lead_cadences (` + linkColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (lead_id, cadence_id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			status = EXCLUDED.status,
			status_reason = EXCLUDED.status_reason,
			unsubscribed = EXCLUDED.unsubscribed,
			unsubscribe_node_id = EXCLUDED.unsubscribe_node_id,
			current_node_id = EXCLUDED.current_node_id,
			lead_cadence_order = EXCLUDED.lead_cadence_order,
			paused_until = EXCLUDED.paused_until,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.q.ExecContext(ctx, query,
		link.LeadID,
		link.CadenceID,
		link.UserID,
		link.Status,
		link.StatusReason,
		link.Unsubscribed,
		link.UnsubscribeNodeID,
		link.CurrentNodeID,
		link.LeadCadenceOrder,
		link.PausedUntil,
		link.CreatedAt,
		link.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save lead cadence: %w", err)
	}

	return nil
}

func (r *LeadCadenceRepository) TransitionStatus(ctx context.Context, transition persistence.LinkStatusTransition) (bool, error) {
	query := `
		UPDATE lead_cadences
		SET status = $3, status_reason = $4, paused_until = $5, updated_at = NOW()
		WHERE lead_id = $1 AND cadence_id = $2 AND status = ANY($6)
	`

	result, err := r.q.ExecContext(ctx, query,
		transition.LeadID,
		transition.CadenceID,
		transition.To,
		transition.Reason,
		transition.PausedUntil,
		pq.Array(toStrings(transition.From)),
	)
	if err != nil {
		return false, fmt.Errorf("failed to transition lead cadence status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected > 0 {
		return true, nil
	}

	if _, err := r.Get(ctx, transition.LeadID, transition.CadenceID); err != nil {
		return false, err
	}

	return false, nil
}

func (r *LeadCadenceRepository) MaxOrder(ctx context.Context, cadenceID, userID string) (int, error) {
	var maxOrder int

	err := r.q.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(lead_cadence_order), 0) FROM lead_cadences WHERE cadence_id = $1 AND user_id = $2`,
		cadenceID, userID,
	).Scan(&maxOrder)
	if err != nil {
		return 0, fmt.Errorf("failed to query max lead cadence order: %w", err)
	}

	return maxOrder, nil
}

func (r *LeadCadenceRepository) UserIDsByCadence(ctx context.Context, cadenceID string) ([]string, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT DISTINCT user_id FROM lead_cadences WHERE cadence_id = $1 ORDER BY user_id`, cadenceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query cadence users: %w", err)
	}

	return collect(ctx, r.logger, rows, scanString)
}

func scanLink(s scanner) (*models.LeadCadence, error) {
	var link models.LeadCadence

	err := s.Scan(
		&link.LeadID,
		&link.CadenceID,
		&link.UserID,
		&link.Status,
		&link.StatusReason,
		&link.Unsubscribed,
		&link.UnsubscribeNodeID,
		&link.CurrentNodeID,
		&link.LeadCadenceOrder,
		&link.PausedUntil,
		&link.CreatedAt,
		&link.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &link, nil
}

func scanString(s scanner) (string, error) {
	var value string

	err := s.Scan(&value)

	return value, err
}
