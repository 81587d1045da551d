package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/cadence/pkg/models"
	"github.com/dukex/cadence/pkg/persistence"
	"github.com/google/uuid"
)

const nodeColumns = `
	id
  , cadence_id
  , name
  , type
  , wait_time
  , next_node_id
  , is_first
  , step_number
  , is_urgent
  , replied_node_id
  , data
  , created_at
  , updated_at
`

// NodeRepository handles node-related database operations.
type NodeRepository struct {
	q      querier
	logger *slog.Logger
}

func (r *NodeRepository) GetByID(ctx context.Context, id string) (*models.Node, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+nodeColumns+` FROM nodes WHERE id = $1`, id)

	node, err := scanNode(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrNodeNotFound
		}

		return nil, fmt.Errorf("failed to scan node: %w", err)
	}

	return node, nil
}

func (r *NodeRepository) ListByCadence(ctx context.Context, cadenceID string) ([]*models.Node, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+nodeColumns+` FROM nodes WHERE cadence_id = $1 ORDER BY step_number, id`, cadenceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query nodes: %w", err)
	}

	return collect(ctx, r.logger, rows, scanNode)
}

func (r *NodeRepository) ListRepliesTo(ctx context.Context, nodeID string) ([]*models.Node, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+nodeColumns+` FROM nodes WHERE replied_node_id = $1 ORDER BY step_number, id`, nodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query reply nodes: %w", err)
	}

	return collect(ctx, r.logger, rows, scanNode)
}

func (r *NodeRepository) Save(ctx context.Context, node *models.Node) error {
	now := time.Now().UTC()

	if node.CreatedAt.IsZero() {
		node.CreatedAt = now
	}

	node.UpdatedAt = now

	if node.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate node ID: %w", err)
		}

		node.ID = id.String()
	}

	dataJSON, err := json.Marshal(node.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal node data: %w", err)
	}

	query := `
		INSERT INTO nodes (` + nodeColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			type = EXCLUDED.type,
			wait_time = EXCLUDED.wait_time,
			next_node_id = EXCLUDED.next_node_id,
			is_first = EXCLUDED.is_first,
			step_number = EXCLUDED.step_number,
			is_urgent = EXCLUDED.is_urgent,
			replied_node_id = EXCLUDED.replied_node_id,
			data = EXCLUDED.data,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.q.ExecContext(ctx, query,
		node.ID,
		node.CadenceID,
		node.Name,
		node.Type,
		node.WaitTime,
		node.NextNodeID,
		node.IsFirst,
		node.StepNumber,
		node.IsUrgent,
		node.RepliedNodeID,
		dataJSON,
		node.CreatedAt,
		node.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save node: %w", err)
	}

	return nil
}

func (r *NodeRepository) Delete(ctx context.Context, id string) error {
	result, err := r.q.ExecContext(ctx, `DELETE FROM nodes WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete node: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return persistence.ErrNodeNotFound
	}

	return nil
}

func scanNode(s scanner) (*models.Node, error) {
	var (
		node     models.Node
		dataJSON []byte
	)

	err := s.Scan(
		&node.ID,
		&node.CadenceID,
		&node.Name,
		&node.Type,
		&node.WaitTime,
		&node.NextNodeID,
		&node.IsFirst,
		&node.StepNumber,
		&node.IsUrgent,
		&node.RepliedNodeID,
		&dataJSON,
		&node.CreatedAt,
		&node.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if dataJSON != nil {
		if err := json.Unmarshal(dataJSON, &node.Data); err != nil {
			return nil, fmt.Errorf("failed to unmarshal node data: %w", err)
		}
	}

	return &node, nil
}
