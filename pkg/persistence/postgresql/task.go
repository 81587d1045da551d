package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/dukex/cadence/pkg/models"
	"github.com/dukex/cadence/pkg/persistence"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

var taskFields = []string{
	"id", "lead_id", "node_id", "cadence_id", "user_id", "name", "urgent",
	"completed", "complete_time", "is_skipped", "skip_time", "skip_reason",
	"start_time", "is_today", "metadata", "created_at",
}

var taskColumns = strings.Join(taskFields, ", ")

const outstanding = `NOT completed AND NOT is_skipped`

// TaskRepository handles task-related database operations.
type TaskRepository struct {
	q      querier
	logger *slog.Logger
}

// Create relies on the partial unique index over outstanding (lead_id, node_id)
// pairs, so concurrent replicas cannot double-schedule a step.
func (r *TaskRepository) Create(ctx context.Context, task *models.Task) error {
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}

	if task.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate task ID: %w", err)
		}

		task.ID = id.String()
	}

	metadataJSON, err := json.Marshal(task.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal task metadata: %w", err)
	}

	query := `
		INSERT INTO tasks (` + taskColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (lead_id, node_id) WHERE node_id IS NOT NULL AND ` + outstanding + ` DO NOTHING
	`

	result, err := r.q.ExecContext(ctx, query,
		task.ID,
		task.LeadID,
		task.NodeID,
		task.CadenceID,
		task.UserID,
		task.Name,
		task.Urgent,
		task.Completed,
		task.CompleteTime,
		task.IsSkipped,
		task.SkipTime,
		task.SkipReason,
		task.StartTime,
		task.IsToday,
		metadataJSON,
		task.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		nodeID := ""
		if task.NodeID != nil {
			nodeID = *task.NodeID
		}

		return persistence.NewTaskError("Create", task.LeadID, nodeID, persistence.ErrOutstandingTaskExists)
	}

	return nil
}

func (r *TaskRepository) GetByID(ctx context.Context, id string) (*models.Task, error) {
	return r.getOne(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id)
}

func (r *TaskRepository) Outstanding(ctx context.Context, leadID, nodeID string) (*models.Task, error) {
	return r.getOne(ctx, `SELECT `+taskColumns+` FROM tasks WHERE lead_id = $1 AND node_id = $2 AND `+outstanding, leadID, nodeID)
}

func (r *TaskRepository) getOne(ctx context.Context, query string, args ...any) (*models.Task, error) {
	task, err := scanTask(r.q.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrTaskNotFound
		}

		return nil, fmt.Errorf("failed to scan task: %w", err)
	}

	return task, nil
}

func (r *TaskRepository) ListOutstanding(ctx context.Context, leadID, cadenceID string) ([]*models.Task, error) {
	return r.list(ctx, `SELECT `+taskColumns+` FROM tasks WHERE lead_id = $1 AND cadence_id = $2 AND `+outstanding+` ORDER BY start_time, id`, leadID, cadenceID)
}

func (r *TaskRepository) ListByUser(ctx context.Context, userID string, todayOnly bool) ([]*models.Task, error) {
	return r.list(ctx, `SELECT `+taskColumns+` FROM tasks WHERE user_id = $1 AND `+outstanding+` AND (NOT $2 OR is_today) ORDER BY start_time, id`, userID, todayOnly)
}

func (r *TaskRepository) list(ctx context.Context, query string, args ...any) ([]*models.Task, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}

	return collect(ctx, r.logger, rows, func(s scanner) (*models.Task, error) { return scanTask(s) })
}

func (r *TaskRepository) Complete(ctx context.Context, id string, at time.Time) (bool, error) {
	return r.finish(ctx, `UPDATE tasks SET completed = true, complete_time = $2, is_today = false WHERE id = $1 AND `+outstanding, id, at)
}

func (r *TaskRepository) Skip(ctx context.Context, id string, at time.Time, reason string) (bool, error) {
	return r.finish(ctx, `UPDATE tasks SET is_skipped = true, skip_time = $2, skip_reason = $3, is_today = false WHERE id = $1 AND `+outstanding, id, at, reason)
}

func (r *TaskRepository) finish(ctx context.Context, query, id string, args ...any) (bool, error) {
	result, err := r.q.ExecContext(ctx, query, append([]any{id}, args...)...)
	if err != nil {
		return false, fmt.Errorf("failed to update task: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected > 0 {
		return true, nil
	}

	if _, err := r.GetByID(ctx, id); err != nil {
		return false, err
	}

	return false, nil
}

func (r *TaskRepository) DeleteOutstandingByNode(ctx context.Context, nodeID string) ([]*models.Task, error) {
	tasks, err := r.list(ctx, `DELETE FROM tasks WHERE node_id = $1 AND `+outstanding+` RETURNING `+taskColumns, nodeID)
	if err != nil {
		return nil, err
	}

	sort.Slice(tasks, func(i, j int) bool { return tasks[i].StartTime.Before(tasks[j].StartTime) })

	return tasks, nil
}

func (r *TaskRepository) QueueCandidates(ctx context.Context, userID string, until time.Time) ([]*models.QueueCandidate, error) {
	prefixed := make([]string, len(taskFields))
	for i, field := range taskFields {
		prefixed[i] = "t." + field
	}

	query := `
		SELECT ` + strings.Join(prefixed, ", ") + `, c.priority, lc.lead_cadence_order
		FROM tasks t
		JOIN cadences c ON c.id = t.cadence_id
		JOIN lead_cadences lc ON lc.lead_id = t.lead_id AND lc.cadence_id = t.cadence_id
		WHERE t.user_id = $1
		  AND NOT t.completed AND NOT t.is_skipped
		  AND t.start_time <= $2
		  AND c.status = 'in_progress'
		  AND lc.status = 'in_progress'
	`

	rows, err := r.q.QueryContext(ctx, query, userID, until)
	if err != nil {
		return nil, fmt.Errorf("failed to query queue candidates: %w", err)
	}

	return collect(ctx, r.logger, rows, func(s scanner) (*models.QueueCandidate, error) {
		var candidate models.QueueCandidate

		task, err := scanTask(s, &candidate.CadencePriority, &candidate.LeadCadenceOrder)
		if err != nil {
			return nil, err
		}

		candidate.Task = task

		return &candidate, nil
	})
}

// MarkToday rewrites the derived marking in a single statement so readers
// never observe a half-applied queue.
func (r *TaskRepository) MarkToday(ctx context.Context, userID string, taskIDs []string) error {
	if taskIDs == nil {
		taskIDs = []string{}
	}

	_, err := r.q.ExecContext(ctx,
		`UPDATE tasks SET is_today = (id = ANY($2)) WHERE user_id = $1 AND `+outstanding,
		userID, pq.Array(taskIDs),
	)
	if err != nil {
		return fmt.Errorf("failed to mark today's tasks: %w", err)
	}

	return nil
}

func (r *TaskRepository) UsersWithTasksStarting(ctx context.Context, from, to time.Time) ([]string, error) {
	return r.users(ctx, `SELECT DISTINCT user_id FROM tasks WHERE `+outstanding+` AND start_time > $1 AND start_time <= $2 ORDER BY user_id`, from, to)
}

func (r *TaskRepository) UsersWithOutstandingTasks(ctx context.Context) ([]string, error) {
	return r.users(ctx, `SELECT DISTINCT user_id FROM tasks WHERE `+outstanding+` ORDER BY user_id`)
}

func (r *TaskRepository) users(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query task owners: %w", err)
	}

	return collect(ctx, r.logger, rows, scanString)
}

func (r *TaskRepository) CountByNode(ctx context.Context, cadenceID string) ([]*models.NodeTaskCount, error) {
	query := `
		SELECT
			node_id
		  , COUNT(*) FILTER (WHERE ` + outstanding + `)
		  , COUNT(*) FILTER (WHERE completed)
		  , COUNT(*) FILTER (WHERE is_skipped AND NOT completed)
		FROM tasks
		WHERE cadence_id = $1 AND node_id IS NOT NULL
		GROUP BY node_id
		ORDER BY node_id
	`

	rows, err := r.q.QueryContext(ctx, query, cadenceID)
	if err != nil {
		return nil, fmt.Errorf("failed to count tasks by node: %w", err)
	}

	return collect(ctx, r.logger, rows, func(s scanner) (*models.NodeTaskCount, error) {
		var count models.NodeTaskCount

		err := s.Scan(&count.NodeID, &count.Outstanding, &count.Completed, &count.Skipped)

		return &count, err
	})
}

// scanTask scans the task columns followed by any extra destinations.
func scanTask(s scanner, extra ...any) (*models.Task, error) {
	var (
		task         models.Task
		metadataJSON []byte
	)

	dest := []any{
		&task.ID,
		&task.LeadID,
		&task.NodeID,
		&task.CadenceID,
		&task.UserID,
		&task.Name,
		&task.Urgent,
		&task.Completed,
		&task.CompleteTime,
		&task.IsSkipped,
		&task.SkipTime,
		&task.SkipReason,
		&task.StartTime,
		&task.IsToday,
		&metadataJSON,
		&task.CreatedAt,
	}

	if err := s.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	if metadataJSON != nil {
		if err := json.Unmarshal(metadataJSON, &task.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal task metadata: %w", err)
		}
	}

	return &task, nil
}
