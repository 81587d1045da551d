package services

import (
	"context"
	"fmt"

	"github.com/dukex/cadence/pkg/models"
	"github.com/dukex/cadence/pkg/protocol"
)

// Task returns a task of a lead the actor may act on.
func (p *Progression) Task(ctx context.Context, actor protocol.Actor, taskID string) (*models.Task, error) {
	task, err := p.persistence.TaskRepository().GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}

	if _, err := p.authorizeLead(ctx, actor, task.LeadID); err != nil {
		return nil, err
	}

	return task, nil
}

// Tasks lists the outstanding tasks of userID, only the daily queue when
// todayOnly is set. Salespeople only see their own tasks.
func (p *Progression) Tasks(ctx context.Context, actor protocol.Actor, userID string, todayOnly bool) ([]*models.Task, error) {
	if actor.Role == protocol.RoleSalesPerson && actor.UserID != userID {
		return nil, fmt.Errorf("%w: user %s cannot list tasks of user %s", ErrForbidden, actor.UserID, userID)
	}

	return p.persistence.TaskRepository().ListByUser(ctx, userID, todayOnly)
}
