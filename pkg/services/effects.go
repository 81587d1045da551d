package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/dukex/cadence/pkg/eventbus"
	"github.com/dukex/cadence/pkg/events"
	"github.com/dukex/cadence/pkg/models"
	"github.com/dukex/cadence/pkg/persistence"
	"github.com/dukex/cadence/pkg/protocol"
	"github.com/google/uuid"
)

type workflowCall struct {
	trigger   protocol.WorkflowTrigger
	cadenceID string
	leadID    string
}

// effects collects the side effects of a transaction. They only run once the
// transaction committed, so a rollback never leaks a trigger or a CRM call.
type effects struct {
	workflows []workflowCall
	mirrors   []protocol.MirrorRequest
	cancels   []events.AutomationCancelRequested
	deleted   []events.TasksDeleted
	recalc    []string
	recalcNow []string
}

func newEffects() *effects {
	return &effects{}
}

func (e *effects) trigger(trigger protocol.WorkflowTrigger, cadenceID, leadID string) {
	e.workflows = append(e.workflows, workflowCall{trigger: trigger, cadenceID: cadenceID, leadID: leadID})
}

func (e *effects) mirror(link *models.LeadCadence) {
	e.mirrors = append(e.mirrors, protocol.MirrorRequest{
		LeadID:    link.LeadID,
		CadenceID: link.CadenceID,
		Status:    link.Status,
		Reason:    link.StatusReason,
	})
}

func (e *effects) cancelAutomation(cadenceID, leadID string) {
	e.cancels = append(e.cancels, events.AutomationCancelRequested{
		BaseEvent: events.NewBaseEvent(events.AutomationCancelRequestedEvent),
		CadenceID: cadenceID,
		LeadID:    leadID,
	})
}

func (e *effects) tasksDeleted(event events.TasksDeleted) {
	e.deleted = append(e.deleted, event)
}

// recalculate defers the user's queue recalculation to the job queue.
func (e *effects) recalculate(userIDs ...string) {
	e.recalc = append(e.recalc, userIDs...)
}

// recalculateNow recalculates the user's queue before the operation returns.
func (e *effects) recalculateNow(userID string) {
	e.recalcNow = append(e.recalcNow, userID)
}

// merge appends other's effects after e's.
func (e *effects) merge(other *effects) {
	e.workflows = append(e.workflows, other.workflows...)
	e.mirrors = append(e.mirrors, other.mirrors...)
	e.cancels = append(e.cancels, other.cancels...)
	e.deleted = append(e.deleted, other.deleted...)
	e.recalc = append(e.recalc, other.recalc...)
	e.recalcNow = append(e.recalcNow, other.recalcNow...)
}

// dispatcher runs collected effects. Every failure is logged and swallowed:
// collaborators never fail the operation that produced them.
type dispatcher struct {
	workflows protocol.WorkflowSink
	notifier  protocol.Notifier
	jobs      eventbus.EventPublisher
	daily     *DailyScheduler
	logger    *slog.Logger
}

func (d *dispatcher) apply(ctx context.Context, fx *effects) {
	for _, call := range fx.workflows {
		if err := d.workflows.ApplyWorkflow(ctx, call.trigger, call.cadenceID, call.leadID); err != nil {
			d.logger.ErrorContext(ctx, "failed to apply workflow",
				"trigger", call.trigger, "cadence_id", call.cadenceID, "lead_id", call.leadID, "error", err)
		}
	}

	for _, cancel := range fx.cancels {
		if err := d.notifier.Notify(ctx, cancel.CadenceID, cancel); err != nil {
			d.logger.ErrorContext(ctx, "failed to cancel automation",
				"cadence_id", cancel.CadenceID, "lead_id", cancel.LeadID, "error", err)
		}
	}

	for _, deleted := range fx.deleted {
		if err := d.notifier.Notify(ctx, deleted.UserID, deleted); err != nil {
			d.logger.ErrorContext(ctx, "failed to notify deleted tasks",
				"user_id", deleted.UserID, "node_id", deleted.NodeID, "error", err)
		}
	}

	for _, mirror := range fx.mirrors {
		err := d.jobs.Publish(ctx, mirror.LeadID, events.CRMMirrorRequested{
			BaseEvent: events.NewBaseEvent(events.CRMMirrorRequestedEvent),
			LeadID:    mirror.LeadID,
			CadenceID: mirror.CadenceID,
			Status:    mirror.Status,
			Reason:    mirror.Reason,
			Attempt:   1,
		})
		if err != nil {
			d.logger.ErrorContext(ctx, "failed to enqueue CRM mirror",
				"cadence_id", mirror.CadenceID, "lead_id", mirror.LeadID, "error", err)
		}
	}

	now := make(map[string]bool, len(fx.recalcNow))

	for _, userID := range fx.recalcNow {
		if now[userID] {
			continue
		}

		now[userID] = true

		if _, err := d.daily.Recalculate(ctx, userID); err != nil {
			d.logger.ErrorContext(ctx, "synchronous recalculation failed", "user_id", userID, "error", err)
		}
	}

	deferred := make([]string, 0, len(fx.recalc))

	for _, userID := range fx.recalc {
		if !now[userID] {
			deferred = append(deferred, userID)
		}
	}

	d.daily.Trigger(ctx, deferred...)
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}

	return id.String()
}

func recordActivity(ctx context.Context, tx persistence.Persistence, at time.Time, link *models.LeadCadence,
	activityType models.ActivityType, name string, nodeID *string,
) error {
	return tx.ActivityRepository().Create(ctx, &models.Activity{
		ID:        newID(),
		Type:      activityType,
		Name:      name,
		Status:    string(link.Status),
		LeadID:    link.LeadID,
		CadenceID: link.CadenceID,
		UserID:    link.UserID,
		NodeID:    nodeID,
		CreatedAt: at,
	})
}
