package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/dukex/cadence/pkg/models"
	"github.com/dukex/cadence/pkg/persistence"
	"github.com/dukex/cadence/pkg/protocol"
	"github.com/dukex/cadence/pkg/telemetry"
)

// Skip reasons recorded on tasks.
const (
	SkipReasonUnsubscribed = "unsubscribed"
	SkipReasonStopped      = "stopped"
)

// skipLabel bounds the reason label of the skipped tasks counter.
func skipLabel(reason string) string {
	switch reason {
	case SkipReasonUnsubscribed, SkipReasonStopped:
		return reason
	default:
		return "manual"
	}
}

// StepResult describes where a lead ended up after a task finished.
type StepResult struct {
	Task       *models.Task             `json:"task"`
	Next       *models.Task             `json:"next,omitempty"`
	LinkStatus models.LeadCadenceStatus `json:"link_status,omitempty"`
}

// UnsubscribeResult lists what an unsubscribe changed.
type UnsubscribeResult struct {
	AlreadyUnsubscribed bool     `json:"already_unsubscribed"`
	Skipped             []string `json:"skipped"`
	Created             []string `json:"created"`
}

// Progression moves single leads through the node chain of a cadence.
type Progression struct {
	persistence persistence.Persistence
	settings    protocol.SettingsProvider
	access      protocol.AccessChecker
	dispatch    *dispatcher
	metrics     *telemetry.Metrics
	logger      *slog.Logger
	now         func() time.Time
}

// Complete marks a task completed and advances its lead to the next node.
func (p *Progression) Complete(ctx context.Context, actor protocol.Actor, taskID string) (*StepResult, error) {
	task, err := p.persistence.TaskRepository().GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}

	if _, err := p.authorizeLead(ctx, actor, task.LeadID); err != nil {
		return nil, err
	}

	settings, err := p.settings.Settings(ctx, task.UserID)
	if err != nil {
		return nil, err
	}

	fx := newEffects()
	result := &StepResult{Task: task}

	err = p.persistence.Transaction(ctx, func(tx persistence.Persistence) error {
		now := p.now()

		if task.NodeID == nil {
			if err := p.finishTask(ctx, tx, task.ID, now); err != nil {
				return err
			}

			fx.recalculate(task.UserID)

			return nil
		}

		link, err := tx.LeadCadenceRepository().GetForUpdate(ctx, task.LeadID, task.CadenceID)
		if err != nil {
			return err
		}

		if link.Status != models.LeadCadenceStatusInProgress {
			return NewConflictError("complete_task", ErrLeadNotActive)
		}

		if err := p.finishTask(ctx, tx, task.ID, now); err != nil {
			return err
		}

		node, err := tx.NodeRepository().GetByID(ctx, *task.NodeID)
		if err != nil {
			return err
		}

		if err := p.touchLead(ctx, tx, link, node, now, fx); err != nil {
			return err
		}

		next, err := p.advance(ctx, tx, link, node, settings, true, fx)
		if err != nil {
			return err
		}

		result.Next = next
		result.LinkStatus = link.Status

		return nil
	})
	if err != nil {
		return nil, err
	}

	p.metrics.TasksCompleted.Inc()
	p.dispatch.apply(ctx, fx)

	result.Task.Completed = true

	return result, nil
}

// CustomTaskRequest describes an ad-hoc task outside the node chain.
type CustomTaskRequest struct {
	CadenceID string     `json:"cadence_id" validate:"required"`
	Name      string     `json:"name"       validate:"required,min=1,max=255"`
	Urgent    bool       `json:"urgent"`
	StartTime *time.Time `json:"start_time"` // Nil starts now
}

// CreateCustomTask adds a task without a node for the lead in a cadence it is
// still enrolled in. Completing it never moves the lead.
func (p *Progression) CreateCustomTask(ctx context.Context, actor protocol.Actor, leadID string, req *CustomTaskRequest) (*models.Task, error) {
	lead, err := p.authorizeLead(ctx, actor, leadID)
	if err != nil {
		return nil, err
	}

	link, err := p.persistence.LeadCadenceRepository().Get(ctx, leadID, req.CadenceID)
	if err != nil {
		return nil, err
	}

	if !link.IsActive() {
		return nil, NewConflictError("create_custom_task", ErrLeadNotActive)
	}

	now := p.now()

	start := now
	if req.StartTime != nil {
		start = req.StartTime.UTC()
	}

	task := &models.Task{
		ID:        newID(),
		LeadID:    leadID,
		CadenceID: req.CadenceID,
		UserID:    lead.UserID,
		Name:      req.Name,
		Urgent:    req.Urgent,
		StartTime: start,
		Metadata:  map[string]any{"node_type": string(models.NodeTypeCadenceCustom)},
		CreatedAt: now,
	}

	if err := p.persistence.TaskRepository().Create(ctx, task); err != nil {
		return nil, err
	}

	p.metrics.TasksCreated.Inc()

	fx := newEffects()
	if start.After(now) {
		fx.recalculate(lead.UserID)
	} else {
		fx.recalculateNow(lead.UserID)
	}

	p.dispatch.apply(ctx, fx)

	return task, nil
}

func (p *Progression) finishTask(ctx context.Context, tx persistence.Persistence, taskID string, at time.Time) error {
	ok, err := tx.TaskRepository().Complete(ctx, taskID, at)
	if err != nil {
		return err
	}

	if !ok {
		return NewConflictError("complete_task", ErrTaskNotOutstanding)
	}

	return nil
}

// touchLead records the contact on the lead: the first node stamps the first
// contact time, any later node marks the lead ongoing.
func (p *Progression) touchLead(ctx context.Context, tx persistence.Persistence, link *models.LeadCadence,
	node *models.Node, now time.Time, fx *effects,
) error {
	lead, err := tx.LeadRepository().GetByID(ctx, link.LeadID)
	if err != nil {
		return err
	}

	if node.IsFirst {
		if lead.FirstContactTime == nil {
			lead.FirstContactTime = &now
		}

		fx.trigger(protocol.TriggerFirstTouch, link.CadenceID, link.LeadID)
	} else {
		lead.Status = models.LeadStatusOngoing
	}

	lead.UpdatedAt = now

	return tx.LeadRepository().Save(ctx, lead)
}

// advance moves the link past node: onto its successor with a fresh task, or
// to completed when node is terminal. completed tells whether node was done
// rather than skipped, which decides if a completion activity is recorded.
func (p *Progression) advance(ctx context.Context, tx persistence.Persistence, link *models.LeadCadence,
	node *models.Node, settings models.Settings, completed bool, fx *effects,
) (*models.Task, error) {
	now := p.now()

	if node.IsTerminal() {
		link.Status = models.LeadCadenceStatusCompleted
		link.CurrentNodeID = nil
		link.UpdatedAt = now

		if err := tx.LeadCadenceRepository().Save(ctx, link); err != nil {
			return nil, err
		}

		if completed {
			err := recordActivity(ctx, tx, now, link, models.ActivityTypeCompletedCadence, models.ActivityNameCadenceCompleted, &node.ID)
			if err != nil {
				return nil, err
			}
		}

		fx.trigger(protocol.TriggerCadenceEnded, link.CadenceID, link.LeadID)
		fx.mirror(link)
		fx.recalculate(link.UserID)

		return nil, nil
	}

	next, err := tx.NodeRepository().GetByID(ctx, *node.NextNodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to load successor of node %s: %w", node.ID, err)
	}

	task, err := p.enterNode(ctx, tx, link, next, taskStart(now, next.Wait(), settings.SkipWeekends))
	if err != nil {
		return nil, err
	}

	if next.WaitTime == 0 {
		fx.recalculateNow(link.UserID)
	}

	return task, nil
}

// enterNode creates the task of node for the link's lead and points the link at
// node. An outstanding task already present for the pair is left untouched.
func (p *Progression) enterNode(ctx context.Context, tx persistence.Persistence, link *models.LeadCadence,
	node *models.Node, start time.Time,
) (*models.Task, error) {
	now := p.now()
	task := &models.Task{
		ID:        newID(),
		LeadID:    link.LeadID,
		NodeID:    &node.ID,
		CadenceID: link.CadenceID,
		UserID:    link.UserID,
		Name:      node.Name,
		Urgent:    node.IsUrgent,
		StartTime: start,
		Metadata: map[string]any{
			"node_type":   string(node.Type),
			"step_number": node.StepNumber,
		},
		CreatedAt: now,
	}

	err := tx.TaskRepository().Create(ctx, task)

	switch {
	case err == nil:
		p.metrics.TasksCreated.Inc()
	case persistence.IsOutstandingTaskExists(err):
		p.logger.WarnContext(ctx, "outstanding task already exists, skipping creation",
			"lead_id", link.LeadID, "cadence_id", link.CadenceID, "node_id", node.ID)

		task = nil
	default:
		return nil, err
	}

	link.CurrentNodeID = &node.ID
	link.UpdatedAt = now

	if err := tx.LeadCadenceRepository().Save(ctx, link); err != nil {
		return nil, err
	}

	return task, nil
}

// startLead puts a not yet started link on the first node. Links that already
// have a position are left alone, so replaying a launch is harmless.
func (p *Progression) startLead(ctx context.Context, tx persistence.Persistence, leadID, cadenceID string,
	first *models.Node, settings models.Settings, fx *effects,
) (*models.Task, error) {
	link, err := tx.LeadCadenceRepository().GetForUpdate(ctx, leadID, cadenceID)
	if err != nil {
		return nil, err
	}

	switch {
	case link.Status == models.LeadCadenceStatusNotStarted:
	case link.Status == models.LeadCadenceStatusInProgress && link.CurrentNodeID == nil:
	default:
		return nil, nil
	}

	now := p.now()
	link.Status = models.LeadCadenceStatusInProgress
	link.StatusReason = ""

	task, err := p.enterNode(ctx, tx, link, first, taskStart(now, first.Wait(), settings.SkipWeekends))
	if err != nil {
		return nil, err
	}

	if err := recordActivity(ctx, tx, now, link, models.ActivityTypeLaunchCadence, models.ActivityNameCadenceLaunched, &first.ID); err != nil {
		return nil, err
	}

	if first.WaitTime == 0 {
		fx.recalculateNow(link.UserID)
	} else {
		fx.recalculate(link.UserID)
	}

	return task, nil
}

// Skip skips the outstanding task of the node for the lead and moves the lead
// on as if the step had been done, without recording a completion.
func (p *Progression) Skip(ctx context.Context, actor protocol.Actor, leadID, nodeID, reason string) (*StepResult, error) {
	lead, err := p.authorizeLead(ctx, actor, leadID)
	if err != nil {
		return nil, err
	}

	node, err := p.persistence.NodeRepository().GetByID(ctx, nodeID)
	if err != nil {
		return nil, err
	}

	settings, err := p.settings.Settings(ctx, lead.UserID)
	if err != nil {
		return nil, err
	}

	fx := newEffects()
	result := &StepResult{}

	err = p.persistence.Transaction(ctx, func(tx persistence.Persistence) error {
		link, err := tx.LeadCadenceRepository().GetForUpdate(ctx, leadID, node.CadenceID)
		if err != nil {
			return err
		}

		if link.Status != models.LeadCadenceStatusInProgress {
			return NewConflictError("skip_task", ErrLeadNotActive)
		}

		task, err := tx.TaskRepository().Outstanding(ctx, leadID, nodeID)
		if err != nil {
			return err
		}

		result.Task = task

		next, err := p.skipTask(ctx, tx, link, node, task, reason, settings, fx)
		if err != nil {
			return err
		}

		result.Next = next
		result.LinkStatus = link.Status

		return nil
	})
	if err != nil {
		return nil, err
	}

	p.dispatch.apply(ctx, fx)

	return result, nil
}

func (p *Progression) skipTask(ctx context.Context, tx persistence.Persistence, link *models.LeadCadence,
	node *models.Node, task *models.Task, reason string, settings models.Settings, fx *effects,
) (*models.Task, error) {
	now := p.now()

	ok, err := tx.TaskRepository().Skip(ctx, task.ID, now, reason)
	if err != nil {
		return nil, err
	}

	if !ok {
		return nil, NewConflictError("skip_task", ErrTaskNotOutstanding)
	}

	task.IsSkipped = true
	task.SkipTime = &now
	task.SkipReason = reason

	p.metrics.TasksSkipped.WithLabelValues(skipLabel(reason)).Inc()

	if err := recordActivity(ctx, tx, now, link, models.ActivityTypeTaskSkipped, "Task skipped: "+node.Name, &node.ID); err != nil {
		return nil, err
	}

	fx.recalculate(link.UserID)

	if link.CurrentNodeID != nil && *link.CurrentNodeID != node.ID {
		return nil, nil
	}

	return p.advance(ctx, tx, link, node, settings, false, fx)
}

// Unsubscribe flags the lead as unsubscribed from the cadence and skips every
// outstanding task whose node type the user's policy skips on unsubscribe,
// creating the successor tasks. Repeating it is a no-op.
func (p *Progression) Unsubscribe(ctx context.Context, actor protocol.Actor, leadID, cadenceID string, nodeID *string) (*UnsubscribeResult, error) {
	lead, err := p.authorizeLead(ctx, actor, leadID)
	if err != nil {
		return nil, err
	}

	var trigger models.UnsubscribeTrigger

	if nodeID != nil {
		node, err := p.persistence.NodeRepository().GetByID(ctx, *nodeID)
		if err != nil {
			return nil, err
		}

		if node.CadenceID != cadenceID {
			return nil, NewValidationError("unsubscribe", "node_outside_cadence", "", ErrNodeOutsideCadence)
		}

		trigger, _ = models.UnsubscribeTriggerFor(node.Type)
	}

	settings, err := p.settings.Settings(ctx, lead.UserID)
	if err != nil {
		return nil, err
	}

	fx := newEffects()
	result := &UnsubscribeResult{Skipped: []string{}, Created: []string{}}

	err = p.persistence.Transaction(ctx, func(tx persistence.Persistence) error {
		link, err := tx.LeadCadenceRepository().GetForUpdate(ctx, leadID, cadenceID)
		if err != nil {
			return err
		}

		if link.Unsubscribed {
			result.AlreadyUnsubscribed = true

			return nil
		}

		now := p.now()
		link.Unsubscribed = true
		link.UnsubscribeNodeID = nodeID
		link.UpdatedAt = now

		if err := tx.LeadCadenceRepository().Save(ctx, link); err != nil {
			return err
		}

		if err := recordActivity(ctx, tx, now, link, models.ActivityTypeUnsubscribe, models.ActivityNameUnsubscribed, nodeID); err != nil {
			return err
		}

		tasks, err := tx.TaskRepository().ListOutstanding(ctx, leadID, cadenceID)
		if err != nil {
			return err
		}

		for _, task := range tasks {
			if task.NodeID == nil {
				continue
			}

			if err := p.skipUnsubscribed(ctx, tx, link, task, trigger, settings, result, fx); err != nil {
				return err
			}
		}

		fx.trigger(protocol.TriggerUnsubscribed, cadenceID, leadID)
		fx.recalculate(link.UserID)

		return nil
	})
	if err != nil {
		return nil, err
	}

	if !result.AlreadyUnsubscribed {
		p.dispatch.apply(ctx, fx)
	}

	return result, nil
}

// skipUnsubscribed skips task and, while the successor tasks it creates are
// skippable too, keeps walking down the chain.
func (p *Progression) skipUnsubscribed(ctx context.Context, tx persistence.Persistence, link *models.LeadCadence,
	task *models.Task, trigger models.UnsubscribeTrigger, settings models.Settings, result *UnsubscribeResult, fx *effects,
) error {
	visited := make(map[string]bool)

	for task != nil && !visited[*task.NodeID] {
		visited[*task.NodeID] = true

		node, err := tx.NodeRepository().GetByID(ctx, *task.NodeID)
		if err != nil {
			return err
		}

		if !settings.ShouldSkipOnUnsubscribe(trigger, node.Type) {
			return nil
		}

		if !link.IsActive() || link.Status == models.LeadCadenceStatusNotStarted {
			ok, err := tx.TaskRepository().Skip(ctx, task.ID, p.now(), SkipReasonUnsubscribed)
			if err != nil {
				return err
			}

			if ok {
				result.Skipped = append(result.Skipped, task.ID)
			}

			return nil
		}

		next, err := p.skipTask(ctx, tx, link, node, task, SkipReasonUnsubscribed, settings, fx)
		if err != nil {
			return err
		}

		result.Skipped = append(result.Skipped, task.ID)

		if next != nil {
			result.Created = append(result.Created, next.ID)
		}

		task = next
	}

	return nil
}

// PauseLeads pauses the lead in each cadence, optionally until pauseFor.
func (p *Progression) PauseLeads(ctx context.Context, actor protocol.Actor, leadID string, cadenceIDs []string, pauseFor *time.Time) error {
	if len(cadenceIDs) == 0 {
		return NewValidationError("pause_lead", "cadences_required", "", ErrNoCadencesRequested)
	}

	if pauseFor != nil && !pauseFor.After(p.now()) {
		return NewValidationError("pause_lead", "pause_in_past", "", ErrPauseInPast)
	}

	if _, err := p.authorizeLead(ctx, actor, leadID); err != nil {
		return err
	}

	fx := newEffects()

	err := p.persistence.Transaction(ctx, func(tx persistence.Persistence) error {
		for _, cadenceID := range cadenceIDs {
			link, err := tx.LeadCadenceRepository().GetForUpdate(ctx, leadID, cadenceID)
			if err != nil {
				return err
			}

			if link.Status != models.LeadCadenceStatusInProgress {
				return NewConflictError("pause_lead", fmt.Errorf("%w: %s", ErrLeadNotActive, cadenceID))
			}

			ok, err := tx.LeadCadenceRepository().TransitionStatus(ctx, persistence.LinkStatusTransition{
				LeadID:      leadID,
				CadenceID:   cadenceID,
				From:        []models.LeadCadenceStatus{models.LeadCadenceStatusInProgress},
				To:          models.LeadCadenceStatusPaused,
				PausedUntil: pauseFor,
			})
			if err != nil {
				return err
			}

			if !ok {
				return NewConflictError("pause_lead", fmt.Errorf("%w: %s", ErrLeadNotActive, cadenceID))
			}

			link.Status = models.LeadCadenceStatusPaused
			link.PausedUntil = pauseFor

			if err := recordActivity(ctx, tx, p.now(), link, models.ActivityTypePauseCadence, models.ActivityNameCadencePaused, link.CurrentNodeID); err != nil {
				return err
			}

			fx.trigger(protocol.TriggerPaused, cadenceID, leadID)
			fx.cancelAutomation(cadenceID, leadID)
			fx.mirror(link)
			fx.recalculate(link.UserID)
		}

		return nil
	})
	if err != nil {
		return err
	}

	p.dispatch.apply(ctx, fx)

	return nil
}

// ResumeLeads resumes the paused lead in each cadence. The cadence must be in progress.
func (p *Progression) ResumeLeads(ctx context.Context, actor protocol.Actor, leadID string, cadenceIDs []string) error {
	if len(cadenceIDs) == 0 {
		return NewValidationError("resume_lead", "cadences_required", "", ErrNoCadencesRequested)
	}

	if _, err := p.authorizeLead(ctx, actor, leadID); err != nil {
		return err
	}

	fx := newEffects()

	err := p.persistence.Transaction(ctx, func(tx persistence.Persistence) error {
		for _, cadenceID := range cadenceIDs {
			cadence, err := tx.CadenceRepository().GetByID(ctx, cadenceID)
			if err != nil {
				return err
			}

			if cadence.Status != models.CadenceStatusInProgress {
				return NewConflictError("resume_lead", fmt.Errorf("%w: %s", ErrCadenceNotInProgress, cadenceID))
			}

			link, err := tx.LeadCadenceRepository().GetForUpdate(ctx, leadID, cadenceID)
			if err != nil {
				return err
			}

			if link.Status != models.LeadCadenceStatusPaused {
				return NewConflictError("resume_lead", fmt.Errorf("%w: %s", ErrLeadNotPaused, cadenceID))
			}

			if err := p.resumeLink(ctx, tx, link, fx); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return err
	}

	p.dispatch.apply(ctx, fx)

	return nil
}

// ResumeDue resumes the paused links whose pause ended. It returns how many resumed.
func (p *Progression) ResumeDue(ctx context.Context) (int, error) {
	links, err := p.persistence.LeadCadenceRepository().DueForResume(ctx, p.now())
	if err != nil {
		return 0, fmt.Errorf("failed to list paused links due for resume: %w", err)
	}

	resumed := 0

	for _, due := range links {
		fx := newEffects()

		err := p.persistence.Transaction(ctx, func(tx persistence.Persistence) error {
			cadence, err := tx.CadenceRepository().GetByID(ctx, due.CadenceID)
			if err != nil {
				return err
			}

			if cadence.Status != models.CadenceStatusInProgress {
				return NewConflictError("resume_due", ErrCadenceNotInProgress)
			}

			link, err := tx.LeadCadenceRepository().GetForUpdate(ctx, due.LeadID, due.CadenceID)
			if err != nil {
				return err
			}

			return p.resumeLink(ctx, tx, link, fx)
		})
		if err != nil {
			p.logger.WarnContext(ctx, "could not resume paused lead",
				"lead_id", due.LeadID, "cadence_id", due.CadenceID, "error", err)

			continue
		}

		p.dispatch.apply(ctx, fx)
		resumed++
	}

	return resumed, nil
}

// resumeLink flips a paused link back to in progress and makes sure the step
// it stands on has an outstanding task.
func (p *Progression) resumeLink(ctx context.Context, tx persistence.Persistence, link *models.LeadCadence, fx *effects) error {
	ok, err := tx.LeadCadenceRepository().TransitionStatus(ctx, persistence.LinkStatusTransition{
		LeadID:    link.LeadID,
		CadenceID: link.CadenceID,
		From:      []models.LeadCadenceStatus{models.LeadCadenceStatusPaused},
		To:        models.LeadCadenceStatusInProgress,
	})
	if err != nil {
		return err
	}

	if !ok {
		return NewConflictError("resume_lead", ErrLeadNotPaused)
	}

	now := p.now()
	link.Status = models.LeadCadenceStatusInProgress
	link.PausedUntil = nil
	link.StatusReason = ""

	current, err := p.currentNode(ctx, tx, link)
	if err != nil {
		return err
	}

	if current != nil {
		_, err := tx.TaskRepository().Outstanding(ctx, link.LeadID, current.ID)

		switch {
		case errors.Is(err, persistence.ErrTaskNotFound):
			if _, err := p.enterNode(ctx, tx, link, current, now); err != nil {
				return err
			}
		case err != nil:
			return err
		}
	}

	if err := recordActivity(ctx, tx, now, link, models.ActivityTypeResumeCadence, models.ActivityNameCadenceResumed, link.CurrentNodeID); err != nil {
		return err
	}

	fx.trigger(protocol.TriggerResumed, link.CadenceID, link.LeadID)
	fx.mirror(link)
	fx.recalculate(link.UserID)

	return nil
}

// currentNode returns the node the link stands on, or the first node of the
// cadence for links paused before their first step.
func (p *Progression) currentNode(ctx context.Context, tx persistence.Persistence, link *models.LeadCadence) (*models.Node, error) {
	if link.CurrentNodeID != nil {
		return tx.NodeRepository().GetByID(ctx, *link.CurrentNodeID)
	}

	nodes, err := tx.NodeRepository().ListByCadence(ctx, link.CadenceID)
	if err != nil {
		return nil, err
	}

	ordered, err := models.Sequence(nodes)
	if err != nil {
		return nil, err
	}

	if len(ordered) == 0 {
		return nil, nil
	}

	return ordered[0], nil
}

// StopLeads ends the lead's enrollment in each cadence with status stopped or completed.
func (p *Progression) StopLeads(ctx context.Context, actor protocol.Actor, leadID string, cadenceIDs []string,
	status models.LeadCadenceStatus, reason string,
) error {
	if len(cadenceIDs) == 0 {
		return NewValidationError("stop_lead", "cadences_required", "", ErrNoCadencesRequested)
	}

	if status != models.LeadCadenceStatusStopped && status != models.LeadCadenceStatusCompleted {
		return NewValidationError("stop_lead", "invalid_status", "", ErrInvalidStopStatus)
	}

	if _, err := p.authorizeLead(ctx, actor, leadID); err != nil {
		return err
	}

	fx := newEffects()

	err := p.persistence.Transaction(ctx, func(tx persistence.Persistence) error {
		for _, cadenceID := range cadenceIDs {
			link, err := tx.LeadCadenceRepository().GetForUpdate(ctx, leadID, cadenceID)
			if err != nil {
				return err
			}

			if link.Status == models.LeadCadenceStatusStopped {
				return NewConflictError("stop_lead", fmt.Errorf("%w: %s", ErrAlreadyStopped, cadenceID))
			}

			if err := p.stopLink(ctx, tx, link, status, reason, fx); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return err
	}

	p.dispatch.apply(ctx, fx)

	return nil
}

func (p *Progression) stopLink(ctx context.Context, tx persistence.Persistence, link *models.LeadCadence,
	status models.LeadCadenceStatus, reason string, fx *effects,
) error {
	ok, err := tx.LeadCadenceRepository().TransitionStatus(ctx, persistence.LinkStatusTransition{
		LeadID:    link.LeadID,
		CadenceID: link.CadenceID,
		From: []models.LeadCadenceStatus{
			models.LeadCadenceStatusNotStarted,
			models.LeadCadenceStatusInProgress,
			models.LeadCadenceStatusPaused,
		},
		To:     status,
		Reason: reason,
	})
	if err != nil {
		return err
	}

	if !ok {
		return NewConflictError("stop_lead", fmt.Errorf("%w: %s", ErrLeadNotActive, link.CadenceID))
	}

	now := p.now()
	link.Status = status
	link.StatusReason = reason

	tasks, err := tx.TaskRepository().ListOutstanding(ctx, link.LeadID, link.CadenceID)
	if err != nil {
		return err
	}

	for _, task := range tasks {
		if _, err := tx.TaskRepository().Skip(ctx, task.ID, now, SkipReasonStopped); err != nil {
			return err
		}

		p.metrics.TasksSkipped.WithLabelValues(SkipReasonStopped).Inc()
	}

	if err := recordActivity(ctx, tx, now, link, models.ActivityTypeStopCadence, models.ActivityNameCadenceStopped, link.CurrentNodeID); err != nil {
		return err
	}

	fx.trigger(protocol.TriggerStopped, link.CadenceID, link.LeadID)
	fx.cancelAutomation(link.CadenceID, link.LeadID)
	fx.mirror(link)
	fx.recalculate(link.UserID)

	return nil
}

// nextOrder returns the lead_cadence_order for a new link of userID in the
// cadence. When the sequence would pass max, the user's links are renumbered
// from 1 keeping their relative order.
func (p *Progression) nextOrder(ctx context.Context, tx persistence.Persistence, cadenceID, userID string, orderMax int) (int, error) {
	current, err := tx.LeadCadenceRepository().MaxOrder(ctx, cadenceID, userID)
	if err != nil {
		return 0, err
	}

	if current+1 <= orderMax {
		return current + 1, nil
	}

	links, err := tx.LeadCadenceRepository().ListByCadence(ctx, cadenceID)
	if err != nil {
		return 0, err
	}

	owned := make([]*models.LeadCadence, 0, len(links))

	for _, link := range links {
		if link.UserID == userID {
			owned = append(owned, link)
		}
	}

	sort.SliceStable(owned, func(i, j int) bool { return owned[i].LeadCadenceOrder < owned[j].LeadCadenceOrder })

	for i, listed := range owned {
		if listed.LeadCadenceOrder == i+1 {
			continue
		}

		link, err := tx.LeadCadenceRepository().GetForUpdate(ctx, listed.LeadID, listed.CadenceID)
		if err != nil {
			return 0, err
		}

		link.LeadCadenceOrder = i + 1
		if err := tx.LeadCadenceRepository().Save(ctx, link); err != nil {
			return 0, err
		}
	}

	p.logger.InfoContext(ctx, "renumbered lead cadence order", "cadence_id", cadenceID, "user_id", userID, "links", len(owned))

	return len(owned) + 1, nil
}

func (p *Progression) authorizeLead(ctx context.Context, actor protocol.Actor, leadID string) (*models.Lead, error) {
	lead, err := p.persistence.LeadRepository().GetByID(ctx, leadID)
	if err != nil {
		return nil, err
	}

	if err := p.access.CanActOnLead(ctx, actor, lead); err != nil {
		return nil, err
	}

	return lead, nil
}

// taskStart is when a task for a node waiting wait becomes actionable. With
// skipWeekends a start on Saturday or Sunday moves to Monday, same time of day.
func taskStart(now time.Time, wait time.Duration, skipWeekends bool) time.Time {
	start := now.Add(wait)

	if !skipWeekends {
		return start
	}

	switch start.Weekday() {
	case time.Saturday:
		return start.AddDate(0, 0, 2)
	case time.Sunday:
		return start.AddDate(0, 0, 1)
	default:
		return start
	}
}
