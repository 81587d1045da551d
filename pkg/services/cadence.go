package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/dukex/cadence/pkg/eventbus"
	"github.com/dukex/cadence/pkg/events"
	"github.com/dukex/cadence/pkg/models"
	"github.com/dukex/cadence/pkg/persistence"
	"github.com/dukex/cadence/pkg/protocol"
	"github.com/dukex/cadence/pkg/telemetry"
	"github.com/go-playground/validator/v10"
)

// CreateCadenceRequest represents the request to create a new cadence.
type CreateCadenceRequest struct {
	Name            string                 `json:"name"        validate:"required,min=3"`
	Description     string                 `json:"description"`
	Priority        models.CadencePriority `json:"priority"    validate:"omitempty,oneof=standard high"`
	Type            models.CadenceType     `json:"type"        validate:"omitempty,oneof=personal team company"`
	SubDepartmentID string                 `json:"sd_id"`
	CompanyID       string                 `json:"company_id"`
	IsProductTour   bool                   `json:"is_product_tour"`
	LaunchAt        *time.Time             `json:"launch_at"`
	LaunchCron      string                 `json:"launch_cron"`
}

// UpdateCadenceRequest changes the fields that are set.
type UpdateCadenceRequest struct {
	Name        *string                 `json:"name"        validate:"omitempty,min=3"`
	Description *string                 `json:"description"`
	Priority    *models.CadencePriority `json:"priority"    validate:"omitempty,oneof=standard high"`
	LaunchAt    *time.Time              `json:"launch_at"`
	LaunchCron  *string                 `json:"launch_cron"`
	// ClearSchedule removes the launch schedule.
	ClearSchedule bool `json:"clear_schedule"`
}

// EnrollResult lists which leads were enrolled and which already were.
type EnrollResult struct {
	Enrolled []string `json:"enrolled"`
	Skipped  []string `json:"skipped"`
}

// CadenceService is the cadence state machine. It owns every cadence status
// transition and hands the long running tails to the worker through jobs.
type CadenceService struct {
	persistence persistence.Persistence
	access      protocol.AccessChecker
	settings    protocol.SettingsProvider
	jobs        eventbus.EventPublisher
	progression *Progression
	daily       *DailyScheduler
	dispatch    *dispatcher
	metrics     *telemetry.Metrics
	validate    *validator.Validate
	logger      *slog.Logger
	now         func() time.Time
}

func (s *CadenceService) Create(ctx context.Context, actor protocol.Actor, req *CreateCadenceRequest) (*models.Cadence, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, NewValidationError("create_cadence", "invalid_cadence", err.Error(), ErrInvalidRequest)
	}

	now := s.now()
	cadence := &models.Cadence{
		ID:              newID(),
		Name:            req.Name,
		Description:     req.Description,
		Status:          models.CadenceStatusNotStarted,
		Priority:        req.Priority,
		Type:            req.Type,
		UserID:          actor.UserID,
		SubDepartmentID: req.SubDepartmentID,
		CompanyID:       req.CompanyID,
		IsProductTour:   req.IsProductTour,
		LaunchAt:        req.LaunchAt,
		LaunchCron:      req.LaunchCron,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if cadence.Priority == "" {
		cadence.Priority = models.CadencePriorityStandard
	}

	if cadence.Type == "" {
		cadence.Type = models.CadenceTypePersonal
	}

	if cadence.SubDepartmentID == "" {
		cadence.SubDepartmentID = actor.SubDepartmentID
	}

	if cadence.CompanyID == "" {
		cadence.CompanyID = actor.CompanyID
	}

	err := s.persistence.Transaction(ctx, func(tx persistence.Persistence) error {
		if err := tx.CadenceRepository().Save(ctx, cadence); err != nil {
			return err
		}

		return s.syncSchedule(ctx, tx, cadence)
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "cadence created", "cadence_id", cadence.ID, "user_id", cadence.UserID)

	return cadence, nil
}

func (s *CadenceService) Get(ctx context.Context, actor protocol.Actor, id string) (*models.Cadence, error) {
	cadence, err := s.persistence.CadenceRepository().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.access.CanReadCadence(ctx, actor, cadence); err != nil {
		return nil, err
	}

	return cadence, nil
}

// List returns the cadences matching filter that the actor can read.
func (s *CadenceService) List(ctx context.Context, actor protocol.Actor, filter persistence.CadenceFilter) ([]*models.Cadence, error) {
	all, err := s.persistence.CadenceRepository().List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list cadences: %w", err)
	}

	visible := make([]*models.Cadence, 0, len(all))

	for _, cadence := range all {
		if s.access.CanReadCadence(ctx, actor, cadence) == nil {
			visible = append(visible, cadence)
		}
	}

	return visible, nil
}

// Update changes a cadence. A priority change recalculates the queue of every
// enrolled user; schedule fields create, update or delete the launch schedule.
func (s *CadenceService) Update(ctx context.Context, actor protocol.Actor, id string, req *UpdateCadenceRequest) (*models.Cadence, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, NewValidationError("update_cadence", "invalid_cadence", err.Error(), ErrInvalidRequest)
	}

	var (
		cadence         *models.Cadence
		priorityChanged bool
		userIDs         []string
	)

	err := s.persistence.Transaction(ctx, func(tx persistence.Persistence) error {
		var err error

		cadence, err = tx.CadenceRepository().GetByID(ctx, id)
		if err != nil {
			return err
		}

		if err := s.access.CanUpdateCadence(ctx, actor, cadence); err != nil {
			return err
		}

		if req.Name != nil {
			cadence.Name = *req.Name
		}

		if req.Description != nil {
			cadence.Description = *req.Description
		}

		if req.Priority != nil && *req.Priority != cadence.Priority {
			cadence.Priority = *req.Priority
			priorityChanged = true
		}

		scheduleChanged := req.ClearSchedule || req.LaunchAt != nil || req.LaunchCron != nil

		switch {
		case req.ClearSchedule:
			cadence.LaunchAt = nil
			cadence.LaunchCron = ""
		default:
			if req.LaunchAt != nil {
				cadence.LaunchAt = req.LaunchAt
			}

			if req.LaunchCron != nil {
				cadence.LaunchCron = *req.LaunchCron
			}
		}

		cadence.UpdatedAt = s.now()

		if err := tx.CadenceRepository().Save(ctx, cadence); err != nil {
			return err
		}

		if scheduleChanged {
			if err := s.syncSchedule(ctx, tx, cadence); err != nil {
				return err
			}
		}

		if priorityChanged {
			userIDs, err = tx.LeadCadenceRepository().UserIDsByCadence(ctx, id)
		}

		return err
	})
	if err != nil {
		return nil, err
	}

	if priorityChanged {
		s.daily.Trigger(ctx, userIDs...)
	}

	return cadence, nil
}

// syncSchedule makes the companion schedule match the cadence's launch settings.
func (s *CadenceService) syncSchedule(ctx context.Context, tx persistence.Persistence, cadence *models.Cadence) error {
	existing, err := tx.ScheduleRepository().GetByCadence(ctx, cadence.ID)
	if err != nil && !errors.Is(err, persistence.ErrScheduleNotFound) {
		return err
	}

	if !cadence.HasLaunchSchedule() {
		if existing == nil {
			return nil
		}

		return tx.ScheduleRepository().Delete(ctx, existing.ID)
	}

	if existing == nil {
		schedule, err := models.NewSchedule(newID(), cadence.ID, cadence.LaunchCron, cadence.LaunchAt)
		if err != nil {
			return NewValidationError("cadence_schedule", "invalid_schedule", err.Error(), models.ErrInvalidSchedule)
		}

		return tx.ScheduleRepository().Save(ctx, schedule)
	}

	if err := existing.Reschedule(cadence.LaunchCron, cadence.LaunchAt); err != nil {
		return NewValidationError("cadence_schedule", "invalid_schedule", err.Error(), models.ErrInvalidSchedule)
	}

	return tx.ScheduleRepository().Save(ctx, existing)
}

// Delete removes a cadence with its nodes, links, tasks and schedule.
// Running cadences cannot be deleted.
func (s *CadenceService) Delete(ctx context.Context, actor protocol.Actor, id string) error {
	var userIDs []string

	err := s.persistence.Transaction(ctx, func(tx persistence.Persistence) error {
		cadence, err := tx.CadenceRepository().GetByID(ctx, id)
		if err != nil {
			return err
		}

		if err := s.access.CanUpdateCadence(ctx, actor, cadence); err != nil {
			return err
		}

		switch cadence.Status {
		case models.CadenceStatusInProgress:
			return NewConflictError("delete_cadence", ErrCadenceInProgress)
		case models.CadenceStatusProcessing:
			return NewConflictError("delete_cadence", ErrCadenceProcessing)
		}

		userIDs, err = tx.LeadCadenceRepository().UserIDsByCadence(ctx, id)
		if err != nil {
			return err
		}

		return tx.CadenceRepository().Delete(ctx, id)
	})
	if err != nil {
		return err
	}

	fx := newEffects()
	fx.cancelAutomation(id, "")
	fx.recalculate(userIDs...)
	s.dispatch.apply(ctx, fx)

	s.logger.InfoContext(ctx, "cadence deleted", "cadence_id", id)

	return nil
}

// Launch moves the cadence to processing and queues the bulk launch. The
// caller gets its answer as soon as the job is queued.
func (s *CadenceService) Launch(ctx context.Context, actor protocol.Actor, id string) error {
	return s.launch(ctx, actor, id, "launch_cadence", []models.CadenceStatus{
		models.CadenceStatusNotStarted,
		models.CadenceStatusPaused,
		models.CadenceStatusCompleted,
	})
}

// Resume relaunches a paused cadence.
func (s *CadenceService) Resume(ctx context.Context, actor protocol.Actor, id string) error {
	return s.launch(ctx, actor, id, "resume_cadence", []models.CadenceStatus{models.CadenceStatusPaused})
}

func (s *CadenceService) launch(ctx context.Context, actor protocol.Actor, id, op string, from []models.CadenceStatus) error {
	cadence, err := s.persistence.CadenceRepository().GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.access.CanUpdateCadence(ctx, actor, cadence); err != nil {
		return err
	}

	if cadence.IsProductTour {
		return NewValidationError(op, "product_tour", "", ErrProductTourCadence)
	}

	nodes, err := s.persistence.NodeRepository().ListByCadence(ctx, id)
	if err != nil {
		return err
	}

	if len(nodes) == 0 {
		return NewValidationError(op, "empty_cadence", "", ErrEmptyCadence)
	}

	if !slices.Contains(from, cadence.Status) {
		return NewConflictError(op, launchConflict(cadence.Status))
	}

	ok, err := s.persistence.CadenceRepository().TransitionStatus(ctx, persistence.CadenceStatusTransition{
		CadenceID: id,
		From:      []models.CadenceStatus{cadence.Status},
		To:        models.CadenceStatusProcessing,
		ResumeAt:  cadence.ResumeAt,
	})
	if err != nil {
		return err
	}

	if !ok {
		return NewConflictError(op, ErrCadenceProcessing)
	}

	err = s.jobs.Publish(ctx, id, events.LaunchRequested{
		BaseEvent:      events.NewBaseEvent(events.LaunchRequestedEvent),
		CadenceID:      id,
		PreviousStatus: cadence.Status,
		ActorID:        actor.UserID,
	})
	if err != nil {
		s.revertStatus(ctx, id, cadence.Status, cadence.ResumeAt)

		return fmt.Errorf("failed to queue launch of cadence %s: %w", id, err)
	}

	s.metrics.LaunchesStarted.Inc()
	s.logger.InfoContext(ctx, "cadence launch queued", "cadence_id", id, "previous_status", cadence.Status)

	return nil
}

func launchConflict(status models.CadenceStatus) error {
	switch status {
	case models.CadenceStatusProcessing:
		return ErrCadenceProcessing
	case models.CadenceStatusInProgress:
		return ErrCadenceRunning
	default:
		return ErrCadenceNotPaused
	}
}

// revertStatus is the compensating write of a failed asynchronous tail.
func (s *CadenceService) revertStatus(ctx context.Context, id string, to models.CadenceStatus, resumeAt *time.Time) {
	_, err := s.persistence.CadenceRepository().TransitionStatus(ctx, persistence.CadenceStatusTransition{
		CadenceID: id,
		From:      []models.CadenceStatus{models.CadenceStatusProcessing},
		To:        to,
		ResumeAt:  resumeAt,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to revert cadence status", "cadence_id", id, "status", to, "error", err)
	}
}

// PauseForDuration moves the cadence to processing and queues the pause tail,
// which ends with the cadence paused until pauseFor (indefinitely when nil).
func (s *CadenceService) PauseForDuration(ctx context.Context, actor protocol.Actor, id string, pauseFor *time.Time) error {
	if pauseFor != nil && !pauseFor.After(s.now()) {
		return NewValidationError("pause_cadence", "pause_in_past", "", ErrPauseInPast)
	}

	cadence, err := s.persistence.CadenceRepository().GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.access.CanUpdateCadence(ctx, actor, cadence); err != nil {
		return err
	}

	switch cadence.Status {
	case models.CadenceStatusPaused:
		return NewConflictError("pause_cadence", ErrCadencePaused)
	case models.CadenceStatusProcessing:
		return NewConflictError("pause_cadence", ErrCadenceProcessing)
	}

	ok, err := s.persistence.CadenceRepository().TransitionStatus(ctx, persistence.CadenceStatusTransition{
		CadenceID: id,
		From:      []models.CadenceStatus{cadence.Status},
		To:        models.CadenceStatusProcessing,
		ResumeAt:  cadence.ResumeAt,
	})
	if err != nil {
		return err
	}

	if !ok {
		return NewConflictError("pause_cadence", ErrCadenceProcessing)
	}

	err = s.jobs.Publish(ctx, id, events.PauseRequested{
		BaseEvent:      events.NewBaseEvent(events.PauseRequestedEvent),
		CadenceID:      id,
		PreviousStatus: cadence.Status,
		PauseFor:       pauseFor,
		ActorID:        actor.UserID,
	})
	if err != nil {
		s.revertStatus(ctx, id, cadence.Status, cadence.ResumeAt)

		return fmt.Errorf("failed to queue pause of cadence %s: %w", id, err)
	}

	return nil
}

// RunPause is the asynchronous tail of PauseForDuration. It cancels pending
// automation, records a pause activity for every lead in progress, pauses the
// cadence and recalculates the affected queues. Replays are no-ops.
func (s *CadenceService) RunPause(ctx context.Context, job *events.PauseRequested) error {
	cadence, err := s.persistence.CadenceRepository().GetByID(ctx, job.CadenceID)
	if err != nil {
		if persistence.IsCadenceNotFound(err) {
			s.logger.WarnContext(ctx, "paused cadence no longer exists", "cadence_id", job.CadenceID)

			return nil
		}

		return err
	}

	if cadence.Status != models.CadenceStatusProcessing {
		s.logger.InfoContext(ctx, "pause already applied", "cadence_id", job.CadenceID, "status", cadence.Status)

		return nil
	}

	fx := newEffects()
	fx.cancelAutomation(job.CadenceID, "")

	var userIDs []string

	err = s.persistence.Transaction(ctx, func(tx persistence.Persistence) error {
		links, err := tx.LeadCadenceRepository().ListByCadence(ctx, job.CadenceID, models.LeadCadenceStatusInProgress)
		if err != nil {
			return err
		}

		now := s.now()
		seen := make(map[string]bool)

		for _, link := range links {
			if err := recordActivity(ctx, tx, now, link, models.ActivityTypePauseCadence, models.ActivityNameCadencePaused, link.CurrentNodeID); err != nil {
				return err
			}

			if !seen[link.UserID] {
				seen[link.UserID] = true
				userIDs = append(userIDs, link.UserID)
			}
		}

		ok, err := tx.CadenceRepository().TransitionStatus(ctx, persistence.CadenceStatusTransition{
			CadenceID: job.CadenceID,
			From:      []models.CadenceStatus{models.CadenceStatusProcessing},
			To:        models.CadenceStatusPaused,
			ResumeAt:  job.PauseFor,
		})
		if err != nil {
			return err
		}

		if !ok {
			return NewConflictError("pause_cadence", ErrCadenceNotInProgress)
		}

		return nil
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "cadence pause failed, restoring status",
			"cadence_id", job.CadenceID, "status", job.PreviousStatus, "error", err)
		s.revertStatus(ctx, job.CadenceID, job.PreviousStatus, cadence.ResumeAt)

		return nil
	}

	s.dispatch.apply(ctx, fx)

	for _, userID := range userIDs {
		if _, err := s.daily.Recalculate(ctx, userID); err != nil {
			s.logger.ErrorContext(ctx, "recalculation after pause failed", "user_id", userID, "error", err)
		}
	}

	s.logger.InfoContext(ctx, "cadence paused", "cadence_id", job.CadenceID, "leads", len(userIDs))

	return nil
}

// Stop stops every active lead of the cadence and marks it completed.
func (s *CadenceService) Stop(ctx context.Context, actor protocol.Actor, id, reason string) error {
	fx := newEffects()

	err := s.persistence.Transaction(ctx, func(tx persistence.Persistence) error {
		cadence, err := tx.CadenceRepository().GetByID(ctx, id)
		if err != nil {
			return err
		}

		if err := s.access.CanUpdateCadence(ctx, actor, cadence); err != nil {
			return err
		}

		if cadence.Status == models.CadenceStatusProcessing {
			return NewConflictError("stop_cadence", ErrCadenceProcessing)
		}

		links, err := tx.LeadCadenceRepository().ListByCadence(ctx, id,
			models.LeadCadenceStatusNotStarted, models.LeadCadenceStatusInProgress, models.LeadCadenceStatusPaused)
		if err != nil {
			return err
		}

		for _, link := range links {
			if err := s.progression.stopLink(ctx, tx, link, models.LeadCadenceStatusStopped, reason, fx); err != nil {
				return err
			}
		}

		_, err = tx.CadenceRepository().TransitionStatus(ctx, persistence.CadenceStatusTransition{
			CadenceID: id,
			From: []models.CadenceStatus{
				models.CadenceStatusNotStarted,
				models.CadenceStatusInProgress,
				models.CadenceStatusPaused,
			},
			To: models.CadenceStatusCompleted,
		})

		return err
	})
	if err != nil {
		return err
	}

	fx.cancelAutomation(id, "")
	s.dispatch.apply(ctx, fx)

	return nil
}

// Enroll links leads to the cadence. Leads already linked are skipped. When
// the cadence is in progress the new leads start right away.
func (s *CadenceService) Enroll(ctx context.Context, actor protocol.Actor, cadenceID string, leadIDs []string) (*EnrollResult, error) {
	if len(leadIDs) == 0 {
		return nil, NewValidationError("enroll", "leads_required", "at least one lead is required", ErrInvalidRequest)
	}

	result := &EnrollResult{Enrolled: []string{}, Skipped: []string{}}
	fx := newEffects()
	leads := make(map[string]*models.Lead, len(leadIDs))
	settingsByUser := make(map[string]models.Settings)

	for _, leadID := range leadIDs {
		lead, err := s.persistence.LeadRepository().GetByID(ctx, leadID)
		if err != nil {
			return nil, err
		}

		leads[leadID] = lead

		if _, ok := settingsByUser[lead.UserID]; ok {
			continue
		}

		settings, err := s.settings.Settings(ctx, lead.UserID)
		if err != nil {
			return nil, err
		}

		settingsByUser[lead.UserID] = settings
	}

	err := s.persistence.Transaction(ctx, func(tx persistence.Persistence) error {
		cadence, err := tx.CadenceRepository().GetByID(ctx, cadenceID)
		if err != nil {
			return err
		}

		if err := s.access.CanUpdateCadence(ctx, actor, cadence); err != nil {
			return err
		}

		if cadence.Status == models.CadenceStatusProcessing {
			return NewConflictError("enroll", ErrCadenceProcessing)
		}

		var first *models.Node

		if cadence.Status == models.CadenceStatusInProgress {
			ordered, err := sequenceOf(ctx, tx, cadenceID)
			if err != nil {
				return err
			}

			if len(ordered) > 0 {
				first = ordered[0]
			}
		}

		now := s.now()

		for _, leadID := range leadIDs {
			lead := leads[leadID]

			_, err := tx.LeadCadenceRepository().Get(ctx, leadID, cadenceID)

			switch {
			case err == nil:
				result.Skipped = append(result.Skipped, leadID)

				continue
			case !errors.Is(err, persistence.ErrLeadCadenceNotFound):
				return err
			}

			settings := settingsByUser[lead.UserID]

			order, err := s.progression.nextOrder(ctx, tx, cadenceID, lead.UserID, settings.LeadCadenceOrderMax)
			if err != nil {
				return err
			}

			link := &models.LeadCadence{
				LeadID:           leadID,
				CadenceID:        cadenceID,
				UserID:           lead.UserID,
				Status:           models.LeadCadenceStatusNotStarted,
				LeadCadenceOrder: order,
				CreatedAt:        now,
				UpdatedAt:        now,
			}

			if err := tx.LeadCadenceRepository().Save(ctx, link); err != nil {
				return err
			}

			if first != nil {
				if _, err := s.progression.startLead(ctx, tx, leadID, cadenceID, first, settings, fx); err != nil {
					return err
				}
			}

			result.Enrolled = append(result.Enrolled, leadID)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	s.dispatch.apply(ctx, fx)

	return result, nil
}

// Statistics returns the lead counts by link status and the task counts of
// every node in chain order.
func (s *CadenceService) Statistics(ctx context.Context, actor protocol.Actor, id string) (*models.CadenceStatistics, error) {
	cadence, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	ordered, err := sequenceOf(ctx, s.persistence, id)
	if err != nil {
		return nil, err
	}

	counts, err := s.persistence.TaskRepository().CountByNode(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to count tasks: %w", err)
	}

	links, err := s.persistence.LeadCadenceRepository().ListByCadence(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list links: %w", err)
	}

	byNode := make(map[string]*models.NodeTaskCount, len(counts))
	for _, count := range counts {
		byNode[count.NodeID] = count
	}

	stats := &models.CadenceStatistics{
		CadenceID: id,
		Status:    cadence.Status,
		Leads:     make(map[models.LeadCadenceStatus]int),
		Nodes:     make([]*models.NodeStatistics, 0, len(ordered)),
	}

	for _, link := range links {
		stats.Leads[link.Status]++
	}

	for _, node := range ordered {
		nodeStats := &models.NodeStatistics{
			NodeID:     node.ID,
			Name:       node.Name,
			Type:       node.Type,
			StepNumber: node.StepNumber,
		}

		if count, ok := byNode[node.ID]; ok {
			nodeStats.Outstanding = count.Outstanding
			nodeStats.Completed = count.Completed
			nodeStats.Skipped = count.Skipped
		}

		stats.Nodes = append(stats.Nodes, nodeStats)
	}

	return stats, nil
}

// ResumeDue relaunches paused cadences whose resume_at passed.
func (s *CadenceService) ResumeDue(ctx context.Context) (int, error) {
	due, err := s.persistence.CadenceRepository().DueForResume(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("failed to list cadences due for resume: %w", err)
	}

	resumed := 0

	for _, cadence := range due {
		if err := s.Resume(ctx, protocol.SystemActor, cadence.ID); err != nil {
			s.logger.WarnContext(ctx, "could not resume cadence", "cadence_id", cadence.ID, "error", err)

			continue
		}

		resumed++
	}

	return resumed, nil
}

// FireDueSchedules launches the cadences whose launch schedule is due and
// moves each schedule past the firing.
func (s *CadenceService) FireDueSchedules(ctx context.Context) (int, error) {
	now := s.now()

	due, err := s.persistence.ScheduleRepository().Due(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("failed to list due schedules: %w", err)
	}

	fired := 0

	for _, schedule := range due {
		if err := s.Launch(ctx, protocol.SystemActor, schedule.CadenceID); err != nil {
			s.logger.WarnContext(ctx, "scheduled launch rejected", "cadence_id", schedule.CadenceID, "error", err)
		} else {
			fired++
		}

		if err := schedule.Advance(now); err != nil {
			s.logger.ErrorContext(ctx, "failed to advance schedule", "schedule_id", schedule.ID, "error", err)

			continue
		}

		if err := s.persistence.ScheduleRepository().Save(ctx, schedule); err != nil {
			s.logger.ErrorContext(ctx, "failed to save schedule", "schedule_id", schedule.ID, "error", err)
		}
	}

	return fired, nil
}
