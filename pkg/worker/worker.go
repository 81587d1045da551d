// Package worker consumes the engine's asynchronous jobs from the event bus.
package worker

import (
	"context"
	"log/slog"

	"github.com/dukex/cadence/pkg/eventbus"
	"github.com/dukex/cadence/pkg/events"
	"github.com/dukex/cadence/pkg/protocol"
	"github.com/dukex/cadence/pkg/services"
	"github.com/dukex/cadence/pkg/telemetry"
)

// MaxCRMAttempts bounds how many times a CRM mirror job is tried.
const MaxCRMAttempts = 3

type Worker struct {
	id      string
	logger  *slog.Logger
	engine  *services.Engine
	bus     eventbus.EventBus
	crm     protocol.CRMAdapter
	metrics *telemetry.Metrics
}

func NewWorker(
	id string,
	engine *services.Engine,
	bus eventbus.EventBus,
	crm protocol.CRMAdapter,
	logger *slog.Logger,
) *Worker {
	return &Worker{
		id:      id,
		logger:  logger.With("module", "cadence-worker", "worker_id", id),
		engine:  engine,
		bus:     bus,
		crm:     crm,
		metrics: engine.Metrics,
	}
}

// Start registers the job handlers and starts consuming. It returns once the
// subscriptions are running; consumption stops when ctx is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.InfoContext(ctx, "Starting worker")

	handlers := map[events.EventType]eventbus.EventHandler{
		events.LaunchRequestedEvent:      w.handleLaunchRequested,
		events.PauseRequestedEvent:       w.handlePauseRequested,
		events.RecalculateRequestedEvent: w.handleRecalculateRequested,
		events.CRMMirrorRequestedEvent:   w.handleCRMMirrorRequested,
	}

	for eventType, handler := range handlers {
		if err := w.bus.Handle(eventType, handler); err != nil {
			return err
		}
	}

	if err := w.bus.Subscribe(ctx); err != nil {
		w.logger.ErrorContext(ctx, "Failed to subscribe to event bus", "error", err)

		return err
	}

	w.logger.InfoContext(ctx, "Worker started successfully")

	return nil
}

// handleLaunchRequested runs a bulk launch. A failed launch already restored
// the cadence status, and a redelivered launch is a no-op, so errors are
// returned for redelivery.
func (w *Worker) handleLaunchRequested(ctx context.Context, event any) error {
	job, ok := event.(*events.LaunchRequested)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for LaunchRequested")

		return nil
	}

	logger := w.logger.With("cadence_id", job.CadenceID, "event_id", job.ID)
	logger.InfoContext(ctx, "Processing launch")

	report, err := w.engine.Launcher.Run(ctx, job)
	if err != nil {
		logger.ErrorContext(ctx, "Launch failed", "error", err)

		return err
	}

	if report != nil {
		logger.InfoContext(ctx, "Launch finished", "started", report.Started, "failures", len(report.Failures))
	}

	return nil
}

func (w *Worker) handlePauseRequested(ctx context.Context, event any) error {
	job, ok := event.(*events.PauseRequested)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for PauseRequested")

		return nil
	}

	w.logger.InfoContext(ctx, "Processing cadence pause", "cadence_id", job.CadenceID, "event_id", job.ID)

	return w.engine.Cadences.RunPause(ctx, job)
}

func (w *Worker) handleRecalculateRequested(ctx context.Context, event any) error {
	job, ok := event.(*events.RecalculateRequested)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for RecalculateRequested")

		return nil
	}

	_, err := w.engine.Daily.Recalculate(ctx, job.UserID)
	if err != nil {
		w.logger.ErrorContext(ctx, "Recalculation failed", "user_id", job.UserID, "error", err)
	}

	return err
}

// handleCRMMirrorRequested mirrors a link status into the CRM. Failed calls
// are published again with the next attempt number until MaxCRMAttempts,
// then dropped. The job itself never fails.
func (w *Worker) handleCRMMirrorRequested(ctx context.Context, event any) error {
	job, ok := event.(*events.CRMMirrorRequested)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for CRMMirrorRequested")

		return nil
	}

	logger := w.logger.With("cadence_id", job.CadenceID, "lead_id", job.LeadID, "attempt", job.Attempt)

	err := w.crm.MirrorStatus(ctx, protocol.MirrorRequest{
		LeadID:    job.LeadID,
		CadenceID: job.CadenceID,
		Status:    job.Status,
		Reason:    job.Reason,
	})
	if err == nil {
		logger.DebugContext(ctx, "CRM status mirrored", "status", job.Status)

		return nil
	}

	w.metrics.CRMMirrorFailures.Inc()

	if job.Attempt >= MaxCRMAttempts {
		logger.ErrorContext(ctx, "Dropping CRM mirror after last attempt", "error", err)

		return nil
	}

	logger.WarnContext(ctx, "CRM mirror failed, retrying", "error", err)

	retry := *job
	retry.BaseEvent = events.NewBaseEvent(events.CRMMirrorRequestedEvent)
	retry.Attempt = job.Attempt + 1

	if publishErr := w.bus.Publish(ctx, job.LeadID, retry); publishErr != nil {
		logger.ErrorContext(ctx, "Failed to publish CRM mirror retry", "error", publishErr)
	}

	return nil
}
