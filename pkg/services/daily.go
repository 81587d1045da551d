package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/dukex/cadence/pkg/eventbus"
	"github.com/dukex/cadence/pkg/events"
	"github.com/dukex/cadence/pkg/models"
	"github.com/dukex/cadence/pkg/otelhelper"
	"github.com/dukex/cadence/pkg/persistence"
	"github.com/dukex/cadence/pkg/protocol"
	"github.com/dukex/cadence/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// QueueSelection is the outcome of one daily queue computation.
type QueueSelection struct {
	High        []*models.Task
	Standard    []*models.Task
	Outstanding int
}

// TaskIDs returns the ids of every selected task.
func (q *QueueSelection) TaskIDs() []string {
	ids := make([]string, 0, len(q.High)+len(q.Standard))
	for _, task := range q.High {
		ids = append(ids, task.ID)
	}

	for _, task := range q.Standard {
		ids = append(ids, task.ID)
	}

	return ids
}

// SelectDailyQueue picks the tasks counting toward today. Candidates are ranked
// by lead_cadence_order, then start time, then id. High priority candidates
// fill the reserved split first, standard candidates the remaining capacity,
// and whatever capacity is still free goes to the leftover high priority ones.
func SelectDailyQueue(candidates []*models.QueueCandidate, settings models.Settings) *QueueSelection {
	ranked := make([]*models.QueueCandidate, len(candidates))
	copy(ranked, candidates)

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.LeadCadenceOrder != b.LeadCadenceOrder {
			return a.LeadCadenceOrder < b.LeadCadenceOrder
		}

		if !a.Task.StartTime.Equal(b.Task.StartTime) {
			return a.Task.StartTime.Before(b.Task.StartTime)
		}

		return a.Task.ID < b.Task.ID
	})

	high := make([]*models.Task, 0)
	standard := make([]*models.Task, 0)

	for _, candidate := range ranked {
		if candidate.IsHighPriority() {
			high = append(high, candidate.Task)
		} else {
			standard = append(standard, candidate.Task)
		}
	}

	capacity := max(settings.MaxTasks, 0)
	reserved := min(settings.ReservedHighPriority(), len(high), capacity)
	capacity -= reserved

	standardTaken := min(capacity, len(standard))
	capacity -= standardTaken

	highTaken := reserved + min(capacity, len(high)-reserved)

	return &QueueSelection{
		High:        high[:highTaken],
		Standard:    standard[:standardTaken],
		Outstanding: len(candidates),
	}
}

// DailyScheduler keeps each salesperson's "today" marking in line with the
// current state of their tasks, links and cadences.
type DailyScheduler struct {
	persistence persistence.Persistence
	settings    protocol.SettingsProvider
	jobs        eventbus.EventPublisher
	notifier    protocol.Notifier
	metrics     *telemetry.Metrics
	tracer      trace.Tracer
	logger      *slog.Logger
	now         func() time.Time
}

// Recalculate recomputes the daily queue of userID from scratch and overwrites
// the previous marking. Running it twice without state changes is a no-op.
func (d *DailyScheduler) Recalculate(ctx context.Context, userID string) (*QueueSelection, error) {
	ctx, span := otelhelper.StartSpan(ctx, d.tracer, "daily.recalculate", attribute.String(otelhelper.UserIDKey, userID))
	defer span.End()

	settings, err := d.settings.Settings(ctx, userID)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	until := endOfDay(d.now())

	var selection *QueueSelection

	err = d.persistence.Transaction(ctx, func(tx persistence.Persistence) error {
		candidates, err := tx.TaskRepository().QueueCandidates(ctx, userID, until)
		if err != nil {
			return err
		}

		selection = SelectDailyQueue(candidates, settings)

		return tx.TaskRepository().MarkToday(ctx, userID, selection.TaskIDs())
	})
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("failed to recalculate daily queue of user %s: %w", userID, err)
	}

	d.metrics.Recalculations.Inc()
	d.metrics.TodayQueueSize.WithLabelValues("high").Set(float64(len(selection.High)))
	d.metrics.TodayQueueSize.WithLabelValues("standard").Set(float64(len(selection.Standard)))

	d.logger.DebugContext(ctx, "daily queue recalculated",
		"user_id", userID,
		"high", len(selection.High),
		"standard", len(selection.Standard),
		"outstanding", selection.Outstanding)

	err = d.notifier.Notify(ctx, userID, events.TaskSummaryChanged{
		BaseEvent:     events.NewBaseEvent(events.TaskSummaryChangedEvent),
		UserID:        userID,
		TodayCount:    len(selection.High) + len(selection.Standard),
		HighPriority:  len(selection.High),
		StandardCount: len(selection.Standard),
		Outstanding:   selection.Outstanding,
	})
	if err != nil {
		d.logger.ErrorContext(ctx, "failed to notify task summary", "user_id", userID, "error", err)
	}

	return selection, nil
}

// RecalculateAll recalculates every user owning outstanding tasks and returns
// how many succeeded.
func (d *DailyScheduler) RecalculateAll(ctx context.Context) (int, error) {
	userIDs, err := d.persistence.TaskRepository().UsersWithOutstandingTasks(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list users with outstanding tasks: %w", err)
	}

	return d.recalculateEach(ctx, userIDs), nil
}

// RecalculateStarted recalculates the users owning tasks whose start time fell
// in (from, to]. These are the deferred recalculations of delayed nodes.
func (d *DailyScheduler) RecalculateStarted(ctx context.Context, from, to time.Time) (int, error) {
	userIDs, err := d.persistence.TaskRepository().UsersWithTasksStarting(ctx, from, to)
	if err != nil {
		return 0, fmt.Errorf("failed to list users with starting tasks: %w", err)
	}

	return d.recalculateEach(ctx, userIDs), nil
}

func (d *DailyScheduler) recalculateEach(ctx context.Context, userIDs []string) int {
	done := 0

	for _, userID := range userIDs {
		if _, err := d.Recalculate(ctx, userID); err != nil {
			d.logger.ErrorContext(ctx, "recalculation failed", "user_id", userID, "error", err)

			continue
		}

		done++
	}

	return done
}

// Trigger requests a recalculation for each user without waiting for it.
// Publishing failures are logged, the caller's operation already succeeded.
func (d *DailyScheduler) Trigger(ctx context.Context, userIDs ...string) {
	seen := make(map[string]bool, len(userIDs))

	for _, userID := range userIDs {
		if userID == "" || seen[userID] {
			continue
		}

		seen[userID] = true

		err := d.jobs.Publish(ctx, userID, events.RecalculateRequested{
			BaseEvent: events.NewBaseEvent(events.RecalculateRequestedEvent),
			UserID:    userID,
		})
		if err != nil {
			d.logger.ErrorContext(ctx, "failed to request recalculation", "user_id", userID, "error", err)
		}
	}
}

// endOfDay returns the last instant of now's UTC day.
func endOfDay(now time.Time) time.Time {
	y, m, d := now.UTC().Date()

	return time.Date(y, m, d+1, 0, 0, 0, 0, time.UTC).Add(-time.Nanosecond)
}
