package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/cadence/pkg/events"
	"github.com/dukex/cadence/pkg/models"
	"github.com/dukex/cadence/pkg/otelhelper"
	"github.com/dukex/cadence/pkg/persistence"
	"github.com/dukex/cadence/pkg/protocol"
	"github.com/dukex/cadence/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// DefaultLaunchConcurrency bounds the leads started in parallel by one launch.
const DefaultLaunchConcurrency = 8

var errLaunchNotPending = errors.New("cadence is not waiting for a launch")

// LaunchReport summarizes one bulk launch.
type LaunchReport struct {
	CadenceID string               `json:"cadence_id"`
	Status    models.CadenceStatus `json:"status"`
	Started   int                  `json:"started"`
	Failures  []events.LeadFailure `json:"failures"`
}

// Launcher runs the bulk launch of a cadence: it starts every applicable lead
// on the first node and then marks the cadence in progress.
type Launcher struct {
	persistence persistence.Persistence
	settings    protocol.SettingsProvider
	progression *Progression
	dispatch    *dispatcher
	notifier    protocol.Notifier
	metrics     *telemetry.Metrics
	tracer      trace.Tracer
	logger      *slog.Logger
	concurrency int
}

// Run executes a queued launch. Only a failure before any lead is attempted
// reverts the cadence to its previous status; per lead failures are reported
// and the cadence still ends in progress. Replays of a finished launch are no-ops.
func (l *Launcher) Run(ctx context.Context, job *events.LaunchRequested) (*LaunchReport, error) {
	ctx, span := otelhelper.StartSpan(ctx, l.tracer, "launcher.run", attribute.String(otelhelper.CadenceIDKey, job.CadenceID))
	defer span.End()

	started := time.Now()
	report := &LaunchReport{CadenceID: job.CadenceID, Failures: []events.LeadFailure{}}

	cadence, first, links, err := l.bootstrap(ctx, job.CadenceID)
	if err != nil {
		if errors.Is(err, errLaunchNotPending) {
			l.logger.InfoContext(ctx, "launch already handled", "cadence_id", job.CadenceID)

			return nil, nil
		}

		otelhelper.SetError(span, err)
		l.fail(ctx, job, err)

		return nil, fmt.Errorf("failed to bootstrap launch of cadence %s: %w", job.CadenceID, err)
	}

	span.SetAttributes(attribute.Int("cadence.leads", len(links)))

	var (
		mu    sync.Mutex
		group errgroup.Group
	)

	group.SetLimit(l.concurrency)

	fx := newEffects()
	settingsByUser := make(map[string]models.Settings)

	for _, link := range links {
		settings, ok := settingsByUser[link.UserID]
		if !ok {
			settings, err = l.settings.Settings(ctx, link.UserID)
			if err != nil {
				settings = models.DefaultSettings()

				l.logger.WarnContext(ctx, "using default settings for launch", "user_id", link.UserID, "error", err)
			}

			settingsByUser[link.UserID] = settings
		}

		group.Go(func() error {
			leadFx := newEffects()

			err := l.persistence.Transaction(ctx, func(tx persistence.Persistence) error {
				_, err := l.progression.startLead(ctx, tx, link.LeadID, link.CadenceID, first, settings, leadFx)

				return err
			})

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				l.logger.ErrorContext(ctx, "failed to start lead",
					"cadence_id", link.CadenceID, "lead_id", link.LeadID, "error", err)
				l.metrics.LeadLaunchFailures.Inc()
				report.Failures = append(report.Failures, events.LeadFailure{LeadID: link.LeadID, Error: err.Error()})

				return nil
			}

			report.Started++
			fx.merge(leadFx)

			return nil
		})
	}

	_ = group.Wait()

	ok, err := l.persistence.CadenceRepository().TransitionStatus(ctx, persistence.CadenceStatusTransition{
		CadenceID: cadence.ID,
		From:      []models.CadenceStatus{models.CadenceStatusProcessing},
		To:        models.CadenceStatusInProgress,
	})
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("failed to mark cadence %s in progress: %w", cadence.ID, err)
	}

	if !ok {
		l.logger.WarnContext(ctx, "cadence left processing during launch", "cadence_id", cadence.ID)
	}

	// Pausing dropped the tasks of leads already on a node from their owners'
	// queues; those leads are not restarted, so bring the tasks back here.
	if ok && job.PreviousStatus == models.CadenceStatusPaused {
		userIDs, err := l.persistence.LeadCadenceRepository().UserIDsByCadence(ctx, cadence.ID)
		if err != nil {
			l.logger.ErrorContext(ctx, "failed to list users of resumed cadence", "cadence_id", cadence.ID, "error", err)
		}

		for _, userID := range userIDs {
			fx.recalculateNow(userID)
		}
	}

	report.Status = models.CadenceStatusInProgress

	l.metrics.LaunchDuration.Observe(time.Since(started).Seconds())
	l.notifyFinished(ctx, cadence.UserID, report)
	l.dispatch.apply(ctx, fx)

	l.logger.InfoContext(ctx, "cadence launched",
		"cadence_id", cadence.ID, "started", report.Started, "failures", len(report.Failures))

	return report, nil
}

// bootstrap checks the cadence still waits for this launch and collects the
// first node and the links to start, all in one transaction.
func (l *Launcher) bootstrap(ctx context.Context, cadenceID string) (*models.Cadence, *models.Node, []*models.LeadCadence, error) {
	var (
		cadence *models.Cadence
		first   *models.Node
		links   []*models.LeadCadence
	)

	err := l.persistence.Transaction(ctx, func(tx persistence.Persistence) error {
		var err error

		cadence, err = tx.CadenceRepository().GetByID(ctx, cadenceID)
		if err != nil {
			return err
		}

		if cadence.Status != models.CadenceStatusProcessing {
			return errLaunchNotPending
		}

		ordered, err := sequenceOf(ctx, tx, cadenceID)
		if err != nil {
			return err
		}

		if len(ordered) == 0 {
			return ErrEmptyCadence
		}

		first = ordered[0]

		candidates, err := tx.LeadCadenceRepository().ListByCadence(ctx, cadenceID,
			models.LeadCadenceStatusNotStarted, models.LeadCadenceStatusInProgress)
		if err != nil {
			return err
		}

		for _, link := range candidates {
			if link.Status == models.LeadCadenceStatusNotStarted || link.CurrentNodeID == nil {
				links = append(links, link)
			}
		}

		return nil
	})

	return cadence, first, links, err
}

func (l *Launcher) fail(ctx context.Context, job *events.LaunchRequested, cause error) {
	l.metrics.LaunchesFailed.Inc()

	_, err := l.persistence.CadenceRepository().TransitionStatus(ctx, persistence.CadenceStatusTransition{
		CadenceID: job.CadenceID,
		From:      []models.CadenceStatus{models.CadenceStatusProcessing},
		To:        job.PreviousStatus,
	})
	if err != nil {
		l.logger.ErrorContext(ctx, "failed to revert cadence status", "cadence_id", job.CadenceID, "error", err)
	}

	l.notifyFinished(ctx, job.ActorID, &LaunchReport{
		CadenceID: job.CadenceID,
		Status:    job.PreviousStatus,
		Failures:  []events.LeadFailure{{Error: cause.Error()}},
	})
}

func (l *Launcher) notifyFinished(ctx context.Context, userID string, report *LaunchReport) {
	err := l.notifier.Notify(ctx, userID, events.LaunchFinished{
		BaseEvent: events.NewBaseEvent(events.LaunchFinishedEvent),
		CadenceID: report.CadenceID,
		Status:    report.Status,
		Started:   report.Started,
		Failures:  report.Failures,
	})
	if err != nil {
		l.logger.ErrorContext(ctx, "failed to notify launch result", "cadence_id", report.CadenceID, "error", err)
	}
}
