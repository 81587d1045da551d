// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/cadence/pkg/crm"
	"github.com/dukex/cadence/pkg/eventbus"
	"github.com/dukex/cadence/pkg/lock"
	"github.com/dukex/cadence/pkg/otelhelper"
	"github.com/dukex/cadence/pkg/persistence"
	"github.com/dukex/cadence/pkg/protocol"
	"github.com/dukex/cadence/pkg/scheduler"
	"github.com/dukex/cadence/pkg/services"
	"github.com/dukex/cadence/pkg/telemetry"
	"github.com/dukex/cadence/pkg/worker"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	cli "github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/trace"
)

// SchedulerLockKey names the Redis lease held by the active scheduler.
const SchedulerLockKey = "cadence:scheduler:leader"

// CommonFlags are accepted by every cadence binary.
func CommonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "database-url",
			Usage:    "Database connection URL for persistence (file://<dir> or postgres://...)",
			Required: true,
			Sources:  cli.EnvVars("DATABASE_URL"),
		},
		&cli.StringFlag{
			Name:    "event-bus",
			Usage:   "Event bus type (gochannel, kafka)",
			Value:   "gochannel",
			Sources: cli.EnvVars("EVENT_BUS_TYPE"),
		},
		&cli.StringFlag{
			Name:    "crm-url",
			Usage:   "Base URL of the CRM status mirror endpoint",
			Sources: cli.EnvVars("CRM_URL"),
		},
		&cli.StringFlag{
			Name:    "crm-token",
			Usage:   "Bearer token sent to the CRM",
			Sources: cli.EnvVars("CRM_TOKEN"),
		},
		&cli.IntFlag{
			Name:    "launch-concurrency",
			Usage:   "Leads started in parallel during a bulk launch",
			Value:   services.DefaultLaunchConcurrency,
			Sources: cli.EnvVars("LAUNCH_CONCURRENCY"),
		},
		&cli.BoolFlag{
			Name:    "otel",
			Usage:   "Export traces over OTLP/HTTP",
			Sources: cli.EnvVars("OTEL_ENABLED"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level (debug, info, warn, error)",
			Value:   "info",
			Sources: cli.EnvVars("LOG_LEVEL"),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Usage:   "Log format (text, json)",
			Value:   "text",
			Sources: cli.EnvVars("LOG_FORMAT"),
		},
	}
}

// WorkerFlags configure job consumption.
func WorkerFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "worker-id",
			Aliases: []string{"id"},
			Usage:   "Custom worker ID (auto-generated if not provided)",
			Sources: cli.EnvVars("WORKER_ID"),
		},
	}
}

// SchedulerFlags configure the periodic scheduler.
func SchedulerFlags() []cli.Flag {
	return []cli.Flag{
		&cli.DurationFlag{
			Name:    "poll-interval",
			Usage:   "Interval between resume and schedule sweeps",
			Value:   scheduler.DefaultInterval,
			Sources: cli.EnvVars("POLL_INTERVAL"),
		},
		&cli.StringFlag{
			Name:    "daily-cron",
			Usage:   "Cron expression (UTC) of the nightly queue recompute",
			Value:   scheduler.DefaultDailyCron,
			Sources: cli.EnvVars("DAILY_CRON"),
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "Redis URL for the scheduler leader lock; without it every replica leads",
			Sources: cli.EnvVars("REDIS_URL"),
		},
	}
}

// Runtime holds what every binary builds from CommonFlags.
type Runtime struct {
	Logger      *slog.Logger
	Persistence persistence.Persistence
	Bus         eventbus.EventBus
	Engine      *services.Engine
	Metrics     *prometheus.Registry
	CRM         protocol.CRMAdapter

	closers []func(ctx context.Context) error
}

func NewRuntime(ctx context.Context, command *cli.Command, serviceName string, logger *slog.Logger) (*Runtime, error) {
	rt := &Runtime{Logger: logger, Metrics: prometheus.NewRegistry()}

	rt.Metrics.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	var tracer trace.Tracer

	if command.Bool("otel") {
		otelTracer, shutdown, err := otelhelper.NewTracer(ctx, serviceName)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize tracer: %w", err)
		}

		tracer = otelTracer
		rt.closers = append(rt.closers, shutdown)
	}

	store, err := NewPersistence(ctx, logger, command.String("database-url"))
	if err != nil {
		rt.Close(ctx)

		return nil, err
	}

	rt.Persistence = store
	rt.closers = append(rt.closers, store.Close)

	bus, err := NewEventBus(command.String("event-bus"), logger)
	if err != nil {
		rt.Close(ctx)

		return nil, err
	}

	rt.Bus = bus
	rt.closers = append(rt.closers, func(context.Context) error { return bus.Close() })

	rt.CRM, err = crm.New(command.String("crm-url"), command.String("crm-token"), logger)
	if err != nil {
		rt.Close(ctx)

		return nil, err
	}

	rt.Engine = services.NewEngine(services.EngineConfig{
		Persistence:       store,
		Jobs:              bus,
		Logger:            logger,
		Metrics:           telemetry.NewMetrics(rt.Metrics),
		Tracer:            tracer,
		LaunchConcurrency: command.Int("launch-concurrency"),
	})

	return rt, nil
}

// Close releases resources in reverse order of acquisition.
func (r *Runtime) Close(ctx context.Context) {
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](ctx); err != nil {
			r.Logger.ErrorContext(ctx, "Failed to close resource", "error", err)
		}
	}

	r.closers = nil
}

// StartWorker subscribes a worker to the job topics.
func (r *Runtime) StartWorker(ctx context.Context, command *cli.Command) error {
	workerID := command.String("worker-id")
	if workerID == "" {
		workerID = "worker-" + uuid.New().String()[:8]
	}

	return worker.NewWorker(workerID, r.Engine, r.Bus, r.CRM, r.Logger).Start(ctx)
}

// NewScheduler builds the periodic scheduler, leased through Redis when a URL
// is configured.
func (r *Runtime) NewScheduler(command *cli.Command) (*scheduler.Scheduler, error) {
	interval := command.Duration("poll-interval")

	var locker lock.Locker = lock.NewLocalLock()

	if redisURL := command.String("redis-url"); redisURL != "" {
		redisLock, client, err := lock.NewRedisLockFromURL(redisURL, SchedulerLockKey, 3*interval)
		if err != nil {
			return nil, err
		}

		r.closers = append(r.closers, func(context.Context) error {
			if err := client.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
				return err
			}

			return nil
		})
		locker = redisLock
	}

	return scheduler.New(r.Engine, locker, scheduler.Config{
		Interval:  interval,
		DailyCron: command.String("daily-cron"),
	}, r.Logger)
}
