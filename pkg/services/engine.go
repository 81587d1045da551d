package services

import (
	"log/slog"
	"time"

	"github.com/dukex/cadence/pkg/eventbus"
	"github.com/dukex/cadence/pkg/persistence"
	"github.com/dukex/cadence/pkg/protocol"
	"github.com/dukex/cadence/pkg/registry"
	"github.com/dukex/cadence/pkg/telemetry"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// EngineConfig wires the engine to its storage and collaborators. Persistence,
// Jobs and Logger are required, every other field has a default.
type EngineConfig struct {
	Persistence persistence.Persistence
	Jobs        eventbus.EventPublisher
	Logger      *slog.Logger

	Registry  *registry.Registry
	Notifier  protocol.Notifier
	Workflows protocol.WorkflowSink
	Access    protocol.AccessChecker
	Settings  protocol.SettingsProvider
	Metrics   *telemetry.Metrics
	Tracer    trace.Tracer
	Now       func() time.Time

	LaunchConcurrency int
}

// Engine bundles the cadence execution components.
type Engine struct {
	Cadences    *CadenceService
	Nodes       *NodeSequencer
	Progression *Progression
	Launcher    *Launcher
	Daily       *DailyScheduler
	Settings    *SettingsService
	Registry    *registry.Registry
	Metrics     *telemetry.Metrics
}

func NewEngine(cfg EngineConfig) *Engine {
	logger := cfg.Logger

	if cfg.Registry == nil {
		cfg.Registry = registry.NewDefaultRegistry(logger)
	}

	if cfg.Notifier == nil || cfg.Workflows == nil {
		notifier := eventbus.NewNotifier(cfg.Jobs)

		if cfg.Notifier == nil {
			cfg.Notifier = notifier
		}

		if cfg.Workflows == nil {
			cfg.Workflows = notifier
		}
	}

	if cfg.Access == nil {
		cfg.Access = NewRoleAccess()
	}

	if cfg.Metrics == nil {
		cfg.Metrics = telemetry.NewMetrics(prometheus.NewRegistry())
	}

	if cfg.Tracer == nil {
		cfg.Tracer = otel.Tracer("cadence")
	}

	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}

	if cfg.LaunchConcurrency <= 0 {
		cfg.LaunchConcurrency = DefaultLaunchConcurrency
	}

	settingsService := NewSettingsService(cfg.Persistence, logger)
	if cfg.Settings == nil {
		cfg.Settings = settingsService
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	daily := &DailyScheduler{
		persistence: cfg.Persistence,
		settings:    cfg.Settings,
		jobs:        cfg.Jobs,
		notifier:    cfg.Notifier,
		metrics:     cfg.Metrics,
		tracer:      cfg.Tracer,
		logger:      logger.With("module", "daily_scheduler"),
		now:         cfg.Now,
	}
	settingsService.recalc = daily

	dispatch := &dispatcher{
		workflows: cfg.Workflows,
		notifier:  cfg.Notifier,
		jobs:      cfg.Jobs,
		daily:     daily,
		logger:    logger.With("module", "dispatcher"),
	}

	progression := &Progression{
		persistence: cfg.Persistence,
		settings:    cfg.Settings,
		access:      cfg.Access,
		dispatch:    dispatch,
		metrics:     cfg.Metrics,
		logger:      logger.With("module", "progression"),
		now:         cfg.Now,
	}

	return &Engine{
		Cadences: &CadenceService{
			persistence: cfg.Persistence,
			access:      cfg.Access,
			settings:    cfg.Settings,
			jobs:        cfg.Jobs,
			progression: progression,
			daily:       daily,
			dispatch:    dispatch,
			metrics:     cfg.Metrics,
			validate:    validate,
			logger:      logger.With("module", "cadence"),
			now:         cfg.Now,
		},
		Nodes: &NodeSequencer{
			persistence: cfg.Persistence,
			registry:    cfg.Registry,
			access:      cfg.Access,
			progression: progression,
			dispatch:    dispatch,
			validate:    validate,
			logger:      logger.With("module", "node_sequencer"),
			now:         cfg.Now,
		},
		Progression: progression,
		Launcher: &Launcher{
			persistence: cfg.Persistence,
			settings:    cfg.Settings,
			progression: progression,
			dispatch:    dispatch,
			notifier:    cfg.Notifier,
			metrics:     cfg.Metrics,
			tracer:      cfg.Tracer,
			logger:      logger.With("module", "launcher"),
			concurrency: cfg.LaunchConcurrency,
		},
		Daily:    daily,
		Settings: settingsService,
		Registry: cfg.Registry,
		Metrics:  cfg.Metrics,
	}
}
