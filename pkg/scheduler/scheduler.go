// Package scheduler runs the engine's periodic sweeps on the replica holding
// the leader lease.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/cadence/pkg/lock"
	"github.com/dukex/cadence/pkg/services"
	"github.com/robfig/cron/v3"
)

const (
	DefaultInterval  = time.Minute
	DefaultDailyCron = "0 0 * * *"
)

type Config struct {
	// Interval between sweeps.
	Interval time.Duration
	// DailyCron is the standard cron expression of the full queue recompute, in UTC.
	DailyCron string
	Now       func() time.Time
}

// TickReport counts what one sweep did. Leader is false when another replica
// holds the lease and nothing ran.
type TickReport struct {
	Leader            bool
	CadencesResumed   int
	LeadsResumed      int
	SchedulesFired    int
	UsersRecalculated int
}

type Scheduler struct {
	engine   *services.Engine
	locker   lock.Locker
	logger   *slog.Logger
	interval time.Duration
	now      func() time.Time
	cron     *cron.Cron

	mu       sync.Mutex
	lastTick time.Time
	ticker   *time.Ticker
	done     chan struct{}
	started  bool
}

func New(engine *services.Engine, locker lock.Locker, cfg Config, logger *slog.Logger) (*Scheduler, error) {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}

	if cfg.DailyCron == "" {
		cfg.DailyCron = DefaultDailyCron
	}

	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}

	logger = logger.With("module", "scheduler")

	s := &Scheduler{
		engine:   engine,
		locker:   locker,
		logger:   logger,
		interval: cfg.Interval,
		now:      cfg.Now,
		lastTick: cfg.Now(),
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))),
		),
	}

	if _, err := s.cron.AddFunc(cfg.DailyCron, func() { s.Nightly(context.Background()) }); err != nil {
		return nil, fmt.Errorf("invalid daily cron %q: %w", cfg.DailyCron, err)
	}

	return s, nil
}

// Start begins the sweeps and the nightly recompute. It returns immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	s.logger.InfoContext(ctx, "Starting scheduler", "interval", s.interval)

	s.ticker = time.NewTicker(s.interval)
	s.done = make(chan struct{})
	s.started = true

	s.cron.Start()

	go s.poll(ctx)

	return nil
}

// Stop halts the sweeps, waits for a running nightly recompute and gives the
// lease up.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()

	if !s.started {
		s.mu.Unlock()

		return nil
	}

	s.logger.InfoContext(ctx, "Stopping scheduler")

	s.ticker.Stop()
	close(s.done)
	s.started = false
	s.mu.Unlock()

	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}

	return s.locker.Release(ctx)
}

func (s *Scheduler) poll(ctx context.Context) {
	for {
		select {
		case <-s.done:
			return
		case <-ctx.Done():
			return
		case <-s.ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one sweep if this replica leads: cadences and leads whose pause
// ended are resumed, due launch schedules fire and users whose delayed tasks
// became due since the previous sweep are recalculated.
func (s *Scheduler) Tick(ctx context.Context) TickReport {
	report := TickReport{}

	if !s.lead(ctx) {
		return report
	}

	report.Leader = true

	var err error

	if report.CadencesResumed, err = s.engine.Cadences.ResumeDue(ctx); err != nil {
		s.logger.ErrorContext(ctx, "cadence resume sweep failed", "error", err)
	}

	if report.LeadsResumed, err = s.engine.Progression.ResumeDue(ctx); err != nil {
		s.logger.ErrorContext(ctx, "lead resume sweep failed", "error", err)
	}

	if report.SchedulesFired, err = s.engine.Cadences.FireDueSchedules(ctx); err != nil {
		s.logger.ErrorContext(ctx, "launch schedule sweep failed", "error", err)
	}

	s.mu.Lock()
	from := s.lastTick
	to := s.now()
	s.mu.Unlock()

	report.UsersRecalculated, err = s.engine.Daily.RecalculateStarted(ctx, from, to)
	if err != nil {
		s.logger.ErrorContext(ctx, "deferred recalculation failed", "error", err)
	} else {
		s.mu.Lock()
		s.lastTick = to
		s.mu.Unlock()
	}

	if report.CadencesResumed+report.LeadsResumed+report.SchedulesFired+report.UsersRecalculated > 0 {
		s.logger.InfoContext(ctx, "sweep finished",
			"cadences_resumed", report.CadencesResumed,
			"leads_resumed", report.LeadsResumed,
			"schedules_fired", report.SchedulesFired,
			"users_recalculated", report.UsersRecalculated)
	}

	return report
}

// Nightly recomputes every daily queue, since "today" moved.
func (s *Scheduler) Nightly(ctx context.Context) int {
	if !s.lead(ctx) {
		return 0
	}

	done, err := s.engine.Daily.RecalculateAll(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "nightly recalculation failed", "error", err)

		return done
	}

	s.logger.InfoContext(ctx, "nightly recalculation finished", "users", done)

	return done
}

func (s *Scheduler) lead(ctx context.Context) bool {
	ok, err := s.locker.Acquire(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to acquire leader lease", "error", err)

		return false
	}

	if !ok {
		s.logger.DebugContext(ctx, "another replica leads, skipping")
	}

	return ok
}
