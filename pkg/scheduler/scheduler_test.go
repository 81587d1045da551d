package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/dukex/cadence/pkg/events"
	"github.com/dukex/cadence/pkg/lock"
	"github.com/dukex/cadence/pkg/mocks"
	"github.com/dukex/cadence/pkg/models"
	"github.com/dukex/cadence/pkg/persistence/file"
	"github.com/dukex/cadence/pkg/protocol"
	"github.com/dukex/cadence/pkg/services"
	"github.com/dukex/cadence/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, time.March, 6, 9, 0, 0, 0, time.UTC)

type fixedLock struct {
	leader bool
	err    error
}

func (l fixedLock) Acquire(context.Context) (bool, error) { return l.leader, l.err }
func (l fixedLock) Release(context.Context) error         { return nil }

type env struct {
	t      *testing.T
	ctx    context.Context
	store  *file.Persistence
	jobs   *mocks.RecordingPublisher
	clock  *testutil.Clock
	engine *services.Engine
}

func newEnv(t *testing.T) *env {
	t.Helper()

	store, err := file.NewPersistence(t.TempDir())
	require.NoError(t, err)

	e := &env{
		t:     t,
		ctx:   context.Background(),
		store: store,
		jobs:  &mocks.RecordingPublisher{},
		clock: testutil.NewClock(testNow),
	}

	e.engine = services.NewEngine(services.EngineConfig{
		Persistence: store,
		Jobs:        e.jobs,
		Logger:      discard(),
		Now:         e.clock.Now,
	})

	return e
}

func (e *env) scheduler(locker lock.Locker) *Scheduler {
	e.t.Helper()

	s, err := New(e.engine, locker, Config{Now: e.clock.Now}, discard())
	require.NoError(e.t, err)

	return s
}

func (e *env) launch(cadenceID string) {
	e.t.Helper()

	actor := protocol.Actor{UserID: "user-1", Role: protocol.RoleSalesPerson, SubDepartmentID: "sd-1", CompanyID: "company-1"}
	require.NoError(e.t, e.engine.Cadences.Launch(e.ctx, actor, cadenceID))

	queued := e.jobs.Events(events.LaunchRequestedEvent)
	require.NotEmpty(e.t, queued)

	job := queued[len(queued)-1].Event.(events.LaunchRequested)
	_, err := e.engine.Launcher.Run(e.ctx, &job)
	require.NoError(e.t, err)
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestScheduler_TickResumesDueCadence(t *testing.T) {
	e := newEnv(t)

	f := testutil.NewFixture([]string{"A"}, "user-1")
	resumeAt := testNow.Add(-time.Hour)
	f.Cadence.Status = models.CadenceStatusPaused
	f.Cadence.ResumeAt = &resumeAt
	testutil.SaveFixture(t, e.store, f)

	report := e.scheduler(lock.NewLocalLock()).Tick(e.ctx)

	assert.True(t, report.Leader)
	assert.Equal(t, 1, report.CadencesResumed)

	cadence, err := e.store.CadenceRepository().GetByID(e.ctx, f.Cadence.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CadenceStatusProcessing, cadence.Status)
	assert.Len(t, e.jobs.Events(events.LaunchRequestedEvent), 1)
}

func TestScheduler_FollowerDoesNothing(t *testing.T) {
	tests := []struct {
		name   string
		locker lock.Locker
	}{
		{name: "lease held elsewhere", locker: fixedLock{leader: false}},
		{name: "lock unavailable", locker: fixedLock{err: errors.New("redis down")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)

			f := testutil.NewFixture([]string{"A"}, "user-1")
			resumeAt := testNow.Add(-time.Hour)
			f.Cadence.Status = models.CadenceStatusPaused
			f.Cadence.ResumeAt = &resumeAt
			testutil.SaveFixture(t, e.store, f)

			s := e.scheduler(tt.locker)

			assert.Equal(t, TickReport{}, s.Tick(e.ctx))
			assert.Zero(t, s.Nightly(e.ctx))

			cadence, err := e.store.CadenceRepository().GetByID(e.ctx, f.Cadence.ID)
			require.NoError(t, err)
			assert.Equal(t, models.CadenceStatusPaused, cadence.Status)
		})
	}
}

func TestScheduler_TickRecalculatesDelayedTasks(t *testing.T) {
	e := newEnv(t)

	f := testutil.NewFixture([]string{"A"}, "user-1")
	f.Nodes[0].WaitTime = 24 * 60
	testutil.SaveFixture(t, e.store, f)

	s := e.scheduler(lock.NewLocalLock())
	e.launch(f.Cadence.ID)

	assert.Zero(t, s.Tick(e.ctx).UsersRecalculated)

	e.clock.Advance(24 * time.Hour)

	assert.Equal(t, 1, s.Tick(e.ctx).UsersRecalculated)
	assert.Zero(t, s.Tick(e.ctx).UsersRecalculated, "already recalculated window is not swept again")

	today, err := e.store.TaskRepository().ListByUser(e.ctx, "user-1", true)
	require.NoError(t, err)
	assert.Len(t, today, 1)
}

func TestScheduler_Nightly(t *testing.T) {
	e := newEnv(t)

	f := testutil.NewFixture([]string{"A", "B"}, "user-1", "user-2", "user-2")
	testutil.SaveFixture(t, e.store, f)
	e.launch(f.Cadence.ID)

	assert.Equal(t, 2, e.scheduler(lock.NewLocalLock()).Nightly(e.ctx))
}

func TestNew_RejectsInvalidCron(t *testing.T) {
	e := newEnv(t)

	_, err := New(e.engine, lock.NewLocalLock(), Config{DailyCron: "every night"}, discard())
	require.Error(t, err)
}

func TestScheduler_StartStop(t *testing.T) {
	e := newEnv(t)
	s := e.scheduler(lock.NewLocalLock())

	require.NoError(t, s.Start(e.ctx))
	require.NoError(t, s.Start(e.ctx))

	ctx, cancel := context.WithTimeout(e.ctx, time.Second)
	defer cancel()

	require.NoError(t, s.Stop(ctx))
	require.NoError(t, s.Stop(ctx))
}
