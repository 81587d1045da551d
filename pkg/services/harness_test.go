package services

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/dukex/cadence/pkg/events"
	"github.com/dukex/cadence/pkg/mocks"
	"github.com/dukex/cadence/pkg/models"
	"github.com/dukex/cadence/pkg/persistence"
	"github.com/dukex/cadence/pkg/persistence/file"
	"github.com/dukex/cadence/pkg/protocol"
	"github.com/dukex/cadence/pkg/telemetry"
	"github.com/dukex/cadence/pkg/testutil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

// Wednesday morning, so skip weekend policies never kick in by accident.
var testNow = time.Date(2024, time.March, 6, 9, 0, 0, 0, time.UTC)

var owner = protocol.Actor{UserID: "user-1", Role: protocol.RoleSalesPerson, SubDepartmentID: "sd-1", CompanyID: "company-1"}

type harness struct {
	t       *testing.T
	ctx     context.Context
	engine  *Engine
	store   *file.Persistence
	jobs    *mocks.RecordingPublisher
	clock   *testutil.Clock
	metrics *telemetry.Metrics
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	return newWrappedHarness(t, func(p persistence.Persistence) persistence.Persistence { return p })
}

// newWrappedHarness hands the engine wrap(store) while assertions read the store directly.
func newWrappedHarness(t *testing.T, wrap func(persistence.Persistence) persistence.Persistence) *harness {
	t.Helper()

	store, err := file.NewPersistence(t.TempDir())
	require.NoError(t, err)

	h := &harness{
		t:       t,
		ctx:     context.Background(),
		store:   store,
		jobs:    &mocks.RecordingPublisher{},
		clock:   testutil.NewClock(testNow),
		metrics: telemetry.NewMetrics(prometheus.NewRegistry()),
	}

	h.engine = NewEngine(EngineConfig{
		Persistence: wrap(store),
		Jobs:        h.jobs,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		Metrics:     h.metrics,
		Now:         h.clock.Now,
	})

	return h
}

func (h *harness) seed(fixture *testutil.Fixture) *testutil.Fixture {
	testutil.SaveFixture(h.t, h.store, fixture)

	return fixture
}

// launch queues the launch and runs the job the worker would receive.
func (h *harness) launch(cadenceID string) *LaunchReport {
	h.t.Helper()

	require.NoError(h.t, h.engine.Cadences.Launch(h.ctx, owner, cadenceID))

	return h.runLaunch()
}

func (h *harness) runLaunch() *LaunchReport {
	h.t.Helper()

	queued := h.jobs.Events(events.LaunchRequestedEvent)
	require.NotEmpty(h.t, queued)

	job := queued[len(queued)-1].Event.(events.LaunchRequested)

	report, err := h.engine.Launcher.Run(h.ctx, &job)
	require.NoError(h.t, err)

	return report
}

func (h *harness) cadence(id string) *models.Cadence {
	h.t.Helper()

	cadence, err := h.store.CadenceRepository().GetByID(h.ctx, id)
	require.NoError(h.t, err)

	return cadence
}

func (h *harness) link(leadID, cadenceID string) *models.LeadCadence {
	h.t.Helper()

	link, err := h.store.LeadCadenceRepository().Get(h.ctx, leadID, cadenceID)
	require.NoError(h.t, err)

	return link
}

func (h *harness) outstanding(leadID, nodeID string) *models.Task {
	h.t.Helper()

	task, err := h.store.TaskRepository().Outstanding(h.ctx, leadID, nodeID)
	require.NoError(h.t, err)

	return task
}

func (h *harness) noOutstanding(leadID, nodeID string) {
	h.t.Helper()

	_, err := h.store.TaskRepository().Outstanding(h.ctx, leadID, nodeID)
	require.ErrorIs(h.t, err, persistence.ErrTaskNotFound)
}

func (h *harness) activities(leadID string) []string {
	h.t.Helper()

	activities, err := h.store.ActivityRepository().ListByLead(h.ctx, leadID)
	require.NoError(h.t, err)

	names := make([]string, 0, len(activities))
	for _, activity := range activities {
		names = append(names, activity.Name)
	}

	return names
}

func (h *harness) triggers() []protocol.WorkflowTrigger {
	published := h.jobs.Events(events.WorkflowTriggeredEvent)
	triggers := make([]protocol.WorkflowTrigger, 0, len(published))

	for _, p := range published {
		triggers = append(triggers, protocol.WorkflowTrigger(p.Event.(events.WorkflowTriggered).Trigger))
	}

	return triggers
}
