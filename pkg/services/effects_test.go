package services

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/dukex/cadence/pkg/events"
	"github.com/dukex/cadence/pkg/mocks"
	"github.com/dukex/cadence/pkg/protocol"
	"github.com/dukex/cadence/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestDispatcher_CollaboratorFailuresAreSwallowed(t *testing.T) {
	h := newHarness(t)
	f := h.seed(testutil.NewFixture([]string{"A", "B"}, "user-1"))
	h.launch(f.Cadence.ID)

	workflows := &mocks.MockWorkflowSink{}
	workflows.On("ApplyWorkflow", mock.Anything, protocol.TriggerFirstTouch, f.Cadence.ID, f.Leads[0].ID).
		Return(errors.New("workflow service down")).Once()

	engine := NewEngine(EngineConfig{
		Persistence: h.store,
		Jobs:        h.jobs,
		Workflows:   workflows,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		Metrics:     h.metrics,
		Now:         h.clock.Now,
	})

	result, err := engine.Progression.Complete(h.ctx, owner, h.outstanding(f.Leads[0].ID, f.Nodes[0].ID).ID)
	require.NoError(t, err)
	require.NotNil(t, result.Next)

	workflows.AssertExpectations(t)
	assert.Empty(t, h.triggers(), "workflows went to the injected sink only")
}

func TestDispatcher_RunsSynchronousRecalculationsOnce(t *testing.T) {
	h := newHarness(t)
	f := h.seed(testutil.NewFixture([]string{"A"}, "user-1", "user-1", "user-1"))
	h.launch(f.Cadence.ID)

	summaries := h.jobs.Events(events.TaskSummaryChangedEvent)
	require.Len(t, summaries, 1)
	assert.Equal(t, 3, summaries[0].Event.(events.TaskSummaryChanged).TodayCount)
	assert.Empty(t, h.jobs.Events(events.RecalculateRequestedEvent))
}
