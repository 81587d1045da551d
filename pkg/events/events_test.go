package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/dukex/cadence/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_KnowsEveryEventType(t *testing.T) {
	for _, eventType := range []EventType{
		LaunchRequestedEvent, PauseRequestedEvent, RecalculateRequestedEvent, CRMMirrorRequestedEvent,
		WorkflowTriggeredEvent, AutomationCancelRequestedEvent, TaskSummaryChangedEvent,
		LaunchFinishedEvent, TasksDeletedEvent,
	} {
		event, ok := New(eventType)
		require.True(t, ok, eventType)
		assert.Equal(t, eventType, event.GetType())
	}

	_, ok := New("unknown")
	assert.False(t, ok)
}

func TestTopicFor(t *testing.T) {
	assert.Equal(t, JobsTopic, TopicFor(LaunchRequestedEvent))
	assert.Equal(t, JobsTopic, TopicFor(CRMMirrorRequestedEvent))
	assert.Equal(t, NotificationsTopic, TopicFor(TaskSummaryChangedEvent))
	assert.Equal(t, NotificationsTopic, TopicFor(WorkflowTriggeredEvent))
}

func TestPauseRequested_JSONSerialization(t *testing.T) {
	resumeAt := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	original := &PauseRequested{
		BaseEvent:      NewBaseEvent(PauseRequestedEvent),
		CadenceID:      "cad-1",
		PreviousStatus: models.CadenceStatusInProgress,
		PauseFor:       &resumeAt,
		ActorID:        "user-1",
	}

	jsonData, err := json.Marshal(original)
	require.NoError(t, err)
	assert.Contains(t, string(jsonData), `"type":"cadence.pause.requested"`)
	assert.Contains(t, string(jsonData), `"previous_status":"in_progress"`)

	var decoded PauseRequested
	require.NoError(t, json.Unmarshal(jsonData, &decoded))
	assert.Equal(t, original.CadenceID, decoded.CadenceID)
	assert.True(t, resumeAt.Equal(*decoded.PauseFor))
}

func TestLaunchFinished_OmitsEmptyFailures(t *testing.T) {
	event := LaunchFinished{BaseEvent: NewBaseEvent(LaunchFinishedEvent), CadenceID: "cad-1", Started: 3}

	jsonData, err := json.Marshal(event)
	require.NoError(t, err)
	assert.NotContains(t, string(jsonData), "failures")
}
