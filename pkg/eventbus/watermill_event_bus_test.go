package eventbus

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/cadence/pkg/channels/gochannel"
	"github.com/dukex/cadence/pkg/events"
	"github.com/dukex/cadence/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBus(t *testing.T) *WatermillEventBus {
	t.Helper()

	logger := slog.Default()
	pub, sub, err := gochannel.CreateChannel(watermill.NewSlogLogger(logger))
	require.NoError(t, err)

	bus := NewWatermillEventBus(logger, pub, sub)
	t.Cleanup(func() { _ = bus.Close() })

	return bus
}

func TestWatermillEventBus_RoundTrip(t *testing.T) {
	bus := newTestBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan *events.RecalculateRequested, 1)

	require.NoError(t, bus.Handle(events.RecalculateRequestedEvent, func(_ context.Context, event any) error {
		received <- event.(*events.RecalculateRequested)

		return nil
	}))
	require.NoError(t, bus.Subscribe(ctx))

	require.NoError(t, bus.Publish(ctx, "user-1", events.RecalculateRequested{
		BaseEvent: events.NewBaseEvent(events.RecalculateRequestedEvent),
		UserID:    "user-1",
	}))

	select {
	case event := <-received:
		assert.Equal(t, "user-1", event.UserID)
	case <-time.After(2 * time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestNotifier_ApplyWorkflowPublishesTrigger(t *testing.T) {
	bus := newTestBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan *events.WorkflowTriggered, 1)

	require.NoError(t, bus.Handle(events.WorkflowTriggeredEvent, func(_ context.Context, event any) error {
		received <- event.(*events.WorkflowTriggered)

		return nil
	}))
	require.NoError(t, bus.Subscribe(ctx))

	notifier := NewNotifier(bus)
	require.NoError(t, notifier.ApplyWorkflow(ctx, protocol.TriggerFirstTouch, "cad-1", "lead-1"))

	select {
	case event := <-received:
		assert.Equal(t, "first_touch", event.Trigger)
		assert.Equal(t, "cad-1", event.CadenceID)
		assert.Equal(t, "lead-1", event.LeadID)
	case <-time.After(2 * time.Second):
		t.Fatal("trigger was not delivered")
	}
}
