//go:build integration

package kafka_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/cadence/pkg/channels/kafka"
	"github.com/dukex/cadence/pkg/eventbus"
	"github.com/dukex/cadence/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"
)

func setupBrokers(t *testing.T) []string {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	container, err := tckafka.Run(ctx,
		"confluentinc/confluent-local:7.5.0",
		tckafka.WithClusterID("test-cluster"),
	)
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err)

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)

	return brokers
}

func TestKafkaChannel_DeliversJobsThroughTheBus(t *testing.T) {
	brokers := setupBrokers(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	pub, sub, err := kafka.CreateChannel(watermill.NewSlogLogger(logger), brokers, "cadence-test")
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(logger, pub, sub)
	t.Cleanup(func() { _ = bus.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan *events.LaunchRequested, 1)

	require.NoError(t, bus.Handle(events.LaunchRequestedEvent, func(_ context.Context, event any) error {
		received <- event.(*events.LaunchRequested)

		return nil
	}))
	require.NoError(t, bus.Subscribe(ctx))

	job := events.LaunchRequested{
		BaseEvent: events.NewBaseEvent(events.LaunchRequestedEvent),
		CadenceID: "cad-1",
	}
	require.NoError(t, bus.Publish(ctx, "cad-1", job))

	select {
	case got := <-received:
		assert.Equal(t, job.ID, got.ID)
		assert.Equal(t, "cad-1", got.CadenceID)
	case <-time.After(60 * time.Second):
		t.Fatal("launch job was not delivered")
	}
}
