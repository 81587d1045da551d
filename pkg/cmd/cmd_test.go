package cmd

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/dukex/cadence/pkg/channels/kafka"
	"github.com/dukex/cadence/pkg/persistence/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewPersistence(t *testing.T) {
	ctx := context.Background()

	store, err := NewPersistence(ctx, discard(), "file://"+t.TempDir())
	require.NoError(t, err)
	assert.IsType(t, &file.Persistence{}, store)
	assert.NoError(t, store.HealthCheck(ctx))

	for _, url := range []string{"./data", "mysql://localhost/cadence"} {
		_, err := NewPersistence(ctx, discard(), url)
		assert.ErrorIs(t, err, ErrUnsupportedDatabase, url)
	}
}

func TestNewEventBus(t *testing.T) {
	bus, err := NewEventBus("gochannel", discard())
	require.NoError(t, err)
	assert.NoError(t, bus.Close())

	_, err = NewEventBus("rabbitmq", discard())
	require.ErrorIs(t, err, ErrUnsupportedEventBus)

	t.Setenv("KAFKA_BROKERS", " ")

	_, err = NewEventBus("kafka", discard())
	require.ErrorIs(t, err, kafka.ErrNoBrokers)
}
