// Package mocks holds testify mocks of the engine's transport and collaborator interfaces.
package mocks

import (
	"context"
	"sync"

	"github.com/dukex/cadence/pkg/eventbus"
	"github.com/dukex/cadence/pkg/events"
	"github.com/stretchr/testify/mock"
)

// MockEventBus is a mock implementation of eventbus.EventBus interface.
type MockEventBus struct {
	mock.Mock
}

func (m *MockEventBus) Publish(ctx context.Context, key string, event eventbus.Event) error {
	args := m.Called(ctx, key, event)

	return args.Error(0)
}

func (m *MockEventBus) Handle(eventType events.EventType, handler eventbus.EventHandler) error {
	args := m.Called(eventType, handler)

	return args.Error(0)
}

func (m *MockEventBus) Subscribe(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockEventBus) Close() error {
	args := m.Called()

	return args.Error(0)
}

func (m *MockEventBus) GenerateID() string {
	args := m.Called()

	return args.String(0)
}

// Published is one event captured by RecordingPublisher.
type Published struct {
	Key   string
	Event events.Event
}

// RecordingPublisher keeps every published event. Setting Err makes Publish fail.
type RecordingPublisher struct {
	mu     sync.Mutex
	events []Published
	Err    error
}

func (r *RecordingPublisher) Publish(_ context.Context, key string, event eventbus.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.Err != nil {
		return r.Err
	}

	r.events = append(r.events, Published{Key: key, Event: event})

	return nil
}

// Events returns the captured events of the given type in publish order.
func (r *RecordingPublisher) Events(eventType events.EventType) []Published {
	r.mu.Lock()
	defer r.mu.Unlock()

	var matched []Published

	for _, published := range r.events {
		if published.Event.GetType() == eventType {
			matched = append(matched, published)
		}
	}

	return matched
}

// Reset drops every captured event.
func (r *RecordingPublisher) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = nil
}
