// Package eventbus provides the job and notification transport between the API,
// the worker and the scheduler.
package eventbus

import (
	"context"

	"github.com/dukex/cadence/pkg/events"
)

type Event = events.Event

type EventPublisher interface {
	// Publish sends event to the topic of its type. key partitions related events.
	Publish(ctx context.Context, key string, event Event) error
}

type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
}

type EventHandler func(ctx context.Context, event any) error

type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
	GenerateID() string
}
