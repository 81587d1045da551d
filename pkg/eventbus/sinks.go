package eventbus

import (
	"context"

	"github.com/dukex/cadence/pkg/events"
	"github.com/dukex/cadence/pkg/protocol"
)

// Notifier delivers notifications and workflow triggers through the bus.
type Notifier struct {
	bus EventPublisher
}

func NewNotifier(bus EventPublisher) *Notifier {
	return &Notifier{bus: bus}
}

func (n *Notifier) Notify(ctx context.Context, key string, event events.Event) error {
	return n.bus.Publish(ctx, key, event)
}

func (n *Notifier) ApplyWorkflow(ctx context.Context, trigger protocol.WorkflowTrigger, cadenceID, leadID string) error {
	return n.bus.Publish(ctx, leadID, events.WorkflowTriggered{
		BaseEvent: events.NewBaseEvent(events.WorkflowTriggeredEvent),
		Trigger:   string(trigger),
		CadenceID: cadenceID,
		LeadID:    leadID,
	})
}
