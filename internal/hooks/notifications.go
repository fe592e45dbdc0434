package hooks

import (
	"context"

	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/datahub-project/datahub-upgrade/internal/model"
)

type EventPublisherQueue struct {
	EventChan  <-chan model.UpgradeEvent
	publishers []EventPublisher
	done       chan struct{}
}

func NewEventPublisherQueue(eventChan <-chan model.UpgradeEvent, publishers []EventPublisher) *EventPublisherQueue {
	return &EventPublisherQueue{
		EventChan:  eventChan,
		publishers: publishers,
		done:       make(chan struct{}),
	}
}

// Loop publishes every event to all publishers until the channel is closed
func (eq *EventPublisherQueue) Loop(ctx context.Context) {
	defer close(eq.done)
	logger := log.FromContext(ctx)

	logger.Info("Event publisher queue started", "publishers", len(eq.publishers))

	for event := range eq.EventChan {
		logger.Info("Received upgrade event",
			"upgradeId", event.UpgradeID,
			"runId", event.RunID,
			"kind", event.Kind,
			"state", event.State,
		)

		for _, publisher := range eq.publishers {
			// a failing publisher must not starve the others
			if err := publisher.Publish(ctx, event); err != nil {
				logger.Error(err, "failed to publish event",
					"upgradeId", event.UpgradeID,
					"kind", event.Kind,
				)
			}
		}
	}
}

// Wait blocks until Loop has returned
func (eq *EventPublisherQueue) Wait() {
	<-eq.done
}
