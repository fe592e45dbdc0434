package hooks

import (
	"context"

	"github.com/datahub-project/datahub-upgrade/internal/model"
)

// EventPublisher receives upgrade lifecycle events
type EventPublisher interface {
	Publish(ctx context.Context, event model.UpgradeEvent) error
}

// StepEventPublisher receives step events in batches
type StepEventPublisher interface {
	PublishBatch(ctx context.Context, events []model.StepEvent) error
}

// HeartbeatPublisher receives liveness heartbeats of a running upgrade
type HeartbeatPublisher interface {
	PublishHeartbeat(ctx context.Context, heartbeat model.HeartbeatPayload) error
}
