package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"cloud.google.com/go/pubsub/v2"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/datahub-project/datahub-upgrade/internal/model"
)

// PubSubPublisher sends upgrade events to Google Cloud Pub/Sub
type PubSubPublisher struct {
	client     *pubsub.Client
	publisher  *pubsub.Publisher
	topicPath  string
	instanceID string
}

// ParseTopicPath parses a full Pub/Sub topic path and returns projectID and topicID.
// Expected format: projects/<project>/topics/<topic>
func ParseTopicPath(topicPath string) (projectID, topicID string, err error) {
	parts := strings.Split(topicPath, "/")
	if len(parts) != 4 || parts[0] != "projects" || parts[2] != "topics" || parts[1] == "" || parts[3] == "" {
		return "", "", fmt.Errorf("invalid topic path %q: expected format projects/<project>/topics/<topic>", topicPath)
	}
	return parts[1], parts[3], nil
}

// NewPubSubPublisher creates a new Google Cloud Pub/Sub publisher
//
// Authentication is handled via Application Default Credentials (ADC):
//   - Workload Identity (GKE): Auto-detected from metadata server (recommended)
//   - Service Account JSON key: Set GOOGLE_APPLICATION_CREDENTIALS env var
//   - Default credentials: gcloud auth application-default login
func NewPubSubPublisher(ctx context.Context, topicPath, instanceID string) (*PubSubPublisher, error) {
	projectID, topicID, err := ParseTopicPath(topicPath)
	if err != nil {
		return nil, err
	}

	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %w", err)
	}

	// Events of one upgrade must arrive in the order they were published.
	// The subscription must also have message ordering enabled.
	publisher := client.Publisher(topicID)
	publisher.EnableMessageOrdering = true

	return &PubSubPublisher{
		client:     client,
		publisher:  publisher,
		topicPath:  topicPath,
		instanceID: instanceID,
	}, nil
}

// OrderingKey groups the events of one upgrade on one instance
func OrderingKey(instanceID, upgradeID string) string {
	return fmt.Sprintf("%s/%s", instanceID, upgradeID)
}

// Attributes returns the message attributes subscribers filter on
func Attributes(event model.UpgradeEvent) map[string]string {
	attributes := map[string]string{
		"upgrade_id": event.UpgradeID,
		"event_type": string(event.Kind),
		"state":      string(event.State),
	}
	if event.Source.InstanceID != "" {
		attributes["instance_id"] = event.Source.InstanceID
	}
	return attributes
}

// Publish sends an upgrade event to Google Cloud Pub/Sub
func (p *PubSubPublisher) Publish(ctx context.Context, event model.UpgradeEvent) error {
	logger := log.FromContext(ctx)

	data, err := json.Marshal(event)
	if err != nil {
		logger.Error(err, "Failed to marshal event", "eventID", event.EventID, "upgradeId", event.UpgradeID)
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	orderingKey := OrderingKey(p.instanceID, event.UpgradeID)

	logger.Info("Publishing event to Google Pub/Sub",
		"topic", p.topicPath,
		"eventID", event.EventID,
		"orderingKey", orderingKey,
		"kind", event.Kind,
		"state", event.State,
	)

	result := p.publisher.Publish(ctx, &pubsub.Message{
		Data:        data,
		Attributes:  Attributes(event),
		OrderingKey: orderingKey,
	})

	msgID, err := result.Get(ctx)
	if err != nil {
		logger.Error(err, "Failed to publish event to Pub/Sub", "topic", p.topicPath, "eventID", event.EventID)
		// a failed ordered publish pauses the key until resumed
		p.publisher.ResumePublish(orderingKey)
		return fmt.Errorf("failed to publish event to pubsub: %w", err)
	}

	logger.Info("Event successfully published to Google Pub/Sub",
		"topic", p.topicPath,
		"eventID", event.EventID,
		"messageID", msgID,
		"upgradeId", event.UpgradeID,
	)

	return nil
}

// Stop stops the publisher and closes the client
func (p *PubSubPublisher) Stop() {
	if p.publisher != nil {
		p.publisher.Stop()
	}
	if p.client != nil {
		_ = p.client.Close()
	}
}
