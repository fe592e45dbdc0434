package controlplane

import (
	"context"
	"fmt"
	"strings"
	"time"

	"resty.dev/v3"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/datahub-project/datahub-upgrade/internal/model"
)

const (
	eventsPath     = "/events"
	stepsPath      = "/steps/batch"
	heartbeatsPath = "/heartbeats"
)

// HTTPPublisher sends upgrade events, step batches and heartbeats to a webhook
// endpoint over HTTP
type HTTPPublisher struct {
	client   *resty.Client
	endpoint string
}

// NewHTTPPublisher creates a new HTTP publisher. Paths are appended to endpoint.
func NewHTTPPublisher(endpoint, token string) *HTTPPublisher {
	client := resty.New().
		SetTimeout(10*time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(1*time.Second).
		SetRetryMaxWaitTime(5*time.Second).
		SetHeader("Content-Type", "application/json")
	if token != "" {
		client.SetAuthToken(token)
	}

	return &HTTPPublisher{
		client:   client,
		endpoint: strings.TrimRight(endpoint, "/"),
	}
}

// Publish sends an upgrade lifecycle event
func (p *HTTPPublisher) Publish(ctx context.Context, event model.UpgradeEvent) error {
	log.FromContext(ctx).Info("Publishing upgrade event to webhook",
		"endpoint", p.endpoint,
		"eventID", event.EventID,
		"upgradeId", event.UpgradeID,
		"kind", event.Kind,
		"state", event.State,
	)
	return p.post(ctx, eventsPath, event, event.EventID)
}

// PublishBatch sends a batch of step events
func (p *HTTPPublisher) PublishBatch(ctx context.Context, events []model.StepEvent) error {
	if len(events) == 0 {
		return nil
	}
	log.FromContext(ctx).Info("Publishing step event batch to webhook",
		"endpoint", p.endpoint,
		"eventCount", len(events),
	)
	return p.post(ctx, stepsPath, events, events[0].EventID)
}

// PublishHeartbeat sends a heartbeat of a running upgrade
func (p *HTTPPublisher) PublishHeartbeat(ctx context.Context, heartbeat model.HeartbeatPayload) error {
	log.FromContext(ctx).V(1).Info("Publishing heartbeat to webhook",
		"endpoint", p.endpoint,
		"upgradeId", heartbeat.UpgradeID,
		"elapsedMs", heartbeat.ElapsedMs,
	)
	return p.post(ctx, heartbeatsPath, heartbeat, heartbeat.EventID)
}

func (p *HTTPPublisher) post(ctx context.Context, path string, body any, eventID string) error {
	logger := log.FromContext(ctx)
	url := p.endpoint + path

	var errorResponse map[string]interface{}
	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(body).
		SetError(&errorResponse).
		Post(url)
	if err != nil {
		logger.Error(err, "Failed to send to webhook", "url", url, "eventID", eventID)
		return fmt.Errorf("failed to send to webhook: %w", err)
	}

	if !resp.IsSuccess() {
		logger.Error(nil, "Webhook returned error",
			"statusCode", resp.StatusCode(),
			"status", resp.Status(),
			"error", errorResponse,
			"body", resp.String(),
			"url", url,
			"eventID", eventID,
		)
		return fmt.Errorf("webhook returned error status %d: %s", resp.StatusCode(), resp.String())
	}

	logger.V(1).Info("Webhook accepted payload", "url", url, "eventID", eventID, "statusCode", resp.StatusCode())
	return nil
}

// Close releases the underlying HTTP client
func (p *HTTPPublisher) Close() error {
	return p.client.Close()
}
