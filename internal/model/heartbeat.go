package model

import (
	"time"

	"github.com/google/uuid"
)

// HeartbeatPayload is sent periodically while an upgrade run is in progress
// to indicate the runner is alive
type HeartbeatPayload struct {
	EventID     string         `json:"eventId"`
	OccurredAt  time.Time      `json:"occurredAt"`
	Source      SourceMetadata `json:"source"`
	MessageType string         `json:"messageType"`
	UpgradeID   string         `json:"upgradeId"`
	RunID       string         `json:"runId"`
	ElapsedMs   int64          `json:"elapsedMs"`
}

// NewHeartbeatPayload creates a new heartbeat payload
func NewHeartbeatPayload(upgradeID, runID string, elapsed time.Duration, source SourceMetadata) HeartbeatPayload {
	return HeartbeatPayload{
		EventID:     uuid.New().String(),
		OccurredAt:  time.Now().UTC(),
		Source:      source,
		MessageType: "HEARTBEAT",
		UpgradeID:   upgradeID,
		RunID:       runID,
		ElapsedMs:   elapsed.Milliseconds(),
	}
}
