package model

import (
	"time"

	"github.com/google/uuid"
)

type UpgradeEventKind string
type StepOutcome string

const (
	UpgradeEventKindStarted  UpgradeEventKind = "STARTED"
	UpgradeEventKindFinished UpgradeEventKind = "FINISHED"
	UpgradeEventKindSkipped  UpgradeEventKind = "SKIPPED"
	// UpgradeEventKindObserved is emitted by the controller when a stored result changes
	UpgradeEventKindObserved UpgradeEventKind = "OBSERVED"

	StepOutcomeSucceeded StepOutcome = "SUCCEEDED"
	StepOutcomeFailed    StepOutcome = "FAILED"
	StepOutcomeSkipped   StepOutcome = "SKIPPED"
)

type SourceMetadata struct {
	InstanceID string `json:"instanceId"`
	Version    string `json:"version"`
}

type ErrorDetail struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// UpgradeEvent describes a change in the lifecycle of an upgrade run
type UpgradeEvent struct {
	EventID     string            `json:"eventId"`
	OccurredAt  time.Time         `json:"occurredAt"`
	Source      SourceMetadata    `json:"source"`
	UpgradeID   string            `json:"upgradeId"`
	RunID       string            `json:"runId,omitempty"`
	Kind        UpgradeEventKind  `json:"kind"`
	State       UpgradeState      `json:"state"`
	TimestampMs int64             `json:"timestampMs"`
	Result      map[string]string `json:"result,omitempty"`
	Error       *ErrorDetail      `json:"error,omitempty"`
}

// NewUpgradeEvent builds an event for result. The error detail is filled from the
// failedStep and error entries of a FAILED or ABORTED result.
func NewUpgradeEvent(kind UpgradeEventKind, upgradeID, runID string, result UpgradeResult, source SourceMetadata) UpgradeEvent {
	state := result.EffectiveState()

	var errorDetail *ErrorDetail
	if state == UpgradeStateFailed || state == UpgradeStateAborted {
		message := result.Result[ResultKeyError]
		if message == "" {
			message = string(state)
		}
		errorDetail = &ErrorDetail{
			Code:    result.Result[ResultKeyFailedStep],
			Message: message,
		}
	}

	return UpgradeEvent{
		EventID:     uuid.New().String(),
		OccurredAt:  time.Now().UTC(),
		Source:      source,
		UpgradeID:   upgradeID,
		RunID:       runID,
		Kind:        kind,
		State:       state,
		TimestampMs: result.TimestampMs,
		Result:      result.Clone().Result,
		Error:       errorDetail,
	}
}

// Result map keys written by the upgrade manager
const (
	ResultKeyFailedStep = "failedStep"
	ResultKeyError      = "error"
	ResultKeyRunID      = "runId"
)

// StepEvent reports the outcome of one attempt of an upgrade step
type StepEvent struct {
	EventID    string         `json:"eventId"`
	OccurredAt time.Time      `json:"occurredAt"`
	Source     SourceMetadata `json:"source"`
	UpgradeID  string         `json:"upgradeId"`
	RunID      string         `json:"runId"`
	StepID     string         `json:"stepId"`
	Outcome    StepOutcome    `json:"outcome"`
	Attempt    int            `json:"attempt"`
	DurationMs int64          `json:"durationMs"`
	Message    string         `json:"message,omitempty"`
}

// NewStepEvent creates a new step event
func NewStepEvent(
	upgradeID, runID, stepID string,
	outcome StepOutcome,
	attempt int,
	duration time.Duration,
	message string,
	source SourceMetadata,
) StepEvent {
	return StepEvent{
		EventID:    uuid.New().String(),
		OccurredAt: time.Now().UTC(),
		Source:     source,
		UpgradeID:  upgradeID,
		RunID:      runID,
		StepID:     stepID,
		Outcome:    outcome,
		Attempt:    attempt,
		DurationMs: duration.Milliseconds(),
		Message:    message,
	}
}
