package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"time"
)

// UpgradeResultAspectName is the aspect name the upgrade result is stored under
const UpgradeResultAspectName = "dataHubUpgradeResult"

// UpgradeState is the outcome of an upgrade run
type UpgradeState string

const (
	UpgradeStateInProgress UpgradeState = "IN_PROGRESS"
	UpgradeStateSucceeded  UpgradeState = "SUCCEEDED"
	UpgradeStateFailed     UpgradeState = "FAILED"
	UpgradeStateAborted    UpgradeState = "ABORTED"
)

var (
	// ErrMissingTimestamp is returned when a decoded record carries no timestampMs
	ErrMissingTimestamp = errors.New("upgrade result: timestampMs is required")
	// ErrNegativeTimestamp is returned by Validate for timestamps before the epoch
	ErrNegativeTimestamp = errors.New("upgrade result: timestampMs must not be negative")
	// ErrUnknownState is returned by Validate for state symbols outside UpgradeState
	ErrUnknownState = errors.New("upgrade result: unknown state")
	// ErrNullResultValue is returned when a decoded result entry is null
	ErrNullResultValue = errors.New("upgrade result: result values must be strings")
)

// Valid reports whether s is one of the known state symbols
func (s UpgradeState) Valid() bool {
	switch s {
	case UpgradeStateInProgress, UpgradeStateSucceeded, UpgradeStateFailed, UpgradeStateAborted:
		return true
	default:
		return false
	}
}

// Terminal reports whether a run in state s has finished
func (s UpgradeState) Terminal() bool {
	return s == UpgradeStateSucceeded || s == UpgradeStateFailed || s == UpgradeStateAborted
}

// StatePtr returns a pointer to s, for building results inline
func StatePtr(s UpgradeState) *UpgradeState {
	return &s
}

// UpgradeResult is the dataHubUpgradeResult aspect: the recorded outcome of one
// upgrade run. State and Result are optional; a nil Result and an empty Result are
// different values and both survive JSON encoding.
type UpgradeResult struct {
	State       *UpgradeState
	TimestampMs int64
	Result      map[string]string
}

// NewUpgradeResult builds a result for a run that started at startedAt
func NewUpgradeResult(state UpgradeState, startedAt time.Time, result map[string]string) UpgradeResult {
	return UpgradeResult{
		State:       StatePtr(state),
		TimestampMs: startedAt.UnixMilli(),
		Result:      result,
	}
}

// EffectiveState returns the state, reading an absent state as SUCCEEDED
func (r UpgradeResult) EffectiveState() UpgradeState {
	if r.State == nil {
		return UpgradeStateSucceeded
	}
	return *r.State
}

// StartedAt returns TimestampMs as a UTC time
func (r UpgradeResult) StartedAt() time.Time {
	return time.UnixMilli(r.TimestampMs).UTC()
}

// Validate checks the constraints every stored record must satisfy
func (r UpgradeResult) Validate() error {
	if r.TimestampMs < 0 {
		return fmt.Errorf("%w: %d", ErrNegativeTimestamp, r.TimestampMs)
	}
	if r.State != nil && !r.State.Valid() {
		return fmt.Errorf("%w %q", ErrUnknownState, *r.State)
	}
	return nil
}

// Clone returns a deep copy of r
func (r UpgradeResult) Clone() UpgradeResult {
	out := UpgradeResult{TimestampMs: r.TimestampMs}
	if r.State != nil {
		out.State = StatePtr(*r.State)
	}
	if r.Result != nil {
		out.Result = maps.Clone(r.Result)
	}
	return out
}

// Equal reports whether r and o hold the same populated fields. Presence of
// State and Result is part of the comparison.
func (r UpgradeResult) Equal(o UpgradeResult) bool {
	if r.TimestampMs != o.TimestampMs {
		return false
	}
	if (r.State == nil) != (o.State == nil) {
		return false
	}
	if r.State != nil && *r.State != *o.State {
		return false
	}
	if (r.Result == nil) != (o.Result == nil) {
		return false
	}
	return maps.Equal(r.Result, o.Result)
}

// upgradeResultJSON is the wire shape. The pointer to the map keeps an empty map
// from being dropped by omitempty.
type upgradeResultJSON struct {
	State       *UpgradeState      `json:"state,omitempty"`
	TimestampMs *int64             `json:"timestampMs"`
	Result      *map[string]string `json:"result,omitempty"`
}

// MarshalJSON implements json.Marshaler
func (r UpgradeResult) MarshalJSON() ([]byte, error) {
	ts := r.TimestampMs
	wire := upgradeResultJSON{
		State:       r.State,
		TimestampMs: &ts,
	}
	if r.Result != nil {
		result := r.Result
		wire.Result = &result
	}
	return json.Marshal(wire)
}

// upgradeResultDecodeJSON tells a null result entry apart from an empty string
type upgradeResultDecodeJSON struct {
	State       *UpgradeState       `json:"state,omitempty"`
	TimestampMs *int64              `json:"timestampMs"`
	Result      *map[string]*string `json:"result,omitempty"`
}

// UnmarshalJSON implements json.Unmarshaler. Unknown fields are ignored.
func (r *UpgradeResult) UnmarshalJSON(data []byte) error {
	var wire upgradeResultDecodeJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("failed to decode upgrade result: %w", err)
	}
	if wire.TimestampMs == nil {
		return ErrMissingTimestamp
	}

	out := UpgradeResult{
		State:       wire.State,
		TimestampMs: *wire.TimestampMs,
	}
	if wire.Result != nil {
		out.Result = make(map[string]string, len(*wire.Result))
		for k, v := range *wire.Result {
			if v == nil {
				return fmt.Errorf("%w: key %q is null", ErrNullResultValue, k)
			}
			out.Result[k] = *v
		}
	}
	*r = out
	return nil
}
