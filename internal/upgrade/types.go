// Package upgrade runs named upgrades as an ordered list of retried steps and
// records the outcome of every run as a dataHubUpgradeResult.
package upgrade

import (
	"context"
	"time"

	"github.com/datahub-project/datahub-upgrade/internal/model"
)

// Action tells the manager what to do after a step
type Action string

const (
	ActionContinue Action = "CONTINUE"
	ActionAbort    Action = "ABORT"
)

// Step is one unit of work of an upgrade
type Step interface {
	ID() string
	// Retries is the number of extra attempts after a failed one
	Retries() int
	// Skip reports whether the step should not run at all
	Skip(uctx *Context) bool
	// IsOptional steps may fail without failing the upgrade
	IsOptional() bool
	Execute(ctx context.Context, uctx *Context) (Action, error)
}

// CleanupStep runs after the steps, whatever their outcome
type CleanupStep interface {
	ID() string
	Execute(ctx context.Context, uctx *Context, result model.UpgradeResult) error
}

// Upgrade is a named, ordered list of steps
type Upgrade struct {
	ID           string
	Steps        []Step
	CleanupSteps []CleanupStep
}

// StepResult records how a step ended
type StepResult struct {
	StepID   string
	Result   model.StepOutcome
	Action   Action
	Attempts int
	Duration time.Duration
	Err      error
}

// Execution is what Execute returns for a run
type Execution struct {
	UpgradeID   string
	RunID       string
	Result      model.UpgradeResult
	Report      *Report
	StepResults []StepResult
	// Skipped is set when an earlier run already succeeded and no step ran
	Skipped bool
	// CleanupErr combines the errors of all failed cleanup steps
	CleanupErr error
}

// Context is handed to every step of a run
type Context struct {
	UpgradeID   string
	RunID       string
	Args        Args
	Report      *Report
	StartedAt   time.Time
	StepResults []StepResult

	result map[string]string
}

// SetResult records a key in the result map of the run
func (c *Context) SetResult(key, value string) {
	if c.result == nil {
		c.result = make(map[string]string)
	}
	c.result[key] = value
}

// Result returns a copy of the result map collected so far
func (c *Context) Result() map[string]string {
	out := make(map[string]string, len(c.result))
	for k, v := range c.result {
		out[k] = v
	}
	return out
}

// SimpleStep adapts a function to Step
type SimpleStep struct {
	StepID     string
	RetryCount int
	Optional   bool
	SkipFunc   func(uctx *Context) bool
	Run        func(ctx context.Context, uctx *Context) (Action, error)
}

func (s SimpleStep) ID() string       { return s.StepID }
func (s SimpleStep) Retries() int     { return s.RetryCount }
func (s SimpleStep) IsOptional() bool { return s.Optional }

func (s SimpleStep) Skip(uctx *Context) bool {
	return s.SkipFunc != nil && s.SkipFunc(uctx)
}

func (s SimpleStep) Execute(ctx context.Context, uctx *Context) (Action, error) {
	return s.Run(ctx, uctx)
}

// CleanupFunc adapts a function to CleanupStep
type CleanupFunc struct {
	StepID string
	Run    func(ctx context.Context, uctx *Context, result model.UpgradeResult) error
}

func (c CleanupFunc) ID() string { return c.StepID }

func (c CleanupFunc) Execute(ctx context.Context, uctx *Context, result model.UpgradeResult) error {
	return c.Run(ctx, uctx, result)
}
