package upgrade

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/datahub-project/datahub-upgrade/internal/heartbeat"
	"github.com/datahub-project/datahub-upgrade/internal/hooks"
	"github.com/datahub-project/datahub-upgrade/internal/lock"
	"github.com/datahub-project/datahub-upgrade/internal/metrics"
	"github.com/datahub-project/datahub-upgrade/internal/model"
	"github.com/datahub-project/datahub-upgrade/internal/store"
)

// ErrUnknownUpgrade is returned by Execute for an id that was never registered
var ErrUnknownUpgrade = errors.New("unknown upgrade")

const (
	DefaultLockTTL = 2 * time.Minute
	// finalWriteTimeout bounds the result write of a cancelled run
	finalWriteTimeout = 30 * time.Second
)

// Options wires a Manager to its collaborators. Only Store is required.
type Options struct {
	Store   store.ResultStore
	Locker  lock.Locker
	LockTTL time.Duration

	// Events and StepEvents receive lifecycle and step events when set.
	// Sends block, so a queue must be draining them.
	Events     chan<- model.UpgradeEvent
	StepEvents chan<- model.StepEvent

	Heartbeats        []hooks.HeartbeatPublisher
	HeartbeatInterval time.Duration

	Source   model.SourceMetadata
	NewRunID func() string
	Now      func() time.Time
}

// Manager holds the registered upgrades and executes them
type Manager struct {
	opts Options

	mu       sync.RWMutex
	upgrades map[string]Upgrade
}

func NewManager(opts Options) *Manager {
	if opts.Locker == nil {
		opts.Locker = lock.NopLocker{}
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = DefaultLockTTL
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = opts.LockTTL / 3
	}
	if opts.NewRunID == nil {
		opts.NewRunID = uuid.NewString
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{
		opts:     opts,
		upgrades: make(map[string]Upgrade),
	}
}

// Register adds an upgrade. Registering an id twice panics.
func (m *Manager) Register(u Upgrade) {
	if err := model.ValidateUpgradeID(u.ID); err != nil {
		panic(fmt.Sprintf("cannot register upgrade: %v", err))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.upgrades[u.ID]; ok {
		panic(fmt.Sprintf("upgrade %q registered twice", u.ID))
	}
	m.upgrades[u.ID] = u
}

// Get returns the upgrade registered under id
func (m *Manager) Get(id string) (Upgrade, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.upgrades[id]
	return u, ok
}

// Upgrades returns all registered upgrades sorted by id
func (m *Manager) Upgrades() []Upgrade {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Upgrade, 0, len(m.upgrades))
	for _, u := range m.upgrades {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// LockKey is the lock key that serializes runs of one upgrade
func LockKey(upgradeID string) string {
	return "datahub-upgrade/" + upgradeID
}

// Execute runs the upgrade registered under id. A run that fails or aborts is
// not an error: its outcome is in the returned Execution. Errors are returned
// for unknown ids, a held lock and store failures.
func (m *Manager) Execute(ctx context.Context, id string, args Args) (*Execution, error) {
	u, ok := m.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownUpgrade, id)
	}
	if args == nil {
		args = Args{}
	}

	runID := m.opts.NewRunID()
	logger := log.FromContext(ctx).WithValues("upgradeId", id, "runId", runID)
	ctx = log.IntoContext(ctx, logger)
	ctx = store.WithRunID(ctx, runID)

	lease, err := m.opts.Locker.Acquire(ctx, LockKey(id), m.opts.LockTTL)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			logger.Error(err, "Failed to release upgrade lock")
		}
	}()

	report := newReport(logger)
	exec := &Execution{UpgradeID: id, RunID: runID, Report: report}

	previous, err := m.opts.Store.Get(ctx, id)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("failed to read previous result of %s: %w", id, err)
	}
	if previous != nil && previous.EffectiveState() == model.UpgradeStateSucceeded && !args.Bool(ArgForce) {
		report.Addf("Upgrade %s already succeeded at %s, skipping", id, previous.StartedAt().Format(time.RFC3339))
		exec.Skipped = true
		exec.Result = *previous
		m.emit(model.NewUpgradeEvent(model.UpgradeEventKindSkipped, id, runID, *previous, m.opts.Source))
		return exec, nil
	}

	startedAt := m.opts.Now()
	uctx := &Context{
		UpgradeID: id,
		RunID:     runID,
		Args:      args.clone(),
		Report:    report,
		StartedAt: startedAt,
	}
	uctx.SetResult(model.ResultKeyRunID, runID)

	inProgress := model.NewUpgradeResult(model.UpgradeStateInProgress, startedAt, uctx.Result())
	if err := m.opts.Store.Put(ctx, id, inProgress); err != nil {
		return nil, fmt.Errorf("failed to record start of %s: %w", id, err)
	}
	m.emit(model.NewUpgradeEvent(model.UpgradeEventKindStarted, id, runID, inProgress, m.opts.Source))

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	sender := heartbeat.NewSender(heartbeat.Config{
		Interval:  m.opts.HeartbeatInterval,
		UpgradeID: id,
		RunID:     runID,
		Source:    m.opts.Source,
	}, lease, m.opts.Heartbeats, func(err error) { cancel(err) })
	go sender.Start(runCtx)

	report.Addf("Starting upgrade with id %s...", id)
	state := m.runSteps(runCtx, u, uctx, exec)
	sender.Stop()

	final := model.NewUpgradeResult(state, startedAt, uctx.Result())
	exec.Result = final
	report.Addf("Upgrade %s completed with result %s", id, state)

	// cleanup and the final write must happen even for a cancelled run
	finishCtx, finishCancel := context.WithTimeout(context.WithoutCancel(ctx), finalWriteTimeout)
	defer finishCancel()

	exec.CleanupErr = m.cleanup(finishCtx, u, uctx, final)

	if err := m.opts.Store.Put(finishCtx, id, final); err != nil {
		return exec, fmt.Errorf("failed to record result of %s: %w", id, err)
	}
	metrics.ObserveRun(id, state)
	m.emit(model.NewUpgradeEvent(model.UpgradeEventKindFinished, id, runID, final, m.opts.Source))

	return exec, nil
}

// runSteps executes the steps in order and returns the final state
func (m *Manager) runSteps(ctx context.Context, u Upgrade, uctx *Context, exec *Execution) model.UpgradeState {
	total := len(u.Steps)
	for i, step := range u.Steps {
		if err := context.Cause(ctx); err != nil {
			uctx.SetResult(model.ResultKeyFailedStep, step.ID())
			uctx.SetResult(model.ResultKeyError, err.Error())
			uctx.Report.Addf("Upgrade cancelled before step %d/%d: %s", i+1, total, step.ID())
			return model.UpgradeStateAborted
		}

		if step.Skip(uctx) {
			uctx.Report.Addf("Skipping step %d/%d: %s", i+1, total, step.ID())
			sr := StepResult{StepID: step.ID(), Result: model.StepOutcomeSkipped, Action: ActionContinue}
			m.record(uctx, exec, sr)
			m.emitStep(model.NewStepEvent(uctx.UpgradeID, uctx.RunID, step.ID(), model.StepOutcomeSkipped, 0, 0, "", m.opts.Source))
			continue
		}

		uctx.Report.Addf("Executing step %d/%d: %s...", i+1, total, step.ID())
		sr := m.executeStep(ctx, step, uctx)
		m.record(uctx, exec, sr)

		if sr.Result == model.StepOutcomeFailed {
			if ctx.Err() != nil {
				uctx.SetResult(model.ResultKeyFailedStep, step.ID())
				uctx.SetResult(model.ResultKeyError, context.Cause(ctx).Error())
				uctx.Report.Addf("Upgrade cancelled during step %d/%d: %s", i+1, total, step.ID())
				return model.UpgradeStateAborted
			}
			if step.IsOptional() {
				uctx.Report.Addf("Failed optional step %d/%d: %s, continuing", i+1, total, step.ID())
				continue
			}
			uctx.SetResult(model.ResultKeyFailedStep, step.ID())
			uctx.SetResult(model.ResultKeyError, sr.Err.Error())
			uctx.Report.Addf("Failed step %d/%d: %s after %d attempts", i+1, total, step.ID(), sr.Attempts)
			return model.UpgradeStateFailed
		}

		if sr.Action == ActionAbort {
			uctx.SetResult(model.ResultKeyFailedStep, step.ID())
			uctx.SetResult(model.ResultKeyError, "aborted by step "+step.ID())
			uctx.Report.Addf("Step %d/%d: %s requested abort", i+1, total, step.ID())
			return model.UpgradeStateAborted
		}

		uctx.Report.Addf("Completed step %d/%d: %s successfully", i+1, total, step.ID())
	}
	return model.UpgradeStateSucceeded
}

// executeStep makes up to Retries()+1 attempts
func (m *Manager) executeStep(ctx context.Context, step Step, uctx *Context) StepResult {
	attempts := step.Retries() + 1
	if attempts < 1 {
		attempts = 1
	}

	sr := StepResult{StepID: step.ID()}
	started := time.Now()
	for attempt := 1; attempt <= attempts; attempt++ {
		attemptStart := time.Now()
		action, err := m.attempt(ctx, step, uctx)
		elapsed := time.Since(attemptStart)
		sr.Attempts = attempt

		outcome := model.StepOutcomeSucceeded
		message := ""
		if err != nil {
			outcome = model.StepOutcomeFailed
			message = err.Error()
		}
		metrics.ObserveStep(uctx.UpgradeID, step.ID(), outcome, elapsed)
		m.emitStep(model.NewStepEvent(uctx.UpgradeID, uctx.RunID, step.ID(), outcome, attempt, elapsed, message, m.opts.Source))

		if err == nil {
			if action == "" {
				action = ActionContinue
			}
			sr.Result = model.StepOutcomeSucceeded
			sr.Action = action
			sr.Err = nil
			break
		}

		log.FromContext(ctx).Error(err, "Step attempt failed", "step", step.ID(), "attempt", attempt, "attempts", attempts)
		sr.Result = model.StepOutcomeFailed
		sr.Action = ActionContinue
		sr.Err = err
		if ctx.Err() != nil {
			break
		}
	}
	sr.Duration = time.Since(started)
	return sr
}

func (m *Manager) attempt(ctx context.Context, step Step, uctx *Context) (action Action, err error) {
	defer func() {
		if r := recover(); r != nil {
			action = ActionContinue
			err = fmt.Errorf("step %s panicked: %v", step.ID(), r)
		}
	}()
	return step.Execute(ctx, uctx)
}

func (m *Manager) cleanup(ctx context.Context, u Upgrade, uctx *Context, result model.UpgradeResult) error {
	var errs error
	for _, c := range u.CleanupSteps {
		if err := c.Execute(ctx, uctx, result.Clone()); err != nil {
			log.FromContext(ctx).Error(err, "Cleanup step failed", "step", c.ID())
			uctx.Report.Addf("Cleanup step %s failed: %v", c.ID(), err)
			errs = multierr.Append(errs, fmt.Errorf("cleanup %s: %w", c.ID(), err))
		}
	}
	return errs
}

func (m *Manager) record(uctx *Context, exec *Execution, sr StepResult) {
	uctx.StepResults = append(uctx.StepResults, sr)
	exec.StepResults = append(exec.StepResults, sr)
}

func (m *Manager) emit(event model.UpgradeEvent) {
	if m.opts.Events != nil {
		m.opts.Events <- event
	}
}

func (m *Manager) emitStep(event model.StepEvent) {
	if m.opts.StepEvents != nil {
		m.opts.StepEvents <- event
	}
}
