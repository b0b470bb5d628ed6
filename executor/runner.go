package executor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bowerbird-app/captain-hook-sub005/core"
)

// Outcome classifies one execution pass over an action row.
type Outcome string

const (
	// OutcomeSkipped means the row was already terminal or another worker
	// holds the lock. Skips are normal under redelivery and racing workers.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeProcessed means the action invoked successfully.
	OutcomeProcessed Outcome = "processed"
	// OutcomeRetryScheduled means the attempt failed with budget remaining.
	OutcomeRetryScheduled Outcome = "retry_scheduled"
	// OutcomeFailed means the attempt failed and exhausted the budget.
	OutcomeFailed Outcome = "failed"
)

// Runner drives one action row through
// pending -> processing -> processed|failed. Correctness rests on the
// store's conditional acquire: everything after a successful Acquire runs
// under an exclusive claim.
type Runner struct {
	Events    core.EventStore
	Actions   core.ActionStore
	Registry  *core.ActionRegistry
	Invokers  *core.InvokerRegistry
	Scheduler core.Scheduler
	Observer  core.Observer
	Defaults  core.DispatchConfig
	Now       func() time.Time
}

func NewRunner(deps core.EngineDependencies, cfg core.Config) *Runner {
	now := deps.Now
	if now == nil {
		now = func() time.Time {
			return time.Now().UTC()
		}
	}
	return &Runner{
		Events:    deps.EventStore,
		Actions:   deps.ActionStore,
		Registry:  deps.ActionRegistry,
		Invokers:  deps.InvokerRegistry,
		Scheduler: deps.Scheduler,
		Observer:  core.Observer{Logger: deps.Logger, Metrics: deps.MetricsRecorder},
		Defaults:  cfg.Dispatch,
		Now:       now,
	}
}

// Run satisfies core.TaskRunner for scheduler callbacks.
func (r *Runner) Run(ctx context.Context, task core.ScheduledTask) error {
	_, err := r.Execute(ctx, task)
	return err
}

// Execute performs one attempt for the task's action row. Duplicate and
// concurrent invocations are safe: losers of the acquire race skip.
func (r *Runner) Execute(ctx context.Context, task core.ScheduledTask) (outcome Outcome, err error) {
	if r == nil {
		return OutcomeSkipped, fmt.Errorf("executor: runner is nil")
	}
	if r.Events == nil || r.Actions == nil {
		return OutcomeSkipped, fmt.Errorf("executor: runner requires event and action stores")
	}

	startedAt := r.now()
	workerID := strings.TrimSpace(task.WorkerID)
	if workerID == "" {
		workerID = uuid.NewString()
	}
	fields := map[string]any{
		"action_id": task.ActionID,
		"event_id":  task.EventID,
		"worker_id": workerID,
	}
	defer func() {
		fields["outcome"] = string(outcome)
		r.Observer.ObserveOperation(ctx, startedAt, "action_execute", err, fields)
	}()

	row, err := r.Actions.Get(ctx, task.ActionID)
	if err != nil {
		return OutcomeSkipped, err
	}
	fields["action_class"] = row.ActionClass
	if row.Status == core.ActionStatusProcessed {
		return OutcomeSkipped, nil
	}

	claim, err := r.Actions.Acquire(ctx, row.ID, workerID, row.LockVersion)
	if err != nil {
		return OutcomeSkipped, err
	}
	if !claim.Acquired {
		return OutcomeSkipped, nil
	}

	attempted, err := r.Actions.IncrementAttempt(ctx, row.ID)
	if err != nil {
		return OutcomeSkipped, err
	}
	fields["attempt"] = attempted.AttemptCount

	event, err := r.Events.Get(ctx, row.EventID)
	if err != nil {
		// Without the event there is nothing to invoke against; fail the
		// attempt so the retry budget still bounds it.
		return r.settleFailure(ctx, event, attempted, err)
	}
	fields["provider"] = event.Provider

	invokeErr := r.invoke(ctx, event, attempted)
	if invokeErr == nil {
		if err := r.Actions.MarkProcessed(ctx, row.ID); err != nil {
			return OutcomeSkipped, err
		}
		if _, err := r.Events.RecalculateStatus(ctx, event.ID); err != nil {
			return OutcomeProcessed, err
		}
		return OutcomeProcessed, nil
	}
	return r.settleFailure(ctx, event, attempted, invokeErr)
}

func (r *Runner) invoke(ctx context.Context, event core.IncomingEvent, row core.EventAction) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("executor: action panicked: %v", recovered)
		}
	}()

	if r.Invokers == nil {
		return fmt.Errorf("executor: no invoker registry configured")
	}
	action, ok := r.Invokers.Resolve(row.ActionClass)
	if !ok {
		return fmt.Errorf("executor: no invoker registered for %s", row.ActionClass)
	}
	return action.Invoke(ctx, event, event.Payload, event.Metadata)
}

// settleFailure records the failed attempt and decides between terminal
// failure and a scheduled retry.
func (r *Runner) settleFailure(ctx context.Context, event core.IncomingEvent, row core.EventAction, cause error) (Outcome, error) {
	message := core.TruncateError(cause)
	if err := r.Actions.MarkFailed(ctx, row.ID, message); err != nil {
		return OutcomeSkipped, err
	}

	config, budget := r.resolveConfig(event, row)
	if row.AttemptCount >= budget {
		if event.ID != "" {
			if _, err := r.Events.RecalculateStatus(ctx, event.ID); err != nil {
				return OutcomeFailed, err
			}
		}
		return OutcomeFailed, nil
	}

	delay := config.RetryDelay(row.AttemptCount)
	nextAttemptAt := r.now().Add(delay)
	if err := r.Actions.ResetForRetry(ctx, row.ID, nextAttemptAt); err != nil {
		return OutcomeSkipped, err
	}
	if event.ID != "" {
		if _, err := r.Events.RecalculateStatus(ctx, event.ID); err != nil {
			return OutcomeRetryScheduled, err
		}
	}

	if r.Scheduler != nil {
		task := core.ScheduledTask{
			ActionID: row.ID,
			EventID:  row.EventID,
			WorkerID: uuid.NewString(),
			Attempt:  row.AttemptCount + 1,
		}
		if err := r.Scheduler.ScheduleAfter(ctx, delay, task); err != nil {
			return OutcomeRetryScheduled, err
		}
	}
	return OutcomeRetryScheduled, nil
}

// resolveConfig finds the action's registered config, preferring the exact
// event type binding over the wildcard, and falls back to dispatch defaults
// when nothing is registered anymore.
func (r *Runner) resolveConfig(event core.IncomingEvent, row core.EventAction) (core.ActionConfig, int) {
	fallback := core.ActionConfig{
		Provider:    event.Provider,
		EventType:   event.EventType,
		ActionClass: row.ActionClass,
		MaxAttempts: r.Defaults.DefaultMaxAttempts,
	}
	if r.Defaults.DefaultRetryDelay > 0 {
		fallback.RetryDelays = []time.Duration{r.Defaults.DefaultRetryDelay}
	}

	if r.Registry == nil {
		return fallback, fallback.Attempts()
	}
	if config, ok := r.Registry.Find(event.Provider, event.EventType, row.ActionClass); ok {
		return config, config.Attempts()
	}
	if config, ok := r.Registry.Find(event.Provider, core.WildcardEventType, row.ActionClass); ok {
		return config, config.Attempts()
	}
	return fallback, fallback.Attempts()
}

func (r *Runner) now() time.Time {
	if r != nil && r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}
