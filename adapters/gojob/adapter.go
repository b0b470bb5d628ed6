package gojob

import (
	"context"
	"fmt"
	"strings"
	"time"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	glog "github.com/goliatone/go-logger/glog"

	"github.com/bowerbird-app/captain-hook-sub005/adapters/gologger"
	"github.com/bowerbird-app/captain-hook-sub005/core"
)

// JobIDExecuteAction identifies the action execution job on the queue.
const JobIDExecuteAction = "captainhook.action.execute"

const paramNotBefore = "not_before"

// RetryPolicy defines queue retry bounds to avoid unbounded retry loops.
type RetryPolicy struct {
	MaxAttempts     int
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

// NormalizeAttempt enforces bounded retry behavior for a nack operation.
func (p RetryPolicy) NormalizeAttempt(opts queue.NackOptions, attempt int) queue.NackOptions {
	out := opts
	out.Reason = strings.TrimSpace(out.Reason)
	if out.Delay < 0 {
		out.Delay = 0
	}
	if p.MaxDelay > 0 && out.Delay > p.MaxDelay {
		out.Delay = p.MaxDelay
	}
	if out.DeadLetter {
		out.Requeue = false
	}
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		out.Requeue = false
		if p.DeadLetterOnMax || out.DeadLetter {
			out.DeadLetter = true
		}
	}
	if !out.Requeue && !out.DeadLetter {
		out.Requeue = true
	}
	return out
}

// ToExecutionMessage maps a scheduled task to the go-job wire message.
// The not-before timestamp travels in the parameters: the consumer defers
// early deliveries with a delayed nack.
func ToExecutionMessage(task core.ScheduledTask, notBefore time.Time) *job.ExecutionMessage {
	parameters := map[string]any{
		"action_id": strings.TrimSpace(task.ActionID),
		"event_id":  strings.TrimSpace(task.EventID),
		"worker_id": strings.TrimSpace(task.WorkerID),
		"attempt":   task.Attempt,
	}
	if !notBefore.IsZero() {
		parameters[paramNotBefore] = notBefore.UTC().Format(time.RFC3339Nano)
	}
	return &job.ExecutionMessage{
		JobID:          JobIDExecuteAction,
		Parameters:     parameters,
		IdempotencyKey: fmt.Sprintf("%s::%d", strings.TrimSpace(task.ActionID), task.Attempt),
	}
}

// TaskFromMessage rebuilds the scheduled task and its not-before time from
// a queue message. Parameters survive a JSON round-trip, so numbers may
// arrive as float64.
func TaskFromMessage(msg *job.ExecutionMessage) (core.ScheduledTask, time.Time, error) {
	if msg == nil {
		return core.ScheduledTask{}, time.Time{}, fmt.Errorf("gojob: execution message is required")
	}
	task := core.ScheduledTask{
		ActionID: paramString(msg.Parameters, "action_id"),
		EventID:  paramString(msg.Parameters, "event_id"),
		WorkerID: paramString(msg.Parameters, "worker_id"),
		Attempt:  paramInt(msg.Parameters, "attempt"),
	}
	if task.ActionID == "" {
		return core.ScheduledTask{}, time.Time{}, fmt.Errorf("gojob: action id parameter is required")
	}

	var notBefore time.Time
	if raw := paramString(msg.Parameters, paramNotBefore); raw != "" {
		parsed, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return core.ScheduledTask{}, time.Time{}, fmt.Errorf("gojob: invalid not-before parameter %q: %w", raw, err)
		}
		notBefore = parsed.UTC()
	}
	return task, notBefore, nil
}

// SchedulerAdapter satisfies core.Scheduler on top of a go-job enqueuer.
type SchedulerAdapter struct {
	enqueuer queue.Enqueuer
	logger   job.Logger
	now      func() time.Time
}

type SchedulerOption func(*SchedulerAdapter)

// WithSchedulerLogger bridges the engine's glog logger onto the queue side.
func WithSchedulerLogger(provider glog.LoggerProvider, logger glog.Logger) SchedulerOption {
	return func(a *SchedulerAdapter) {
		a.logger = gologger.QueueLogger(provider, logger)
	}
}

func NewSchedulerAdapter(enqueuer queue.Enqueuer, opts ...SchedulerOption) *SchedulerAdapter {
	adapter := &SchedulerAdapter{
		enqueuer: enqueuer,
		logger:   gologger.QueueLogger(nil, nil),
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(adapter)
	}
	return adapter
}

func (a *SchedulerAdapter) ScheduleAfter(ctx context.Context, delay time.Duration, task core.ScheduledTask) error {
	if a == nil || a.enqueuer == nil {
		return fmt.Errorf("gojob: enqueuer is not configured")
	}
	if strings.TrimSpace(task.ActionID) == "" {
		return fmt.Errorf("gojob: task action id is required")
	}
	var notBefore time.Time
	if delay > 0 {
		notBefore = a.now().Add(delay)
	}
	if err := a.enqueuer.Enqueue(ctx, ToExecutionMessage(task, notBefore)); err != nil {
		if a.logger != nil {
			a.logger.Error("enqueue failed",
				"action_id", task.ActionID,
				"attempt", task.Attempt,
				"error", err.Error(),
			)
		}
		return err
	}
	return nil
}

// ConsumerAdapter drains the queue into a task runner. Deliveries that
// arrive before their scheduled time go back with a delayed requeue, so
// at-least-once redelivery never runs an action early.
type ConsumerAdapter struct {
	dequeuer queue.Dequeuer
	runner   core.TaskRunner
	policy   RetryPolicy
	logger   job.Logger
	now      func() time.Time
}

type ConsumerOption func(*ConsumerAdapter)

// WithConsumerLogger bridges the engine's glog logger onto the queue side,
// so nacked and dead-lettered deliveries show up in the host's logs.
func WithConsumerLogger(provider glog.LoggerProvider, logger glog.Logger) ConsumerOption {
	return func(a *ConsumerAdapter) {
		a.logger = gologger.QueueLogger(provider, logger)
	}
}

func NewConsumerAdapter(dequeuer queue.Dequeuer, runner core.TaskRunner, policy RetryPolicy, opts ...ConsumerOption) *ConsumerAdapter {
	adapter := &ConsumerAdapter{
		dequeuer: dequeuer,
		runner:   runner,
		policy:   policy,
		logger:   gologger.QueueLogger(nil, nil),
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(adapter)
	}
	return adapter
}

// ProcessOne handles a single delivery end to end.
func (a *ConsumerAdapter) ProcessOne(ctx context.Context) error {
	if a == nil || a.dequeuer == nil || a.runner == nil {
		return fmt.Errorf("gojob: consumer is not configured")
	}
	delivery, err := a.dequeuer.Dequeue(ctx)
	if err != nil {
		return err
	}

	task, notBefore, err := TaskFromMessage(delivery.Message())
	if err != nil {
		if a.logger != nil {
			a.logger.Error("malformed delivery dead-lettered", "error", err.Error())
		}
		return delivery.Nack(ctx, queue.NackOptions{
			DeadLetter: true,
			Reason:     err.Error(),
		})
	}

	if remaining := notBefore.Sub(a.now()); remaining > 0 {
		if a.logger != nil {
			a.logger.Info("delivery not due yet, requeueing",
				"action_id", task.ActionID,
				"delay", remaining.String(),
			)
		}
		return delivery.Nack(ctx, a.policy.NormalizeAttempt(queue.NackOptions{
			Delay:   remaining,
			Requeue: true,
			Reason:  "not due yet",
		}, task.Attempt))
	}

	if runErr := a.runner.Run(ctx, task); runErr != nil {
		if a.logger != nil {
			a.logger.Error("task run failed",
				"action_id", task.ActionID,
				"attempt", task.Attempt,
				"error", runErr.Error(),
			)
		}
		return delivery.Nack(ctx, a.policy.NormalizeAttempt(queue.NackOptions{
			Requeue: true,
			Reason:  runErr.Error(),
		}, task.Attempt))
	}
	return delivery.Ack(ctx)
}

func paramString(parameters map[string]any, key string) string {
	value, ok := parameters[key]
	if !ok {
		return ""
	}
	text, ok := value.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(text)
}

func paramInt(parameters map[string]any, key string) int {
	switch value := parameters[key].(type) {
	case int:
		return value
	case int64:
		return int(value)
	case float64:
		return int(value)
	default:
		return 0
	}
}

var _ core.Scheduler = (*SchedulerAdapter)(nil)
