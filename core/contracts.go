package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// Logger contracts are aliased from go-logger so callers can hand us any
// glog-compatible logger without an adapter.
type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type NopMetricsRecorder struct{}

func (NopMetricsRecorder) IncCounter(context.Context, string, int64, map[string]string) {}

func (NopMetricsRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {}

// EventStore persists incoming events. Admit is the idempotent single
// round-trip admission: insert keyed on (provider, external_id), and on a
// uniqueness violation fetch the existing row, flip its dedup state to
// duplicate, and return created=false. The uniqueness constraint MUST live
// in the durable store, never as a check-then-insert.
type EventStore interface {
	Admit(ctx context.Context, input AdmitEventInput) (IncomingEvent, bool, error)
	Get(ctx context.Context, id string) (IncomingEvent, error)
	Find(ctx context.Context, provider string, externalID string) (IncomingEvent, error)
	RecalculateStatus(ctx context.Context, eventID string) (EventStatus, error)
	Archive(ctx context.Context, id string) error
}

// ActionStore persists per-action execution rows. Acquire is the sole
// concurrency-correctness mechanism: a single conditional write guarded by
// the row's lock version. The loser of a race observes Acquired=false.
type ActionStore interface {
	CreateForEvent(ctx context.Context, eventID string, configs []ActionConfig) ([]EventAction, error)
	Get(ctx context.Context, id string) (EventAction, error)
	ListByEvent(ctx context.Context, eventID string) ([]EventAction, error)
	Acquire(ctx context.Context, id string, workerID string, lockVersion int64) (AcquireResult, error)
	IncrementAttempt(ctx context.Context, id string) (EventAction, error)
	MarkProcessed(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, errorMessage string) error
	ResetForRetry(ctx context.Context, id string, nextAttemptAt time.Time) error
	ListDue(ctx context.Context, limit int, now time.Time) ([]EventAction, error)
}

// ProviderStore resolves per-provider intake policy. Lookup is on the hot
// path of every delivery.
type ProviderStore interface {
	Get(ctx context.Context, name string) (ProviderConfig, error)
	Upsert(ctx context.Context, config ProviderConfig) error
	List(ctx context.Context) ([]ProviderConfig, error)
}

// ActionConfigStore persists provider-level action bindings so registries
// can be rebuilt at startup.
type ActionConfigStore interface {
	Upsert(ctx context.Context, config ActionConfig) error
	ListByProvider(ctx context.Context, provider string) ([]ActionConfig, error)
	SoftDelete(ctx context.Context, provider string, eventType string, actionClass string) error
}

// Action is the invocation contract resolved from an action class
// identifier. Errors drive retry scheduling; they never propagate past the
// executor boundary.
type Action interface {
	Invoke(ctx context.Context, event IncomingEvent, payload map[string]any, metadata map[string]any) error
}

// ActionFunc adapts a plain function to the Action contract.
type ActionFunc func(ctx context.Context, event IncomingEvent, payload map[string]any, metadata map[string]any) error

func (f ActionFunc) Invoke(ctx context.Context, event IncomingEvent, payload map[string]any, metadata map[string]any) error {
	return f(ctx, event, payload, metadata)
}

// Scheduler is the async dispatch mechanism: eventually re-invoke the task
// after delay with at-least-once semantics. Duplicate invocation is safe.
type Scheduler interface {
	ScheduleAfter(ctx context.Context, delay time.Duration, task ScheduledTask) error
}

// TaskRunner is what a Scheduler invokes when a task comes due.
type TaskRunner interface {
	Run(ctx context.Context, task ScheduledTask) error
}

// RateCounterStore backs the fixed-window rate guard. Increment must be an
// atomic increment-and-return for the (provider, windowStart) bucket.
type RateCounterStore interface {
	Increment(ctx context.Context, provider string, windowStart time.Time) (int, error)
}
