package executor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bowerbird-app/captain-hook-sub005/core"
)

type runnerFixture struct {
	events   *core.MemoryEventStore
	actions  *core.MemoryActionStore
	registry *core.ActionRegistry
	invokers *core.InvokerRegistry
	runner   *Runner
}

func newRunnerFixture(t *testing.T) *runnerFixture {
	t.Helper()
	events := core.NewMemoryEventStore()
	actions := core.NewMemoryActionStore()
	events.BindActionStore(actions)
	registry := core.NewActionRegistry()
	invokers := core.NewInvokerRegistry()
	runner := &Runner{
		Events:   events,
		Actions:  actions,
		Registry: registry,
		Invokers: invokers,
		Defaults: core.DefaultConfig().Dispatch,
	}
	return &runnerFixture{
		events:   events,
		actions:  actions,
		registry: registry,
		invokers: invokers,
		runner:   runner,
	}
}

func (f *runnerFixture) seed(t *testing.T, config core.ActionConfig) (core.IncomingEvent, core.EventAction) {
	t.Helper()
	ctx := context.Background()
	if err := f.registry.Register(config); err != nil {
		t.Fatalf("register config: %v", err)
	}
	event, _, err := f.events.Admit(ctx, core.AdmitEventInput{
		Provider:   config.Provider,
		ExternalID: "evt_" + config.ActionClass,
		EventType:  config.EventType,
		Payload:    map[string]any{"amount": 42},
	})
	if err != nil {
		t.Fatalf("admit event: %v", err)
	}
	rows, err := f.actions.CreateForEvent(ctx, event.ID, []core.ActionConfig{config})
	if err != nil {
		t.Fatalf("create actions: %v", err)
	}
	return event, rows[0]
}

func TestRunner_SuccessfulExecution(t *testing.T) {
	fixture := newRunnerFixture(t)
	config := core.ActionConfig{Provider: "stripe", EventType: "charge.succeeded", ActionClass: "billing.Settle"}
	event, row := fixture.seed(t, config)

	var invoked atomic.Int64
	if err := fixture.invokers.Register("billing.Settle", core.ActionFunc(
		func(_ context.Context, got core.IncomingEvent, payload map[string]any, _ map[string]any) error {
			invoked.Add(1)
			if got.ID != event.ID {
				t.Errorf("unexpected event: %q", got.ID)
			}
			if payload["amount"] != 42 {
				t.Errorf("unexpected payload: %v", payload)
			}
			return nil
		},
	)); err != nil {
		t.Fatalf("register invoker: %v", err)
	}

	ctx := context.Background()
	outcome, err := fixture.runner.Execute(ctx, core.ScheduledTask{ActionID: row.ID, EventID: event.ID})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if outcome != OutcomeProcessed {
		t.Fatalf("expected processed outcome, got %q", outcome)
	}
	if invoked.Load() != 1 {
		t.Fatalf("expected one invocation, got %d", invoked.Load())
	}

	stored, err := fixture.actions.Get(ctx, row.ID)
	if err != nil {
		t.Fatalf("get action: %v", err)
	}
	if stored.Status != core.ActionStatusProcessed {
		t.Fatalf("expected processed status, got %q", stored.Status)
	}
	if stored.AttemptCount != 1 {
		t.Fatalf("expected one attempt recorded, got %d", stored.AttemptCount)
	}
	if stored.LockedAt != nil || stored.LockedBy != "" {
		t.Fatalf("expected lock released, got %+v", stored)
	}

	refreshed, err := fixture.events.Get(ctx, event.ID)
	if err != nil {
		t.Fatalf("get event: %v", err)
	}
	if refreshed.Status != core.EventStatusCompleted {
		t.Fatalf("expected completed event, got %q", refreshed.Status)
	}
}

func TestRunner_RedeliveryOfProcessedRowSkips(t *testing.T) {
	fixture := newRunnerFixture(t)
	config := core.ActionConfig{Provider: "stripe", EventType: "charge.succeeded", ActionClass: "billing.Settle"}
	event, row := fixture.seed(t, config)

	var invoked atomic.Int64
	_ = fixture.invokers.Register("billing.Settle", core.ActionFunc(
		func(context.Context, core.IncomingEvent, map[string]any, map[string]any) error {
			invoked.Add(1)
			return nil
		},
	))

	ctx := context.Background()
	task := core.ScheduledTask{ActionID: row.ID, EventID: event.ID}
	if _, err := fixture.runner.Execute(ctx, task); err != nil {
		t.Fatalf("first execute: %v", err)
	}
	outcome, err := fixture.runner.Execute(ctx, task)
	if err != nil {
		t.Fatalf("second execute: %v", err)
	}
	if outcome != OutcomeSkipped {
		t.Fatalf("expected redelivery to skip, got %q", outcome)
	}
	if invoked.Load() != 1 {
		t.Fatalf("expected single invocation, got %d", invoked.Load())
	}
	stored, _ := fixture.actions.Get(ctx, row.ID)
	if stored.AttemptCount != 1 {
		t.Fatalf("expected attempt count unchanged, got %d", stored.AttemptCount)
	}
}

func TestRunner_ConcurrentWorkersInvokeOnce(t *testing.T) {
	fixture := newRunnerFixture(t)
	config := core.ActionConfig{Provider: "stripe", EventType: "charge.succeeded", ActionClass: "billing.Settle"}
	event, row := fixture.seed(t, config)

	var invoked atomic.Int64
	_ = fixture.invokers.Register("billing.Settle", core.ActionFunc(
		func(context.Context, core.IncomingEvent, map[string]any, map[string]any) error {
			invoked.Add(1)
			time.Sleep(20 * time.Millisecond)
			return nil
		},
	))

	const workers = 8
	var wg sync.WaitGroup
	outcomes := make(chan Outcome, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome, err := fixture.runner.Execute(context.Background(), core.ScheduledTask{
				ActionID: row.ID,
				EventID:  event.ID,
			})
			if err != nil {
				t.Errorf("execute: %v", err)
				return
			}
			outcomes <- outcome
		}()
	}
	wg.Wait()
	close(outcomes)

	processed := 0
	for outcome := range outcomes {
		if outcome == OutcomeProcessed {
			processed++
		}
	}
	if processed != 1 {
		t.Fatalf("expected exactly one winner, got %d", processed)
	}
	if invoked.Load() != 1 {
		t.Fatalf("expected exactly one invocation, got %d", invoked.Load())
	}
}

func TestRunner_RetryUntilBudgetExhausted(t *testing.T) {
	fixture := newRunnerFixture(t)
	config := core.ActionConfig{
		Provider:    "stripe",
		EventType:   "charge.succeeded",
		ActionClass: "billing.Settle",
		MaxAttempts: 3,
		RetryDelays: []time.Duration{time.Second, 5 * time.Second},
	}
	event, row := fixture.seed(t, config)

	var invoked atomic.Int64
	_ = fixture.invokers.Register("billing.Settle", core.ActionFunc(
		func(context.Context, core.IncomingEvent, map[string]any, map[string]any) error {
			invoked.Add(1)
			return errors.New("downstream unavailable")
		},
	))

	ctx := context.Background()
	task := core.ScheduledTask{ActionID: row.ID, EventID: event.ID}

	for attempt := 1; attempt <= 2; attempt++ {
		outcome, err := fixture.runner.Execute(ctx, task)
		if err != nil {
			t.Fatalf("attempt %d: %v", attempt, err)
		}
		if outcome != OutcomeRetryScheduled {
			t.Fatalf("attempt %d: expected retry scheduled, got %q", attempt, outcome)
		}
		stored, _ := fixture.actions.Get(ctx, row.ID)
		if stored.Status != core.ActionStatusPending {
			t.Fatalf("attempt %d: expected pending after reset, got %q", attempt, stored.Status)
		}
		if stored.NextAttemptAt == nil {
			t.Fatalf("attempt %d: expected next attempt scheduled", attempt)
		}
	}

	outcome, err := fixture.runner.Execute(ctx, task)
	if err != nil {
		t.Fatalf("final attempt: %v", err)
	}
	if outcome != OutcomeFailed {
		t.Fatalf("expected terminal failure, got %q", outcome)
	}
	if invoked.Load() != 3 {
		t.Fatalf("expected exactly 3 invocations, got %d", invoked.Load())
	}

	stored, _ := fixture.actions.Get(ctx, row.ID)
	if stored.Status != core.ActionStatusFailed {
		t.Fatalf("expected failed status, got %q", stored.Status)
	}
	if stored.ErrorMessage == "" {
		t.Fatalf("expected error message recorded")
	}

	refreshed, _ := fixture.events.Get(ctx, event.ID)
	if refreshed.Status != core.EventStatusFailed {
		t.Fatalf("expected failed event, got %q", refreshed.Status)
	}

	// The budget is spent; further deliveries must not invoke again.
	outcome, err = fixture.runner.Execute(ctx, task)
	if err != nil {
		t.Fatalf("post-budget execute: %v", err)
	}
	if invoked.Load() != 3 && outcome != OutcomeSkipped {
		t.Fatalf("expected no further invocations, got %d (%q)", invoked.Load(), outcome)
	}
}

func TestRunner_SingleAttemptBudgetFailsImmediately(t *testing.T) {
	fixture := newRunnerFixture(t)
	config := core.ActionConfig{
		Provider:    "stripe",
		EventType:   "charge.succeeded",
		ActionClass: "billing.Settle",
		MaxAttempts: 1,
	}
	event, row := fixture.seed(t, config)

	_ = fixture.invokers.Register("billing.Settle", core.ActionFunc(
		func(context.Context, core.IncomingEvent, map[string]any, map[string]any) error {
			return errors.New("hard failure")
		},
	))

	outcome, err := fixture.runner.Execute(context.Background(), core.ScheduledTask{
		ActionID: row.ID,
		EventID:  event.ID,
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if outcome != OutcomeFailed {
		t.Fatalf("expected immediate terminal failure, got %q", outcome)
	}
	stored, _ := fixture.actions.Get(context.Background(), row.ID)
	if stored.NextAttemptAt != nil {
		t.Fatalf("expected no retry scheduled, got %+v", stored)
	}
}

func TestRunner_PanicIsContainedAsFailure(t *testing.T) {
	fixture := newRunnerFixture(t)
	config := core.ActionConfig{
		Provider:    "stripe",
		EventType:   "charge.succeeded",
		ActionClass: "billing.Settle",
		MaxAttempts: 1,
	}
	event, row := fixture.seed(t, config)

	_ = fixture.invokers.Register("billing.Settle", core.ActionFunc(
		func(context.Context, core.IncomingEvent, map[string]any, map[string]any) error {
			panic("nil map write")
		},
	))

	outcome, err := fixture.runner.Execute(context.Background(), core.ScheduledTask{
		ActionID: row.ID,
		EventID:  event.ID,
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if outcome != OutcomeFailed {
		t.Fatalf("expected contained failure, got %q", outcome)
	}
	stored, _ := fixture.actions.Get(context.Background(), row.ID)
	if stored.ErrorMessage == "" {
		t.Fatalf("expected panic recorded as error message")
	}
}

func TestRunner_MissingInvokerFailsAttempt(t *testing.T) {
	fixture := newRunnerFixture(t)
	config := core.ActionConfig{
		Provider:    "stripe",
		EventType:   "charge.succeeded",
		ActionClass: "billing.Settle",
		MaxAttempts: 1,
	}
	event, row := fixture.seed(t, config)

	outcome, err := fixture.runner.Execute(context.Background(), core.ScheduledTask{
		ActionID: row.ID,
		EventID:  event.ID,
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if outcome != OutcomeFailed {
		t.Fatalf("expected failure for unregistered class, got %q", outcome)
	}
}
