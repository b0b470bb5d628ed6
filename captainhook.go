// Package captainhook is a webhook intake and action dispatch engine:
// signed deliveries are verified, admitted exactly once per
// (provider, external id), and fanned out to registered actions with
// priority ordering, retry with backoff, and optimistic-lock concurrency
// control.
package captainhook

import (
	"github.com/bowerbird-app/captain-hook-sub005/core"
	"github.com/bowerbird-app/captain-hook-sub005/executor"
	"github.com/bowerbird-app/captain-hook-sub005/intake"
	"github.com/bowerbird-app/captain-hook-sub005/verifiers"
)

type Config = core.Config

type DispatchConfig = core.DispatchConfig

type Option = core.Option

type Engine = core.Engine

type EngineDependencies = core.EngineDependencies

type IncomingEvent = core.IncomingEvent
type EventAction = core.EventAction
type ActionConfig = core.ActionConfig
type ProviderConfig = core.ProviderConfig
type ScheduledTask = core.ScheduledTask
type Action = core.Action
type ActionFunc = core.ActionFunc

type AcceptRequest = intake.AcceptRequest
type AcceptResult = intake.AcceptResult

var (
	WithLogger            = core.WithLogger
	WithLoggerProvider    = core.WithLoggerProvider
	WithMetricsRecorder   = core.WithMetricsRecorder
	WithErrorFactory      = core.WithErrorFactory
	WithErrorMapper       = core.WithErrorMapper
	WithPersistenceClient = core.WithPersistenceClient
	WithRepositoryFactory = core.WithRepositoryFactory
	WithConfigProvider    = core.WithConfigProvider
	WithOptionsResolver   = core.WithOptionsResolver
	WithEventStore        = core.WithEventStore
	WithActionStore       = core.WithActionStore
	WithProviderStore     = core.WithProviderStore
	WithActionConfigStore = core.WithActionConfigStore
	WithRateCounterStore  = core.WithRateCounterStore
	WithScheduler         = core.WithScheduler
	WithActionRegistry    = core.WithActionRegistry
	WithInvokerRegistry   = core.WithInvokerRegistry
	WithClock             = core.WithClock
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewEngine(cfg Config, opts ...Option) (*Engine, error) {
	return core.NewEngine(cfg, opts...)
}

func Setup(cfg Config, opts ...Option) (*Engine, error) {
	return core.Setup(cfg, opts...)
}

// Stack is the fully wired runtime: the engine plus the intake service and
// execution machinery running on its resolved dependencies.
type Stack struct {
	Engine    *core.Engine
	Intake    *intake.Service
	Runner    *executor.Runner
	Worker    *executor.Worker
	Scheduler *executor.TimerScheduler
}

// NewStack builds an engine and wires intake, runner, worker, and a timer
// scheduler around it. When no scheduler option was provided, async
// dispatch uses the in-process timer scheduler.
func NewStack(cfg Config, opts ...Option) (*Stack, error) {
	engine, err := core.NewEngine(cfg, opts...)
	if err != nil {
		return nil, err
	}
	deps := engine.Dependencies()

	runner := executor.NewRunner(deps, engine.Config())
	var timers *executor.TimerScheduler
	if deps.Scheduler == nil {
		timers = executor.NewTimerScheduler(runner)
		timers.Observer = engine.Observer()
		deps.Scheduler = timers
		runner.Scheduler = timers
	}

	service := intake.New(deps, runner, verifiers.DefaultRegistry())
	worker := executor.NewWorker(runner, engine.Config().Dispatch)
	worker.Observer = engine.Observer()

	return &Stack{
		Engine:    engine,
		Intake:    service,
		Runner:    runner,
		Worker:    worker,
		Scheduler: timers,
	}, nil
}

// Close releases stack-owned resources. It waits for in-flight timer
// callbacks to settle.
func (s *Stack) Close() {
	if s == nil || s.Scheduler == nil {
		return
	}
	s.Scheduler.Close()
}
