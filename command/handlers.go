package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"

	"github.com/bowerbird-app/captain-hook-sub005/core"
	"github.com/bowerbird-app/captain-hook-sub005/executor"
	"github.com/bowerbird-app/captain-hook-sub005/intake"
)

// IntakeService is the mutating surface of the intake orchestrator.
type IntakeService interface {
	Accept(ctx context.Context, req intake.AcceptRequest) (intake.AcceptResult, error)
}

// ActionExecutor performs one attempt for a scheduled task.
type ActionExecutor interface {
	Execute(ctx context.Context, task core.ScheduledTask) (executor.Outcome, error)
}

type ProcessWebhookCommand struct {
	service IntakeService
}

func NewProcessWebhookCommand(service IntakeService) *ProcessWebhookCommand {
	return &ProcessWebhookCommand{service: service}
}

func (c *ProcessWebhookCommand) Execute(ctx context.Context, msg ProcessWebhookMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: intake service is required")
	}
	out, err := c.service.Accept(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type ExecuteActionCommand struct {
	runner ActionExecutor
}

func NewExecuteActionCommand(runner ActionExecutor) *ExecuteActionCommand {
	return &ExecuteActionCommand{runner: runner}
}

func (c *ExecuteActionCommand) Execute(ctx context.Context, msg ExecuteActionMessage) error {
	if c == nil || c.runner == nil {
		return commandDependencyError("command: action executor is required")
	}
	outcome, err := c.runner.Execute(ctx, msg.Task)
	if err != nil {
		return err
	}
	storeResult(ctx, outcome)
	return nil
}

type UpsertProviderCommand struct {
	providers core.ProviderStore
}

func NewUpsertProviderCommand(providers core.ProviderStore) *UpsertProviderCommand {
	return &UpsertProviderCommand{providers: providers}
}

func (c *UpsertProviderCommand) Execute(ctx context.Context, msg UpsertProviderMessage) error {
	if c == nil || c.providers == nil {
		return commandDependencyError("command: provider store is required")
	}
	return c.providers.Upsert(ctx, msg.Config)
}

// UpsertActionConfigCommand writes the binding to the durable store and the
// in-process registry together, so lookups see it immediately.
type UpsertActionConfigCommand struct {
	configs  core.ActionConfigStore
	registry *core.ActionRegistry
}

func NewUpsertActionConfigCommand(configs core.ActionConfigStore, registry *core.ActionRegistry) *UpsertActionConfigCommand {
	return &UpsertActionConfigCommand{configs: configs, registry: registry}
}

func (c *UpsertActionConfigCommand) Execute(ctx context.Context, msg UpsertActionConfigMessage) error {
	if c == nil || c.configs == nil || c.registry == nil {
		return commandDependencyError("command: action config store and registry are required")
	}
	if err := c.configs.Upsert(ctx, msg.Config); err != nil {
		return err
	}
	return c.registry.Register(msg.Config)
}

type RemoveActionConfigCommand struct {
	configs  core.ActionConfigStore
	registry *core.ActionRegistry
}

func NewRemoveActionConfigCommand(configs core.ActionConfigStore, registry *core.ActionRegistry) *RemoveActionConfigCommand {
	return &RemoveActionConfigCommand{configs: configs, registry: registry}
}

func (c *RemoveActionConfigCommand) Execute(ctx context.Context, msg RemoveActionConfigMessage) error {
	if c == nil || c.configs == nil || c.registry == nil {
		return commandDependencyError("command: action config store and registry are required")
	}
	if err := c.configs.SoftDelete(ctx, msg.Provider, msg.EventType, msg.ActionClass); err != nil {
		return err
	}
	return c.registry.Deregister(msg.Provider, msg.EventType, msg.ActionClass)
}

type ArchiveEventCommand struct {
	events core.EventStore
}

func NewArchiveEventCommand(events core.EventStore) *ArchiveEventCommand {
	return &ArchiveEventCommand{events: events}
}

func (c *ArchiveEventCommand) Execute(ctx context.Context, msg ArchiveEventMessage) error {
	if c == nil || c.events == nil {
		return commandDependencyError("command: event store is required")
	}
	return c.events.Archive(ctx, msg.EventID)
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
