package captainhook

import (
	"fmt"

	hookcommand "github.com/bowerbird-app/captain-hook-sub005/command"
	"github.com/bowerbird-app/captain-hook-sub005/core"
	hookquery "github.com/bowerbird-app/captain-hook-sub005/query"
)

// Commands bundles the message-bus write handlers.
type Commands struct {
	ProcessWebhook     *hookcommand.ProcessWebhookCommand
	ExecuteAction      *hookcommand.ExecuteActionCommand
	UpsertProvider     *hookcommand.UpsertProviderCommand
	UpsertActionConfig *hookcommand.UpsertActionConfigCommand
	RemoveActionConfig *hookcommand.RemoveActionConfigCommand
	ArchiveEvent       *hookcommand.ArchiveEventCommand
}

// Queries bundles the message-bus read handlers.
type Queries struct {
	GetEvent          *hookquery.GetEventQuery
	FindEvent         *hookquery.FindEventQuery
	ListEventActions  *hookquery.ListEventActionsQuery
	ListActionConfigs *hookquery.ListActionConfigsQuery
	ListProviders     *hookquery.ListProvidersQuery
}

// Facade exposes the stack through command and query handlers, for hosts
// that route everything over a message bus.
type Facade struct {
	stack    *Stack
	commands Commands
	queries  Queries
}

func NewFacade(stack *Stack) (*Facade, error) {
	if stack == nil || stack.Engine == nil {
		return nil, fmt.Errorf("captainhook: a wired stack is required")
	}
	deps := stack.Engine.Dependencies()

	facade := &Facade{stack: stack}
	facade.commands = Commands{
		ProcessWebhook:     hookcommand.NewProcessWebhookCommand(stack.Intake),
		ExecuteAction:      hookcommand.NewExecuteActionCommand(stack.Runner),
		UpsertProvider:     hookcommand.NewUpsertProviderCommand(deps.ProviderStore),
		UpsertActionConfig: hookcommand.NewUpsertActionConfigCommand(deps.ActionConfigStore, deps.ActionRegistry),
		RemoveActionConfig: hookcommand.NewRemoveActionConfigCommand(deps.ActionConfigStore, deps.ActionRegistry),
		ArchiveEvent:       hookcommand.NewArchiveEventCommand(deps.EventStore),
	}
	facade.queries = Queries{
		GetEvent:          hookquery.NewGetEventQuery(deps.EventStore),
		FindEvent:         hookquery.NewFindEventQuery(deps.EventStore),
		ListEventActions:  hookquery.NewListEventActionsQuery(deps.ActionStore),
		ListActionConfigs: hookquery.NewListActionConfigsQuery(deps.ActionConfigStore),
		ListProviders:     hookquery.NewListProvidersQuery(deps.ProviderStore),
	}
	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Stack() *Stack {
	if f == nil {
		return nil
	}
	return f.stack
}

func (f *Facade) Dependencies() core.EngineDependencies {
	if f == nil || f.stack == nil || f.stack.Engine == nil {
		return core.EngineDependencies{}
	}
	return f.stack.Engine.Dependencies()
}
