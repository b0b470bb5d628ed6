package query

import (
	"context"
	"net/http"

	gocmd "github.com/goliatone/go-command"
	goerrors "github.com/goliatone/go-errors"

	"github.com/bowerbird-app/captain-hook-sub005/core"
)

// EventReader is the read-only slice of the event store queries need.
type EventReader interface {
	Get(ctx context.Context, id string) (core.IncomingEvent, error)
	Find(ctx context.Context, provider string, externalID string) (core.IncomingEvent, error)
}

type ActionReader interface {
	ListByEvent(ctx context.Context, eventID string) ([]core.EventAction, error)
}

type ActionConfigReader interface {
	ListByProvider(ctx context.Context, provider string) ([]core.ActionConfig, error)
}

type ProviderReader interface {
	List(ctx context.Context) ([]core.ProviderConfig, error)
}

type GetEventQuery struct {
	events EventReader
}

func NewGetEventQuery(events EventReader) *GetEventQuery {
	return &GetEventQuery{events: events}
}

func (q *GetEventQuery) Execute(ctx context.Context, msg GetEventMessage) error {
	if q == nil || q.events == nil {
		return queryDependencyError("query: event reader is required")
	}
	event, err := q.events.Get(ctx, msg.EventID)
	if err != nil {
		return err
	}
	storeResult(ctx, event)
	return nil
}

type FindEventQuery struct {
	events EventReader
}

func NewFindEventQuery(events EventReader) *FindEventQuery {
	return &FindEventQuery{events: events}
}

func (q *FindEventQuery) Execute(ctx context.Context, msg FindEventMessage) error {
	if q == nil || q.events == nil {
		return queryDependencyError("query: event reader is required")
	}
	event, err := q.events.Find(ctx, msg.Provider, msg.ExternalID)
	if err != nil {
		return err
	}
	storeResult(ctx, event)
	return nil
}

type ListEventActionsQuery struct {
	actions ActionReader
}

func NewListEventActionsQuery(actions ActionReader) *ListEventActionsQuery {
	return &ListEventActionsQuery{actions: actions}
}

func (q *ListEventActionsQuery) Execute(ctx context.Context, msg ListEventActionsMessage) error {
	if q == nil || q.actions == nil {
		return queryDependencyError("query: action reader is required")
	}
	actions, err := q.actions.ListByEvent(ctx, msg.EventID)
	if err != nil {
		return err
	}
	storeResult(ctx, actions)
	return nil
}

type ListActionConfigsQuery struct {
	configs ActionConfigReader
}

func NewListActionConfigsQuery(configs ActionConfigReader) *ListActionConfigsQuery {
	return &ListActionConfigsQuery{configs: configs}
}

func (q *ListActionConfigsQuery) Execute(ctx context.Context, msg ListActionConfigsMessage) error {
	if q == nil || q.configs == nil {
		return queryDependencyError("query: action config reader is required")
	}
	configs, err := q.configs.ListByProvider(ctx, msg.Provider)
	if err != nil {
		return err
	}
	storeResult(ctx, configs)
	return nil
}

type ListProvidersQuery struct {
	providers ProviderReader
}

func NewListProvidersQuery(providers ProviderReader) *ListProvidersQuery {
	return &ListProvidersQuery{providers: providers}
}

func (q *ListProvidersQuery) Execute(ctx context.Context, msg ListProvidersMessage) error {
	if q == nil || q.providers == nil {
		return queryDependencyError("query: provider reader is required")
	}
	providers, err := q.providers.List(ctx)
	if err != nil {
		return err
	}
	storeResult(ctx, providers)
	return nil
}

func queryDependencyError(message string) error {
	return goerrors.New(message, goerrors.CategoryInternal).
		WithCode(http.StatusInternalServerError).
		WithTextCode(core.HookErrorInternal)
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
