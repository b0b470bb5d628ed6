package query

import (
	"fmt"
	"strings"
)

const (
	TypeGetEvent          = "captainhook.query.event.get"
	TypeFindEvent         = "captainhook.query.event.find"
	TypeListEventActions  = "captainhook.query.event.actions"
	TypeListActionConfigs = "captainhook.query.action_config.list"
	TypeListProviders     = "captainhook.query.provider.list"
)

type GetEventMessage struct {
	EventID string
}

func (GetEventMessage) Type() string { return TypeGetEvent }

func (m GetEventMessage) Validate() error {
	if strings.TrimSpace(m.EventID) == "" {
		return fmt.Errorf("query: event id is required")
	}
	return nil
}

type FindEventMessage struct {
	Provider   string
	ExternalID string
}

func (FindEventMessage) Type() string { return TypeFindEvent }

func (m FindEventMessage) Validate() error {
	if strings.TrimSpace(m.Provider) == "" {
		return fmt.Errorf("query: provider is required")
	}
	if strings.TrimSpace(m.ExternalID) == "" {
		return fmt.Errorf("query: external id is required")
	}
	return nil
}

type ListEventActionsMessage struct {
	EventID string
}

func (ListEventActionsMessage) Type() string { return TypeListEventActions }

func (m ListEventActionsMessage) Validate() error {
	if strings.TrimSpace(m.EventID) == "" {
		return fmt.Errorf("query: event id is required")
	}
	return nil
}

type ListActionConfigsMessage struct {
	Provider string
}

func (ListActionConfigsMessage) Type() string { return TypeListActionConfigs }

func (m ListActionConfigsMessage) Validate() error {
	if strings.TrimSpace(m.Provider) == "" {
		return fmt.Errorf("query: provider is required")
	}
	return nil
}

type ListProvidersMessage struct{}

func (ListProvidersMessage) Type() string { return TypeListProviders }

func (ListProvidersMessage) Validate() error { return nil }
