package command

import (
	"fmt"
	"strings"

	"github.com/bowerbird-app/captain-hook-sub005/core"
	"github.com/bowerbird-app/captain-hook-sub005/intake"
)

const (
	TypeProcessWebhook     = "captainhook.command.webhook.process"
	TypeExecuteAction      = "captainhook.command.action.execute"
	TypeUpsertProvider     = "captainhook.command.provider.upsert"
	TypeUpsertActionConfig = "captainhook.command.action_config.upsert"
	TypeRemoveActionConfig = "captainhook.command.action_config.remove"
	TypeArchiveEvent       = "captainhook.command.event.archive"
)

type ProcessWebhookMessage struct {
	Request intake.AcceptRequest
}

func (ProcessWebhookMessage) Type() string { return TypeProcessWebhook }

func (m ProcessWebhookMessage) Validate() error {
	if strings.TrimSpace(m.Request.Provider) == "" {
		return fmt.Errorf("command: provider is required")
	}
	if strings.TrimSpace(m.Request.Token) == "" {
		return fmt.Errorf("command: token is required")
	}
	if len(m.Request.Body) == 0 {
		return fmt.Errorf("command: body is required")
	}
	return nil
}

type ExecuteActionMessage struct {
	Task core.ScheduledTask
}

func (ExecuteActionMessage) Type() string { return TypeExecuteAction }

func (m ExecuteActionMessage) Validate() error {
	if strings.TrimSpace(m.Task.ActionID) == "" {
		return fmt.Errorf("command: action id is required")
	}
	return nil
}

type UpsertProviderMessage struct {
	Config core.ProviderConfig
}

func (UpsertProviderMessage) Type() string { return TypeUpsertProvider }

func (m UpsertProviderMessage) Validate() error {
	if strings.TrimSpace(m.Config.Name) == "" {
		return fmt.Errorf("command: provider name is required")
	}
	if strings.TrimSpace(m.Config.Token) == "" {
		return fmt.Errorf("command: provider token is required")
	}
	return nil
}

type UpsertActionConfigMessage struct {
	Config core.ActionConfig
}

func (UpsertActionConfigMessage) Type() string { return TypeUpsertActionConfig }

func (m UpsertActionConfigMessage) Validate() error {
	if strings.TrimSpace(m.Config.Provider) == "" {
		return fmt.Errorf("command: provider is required")
	}
	if strings.TrimSpace(m.Config.EventType) == "" {
		return fmt.Errorf("command: event type is required")
	}
	if strings.TrimSpace(m.Config.ActionClass) == "" {
		return fmt.Errorf("command: action class is required")
	}
	return nil
}

type RemoveActionConfigMessage struct {
	Provider    string
	EventType   string
	ActionClass string
}

func (RemoveActionConfigMessage) Type() string { return TypeRemoveActionConfig }

func (m RemoveActionConfigMessage) Validate() error {
	if strings.TrimSpace(m.Provider) == "" {
		return fmt.Errorf("command: provider is required")
	}
	if strings.TrimSpace(m.EventType) == "" {
		return fmt.Errorf("command: event type is required")
	}
	if strings.TrimSpace(m.ActionClass) == "" {
		return fmt.Errorf("command: action class is required")
	}
	return nil
}

type ArchiveEventMessage struct {
	EventID string
}

func (ArchiveEventMessage) Type() string { return TypeArchiveEvent }

func (m ArchiveEventMessage) Validate() error {
	if strings.TrimSpace(m.EventID) == "" {
		return fmt.Errorf("command: event id is required")
	}
	return nil
}
