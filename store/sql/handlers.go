package sqlstore

import (
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

func incomingEventHandlers() repository.ModelHandlers[*incomingEventRecord] {
	return repository.ModelHandlers[*incomingEventRecord]{
		NewRecord: func() *incomingEventRecord {
			return &incomingEventRecord{}
		},
		GetID: func(record *incomingEventRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *incomingEventRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record *incomingEventRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.ID)
		},
	}
}

func eventActionHandlers() repository.ModelHandlers[*eventActionRecord] {
	return repository.ModelHandlers[*eventActionRecord]{
		NewRecord: func() *eventActionRecord {
			return &eventActionRecord{}
		},
		GetID: func(record *eventActionRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *eventActionRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record *eventActionRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.ID)
		},
	}
}

func actionConfigHandlers() repository.ModelHandlers[*actionConfigRecord] {
	return repository.ModelHandlers[*actionConfigRecord]{
		NewRecord: func() *actionConfigRecord {
			return &actionConfigRecord{}
		},
		GetID: func(record *actionConfigRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *actionConfigRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record *actionConfigRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.ID)
		},
	}
}

func providerHandlers() repository.ModelHandlers[*providerRecord] {
	return repository.ModelHandlers[*providerRecord]{
		NewRecord: func() *providerRecord {
			return &providerRecord{}
		},
		GetID: func(record *providerRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *providerRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record *providerRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.ID)
		},
	}
}

func parseUUID(value string) uuid.UUID {
	parsed, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil
	}
	return parsed
}
