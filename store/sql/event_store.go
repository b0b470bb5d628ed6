package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/bowerbird-app/captain-hook-sub005/core"
)

// EventStore persists incoming events in bun. Admission idempotency rides
// on the (provider, external_id) unique index: the insert either lands or
// trips the constraint, never a check-then-insert.
type EventStore struct {
	db   *bun.DB
	repo repository.Repository[*incomingEventRecord]
	now  func() time.Time
}

func NewEventStore(db *bun.DB) (*EventStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*incomingEventRecord](db, incomingEventHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid incoming event repository wiring: %w", err)
		}
	}
	return &EventStore{
		db:   db,
		repo: repo,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

func (s *EventStore) Admit(ctx context.Context, input core.AdmitEventInput) (core.IncomingEvent, bool, error) {
	if s == nil || s.db == nil {
		return core.IncomingEvent{}, false, fmt.Errorf("sqlstore: event store is not configured")
	}
	provider := strings.TrimSpace(strings.ToLower(input.Provider))
	externalID := strings.TrimSpace(input.ExternalID)
	if provider == "" || externalID == "" {
		return core.IncomingEvent{}, false, fmt.Errorf("sqlstore: provider and external id are required")
	}

	now := s.now()
	receivedAt := input.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = now
	}
	metadata := copyAnyMap(input.Metadata)
	metadata["received_at"] = receivedAt.Format(time.RFC3339Nano)

	record := &incomingEventRecord{
		ID:          uuid.NewString(),
		Provider:    provider,
		ExternalID:  externalID,
		EventType:   strings.TrimSpace(input.EventType),
		Status:      string(core.EventStatusReceived),
		DedupState:  string(core.DedupStateUnique),
		Payload:     copyAnyMap(input.Payload),
		Headers:     copyStringMap(input.Headers),
		Metadata:    metadata,
		RequestID:   strings.TrimSpace(input.RequestID),
		LockVersion: 1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			existing, markErr := s.markDuplicate(ctx, provider, externalID)
			if markErr != nil {
				return core.IncomingEvent{}, false, markErr
			}
			return existing, false, nil
		}
		return core.IncomingEvent{}, false, err
	}
	return incomingEventToDomain(record), true, nil
}

// markDuplicate flips the existing row's dedup state without touching its
// payload or processing status, then returns the fresh row.
func (s *EventStore) markDuplicate(ctx context.Context, provider string, externalID string) (core.IncomingEvent, error) {
	now := s.now()
	_, err := s.db.NewUpdate().
		Model((*incomingEventRecord)(nil)).
		Set("dedup_state = ?", string(core.DedupStateDuplicate)).
		Set("lock_version = lock_version + 1").
		Set("updated_at = ?", now).
		Where("provider = ?", provider).
		Where("external_id = ?", externalID).
		Exec(ctx)
	if err != nil {
		return core.IncomingEvent{}, err
	}
	return s.Find(ctx, provider, externalID)
}

func (s *EventStore) Get(ctx context.Context, id string) (core.IncomingEvent, error) {
	if s == nil || s.repo == nil {
		return core.IncomingEvent{}, fmt.Errorf("sqlstore: event store is not configured")
	}
	record, err := s.repo.GetByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return core.IncomingEvent{}, err
	}
	return incomingEventToDomain(record), nil
}

func (s *EventStore) Find(ctx context.Context, provider string, externalID string) (core.IncomingEvent, error) {
	if s == nil || s.repo == nil {
		return core.IncomingEvent{}, fmt.Errorf("sqlstore: event store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("provider", "=", strings.TrimSpace(strings.ToLower(provider))),
		repository.SelectBy("external_id", "=", strings.TrimSpace(externalID)),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.IncomingEvent{}, err
	}
	if len(records) == 0 {
		return core.IncomingEvent{}, fmt.Errorf(
			"sqlstore: incoming event not found for provider %q external id %q",
			provider,
			externalID,
		)
	}
	return incomingEventToDomain(records[0]), nil
}

func (s *EventStore) RecalculateStatus(ctx context.Context, eventID string) (core.EventStatus, error) {
	if s == nil || s.db == nil {
		return "", fmt.Errorf("sqlstore: event store is not configured")
	}
	eventID = strings.TrimSpace(eventID)

	event, err := s.Get(ctx, eventID)
	if err != nil {
		return "", err
	}

	var rows []eventActionRecord
	if err := s.db.NewSelect().
		Model(&rows).
		Column("status").
		Where("?TableAlias.event_id = ?", eventID).
		Scan(ctx); err != nil {
		return "", err
	}
	actions := make([]core.EventAction, 0, len(rows))
	for _, row := range rows {
		actions = append(actions, core.EventAction{Status: core.ActionStatus(row.Status)})
	}

	status := core.DeriveEventStatus(event.Status, actions)
	if status == event.Status {
		return status, nil
	}
	_, err = s.db.NewUpdate().
		Model((*incomingEventRecord)(nil)).
		Set("status = ?", string(status)).
		Set("lock_version = lock_version + 1").
		Set("updated_at = ?", s.now()).
		Where("id = ?", eventID).
		Exec(ctx)
	if err != nil {
		return "", err
	}
	return status, nil
}

func (s *EventStore) Archive(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: event store is not configured")
	}
	now := s.now()
	result, err := s.db.NewUpdate().
		Model((*incomingEventRecord)(nil)).
		Set("archived_at = ?", now).
		Set("lock_version = lock_version + 1").
		Set("updated_at = ?", now).
		Where("id = ?", strings.TrimSpace(id)).
		Where("archived_at IS NULL").
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		// Either already archived or missing; only the latter is an error.
		if _, getErr := s.Get(ctx, id); getErr != nil {
			return getErr
		}
	}
	return nil
}

func incomingEventToDomain(record *incomingEventRecord) core.IncomingEvent {
	if record == nil {
		return core.IncomingEvent{}
	}
	event := core.IncomingEvent{
		ID:          record.ID,
		Provider:    record.Provider,
		ExternalID:  record.ExternalID,
		EventType:   record.EventType,
		Status:      core.EventStatus(record.Status),
		DedupState:  core.DedupState(record.DedupState),
		Payload:     copyAnyMap(record.Payload),
		Headers:     copyStringMap(record.Headers),
		Metadata:    copyAnyMap(record.Metadata),
		RequestID:   record.RequestID,
		LockVersion: record.LockVersion,
		CreatedAt:   record.CreatedAt,
		UpdatedAt:   record.UpdatedAt,
	}
	if record.ArchivedAt != nil {
		archivedAt := *record.ArchivedAt
		event.ArchivedAt = &archivedAt
	}
	return event
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

func copyStringMap(in map[string]string) map[string]string {
	if len(in) == 0 {
		return map[string]string{}
	}
	out := make(map[string]string, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

func isUniqueViolation(err error) bool {
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}

var _ core.EventStore = (*EventStore)(nil)
