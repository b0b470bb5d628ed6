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

// ActionStore persists per-action execution rows. Acquire is a single
// conditional UPDATE guarded by lock_version; losing a race surfaces as
// zero rows affected, never as an error.
type ActionStore struct {
	db   *bun.DB
	repo repository.Repository[*eventActionRecord]
	now  func() time.Time
}

func NewActionStore(db *bun.DB) (*ActionStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*eventActionRecord](db, eventActionHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid event action repository wiring: %w", err)
		}
	}
	return &ActionStore{
		db:   db,
		repo: repo,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

func (s *ActionStore) CreateForEvent(ctx context.Context, eventID string, configs []core.ActionConfig) ([]core.EventAction, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: action store is not configured")
	}
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return nil, fmt.Errorf("sqlstore: event id is required")
	}
	if len(configs) == 0 {
		return nil, nil
	}

	ordered := append([]core.ActionConfig(nil), configs...)
	core.SortActionConfigs(ordered)
	now := s.now()
	records := make([]*eventActionRecord, 0, len(ordered))
	for _, config := range ordered {
		records = append(records, &eventActionRecord{
			ID:          uuid.NewString(),
			EventID:     eventID,
			ActionClass: config.ActionClass,
			Status:      string(core.ActionStatusPending),
			Priority:    config.Priority,
			LockVersion: 1,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}
	if _, err := s.db.NewInsert().Model(&records).Exec(ctx); err != nil {
		return nil, err
	}
	actions := make([]core.EventAction, 0, len(records))
	for _, record := range records {
		actions = append(actions, eventActionToDomain(record))
	}
	return actions, nil
}

func (s *ActionStore) Get(ctx context.Context, id string) (core.EventAction, error) {
	if s == nil || s.repo == nil {
		return core.EventAction{}, fmt.Errorf("sqlstore: action store is not configured")
	}
	record, err := s.repo.GetByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return core.EventAction{}, err
	}
	return eventActionToDomain(record), nil
}

func (s *ActionStore) ListByEvent(ctx context.Context, eventID string) ([]core.EventAction, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: action store is not configured")
	}
	var records []*eventActionRecord
	err := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.event_id = ?", strings.TrimSpace(eventID)).
		Order("priority ASC", "action_class ASC", "id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	actions := make([]core.EventAction, 0, len(records))
	for _, record := range records {
		actions = append(actions, eventActionToDomain(record))
	}
	return actions, nil
}

// Acquire transitions a pending or failed row into processing if and only
// if the caller's lock version still matches. The losing side of a race
// gets Acquired=false and must walk away.
func (s *ActionStore) Acquire(ctx context.Context, id string, workerID string, lockVersion int64) (core.AcquireResult, error) {
	if s == nil || s.db == nil {
		return core.AcquireResult{}, fmt.Errorf("sqlstore: action store is not configured")
	}
	id = strings.TrimSpace(id)
	now := s.now()
	result, err := s.db.NewUpdate().
		Model((*eventActionRecord)(nil)).
		Set("status = ?", string(core.ActionStatusProcessing)).
		Set("locked_at = ?", now).
		Set("locked_by = ?", strings.TrimSpace(workerID)).
		Set("lock_version = lock_version + 1").
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Where("lock_version = ?", lockVersion).
		Where("status IN (?, ?)", string(core.ActionStatusPending), string(core.ActionStatusFailed)).
		Exec(ctx)
	if err != nil {
		return core.AcquireResult{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return core.AcquireResult{}, err
	}
	if affected == 0 {
		return core.AcquireResult{Acquired: false}, nil
	}
	action, err := s.Get(ctx, id)
	if err != nil {
		return core.AcquireResult{}, err
	}
	return core.AcquireResult{Acquired: true, Action: action}, nil
}

func (s *ActionStore) IncrementAttempt(ctx context.Context, id string) (core.EventAction, error) {
	if s == nil || s.db == nil {
		return core.EventAction{}, fmt.Errorf("sqlstore: action store is not configured")
	}
	id = strings.TrimSpace(id)
	now := s.now()
	_, err := s.db.NewUpdate().
		Model((*eventActionRecord)(nil)).
		Set("attempt_count = attempt_count + 1").
		Set("last_attempt_at = ?", now).
		Set("lock_version = lock_version + 1").
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return core.EventAction{}, err
	}
	return s.Get(ctx, id)
}

func (s *ActionStore) MarkProcessed(ctx context.Context, id string) error {
	return s.finish(ctx, id, core.ActionStatusProcessed, "")
}

func (s *ActionStore) MarkFailed(ctx context.Context, id string, errorMessage string) error {
	if len(errorMessage) > core.ErrorMessageLimit {
		errorMessage = errorMessage[:core.ErrorMessageLimit]
	}
	return s.finish(ctx, id, core.ActionStatusFailed, errorMessage)
}

func (s *ActionStore) finish(ctx context.Context, id string, status core.ActionStatus, errorMessage string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: action store is not configured")
	}
	now := s.now()
	query := s.db.NewUpdate().
		Model((*eventActionRecord)(nil)).
		Set("status = ?", string(status)).
		Set("locked_at = NULL").
		Set("locked_by = ''").
		Set("next_attempt_at = NULL").
		Set("lock_version = lock_version + 1").
		Set("updated_at = ?", now).
		Where("id = ?", strings.TrimSpace(id))
	if status == core.ActionStatusProcessed {
		query = query.Set("error_message = ''")
	} else {
		query = query.Set("error_message = ?", errorMessage)
	}
	result, err := query.Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("sqlstore: event action not found: %s", id)
	}
	return nil
}

// ResetForRetry re-opens a failed row for the next attempt while keeping
// its recorded error message.
func (s *ActionStore) ResetForRetry(ctx context.Context, id string, nextAttemptAt time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: action store is not configured")
	}
	now := s.now()
	result, err := s.db.NewUpdate().
		Model((*eventActionRecord)(nil)).
		Set("status = ?", string(core.ActionStatusPending)).
		Set("locked_at = NULL").
		Set("locked_by = ''").
		Set("next_attempt_at = ?", nextAttemptAt.UTC()).
		Set("lock_version = lock_version + 1").
		Set("updated_at = ?", now).
		Where("id = ?", strings.TrimSpace(id)).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("sqlstore: event action not found: %s", id)
	}
	return nil
}

func (s *ActionStore) ListDue(ctx context.Context, limit int, now time.Time) ([]core.EventAction, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: action store is not configured")
	}
	if limit <= 0 {
		limit = 25
	}
	// Fresh pending rows carry a NULL next_attempt_at; they are due
	// immediately, so a lost enqueue is picked up by the next sweep.
	var records []*eventActionRecord
	err := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.status = ?", string(core.ActionStatusPending)).
		Where("(?TableAlias.next_attempt_at IS NULL OR ?TableAlias.next_attempt_at <= ?)", now.UTC()).
		Order("priority ASC", "next_attempt_at ASC", "id ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	actions := make([]core.EventAction, 0, len(records))
	for _, record := range records {
		actions = append(actions, eventActionToDomain(record))
	}
	return actions, nil
}

func eventActionToDomain(record *eventActionRecord) core.EventAction {
	if record == nil {
		return core.EventAction{}
	}
	action := core.EventAction{
		ID:           record.ID,
		EventID:      record.EventID,
		ActionClass:  record.ActionClass,
		Status:       core.ActionStatus(record.Status),
		Priority:     record.Priority,
		AttemptCount: record.AttemptCount,
		ErrorMessage: record.ErrorMessage,
		LockedBy:     record.LockedBy,
		LockVersion:  record.LockVersion,
		CreatedAt:    record.CreatedAt,
		UpdatedAt:    record.UpdatedAt,
	}
	if record.LastAttemptAt != nil {
		value := *record.LastAttemptAt
		action.LastAttemptAt = &value
	}
	if record.LockedAt != nil {
		value := *record.LockedAt
		action.LockedAt = &value
	}
	if record.NextAttemptAt != nil {
		value := *record.NextAttemptAt
		action.NextAttemptAt = &value
	}
	return action
}

var _ core.ActionStore = (*ActionStore)(nil)
