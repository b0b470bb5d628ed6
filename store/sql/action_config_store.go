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

// ActionConfigStore persists provider action bindings. Rows are unique on
// (provider, event_type, action_class); removal is a soft delete so
// registries can still report historical bindings.
type ActionConfigStore struct {
	db   *bun.DB
	repo repository.Repository[*actionConfigRecord]
	now  func() time.Time
}

func NewActionConfigStore(db *bun.DB) (*ActionConfigStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*actionConfigRecord](db, actionConfigHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid action config repository wiring: %w", err)
		}
	}
	return &ActionConfigStore{
		db:   db,
		repo: repo,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

func (s *ActionConfigStore) Upsert(ctx context.Context, config core.ActionConfig) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: action config store is not configured")
	}
	provider := strings.TrimSpace(strings.ToLower(config.Provider))
	eventType := strings.TrimSpace(config.EventType)
	actionClass := strings.TrimSpace(config.ActionClass)
	if provider == "" || eventType == "" || actionClass == "" {
		return fmt.Errorf("sqlstore: provider, event type, and action class are required")
	}

	now := s.now()
	record := &actionConfigRecord{
		ID:                uuid.NewString(),
		Provider:          provider,
		EventType:         eventType,
		ActionClass:       actionClass,
		Async:             config.Async,
		MaxAttempts:       config.MaxAttempts,
		Priority:          config.Priority,
		RetryDelaySeconds: durationsToSeconds(config.RetryDelays),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	// Re-registering a removed binding revives the same row.
	_, err := s.db.NewInsert().
		Model(record).
		On("CONFLICT (provider, event_type, action_class) DO UPDATE").
		Set("async = EXCLUDED.async").
		Set("max_attempts = EXCLUDED.max_attempts").
		Set("priority = EXCLUDED.priority").
		Set("retry_delay_seconds = EXCLUDED.retry_delay_seconds").
		Set("updated_at = EXCLUDED.updated_at").
		Set("deleted_at = NULL").
		Exec(ctx)
	return err
}

// ListByProvider returns every binding for the provider, soft-deleted rows
// included, so callers can distinguish removed bindings from missing ones.
func (s *ActionConfigStore) ListByProvider(ctx context.Context, provider string) ([]core.ActionConfig, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: action config store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("provider", "=", strings.TrimSpace(strings.ToLower(provider))),
		repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.WhereAllWithDeleted().Order("priority ASC", "action_class ASC")
		}),
	)
	if err != nil {
		return nil, err
	}
	configs := make([]core.ActionConfig, 0, len(records))
	for _, record := range records {
		configs = append(configs, actionConfigToDomain(record))
	}
	return configs, nil
}

func (s *ActionConfigStore) SoftDelete(ctx context.Context, provider string, eventType string, actionClass string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: action config store is not configured")
	}
	result, err := s.db.NewDelete().
		Model((*actionConfigRecord)(nil)).
		Where("?TableAlias.provider = ?", strings.TrimSpace(strings.ToLower(provider))).
		Where("?TableAlias.event_type = ?", strings.TrimSpace(eventType)).
		Where("?TableAlias.action_class = ?", strings.TrimSpace(actionClass)).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf(
			"sqlstore: action config not found: %s/%s/%s",
			provider,
			eventType,
			actionClass,
		)
	}
	return nil
}

func actionConfigToDomain(record *actionConfigRecord) core.ActionConfig {
	if record == nil {
		return core.ActionConfig{}
	}
	config := core.ActionConfig{
		Provider:    record.Provider,
		EventType:   record.EventType,
		ActionClass: record.ActionClass,
		Async:       record.Async,
		MaxAttempts: record.MaxAttempts,
		Priority:    record.Priority,
		RetryDelays: secondsToDurations(record.RetryDelaySeconds),
	}
	if record.DeletedAt != nil {
		deletedAt := *record.DeletedAt
		config.DeletedAt = &deletedAt
	}
	return config
}

func durationsToSeconds(delays []time.Duration) []int64 {
	seconds := make([]int64, 0, len(delays))
	for _, delay := range delays {
		seconds = append(seconds, int64(delay/time.Second))
	}
	return seconds
}

func secondsToDurations(seconds []int64) []time.Duration {
	if len(seconds) == 0 {
		return nil
	}
	delays := make([]time.Duration, 0, len(seconds))
	for _, value := range seconds {
		delays = append(delays, time.Duration(value)*time.Second)
	}
	return delays
}

var _ core.ActionConfigStore = (*ActionConfigStore)(nil)
