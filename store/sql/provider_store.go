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

// ProviderStore persists intake policy rows keyed by provider name.
type ProviderStore struct {
	db   *bun.DB
	repo repository.Repository[*providerRecord]
	now  func() time.Time
}

func NewProviderStore(db *bun.DB) (*ProviderStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*providerRecord](db, providerHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid provider repository wiring: %w", err)
		}
	}
	return &ProviderStore{
		db:   db,
		repo: repo,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

func (s *ProviderStore) Get(ctx context.Context, name string) (core.ProviderConfig, error) {
	if s == nil || s.repo == nil {
		return core.ProviderConfig{}, fmt.Errorf("sqlstore: provider store is not configured")
	}
	name = strings.TrimSpace(strings.ToLower(name))
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("name", "=", name),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.ProviderConfig{}, err
	}
	if len(records) == 0 {
		return core.ProviderConfig{}, fmt.Errorf("sqlstore: provider not found: %s", name)
	}
	return providerToDomain(records[0]), nil
}

func (s *ProviderStore) Upsert(ctx context.Context, config core.ProviderConfig) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: provider store is not configured")
	}
	name := strings.TrimSpace(strings.ToLower(config.Name))
	if name == "" {
		return fmt.Errorf("sqlstore: provider name is required")
	}
	now := s.now()
	record := &providerRecord{
		ID:                uuid.NewString(),
		Name:              name,
		Token:             strings.TrimSpace(config.Token),
		Verifier:          strings.TrimSpace(strings.ToLower(config.Verifier)),
		Secret:            config.Secret,
		NotificationURL:   strings.TrimSpace(config.NotificationURL),
		Active:            config.Active,
		ToleranceSeconds:  int64(config.Tolerance / time.Second),
		RateLimit:         config.RateLimit,
		RatePeriodSeconds: int64(config.RatePeriod / time.Second),
		MaxPayloadBytes:   config.MaxPayloadBytes,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	_, err := s.db.NewInsert().
		Model(record).
		On("CONFLICT (name) DO UPDATE").
		Set("token = EXCLUDED.token").
		Set("verifier = EXCLUDED.verifier").
		Set("secret = EXCLUDED.secret").
		Set("notification_url = EXCLUDED.notification_url").
		Set("active = EXCLUDED.active").
		Set("tolerance_seconds = EXCLUDED.tolerance_seconds").
		Set("rate_limit = EXCLUDED.rate_limit").
		Set("rate_period_seconds = EXCLUDED.rate_period_seconds").
		Set("max_payload_bytes = EXCLUDED.max_payload_bytes").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

func (s *ProviderStore) List(ctx context.Context) ([]core.ProviderConfig, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: provider store is not configured")
	}
	var records []*providerRecord
	if err := s.db.NewSelect().
		Model(&records).
		Order("name ASC").
		Scan(ctx); err != nil {
		return nil, err
	}
	configs := make([]core.ProviderConfig, 0, len(records))
	for _, record := range records {
		configs = append(configs, providerToDomain(record))
	}
	return configs, nil
}

func providerToDomain(record *providerRecord) core.ProviderConfig {
	if record == nil {
		return core.ProviderConfig{}
	}
	return core.ProviderConfig{
		Name:            record.Name,
		Token:           record.Token,
		Verifier:        record.Verifier,
		Secret:          record.Secret,
		NotificationURL: record.NotificationURL,
		Active:          record.Active,
		Tolerance:       time.Duration(record.ToleranceSeconds) * time.Second,
		RateLimit:       record.RateLimit,
		RatePeriod:      time.Duration(record.RatePeriodSeconds) * time.Second,
		MaxPayloadBytes: record.MaxPayloadBytes,
	}
}

var _ core.ProviderStore = (*ProviderStore)(nil)
