package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/bowerbird-app/captain-hook-sub005/core"
)

// RateCounterStore backs the fixed-window rate guard with one row per
// (provider, window_start) bucket. Increment is a single atomic upsert
// returning the post-increment count, so concurrent deliveries never
// read-modify-write.
type RateCounterStore struct {
	db  *bun.DB
	now func() time.Time
}

func NewRateCounterStore(db *bun.DB) (*RateCounterStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &RateCounterStore{
		db: db,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

func (s *RateCounterStore) Increment(ctx context.Context, provider string, windowStart time.Time) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: rate counter store is not configured")
	}
	provider = strings.TrimSpace(strings.ToLower(provider))
	if provider == "" {
		return 0, fmt.Errorf("sqlstore: provider is required")
	}

	now := s.now()
	var count int
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO captainhook_rate_counters (id, provider, window_start, count, created_at, updated_at)
		 VALUES (?, ?, ?, 1, ?, ?)
		 ON CONFLICT (provider, window_start)
		 DO UPDATE SET count = captainhook_rate_counters.count + 1, updated_at = EXCLUDED.updated_at
		 RETURNING count`,
		uuid.NewString(),
		provider,
		windowStart.UTC(),
		now,
		now,
	).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// PruneBefore drops buckets whose window closed before the cutoff. Callers
// run it on a maintenance cadence; the guard never reads old windows.
func (s *RateCounterStore) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: rate counter store is not configured")
	}
	result, err := s.db.NewDelete().
		Model((*rateCounterRecord)(nil)).
		Where("?TableAlias.window_start < ?", cutoff.UTC()).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

var _ core.RateCounterStore = (*RateCounterStore)(nil)
