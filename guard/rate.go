package guard

import (
	"context"
	"fmt"
	"time"

	"github.com/bowerbird-app/captain-hook-sub005/core"
)

// RateGuard enforces a fixed-window request budget per provider. Counting
// goes through the RateCounterStore so limits hold across processes sharing
// a durable store.
type RateGuard struct {
	Store core.RateCounterStore
	Now   func() time.Time
}

func NewRateGuard(store core.RateCounterStore) *RateGuard {
	return &RateGuard{
		Store: store,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Check admits or rejects one delivery for the provider. A zero limit or
// period disables the guard.
func (g *RateGuard) Check(ctx context.Context, provider core.ProviderConfig) error {
	if g == nil || g.Store == nil {
		return fmt.Errorf("guard: rate guard requires a counter store")
	}
	if provider.RateLimit <= 0 || provider.RatePeriod <= 0 {
		return nil
	}

	windowStart := g.now().Truncate(provider.RatePeriod)
	count, err := g.Store.Increment(ctx, provider.Name, windowStart)
	if err != nil {
		return err
	}
	if count > provider.RateLimit {
		return core.NewRateLimitedError(provider.Name, provider.RateLimit)
	}
	return nil
}

func (g *RateGuard) now() time.Time {
	if g != nil && g.Now != nil {
		return g.Now().UTC()
	}
	return time.Now().UTC()
}
