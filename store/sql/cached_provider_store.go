package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	repositorycache "github.com/goliatone/go-repository-cache/cache"

	"github.com/bowerbird-app/captain-hook-sub005/core"
)

const providerCacheKeyPrefix = "captainhook::provider::v1"

// CachedProviderStore fronts a provider store with the shared cache
// service. Provider lookup sits on the hot path of every delivery, and
// rows change rarely; Upsert invalidates the single affected key.
type CachedProviderStore struct {
	base  core.ProviderStore
	cache repositorycache.CacheService
}

func NewCachedProviderStore(base core.ProviderStore, cacheService repositorycache.CacheService) (*CachedProviderStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base provider store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: provider cache service is required")
	}
	return &CachedProviderStore{base: base, cache: cacheService}, nil
}

// ProviderCacheKey returns the deterministic cache key for a provider
// lookup: captainhook::provider::v1::<name> with the name normalized and
// URL-path escaped.
func ProviderCacheKey(name string) (string, error) {
	normalized := strings.TrimSpace(strings.ToLower(name))
	if normalized == "" {
		return "", fmt.Errorf("sqlstore: provider name is required")
	}
	return providerCacheKeyPrefix + "::" + url.PathEscape(normalized), nil
}

func (s *CachedProviderStore) Get(ctx context.Context, name string) (core.ProviderConfig, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.ProviderConfig{}, fmt.Errorf("sqlstore: cached provider store is not configured")
	}
	normalized := strings.TrimSpace(strings.ToLower(name))
	cacheKey, err := ProviderCacheKey(normalized)
	if err != nil {
		return core.ProviderConfig{}, err
	}
	return repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (core.ProviderConfig, error) {
		return s.base.Get(ctx, normalized)
	})
}

func (s *CachedProviderStore) Upsert(ctx context.Context, config core.ProviderConfig) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached provider store is not configured")
	}
	if err := s.base.Upsert(ctx, config); err != nil {
		return err
	}
	cacheKey, err := ProviderCacheKey(config.Name)
	if err != nil {
		return err
	}
	return s.cache.Delete(ctx, cacheKey)
}

// List always reads through to the base store. It serves registry syncs
// and admin surfaces, neither of which is latency sensitive.
func (s *CachedProviderStore) List(ctx context.Context) ([]core.ProviderConfig, error) {
	if s == nil || s.base == nil {
		return nil, fmt.Errorf("sqlstore: cached provider store is not configured")
	}
	return s.base.List(ctx)
}

var _ core.ProviderStore = (*CachedProviderStore)(nil)
