package sqlstore

import (
	"fmt"

	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/uptrace/bun"

	"github.com/bowerbird-app/captain-hook-sub005/core"
)

// RepositoryFactory builds the full bun-backed store set from a
// persistence client. It satisfies both core.RepositoryStoreFactory and
// core.StoreProvider so it can be handed to the engine either way.
type RepositoryFactory struct {
	db    *bun.DB
	cache repositorycache.CacheService

	events       *EventStore
	actions      *ActionStore
	providers    core.ProviderStore
	configs      *ActionConfigStore
	rateCounters *RateCounterStore
}

type FactoryOption func(*RepositoryFactory)

// WithProviderCache fronts provider lookups with the shared cache service.
func WithProviderCache(cacheService repositorycache.CacheService) FactoryOption {
	return func(f *RepositoryFactory) {
		f.cache = cacheService
	}
}

func NewRepositoryFactory(db *bun.DB, options ...FactoryOption) (*RepositoryFactory, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	factory := &RepositoryFactory{db: db}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(factory)
	}
	if err := factory.initStores(); err != nil {
		return nil, err
	}
	return factory, nil
}

// NewRepositoryFactoryFromClient accepts either a *bun.DB or anything
// exposing DB() *bun.DB, like the persistence client.
func NewRepositoryFactoryFromClient(client any, options ...FactoryOption) (*RepositoryFactory, error) {
	db, err := resolveBunDB(client)
	if err != nil {
		return nil, err
	}
	return NewRepositoryFactory(db, options...)
}

func (f *RepositoryFactory) initStores() error {
	events, err := NewEventStore(f.db)
	if err != nil {
		return err
	}
	actions, err := NewActionStore(f.db)
	if err != nil {
		return err
	}
	providers, err := NewProviderStore(f.db)
	if err != nil {
		return err
	}
	configs, err := NewActionConfigStore(f.db)
	if err != nil {
		return err
	}
	rateCounters, err := NewRateCounterStore(f.db)
	if err != nil {
		return err
	}

	f.events = events
	f.actions = actions
	f.configs = configs
	f.rateCounters = rateCounters

	if f.cache != nil {
		cached, err := NewCachedProviderStore(providers, f.cache)
		if err != nil {
			return err
		}
		f.providers = cached
		return nil
	}
	f.providers = providers
	return nil
}

// BuildStores satisfies core.RepositoryStoreFactory. The client argument
// is accepted for interface compatibility; stores are already bound to the
// db the factory was constructed with.
func (f *RepositoryFactory) BuildStores(client any) (core.StoreProvider, error) {
	if f == nil {
		return nil, fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(client)
		if err != nil {
			return nil, err
		}
		f.db = db
		if err := f.initStores(); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func (f *RepositoryFactory) EventStore() core.EventStore { return f.events }

func (f *RepositoryFactory) ActionStore() core.ActionStore { return f.actions }

func (f *RepositoryFactory) ProviderStore() core.ProviderStore { return f.providers }

func (f *RepositoryFactory) ActionConfigStore() core.ActionConfigStore { return f.configs }

func (f *RepositoryFactory) RateCounterStore() core.RateCounterStore { return f.rateCounters }

func resolveBunDB(client any) (*bun.DB, error) {
	switch value := client.(type) {
	case *bun.DB:
		if value == nil {
			return nil, fmt.Errorf("sqlstore: bun db is nil")
		}
		return value, nil
	case interface{ DB() *bun.DB }:
		db := value.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned a nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client %T", client)
	}
}

var (
	_ core.StoreProvider          = (*RepositoryFactory)(nil)
	_ core.RepositoryStoreFactory = (*RepositoryFactory)(nil)
)
