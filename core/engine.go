package core

import (
	"context"
	"errors"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

var (
	ErrEventNotFound  = errors.New("core: incoming event not found")
	ErrActionNotFound = errors.New("core: event action not found")
)

// StoreProvider hands the engine a full set of persistence-backed stores,
// usually built by the SQL repository factory.
type StoreProvider interface {
	EventStore() EventStore
	ActionStore() ActionStore
	ProviderStore() ProviderStore
	ActionConfigStore() ActionConfigStore
	RateCounterStore() RateCounterStore
}

// RepositoryStoreFactory builds a StoreProvider from an opaque persistence
// client. The SQL factory implements it; the engine stays decoupled from bun.
type RepositoryStoreFactory interface {
	BuildStores(client any) (StoreProvider, error)
}

// Engine resolves configuration and wires the shared dependencies the
// intake and executor layers run on. It owns no request flow itself.
type Engine struct {
	config            Config
	logger            Logger
	loggerProvider    LoggerProvider
	metricsRecorder   MetricsRecorder
	errorFactory      ErrorFactory
	errorMapper       ErrorMapper
	persistenceClient any
	repositoryFactory any
	configProvider    ConfigProvider
	optionsResolver   OptionsResolver
	eventStore        EventStore
	actionStore       ActionStore
	providerStore     ProviderStore
	actionConfigStore ActionConfigStore
	rateCounterStore  RateCounterStore
	scheduler         Scheduler
	actionRegistry    *ActionRegistry
	invokerRegistry   *InvokerRegistry
	now               func() time.Time
}

// EngineDependencies exposes the resolved wiring for downstream layers.
type EngineDependencies struct {
	Logger            Logger
	LoggerProvider    LoggerProvider
	MetricsRecorder   MetricsRecorder
	ErrorFactory      ErrorFactory
	ErrorMapper       ErrorMapper
	PersistenceClient any
	RepositoryFactory any
	ConfigProvider    ConfigProvider
	OptionsResolver   OptionsResolver
	EventStore        EventStore
	ActionStore       ActionStore
	ProviderStore     ProviderStore
	ActionConfigStore ActionConfigStore
	RateCounterStore  RateCounterStore
	Scheduler         Scheduler
	ActionRegistry    *ActionRegistry
	InvokerRegistry   *InvokerRegistry
	Now               func() time.Time
}

func NewEngine(cfg Config, options ...Option) (*Engine, error) {
	builder := defaultEngineBuilder(cfg)
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("captainhook", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("captainhook"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.errorFactory == nil {
		builder.errorFactory = goerrors.New
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.actionRegistry == nil {
		builder.actionRegistry = NewActionRegistry()
	}
	if builder.invokerRegistry == nil {
		builder.invokerRegistry = NewInvokerRegistry()
	}
	if builder.now == nil {
		builder.now = func() time.Time {
			return time.Now().UTC()
		}
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if err := resolveStores(&builder); err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	return &Engine{
		config:            finalConfig,
		logger:            logger,
		loggerProvider:    provider,
		metricsRecorder:   builder.metricsRecorder,
		errorFactory:      builder.errorFactory,
		errorMapper:       builder.errorMapper,
		persistenceClient: builder.persistenceClient,
		repositoryFactory: builder.repositoryFactory,
		configProvider:    builder.configProvider,
		optionsResolver:   builder.optionsResolver,
		eventStore:        builder.eventStore,
		actionStore:       builder.actionStore,
		providerStore:     builder.providerStore,
		actionConfigStore: builder.actionConfigStore,
		rateCounterStore:  builder.rateCounterStore,
		scheduler:         builder.scheduler,
		actionRegistry:    builder.actionRegistry,
		invokerRegistry:   builder.invokerRegistry,
		now:               builder.now,
	}, nil
}

func Setup(cfg Config, options ...Option) (*Engine, error) {
	return NewEngine(cfg, options...)
}

// resolveStores fills store slots left empty by options: first from the
// repository factory, then from the in-memory implementations.
func resolveStores(builder *engineBuilder) error {
	missing := builder.eventStore == nil ||
		builder.actionStore == nil ||
		builder.providerStore == nil ||
		builder.actionConfigStore == nil ||
		builder.rateCounterStore == nil

	if missing && builder.repositoryFactory != nil {
		var provider StoreProvider
		if factory, ok := builder.repositoryFactory.(RepositoryStoreFactory); ok {
			built, err := factory.BuildStores(builder.persistenceClient)
			if err != nil {
				return err
			}
			provider = built
		} else if p, ok := builder.repositoryFactory.(StoreProvider); ok {
			provider = p
		}
		if provider != nil {
			if builder.eventStore == nil {
				builder.eventStore = provider.EventStore()
			}
			if builder.actionStore == nil {
				builder.actionStore = provider.ActionStore()
			}
			if builder.providerStore == nil {
				builder.providerStore = provider.ProviderStore()
			}
			if builder.actionConfigStore == nil {
				builder.actionConfigStore = provider.ActionConfigStore()
			}
			if builder.rateCounterStore == nil {
				builder.rateCounterStore = provider.RateCounterStore()
			}
		}
	}

	if builder.eventStore == nil || builder.actionStore == nil {
		events := NewMemoryEventStore()
		actions := NewMemoryActionStore()
		events.BindActionStore(actions)
		if builder.eventStore == nil {
			builder.eventStore = events
		}
		if builder.actionStore == nil {
			builder.actionStore = actions
		}
	}
	if builder.providerStore == nil {
		builder.providerStore = NewMemoryProviderStore()
	}
	if builder.actionConfigStore == nil {
		builder.actionConfigStore = NewMemoryActionConfigStore()
	}
	if builder.rateCounterStore == nil {
		builder.rateCounterStore = NewMemoryRateCounterStore()
	}
	return nil
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (e *Engine) Config() Config {
	if e == nil {
		return Config{}
	}
	return e.config
}

func (e *Engine) Observer() Observer {
	if e == nil {
		return Observer{}
	}
	return Observer{Logger: e.logger, Metrics: e.metricsRecorder}
}

func (e *Engine) Dependencies() EngineDependencies {
	if e == nil {
		return EngineDependencies{}
	}
	return EngineDependencies{
		Logger:            e.logger,
		LoggerProvider:    e.loggerProvider,
		MetricsRecorder:   e.metricsRecorder,
		ErrorFactory:      e.errorFactory,
		ErrorMapper:       e.errorMapper,
		PersistenceClient: e.persistenceClient,
		RepositoryFactory: e.repositoryFactory,
		ConfigProvider:    e.configProvider,
		OptionsResolver:   e.optionsResolver,
		EventStore:        e.eventStore,
		ActionStore:       e.actionStore,
		ProviderStore:     e.providerStore,
		ActionConfigStore: e.actionConfigStore,
		RateCounterStore:  e.rateCounterStore,
		Scheduler:         e.scheduler,
		ActionRegistry:    e.actionRegistry,
		InvokerRegistry:   e.invokerRegistry,
		Now:               e.now,
	}
}

// SyncRegistries loads persisted provider action bindings into the action
// registry. Call it at startup when configs live in the durable store.
func (e *Engine) SyncRegistries(ctx context.Context) error {
	if e == nil {
		return errors.New("core: engine is nil")
	}
	providers, err := e.providerStore.List(ctx)
	if err != nil {
		return e.mapError(err)
	}
	for _, provider := range providers {
		configs, err := e.actionConfigStore.ListByProvider(ctx, provider.Name)
		if err != nil {
			return e.mapError(err)
		}
		for _, config := range configs {
			if config.DeletedAt != nil {
				continue
			}
			if err := e.actionRegistry.Register(config); err != nil {
				return e.mapError(err)
			}
		}
	}
	return nil
}

func (e *Engine) mapError(err error) error {
	if err == nil {
		return nil
	}
	if e != nil && e.errorMapper != nil {
		if mapped := e.errorMapper(err); mapped != nil {
			return mapped
		}
	}
	return err
}
