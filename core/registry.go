package core

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// ActionRegistry maps (provider, event type) to ordered action configs.
// Registration is rare and startup-time; Lookup is hot-path, so reads take
// the shared lock only long enough to copy the matching configs.
type ActionRegistry struct {
	mu      sync.RWMutex
	configs map[string]ActionConfig
}

func NewActionRegistry() *ActionRegistry {
	return &ActionRegistry{configs: make(map[string]ActionConfig)}
}

// Register upserts a config keyed by (provider, event type, action class).
// Re-registration with the same key overwrites tunables.
func (r *ActionRegistry) Register(config ActionConfig) error {
	if r == nil {
		return fmt.Errorf("core: action registry is nil")
	}
	config.Provider = strings.TrimSpace(strings.ToLower(config.Provider))
	config.EventType = strings.TrimSpace(config.EventType)
	config.ActionClass = strings.TrimSpace(config.ActionClass)
	if config.Provider == "" {
		return fmt.Errorf("core: action config provider is required")
	}
	if config.EventType == "" {
		return fmt.Errorf("core: action config event type is required")
	}
	if config.ActionClass == "" {
		return fmt.Errorf("core: action config action class is required")
	}
	if config.MaxAttempts < 1 {
		config.MaxAttempts = DefaultMaxAttempts
	}
	config.RetryDelays = append([]time.Duration(nil), config.RetryDelays...)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs[config.Key()] = config
	return nil
}

// Deregister soft-deletes a config; it stops matching lookups but stays
// addressable for re-registration.
func (r *ActionRegistry) Deregister(provider string, eventType string, actionClass string) error {
	if r == nil {
		return fmt.Errorf("core: action registry is nil")
	}
	key := ActionConfig{Provider: provider, EventType: eventType, ActionClass: actionClass}.Key()
	now := time.Now().UTC()

	r.mu.Lock()
	defer r.mu.Unlock()
	config, exists := r.configs[key]
	if !exists {
		return fmt.Errorf("core: action config not found: %s", key)
	}
	config.DeletedAt = &now
	r.configs[key] = config
	return nil
}

// Lookup returns configs matching the exact event type or the wildcard,
// excluding soft-deleted entries, sorted ascending by priority with the
// action class as a stable tie-break.
func (r *ActionRegistry) Lookup(provider string, eventType string) []ActionConfig {
	if r == nil {
		return nil
	}
	provider = strings.TrimSpace(strings.ToLower(provider))
	eventType = strings.TrimSpace(eventType)

	r.mu.RLock()
	matched := make([]ActionConfig, 0, 4)
	for _, config := range r.configs {
		if config.Provider != provider {
			continue
		}
		if !config.Matches(eventType) {
			continue
		}
		matched = append(matched, cloneActionConfig(config))
	}
	r.mu.RUnlock()

	SortActionConfigs(matched)
	return matched
}

// Find resolves one config by its identity triple, including soft-deleted
// entries; the executor uses it to read the attempt budget at decision time.
func (r *ActionRegistry) Find(provider string, eventType string, actionClass string) (ActionConfig, bool) {
	if r == nil {
		return ActionConfig{}, false
	}
	key := ActionConfig{Provider: provider, EventType: eventType, ActionClass: actionClass}.Key()
	r.mu.RLock()
	config, ok := r.configs[key]
	r.mu.RUnlock()
	if !ok {
		return ActionConfig{}, false
	}
	return cloneActionConfig(config), true
}

func (r *ActionRegistry) List() []ActionConfig {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	configs := make([]ActionConfig, 0, len(r.configs))
	for _, config := range r.configs {
		configs = append(configs, cloneActionConfig(config))
	}
	r.mu.RUnlock()
	SortActionConfigs(configs)
	return configs
}

// SortActionConfigs orders configs by ascending priority then action class.
func SortActionConfigs(configs []ActionConfig) {
	sort.SliceStable(configs, func(i, j int) bool {
		if configs[i].Priority != configs[j].Priority {
			return configs[i].Priority < configs[j].Priority
		}
		return configs[i].ActionClass < configs[j].ActionClass
	})
}

func cloneActionConfig(config ActionConfig) ActionConfig {
	config.RetryDelays = append([]time.Duration(nil), config.RetryDelays...)
	if config.DeletedAt != nil {
		deletedAt := *config.DeletedAt
		config.DeletedAt = &deletedAt
	}
	return config
}

// InvokerRegistry resolves opaque action class identifiers to registered
// Action implementations. It replaces the source's runtime class-name
// reflection with an explicit registration table built at process startup.
type InvokerRegistry struct {
	mu       sync.RWMutex
	invokers map[string]Action
}

func NewInvokerRegistry() *InvokerRegistry {
	return &InvokerRegistry{invokers: make(map[string]Action)}
}

func (r *InvokerRegistry) Register(actionClass string, action Action) error {
	if r == nil {
		return fmt.Errorf("core: invoker registry is nil")
	}
	actionClass = strings.TrimSpace(actionClass)
	if actionClass == "" {
		return fmt.Errorf("core: action class is required")
	}
	if action == nil {
		return fmt.Errorf("core: action is nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invokers[actionClass] = action
	return nil
}

func (r *InvokerRegistry) Resolve(actionClass string) (Action, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	action, ok := r.invokers[strings.TrimSpace(actionClass)]
	r.mu.RUnlock()
	return action, ok
}

func (r *InvokerRegistry) Classes() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	classes := make([]string, 0, len(r.invokers))
	for class := range r.invokers {
		classes = append(classes, class)
	}
	r.mu.RUnlock()
	sort.Strings(classes)
	return classes
}
