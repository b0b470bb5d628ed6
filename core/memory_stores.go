package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// In-memory store implementations. They honor the same contracts as the SQL
// stores (uniqueness on admission, version-guarded acquisition) and back the
// engine in tests and persistence-free embedding.

type MemoryEventStore struct {
	mu      sync.Mutex
	events  map[string]*IncomingEvent
	byKey   map[string]string
	Now     func() time.Time
	actions *MemoryActionStore
}

func NewMemoryEventStore() *MemoryEventStore {
	return &MemoryEventStore{
		events: map[string]*IncomingEvent{},
		byKey:  map[string]string{},
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// BindActionStore wires the action store used for status recalculation.
func (s *MemoryEventStore) BindActionStore(actions *MemoryActionStore) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.actions = actions
	s.mu.Unlock()
}

func (s *MemoryEventStore) Admit(_ context.Context, input AdmitEventInput) (IncomingEvent, bool, error) {
	if s == nil {
		return IncomingEvent{}, false, fmt.Errorf("core: memory event store is nil")
	}
	provider := strings.TrimSpace(strings.ToLower(input.Provider))
	externalID := strings.TrimSpace(input.ExternalID)
	if provider == "" || externalID == "" {
		return IncomingEvent{}, false, fmt.Errorf("core: provider and external id are required")
	}
	key := provider + "|" + externalID
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	if id, exists := s.byKey[key]; exists {
		event := s.events[id]
		// Duplicate admission flips dedup state only; the original intake
		// record keeps its payload, headers, and status.
		event.DedupState = DedupStateDuplicate
		event.LockVersion++
		event.UpdatedAt = now
		return cloneEvent(*event), false, nil
	}

	receivedAt := input.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = now
	}
	metadata := copyAnyMap(input.Metadata)
	metadata["received_at"] = receivedAt.Format(time.RFC3339Nano)

	event := &IncomingEvent{
		ID:          uuid.NewString(),
		Provider:    provider,
		ExternalID:  externalID,
		EventType:   strings.TrimSpace(input.EventType),
		Status:      EventStatusReceived,
		DedupState:  DedupStateUnique,
		Payload:     copyAnyMap(input.Payload),
		Headers:     copyStringMap(input.Headers),
		Metadata:    metadata,
		RequestID:   strings.TrimSpace(input.RequestID),
		LockVersion: 1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.events[event.ID] = event
	s.byKey[key] = event.ID
	return cloneEvent(*event), true, nil
}

func (s *MemoryEventStore) Get(_ context.Context, id string) (IncomingEvent, error) {
	if s == nil {
		return IncomingEvent{}, fmt.Errorf("core: memory event store is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	event, ok := s.events[strings.TrimSpace(id)]
	if !ok {
		return IncomingEvent{}, fmt.Errorf("core: incoming event not found: %s", id)
	}
	return cloneEvent(*event), nil
}

func (s *MemoryEventStore) Find(_ context.Context, provider string, externalID string) (IncomingEvent, error) {
	if s == nil {
		return IncomingEvent{}, fmt.Errorf("core: memory event store is nil")
	}
	key := strings.TrimSpace(strings.ToLower(provider)) + "|" + strings.TrimSpace(externalID)
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byKey[key]
	if !ok {
		return IncomingEvent{}, fmt.Errorf("core: incoming event not found for %s/%s", provider, externalID)
	}
	return cloneEvent(*s.events[id]), nil
}

func (s *MemoryEventStore) RecalculateStatus(ctx context.Context, eventID string) (EventStatus, error) {
	if s == nil {
		return "", fmt.Errorf("core: memory event store is nil")
	}
	s.mu.Lock()
	actions := s.actions
	s.mu.Unlock()
	if actions == nil {
		return "", fmt.Errorf("core: memory event store has no action store bound")
	}
	rows, err := actions.ListByEvent(ctx, eventID)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	event, ok := s.events[strings.TrimSpace(eventID)]
	if !ok {
		return "", fmt.Errorf("core: incoming event not found: %s", eventID)
	}
	status := DeriveEventStatus(event.Status, rows)
	if status != event.Status {
		event.Status = status
		event.LockVersion++
		event.UpdatedAt = s.now()
	}
	return status, nil
}

func (s *MemoryEventStore) Archive(_ context.Context, id string) error {
	if s == nil {
		return fmt.Errorf("core: memory event store is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	event, ok := s.events[strings.TrimSpace(id)]
	if !ok {
		return fmt.Errorf("core: incoming event not found: %s", id)
	}
	if event.ArchivedAt == nil {
		now := s.now()
		event.ArchivedAt = &now
		event.LockVersion++
		event.UpdatedAt = now
	}
	return nil
}

func (s *MemoryEventStore) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// DeriveEventStatus computes the aggregate event status from its action
// rows. Events with no actions keep their current status.
func DeriveEventStatus(current EventStatus, actions []EventAction) EventStatus {
	if len(actions) == 0 {
		return current
	}
	anyFailed := false
	for _, action := range actions {
		switch action.Status {
		case ActionStatusPending, ActionStatusProcessing:
			return EventStatusProcessing
		case ActionStatusFailed:
			anyFailed = true
		}
	}
	if anyFailed {
		return EventStatusFailed
	}
	return EventStatusCompleted
}

type MemoryActionStore struct {
	mu      sync.Mutex
	actions map[string]*EventAction
	byEvent map[string][]string
	Now     func() time.Time
}

func NewMemoryActionStore() *MemoryActionStore {
	return &MemoryActionStore{
		actions: map[string]*EventAction{},
		byEvent: map[string][]string{},
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (s *MemoryActionStore) CreateForEvent(_ context.Context, eventID string, configs []ActionConfig) ([]EventAction, error) {
	if s == nil {
		return nil, fmt.Errorf("core: memory action store is nil")
	}
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return nil, fmt.Errorf("core: event id is required")
	}
	ordered := append([]ActionConfig(nil), configs...)
	SortActionConfigs(ordered)

	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	created := make([]EventAction, 0, len(ordered))
	for _, config := range ordered {
		action := &EventAction{
			ID:          uuid.NewString(),
			EventID:     eventID,
			ActionClass: strings.TrimSpace(config.ActionClass),
			Status:      ActionStatusPending,
			Priority:    config.Priority,
			LockVersion: 1,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		s.actions[action.ID] = action
		s.byEvent[eventID] = append(s.byEvent[eventID], action.ID)
		created = append(created, cloneAction(*action))
	}
	return created, nil
}

func (s *MemoryActionStore) Get(_ context.Context, id string) (EventAction, error) {
	if s == nil {
		return EventAction{}, fmt.Errorf("core: memory action store is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	action, ok := s.actions[strings.TrimSpace(id)]
	if !ok {
		return EventAction{}, fmt.Errorf("core: event action not found: %s", id)
	}
	return cloneAction(*action), nil
}

func (s *MemoryActionStore) ListByEvent(_ context.Context, eventID string) ([]EventAction, error) {
	if s == nil {
		return nil, fmt.Errorf("core: memory action store is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := s.byEvent[strings.TrimSpace(eventID)]
	actions := make([]EventAction, 0, len(ids))
	for _, id := range ids {
		actions = append(actions, cloneAction(*s.actions[id]))
	}
	sort.SliceStable(actions, func(i, j int) bool {
		if actions[i].Priority != actions[j].Priority {
			return actions[i].Priority < actions[j].Priority
		}
		return actions[i].ActionClass < actions[j].ActionClass
	})
	return actions, nil
}

// Acquire is the single conditional write: it succeeds only when the stored
// row still carries the caller's lock version and sits in an acquirable
// status. Losing the race is a skip signal, never an error.
func (s *MemoryActionStore) Acquire(_ context.Context, id string, workerID string, lockVersion int64) (AcquireResult, error) {
	if s == nil {
		return AcquireResult{}, fmt.Errorf("core: memory action store is nil")
	}
	workerID = strings.TrimSpace(workerID)
	if workerID == "" {
		return AcquireResult{}, fmt.Errorf("core: worker id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	action, ok := s.actions[strings.TrimSpace(id)]
	if !ok {
		return AcquireResult{}, fmt.Errorf("core: event action not found: %s", id)
	}
	if action.LockVersion != lockVersion {
		return AcquireResult{Acquired: false}, nil
	}
	if action.Status != ActionStatusPending && action.Status != ActionStatusFailed {
		return AcquireResult{Acquired: false}, nil
	}
	now := s.now()
	action.Status = ActionStatusProcessing
	action.LockedAt = &now
	action.LockedBy = workerID
	action.LockVersion++
	action.UpdatedAt = now
	return AcquireResult{Acquired: true, Action: cloneAction(*action)}, nil
}

func (s *MemoryActionStore) IncrementAttempt(_ context.Context, id string) (EventAction, error) {
	if s == nil {
		return EventAction{}, fmt.Errorf("core: memory action store is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	action, ok := s.actions[strings.TrimSpace(id)]
	if !ok {
		return EventAction{}, fmt.Errorf("core: event action not found: %s", id)
	}
	now := s.now()
	action.AttemptCount++
	action.LastAttemptAt = &now
	action.LockVersion++
	action.UpdatedAt = now
	return cloneAction(*action), nil
}

func (s *MemoryActionStore) MarkProcessed(_ context.Context, id string) error {
	return s.finish(id, ActionStatusProcessed, "")
}

func (s *MemoryActionStore) MarkFailed(_ context.Context, id string, errorMessage string) error {
	if len(errorMessage) > ErrorMessageLimit {
		errorMessage = errorMessage[:ErrorMessageLimit]
	}
	return s.finish(id, ActionStatusFailed, errorMessage)
}

func (s *MemoryActionStore) finish(id string, status ActionStatus, errorMessage string) error {
	if s == nil {
		return fmt.Errorf("core: memory action store is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	action, ok := s.actions[strings.TrimSpace(id)]
	if !ok {
		return fmt.Errorf("core: event action not found: %s", id)
	}
	now := s.now()
	action.Status = status
	action.ErrorMessage = errorMessage
	action.LockedAt = nil
	action.LockedBy = ""
	action.NextAttemptAt = nil
	if status == ActionStatusFailed {
		action.LastAttemptAt = &now
	}
	action.LockVersion++
	action.UpdatedAt = now
	return nil
}

func (s *MemoryActionStore) ResetForRetry(_ context.Context, id string, nextAttemptAt time.Time) error {
	if s == nil {
		return fmt.Errorf("core: memory action store is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	action, ok := s.actions[strings.TrimSpace(id)]
	if !ok {
		return fmt.Errorf("core: event action not found: %s", id)
	}
	now := s.now()
	next := nextAttemptAt.UTC()
	action.Status = ActionStatusPending
	action.LockedAt = nil
	action.LockedBy = ""
	action.NextAttemptAt = &next
	action.LockVersion++
	action.UpdatedAt = now
	return nil
}

func (s *MemoryActionStore) ListDue(_ context.Context, limit int, now time.Time) ([]EventAction, error) {
	if s == nil {
		return nil, fmt.Errorf("core: memory action store is nil")
	}
	if limit <= 0 {
		limit = 1
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	due := make([]EventAction, 0, limit)
	for _, action := range s.actions {
		if action.Status != ActionStatusPending {
			continue
		}
		if action.NextAttemptAt != nil && action.NextAttemptAt.After(now) {
			continue
		}
		due = append(due, cloneAction(*action))
	}
	sort.SliceStable(due, func(i, j int) bool {
		if due[i].Priority != due[j].Priority {
			return due[i].Priority < due[j].Priority
		}
		return due[i].CreatedAt.Before(due[j].CreatedAt)
	})
	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (s *MemoryActionStore) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

type MemoryProviderStore struct {
	mu        sync.RWMutex
	providers map[string]ProviderConfig
}

func NewMemoryProviderStore() *MemoryProviderStore {
	return &MemoryProviderStore{providers: map[string]ProviderConfig{}}
}

func (s *MemoryProviderStore) Get(_ context.Context, name string) (ProviderConfig, error) {
	if s == nil {
		return ProviderConfig{}, fmt.Errorf("core: memory provider store is nil")
	}
	s.mu.RLock()
	config, ok := s.providers[strings.TrimSpace(strings.ToLower(name))]
	s.mu.RUnlock()
	if !ok {
		return ProviderConfig{}, fmt.Errorf("core: provider not found: %s", name)
	}
	return config, nil
}

func (s *MemoryProviderStore) Upsert(_ context.Context, config ProviderConfig) error {
	if s == nil {
		return fmt.Errorf("core: memory provider store is nil")
	}
	name := strings.TrimSpace(strings.ToLower(config.Name))
	if name == "" {
		return fmt.Errorf("core: provider name is required")
	}
	config.Name = name
	s.mu.Lock()
	s.providers[name] = config
	s.mu.Unlock()
	return nil
}

func (s *MemoryProviderStore) List(_ context.Context) ([]ProviderConfig, error) {
	if s == nil {
		return nil, fmt.Errorf("core: memory provider store is nil")
	}
	s.mu.RLock()
	names := make([]string, 0, len(s.providers))
	for name := range s.providers {
		names = append(names, name)
	}
	s.mu.RUnlock()
	sort.Strings(names)
	configs := make([]ProviderConfig, 0, len(names))
	s.mu.RLock()
	for _, name := range names {
		configs = append(configs, s.providers[name])
	}
	s.mu.RUnlock()
	return configs, nil
}

type MemoryActionConfigStore struct {
	mu      sync.RWMutex
	configs map[string]ActionConfig
}

func NewMemoryActionConfigStore() *MemoryActionConfigStore {
	return &MemoryActionConfigStore{configs: map[string]ActionConfig{}}
}

func (s *MemoryActionConfigStore) Upsert(_ context.Context, config ActionConfig) error {
	if s == nil {
		return fmt.Errorf("core: memory action config store is nil")
	}
	config.Provider = strings.TrimSpace(strings.ToLower(config.Provider))
	config.EventType = strings.TrimSpace(config.EventType)
	config.ActionClass = strings.TrimSpace(config.ActionClass)
	if config.Provider == "" || config.EventType == "" || config.ActionClass == "" {
		return fmt.Errorf("core: provider, event type, and action class are required")
	}
	s.mu.Lock()
	s.configs[config.Key()] = cloneActionConfig(config)
	s.mu.Unlock()
	return nil
}

func (s *MemoryActionConfigStore) ListByProvider(_ context.Context, provider string) ([]ActionConfig, error) {
	if s == nil {
		return nil, fmt.Errorf("core: memory action config store is nil")
	}
	provider = strings.TrimSpace(strings.ToLower(provider))
	s.mu.RLock()
	configs := make([]ActionConfig, 0, 4)
	for _, config := range s.configs {
		if config.Provider == provider {
			configs = append(configs, cloneActionConfig(config))
		}
	}
	s.mu.RUnlock()
	SortActionConfigs(configs)
	return configs, nil
}

func (s *MemoryActionConfigStore) SoftDelete(_ context.Context, provider string, eventType string, actionClass string) error {
	if s == nil {
		return fmt.Errorf("core: memory action config store is nil")
	}
	key := ActionConfig{Provider: provider, EventType: eventType, ActionClass: actionClass}.Key()
	s.mu.Lock()
	defer s.mu.Unlock()
	config, ok := s.configs[key]
	if !ok {
		return fmt.Errorf("core: action config not found: %s", key)
	}
	now := time.Now().UTC()
	config.DeletedAt = &now
	s.configs[key] = config
	return nil
}

// MemoryRateCounterStore is a mutex-guarded fixed-window counter; the SQL
// variant achieves the same increment-and-check in one upsert round trip.
type MemoryRateCounterStore struct {
	mu      sync.Mutex
	buckets map[string]int
}

func NewMemoryRateCounterStore() *MemoryRateCounterStore {
	return &MemoryRateCounterStore{buckets: map[string]int{}}
}

func (s *MemoryRateCounterStore) Increment(_ context.Context, provider string, windowStart time.Time) (int, error) {
	if s == nil {
		return 0, fmt.Errorf("core: memory rate counter store is nil")
	}
	key := strings.TrimSpace(strings.ToLower(provider)) + "|" + windowStart.UTC().Format(time.RFC3339)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buckets[key]++
	return s.buckets[key], nil
}

func cloneEvent(event IncomingEvent) IncomingEvent {
	event.Payload = copyAnyMap(event.Payload)
	event.Headers = copyStringMap(event.Headers)
	event.Metadata = copyAnyMap(event.Metadata)
	if event.ArchivedAt != nil {
		archivedAt := *event.ArchivedAt
		event.ArchivedAt = &archivedAt
	}
	return event
}

func cloneAction(action EventAction) EventAction {
	if action.LastAttemptAt != nil {
		lastAttemptAt := *action.LastAttemptAt
		action.LastAttemptAt = &lastAttemptAt
	}
	if action.LockedAt != nil {
		lockedAt := *action.LockedAt
		action.LockedAt = &lockedAt
	}
	if action.NextAttemptAt != nil {
		nextAttemptAt := *action.NextAttemptAt
		action.NextAttemptAt = &nextAttemptAt
	}
	return action
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
