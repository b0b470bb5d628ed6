package core

import (
	"strings"
	"time"
)

type EventStatus string

const (
	EventStatusReceived   EventStatus = "received"
	EventStatusProcessing EventStatus = "processing"
	EventStatusCompleted  EventStatus = "completed"
	EventStatusFailed     EventStatus = "failed"
)

type DedupState string

const (
	DedupStateUnique    DedupState = "unique"
	DedupStateDuplicate DedupState = "duplicate"
)

type ActionStatus string

const (
	ActionStatusPending    ActionStatus = "pending"
	ActionStatusProcessing ActionStatus = "processing"
	ActionStatusProcessed  ActionStatus = "processed"
	ActionStatusFailed     ActionStatus = "failed"
)

// ErrorMessageLimit bounds the stored stringified action error.
const ErrorMessageLimit = 1000

// IncomingEvent is one admitted webhook delivery. Identity is the
// (Provider, ExternalID) pair; a second admission with the same pair never
// creates a new row.
type IncomingEvent struct {
	ID          string
	Provider    string
	ExternalID  string
	EventType   string
	Status      EventStatus
	DedupState  DedupState
	Payload     map[string]any
	Headers     map[string]string
	Metadata    map[string]any
	RequestID   string
	ArchivedAt  *time.Time
	LockVersion int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// EventAction is the unit of execution: one row per (event, action config)
// pairing, driven through pending -> processing -> processed|failed by the
// executor. LockedAt/LockedBy plus LockVersion implement the optimistic
// claim; at most one worker holds the lock at a time.
type EventAction struct {
	ID            string
	EventID       string
	ActionClass   string
	Status        ActionStatus
	Priority      int
	AttemptCount  int
	LastAttemptAt *time.Time
	ErrorMessage  string
	LockedAt      *time.Time
	LockedBy      string
	NextAttemptAt *time.Time
	LockVersion   int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ActionConfig binds an action class to a (provider, event type) pair.
// EventType may be the wildcard "*". Keyed by
// (Provider, EventType, ActionClass); re-registration overwrites tunables.
type ActionConfig struct {
	Provider    string
	EventType   string
	ActionClass string
	Async       bool
	MaxAttempts int
	Priority    int
	RetryDelays []time.Duration
	DeletedAt   *time.Time
}

const (
	WildcardEventType  = "*"
	DefaultMaxAttempts = 3
	DefaultRetryDelay  = 30 * time.Second
)

// RetryDelay returns the backoff for a given 1-based attempt; the last
// schedule entry is reused beyond the schedule length.
func (c ActionConfig) RetryDelay(attempt int) time.Duration {
	if len(c.RetryDelays) == 0 {
		return DefaultRetryDelay
	}
	index := attempt - 1
	if index < 0 {
		index = 0
	}
	if index >= len(c.RetryDelays) {
		index = len(c.RetryDelays) - 1
	}
	delay := c.RetryDelays[index]
	if delay <= 0 {
		return DefaultRetryDelay
	}
	return delay
}

// Attempts returns the configured attempt budget, defaulted when unset.
func (c ActionConfig) Attempts() int {
	if c.MaxAttempts < 1 {
		return DefaultMaxAttempts
	}
	return c.MaxAttempts
}

func (c ActionConfig) Matches(eventType string) bool {
	if c.DeletedAt != nil {
		return false
	}
	configured := strings.TrimSpace(c.EventType)
	return configured == WildcardEventType || configured == strings.TrimSpace(eventType)
}

func (c ActionConfig) Key() string {
	return strings.TrimSpace(strings.ToLower(c.Provider)) + "|" +
		strings.TrimSpace(c.EventType) + "|" +
		strings.TrimSpace(c.ActionClass)
}

// ProviderConfig is the per-provider intake policy: endpoint token, verifier
// binding, and guard settings. A zero tolerance disables the timestamp
// window check; a zero rate limit disables the rate guard; a zero max
// payload disables the size guard. An empty Secret is an explicit
// verification bypass decided by the orchestrator, not the verifier.
type ProviderConfig struct {
	Name            string
	Token           string
	Verifier        string
	Secret          string
	NotificationURL string
	Active          bool
	Tolerance       time.Duration
	RateLimit       int
	RatePeriod      time.Duration
	MaxPayloadBytes int
}

// AdmitEventInput carries everything the event store needs for the single
// round-trip insert-or-fetch-existing admission.
type AdmitEventInput struct {
	Provider   string
	ExternalID string
	EventType  string
	Payload    map[string]any
	Headers    map[string]string
	Metadata   map[string]any
	RequestID  string
	ReceivedAt time.Time
}

// AcquireResult is the explicit compare-and-swap outcome for a lock
// acquisition attempt. Acquired=false is a normal skip signal, not an error.
type AcquireResult struct {
	Acquired bool
	Action   EventAction
}

// ScheduledTask is the payload handed to the async dispatch mechanism for
// deferred (re-)execution of one action row. Duplicate delivery is tolerated:
// the acquire guard makes re-execution a no-op.
type ScheduledTask struct {
	ActionID string
	EventID  string
	WorkerID string
	Attempt  int
}

// TruncateError bounds a stringified action error for storage.
func TruncateError(err error) string {
	if err == nil {
		return ""
	}
	message := strings.TrimSpace(err.Error())
	if len(message) > ErrorMessageLimit {
		return message[:ErrorMessageLimit]
	}
	return message
}
