package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type incomingEventRecord struct {
	bun.BaseModel `bun:"table:captainhook_incoming_events,alias:ie"`

	ID          string            `bun:"id,pk"`
	Provider    string            `bun:"provider,notnull"`
	ExternalID  string            `bun:"external_id,notnull"`
	EventType   string            `bun:"event_type,notnull"`
	Status      string            `bun:"status,notnull"`
	DedupState  string            `bun:"dedup_state,notnull"`
	Payload     map[string]any    `bun:"payload,type:jsonb,notnull"`
	Headers     map[string]string `bun:"headers,type:jsonb,notnull"`
	Metadata    map[string]any    `bun:"metadata,type:jsonb,notnull"`
	RequestID   string            `bun:"request_id"`
	ArchivedAt  *time.Time        `bun:"archived_at,nullzero"`
	LockVersion int64             `bun:"lock_version,notnull"`
	CreatedAt   time.Time         `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt   time.Time         `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type eventActionRecord struct {
	bun.BaseModel `bun:"table:captainhook_event_actions,alias:ea"`

	ID            string     `bun:"id,pk"`
	EventID       string     `bun:"event_id,notnull"`
	ActionClass   string     `bun:"action_class,notnull"`
	Status        string     `bun:"status,notnull"`
	Priority      int        `bun:"priority,notnull"`
	AttemptCount  int        `bun:"attempt_count,notnull"`
	LastAttemptAt *time.Time `bun:"last_attempt_at,nullzero"`
	ErrorMessage  string     `bun:"error_message"`
	LockedAt      *time.Time `bun:"locked_at,nullzero"`
	LockedBy      string     `bun:"locked_by"`
	NextAttemptAt *time.Time `bun:"next_attempt_at,nullzero"`
	LockVersion   int64      `bun:"lock_version,notnull"`
	CreatedAt     time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt     time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type actionConfigRecord struct {
	bun.BaseModel `bun:"table:captainhook_action_configs,alias:ac"`

	ID                string     `bun:"id,pk"`
	Provider          string     `bun:"provider,notnull"`
	EventType         string     `bun:"event_type,notnull"`
	ActionClass       string     `bun:"action_class,notnull"`
	Async             bool       `bun:"async,notnull"`
	MaxAttempts       int        `bun:"max_attempts,notnull"`
	Priority          int        `bun:"priority,notnull"`
	RetryDelaySeconds []int64    `bun:"retry_delay_seconds,type:jsonb,notnull"`
	CreatedAt         time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt         time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
	DeletedAt         *time.Time `bun:"deleted_at,soft_delete,nullzero"`
}

type providerRecord struct {
	bun.BaseModel `bun:"table:captainhook_providers,alias:p"`

	ID                string    `bun:"id,pk"`
	Name              string    `bun:"name,notnull"`
	Token             string    `bun:"token,notnull"`
	Verifier          string    `bun:"verifier,notnull"`
	Secret            string    `bun:"secret"`
	NotificationURL   string    `bun:"notification_url"`
	Active            bool      `bun:"active,notnull"`
	ToleranceSeconds  int64     `bun:"tolerance_seconds,notnull"`
	RateLimit         int       `bun:"rate_limit,notnull"`
	RatePeriodSeconds int64     `bun:"rate_period_seconds,notnull"`
	MaxPayloadBytes   int       `bun:"max_payload_bytes,notnull"`
	CreatedAt         time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt         time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type rateCounterRecord struct {
	bun.BaseModel `bun:"table:captainhook_rate_counters,alias:rc"`

	ID          string    `bun:"id,pk"`
	Provider    string    `bun:"provider,notnull"`
	WindowStart time.Time `bun:"window_start,notnull"`
	Count       int       `bun:"count,notnull"`
	CreatedAt   time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt   time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
