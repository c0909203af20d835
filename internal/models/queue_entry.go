package models

import (
	"encoding/json"
	"time"
)

// QueueEntry wraps one TradeEvent with delivery bookkeeping. The event
// payload and its retry metadata live in a single row so failure updates
// stay atomic.
type QueueEntry struct {
	EventID     string          `db:"event_id" json:"event_id"`
	Payload     json.RawMessage `db:"payload" json:"payload"`
	EnqueuedAt  int64           `db:"enqueued_at" json:"enqueued_at"`
	RetryCount  int             `db:"retry_count" json:"retry_count"`
	LastError   string          `db:"last_error" json:"last_error,omitempty"`
	NextRetryAt *int64          `db:"next_retry_at" json:"next_retry_at,omitempty"`
}

// TableName returns the table name for QueueEntry.
func (QueueEntry) TableName() string {
	return "pending_trades"
}

// Event decodes the stored payload back into a TradeEvent.
func (e *QueueEntry) Event() (*TradeEvent, error) {
	var ev TradeEvent
	if err := json.Unmarshal(e.Payload, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

// Due reports whether the entry is eligible for transmission at now.
func (e *QueueEntry) Due(now time.Time) bool {
	return e.NextRetryAt == nil || *e.NextRetryAt <= now.Unix()
}

// EnqueuedAtTime returns EnqueuedAt as time.Time.
func (e *QueueEntry) EnqueuedAtTime() time.Time {
	return time.Unix(e.EnqueuedAt, 0)
}

// Setting is one persisted key/value pair.
type Setting struct {
	Key       string `db:"key" json:"key"`
	Value     string `db:"value" json:"value"`
	UpdatedAt int64  `db:"updated_at" json:"updated_at"`
}

// TableName returns the table name for Setting.
func (Setting) TableName() string {
	return "settings"
}

// Setting keys used by the agent.
const (
	SettingAccessToken  = "access_token"
	SettingRefreshToken = "refresh_token"
	SettingClientID     = "client_id"
)
