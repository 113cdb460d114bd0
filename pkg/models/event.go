package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// EventKind identifies one unit of recorded sync work
type EventKind string

const (
	EventSeedStarted      EventKind = "seed_started"
	EventChunkCompleted   EventKind = "chunk_completed"
	EventSeedCompleted    EventKind = "seed_completed"
	EventSyncCompleted    EventKind = "sync_completed"
	EventIncrementalFetch EventKind = "incremental_fetch"
	EventError            EventKind = "error"
)

// EventDetails is the structured payload attached to a sync event
type EventDetails struct {
	Folders      []string `json:"folders,omitempty"`
	Offset       uint32   `json:"offset,omitempty"`
	FetchedCount int      `json:"fetched_count,omitempty"`
	DurationMs   int64    `json:"duration_ms,omitempty"`
	Error        string   `json:"error,omitempty"`
}

// Value marshals the details to JSON for storage
func (d EventDetails) Value() (driver.Value, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event details: %w", err)
	}
	return string(data), nil
}

// Scan unmarshals stored JSON details
func (d *EventDetails) Scan(src any) error {
	if src == nil {
		return nil
	}
	var data []byte
	switch v := src.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return fmt.Errorf("unsupported event details type %T", src)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, d); err != nil {
		return fmt.Errorf("failed to unmarshal event details: %w", err)
	}
	return nil
}

// SyncEvent is one append-only record of sync activity for an account
type SyncEvent struct {
	ID        int64        `db:"id"`
	AccountID int64        `db:"account_id"`
	Kind      EventKind    `db:"kind"`
	Folder    string       `db:"folder"`
	Details   EventDetails `db:"details"`
	CreatedAt time.Time    `db:"created_at"`
}
